package artifacts

import "time"

type ArtifactKind string

const (
	PackageArtifact ArtifactKind = "package" // Placeholder application package
	TextArtifact    ArtifactKind = "text"    // Artifact for generic text artifacts
)

// ContentTypePackage tags placeholder payloads as Android package archives.
const ContentTypePackage = "application/vnd.android.package-archive"

// Artifact is an opaque handle to a stored build result. URI is the resource
// reference handed to callers and Name the suggested download file name.
type Artifact struct {
	ID   string       `json:"id"`
	Kind ArtifactKind `json:"kind"`
	Name string       `json:"name"`
	URI  string       `json:"uri"`

	Size        int64          `json:"size"`
	Checksum    *string        `json:"checksum,omitempty"`
	ContentType string         `json:"contentType"`
	CreatedAt   time.Time      `json:"createdAt"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
