package artifacts

import "io"

// ArtifactStore owns the lifetime of stored artifacts. Every artifact returned
// by StoreArtifact must eventually be passed to RemoveArtifact or dropped by Clear.
type ArtifactStore interface {
	StoreArtifact(name string, kind ArtifactKind, payload []byte, metadata map[string]any) (Artifact, error)
	Open(artifact Artifact) (io.ReadCloser, error)
	RemoveArtifact(artifact Artifact) error
	Clear() error
}
