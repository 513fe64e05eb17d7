package artifacts

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// LocalArtifactStore persists artifacts and metadata on disk under BaseDir.
type LocalArtifactStore struct {
	BaseDir string
}

// StoreArtifact writes the payload into the store directory and records metadata.
func (store *LocalArtifactStore) StoreArtifact(name string, kind ArtifactKind, payload []byte, metadata map[string]any) (Artifact, error) {
	if store.BaseDir == "" {
		return Artifact{}, errors.New("base directory is not configured")
	}
	if name == "" {
		return Artifact{}, errors.New("artifact name is required")
	}

	if err := os.MkdirAll(store.BaseDir, 0o755); err != nil {
		return Artifact{}, err
	}

	artifactID := uuid.NewString()
	destName := artifactID
	if ext := filepath.Ext(name); ext != "" {
		destName += ext
	}

	destPath := filepath.Join(store.BaseDir, destName)
	if err := os.WriteFile(destPath, payload, 0o644); err != nil {
		return Artifact{}, err
	}

	artifact := Artifact{
		ID:          artifactID,
		Kind:        kind,
		Name:        name,
		URI:         fileURI(destPath),
		Size:        int64(len(payload)),
		Checksum:    checksum(payload),
		ContentType: detectContentType(name),
		CreatedAt:   time.Now(),
		Metadata:    cloneMetadata(metadata),
	}

	if err := store.writeMetadata(destPath, artifact); err != nil {
		_ = os.Remove(destPath)
		return Artifact{}, err
	}

	return artifact, nil
}

func (store *LocalArtifactStore) Open(artifact Artifact) (io.ReadCloser, error) {
	path, err := PathFromURI(artifact.URI)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Join(ErrNotFound, err)
	}
	return f, err
}

// RemoveArtifact deletes the artifact file and its metadata document.
func (store *LocalArtifactStore) RemoveArtifact(artifact Artifact) error {
	path, err := PathFromURI(artifact.URI)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	metaPath := metadataPath(path)
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}

// Clear removes all artifacts and metadata under the store's base directory.
func (store *LocalArtifactStore) Clear() error {
	entries, err := os.ReadDir(store.BaseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(store.BaseDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (store *LocalArtifactStore) writeMetadata(filePath string, artifact Artifact) error {
	payload, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(metadataPath(filePath), payload, 0o644)
}

func metadataPath(path string) string {
	return path + ".json"
}

func fileURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return "file://" + filepath.ToSlash(path)
}
