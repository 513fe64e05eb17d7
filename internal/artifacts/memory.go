package artifacts

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	artifact Artifact
	payload  []byte
}

// MemoryArtifactStore keeps artifacts in process memory and hands out mem://
// URIs, much like object URLs in a browser.
type MemoryArtifactStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{entries: make(map[string]memoryEntry)}
}

func (store *MemoryArtifactStore) StoreArtifact(name string, kind ArtifactKind, payload []byte, metadata map[string]any) (Artifact, error) {
	if name == "" {
		return Artifact{}, errors.New("artifact name is required")
	}

	id := uuid.NewString()
	artifact := Artifact{
		ID:          id,
		Kind:        kind,
		Name:        name,
		URI:         fmt.Sprintf("mem://%s/%s", id, name),
		Size:        int64(len(payload)),
		Checksum:    checksum(payload),
		ContentType: detectContentType(name),
		CreatedAt:   time.Now(),
		Metadata:    cloneMetadata(metadata),
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.entries == nil {
		store.entries = make(map[string]memoryEntry)
	}
	store.entries[id] = memoryEntry{
		artifact: artifact,
		payload:  append([]byte(nil), payload...),
	}
	return artifact, nil
}

func (store *MemoryArtifactStore) Open(artifact Artifact) (io.ReadCloser, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	entry, ok := store.entries[artifact.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, artifact.ID)
	}
	return io.NopCloser(bytes.NewReader(entry.payload)), nil
}

// RemoveArtifact is idempotent.
func (store *MemoryArtifactStore) RemoveArtifact(artifact Artifact) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	delete(store.entries, artifact.ID)
	return nil
}

func (store *MemoryArtifactStore) Clear() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.entries = make(map[string]memoryEntry)
	return nil
}

// Len reports how many artifacts are currently held.
func (store *MemoryArtifactStore) Len() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.entries)
}
