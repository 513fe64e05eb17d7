package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("artifact not found")

func PathFromURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, "file://") {
		return "", errors.New("not a file:// URI")
	}
	return strings.TrimPrefix(uri, "file://"), nil
}

func checksum(payload []byte) *string {
	sum := sha256.Sum256(payload)
	encoded := "sha256:" + hex.EncodeToString(sum[:])
	return &encoded
}

func detectContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".apk":
		return ContentTypePackage
	case ".zip":
		return "application/zip"
	case ".json":
		return "application/json"
	case ".txt", ".log":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for k, v := range metadata {
		cloned[k] = v
	}
	return cloned
}
