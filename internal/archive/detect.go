package archive

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// isoMagicOffset is where the first volume descriptor's "CD001" identifier lives.
const isoMagicOffset = 0x8001

// DetectContentType guesses the content type of an upload from its file name,
// falling back to sniffing the payload.
func DetectContentType(name string, data []byte) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip":
		return ContentTypeZip
	case ".iso":
		return ContentTypeISO
	case ".png":
		return "image/png"
	}

	if len(data) >= isoMagicOffset+5 && string(data[isoMagicOffset:isoMagicOffset+5]) == "CD001" {
		return ContentTypeISO
	}
	contentType := http.DetectContentType(data)
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	return contentType
}

// OpenFile reads path into a File with a detected content type.
func OpenFile(path string) (*File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	name := filepath.Base(path)
	return &File{
		Name:        name,
		ContentType: DetectContentType(name, data),
		Data:        data,
	}, nil
}
