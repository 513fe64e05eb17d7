package archive

// Kind identifies the container format of an uploaded archive.
type Kind string

const (
	KindZip Kind = "zip"
	KindISO Kind = "iso9660"
)

// Recognized content types.
const (
	ContentTypeZip           = "application/zip"
	ContentTypeZipCompressed = "application/x-zip-compressed"
	ContentTypeISO           = "application/x-iso9660-image"
)

const (
	// EntryPointName is the file treated as the web application's root document.
	EntryPointName = "index.html"
	// MetadataPrefix marks macOS resource-fork folders that never hold the entry point.
	MetadataPrefix = "__MACOSX"
)

// File is an uploaded binary blob. Name and ContentType come from the uploader.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the length of the blob in bytes.
func (f *File) Size() int {
	if f == nil {
		return 0
	}
	return len(f.Data)
}

// Result summarises a successfully validated archive.
type Result struct {
	Kind       Kind   `json:"kind"`
	EntryCount int    `json:"entryCount"`
	EntryPath  string `json:"entryPath"`
}
