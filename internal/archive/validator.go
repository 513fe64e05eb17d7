package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"log/slog"
	"strings"

	"github.com/cochaviz/apkforge/internal/logging"
)

// Validator opens uploaded web project archives and locates their entry point.
type Validator struct {
	Logger *slog.Logger
}

// Validate enumerates the entries of file and returns the entry count together
// with the first entry point found. Any failure unwraps to ErrInvalidArchive.
func (v Validator) Validate(ctx context.Context, file *File) (Result, error) {
	if file == nil || len(file.Data) == 0 {
		return Result{}, invalidf("", "no archive was provided")
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = DetectContentType(file.Name, file.Data)
	}
	kind, ok := kindForContentType(contentType)
	if !ok {
		return Result{}, invalidf(file.Name, "unsupported file type %q, upload a .zip file", contentType)
	}

	logger := logging.Ensure(v.Logger).With("archive", file.Name, "kind", kind)

	var (
		entries []string
		err     error
	)
	switch kind {
	case KindISO:
		entries, err = listISO(ctx, file.Data)
	default:
		entries, err = listZip(ctx, file.Data)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, invalidf(file.Name, "cannot open %s container: %v", kind, err)
	}

	if len(entries) == 0 {
		return Result{}, invalidf(file.Name, "the archive is empty")
	}

	entryPath, found := FindEntryPoint(entries)
	if !found {
		return Result{}, invalidf(file.Name, "could not find an %s file in the archive", EntryPointName)
	}

	logger.Debug("archive validated", "entries", len(entries), "entry_point", entryPath)
	return Result{
		Kind:       kind,
		EntryCount: len(entries),
		EntryPath:  entryPath,
	}, nil
}

// FindEntryPoint returns the first path ending in EntryPointName that does not
// live under MetadataPrefix.
func FindEntryPoint(paths []string) (string, bool) {
	for _, p := range paths {
		if strings.HasSuffix(p, EntryPointName) && !strings.HasPrefix(p, MetadataPrefix) {
			return p, true
		}
	}
	return "", false
}

func kindForContentType(contentType string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case ContentTypeZip, ContentTypeZipCompressed:
		return KindZip, true
	case ContentTypeISO:
		return KindISO, true
	default:
		return "", false
	}
}

func listZip(ctx context.Context, data []byte) ([]string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		names = append(names, f.Name)
	}
	return names, nil
}
