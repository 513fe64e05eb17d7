package archive

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/kdomanski/iso9660"
)

// listISO walks an ISO9660 image depth-first. Directories count as entries, the
// same way they do in a zip central directory.
func listISO(ctx context.Context, data []byte) ([]string, error) {
	image, err := iso9660.OpenImage(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	root, err := image.RootDir()
	if err != nil {
		return nil, err
	}

	var names []string
	if err := walkISO(ctx, root, "", &names); err != nil {
		return nil, err
	}
	return names, nil
}

func walkISO(ctx context.Context, dir *iso9660.File, prefix string, names *[]string) error {
	children, err := dir.GetChildren()
	if err != nil {
		return err
	}

	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := isoEntryName(child.Name())
		if name == "" {
			continue
		}
		full := path.Join(prefix, name)

		if child.IsDir() {
			*names = append(*names, full+"/")
			if err := walkISO(ctx, child, full, names); err != nil {
				return err
			}
			continue
		}
		*names = append(*names, full)
	}
	return nil
}

// isoEntryName drops the ";1" version suffix plain ISO9660 identifiers carry.
func isoEntryName(name string) string {
	if name == "\x00" || name == "\x01" {
		return ""
	}
	if idx := strings.IndexByte(name, ';'); idx >= 0 {
		name = name[:idx]
	}
	return strings.TrimSuffix(name, ".")
}
