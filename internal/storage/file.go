package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	_ "github.com/viant/afsc/s3"
)

var fileSystem = afs.New()

// ReadFile reads a local path or a storage URL (file://, s3://, mem://) fully
// into memory.
func ReadFile(ctx context.Context, location string) (data []byte, err error) {
	file, err := fileSystem.OpenURL(ctx, location)
	if err != nil {
		return nil, err
	}
	defer func(file io.Closer) {
		err = errors.Join(err, file.Close())
	}(file)

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, file); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Exists(ctx context.Context, location string) (bool, error) {
	return fileSystem.Exists(ctx, location)
}

// SiblingPath replaces the extension of location with ext, keeping URL
// schemes such as s3:// intact.
func SiblingPath(location, ext string) string {
	trimmed := strings.TrimSuffix(location, filepath.Ext(location))
	return trimmed + ext
}
