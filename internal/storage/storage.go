// Package storage uploads ticket artifacts. Every sink takes a folder identifier and
// a file name and returns a reference to the stored file.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var ErrInvalidName = errors.New("invalid artifact name")

type Sink interface {
	Upload(ctx context.Context, data []byte, folder, filename string) (string, error)
}

// objectName joins folder and filename, rejecting names that would escape the folder.
func objectName(folder, filename string) (string, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" || filename == "." || filename == ".." || strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}

	folder = strings.Trim(path.Clean("/"+strings.TrimSpace(folder)), "/")
	if folder == "" {
		return filename, nil
	}
	return folder + "/" + filename, nil
}
