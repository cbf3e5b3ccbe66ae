package storage

import (
	"bytes"
	"context"
	"fmt"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Drive uploads artifacts into Google Drive folders identified by folder id.
type Drive struct {
	files *drive.FilesService
}

// NewDrive authenticates with a service account key file. An empty path falls back
// to application default credentials.
func NewDrive(ctx context.Context, credentialsFile string) (*Drive, error) {
	opts := []option.ClientOption{option.WithScopes(drive.DriveFileScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive client: %w", err)
	}
	return &Drive{files: srv.Files}, nil
}

func (d *Drive) Upload(ctx context.Context, data []byte, folder, filename string) (string, error) {
	if _, err := objectName("", filename); err != nil {
		return "", err
	}

	meta := &drive.File{Name: filename}
	if folder != "" {
		meta.Parents = []string{folder}
	}

	f, err := d.files.Create(meta).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType(filename))).
		SupportsAllDrives(true).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("drive upload %s: %w", filename, err)
	}
	return f.Id, nil
}
