package gcsuploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

const uploadTimeout = 2 * time.Minute

// UploadFile uploads a local file to a GCS bucket under the given object name
// and returns the resulting gs:// URI. It assumes Application Default
// Credentials are configured (gcloud auth application-default login).
func UploadFile(ctx context.Context, bucketName, objectName, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	contentType := ""
	if strings.EqualFold(path.Ext(filePath), ".pdf") {
		contentType = "application/pdf"
	}
	return upload(ctx, bucketName, objectName, f, contentType)
}

// UploadBytes writes data to a GCS object and returns the resulting gs:// URI.
func UploadBytes(ctx context.Context, bucketName, objectName string, data []byte, contentType string) (string, error) {
	return upload(ctx, bucketName, objectName, bytes.NewReader(data), contentType)
}

func upload(ctx context.Context, bucketName, objectName string, src io.Reader, contentType string) (string, error) {
	if bucketName == "" || objectName == "" {
		return "", fmt.Errorf("upload: bucket and object name are required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	defer func() {
		// Ensure the writer is closed even on early returns
		_ = w.Close()
	}()

	if _, err := io.Copy(w, src); err != nil {
		return "", fmt.Errorf("copy to GCS writer: %w", err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return BuildGCSURI(bucketName, objectName), nil
}

// ObjectNameFor builds a date-partitioned object name for an uploaded
// statement, e.g. "statements/2024/03/15/<uuid>-march.pdf".
func ObjectNameFor(prefix, filename string, now time.Time) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "statement"
	}
	name := fmt.Sprintf("%s/%s-%s", now.UTC().Format("2006/01/02"), uuid.NewString(), base)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		name = prefix + "/" + name
	}
	return name
}
