package gcs

import (
	"context"
)

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// UploadFile uploads a local statement file and returns its gs:// URI.
	UploadFile(ctx context.Context, bucketName, objectName, filePath string) (string, error)

	// UploadBytes writes data under the given object name and returns its gs:// URI.
	UploadBytes(ctx context.Context, bucketName, objectName string, data []byte, contentType string) (string, error)

	// FetchFromGCS downloads file bytes from the given storage URI.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)

	// ExtractFilenameFromGCSURI extracts the filename from a storage URI.
	ExtractFilenameFromGCSURI(uri string) string
}
