package gcsuploader

import (
	"context"

	"github.com/dvloznov/statement-scrubber/internal/gcs"
)

// Re-export interface from shared package.
type StorageService = gcs.StorageService

// GCSStorageService is the concrete implementation of StorageService
// that interacts with Google Cloud Storage.
type GCSStorageService struct{}

// NewGCSStorageService creates a new instance of GCSStorageService.
func NewGCSStorageService() *GCSStorageService {
	return &GCSStorageService{}
}

// UploadFile delegates to UploadFile.
func (s *GCSStorageService) UploadFile(ctx context.Context, bucketName, objectName, filePath string) (string, error) {
	return UploadFile(ctx, bucketName, objectName, filePath)
}

// UploadBytes delegates to UploadBytes.
func (s *GCSStorageService) UploadBytes(ctx context.Context, bucketName, objectName string, data []byte, contentType string) (string, error) {
	return UploadBytes(ctx, bucketName, objectName, data, contentType)
}

// FetchFromGCS delegates to FetchFromGCS.
func (s *GCSStorageService) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	return FetchFromGCS(ctx, gcsURI)
}

// ExtractFilenameFromGCSURI delegates to ExtractFilenameFromGCSURI.
func (s *GCSStorageService) ExtractFilenameFromGCSURI(uri string) string {
	return ExtractFilenameFromGCSURI(uri)
}
