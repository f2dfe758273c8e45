package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/action-verifier/pkg/s3"
)

// MockObjectStorageClient is a mock implementation of s3.ObjectStorageClient
type MockObjectStorageClient struct {
	mock.Mock
}

func (m *MockObjectStorageClient) Connect(endpoint, accessKeyID, secretAccessKey string, useSSL bool) error {
	args := m.Called(endpoint, accessKeyID, secretAccessKey, useSSL)
	return args.Error(0)
}

func (m *MockObjectStorageClient) UploadObject(ctx context.Context, bucketName, objectName string, content io.Reader, size int64, contentType string) (s3.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, content, size, contentType)
	return args.Get(0).(s3.UploadInfo), args.Error(1)
}
