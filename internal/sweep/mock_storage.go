package sweep

import (
	"context"

	"github.com/stretchr/testify/mock"
	"go.lumeweb.com/blob-janitor/internal/storage"
)

var _ storage.Client = (*MockStorage)(nil) // Ensure MockStorage implements storage.Client interface

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) ListPage(ctx context.Context, bucket, prefix string, limit, offset int) ([]storage.StorageObject, error) {
	args := m.Called(ctx, bucket, prefix, limit, offset)
	return args.Get(0).([]storage.StorageObject), args.Error(1)
}

func (m *MockStorage) ListAllRecursive(ctx context.Context, bucket, prefix string) []storage.StorageObject {
	args := m.Called(ctx, bucket, prefix)
	return args.Get(0).([]storage.StorageObject)
}

func (m *MockStorage) DeleteObjects(ctx context.Context, bucket string, paths []string) error {
	args := m.Called(ctx, bucket, paths)
	return args.Error(0)
}

func (m *MockStorage) DeleteObjectsAsync(bucket string, paths []string) {
	m.Called(bucket, paths)
}
