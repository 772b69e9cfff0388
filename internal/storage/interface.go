package storage

import (
	"context"
)

// Client defines the interface for object store operations used by the sweeper
type Client interface {
	ListPage(ctx context.Context, bucket, prefix string, limit, offset int) ([]StorageObject, error)
	ListAllRecursive(ctx context.Context, bucket, prefix string) []StorageObject
	DeleteObjects(ctx context.Context, bucket string, paths []string) error
	DeleteObjectsAsync(bucket string, paths []string)
}
