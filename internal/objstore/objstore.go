// Package objstore stores the raw uploaded files. The storage locator
// returned by Upload is the object key under the configured bucket and
// is persisted on the document record for delete-time cleanup.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Common errors.
var (
	ErrInvalidConfig   = errors.New("invalid object storage config")
	ErrObjectNotFound  = errors.New("object not found")
	ErrExternalService = errors.New("object storage service error")
)

// Storage is the object storage backend interface.
type Storage interface {
	// Upload writes the object under key and returns its locator.
	Upload(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) (string, error)

	// Delete removes the object at the locator returned by Upload.
	Delete(ctx context.Context, locator string) error
}

// ObjectKey joins a storage prefix and file name into an object key.
func ObjectKey(prefix, fileName string) string {
	if prefix == "" {
		return fileName
	}
	return fmt.Sprintf("%s/%s", prefix, fileName)
}
