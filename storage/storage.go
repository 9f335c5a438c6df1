// Package storage keeps rendered permit artifacts. Keys are slash separated
// paths such as "permits/<id>.pdf".
package storage

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Load when no artifact is stored under the key
var ErrNotExist = errors.New("file does not exist")

// FileStore saves and loads binary artifacts by key
type FileStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
	Load(ctx context.Context, key string) ([]byte, error)
}
