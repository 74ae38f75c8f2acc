// Package storage defines the binary-storage collaborator used for image and
// audio message content. The service only ever persists the relative path a
// store returns, never the bytes.
package storage

import (
	"context"
	"io"
)

// Store saves an uploaded binary and returns a stable relative path for it.
type Store interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
}
