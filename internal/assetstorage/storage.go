// Package assetstorage abstracts where binary asset files live. The asset
// service stores metadata; a storage strategy stores the bytes under an
// identifier it chooses and can later resolve to a serving URL.
package assetstorage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no file exists for an identifier.
var ErrNotFound = errors.New("asset file not found")

// Strategy reads and writes asset files. Implementations must be safe for
// concurrent use.
type Strategy interface {
	// Write stores the stream under a location derived from fileName and
	// returns the identifier used for later reads.
	Write(ctx context.Context, fileName string, r io.Reader) (string, error)
	// Read opens the file for the given identifier. The caller closes it.
	Read(ctx context.Context, identifier string) (io.ReadCloser, error)
	// Exists reports whether a file is stored under the identifier.
	Exists(ctx context.Context, identifier string) (bool, error)
	// Delete removes the file. Deleting a missing file returns ErrNotFound.
	Delete(ctx context.Context, identifier string) error
	// URL resolves an identifier to the path or URL it is served from.
	URL(identifier string) string
}
