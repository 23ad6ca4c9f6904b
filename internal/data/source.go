// Package data provides whole-object byte retrieval from an ordered
// chain of sources: local caches first, then trusted gateways, then the
// origin network chunk by chunk.
package data

import (
	"context"
	"errors"
	"io"
)

// ErrNoDataSource is returned when every configured source fails without
// surfacing a more specific error.
var ErrNoDataSource = errors.New("no data source available")

// Result is one successful retrieval. The stream is finite, single-pass
// and owned exclusively by the caller; a retry must re-request the data
// from its source rather than rewinding.
type Result struct {
	Stream io.ReadCloser
	Size   int64
	// Verified reports that the producing source cryptographically
	// checked the bytes against the content identifier.
	Verified bool
	// Cached reports that the bytes came from local storage rather
	// than the network.
	Cached bool
	// SourceType names the producing source, for logging and metrics.
	SourceType string
}

// Source retrieves a whole object's bytes by content identifier.
type Source interface {
	GetData(ctx context.Context, id string) (*Result, error)
}
