// Package storage persists generated media assets. Two backends are
// provided: local filesystem for development, Supabase object storage for
// deployments.
package storage

import "context"

// Uploader persists an asset under a key and returns the canonical key or
// public URL it is reachable at.
type Uploader interface {
	Write(ctx context.Context, key string, contentType string, data []byte) (string, error)
}
