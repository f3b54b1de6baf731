package credentials

import "context"

// Store persists the credential pair of the signed-in user.
type Store interface {
	// Get returns the stored pair, or ErrNotFound.
	Get(ctx context.Context) (*Pair, error)

	// Save replaces the stored pair.
	Save(ctx context.Context, pair Pair) error

	// Clear removes the stored pair. Clearing an empty store is not an error.
	Clear(ctx context.Context) error

	// Name returns the name of the store for logging
	Name() string
}
