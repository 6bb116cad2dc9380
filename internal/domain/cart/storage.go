package cart

import "context"

const (
	StorageKeyCart       = "cart"
	StorageKeyFavourites = "favourites"
)

// Storage is the persistent key-value store backing carts and favourites lists.
// Get reports found=false for keys that were never written.
type Storage interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}
