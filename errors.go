package tuneup

import (
	"fmt"

	"github.com/ciclofficina/tuneup/internal/store"
)

// Common engine errors
var (
	// ErrEntryTooLarge indicates a value's size estimate alone exceeds the
	// configured capacity; nothing is evicted for it and it is not cached.
	ErrEntryTooLarge = store.ErrTooLarge
)

// LoadError records a loader failure for a key. While the negative entry
// is alive, every lookup of the key returns the same *LoadError without
// invoking the loader again.
type LoadError struct {
	Key string
	Err error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("load %q: %v", e.Key, e.Err)
}

// Unwrap returns the underlying loader error.
func (e *LoadError) Unwrap() error {
	return e.Err
}
