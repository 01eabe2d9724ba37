package storage

import "errors"

// ErrNilItem is returned when a nil item or connection is stored.
var ErrNilItem = errors.New("cannot store nil value")

// NotFoundError is returned when an item doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "item not found"
	}

	return "item not found: " + e.ID
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
