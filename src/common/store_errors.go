package common

import "fmt"

// StoreErrType enumerates the failure classes shared by the storage backends.
type StoreErrType uint32

const (
	// KeyNotFound is returned when a lookup misses.
	KeyNotFound StoreErrType = iota
	// Empty is returned when a collection has no items yet.
	Empty
	// UnknownBackend is returned when a store kind is not recognised.
	UnknownBackend
)

// StoreErr ...
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr ...
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error ...
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case Empty:
		m = "Empty"
	case UnknownBackend:
		m = "Unknown Backend"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// IsStore checks that an error is of type StoreErr and that it's code matches
// the provided StoreErr code.
func IsStore(err error, t StoreErrType) bool {
	storeErr, ok := err.(StoreErr)
	return ok && storeErr.errType == t
}
