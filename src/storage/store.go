package storage

import (
	"sort"

	"github.com/mosaicnetworks/runstate/src/common"
)

// Backend names accepted by NewStore.
const (
	InmemBackend  = "inmem"
	BadgerBackend = "badger"
	BoltBackend   = "bolt"
)

// Ref points a project URN at a head.
type Ref struct {
	URN  string `json:"urn"`
	Head string `json:"head"`
}

// Store ...
type Store interface {
	// Refs returns every known ref, sorted by URN.
	Refs() ([]Ref, error)
	// GetRef returns the ref for a URN or a KeyNotFound StoreErr.
	GetRef(urn string) (Ref, error)
	// PutRef inserts or updates a ref and reports whether anything changed.
	PutRef(ref Ref) (bool, error)
	// Announced returns the refs saved by the last announcement, sorted by URN.
	Announced() ([]Ref, error)
	// SetAnnounced replaces the announced set.
	SetAnnounced(refs []Ref) error
	// Close releases the backend.
	Close() error
}

// NewStore opens the backend named by kind. path is ignored by the in-memory
// backend.
func NewStore(kind string, path string) (Store, error) {
	switch kind {
	case InmemBackend, "":
		return NewInmemStore(), nil
	case BadgerBackend:
		return NewBadgerStore(path)
	case BoltBackend:
		return NewBoltStore(path)
	default:
		return nil, common.NewStoreErr("Store", common.UnknownBackend, kind)
	}
}

func sortRefs(refs []Ref) []Ref {
	sort.Slice(refs, func(i, j int) bool { return refs[i].URN < refs[j].URN })
	return refs
}
