package storage

import (
	"sync"

	"github.com/mosaicnetworks/runstate/src/common"
)

// InmemStore implements the Store interface with plain maps.
type InmemStore struct {
	sync.RWMutex
	refs      map[string]string
	announced map[string]string
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		refs:      make(map[string]string),
		announced: make(map[string]string),
	}
}

// Refs implements the Store interface.
func (s *InmemStore) Refs() ([]Ref, error) {
	s.RLock()
	defer s.RUnlock()
	return toRefs(s.refs), nil
}

// GetRef implements the Store interface.
func (s *InmemStore) GetRef(urn string) (Ref, error) {
	s.RLock()
	defer s.RUnlock()

	head, ok := s.refs[urn]
	if !ok {
		return Ref{}, common.NewStoreErr("Ref", common.KeyNotFound, urn)
	}
	return Ref{URN: urn, Head: head}, nil
}

// PutRef implements the Store interface.
func (s *InmemStore) PutRef(ref Ref) (bool, error) {
	s.Lock()
	defer s.Unlock()

	if head, ok := s.refs[ref.URN]; ok && head == ref.Head {
		return false, nil
	}
	s.refs[ref.URN] = ref.Head
	return true, nil
}

// Announced implements the Store interface.
func (s *InmemStore) Announced() ([]Ref, error) {
	s.RLock()
	defer s.RUnlock()
	return toRefs(s.announced), nil
}

// SetAnnounced implements the Store interface.
func (s *InmemStore) SetAnnounced(refs []Ref) error {
	s.Lock()
	defer s.Unlock()

	s.announced = make(map[string]string, len(refs))
	for _, r := range refs {
		s.announced[r.URN] = r.Head
	}
	return nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

func toRefs(m map[string]string) []Ref {
	refs := make([]Ref, 0, len(m))
	for urn, head := range m {
		refs = append(refs, Ref{URN: urn, Head: head})
	}
	return sortRefs(refs)
}
