package storage

import (
	"fmt"

	"github.com/dgraph-io/badger"
	"github.com/mosaicnetworks/runstate/src/common"
)

const (
	refPrefix       = "ref"
	announcedPrefix = "announced"
)

// maxConflictRetries bounds how many times a read-write transaction is
// replayed after badger reports a conflict with a concurrent one.
const maxConflictRetries = 64

func refKey(urn string) []byte {
	return []byte(fmt.Sprintf("%s_%s", refPrefix, urn))
}

func announcedKey(urn string) []byte {
	return []byte(fmt.Sprintf("%s_%s", announcedPrefix, urn))
}

// BadgerStore implements the Store interface on top of a Badger database.
type BadgerStore struct {
	db   *badger.DB
	path string
}

// NewBadgerStore opens, or creates, the database in path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		db:   handle,
		path: path,
	}, nil
}

// Refs implements the Store interface.
func (s *BadgerStore) Refs() ([]Ref, error) {
	return s.dbScan([]byte(refPrefix + "_"))
}

// GetRef implements the Store interface.
func (s *BadgerStore) GetRef(urn string) (Ref, error) {
	var ref Ref
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(refKey(urn))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return decodeValue(val, &ref)
	})

	if err == badger.ErrKeyNotFound {
		return Ref{}, common.NewStoreErr("Ref", common.KeyNotFound, urn)
	}

	return ref, err
}

// PutRef implements the Store interface.
func (s *BadgerStore) PutRef(ref Ref) (bool, error) {
	var changed bool
	err := s.update(func(txn *badger.Txn) error {
		changed = false

		item, err := txn.Get(refKey(ref.URN))
		switch err {
		case nil:
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var current Ref
			if err := decodeValue(val, &current); err != nil {
				return err
			}
			if current.Head == ref.Head {
				return nil
			}
		case badger.ErrKeyNotFound:
		default:
			return err
		}

		val, err := encodeValue(ref)
		if err != nil {
			return err
		}
		changed = true
		return txn.Set(refKey(ref.URN), val)
	})

	if err != nil {
		return false, err
	}

	return changed, nil
}

// Announced implements the Store interface.
func (s *BadgerStore) Announced() ([]Ref, error) {
	return s.dbScan([]byte(announcedPrefix + "_"))
}

// SetAnnounced implements the Store interface.
func (s *BadgerStore) SetAnnounced(refs []Ref) error {
	prefix := []byte(announcedPrefix + "_")

	return s.update(func(txn *badger.Txn) error {
		var stale [][]byte

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}

		for _, r := range refs {
			val, err := encodeValue(r)
			if err != nil {
				return err
			}
			if err := txn.Set(announcedKey(r.URN), val); err != nil {
				return err
			}
		}

		return nil
	})
}

// update runs fn in a read-write transaction, replaying it while it conflicts
// with a concurrent transaction.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i <= maxConflictRetries; i++ {
		err = s.db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
	}
	return err
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) dbScan(prefix []byte) ([]Ref, error) {
	refs := []Ref{}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var ref Ref
			if err := decodeValue(val, &ref); err != nil {
				return err
			}
			refs = append(refs, ref)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return sortRefs(refs), nil
}
