package storage

import (
	"fmt"

	"github.com/mosaicnetworks/runstate/src/common"
	"go.etcd.io/bbolt"
)

var (
	refsBucket      = []byte("refs")
	announcedBucket = []byte("announced")
)

// BoltStore implements the Store interface with BoltDB. BoltDB serialises
// write transactions, so no extra locking is needed.
type BoltStore struct {
	db   *bbolt.DB
	path string
}

// NewBoltStore opens, or creates, the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(refsBucket); err != nil {
			return fmt.Errorf("failed to create refs bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(announcedBucket); err != nil {
			return fmt.Errorf("failed to create announced bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{
		db:   db,
		path: path,
	}, nil
}

// Refs implements the Store interface.
func (s *BoltStore) Refs() ([]Ref, error) {
	return s.scan(refsBucket)
}

// GetRef implements the Store interface.
func (s *BoltStore) GetRef(urn string) (Ref, error) {
	var ref Ref
	found := false

	err := s.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(refsBucket).Get([]byte(urn))
		if val == nil {
			return nil
		}
		found = true
		return decodeValue(val, &ref)
	})
	if err != nil {
		return Ref{}, err
	}

	if !found {
		return Ref{}, common.NewStoreErr("Ref", common.KeyNotFound, urn)
	}

	return ref, nil
}

// PutRef implements the Store interface.
func (s *BoltStore) PutRef(ref Ref) (bool, error) {
	changed := false

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(refsBucket)

		if val := b.Get([]byte(ref.URN)); val != nil {
			var current Ref
			if err := decodeValue(val, &current); err != nil {
				return err
			}
			if current.Head == ref.Head {
				return nil
			}
		}

		val, err := encodeValue(ref)
		if err != nil {
			return err
		}
		changed = true
		return b.Put([]byte(ref.URN), val)
	})

	if err != nil {
		return false, err
	}

	return changed, nil
}

// Announced implements the Store interface.
func (s *BoltStore) Announced() ([]Ref, error) {
	return s.scan(announcedBucket)
}

// SetAnnounced implements the Store interface.
func (s *BoltStore) SetAnnounced(refs []Ref) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(announcedBucket); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(announcedBucket)
		if err != nil {
			return err
		}

		for _, r := range refs {
			val, err := encodeValue(r)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(r.URN), val); err != nil {
				return err
			}
		}

		return nil
	})
}

// Close implements the Store interface.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) scan(bucket []byte) ([]Ref, error) {
	refs := []Ref{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(_, val []byte) error {
			var ref Ref
			if err := decodeValue(val, &ref); err != nil {
				return err
			}
			refs = append(refs, ref)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return sortRefs(refs), nil
}
