package storage

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/mosaicnetworks/runstate/src/common"
)

type storeFactory func(t *testing.T, dir string) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		InmemBackend: func(t *testing.T, dir string) Store {
			return NewInmemStore()
		},
		BadgerBackend: func(t *testing.T, dir string) Store {
			s, err := NewBadgerStore(filepath.Join(dir, "badger_db"))
			if err != nil {
				t.Fatalf("err: %v", err)
			}
			return s
		},
		BoltBackend: func(t *testing.T, dir string) Store {
			s, err := NewBoltStore(filepath.Join(dir, "bolt.db"))
			if err != nil {
				t.Fatalf("err: %v", err)
			}
			return s
		},
	}
}

func withStores(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			dir, err := ioutil.TempDir("", "runstate")
			if err != nil {
				t.Fatalf("err: %v", err)
			}
			defer os.RemoveAll(dir)

			s := factory(t, dir)
			defer s.Close()

			fn(t, s)
		})
	}
}

func TestPutAndGetRef(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		if _, err := s.GetRef("rad:git:hnrk"); !common.IsStore(err, common.KeyNotFound) {
			t.Fatalf("expected KeyNotFound, got %v", err)
		}

		changed, err := s.PutRef(Ref{URN: "rad:git:hnrk", Head: "a1"})
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if !changed {
			t.Fatalf("first put should change the store")
		}

		changed, err = s.PutRef(Ref{URN: "rad:git:hnrk", Head: "a1"})
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if changed {
			t.Fatalf("putting the same head should not change the store")
		}

		changed, err = s.PutRef(Ref{URN: "rad:git:hnrk", Head: "b2"})
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if !changed {
			t.Fatalf("new head should change the store")
		}

		ref, err := s.GetRef("rad:git:hnrk")
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if ref.Head != "b2" {
			t.Fatalf("head should be b2, not %s", ref.Head)
		}
	})
}

func TestRefsAreSorted(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		for _, urn := range []string{"c", "a", "b"} {
			if _, err := s.PutRef(Ref{URN: urn, Head: urn + "0"}); err != nil {
				t.Fatalf("err: %v", err)
			}
		}

		refs, err := s.Refs()
		if err != nil {
			t.Fatalf("err: %v", err)
		}

		expected := []Ref{{"a", "a0"}, {"b", "b0"}, {"c", "c0"}}
		if !reflect.DeepEqual(refs, expected) {
			t.Fatalf("refs should be %v, not %v", expected, refs)
		}
	})
}

func TestSetAnnouncedReplaces(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		announced, err := s.Announced()
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if len(announced) != 0 {
			t.Fatalf("fresh store should have nothing announced: %v", announced)
		}

		if err := s.SetAnnounced([]Ref{{"a", "1"}, {"b", "1"}}); err != nil {
			t.Fatalf("err: %v", err)
		}
		if err := s.SetAnnounced([]Ref{{"b", "2"}}); err != nil {
			t.Fatalf("err: %v", err)
		}

		announced, err = s.Announced()
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if !reflect.DeepEqual(announced, []Ref{{"b", "2"}}) {
			t.Fatalf("unexpected announced set %v", announced)
		}

		refs, err := s.Refs()
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if len(refs) != 0 {
			t.Fatalf("announced refs should not leak into refs: %v", refs)
		}
	})
}

func TestConcurrentPutRef(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		const writers, writes = 4, 25

		var wg sync.WaitGroup
		errCh := make(chan error, writers*writes)

		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < writes; i++ {
					head := fmt.Sprintf("%d-%d", w, i)
					if _, err := s.PutRef(Ref{URN: "rad:git:hnrk", Head: head}); err != nil {
						errCh <- err
					}
				}
			}(w)
		}
		wg.Wait()
		close(errCh)

		for err := range errCh {
			t.Fatalf("concurrent PutRef failed: %v", err)
		}

		refs, err := s.Refs()
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if len(refs) != 1 {
			t.Fatalf("expected a single ref, got %v", refs)
		}
	})
}

func TestNewStoreUnknownBackend(t *testing.T) {
	_, err := NewStore("leveldb", "")
	if !common.IsStore(err, common.UnknownBackend) {
		t.Fatalf("expected UnknownBackend, got %v", err)
	}
}

func TestBoltStoreReopen(t *testing.T) {
	dir, err := ioutil.TempDir("", "runstate")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "bolt.db")

	s, err := NewStore(BoltBackend, path)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, err := s.PutRef(Ref{URN: "a", Head: "1"}); err != nil {
		t.Fatalf("err: %v", err)
	}
	s.Close()

	s, err = NewStore(BoltBackend, path)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer s.Close()

	ref, err := s.GetRef("a")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if ref.Head != "1" {
		t.Fatalf("head should survive a reopen, got %s", ref.Head)
	}
}
