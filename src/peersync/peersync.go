// Package peersync implements the sync subroutine: a full exchange with one
// remote peer that pulls its refs into the local store.
package peersync

import (
	"context"
	"fmt"

	"github.com/mosaicnetworks/runstate/src/net"
	"github.com/mosaicnetworks/runstate/src/peers"
	"github.com/mosaicnetworks/runstate/src/storage"
	"github.com/sirupsen/logrus"
)

// Syncer performs a full sync with a remote peer and reports how many refs
// changed locally.
type Syncer interface {
	Sync(ctx context.Context, peer peers.PeerID) (int, error)
}

// Fetcher is the part of a transport the syncer needs.
type Fetcher interface {
	Sync(target peers.PeerID, args *net.SyncRequest, resp *net.SyncResponse) error
}

// TransportSyncer fetches a peer's refs over a transport and merges them into
// a store.
type TransportSyncer struct {
	self    peers.PeerID
	fetcher Fetcher
	store   storage.Store
	logger  *logrus.Entry
}

// NewTransportSyncer ...
func NewTransportSyncer(self peers.PeerID, fetcher Fetcher, store storage.Store, logger *logrus.Entry) *TransportSyncer {
	return &TransportSyncer{
		self:    self,
		fetcher: fetcher,
		store:   store,
		logger:  logger.WithField("prefix", "sync"),
	}
}

// Sync implements Syncer. The context is checked before the request goes out;
// the request itself is bounded by the transport timeout.
func (s *TransportSyncer) Sync(ctx context.Context, peer peers.PeerID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var resp net.SyncResponse
	if err := s.fetcher.Sync(peer, &net.SyncRequest{FromID: s.self}, &resp); err != nil {
		return 0, fmt.Errorf("sync with %s: %w", peer.Short(), err)
	}

	changed, err := Merge(s.store, resp.Refs)
	if err != nil {
		return changed, err
	}

	s.logger.WithFields(logrus.Fields{
		"peer":    peer.Short(),
		"refs":    len(resp.Refs),
		"changed": changed,
	}).Debug("Synced")

	return changed, nil
}

// Merge writes refs into the store and returns how many were new or moved.
func Merge(store storage.Store, refs []storage.Ref) (int, error) {
	changed := 0
	for _, r := range refs {
		ok, err := store.PutRef(r)
		if err != nil {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}
