package net

import (
	"github.com/mosaicnetworks/runstate/src/peers"
	"github.com/mosaicnetworks/runstate/src/storage"
)

// Hello opens a presence link. Addr is where the sender accepts RPC
// connections.
type Hello struct {
	FromID peers.PeerID
	Addr   string
}

// SyncRequest asks a peer for all its refs.
type SyncRequest struct {
	FromID peers.PeerID
}

// SyncResponse carries the responder's refs.
type SyncResponse struct {
	FromID peers.PeerID
	Refs   []storage.Ref
}

// AnnounceRequest pushes updated refs to a peer.
type AnnounceRequest struct {
	FromID peers.PeerID
	Refs   []storage.Ref
}

// AnnounceResponse reports how many of the announced refs were new to the
// receiver.
type AnnounceResponse struct {
	FromID   peers.PeerID
	Accepted int
}
