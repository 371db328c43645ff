package peers

import (
	"sort"
)

// PeerID identifies a remote peer. It is opaque to everything but the
// transport, and comparable so it can key maps and sets.
type PeerID string

// String implements fmt.Stringer.
func (id PeerID) String() string {
	return string(id)
}

// Short returns an abbreviated form of the ID for log lines.
func (id PeerID) Short() string {
	if len(id) <= 12 {
		return string(id)
	}
	return string(id[:12])
}

// Peer is an entry of the bootstrap peers file.
type Peer struct {
	NetAddr   string
	PubKeyHex string
	Moniker   string
}

// NewPeer ...
func NewPeer(pubKeyHex, netAddr, moniker string) *Peer {
	return &Peer{
		PubKeyHex: pubKeyHex,
		NetAddr:   netAddr,
		Moniker:   moniker,
	}
}

// ID returns the PeerID derived from the peer's public key.
func (p *Peer) ID() PeerID {
	return PeerID(p.PubKeyHex)
}

// SortIDs sorts a slice of PeerIDs in place and returns it.
func SortIDs(ids []PeerID) []PeerID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, id PeerID) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.ID() != id {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
