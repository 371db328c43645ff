package net

import (
	"errors"

	"github.com/mosaicnetworks/runstate/src/peers"
	"github.com/mosaicnetworks/runstate/src/storage"
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrUnknownPeer is returned when an RPC targets a peer without a live
	// link.
	ErrUnknownPeer = errors.New("unknown peer")
)

// PeerEventType enumerates the presence changes a transport reports.
type PeerEventType int

const (
	// Listening means the transport accepts connections on Addr.
	Listening PeerEventType = iota
	// Connected means a link to Peer came up.
	Connected
	// Disconnecting means the link to Peer went away.
	Disconnecting
)

// String ...
func (t PeerEventType) String() string {
	switch t {
	case Listening:
		return "Listening"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// PeerEvent is a presence change observed by the transport.
type PeerEvent struct {
	Type PeerEventType
	Peer peers.PeerID
	Addr string
}

// Transport provides an interface for network transports to allow a node to
// communicate with other nodes.
type Transport interface {
	// Listen starts accepting connections and emits a Listening event. It
	// may block for the lifetime of the transport.
	Listen()

	// Events returns the stream of presence changes.
	Events() <-chan PeerEvent

	// Consumer returns a channel that can be used to consume and respond to
	// RPC requests.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// Connect opens a presence link to the peer listening on addr.
	Connect(addr string) error

	// Sync fetches the refs of the target peer.
	Sync(target peers.PeerID, args *SyncRequest, resp *SyncResponse) error

	// Broadcast sends refs to every connected peer.
	Broadcast(refs []storage.Ref) error

	// Close permanently closes a transport, stopping any associated
	// goroutines and freeing other resources.
	Close() error
}
