package net

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mosaicnetworks/runstate/src/peers"
	"github.com/mosaicnetworks/runstate/src/storage"
)

// NewInmemAddr returns a new in-memory addr with a randomly generate UUID as
// the ID.
func NewInmemAddr() string {
	return generateUUID()
}

// generateUUID is used to generate a random UUID.
func generateUUID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%12x",
		buf[0:4],
		buf[4:6],
		buf[6:8],
		buf[8:10],
		buf[10:16])
}

// InmemNetwork resolves in-memory addresses to transports.
type InmemNetwork struct {
	sync.RWMutex
	byAddr map[string]*InmemTransport
}

// NewInmemNetwork ...
func NewInmemNetwork() *InmemNetwork {
	return &InmemNetwork{
		byAddr: make(map[string]*InmemTransport),
	}
}

func (n *InmemNetwork) register(t *InmemTransport) {
	n.Lock()
	defer n.Unlock()
	n.byAddr[t.localAddr] = t
}

func (n *InmemNetwork) unregister(t *InmemTransport) {
	n.Lock()
	defer n.Unlock()
	delete(n.byAddr, t.localAddr)
}

func (n *InmemNetwork) lookup(addr string) (*InmemTransport, bool) {
	n.RLock()
	defer n.RUnlock()
	t, ok := n.byAddr[addr]
	return t, ok
}

// InmemTransport implements the Transport interface, to allow nodes to be
// tested in-memory without going over a network.
type InmemTransport struct {
	sync.RWMutex
	id         peers.PeerID
	network    *InmemNetwork
	consumerCh chan RPC
	eventCh    chan PeerEvent
	localAddr  string
	peers      map[peers.PeerID]*InmemTransport
	timeout    time.Duration

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex
}

// NewInmemTransport is used to initialize a new transport on network and
// generates a random local address if none is specified.
func NewInmemTransport(id peers.PeerID, addr string, network *InmemNetwork) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	trans := &InmemTransport{
		id:         id,
		network:    network,
		consumerCh: make(chan RPC, 16),
		eventCh:    make(chan PeerEvent, 64),
		localAddr:  addr,
		peers:      make(map[peers.PeerID]*InmemTransport),
		timeout:    500 * time.Millisecond,
		shutdownCh: make(chan struct{}),
	}
	network.register(trans)
	return addr, trans
}

// Listen implements the Transport interface. There is nothing to accept, so
// it only reports the listening address.
func (i *InmemTransport) Listen() {
	i.emit(PeerEvent{Type: Listening, Addr: i.localAddr})
}

// Events implements the Transport interface.
func (i *InmemTransport) Events() <-chan PeerEvent {
	return i.eventCh
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RPC {
	return i.consumerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string {
	return i.localAddr
}

// Connect implements the Transport interface. Both ends see a Connected
// event; connecting an existing link is a no-op.
func (i *InmemTransport) Connect(addr string) error {
	if i.isShutdown() {
		return ErrTransportShutdown
	}

	other, ok := i.network.lookup(addr)
	if !ok {
		return fmt.Errorf("failed to connect to peer: %v", addr)
	}
	if other == i {
		return fmt.Errorf("refusing to connect to self")
	}

	i.Lock()
	_, linked := i.peers[other.id]
	if !linked {
		i.peers[other.id] = other
	}
	i.Unlock()

	if linked {
		return nil
	}

	other.Lock()
	other.peers[i.id] = i
	other.Unlock()

	i.emit(PeerEvent{Type: Connected, Peer: other.id, Addr: other.localAddr})
	other.emit(PeerEvent{Type: Connected, Peer: i.id, Addr: i.localAddr})

	return nil
}

// Disconnect tears down the link to a peer. Both ends see a Disconnecting
// event.
func (i *InmemTransport) Disconnect(id peers.PeerID) {
	i.Lock()
	other, ok := i.peers[id]
	delete(i.peers, id)
	i.Unlock()

	if !ok {
		return
	}

	other.Lock()
	delete(other.peers, i.id)
	other.Unlock()

	i.emit(PeerEvent{Type: Disconnecting, Peer: id, Addr: other.localAddr})
	other.emit(PeerEvent{Type: Disconnecting, Peer: i.id, Addr: i.localAddr})
}

// DisconnectAll is used to remove all links.
func (i *InmemTransport) DisconnectAll() {
	i.RLock()
	ids := make([]peers.PeerID, 0, len(i.peers))
	for id := range i.peers {
		ids = append(ids, id)
	}
	i.RUnlock()

	for _, id := range ids {
		i.Disconnect(id)
	}
}

// Sync implements the Transport interface.
func (i *InmemTransport) Sync(target peers.PeerID, args *SyncRequest, resp *SyncResponse) error {
	rpcResp, err := i.makeRPC(target, args)
	if err != nil {
		return err
	}

	out := rpcResp.Response.(*SyncResponse)
	*resp = *out
	return nil
}

// Broadcast implements the Transport interface.
func (i *InmemTransport) Broadcast(refs []storage.Ref) error {
	i.RLock()
	targets := make([]peers.PeerID, 0, len(i.peers))
	for id := range i.peers {
		targets = append(targets, id)
	}
	i.RUnlock()

	var errs []error
	for _, id := range peers.SortIDs(targets) {
		args := &AnnounceRequest{FromID: i.id, Refs: refs}
		if _, err := i.makeRPC(id, args); err != nil {
			errs = append(errs, fmt.Errorf("announce to %s: %w", id.Short(), err))
		}
	}

	return errors.Join(errs...)
}

func (i *InmemTransport) makeRPC(target peers.PeerID, args interface{}) (rpcResp RPCResponse, err error) {
	i.RLock()
	peer, ok := i.peers[target]
	i.RUnlock()

	if !ok {
		err = fmt.Errorf("%w: %s", ErrUnknownPeer, target.Short())
		return
	}

	// Send the RPC over
	respCh := make(chan RPCResponse, 1)
	select {
	case peer.consumerCh <- RPC{Command: args, RespChan: respCh}:
	case <-peer.shutdownCh:
		err = ErrTransportShutdown
		return
	case <-time.After(i.timeout):
		err = fmt.Errorf("command timed out")
		return
	}

	// Wait for a response
	select {
	case rpcResp = <-respCh:
		if rpcResp.Error != nil {
			err = rpcResp.Error
		}
	case <-time.After(i.timeout):
		err = fmt.Errorf("command timed out")
	}
	return
}

func (i *InmemTransport) emit(ev PeerEvent) {
	select {
	case i.eventCh <- ev:
	case <-i.shutdownCh:
	}
}

func (i *InmemTransport) isShutdown() bool {
	select {
	case <-i.shutdownCh:
		return true
	default:
		return false
	}
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.DisconnectAll()

	i.shutdownLock.Lock()
	defer i.shutdownLock.Unlock()

	if !i.shutdown {
		i.network.unregister(i)
		close(i.shutdownCh)
		i.shutdown = true
	}
	return nil
}
