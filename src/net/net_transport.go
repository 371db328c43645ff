package net

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/mosaicnetworks/runstate/src/peers"
	"github.com/mosaicnetworks/runstate/src/storage"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const (
	connHello uint8 = iota
	rpcSync
	rpcAnnounce
)

const (
	bufSize = 4096
)

// linkSuperseded is written on a presence link just before it is closed in
// favour of another link to the same peer. The receiving side holds the
// Disconnecting event for a grace period, during which the replacement link is
// expected to register.
const linkSuperseded uint8 = 1

var msgpackHandle = new(codec.MsgpackHandle)

/*
NetworkTransport provides a network based transport built on top of a
StreamLayer. Each RPC request is framed by sending a byte that indicates the
message type, followed by the msgpack encoded request. The response is an
error string followed by the response object.

Presence links use the same framing: a connHello byte and a Hello in each
direction, after which the connection stays open and silent until one side
goes away.
*/
type NetworkTransport struct {
	id     peers.PeerID
	logger *logrus.Entry

	connPool     map[string][]*netConn
	connPoolLock sync.Mutex
	maxPool      int

	links     map[peers.PeerID]*link
	linksLock sync.Mutex

	consumeCh chan RPC
	eventCh   chan PeerEvent

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	timeout time.Duration
}

// link is a live presence connection. dialer is the PeerID of the side that
// opened it; when both sides dial each other at once, the link dialed by the
// lower PeerID wins on both ends.
type link struct {
	peer   peers.PeerID
	addr   string
	dialer peers.PeerID
	conn   net.Conn
}

type netConn struct {
	target string
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	dec    *codec.Decoder
	enc    *codec.Encoder
}

func newNetConn(target string, conn net.Conn) *netConn {
	r := bufio.NewReaderSize(conn, bufSize)
	w := bufio.NewWriterSize(conn, bufSize)
	return &netConn{
		target: target,
		conn:   conn,
		r:      r,
		w:      w,
		dec:    codec.NewDecoder(r, msgpackHandle),
		enc:    codec.NewEncoder(w, msgpackHandle),
	}
}

// Release closes the underlying connection
func (n *netConn) Release() error {
	return n.conn.Close()
}

// NewNetworkTransport creates a new network transport with the given stream
// layer. The maxPool controls how many RPC connections we will pool per
// target. The timeout is used to apply I/O deadlines.
func NewNetworkTransport(
	id peers.PeerID,
	stream StreamLayer,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &NetworkTransport{
		id:         id,
		connPool:   make(map[string][]*netConn),
		links:      make(map[peers.PeerID]*link),
		consumeCh:  make(chan RPC),
		eventCh:    make(chan PeerEvent, 64),
		logger:     logger.WithField("prefix", "net"),
		maxPool:    maxPool,
		shutdownCh: make(chan struct{}),
		stream:     stream,
		timeout:    timeout,
	}
}

// Close is used to stop the network transport.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()

		n.linksLock.Lock()
		for _, l := range n.links {
			l.conn.Close()
		}
		n.linksLock.Unlock()

		n.connPoolLock.Lock()
		for _, conns := range n.connPool {
			for _, c := range conns {
				c.Release()
			}
		}
		n.connPool = make(map[string][]*netConn)
		n.connPoolLock.Unlock()

		n.shutdown = true
	}
	return nil
}

// Events implements the Transport interface.
func (n *NetworkTransport) Events() <-chan PeerEvent {
	return n.eventCh
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan RPC {
	return n.consumeCh
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	addr := n.stream.Addr()

	if addr != nil {
		return addr.String()
	}

	return ""
}

// AdvertiseAddr implements the Transport interface.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// Peers returns the PeerIDs with a live presence link.
func (n *NetworkTransport) Peers() []peers.PeerID {
	n.linksLock.Lock()
	defer n.linksLock.Unlock()

	ids := make([]peers.PeerID, 0, len(n.links))
	for id := range n.links {
		ids = append(ids, id)
	}
	return peers.SortIDs(ids)
}

// Connect implements the Transport interface.
func (n *NetworkTransport) Connect(addr string) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	conn, err := n.stream.Dial(addr, n.timeout)
	if err != nil {
		return err
	}

	nc := newNetConn(addr, conn)

	if n.timeout > 0 {
		conn.SetDeadline(time.Now().Add(n.timeout))
	}

	if err := sendRPC(nc, connHello, &Hello{FromID: n.id, Addr: n.AdvertiseAddr()}); err != nil {
		return err
	}

	var remote Hello
	if err := nc.dec.Decode(&remote); err != nil {
		nc.Release()
		return err
	}

	conn.SetDeadline(time.Time{})

	n.addLink(&link{
		peer:   remote.FromID,
		addr:   remote.Addr,
		dialer: n.id,
		conn:   conn,
	}, nc.r)

	return nil
}

// addLink registers a presence link and watches it until it closes.
func (n *NetworkTransport) addLink(l *link, r *bufio.Reader) {
	if l.peer == n.id {
		n.logger.Debug("Dropping link to self")
		l.conn.Close()
		return
	}

	var loser *link

	n.linksLock.Lock()
	existing, ok := n.links[l.peer]
	switch {
	case n.IsShutdown():
		n.linksLock.Unlock()
		l.conn.Close()
		return
	case !ok:
		n.links[l.peer] = l
	case l.dialer < existing.dialer:
		n.links[l.peer] = l
		loser = existing
	default:
		loser = l
	}
	n.linksLock.Unlock()

	if loser != nil {
		n.logger.WithFields(logrus.Fields{
			"peer":   l.peer.Short(),
			"dialer": loser.dialer.Short(),
		}).Debug("Superseding link")

		n.supersede(loser)

		if loser == l {
			return
		}
	}

	if !ok {
		n.logger.WithFields(logrus.Fields{
			"peer": l.peer.Short(),
			"addr": l.addr,
		}).Debug("Peer connected")

		n.emit(PeerEvent{Type: Connected, Peer: l.peer, Addr: l.addr})
	}

	go n.watchLink(l, r)
}

// supersede tells the remote end that the link lost a tie-break, then closes
// it.
func (n *NetworkTransport) supersede(l *link) {
	if n.timeout > 0 {
		l.conn.SetWriteDeadline(time.Now().Add(n.timeout))
	}
	l.conn.Write([]byte{linkSuperseded})
	l.conn.Close()
}

// linkGrace is how long a superseded link is kept registered while its
// replacement is being set up.
func (n *NetworkTransport) linkGrace() time.Duration {
	if n.timeout > 0 {
		return n.timeout
	}
	return time.Second
}

// watchLink blocks until the link fails, then reports the disconnection unless
// the link was replaced in the meantime.
func (n *NetworkTransport) watchLink(l *link, r *bufio.Reader) {
	superseded := false

	buf := make([]byte, 1)
	for {
		if _, err := r.Read(buf); err != nil {
			break
		}
		if buf[0] == linkSuperseded {
			superseded = true
		}
	}

	if n.IsShutdown() {
		return
	}

	if superseded {
		select {
		case <-time.After(n.linkGrace()):
		case <-n.shutdownCh:
			return
		}
	}

	n.linksLock.Lock()
	current, ok := n.links[l.peer]
	if ok && current == l {
		delete(n.links, l.peer)
	}
	n.linksLock.Unlock()

	if ok && current == l {
		n.logger.WithField("peer", l.peer.Short()).Debug("Peer disconnected")
		n.emit(PeerEvent{Type: Disconnecting, Peer: l.peer, Addr: l.addr})
	}
}

func (n *NetworkTransport) emit(ev PeerEvent) {
	select {
	case n.eventCh <- ev:
	case <-n.shutdownCh:
	}
}

func (n *NetworkTransport) addrOf(id peers.PeerID) (string, error) {
	n.linksLock.Lock()
	defer n.linksLock.Unlock()

	l, ok := n.links[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPeer, id.Short())
	}
	return l.addr, nil
}

// getPooledConn is used to grab a pooled connection.
func (n *NetworkTransport) getPooledConn(target string) *netConn {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	conns, ok := n.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}

	var conn *netConn
	num := len(conns)
	conn, conns[num-1] = conns[num-1], nil
	n.connPool[target] = conns[:num-1]
	return conn
}

// getConn is used to get a connection from the pool.
func (n *NetworkTransport) getConn(target string, timeout time.Duration) (*netConn, error) {
	// Check for a pooled conn
	if conn := n.getPooledConn(target); conn != nil {
		return conn, nil
	}

	// Dial a new connection
	conn, err := n.stream.Dial(target, timeout)
	if err != nil {
		return nil, err
	}

	return newNetConn(target, conn), nil
}

// returnConn returns a connection back to the pool.
func (n *NetworkTransport) returnConn(conn *netConn) {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	key := conn.target
	conns := n.connPool[key]

	if !n.IsShutdown() && len(conns) < n.maxPool {
		n.connPool[key] = append(conns, conn)
	} else {
		conn.Release()
	}
}

// Sync implements the Transport interface.
func (n *NetworkTransport) Sync(target peers.PeerID, args *SyncRequest, resp *SyncResponse) error {
	addr, err := n.addrOf(target)
	if err != nil {
		return err
	}
	return n.genericRPC(addr, rpcSync, n.timeout, args, resp)
}

// Broadcast implements the Transport interface.
func (n *NetworkTransport) Broadcast(refs []storage.Ref) error {
	var errs []error

	for _, id := range n.Peers() {
		addr, err := n.addrOf(id)
		if err != nil {
			// disconnected in the meantime
			continue
		}

		args := &AnnounceRequest{FromID: n.id, Refs: refs}
		var resp AnnounceResponse
		if err := n.genericRPC(addr, rpcAnnounce, n.timeout, args, &resp); err != nil {
			errs = append(errs, fmt.Errorf("announce to %s: %w", id.Short(), err))
		}
	}

	return errors.Join(errs...)
}

// genericRPC handles a simple request/response RPC.
func (n *NetworkTransport) genericRPC(target string, rpcType uint8, timeout time.Duration, args interface{}, resp interface{}) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	// Get a conn
	conn, err := n.getConn(target, timeout)
	if err != nil {
		return err
	}

	// Set a deadline
	if timeout > 0 {
		conn.conn.SetDeadline(time.Now().Add(timeout))
	}

	// Send the RPC
	if err = sendRPC(conn, rpcType, args); err != nil {
		return err
	}

	// Decode the response
	canReturn, err := decodeResponse(conn, resp)
	if canReturn {
		n.returnConn(conn)
	}

	return err
}

// sendRPC is used to encode and send the RPC.
func sendRPC(conn *netConn, rpcType uint8, args interface{}) error {
	// Write the request type
	if err := conn.w.WriteByte(rpcType); err != nil {
		conn.Release()
		return err
	}

	// Send the request
	if err := conn.enc.Encode(args); err != nil {
		conn.Release()
		return err
	}

	// Flush
	if err := conn.w.Flush(); err != nil {
		conn.Release()
		return err
	}
	return nil
}

// decodeResponse is used to decode an RPC response and reports whether
// the connection can be reused.
func decodeResponse(conn *netConn, resp interface{}) (bool, error) {
	// Decode the error if any
	var rpcError string
	if err := conn.dec.Decode(&rpcError); err != nil {
		conn.Release()
		return false, err
	}

	// Decode the response
	if err := conn.dec.Decode(resp); err != nil {
		conn.Release()
		return false, err
	}

	// Format an error if any
	if rpcError != "" {
		return true, errors.New(rpcError)
	}
	return true, nil
}

// Listen implements the Transport interface. It reports the listening address
// and handles incoming connections until the transport is closed.
func (n *NetworkTransport) Listen() {
	n.emit(PeerEvent{Type: Listening, Addr: n.AdvertiseAddr()})

	for {
		// Accept incoming connections
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		// Handle the connection in dedicated routine
		go n.handleConn(conn)
	}
}

// handleConn is used to handle an inbound connection for its lifespan.
func (n *NetworkTransport) handleConn(conn net.Conn) {
	nc := newNetConn(conn.RemoteAddr().String(), conn)

	first, err := nc.r.Peek(1)
	if err != nil {
		conn.Close()
		return
	}

	if first[0] == connHello {
		n.handleHello(nc)
		return
	}

	defer conn.Close()

	for {
		if err := n.handleCommand(nc); err != nil {
			if n.IsShutdown() {
				return
			}
			if err == ErrTransportShutdown {
				n.logger.WithField("error", err).Warn("Failed to decode incoming command")
			} else if err != io.EOF {
				n.logger.WithField("error", err).Error("Failed to decode incoming command")
			}
			return
		}
		if err := nc.w.Flush(); err != nil {
			n.logger.WithField("error", err).Error("Failed to flush response")
			return
		}
	}
}

// handleHello answers an inbound presence link.
func (n *NetworkTransport) handleHello(nc *netConn) {
	if n.timeout > 0 {
		nc.conn.SetDeadline(time.Now().Add(n.timeout))
	}

	if _, err := nc.r.ReadByte(); err != nil {
		nc.Release()
		return
	}

	var remote Hello
	if err := nc.dec.Decode(&remote); err != nil {
		n.logger.WithField("error", err).Error("Failed to decode hello")
		nc.Release()
		return
	}

	if err := nc.enc.Encode(&Hello{FromID: n.id, Addr: n.AdvertiseAddr()}); err != nil {
		nc.Release()
		return
	}
	if err := nc.w.Flush(); err != nil {
		nc.Release()
		return
	}

	nc.conn.SetDeadline(time.Time{})

	n.addLink(&link{
		peer:   remote.FromID,
		addr:   remote.Addr,
		dialer: remote.FromID,
		conn:   nc.conn,
	}, nc.r)
}

// handleCommand is used to decode and dispatch a single command.
func (n *NetworkTransport) handleCommand(nc *netConn) error {
	// Get the rpc type
	rpcType, err := nc.r.ReadByte()
	if err != nil {
		return err
	}

	// Create the RPC object
	respCh := make(chan RPCResponse, 1)
	rpc := RPC{
		RespChan: respCh,
	}

	// Decode the command
	switch rpcType {
	case rpcSync:
		var req SyncRequest
		if err := nc.dec.Decode(&req); err != nil {
			return err
		}
		rpc.Command = &req
	case rpcAnnounce:
		var req AnnounceRequest
		if err := nc.dec.Decode(&req); err != nil {
			return err
		}
		rpc.Command = &req
	default:
		return fmt.Errorf("unknown rpc type %d", rpcType)
	}

	// Dispatch the RPC
	select {
	case n.consumeCh <- rpc:
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	// Wait for response
	select {
	case resp := <-respCh:
		// Send the error first
		respErr := ""
		if resp.Error != nil {
			respErr = resp.Error.Error()
		}
		if err := nc.enc.Encode(respErr); err != nil {
			return err
		}

		// Send the response
		if err := nc.enc.Encode(resp.Response); err != nil {
			return err
		}
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	return nil
}
