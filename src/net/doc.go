// Package net implements the transports a node uses to talk to remote peers.
//
// A Transport does two jobs. It reports peer presence as a stream of
// PeerEvents (Listening, Connected, Disconnecting), which the node feeds to
// its run-state machine, and it carries two RPCs: Sync, which fetches a
// remote peer's refs, and Announce, which pushes updated refs to every
// connected peer. Incoming RPCs are delivered on the Consumer channel.
//
// There are two implementations:
//
// - Inmem: in-process links, used for testing and single-process demos
//
// - TCP: a NetworkTransport over a TCPStreamLayer
//
// Every TCP connection opens with a one-byte type. A hello connection is a
// long-lived presence link: both sides exchange a Hello carrying their PeerID
// and advertised address, and the link's closure yields Disconnecting. Any
// other type starts a request/response RPC connection, pooled per target.
// Messages are msgpack-encoded.
package net
