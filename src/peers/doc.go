// Package peers defines the identity of a remote peer and the bootstrap list
// of peers a node dials when it starts.
//
// Peers are identified by their public keys. The PeerID is the uppercase
// hexadecimal form of the uncompressed secp256k1 public key, with a 0X
// prefix, so it is both opaque and comparable. A peer may also carry a
// moniker, which is a non-unique user-friendly name, and the network address
// where it can be reached.
//
// Upon starting up, a node looks for a peers.json file in its data directory.
// The file lists the peers that the node should attempt to connect to. A
// missing file is not an error: the node simply waits for inbound
// connections.
package peers
