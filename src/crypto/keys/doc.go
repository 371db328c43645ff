// Package keys implements the key-pair that gives a node its identity.
//
// Every node owns a secp256k1 key-pair. The public key, in uncompressed
// hexadecimal form, is the PeerID under which remote peers know the node. The
// private key never leaves the data directory.
package keys
