package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"

	"github.com/mosaicnetworks/runstate/src/common"
	"github.com/mosaicnetworks/runstate/src/peers"
)

// FromPublicKey returns the uncompressed form of the public key.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(Curve(), pub.X, pub.Y)
}

// PublicKeyHex returns the hexadecimal reprentation of the uncompressed form of
// the public key
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return common.EncodeToString(FromPublicKey(pub))
}

// PeerID is the identity remote peers use for the owner of this key.
func PeerID(key *ecdsa.PrivateKey) peers.PeerID {
	return peers.PeerID(PublicKeyHex(&key.PublicKey))
}
