package crypto

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SumPoints adds a set of secp256k1 public keys on the curve, giving the
// combined key of several authority leaves (e.g. the owners of a multi-note
// spend). The executors do not call it: their signature checks compare the
// recovered signer against a single address.
func SumPoints(pubs ...*ecdsa.PublicKey) *ecdsa.PublicKey {
	curve := crypto.S256()
	if len(pubs) == 0 {
		return nil
	}
	x, y := pubs[0].X, pubs[0].Y
	for _, p := range pubs[1:] {
		x, y = curve.Add(x, y, p.X, p.Y)
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}
}

// AddressOf derives the 20-byte Ethereum-style address bound to a public
// key. Notes, positions and order tabs are all keyed by such an address.
func AddressOf(pub *ecdsa.PublicKey) common.Address {
	return crypto.PubkeyToAddress(*pub)
}
