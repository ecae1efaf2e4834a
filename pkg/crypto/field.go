package crypto

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// Hash is a field element produced by H. It stands in for the Pedersen /
// STARK-friendly hash the production core uses; callers must treat it as an
// opaque black box and never branch on its internal representation.
type Hash [32]byte

// Zero is the zero-hash, used as the "consumed" / "empty leaf" sentinel
// throughout the tree and entity layers.
var Zero Hash

func (h Hash) IsZero() bool { return h == Zero }

func (h Hash) Big() *big.Int {
	return new(big.Int).SetBytes(h[:])
}

func HashFromBig(b *big.Int) Hash {
	var h Hash
	b.FillBytes(h[:])
	return h
}

// H hashes an ordered sequence of field elements with a MiMC sponge. This is
// the one content-addressing primitive every note/position/tab hash and
// every tree node hash is built from (spec §2 C1, §3 "cached hash" fields).
func H(elements ...*big.Int) Hash {
	hasher := mimc.NewMiMC()
	for _, e := range elements {
		var fe fr.Element
		fe.SetBigInt(e)
		b := fe.Bytes()
		hasher.Write(b[:])
	}
	sum := hasher.Sum(nil)
	var out Hash
	copy(out[:], sum)
	return out
}

// HashUint64s is a convenience wrapper for hashing a list of plain integers
// rather than big.Int field elements; the tree tests use it to build leaf
// hashes.
func HashUint64s(vals ...uint64) Hash {
	elems := make([]*big.Int, len(vals))
	for i, v := range vals {
		elems[i] = new(big.Int).SetUint64(v)
	}
	return H(elems...)
}
