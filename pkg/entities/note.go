// Package entities holds the value types the matching engine and executors
// operate on: notes, positions, order tabs, and the two order kinds (spot
// limit orders and perpetual orders) that wrap them.
package entities

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperlicked/invisible-core/pkg/crypto"
)

// Note is a UTXO-style value token living at a tree index. It is live iff
// the notes tree's leaf at Index equals Hash(); it is destroyed by writing
// the zero hash at that index (spec §3 "Note").
type Note struct {
	Index    uint64
	Address  common.Address
	Token    uint32
	Amount   uint64
	Blinding *big.Int
}

// Hash computes H(address.x, token, amount, blinding). The address is
// folded into the hash via its big-endian integer value, standing in for
// the production core's EC point x-coordinate.
func (n Note) Hash() crypto.Hash {
	if n.Amount == 0 {
		return crypto.Zero
	}
	addrInt := new(big.Int).SetBytes(n.Address.Bytes())
	blinding := n.Blinding
	if blinding == nil {
		blinding = new(big.Int)
	}
	return crypto.H(
		addrInt,
		new(big.Int).SetUint64(uint64(n.Token)),
		new(big.Int).SetUint64(n.Amount),
		blinding,
	)
}

// IsDust reports whether amount falls below the per-token dust threshold,
// at which point it is treated as non-existent for accounting (spec §3).
func IsDust(amount uint64, dust uint64) bool {
	return amount < dust
}

// Live reports whether the note's cached hash matches what is currently
// written in the tree at its index — the sole definition of "exists".
func (n Note) Live(treeLeaf crypto.Hash) bool {
	return !n.Hash().IsZero() && n.Hash() == treeLeaf
}

// SumAmounts totals a set of notes; used throughout validation to check
// Σ notes_in[i].amount against a required spend.
func SumAmounts(notes []Note) uint64 {
	var sum uint64
	for _, n := range notes {
		sum += n.Amount
	}
	return sum
}

// SumAddresses returns the EC points (addresses, standing in for public
// keys) of a set of notes for signature binding (spec §3 "Signature
// binding": "for notes: sum of notes_in[i].address").
func SumAddresses(notes []Note) []common.Address {
	addrs := make([]common.Address, len(notes))
	for i, n := range notes {
		addrs[i] = n.Address
	}
	return addrs
}

// DistinctIndices reports whether all notes reference pairwise distinct
// tree indices (spec §4.2.1 "notes_in[i].index pairwise distinct").
func DistinctIndices(notes []Note) bool {
	seen := make(map[uint64]struct{}, len(notes))
	for _, n := range notes {
		if _, ok := seen[n.Index]; ok {
			return false
		}
		seen[n.Index] = struct{}{}
	}
	return true
}
