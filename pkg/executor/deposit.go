package executor

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperlicked/invisible-core/pkg/crypto"
	"github.com/hyperlicked/invisible-core/pkg/entities"
	"github.com/hyperlicked/invisible-core/pkg/state"
	"github.com/hyperlicked/invisible-core/pkg/witness"
)

// DepositInput is the unsigned request body for a deposit (spec §4.3.1).
type DepositInput struct {
	DepositID uint64
	Token     uint32
	Amount    uint64
	StarkKey  common.Address
	Notes     []entities.Note // unfilled Index; assigned here
	Signature []byte
}

// DepositResult reports the tree indices the deposit's notes landed at.
type DepositResult struct {
	Indices []uint64
}

// Deposit commits newly-minted notes into the notes tree (spec §4.3.1).
// Indices are assigned sequentially, one Allocate call per note — not
// concurrently, since a deposit's notes must land at deterministic,
// reproducible indices for the witness log.
func Deposit(m *state.Model, in DepositInput) (*DepositResult, *witness.Record, error) {
	var sum uint64
	for _, n := range in.Notes {
		if n.Token != in.Token {
			return nil, nil, validationErr("note token does not match deposit token")
		}
		sum += n.Amount
	}
	if sum != in.Amount {
		return nil, nil, consistencyErr("sum of note amounts does not equal deposit amount")
	}

	msg := DepositSigningHash(in.DepositID, in.Token, in.Amount, in.Notes)
	if !crypto.VerifySignature(in.StarkKey, msg[:], in.Signature) {
		return nil, nil, validationErr("invalid deposit signature")
	}

	indices := make([]uint64, len(in.Notes))
	for i := range in.Notes {
		idx := m.Notes.Allocate(in.Notes[i].Hash())
		in.Notes[i].Index = idx
		indices[i] = idx
		m.MarkUpdated("notes", idx, in.Notes[i].Hash())
	}

	rec := witness.NewRecord("deposit")
	rec.SetUint("deposit_id", in.DepositID)
	rec.SetUint("token", uint64(in.Token))
	rec.SetUint("amount", in.Amount)
	rec.SetIndices("zero_idxs", indices)
	for i, n := range in.Notes {
		rec.SetHash(noteKey(i, "hash"), n.Hash())
		rec.SetUint(noteKey(i, "index"), n.Index)
	}

	return &DepositResult{Indices: indices}, rec, nil
}

func noteKey(i int, field string) string {
	return "note_" + strconv.Itoa(i) + "_" + field
}

// DepositSigningHash is the message a deposit's stark key must sign: the
// deposit id, token and amount, bound to the sum of its notes' hashes
// (spec §4.3.1 "signature binding").
func DepositSigningHash(depositID uint64, token uint32, amount uint64, notes []entities.Note) crypto.Hash {
	hashSum := new(big.Int)
	for _, n := range notes {
		hashSum.Add(hashSum, n.Hash().Big())
	}
	return crypto.H(
		new(big.Int).SetUint64(depositID),
		new(big.Int).SetUint64(uint64(token)),
		new(big.Int).SetUint64(amount),
		hashSum,
	)
}
