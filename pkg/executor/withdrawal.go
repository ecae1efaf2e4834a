package executor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperlicked/invisible-core/pkg/crypto"
	"github.com/hyperlicked/invisible-core/pkg/entities"
	"github.com/hyperlicked/invisible-core/pkg/state"
	"github.com/hyperlicked/invisible-core/pkg/witness"
)

// WithdrawalInput is the signed request body for a withdrawal (spec
// §4.3.2).
type WithdrawalInput struct {
	ChainID    uint64
	Token      uint32
	Amount     uint64
	NotesIn    []entities.Note
	RefundNote *entities.Note
	StarkKey   common.Address
	Signature  []byte
}

type WithdrawalResult struct {
	RefundIndex *uint64
}

// Withdrawal consumes notes_in, optionally leaving a refund note at the
// first consumed index, and zeroes the rest (spec §4.3.2).
func Withdrawal(m *state.Model, in WithdrawalInput) (*WithdrawalResult, *witness.Record, error) {
	if len(in.NotesIn) == 0 {
		return nil, nil, validationErr("withdrawal requires at least one note")
	}
	var sum uint64
	for _, n := range in.NotesIn {
		if n.Token != in.Token {
			return nil, nil, validationErr("note token does not match withdrawal token")
		}
		sum += n.Amount
	}
	want := in.Amount
	if in.RefundNote != nil {
		want += in.RefundNote.Amount
	}
	if sum != want {
		return nil, nil, consistencyErr("sum of notes_in does not equal amount plus refund")
	}
	if !entities.DistinctIndices(in.NotesIn) {
		return nil, nil, validationErr("notes_in indices must be pairwise distinct")
	}
	for _, n := range in.NotesIn {
		if m.Notes.GetLeaf(n.Index) != n.Hash() {
			return nil, nil, validationErr("notes_in entry does not match the tree")
		}
	}

	msg := WithdrawalSigningHash(in.ChainID, in.Token, in.Amount, in.NotesIn)
	if !crypto.VerifySignature(in.StarkKey, msg[:], in.Signature) {
		return nil, nil, validationErr("invalid withdrawal signature")
	}

	result := &WithdrawalResult{}
	if in.RefundNote != nil {
		refund := *in.RefundNote
		refund.Index = in.NotesIn[0].Index
		m.PutNote(refund)
		result.RefundIndex = &refund.Index
	} else {
		m.ConsumeNote(in.NotesIn[0].Index)
	}
	for _, n := range in.NotesIn[1:] {
		m.ConsumeNote(n.Index)
	}

	rec := witness.NewRecord("withdrawal")
	rec.SetUint("chain_id", in.ChainID)
	rec.SetUint("token", uint64(in.Token))
	rec.SetUint("amount", in.Amount)
	rec.SetUint("note_0_index", in.NotesIn[0].Index)
	if in.RefundNote != nil {
		rec.SetHash("refund_note_hash", in.RefundNote.Hash())
	}

	return result, rec, nil
}

// WithdrawalSigningHash is the message a withdrawal's stark key must sign
// (spec §4.3.2 "signature binding").
func WithdrawalSigningHash(chainID uint64, token uint32, amount uint64, notesIn []entities.Note) crypto.Hash {
	hashSum := new(big.Int)
	for _, n := range notesIn {
		hashSum.Add(hashSum, n.Hash().Big())
	}
	return crypto.H(
		new(big.Int).SetUint64(chainID),
		new(big.Int).SetUint64(uint64(token)),
		new(big.Int).SetUint64(amount),
		hashSum,
	)
}
