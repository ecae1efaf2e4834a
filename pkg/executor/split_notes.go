package executor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperlicked/invisible-core/pkg/crypto"
	"github.com/hyperlicked/invisible-core/pkg/entities"
	"github.com/hyperlicked/invisible-core/pkg/state"
	"github.com/hyperlicked/invisible-core/pkg/witness"
)

// SplitNotesInput consumes notes_in and mints notes_out of the caller's
// choosing, preserving the total amount — a pure UTXO re-denomination with
// no effect on any other part of state (witness type "note_split").
type SplitNotesInput struct {
	NotesIn   []entities.Note
	NotesOut  []entities.Note // unfilled Index; assigned here
	StarkKey  common.Address
	Signature []byte
}

type SplitNotesResult struct {
	Indices []uint64
}

// SplitNotes re-denominates a set of live notes into a new set of the same
// total value, signed by the owning stark key.
func SplitNotes(m *state.Model, in SplitNotesInput) (*SplitNotesResult, *witness.Record, error) {
	if len(in.NotesIn) == 0 || len(in.NotesOut) == 0 {
		return nil, nil, validationErr("split requires at least one note in and one note out")
	}
	if !entities.DistinctIndices(in.NotesIn) {
		return nil, nil, validationErr("notes_in indices must be pairwise distinct")
	}
	token := in.NotesIn[0].Token
	for _, n := range in.NotesIn {
		if n.Token != token {
			return nil, nil, validationErr("notes_in must share one token")
		}
		if m.Notes.GetLeaf(n.Index) != n.Hash() {
			return nil, nil, validationErr("notes_in entry not live in tree")
		}
	}
	for _, n := range in.NotesOut {
		if n.Token != token {
			return nil, nil, validationErr("notes_out must match notes_in's token")
		}
	}
	if entities.SumAmounts(in.NotesIn) != entities.SumAmounts(in.NotesOut) {
		return nil, nil, consistencyErr("notes_out total does not match notes_in total")
	}

	msg := SplitNotesSigningHash(in.NotesIn, in.NotesOut)
	if !crypto.VerifySignature(in.StarkKey, msg[:], in.Signature) {
		return nil, nil, validationErr("invalid split signature")
	}

	indices := make([]uint64, len(in.NotesOut))
	for i := range in.NotesOut {
		if i < len(in.NotesIn) {
			in.NotesOut[i].Index = in.NotesIn[i].Index
			m.PutNote(in.NotesOut[i])
		} else {
			idx := m.Notes.Allocate(in.NotesOut[i].Hash())
			in.NotesOut[i].Index = idx
			m.MarkUpdated("notes", idx, in.NotesOut[i].Hash())
		}
		indices[i] = in.NotesOut[i].Index
	}
	for i := len(in.NotesOut); i < len(in.NotesIn); i++ {
		m.ConsumeNote(in.NotesIn[i].Index)
	}

	rec := witness.NewRecord("note_split")
	rec.SetUint("token", uint64(token))
	rec.SetIndices("notes_out_indices", indices)
	for i, n := range in.NotesOut {
		rec.SetHash(noteKey(i, "hash"), n.Hash())
	}

	return &SplitNotesResult{Indices: indices}, rec, nil
}

// SplitNotesSigningHash binds the sum of notes_in's hashes to the sum of
// notes_out's hashes, so a split can't be replayed against a different
// output set.
func SplitNotesSigningHash(notesIn, notesOut []entities.Note) crypto.Hash {
	inSum := new(big.Int)
	for _, n := range notesIn {
		inSum.Add(inSum, n.Hash().Big())
	}
	outSum := new(big.Int)
	for _, n := range notesOut {
		outSum.Add(outSum, n.Hash().Big())
	}
	return crypto.H(inSum, outSum)
}
