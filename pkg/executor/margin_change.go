package executor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperlicked/invisible-core/pkg/crypto"
	"github.com/hyperlicked/invisible-core/pkg/entities"
	"github.com/hyperlicked/invisible-core/pkg/state"
	"github.com/hyperlicked/invisible-core/pkg/witness"
)

// MarginChangeInput adds or removes margin from an existing position; the
// sign of Change selects the mode (spec §4.3.6).
type MarginChangeInput struct {
	Position    *entities.Position
	Change      int64 // >=0 add, <0 remove
	NotesIn     []entities.Note // add mode
	RefundNote  *entities.Note  // add mode
	CloseFields *entities.CloseOrderFields // remove mode
	StarkKey    common.Address
	Signature   []byte
	MinMargin   uint64 // remove-mode under-margin guard
}

type MarginChangeResult struct {
	Position   *entities.Position
	ReturnNote *entities.Note
}

// MarginChange implements both modes of spec §4.3.6's margin change,
// including the asymmetric signature hash between them.
func MarginChange(m *state.Model, in MarginChangeInput) (*MarginChangeResult, *witness.Record, error) {
	pos := in.Position
	if pos == nil {
		return nil, nil, validationErr("margin change missing existing position")
	}
	if m.Positions.GetLeaf(pos.Index) != pos.Hash() {
		return nil, nil, validationErr("existing_position not live in tree")
	}

	updated := *pos
	result := &MarginChangeResult{}

	if in.Change >= 0 {
		amt := uint64(in.Change)
		if entities.SumAmounts(in.NotesIn) < amt {
			return nil, nil, validationErr("notes_in sum below margin_change")
		}
		if !entities.DistinctIndices(in.NotesIn) {
			return nil, nil, validationErr("notes_in indices not pairwise distinct")
		}
		for _, n := range in.NotesIn {
			if n.Token != pos.CollateralToken {
				return nil, nil, validationErr("notes_in token mismatch")
			}
			if m.Notes.GetLeaf(n.Index) != n.Hash() {
				return nil, nil, validationErr("notes_in entry not live in tree")
			}
		}
		msg := MarginAddSigningHash(in.NotesIn)
		if !crypto.VerifySignature(in.StarkKey, msg[:], in.Signature) {
			return nil, nil, validationErr("invalid add-margin signature")
		}

		if len(in.NotesIn) > 0 {
			if in.RefundNote != nil {
				refund := *in.RefundNote
				refund.Index = in.NotesIn[0].Index
				m.PutNote(refund)
			} else {
				m.ConsumeNote(in.NotesIn[0].Index)
			}
			for _, n := range in.NotesIn[1:] {
				m.ConsumeNote(n.Index)
			}
		}
		updated.Margin += amt
	} else {
		amt := uint64(-in.Change)
		if amt >= updated.Margin {
			return nil, nil, consistencyErr("margin removal would zero out margin")
		}
		if in.CloseFields == nil {
			return nil, nil, validationErr("remove mode requires close_order_fields")
		}

		msg := MarginRemoveSigningHash(amt, in.CloseFields, *pos)
		if !crypto.VerifySignature(in.StarkKey, msg[:], in.Signature) {
			return nil, nil, validationErr("invalid remove-margin signature")
		}

		updated.Margin -= amt
		if updated.Margin < in.MinMargin {
			return nil, nil, consistencyErr("resulting position is under-margined")
		}

		n := entities.Note{Token: pos.CollateralToken, Amount: amt, Address: in.CloseFields.DestReceivedAddress, Blinding: in.CloseFields.DestReceivedBlinding}
		n.Index = m.Notes.Allocate(n.Hash())
		m.MarkUpdated("notes", n.Index, n.Hash())
		result.ReturnNote = &n
	}

	updated.LiquidationPrice = liquidationPrice(updated.Side, updated.EntryPrice, updated.Margin, updated.PositionSize)
	m.PutPosition(updated)
	result.Position = &updated

	rec := witness.NewRecord("margin_change")
	rec.SetUint("position_index", updated.Index)
	if in.Change >= 0 {
		rec.SetUint("margin_added", uint64(in.Change))
	} else {
		rec.SetUint("margin_removed", uint64(-in.Change))
	}
	rec.SetHash("position_hash", updated.Hash())
	return result, rec, nil
}

// MarginAddSigningHash is the message an add-margin's stark key must sign:
// the sum of notes_in's hashes (spec §4.3.6 "signature binding", add mode).
func MarginAddSigningHash(notesIn []entities.Note) crypto.Hash {
	hashSum := new(big.Int)
	for _, n := range notesIn {
		hashSum.Add(hashSum, n.Hash().Big())
	}
	return crypto.H(hashSum)
}

// MarginRemoveSigningHash is the message a remove-margin's stark key must
// sign: the amount removed, bound to close_order_fields and the position
// being modified (spec §4.3.6 "signature binding", remove mode).
func MarginRemoveSigningHash(amount uint64, closeFields *entities.CloseOrderFields, position entities.Position) crypto.Hash {
	var closeHash crypto.Hash
	if closeFields != nil {
		closeHash = crypto.H(
			new(big.Int).SetBytes(closeFields.DestReceivedAddress.Bytes()),
			orZero(closeFields.DestReceivedBlinding),
		)
	}
	return crypto.H(new(big.Int).SetUint64(amount), closeHash.Big(), position.Hash().Big())
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
