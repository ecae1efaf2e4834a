package executor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperlicked/invisible-core/pkg/crypto"
	"github.com/hyperlicked/invisible-core/pkg/entities"
	"github.com/hyperlicked/invisible-core/pkg/state"
	"github.com/hyperlicked/invisible-core/pkg/witness"
)

// SpotLegInput is one side of a two-order spot swap (spec §4.3.3).
type SpotLegInput struct {
	Order     *entities.LimitOrder
	Signature []byte
	Spent     uint64
	FeeTaken  uint64
	Tab       *entities.OrderTab // required iff Order.IsTabOrder()
}

// SpotSwapInput is both sides of a crossing pair of spot limit orders.
type SpotSwapInput struct {
	A, B SpotLegInput
	Dust uint64
}

// LegResult is what one side of the swap produced.
type LegResult struct {
	SwapNote      *entities.Note
	PartialRefund *entities.Note
	Complete      bool
}

type SpotSwapResult struct {
	A, B LegResult
}

// SpotSwap executes two crossing limit orders against each other (spec
// §4.3.3). Each side is resolved independently against its own partial
// fill history, but they share one consistency check and one witness
// record since they are the two halves of a single trade.
func SpotSwap(m *state.Model, in SpotSwapInput) (*SpotSwapResult, *witness.Record, error) {
	if err := validateSpotSwap(in); err != nil {
		return nil, nil, err
	}

	receivedByA := in.B.Spent - in.A.FeeTaken
	receivedByB := in.A.Spent - in.B.FeeTaken

	resA, err := executeSpotLeg(m, in.Dust, in.A, receivedByA)
	if err != nil {
		return nil, nil, err
	}
	resB, err := executeSpotLeg(m, in.Dust, in.B, receivedByB)
	if err != nil {
		return nil, nil, err
	}

	rec := witness.NewRecord("spot_swap")
	rec.SetUint("order_id_a", in.A.Order.OrderID)
	rec.SetUint("order_id_b", in.B.Order.OrderID)
	rec.SetUint("spent_a", in.A.Spent)
	rec.SetUint("spent_b", in.B.Spent)
	rec.SetUint("fee_a", in.A.FeeTaken)
	rec.SetUint("fee_b", in.B.FeeTaken)
	if resA.SwapNote != nil {
		rec.SetHash("swap_note_a", resA.SwapNote.Hash())
	}
	if resB.SwapNote != nil {
		rec.SetHash("swap_note_b", resB.SwapNote.Hash())
	}
	if resA.PartialRefund != nil {
		rec.SetHash("new_pfr_note_a", resA.PartialRefund.Hash())
	}
	if resB.PartialRefund != nil {
		rec.SetHash("new_pfr_note_b", resB.PartialRefund.Hash())
	}

	return &SpotSwapResult{A: *resA, B: *resB}, rec, nil
}

func validateSpotSwap(in SpotSwapInput) error {
	a, b := in.A.Order, in.B.Order
	if a.TokenSpent != b.TokenReceived || b.TokenSpent != a.TokenReceived {
		return consistencyErr("order token pair mismatch")
	}
	if a.OrderID == b.OrderID {
		return consistencyErr("order ids must differ")
	}
	if in.A.Spent+in.Dust < in.A.Spent || in.B.Spent+in.Dust < in.B.Spent {
		return consistencyErr("overflow in spent amount")
	}
	// Price ratio sanity with 0.01% slack both ways (spec §4.3.3).
	lhs := new(big.Int).Mul(new(big.Int).SetUint64(in.A.Spent), new(big.Int).SetUint64(a.AmountReceived))
	lhs.Mul(lhs, big.NewInt(10_000))
	rhs := new(big.Int).Mul(new(big.Int).SetUint64(in.B.Spent), new(big.Int).SetUint64(a.AmountSpent))
	rhs.Mul(rhs, big.NewInt(10_001))
	if lhs.Cmp(rhs) > 0 {
		return consistencyErr("price ratio inconsistent (a side)")
	}
	lhs2 := new(big.Int).Mul(new(big.Int).SetUint64(in.B.Spent), new(big.Int).SetUint64(b.AmountReceived))
	lhs2.Mul(lhs2, big.NewInt(10_000))
	rhs2 := new(big.Int).Mul(new(big.Int).SetUint64(in.A.Spent), new(big.Int).SetUint64(b.AmountSpent))
	rhs2.Mul(rhs2, big.NewInt(10_001))
	if lhs2.Cmp(rhs2) > 0 {
		return consistencyErr("price ratio inconsistent (b side)")
	}
	if in.A.FeeTaken > a.FeeLimit || in.B.FeeTaken > b.FeeLimit {
		return validationErr("fee exceeds fee_limit")
	}
	if a.IsTabOrder() && b.IsTabOrder() && a.OrderTabIdx != nil && b.OrderTabIdx != nil {
		if in.A.Tab != nil && in.B.Tab != nil && in.A.Tab.Hash() == in.B.Tab.Hash() {
			return consistencyErr("both legs reference the same tab")
		}
	}
	if !a.IsTabOrder() && a.SpotNoteInfo != nil && !b.IsTabOrder() && b.SpotNoteInfo != nil {
		all := append(append([]entities.Note{}, a.SpotNoteInfo.NotesIn...), b.SpotNoteInfo.NotesIn...)
		if !entities.DistinctIndices(all) {
			return validationErr("notes_in indices must be globally unique across both orders")
		}
	}
	if err := verifyLegSignature(in.A); err != nil {
		return err
	}
	if err := verifyLegSignature(in.B); err != nil {
		return err
	}
	return nil
}

// verifyLegSignature checks a leg's signature against the owning key: the
// tab's pub key for a tab-backed order, or notes_in[0]'s address otherwise
// (spec §4.2.1 "signature verifies").
func verifyLegSignature(leg SpotLegInput) error {
	var signer common.Address
	switch {
	case leg.Order.IsTabOrder():
		if leg.Tab == nil {
			return validationErr("tab-backed order missing its order tab")
		}
		signer = leg.Tab.Header.PubKey
	case leg.Order.SpotNoteInfo != nil && len(leg.Order.SpotNoteInfo.NotesIn) > 0:
		signer = leg.Order.SpotNoteInfo.NotesIn[0].Address
	default:
		return validationErr("order missing spot_note_info or order_tab")
	}
	msg := leg.Order.Hash()
	if !crypto.VerifySignature(signer, msg[:], leg.Signature) {
		return validationErr("invalid order signature")
	}
	return nil
}

func executeSpotLeg(m *state.Model, dust uint64, in SpotLegInput, receivedAmount uint64) (*LegResult, error) {
	if in.Order.IsTabOrder() {
		return executeTabLeg(m, in, receivedAmount)
	}
	return executeNoteLeg(m, dust, in, receivedAmount)
}

func executeNoteLeg(m *state.Model, dust uint64, in SpotLegInput, receivedAmount uint64) (*LegResult, error) {
	order := in.Order
	sni := order.SpotNoteInfo
	if sni == nil {
		return nil, validationErr("note-backed order missing spot_note_info")
	}

	prev, hadPrev := m.PartialFills.Get(order.OrderID)
	if hadPrev && prev.Status != state.FillOpen {
		return nil, consistencyErr("order already terminally resolved")
	}
	filledSoFar := prev.AmountFilled
	if filledSoFar+in.Spent > order.AmountSpent+dust {
		return nil, consistencyErr("fill exceeds remaining amount_spent")
	}

	if !hadPrev {
		if entities.SumAmounts(sni.NotesIn) < order.AmountSpent {
			return nil, validationErr("notes_in sum below amount_spent")
		}
		if !entities.DistinctIndices(sni.NotesIn) {
			return nil, validationErr("notes_in indices not pairwise distinct")
		}
		for _, n := range sni.NotesIn {
			if n.Token != order.TokenSpent {
				return nil, validationErr("notes_in token mismatch")
			}
			if m.Notes.GetLeaf(n.Index) != n.Hash() {
				return nil, validationErr("notes_in entry not live in tree")
			}
		}
		if sni.RefundNote != nil {
			refund := *sni.RefundNote
			refund.Index = sni.NotesIn[0].Index
			m.PutNote(refund)
		} else {
			m.ConsumeNote(sni.NotesIn[0].Index)
		}
		for _, n := range sni.NotesIn[1:] {
			m.ConsumeNote(n.Index)
		}
	} else {
		if prev.RefundNote == nil {
			return nil, consistencyErr("no partial-refund note to consume on a later fill")
		}
		m.ConsumeNote(prev.RefundNote.Index)
	}

	swap := entities.Note{Token: order.TokenReceived, Amount: receivedAmount, Address: sni.DestReceivedAddress, Blinding: sni.DestReceivedBlinding}
	swap.Index = m.Notes.Allocate(swap.Hash())
	m.MarkUpdated("notes", swap.Index, swap.Hash())

	newFilled := filledSoFar + in.Spent
	result := &LegResult{SwapNote: &swap}

	if newFilled+dust < order.AmountSpent {
		remaining := order.AmountSpent - newFilled
		pr := entities.Note{Token: order.TokenSpent, Amount: remaining, Address: sni.DestReceivedAddress, Blinding: sni.DestReceivedBlinding}
		switch {
		case hadPrev && prev.RefundNote != nil:
			pr.Index = prev.RefundNote.Index
			m.PutNote(pr)
		case len(sni.NotesIn) >= 3:
			pr.Index = sni.NotesIn[2].Index
			m.PutNote(pr)
		default:
			pr.Index = m.Notes.Allocate(pr.Hash())
			m.MarkUpdated("notes", pr.Index, pr.Hash())
		}
		result.PartialRefund = &pr
		m.PartialFills.Publish(order.OrderID, state.PartialFillEntry{Status: state.FillOpen, RefundNote: result.PartialRefund, AmountFilled: newFilled})
	} else {
		result.Complete = true
		m.PartialFills.Publish(order.OrderID, state.PartialFillEntry{Status: state.FillComplete, AmountFilled: newFilled})
	}
	return result, nil
}

func executeTabLeg(m *state.Model, in SpotLegInput, receivedAmount uint64) (*LegResult, error) {
	order := in.Order
	tab := in.Tab
	if tab == nil {
		return nil, validationErr("tab-backed order missing its order tab")
	}
	if m.OrderTabs.GetLeaf(tab.TabIdx) != tab.Hash() {
		return nil, validationErr("order tab not live in tree")
	}

	updated := *tab
	switch order.TokenSpent {
	case tab.Header.BaseToken:
		if updated.BaseAmount < in.Spent {
			return nil, consistencyErr("tab base balance insufficient")
		}
		updated.BaseAmount -= in.Spent
		updated.QuoteAmount += receivedAmount
	case tab.Header.QuoteToken:
		if updated.QuoteAmount < in.Spent {
			return nil, consistencyErr("tab quote balance insufficient")
		}
		updated.QuoteAmount -= in.Spent
		updated.BaseAmount += receivedAmount
	default:
		return nil, validationErr("order token does not belong to the tab's pair")
	}

	m.PutOrderTab(updated)
	return &LegResult{Complete: true}, nil
}
