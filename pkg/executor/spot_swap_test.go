package executor

import (
	"math/big"
	"testing"

	"github.com/hyperlicked/invisible-core/pkg/crypto"
	"github.com/hyperlicked/invisible-core/pkg/entities"
	"github.com/hyperlicked/invisible-core/pkg/state"
)

func newTestModel() *state.Model {
	return state.NewModel(8, 8, 8)
}

func TestSpotSwapFirstFillMintsSwapNotesBothSides(t *testing.T) {
	m := newTestModel()
	signerA, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signerB, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	noteA := entities.Note{Address: signerA.Address(), Token: 1, Amount: 100, Blinding: zero()}
	noteA.Index = m.Notes.Allocate(noteA.Hash())
	noteB := entities.Note{Address: signerB.Address(), Token: 2, Amount: 100, Blinding: zero()}
	noteB.Index = m.Notes.Allocate(noteB.Hash())

	orderA := &entities.LimitOrder{OrderID: 1, TokenSpent: 1, TokenReceived: 2, AmountSpent: 100, AmountReceived: 100, FeeLimit: 10,
		SpotNoteInfo: &entities.SpotNoteInfo{NotesIn: []entities.Note{noteA}}}
	orderB := &entities.LimitOrder{OrderID: 2, TokenSpent: 2, TokenReceived: 1, AmountSpent: 100, AmountReceived: 100, FeeLimit: 10,
		SpotNoteInfo: &entities.SpotNoteInfo{NotesIn: []entities.Note{noteB}}}

	hashA := orderA.Hash()
	sigA, err := signerA.Sign(hashA[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	hashB := orderB.Hash()
	sigB, err := signerB.Sign(hashB[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	res, rec, err := SpotSwap(m, SpotSwapInput{
		A:    SpotLegInput{Order: orderA, Signature: sigA, Spent: 100, FeeTaken: 1},
		B:    SpotLegInput{Order: orderB, Signature: sigB, Spent: 100, FeeTaken: 1},
		Dust: 0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.A.SwapNote.Amount != 99 || res.B.SwapNote.Amount != 99 {
		t.Fatalf("expected swap notes net of fee, got %+v / %+v", res.A.SwapNote, res.B.SwapNote)
	}
	if !res.A.Complete || !res.B.Complete {
		t.Fatalf("expected both legs complete on a full fill")
	}
	if rec.TransactionType != "spot_swap" {
		t.Fatalf("expected spot_swap record, got %s", rec.TransactionType)
	}
}

func TestSpotSwapRejectsPriceRatioOutsideSlippage(t *testing.T) {
	m := newTestModel()
	noteA := entities.Note{Token: 1, Amount: 100, Blinding: zero()}
	noteA.Index = m.Notes.Allocate(noteA.Hash())
	noteB := entities.Note{Token: 2, Amount: 50, Blinding: zero()}
	noteB.Index = m.Notes.Allocate(noteB.Hash())

	orderA := &entities.LimitOrder{OrderID: 1, TokenSpent: 1, TokenReceived: 2, AmountSpent: 100, AmountReceived: 100,
		SpotNoteInfo: &entities.SpotNoteInfo{NotesIn: []entities.Note{noteA}}}
	orderB := &entities.LimitOrder{OrderID: 2, TokenSpent: 2, TokenReceived: 1, AmountSpent: 50, AmountReceived: 50,
		SpotNoteInfo: &entities.SpotNoteInfo{NotesIn: []entities.Note{noteB}}}

	_, _, err := SpotSwap(m, SpotSwapInput{
		A: SpotLegInput{Order: orderA, Spent: 100},
		B: SpotLegInput{Order: orderB, Spent: 50},
	})
	if err == nil {
		t.Fatalf("expected price ratio mismatch to be rejected")
	}
}

func zero() *big.Int { return big.NewInt(0) }
