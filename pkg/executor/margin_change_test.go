package executor

import (
	"testing"

	"github.com/hyperlicked/invisible-core/pkg/crypto"
	"github.com/hyperlicked/invisible-core/pkg/entities"
)

func TestMarginChangeRemoveRejectsUnderMargin(t *testing.T) {
	m := newTestModel()
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pos := entities.Position{SyntheticToken: 9, CollateralToken: 5, PositionSize: 10, Side: entities.Long, Margin: 1_000, EntryPrice: 1, PositionAddress: signer.Address()}
	pos.Index = m.Positions.Allocate(pos.Hash())

	closeFields := &entities.CloseOrderFields{}
	msg := MarginRemoveSigningHash(900, closeFields, pos)
	sig, err := signer.Sign(msg[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, _, err = MarginChange(m, MarginChangeInput{
		Position: &pos, Change: -900, CloseFields: closeFields, MinMargin: 500,
		StarkKey: signer.Address(), Signature: sig,
	})
	if err == nil {
		t.Fatalf("expected removal leaving only 100 margin to breach the 500 minimum")
	}
}

func TestMarginChangeRemoveEmitsReturnNote(t *testing.T) {
	m := newTestModel()
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pos := entities.Position{SyntheticToken: 9, CollateralToken: 5, PositionSize: 10, Side: entities.Long, Margin: 1_000, EntryPrice: 1, PositionAddress: signer.Address()}
	pos.Index = m.Positions.Allocate(pos.Hash())

	closeFields := &entities.CloseOrderFields{}
	msg := MarginRemoveSigningHash(200, closeFields, pos)
	sig, err := signer.Sign(msg[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	res, rec, err := MarginChange(m, MarginChangeInput{
		Position: &pos, Change: -200, CloseFields: closeFields, MinMargin: 100,
		StarkKey: signer.Address(), Signature: sig,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReturnNote == nil || res.ReturnNote.Amount != 200 {
		t.Fatalf("expected a 200-amount return note, got %+v", res.ReturnNote)
	}
	if res.Position.Margin != 800 {
		t.Fatalf("expected margin reduced to 800, got %d", res.Position.Margin)
	}
	if rec.TransactionType != "margin_change" {
		t.Fatalf("expected margin_change record, got %s", rec.TransactionType)
	}
}

func TestMarginChangeRemoveRejectsBadSignature(t *testing.T) {
	m := newTestModel()
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pos := entities.Position{SyntheticToken: 9, CollateralToken: 5, PositionSize: 10, Side: entities.Long, Margin: 1_000, EntryPrice: 1, PositionAddress: signer.Address()}
	pos.Index = m.Positions.Allocate(pos.Hash())

	closeFields := &entities.CloseOrderFields{}
	msg := MarginRemoveSigningHash(200, closeFields, pos)
	sig, err := other.Sign(msg[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, _, err = MarginChange(m, MarginChangeInput{
		Position: &pos, Change: -200, CloseFields: closeFields, MinMargin: 100,
		StarkKey: signer.Address(), Signature: sig,
	})
	if err == nil {
		t.Fatalf("expected signature from an unrelated key to be rejected")
	}
}
