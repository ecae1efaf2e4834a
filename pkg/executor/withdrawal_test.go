package executor

import (
	"testing"

	"github.com/hyperlicked/invisible-core/pkg/crypto"
	"github.com/hyperlicked/invisible-core/pkg/entities"
)

func TestWithdrawalConsumesNotesAndLeavesRefund(t *testing.T) {
	m := newTestModel()
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	noteA := entities.Note{Address: signer.Address(), Token: 1, Amount: 70, Blinding: zero()}
	noteA.Index = m.Notes.Allocate(noteA.Hash())
	noteB := entities.Note{Address: signer.Address(), Token: 1, Amount: 30, Blinding: zero()}
	noteB.Index = m.Notes.Allocate(noteB.Hash())

	notesIn := []entities.Note{noteA, noteB}
	refund := &entities.Note{Address: signer.Address(), Token: 1, Amount: 20, Blinding: zero()}

	msg := WithdrawalSigningHash(1, 1, 80, notesIn)
	sig, err := signer.Sign(msg[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	res, rec, err := Withdrawal(m, WithdrawalInput{
		ChainID: 1, Token: 1, Amount: 80, NotesIn: notesIn, RefundNote: refund,
		StarkKey: signer.Address(), Signature: sig,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RefundIndex == nil || *res.RefundIndex != noteA.Index {
		t.Fatalf("expected refund to land at note A's index, got %+v", res.RefundIndex)
	}
	if m.Notes.GetLeaf(noteB.Index) != crypto.Zero {
		t.Fatalf("expected note B to be consumed")
	}
	if rec.TransactionType != "withdrawal" {
		t.Fatalf("expected withdrawal record, got %s", rec.TransactionType)
	}
}

func TestWithdrawalRejectsBadSignature(t *testing.T) {
	m := newTestModel()
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	noteA := entities.Note{Address: signer.Address(), Token: 1, Amount: 80, Blinding: zero()}
	noteA.Index = m.Notes.Allocate(noteA.Hash())
	notesIn := []entities.Note{noteA}

	msg := WithdrawalSigningHash(1, 1, 80, notesIn)
	sig, err := other.Sign(msg[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, _, err = Withdrawal(m, WithdrawalInput{
		ChainID: 1, Token: 1, Amount: 80, NotesIn: notesIn,
		StarkKey: signer.Address(), Signature: sig,
	})
	if err == nil {
		t.Fatalf("expected signature from an unrelated key to be rejected")
	}
}
