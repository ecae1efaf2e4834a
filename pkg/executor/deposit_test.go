package executor

import (
	"testing"

	"github.com/hyperlicked/invisible-core/pkg/crypto"
	"github.com/hyperlicked/invisible-core/pkg/entities"
)

func TestDepositAllocatesNotesAtSequentialIndices(t *testing.T) {
	m := newTestModel()
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	notes := []entities.Note{
		{Address: signer.Address(), Token: 1, Amount: 60, Blinding: zero()},
		{Address: signer.Address(), Token: 1, Amount: 40, Blinding: zero()},
	}
	msg := DepositSigningHash(1, 1, 100, notes)
	sig, err := signer.Sign(msg[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	res, rec, err := Deposit(m, DepositInput{
		DepositID: 1, Token: 1, Amount: 100, StarkKey: signer.Address(),
		Notes: notes, Signature: sig,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Indices) != 2 {
		t.Fatalf("expected 2 allocated indices, got %d", len(res.Indices))
	}
	if m.Notes.GetLeaf(res.Indices[0]) != notes[0].Hash() {
		t.Fatalf("note 0 not committed to tree")
	}
	if rec.TransactionType != "deposit" {
		t.Fatalf("expected deposit record, got %s", rec.TransactionType)
	}
}

func TestDepositRejectsBadSignature(t *testing.T) {
	m := newTestModel()
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	notes := []entities.Note{{Address: signer.Address(), Token: 1, Amount: 100, Blinding: zero()}}
	msg := DepositSigningHash(1, 1, 100, notes)
	sig, err := other.Sign(msg[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, _, err = Deposit(m, DepositInput{
		DepositID: 1, Token: 1, Amount: 100, StarkKey: signer.Address(),
		Notes: notes, Signature: sig,
	})
	if err == nil {
		t.Fatalf("expected signature from an unrelated key to be rejected")
	}
}

func TestDepositRejectsAmountMismatch(t *testing.T) {
	m := newTestModel()
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	notes := []entities.Note{{Address: signer.Address(), Token: 1, Amount: 60, Blinding: zero()}}
	msg := DepositSigningHash(1, 1, 100, notes)
	sig, err := signer.Sign(msg[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, _, err = Deposit(m, DepositInput{
		DepositID: 1, Token: 1, Amount: 100, StarkKey: signer.Address(),
		Notes: notes, Signature: sig,
	})
	if err == nil {
		t.Fatalf("expected note sum mismatch to be rejected")
	}
}
