package executor

import (
	"testing"

	"github.com/hyperlicked/invisible-core/pkg/crypto"
	"github.com/hyperlicked/invisible-core/pkg/entities"
)

func TestSplitNotesPreservesTotal(t *testing.T) {
	m := newTestModel()
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	in := entities.Note{Address: signer.Address(), Token: 1, Amount: 100, Blinding: zero()}
	in.Index = m.Notes.Allocate(in.Hash())

	out := []entities.Note{
		{Address: signer.Address(), Token: 1, Amount: 60, Blinding: zero()},
		{Address: signer.Address(), Token: 1, Amount: 40, Blinding: zero()},
	}
	msg := SplitNotesSigningHash([]entities.Note{in}, out)
	sig, err := signer.Sign(msg[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	res, rec, err := SplitNotes(m, SplitNotesInput{
		NotesIn: []entities.Note{in}, NotesOut: out,
		StarkKey: signer.Address(), Signature: sig,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Indices) != 2 {
		t.Fatalf("expected 2 output indices, got %d", len(res.Indices))
	}
	if m.Notes.GetLeaf(res.Indices[0]) != out[0].Hash() {
		t.Fatalf("first output note not committed at reused index")
	}
	if rec.TransactionType != "note_split" {
		t.Fatalf("expected note_split record, got %s", rec.TransactionType)
	}
}

func TestSplitNotesRejectsAmountMismatch(t *testing.T) {
	m := newTestModel()
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	in := entities.Note{Address: signer.Address(), Token: 1, Amount: 100, Blinding: zero()}
	in.Index = m.Notes.Allocate(in.Hash())
	out := []entities.Note{{Address: signer.Address(), Token: 1, Amount: 50, Blinding: zero()}}

	msg := SplitNotesSigningHash([]entities.Note{in}, out)
	sig, err := signer.Sign(msg[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, _, err = SplitNotes(m, SplitNotesInput{
		NotesIn: []entities.Note{in}, NotesOut: out,
		StarkKey: signer.Address(), Signature: sig,
	})
	if err == nil {
		t.Fatalf("expected amount mismatch to be rejected")
	}
}
