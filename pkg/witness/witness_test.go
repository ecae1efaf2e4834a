package witness

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/hyperlicked/invisible-core/pkg/crypto"
)

func TestRecordMarshalIncludesTransactionType(t *testing.T) {
	r := NewRecord("deposit")
	r.SetUint("deposit_id", 1)
	r.SetHash("note_hash", crypto.Zero)

	b, err := r.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]string
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["transaction_type"] != "deposit" {
		t.Fatalf("expected transaction_type=deposit, got %q", out["transaction_type"])
	}
	if out["deposit_id"] != "1" {
		t.Fatalf("expected deposit_id=1, got %q", out["deposit_id"])
	}
}

func TestLogAppendOrderPreserved(t *testing.T) {
	l := NewLog()
	l.Append(NewRecord("deposit"))
	l.Append(NewRecord("withdrawal"))
	if l.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", l.Len())
	}
	if l.Records[0].TransactionType != "deposit" || l.Records[1].TransactionType != "withdrawal" {
		t.Fatalf("expected append order preserved")
	}
}

func TestGlobalDexStatePacksFourteenFields(t *testing.T) {
	s := GlobalDexState{ConfigCode: 1, StateTreeDepth: 31, PerpTreeDepth: 32}
	packed := s.Pack()
	if len(packed) != 14 {
		t.Fatalf("expected 14 packed fields, got %d", len(packed))
	}
}

func TestNoteRecordHidesAmountWithBlinding(t *testing.T) {
	n := NoteRecord{Index: 5, Amount: 100, Token: 1, Blinding: big.NewInt(7)}
	packed := n.Pack()
	if len(packed) != 3 {
		t.Fatalf("expected 3 packed fields, got %d", len(packed))
	}
}
