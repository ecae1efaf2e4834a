package executor

import "testing"

func TestIndexPriceUpdateRecordsLatest(t *testing.T) {
	m := newTestModel()
	rec, err := IndexPriceUpdate(m, IndexPriceUpdateInput{Prices: map[uint32]uint64{9: 42}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.IndexPrices.Latest(9) != 42 {
		t.Fatalf("expected latest index price 42, got %d", m.IndexPrices.Latest(9))
	}
	if rec.TransactionType != "index_price_update" {
		t.Fatalf("expected index_price_update record, got %s", rec.TransactionType)
	}
}

func TestIndexPriceUpdateRejectsEmpty(t *testing.T) {
	m := newTestModel()
	_, err := IndexPriceUpdate(m, IndexPriceUpdateInput{})
	if err == nil {
		t.Fatalf("expected empty price set to be rejected")
	}
}
