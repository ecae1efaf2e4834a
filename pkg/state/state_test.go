package state

import (
	"math/big"
	"testing"

	"github.com/hyperlicked/invisible-core/pkg/entities"
)

func TestModelPutNoteAndConsume(t *testing.T) {
	m := NewModel(4, 4, 4)
	n := entities.Note{Index: 1, Token: 1, Amount: 500, Blinding: big.NewInt(1)}
	m.PutNote(n)
	if m.Notes.GetLeaf(1).IsZero() {
		t.Fatalf("expected note leaf to be live after PutNote")
	}
	m.ConsumeNote(1)
	if !m.Notes.GetLeaf(1).IsZero() {
		t.Fatalf("expected note leaf to be zero after ConsumeNote")
	}
}

func TestModelResetBatchClearsSideMaps(t *testing.T) {
	m := NewModel(4, 4, 4)
	m.PartialFills.Publish(7, PartialFillEntry{Status: FillOpen, AmountFilled: 10})
	m.BlockedOrders.TryBlock(7)
	m.MarkUpdated("notes", 1, m.Notes.GetLeaf(1))

	m.ResetBatch()

	if _, ok := m.PartialFills.Get(7); ok {
		t.Fatalf("expected partial fill tracker cleared")
	}
	if m.BlockedOrders.IsBlocked(7) {
		t.Fatalf("expected blocked orders cleared")
	}
	if len(m.UpdatedLeaves()) != 0 {
		t.Fatalf("expected updated leaves cleared")
	}
}

func TestBlockedOrderIDsMutualExclusion(t *testing.T) {
	b := NewBlockedOrderIDs()
	if !b.TryBlock(1) {
		t.Fatalf("expected first block to succeed")
	}
	if b.TryBlock(1) {
		t.Fatalf("expected second block on the same id to fail")
	}
	b.Unblock(1)
	if !b.TryBlock(1) {
		t.Fatalf("expected block to succeed again after unblock")
	}
}

func TestFundingStateAccrualWindow(t *testing.T) {
	f := NewFundingState()
	f.ApplyFundingUpdate(map[uint32]int64{1: 10}, map[uint32]uint64{1: 2000})
	f.ApplyFundingUpdate(map[uint32]int64{1: -5}, map[uint32]uint64{1: 1990})

	rates, prices := f.RatesSince(1, 0)
	if len(rates) != 2 || len(prices) != 2 {
		t.Fatalf("expected 2 funding observations since idx 0, got %d/%d", len(rates), len(prices))
	}
	rates, _ = f.RatesSince(1, 1)
	if len(rates) != 1 || rates[0] != -5 {
		t.Fatalf("expected 1 observation since idx 1, got %v", rates)
	}
}

func TestFundingStateBatchFloorAdvances(t *testing.T) {
	f := NewFundingState()
	f.NoteMinFundingIdx(1, 5)
	f.NoteMinFundingIdx(1, 2)
	f.ResetBatchSnapshot()
	if got := f.MinFundingIdx(1); got != 2 {
		t.Fatalf("expected min funding idx 2, got %d", got)
	}
}

func TestIndexPriceStateMinMax(t *testing.T) {
	s := NewIndexPriceState()
	s.Update(1, 100)
	s.Update(1, 80)
	s.Update(1, 120)
	min, max := s.MinMax(1)
	if min != 80 || max != 120 {
		t.Fatalf("expected min=80 max=120, got min=%d max=%d", min, max)
	}
	if s.Latest(1) != 120 {
		t.Fatalf("expected latest to be the last observation")
	}
}
