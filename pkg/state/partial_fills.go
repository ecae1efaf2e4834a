package state

import (
	"sync"

	"github.com/hyperlicked/invisible-core/pkg/entities"
)

// FillStatus classifies the state of a partially-filled order id. The
// source's sentinel tuple behavior (spec §9 "partial-fill sentinel (None,
// 69, 69)") is replaced here with an explicit TerminallyFailed status
// rather than a magic constant, per that design note.
type FillStatus int8

const (
	FillOpen FillStatus = iota
	FillComplete
	FillTerminallyFailed
)

// PartialFillEntry is the per-order-id bookkeeping for a spot swap in
// progress across one or more fills (spec §4.3.3).
type PartialFillEntry struct {
	Status        FillStatus
	RefundNote    *entities.Note
	AmountFilled  uint64
}

// PartialFillTracker is the spot-swap `partial_fill_tracker` side map (spec
// §2 C3). One lock per map, as required by spec §5.
type PartialFillTracker struct {
	mu      sync.Mutex
	entries map[uint64]PartialFillEntry
}

func NewPartialFillTracker() *PartialFillTracker {
	return &PartialFillTracker{entries: make(map[uint64]PartialFillEntry)}
}

func (t *PartialFillTracker) Get(orderID uint64) (PartialFillEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[orderID]
	return e, ok
}

// Publish is called by the worker holding order_id's lock right before
// clearing it, so the next fill observes up-to-date partial state (spec
// §5 "the previous worker publishes partial_fill_tracker[order_id] before
// clearing the flag").
func (t *PartialFillTracker) Publish(orderID uint64, e PartialFillEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[orderID] = e
}

func (t *PartialFillTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[uint64]PartialFillEntry)
}

// PerpPartialFillEntry tracks an in-progress perpetual Open across fills
// (spec §4.3.4 "perpetual_partial_fill_tracker").
type PerpPartialFillEntry struct {
	Status          FillStatus
	RefundNote      *entities.Note
	SpentSynthetic  uint64
	SpentMargin     uint64
	PositionIndex   uint64 // the position this Open's fills accumulate into
}

type PerpPartialFillTracker struct {
	mu      sync.Mutex
	entries map[uint64]PerpPartialFillEntry
}

func NewPerpPartialFillTracker() *PerpPartialFillTracker {
	return &PerpPartialFillTracker{entries: make(map[uint64]PerpPartialFillEntry)}
}

func (t *PerpPartialFillTracker) Get(orderID uint64) (PerpPartialFillEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[orderID]
	return e, ok
}

func (t *PerpPartialFillTracker) Publish(orderID uint64, e PerpPartialFillEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[orderID] = e
}

func (t *PerpPartialFillTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[uint64]PerpPartialFillEntry)
}
