// Package state holds the three content-addressed trees and the side maps
// that make up the DEX's mutable state (spec §2 C3, §5 "Shared state").
package state

import (
	"sync"

	"github.com/hyperlicked/invisible-core/pkg/crypto"
	"github.com/hyperlicked/invisible-core/pkg/entities"
	"github.com/hyperlicked/invisible-core/pkg/tree"
)

// Model owns the three disjoint trees plus every per-batch side map. Lock
// ordering throughout the package follows spec §5: trees before maps,
// coordinator-owned maps before worker-local maps.
type Model struct {
	Notes     *tree.Tree
	Positions *tree.Tree
	OrderTabs *tree.Tree

	PartialFills *PartialFillTracker
	PerpPartialFills *PerpPartialFillTracker
	BlockedOrders *BlockedOrderIDs

	Funding *FundingState
	IndexPrices *IndexPriceState

	// updatedStateHashes records every leaf touched since the last
	// finalization, for the proof generator's witness-vs-tree diffing and
	// for the tree-monotonicity invariant check (spec §8 invariant 4).
	mu                 sync.Mutex
	updatedStateHashes map[updatedKey]crypto.Hash
}

type updatedKey struct {
	tree  string
	index uint64
}

// NewModel constructs an empty state model with the given tree depths
// (spec §4.1: "Depth is fixed at batch start").
func NewModel(stateTreeDepth, perpTreeDepth, tabTreeDepth uint32) *Model {
	return &Model{
		Notes:              tree.New("notes", stateTreeDepth),
		Positions:          tree.New("positions", perpTreeDepth),
		OrderTabs:          tree.New("order_tabs", tabTreeDepth),
		PartialFills:       NewPartialFillTracker(),
		PerpPartialFills:   NewPerpPartialFillTracker(),
		BlockedOrders:      NewBlockedOrderIDs(),
		Funding:            NewFundingState(),
		IndexPrices:        NewIndexPriceState(),
		updatedStateHashes: make(map[updatedKey]crypto.Hash),
	}
}

// MarkUpdated records that treeName's leaf at index now holds h. Executors
// call this immediately after every tree.UpdateLeaf so the coordinator can
// produce a diff at finalization without re-reading all three trees.
func (m *Model) MarkUpdated(treeName string, index uint64, h crypto.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatedStateHashes[updatedKey{treeName, index}] = h
}

// UpdatedLeaves returns a snapshot of every (tree, index) -> hash touched
// since the last ResetBatch.
func (m *Model) UpdatedLeaves() map[string]map[uint64]crypto.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]map[uint64]crypto.Hash)
	for k, v := range m.updatedStateHashes {
		if out[k.tree] == nil {
			out[k.tree] = make(map[uint64]crypto.Hash)
		}
		out[k.tree][k.index] = v
	}
	return out
}

// ResetBatch clears every per-batch side map and the updated-leaf log at
// FinalizeBatch (spec §4.4 "reset per-batch tracking"). Trees themselves
// persist across batches — only the bookkeeping resets.
func (m *Model) ResetBatch() {
	m.mu.Lock()
	m.updatedStateHashes = make(map[updatedKey]crypto.Hash)
	m.mu.Unlock()
	m.PartialFills.Reset()
	m.PerpPartialFills.Reset()
	m.BlockedOrders.Reset()
	m.Funding.ResetBatchSnapshot()
}

// PutNote commits a live note into the notes tree at its index and records
// the update, or clears the slot if the note is the zero sentinel.
func (m *Model) PutNote(n entities.Note) {
	h := n.Hash()
	m.Notes.UpdateLeaf(n.Index, h)
	m.MarkUpdated("notes", n.Index, h)
}

// ConsumeNote zeroes a note's slot (spent).
func (m *Model) ConsumeNote(index uint64) {
	m.Notes.UpdateLeaf(index, crypto.Zero)
	m.MarkUpdated("notes", index, crypto.Zero)
}

// PutPosition commits a position into the perpetual tree.
func (m *Model) PutPosition(p entities.Position) {
	h := p.Hash()
	m.Positions.UpdateLeaf(p.Index, h)
	m.MarkUpdated("positions", p.Index, h)
}

// PutOrderTab commits a tab into the order-tabs tree.
func (m *Model) PutOrderTab(t entities.OrderTab) {
	h := t.Hash()
	m.OrderTabs.UpdateLeaf(t.TabIdx, h)
	m.MarkUpdated("order_tabs", t.TabIdx, h)
}
