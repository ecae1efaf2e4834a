package coordinator

import (
	"github.com/hyperlicked/invisible-core/pkg/crypto"
	"github.com/hyperlicked/invisible-core/pkg/state"
)

// TouchedLeaf names one tree slot an in-flight transaction is about to
// mutate, so its pre-image can be captured before the executor runs (spec
// §7 "RollbackInfo").
type TouchedLeaf struct {
	Tree  string // "notes", "positions", or "order_tabs"
	Index uint64
}

// RollbackInfo snapshots every leaf a transaction declares it will touch,
// before the executor runs, so a Validation or Consistency error can be
// undone without re-deriving prior state (spec §7).
type RollbackInfo struct {
	prior map[TouchedLeaf]crypto.Hash
}

// Snapshot records the current leaf hash of every touched slot.
func Snapshot(m *state.Model, touched []TouchedLeaf) *RollbackInfo {
	prior := make(map[TouchedLeaf]crypto.Hash, len(touched))
	for _, t := range touched {
		prior[t] = leafOf(m, t)
	}
	return &RollbackInfo{prior: prior}
}

// Restore writes every captured leaf back to its pre-transaction value.
// Called by the coordinator when an executor returns a Validation or
// Consistency error (spec §7 "caught by the coordinator and rolled back").
func (r *RollbackInfo) Restore(m *state.Model) {
	for t, h := range r.prior {
		switch t.Tree {
		case "notes":
			m.Notes.UpdateLeaf(t.Index, h)
		case "positions":
			m.Positions.UpdateLeaf(t.Index, h)
		case "order_tabs":
			m.OrderTabs.UpdateLeaf(t.Index, h)
		}
	}
}

func leafOf(m *state.Model, t TouchedLeaf) crypto.Hash {
	switch t.Tree {
	case "notes":
		return m.Notes.GetLeaf(t.Index)
	case "positions":
		return m.Positions.GetLeaf(t.Index)
	case "order_tabs":
		return m.OrderTabs.GetLeaf(t.Index)
	default:
		return crypto.Zero
	}
}
