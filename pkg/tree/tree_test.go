package tree

import (
	"testing"

	"github.com/hyperlicked/invisible-core/pkg/crypto"
)

func TestFirstZeroIndexSequential(t *testing.T) {
	tr := New("notes", 8)
	if got := tr.FirstZeroIndex(); got != 0 {
		t.Fatalf("expected first free index 0, got %d", got)
	}
	h := crypto.HashUint64s(1, 2, 3)
	idx := tr.Allocate(h)
	if idx != 0 {
		t.Fatalf("expected allocated index 0, got %d", idx)
	}
	if got := tr.FirstZeroIndex(); got != 1 {
		t.Fatalf("expected next free index 1, got %d", got)
	}
}

func TestUpdateLeafZeroFreesSlot(t *testing.T) {
	tr := New("notes", 8)
	h := crypto.HashUint64s(7)
	tr.UpdateLeaf(3, h)
	if got := tr.GetLeaf(3); got != h {
		t.Fatalf("leaf 3 mismatch")
	}
	tr.UpdateLeaf(3, crypto.Zero)
	if got := tr.GetLeaf(3); !got.IsZero() {
		t.Fatalf("expected leaf 3 to be zero after overwrite")
	}
	if got := tr.FirstZeroIndex(); got != 0 {
		t.Fatalf("expected index 0 free (never written), got %d", got)
	}
}

func TestRootChangesOnWrite(t *testing.T) {
	tr := New("positions", 4)
	r0 := tr.Root()
	tr.UpdateLeaf(2, crypto.HashUint64s(42))
	r1 := tr.Root()
	if r0 == r1 {
		t.Fatalf("expected root to change after a write")
	}
	tr.UpdateLeaf(2, crypto.Zero)
	r2 := tr.Root()
	if r2 != r0 {
		t.Fatalf("expected root to return to empty-tree value after zeroing the only leaf")
	}
}

func TestAllocateFillsGapsInOrder(t *testing.T) {
	tr := New("order_tabs", 8)
	a := tr.Allocate(crypto.HashUint64s(1))
	b := tr.Allocate(crypto.HashUint64s(2))
	c := tr.Allocate(crypto.HashUint64s(3))
	if a != 0 || b != 1 || c != 2 {
		t.Fatalf("expected sequential allocation 0,1,2 got %d,%d,%d", a, b, c)
	}
	tr.UpdateLeaf(b, crypto.Zero)
	d := tr.Allocate(crypto.HashUint64s(4))
	if d != b {
		t.Fatalf("expected freed index %d to be reused, got %d", b, d)
	}
}
