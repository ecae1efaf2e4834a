// Package tree implements the content-addressed sparse structure every
// state tree (notes, positions, order tabs) is built from: point update,
// leaf read by index, and a "first free index" allocator that never
// linear-scans.
package tree

import (
	"fmt"
	"sync"

	"github.com/hyperlicked/invisible-core/pkg/crypto"
)

// Tree maps an integer leaf index to a content hash. Depth is fixed at
// construction (spec §4.1: "Depth is fixed at batch start"); Root recomputes
// the sparse Merkle root lazily on read and caches it until the next write.
type Tree struct {
	mu    sync.RWMutex
	depth uint32
	kind  string

	leaves map[uint64]crypto.Hash // sparse: absent == Zero

	free     freeIndexAllocator
	rootDirty bool
	rootCache crypto.Hash
}

// New creates an empty tree of the given depth. kind is a human label
// ("notes", "positions", "order_tabs") used only in error messages and
// metrics, matching spec §3's disjoint per-kind namespaces.
func New(kind string, depth uint32) *Tree {
	return &Tree{
		depth:     depth,
		kind:      kind,
		leaves:    make(map[uint64]crypto.Hash),
		free:      newFreeIndexAllocator(),
		rootDirty: true,
	}
}

func (t *Tree) Kind() string   { return t.kind }
func (t *Tree) Depth() uint32  { return t.depth }

// GetLeaf returns the hash stored at i, or the zero hash if nothing has
// ever been written there.
func (t *Tree) GetLeaf(i uint64) crypto.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.leaves[i]
}

// UpdateLeaf is an unconditional overwrite — it performs no validity check
// of its own; callers (the executors) are responsible for proving the
// write is legal before calling this. Writing the zero hash frees the slot
// for reuse by a future FirstZeroIndex.
func (t *Tree) UpdateLeaf(i uint64, h crypto.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setLocked(i, h)
}

func (t *Tree) setLocked(i uint64, h crypto.Hash) {
	if h.IsZero() {
		delete(t.leaves, i)
		t.free.release(i)
	} else {
		t.leaves[i] = h
		t.free.reserve(i)
	}
	t.rootDirty = true
}

// FirstZeroIndex returns the lowest index i with GetLeaf(i)==Zero, backed by
// a free-slot bitmap rather than a linear scan over leaves (spec §4.1).
func (t *Tree) FirstZeroIndex() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.free.firstFree()
}

// Allocate atomically finds the first free index and reserves it with h in
// a single critical section, matching spec §5's requirement that
// "coordinators must acquire, allocate, and commit without yielding the
// lock."
func (t *Tree) Allocate(h crypto.Hash) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.free.firstFree()
	t.setLocked(i, h)
	return i
}

// Root computes the sparse Merkle root over the tree's fixed depth. Empty
// subtrees are represented by a well-known per-level zero hash, and only
// the ancestors of live leaves are ever materialized — depth alone (up to
// 32 for the notes/positions trees) must never bound the work done here
// (spec §4.1 "Merkle root over a depth-parameterized sparse structure").
func (t *Tree) Root() crypto.Hash {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.rootDirty {
		return t.rootCache
	}
	zeros := zeroHashes(t.depth)
	level := make(map[uint64]crypto.Hash, len(t.leaves))
	for k, v := range t.leaves {
		level[k] = v
	}
	for d := uint32(0); d < t.depth; d++ {
		parents := make(map[uint64]struct{}, len(level)/2+1)
		for idx := range level {
			parents[idx/2] = struct{}{}
		}
		next := make(map[uint64]crypto.Hash, len(parents))
		for pidx := range parents {
			left, lok := level[pidx*2]
			if !lok {
				left = zeros[d]
			}
			right, rok := level[pidx*2+1]
			if !rok {
				right = zeros[d]
			}
			if left.IsZero() && right.IsZero() {
				continue
			}
			next[pidx] = crypto.H(left.Big(), right.Big())
		}
		level = next
	}
	root, ok := level[0]
	if !ok {
		root = zeros[t.depth]
	}
	t.rootCache = root
	t.rootDirty = false
	return root
}

// LiveCount returns the number of non-zero leaves currently stored. It only
// reports the count; it checks nothing against it.
func (t *Tree) LiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.leaves)
}

func (t *Tree) String() string {
	return fmt.Sprintf("tree(%s, depth=%d, live=%d)", t.kind, t.depth, t.LiveCount())
}

var zeroHashCache = struct {
	sync.Mutex
	byDepth map[uint32][]crypto.Hash
}{byDepth: make(map[uint32][]crypto.Hash)}

// zeroHashes returns the per-level hash of an all-zero subtree, index 0 is
// the leaf level and index depth is the root of an empty tree.
func zeroHashes(depth uint32) []crypto.Hash {
	zeroHashCache.Lock()
	defer zeroHashCache.Unlock()
	if cached, ok := zeroHashCache.byDepth[depth]; ok {
		return cached
	}
	levels := make([]crypto.Hash, depth+1)
	levels[0] = crypto.Zero
	for d := uint32(1); d <= depth; d++ {
		levels[d] = crypto.H(levels[d-1].Big(), levels[d-1].Big())
	}
	zeroHashCache.byDepth[depth] = levels
	return levels
}
