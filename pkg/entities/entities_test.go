package entities

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestNoteHashZeroForZeroAmount(t *testing.T) {
	n := Note{Index: 1, Token: 5, Amount: 0}
	if !n.Hash().IsZero() {
		t.Fatalf("expected zero-amount note to hash to zero")
	}
}

func TestNoteHashStableAndSensitive(t *testing.T) {
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	n1 := Note{Index: 0, Address: addr, Token: 1, Amount: 100, Blinding: big.NewInt(7)}
	n2 := Note{Index: 0, Address: addr, Token: 1, Amount: 100, Blinding: big.NewInt(7)}
	if n1.Hash() != n2.Hash() {
		t.Fatalf("expected identical notes to hash identically")
	}
	n3 := n2
	n3.Amount = 101
	if n1.Hash() == n3.Hash() {
		t.Fatalf("expected amount change to change the hash")
	}
}

func TestDistinctIndices(t *testing.T) {
	notes := []Note{{Index: 1}, {Index: 2}, {Index: 1}}
	if DistinctIndices(notes) {
		t.Fatalf("expected duplicate indices to be detected")
	}
	notes2 := []Note{{Index: 1}, {Index: 2}, {Index: 3}}
	if !DistinctIndices(notes2) {
		t.Fatalf("expected distinct indices to pass")
	}
}

func TestPositionHashIncludesFundingIdx(t *testing.T) {
	p := Position{Index: 0, SyntheticToken: 1, CollateralToken: 2, PositionSize: 100, Side: Long, Margin: 10, EntryPrice: 50, LastFundingIdx: 3}
	h1 := p.Hash()
	p.LastFundingIdx = 4
	h2 := p.Hash()
	if h1 == h2 {
		t.Fatalf("expected funding idx change to change position hash")
	}
}

func TestOrderTabNominal(t *testing.T) {
	tab := OrderTab{BaseAmount: 1_000_000, QuoteAmount: 1_000_000, VLPSupply: 1_000_000}
	if got := tab.Nominal(1); got != 2_000_000 {
		t.Fatalf("expected nominal 2e6, got %d", got)
	}
}

func TestWrapSpotSetIDAndExpiry(t *testing.T) {
	lo := &LimitOrder{ExpirationTimestamp: 1000}
	o := WrapSpot(lo)
	o.SetID(42)
	if lo.OrderID != 42 {
		t.Fatalf("expected SetID to mutate the underlying order")
	}
	if !o.HasExpired(1001) {
		t.Fatalf("expected order to report expired at ts >= expiration")
	}
	if o.HasExpired(999) {
		t.Fatalf("expected order to not be expired before expiration")
	}
}
