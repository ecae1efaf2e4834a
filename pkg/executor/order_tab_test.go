package executor

import (
	"testing"

	"github.com/hyperlicked/invisible-core/pkg/entities"
)

func TestOpenTabCommitsBalancesFromBothSides(t *testing.T) {
	m := newTestModel()
	base := entities.Note{Token: 1, Amount: 500, Blinding: zero()}
	base.Index = m.Notes.Allocate(base.Hash())
	quote := entities.Note{Token: 2, Amount: 1_000, Blinding: zero()}
	quote.Index = m.Notes.Allocate(quote.Hash())

	res, rec, err := OpenTab(m, OpenTabInput{
		Header:     entities.TabHeader{BaseToken: 1, QuoteToken: 2},
		BaseNotes:  []entities.Note{base},
		QuoteNotes: []entities.Note{quote},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Tab.BaseAmount != 500 || res.Tab.QuoteAmount != 1_000 {
		t.Fatalf("unexpected tab balances: %+v", res.Tab)
	}
	if rec.TransactionType != "open_order_tab" {
		t.Fatalf("expected open_order_tab record, got %s", rec.TransactionType)
	}
}

func TestAddLiquidityMintsProportionalVLP(t *testing.T) {
	m := newTestModel()
	tab := entities.OrderTab{Header: entities.TabHeader{BaseToken: 1, QuoteToken: 2, IsSmartContract: true, VLPToken: 3}, BaseAmount: 1_000, QuoteAmount: 1_000, VLPSupply: 2_000}
	tab.TabIdx = m.OrderTabs.Allocate(tab.Hash())

	quote := entities.Note{Token: 2, Amount: 1_000, Blinding: zero()}
	quote.Index = m.Notes.Allocate(quote.Hash())

	res, _, err := AddLiquidity(m, AddLiquidityInput{
		Tab: &tab, QuoteNotes: []entities.Note{quote}, IndexPrice: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.VLPNote.Amount != 1_000 {
		t.Fatalf("expected 1000 vlp minted for a 50%% addition, got %d", res.VLPNote.Amount)
	}
}

func TestRemoveLiquidityRejectsSlippageBreach(t *testing.T) {
	m := newTestModel()
	tab := entities.OrderTab{Header: entities.TabHeader{BaseToken: 1, QuoteToken: 2, IsSmartContract: true}, BaseAmount: 1_000, QuoteAmount: 1_000, VLPSupply: 2_000}
	tab.TabIdx = m.OrderTabs.Allocate(tab.Hash())

	_, _, err := RemoveLiquidity(m, RemoveLiquidityInput{
		Tab: &tab, VLPAmount: 100, IndexPrice: 120, UserIndexPrice: 100, SlippageBps: 100,
	})
	if err == nil {
		t.Fatalf("expected a 20%% price drift to breach a 1%% slippage tolerance")
	}
}
