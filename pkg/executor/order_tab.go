package executor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperlicked/invisible-core/pkg/entities"
	"github.com/hyperlicked/invisible-core/pkg/state"
	"github.com/hyperlicked/invisible-core/pkg/witness"
)

// OpenTabInput opens a fresh market-maker vault, spot or perp backed (spec
// §4.3.5 "Open tab").
type OpenTabInput struct {
	Header      entities.TabHeader
	BaseNotes   []entities.Note
	QuoteNotes  []entities.Note
	BaseRefund  *entities.Note
	QuoteRefund *entities.Note
}

type OpenTabResult struct {
	Tab *entities.OrderTab
}

// OpenTab consumes base_notes_in and quote_notes_in, allocates a fresh
// tab_idx and commits the tab leaf (spec §4.3.5).
func OpenTab(m *state.Model, in OpenTabInput) (*OpenTabResult, *witness.Record, error) {
	baseAmt, err := consumeSide(m, in.Header.BaseToken, in.BaseNotes, in.BaseRefund)
	if err != nil {
		return nil, nil, err
	}
	quoteAmt, err := consumeSide(m, in.Header.QuoteToken, in.QuoteNotes, in.QuoteRefund)
	if err != nil {
		return nil, nil, err
	}

	tab := entities.OrderTab{Header: in.Header, BaseAmount: baseAmt, QuoteAmount: quoteAmt}
	tab.TabIdx = m.OrderTabs.Allocate(tab.Hash())
	m.PutOrderTab(tab)

	rec := witness.NewRecord("open_order_tab")
	rec.SetUint("tab_idx", tab.TabIdx)
	rec.SetHash("tab_hash", tab.Hash())
	return &OpenTabResult{Tab: &tab}, rec, nil
}

func consumeSide(m *state.Model, token uint32, notes []entities.Note, refund *entities.Note) (uint64, error) {
	if len(notes) == 0 {
		return 0, nil
	}
	if !entities.DistinctIndices(notes) {
		return 0, validationErr("notes_in indices not pairwise distinct")
	}
	sum := entities.SumAmounts(notes)
	for _, n := range notes {
		if n.Token != token {
			return 0, validationErr("notes_in token mismatch")
		}
		if m.Notes.GetLeaf(n.Index) != n.Hash() {
			return 0, validationErr("notes_in entry not live in tree")
		}
	}
	want := sum
	if refund != nil {
		want = sum - refund.Amount
		r := *refund
		r.Index = notes[0].Index
		m.PutNote(r)
	} else {
		m.ConsumeNote(notes[0].Index)
	}
	for _, n := range notes[1:] {
		m.ConsumeNote(n.Index)
	}
	return want, nil
}

// ModifyTabInput adds or removes base/quote balance on an existing tab
// (spec §4.3.5 "Modify tab").
type ModifyTabInput struct {
	Tab          *entities.OrderTab
	BaseDelta    int64
	QuoteDelta   int64
	BaseNotes    []entities.Note
	QuoteNotes   []entities.Note
	BaseRefund   *entities.Note
	QuoteRefund  *entities.Note
	CloseFields  *entities.CloseOrderFields // used when a delta is negative (return notes)
}

type ModifyTabResult struct {
	Tab        *entities.OrderTab
	ReturnBase *entities.Note
	ReturnQuote *entities.Note
}

func ModifyTab(m *state.Model, in ModifyTabInput) (*ModifyTabResult, *witness.Record, error) {
	tab := in.Tab
	if tab == nil {
		return nil, nil, validationErr("modify tab missing existing tab")
	}
	if m.OrderTabs.GetLeaf(tab.TabIdx) != tab.Hash() {
		return nil, nil, validationErr("order tab not live in tree")
	}

	updated := *tab
	result := &ModifyTabResult{}

	if in.BaseDelta > 0 {
		added, err := consumeSide(m, tab.Header.BaseToken, in.BaseNotes, in.BaseRefund)
		if err != nil {
			return nil, nil, err
		}
		updated.BaseAmount += added
	} else if in.BaseDelta < 0 {
		amt := uint64(-in.BaseDelta)
		if amt > updated.BaseAmount {
			return nil, nil, consistencyErr("base delta exceeds tab balance")
		}
		updated.BaseAmount -= amt
		if in.CloseFields != nil {
			n := entities.Note{Token: tab.Header.BaseToken, Amount: amt, Address: in.CloseFields.DestReceivedAddress, Blinding: in.CloseFields.DestReceivedBlinding}
			n.Index = m.Notes.Allocate(n.Hash())
			m.MarkUpdated("notes", n.Index, n.Hash())
			result.ReturnBase = &n
		}
	}

	if in.QuoteDelta > 0 {
		added, err := consumeSide(m, tab.Header.QuoteToken, in.QuoteNotes, in.QuoteRefund)
		if err != nil {
			return nil, nil, err
		}
		updated.QuoteAmount += added
	} else if in.QuoteDelta < 0 {
		amt := uint64(-in.QuoteDelta)
		if amt > updated.QuoteAmount {
			return nil, nil, consistencyErr("quote delta exceeds tab balance")
		}
		updated.QuoteAmount -= amt
		if in.CloseFields != nil {
			n := entities.Note{Token: tab.Header.QuoteToken, Amount: amt, Address: in.CloseFields.DestReceivedAddress, Blinding: in.CloseFields.DestReceivedBlinding}
			n.Index = m.Notes.Allocate(n.Hash())
			m.MarkUpdated("notes", n.Index, n.Hash())
			result.ReturnQuote = &n
		}
	}

	m.PutOrderTab(updated)
	result.Tab = &updated

	rec := witness.NewRecord("modify_order_tab")
	rec.SetUint("tab_idx", updated.TabIdx)
	rec.SetHash("tab_hash", updated.Hash())
	return result, rec, nil
}

// RegisterMMInput seals an existing tab as a smart-contract MM and mints
// its first vLP note (spec §4.3.5 "Register MM").
type RegisterMMInput struct {
	Tab             *entities.OrderTab
	VLPDestAddress  common.Address
	VLPDestBlinding *big.Int
	IndexPrice      uint64
}

type RegisterMMResult struct {
	Tab     *entities.OrderTab
	VLPNote *entities.Note
}

// RegisterMM seals tab as a smart-contract MM and mints its first vLP
// note, 1:1 against the tab's current nominal value (spec §4.3.5
// "Register MM").
func RegisterMM(m *state.Model, in RegisterMMInput) (*RegisterMMResult, *witness.Record, error) {
	tab := in.Tab
	if tab == nil {
		return nil, nil, validationErr("register mm missing existing tab")
	}
	if m.OrderTabs.GetLeaf(tab.TabIdx) != tab.Hash() {
		return nil, nil, validationErr("order tab not live in tree")
	}
	if tab.Header.IsSmartContract {
		return nil, nil, consistencyErr("tab is already a smart-contract mm")
	}

	updated := *tab
	updated.Header.IsSmartContract = true
	initialVLP := updated.Nominal(in.IndexPrice)
	updated.VLPSupply = initialVLP
	m.PutOrderTab(updated)

	vlp := entities.Note{Token: updated.Header.VLPToken, Amount: initialVLP, Address: in.VLPDestAddress, Blinding: in.VLPDestBlinding}
	vlp.Index = m.Notes.Allocate(vlp.Hash())
	m.MarkUpdated("notes", vlp.Index, vlp.Hash())

	rec := witness.NewRecord("onchain_register_mm")
	rec.SetUint("tab_idx", updated.TabIdx)
	rec.SetUint("initial_vlp_amount", initialVLP)
	return &RegisterMMResult{Tab: &updated, VLPNote: &vlp}, rec, nil
}

// AddLiquidityInput deposits into a smart-contract tab in exchange for
// freshly minted vLP (spec §4.3.5 "Add liquidity").
type AddLiquidityInput struct {
	Tab         *entities.OrderTab
	BaseNotes   []entities.Note
	QuoteNotes  []entities.Note
	BaseRefund  *entities.Note
	QuoteRefund *entities.Note
	IndexPrice  uint64
	CloseFields *entities.CloseOrderFields // vlp_close_order_fields
}

type AddLiquidityResult struct {
	Tab     *entities.OrderTab
	VLPNote *entities.Note
}

func AddLiquidity(m *state.Model, in AddLiquidityInput) (*AddLiquidityResult, *witness.Record, error) {
	tab := in.Tab
	if tab == nil || !tab.Header.IsSmartContract {
		return nil, nil, validationErr("add liquidity requires a smart-contract tab")
	}
	if m.OrderTabs.GetLeaf(tab.TabIdx) != tab.Hash() {
		return nil, nil, validationErr("order tab not live in tree")
	}
	tabNominal := tab.Nominal(in.IndexPrice)
	if tabNominal == 0 {
		return nil, nil, consistencyErr("cannot add liquidity to an empty tab")
	}

	baseAdded, err := consumeSide(m, tab.Header.BaseToken, in.BaseNotes, in.BaseRefund)
	if err != nil {
		return nil, nil, err
	}
	quoteAdded, err := consumeSide(m, tab.Header.QuoteToken, in.QuoteNotes, in.QuoteRefund)
	if err != nil {
		return nil, nil, err
	}
	addedNominal := baseAdded*in.IndexPrice + quoteAdded

	vlpAmount := tab.VLPSupply * addedNominal / tabNominal

	updated := *tab
	updated.BaseAmount += baseAdded
	updated.QuoteAmount += quoteAdded
	updated.VLPSupply += vlpAmount
	m.PutOrderTab(updated)

	vlp := entities.Note{Token: updated.Header.VLPToken, Amount: vlpAmount}
	if in.CloseFields != nil {
		vlp.Address = in.CloseFields.DestReceivedAddress
		vlp.Blinding = in.CloseFields.DestReceivedBlinding
	}
	vlp.Index = m.Notes.Allocate(vlp.Hash())
	m.MarkUpdated("notes", vlp.Index, vlp.Hash())

	rec := witness.NewRecord("add_liquidity")
	rec.SetUint("tab_idx", updated.TabIdx)
	rec.SetUint("vlp_amount", vlpAmount)
	return &AddLiquidityResult{Tab: &updated, VLPNote: &vlp}, rec, nil
}

// RemoveLiquidityInput burns vLP in exchange for a proportional share of
// the tab's base/quote balances (spec §4.3.5 "Remove liquidity").
type RemoveLiquidityInput struct {
	Tab            *entities.OrderTab
	VLPAmount      uint64
	IndexPrice     uint64
	UserIndexPrice uint64
	SlippageBps    uint64
	CloseFields    *entities.CloseOrderFields
}

type RemoveLiquidityResult struct {
	Tab          *entities.OrderTab
	BaseReturn   *entities.Note
	QuoteReturn  *entities.Note
	TabClosed    bool
}

func RemoveLiquidity(m *state.Model, in RemoveLiquidityInput) (*RemoveLiquidityResult, *witness.Record, error) {
	tab := in.Tab
	if tab == nil || !tab.Header.IsSmartContract {
		return nil, nil, validationErr("remove liquidity requires a smart-contract tab")
	}
	if m.OrderTabs.GetLeaf(tab.TabIdx) != tab.Hash() {
		return nil, nil, validationErr("order tab not live in tree")
	}
	if in.VLPAmount == 0 || in.VLPAmount > tab.VLPSupply {
		return nil, nil, consistencyErr("vlp_amount exceeds vlp_supply")
	}

	var drift uint64
	if in.IndexPrice > in.UserIndexPrice {
		drift = in.IndexPrice - in.UserIndexPrice
	} else {
		drift = in.UserIndexPrice - in.IndexPrice
	}
	if in.UserIndexPrice > 0 && drift*10_000 > in.UserIndexPrice*in.SlippageBps {
		return nil, nil, validationErr("index price drift exceeds slippage tolerance")
	}

	tabNominal := tab.BaseAmount*in.IndexPrice + tab.QuoteAmount
	returnNominal := tabNominal * in.VLPAmount / tab.VLPSupply
	baseReturn := returnNominal / (in.IndexPrice + 1) // base-weighted; remainder settles in quote
	if baseReturn > tab.BaseAmount {
		baseReturn = tab.BaseAmount
	}
	quoteReturn := returnNominal - baseReturn*in.IndexPrice

	updated := *tab
	updated.BaseAmount -= baseReturn
	updated.QuoteAmount -= quoteReturn
	updated.VLPSupply -= in.VLPAmount

	result := &RemoveLiquidityResult{}
	if in.CloseFields != nil {
		if baseReturn > 0 {
			n := entities.Note{Token: tab.Header.BaseToken, Amount: baseReturn, Address: in.CloseFields.DestReceivedAddress, Blinding: in.CloseFields.DestReceivedBlinding}
			n.Index = m.Notes.Allocate(n.Hash())
			m.MarkUpdated("notes", n.Index, n.Hash())
			result.BaseReturn = &n
		}
		if quoteReturn > 0 {
			n := entities.Note{Token: tab.Header.QuoteToken, Amount: quoteReturn, Address: in.CloseFields.DestReceivedAddress, Blinding: in.CloseFields.DestReceivedBlinding}
			n.Index = m.Notes.Allocate(n.Hash())
			m.MarkUpdated("notes", n.Index, n.Hash())
			result.QuoteReturn = &n
		}
	}

	if updated.VLPSupply == 0 && updated.BaseAmount == 0 && updated.QuoteAmount == 0 {
		m.PutOrderTab(entities.OrderTab{TabIdx: updated.TabIdx})
		result.TabClosed = true
	} else {
		m.PutOrderTab(updated)
		result.Tab = &updated
	}

	rec := witness.NewRecord("remove_liquidity")
	rec.SetUint("tab_idx", tab.TabIdx)
	rec.SetUint("vlp_amount", in.VLPAmount)
	rec.SetUint("base_return", baseReturn)
	rec.SetUint("quote_return", quoteReturn)
	return result, rec, nil
}
