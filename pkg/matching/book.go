// Package matching implements the per-market limit order book: price-time
// priority matching, partial fills, amendments, cancellations, and
// impact-price queries (spec §4.2 C5).
package matching

import (
	"container/heap"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperlicked/invisible-core/pkg/entities"
)

// compactThreshold is how many dangling (tombstoned) queue entries a peek
// tolerates before the book runs a compaction pass over every price level
// (spec §4.2 "After every N (configurable, ~10) stale-index hits").
const compactThreshold = 10

// Fill is one match between a taker and a resting maker order.
type Fill struct {
	TakerID   uint64
	MakerID   uint64
	Price     uint64
	Qty       uint64
	Timestamp uint64
}

// EventKind names the structured outcomes the matching engine reports
// instead of returning an error (spec §7 "the matching engine never
// throws: it returns structured Success/Failed values").
type EventKind int8

const (
	EvAccepted EventKind = iota
	EvFilled
	EvCancelled
	EvValidationFailed
	EvOrderNotFound
)

// Event is one entry in the result vector of a ProcessOrder call.
type Event struct {
	Kind      EventKind
	OrderID   uint64
	Timestamp uint64
	Reason    string
	Fill      *Fill
}

// pendingFill is retained while a matched order's swap is still being
// executed by the outer transaction executor, so a failure can restore
// the order's remaining qty (spec §4.2 "Backing maps").
type pendingFill struct {
	Side    Side
	QtyLeft uint64
	UserID  common.Address
	Order   entities.Order
}

type bookEntry struct {
	OrderID   uint64
	Side      Side
	Price     uint64
	Timestamp uint64
	QtyLeft   uint64
	IsMarket  bool
	QuoteQty  bool // spot market-bid quote-qty mode
	UserID    common.Address
	Order     entities.Order
}

// OrderBook is one market's matching state: heaps for O(1) best-price
// peek, FIFO price-level queues for time priority within a price, and the
// backing maps named in spec §4.2.
type OrderBook struct {
	mu sync.Mutex

	market *Market
	seq    uint64

	bidHeap maxPriceHeap
	askHeap minPriceHeap

	bids map[uint64][]uint64 // price -> FIFO order ids (may contain tombstones)
	asks map[uint64][]uint64

	orders  map[uint64]*bookEntry // authoritative; absent == cancelled or fully filled
	pending map[uint64]pendingFill

	staleHits int
	lastPrice uint64
}

// NewOrderBook constructs an empty book for market.
func NewOrderBook(market *Market) *OrderBook {
	ob := &OrderBook{
		market:  market,
		bids:    make(map[uint64][]uint64),
		asks:    make(map[uint64][]uint64),
		orders:  make(map[uint64]*bookEntry),
		pending: make(map[uint64]pendingFill),
	}
	heap.Init(&ob.bidHeap)
	heap.Init(&ob.askHeap)
	return ob
}

// NewOrderRequest submits a new limit or market order (spec §4.2
// "NewLimitOrder").
type NewOrderRequest struct {
	Side      Side
	Price     uint64 // 0 for market orders
	Qty       uint64 // base qty; quote qty when QuoteQty is set
	QuoteQty  bool
	IsMarket  bool
	Order     entities.Order
	UserID    common.Address
	Timestamp uint64
}

// CancelRequest removes a resting order (spec §4.2 "CancelOrder").
type CancelRequest struct {
	OrderID   uint64
	UserID    common.Address
	Force     bool
	Timestamp uint64
}

// AmendRequest reprices a resting order (spec §4.2 "AmendOrder").
// NewExpiration is carried on the request but not applied: the amended
// order keeps its original expiration timestamp.
type AmendRequest struct {
	OrderID       uint64
	NewPrice      uint64
	NewExpiration uint64
	UserID        common.Address
	MatchOnly     bool
}

// ProcessOrder dispatches on the concrete request type (spec §4.2
// "process_order(req) dispatches on {NewLimitOrder, CancelOrder,
// AmendOrder}").
func (ob *OrderBook) ProcessOrder(req interface{}) []Event {
	switch r := req.(type) {
	case *NewOrderRequest:
		return ob.newLimitOrder(r)
	case *CancelRequest:
		return ob.cancelOrder(r)
	case *AmendRequest:
		return ob.amendOrder(r)
	default:
		return []Event{{Kind: EvValidationFailed, Reason: "unknown request type"}}
	}
}

func (ob *OrderBook) newLimitOrder(r *NewOrderRequest) []Event {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	vreq := &Request{
		OrderAsset: ob.market.OrderAsset,
		PriceAsset: ob.market.PriceAsset,
		Price:      r.Price,
		IsMarket:   r.IsMarket,
		Order:      r.Order,
		Timestamp:  r.Timestamp,
	}
	if err := ob.market.validate(vreq); err != nil {
		return []Event{{Kind: EvValidationFailed, Reason: err.Error()}}
	}

	orderID := ob.nextOrderID()
	r.Order.SetID(orderID)

	entry := &bookEntry{
		OrderID:   orderID,
		Side:      r.Side,
		Price:     r.Price,
		Timestamp: r.Timestamp,
		QtyLeft:   r.Qty,
		IsMarket:  r.IsMarket,
		QuoteQty:  r.QuoteQty,
		UserID:    r.UserID,
		Order:     r.Order,
	}

	events := []Event{{Kind: EvAccepted, OrderID: orderID, Timestamp: r.Timestamp}}
	fills := ob.matchIncoming(entry)
	for i := range fills {
		f := fills[i]
		events = append(events, Event{Kind: EvFilled, OrderID: orderID, Timestamp: r.Timestamp, Fill: &f})
		ob.pending[f.TakerID] = pendingFill{Side: entry.Side, QtyLeft: entry.QtyLeft, UserID: r.UserID, Order: r.Order}
		if maker, ok := ob.orders[f.MakerID]; ok {
			ob.pending[f.MakerID] = pendingFill{Side: maker.Side, QtyLeft: maker.QtyLeft, UserID: r.UserID, Order: maker.Order}
		}
	}

	if ob.restingQtyLeft(entry) && !entry.IsMarket {
		ob.insertResting(entry)
	}
	return events
}

// restingQtyLeft reports whether entry still carries matchable quantity
// once the matching loop has exhausted the opposite side — in quote-qty
// mode the threshold is one cent, not zero (spec §4.2.2 "Matching
// terminates when remaining quote-qty is below a cent").
func (ob *OrderBook) restingQtyLeft(entry *bookEntry) bool {
	if entry.QuoteQty {
		return entry.QtyLeft >= cent
	}
	return entry.QtyLeft > 0
}

func (ob *OrderBook) nextOrderID() uint64 {
	seq := atomic.AddUint64(&ob.seq, 1)
	return (seq << 16) | uint64(ob.market.MarketID)
}

// matchIncoming runs the recursive matching loop described in spec §4.2:
// peek the opposite queue top, drop expired/tombstoned entries, check the
// cross condition, match or rest.
func (ob *OrderBook) matchIncoming(entry *bookEntry) []Fill {
	var fills []Fill
	for ob.restingQtyLeft(entry) {
		maker, price, ok := ob.peekOpposite(entry.Side)
		if !ok {
			break
		}
		if maker.Order != nil && maker.Order.HasExpired(entry.Timestamp) {
			delete(ob.orders, maker.OrderID)
			continue
		}
		if !crosses(entry, price) {
			break
		}

		var matchQty uint64
		if entry.QuoteQty {
			base := deriveBaseQtyFromQuote(entry.QtyLeft, price, ob.market.Decimals[ob.market.OrderAsset], ob.market.Decimals[ob.market.PriceAsset])
			matchQty = minU64(base, maker.QtyLeft)
		} else {
			matchQty = minU64(entry.QtyLeft, maker.QtyLeft)
		}
		if matchQty == 0 {
			break
		}

		maker.QtyLeft -= matchQty
		if entry.QuoteQty {
			spent := quoteSpentFor(matchQty, price, ob.market.Decimals[ob.market.OrderAsset], ob.market.Decimals[ob.market.PriceAsset])
			entry.QtyLeft -= minU64(spent, entry.QtyLeft)
			entry.QtyLeft = roundQuoteQty(entry.Side, entry.QtyLeft)
		} else {
			entry.QtyLeft -= matchQty
		}

		fills = append(fills, Fill{TakerID: entry.OrderID, MakerID: maker.OrderID, Price: price, Qty: matchQty, Timestamp: entry.Timestamp})
		ob.lastPrice = price

		if maker.QtyLeft == 0 {
			delete(ob.orders, maker.OrderID)
		}
	}
	return fills
}

func crosses(entry *bookEntry, oppositePrice uint64) bool {
	if entry.IsMarket {
		return true
	}
	if entry.Side == Bid {
		return entry.Price >= oppositePrice
	}
	return entry.Price <= oppositePrice
}

// quoteSpentFor is the inverse of deriveBaseQtyFromQuote: quote = base *
// price / 10^(base_dec+price_dec-quote_dec).
func quoteSpentFor(baseQty, price uint64, baseDec, quoteDec uint8) uint64 {
	exp := int64(baseDec) + PriceDecimals - int64(quoteDec)
	scale := pow10(exp)
	if scale.Sign() == 0 {
		return 0
	}
	num := mulU64(baseQty, price)
	return num.Div(num, scale).Uint64()
}

func mulU64(a, b uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
}

// peekOpposite returns the best resting order on the given side's
// opposite queue, lazily dropping tombstoned (cancelled/filled) entries
// and triggering compaction once staleHits crosses the threshold (spec §9
// "Cyclic graph in matching-engine queues").
func (ob *OrderBook) peekOpposite(side Side) (*bookEntry, uint64, bool) {
	oppositeSide := side.Opposite()
	for {
		price, ok := ob.bestPrice(oppositeSide)
		if !ok {
			return nil, 0, false
		}
		for {
			ids := ob.levelIDs(oppositeSide, price)
			if len(ids) == 0 {
				break
			}
			id := ids[0]
			if e, live := ob.orders[id]; live {
				return e, price, true
			}
			ob.setLevelIDs(oppositeSide, price, ids[1:])
			ob.staleHits++
		}
		ob.removeEmptyLevel(oppositeSide, price)
		if ob.staleHits >= compactThreshold {
			ob.compact()
		}
	}
}

func (ob *OrderBook) bestPrice(side Side) (uint64, bool) {
	if side == Bid {
		return ob.bidHeap.Peek()
	}
	return ob.askHeap.Peek()
}

// levelIDs and setLevelIDs are the sole accessors for a price level's FIFO
// id queue, so every mutation is written back to the owning map (a slice
// returned by value must never be mutated through a local alias).
func (ob *OrderBook) levelIDs(side Side, price uint64) []uint64 {
	if side == Bid {
		return ob.bids[price]
	}
	return ob.asks[price]
}

func (ob *OrderBook) setLevelIDs(side Side, price uint64, ids []uint64) {
	if side == Bid {
		if len(ids) == 0 {
			delete(ob.bids, price)
			return
		}
		ob.bids[price] = ids
		return
	}
	if len(ids) == 0 {
		delete(ob.asks, price)
		return
	}
	ob.asks[price] = ids
}

func (ob *OrderBook) removeEmptyLevel(side Side, price uint64) {
	if side == Bid {
		delete(ob.bids, price)
		removeFromHeap(&ob.bidHeap, price)
		return
	}
	delete(ob.asks, price)
	removeFromHeapMin(&ob.askHeap, price)
}

func removeFromHeap(h *maxPriceHeap, price uint64) {
	for i := 0; i < h.Len(); i++ {
		if (*h)[i] == price {
			heap.Remove(h, i)
			return
		}
	}
}

func removeFromHeapMin(h *minPriceHeap, price uint64) {
	for i := 0; i < h.Len(); i++ {
		if (*h)[i] == price {
			heap.Remove(h, i)
			return
		}
	}
}

// compact drops every tombstoned id from every price level in one sweep.
func (ob *OrderBook) compact() {
	for price, ids := range ob.bids {
		ob.bids[price] = ob.filterLive(ids)
		if len(ob.bids[price]) == 0 {
			delete(ob.bids, price)
			removeFromHeap(&ob.bidHeap, price)
		}
	}
	for price, ids := range ob.asks {
		ob.asks[price] = ob.filterLive(ids)
		if len(ob.asks[price]) == 0 {
			delete(ob.asks, price)
			removeFromHeapMin(&ob.askHeap, price)
		}
	}
	ob.staleHits = 0
}

func (ob *OrderBook) filterLive(ids []uint64) []uint64 {
	out := ids[:0]
	for _, id := range ids {
		if _, live := ob.orders[id]; live {
			out = append(out, id)
		}
	}
	return out
}

func (ob *OrderBook) insertResting(entry *bookEntry) {
	ob.orders[entry.OrderID] = entry
	if entry.Side == Bid {
		if _, exists := ob.bids[entry.Price]; !exists {
			heap.Push(&ob.bidHeap, entry.Price)
		}
		ob.bids[entry.Price] = append(ob.bids[entry.Price], entry.OrderID)
		return
	}
	if _, exists := ob.asks[entry.Price]; !exists {
		heap.Push(&ob.askHeap, entry.Price)
	}
	ob.asks[entry.Price] = append(ob.asks[entry.Price], entry.OrderID)
}

func (ob *OrderBook) cancelOrder(r *CancelRequest) []Event {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	entry, ok := ob.orders[r.OrderID]
	if !ok {
		return []Event{{Kind: EvOrderNotFound, OrderID: r.OrderID}}
	}
	if !r.Force && entry.UserID != r.UserID {
		return []Event{{Kind: EvValidationFailed, OrderID: r.OrderID, Reason: "only the owner may cancel"}}
	}
	delete(ob.orders, r.OrderID)
	return []Event{{Kind: EvCancelled, OrderID: r.OrderID, Timestamp: r.Timestamp}}
}

// amendOrder implements spec §4.2 "AmendOrder". match_only attempts an
// immediate cross at the new price without mutating the stored order;
// otherwise it rewrites the order's non-fixed amount via the single
// deriveAmendedAmount helper (spec §9 resolves the source's bid/ask
// asymmetric derivation), applies it to the order itself via
// SetAmendedAmount, and reinserts it at the back of the new price level
// with its timestamp advanced by one.
func (ob *OrderBook) amendOrder(r *AmendRequest) []Event {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	entry, ok := ob.orders[r.OrderID]
	if !ok {
		return []Event{{Kind: EvOrderNotFound, OrderID: r.OrderID}}
	}

	if r.MatchOnly {
		probe := &bookEntry{
			OrderID: entry.OrderID, Side: entry.Side, Price: r.NewPrice,
			Timestamp: entry.Timestamp, QtyLeft: entry.QtyLeft, QuoteQty: entry.QuoteQty,
			Order: entry.Order,
		}
		fills := ob.matchIncoming(probe)
		events := make([]Event, 0, len(fills))
		for i := range fills {
			f := fills[i]
			events = append(events, Event{Kind: EvFilled, OrderID: entry.OrderID, Fill: &f})
		}
		return events
	}

	delete(ob.orders, r.OrderID)
	ob.removeIDFromLevelMap(entry.Side, entry.Price, entry.OrderID)

	amended := deriveAmendedAmount(entry.QtyLeft, r.NewPrice, PriceDecimals, PriceDecimals)
	entry.Order.SetAmendedAmount(amended)

	entry.Price = r.NewPrice
	entry.Timestamp = entry.Timestamp + 1 // reprices to the back of the new level
	ob.insertResting(entry)
	return []Event{{Kind: EvAccepted, OrderID: entry.OrderID}}
}

func (ob *OrderBook) removeIDFromLevelMap(side Side, price uint64, id uint64) {
	ids := ob.levelIDs(side, price)
	for i, v := range ids {
		if v == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	ob.setLevelIDs(side, price, ids)
}

// RestorePendingOrder restores qty to an order whose swap failed
// downstream (spec §4.2 "RestorePendingOrder").
func (ob *OrderBook) RestorePendingOrder(orderID uint64, qty uint64) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if entry, ok := ob.orders[orderID]; ok {
		entry.QtyLeft += qty
		return
	}
	if pf, ok := ob.pending[orderID]; ok {
		entry := &bookEntry{OrderID: orderID, Side: pf.Side, QtyLeft: pf.QtyLeft + qty, UserID: pf.UserID, Order: pf.Order}
		ob.insertResting(entry)
		delete(ob.pending, orderID)
	}
}

// ImpactPrice walks the given side from best to worst accumulating
// qty_left until it covers notional, returning the last price seen, or 0
// if the book cannot cover it (spec §4.2 "ImpactPrice").
func (ob *OrderBook) ImpactPrice(side Side, notional uint64) uint64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	levels := ob.bids
	if side == Ask {
		levels = ob.asks
	}

	var acc uint64
	var last uint64
	prices := ob.sortedPrices(side)
	for _, price := range prices {
		ids := levels[price]
		for _, id := range ids {
			e, live := ob.orders[id]
			if !live {
				continue
			}
			acc += e.QtyLeft
			last = price
			if acc >= notional {
				return last
			}
		}
	}
	return 0
}

func (ob *OrderBook) sortedPrices(side Side) []uint64 {
	var src []uint64
	if side == Bid {
		src = append(src, []uint64(ob.bidHeap)...)
	} else {
		src = append(src, []uint64(ob.askHeap)...)
	}
	// selection sort is fine: heaps are small (one entry per distinct price level)
	for i := 0; i < len(src); i++ {
		best := i
		for j := i + 1; j < len(src); j++ {
			if side == Bid && src[j] > src[best] {
				best = j
			}
			if side == Ask && src[j] < src[best] {
				best = j
			}
		}
		src[i], src[best] = src[best], src[i]
	}
	return src
}

// GetBestBid returns the highest resting bid price, or 0 if the book has
// no bids.
func (ob *OrderBook) GetBestBid() uint64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	_, p, _ := ob.peekOpposite(Ask)
	return p
}

// GetBestAsk returns the lowest resting ask price, or 0 if the book has
// no asks.
func (ob *OrderBook) GetBestAsk() uint64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	_, p, _ := ob.peekOpposite(Bid)
	return p
}

// GetMidPrice averages the best bid and best ask, or 0 if the book is
// empty or one-sided. Used as the mark-price fallback when an oracle
// index price is unavailable.
func (ob *OrderBook) GetMidPrice() uint64 {
	bid := ob.GetBestBid()
	ask := ob.GetBestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// GetLastPrice returns the price of the most recent fill, 0 if none yet.
func (ob *OrderBook) GetLastPrice() uint64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.lastPrice
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
