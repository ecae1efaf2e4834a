package matching

import (
	"testing"

	"github.com/hyperlicked/invisible-core/pkg/entities"
)

func testMarket() *Market {
	return &Market{
		MarketID:   1,
		OrderAsset: 1,
		PriceAsset: 2,
		Decimals:   entities.DecimalTable{1: 6, 2: 6},
	}
}

func newTestLimit(spent, received uint64) entities.Order {
	return entities.WrapSpot(&entities.LimitOrder{
		ExpirationTimestamp: 1_000_000,
		TokenSpent:          2,
		TokenReceived:       1,
		AmountSpent:         spent,
		AmountReceived:      received,
	})
}

func TestPriceTimePriorityFIFO(t *testing.T) {
	ob := NewOrderBook(testMarket())

	first := ob.ProcessOrder(&NewOrderRequest{Side: Ask, Price: 100, Qty: 10, Order: newTestLimit(0, 0), Timestamp: 1})
	ob.ProcessOrder(&NewOrderRequest{Side: Ask, Price: 100, Qty: 10, Order: newTestLimit(0, 0), Timestamp: 2})

	events := ob.ProcessOrder(&NewOrderRequest{Side: Bid, Price: 100, Qty: 5, Order: newTestLimit(0, 0), Timestamp: 3})

	var fills []Event
	for _, e := range events {
		if e.Kind == EvFilled {
			fills = append(fills, e)
		}
	}
	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	if fills[0].Fill.MakerID != first[0].OrderID {
		t.Fatalf("expected the earlier ask %d to fill first, got maker %d", first[0].OrderID, fills[0].Fill.MakerID)
	}
	if ob.GetBestAsk() != 100 {
		t.Fatalf("expected the ask level to remain at 100 after a partial fill")
	}
}

func TestCancelRemovesOwnOrder(t *testing.T) {
	ob := NewOrderBook(testMarket())
	events := ob.ProcessOrder(&NewOrderRequest{Side: Bid, Price: 50, Qty: 10, Order: newTestLimit(0, 0), Timestamp: 1})

	var id uint64
	for _, e := range events {
		if e.Kind == EvAccepted {
			id = e.OrderID
		}
	}
	if id == 0 {
		t.Fatalf("expected an accepted order id")
	}

	cancelled := ob.ProcessOrder(&CancelRequest{OrderID: id, Force: true})
	if cancelled[0].Kind != EvCancelled {
		t.Fatalf("expected cancellation to succeed, got %v", cancelled[0].Kind)
	}

	notFound := ob.ProcessOrder(&CancelRequest{OrderID: id, Force: true})
	if notFound[0].Kind != EvOrderNotFound {
		t.Fatalf("expected the second cancel to report not-found")
	}
}

func TestImpactPriceExhaustsBook(t *testing.T) {
	ob := NewOrderBook(testMarket())
	ob.ProcessOrder(&NewOrderRequest{Side: Ask, Price: 100, Qty: 10, Order: newTestLimit(0, 0), Timestamp: 1})
	ob.ProcessOrder(&NewOrderRequest{Side: Ask, Price: 110, Qty: 10, Order: newTestLimit(0, 0), Timestamp: 2})

	if p := ob.ImpactPrice(Ask, 15); p != 110 {
		t.Fatalf("expected impact price 110 for notional 15, got %d", p)
	}
	if p := ob.ImpactPrice(Ask, 1000); p != 0 {
		t.Fatalf("expected impact price 0 when notional exceeds book liquidity, got %d", p)
	}
}

func TestMarketOrderDropsUnfilledRemainder(t *testing.T) {
	ob := NewOrderBook(testMarket())
	ob.ProcessOrder(&NewOrderRequest{Side: Ask, Price: 100, Qty: 5, Order: newTestLimit(0, 0), Timestamp: 1})

	events := ob.ProcessOrder(&NewOrderRequest{Side: Bid, IsMarket: true, Qty: 10, Order: newTestLimit(0, 0), Timestamp: 2})
	filled := 0
	for _, e := range events {
		if e.Kind == EvFilled {
			filled += int(e.Fill.Qty)
		}
	}
	if filled != 5 {
		t.Fatalf("expected 5 matched from the only resting ask, got %d", filled)
	}
	if ob.GetBestBid() != 0 {
		t.Fatalf("expected the market order's unfilled remainder to be dropped, not rested")
	}
}

func TestAmendMovesOrderToBackOfNewLevel(t *testing.T) {
	ob := NewOrderBook(testMarket())
	events := ob.ProcessOrder(&NewOrderRequest{Side: Bid, Price: 90, Qty: 10, Order: newTestLimit(0, 0), Timestamp: 1})
	var id uint64
	for _, e := range events {
		if e.Kind == EvAccepted {
			id = e.OrderID
		}
	}

	ob.ProcessOrder(&AmendRequest{OrderID: id, NewPrice: 95})
	if ob.GetBestBid() != 95 {
		t.Fatalf("expected best bid to move to the amended price 95, got %d", ob.GetBestBid())
	}
}
