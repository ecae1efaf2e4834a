package matching

import (
	"fmt"

	"github.com/hyperlicked/invisible-core/pkg/entities"
)

// Side is which side of the book an order rests on. For spot books, Bid
// spends the price asset to receive the order asset; for perp books, Bid
// corresponds to a Long order (spec §4.2 "(order_id, price, timestamp,
// side)").
type Side int8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// Market is the per-book identity and decimal configuration the matching
// engine validates incoming requests against (spec §4.2 "Per-market
// state").
type Market struct {
	MarketID   uint32
	OrderAsset uint32
	PriceAsset uint32
	Decimals   entities.DecimalTable
}

// Request is the subset of a NewOrderRequest the validator cares about.
type Request struct {
	OrderAsset uint32
	PriceAsset uint32
	Price      uint64
	IsMarket   bool
	Order      entities.Order
	Timestamp  uint64
}

// validate checks a request against spec §4.2.1. It never panics; every
// failure is a returned error so the matching engine can remain
// exception-free (spec §7 "the matching engine never throws").
func (m *Market) validate(req *Request) error {
	if req.Price == 0 && !req.IsMarket {
		return &ValidationError{Reason: "price must be positive"}
	}
	if req.OrderAsset != m.OrderAsset || req.PriceAsset != m.PriceAsset {
		return &ValidationError{Reason: "order/price asset does not match book"}
	}
	if req.Order.HasExpired(req.Timestamp) {
		return &ValidationError{Reason: "order has expired"}
	}
	return nil
}

// ValidationError is the matching engine's sole error kind: every rejection
// is a validation failure carrying a human-readable reason (spec §4.2
// "emit ValidationFailed(reason)").
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}
