package state

import "sync"

// FundingState holds the per-synthetic-token funding bookkeeping applied
// by perpetual swaps and refreshed by the funding executor (spec §4.3.7).
type FundingState struct {
	mu sync.RWMutex

	currentFundingIdx uint64
	minFundingIdxs    map[uint32]uint64 // synthetic token -> min funding idx across open positions
	fundingRates      map[uint32][]int64
	fundingPrices     map[uint32][]uint64

	// batchMinFundingIdxs accumulates the minimum funding idx observed
	// across positions touched this batch, reset at finalization
	// (spec §5 "partially_filled_positions"-style per-batch snapshot).
	batchMinFundingIdxs map[uint32]uint64
}

func NewFundingState() *FundingState {
	return &FundingState{
		minFundingIdxs:      make(map[uint32]uint64),
		fundingRates:        make(map[uint32][]int64),
		fundingPrices:       make(map[uint32][]uint64),
		batchMinFundingIdxs: make(map[uint32]uint64),
	}
}

func (f *FundingState) CurrentFundingIdx() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.currentFundingIdx
}

// ApplyFundingUpdate appends one (rate, price) observation per synthetic
// token and advances the current funding idx (spec §4.3.7 "Funding
// Update").
func (f *FundingState) ApplyFundingUpdate(rates map[uint32]int64, prices map[uint32]uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentFundingIdx++
	for token, rate := range rates {
		f.fundingRates[token] = append(f.fundingRates[token], rate)
		f.fundingPrices[token] = append(f.fundingPrices[token], prices[token])
	}
}

// RatesSince returns the funding rates and prices for token starting at
// fromIdx (exclusive), used to accrue funding on a position whose
// LastFundingIdx is behind the current idx.
func (f *FundingState) RatesSince(token uint32, fromIdx uint64) (rates []int64, prices []uint64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	all := f.fundingRates[token]
	allPrices := f.fundingPrices[token]
	if fromIdx >= uint64(len(all)) {
		return nil, nil
	}
	return all[fromIdx:], allPrices[fromIdx:]
}

// NoteMinFundingIdx records the lowest LastFundingIdx touched this batch
// for a synthetic token, so finalization can advance the global floor
// used to bound how much funding history must be retained.
func (f *FundingState) NoteMinFundingIdx(token uint32, idx uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.batchMinFundingIdxs[token]
	if !ok || idx < cur {
		f.batchMinFundingIdxs[token] = idx
	}
}

// ResetBatchSnapshot commits the batch's observed minimum funding idxs
// into the persistent floor and clears the per-batch accumulator (spec
// §4.4 finalization).
func (f *FundingState) ResetBatchSnapshot() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for token, idx := range f.batchMinFundingIdxs {
		cur, ok := f.minFundingIdxs[token]
		if !ok || idx < cur {
			f.minFundingIdxs[token] = idx
		}
	}
	f.batchMinFundingIdxs = make(map[uint32]uint64)
}

func (f *FundingState) MinFundingIdx(token uint32) uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.minFundingIdxs[token]
}

// IndexPriceState holds the latest oracle index price per synthetic
// token plus the running min/max over every observation recorded so far
// (nothing resets them between batches), used by liquidation and
// impact-price checks (spec §4.3.6, §6.4 "latest_index_price").
type IndexPriceState struct {
	mu sync.RWMutex

	latest map[uint32]uint64
	min    map[uint32]uint64
	max    map[uint32]uint64
}

func NewIndexPriceState() *IndexPriceState {
	return &IndexPriceState{
		latest: make(map[uint32]uint64),
		min:    make(map[uint32]uint64),
		max:    make(map[uint32]uint64),
	}
}

// Update records a fresh index price observation for a synthetic token,
// and folds it into the running min/max.
func (s *IndexPriceState) Update(token uint32, price uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[token] = price
	if cur, ok := s.min[token]; !ok || price < cur {
		s.min[token] = price
	}
	if cur, ok := s.max[token]; !ok || price > cur {
		s.max[token] = price
	}
}

func (s *IndexPriceState) Latest(token uint32) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest[token]
}

func (s *IndexPriceState) MinMax(token uint32) (min, max uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.min[token], s.max[token]
}
