// Package coordinator owns the shared state.Model and witness.Log and
// exposes them to the outside world only through a typed message channel,
// so every mutation is serialized through one dispatch loop (spec §5, §7).
package coordinator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperlicked/invisible-core/pkg/config"
	"github.com/hyperlicked/invisible-core/pkg/crypto"
	"github.com/hyperlicked/invisible-core/pkg/executor"
	"github.com/hyperlicked/invisible-core/pkg/state"
	"github.com/hyperlicked/invisible-core/pkg/storage"
	"github.com/hyperlicked/invisible-core/pkg/witness"
)

// Message is the envelope every typed request implements: it knows how to
// run itself against the coordinator's model and deliver its own result.
type Message interface {
	dispatch(c *Coordinator)
}

// Coordinator serializes every mutating operation through one inbox
// channel. Workers (RPC handlers, batch drivers) send a Message and block
// on its own response channel; the dispatch loop runs one message at a
// time, appending a witness record on success and rolling back state.Model
// on a Validation or Consistency error (spec §7).
type Coordinator struct {
	Model *state.Model
	Log   *witness.Log
	Hub   *witness.Hub
	Cfg   config.Config
	Store *storage.Store

	height  uint64
	metrics *Metrics
	log     *zap.Logger
	inbox   chan Message

	// initNotesRoot/initPerpRoot are the notes/positions tree roots as of
	// the start of the batch currently accumulating in Log, captured right
	// after the previous FinalizeBatch's ResetBatch (spec §4.4, §6.2
	// "init_state_root"/"init_perp_state_root").
	initNotesRoot crypto.Hash
	initPerpRoot  crypto.Hash
}

func New(m *state.Model, cfg config.Config, metrics *Metrics, hub *witness.Hub, log *zap.Logger) *Coordinator {
	return &Coordinator{
		Model:         m,
		Log:           witness.NewLog(),
		Hub:           hub,
		Cfg:           cfg,
		metrics:       metrics,
		log:           log,
		inbox:         make(chan Message, 256),
		initNotesRoot: m.Notes.Root(),
		initPerpRoot:  m.Positions.Root(),
	}
}

// WithStore attaches a persistence layer; FinalizeBatch writes the flushed
// log to it under the next sequential batch height, resuming from the
// store's last committed height if one is found.
func (c *Coordinator) WithStore(store *storage.Store) *Coordinator {
	c.Store = store
	if height, ok, err := store.CommittedHeight(); err == nil && ok {
		c.height = height + 1
	}
	return c
}

// Send enqueues msg for processing; msg's own response channel carries the
// result back to the caller.
func (c *Coordinator) Send(msg Message) { c.inbox <- msg }

// Run drains the inbox until ctx is cancelled, processing exactly one
// message at a time.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.inbox:
			msg.dispatch(c)
		}
	}
}

func (c *Coordinator) appendRecord(rec *witness.Record) {
	if rec == nil {
		return
	}
	c.Log.Append(rec)
	if c.Hub != nil {
		c.Hub.Broadcast(rec)
	}
}

func (c *Coordinator) recordOutcome(messageType string, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.Processed.WithLabelValues(messageType).Inc()
	if err == nil {
		return
	}
	if execErr, ok := err.(*executor.Error); ok {
		c.metrics.Errors.WithLabelValues(messageType, execErr.Kind.String()).Inc()
	} else {
		c.metrics.Errors.WithLabelValues(messageType, "unknown").Inc()
	}
}

// FinalizeResult is what FinalizeBatch hands back: the flushed witness log
// plus the packed §6.2 header describing the batch's effect on global
// state, the pair the on-chain proof generator consumes together (spec §1,
// §6.2).
type FinalizeResult struct {
	Header witness.GlobalDexState
	Log    *witness.Log
}

// FinalizeBatch snapshots the notes and positions tree roots (the order-tabs
// root is not part of the header) and the batch's deposit/
// withdrawal/note/position counts into a witness.GlobalDexState header,
// clears every per-batch side map, hands back the accumulated witness log
// alongside that header, and starts a fresh log (spec §4.4).
type FinalizeBatch struct {
	Reply chan *FinalizeResult
}

func (msg FinalizeBatch) dispatch(c *Coordinator) {
	out := c.Log
	height := c.height
	c.height++

	header := c.buildHeader(out)

	c.Model.ResetBatch()
	c.Log = witness.NewLog()
	c.initNotesRoot = header.FinalStateRoot
	c.initPerpRoot = header.FinalPerpStateRoot

	if c.Store != nil {
		if err := c.Store.SaveBatchLog(height, out); err != nil && c.log != nil {
			c.log.Error("batch_persist_failed", zap.Uint64("height", height), zap.Error(err))
		}
		if err := c.Store.SaveSnapshot(fmt.Sprintf("dex_state:%d", height), header); err != nil && c.log != nil {
			c.log.Error("dex_state_persist_failed", zap.Uint64("height", height), zap.Error(err))
		}
	}
	if c.log != nil {
		c.log.Info("batch_finalized", zap.String("batch_id", out.ID), zap.Uint64("height", height), zap.Int("records", out.Len()))
	}
	msg.Reply <- &FinalizeResult{Header: header, Log: out}
}

// buildHeader computes the §6.2 global dex state for the batch about to be
// finalized. It must run before Model.ResetBatch clears the updated-leaf
// log, and it reads the live tree roots after every record in out has
// already been applied, so FinalStateRoot/FinalPerpStateRoot reflect the
// batch in full.
func (c *Coordinator) buildHeader(out *witness.Log) witness.GlobalDexState {
	var nDeposits, nWithdrawals uint32
	for _, rec := range out.Records {
		switch rec.TransactionType {
		case "deposit":
			nDeposits++
		case "withdrawal":
			nWithdrawals++
		}
	}

	var nOutputNotes, nZeroNotes uint32
	var nOutputPositions, nEmptyPositions uint32
	for treeName, leaves := range c.Model.UpdatedLeaves() {
		for _, h := range leaves {
			switch treeName {
			case "notes":
				if h.IsZero() {
					nZeroNotes++
				} else {
					nOutputNotes++
				}
			case "positions":
				if h.IsZero() {
					nEmptyPositions++
				} else {
					nOutputPositions++
				}
			}
		}
	}

	return witness.GlobalDexState{
		ConfigCode: c.Cfg.Header.ConfigCode,

		InitStateRoot:      c.initNotesRoot,
		FinalStateRoot:     c.Model.Notes.Root(),
		InitPerpStateRoot:  c.initPerpRoot,
		FinalPerpStateRoot: c.Model.Positions.Root(),

		StateTreeDepth:            c.Model.Notes.Depth(),
		PerpTreeDepth:             c.Model.Positions.Depth(),
		GlobalExpirationTimestamp: uint32(time.Now().Add(c.Cfg.Header.ExpirationWindow).Unix()),

		NDeposits:        nDeposits,
		NWithdrawals:     nWithdrawals,
		NOutputPositions: nOutputPositions,
		NEmptyPositions:  nEmptyPositions,
		NOutputNotes:     nOutputNotes,
		NZeroNotes:       nZeroNotes,
	}
}

// Rollback discards touched-leaf mutations captured in Info without
// touching the witness log (used by a caller that decided, after the fact
// and outside the coordinator's own error path, that a transaction it
// already applied must be undone).
type Rollback struct {
	Info  *RollbackInfo
	Reply chan struct{}
}

func (msg Rollback) dispatch(c *Coordinator) {
	msg.Info.Restore(c.Model)
	close(msg.Reply)
}

type DepositMsg struct {
	Input executor.DepositInput
	Reply chan Result[*executor.DepositResult]
}

func (msg DepositMsg) dispatch(c *Coordinator) {
	res, rec, err := executor.Deposit(c.Model, msg.Input)
	c.recordOutcome("deposit", err)
	if err == nil {
		c.appendRecord(rec)
	}
	msg.Reply <- Result[*executor.DepositResult]{Value: res, Err: err}
}

type WithdrawalMsg struct {
	Input executor.WithdrawalInput
	Reply chan Result[*executor.WithdrawalResult]
}

func (msg WithdrawalMsg) dispatch(c *Coordinator) {
	res, rec, err := executor.Withdrawal(c.Model, msg.Input)
	c.recordOutcome("withdrawal", err)
	if err == nil {
		c.appendRecord(rec)
	}
	msg.Reply <- Result[*executor.WithdrawalResult]{Value: res, Err: err}
}

type SpotSwapMsg struct {
	Input executor.SpotSwapInput
	Reply chan Result[*executor.SpotSwapResult]
}

func (msg SpotSwapMsg) dispatch(c *Coordinator) {
	blocked := c.claimBoth(msg.Input.A.Order.OrderID, msg.Input.B.Order.OrderID)
	defer c.releaseBoth(msg.Input.A.Order.OrderID, msg.Input.B.Order.OrderID)
	if blocked != nil {
		c.recordOutcome("spot_swap", blocked)
		msg.Reply <- Result[*executor.SpotSwapResult]{Err: blocked}
		return
	}
	res, rec, err := executor.SpotSwap(c.Model, msg.Input)
	c.recordOutcome("spot_swap", err)
	if err == nil {
		c.appendRecord(rec)
	}
	msg.Reply <- Result[*executor.SpotSwapResult]{Value: res, Err: err}
}

type PerpSwapMsg struct {
	Input executor.PerpSwapInput
	Reply chan Result[*executor.PerpSwapResult]
}

func (msg PerpSwapMsg) dispatch(c *Coordinator) {
	blocked := c.claimBoth(msg.Input.A.Order.OrderID, msg.Input.B.Order.OrderID)
	defer c.releaseBoth(msg.Input.A.Order.OrderID, msg.Input.B.Order.OrderID)
	if blocked != nil {
		c.recordOutcome("perp_swap", blocked)
		msg.Reply <- Result[*executor.PerpSwapResult]{Err: blocked}
		return
	}

	res, rec, err := executor.PerpSwap(c.Model, msg.Input)
	c.recordOutcome("perp_swap", err)
	if err == nil {
		c.appendRecord(rec)
	}
	msg.Reply <- Result[*executor.PerpSwapResult]{Value: res, Err: err}
}

type MarginChangeMsg struct {
	Input executor.MarginChangeInput
	Reply chan Result[*executor.MarginChangeResult]
}

func (msg MarginChangeMsg) dispatch(c *Coordinator) {
	res, rec, err := executor.MarginChange(c.Model, msg.Input)
	c.recordOutcome("margin_change", err)
	if err == nil {
		c.appendRecord(rec)
	}
	msg.Reply <- Result[*executor.MarginChangeResult]{Value: res, Err: err}
}

type SplitNotesMsg struct {
	Input executor.SplitNotesInput
	Reply chan Result[*executor.SplitNotesResult]
}

func (msg SplitNotesMsg) dispatch(c *Coordinator) {
	res, rec, err := executor.SplitNotes(c.Model, msg.Input)
	c.recordOutcome("note_split", err)
	if err == nil {
		c.appendRecord(rec)
	}
	msg.Reply <- Result[*executor.SplitNotesResult]{Value: res, Err: err}
}

type OpenTabMsg struct {
	Input executor.OpenTabInput
	Reply chan Result[*executor.OpenTabResult]
}

func (msg OpenTabMsg) dispatch(c *Coordinator) {
	res, rec, err := executor.OpenTab(c.Model, msg.Input)
	c.recordOutcome("open_order_tab", err)
	if err == nil {
		c.appendRecord(rec)
	}
	msg.Reply <- Result[*executor.OpenTabResult]{Value: res, Err: err}
}

type ModifyTabMsg struct {
	Input executor.ModifyTabInput
	Reply chan Result[*executor.ModifyTabResult]
}

func (msg ModifyTabMsg) dispatch(c *Coordinator) {
	res, rec, err := executor.ModifyTab(c.Model, msg.Input)
	c.recordOutcome("modify_order_tab", err)
	if err == nil {
		c.appendRecord(rec)
	}
	msg.Reply <- Result[*executor.ModifyTabResult]{Value: res, Err: err}
}

type RegisterMMMsg struct {
	Input executor.RegisterMMInput
	Reply chan Result[*executor.RegisterMMResult]
}

func (msg RegisterMMMsg) dispatch(c *Coordinator) {
	res, rec, err := executor.RegisterMM(c.Model, msg.Input)
	c.recordOutcome("onchain_register_mm", err)
	if err == nil {
		c.appendRecord(rec)
	}
	msg.Reply <- Result[*executor.RegisterMMResult]{Value: res, Err: err}
}

type AddLiquidityMsg struct {
	Input executor.AddLiquidityInput
	Reply chan Result[*executor.AddLiquidityResult]
}

func (msg AddLiquidityMsg) dispatch(c *Coordinator) {
	res, rec, err := executor.AddLiquidity(c.Model, msg.Input)
	c.recordOutcome("add_liquidity", err)
	if err == nil {
		c.appendRecord(rec)
	}
	msg.Reply <- Result[*executor.AddLiquidityResult]{Value: res, Err: err}
}

type RemoveLiquidityMsg struct {
	Input executor.RemoveLiquidityInput
	Reply chan Result[*executor.RemoveLiquidityResult]
}

func (msg RemoveLiquidityMsg) dispatch(c *Coordinator) {
	res, rec, err := executor.RemoveLiquidity(c.Model, msg.Input)
	c.recordOutcome("remove_liquidity", err)
	if err == nil {
		c.appendRecord(rec)
	}
	msg.Reply <- Result[*executor.RemoveLiquidityResult]{Value: res, Err: err}
}

type FundingUpdateMsg struct {
	Input executor.FundingUpdateInput
	Reply chan Result[*executor.FundingUpdateResult]
}

func (msg FundingUpdateMsg) dispatch(c *Coordinator) {
	res, rec, err := executor.PerMinuteFundingUpdate(c.Model, msg.Input)
	c.recordOutcome("funding_update", err)
	if err == nil {
		c.appendRecord(rec)
	}
	msg.Reply <- Result[*executor.FundingUpdateResult]{Value: res, Err: err}
}

type IndexPriceUpdateMsg struct {
	Input executor.IndexPriceUpdateInput
	Reply chan Result[struct{}]
}

func (msg IndexPriceUpdateMsg) dispatch(c *Coordinator) {
	rec, err := executor.IndexPriceUpdate(c.Model, msg.Input)
	c.recordOutcome("index_price_update", err)
	if err == nil {
		c.appendRecord(rec)
	}
	msg.Reply <- Result[struct{}]{Err: err}
}

// Result carries an executor's output or error back over a message's Reply
// channel — the "oneshot channel" every coordinator message returns on
// (spec §2 C7).
type Result[T any] struct {
	Value T
	Err   error
}

// claimBoth blocks both legs of a crossing swap (spot or perp) in a fixed
// order (lower order id first) to avoid a two-worker deadlock on crossing
// orders.
func (c *Coordinator) claimBoth(a, b uint64) error {
	first, second := a, b
	if first > second {
		first, second = second, first
	}
	if err := BlockUntilPrevFillFinished(c.Model.BlockedOrders, first, c.Cfg.Coordinator); err != nil {
		return err
	}
	if err := BlockUntilPrevFillFinished(c.Model.BlockedOrders, second, c.Cfg.Coordinator); err != nil {
		c.Model.BlockedOrders.Unblock(first)
		return err
	}
	return nil
}

func (c *Coordinator) releaseBoth(a, b uint64) {
	c.Model.BlockedOrders.Unblock(a)
	c.Model.BlockedOrders.Unblock(b)
}
