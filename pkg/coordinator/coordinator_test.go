package coordinator

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hyperlicked/invisible-core/pkg/config"
	"github.com/hyperlicked/invisible-core/pkg/crypto"
	"github.com/hyperlicked/invisible-core/pkg/entities"
	"github.com/hyperlicked/invisible-core/pkg/executor"
	"github.com/hyperlicked/invisible-core/pkg/state"
)

func newTestCoordinator(t *testing.T) (*Coordinator, context.CancelFunc) {
	t.Helper()
	m := state.NewModel(8, 8, 8)
	cfg := config.Default()
	metrics := NewMetrics(prometheus.NewRegistry())
	coord := New(m, cfg, metrics, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)
	return coord, cancel
}

func TestDepositThenFinalizeBatchFlushesLog(t *testing.T) {
	coord, cancel := newTestCoordinator(t)
	defer cancel()

	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	notes := []entities.Note{{Address: signer.Address(), Token: 1, Amount: 100, Blinding: big.NewInt(0)}}
	msg := executor.DepositSigningHash(1, 1, 100, notes)
	sig, err := signer.Sign(msg[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	reply := make(chan Result[*executor.DepositResult], 1)
	coord.Send(DepositMsg{
		Input: executor.DepositInput{
			DepositID: 1, Token: 1, Amount: 100, StarkKey: signer.Address(),
			Notes: notes, Signature: sig,
		},
		Reply: reply,
	})

	select {
	case res := <-reply:
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if len(res.Value.Indices) != 1 {
			t.Fatalf("expected 1 allocated index, got %d", len(res.Value.Indices))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for deposit reply")
	}

	finalizeReply := make(chan *FinalizeResult, 1)
	coord.Send(FinalizeBatch{Reply: finalizeReply})

	select {
	case result := <-finalizeReply:
		if result.Log.Len() != 1 {
			t.Fatalf("expected 1 record in the finalized batch, got %d", result.Log.Len())
		}
		if result.Header.NOutputNotes != 1 {
			t.Fatalf("expected 1 output note in the header, got %d", result.Header.NOutputNotes)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for finalize reply")
	}
}

func TestBlockUntilPrevFillFinishedSpinsThenFails(t *testing.T) {
	blocked := state.NewBlockedOrderIDs()
	blocked.TryBlock(7)

	cfg := config.Coordinator{SpinWaitStep: time.Millisecond, SpinWaitMaxAttempts: 3}
	start := time.Now()
	err := BlockUntilPrevFillFinished(blocked, 7, cfg)
	if err == nil {
		t.Fatalf("expected the still-blocked order id to time out")
	}
	if elapsed := time.Since(start); elapsed < 3*time.Millisecond {
		t.Fatalf("expected at least 3 spin steps, only waited %v", elapsed)
	}
}
