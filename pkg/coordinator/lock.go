package coordinator

import (
	"time"

	"github.com/hyperlicked/invisible-core/pkg/config"
	"github.com/hyperlicked/invisible-core/pkg/state"
)

// ErrOrderBlocked is returned by BlockUntilPrevFillFinished when the spin
// bound is exhausted while another worker still holds order_id (spec §5
// "block_until_prev_fill_finished", §7 Coordination kind).
var ErrOrderBlocked = blockedErr{}

type blockedErr struct{}

func (blockedErr) Error() string { return "order id still blocked by a concurrent fill" }

// BlockUntilPrevFillFinished claims exclusive access to orderID, spinning in
// fixed steps up to cfg.SpinWaitMaxAttempts times if another worker
// currently holds it (spec §5). On success the caller owns orderID's slot
// and must call blocked.Unblock(orderID) when done, win or lose.
func BlockUntilPrevFillFinished(blocked *state.BlockedOrderIDs, orderID uint64, cfg config.Coordinator) error {
	for attempt := 0; ; attempt++ {
		if blocked.TryBlock(orderID) {
			return nil
		}
		if attempt >= cfg.SpinWaitMaxAttempts {
			return ErrOrderBlocked
		}
		time.Sleep(cfg.SpinWaitStep)
	}
}
