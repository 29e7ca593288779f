package table

import (
	"context"

	"go.uber.org/zap"

	"cardtable/server/game"
)

// settle pushes queued settlements to the wallet outside the table lock.
// Failures stay queued and are retried after SettleRetry; the wallet
// deduplicates by hand id, so a retry never applies a hand twice.
func (t *Table) settle(ctx context.Context) {
	t.settleMu.Lock()
	defer t.settleMu.Unlock()

	t.mu.Lock()
	batch := t.pending
	t.pending = nil
	t.inflight = len(batch)
	t.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	var failed []game.Settlement
	for _, s := range batch {
		if len(s.Changes) == 0 {
			continue
		}
		if err := t.reg.wallet.Settle(ctx, s); err != nil {
			t.log.Warn("settlement failed, will retry", zap.String("hand", s.HandID), zap.Error(err))
			failed = append(failed, s)
			continue
		}
		t.log.Debug("hand settled", zap.String("hand", s.HandID), zap.Int("players", len(s.Changes)))
	}
	t.mu.Lock()
	t.inflight = 0
	if len(failed) == 0 {
		t.mu.Unlock()
		return
	}
	t.pending = append(failed, t.pending...)
	arm := !t.retry
	t.retry = true
	t.mu.Unlock()
	if arm {
		t.reg.cfg.AfterFunc(t.reg.cfg.SettleRetry, t.retrySettle)
	}
}

func (t *Table) retrySettle() {
	t.mu.Lock()
	t.retry = false
	t.mu.Unlock()
	t.settle(context.Background())
	t.reapIfEmpty()
}

// Pending reports how many settlements of tableID are waiting for the
// wallet.
func (r *Registry) Pending(tableID string) int {
	t := r.table(tableID)
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
