// Package scheduler runs the per-chain claim/broadcast/reschedule
// loop: poll the accelerator (falling back to the store) for due work,
// lease it, hand it to the broadcaster, and act on the outcome.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/warp-contracts/tempo-watchtower/src/accelerator"
	"github.com/warp-contracts/tempo-watchtower/src/broadcaster"
	"github.com/warp-contracts/tempo-watchtower/src/model"
	"github.com/warp-contracts/tempo-watchtower/src/rpcfleet"
	"github.com/warp-contracts/tempo-watchtower/src/store"
	"github.com/warp-contracts/tempo-watchtower/src/utils/config"
	"github.com/warp-contracts/tempo-watchtower/src/utils/task"

	"github.com/robfig/cron"
	"github.com/rs/xid"
)

// NonceObserver is the watcher capability the scheduler uses to confirm
// a nonce-too-low claim before marking a row stale.
type NonceObserver interface {
	ObservedNonce(chainID uint64, sender, nonceKey []byte) (uint64, bool)
}

// Scheduler owns one background loop per configured chain plus
// periodic reconciliation jobs: stuck-broadcast recovery and a full
// store -> accelerator index rebuild.
type Scheduler struct {
	*task.Task

	cfg    *config.Config
	store  *store.Store
	hints  *accelerator.Accelerator
	accel  *accelerator.WriteBehind
	fleet  *rpcfleet.Fleet
	nonces NonceObserver
	cron   *cron.Cron
}

func New(cfg *config.Config, st *store.Store, hints *accelerator.Accelerator, accel *accelerator.WriteBehind, fleet *rpcfleet.Fleet, nonces NonceObserver) *Scheduler {
	self := &Scheduler{
		cfg:    cfg,
		store:  st,
		hints:  hints,
		accel:  accel,
		fleet:  fleet,
		nonces: nonces,
		cron:   cron.New(),
	}

	self.Task = task.NewTask(cfg, "scheduler").
		WithOnBeforeStart(func() error {
			self.reconcile()
			self.cron.AddFunc("@every 1m", self.recoverStuckBroadcasts)
			self.cron.AddFunc("@every 5m", self.reconcile)
			self.cron.Start()
			return nil
		}).
		WithOnStop(func() {
			self.cron.Stop()
		})

	for _, chainID := range fleet.ChainIDs() {
		chainID := chainID
		self.Task.WithSubtask(self.newChainLoop(chainID))
	}

	return self
}

func (self *Scheduler) newChainLoop(chainID uint64) *task.Task {
	leaseOwner := fmt.Sprintf("scheduler:%d:%s", chainID, xid.New().String())
	maxConcurrency := self.cfg.Scheduler.MaxConcurrency

	t := task.NewTask(self.cfg, fmt.Sprintf("scheduler-chain-%d", chainID)).
		WithWorkerPool(maxConcurrency, maxConcurrency*2)

	interval := time.Duration(self.cfg.Scheduler.PollIntervalMs) * time.Millisecond
	t.WithRepeatedSubtaskFunc(interval, func() (repeat bool, err error) {
		claimed := self.tick(t, chainID, leaseOwner)
		// A full batch means more due work is probably waiting.
		return claimed >= maxConcurrency, nil
	})

	return t
}

// tick claims due work for chainID and dispatches each claimed row to
// the worker pool. Accelerator hints are tried first, hash by hash;
// the authoritative store scan picks up whatever the index missed.
// The tick never blocks waiting for broadcasts to finish. The worker
// pool runs at most MaxConcurrency broadcasts at once and queues the
// rest without bound; each tick claims up to MaxConcurrency rows
// whatever the number of broadcasts still queued or running.
func (self *Scheduler) tick(t *task.Task, chainID uint64, leaseOwner string) (claimed int) {
	now := time.Now()
	leaseUntil := now.Add(time.Duration(self.cfg.Scheduler.LeaseTtlSeconds) * time.Second)

	limit := self.cfg.Scheduler.MaxConcurrency
	leased := make([]model.TxRecord, 0, limit)

	due, err := self.hints.FetchDue(t.Ctx, chainID, now, limit)
	if err != nil {
		t.Log.WithError(err).Debug("Failed to fetch due hints from accelerator")
	}
	for _, hint := range due {
		txHash, err := accelerator.ParseHashHex(hint)
		if err != nil {
			continue
		}
		// The hint is consumed either way; a row whose claim lost the
		// race is re-indexed by whoever reschedules it, and a terminal
		// row needs no index entry.
		self.accel.Evict(chainID, txHash)

		record, err := self.store.ClaimByHash(t.Ctx, chainID, txHash, now, leaseOwner, leaseUntil)
		if err != nil {
			t.Log.WithError(err).Warn("Failed to claim hinted transaction")
			continue
		}
		if record != nil {
			leased = append(leased, *record)
		}
	}

	if remaining := limit - len(leased); remaining > 0 {
		rows, err := self.store.ClaimDue(t.Ctx, chainID, now, leaseOwner, leaseUntil, remaining)
		if err != nil {
			t.Log.WithError(err).Warn("Failed to claim due transactions")
		} else {
			leased = append(leased, rows...)
		}
	}

	if len(leased) == 0 {
		return 0
	}

	chain := self.fleet.Chain(chainID)
	if chain == nil {
		t.Log.WithField("chainId", chainID).Warn("No rpc endpoints for chain")
		return 0
	}

	for _, record := range leased {
		record := record
		t.SubmitToWorker(func() {
			self.handleBroadcast(t.Ctx, chain, leaseOwner, &record)
		})
	}

	return len(leased)
}

func (self *Scheduler) handleBroadcast(ctx context.Context, chain *rpcfleet.ChainRpc, leaseOwner string, record *model.TxRecord) {
	now := time.Now()

	if self.expireIfDue(ctx, leaseOwner, record, now) {
		return
	}

	rawTx := record.RawTxBytes()
	if rawTx == nil {
		self.finishTerminal(ctx, leaseOwner, record, model.StatusInvalid, "missing raw_tx")
		return
	}

	result := broadcaster.Broadcast(ctx, chain, rawTx,
		self.cfg.Broadcaster.Fanout,
		time.Duration(self.cfg.Broadcaster.TimeoutMs)*time.Millisecond,
		record.Attempts)

	now = time.Now()
	attempts := record.Attempts + 1

	// The window may have closed while the fan-out was in flight.
	if self.expireIfDue(ctx, leaseOwner, record, now) {
		return
	}

	switch result.Outcome {
	case broadcaster.OutcomeFatal:
		self.finishTerminal(ctx, leaseOwner, record, model.StatusInvalid, result.Error)

	case broadcaster.OutcomeNonceTooLow:
		if current, ok := self.nonces.ObservedNonce(record.ChainID, record.Sender, record.NonceKey); ok && current > record.Nonce {
			self.finishTerminal(ctx, leaseOwner, record, model.StatusStaleByNonce, result.Error)
			return
		}
		// Unconfirmed: the endpoint may be lagging or ahead of the
		// watcher. Retry and let the watcher settle it.
		self.reschedule(ctx, leaseOwner, record, now, attempts, result.Error)

	case broadcaster.OutcomeAccepted:
		// Stay in broadcasting with a short confirmation window so
		// expiry or nonce advance is noticed; most rows go terminal
		// via the watcher from here.
		confirm := time.Duration(self.cfg.Watcher.PollIntervalMs) * time.Millisecond
		if max := time.Duration(self.cfg.Scheduler.RetryMaxMs) * time.Millisecond; confirm > max {
			confirm = max
		}
		ok, err := self.store.RescheduleIfLeased(ctx, record.ID, leaseOwner, model.StatusBroadcasting, now.Add(confirm), attempts, "")
		if err != nil || !ok {
			return
		}
		self.accel.UpdateRetrySchedule(record.ChainID, record.TxHash, now.Add(confirm))

	case broadcaster.OutcomeTransient:
		self.reschedule(ctx, leaseOwner, record, now, attempts, result.Error)
	}
}

func (self *Scheduler) reschedule(ctx context.Context, leaseOwner string, record *model.TxRecord, now time.Time, attempts int32, lastError string) {
	nextActionAt := now.Add(nextAttemptDelay(attempts,
		self.cfg.Scheduler.RetryMinMs, self.cfg.Scheduler.RetryMaxMs,
		record.ExpiresAt, now,
		time.Duration(self.cfg.Scheduler.ExpirySoonWindowSeconds)*time.Second,
		self.cfg.Scheduler.ExpirySoonRetryMaxMs))

	ok, err := self.store.RescheduleIfLeased(ctx, record.ID, leaseOwner, model.StatusRetryScheduled, nextActionAt, attempts, lastError)
	if err != nil || !ok {
		return
	}
	self.accel.UpdateRetrySchedule(record.ChainID, record.TxHash, nextActionAt)
}

func (self *Scheduler) expireIfDue(ctx context.Context, leaseOwner string, record *model.TxRecord, now time.Time) bool {
	if record.ExpiresAt == nil || now.Before(*record.ExpiresAt) {
		return false
	}
	self.finishTerminal(ctx, leaseOwner, record, model.StatusExpired, "")
	return true
}

func (self *Scheduler) finishTerminal(ctx context.Context, leaseOwner string, record *model.TxRecord, status model.TxStatus, reason string) {
	ok, err := self.store.MarkTerminalIfLeased(ctx, record.ID, leaseOwner, status, reason)
	if err != nil || !ok {
		return
	}
	self.accel.Evict(record.ChainID, record.TxHash)
}

func (self *Scheduler) recoverStuckBroadcasts() {
	rows, err := self.store.RecoverStuckBroadcasts(self.Task.Ctx)
	if err != nil {
		self.Task.Log.WithError(err).Warn("Failed to recover stuck broadcasts")
		return
	}
	for _, row := range rows {
		self.accel.UpdateRetrySchedule(row.ChainID, row.TxHash, time.Now())
	}
}

// reconcile rebuilds the accelerator's due-work index from the store.
// The index is only a hint, so a rebuild racing in-flight claims is
// harmless; the per-tick store fallback covers any gap.
func (self *Scheduler) reconcile() {
	for _, chainID := range self.fleet.ChainIDs() {
		rows, err := self.store.ListScheduled(self.Task.Ctx, chainID)
		if err != nil {
			self.Task.Log.WithError(err).WithField("chainId", chainID).Warn("Failed to list scheduled transactions")
			continue
		}
		for i := range rows {
			row := &rows[i]
			if row.Status == model.StatusQueued {
				self.accel.MarkReady(row.ChainID, row.TxHash, *row.NextActionAt)
			} else {
				self.accel.UpdateRetrySchedule(row.ChainID, row.TxHash, *row.NextActionAt)
			}
		}
	}
}
