package accelerator

import (
	"context"
	"time"

	"github.com/warp-contracts/tempo-watchtower/src/utils/config"
	"github.com/warp-contracts/tempo-watchtower/src/utils/task"
)

// opKind distinguishes the three index mutations Accelerator batches.
type opKind uint8

const (
	opMarkReady opKind = iota
	opUpdateRetry
	opEvict
)

// indexEvent is one queued index mutation. All fields are comparable
// so it fits task.SinkTask's type constraint.
type indexEvent struct {
	op       opKind
	chainID  uint64
	txHash   [32]byte
	at       int64 // unix seconds, meaning depends on op
}

// WriteBehind batches Accelerator index mutations through a
// task.SinkTask so a slow or momentarily unavailable Redis never
// blocks the Store-authoritative write path that feeds it.
type WriteBehind struct {
	accel *Accelerator
	sink  *task.SinkTask[indexEvent]
	input chan indexEvent
}

// NewWriteBehind builds a write-behind queue in front of accel. Call
// Start to begin draining; Stop/StopWait to shut down. Events still in
// the input channel, or queued but not yet flushed, are dropped on
// stop.
func NewWriteBehind(cfg *config.Config, accel *Accelerator) *WriteBehind {
	input := make(chan indexEvent, 4096)

	wb := &WriteBehind{accel: accel, input: input}
	wb.sink = task.NewSinkTask[indexEvent](cfg, "accelerator-writebehind").
		WithBatchSize(64).
		WithInputChannel(input).
		WithOnFlush(200*time.Millisecond, wb.flush)

	return wb
}

func (self *WriteBehind) Start() *WriteBehind {
	self.sink.Start()
	return self
}

// Task exposes the underlying sink task for composition.
func (self *WriteBehind) Task() *task.Task {
	return self.sink.Task
}

func (self *WriteBehind) Stop() {
	self.sink.Stop()
}

func (self *WriteBehind) StopWait() {
	self.sink.StopWait()
}

func (self *WriteBehind) MarkReady(chainID uint64, txHash []byte, eligibleAt time.Time) {
	self.enqueue(indexEvent{op: opMarkReady, chainID: chainID, txHash: toArray(txHash), at: eligibleAt.Unix()})
}

func (self *WriteBehind) UpdateRetrySchedule(chainID uint64, txHash []byte, nextActionAt time.Time) {
	self.enqueue(indexEvent{op: opUpdateRetry, chainID: chainID, txHash: toArray(txHash), at: nextActionAt.Unix()})
}

func (self *WriteBehind) Evict(chainID uint64, txHash []byte) {
	self.enqueue(indexEvent{op: opEvict, chainID: chainID, txHash: toArray(txHash)})
}

func (self *WriteBehind) enqueue(ev indexEvent) {
	select {
	case self.input <- ev:
	default:
		// Queue full: drop the hint. Scheduler's Store fallback still
		// finds the row on its next poll, so this only costs latency.
	}
}

// flush applies a batch to redis, retrying transient failures briefly.
// Giving up is fine: the scheduler's store fallback and the periodic
// reconciliation pass repair whatever the index missed.
func (self *WriteBehind) flush(batch []indexEvent) error {
	return task.NewRetry().
		WithContext(self.sink.Ctx).
		WithMaxElapsedTime(10 * time.Second).
		WithMaxInterval(2 * time.Second).
		WithOnError(func(err error, isDurationAcceptable bool) error {
			self.sink.Log.WithError(err).Warn("Failed to flush accelerator batch, retrying")
			return err
		}).
		Run(func() error {
			return self.applyBatch(batch)
		})
}

func (self *WriteBehind) applyBatch(batch []indexEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var firstErr error
	for _, ev := range batch {
		hash := ev.txHash[:]
		var err error
		switch ev.op {
		case opMarkReady:
			err = self.accel.MarkReady(ctx, ev.chainID, hash, time.Unix(ev.at, 0))
		case opUpdateRetry:
			err = self.accel.UpdateRetrySchedule(ctx, ev.chainID, hash, time.Unix(ev.at, 0))
		case opEvict:
			err = self.accel.Evict(ctx, ev.chainID, hash)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func toArray(b []byte) [32]byte {
	var out [32]byte
	copy(out[:], b)
	return out
}
