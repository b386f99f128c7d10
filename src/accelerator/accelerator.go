// Package accelerator is the hint-only Redis index Scheduler polls
// before falling back to Store: two sorted sets per chain (ready,
// retry), scored by unix-second due time.
package accelerator

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Accelerator fronts Store with a fast due-work index. Every write is
// best-effort: a missed or stale entry costs Scheduler one extra Store
// poll cycle, never correctness, since ClaimDue is the final arbiter.
type Accelerator struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Accelerator {
	return &Accelerator{rdb: rdb}
}

func readyKey(chainID uint64) string {
	return fmt.Sprintf("watchtower:ready:%d", chainID)
}

func retryKey(chainID uint64) string {
	return fmt.Sprintf("watchtower:retry:%d", chainID)
}

func hashHex(txHash []byte) string {
	return "0x" + hex.EncodeToString(txHash)
}

// MarkReady indexes a newly eligible transaction under the ready set,
// scored by its eligible-at time.
func (self *Accelerator) MarkReady(ctx context.Context, chainID uint64, txHash []byte, eligibleAt time.Time) error {
	return self.rdb.ZAdd(ctx, readyKey(chainID), redis.Z{
		Score:  float64(eligibleAt.Unix()),
		Member: hashHex(txHash),
	}).Err()
}

// UpdateRetrySchedule moves a transaction into the retry set scored by
// its next action time, removing it from both sets first so a
// previously-ready or previously-scheduled entry doesn't linger under
// a stale score.
func (self *Accelerator) UpdateRetrySchedule(ctx context.Context, chainID uint64, txHash []byte, nextActionAt time.Time) error {
	member := hashHex(txHash)
	pipe := self.rdb.Pipeline()
	pipe.ZRem(ctx, readyKey(chainID), member)
	pipe.ZRem(ctx, retryKey(chainID), member)
	pipe.ZAdd(ctx, retryKey(chainID), redis.Z{Score: float64(nextActionAt.Unix()), Member: member})
	_, err := pipe.Exec(ctx)
	return err
}

// Evict removes a transaction from both sets, used on group cancel and
// on terminal-state transitions discovered by Watcher.
func (self *Accelerator) Evict(ctx context.Context, chainID uint64, txHash []byte) error {
	member := hashHex(txHash)
	pipe := self.rdb.Pipeline()
	pipe.ZRem(ctx, readyKey(chainID), member)
	pipe.ZRem(ctx, retryKey(chainID), member)
	_, err := pipe.Exec(ctx)
	return err
}

// FetchDue returns up to limit due tx-hash hints, ready-set entries
// first, then retry-set entries, both score-bounded by now. The
// returned strings are "0x"-prefixed hex tx hashes, mirroring Redis
// member encoding so callers can ZREM them back out without
// re-deriving the hex form.
func (self *Accelerator) FetchDue(ctx context.Context, chainID uint64, now time.Time, limit int) ([]string, error) {
	out := make([]string, 0, limit)
	if limit <= 0 {
		return out, nil
	}

	maxScore := fmt.Sprintf("%d", now.Unix())

	ready, err := self.rdb.ZRangeByScore(ctx, readyKey(chainID), &redis.ZRangeBy{
		Min: "0", Max: maxScore, Offset: 0, Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	out = append(out, ready...)

	if len(out) < limit {
		retry, err := self.rdb.ZRangeByScore(ctx, retryKey(chainID), &redis.ZRangeBy{
			Min: "0", Max: maxScore, Offset: 0, Count: int64(limit - len(out)),
		}).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, retry...)
	}

	return out, nil
}

// ParseHashHex inverts hashHex, for callers turning FetchDue's hints
// back into raw tx hash bytes before looking the row up in Store.
func ParseHashHex(s string) ([]byte, error) {
	if len(s) >= 2 && s[0:2] == "0x" {
		s = s[2:]
	}
	return hex.DecodeString(s)
}
