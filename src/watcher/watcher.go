// Package watcher tracks chain state for pending transactions: receipts
// for known hashes and the current nonce per (sender, nonce_key) pair.
// It drives the terminal transitions the scheduler can't see on its own.
package watcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/warp-contracts/tempo-watchtower/src/accelerator"
	"github.com/warp-contracts/tempo-watchtower/src/model"
	"github.com/warp-contracts/tempo-watchtower/src/rpcfleet"
	"github.com/warp-contracts/tempo-watchtower/src/store"
	"github.com/warp-contracts/tempo-watchtower/src/utils/config"
	"github.com/warp-contracts/tempo-watchtower/src/utils/task"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jellydator/ttlcache/v3"
)

// Watcher runs one background loop per chain. With a websocket
// connection it reacts to new heads; otherwise it polls every
// watcher.poll_interval_ms. Either way each tick does the same work:
// expire what's past its window, persist receipts, and mark rows stale
// when the chain's nonce moved past them.
type Watcher struct {
	*task.Task

	store  *store.Store
	accel  *accelerator.WriteBehind
	fleet  *rpcfleet.Fleet

	// Most recent (sender, nonce_key) -> current nonce observations.
	// Shared with Ingest's mark-stale path, which trusts the latest
	// observation instead of doing a live chain call.
	nonces *ttlcache.Cache[string, uint64]
}

func New(cfg *config.Config, st *store.Store, accel *accelerator.WriteBehind, fleet *rpcfleet.Fleet) (self *Watcher) {
	self = new(Watcher)
	self.store = st
	self.accel = accel
	self.fleet = fleet

	ttl := time.Duration(cfg.Watcher.NonceCacheTtlSeconds) * time.Second
	self.nonces = ttlcache.New[string, uint64](
		ttlcache.WithTTL[string, uint64](ttl),
	)

	self.Task = task.NewTask(cfg, "watcher").
		WithOnBeforeStart(func() error {
			go self.nonces.Start()
			return nil
		}).
		WithOnStop(func() {
			self.nonces.Stop()
		})

	for _, chainID := range fleet.ChainIDs() {
		chainID := chainID
		self.Task = self.Task.WithSubtaskFunc(self.runChain(chainID))
	}

	return
}

func (self *Watcher) runChain(chainID uint64) func() error {
	return func() error {
		chain := self.fleet.Chain(chainID)
		if chain == nil {
			self.Log.WithField("chainId", chainID).Warn("No rpc chain for watcher")
			return nil
		}

		if chain.WS != nil {
			err := self.watchHeads(chainID, chain)
			if self.IsStopping.Load() {
				return nil
			}
			self.Log.WithField("chainId", chainID).WithError(err).
				Warn("Websocket watcher failed, falling back to polling")
		}

		return self.watchPoll(chainID, chain)
	}
}

// watchHeads ticks on every new head delivered over the websocket
// subscription. Returns when the subscription dies so the caller can
// fall back to polling.
func (self *Watcher) watchHeads(chainID uint64, chain *rpcfleet.ChainRpc) error {
	heads := make(chan *types.Header, 16)
	sub, err := chain.WS.SubscribeNewHead(self.Ctx, heads)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	self.Log.WithField("chainId", chainID).Info("Starting websocket watcher")

	for {
		select {
		case <-self.StopChannel:
			return nil
		case err := <-sub.Err():
			return err
		case <-heads:
			self.tick(chainID, chain)
		}
	}
}

func (self *Watcher) watchPoll(chainID uint64, chain *rpcfleet.ChainRpc) error {
	self.Log.WithField("chainId", chainID).Info("Starting polling watcher")

	period := time.Duration(self.Config.Watcher.PollIntervalMs) * time.Millisecond
	timer := time.NewTimer(period)
	for {
		select {
		case <-self.StopChannel:
			return nil
		case <-timer.C:
			self.tick(chainID, chain)
			timer = time.NewTimer(period)
		}
	}
}

// tick advances every non-terminal row of the chain one step: expired
// windows first, then receipts, then a nonce lookup per distinct
// (sender, nonce_key) pair among whatever's left.
func (self *Watcher) tick(chainID uint64, chain *rpcfleet.ChainRpc) {
	records, err := self.store.ListActive(self.Ctx, chainID)
	if err != nil {
		self.Log.WithError(err).Warn("Failed to list active transactions")
		return
	}
	if len(records) == 0 {
		return
	}

	now := time.Now()
	pending := make([]*model.TxRecord, 0, len(records))
	for i := range records {
		record := &records[i]

		if record.ExpiresAt != nil && !now.Before(*record.ExpiresAt) {
			self.markTerminal(record, model.StatusExpired, "")
			continue
		}

		receipt, err := self.fetchReceipt(chain, record)
		if err != nil {
			self.Log.WithError(err).WithField("chainId", chainID).Debug("Failed to fetch receipt")
		}
		if receipt != nil {
			self.markExecuted(record, receipt)
			continue
		}

		pending = append(pending, record)
	}

	if len(pending) == 0 {
		return
	}

	// One nonce lookup per distinct pair, not per row.
	grouped := make(map[string][]*model.TxRecord)
	for _, record := range pending {
		key := nonceCacheKey(chainID, record.Sender, record.NonceKey)
		grouped[key] = append(grouped[key], record)
	}

	for _, members := range grouped {
		first := members[0]
		current, ok := self.currentNonce(chainID, chain, first.Sender, first.NonceKey)
		if !ok {
			continue
		}
		for _, record := range members {
			if current > record.Nonce {
				self.markTerminal(record, model.StatusStaleByNonce, "")
			}
		}
	}
}

func (self *Watcher) markTerminal(record *model.TxRecord, status model.TxStatus, reason string) {
	err := self.store.MarkTerminal(self.Ctx, record.ID, status, reason)
	if err != nil {
		self.Log.WithError(err).Warn("Failed to mark transaction terminal")
		return
	}
	self.accel.Evict(record.ChainID, record.TxHash)
}

func (self *Watcher) markExecuted(record *model.TxRecord, receipt *types.Receipt) {
	body, err := json.Marshal(receipt)
	if err != nil {
		self.Log.WithError(err).Warn("Failed to serialize receipt")
		return
	}
	err = self.store.MarkExecuted(self.Ctx, record.ID, body)
	if err != nil {
		self.Log.WithError(err).Warn("Failed to mark transaction executed")
		return
	}
	self.accel.Evict(record.ChainID, record.TxHash)
}

func (self *Watcher) fetchReceipt(chain *rpcfleet.ChainRpc, record *model.TxRecord) (*types.Receipt, error) {
	if len(record.TxHash) != 32 {
		return nil, fmt.Errorf("invalid tx_hash length %d", len(record.TxHash))
	}

	receipt, err := chain.Endpoints[0].Client.TransactionReceipt(self.Ctx, common.BytesToHash(record.TxHash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	return receipt, err
}

// currentNonce returns the pair's nonce, using a recent cached
// observation when one exists so a steady pending set doesn't re-query
// unchanged pairs every tick.
func (self *Watcher) currentNonce(chainID uint64, chain *rpcfleet.ChainRpc, sender, nonceKey []byte) (uint64, bool) {
	key := nonceCacheKey(chainID, sender, nonceKey)
	if item := self.nonces.Get(key); item != nil {
		return item.Value(), true
	}

	current, ok, err := self.fetchCurrentNonce(chain, sender, nonceKey)
	if err != nil {
		self.Log.WithError(err).WithField("chainId", chainID).Debug("Failed to fetch current nonce")
		return 0, false
	}
	if !ok {
		return 0, false
	}

	self.nonces.Set(key, current, ttlcache.DefaultTTL)
	return current, true
}

// ObservedNonce returns the most recent cached observation for the
// pair, without touching the chain.
func (self *Watcher) ObservedNonce(chainID uint64, sender, nonceKey []byte) (uint64, bool) {
	item := self.nonces.Get(nonceCacheKey(chainID, sender, nonceKey))
	if item == nil {
		return 0, false
	}
	return item.Value(), true
}

// CurrentNonce does a live lookup, refreshing the cache. ok is false
// for pairs that have no queryable nonce (random nonce keys).
func (self *Watcher) CurrentNonce(chainID uint64, sender, nonceKey []byte) (current uint64, ok bool, err error) {
	chain := self.fleet.Chain(chainID)
	if chain == nil {
		return 0, false, fmt.Errorf("watcher: no rpc chain %d", chainID)
	}

	current, ok, err = self.fetchCurrentNonce(chain, sender, nonceKey)
	if err != nil || !ok {
		return
	}

	self.nonces.Set(nonceCacheKey(chainID, sender, nonceKey), current, ttlcache.DefaultTTL)
	return
}

func nonceCacheKey(chainID uint64, sender, nonceKey []byte) string {
	return fmt.Sprintf("%d:%x:%x", chainID, sender, nonceKey)
}
