// Package ingest is the core-side entry point: raw transaction
// submission, stale marking, and authorized group cancellation.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/warp-contracts/tempo-watchtower/src/accelerator"
	"github.com/warp-contracts/tempo-watchtower/src/codec"
	"github.com/warp-contracts/tempo-watchtower/src/model"
	"github.com/warp-contracts/tempo-watchtower/src/sig"
	"github.com/warp-contracts/tempo-watchtower/src/store"
	"github.com/warp-contracts/tempo-watchtower/src/utils/config"
	l "github.com/warp-contracts/tempo-watchtower/src/utils/logger"
	"github.com/warp-contracts/tempo-watchtower/src/watcher"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgtype"
	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Ingest validates, persists and indexes incoming transactions, and
// services the cancel/stale operations built on top of the store.
type Ingest struct {
	log *logrus.Entry

	store    *store.Store
	accel    *accelerator.WriteBehind
	watcher  *watcher.Watcher
	verifier *sig.Verifier
	chains   map[uint64][]string

	// Short-lived in-process cache of recently stored rows, keyed by
	// (chain, hash). A burst of identical resubmissions is answered
	// from here without a store round trip; the store's unique
	// constraint remains the source of truth.
	recent *cache.Cache
}

func New(cfg *config.Config, st *store.Store, accel *accelerator.WriteBehind, watch *watcher.Watcher, verifier *sig.Verifier) (*Ingest, error) {
	chains, err := cfg.RpcChains()
	if err != nil {
		return nil, err
	}

	return &Ingest{
		log:      l.NewSublogger("ingest"),
		store:    st,
		accel:    accel,
		watcher:  watch,
		verifier: verifier,
		chains:   chains,
		recent:   cache.New(10*time.Second, time.Minute),
	}, nil
}

func recentKey(chainID uint64, txHash []byte) string {
	return fmt.Sprintf("%d:%x", chainID, txHash)
}

// SubmitRaw decodes rawTx, validates it against the configured chains
// and its group (if any), stores it and pushes it into the
// accelerator. Resubmission of a known hash returns the stored row
// with alreadyKnown true, whatever state it is in.
func (self *Ingest) SubmitRaw(ctx context.Context, expectedChainID *uint64, rawTx []byte) (stored *model.TxRecord, alreadyKnown bool, err error) {
	now := time.Now()

	parsed, err := codec.ParseRawTx(rawTx, now)
	if err != nil {
		return nil, false, err
	}

	if expectedChainID != nil && parsed.ChainID != *expectedChainID {
		return nil, false, fmt.Errorf("%w: tx chainId %d does not match request chainId %d",
			model.ErrUnsupportedChain, parsed.ChainID, *expectedChainID)
	}
	if _, ok := self.chains[parsed.ChainID]; !ok {
		return nil, false, fmt.Errorf("%w: chainId %d", model.ErrUnsupportedChain, parsed.ChainID)
	}

	if cached, ok := self.recent.Get(recentKey(parsed.ChainID, parsed.TxHash.Bytes())); ok {
		return cached.(*model.TxRecord), true, nil
	}

	record, err := self.prepareRecord(parsed, now)
	if err != nil {
		return nil, false, err
	}

	// Group consistency and ordering checks run in the same
	// transaction as the insert, so concurrent submissions to the
	// same group can't interleave around them.
	err = self.store.WithTx(ctx, func(tx *store.Store) error {
		if record.HasGroup() {
			if err := self.validateGroup(ctx, tx, record); err != nil {
				return err
			}
		}

		var txErr error
		stored, alreadyKnown, txErr = tx.InsertIfAbsent(ctx, record)
		return txErr
	})
	if err != nil {
		return nil, false, err
	}

	if !alreadyKnown {
		self.accel.MarkReady(stored.ChainID, stored.TxHash, stored.EligibleAt)
		self.log.WithField("chainId", stored.ChainID).
			WithField("txHash", fmt.Sprintf("0x%x", stored.TxHash)).
			WithField("eligibleAt", stored.EligibleAt.Unix()).
			Info("Transaction queued")
	}

	self.recent.Set(recentKey(stored.ChainID, stored.TxHash), stored, cache.DefaultExpiration)

	return stored, alreadyKnown, nil
}

// SubmitResult is one item of a batch submission. Err is set instead
// of Record when the item failed; a failed item never fails the batch.
type SubmitResult struct {
	Record       *model.TxRecord
	AlreadyKnown bool
	Err          error
}

// SubmitBatch submits every raw transaction independently, in order.
func (self *Ingest) SubmitBatch(ctx context.Context, chainID uint64, rawTxs [][]byte) []SubmitResult {
	results := make([]SubmitResult, 0, len(rawTxs))
	for _, rawTx := range rawTxs {
		record, alreadyKnown, err := self.SubmitRaw(ctx, &chainID, rawTx)
		results = append(results, SubmitResult{Record: record, AlreadyKnown: alreadyKnown, Err: err})
	}
	return results
}

func (self *Ingest) prepareRecord(parsed *codec.ParsedTx, now time.Time) (*model.TxRecord, error) {
	if parsed.ValidAfter != nil && parsed.ValidBefore != nil && *parsed.ValidBefore <= *parsed.ValidAfter {
		return nil, fmt.Errorf("%w: invalid validity window", model.ErrMalformedTx)
	}

	if codec.IsRandomNonceKey(parsed.NonceKey) && parsed.ValidAfter != nil {
		return nil, fmt.Errorf("%w: random nonce key requires valid_after to be unset", model.ErrMalformedTx)
	}

	eligibleAt := now
	if parsed.ValidAfter != nil && *parsed.ValidAfter > uint64(now.Unix()) {
		eligibleAt = time.Unix(int64(*parsed.ValidAfter), 0)
	}

	var expiresAt *time.Time
	if parsed.ValidBefore != nil {
		t := time.Unix(int64(*parsed.ValidBefore), 0)
		expiresAt = &t
	}

	var groupID []byte
	if codec.IsGroupedNonceKey(parsed.NonceKey) {
		groupID = codec.GroupID16(parsed.NonceKey)
	}

	var feePayer []byte
	if parsed.FeePayer != nil {
		feePayer = parsed.FeePayer.Bytes()
	}

	return model.NewTxRecord(
		parsed.ChainID,
		parsed.TxHash.Bytes(),
		parsed.RawTx,
		parsed.Sender.Bytes(),
		feePayer,
		parsed.NonceKey,
		parsed.Nonce,
		parsed.ValidAfter,
		parsed.ValidBefore,
		groupID,
		eligibleAt,
		expiresAt,
	), nil
}

func (self *Ingest) validateGroup(ctx context.Context, tx *store.Store, record *model.TxRecord) error {
	groupID := record.GroupID.Bytes

	existingKey, err := tx.GroupNonceKey(ctx, record.ChainID, record.Sender, groupID)
	if err != nil {
		return err
	}
	if existingKey != nil && !bytes.Equal(existingKey, record.NonceKey) {
		return model.ErrGroupNonceKey
	}

	windows, err := tx.GroupNonceWindows(ctx, record.ChainID, record.Sender, groupID)
	if err != nil {
		return err
	}

	window := store.NonceWindow{Nonce: record.Nonce}
	if record.ValidBefore.Status == pgtype.Present {
		v := uint64(record.ValidBefore.Int)
		window.ValidBefore = &v
	}
	windows = append(windows, window)

	return validateNonceValidBeforeOrder(windows)
}

// MarkStale marks the row stale-by-nonce if the watcher's latest
// observation shows the chain past its nonce. Calling it on a row
// already stale is a no-op returning the row; other terminal states
// are rejected.
func (self *Ingest) MarkStale(ctx context.Context, txHash []byte, chainID *uint64) (*model.TxRecord, error) {
	record, err := self.getUnambiguous(ctx, txHash, chainID)
	if err != nil {
		return nil, err
	}

	if record.Status == model.StatusStaleByNonce {
		return record, nil
	}
	if record.Status.IsTerminal() {
		return nil, model.ErrAlreadyTerminal
	}

	current, ok := self.watcher.ObservedNonce(record.ChainID, record.Sender, record.NonceKey)
	if !ok {
		return nil, model.ErrNoObservation
	}
	if current <= record.Nonce {
		return nil, model.ErrNotStale
	}

	err = self.store.MarkTerminal(ctx, record.ID, model.StatusStaleByNonce, "")
	if err != nil {
		return nil, err
	}
	self.accel.Evict(record.ChainID, record.TxHash)
	self.recent.Delete(recentKey(record.ChainID, record.TxHash))

	return self.store.GetByHash(ctx, &record.ChainID, txHash)
}

// GetTx fetches one row, failing with Ambiguous when the hash exists
// on multiple chains and no chainID narrows it down.
func (self *Ingest) GetTx(ctx context.Context, txHash []byte, chainID *uint64) (*model.TxRecord, error) {
	return self.getUnambiguous(ctx, txHash, chainID)
}

func (self *Ingest) getUnambiguous(ctx context.Context, txHash []byte, chainID *uint64) (*model.TxRecord, error) {
	if chainID != nil {
		return self.store.GetByHash(ctx, chainID, txHash)
	}

	rows, err := self.store.GetByHashAllChains(ctx, txHash)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, model.ErrNotFound
	case 1:
		return &rows[0], nil
	default:
		return nil, model.ErrAmbiguous
	}
}

// CancelGroup verifies the cancel authorization and marks every
// non-terminal member canceled_locally. Returns the rows this call
// actually canceled; a group whose members were all terminal already
// cancels zero rows successfully.
func (self *Ingest) CancelGroup(ctx context.Context, sender, groupID []byte, chainID *uint64, signature []byte) ([]model.TxRecord, error) {
	err := self.verifier.VerifyGroupCancel(signature, groupID, common.BytesToAddress(sender))
	if err != nil {
		return nil, err
	}

	canceled, err := self.store.CancelGroup(ctx, sender, groupID, chainID)
	if err != nil {
		return nil, err
	}

	if len(canceled) == 0 {
		members, err := self.store.GroupTxs(ctx, sender, groupID, chainID)
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			return nil, model.ErrNotFound
		}
		return canceled, nil
	}

	for i := range canceled {
		self.accel.Evict(canceled[i].ChainID, canceled[i].TxHash)
		self.recent.Delete(recentKey(canceled[i].ChainID, canceled[i].TxHash))
	}

	self.log.WithField("groupId", fmt.Sprintf("0x%x", groupID)).
		WithField("canceled", len(canceled)).
		Info("Group canceled locally")

	return canceled, nil
}

// CancelPlan previews a group cancel: the shared nonce key, the
// member nonces, and whether the chain's current nonce already
// invalidates every member.
func (self *Ingest) CancelPlan(chainID uint64, sender []byte, members []model.TxRecord) (*model.CancelPlan, error) {
	if len(members) == 0 {
		return nil, model.ErrNotFound
	}

	nonceKey := members[0].NonceKey
	nonces := make([]uint64, 0, len(members))
	for i := range members {
		if !bytes.Equal(members[i].NonceKey, nonceKey) {
			return nil, fmt.Errorf("group has multiple nonce keys")
		}
		nonces = append(nonces, members[i].Nonce)
	}

	nonces = sortedUnique(nonces)

	plan := &model.CancelPlan{
		NonceKey: nonceKey,
		Nonces:   nonces,
	}

	current, ok, err := self.watcher.CurrentNonce(chainID, sender, nonceKey)
	if err != nil {
		return nil, err
	}
	if ok {
		plan.AlreadyInvalidated = current > nonces[len(nonces)-1]
	}

	return plan, nil
}
