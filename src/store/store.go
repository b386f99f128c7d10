// Package store is the durable transaction store, Postgres via gorm.
package store

import (
	"context"

	"github.com/warp-contracts/tempo-watchtower/src/model"

	"github.com/jackc/pgtype"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps the gorm connection with the relay's persistence
// operations. Every method takes ctx and is safe for concurrent use.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx runs fn against a Store bound to one database transaction, so
// callers can compose reads and writes atomically.
func (self *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return self.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// InsertIfAbsent inserts row, returning (row-as-stored, alreadyKnown).
// On conflict with (chain_id, tx_hash) the existing row is fetched
// instead of inserted.
func (self *Store) InsertIfAbsent(ctx context.Context, row *model.TxRecord) (stored *model.TxRecord, alreadyKnown bool, err error) {
	err = self.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chain_id"}, {Name: "tx_hash"}},
			DoNothing: true,
		}).Create(row)
		if result.Error != nil {
			return result.Error
		}
		alreadyKnown = result.RowsAffected == 0

		stored = new(model.TxRecord)
		return tx.Where("chain_id = ? AND tx_hash = ?", row.ChainID, row.TxHash).First(stored).Error
	})
	return
}

// GetByHash fetches a row by tx hash. If chainID is nil, any chain
// matches and the most recently created row wins; callers that need
// to detect cross-chain hash collisions use GetByHashAllChains first.
func (self *Store) GetByHash(ctx context.Context, chainID *uint64, txHash []byte) (*model.TxRecord, error) {
	row := new(model.TxRecord)
	q := self.db.WithContext(ctx).Where("tx_hash = ?", txHash)
	if chainID != nil {
		q = q.Where("chain_id = ?", *chainID)
	} else {
		q = q.Order("created_at DESC")
	}

	err := q.First(row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, model.ErrNotFound
	}
	return row, err
}

// GetByHashAllChains returns every row across all chains with this
// hash, used to detect the ambiguous-without-chain-id case.
func (self *Store) GetByHashAllChains(ctx context.Context, txHash []byte) ([]model.TxRecord, error) {
	var rows []model.TxRecord
	err := self.db.WithContext(ctx).Where("tx_hash = ?", txHash).Find(&rows).Error
	return rows, err
}

// Filters narrows a List query.
type Filters struct {
	ChainID   *uint64
	Sender    []byte
	GroupID   []byte
	Ungrouped bool
	Statuses  []model.TxStatus
	Limit     int
}

// List returns rows matching filters, newest first, limit clamped to
// [1, 500].
func (self *Store) List(ctx context.Context, f Filters) ([]model.TxRecord, error) {
	q := self.db.WithContext(ctx).Model(&model.TxRecord{})

	if f.ChainID != nil {
		q = q.Where("chain_id = ?", *f.ChainID)
	}
	if f.Sender != nil {
		q = q.Where("sender = ?", f.Sender)
	}
	if f.GroupID != nil {
		q = q.Where("group_id = ?", f.GroupID)
	}
	if f.Ungrouped {
		q = q.Where("group_id IS NULL")
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}

	var rows []model.TxRecord
	err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// ListActive returns every non-terminal row for chainID, ordered for
// polling-mode Watcher consumption (next_action_at ascending, nulls
// last, then creation order).
func (self *Store) ListActive(ctx context.Context, chainID uint64) ([]model.TxRecord, error) {
	var rows []model.TxRecord
	err := self.db.WithContext(ctx).
		Where("chain_id = ? AND status IN ?", chainID, model.NonTerminalStatuses).
		Order("next_action_at ASC NULLS LAST, created_at ASC").
		Find(&rows).Error
	return rows, err
}

// ListScheduled returns every non-terminal row of the chain with a
// pending next action, for rebuilding the accelerator index.
func (self *Store) ListScheduled(ctx context.Context, chainID uint64) ([]model.TxRecord, error) {
	var rows []model.TxRecord
	err := self.db.WithContext(ctx).
		Where("chain_id = ? AND status IN ? AND next_action_at IS NOT NULL", chainID, model.NonTerminalStatuses).
		Order("next_action_at ASC").
		Find(&rows).Error
	return rows, err
}

// GroupNonceKey returns the nonce_key shared by a group, or nil if the
// group has no members yet.
func (self *Store) GroupNonceKey(ctx context.Context, chainID uint64, sender, groupID []byte) ([]byte, error) {
	row := new(model.TxRecord)
	err := self.db.WithContext(ctx).
		Where("chain_id = ? AND sender = ? AND group_id = ?", chainID, sender, groupID).
		Select("nonce_key").
		First(row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return row.NonceKey, err
}

// NonceWindow is a (nonce, valid_before) pair used for group ordering
// validation.
type NonceWindow struct {
	Nonce       uint64
	ValidBefore *uint64
}

// GroupNonceWindows returns every member's (nonce, valid_before) for
// group-order validation on ingest.
func (self *Store) GroupNonceWindows(ctx context.Context, chainID uint64, sender, groupID []byte) ([]NonceWindow, error) {
	var rows []model.TxRecord
	err := self.db.WithContext(ctx).
		Where("chain_id = ? AND sender = ? AND group_id = ?", chainID, sender, groupID).
		Select("nonce", "valid_before").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]NonceWindow, 0, len(rows))
	for _, r := range rows {
		w := NonceWindow{Nonce: r.Nonce}
		if r.ValidBefore.Status == pgtype.Present {
			v := uint64(r.ValidBefore.Int)
			w.ValidBefore = &v
		}
		out = append(out, w)
	}
	return out, nil
}

// GroupTxs returns every member of a group ordered by nonce ascending.
func (self *Store) GroupTxs(ctx context.Context, sender, groupID []byte, chainID *uint64) ([]model.TxRecord, error) {
	q := self.db.WithContext(ctx).Where("sender = ? AND group_id = ?", sender, groupID)
	if chainID != nil {
		q = q.Where("chain_id = ?", *chainID)
	}

	var rows []model.TxRecord
	err := q.Order("nonce ASC").Find(&rows).Error
	return rows, err
}

// ListSenderGroups aggregates every group a sender has members in.
func (self *Store) ListSenderGroups(ctx context.Context, sender []byte, chainID *uint64, limit int, activeOnly bool) ([]model.GroupSummary, error) {
	q := self.db.WithContext(ctx).Model(&model.TxRecord{}).
		Select("chain_id, group_id, MIN(eligible_at) AS start_at, MAX(eligible_at) AS end_at").
		Where("sender = ? AND group_id IS NOT NULL", sender)
	if chainID != nil {
		q = q.Where("chain_id = ?", *chainID)
	}

	limit = clamp(limit, 1, 500)
	q = q.Group("chain_id, group_id")
	if activeOnly {
		q = q.Having("MAX(eligible_at) > NOW()")
	}

	var rows []model.GroupSummary
	err := q.Order("chain_id, group_id").Limit(limit).Find(&rows).Error
	return rows, err
}

// CancelGroup atomically marks every member of a group canceled_locally,
// clearing raw_tx and the lease/schedule fields. Idempotent: members
// already terminal are excluded from the WHERE clause, so the
// returned count only reflects rows this call actually changed.
func (self *Store) CancelGroup(ctx context.Context, sender, groupID []byte, chainID *uint64) ([]model.TxRecord, error) {
	var rows []model.TxRecord
	err := self.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		base := func() *gorm.DB {
			q := tx.Model(&model.TxRecord{}).
				Where("sender = ? AND group_id = ?", sender, groupID).
				Where("status IN ?", model.NonTerminalStatuses)
			if chainID != nil {
				q = q.Where("chain_id = ?", *chainID)
			}
			return q
		}

		if err := base().Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		return base().Updates(map[string]interface{}{
			"status":         model.StatusCanceledLocally,
			"raw_tx":         nil,
			"next_action_at": nil,
			"lease_owner":    nil,
			"lease_until":    nil,
		}).Error
	})
	return rows, err
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
