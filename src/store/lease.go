package store

import (
	"context"
	"time"

	"github.com/warp-contracts/tempo-watchtower/src/model"

	"gorm.io/gorm"
)

// ClaimDue atomically leases up to limit due rows for chainID: rows in
// a non-terminal status whose next_action_at has passed and whose
// lease (if any) has expired. Claimed rows move to broadcasting under
// lease_owner/lease_until. Uses SELECT ... FOR UPDATE SKIP LOCKED so
// concurrent replicas never contend on the same row.
func (self *Store) ClaimDue(ctx context.Context, chainID uint64, now time.Time, leaseOwner string, leaseUntil time.Time, limit int) ([]model.TxRecord, error) {
	var rows []model.TxRecord
	err := self.db.WithContext(ctx).Raw(`
		WITH due AS (
			SELECT id
			FROM txs
			WHERE chain_id = ?
			  AND status IN (?, ?, ?)
			  AND next_action_at <= ?
			  AND (lease_until IS NULL OR lease_until < ?)
			ORDER BY next_action_at ASC
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		UPDATE txs
		SET status = ?, lease_owner = ?, lease_until = ?, updated_at = NOW()
		WHERE id IN (SELECT id FROM due)
		RETURNING *
	`,
		chainID,
		model.StatusQueued, model.StatusRetryScheduled, model.StatusBroadcasting,
		now, now, limit,
		model.StatusBroadcasting, leaseOwner, leaseUntil,
	).Scan(&rows).Error
	return rows, err
}

// ClaimByHash leases a single row by (chainID, txHash), used by the
// scheduler to claim a row named by an accelerator hint.
func (self *Store) ClaimByHash(ctx context.Context, chainID uint64, txHash []byte, now time.Time, leaseOwner string, leaseUntil time.Time) (*model.TxRecord, error) {
	var rows []model.TxRecord
	err := self.db.WithContext(ctx).Raw(`
		UPDATE txs
		SET status = ?, lease_owner = ?, lease_until = ?, updated_at = NOW()
		WHERE chain_id = ?
		  AND tx_hash = ?
		  AND status IN (?, ?, ?)
		  AND next_action_at <= ?
		  AND (lease_until IS NULL OR lease_until < ?)
		RETURNING *
	`,
		model.StatusBroadcasting, leaseOwner, leaseUntil,
		chainID, txHash,
		model.StatusQueued, model.StatusRetryScheduled, model.StatusBroadcasting,
		now, now,
	).Scan(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// Reschedule moves a row to status with a new next_action_at, setting
// attempts to the caller's count and recording lastError, and releases
// its lease unconditionally.
func (self *Store) Reschedule(ctx context.Context, id uint64, status model.TxStatus, nextActionAt time.Time, attempts int32, lastError string) error {
	return self.db.WithContext(ctx).Model(&model.TxRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":            status,
		"next_action_at":    nextActionAt,
		"attempts":          attempts,
		"last_error":        textOrNull(lastError),
		"last_broadcast_at": gorm.Expr("NOW()"),
		"lease_owner":       nil,
		"lease_until":       nil,
	}).Error
}

// RescheduleIfLeased is Reschedule guarded by the caller still holding
// the lease; a multi-replica deployment uses this after a broadcast
// attempt so a lease that already expired and was reclaimed elsewhere
// doesn't get silently overwritten. Reports whether the row was
// actually updated.
func (self *Store) RescheduleIfLeased(ctx context.Context, id uint64, leaseOwner string, status model.TxStatus, nextActionAt time.Time, attempts int32, lastError string) (bool, error) {
	result := self.db.WithContext(ctx).Model(&model.TxRecord{}).
		Where("id = ? AND status = ? AND lease_owner = ?", id, model.StatusBroadcasting, leaseOwner).
		Updates(map[string]interface{}{
			"status":            status,
			"next_action_at":    nextActionAt,
			"attempts":          attempts,
			"last_error":        textOrNull(lastError),
			"last_broadcast_at": gorm.Expr("NOW()"),
			"lease_owner":       nil,
			"lease_until":       nil,
		})
	return result.RowsAffected > 0, result.Error
}

// MarkTerminalIfLeased transitions a leased row straight to a terminal
// status, clearing the schedule and lease. Reports whether the row
// was actually updated (the lease may have already been reclaimed).
func (self *Store) MarkTerminalIfLeased(ctx context.Context, id uint64, leaseOwner string, status model.TxStatus, lastError string) (bool, error) {
	result := self.db.WithContext(ctx).Model(&model.TxRecord{}).
		Where("id = ? AND status = ? AND lease_owner = ?", id, model.StatusBroadcasting, leaseOwner).
		Updates(map[string]interface{}{
			"status":         status,
			"last_error":     textOrNull(lastError),
			"next_action_at": nil,
			"lease_owner":    nil,
			"lease_until":    nil,
		})
	return result.RowsAffected > 0, result.Error
}

// MarkTerminal transitions a row to a terminal status without a lease,
// used by the Watcher which observes chain state rather than holding
// a broadcast claim. The status guard makes terminal states absorbing:
// a row that already went terminal is silently left as-is.
func (self *Store) MarkTerminal(ctx context.Context, id uint64, status model.TxStatus, lastError string) error {
	return self.db.WithContext(ctx).Model(&model.TxRecord{}).
		Where("id = ? AND status IN ?", id, model.NonTerminalStatuses).
		Updates(map[string]interface{}{
			"status":         status,
			"last_error":     textOrNull(lastError),
			"next_action_at": nil,
			"lease_owner":    nil,
			"lease_until":    nil,
		}).Error
}

// MarkExecuted transitions a row to executed, attaching the receipt.
func (self *Store) MarkExecuted(ctx context.Context, id uint64, receipt []byte) error {
	return self.db.WithContext(ctx).Model(&model.TxRecord{}).
		Where("id = ? AND status IN ?", id, model.NonTerminalStatuses).
		Updates(map[string]interface{}{
			"status":         model.StatusExecuted,
			"receipt":        string(receipt),
			"next_action_at": nil,
			"lease_owner":    nil,
			"lease_until":    nil,
		}).Error
}

// RecoverStuckBroadcasts resets rows stuck in broadcasting with no
// scheduled next action back to retry_scheduled, so a replica that
// crashed mid-broadcast doesn't strand its leases forever.
func (self *Store) RecoverStuckBroadcasts(ctx context.Context) ([]model.TxRecord, error) {
	var rows []model.TxRecord
	err := self.db.WithContext(ctx).Raw(`
		UPDATE txs
		SET status = ?, next_action_at = NOW(), lease_owner = NULL, lease_until = NULL, updated_at = NOW()
		WHERE status = ? AND next_action_at IS NULL
		RETURNING *
	`, model.StatusRetryScheduled, model.StatusBroadcasting).Scan(&rows).Error
	return rows, err
}

func textOrNull(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
