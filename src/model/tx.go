package model

import (
	"time"

	"github.com/jackc/pgtype"
)

const TableTx = "txs"

// TxRecord is the durable transaction row.
//
// Invariants: (chain_id, tx_hash) unique; status only moves forward
// through the state machine and never leaves a terminal state; when
// status is terminal, next_action_at is nil and no lease is held.
type TxRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	ChainID uint64 `gorm:"column:chain_id;uniqueIndex:idx_chain_hash"`
	TxHash  []byte `gorm:"column:tx_hash;uniqueIndex:idx_chain_hash"`

	RawTx pgtype.Bytea `gorm:"column:raw_tx"`

	Sender    []byte       `gorm:"column:sender;index:idx_sender_group"`
	FeePayer  pgtype.Bytea `gorm:"column:fee_payer"`
	NonceKey  []byte       `gorm:"column:nonce_key"`
	Nonce     uint64       `gorm:"column:nonce"`
	GroupID   pgtype.Bytea `gorm:"column:group_id;index:idx_sender_group"`

	ValidAfter  pgtype.Int8 `gorm:"column:valid_after"`
	ValidBefore pgtype.Int8 `gorm:"column:valid_before"`
	EligibleAt  time.Time   `gorm:"column:eligible_at"`
	ExpiresAt   *time.Time  `gorm:"column:expires_at"`

	Status TxStatus `gorm:"column:status;index:idx_status_next_action"`

	NextActionAt *time.Time  `gorm:"column:next_action_at;index:idx_status_next_action"`
	LeaseOwner   pgtype.Text `gorm:"column:lease_owner"`
	LeaseUntil   *time.Time  `gorm:"column:lease_until"`

	Attempts        int32        `gorm:"column:attempts"`
	LastError       pgtype.Text  `gorm:"column:last_error"`
	LastBroadcastAt *time.Time   `gorm:"column:last_broadcast_at"`
	Receipt         pgtype.JSONB `gorm:"column:receipt"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (TxRecord) TableName() string {
	return TableTx
}

// HasGroup reports whether this row belongs to a nonce-key group.
func (r *TxRecord) HasGroup() bool {
	return r.GroupID.Status == pgtype.Present
}

// RawTxBytes returns the signed transaction bytes, or nil once cleared
// by a local cancel.
func (r *TxRecord) RawTxBytes() []byte {
	if r.RawTx.Status != pgtype.Present {
		return nil
	}
	return r.RawTx.Bytes
}

func bytesOrNil(b []byte) pgtype.Bytea {
	if b == nil {
		return pgtype.Bytea{Status: pgtype.Null}
	}
	return pgtype.Bytea{Bytes: b, Status: pgtype.Present}
}

func int8OrNil(v *uint64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{Status: pgtype.Null}
	}
	return pgtype.Int8{Int: int64(*v), Status: pgtype.Present}
}

func textOrNil(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Status: pgtype.Null}
	}
	return pgtype.Text{String: s, Status: pgtype.Present}
}

// NewTxRecord builds an unsaved row from decoded transaction fields.
// eligible_at/expires_at are computed by the caller (Ingest), since
// they depend on wall-clock "now" at submission time; next_action_at
// starts at eligible_at.
func NewTxRecord(chainID uint64, txHash, rawTx, sender, feePayer, nonceKey []byte, nonce uint64,
	validAfter, validBefore *uint64, groupID []byte,
	eligibleAt time.Time, expiresAt *time.Time) *TxRecord {

	r := &TxRecord{
		ChainID:      chainID,
		TxHash:       txHash,
		RawTx:        bytesOrNil(rawTx),
		Sender:       sender,
		FeePayer:     bytesOrNil(feePayer),
		NonceKey:     nonceKey,
		Nonce:        nonce,
		GroupID:      bytesOrNil(groupID),
		ValidAfter:   int8OrNil(validAfter),
		ValidBefore:  int8OrNil(validBefore),
		EligibleAt:   eligibleAt,
		ExpiresAt:    expiresAt,
		Status:       StatusQueued,
		NextActionAt: &eligibleAt,
		Attempts:     0,
	}
	return r
}
