package model

import "time"

// GroupSummary is the derived aggregate over a (chain_id, sender, group_id)
// group.
type GroupSummary struct {
	ChainID uint64 `gorm:"column:chain_id"`
	GroupID []byte `gorm:"column:group_id"`

	StartAt time.Time `gorm:"column:start_at"`
	EndAt   time.Time `gorm:"column:end_at"`
}

// CancelPlan previews what a group cancel would do, without performing it.
type CancelPlan struct {
	NonceKey           []byte
	Nonces             []uint64
	AlreadyInvalidated bool
}
