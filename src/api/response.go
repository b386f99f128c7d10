package api

import (
	"encoding/json"
	"math/big"

	"github.com/warp-contracts/tempo-watchtower/src/codec"
	"github.com/warp-contracts/tempo-watchtower/src/model"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/jackc/pgtype"
)

// TxInfo is the JSON shape of one transaction row.
type TxInfo struct {
	ChainID         uint64          `json:"chainId"`
	TxHash          string          `json:"txHash"`
	Sender          string          `json:"sender"`
	FeePayer        *string         `json:"feePayer,omitempty"`
	NonceKey        string          `json:"nonceKey"`
	Nonce           uint64          `json:"nonce"`
	GroupID         *string         `json:"groupId,omitempty"`
	ValidAfter      *uint64         `json:"validAfter"`
	ValidBefore     *uint64         `json:"validBefore"`
	EligibleAt      int64           `json:"eligibleAt"`
	ExpiresAt       *int64          `json:"expiresAt,omitempty"`
	Status          string          `json:"status"`
	NextActionAt    *int64          `json:"nextActionAt,omitempty"`
	Attempts        int32           `json:"attempts"`
	LastError       *string         `json:"lastError,omitempty"`
	LastBroadcastAt *int64          `json:"lastBroadcastAt,omitempty"`
	Receipt         json.RawMessage `json:"receipt,omitempty"`
}

func toTxInfo(r *model.TxRecord) TxInfo {
	info := TxInfo{
		ChainID:    r.ChainID,
		TxHash:     hexutil.Encode(r.TxHash),
		Sender:     hexutil.Encode(r.Sender),
		NonceKey:   nonceKeyHex(r.NonceKey),
		Nonce:      r.Nonce,
		EligibleAt: r.EligibleAt.Unix(),
		Status:     r.Status.String(),
		Attempts:   r.Attempts,
	}

	if r.FeePayer.Status == pgtype.Present {
		v := hexutil.Encode(r.FeePayer.Bytes)
		info.FeePayer = &v
	}
	if r.GroupID.Status == pgtype.Present {
		v := hexutil.Encode(r.GroupID.Bytes)
		info.GroupID = &v
	}
	if r.ValidAfter.Status == pgtype.Present {
		v := uint64(r.ValidAfter.Int)
		info.ValidAfter = &v
	}
	if r.ValidBefore.Status == pgtype.Present {
		v := uint64(r.ValidBefore.Int)
		info.ValidBefore = &v
	}
	if r.ExpiresAt != nil {
		v := r.ExpiresAt.Unix()
		info.ExpiresAt = &v
	}
	if r.NextActionAt != nil {
		v := r.NextActionAt.Unix()
		info.NextActionAt = &v
	}
	if r.LastError.Status == pgtype.Present {
		v := r.LastError.String
		info.LastError = &v
	}
	if r.LastBroadcastAt != nil {
		v := r.LastBroadcastAt.Unix()
		info.LastBroadcastAt = &v
	}
	if r.Receipt.Status == pgtype.Present {
		info.Receipt = json.RawMessage(r.Receipt.Bytes)
	}

	return info
}

// nonceKeyHex renders a nonce key the way the chain tooling does:
// "random" for the random sentinel, otherwise the compact hex of its
// 256-bit value.
func nonceKeyHex(nonceKey []byte) string {
	if codec.IsRandomNonceKey(nonceKey) {
		return "random"
	}
	return hexutil.EncodeBig(new(big.Int).SetBytes(nonceKey))
}

// SubmitResultJSON is one item of a batch submission response.
type SubmitResultJSON struct {
	Ok           bool    `json:"ok"`
	TxHash       *string `json:"txHash,omitempty"`
	Sender       *string `json:"sender,omitempty"`
	NonceKey     *string `json:"nonceKey,omitempty"`
	Nonce        *uint64 `json:"nonce,omitempty"`
	GroupID      *string `json:"groupId,omitempty"`
	EligibleAt   *int64  `json:"eligibleAt,omitempty"`
	ExpiresAt    *int64  `json:"expiresAt,omitempty"`
	Status       *string `json:"status,omitempty"`
	AlreadyKnown *bool   `json:"alreadyKnown,omitempty"`
	Error        *string `json:"error,omitempty"`
}

func toSubmitResult(r *model.TxRecord, alreadyKnown bool) SubmitResultJSON {
	txHash := hexutil.Encode(r.TxHash)
	sender := hexutil.Encode(r.Sender)
	nonceKey := nonceKeyHex(r.NonceKey)
	nonce := r.Nonce
	eligibleAt := r.EligibleAt.Unix()
	status := r.Status.String()

	out := SubmitResultJSON{
		Ok:           true,
		TxHash:       &txHash,
		Sender:       &sender,
		NonceKey:     &nonceKey,
		Nonce:        &nonce,
		EligibleAt:   &eligibleAt,
		Status:       &status,
		AlreadyKnown: &alreadyKnown,
	}
	if r.GroupID.Status == pgtype.Present {
		v := hexutil.Encode(r.GroupID.Bytes)
		out.GroupID = &v
	}
	if r.ExpiresAt != nil {
		v := r.ExpiresAt.Unix()
		out.ExpiresAt = &v
	}
	return out
}

// GroupSummaryJSON is one aggregate row of the group listing.
type GroupSummaryJSON struct {
	ChainID uint64 `json:"chainId"`
	GroupID string `json:"groupId"`
	StartAt int64  `json:"startAt"`
	EndAt   int64  `json:"endAt"`
}

// GroupResponse is the group detail with its cancel preview.
type GroupResponse struct {
	Sender     string            `json:"sender"`
	GroupID    string            `json:"groupId"`
	Members    []GroupMemberJSON `json:"members"`
	CancelPlan CancelPlanJSON    `json:"cancelPlan"`
}

type GroupMemberJSON struct {
	TxHash   string `json:"txHash"`
	NonceKey string `json:"nonceKey"`
	Nonce    uint64 `json:"nonce"`
	Status   string `json:"status"`
}

type CancelPlanJSON struct {
	NonceKey           string   `json:"nonceKey"`
	Nonces             []uint64 `json:"nonces"`
	AlreadyInvalidated bool     `json:"alreadyInvalidated"`
}

type CancelResponse struct {
	Canceled int      `json:"canceled"`
	TxHashes []string `json:"txHashes"`
}
