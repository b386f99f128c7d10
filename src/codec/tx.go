package codec

import (
	"bytes"
	"fmt"
	"math/big"
	"time"

	"github.com/warp-contracts/tempo-watchtower/src/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// TempoTxType is the EIP-2718 type byte for Tempo's native envelope,
// carrying a structured nonce key and an optional sponsor (fee payer)
// signature alongside the usual transaction fields.
const TempoTxType = 0x7c

// ParsedTx is everything the rest of the system needs out of a signed
// raw transaction.
type ParsedTx struct {
	TxHash      common.Hash
	ChainID     uint64
	Sender      common.Address
	FeePayer    *common.Address
	NonceKey    []byte // 32 bytes, all zero for an ungrouped/plain tx
	Nonce       uint64
	ValidAfter  *uint64
	ValidBefore *uint64
	RawTx       []byte
}

// tempoTxPayload is the RLP body of a TempoTxType envelope: the fields
// the chain signs over, followed by the two signatures.
type tempoTxPayload struct {
	ChainID      *big.Int
	NonceKey     *big.Int
	Nonce        uint64
	ValidAfter   uint64 // 0 means "unset"
	ValidBefore  uint64 // 0 means "unset"
	GasTipCap    *big.Int
	GasFeeCap    *big.Int
	Gas          uint64
	To           *common.Address `rlp:"nil"`
	Value        *big.Int
	Data         []byte
	SenderSig    []byte // 65 bytes r||s||v
	HasFeePayer  bool
	FeePayerSig  []byte // 65 bytes r||s||v, present iff HasFeePayer
}

// ParseRawTx dispatches on the leading type byte: TempoTxType uses the
// structured envelope above, anything else is decoded as a standard
// EIP-2718 (or legacy) Ethereum transaction. Decoding is strict:
// unsupported types and trailing garbage fail.
func ParseRawTx(raw []byte, now time.Time) (*ParsedTx, error) {
	if len(raw) == 0 {
		return nil, model.ErrMalformedTx
	}

	txHash := crypto.Keccak256Hash(raw)

	var parsed *ParsedTx
	var err error
	if raw[0] == TempoTxType {
		parsed, err = parseTempoTx(raw, txHash)
	} else {
		parsed, err = parseEthTx(raw, txHash)
	}
	if err != nil {
		return nil, err
	}

	if parsed.ValidBefore != nil && *parsed.ValidBefore < uint64(now.Unix()) {
		return nil, model.ErrExpired
	}

	return parsed, nil
}

func parseTempoTx(raw []byte, txHash common.Hash) (*ParsedTx, error) {
	body := raw[1:]

	var payload tempoTxPayload
	stream := rlp.NewStream(bytes.NewReader(body), uint64(len(body)))
	if err := stream.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrMalformedTx, err)
	}
	// Strict decoding: reject trailing bytes after the RLP list.
	if remaining, _ := stream.Bytes(); len(remaining) != 0 {
		return nil, model.ErrMalformedTx
	}

	if payload.ChainID == nil || payload.NonceKey == nil || payload.Value == nil {
		return nil, model.ErrMalformedTx
	}

	signingHash := tempoSigningHash(&payload)

	sender, err := recoverAddress(signingHash, payload.SenderSig)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrBadSenderSig, err)
	}

	var feePayer *common.Address
	if payload.HasFeePayer {
		feePayerHash := crypto.Keccak256Hash(sender.Bytes(), signingHash.Bytes())
		addr, err := recoverAddress(feePayerHash, payload.FeePayerSig)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", model.ErrBadFeePayerSig, err)
		}
		feePayer = &addr
	}

	nonceKeyBytes := make([]byte, 32)
	payload.NonceKey.FillBytes(nonceKeyBytes)

	result := &ParsedTx{
		TxHash:   txHash,
		ChainID:  payload.ChainID.Uint64(),
		Sender:   sender,
		FeePayer: feePayer,
		NonceKey: nonceKeyBytes,
		Nonce:    payload.Nonce,
		RawTx:    raw,
	}
	if payload.ValidAfter != 0 {
		v := payload.ValidAfter
		result.ValidAfter = &v
	}
	if payload.ValidBefore != 0 {
		v := payload.ValidBefore
		result.ValidBefore = &v
	}

	return result, nil
}

// tempoSigningHash hashes every field the sender signs over, i.e.
// everything except the two signatures themselves.
func tempoSigningHash(p *tempoTxPayload) common.Hash {
	signed := struct {
		ChainID     *big.Int
		NonceKey    *big.Int
		Nonce       uint64
		ValidAfter  uint64
		ValidBefore uint64
		GasTipCap   *big.Int
		GasFeeCap   *big.Int
		Gas         uint64
		To          *common.Address `rlp:"nil"`
		Value       *big.Int
		Data        []byte
	}{p.ChainID, p.NonceKey, p.Nonce, p.ValidAfter, p.ValidBefore, p.GasTipCap, p.GasFeeCap, p.Gas, p.To, p.Value, p.Data}

	enc, err := rlp.EncodeToBytes(&signed)
	if err != nil {
		// Unreachable for well-typed fields; keep the function total.
		return common.Hash{}
	}
	return crypto.Keccak256Hash(append([]byte{TempoTxType}, enc...))
}

func recoverAddress(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("codec: signature must be 65 bytes, got %d", len(sig))
	}

	// go-ethereum's Ecrecover expects v in {0,1}; accept both {0,1} and
	// the legacy {27,28} convention.
	sigCopy := make([]byte, 65)
	copy(sigCopy, sig)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}

	pub, err := crypto.SigToPub(hash.Bytes(), sigCopy)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func parseEthTx(raw []byte, txHash common.Hash) (*ParsedTx, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrMalformedTx, err)
	}

	switch tx.Type() {
	case types.BlobTxType, types.SetCodeTxType:
		return nil, fmt.Errorf("%w: unsupported tx type 0x%02x", model.ErrMalformedTx, tx.Type())
	}

	chainID := tx.ChainId()
	if chainID == nil || chainID.Sign() == 0 {
		return nil, fmt.Errorf("%w: missing chainId", model.ErrUnsupportedChain)
	}

	signer := types.LatestSignerForChainID(chainID)
	sender, err := types.Sender(signer, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrBadSenderSig, err)
	}

	return &ParsedTx{
		TxHash:   txHash,
		ChainID:  chainID.Uint64(),
		Sender:   sender,
		FeePayer: nil,
		NonceKey: make([]byte, 32),
		Nonce:    tx.Nonce(),
		RawTx:    raw,
	}, nil
}
