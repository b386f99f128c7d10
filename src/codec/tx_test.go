package codec

import (
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/warp-contracts/tempo-watchtower/src/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"testing"
)

func TestTxCodecTestSuite(t *testing.T) {
	suite.Run(t, new(TxCodecTestSuite))
}

type TxCodecTestSuite struct {
	suite.Suite

	senderKey   *ecdsa.PrivateKey
	feePayerKey *ecdsa.PrivateKey
	now         time.Time
}

func (s *TxCodecTestSuite) SetupSuite() {
	var err error
	s.senderKey, err = crypto.GenerateKey()
	require.Nil(s.T(), err)
	s.feePayerKey, err = crypto.GenerateKey()
	require.Nil(s.T(), err)
	s.now = time.Unix(1700000000, 0)
}

func (s *TxCodecTestSuite) newPayload() *tempoTxPayload {
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	return &tempoTxPayload{
		ChainID:     big.NewInt(42),
		NonceKey:    new(big.Int).SetBytes([]byte{0x01}),
		Nonce:       7,
		ValidAfter:  uint64(s.now.Unix()),
		ValidBefore: uint64(s.now.Add(time.Hour).Unix()),
		GasTipCap:   big.NewInt(1),
		GasFeeCap:   big.NewInt(100),
		Gas:         21000,
		To:          &to,
		Value:       big.NewInt(0),
		Data:        nil,
	}
}

func (s *TxCodecTestSuite) sign(payload *tempoTxPayload, withFeePayer bool) []byte {
	hash := tempoSigningHash(payload)

	senderSig, err := crypto.Sign(hash.Bytes(), s.senderKey)
	require.Nil(s.T(), err)
	payload.SenderSig = senderSig

	if withFeePayer {
		sender := crypto.PubkeyToAddress(s.senderKey.PublicKey)
		feePayerHash := crypto.Keccak256Hash(sender.Bytes(), hash.Bytes())
		feePayerSig, err := crypto.Sign(feePayerHash.Bytes(), s.feePayerKey)
		require.Nil(s.T(), err)
		payload.HasFeePayer = true
		payload.FeePayerSig = feePayerSig
	} else {
		payload.FeePayerSig = []byte{}
	}

	body, err := rlp.EncodeToBytes(payload)
	require.Nil(s.T(), err)
	return append([]byte{TempoTxType}, body...)
}

func (s *TxCodecTestSuite) TestParseTempoTx() {
	payload := s.newPayload()
	raw := s.sign(payload, false)

	parsed, err := ParseRawTx(raw, s.now)
	require.Nil(s.T(), err)
	require.Equal(s.T(), uint64(42), parsed.ChainID)
	require.Equal(s.T(), crypto.PubkeyToAddress(s.senderKey.PublicKey), parsed.Sender)
	require.Nil(s.T(), parsed.FeePayer)
	require.Equal(s.T(), uint64(7), parsed.Nonce)
	require.Equal(s.T(), crypto.Keccak256Hash(raw), parsed.TxHash)
	require.Len(s.T(), parsed.NonceKey, 32)
	require.Equal(s.T(), byte(0x01), parsed.NonceKey[31])
	require.NotNil(s.T(), parsed.ValidAfter)
	require.NotNil(s.T(), parsed.ValidBefore)
	require.Equal(s.T(), uint64(s.now.Unix()), *parsed.ValidAfter)
}

func (s *TxCodecTestSuite) TestParseTempoTxWithFeePayer() {
	payload := s.newPayload()
	raw := s.sign(payload, true)

	parsed, err := ParseRawTx(raw, s.now)
	require.Nil(s.T(), err)
	require.NotNil(s.T(), parsed.FeePayer)
	require.Equal(s.T(), crypto.PubkeyToAddress(s.feePayerKey.PublicKey), *parsed.FeePayer)
}

func (s *TxCodecTestSuite) TestRejectsExpired() {
	payload := s.newPayload()
	payload.ValidBefore = uint64(s.now.Add(-time.Second).Unix())
	raw := s.sign(payload, false)

	_, err := ParseRawTx(raw, s.now)
	require.ErrorIs(s.T(), err, model.ErrExpired)
}

func (s *TxCodecTestSuite) TestRejectsTrailingGarbage() {
	payload := s.newPayload()
	raw := s.sign(payload, false)
	raw = append(raw, 0x00)

	_, err := ParseRawTx(raw, s.now)
	require.ErrorIs(s.T(), err, model.ErrMalformedTx)
}

func (s *TxCodecTestSuite) TestRejectsTamperedSignature() {
	payload := s.newPayload()
	raw := s.sign(payload, false)

	// Flip a bit in the sender signature's r component.
	payload.SenderSig[3] ^= 0xff
	body, err := rlp.EncodeToBytes(payload)
	require.Nil(s.T(), err)
	tampered := append([]byte{TempoTxType}, body...)
	require.NotEqual(s.T(), raw, tampered)

	parsed, err := ParseRawTx(tampered, s.now)
	// Recovery either fails outright or yields a different address.
	if err == nil {
		require.NotEqual(s.T(), crypto.PubkeyToAddress(s.senderKey.PublicKey), parsed.Sender)
	} else {
		require.ErrorIs(s.T(), err, model.ErrBadSenderSig)
	}
}

func (s *TxCodecTestSuite) TestRejectsEmpty() {
	_, err := ParseRawTx(nil, s.now)
	require.ErrorIs(s.T(), err, model.ErrMalformedTx)
}

func (s *TxCodecTestSuite) TestParseEthDynamicFeeTx() {
	chainID := big.NewInt(5)
	signer := types.LatestSignerForChainID(chainID)
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	tx, err := types.SignNewTx(s.senderKey, signer, &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(100),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	})
	require.Nil(s.T(), err)

	raw, err := tx.MarshalBinary()
	require.Nil(s.T(), err)

	parsed, err := ParseRawTx(raw, s.now)
	require.Nil(s.T(), err)
	require.Equal(s.T(), uint64(5), parsed.ChainID)
	require.Equal(s.T(), crypto.PubkeyToAddress(s.senderKey.PublicKey), parsed.Sender)
	require.Equal(s.T(), uint64(3), parsed.Nonce)
	require.Equal(s.T(), make([]byte, 32), parsed.NonceKey)
	require.Nil(s.T(), parsed.ValidAfter)
	require.Nil(s.T(), parsed.ValidBefore)
}

func (s *TxCodecTestSuite) TestRejectsEthTxTrailingGarbage() {
	chainID := big.NewInt(5)
	signer := types.LatestSignerForChainID(chainID)
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	tx, err := types.SignNewTx(s.senderKey, signer, &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(100),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	})
	require.Nil(s.T(), err)

	raw, err := tx.MarshalBinary()
	require.Nil(s.T(), err)

	_, err = ParseRawTx(append(raw, 0xde, 0xad), s.now)
	require.ErrorIs(s.T(), err, model.ErrMalformedTx)
}
