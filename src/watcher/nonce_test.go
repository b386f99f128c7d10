package watcher

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"testing"
)

func TestNonceCallTestSuite(t *testing.T) {
	suite.Run(t, new(NonceCallTestSuite))
}

type NonceCallTestSuite struct {
	suite.Suite
}

func (s *NonceCallTestSuite) TestGetNonceCallData() {
	account := common.HexToAddress("0x1111111111111111111111111111111111111111")
	nonceKey := make([]byte, 32)
	nonceKey[31] = 0x05

	data := getNonceCallData(account, nonceKey)
	require.Len(s.T(), data, 4+32+32)
	require.Equal(s.T(), crypto.Keccak256([]byte("getNonce(address,uint256)"))[:4], data[:4])
	require.Equal(s.T(), account.Bytes(), data[4+12:4+32])
	require.Equal(s.T(), nonceKey, data[4+32:])
}

func (s *NonceCallTestSuite) TestIsZeroNonceKey() {
	require.True(s.T(), isZeroNonceKey(make([]byte, 32)))

	key := make([]byte, 32)
	key[0] = 1
	require.False(s.T(), isZeroNonceKey(key))
}

func (s *NonceCallTestSuite) TestNonceCacheKeyDistinguishesPairs() {
	a := nonceCacheKey(1, []byte{0xaa}, []byte{0x01})
	b := nonceCacheKey(1, []byte{0xaa}, []byte{0x02})
	c := nonceCacheKey(2, []byte{0xaa}, []byte{0x01})
	require.NotEqual(s.T(), a, b)
	require.NotEqual(s.T(), a, c)
}
