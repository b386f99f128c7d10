package api

import (
	"math/big"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"testing"
)

func TestApiTestSuite(t *testing.T) {
	suite.Run(t, new(ApiTestSuite))
}

type ApiTestSuite struct {
	suite.Suite
}

func (s *ApiTestSuite) TestParseFixedHex() {
	ok, err := parseFixedHex("0x0102", 2)
	require.Nil(s.T(), err)
	require.Equal(s.T(), []byte{0x01, 0x02}, ok)

	ok, err = parseFixedHex("0102", 2)
	require.Nil(s.T(), err)
	require.Equal(s.T(), []byte{0x01, 0x02}, ok)

	_, err = parseFixedHex("0x01", 2)
	require.NotNil(s.T(), err)

	_, err = parseFixedHex("0x123", 2)
	require.NotNil(s.T(), err)

	_, err = parseFixedHex("0xgg", 1)
	require.NotNil(s.T(), err)
}

func (s *ApiTestSuite) TestSignatureFromHeader() {
	signature, err := signatureFromHeader("Signature 0x0102")
	require.Nil(s.T(), err)
	require.Equal(s.T(), []byte{0x01, 0x02}, signature)

	_, err = signatureFromHeader("")
	require.NotNil(s.T(), err)

	_, err = signatureFromHeader("Bearer 0x0102")
	require.NotNil(s.T(), err)

	_, err = signatureFromHeader("Signature 0x0102 extra")
	require.NotNil(s.T(), err)

	_, err = signatureFromHeader("Signature 0x")
	require.NotNil(s.T(), err)
}

func (s *ApiTestSuite) TestNonceKeyHex() {
	key := make([]byte, 32)
	key[31] = 0x1f
	require.Equal(s.T(), "0x1f", nonceKeyHex(key))

	require.Equal(s.T(), "0x0", nonceKeyHex(make([]byte, 32)))

	random := make([]byte, 32)
	copy(random[32-6:], "random")
	require.Equal(s.T(), "random", nonceKeyHex(random))

	big256 := new(big.Int).Lsh(big.NewInt(1), 255)
	full := make([]byte, 32)
	big256.FillBytes(full)
	require.Equal(s.T(), "0x"+big256.Text(16), nonceKeyHex(full))
}
