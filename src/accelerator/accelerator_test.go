package accelerator

import (
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"testing"
)

func TestAcceleratorTestSuite(t *testing.T) {
	suite.Run(t, new(AcceleratorTestSuite))
}

type AcceleratorTestSuite struct {
	suite.Suite
}

func (s *AcceleratorTestSuite) TestHashHexRoundTrip() {
	hash := make([]byte, 32)
	for i := range hash {
		hash[i] = byte(i)
	}

	member := hashHex(hash)
	require.Equal(s.T(), "0x", member[:2])

	parsed, err := ParseHashHex(member)
	require.Nil(s.T(), err)
	require.Equal(s.T(), hash, parsed)
}

func (s *AcceleratorTestSuite) TestParseHashHexWithoutPrefix() {
	parsed, err := ParseHashHex("00ff")
	require.Nil(s.T(), err)
	require.Equal(s.T(), []byte{0x00, 0xff}, parsed)
}

func (s *AcceleratorTestSuite) TestParseHashHexRejectsGarbage() {
	_, err := ParseHashHex("0xzz")
	require.NotNil(s.T(), err)
}

func (s *AcceleratorTestSuite) TestKeysArePerChain() {
	require.NotEqual(s.T(), readyKey(1), readyKey(2))
	require.NotEqual(s.T(), readyKey(1), retryKey(1))
}
