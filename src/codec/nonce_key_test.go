package codec

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"testing"
)

func TestNonceKeyTestSuite(t *testing.T) {
	suite.Run(t, new(NonceKeyTestSuite))
}

type NonceKeyTestSuite struct {
	suite.Suite
}

func (s *NonceKeyTestSuite) payrollKey() []byte {
	scope := make([]byte, 8)
	copy(scope, "PAYROLL")
	group := make([]byte, 4)
	binary.BigEndian.PutUint32(group, 0x0f42)
	memo := make([]byte, 12)
	copy(memo, "JAN-2026")

	key, err := EncodeNonceKey(0x02, 0x0011, scope, group, memo)
	require.Nil(s.T(), err)
	return key
}

func (s *NonceKeyTestSuite) TestParseGrouped() {
	key := s.payrollKey()

	grouped, ok := ParseNonceKey(key)
	require.True(s.T(), ok)
	require.Equal(s.T(), uint8(0x02), grouped.Kind)
	require.Equal(s.T(), uint16(0x0011), grouped.Flags)
	require.Equal(s.T(), "PAYROLL", grouped.Scope.Value)
	require.Equal(s.T(), EncodingAscii, grouped.Scope.Encoding)
	require.Equal(s.T(), "3906", grouped.Group.Value)
	require.Equal(s.T(), EncodingNumeric, grouped.Group.Encoding)
	require.Equal(s.T(), "JAN-2026", grouped.Memo.Value)
}

func (s *NonceKeyTestSuite) TestGroupID16IsKeccakPrefix() {
	key := s.payrollKey()

	grouped, ok := ParseNonceKey(key)
	require.True(s.T(), ok)

	expected := crypto.Keccak256(key)[:16]
	require.Equal(s.T(), expected, grouped.GroupID16)
	require.Equal(s.T(), expected, GroupID16(key))
}

func (s *NonceKeyTestSuite) TestEncodeIsStable() {
	scope := make([]byte, 8)
	copy(scope, "PAYROLL")
	group := make([]byte, 4)
	binary.BigEndian.PutUint32(group, 0x0f42)
	memo := make([]byte, 12)
	copy(memo, "JAN-2026")

	first, err := EncodeNonceKey(0x02, 0x0011, scope, group, memo)
	require.Nil(s.T(), err)
	second, err := EncodeNonceKey(0x02, 0x0011, scope, group, memo)
	require.Nil(s.T(), err)
	require.Equal(s.T(), first, second)

	// The wire fields survive in place.
	require.Equal(s.T(), []byte("NKG1"), first[0:4])
	require.Equal(s.T(), scope, first[8:16])
	require.Equal(s.T(), group, first[16:20])
	require.Equal(s.T(), memo, first[20:32])
}

func (s *NonceKeyTestSuite) TestRejectsBadMagic() {
	key := s.payrollKey()
	key[0] = 'X'
	_, ok := ParseNonceKey(key)
	require.False(s.T(), ok)
}

func (s *NonceKeyTestSuite) TestRejectsBadVersion() {
	key := s.payrollKey()
	key[4] = 0x02
	_, ok := ParseNonceKey(key)
	require.False(s.T(), ok)
}

func (s *NonceKeyTestSuite) TestRejectsReservedFlagBits() {
	key := s.payrollKey()
	binary.BigEndian.PutUint16(key[6:8], 0x0100)
	_, ok := ParseNonceKey(key)
	require.False(s.T(), ok)
}

func (s *NonceKeyTestSuite) TestRejectsReservedEncodingValues() {
	key := s.payrollKey()
	// Encoding value 2 is reserved in every field pair.
	binary.BigEndian.PutUint16(key[6:8], 0b000010)
	_, ok := ParseNonceKey(key)
	require.False(s.T(), ok)
}

func (s *NonceKeyTestSuite) TestRejectsNonAsciiInAsciiField() {
	key := s.payrollKey()
	key[9] = 0x01
	_, ok := ParseNonceKey(key)
	require.False(s.T(), ok)
}

func (s *NonceKeyTestSuite) TestRejectsWrongLength() {
	require.False(s.T(), IsGroupedNonceKey(make([]byte, 31)))
	require.False(s.T(), IsGroupedNonceKey(nil))
}

func (s *NonceKeyTestSuite) TestPlainKeysAreUngrouped() {
	_, ok := ParseNonceKey(make([]byte, 32))
	require.False(s.T(), ok)
}

func (s *NonceKeyTestSuite) TestNumericScopeDisplay() {
	scope := make([]byte, 8)
	binary.BigEndian.PutUint64(scope, 12345)
	group := make([]byte, 4)
	memo := make([]byte, 12)

	key, err := EncodeNonceKey(0x01, 0x0000, scope, group, memo)
	require.Nil(s.T(), err)

	grouped, ok := ParseNonceKey(key)
	require.True(s.T(), ok)
	require.Equal(s.T(), "12345", grouped.Scope.Value)
	require.Equal(s.T(), "0", grouped.Group.Value)
}

func (s *NonceKeyTestSuite) TestIsRandomNonceKey() {
	key := make([]byte, 32)
	copy(key[32-6:], "random")
	require.True(s.T(), IsRandomNonceKey(key))
	require.False(s.T(), IsRandomNonceKey(make([]byte, 32)))
	require.False(s.T(), IsRandomNonceKey(s.payrollKey()))
}
