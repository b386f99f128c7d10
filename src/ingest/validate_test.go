package ingest

import (
	"github.com/warp-contracts/tempo-watchtower/src/model"
	"github.com/warp-contracts/tempo-watchtower/src/store"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"testing"
)

func TestValidateTestSuite(t *testing.T) {
	suite.Run(t, new(ValidateTestSuite))
}

type ValidateTestSuite struct {
	suite.Suite
}

func window(nonce uint64, validBefore *uint64) store.NonceWindow {
	return store.NonceWindow{Nonce: nonce, ValidBefore: validBefore}
}

func ptr(v uint64) *uint64 {
	return &v
}

func (s *ValidateTestSuite) TestAcceptsMonotonicOrder() {
	err := validateNonceValidBeforeOrder([]store.NonceWindow{
		window(1, ptr(10)),
		window(2, ptr(10)),
		window(3, ptr(12)),
	})
	require.Nil(s.T(), err)
}

func (s *ValidateTestSuite) TestRejectsDecreasingOrder() {
	err := validateNonceValidBeforeOrder([]store.NonceWindow{
		window(1, ptr(10)),
		window(2, ptr(9)),
	})
	require.ErrorIs(s.T(), err, model.ErrGroupOrder)
}

func (s *ValidateTestSuite) TestOrderIsByNonceNotInput() {
	// Same windows, submitted out of nonce order.
	err := validateNonceValidBeforeOrder([]store.NonceWindow{
		window(2, ptr(9)),
		window(1, ptr(10)),
	})
	require.ErrorIs(s.T(), err, model.ErrGroupOrder)
}

func (s *ValidateTestSuite) TestIgnoresUnsetValidBefore() {
	err := validateNonceValidBeforeOrder([]store.NonceWindow{
		window(1, ptr(10)),
		window(2, nil),
		window(3, ptr(10)),
	})
	require.Nil(s.T(), err)
}

func (s *ValidateTestSuite) TestSingleAndEmptyAlwaysPass() {
	require.Nil(s.T(), validateNonceValidBeforeOrder(nil))
	require.Nil(s.T(), validateNonceValidBeforeOrder([]store.NonceWindow{window(1, ptr(5))}))
}

func (s *ValidateTestSuite) TestSortedUnique() {
	require.Equal(s.T(), []uint64{1, 2, 3}, sortedUnique([]uint64{3, 1, 2, 2, 1}))
	require.Equal(s.T(), []uint64{7}, sortedUnique([]uint64{7, 7}))
	require.Empty(s.T(), sortedUnique(nil))
}
