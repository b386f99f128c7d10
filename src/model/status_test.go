package model

import (
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"testing"
)

func TestStatusTestSuite(t *testing.T) {
	suite.Run(t, new(StatusTestSuite))
}

type StatusTestSuite struct {
	suite.Suite
}

func (s *StatusTestSuite) TestTerminalClassification() {
	for _, status := range []TxStatus{StatusExecuted, StatusExpired, StatusInvalid, StatusStaleByNonce, StatusCanceledLocally} {
		require.True(s.T(), status.IsTerminal(), status)
	}
	for _, status := range NonTerminalStatuses {
		require.False(s.T(), status.IsTerminal(), status)
	}
}

func (s *StatusTestSuite) TestParseStatus() {
	status, ok := ParseStatus("retry_scheduled")
	require.True(s.T(), ok)
	require.Equal(s.T(), StatusRetryScheduled, status)

	_, ok = ParseStatus("nonsense")
	require.False(s.T(), ok)

	_, ok = ParseStatus("")
	require.False(s.T(), ok)
}
