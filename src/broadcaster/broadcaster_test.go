package broadcaster

import (
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"testing"
)

func TestClassifyTestSuite(t *testing.T) {
	suite.Run(t, new(ClassifyTestSuite))
}

type ClassifyTestSuite struct {
	suite.Suite
}

func (s *ClassifyTestSuite) TestAlreadyKnownIsAccepted() {
	for _, msg := range []string{"already known", "known transaction", "already imported", "already exists"} {
		require.Equal(s.T(), classAccepted, classifyError(msg), msg)
	}
}

func (s *ClassifyTestSuite) TestInvalidIsFatal() {
	for _, msg := range []string{"invalid signature", "fee payer signature invalid", "nonce key invalid", "malformed transaction", "expired"} {
		require.Equal(s.T(), classFatal, classifyError(msg), msg)
	}
}

func (s *ClassifyTestSuite) TestNonceTooLowIsReportedSeparately() {
	require.Equal(s.T(), classNonceTooLow, classifyError("nonce too low"))
	require.Equal(s.T(), classNonceTooLow, classifyError("err: Nonce Too Low: current 6"))
}

func (s *ClassifyTestSuite) TestUnknownIsTransient() {
	for _, msg := range []string{"timeout", "temporary", "connection refused", "insufficient funds for gas"} {
		require.Equal(s.T(), classTransient, classifyError(msg), msg)
	}
}

func (s *ClassifyTestSuite) TestCaseInsensitive() {
	require.Equal(s.T(), classAccepted, classifyError("Already Known"))
}
