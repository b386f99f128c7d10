package scheduler

import (
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"testing"
)

func TestBackoffTestSuite(t *testing.T) {
	suite.Run(t, new(BackoffTestSuite))
}

type BackoffTestSuite struct {
	suite.Suite
}

func (s *BackoffTestSuite) TestDoublesAndCaps() {
	cases := []struct {
		attempts int32
		want     int
	}{
		{1, 500},
		{2, 1000},
		{3, 2000},
		{8, 60000},
		{20, 60000},
	}
	for _, c := range cases {
		require.Equal(s.T(), c.want, backoffMs(c.attempts, 500, 60000), c.attempts)
	}
}

func (s *BackoffTestSuite) TestNeverBelowMin() {
	require.Equal(s.T(), 500, backoffMs(0, 500, 60000))
	require.Equal(s.T(), 500, backoffMs(-3, 500, 60000))
}

func (s *BackoffTestSuite) TestDelayClampsToExpiry() {
	now := time.Unix(1000, 0)
	expiresAt := now.Add(2 * time.Second)

	delay := nextAttemptDelay(10, 500, 60000, &expiresAt, now, 30*time.Second, 2000)
	require.LessOrEqual(s.T(), delay, 2*time.Second)
}

func (s *BackoffTestSuite) TestCapTightensNearExpiry() {
	now := time.Unix(1000, 0)
	expiresAt := now.Add(10 * time.Second)

	// Within the expiry-soon window the cap is 1000ms, so even at a
	// high attempt count the jittered delay can't exceed it.
	for i := 0; i < 50; i++ {
		delay := nextAttemptDelay(10, 500, 60000, &expiresAt, now, 30*time.Second, 1000)
		require.LessOrEqual(s.T(), delay, time.Second)
	}
}

func (s *BackoffTestSuite) TestFarFromExpiryUsesFullCap() {
	now := time.Unix(1000, 0)
	expiresAt := now.Add(time.Hour)

	seenAboveTightCap := false
	for i := 0; i < 50; i++ {
		delay := nextAttemptDelay(10, 500, 60000, &expiresAt, now, 30*time.Second, 1000)
		require.LessOrEqual(s.T(), delay, 60*time.Second)
		if delay > time.Second {
			seenAboveTightCap = true
		}
	}
	require.True(s.T(), seenAboveTightCap)
}

func (s *BackoffTestSuite) TestJitterStaysInRange() {
	for i := 0; i < 100; i++ {
		j := jitter(1000)
		require.GreaterOrEqual(s.T(), j, 500)
		require.LessOrEqual(s.T(), j, 1000)
	}
	require.Equal(s.T(), 0, jitter(0))
}
