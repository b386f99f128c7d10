package rpcfleet

import (
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"testing"
)

func TestFleetTestSuite(t *testing.T) {
	suite.Run(t, new(FleetTestSuite))
}

type FleetTestSuite struct {
	suite.Suite
}

func (s *FleetTestSuite) TestToWsURL() {
	require.Equal(s.T(), "wss://rpc.example/ws", toWsURL("https://rpc.example/ws"))
	require.Equal(s.T(), "ws://rpc.example", toWsURL("http://rpc.example"))
	require.Equal(s.T(), "", toWsURL("wss://rpc.example"))
	require.Equal(s.T(), "", toWsURL("garbage"))
}

func (s *FleetTestSuite) TestPickWsURLPrefersExplicit() {
	urls := []string{"https://a.example", "wss://b.example"}
	require.Equal(s.T(), "wss://b.example", pickWsURL(urls))
}

func (s *FleetTestSuite) TestPickWsURLDerivesFromFirstHttp() {
	urls := []string{"https://a.example", "https://b.example"}
	require.Equal(s.T(), "wss://a.example", pickWsURL(urls))
	require.Equal(s.T(), "", pickWsURL(nil))
}

func (s *FleetTestSuite) TestHealthyEndpointsRotation() {
	chain := &ChainRpc{
		Endpoints: []*Endpoint{{URL: "a"}, {URL: "b"}, {URL: "c"}},
	}

	first := chain.HealthyEndpoints(0)
	require.Equal(s.T(), []string{"a", "b", "c"}, urlsOf(first))

	second := chain.HealthyEndpoints(1)
	require.Equal(s.T(), []string{"b", "c", "a"}, urlsOf(second))

	wrapped := chain.HealthyEndpoints(4)
	require.Equal(s.T(), []string{"b", "c", "a"}, urlsOf(wrapped))
}

func (s *FleetTestSuite) TestUnhealthyEndpointsDeprioritized() {
	a := &Endpoint{URL: "a"}
	b := &Endpoint{URL: "b"}
	c := &Endpoint{URL: "c"}
	chain := &ChainRpc{Endpoints: []*Endpoint{a, b, c}}

	for i := 0; i < 5; i++ {
		a.RecordFailure()
	}
	require.False(s.T(), a.Healthy())
	require.Equal(s.T(), []string{"b", "c", "a"}, urlsOf(chain.HealthyEndpoints(0)))

	// One success puts the endpoint back in its rotation slot.
	a.RecordSuccess()
	require.Equal(s.T(), []string{"a", "b", "c"}, urlsOf(chain.HealthyEndpoints(0)))
}

func (s *FleetTestSuite) TestAllUnhealthyKeepsEveryoneInRotation() {
	a := &Endpoint{URL: "a"}
	b := &Endpoint{URL: "b"}
	chain := &ChainRpc{Endpoints: []*Endpoint{a, b}}

	for i := 0; i < 5; i++ {
		a.RecordFailure()
		b.RecordFailure()
	}
	require.Equal(s.T(), []string{"a", "b"}, urlsOf(chain.HealthyEndpoints(0)))
	require.Equal(s.T(), []string{"b", "a"}, urlsOf(chain.HealthyEndpoints(1)))
}

func urlsOf(endpoints []*Endpoint) []string {
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		out = append(out, ep.URL)
	}
	return out
}
