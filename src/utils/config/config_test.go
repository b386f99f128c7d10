package config

import (
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"testing"
)

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

type ConfigTestSuite struct {
	suite.Suite
}

func (s *ConfigTestSuite) TestDefaults() {
	conf := Default()
	require.NotNil(s.T(), conf)

	require.Equal(s.T(), "info", conf.LogLevel)
	require.Equal(s.T(), "0.0.0.0:8080", conf.Api.Bind)
	require.Equal(s.T(), 500, conf.Scheduler.RetryMinMs)
	require.Equal(s.T(), 60000, conf.Scheduler.RetryMaxMs)
	require.Equal(s.T(), 30, conf.Scheduler.ExpirySoonWindowSeconds)
	require.Equal(s.T(), 3, conf.Broadcaster.Fanout)
	require.True(s.T(), conf.Watcher.UseWebsocket)
	require.Empty(s.T(), conf.Rpc.Chains)
}

func (s *ConfigTestSuite) TestRpcChains() {
	conf := Default()
	conf.Rpc.Chains = map[string][]string{
		"1":     {"https://a.example"},
		"10143": {"https://b.example", "https://c.example"},
	}

	chains, err := conf.RpcChains()
	require.Nil(s.T(), err)
	require.Len(s.T(), chains, 2)
	require.Equal(s.T(), []string{"https://a.example"}, chains[1])
	require.Len(s.T(), chains[10143], 2)

	conf.Rpc.Chains = map[string][]string{"mainnet": {"https://a.example"}}
	_, err = conf.RpcChains()
	require.NotNil(s.T(), err)
}
