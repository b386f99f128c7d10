package config

import "github.com/spf13/viper"

// Rpc holds the per-chain pool of JSON-RPC endpoint URLs consumed by RpcFleet.
// Chains is keyed by decimal chain id, e.g. "1": ["https://rpc-a", "https://rpc-b"].
type Rpc struct {
	Chains map[string][]string
}

func setRpcDefaults() {
	viper.SetDefault("Rpc.Chains", map[string][]string{})
}
