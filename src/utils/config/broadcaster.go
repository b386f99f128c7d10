package config

import "github.com/spf13/viper"

// Broadcaster controls fan-out behavior towards RPC endpoints.
type Broadcaster struct {
	Fanout    int
	TimeoutMs int
}

func setBroadcasterDefaults() {
	viper.SetDefault("Broadcaster.Fanout", "3")
	viper.SetDefault("Broadcaster.TimeoutMs", "5000")
}
