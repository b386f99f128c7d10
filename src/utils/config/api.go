package config

import "github.com/spf13/viper"

// Api controls the ingest/cancel HTTP surface.
type Api struct {
	Bind             string
	MaxBodyBytes     int64
	RequestTimeoutMs int

	// Process-wide cap on submissions per second, 0 disables.
	MaxSubmitRps int
}

func setApiDefaults() {
	viper.SetDefault("Api.Bind", "0.0.0.0:8080")
	viper.SetDefault("Api.MaxBodyBytes", "1048576")
	viper.SetDefault("Api.RequestTimeoutMs", "10000")
	viper.SetDefault("Api.MaxSubmitRps", "0")
}
