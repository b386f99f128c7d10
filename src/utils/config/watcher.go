package config

import "github.com/spf13/viper"

// Watcher controls confirmation tracking against chain state.
type Watcher struct {
	PollIntervalMs int
	UseWebsocket   bool
	NonceCacheTtlSeconds int
}

func setWatcherDefaults() {
	viper.SetDefault("Watcher.PollIntervalMs", "1000")
	viper.SetDefault("Watcher.UseWebsocket", "true")
	viper.SetDefault("Watcher.NonceCacheTtlSeconds", "10")
}
