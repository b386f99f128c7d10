package config

import "github.com/spf13/viper"

// Scheduler controls the claim/broadcast/backoff loop.
type Scheduler struct {
	PollIntervalMs int
	LeaseTtlSeconds int
	MaxConcurrency int

	RetryMinMs int
	RetryMaxMs int

	ExpirySoonWindowSeconds int
	ExpirySoonRetryMaxMs    int
}

func setSchedulerDefaults() {
	viper.SetDefault("Scheduler.PollIntervalMs", "250")
	viper.SetDefault("Scheduler.LeaseTtlSeconds", "30")
	viper.SetDefault("Scheduler.MaxConcurrency", "32")
	viper.SetDefault("Scheduler.RetryMinMs", "500")
	viper.SetDefault("Scheduler.RetryMaxMs", "60000")
	viper.SetDefault("Scheduler.ExpirySoonWindowSeconds", "30")
	viper.SetDefault("Scheduler.ExpirySoonRetryMaxMs", "2000")
}
