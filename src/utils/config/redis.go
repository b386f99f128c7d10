package config

import (
	"time"

	"github.com/spf13/viper"
)

// Redis holds connection settings for the Accelerator's sorted-set backend.
type Redis struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

func setRedisDefaults() {
	viper.SetDefault("Accelerator.URL", "redis://127.0.0.1:6379/0")
	viper.SetDefault("Accelerator.DialTimeout", "5s")
	viper.SetDefault("Accelerator.ReadTimeout", "3s")
	viper.SetDefault("Accelerator.WriteTimeout", "3s")
	viper.SetDefault("Accelerator.PoolSize", "10")
}
