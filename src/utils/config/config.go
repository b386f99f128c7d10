package config

import (
	"bytes"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"
)

// Config stores global configuration
type Config struct {
	// Is development mode on
	IsDevelopment bool

	// Logging level
	LogLevel string

	// Maximum time the process will spend closing before stop is forced.
	StopTimeout time.Duration

	Database    Database
	Accelerator Redis
	Rpc         Rpc
	Scheduler   Scheduler
	Broadcaster Broadcaster
	Watcher     Watcher
	Api         Api
}

func setDefaults() {
	viper.SetDefault("IsDevelopment", "false")
	viper.SetDefault("LogLevel", "info")
	viper.SetDefault("StopTimeout", "30s")

	setDatabaseDefaults()
	setRedisDefaults()
	setRpcDefaults()
	setSchedulerDefaults()
	setBroadcasterDefaults()
	setWatcherDefaults()
	setApiDefaults()
}

func Default() (config *Config) {
	config, _ = Load("")
	return
}

// BindEnv visits every field of the Config struct and registers an upper
// snake case WATCHTOWER_ prefixed env var for it. Maps (Rpc.Chains) have
// dynamic keys unknown at compile time, so they're left to viper/mapstructure
// and the file/defaults layer instead of per-field env binding.
func BindEnv(path []string, val reflect.Value) {
	switch val.Kind() {
	case reflect.Map:
		return
	case reflect.Struct:
		for i := 0; i < val.NumField(); i++ {
			newPath := make([]string, len(path))
			copy(newPath, path)
			newPath = append(newPath, val.Type().Field(i).Name)
			BindEnv(newPath, val.Field(i))
		}
	default:
		key := path[0]
		for _, p := range path[1:] {
			key += "." + p
		}

		env := "WATCHTOWER_" + strcase.ToScreamingSnake(strings.Join(path, "_"))
		err := viper.BindEnv(key, env)
		if err != nil {
			panic(err)
		}
	}
}

func defaultDecoderConfig(output interface{}) *mapstructure.DecoderConfig {
	return &mapstructure.DecoderConfig{
		Result:           output,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}
}

// Load configuration from a JSON (optionally JSON-with-comments) file and env.
func Load(filename string) (config *Config, err error) {
	viper.SetConfigType("json")

	setDefaults()

	// Visits every field and registers upper snake case ENV name for it
	BindEnv([]string{}, reflect.ValueOf(Config{}))

	// Empty filename means we use default values
	if filename != "" {
		var content []byte
		/* #nosec */
		content, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}

		err = viper.ReadConfig(bytes.NewBuffer(jsonc.ToJSON(content)))
		if err != nil {
			return nil, err
		}
	}

	config = new(Config)
	decoder, err := mapstructure.NewDecoder(defaultDecoderConfig(config))
	if err != nil {
		return nil, err
	}

	err = decoder.Decode(viper.AllSettings())
	if err != nil {
		return nil, err
	}

	return
}

// RpcChains converts the string-keyed chain id map loaded from config into
// the uint64-keyed form every other component consumes.
func (self *Config) RpcChains() (map[uint64][]string, error) {
	out := make(map[uint64][]string, len(self.Rpc.Chains))
	for k, v := range self.Rpc.Chains {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q in rpc.chains: %w", k, err)
		}
		out[id] = v
	}
	return out, nil
}
