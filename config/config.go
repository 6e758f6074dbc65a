// Package config loads the broker's runtime configuration from flags,
// environment variables, and an optional file, in a layered
// viper/pflag style (cmd.Run wires the config_file flag through here).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every tunable the server needs to stand up the event pool,
// the station registry, and the protocol listeners.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	Pool PoolConfig `mapstructure:"pool"`

	MaxStations    int `mapstructure:"max_stations"`
	MaxAttachments int `mapstructure:"max_attachments"`

	Listen ListenConfig `mapstructure:"listen"`

	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// PoolConfig sizes the shared event memory pool (spec §2).
type PoolConfig struct {
	NumEvents  int `mapstructure:"num_events"`
	EventSize  int `mapstructure:"event_size"`
	ControlLen int `mapstructure:"control_len"`
	NumGroups  int `mapstructure:"num_groups"`
}

// ListenConfig gives each transport surface its own bind address; leaving
// one blank disables that surface.
type ListenConfig struct {
	Wire  string `mapstructure:"wire"`
	Admin string `mapstructure:"admin"`
	HTTP  string `mapstructure:"http"`
	WS    string `mapstructure:"ws"`
}

// Load builds a Config from defaults, an optional config file (path taken
// from the --config_file flag or ET_CONFIG_FILE), and ET_-prefixed
// environment variables, in that order of increasing precedence.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("et")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("max_stations", 256)
	v.SetDefault("max_attachments", 1024)
	v.SetDefault("read_timeout", 2*time.Second)

	v.SetDefault("pool.num_events", 4096)
	v.SetDefault("pool.event_size", 4096)
	v.SetDefault("pool.control_len", 4)
	v.SetDefault("pool.num_groups", 8)

	v.SetDefault("listen.wire", ":7070")
	v.SetDefault("listen.admin", ":7071")
	v.SetDefault("listen.http", ":7072")
	v.SetDefault("listen.ws", ":7073")
}
