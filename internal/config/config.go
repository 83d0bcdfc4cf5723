package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/finestructure/historyview/internal/logging"
)

// Config holds application configuration.
type Config struct {
	Node        NodeConfig         `mapstructure:"node"`
	Transport   TransportConfig    `mapstructure:"transport"`
	Relay       RelayConfig        `mapstructure:"relay"`
	History     HistoryConfig      `mapstructure:"history"`
	Database    DatabaseConfig     `mapstructure:"database"`
	UI          UIConfig           `mapstructure:"ui"`
	Logging     logging.Config     `mapstructure:"logging"`
	Keybindings []KeybindingConfig `mapstructure:"keybindings"`
}

// NodeConfig identifies this node to its peers.
type NodeConfig struct {
	Name string `mapstructure:"name"`
}

// TransportConfig holds peer networking settings.
type TransportConfig struct {
	Listen   string   `mapstructure:"listen"`
	Peers    []string `mapstructure:"peers"`
	AutoDial bool     `mapstructure:"auto_dial"`

	// RelayURL, when set, replaces direct TCP peering with a websocket relay room.
	RelayURL string `mapstructure:"relay_url"`
}

// RelayConfig holds settings for the relay server command.
type RelayConfig struct {
	Listen      string `mapstructure:"listen"`
	Redis       string `mapstructure:"redis"`
	RedisPrefix string `mapstructure:"redis_prefix"`
}

// HistoryConfig holds history view behaviour.
type HistoryConfig struct {
	BroadcastEnabled bool `mapstructure:"broadcast_enabled"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// UIConfig holds presentation settings.
type UIConfig struct {
	DropEnabled bool `mapstructure:"drop_enabled"`
	PeerRows    int  `mapstructure:"peer_rows"`
}

// KeybindingConfig overrides the keys of one action in one scope.
type KeybindingConfig struct {
	Scope  string   `mapstructure:"scope"`
	Action string   `mapstructure:"action"`
	Keys   []string `mapstructure:"keys"`
}

// DataDir is where the database and log file live by default.
func DataDir() string {
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "historyview")
}

func defaultNodeName() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		return "historyview"
	}
	return host
}

// Load reads configuration from file and env. Env var overrides use prefix HISTORYVIEW_.
func Load() (Config, error) {
	return load(false)
}

// Update loads the config, applies fn and saves the result. A missing
// config file is created.
func Update(fn func(*Config)) error {
	cfg, err := load(true)
	if err != nil {
		return err
	}
	fn(&cfg)
	return Save(cfg)
}

func load(allowMissing bool) (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("node.name", defaultNodeName())
	v.SetDefault("transport.listen", ":7777")
	v.SetDefault("transport.peers", []string{})
	v.SetDefault("transport.auto_dial", true)
	v.SetDefault("transport.relay_url", "")
	v.SetDefault("relay.listen", ":8081")
	v.SetDefault("relay.redis", "")
	v.SetDefault("relay.redis_prefix", "historyview")
	v.SetDefault("history.broadcast_enabled", false)
	v.SetDefault("database.path", filepath.Join(DataDir(), "historyview.db"))
	v.SetDefault("ui.drop_enabled", true)
	v.SetDefault("ui.peer_rows", 5)
	def := logging.DefaultConfig()
	v.SetDefault("logging.level", def.Level)
	v.SetDefault("logging.format", def.Format)
	v.SetDefault("logging.sink", def.Sink)
	v.SetDefault("logging.file", filepath.Join(DataDir(), "historyview.log"))
	v.SetDefault("logging.add_source", def.AddSource)
	v.SetDefault("logging.max_size_mb", def.MaxSizeMB)
	v.SetDefault("logging.max_backups", def.MaxBackups)
	v.SetDefault("logging.max_age_days", def.MaxAgeDays)
	v.SetDefault("logging.compress", def.Compress)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("HISTORYVIEW_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "historyview"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("HISTORYVIEW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	if !allowMissing || !missingFile(cfgPath) {
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); cfgPath != "" || !notFound {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

func missingFile(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}

// Save writes the provided config to disk, creating the config directory if needed.
func Save(cfg Config) error {
	path := os.Getenv("HISTORYVIEW_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "historyview", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("node.name", cfg.Node.Name)
	v.Set("transport.listen", cfg.Transport.Listen)
	v.Set("transport.peers", cfg.Transport.Peers)
	v.Set("transport.auto_dial", cfg.Transport.AutoDial)
	v.Set("transport.relay_url", cfg.Transport.RelayURL)
	v.Set("relay.listen", cfg.Relay.Listen)
	v.Set("relay.redis", cfg.Relay.Redis)
	v.Set("relay.redis_prefix", cfg.Relay.RedisPrefix)
	v.Set("history.broadcast_enabled", cfg.History.BroadcastEnabled)
	v.Set("database.path", cfg.Database.Path)
	v.Set("ui.drop_enabled", cfg.UI.DropEnabled)
	v.Set("ui.peer_rows", cfg.UI.PeerRows)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("logging.format", cfg.Logging.Format)
	v.Set("logging.sink", cfg.Logging.Sink)
	v.Set("logging.file", cfg.Logging.File)
	v.Set("logging.add_source", cfg.Logging.AddSource)
	v.Set("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.Set("logging.max_backups", cfg.Logging.MaxBackups)
	v.Set("logging.max_age_days", cfg.Logging.MaxAgeDays)
	v.Set("logging.compress", cfg.Logging.Compress)
	if len(cfg.Keybindings) > 0 {
		kb := make([]map[string]any, 0, len(cfg.Keybindings))
		for _, b := range cfg.Keybindings {
			kb = append(kb, map[string]any{"scope": b.Scope, "action": b.Action, "keys": b.Keys})
		}
		v.Set("keybindings", kb)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
