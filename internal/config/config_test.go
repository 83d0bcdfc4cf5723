package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("HISTORYVIEW_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":7777", cfg.Transport.Listen)
	require.True(t, cfg.Transport.AutoDial)
	require.False(t, cfg.History.BroadcastEnabled)
	require.True(t, cfg.UI.DropEnabled)
	require.Equal(t, 5, cfg.UI.PeerRows)
	require.Equal(t, filepath.Join(home, ".local", "share", "historyview", "historyview.db"), cfg.Database.Path)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "file", cfg.Logging.Sink)
	require.NotEmpty(t, cfg.Node.Name)
	require.Empty(t, cfg.Transport.RelayURL)
	require.Equal(t, ":8081", cfg.Relay.Listen)
	require.Equal(t, "historyview", cfg.Relay.RedisPrefix)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[node]
name = "studio"

[transport]
listen = "127.0.0.1:9000"
peers = ["10.0.0.2:7777"]

[history]
broadcast_enabled = true

[relay]
redis = "localhost:6379"

[[keybindings]]
scope = "history"
action = "delete"
keys = ["x"]
`), 0o644))
	t.Setenv("HISTORYVIEW_CONFIG", path)
	t.Setenv("HISTORYVIEW_TRANSPORT_LISTEN", ":9100")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "studio", cfg.Node.Name)
	require.Equal(t, ":9100", cfg.Transport.Listen)
	require.Equal(t, []string{"10.0.0.2:7777"}, cfg.Transport.Peers)
	require.True(t, cfg.History.BroadcastEnabled)
	require.Equal(t, "localhost:6379", cfg.Relay.Redis)
	require.Len(t, cfg.Keybindings, 1)
	require.Equal(t, KeybindingConfig{Scope: "history", Action: "delete", Keys: []string{"x"}}, cfg.Keybindings[0])
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	t.Setenv("HISTORYVIEW_CONFIG", filepath.Join(t.TempDir(), "nope.toml"))
	_, err := Load()
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "out", "config.toml")
	t.Setenv("HISTORYVIEW_CONFIG", path)

	_, err := Load()
	require.Error(t, err, "explicit config path does not exist yet")

	t.Setenv("HISTORYVIEW_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)
	cfg.Node.Name = "saved"
	cfg.History.BroadcastEnabled = true

	t.Setenv("HISTORYVIEW_CONFIG", path)
	require.NoError(t, Save(cfg))

	loaded, err := Load()
	require.NoError(t, err)
	require.Equal(t, "saved", loaded.Node.Name)
	require.True(t, loaded.History.BroadcastEnabled)
}

func TestUpdateKeepsKeybindings(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[node]
name = "studio"

[logging]
max_backups = 9

[[keybindings]]
scope = "playground"
action = "add_note"
keys = ["a"]
`), 0o644))
	t.Setenv("HISTORYVIEW_CONFIG", path)

	require.NoError(t, Update(func(c *Config) { c.History.BroadcastEnabled = true }))

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.History.BroadcastEnabled)
	require.Equal(t, "studio", cfg.Node.Name)
	require.Equal(t, 9, cfg.Logging.MaxBackups)
	require.Equal(t, []KeybindingConfig{{Scope: "playground", Action: "add_note", Keys: []string{"a"}}}, cfg.Keybindings)
}

func TestUpdateCreatesMissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "new", "config.toml")
	t.Setenv("HISTORYVIEW_CONFIG", path)

	require.NoError(t, Update(func(c *Config) { c.History.BroadcastEnabled = true }))

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.History.BroadcastEnabled)
}
