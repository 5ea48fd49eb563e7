package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/linchenxuan/lobbyd/event"
	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/network/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "lobbyd.env")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func tcpSection(t *testing.T, cfg *Config) map[string]any {
	t.Helper()
	transports, ok := cfg.Plugin["transport"].(map[string]any)
	require.True(t, ok)
	tcp, ok := transports["tcp"].(map[string]any)
	require.True(t, ok)
	return tcp
}

func TestDefaults(t *testing.T) {
	cfg, err := load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Lobby.MaxChatMessages)
	assert.Equal(t, log.InfoLevel, cfg.Log.LogLevel)
	assert.Equal(t, DefaultAddr, tcpSection(t, cfg)["addr"])
	assert.Equal(t, 5000, cfg.Broadcast.ListingQPS)
}

func TestEnvironmentOverrides(t *testing.T) {
	cfg, err := load("", []string{
		"LOBBYD_LOG_LEVEL=debug",
		"LOBBYD_LOBBY_MAXCHATMESSAGES=20",
		"LOBBYD_DISPATCHER_RECVRATELIMIT=200",
		"LOBBYD_DISPATCHER_MSGFILTER=" + message.NameGameData + "," + message.NameStartGame,
		"LOBBYD_PLUGIN_TRANSPORT_TCP_ADDR=:6000",
		"LOBBYD_PLUGIN_TRANSPORT_KCP_ADDR=:6001",
		"PATH=/usr/bin",
	})
	require.NoError(t, err)

	assert.Equal(t, log.DebugLevel, cfg.Log.LogLevel)
	assert.Equal(t, 20, cfg.Lobby.MaxChatMessages)
	assert.Equal(t, 200, cfg.Dispatcher.RecvRateLimit)
	assert.Equal(t, []string{message.NameGameData, message.NameStartGame}, cfg.Dispatcher.MsgFilter.MsgFilter)

	tcp := tcpSection(t, cfg)
	assert.Equal(t, ":6000", tcp["addr"])
	assert.Equal(t, "default", tcp["tag"], "defaults survive a partial override")
	kcp := cfg.Plugin["transport"].(map[string]any)["kcp"].(map[string]any)
	assert.Equal(t, ":6001", kcp["addr"])
}

func TestEnvFileAndPrecedence(t *testing.T) {
	path := writeEnv(t, t.TempDir(), "LOBBYD_LOBBY_MAXCHATMESSAGES=30\nLOBBYD_BROADCAST_LISTINGQPS=10\n")

	cfg, err := load(path, []string{"LOBBYD_BROADCAST_LISTINGQPS=20"})
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Lobby.MaxChatMessages)
	assert.Equal(t, 20, cfg.Broadcast.ListingQPS, "the environment wins over the file")

	cfg, err = load(filepath.Join(t.TempDir(), "missing.env"), nil)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Lobby.MaxChatMessages)
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		environ []string
	}{
		{"negative chat bound", []string{"LOBBYD_LOBBY_MAXCHATMESSAGES=-1"}},
		{"not a number", []string{"LOBBYD_LOBBY_MAXCHATMESSAGES=many"}},
		{"unknown filtered record", []string{"LOBBYD_DISPATCHER_MSGFILTER=Nope"}},
		{"leaf and branch", []string{"LOBBYD_LOG=x", "LOBBYD_LOG_LEVEL=debug"}},
		{"empty segment", []string{"LOBBYD_LOG__LEVEL=debug"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load("", tt.environ)
			assert.Error(t, err)
		})
	}

	cfg := Default()
	cfg.Plugin = map[string]any{}
	assert.ErrorIs(t, cfg.Validate(), ErrNoTransport)
}

func TestWatcherPublishesReload(t *testing.T) {
	dir := t.TempDir()
	path := writeEnv(t, dir, "LOBBYD_LOBBY_MAXCHATMESSAGES=30\n")

	pub := event.NewPublisher()
	got := make(chan *Config, 16)
	require.NoError(t, pub.RegisterSubscriber(event.ReloadConfig, func(v any) {
		got <- v.(*Config)
	}))

	w, err := NewWatcher(path, pub)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.NoError(t, os.WriteFile(path, []byte("LOBBYD_LOBBY_MAXCHATMESSAGES=40\n"), 0o600))
	// The truncating write may publish the defaults first.
	deadline := time.After(3 * time.Second)
	for {
		select {
		case cfg := <-got:
			if cfg.Lobby.MaxChatMessages == 40 {
				return
			}
		case <-deadline:
			t.Fatalf("no reload with the new value published")
		}
	}
}
