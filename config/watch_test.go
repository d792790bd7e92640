package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan AppConfig, 1)
	go func() {
		_ = Watcher{Path: path, Cooldown: time.Millisecond}.Start(ctx, func(cfg AppConfig) {
			select {
			case updates <- cfg:
			default:
			}
		})
	}()

	// 等 watcher 挂上目录
	time.Sleep(100 * time.Millisecond)
	changed := validYAML + "metrics:\n  addr: :9100\n"
	require.NoError(t, os.WriteFile(path, []byte(changed), 0644))

	select {
	case cfg := <-updates:
		assert.Equal(t, ":9100", cfg.Metrics.Addr)
	case <-time.After(3 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestWatcherIgnoresInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan AppConfig, 1)
	go func() {
		_ = Watcher{Path: path, Cooldown: time.Millisecond}.Start(ctx, func(cfg AppConfig) {
			select {
			case updates <- cfg:
			default:
			}
		})
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("env: [broken"), 0644))

	select {
	case cfg := <-updates:
		t.Fatalf("invalid config should not be delivered: %+v", cfg)
	case <-time.After(500 * time.Millisecond):
	}
}
