package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
env: test
engine:
  workers: 2
backtest:
  tickDir: testdata/ticks
refdata:
  path: testdata/securities.yaml
nats:
  url: nats://localhost:4222
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeTemp(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, 2, cfg.Engine.Workers)
	assert.Equal(t, "testdata/ticks", cfg.Backtest.TickDir)
	assert.Equal(t, "algo.performance", cfg.NATS.SubjectPrefix, "默认主题前缀")
	assert.Equal(t, "info", cfg.Logger.Level, "默认日志配置")
}

func TestLoadRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"缺 env", "engine: {workers: 1}\nbacktest: {tickDir: x}\nrefdata: {path: y}"},
		{"缺行情与回测", "env: test\nrefdata: {path: y}"},
		{"缺 refdata", "env: test\nbacktest: {tickDir: x}"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, c.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeTemp(t, "env: [unclosed"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ALGO_NATS_URL", "nats://override:4222")
	cfg, err := LoadWithEnvOverrides(writeTemp(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "nats://override:4222", cfg.NATS.URL)
}
