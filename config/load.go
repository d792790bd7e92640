// Package config 加载与校验服务配置。
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"algo-engine-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env      string         `yaml:"env"`
	Engine   EngineConfig   `yaml:"engine"`
	Feed     FeedConfig     `yaml:"feed"`
	NATS     NATSConfig     `yaml:"nats"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Refdata  RefdataConfig  `yaml:"refdata"`
	Backtest BacktestConfig `yaml:"backtest"`
	Logger   logger.Config  `yaml:"logger"`
}

type EngineConfig struct {
	// Workers 同时执行的回测母单上限，超出的排队
	Workers int `yaml:"workers"`
}

type FeedConfig struct {
	// Endpoint 实盘行情 WebSocket 地址，留空则只接受回测指令
	Endpoint string `yaml:"endpoint"`
}

type NATSConfig struct {
	// URL 留空则快照只在进程内分发
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

type MetricsConfig struct {
	// Addr 指标服务监听地址，留空不启动
	Addr string `yaml:"addr"`
}

type RefdataConfig struct {
	Path string `yaml:"path"`
}

type BacktestConfig struct {
	// TickDir 历史行情目录，留空则不受理回测指令
	TickDir string `yaml:"tickDir"`
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides connection fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("ALGO_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("ALGO_FEED_ENDPOINT"); v != "" {
		cfg.Feed.Endpoint = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = 4
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "algo.performance"
	}
	if cfg.Logger.Level == "" {
		cfg.Logger = logger.DefaultConfig()
	}
}
