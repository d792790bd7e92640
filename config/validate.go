package config

import "errors"

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Engine.Workers <= 0 {
		return errors.New("engine.workers must be > 0")
	}
	if cfg.Feed.Endpoint == "" && cfg.Backtest.TickDir == "" {
		return errors.New("either feed.endpoint or backtest.tickDir is required")
	}
	if cfg.Refdata.Path == "" {
		return errors.New("refdata.path is required")
	}
	return nil
}
