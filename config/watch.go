package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 基于 fsnotify 的配置热更新。编辑器保存常触发多个事件，
// 冷却窗口内只重载一次。
type Watcher struct {
	Path     string
	Cooldown time.Duration
}

// Start 监听配置文件变化，重载成功后回调新配置。阻塞直到 ctx 结束。
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if w.Cooldown <= 0 {
		w.Cooldown = 5 * time.Second
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	// 监听目录而不是文件本身，rename+create 式的原子写也能捕获
	if err := fw.Add(filepath.Dir(w.Path)); err != nil {
		return fmt.Errorf("watch %s: %w", w.Path, err)
	}

	target := filepath.Clean(w.Path)
	var lastReload time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if time.Since(lastReload) < w.Cooldown {
				continue
			}
			cfg, err := LoadWithEnvOverrides(w.Path)
			if err != nil {
				// 保留旧配置继续运行
				continue
			}
			lastReload = time.Now()
			if onUpdate != nil {
				onUpdate(cfg)
			}
		case _, ok := <-fw.Errors:
			if !ok {
				return nil
			}
		}
	}
}
