package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"algo-engine-go/config"
	"algo-engine-go/engine"
	"algo-engine-go/infrastructure/logger"
	"algo-engine-go/infrastructure/monitor"
	"algo-engine-go/market"
	"algo-engine-go/metrics"
	"algo-engine-go/notify"
	"algo-engine-go/order"
	"algo-engine-go/refdata"
	"algo-engine-go/sim"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	lg, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer lg.Close()
	zlog := lg.Logger

	provider, err := refdata.LoadYAML(cfg.Refdata.Path)
	if err != nil {
		zlog.Fatal("加载证券静态信息失败", zap.Error(err))
	}

	mon := monitor.New(monitor.DefaultConfig())
	if cfg.Metrics.Addr != "" {
		metrics.StartMetricsServerWith(cfg.Metrics.Addr, mon.Handler())
		zlog.Info("指标服务启动", zap.String("addr", cfg.Metrics.Addr))
	}

	// 快照出口：配了 NATS 走总线，否则进程内分发
	var publisher notify.Publisher
	if cfg.NATS.URL != "" {
		p, err := notify.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, zlog)
		if err != nil {
			zlog.Fatal("连接 NATS 失败", zap.Error(err))
		}
		publisher = p
	} else {
		publisher = notify.NewMemoryPublisher()
	}
	defer publisher.Close()

	var loader engine.TickLoader
	if cfg.Backtest.TickDir != "" {
		loader = &market.CSVTickLoader{Dir: cfg.Backtest.TickDir, Log: zlog}
	}

	// 实盘：真实行情驱动的纸面撮合；真实柜台通道由外部系统承接
	var liveFeed market.QuoteFeed
	var liveBook order.Book
	if cfg.Feed.Endpoint != "" {
		ws := market.NewWSFeed(cfg.Feed.Endpoint, zlog)
		book := sim.NewBook()
		if _, err := ws.Subscribe(&market.Subscription{OnDepth: book.OnDepth}); err != nil {
			zlog.Fatal("订阅实盘行情失败", zap.Error(err))
		}
		ws.Start()
		defer ws.Stop()
		liveFeed, liveBook = ws, book
	}

	svc := engine.NewService(engine.Options{
		Workers:   cfg.Engine.Workers,
		Provider:  provider,
		LiveFeed:  liveFeed,
		LiveBook:  liveBook,
		Loader:    loader,
		Publisher: publisher,
		Monitor:   mon,
		Logger:    lg,
	})

	var listener *engine.Listener
	if cfg.NATS.URL != "" {
		listener, err = engine.NewListener(cfg.NATS.URL, svc, zlog)
		if err != nil {
			zlog.Fatal("创建指令监听失败", zap.Error(err))
		}
		if err := listener.Start("algo.instruction", "algo.cancel"); err != nil {
			zlog.Fatal("订阅指令主题失败", zap.Error(err))
		}
		defer listener.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		go watchdogLoop(ctx, interval)
	}

	zlog.Info("算法执行服务就绪",
		zap.String("env", cfg.Env),
		zap.Int("workers", cfg.Engine.Workers),
		zap.Bool("live", liveFeed != nil),
		zap.Bool("backtest", loader != nil))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	zlog.Info("收到退出信号，撤销全部执行中的母单")
	cancel()
	svc.Close()
	zlog.Info("服务退出")
}

func watchdogLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
