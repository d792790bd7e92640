package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"algo-engine-go/algo"
	"algo-engine-go/engine"
	"algo-engine-go/infrastructure/logger"
	"algo-engine-go/market"
	"algo-engine-go/notify"
	"algo-engine-go/order"
	"algo-engine-go/refdata"
)

// 单笔母单回测脚本。
// 用法：
//
//	go run ./cmd/backtest -ticks data/ticks -refdata data/securities.yaml \
//	  -symbol 600000.SH -side BUY -qty 100000 -strategy VWAP \
//	  -start "2025-03-14 10:00:00" -end "2025-03-14 11:00:00"
func main() {
	tickDir := flag.String("ticks", "data/ticks", "历史行情目录")
	refdataPath := flag.String("refdata", "data/securities.yaml", "证券静态信息文件")
	symbol := flag.String("symbol", "", "证券代码")
	sideStr := flag.String("side", "BUY", "BUY 或 SELL")
	qty := flag.Int("qty", 0, "目标数量")
	strategyStr := flag.String("strategy", "TWAP", "TWAP/VWAP/POV")
	startStr := flag.String("start", "", "起始时刻 2006-01-02 15:04:05")
	endStr := flag.String("end", "", "结束时刻 2006-01-02 15:04:05")
	participateRate := flag.Float64("participateRate", 0, "最大参与率（百分比），0 不限")
	priceLimit := flag.Float64("priceLimit", 0, "限价，0 不限")
	verbose := flag.Bool("v", false, "输出执行日志")
	flag.Parse()

	if *symbol == "" || *qty <= 0 || *startStr == "" || *endStr == "" {
		flag.Usage()
		os.Exit(2)
	}

	start, err := time.ParseInLocation("2006-01-02 15:04:05", *startStr, time.Local)
	if err != nil {
		log.Fatalf("非法起始时刻: %v", err)
	}
	end, err := time.ParseInLocation("2006-01-02 15:04:05", *endStr, time.Local)
	if err != nil {
		log.Fatalf("非法结束时刻: %v", err)
	}

	side := order.SideBuy
	if *sideStr == "SELL" {
		side = order.SideSell
	}

	lg := logger.Nop()
	if *verbose {
		lg, err = logger.New(logger.Config{Level: "debug", Outputs: []string{"stdout"}, Format: "console"})
		if err != nil {
			log.Fatalf("初始化日志失败: %v", err)
		}
	}

	provider, err := refdata.LoadYAML(*refdataPath)
	if err != nil {
		log.Fatalf("加载证券静态信息失败: %v", err)
	}

	pub := notify.NewMemoryPublisher()
	snapshots := pub.Subscribe()

	svc := engine.NewService(engine.Options{
		Workers:   1,
		Provider:  provider,
		Loader:    &market.CSVTickLoader{Dir: *tickDir, Log: lg.Logger},
		Publisher: pub,
		Logger:    lg,
	})

	inst := &algo.Instruction{
		ID:              1,
		Account:         "backtest",
		Symbol:          *symbol,
		Strategy:        algo.Strategy(*strategyStr),
		Mode:            algo.ModeBacktest,
		Side:            side,
		QtyTarget:       *qty,
		StartTime:       start,
		EndTime:         end,
		ParticipateRate: *participateRate,
		PriceLimit:      *priceLimit,
	}
	if err := svc.Submit(inst); err != nil {
		log.Fatalf("回测受理失败: %v", err)
	}

	var final *notify.Snapshot
	for s := range snapshots {
		if s.Final {
			final = s
			break
		}
	}
	svc.Close()
	if final == nil {
		log.Fatal("未收到终态快照")
	}

	printSummary(final)
	if final.Status != string(algo.StatusFinished) {
		os.Exit(1)
	}
}

func printSummary(s *notify.Snapshot) {
	fmt.Printf("symbol          %s\n", s.Symbol)
	fmt.Printf("strategy        %s %s\n", s.Strategy, s.Side)
	fmt.Printf("window          %s ~ %s\n",
		s.StartTime.Format("15:04:05"), s.EndTime.Format("15:04:05"))
	fmt.Printf("status          %s", s.Status)
	if s.ErrMsg != "" {
		fmt.Printf(" (%s)", s.ErrMsg)
	}
	fmt.Println()
	fmt.Printf("qty             %d / %d (filled %.1f%%)\n", s.QtyFilled, s.QtyTarget, s.FilledRate)
	fmt.Printf("orders          %d placed, %d filled, %d canceled, %d rejected\n",
		s.OrderCnt, s.OrderCntFilled, s.OrderCntCanceled, s.OrderCntRejected)
	fmt.Printf("avg price       %.4f\n", s.AvgPrice)
	fmt.Printf("arrive price    %.4f (slippage %.2f bps)\n", s.ArrivePrice, s.SlippageArrivePrice)
	fmt.Printf("market vwap     %.4f (slippage %.2f bps)\n", s.MarketVwapPrice, s.SlippageVWAP)
	fmt.Printf("market twap     %.4f (slippage %.2f bps)\n", s.MarketTwapPrice, s.SlippageTWAP)
	fmt.Printf("maker rate      %.1f%% (maker fill %.1f%%)\n", s.MakerRate, s.MakerFilledRate)
	fmt.Printf("participation   %.2f%%\n", s.ActualParticipateRate)
}
