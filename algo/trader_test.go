package algo

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algo-engine-go/infrastructure/logger"
	"algo-engine-go/market"
	"algo-engine-go/order"
	"algo-engine-go/refdata"
	"algo-engine-go/sim"
)

func testProvider() refdata.Provider {
	return &refdata.StaticProvider{Securities: map[string]*refdata.SecurityInfo{
		"600000.SH": {
			Symbol: "600000.SH", MinOrderQty: 100, LotSize: 100, TickSize: 0.01,
			PreClose: 10, LowLimit: 9, HighLimit: 11,
		},
		"600999.SH": {
			Symbol: "600999.SH", MinOrderQty: 100, LotSize: 100, TickSize: 0.01,
			PreClose: 10, IsSuspended: true,
		},
	}}
}

func backtestInstruction(id uint64, qty int, start, end time.Time) *Instruction {
	return &Instruction{
		ID: id, Account: "acct01", Symbol: "600000.SH",
		Strategy: StrategyTWAP, Mode: ModeBacktest,
		Side: order.SideBuy, QtyTarget: qty,
		StartTime: start, EndTime: end,
	}
}

// replayTicks 构造流动性充足的五档行情序列。
func replayTicks(from, to time.Time, step time.Duration) []market.Depth {
	var ticks []market.Depth
	volume := int64(100000)
	amount := 1000000.0
	for at := from; !at.After(to); at = at.Add(step) {
		volume += 1000
		amount += 10000
		ticks = append(ticks, market.Depth{
			Symbol:    "600000.SH",
			QuoteTime: at,
			Price:     10.00,
			PreClose:  10,
			Volume:    volume,
			Amount:    amount,
			Bids:      [5]market.Level{{Price: 10.01, Volume: 100000}, {Price: 10.00, Volume: 100000}, {Price: 9.99, Volume: 100000}, {Price: 9.98, Volume: 100000}, {Price: 9.97, Volume: 100000}},
			Asks:      [5]market.Level{{Price: 10.02, Volume: 100000}, {Price: 10.03, Volume: 100000}, {Price: 10.04, Volume: 100000}, {Price: 10.05, Volume: 100000}, {Price: 10.06, Volume: 100000}},
		})
	}
	return ticks
}

func TestPreStartCheckRejectsBadInstruction(t *testing.T) {
	start := time.Date(2025, 3, 14, 10, 0, 0, 0, time.Local)
	cases := []struct {
		name string
		mod  func(i *Instruction)
	}{
		{"数量为零", func(i *Instruction) { i.QtyTarget = 0 }},
		{"账户为空", func(i *Instruction) { i.Account = "" }},
		{"方向非法", func(i *Instruction) { i.Side = order.SideUnknown }},
		{"买入不足最小申报数量", func(i *Instruction) { i.QtyTarget = 50 }},
		{"证券不存在", func(i *Instruction) { i.Symbol = "999999.SH" }},
		{"停牌", func(i *Instruction) { i.Symbol = "600999.SH" }},
		{"窗口倒挂", func(i *Instruction) { i.EndTime = i.StartTime.Add(-time.Minute) }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			inst := backtestInstruction(1, 1000, start, start.Add(time.Hour))
			c.mod(inst)
			tr := NewTrader(inst, testProvider(), market.NewReplayFeed(nil), sim.NewBook(),
				NewReplayClock(start), logger.Nop(), nil)
			assert.Error(t, tr.preStartCheck())
		})
	}
}

func TestPreStartCheckNormalizesWindow(t *testing.T) {
	// 起始落在午休，顺延到 13:00；结束超过收盘竞价，截断到 14:57
	start := time.Date(2025, 3, 14, 12, 0, 0, 0, time.Local)
	end := time.Date(2025, 3, 14, 15, 30, 0, 0, time.Local)
	inst := backtestInstruction(2, 1000, start, end)
	tr := NewTrader(inst, testProvider(), market.NewReplayFeed(nil), sim.NewBook(),
		NewReplayClock(start), logger.Nop(), nil)
	require.NoError(t, tr.preStartCheck())

	s, e := tr.Window()
	assert.Equal(t, time.Date(2025, 3, 14, 13, 0, 0, 0, time.Local), s)
	assert.Equal(t, time.Date(2025, 3, 14, 14, 57, 0, 0, time.Local), e)
}

func TestPreStartCheckEndInNoonBreak(t *testing.T) {
	start := time.Date(2025, 3, 14, 11, 0, 0, 0, time.Local)
	end := time.Date(2025, 3, 14, 12, 30, 0, 0, time.Local)
	inst := backtestInstruction(3, 1000, start, end)
	tr := NewTrader(inst, testProvider(), market.NewReplayFeed(nil), sim.NewBook(),
		NewReplayClock(start), logger.Nop(), nil)
	require.NoError(t, tr.preStartCheck())

	_, e := tr.Window()
	assert.Equal(t, time.Date(2025, 3, 14, 11, 30, 0, 0, time.Local), e)
}

func TestBacktestRunsToFinished(t *testing.T) {
	start := time.Date(2025, 3, 14, 10, 0, 0, 0, time.Local)
	end := start.Add(time.Minute)
	inst := backtestInstruction(10, 1500, start, end)

	feed := market.NewReplayFeed(replayTicks(start.Add(-2*time.Second), end.Add(30*time.Second), 2*time.Second))
	book := sim.NewBook()
	clock := NewReplayClock(start)
	book.SetClock(clock.Now)

	// 撮合模拟与调度器共用同一行情源
	feed.Subscribe(&market.Subscription{
		Symbols: map[string]struct{}{"600000.SH": {}},
		OnDepth: book.OnDepth,
	})

	var finalSeen atomic.Bool
	tr := NewTrader(inst, testProvider(), feed, book, clock, logger.Nop(),
		func(t *Trader, final bool) {
			if final {
				finalSeen.Store(true)
			}
		})

	runDone := make(chan struct{})
	go func() {
		tr.Run()
		close(runDone)
	}()

	// 等调度器完成订阅后再放行情
	require.Eventually(t, func() bool {
		st, _ := tr.Status()
		return st == StatusRunning
	}, 2*time.Second, 5*time.Millisecond)
	feed.Start()

	select {
	case <-runDone:
	case <-time.After(10 * time.Second):
		t.Fatal("backtest did not finish")
	}

	st, errMsg := tr.Status()
	assert.Equal(t, StatusFinished, st, "errMsg=%s", errMsg)
	assert.Empty(t, errMsg)
	assert.True(t, finalSeen.Load(), "终态快照必须发布")

	perf := tr.Performance()
	require.NotNil(t, perf)
	assert.Equal(t, 1500, perf.QtyFilled)
	assert.GreaterOrEqual(t, perf.AvgPrice, 10.00)
	assert.LessOrEqual(t, perf.AvgPrice, 10.03)
	assert.Greater(t, perf.ArrivePrice, 0.0)
}

// 数量守恒：任一时刻报出量不超过目标，成交+撤销+拒绝不超过报出量，
// 终态后聚合结果冻结。
func TestQuantityConservationThroughLifecycle(t *testing.T) {
	start := time.Date(2025, 3, 14, 10, 0, 0, 0, time.Local)
	end := start.Add(time.Minute)
	inst := backtestInstruction(13, 1500, start, end)

	feed := market.NewReplayFeed(replayTicks(start.Add(-2*time.Second), end.Add(30*time.Second), 2*time.Second))
	book := sim.NewBook()
	clock := NewReplayClock(start)
	book.SetClock(clock.Now)
	feed.Subscribe(&market.Subscription{
		Symbols: map[string]struct{}{"600000.SH": {}},
		OnDepth: book.OnDepth,
	})

	var mu sync.Mutex
	var violations []string
	samples := 0
	tr := NewTrader(inst, testProvider(), feed, book, clock, logger.Nop(),
		func(at *Trader, final bool) {
			v := at.PerformanceView()
			if v == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			samples++
			if v.Qty > v.QtyTarget {
				violations = append(violations,
					fmt.Sprintf("qty %d exceeds target %d", v.Qty, v.QtyTarget))
			}
			if v.QtyFilled+v.QtyCanceled+v.QtyRejected > v.Qty {
				violations = append(violations,
					fmt.Sprintf("filled %d + canceled %d + rejected %d exceeds qty %d",
						v.QtyFilled, v.QtyCanceled, v.QtyRejected, v.Qty))
			}
			if v.QtyFilled < 0 || v.QtyCanceled < 0 || v.QtyRejected < 0 {
				violations = append(violations,
					fmt.Sprintf("negative counter: filled %d canceled %d rejected %d",
						v.QtyFilled, v.QtyCanceled, v.QtyRejected))
			}
		})

	runDone := make(chan struct{})
	go func() {
		tr.Run()
		close(runDone)
	}()

	require.Eventually(t, func() bool {
		st, _ := tr.Status()
		return st == StatusRunning
	}, 2*time.Second, 5*time.Millisecond)
	feed.Start()

	select {
	case <-runDone:
	case <-time.After(10 * time.Second):
		t.Fatal("backtest did not finish")
	}

	mu.Lock()
	assert.Positive(t, samples, "快照回调必须被触发")
	assert.Empty(t, violations)
	mu.Unlock()

	frozen := tr.PerformanceView()
	require.NotNil(t, frozen)

	// 终态后迟到的回报不得再改动聚合结果
	late := &order.Order{
		ID: order.NextID(), Account: "acct01", Symbol: "600000.SH",
		Side: order.SideBuy, Price: 10.02, Qty: 100, CumQty: 100,
		CumAmount: 1002, Status: order.StatusFilled,
	}
	tr.onOrderUpdate(late)

	after := tr.PerformanceView()
	assert.Equal(t, frozen.Qty, after.Qty)
	assert.Equal(t, frozen.QtyFilled, after.QtyFilled)
	assert.Equal(t, frozen.QtyCanceled, after.QtyCanceled)
	assert.Equal(t, frozen.QtyRejected, after.QtyRejected)
	assert.Equal(t, frozen.AmtFilled, after.AmtFilled)
}

func TestUserCancelTerminates(t *testing.T) {
	start := time.Date(2025, 3, 14, 10, 0, 0, 0, time.Local)
	inst := backtestInstruction(11, 1500, start, start.Add(time.Minute))

	// 不启动行情源，调度器停在第一次等待上
	feed := market.NewReplayFeed(nil)
	clock := NewReplayClock(start)
	tr := NewTrader(inst, testProvider(), feed, sim.NewBook(), clock, logger.Nop(), nil)

	runDone := make(chan struct{})
	go func() {
		tr.Run()
		close(runDone)
	}()

	require.Eventually(t, func() bool {
		st, _ := tr.Status()
		return st == StatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	tr.Cancel()
	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("cancel did not terminate the run")
	}

	st, errMsg := tr.Status()
	assert.Equal(t, StatusTerminated, st)
	assert.Equal(t, "USER CANCEL.", errMsg)
}

func TestRunIsIdempotent(t *testing.T) {
	start := time.Date(2025, 3, 14, 10, 0, 0, 0, time.Local)
	inst := backtestInstruction(12, 0, start, start.Add(time.Minute)) // 预检失败
	tr := NewTrader(inst, testProvider(), market.NewReplayFeed(nil), sim.NewBook(),
		NewReplayClock(start), logger.Nop(), nil)

	tr.Run()
	st, errMsg := tr.Status()
	assert.Equal(t, StatusError, st)
	assert.NotEmpty(t, errMsg)

	// 再次 Run 不改变终态
	tr.Run()
	st2, _ := tr.Status()
	assert.Equal(t, st2, st)
}
