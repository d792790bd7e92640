package algo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algo-engine-go/market"
	"algo-engine-go/order"
)

func perfForTest(t *testing.T) *Performance {
	t.Helper()
	start := time.Date(2025, 3, 14, 10, 0, 0, 0, time.Local)
	inst := &Instruction{
		ID: 1, Symbol: "600000.SH", Side: order.SideBuy, QtyTarget: 10000,
		StartTime: start, EndTime: start.Add(10 * time.Minute),
	}
	p := NewPerformance(inst, testSec)
	p.Now = func() time.Time { return start.Add(time.Minute) }
	return p
}

func mdWith(price, bid1, ask1 float64) *market.Depth {
	return &market.Depth{
		Symbol:    "600000.SH",
		QuoteTime: time.Date(2025, 3, 14, 10, 1, 0, 0, time.Local),
		Price:     price,
		Volume:    10000,
		Amount:    price * 10000,
		Bids:      [5]market.Level{{Price: bid1, Volume: 500}},
		Asks:      [5]market.Level{{Price: ask1, Volume: 500}},
	}
}

func TestPerformanceFillAccumulation(t *testing.T) {
	p := perfForTest(t)
	md := mdWith(10.02, 10.01, 10.02)

	// 挂在买一价，不穿越对手盘，计为被动单
	o := &order.Order{ID: 1, Side: order.SideBuy, Price: 10.01, Qty: 1000, Status: order.StatusReporting}
	p.OnOrderRequest(o, md)
	assert.Equal(t, 1, p.OrderCnt)
	assert.Equal(t, 1000, p.Qty)
	assert.Equal(t, 1000, p.QtyMaker)

	p.OnOrderUpdate(&order.Order{ID: 1, Side: order.SideBuy, Price: 10.01, Qty: 1000,
		CumQty: 400, CumAmount: 400 * 10.01, Status: order.StatusPartial})
	assert.Equal(t, 400, p.QtyFilled)
	assert.Equal(t, 400, p.QtyMakerFilled)
	assert.InDelta(t, 10.01, p.AvgPrice, 1e-9)
	assert.InDelta(t, 40.0, p.FilledRate, 1e-9)

	// 乱序旧回报被丢弃
	p.OnOrderUpdate(&order.Order{ID: 1, Side: order.SideBuy, Price: 10.01, Qty: 1000,
		CumQty: 200, CumAmount: 200 * 10.01, Status: order.StatusPartial})
	assert.Equal(t, 400, p.QtyFilled)

	// 部分撤单冲回未成交量
	p.OnOrderUpdate(&order.Order{ID: 1, Side: order.SideBuy, Price: 10.01, Qty: 1000,
		CumQty: 400, CumAmount: 400 * 10.01, Status: order.StatusPartialCanceled})
	assert.Equal(t, 400, p.Qty)
	assert.Equal(t, 600, p.QtyCanceled)
	assert.Equal(t, 1, p.OrderCntCanceled)
	assert.InDelta(t, 40.0, p.FilledRate, 1e-9)
	assert.InDelta(t, 60.0, p.CancelRate, 1e-9)
}

func TestPerformanceRejectionCounter(t *testing.T) {
	p := perfForTest(t)
	md := mdWith(10.02, 10.01, 10.02)

	for i := uint64(1); i <= 3; i++ {
		o := &order.Order{ID: i, Side: order.SideBuy, Price: 10.02, Qty: 100, Status: order.StatusReporting}
		p.OnOrderRequest(o, md)
		p.OnOrderUpdate(&order.Order{ID: i, Side: order.SideBuy, Price: 10.02, Qty: 100, Status: order.StatusRejected})
	}
	assert.Equal(t, 3, p.OrderCntRejected)
	assert.Equal(t, 3, p.OrderCntContinueRejected)
	assert.Equal(t, 300, p.QtyRejected)
	assert.Equal(t, 0, p.Qty, "拒单冲回全部数量")

	// 成交清零连续拒单
	o := &order.Order{ID: 9, Side: order.SideBuy, Price: 10.02, Qty: 100, Status: order.StatusReporting}
	p.OnOrderRequest(o, md)
	p.OnOrderUpdate(&order.Order{ID: 9, Side: order.SideBuy, Price: 10.02, Qty: 100,
		CumQty: 100, CumAmount: 1002, Status: order.StatusFilled})
	assert.Equal(t, 0, p.OrderCntContinueRejected)
	assert.Equal(t, 1, p.OrderCntFilled)
}

func TestSummarizeArrivalAndBenchmarks(t *testing.T) {
	p := perfForTest(t)

	md1 := mdWith(10.00, 9.99, 10.00)
	md1.Volume, md1.Amount = 10000, 100000
	p.Summarize(md1, md1.QuoteTime)
	assert.InDelta(t, 10.00, p.ArrivePrice, 1e-9)
	assert.Equal(t, int64(10000), p.ArriveMarketVolume)

	md2 := mdWith(10.10, 10.09, 10.10)
	md2.QuoteTime = md1.QuoteTime.Add(time.Minute)
	md2.Volume, md2.Amount = 12000, 100000+2000*10.05
	p.Summarize(md2, md2.QuoteTime)

	// 到达价保持首笔，不随行情漂移
	assert.InDelta(t, 10.00, p.ArrivePrice, 1e-9)
	assert.InDelta(t, (10.0+10.1)/2, p.MarketTwapPrice, 1e-9)
	assert.InDelta(t, 10.05, p.MarketVwapPrice, 1e-9)
	assert.InDelta(t, 1.0, p.Momentum, 1e-9)
}

func TestSummarizeIgnoresOutOfWindowTicks(t *testing.T) {
	p := perfForTest(t)
	md := mdWith(10.00, 9.99, 10.00)
	md.QuoteTime = p.StartTime.Add(-time.Minute)
	p.Summarize(md, md.QuoteTime)
	assert.Zero(t, p.ArrivePrice)
}

func TestSlippageSign(t *testing.T) {
	// 买入：成交均价低于基准为正滑点
	assert.InDelta(t, 100, slippage(true, 9.9, 10.0), 1e-6)
	assert.InDelta(t, -100, slippage(true, 10.1, 10.0), 1e-6)
	// 卖出方向相反
	assert.InDelta(t, 100, slippage(false, 10.1, 10.0), 1e-6)
	assert.Zero(t, slippage(true, 0, 10.0))
	assert.Zero(t, slippage(true, 10.0, 0))
}

func TestAllowMakePolicy(t *testing.T) {
	p := perfForTest(t)
	assert.True(t, p.AllowMake(), "样本不足时放行")

	// 订单数超阈值、几乎全撤且成交率低，禁止继续挂单
	p.OrderCnt = 12
	p.OrderCntFilled = 1
	p.FilledRate = 10
	assert.False(t, p.AllowMake())

	// 成交率达标则放行
	p.FilledRate = 70
	assert.True(t, p.AllowMake())
}

func TestShouldTakePolicy(t *testing.T) {
	p := perfForTest(t)
	p.OrderCnt = 7
	p.FilledRate = 20
	assert.True(t, p.ShouldTake())

	p.FilledRate = 80
	assert.False(t, p.ShouldTake())

	// 订单数不足但时间进度过半
	p.OrderCnt = 1
	p.FilledRate = 20
	p.TimeProgress = 0.5
	assert.True(t, p.ShouldTake())
}

func TestLowPriceThresholds(t *testing.T) {
	p := perfForTest(t)
	p.ArrivePrice = 5.0
	require.True(t, p.IsLowPrice())

	// 低价股 ShouldTake 的时间进度阈值放宽到 0.2
	p.OrderCnt = 1
	p.FilledRate = 25
	p.TimeProgress = 0.18
	assert.False(t, p.ShouldTake())
	p.TimeProgress = 0.25
	assert.True(t, p.ShouldTake())
}

func TestShouldCancelQty(t *testing.T) {
	p := perfForTest(t)
	p.Qty = 1550
	got := p.ShouldCancelQty(1000, nil, false)
	// 超出 550，按手数取整为 500
	assert.Equal(t, 500, got)

	assert.Zero(t, p.ShouldCancelQty(2000, nil, false))
}

func TestShouldCancelQtyExcludeBestPrice(t *testing.T) {
	p := perfForTest(t)
	md := mdWith(10.02, 10.01, 10.02)

	// 一单挂最优价 600，一单脱离最优价 400
	p.OnOrderRequest(&order.Order{ID: 1, Side: order.SideBuy, Price: 10.01, Qty: 600, Status: order.StatusNew}, md)
	p.OnOrderRequest(&order.Order{ID: 2, Side: order.SideBuy, Price: 9.98, Qty: 400, Status: order.StatusNew}, md)

	got := p.ShouldCancelQty(0, md, true)
	assert.Equal(t, 400, got, "撤单目标不超过脱离最优价的在途量")

	atBest, outOfBest := p.QtyPendingAtBestPrice(md)
	assert.Equal(t, 600, atBest)
	assert.Equal(t, 400, outOfBest)
}

func TestCancelOrderIDsPicksWorstPricedFirst(t *testing.T) {
	p := perfForTest(t)
	md := mdWith(10.02, 10.01, 10.02)

	p.OnOrderRequest(&order.Order{ID: 1, Side: order.SideBuy, Price: 10.01, Qty: 300, Status: order.StatusNew}, md)
	p.OnOrderRequest(&order.Order{ID: 2, Side: order.SideBuy, Price: 9.98, Qty: 300, Status: order.StatusNew}, md)
	p.OnOrderRequest(&order.Order{ID: 3, Side: order.SideBuy, Price: 9.99, Qty: 300, Status: order.StatusNew}, md)

	ids := p.CancelOrderIDs(600, true)
	require.Len(t, ids, 2)
	assert.ElementsMatch(t, []uint64{2, 3}, ids, "买单先撤价格最低的")
}
