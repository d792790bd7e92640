package algo

import (
	"sort"
	"time"

	"algo-engine-go/market"
	"algo-engine-go/markettime"
	"algo-engine-go/order"
	"algo-engine-go/refdata"
)

// Performance 单笔母单的执行绩效聚合器。
// 订阅子单回报与行情快照，维护成交/撤单/拒单累计、挂单簿视图、
// 以及做市占比、滑点等衍生指标，供逐轮决策与对外快照使用。
// 所有方法都在母单的执行序上调用，不做内部加锁。
type Performance struct {
	AlgoOrderID uint64
	Symbol      string
	QtyTarget   int
	IsBuy       bool

	sec *refdata.SecurityInfo

	StartTime time.Time
	EndTime   time.Time

	// 在途与累计数量口径：Qty 为未被撤/拒冲回的总报单量
	Qty         int
	QtyFilled   int
	QtyCanceled int
	QtyRejected int

	OrderCnt         int
	OrderCntFilled   int
	OrderCntCanceled int
	OrderCntRejected int

	// 连续拒单计数，成交或撤单回报会清零
	OrderCntContinueRejected int

	Amt       float64
	AmtFilled float64
	AvgPrice  float64

	QtyMaker              int
	QtyMakerFilled        int
	OrderCntMakerCanceled int

	orders      map[uint64]*order.Order
	makerFilled map[uint64]int

	TimeProgress    float64
	FilledRate      float64 // 百分比 0~100
	CancelRate      float64
	MakerRate       float64
	MakerFilledRate float64

	ArrivePrice        float64
	ArriveMarketTime   time.Time
	ArriveMarketAmount float64
	ArriveMarketVolume int64

	ActualParticipateRate float64

	MarketVwapPrice float64
	MarketTwapPrice float64

	SlippageArrivePrice float64
	SlippageVWAP        float64
	SlippageTWAP        float64

	Momentum float64

	LastFilledTime time.Time

	// Now 时间源，回测时由调度器注入行情游标
	Now func() time.Time

	mdsCount int
}

func NewPerformance(inst *Instruction, sec *refdata.SecurityInfo) *Performance {
	return &Performance{
		AlgoOrderID: inst.ID,
		Symbol:      inst.Symbol,
		QtyTarget:   inst.QtyTarget,
		IsBuy:       inst.Side == order.SideBuy,
		sec:         sec,
		StartTime:   inst.StartTime,
		EndTime:     inst.EndTime,
		orders:      make(map[uint64]*order.Order),
		makerFilled: make(map[uint64]int),
		Now:         time.Now,
	}
}

// Release 执行结束后释放挂单簿。
func (p *Performance) Release() {
	p.orders = make(map[uint64]*order.Order)
	p.makerFilled = make(map[uint64]int)
}

// OnOrderRequest 报单发出时登记。报单价未穿越对手盘口视为被动单。
func (p *Performance) OnOrderRequest(o *order.Order, md *market.Depth) {
	p.orders[o.ID] = o

	p.OrderCnt++
	p.Qty += o.Qty
	p.Amt += float64(o.Qty) * o.Price

	if md == nil {
		return
	}
	if (p.IsBuy && o.Price < md.AskPrice1()) ||
		(!p.IsBuy && o.Price > md.BidPrice1() && md.BidPrice1() > 0) {
		p.QtyMaker += o.Qty
		p.makerFilled[o.ID] = 0
	}
}

// OnOrderUpdate 子单回报。乱序与重复回报按 NewerThan 丢弃。
func (p *Performance) OnOrderUpdate(o *order.Order) {
	prev := p.orders[o.ID]
	if prev == nil {
		prev = &order.Order{Status: order.StatusReporting}
	}
	if !o.NewerThan(prev) {
		return
	}
	p.orders[o.ID] = o
	p.applyUpdate(o, prev)
}

func (p *Performance) applyUpdate(o, prev *order.Order) {
	fillDelta := o.CumQty - prev.CumQty
	p.QtyFilled += fillDelta
	p.AmtFilled += o.CumAmount - prev.CumAmount
	if p.QtyFilled > 0 {
		p.AvgPrice = p.AmtFilled / float64(p.QtyFilled)
	} else {
		p.AvgPrice = 0
	}
	if fillDelta > 0 {
		p.LastFilledTime = o.UpdateTime
	}
	if _, isMaker := p.makerFilled[o.ID]; isMaker {
		p.makerFilled[o.ID] = o.CumQty
		p.QtyMakerFilled += fillDelta
	}

	if o.Status.IsFinal() {
		canceled := o.Qty - o.CumQty
		switch {
		case o.CumQty == o.Qty:
			p.OrderCntFilled++
		case o.Status == order.StatusCanceled || o.Status == order.StatusPartialCanceled:
			p.OrderCntCanceled++
			p.QtyCanceled += canceled
			if _, isMaker := p.makerFilled[o.ID]; isMaker {
				p.OrderCntMakerCanceled++
			}
		}
		// 撤/拒冲回未成交部分
		if o.Status == order.StatusCanceled || o.Status == order.StatusPartialCanceled ||
			o.Status == order.StatusRejected {
			p.Qty -= canceled
			p.Amt -= float64(canceled) * o.Price
		}
		if o.Status == order.StatusRejected {
			p.OrderCntRejected++
			p.QtyRejected += o.Qty
			p.OrderCntContinueRejected++
		} else {
			p.OrderCntContinueRejected = 0
		}
	}

	p.TimeProgress = markettime.Progress(p.StartTime, p.EndTime, p.Now())
	p.refreshRates()
}

func (p *Performance) refreshRates() {
	total := float64(p.Qty + p.QtyCanceled)
	if total > 0 {
		p.FilledRate = float64(p.QtyFilled) * 100 / total
		p.CancelRate = float64(p.QtyCanceled) * 100 / total
		p.MakerRate = float64(p.QtyMaker) * 100 / total
	} else {
		p.FilledRate, p.CancelRate, p.MakerRate = 0, 0, 0
	}
	if p.QtyMaker > 0 {
		p.MakerFilledRate = float64(p.QtyMakerFilled) * 100 / float64(p.QtyMaker)
	} else {
		p.MakerFilledRate = 0
	}
}

// Summarize 按行情快照刷新市场基准与滑点。at 为当前执行时刻
// （实盘为本地时间，回放为行情游标）。
func (p *Performance) Summarize(md *market.Depth, at time.Time) {
	p.TimeProgress = markettime.Progress(p.StartTime, p.EndTime, at)

	if md == nil || md.Symbol != p.Symbol {
		return
	}
	// 只统计执行窗口附近的行情
	if md.QuoteTime.Sub(p.StartTime) <= -2*time.Second ||
		md.QuoteTime.Sub(p.EndTime) >= 2*time.Second {
		return
	}

	if (p.ArrivePrice == 0 || p.ArriveMarketAmount == 0 || p.ArriveMarketVolume == 0) && md.Amount > 0 {
		p.ArriveMarketTime = md.QuoteTime
		if md.Price > 0 {
			p.ArrivePrice = md.Price
		} else if md.AskPrice1() > md.BidPrice1() {
			p.ArrivePrice = md.AskPrice1()
		} else {
			p.ArrivePrice = md.BidPrice1()
		}
		p.ArriveMarketAmount = md.Amount
		p.ArriveMarketVolume = md.Volume
	}
	if md.Price > 0 {
		p.MarketTwapPrice = (p.MarketTwapPrice*float64(p.mdsCount) + md.Price) / float64(p.mdsCount+1)
		p.mdsCount++
	}

	marketTradeVol := md.Volume - p.ArriveMarketVolume
	if marketTradeVol > 0 {
		p.MarketVwapPrice = (md.Amount - p.ArriveMarketAmount) / float64(marketTradeVol)
		p.ActualParticipateRate = float64(p.QtyFilled) * 100 / float64(marketTradeVol)
	} else {
		p.MarketVwapPrice = 0
	}

	p.SlippageArrivePrice = slippage(p.IsBuy, p.AvgPrice, p.ArrivePrice)
	p.SlippageVWAP = slippage(p.IsBuy, p.AvgPrice, p.MarketVwapPrice)
	p.SlippageTWAP = slippage(p.IsBuy, p.AvgPrice, p.MarketTwapPrice)

	if p.ArrivePrice > 0 {
		p.Momentum = (md.Price - p.ArrivePrice) / p.ArrivePrice * 100
	}
}

// slippage 相对基准价的滑点（基点）。买入时成交价低于基准为正。
func slippage(isBuy bool, avgPrice, benchmark float64) float64 {
	if benchmark <= 0 || avgPrice <= 0 {
		return 0
	}
	if isBuy {
		return (benchmark - avgPrice) / benchmark * 10000
	}
	return (avgPrice - benchmark) / benchmark * 10000
}

// IsLowPrice 低价股决策参数整体放宽。
func (p *Performance) IsLowPrice() bool {
	return p.ArrivePrice > 0 && p.ArrivePrice < lowPriceBound
}

// AllowMake 是否允许继续挂被动单。撤单率畸高且成交率不足时停止做市。
func (p *Performance) AllowMake() bool {
	thresholdFilledRate, thresholdWorstCancelRate := 60.0, 40.0
	if p.IsLowPrice() {
		thresholdFilledRate, thresholdWorstCancelRate = 30.0, 50.0
	}
	eOrderCnt := p.OrderCnt - p.OrderCntRejected + 1
	worstCancelRate := 0.0
	if eOrderCnt > 0 {
		worstCancelRate = float64(eOrderCnt-p.OrderCntFilled) * 100 / float64(eOrderCnt)
	}
	if p.OrderCnt > 10 &&
		worstCancelRate > thresholdWorstCancelRate && p.FilledRate < thresholdFilledRate {
		return false
	}
	return true
}

// ShouldTake 是否应主动吃单追赶进度。
func (p *Performance) ShouldTake() bool {
	thresholdFilledRate, thresholdTimeProgress := 50.0, 0.15
	if p.IsLowPrice() {
		thresholdFilledRate, thresholdTimeProgress = 30.0, 0.2
	}
	if p.OrderCnt > 6 || p.TimeProgress > thresholdTimeProgress {
		if p.FilledRate < thresholdFilledRate {
			return true
		}
	}
	return false
}

// ShouldCancelQty 在途量超过 maxCumQty 的部分按手数取整作为撤单目标；
// excludeBestPrice 时目标不超过脱离最优价的在途量。
func (p *Performance) ShouldCancelQty(maxCumQty int, md *market.Depth, excludeBestPrice bool) int {
	cancelQtyTarget := 0
	if p.Qty > maxCumQty {
		cancelQtyTarget = p.Qty - maxCumQty
		if excludeBestPrice {
			_, qtyOutOfBest, _ := p.pendingByBestPrice(md)
			if qtyOutOfBest < cancelQtyTarget {
				cancelQtyTarget = qtyOutOfBest
			}
		}
	}
	return p.sec.FloorToLot(cancelQtyTarget)
}

// PendingOrderIDs 全部在途子单号。
func (p *Performance) PendingOrderIDs() []uint64 {
	ids := make([]uint64, 0, len(p.orders))
	for _, o := range p.orders {
		if !o.Status.IsFinal() {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// CancelOrderIDs 从价格劣侧起挑选在途单，直到覆盖 cancelQtyTarget。
// skipResidualFill 时跳过剩余量不足一手的单（撤掉会留下不可报的零股）。
func (p *Performance) CancelOrderIDs(cancelQtyTarget int, skipResidualFill bool) []uint64 {
	pending := make([]*order.Order, 0, len(p.orders))
	for _, o := range p.orders {
		if !o.Status.IsFinal() {
			pending = append(pending, o)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Price < pending[j].Price
	})

	cumQty := 0
	var ids []uint64
	for _, o := range pending {
		qtyPending := o.Qty - o.CumQty
		cumQty += qtyPending
		if cumQty > cancelQtyTarget {
			break
		}
		if skipResidualFill && qtyPending != p.sec.FloorToLot(qtyPending) {
			continue
		}
		ids = append(ids, o.ID)
	}
	return ids
}

// QtyPendingAtBestPrice 返回 (挂在最优价上的在途量, 脱离最优价的在途量)。
func (p *Performance) QtyPendingAtBestPrice(md *market.Depth) (int, int) {
	atBest, outOfBest, _ := p.pendingByBestPrice(md)
	return atBest, outOfBest
}

// OrderIDsOutOfBestPrice 脱离最优价的在途子单号。
func (p *Performance) OrderIDsOutOfBestPrice(md *market.Depth) []uint64 {
	_, _, ids := p.pendingByBestPrice(md)
	return ids
}

func (p *Performance) pendingByBestPrice(md *market.Depth) (atBest, outOfBest int, outIDs []uint64) {
	if md == nil {
		return 0, 0, nil
	}
	best := md.BidPrice1()
	if !p.IsBuy {
		best = md.AskPrice1()
	}
	for _, o := range p.orders {
		if o.Status.IsFinal() {
			continue
		}
		leaves := o.Qty - o.CumQty
		away := o.Price < best
		if !p.IsBuy {
			away = o.Price > best
		}
		if away {
			outOfBest += leaves
			outIDs = append(outIDs, o.ID)
		} else {
			atBest += leaves
		}
	}
	return atBest, outOfBest, outIDs
}

// QtyAtLimitPrice 挂在指定价位的在途量。
func (p *Performance) QtyAtLimitPrice(limitPrice float64) int {
	qty := 0
	for _, o := range p.orders {
		if o.Price == limitPrice && !o.Status.IsFinal() {
			qty += o.Qty - o.CumQty
		}
	}
	return qty
}
