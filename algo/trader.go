package algo

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"algo-engine-go/infrastructure/logger"
	"algo-engine-go/market"
	"algo-engine-go/markettime"
	"algo-engine-go/order"
	"algo-engine-go/refdata"
)

// PerformanceSink 每次绩效变化时收到回调，终态快照 final 为 true。
type PerformanceSink func(t *Trader, final bool)

// Trader 单笔母单的执行调度器。
// 生命周期：Run -> preStartCheck -> 订阅行情与回报 -> 按切片推进 -> stop。
// 所有共享状态由 mu 保护，Run 协程在等待期间不持锁，
// 行情与回报回调各自短暂持锁后返回。
type Trader struct {
	inst  *Instruction
	ref   refdata.Provider
	feed  market.QuoteFeed
	book  order.Book
	clock Clock
	log   *logger.Logger

	// replay 回测模式下与 clock 指向同一对象，节奏回调用
	replay *ReplayClock

	sink PerformanceSink

	mu      sync.Mutex
	status  Status
	errMsg  string
	perf    *Performance
	sec     *refdata.SecurityInfo
	md      *market.Depth
	started bool

	startTime    time.Time
	endTime      time.Time
	algoDuration float64

	slicers        []*Slicer
	curSlicerIndex int
	cancelAllFlag  bool

	feedKey uint64
	bookKey uint64

	startedOnce sync.Once
	startedCh   chan struct{}

	rng *rand.Rand
}

func NewTrader(inst *Instruction, ref refdata.Provider, feed market.QuoteFeed,
	book order.Book, clock Clock, log *logger.Logger, sink PerformanceSink) *Trader {

	t := &Trader{
		inst:           inst,
		ref:            ref,
		feed:           feed,
		book:           book,
		clock:          clock,
		log:            log.WithFields(map[string]interface{}{"aid": inst.ID, "symbol": inst.Symbol}),
		sink:           sink,
		status:         StatusCreating,
		curSlicerIndex: -1,
		startedCh:      make(chan struct{}),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(inst.ID))),
	}
	if rc, ok := clock.(*ReplayClock); ok {
		t.replay = rc
	}
	return t
}

// Status 当前状态与错误信息。
func (t *Trader) Status() (Status, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.errMsg
}

// Performance 绩效聚合器，只应读取。
func (t *Trader) Performance() *Performance {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.perf
}

// PerformanceView 绩效字段的一致性副本，供快照构建读取。
func (t *Trader) PerformanceView() *Performance {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.perf == nil {
		return nil
	}
	cp := *t.perf
	return &cp
}

// Instruction 返回母单指令。
func (t *Trader) Instruction() *Instruction { return t.inst }

// Started 进入 Running（或提前终态）后关闭，调用方可据此放行回放行情。
func (t *Trader) Started() <-chan struct{} { return t.startedCh }

// Window 执行窗口，preStartCheck 之后有效。
func (t *Trader) Window() (time.Time, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startTime, t.endTime
}

func (t *Trader) running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status.IsRunning()
}

// Run 执行母单直至终态，阻塞调用方。重复调用无效。
func (t *Trader) Run() {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	if err := t.preStartCheck(); err != nil {
		t.log.Error("预检失败", zap.Error(err))
		t.stop(err.Error())
		return
	}

	feedKey, err := t.feed.Subscribe(&market.Subscription{
		Symbols:      map[string]struct{}{t.inst.Symbol: {}},
		OnDepth:      t.onDepth,
		OnDepthPaced: t.onDepthPaced,
	})
	if err != nil {
		t.stop(fmt.Sprintf("quote subscribe failed: %v", err))
		return
	}
	t.feedKey = feedKey
	t.bookKey = t.book.Subscribe(t.inst.Account, t.onOrderUpdate)
	t.feed.OnFeedFinished(func() { t.stop("") })

	t.mu.Lock()
	t.status = StatusRunning
	t.mu.Unlock()
	t.startedOnce.Do(func() { close(t.startedCh) })
	t.log.Info("母单开始执行",
		zap.Time("startTime", t.startTime), zap.Time("endTime", t.endTime),
		zap.Float64("duration", t.algoDuration))

	t.schedule()
	t.stop("")
}

// preStartCheck 校验指令并归一化执行窗口。
func (t *Trader) preStartCheck() error {
	now := t.clock.Now()
	inst := t.inst

	if inst.QtyTarget <= 0 || inst.Account == "" {
		return fmt.Errorf("qtyTarget %d and acct %q should not be empty", inst.QtyTarget, inst.Account)
	}

	dateInt := markettime.DateInt(now)
	if inst.IsBacktest() {
		dateInt = markettime.DateInt(inst.StartTime)
	}
	sec := t.ref.GetSecurityInfo(inst.Symbol, dateInt)
	if sec == nil {
		return fmt.Errorf("%s at %d: security info not exists", inst.Symbol, dateInt)
	}
	if sec.IsSuspended {
		return fmt.Errorf("%s is suspended", inst.Symbol)
	}
	if !inst.Side.Valid() {
		return fmt.Errorf("trade side %v is not valid", inst.Side)
	}
	minQty, _ := sec.OrderQtyStep()
	if inst.Side == order.SideBuy && inst.QtyTarget < minQty {
		return fmt.Errorf("qtyTarget should be no less than %d", minQty)
	}
	if inst.ExecDuration <= 0 && !inst.StartTime.Before(inst.EndTime) {
		return fmt.Errorf("startTime %v should be before endTime %v", inst.StartTime, inst.EndTime)
	}

	startTime := markettime.AvailableStart(inst.StartTime)
	endTime := inst.EndTime

	if startTime.After(markettime.ClosingAuctionBegin(startTime)) {
		return fmt.Errorf("startTime %v is after closing auction begin", startTime)
	}

	if !inst.IsBacktest() {
		if inst.ExecDuration > 0 {
			startTime = markettime.AvailableStart(now)
			endTime = markettime.AddDuration(startTime, inst.ExecDuration)
		}
		if !markettime.SameDate(startTime, now) {
			return fmt.Errorf("startTime %v should be today", startTime)
		}
		if !endTime.After(now) {
			return fmt.Errorf("endTime %v already passed", endTime)
		}
		// 起始时刻已经过去太久，从当前时刻起跑
		if startTime.Before(now.Add(-3 * time.Second)) {
			t.log.Warn("起始时刻顺延到当前", zap.Time("from", startTime), zap.Time("to", now))
			startTime = now
		}
	}

	if endTime.After(markettime.ClosingAuctionBegin(startTime)) {
		endTime = markettime.ClosingAuctionBegin(startTime)
	}
	if markettime.IsNoonBreak(endTime) {
		endTime = markettime.MorningClose(startTime)
	}

	t.mu.Lock()
	t.sec = sec
	t.startTime = startTime
	t.endTime = endTime
	t.algoDuration = markettime.Duration(startTime, endTime)
	t.perf = NewPerformance(inst, sec)
	t.perf.StartTime = startTime
	t.perf.EndTime = endTime
	t.perf.Now = t.clock.Now
	t.mu.Unlock()
	return nil
}

// schedule 构建切片并逐片推进。
func (t *Trader) schedule() {
	t.publish(false)

	durationPerSlice, roundsPerSlice := 60, 3
	if t.algoDuration < 5*60 {
		durationPerSlice, roundsPerSlice = 40, 2
	}
	if t.sec.PreClose > 0 && t.sec.PreClose < lowPriceBound {
		durationPerSlice, roundsPerSlice = 60, 2
	}

	// 随机抖动避免同一时刻集中报单
	jitter := float64(t.rng.Intn(500)) * 0.01
	algoDuration := math.Round((t.algoDuration-jitter)*1000) / 1000

	numSlices := int(math.Ceil(algoDuration / float64(durationPerSlice)))
	var cumQty []int
	switch t.inst.Strategy {
	case StrategyVWAP:
		cumQty = VWAPCumulativeQty(t.inst.QtyTarget, numSlices, t.sec, t.startTime, t.endTime, nil)
	default:
		cumQty = TWAPCumulativeQty(t.inst.QtyTarget, numSlices, t.sec)
	}

	remainTime := algoDuration - float64(durationPerSlice)*float64(len(cumQty)-1)
	bias := sliceQtyBiasRate
	if t.sec.PreClose > 0 && t.sec.PreClose < lowPriceBound {
		bias = sliceQtyBiasRateLowPrice
	}

	slicers := make([]*Slicer, 0, len(cumQty))
	for idx, q := range cumQty {
		s := &Slicer{
			Index:          idx,
			CumQty:         q,
			Bias:           bias,
			Duration:       float64(durationPerSlice),
			DurationRemain: float64(durationPerSlice),
			RoundsRemain:   roundsPerSlice,
		}
		if idx == len(cumQty)-1 {
			s.IsLast = true
			s.Duration = remainTime
			s.DurationRemain = remainTime
		}
		slicers = append(slicers, s)
	}
	t.mu.Lock()
	t.slicers = slicers
	t.mu.Unlock()
	t.log.Info("切片计划生成",
		zap.Int("numSlices", len(slicers)),
		zap.Int("durationPerSlice", durationPerSlice),
		zap.Int("roundsPerSlice", roundsPerSlice),
		zap.Float64("jitter", jitter))

	if start2Go := t.startTime.Sub(t.clock.Now()).Seconds(); start2Go > 0 {
		t.log.Info("等待执行窗口", zap.Float64("seconds", start2Go))
		if !t.clock.Await(start2Go) {
			return
		}
	}
	if !t.clock.Await(jitter) {
		return
	}

	for _, s := range slicers {
		if !t.running() {
			break
		}
		t.mu.Lock()
		t.curSlicerIndex = s.Index
		t.mu.Unlock()
		t.executeSlice(s)
	}

	// 收尾：等迟到的回报
	if pending := t.pendingIDs(); len(pending) > 0 {
		t.log.Warn("仍有在途子单，等待回报", zap.Int("count", len(pending)))
		t.clock.Await(10)
	}
}

func (t *Trader) executeSlice(s *Slicer) {
	if !t.running() {
		return
	}
	if s.IsLast {
		t.executeLastSlice(s)
		return
	}

	t.mu.Lock()
	md := t.md
	cancelQty := t.perf.ShouldCancelQty(int(float64(s.CumQty)*(1+s.Bias)), md, true)
	var cancelIDs []uint64
	if t.sec.FloorToLot(cancelQty) > 0 {
		cancelIDs = t.perf.CancelOrderIDs(cancelQty, true)
	}
	t.mu.Unlock()

	if len(cancelIDs) > 0 {
		t.cancelOrders(cancelIDs)
		if !t.clock.Await(2) {
			return
		}
		s.DurationRemain = math.Max(s.DurationRemain-2, 1)
	}

	t.mu.Lock()
	md = t.md
	perf := t.perf
	qtyAtBest, _ := perf.QtyPendingAtBestPrice(md)
	if t.inst.PriceLimit > 0 {
		if qtyAtLimit := perf.QtyAtLimitPrice(t.inst.PriceLimit); qtyAtLimit > qtyAtBest {
			qtyAtBest = qtyAtLimit
		}
	}

	minQty, _ := t.sec.OrderQtyStep()
	beforeLastUpper := t.inst.QtyTarget - minQty
	upper := minInt(int(float64(s.CumQty)*(1+s.Bias)), beforeLastUpper)
	lower := minInt(int(float64(s.CumQty)*(1-s.Bias)), beforeLastUpper)

	if povMax, ok := t.povCap(md); ok {
		upper = minInt(upper, povMax)
		lower = minInt(lower, povMax)
	}

	qty2Make, qty2Take := 0, 0
	if perf.QtyFilled+qtyAtBest < upper {
		qty2Make = upper - perf.QtyFilled - qtyAtBest
		qty2Make = minInt(qty2Make, minInt(upper, beforeLastUpper)-perf.Qty)
	}
	if perf.QtyFilled < lower {
		qty2Take = lower - perf.QtyFilled
		qty2Take = maxInt(0, minInt(qty2Take, beforeLastUpper-perf.Qty))
	}
	s.Qty2Make, s.Qty2Take = qty2Make, qty2Take
	s.Qty2MakeRemain, s.Qty2TakeRemain = qty2Make, qty2Take

	lot := minQty
	if t.inst.MinAmountPerOrder > 0 && t.sec.LowLimit > 0 {
		lot = maxInt(lot, int(t.inst.MinAmountPerOrder/t.sec.LowLimit))
	}
	s.RoundsRemain = maxInt(minInt(s.RoundsRemain, maxInt(qty2Make/lot, qty2Take/lot)), 1)
	qtySoFar, qtyFilled := perf.Qty, perf.QtyFilled
	t.mu.Unlock()

	t.log.Info("切片开始", zap.String("slicer", s.String()),
		zap.Int("qty", qtySoFar), zap.Int("qtyFilled", qtyFilled))

	for round := s.RoundsRemain; round > 0; round-- {
		s.RoundsRemain = round
		if !t.slicePolicy(s) {
			return
		}
	}
}

// slicePolicy 非末片的一轮：按余轮均分本轮额度，先挂被动单，
// 需要追赶时再吃单。返回 false 表示执行被终止。
func (t *Trader) slicePolicy(s *Slicer) bool {
	if !t.running() {
		return false
	}

	t.mu.Lock()
	perf := t.perf

	qty2MakeRound := divOr(s.Qty2MakeRemain, s.RoundsRemain)
	qty2TakeRound := divOr(s.Qty2TakeRemain, s.RoundsRemain)
	durationRound := s.DurationRemain
	if s.RoundsRemain > 0 {
		durationRound = s.DurationRemain / float64(s.RoundsRemain)
	}

	qtyTotalRemain := t.inst.QtyTarget - perf.Qty
	qty2MakeRound = minInt(qty2MakeRound, qtyTotalRemain)
	qty2TakeRound = minInt(qty2TakeRound, qtyTotalRemain)

	allow2Take := perf.ShouldTake()
	allow2Make := perf.QtyFilled < s.CumQty-s.Qty2TakeRemain
	if allow2Take {
		allow2Make = allow2Make && perf.Qty+qty2TakeRound+qty2MakeRound < t.inst.QtyTarget
	}
	qty2MakeRound = t.sec.FloorToLot(qty2MakeRound)
	t.mu.Unlock()

	t.log.Info("执行轮",
		zap.Int("index", s.Index), zap.Int("round", s.RoundsRemain),
		zap.Float64("duration", durationRound),
		zap.Bool("allow2Make", allow2Make), zap.Bool("allow2Take", allow2Take),
		zap.Int("qty2MakeRound", qty2MakeRound), zap.Int("qty2TakeRound", qty2TakeRound))

	if allow2Make && qty2MakeRound > 0 {
		price := t.priceForMake()
		t.placeOrder(qty2MakeRound, price, true)
		s.Qty2MakeRemain -= qty2MakeRound
	}
	qty2TakeRound = t.shrinkImpactQty(qty2TakeRound)
	if allow2Take && qty2TakeRound > 0 {
		price := t.coverPriceForTake(qty2TakeRound, 0.5)
		t.placeOrder(qty2TakeRound, price, true)
		s.Qty2TakeRemain -= qty2TakeRound
	}

	s.DurationRemain -= durationRound
	return t.clock.Await(durationRound)
}

func (t *Trader) executeLastSlice(s *Slicer) {
	t.mu.Lock()
	md := t.md
	perf := t.perf
	outIDs := perf.OrderIDsOutOfBestPrice(md)
	t.mu.Unlock()

	if len(outIDs) > 0 {
		t.log.Info("撤掉脱离最优价的挂单", zap.Int("count", len(outIDs)))
		t.cancelOrders(outIDs)
		before := s.DurationRemain
		s.DurationRemain = math.Max(s.DurationRemain-3, 1)
		if !t.clock.Await(before - s.DurationRemain) {
			return
		}
	}

	t.mu.Lock()
	md = t.md
	cumQty := s.CumQty
	if povMax, ok := t.povCap(md); ok {
		cumQty = minInt(cumQty, povMax)
	}
	qtyAtBest, _ := perf.QtyPendingAtBestPrice(md)
	qty2Make := 0
	if perf.MakerFilledRate > 80 {
		qty2Make = cumQty - perf.QtyFilled - qtyAtBest
	}
	qty2Take := cumQty - perf.Qty
	s.Qty2Make, s.Qty2Take = qty2Make, qty2Take
	s.Qty2MakeRemain, s.Qty2TakeRemain = qty2Make, qty2Take

	minQty, _ := t.sec.OrderQtyStep()
	s.RoundsRemain = maxInt(minInt(s.RoundsRemain, maxInt(qty2Make/minQty, qty2Take/minQty)), 1)
	t.mu.Unlock()

	t.log.Info("末片开始", zap.String("slicer", s.String()))

	for round := s.RoundsRemain; round > 0; round-- {
		s.RoundsRemain = round
		if !t.lastSlicePolicy(s) {
			return
		}
	}
}

// lastSlicePolicy 末片的一轮。最后一轮撤掉全部在途单并以
// 清仓单扫掉剩余量，然后等完余下时长。
func (t *Trader) lastSlicePolicy(s *Slicer) bool {
	if !t.running() {
		return false
	}

	if s.RoundsRemain == 1 {
		if ids := t.pendingIDs(); len(ids) > 0 {
			t.log.Info("末轮撤销全部在途单", zap.Int("count", len(ids)))
			t.cancelOrders(ids)
			t.mu.Lock()
			t.cancelAllFlag = true
			t.mu.Unlock()
			wait4Cancel := 3.1
			s.DurationRemain = math.Max(s.DurationRemain-wait4Cancel, 3)
			if !t.clock.Await(wait4Cancel) {
				return false
			}
		}

		t.mu.Lock()
		md := t.md
		perf := t.perf
		qtyTarget := t.inst.QtyTarget
		if povMax, ok := t.povCap(md); ok {
			qtyTarget = minInt(qtyTarget, povMax+cleanupQtySlack)
		}
		qtyTotalRemain := qtyTarget - perf.Qty
		if perf.IsBuy {
			qtyTotalRemain = t.sec.FloorToLot(qtyTotalRemain)
		}
		t.mu.Unlock()

		price := t.coverPriceForTake(qtyTotalRemain, 0.1)
		t.log.Info("清仓单", zap.Int("qty", qtyTotalRemain), zap.Float64("price", price),
			zap.Float64("durationRemain", s.DurationRemain))
		t.placeOrder(qtyTotalRemain, price, false)
		return t.clock.Await(s.DurationRemain)
	}

	t.mu.Lock()
	perf := t.perf
	qty2MakeRound := divOr(s.Qty2MakeRemain, s.RoundsRemain)
	qty2TakeRound := divOr(s.Qty2TakeRemain, s.RoundsRemain)
	durationRound := s.DurationRemain
	if s.RoundsRemain > 0 {
		durationRound = s.DurationRemain / float64(s.RoundsRemain)
	}
	qtyTotalRemain := t.inst.QtyTarget - perf.Qty
	qty2MakeRound = minInt(qty2MakeRound, qtyTotalRemain)
	qty2TakeRound = minInt(qty2TakeRound, qtyTotalRemain)

	allow2Make := perf.AllowMake()
	qty2MakeRound = t.sec.FloorToLot(qty2MakeRound)
	t.mu.Unlock()

	if allow2Make && qty2MakeRound > 0 {
		price := t.priceForMake()
		t.placeOrder(qty2MakeRound, price, true)
		s.Qty2MakeRemain -= qty2MakeRound
	} else {
		qty2TakeRound = t.shrinkImpactQty(qty2TakeRound)
		if qty2TakeRound > 0 {
			price := t.coverPriceForTake(qty2TakeRound, 0)
			t.placeOrder(qty2TakeRound, price, true)
			s.Qty2TakeRemain -= qty2TakeRound
		}
	}

	s.DurationRemain -= durationRound
	return t.clock.Await(durationRound)
}

// povCap 参与率限制下当前允许的累计数量上限。
func (t *Trader) povCap(md *market.Depth) (int, bool) {
	if t.inst.ParticipateRate <= 0 || md == nil {
		return 0, false
	}
	traded := md.Volume - t.perf.ArriveMarketVolume
	if traded <= 0 {
		return 0, false
	}
	return int(t.inst.ParticipateRate / 100 * float64(traded)), true
}

// priceForMake 被动单挂最优价；被动成交率已经很高时退一档要更好的价格。
func (t *Trader) priceForMake() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.md == nil {
		return 0
	}
	if t.perf.MakerFilledRate > 80 {
		if t.perf.IsBuy {
			return t.md.Bids[1].Price
		}
		return t.md.Asks[1].Price
	}
	if t.perf.IsBuy {
		return t.md.BidPrice1()
	}
	return t.md.AskPrice1()
}

// coverPriceForTake 沿对手盘逐档走价，直到累计挂量按 coverRate
// 折算能覆盖 qty 为止。
func (t *Trader) coverPriceForTake(qty int, coverRate float64) float64 {
	if coverRate == 0 {
		coverRate = defaultCoverRate
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.md == nil {
		return 0
	}

	var levels []market.Level
	var price float64
	if t.perf.IsBuy {
		price = t.md.AskPrice1()
		levels = t.md.AskQuotes()
	} else {
		price = t.md.BidPrice1()
		levels = t.md.BidQuotes()
	}
	volsum := 0
	for _, l := range levels {
		if float64(volsum+l.Volume)*coverRate > float64(qty) {
			return l.Price
		}
		volsum += l.Volume
		price = l.Price
	}
	return price
}

// shrinkImpactQty 吃单量不超过对手前两档挂量的一定比例，
// 除非剩余量已小到一笔能扫完。
func (t *Trader) shrinkImpactQty(qty2Take int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.md == nil {
		return t.sec.FloorToLot(qty2Take)
	}
	var vol2 int
	if t.perf.IsBuy {
		vol2 = t.md.Asks[0].Volume + t.md.Asks[1].Volume
	} else {
		vol2 = t.md.Bids[0].Volume + t.md.Bids[1].Volume
	}
	maxImpactVol := int(float64(vol2) * maxImpactVolRate)
	minQty, _ := t.sec.OrderQtyStep()
	if qty2Take-maxImpactVol >= minQty {
		qty2Take = minInt(qty2Take, maxImpactVol)
	}
	return t.sec.FloorToLot(qty2Take)
}

// placeOrder 报出一笔子单。价格先夹限价与涨跌停，落在限制价位
// 且设置了回避标志时放弃本笔。
func (t *Trader) placeOrder(qty int, price float64, checkMinAmtPerOrder bool) {
	if qty <= 0 || price <= 0 {
		return
	}
	inst := t.inst

	t.mu.Lock()
	perf := t.perf
	sec := t.sec
	md := t.md
	t.mu.Unlock()

	if inst.PriceLimit > 0 {
		if perf.IsBuy {
			price = math.Min(price, inst.PriceLimit)
		} else {
			price = math.Max(price, inst.PriceLimit)
		}
	}
	if sec.HighLimit > 0 {
		price = math.Min(price, sec.HighLimit)
	}
	if sec.LowLimit > 0 {
		price = math.Max(price, sec.LowLimit)
	}

	if perf.IsBuy {
		if (price == inst.PriceLimit || price == sec.HighLimit) && inst.NotPegOrderAtLimitPrice {
			t.log.Info("放弃挂限制价", zap.Float64("price", price))
			return
		}
		if price == sec.LowLimit && inst.NotBuyOnLLOrSellOnHL {
			t.log.Info("放弃跌停买入", zap.Float64("price", price))
			return
		}
	} else {
		if (price == inst.PriceLimit || price == sec.LowLimit) && inst.NotPegOrderAtLimitPrice {
			t.log.Info("放弃挂限制价", zap.Float64("price", price))
			return
		}
		if price == sec.HighLimit && inst.NotBuyOnLLOrSellOnHL {
			t.log.Info("放弃涨停卖出", zap.Float64("price", price))
			return
		}
	}
	if checkMinAmtPerOrder && inst.MinAmountPerOrder > 0 &&
		price*float64(qty) < inst.MinAmountPerOrder {
		t.log.Info("放弃小额报单", zap.Float64("price", price), zap.Int("qty", qty))
		return
	}

	id := order.NextID()
	now := t.clock.Now()
	o := &order.Order{
		ID: id, Account: inst.Account, Symbol: inst.Symbol, Side: inst.Side,
		Price: price, Qty: qty, Status: order.StatusReporting,
		CreateTime: now, UpdateTime: now,
	}

	// 先登记再报出，成交回报可能在 Place 返回前到达
	t.mu.Lock()
	perf.OnOrderRequest(o, md)
	t.mu.Unlock()

	req := order.Request{
		ID:      id,
		Account: inst.Account,
		Symbol:  inst.Symbol,
		Side:    inst.Side,
		Price:   price,
		Qty:     qty,
	}
	if _, err := t.book.Place(req); err != nil {
		t.log.Warn("报单失败", zap.Error(err), zap.Int("qty", qty), zap.Float64("price", price))
		rejected := *o
		rejected.Status = order.StatusRejected
		t.onOrderUpdate(&rejected)
		return
	}
	t.log.LogOrder("place", id, map[string]interface{}{"qty": qty, "price": price})
}

func (t *Trader) cancelOrders(ids []uint64) {
	for _, id := range ids {
		if err := t.book.Cancel(id); err != nil {
			t.log.Debug("撤单失败，可能已终态", zap.Uint64("orderId", id), zap.Error(err))
		}
	}
}

func (t *Trader) pendingIDs() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.perf == nil {
		return nil
	}
	return t.perf.PendingOrderIDs()
}

// onOrderUpdate 子单回报，由报单通道的协程调用。
func (t *Trader) onOrderUpdate(o *order.Order) {
	t.mu.Lock()
	if t.perf == nil || t.status.IsFinal() {
		t.mu.Unlock()
		return
	}
	t.perf.OnOrderUpdate(o)
	t.perf.Summarize(t.md, t.clock.Now())
	cancelAll := t.cancelAllFlag
	perf := t.perf
	allDone := cancelAll && perf.Qty == perf.QtyFilled && perf.QtyFilled != perf.QtyTarget
	t.mu.Unlock()

	if o.Status.IsFinal() {
		t.log.LogOrder("report", o.ID, map[string]interface{}{
			"status": string(o.Status), "cumQty": o.CumQty,
		})
	}
	t.publish(false)

	// 全撤完成且无法再成交，提前结束本轮等待
	if allDone {
		t.clock.Skip()
	}
}

// onDepth 行情回调，由行情源的协程调用。
func (t *Trader) onDepth(d *market.Depth) {
	t.mu.Lock()
	if t.status.IsFinal() {
		t.mu.Unlock()
		return
	}
	t.md = d
	if t.perf != nil {
		t.perf.Summarize(d, t.clock.Now())
	}
	t.mu.Unlock()
}

// onDepthPaced 回放节奏回调：推动回放时钟，返回是否继续订阅。
func (t *Trader) onDepthPaced(d *market.Depth) bool {
	t.mu.Lock()
	final := t.status.IsFinal()
	t.mu.Unlock()
	if final {
		return false
	}
	if t.inst.IsBacktest() && t.replay != nil {
		t.replay.OnQuote(d.QuoteTime)
	}
	return true
}

// Cancel 用户撤销：撤掉全部在途单并转入 Canceling，
// 调度循环在下一次检查点退出。没有在途单时直接终态。
func (t *Trader) Cancel() {
	t.mu.Lock()
	if !t.status.IsRunning() {
		t.mu.Unlock()
		return
	}
	t.status = StatusCanceling
	t.errMsg = "USER CANCELING"
	var ids []uint64
	if t.perf != nil {
		ids = t.perf.PendingOrderIDs()
	}
	t.mu.Unlock()

	t.log.Info("用户撤销母单", zap.Int("pendingOrders", len(ids)))
	if len(ids) > 0 {
		t.cancelOrders(ids)
	}
	t.clock.Cancel()
}

// stop 收敛到终态并释放订阅，幂等。
func (t *Trader) stop(reason string) {
	t.mu.Lock()
	if t.status.IsFinal() {
		t.mu.Unlock()
		return
	}
	switch {
	case t.perf != nil && t.perf.QtyFilled >= t.perf.QtyTarget:
		t.status = StatusFinished
		t.errMsg = ""
	case t.status == StatusCanceling:
		t.status = StatusTerminated
		t.errMsg = "USER CANCEL."
	case reason != "":
		t.status = StatusError
		t.errMsg = reason
	default:
		t.status = StatusExpired
	}
	status, errMsg := t.status, t.errMsg
	t.mu.Unlock()

	t.startedOnce.Do(func() { close(t.startedCh) })
	t.clock.Cancel()

	if t.feedKey != 0 {
		t.feed.Unsubscribe(t.feedKey)
	}
	if t.bookKey != 0 {
		t.book.Unsubscribe(t.bookKey)
	}

	t.log.LogAlgo("stopped", t.inst.ID, map[string]interface{}{
		"status": string(status), "errMsg": errMsg,
	})
	t.publish(true)

	t.mu.Lock()
	if t.perf != nil {
		t.perf.Release()
	}
	t.mu.Unlock()
}

func (t *Trader) publish(final bool) {
	if t.sink != nil {
		t.sink(t, final)
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func divOr(v, by int) int {
	if by > 0 {
		return v / by
	}
	return v
}
