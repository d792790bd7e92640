package engine

import (
	"algo-engine-go/algo"
	"algo-engine-go/notify"
)

// buildSnapshot 把调度器当前状态折叠成对外快照。
// 预检失败时绩效聚合器尚未创建，只带指令与终态信息。
func buildSnapshot(t *algo.Trader, final bool) *notify.Snapshot {
	inst := t.Instruction()
	status, errMsg := t.Status()
	start, end := t.Window()

	s := &notify.Snapshot{
		AlgoOrderID: inst.ID,
		Account:     inst.Account,
		Symbol:      inst.Symbol,
		Strategy:    string(inst.Strategy),
		Side:        inst.Side.String(),
		QtyTarget:   inst.QtyTarget,
		StartTime:   start,
		EndTime:     end,
		Status:      string(status),
		ErrMsg:      errMsg,
		Final:       final,
	}

	perf := t.PerformanceView()
	if perf == nil {
		return s
	}

	s.Qty = perf.Qty
	s.QtyFilled = perf.QtyFilled
	s.QtyCanceled = perf.QtyCanceled
	s.QtyRejected = perf.QtyRejected
	s.AmtFilled = perf.AmtFilled
	s.AvgPrice = perf.AvgPrice

	s.OrderCnt = perf.OrderCnt
	s.OrderCntFilled = perf.OrderCntFilled
	s.OrderCntCanceled = perf.OrderCntCanceled
	s.OrderCntRejected = perf.OrderCntRejected

	s.TimeProgress = perf.TimeProgress
	s.FilledRate = perf.FilledRate
	s.CancelRate = perf.CancelRate
	s.MakerRate = perf.MakerRate
	s.MakerFilledRate = perf.MakerFilledRate

	s.ArrivePrice = perf.ArrivePrice
	s.MarketVwapPrice = perf.MarketVwapPrice
	s.MarketTwapPrice = perf.MarketTwapPrice
	s.SlippageArrivePrice = perf.SlippageArrivePrice
	s.SlippageVWAP = perf.SlippageVWAP
	s.SlippageTWAP = perf.SlippageTWAP
	s.ActualParticipateRate = perf.ActualParticipateRate
	s.Momentum = perf.Momentum
	return s
}
