package market

import "time"

// OnDepth 行情回调，在行情源的分发协程上同步执行。
type OnDepth func(d *Depth)

// OnDepthPaced 节奏回调：回放源在每笔行情后调用并等待其返回，
// 订阅方可借此阻塞回放直至自身消费完毕。返回 false 表示订阅方已终止，
// 行情源本轮不再向其投递。实时源忽略该回调的阻塞语义。
type OnDepthPaced func(d *Depth) bool

// Subscription 一次行情订阅。
type Subscription struct {
	Key          uint64
	Symbols      map[string]struct{}
	OnDepth      OnDepth
	OnDepthPaced OnDepthPaced
}

// Covers 是否订阅了该证券。Symbols 为空表示订阅全部。
func (s *Subscription) Covers(symbol string) bool {
	if len(s.Symbols) == 0 {
		return true
	}
	_, ok := s.Symbols[symbol]
	return ok
}

// QuoteFeed 行情源抽象：实时与历史回放实现同一契约，调用方无需感知模式。
type QuoteFeed interface {
	Subscribe(sub *Subscription) (uint64, error)
	Unsubscribe(key uint64)

	// OnFeedFinished 注册行情结束回调（回放数据耗尽 / 实时断流收盘）。
	OnFeedFinished(fn func())

	// CurrentQuoteTime 仅回放源有意义：当前回放到的行情时刻。
	CurrentQuoteTime() time.Time

	// IntervalVWAP 仅回放源有意义：区间成交量加权均价。
	IntervalVWAP(symbol string, from, to time.Time) float64
}
