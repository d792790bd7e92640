package market

import (
	"sort"
	"sync"
	"time"
)

// ReplayFeed 历史行情回放源：按行情时间升序逐笔投递快照，
// 并通过 OnDepthPaced 与订阅方同步节奏，保证回测中行情与
// 交易逻辑的因果顺序。
type ReplayFeed struct {
	mu      sync.Mutex
	ticks   []Depth
	subs    map[uint64]*Subscription
	nextKey uint64
	current time.Time
	onDone  []func()
	stopCh  chan struct{}
	started bool
}

// NewReplayFeed 构造回放源。ticks 可以无序，Start 时统一排序。
func NewReplayFeed(ticks []Depth) *ReplayFeed {
	return &ReplayFeed{
		ticks:  ticks,
		subs:   make(map[uint64]*Subscription),
		stopCh: make(chan struct{}),
	}
}

// Append 追加回放数据，仅允许在 Start 之前调用。
func (f *ReplayFeed) Append(ticks ...Depth) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return
	}
	f.ticks = append(f.ticks, ticks...)
}

func (f *ReplayFeed) Subscribe(sub *Subscription) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextKey++
	sub.Key = f.nextKey
	f.subs[sub.Key] = sub
	return sub.Key, nil
}

func (f *ReplayFeed) Unsubscribe(key uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, key)
}

func (f *ReplayFeed) OnFeedFinished(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDone = append(f.onDone, fn)
}

// CurrentQuoteTime 当前回放到的行情时刻。
func (f *ReplayFeed) CurrentQuoteTime() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Start 启动回放协程。
func (f *ReplayFeed) Start() {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return
	}
	f.started = true
	sort.SliceStable(f.ticks, func(i, j int) bool {
		return f.ticks[i].QuoteTime.Before(f.ticks[j].QuoteTime)
	})
	f.mu.Unlock()
	go f.run()
}

// Stop 中断回放。
func (f *ReplayFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
}

func (f *ReplayFeed) run() {
	for i := range f.ticks {
		select {
		case <-f.stopCh:
			return
		default:
		}

		d := f.ticks[i]
		f.mu.Lock()
		f.current = d.QuoteTime
		targets := make([]*Subscription, 0, len(f.subs))
		for _, sub := range f.subs {
			if sub.Covers(d.Symbol) {
				targets = append(targets, sub)
			}
		}
		f.mu.Unlock()

		// 先同步广播，再逐个等待节奏回调，订阅方终止则摘除
		for _, sub := range targets {
			if sub.OnDepth != nil {
				sub.OnDepth(&d)
			}
		}
		for _, sub := range targets {
			if sub.OnDepthPaced == nil {
				continue
			}
			if !sub.OnDepthPaced(&d) {
				f.Unsubscribe(sub.Key)
			}
		}
	}

	f.mu.Lock()
	done := append([]func(){}, f.onDone...)
	f.mu.Unlock()
	for _, fn := range done {
		fn()
	}
}

// IntervalVWAP 以区间首尾快照的累计成交额、成交量之差计算区间均价。
func (f *ReplayFeed) IntervalVWAP(symbol string, from, to time.Time) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	var first, last *Depth
	for i := range f.ticks {
		d := &f.ticks[i]
		if d.Symbol != symbol || d.QuoteTime.Before(from) || d.QuoteTime.After(to) {
			continue
		}
		if first == nil {
			first = d
		}
		last = d
	}
	if first == nil || last == first {
		return 0
	}
	dv := last.Volume - first.Volume
	if dv <= 0 {
		return 0
	}
	return (last.Amount - first.Amount) / float64(dv)
}
