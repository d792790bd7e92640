package algo

import (
	"sync"
	"time"

	"algo-engine-go/markettime"
)

// Clock 执行时钟：调度器所有等待都经过它，实盘走墙钟，
// 回放走行情时间游标，两种模式下调度逻辑完全一致。
type Clock interface {
	Now() time.Time

	// Await 等待 seconds 个市场秒（跨午休自动顺延）。
	// 返回 false 表示执行已被终止，调用方应立即收尾。
	Await(seconds float64) bool

	// Skip 提前结束当前一次 Await，执行继续。
	Skip()

	// Cancel 释放所有等待者。
	Cancel()
}

// LiveClock 实盘时钟。长等待切成小段，每段醒来检查一次终止标志，
// 撤单指令不必等到本轮等待自然结束。
type LiveClock struct {
	mu       sync.Mutex
	canceled bool
	wake     chan struct{}
	skip     chan struct{}
}

func NewLiveClock() *LiveClock {
	return &LiveClock{
		wake: make(chan struct{}),
		skip: make(chan struct{}, 1),
	}
}

func (c *LiveClock) Now() time.Time { return time.Now() }

func (c *LiveClock) Await(seconds float64) bool {
	deadline := time.Now().Add(time.Duration(seconds * float64(time.Second)))
	// 落在午休内的目标时刻顺延到下午盘
	if markettime.IsNoonBreak(deadline) {
		deadline = markettime.AfternoonOpen(deadline).
			Add(deadline.Sub(markettime.MorningClose(deadline)))
	}
	// 丢弃上一次等待遗留的跳过信号
	select {
	case <-c.skip:
	default:
	}
	for {
		c.mu.Lock()
		canceled := c.canceled
		wake := c.wake
		c.mu.Unlock()
		if canceled {
			return false
		}

		now := time.Now()
		if !now.Before(deadline) {
			return true
		}
		segment := deadline.Sub(now)
		if segment > 2*time.Second {
			segment = 2 * time.Second
		}
		select {
		case <-time.After(segment):
		case <-c.skip:
			return true
		case <-wake:
			return false
		}
	}
}

// Skip 跳过当前等待；没有等待者时对下一次等待生效。
func (c *LiveClock) Skip() {
	select {
	case c.skip <- struct{}{}:
	default:
	}
}

func (c *LiveClock) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.canceled {
		c.canceled = true
		close(c.wake)
	}
}

// ReplayClock 回放时钟。虚拟当前时刻由 Await 按市场时长推进，
// 与回放源通过接力门闩互相推进：调度协程在 Await 内等行情
// 追上虚拟时刻，回放协程在 OnQuote 内等调度越过当前行情，
// 两边交替运行，保证回测中行情与交易的因果顺序。
type ReplayClock struct {
	mu       sync.Mutex
	cond     *sync.Cond
	cursor   time.Time // 虚拟当前时刻
	quote    time.Time // 已投递行情的最新时刻
	canceled bool
	skipped  bool
}

func NewReplayClock(start time.Time) *ReplayClock {
	c := &ReplayClock{cursor: start}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *ReplayClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

func (c *ReplayClock) Await(seconds float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cursor = markettime.AddDuration(c.cursor, seconds)
	c.skipped = false
	c.cond.Broadcast()
	for !c.canceled && !c.skipped && c.quote.Add(3*time.Second).Before(c.cursor) {
		c.cond.Wait()
	}
	c.skipped = false
	return !c.canceled
}

// Skip 跳过当前等待。
func (c *ReplayClock) Skip() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipped = true
	c.cond.Broadcast()
}

// OnQuote 节奏回调输入一笔行情时刻，阻塞回放协程直到调度
// 越过该时刻（或执行终止），再放行下一笔行情。
func (c *ReplayClock) OnQuote(quoteTime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if quoteTime.After(c.quote) {
		c.quote = quoteTime
	}
	c.cond.Broadcast()
	for !c.canceled && !c.cursor.After(quoteTime.Add(3*time.Second)) {
		c.cond.Wait()
	}
}

func (c *ReplayClock) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canceled = true
	c.cond.Broadcast()
}
