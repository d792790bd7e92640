package market

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tickAt(symbol string, at time.Time, volume int64, amount float64) Depth {
	return Depth{Symbol: symbol, QuoteTime: at, Volume: volume, Amount: amount}
}

func TestReplayOrderedDelivery(t *testing.T) {
	base := time.Date(2025, 3, 14, 9, 30, 0, 0, time.Local)
	// 乱序注入，回放应按行情时间升序投递
	feed := NewReplayFeed([]Depth{
		tickAt("600000.SH", base.Add(6*time.Second), 300, 3000),
		tickAt("600000.SH", base, 100, 1000),
		tickAt("600000.SH", base.Add(3*time.Second), 200, 2000),
	})

	var mu sync.Mutex
	var got []time.Time
	done := make(chan struct{})

	_, err := feed.Subscribe(&Subscription{
		Symbols: map[string]struct{}{"600000.SH": {}},
		OnDepth: func(d *Depth) {
			mu.Lock()
			got = append(got, d.QuoteTime)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	feed.OnFeedFinished(func() { close(done) })

	feed.Start()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 3)
	assert.True(t, got[0].Before(got[1]) && got[1].Before(got[2]), "ticks out of order: %v", got)
}

func TestReplayPacedCallbackRemovesFinishedSubscriber(t *testing.T) {
	base := time.Date(2025, 3, 14, 9, 30, 0, 0, time.Local)
	feed := NewReplayFeed([]Depth{
		tickAt("600000.SH", base, 100, 1000),
		tickAt("600000.SH", base.Add(3*time.Second), 200, 2000),
		tickAt("600000.SH", base.Add(6*time.Second), 300, 3000),
	})

	var mu sync.Mutex
	paced := 0
	done := make(chan struct{})

	feed.Subscribe(&Subscription{
		Symbols: map[string]struct{}{"600000.SH": {}},
		OnDepthPaced: func(d *Depth) bool {
			mu.Lock()
			defer mu.Unlock()
			paced++
			return paced < 2 // 第二笔后宣告终止
		},
	})
	feed.OnFeedFinished(func() { close(done) })

	feed.Start()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, paced, "终止后的行情不应再投递")
}

func TestReplayFiltersBySymbol(t *testing.T) {
	base := time.Date(2025, 3, 14, 9, 30, 0, 0, time.Local)
	feed := NewReplayFeed([]Depth{
		tickAt("600000.SH", base, 100, 1000),
		tickAt("000001.SZ", base.Add(time.Second), 50, 500),
	})

	var mu sync.Mutex
	var symbols []string
	done := make(chan struct{})

	feed.Subscribe(&Subscription{
		Symbols: map[string]struct{}{"000001.SZ": {}},
		OnDepth: func(d *Depth) {
			mu.Lock()
			symbols = append(symbols, d.Symbol)
			mu.Unlock()
		},
	})
	feed.OnFeedFinished(func() { close(done) })
	feed.Start()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, symbols, 1)
	assert.Equal(t, "000001.SZ", symbols[0])
}

func TestIntervalVWAP(t *testing.T) {
	base := time.Date(2025, 3, 14, 9, 30, 0, 0, time.Local)
	feed := NewReplayFeed([]Depth{
		tickAt("600000.SH", base, 1000, 10000),
		tickAt("600000.SH", base.Add(time.Minute), 3000, 30600),
		tickAt("600000.SH", base.Add(2*time.Minute), 5000, 51200),
	})

	// (51200-10000)/(5000-1000) = 10.3
	got := feed.IntervalVWAP("600000.SH", base, base.Add(2*time.Minute))
	assert.InDelta(t, 10.3, got, 1e-9)

	// 区间内不足两笔快照无法计算
	assert.Zero(t, feed.IntervalVWAP("600000.SH", base, base.Add(time.Second)))
	assert.Zero(t, feed.IntervalVWAP("000001.SZ", base, base.Add(2*time.Minute)))
}
