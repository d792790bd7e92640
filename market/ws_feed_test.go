package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func wsTick(at time.Time, volume int64, amount float64) *Depth {
	return &Depth{Symbol: "600000.SH", QuoteTime: at, Volume: volume, Amount: amount}
}

func TestWSFeedIntervalVWAP(t *testing.T) {
	f := NewWSFeed("ws://gateway", zap.NewNop())
	base := time.Date(2025, 3, 14, 10, 0, 0, 0, time.Local)

	f.dispatch(wsTick(base, 1000, 10000))
	f.dispatch(wsTick(base.Add(2*time.Second), 2000, 30500))

	vwap := f.IntervalVWAP("600000.SH", base, base.Add(time.Minute))
	assert.InDelta(t, 20.5, vwap, 1e-9)

	// 样本不足两个时无法计算
	assert.Zero(t, f.IntervalVWAP("600000.SH", base.Add(time.Second), base.Add(90*time.Second)))
}

func TestWSFeedPrunesStaleSamples(t *testing.T) {
	f := NewWSFeed("ws://gateway", zap.NewNop())
	base := time.Date(2025, 3, 14, 9, 30, 0, 0, time.Local)

	f.dispatch(wsTick(base, 1000, 10000))
	f.dispatch(wsTick(base.Add(time.Minute), 2000, 20000))
	// 跨过保留窗口的新样本把旧样本挤掉
	f.dispatch(wsTick(base.Add(vwapSampleRetention+time.Hour), 3000, 30000))

	f.mu.Lock()
	ss := f.samples["600000.SH"]
	f.mu.Unlock()

	require.Len(t, ss, 1)
	assert.Equal(t, base.Add(vwapSampleRetention+time.Hour), ss[0].at)
}
