package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublisherFanOut(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	ch1 := p.Subscribe()
	ch2 := p.Subscribe()

	require.NoError(t, p.Publish(&Snapshot{AlgoOrderID: 1, QtyFilled: 300}))

	s1 := <-ch1
	s2 := <-ch2
	assert.Equal(t, uint64(1), s1.AlgoOrderID)
	assert.Equal(t, 300, s2.QtyFilled)
}

func TestMemoryPublisherTerminalCache(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	require.NoError(t, p.Publish(&Snapshot{AlgoOrderID: 7, Status: "RUNNING"}))
	assert.Nil(t, p.Terminal(7), "中间快照不进终态缓存")

	require.NoError(t, p.Publish(&Snapshot{AlgoOrderID: 7, Status: "FINISHED", Final: true}))
	term := p.Terminal(7)
	require.NotNil(t, term)
	assert.Equal(t, "FINISHED", term.Status)

	// 晚订阅方拿不到历史推送，但能查终态
	late := p.Subscribe()
	select {
	case s := <-late:
		t.Fatalf("unexpected snapshot %+v", s)
	default:
	}
}

func TestMemoryPublisherSlowSubscriberDropsIntermediate(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	p.Subscribe() // 无人消费，缓冲填满后丢弃
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Publish(&Snapshot{AlgoOrderID: 9, QtyFilled: i}))
	}
	require.NoError(t, p.Publish(&Snapshot{AlgoOrderID: 9, Final: true}))
	assert.NotNil(t, p.Terminal(9))
}

func TestMemoryPublisherCloseIdempotent(t *testing.T) {
	p := NewMemoryPublisher()
	ch := p.Subscribe()
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, open := <-ch
	assert.False(t, open)
	assert.NoError(t, p.Publish(&Snapshot{AlgoOrderID: 1}))
}
