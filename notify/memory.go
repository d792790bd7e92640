package notify

import "sync"

// MemoryPublisher 进程内快照分发器，回测与测试用。
// 终态快照按母单缓存，晚订阅方仍能取到终态。
type MemoryPublisher struct {
	mu       sync.Mutex
	subs     []chan *Snapshot
	terminal map[uint64]*Snapshot
	closed   bool
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{terminal: make(map[uint64]*Snapshot)}
}

// Subscribe 返回快照通道。通道满时丢弃中间快照，终态走缓存不丢。
func (p *MemoryPublisher) Subscribe() <-chan *Snapshot {
	ch := make(chan *Snapshot, 16)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

func (p *MemoryPublisher) Publish(s *Snapshot) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	if s.Final {
		p.terminal[s.AlgoOrderID] = s
	}
	subs := make([]chan *Snapshot, len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- s:
		default:
		}
	}
	return nil
}

// Terminal 取指定母单的终态快照，尚未终结返回 nil。
func (p *MemoryPublisher) Terminal(algoOrderID uint64) *Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminal[algoOrderID]
}

func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		for _, ch := range p.subs {
			close(ch)
		}
		p.subs = nil
	}
	return nil
}
