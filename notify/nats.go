package notify

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSPublisher 把快照以 JSON 发到 NATS。
// 主题为 <prefix>.<algoOrderId>。断线期间发不出去的终态快照
// 缓存在 pending 里，重连后补投，达到至少一次的口径。
type NATSPublisher struct {
	nc      *nats.Conn
	prefix  string
	log     *zap.Logger
	mu      sync.Mutex
	pending map[uint64]*Snapshot
}

func NewNATSPublisher(url, prefix string, log *zap.Logger) (*NATSPublisher, error) {
	p := &NATSPublisher{
		prefix:  prefix,
		log:     log,
		pending: make(map[uint64]*Snapshot),
	}
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats reconnected")
			p.resendPending()
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	p.nc = nc
	return p, nil
}

func (p *NATSPublisher) subject(id uint64) string {
	return fmt.Sprintf("%s.%d", p.prefix, id)
}

func (p *NATSPublisher) Publish(s *Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot %d: %w", s.AlgoOrderID, err)
	}
	if err := p.nc.Publish(p.subject(s.AlgoOrderID), data); err != nil {
		if s.Final {
			p.mu.Lock()
			p.pending[s.AlgoOrderID] = s
			p.mu.Unlock()
			p.log.Warn("terminal snapshot cached for resend",
				zap.Uint64("algoOrderId", s.AlgoOrderID), zap.Error(err))
			return nil
		}
		return err
	}
	if s.Final {
		// 终态快照确认落到服务端后才算送达
		if err := p.nc.Flush(); err != nil {
			p.mu.Lock()
			p.pending[s.AlgoOrderID] = s
			p.mu.Unlock()
			p.log.Warn("terminal snapshot flush failed, cached",
				zap.Uint64("algoOrderId", s.AlgoOrderID), zap.Error(err))
		}
	}
	return nil
}

func (p *NATSPublisher) resendPending() {
	p.mu.Lock()
	backlog := make([]*Snapshot, 0, len(p.pending))
	for _, s := range p.pending {
		backlog = append(backlog, s)
	}
	p.pending = make(map[uint64]*Snapshot)
	p.mu.Unlock()

	for _, s := range backlog {
		if err := p.Publish(s); err != nil {
			p.log.Error("resend terminal snapshot failed",
				zap.Uint64("algoOrderId", s.AlgoOrderID), zap.Error(err))
		}
	}
}

func (p *NATSPublisher) Close() error {
	p.nc.Drain()
	p.nc.Close()
	return nil
}
