package market

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsDepthMessage 行情网关推送的五档快照报文。
type wsDepthMessage struct {
	Symbol    string       `json:"symbol"`
	QuoteTime int64        `json:"quote_time"` // 毫秒时间戳
	Price     float64      `json:"price"`
	PreClose  float64      `json:"pre_close"`
	Open      float64      `json:"open"`
	High      float64      `json:"high"`
	Low       float64      `json:"low"`
	Volume    int64        `json:"volume"`
	Amount    float64      `json:"amount"`
	Bids      [][2]float64 `json:"bids"` // [价格, 挂量]
	Asks      [][2]float64 `json:"asks"`
}

// volSample 供实时区间均价计算的累计量样本。
type volSample struct {
	at     time.Time
	volume int64
	amount float64
}

// 样本只为区间均价服务，母单窗口不会跨交易日，更旧的裁掉。
const vwapSampleRetention = 6 * time.Hour

// WSFeed 实时行情源：连接行情网关 WS，解析五档快照并分发给订阅方。
// 节奏回调在实时模式下只用于探测订阅方是否已终止，不阻塞读取协程。
type WSFeed struct {
	Endpoint string
	Dialer   *websocket.Dialer

	log *zap.Logger

	mu      sync.Mutex
	subs    map[uint64]*Subscription
	nextKey uint64
	samples map[string][]volSample
	onDone  []func()
	stopCh  chan struct{}
}

func NewWSFeed(endpoint string, log *zap.Logger) *WSFeed {
	return &WSFeed{
		Endpoint: endpoint,
		Dialer:   websocket.DefaultDialer,
		log:      log,
		subs:     make(map[uint64]*Subscription),
		samples:  make(map[string][]volSample),
		stopCh:   make(chan struct{}),
	}
}

func (f *WSFeed) Subscribe(sub *Subscription) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextKey++
	sub.Key = f.nextKey
	f.subs[sub.Key] = sub
	return sub.Key, nil
}

func (f *WSFeed) Unsubscribe(key uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, key)
}

func (f *WSFeed) OnFeedFinished(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDone = append(f.onDone, fn)
}

// CurrentQuoteTime 实时模式下行情时刻即本地时刻。
func (f *WSFeed) CurrentQuoteTime() time.Time { return time.Now() }

// Start 启动读取协程，断线自动重连。
func (f *WSFeed) Start() {
	go f.run()
}

func (f *WSFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
}

func (f *WSFeed) run() {
	backoff := time.Second
	for {
		select {
		case <-f.stopCh:
			f.finish()
			return
		default:
		}

		err := f.readLoop()
		if err != nil {
			f.log.Warn("行情连接中断，准备重连",
				zap.String("endpoint", f.Endpoint), zap.Error(err), zap.Duration("backoff", backoff))
		}
		select {
		case <-f.stopCh:
			f.finish()
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *WSFeed) readLoop() error {
	conn, _, err := f.Dialer.Dial(f.Endpoint, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		select {
		case <-f.stopCh:
			return nil
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg wsDepthMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			f.log.Warn("行情报文解析失败", zap.Error(err))
			continue
		}
		f.dispatch(decodeDepth(&msg))
	}
}

func decodeDepth(msg *wsDepthMessage) *Depth {
	d := &Depth{
		Symbol:    msg.Symbol,
		QuoteTime: time.UnixMilli(msg.QuoteTime),
		Price:     msg.Price,
		PreClose:  msg.PreClose,
		Open:      msg.Open,
		High:      msg.High,
		Low:       msg.Low,
		Volume:    msg.Volume,
		Amount:    msg.Amount,
	}
	for i := 0; i < len(msg.Bids) && i < 5; i++ {
		d.Bids[i] = Level{Price: msg.Bids[i][0], Volume: int(msg.Bids[i][1])}
	}
	for i := 0; i < len(msg.Asks) && i < 5; i++ {
		d.Asks[i] = Level{Price: msg.Asks[i][0], Volume: int(msg.Asks[i][1])}
	}
	return d
}

func (f *WSFeed) dispatch(d *Depth) {
	f.mu.Lock()
	ss := append(f.samples[d.Symbol], volSample{at: d.QuoteTime, volume: d.Volume, amount: d.Amount})
	cutoff := d.QuoteTime.Add(-vwapSampleRetention)
	if idx := sort.Search(len(ss), func(i int) bool { return ss[i].at.After(cutoff) }); idx > 0 {
		ss = append([]volSample(nil), ss[idx:]...)
	}
	f.samples[d.Symbol] = ss
	targets := make([]*Subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		if sub.Covers(d.Symbol) {
			targets = append(targets, sub)
		}
	}
	f.mu.Unlock()

	for _, sub := range targets {
		if sub.OnDepth != nil {
			sub.OnDepth(d)
		}
		if sub.OnDepthPaced != nil && !sub.OnDepthPaced(d) {
			f.Unsubscribe(sub.Key)
		}
	}
}

// IntervalVWAP 用区间内首尾两个样本的累计量差计算均价。
func (f *WSFeed) IntervalVWAP(symbol string, from, to time.Time) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	samples := f.samples[symbol]
	lo := sort.Search(len(samples), func(i int) bool { return !samples[i].at.Before(from) })
	hi := sort.Search(len(samples), func(i int) bool { return samples[i].at.After(to) })
	if hi-lo < 2 {
		return 0
	}
	first, last := samples[lo], samples[hi-1]
	dv := last.volume - first.volume
	if dv <= 0 {
		return 0
	}
	return (last.amount - first.amount) / float64(dv)
}

func (f *WSFeed) finish() {
	f.mu.Lock()
	done := append([]func(){}, f.onDone...)
	f.mu.Unlock()
	for _, fn := range done {
		fn()
	}
}
