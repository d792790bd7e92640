package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"algo-engine-go/algo"
	"algo-engine-go/order"
)

// instructionMessage 母单指令的线上格式。
type instructionMessage struct {
	ID       uint64 `json:"algoOrderId"`
	ClientID string `json:"clientAlgoOrderId"`
	Account  string `json:"account"`
	Symbol   string `json:"symbol"`
	Strategy string `json:"strategy"`
	Mode     string `json:"mode"`
	Side     string `json:"side"`

	QtyTarget int     `json:"qtyTarget"`
	AmtTarget float64 `json:"amtTarget"`

	StartTime    string  `json:"startTime"` // 2006-01-02 15:04:05
	EndTime      string  `json:"endTime"`
	ExecDuration float64 `json:"execDuration"`

	PriceLimit        float64 `json:"priceLimit"`
	ParticipateRate   float64 `json:"participateRate"`
	MinAmountPerOrder float64 `json:"minAmountPerOrder"`

	NotPegOrderAtLimitPrice bool `json:"notPegOrderAtLimitPrice"`
	NotBuyOnLLOrSellOnHL    bool `json:"notBuyOnLLOrSellOnHL"`

	Params map[string]string `json:"params"`
}

type cancelMessage struct {
	ID uint64 `json:"algoOrderId"`
}

const wireTimeLayout = "2006-01-02 15:04:05"

// decodeInstruction 解析并校验指令报文。
func decodeInstruction(data []byte) (*algo.Instruction, error) {
	var msg instructionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse instruction: %w", err)
	}
	if msg.ID == 0 {
		return nil, fmt.Errorf("algoOrderId is required")
	}

	var side order.Side
	switch msg.Side {
	case "BUY":
		side = order.SideBuy
	case "SELL":
		side = order.SideSell
	default:
		return nil, fmt.Errorf("invalid side %q", msg.Side)
	}

	var strategy algo.Strategy
	switch msg.Strategy {
	case string(algo.StrategyTWAP), string(algo.StrategyVWAP), string(algo.StrategyPOV):
		strategy = algo.Strategy(msg.Strategy)
	default:
		return nil, fmt.Errorf("unsupported strategy %q", msg.Strategy)
	}

	mode := algo.ModeLive
	if msg.Mode == string(algo.ModeBacktest) {
		mode = algo.ModeBacktest
	}

	inst := &algo.Instruction{
		ID:       msg.ID,
		ClientID: msg.ClientID,
		Account:  msg.Account,
		Symbol:   msg.Symbol,
		Strategy: strategy,
		Mode:     mode,
		Side:     side,

		QtyTarget: msg.QtyTarget,
		AmtTarget: msg.AmtTarget,

		ExecDuration: msg.ExecDuration,

		PriceLimit:        msg.PriceLimit,
		ParticipateRate:   msg.ParticipateRate,
		MinAmountPerOrder: msg.MinAmountPerOrder,

		NotPegOrderAtLimitPrice: msg.NotPegOrderAtLimitPrice,
		NotBuyOnLLOrSellOnHL:    msg.NotBuyOnLLOrSellOnHL,

		Params: msg.Params,
	}

	if msg.StartTime != "" {
		t, err := time.ParseInLocation(wireTimeLayout, msg.StartTime, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid startTime %q: %w", msg.StartTime, err)
		}
		inst.StartTime = t
	}
	if msg.EndTime != "" {
		t, err := time.ParseInLocation(wireTimeLayout, msg.EndTime, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid endTime %q: %w", msg.EndTime, err)
		}
		inst.EndTime = t
	}
	return inst, nil
}

// Listener 订阅 NATS 指令主题，把母单指令与撤销请求喂给受理服务。
type Listener struct {
	nc   *nats.Conn
	svc  *Service
	log  *zap.Logger
	subs []*nats.Subscription
}

func NewListener(url string, svc *Service, log *zap.Logger) (*Listener, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &Listener{nc: nc, svc: svc, log: log}, nil
}

// Start 订阅指令与撤销主题。
func (l *Listener) Start(instructionSubject, cancelSubject string) error {
	sub, err := l.nc.Subscribe(instructionSubject, func(msg *nats.Msg) {
		inst, err := decodeInstruction(msg.Data)
		if err != nil {
			l.log.Warn("非法指令报文", zap.Error(err))
			return
		}
		if err := l.svc.Submit(inst); err != nil {
			l.log.Warn("指令受理失败", zap.Uint64("aid", inst.ID), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", instructionSubject, err)
	}
	l.subs = append(l.subs, sub)

	sub, err = l.nc.Subscribe(cancelSubject, func(msg *nats.Msg) {
		var c cancelMessage
		if err := json.Unmarshal(msg.Data, &c); err != nil || c.ID == 0 {
			l.log.Warn("非法撤销报文", zap.ByteString("data", msg.Data))
			return
		}
		if err := l.svc.Cancel(c.ID); err != nil {
			l.log.Warn("撤销失败", zap.Uint64("aid", c.ID), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", cancelSubject, err)
	}
	l.subs = append(l.subs, sub)
	return nil
}

func (l *Listener) Close() {
	for _, sub := range l.subs {
		_ = sub.Unsubscribe()
	}
	l.nc.Close()
}
