package algo

import (
	"strconv"
	"time"

	"algo-engine-go/order"
)

// Strategy 执行策略类型。
type Strategy string

const (
	StrategyTWAP Strategy = "TWAP"
	StrategyVWAP Strategy = "VWAP"
	StrategyPOV  Strategy = "POV"
)

// Mode 执行模式。
type Mode string

const (
	ModeLive     Mode = "LIVE"
	ModeBacktest Mode = "BACKTEST"
)

// Instruction 一笔母单指令。
type Instruction struct {
	ID       uint64
	ClientID string
	Account  string
	Symbol   string
	Strategy Strategy
	Mode     Mode

	Side      order.Side
	QtyTarget int
	AmtTarget float64

	StartTime    time.Time
	EndTime      time.Time
	ExecDuration float64 // 秒；>0 时实盘以下达时刻起算

	PriceLimit        float64 // 0 表示不限价
	ParticipateRate   float64 // 百分比，0 表示不限参与率
	MinAmountPerOrder float64

	// 挂单落在涨跌停价上时放弃本笔
	NotPegOrderAtLimitPrice bool
	// 跌停不买入 / 涨停不卖出
	NotBuyOnLLOrSellOnHL bool

	// Params 扩展参数，按需读取
	Params map[string]string
}

// IsBacktest 是否回测模式。
func (a *Instruction) IsBacktest() bool { return a.Mode == ModeBacktest }

// ParamString 读取扩展参数，缺失时返回默认值。
func (a *Instruction) ParamString(key, def string) string {
	if v, ok := a.Params[key]; ok {
		return v
	}
	return def
}

func (a *Instruction) ParamFloat(key string, def float64) float64 {
	if v, ok := a.Params[key]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func (a *Instruction) ParamInt(key string, def int) int {
	if v, ok := a.Params[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
