// Package notify 对外发布母单执行快照。
// 终态快照要求至少一次送达，中间快照尽力而为。
package notify

import "time"

// Snapshot 母单执行快照，状态变化与终态时发布。
type Snapshot struct {
	AlgoOrderID uint64 `json:"algoOrderId"`
	Account     string `json:"account"`
	Symbol      string `json:"symbol"`
	Strategy    string `json:"strategy"`
	Side        string `json:"side"`

	QtyTarget int       `json:"qtyTarget"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`

	Qty         int     `json:"qty"`
	QtyFilled   int     `json:"qtyFilled"`
	QtyCanceled int     `json:"qtyCanceled"`
	QtyRejected int     `json:"qtyRejected"`
	AmtFilled   float64 `json:"amtFilled"`
	AvgPrice    float64 `json:"avgPrice"`

	OrderCnt         int `json:"orderCnt"`
	OrderCntFilled   int `json:"orderCntFilled"`
	OrderCntCanceled int `json:"orderCntCanceled"`
	OrderCntRejected int `json:"orderCntRejected"`

	TimeProgress    float64 `json:"timeProgress"`
	FilledRate      float64 `json:"filledRate"`
	CancelRate      float64 `json:"cancelRate"`
	MakerRate       float64 `json:"makerRate"`
	MakerFilledRate float64 `json:"makerFilledRate"`

	ArrivePrice           float64 `json:"arrivePrice"`
	MarketVwapPrice       float64 `json:"marketVwapPrice"`
	MarketTwapPrice       float64 `json:"marketTwapPrice"`
	SlippageArrivePrice   float64 `json:"slippageArrivePrice"`
	SlippageVWAP          float64 `json:"slippageVwap"`
	SlippageTWAP          float64 `json:"slippageTwap"`
	ActualParticipateRate float64 `json:"actualParticipateRate"`
	Momentum              float64 `json:"momentum"`

	Status string    `json:"status"`
	ErrMsg string    `json:"errMsg,omitempty"`
	Final  bool      `json:"final"`
	SentAt time.Time `json:"sentAt"`
}

// Publisher 快照出口。Publish 不阻塞执行主流程，终态快照由实现侧缓存补投。
type Publisher interface {
	Publish(s *Snapshot) error
	Close() error
}
