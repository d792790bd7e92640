// Package order 定义子单模型、状态机与报单通道抽象。
package order

import "time"

// Side 买卖方向。
type Side int

const (
	SideUnknown Side = 0
	SideBuy     Side = 1
	SideSell    Side = 2
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Valid 报单方向是否合法。
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Status 子单状态。
type Status string

const (
	StatusReporting       Status = "REPORTING" // 已发往柜台，尚未回报
	StatusNew             Status = "NEW"
	StatusPartial         Status = "PARTIAL"
	StatusFilled          Status = "FILLED"
	StatusCanceling       Status = "CANCELING"
	StatusCanceled        Status = "CANCELED"
	StatusPartialCanceled Status = "PARTIAL_CANCELED"
	StatusRejected        Status = "REJECTED"
)

// IsFinal 是否终态。
func (s Status) IsFinal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusPartialCanceled, StatusRejected:
		return true
	default:
		return false
	}
}

// CanCancel 当前状态下能否发起撤单。
func (s Status) CanCancel() bool {
	switch s {
	case StatusReporting, StatusNew, StatusPartial:
		return true
	default:
		return false
	}
}

// Order 子单回报快照，字段为柜台口径的最新累计值。
type Order struct {
	ID        uint64
	Account   string
	Symbol    string
	Side      Side
	Price     float64
	Qty       int
	CumQty    int // 累计成交数量
	CumAmount float64
	Status    Status

	CreateTime time.Time
	UpdateTime time.Time
}

// LeavesQty 剩余未成交数量。
func (o *Order) LeavesQty() int {
	if o.Status.IsFinal() {
		return 0
	}
	return o.Qty - o.CumQty
}

// NewerThan 判断本快照是否比 prev 携带新信息。回报可能乱序、重复到达，
// 聚合器只接受更新的快照。
func (o *Order) NewerThan(prev *Order) bool {
	if prev == nil {
		return true
	}
	if prev.Status.IsFinal() {
		return false
	}
	if o.Status.IsFinal() {
		return true
	}
	if o.CumQty > prev.CumQty {
		return true
	}
	return prev.Status == StatusReporting && o.Status != StatusReporting
}
