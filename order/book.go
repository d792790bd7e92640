package order

import "sync/atomic"

// Request 一笔报单请求。ID 由调用方用 NextID 预先分配，
// 使调用方能在回报到达前登记子单。
type Request struct {
	ID      uint64
	Account string
	Symbol  string
	Side    Side
	Price   float64
	Qty     int
}

// UpdateHandler 子单回报回调。回调携带的快照归属调用方，可以保留。
type UpdateHandler func(o *Order)

// Book 报单通道抽象：实盘对接柜台网关，回测对接撮合模拟。
// Place 返回通道分配的子单号；回报通过 Subscribe 注册的回调送达，
// 可能乱序、可能重复，由调用方按 NewerThan 去重。
type Book interface {
	Place(req Request) (uint64, error)
	Cancel(id uint64) error
	Subscribe(account string, fn UpdateHandler) uint64
	Unsubscribe(key uint64)
}

var nextOrderID uint64

// NextID 进程内单调递增的子单号。
func NextID() uint64 {
	return atomic.AddUint64(&nextOrderID, 1)
}
