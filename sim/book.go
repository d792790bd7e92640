// Package sim 提供回测用的撮合模拟：实现 order.Book，
// 以五档行情为对手盘撮合子单。
package sim

import (
	"fmt"
	"sync"
	"time"

	"algo-engine-go/market"
	"algo-engine-go/order"
)

// Book 行情驱动的撮合模拟。
// 撮合规则（简化口径）：
//   - 对价可成交的部分立即按盘口逐档吃掉；
//   - 余量挂入簿内，后续行情的最新价穿过挂单价即视为全部成交；
//   - 撤单对未成交余量立即生效。
type Book struct {
	mu       sync.Mutex
	resting  map[uint64]*order.Order
	subs     map[uint64]order.UpdateHandler
	nextSub  uint64
	lastSeen map[string]*market.Depth
	sm       *order.StateMachine

	now func() time.Time
}

func NewBook() *Book {
	return &Book{
		resting:  make(map[uint64]*order.Order),
		subs:     make(map[uint64]order.UpdateHandler),
		lastSeen: make(map[string]*market.Depth),
		sm:       order.NewStateMachine(),
		now:      time.Now,
	}
}

// setStatus 按状态机推进子单状态，非法转换不生效。
func (b *Book) setStatus(o *order.Order, to order.Status) bool {
	if err := b.sm.ValidateTransition(o.Status, to); err != nil {
		return false
	}
	o.Status = to
	return true
}

// SetClock 注入时间源，回测内用行情时间。
func (b *Book) SetClock(now func() time.Time) { b.now = now }

func (b *Book) Subscribe(account string, fn order.UpdateHandler) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSub++
	b.subs[b.nextSub] = fn
	return b.nextSub
}

func (b *Book) Unsubscribe(key uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, key)
}

func (b *Book) Place(req order.Request) (uint64, error) {
	if !req.Side.Valid() {
		return 0, fmt.Errorf("invalid side %v", req.Side)
	}
	if req.Qty <= 0 || req.Price <= 0 {
		return 0, fmt.Errorf("invalid order %s qty=%d price=%v", req.Symbol, req.Qty, req.Price)
	}

	id := req.ID
	if id == 0 {
		id = order.NextID()
	}
	now := b.now()
	o := &order.Order{
		ID:         id,
		Account:    req.Account,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Price:      req.Price,
		Qty:        req.Qty,
		Status:     order.StatusReporting,
		CreateTime: now,
		UpdateTime: now,
	}

	b.mu.Lock()
	if d := b.lastSeen[req.Symbol]; d != nil {
		b.matchAggressive(o, d)
	}
	if o.Status == order.StatusReporting {
		b.setStatus(o, order.StatusNew)
	}
	if !o.Status.IsFinal() {
		b.resting[id] = o
	}
	snap := *o
	b.mu.Unlock()

	b.publish(&snap)
	return id, nil
}

func (b *Book) Cancel(id uint64) error {
	b.mu.Lock()
	o, ok := b.resting[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("order %d not found or already final", id)
	}
	to := order.StatusCanceled
	if o.CumQty > 0 {
		to = order.StatusPartialCanceled
	}
	if !b.setStatus(o, to) {
		b.mu.Unlock()
		return fmt.Errorf("order %d cannot be canceled from %s", id, o.Status)
	}
	delete(b.resting, id)
	o.UpdateTime = b.now()
	snap := *o
	b.mu.Unlock()

	b.publish(&snap)
	return nil
}

// OnDepth 输入一笔行情，驱动挂单撮合。
func (b *Book) OnDepth(d *market.Depth) {
	b.mu.Lock()
	cp := *d
	b.lastSeen[d.Symbol] = &cp

	var fills []*order.Order
	for id, o := range b.resting {
		if o.Symbol != d.Symbol {
			continue
		}
		if !crossed(o, d.Price) {
			continue
		}
		if !b.setStatus(o, order.StatusFilled) {
			continue
		}
		o.CumAmount += float64(o.Qty-o.CumQty) * o.Price
		o.CumQty = o.Qty
		o.UpdateTime = d.QuoteTime
		delete(b.resting, id)
		snap := *o
		fills = append(fills, &snap)
	}
	b.mu.Unlock()

	for _, f := range fills {
		b.publish(f)
	}
}

// matchAggressive 挂单价对上盘口的部分逐档成交。
func (b *Book) matchAggressive(o *order.Order, d *market.Depth) {
	var levels []market.Level
	if o.Side == order.SideBuy {
		levels = d.AskQuotes()
	} else {
		levels = d.BidQuotes()
	}
	remain := o.Qty
	for _, l := range levels {
		if o.Side == order.SideBuy && l.Price > o.Price {
			break
		}
		if o.Side == order.SideSell && l.Price < o.Price {
			break
		}
		take := l.Volume
		if take > remain {
			take = remain
		}
		o.CumQty += take
		o.CumAmount += float64(take) * l.Price
		remain -= take
		if remain == 0 {
			break
		}
	}
	switch {
	case remain == 0:
		b.setStatus(o, order.StatusFilled)
	case o.CumQty > 0:
		b.setStatus(o, order.StatusPartial)
	}
}

// crossed 最新价是否穿过挂单价。
func crossed(o *order.Order, last float64) bool {
	if last <= 0 {
		return false
	}
	if o.Side == order.SideBuy {
		return last < o.Price
	}
	return last > o.Price
}

func (b *Book) publish(o *order.Order) {
	b.mu.Lock()
	handlers := make([]order.UpdateHandler, 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()
	for _, fn := range handlers {
		snap := *o
		fn(&snap)
	}
}
