// Package refdata 提供证券静态信息（手数、最小申报数量、价格档位与涨跌停价）。
package refdata

import "math"

// SecurityInfo 单只证券当日的交易约束。
type SecurityInfo struct {
	Symbol       string
	Name         string
	TradeDate    int // yyyymmdd
	Exchange     string
	MinOrderQty  int     // 最小申报数量（科创板 200，主板 100）
	LotSize      int     // 数量步长
	TickSize     float64 // 价格最小变动单位
	PreClose     float64
	LowLimit     float64
	HighLimit    float64
	IsSuspended  bool
	ListedDate   int
	DelistedDate int
}

// OrderQtyStep 返回 (最小申报数量, 数量步长)，未配置时按交易所惯例推断。
func (s *SecurityInfo) OrderQtyStep() (int, int) {
	if s.MinOrderQty > 0 && s.LotSize > 0 {
		return s.MinOrderQty, s.LotSize
	}
	if len(s.Symbol) >= 2 && s.Symbol[:2] == "68" {
		return 200, 1 // 科创板：最低 200 股，此后逐股递增
	}
	return 100, 100
}

// FloorToLot 将 qty 向下修正为可申报数量；不足最小申报数量返回 0。
func (s *SecurityInfo) FloorToLot(qty int) int {
	minQty, step := s.OrderQtyStep()
	if qty < minQty {
		return 0
	}
	return minQty + (qty-minQty)/step*step
}

// RoundPrice 将价格对齐到价格档位（四舍五入）。
func (s *SecurityInfo) RoundPrice(price float64) float64 {
	if s.TickSize <= 0 {
		return 0
	}
	return math.Round(math.Round(price/s.TickSize)*10000*s.TickSize) / 10000
}

// ClampPrice 将价格夹在当日涨跌停区间内。
func (s *SecurityInfo) ClampPrice(price float64) float64 {
	if s.HighLimit > 0 && price > s.HighLimit {
		price = s.HighLimit
	}
	if s.LowLimit > 0 && price < s.LowLimit {
		price = s.LowLimit
	}
	return price
}

// Provider 按日查询证券静态信息；查不到返回 nil。
type Provider interface {
	GetSecurityInfo(symbol string, dateInt int) *SecurityInfo
}

// StaticProvider 内存实现，回测与单测使用。
type StaticProvider struct {
	Securities map[string]*SecurityInfo
}

func (p *StaticProvider) GetSecurityInfo(symbol string, dateInt int) *SecurityInfo {
	if p == nil {
		return nil
	}
	return p.Securities[symbol]
}
