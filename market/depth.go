package market

import "time"

// Level 一个价位档。
type Level struct {
	Price  float64
	Volume int
}

// Depth 五档行情快照，按值传递，回调方不得修改。
type Depth struct {
	Symbol    string
	QuoteTime time.Time

	Price    float64 // 最新成交价
	PreClose float64
	Open     float64
	High     float64
	Low      float64

	Volume int64   // 当日累计成交量
	Amount float64 // 当日累计成交额

	Bids [5]Level // 买盘，降序
	Asks [5]Level // 卖盘，升序
}

// BidPrice1 返回买一价，空档为 0。
func (d *Depth) BidPrice1() float64 { return d.Bids[0].Price }

// AskPrice1 返回卖一价，空档为 0。
func (d *Depth) AskPrice1() float64 { return d.Asks[0].Price }

// MidPrice 返回买卖中间价；单边缺失时退化为另一边。
func (d *Depth) MidPrice() float64 {
	bid, ask := d.BidPrice1(), d.AskPrice1()
	if bid > 0 && ask > 0 {
		return (bid + ask) / 2
	}
	if ask > bid {
		return ask
	}
	return bid
}

// AskQuotes 返回卖盘有效档位（升序）。
func (d *Depth) AskQuotes() []Level { return validLevels(d.Asks) }

// BidQuotes 返回买盘有效档位（降序）。
func (d *Depth) BidQuotes() []Level { return validLevels(d.Bids) }

func validLevels(levels [5]Level) []Level {
	out := make([]Level, 0, len(levels))
	for _, l := range levels {
		if l.Price > 0 {
			out = append(out, l)
		}
	}
	return out
}

// VolumeAt 返回指定价位上的盘口挂量（两侧都查），无此价位为 0。
func (d *Depth) VolumeAt(price float64) int {
	for _, l := range d.Bids {
		if l.Price == price {
			return l.Volume
		}
	}
	for _, l := range d.Asks {
		if l.Price == price {
			return l.Volume
		}
	}
	return 0
}
