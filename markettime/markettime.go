// Package markettime 提供 A 股交易时段的日历计算。
// 上午 9:30-11:30，下午 13:00-15:00，14:57 起为收盘集合竞价。
package markettime

import "time"

func at(ref time.Time, hour, min int) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), hour, min, 0, 0, ref.Location())
}

// OpeningAuctionBegin 开盘集合竞价开始 9:15。
func OpeningAuctionBegin(ref time.Time) time.Time { return at(ref, 9, 15) }

// Open 连续竞价开始 9:30。
func Open(ref time.Time) time.Time { return at(ref, 9, 30) }

// MorningClose 上午收盘 11:30。
func MorningClose(ref time.Time) time.Time { return at(ref, 11, 30) }

// AfternoonOpen 下午开盘 13:00。
func AfternoonOpen(ref time.Time) time.Time { return at(ref, 13, 0) }

// ClosingAuctionBegin 收盘集合竞价开始 14:57。
func ClosingAuctionBegin(ref time.Time) time.Time { return at(ref, 14, 57) }

// Close 收盘 15:00。
func Close(ref time.Time) time.Time { return at(ref, 15, 0) }

// IsNoonBreak 是否处于午间休市。
func IsNoonBreak(ref time.Time) bool {
	return ref.After(MorningClose(ref)) && ref.Before(AfternoonOpen(ref))
}

// IsContinuousTrading 是否处于连续竞价时段（含上午与下午，不含收盘竞价后）。
func IsContinuousTrading(ref time.Time) bool {
	return !ref.Before(Open(ref)) && !ref.After(ClosingAuctionBegin(ref))
}

// InMarketTime 是否处于交易时段（含集合竞价）。
func InMarketTime(ref time.Time) bool {
	morning := !ref.Before(OpeningAuctionBegin(ref)) && !ref.After(MorningClose(ref))
	afternoon := !ref.Before(AfternoonOpen(ref)) && !ref.After(Close(ref))
	return morning || afternoon
}

// AvailableStart 返回 start 之后最近的可交易时点：
// 开盘前取 9:30，午休取 13:00，其余原样返回。
func AvailableStart(start time.Time) time.Time {
	open := Open(start)
	if start.Before(open) {
		return open
	}
	if !start.Before(MorningClose(start)) && !start.After(AfternoonOpen(start)) {
		return AfternoonOpen(start)
	}
	return start
}

// AddDuration 返回 ref 加 secs 个市场秒后的时点，跨越午休时自动顺延，
// 结果被夹在 [9:30, 15:00] 之内。
func AddDuration(ref time.Time, secs float64) time.Time {
	open := Open(ref)
	close := Close(ref)
	morningClose := MorningClose(ref)
	afternoonOpen := AfternoonOpen(ref)
	breakLen := afternoonOpen.Sub(morningClose)

	d := time.Duration(secs * float64(time.Second))
	end := ref.Add(d)

	switch {
	case !ref.Before(morningClose) && ref.Before(afternoonOpen):
		if secs > 0 {
			end = afternoonOpen.Add(d)
		} else {
			end = morningClose.Add(d)
		}
	case ref.Before(morningClose) && end.After(morningClose):
		end = end.Add(breakLen)
	case ref.After(afternoonOpen) && end.Before(afternoonOpen):
		end = end.Add(-breakLen)
	}

	if end.After(close) {
		end = close
	}
	if end.Before(open) {
		end = open
	}
	return end
}

// Duration 返回 [start,end] 的市场秒数，扣除午休，end 超出收盘按收盘截断。
func Duration(start, end time.Time) float64 {
	if start.After(end) {
		return 0
	}
	open := Open(start)
	close := Close(start)
	morningClose := MorningClose(start)
	afternoonOpen := AfternoonOpen(start)

	if end.After(close) {
		end = close
	}
	d := end.Sub(start)

	if start.Before(open) {
		d -= open.Sub(start)
	}
	switch {
	case end.After(morningClose) && end.Before(afternoonOpen):
		d = morningClose.Sub(start)
	case start.Before(morningClose) && !end.Before(afternoonOpen):
		d -= afternoonOpen.Sub(morningClose)
	case start.After(morningClose) && !start.After(afternoonOpen) && !end.Before(afternoonOpen):
		d = end.Sub(afternoonOpen)
	}
	return d.Seconds()
}

// SinceOpen 返回开盘到 cur 的市场秒数，未开盘为 0。
func SinceOpen(cur time.Time) float64 {
	open := Open(cur)
	if !cur.After(open) {
		return 0
	}
	return Duration(open, cur)
}

// Progress 返回 now 在 [start,end] 区间的市场时间进度，0~1。
func Progress(start, end, now time.Time) float64 {
	total := Duration(start, end)
	if total <= 0 {
		return 0
	}
	p := Duration(start, now) / total
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// SameDate 两个时点是否同一自然日。
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateInt 返回 yyyymmdd 形式的日期整数。
func DateInt(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
