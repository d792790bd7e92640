package markettime

import (
	"testing"
	"time"
)

func day(hour, min, sec int) time.Time {
	return time.Date(2025, 3, 14, hour, min, sec, 0, time.Local)
}

func TestAvailableStart(t *testing.T) {
	if got := AvailableStart(day(9, 0, 0)); !got.Equal(day(9, 30, 0)) {
		t.Fatalf("before open: %v", got)
	}
	if got := AvailableStart(day(12, 0, 0)); !got.Equal(day(13, 0, 0)) {
		t.Fatalf("noon break: %v", got)
	}
	if got := AvailableStart(day(10, 15, 0)); !got.Equal(day(10, 15, 0)) {
		t.Fatalf("in session should be unchanged: %v", got)
	}
}

func TestAddDurationSkipsNoonBreak(t *testing.T) {
	// 11:29:00 + 120s 跨午休，应落在 13:01:00
	got := AddDuration(day(11, 29, 0), 120)
	if !got.Equal(day(13, 1, 0)) {
		t.Fatalf("expected 13:01:00, got %v", got)
	}
	// 不跨午休
	got = AddDuration(day(10, 0, 0), 60)
	if !got.Equal(day(10, 1, 0)) {
		t.Fatalf("expected 10:01:00, got %v", got)
	}
	// 夹到收盘
	got = AddDuration(day(14, 59, 0), 600)
	if !got.Equal(day(15, 0, 0)) {
		t.Fatalf("expected clamp to close, got %v", got)
	}
}

func TestDuration(t *testing.T) {
	// 跨午休的市场时长扣除 90 分钟
	if d := Duration(day(11, 0, 0), day(13, 30, 0)); d != 3600 {
		t.Fatalf("expected 3600s, got %v", d)
	}
	// end 落在午休内按 11:30 截断
	if d := Duration(day(11, 0, 0), day(12, 0, 0)); d != 1800 {
		t.Fatalf("expected 1800s, got %v", d)
	}
	if d := Duration(day(14, 0, 0), day(13, 0, 0)); d != 0 {
		t.Fatalf("reversed range should be 0, got %v", d)
	}
}

func TestProgress(t *testing.T) {
	start, end := day(10, 0, 0), day(10, 10, 0)
	if p := Progress(start, end, day(10, 5, 0)); p != 0.5 {
		t.Fatalf("expected 0.5, got %v", p)
	}
	if p := Progress(start, end, day(11, 0, 0)); p != 1 {
		t.Fatalf("expected clamp to 1, got %v", p)
	}
	if p := Progress(start, end, day(9, 0, 0)); p != 0 {
		t.Fatalf("expected clamp to 0, got %v", p)
	}
}

func TestSinceOpen(t *testing.T) {
	if s := SinceOpen(day(9, 0, 0)); s != 0 {
		t.Fatalf("before open should be 0, got %v", s)
	}
	if s := SinceOpen(day(9, 31, 0)); s != 60 {
		t.Fatalf("expected 60, got %v", s)
	}
}
