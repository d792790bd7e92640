package market

import "testing"

func sampleDepth() *Depth {
	return &Depth{
		Symbol: "600000.SH",
		Price:  10.02,
		Bids:   [5]Level{{10.01, 500}, {10.00, 800}, {9.99, 300}},
		Asks:   [5]Level{{10.02, 400}, {10.03, 600}},
	}
}

func TestMidPrice(t *testing.T) {
	d := sampleDepth()
	if got := d.MidPrice(); got != 10.015 {
		t.Fatalf("mid price %v", got)
	}

	// 单边缺失退化为另一边
	oneSided := &Depth{Bids: [5]Level{{10.01, 500}}}
	if got := oneSided.MidPrice(); got != 10.01 {
		t.Fatalf("one sided mid %v", got)
	}
}

func TestQuotesSkipEmptyLevels(t *testing.T) {
	d := sampleDepth()
	if got := len(d.AskQuotes()); got != 2 {
		t.Fatalf("ask levels %d", got)
	}
	if got := len(d.BidQuotes()); got != 3 {
		t.Fatalf("bid levels %d", got)
	}
}

func TestVolumeAt(t *testing.T) {
	d := sampleDepth()
	if got := d.VolumeAt(10.00); got != 800 {
		t.Fatalf("got %d", got)
	}
	if got := d.VolumeAt(10.03); got != 600 {
		t.Fatalf("got %d", got)
	}
	if got := d.VolumeAt(11); got != 0 {
		t.Fatalf("missing level should be 0, got %d", got)
	}
}
