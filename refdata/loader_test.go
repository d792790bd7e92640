package refdata

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRefdata(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "securities.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeRefdata(t, `
- symbol: 600000.SH
  name: 浦发银行
  exchange: SSE
  minOrderQty: 100
  lotSize: 100
  tickSize: 0.01
  preClose: 10.0
  lowLimit: 9.0
  highLimit: 11.0
- symbol: 688001.SH
  exchange: SSE
  tickSize: 0.01
  preClose: 50.0
  isSuspended: true
`)
	p, err := LoadYAML(path)
	if err != nil {
		t.Fatal(err)
	}

	sec := p.GetSecurityInfo("600000.SH", 20250314)
	if sec == nil || sec.Name != "浦发银行" || sec.HighLimit != 11.0 {
		t.Fatalf("unexpected security: %+v", sec)
	}

	star := p.GetSecurityInfo("688001.SH", 20250314)
	if star == nil || !star.IsSuspended {
		t.Fatalf("unexpected security: %+v", star)
	}
	if minQty, step := star.OrderQtyStep(); minQty != 200 || step != 1 {
		t.Fatalf("star market qty step = (%d,%d), want (200,1)", minQty, step)
	}

	if p.GetSecurityInfo("000001.SZ", 20250314) != nil {
		t.Fatal("unknown symbol should return nil")
	}
}

func TestLoadYAMLRejectsBadEntries(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"空表", "[]"},
		{"缺 symbol", "- tickSize: 0.01"},
		{"非法 tickSize", "- symbol: 600000.SH\n  tickSize: 0"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := LoadYAML(writeRefdata(t, c.content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
