package refdata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type securityYAML struct {
	Symbol      string  `yaml:"symbol"`
	Name        string  `yaml:"name"`
	Exchange    string  `yaml:"exchange"`
	MinOrderQty int     `yaml:"minOrderQty"`
	LotSize     int     `yaml:"lotSize"`
	TickSize    float64 `yaml:"tickSize"`
	PreClose    float64 `yaml:"preClose"`
	LowLimit    float64 `yaml:"lowLimit"`
	HighLimit   float64 `yaml:"highLimit"`
	IsSuspended bool    `yaml:"isSuspended"`
}

// LoadYAML 从 YAML 文件加载证券静态信息表。
func LoadYAML(path string) (*StaticProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read refdata: %w", err)
	}
	var entries []securityYAML
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse refdata yaml: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("refdata %s is empty", path)
	}

	securities := make(map[string]*SecurityInfo, len(entries))
	for _, e := range entries {
		if e.Symbol == "" {
			return nil, fmt.Errorf("refdata entry without symbol")
		}
		if e.TickSize <= 0 {
			return nil, fmt.Errorf("%s: tickSize must be > 0", e.Symbol)
		}
		securities[e.Symbol] = &SecurityInfo{
			Symbol:      e.Symbol,
			Name:        e.Name,
			Exchange:    e.Exchange,
			MinOrderQty: e.MinOrderQty,
			LotSize:     e.LotSize,
			TickSize:    e.TickSize,
			PreClose:    e.PreClose,
			LowLimit:    e.LowLimit,
			HighLimit:   e.HighLimit,
			IsSuspended: e.IsSuspended,
		}
	}
	return &StaticProvider{Securities: securities}, nil
}
