package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// CSVTickLoader 从目录加载历史五档行情，目录布局 <dir>/<YYYYMMDD>/<symbol>.csv。
// 列：time,price,preClose,volume,amount，随后十档买卖价量
// bp1,bv1..bp5,bv5,ap1,av1..ap5,av5，首行表头。
type CSVTickLoader struct {
	Dir string
	Log *zap.Logger
}

const csvTickColumns = 25

// Load 读取 [from,to] 内指定标的的行情，按时间排序。
func (l *CSVTickLoader) Load(symbol string, from, to time.Time) ([]Depth, error) {
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}

	var ticks []Depth
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		path := filepath.Join(l.Dir, date.Format("20060102"), symbol+".csv")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			log.Warn("行情文件不存在", zap.String("path", path))
			continue
		}
		dayTicks, err := l.loadFile(path, symbol, date, from, to)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		ticks = append(ticks, dayTicks...)
	}
	if len(ticks) == 0 {
		return nil, fmt.Errorf("no ticks for %s in [%v,%v]", symbol, from, to)
	}

	sort.Slice(ticks, func(i, j int) bool {
		return ticks[i].QuoteTime.Before(ticks[j].QuoteTime)
	})
	log.Info("历史行情加载完成", zap.String("symbol", symbol), zap.Int("ticks", len(ticks)))
	return ticks, nil
}

func (l *CSVTickLoader) loadFile(path, symbol string, date, from, to time.Time) ([]Depth, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < csvTickColumns {
		return nil, fmt.Errorf("expected %d columns, got %d", csvTickColumns, len(header))
	}

	var ticks []Depth
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		d, err := parseTickRecord(record, symbol, date)
		if err != nil {
			// 跳过坏行
			continue
		}
		if d.QuoteTime.Before(from) || d.QuoteTime.After(to) {
			continue
		}
		ticks = append(ticks, *d)
	}
	return ticks, nil
}

func parseTickRecord(record []string, symbol string, date time.Time) (*Depth, error) {
	if len(record) < csvTickColumns {
		return nil, fmt.Errorf("expected %d fields, got %d", csvTickColumns, len(record))
	}
	clock, err := time.ParseInLocation("15:04:05", record[0], time.Local)
	if err != nil {
		return nil, err
	}
	quoteTime := time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, time.Local)

	price, err := strconv.ParseFloat(record[1], 64)
	if err != nil {
		return nil, err
	}
	preClose, err := strconv.ParseFloat(record[2], 64)
	if err != nil {
		return nil, err
	}
	volume, err := strconv.ParseInt(record[3], 10, 64)
	if err != nil {
		return nil, err
	}
	amount, err := strconv.ParseFloat(record[4], 64)
	if err != nil {
		return nil, err
	}

	d := &Depth{
		Symbol:    symbol,
		QuoteTime: quoteTime,
		Price:     price,
		PreClose:  preClose,
		Volume:    volume,
		Amount:    amount,
	}
	for i := 0; i < 5; i++ {
		px, err := strconv.ParseFloat(record[5+i*2], 64)
		if err != nil {
			return nil, err
		}
		vol, err := strconv.Atoi(record[6+i*2])
		if err != nil {
			return nil, err
		}
		d.Bids[i] = Level{Price: px, Volume: vol}
	}
	for i := 0; i < 5; i++ {
		px, err := strconv.ParseFloat(record[15+i*2], 64)
		if err != nil {
			return nil, err
		}
		vol, err := strconv.Atoi(record[16+i*2])
		if err != nil {
			return nil, err
		}
		d.Asks[i] = Level{Price: px, Volume: vol}
	}
	return d, nil
}
