package market

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tickHeader = "time,price,preClose,volume,amount," +
	"bp1,bv1,bp2,bv2,bp3,bv3,bp4,bv4,bp5,bv5," +
	"ap1,av1,ap2,av2,ap3,av3,ap4,av4,ap5,av5\n"

func tickRow(clock string, price float64, volume int64) string {
	return fmt.Sprintf("%s,%.2f,10.00,%d,%.0f,"+
		"10.01,100,10.00,200,9.99,300,9.98,400,9.97,500,"+
		"10.02,100,10.03,200,10.04,300,10.05,400,10.06,500\n",
		clock, price, volume, float64(volume)*price)
}

func writeTickFile(t *testing.T, dir, date, symbol, content string) {
	t.Helper()
	dayDir := filepath.Join(dir, date)
	require.NoError(t, os.MkdirAll(dayDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dayDir, symbol+".csv"), []byte(content), 0644))
}

func TestCSVTickLoaderLoadsWindow(t *testing.T) {
	dir := t.TempDir()
	content := tickHeader +
		tickRow("09:59:58", 10.00, 100000) +
		tickRow("10:00:00", 10.01, 101000) +
		tickRow("10:00:03", 10.02, 102000) +
		tickRow("10:30:00", 10.05, 150000)
	writeTickFile(t, dir, "20250314", "600000.SH", content)

	loader := &CSVTickLoader{Dir: dir}
	from := time.Date(2025, 3, 14, 10, 0, 0, 0, time.Local)
	to := time.Date(2025, 3, 14, 10, 1, 0, 0, time.Local)
	ticks, err := loader.Load("600000.SH", from, to)
	require.NoError(t, err)

	require.Len(t, ticks, 2, "窗口外的行情被过滤")
	assert.Equal(t, 10.01, ticks[0].Price)
	assert.Equal(t, int64(102000), ticks[1].Volume)
	assert.Equal(t, 10.01, ticks[0].BidPrice1())
	assert.Equal(t, 10.02, ticks[0].AskPrice1())
}

func TestCSVTickLoaderSkipsBadRows(t *testing.T) {
	dir := t.TempDir()
	content := tickHeader +
		tickRow("10:00:00", 10.01, 101000) +
		"garbage,row,with,not,enough,columns\n" +
		tickRow("10:00:03", 10.02, 102000)
	writeTickFile(t, dir, "20250314", "600000.SH", content)

	loader := &CSVTickLoader{Dir: dir}
	from := time.Date(2025, 3, 14, 9, 30, 0, 0, time.Local)
	to := time.Date(2025, 3, 14, 15, 0, 0, 0, time.Local)
	ticks, err := loader.Load("600000.SH", from, to)
	require.NoError(t, err)
	assert.Len(t, ticks, 2)
}

func TestCSVTickLoaderNoData(t *testing.T) {
	loader := &CSVTickLoader{Dir: t.TempDir()}
	from := time.Date(2025, 3, 14, 9, 30, 0, 0, time.Local)
	_, err := loader.Load("600000.SH", from, from.Add(time.Hour))
	assert.Error(t, err)
}
