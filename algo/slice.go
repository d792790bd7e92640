package algo

import "fmt"

// Slicer 一个执行切片：母单在一段时间窗内要推进到的累计目标，
// 以及窗内逐轮挂/吃的余量记账。
type Slicer struct {
	Index  int
	CumQty int     // 本片结束时应达到的累计目标数量
	Bias   float64 // 进度允许的上下浮动比例
	IsLast bool

	Duration       float64 // 市场秒
	DurationRemain float64

	Qty2Make       int
	Qty2Take       int
	Qty2MakeRemain int
	Qty2TakeRemain int

	RoundsRemain int
}

func (s *Slicer) String() string {
	return fmt.Sprintf("slicer[%d]cumQty:%d,bias:%.2f,last:%v,duration:%.1f/%.1f,make:%d/%d,take:%d/%d,rounds:%d",
		s.Index, s.CumQty, s.Bias, s.IsLast, s.DurationRemain, s.Duration,
		s.Qty2MakeRemain, s.Qty2Make, s.Qty2TakeRemain, s.Qty2Take, s.RoundsRemain)
}
