package algo

import (
	"math"
	"time"

	"algo-engine-go/markettime"
	"algo-engine-go/refdata"
)

// defaultVolCurve 沪深市场日内分钟成交量分布经验曲线，240 个交易分钟。
var defaultVolCurve = []float64{
	3.349, 1.906, 1.668, 1.608, 1.388, 1.295, 1.244, 1.114, 1.059, 1.06, 1.149, 1.027, 0.98, 0.918, 0.863, 0.902, 0.839,
	0.814, 0.804, 0.738, 0.864, 0.753, 0.689, 0.667, 0.67, 0.674, 0.624, 0.619, 0.603, 0.579, 0.689, 0.634, 0.586, 0.572,
	0.536, 0.557, 0.534, 0.52, 0.494, 0.514, 0.54, 0.497, 0.474, 0.462, 0.44, 0.47, 0.453, 0.434, 0.446, 0.445, 0.471, 0.433,
	0.404, 0.405, 0.407, 0.403, 0.382, 0.371, 0.381, 0.408, 0.464, 0.445, 0.393, 0.369, 0.377, 0.352, 0.371, 0.361, 0.361,
	0.349, 0.355, 0.352, 0.347, 0.311, 0.312, 0.325, 0.314, 0.316, 0.3, 0.307, 0.342, 0.324, 0.286, 0.292, 0.273, 0.273, 0.263,
	0.275, 0.275, 0.264, 0.311, 0.291, 0.295, 0.294, 0.272, 0.271, 0.262, 0.246, 0.244, 0.245, 0.264, 0.247, 0.257, 0.253, 0.26,
	0.273, 0.247, 0.249, 0.246, 0.232, 0.26, 0.252, 0.234, 0.226, 0.24, 0.225, 0.214, 0.22, 0.22, 0.282, 0.898, 0.301, 0.256, 0.259,
	0.28, 0.289, 0.302, 0.314, 0.302, 0.276, 0.299, 0.292, 0.265, 0.266, 0.264, 0.274, 0.276, 0.255, 0.259, 0.276, 0.273, 0.268,
	0.267, 0.28, 0.261, 0.287, 0.282, 0.265, 0.273, 0.274, 0.316, 0.27, 0.286, 0.257, 0.256, 0.265, 0.243, 0.237, 0.234, 0.228,
	0.242, 0.249, 0.246, 0.25, 0.241, 0.243, 0.251, 0.238, 0.25, 0.248, 0.239, 0.233, 0.223, 0.232, 0.238, 0.236, 0.229, 0.23,
	0.239, 0.241, 0.272, 0.292, 0.249, 0.247, 0.244, 0.26, 0.272, 0.255, 0.264, 0.241, 0.243, 0.243, 0.233, 0.246, 0.261, 0.267,
	0.262, 0.262, 0.261, 0.261, 0.274, 0.257, 0.244, 0.255, 0.266, 0.279, 0.274, 0.273, 0.282, 0.294, 0.365, 0.334, 0.313, 0.303,
	0.311, 0.308, 0.302, 0.32, 0.33, 0.323, 0.342, 0.346, 0.349, 0.349, 0.358, 0.441, 0.381, 0.41, 0.415, 0.426,
	0.532, 0.476, 0.53, 0.585, 0.567, 0.651, 0.714, 0.038, 0.0, 1.314,
}

// TWAPCumulativeQty 等权分配：返回每片的累计目标数量（单调不减，末项为 target）。
func TWAPCumulativeQty(target, numSlices int, sec *refdata.SecurityInfo) []int {
	if numSlices <= 1 {
		return []int{target}
	}
	cum := make([]int, numSlices)
	for i := 1; i <= numSlices; i++ {
		w := float64(i) / float64(numSlices)
		cum[i-1] = int(w * float64(target))
	}
	fixLastSliceQty(cum, target, sec)
	return cum
}

// VWAPCumulativeQty 按分钟成交量曲线在 [start, end) 区间内分配累计目标数量。
// volCurve 必须是 240 个分钟权重，否则使用默认经验曲线。
func VWAPCumulativeQty(target, numSlices int, sec *refdata.SecurityInfo,
	start, end time.Time, volCurve []float64) []int {

	if numSlices <= 1 {
		return []int{target}
	}
	curve := defaultVolCurve
	if len(volCurve) == len(defaultVolCurve) {
		curve = volCurve
	}

	startIdx := int(markettime.SinceOpen(start) / 60)
	endIdx := int(math.Ceil(markettime.SinceOpen(end) / 60))
	if startIdx < 0 {
		startIdx = 0
	}
	if endIdx > len(curve) {
		endIdx = len(curve)
	}
	if endIdx-startIdx < 2 {
		// 区间过短，曲线无差异，退化为等权
		return TWAPCumulativeQty(target, numSlices, sec)
	}
	sample := curve[startIdx:endIdx]

	var sum float64
	for _, v := range sample {
		sum += v
	}
	weights := make([]float64, len(sample))
	var acc float64
	for i, v := range sample {
		acc += v
		weights[i] = acc / sum
	}

	// 在累计权重曲线上等距取 numSlices 个点做线性插值
	step := float64(len(weights)-1) / float64(numSlices-1)
	cum := make([]int, numSlices)
	for i := 0; i < numSlices; i++ {
		x := float64(i) * step
		lo := int(math.Floor(x))
		hi := int(math.Ceil(x))
		w := weights[lo]
		if lo != hi {
			t := x - float64(lo)
			w = (1-t)*weights[lo] + t*weights[hi]
		}
		cum[i] = int(w * float64(target))
	}
	fixLastSliceQty(cum, target, sec)
	return cum
}

// fixLastSliceQty 末片增量不足最小申报数量时，把倒数第二片的累计量
// 前移至 target-minQty，并向前做一次单调性修正。
func fixLastSliceQty(cum []int, target int, sec *refdata.SecurityInfo) {
	n := len(cum)
	if n < 2 {
		return
	}
	minQty, _ := sec.OrderQtyStep()
	if cum[n-1]-cum[n-2] >= minQty {
		return
	}
	cum[n-2] = target - minQty
	for j := n - 3; j >= 0; j-- {
		if cum[j] > cum[n-2] {
			cum[j] = cum[n-2]
			break
		}
	}
}
