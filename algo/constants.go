package algo

// 调度与对价深度控制参数。
const (
	// defaultCoverRate coverRate 未生效时对价覆盖深度的兜底值
	defaultCoverRate = 0.25

	// maxImpactVolRate 单笔吃单量相对盘口前两档挂量的上限
	maxImpactVolRate = 0.25

	// lowPriceBound 低价股判定阈值，决策参数整体放宽
	lowPriceBound = 6.0

	// sliceQtyBiasRate 切片目标量上下浮动比例
	sliceQtyBiasRate         = 0.05
	sliceQtyBiasRateLowPrice = 0.10

	// 最后一笔清仓单在参与率限制之外的放宽量
	cleanupQtySlack = 200
)
