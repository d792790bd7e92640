// Package algo 实现母单的切片调度与执行：TWAP/VWAP/POV 曲线分配、
// 逐轮挂撤决策、执行绩效聚合与双时钟（实盘/回放）驱动。
package algo

// Status 母单生命周期状态。
type Status string

const (
	StatusCreating   Status = "CREATING"
	StatusRunning    Status = "RUNNING"
	StatusCanceling  Status = "CANCELING"
	StatusFinished   Status = "FINISHED"   // 目标数量全部成交
	StatusExpired    Status = "EXPIRED"    // 到期未完成
	StatusTerminated Status = "TERMINATED" // 用户撤销
	StatusError      Status = "ERROR"
)

// IsFinal 是否终态。
func (s Status) IsFinal() bool {
	switch s {
	case StatusFinished, StatusExpired, StatusTerminated, StatusError:
		return true
	default:
		return false
	}
}

// IsRunning 是否仍在执行（含撤销过渡态）。
func (s Status) IsRunning() bool {
	return s == StatusRunning || s == StatusCanceling
}
