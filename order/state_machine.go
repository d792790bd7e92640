package order

import (
	"fmt"
	"sync"
)

// StateTransition 状态转换
type StateTransition struct {
	From Status
	To   Status
}

// StateMachine 子单状态机，校验回报序列的合法性。
type StateMachine struct {
	transitions map[StateTransition]bool
	mu          sync.RWMutex
}

func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[StateTransition]bool),
	}
	sm.initializeTransitions()
	return sm
}

// initializeTransitions 初始化所有合法的状态转换
func (sm *StateMachine) initializeTransitions() {
	legalTransitions := []StateTransition{
		// 报单已发出，等柜台确认或拒绝
		{StatusReporting, StatusNew},
		{StatusReporting, StatusPartial},
		{StatusReporting, StatusFilled},
		{StatusReporting, StatusRejected},
		{StatusReporting, StatusCanceling},

		{StatusNew, StatusPartial},
		{StatusNew, StatusFilled},
		{StatusNew, StatusCanceling},
		{StatusNew, StatusCanceled},
		{StatusNew, StatusRejected},

		// 多次部分成交
		{StatusPartial, StatusPartial},
		{StatusPartial, StatusFilled},
		{StatusPartial, StatusCanceling},
		{StatusPartial, StatusPartialCanceled},

		// 撤单途中仍可能成交
		{StatusCanceling, StatusCanceled},
		{StatusCanceling, StatusPartialCanceled},
		{StatusCanceling, StatusPartial},
		{StatusCanceling, StatusFilled},
	}

	for _, t := range legalTransitions {
		sm.transitions[t] = true
	}
}

// ValidateTransition 验证状态转换是否合法
func (sm *StateMachine) ValidateTransition(from, to Status) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	// 相同状态允许（重复回报幂等）
	if from == to {
		return nil
	}

	transition := StateTransition{From: from, To: to}
	if !sm.transitions[transition] {
		return fmt.Errorf("illegal state transition: %s -> %s", from, to)
	}
	return nil
}

// AllowedTransitions 返回当前状态所有合法的目标状态
func (sm *StateMachine) AllowedTransitions(current Status) []Status {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	allowed := make([]Status, 0)
	for transition := range sm.transitions {
		if transition.From == current {
			allowed = append(allowed, transition.To)
		}
	}
	return allowed
}
