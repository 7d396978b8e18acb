package engine

import "github.com/proecheng/dcim-platform-sub000/internal/models"

// RuleState 单条规则针对单点的滞回状态
type RuleState int

const (
	// StateNormal 未越限
	StateNormal RuleState = iota
	// StateFiring 已越限（可能尚在延时窗口内，也可能已开报警）
	StateFiring
)

// EvalResult 单条规则一次评估的结论
type EvalResult struct {
	// Fires 本次采样是否满足触发条件（含滞回判断）
	Fires bool
	// State 评估后的规则状态
	State RuleState
}

// Evaluate 纯函数评估一条阈值规则
//
// 滞回语义：规则处于 Firing 状态时，数值必须越过回差带才算恢复。
// 例如 high @ 28, dead_band=1，需降到 <=27 才恢复；
// low @ 10, dead_band=1，需升到 >=11 才恢复。
// equal 与 change 类型不适用回差。
func Evaluate(rule *models.AlarmThreshold, prevValue, curValue float64, prevState RuleState) EvalResult {
	switch rule.ThresholdType {
	case models.ThresholdHigh, models.ThresholdHighHigh:
		if prevState == StateFiring {
			// 带回差恢复
			if curValue <= rule.ThresholdValue-rule.DeadBand {
				return EvalResult{Fires: false, State: StateNormal}
			}
			return EvalResult{Fires: true, State: StateFiring}
		}
		if curValue > rule.ThresholdValue {
			return EvalResult{Fires: true, State: StateFiring}
		}
		return EvalResult{Fires: false, State: StateNormal}

	case models.ThresholdLow, models.ThresholdLowLow:
		if prevState == StateFiring {
			if curValue >= rule.ThresholdValue+rule.DeadBand {
				return EvalResult{Fires: false, State: StateNormal}
			}
			return EvalResult{Fires: true, State: StateFiring}
		}
		if curValue < rule.ThresholdValue {
			return EvalResult{Fires: true, State: StateFiring}
		}
		return EvalResult{Fires: false, State: StateNormal}

	case models.ThresholdEqual:
		if curValue == rule.ThresholdValue {
			return EvalResult{Fires: true, State: StateFiring}
		}
		return EvalResult{Fires: false, State: StateNormal}

	case models.ThresholdChange:
		// DI变位：前后值不同即触发，单次事件不保持状态
		if prevValue != curValue {
			return EvalResult{Fires: true, State: StateFiring}
		}
		return EvalResult{Fires: false, State: StateNormal}
	}

	return EvalResult{Fires: false, State: StateNormal}
}
