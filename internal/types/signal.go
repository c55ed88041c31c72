package types

// SignalAction 是策略对单根 K 线的建议。
type SignalAction string

const (
	ActionHold  SignalAction = "hold"
	ActionEnter SignalAction = "enter"
	ActionExit  SignalAction = "exit"
)

// Signal 携带一次候选入场的全部意图：方向、参考价位、持仓上限与单笔风险预算。
// 由策略或外部信号源创建，入场或拒绝后即丢弃。
type Signal struct {
	Action         SignalAction `json:"action"`
	Side           Side         `json:"side"`
	Entry          float64      `json:"entry"`
	Stop           float64      `json:"stop"`
	TakeProfit     float64      `json:"take_profit,omitempty"`
	MaxHoldMinutes int          `json:"max_hold_minutes,omitempty"`
	PlannedRisk    float64      `json:"planned_risk,omitempty"`
}

// Hold 返回保持不动的信号。
func Hold() Signal { return Signal{Action: ActionHold} }

// GuardDecision 是准入管线的裁决：通过与否加一个机器可读的原因码。
// 不存在部分通过。
type GuardDecision struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Approve 通过。
func Approve() GuardDecision { return GuardDecision{OK: true} }

// Reject 拒绝并附原因码。
func Reject(reason string) GuardDecision { return GuardDecision{OK: false, Reason: reason} }
