// Package strategy 定义信号源接口与内置的策略变体。
// 变体集合是封闭的：新增策略必须在 ForName 里登记，不存在运行期字符串散表。
package strategy

import (
	"fmt"
	"strings"

	"vela/internal/config"
	"vela/internal/types"
)

// Strategy 在给定 K 线上下文上产出 enter/exit/hold 信号。
// 实现必须无副作用，且对任意 index（含 0）都可安全调用。
type Strategy interface {
	Name() string
	OnBar(index int, bars []types.Bar, hasOpen bool, policy *config.Policy) types.Signal
}

// ForName 返回指定名字的策略实现。
func ForName(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "vwap_pullback_long", "":
		return &VwapPullbackLong{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// Names 返回全部已登记的策略名。
func Names() []string {
	return []string{"vwap_pullback_long"}
}
