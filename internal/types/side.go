package types

import "strings"

// Side 表示持仓方向。引擎目前只做多，short 保留给模拟器的反向滑点。
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// NormalizeSide 宽松解析方向字符串，未知输入返回空。
func NormalizeSide(raw string) Side {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "buy":
		return SideLong
	case "short", "sell":
		return SideShort
	default:
		return ""
	}
}
