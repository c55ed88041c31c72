// Package sim 是模拟成交的唯一入口：所有不利滑点都在这里注入，
// 调用方不得在别处再叠加滑点。
package sim

import (
	"fmt"

	"vela/internal/types"

	"github.com/shopspring/decimal"
)

var decHundred = decimal.NewFromInt(100)

// Fill 对参考价施加方向性滑点后返回成交价。
// slipPct 以百分数表示（0.05 即万分之五）；买单向上吃价，卖单向下吃价。
func Fill(referencePrice float64, side types.Side, slipPct float64) (float64, error) {
	if referencePrice <= 0 {
		return 0, fmt.Errorf("%w: reference price %.4f", types.ErrInvalidFill, referencePrice)
	}
	if slipPct < 0 {
		return 0, fmt.Errorf("%w: slippage %.4f%%", types.ErrInvalidFill, slipPct)
	}
	ref := decimal.NewFromFloat(referencePrice)
	slip := decimal.NewFromFloat(slipPct).Div(decHundred)
	var factor decimal.Decimal
	switch side {
	case types.SideShort:
		factor = decimal.NewFromInt(1).Sub(slip)
	case types.SideLong:
		factor = decimal.NewFromInt(1).Add(slip)
	default:
		return 0, fmt.Errorf("%w: unknown side %q", types.ErrInvalidFill, side)
	}
	price, _ := ref.Mul(factor).Float64()
	return price, nil
}

// FillBuy 和 FillSell 是两个语义化封装，买入开仓、卖出平仓各用一个。
func FillBuy(referencePrice, slipPct float64) (float64, error) {
	return Fill(referencePrice, types.SideLong, slipPct)
}

func FillSell(referencePrice, slipPct float64) (float64, error) {
	return Fill(referencePrice, types.SideShort, slipPct)
}
