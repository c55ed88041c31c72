package types

import "errors"

// 引擎内的错误分类。两者都表示"跳过这次候选"，从不致命。
var (
	ErrInvalidRisk = errors.New("invalid risk input")
	ErrInvalidFill = errors.New("invalid fill input")
)
