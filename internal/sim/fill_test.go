package sim

import (
	"errors"
	"testing"

	"vela/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillDirectional(t *testing.T) {
	buy, err := Fill(100, types.SideLong, 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 100.05, buy, 1e-9)

	sell, err := Fill(100, types.SideShort, 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 99.95, sell, 1e-9)

	// 零滑点原样返回
	flat, err := Fill(123.45, types.SideLong, 0)
	require.NoError(t, err)
	assert.InDelta(t, 123.45, flat, 1e-9)
}

func TestFillInvalid(t *testing.T) {
	_, err := Fill(0, types.SideLong, 0.05)
	assert.True(t, errors.Is(err, types.ErrInvalidFill))

	_, err = Fill(-10, types.SideShort, 0.05)
	assert.True(t, errors.Is(err, types.ErrInvalidFill))

	_, err = Fill(100, types.SideLong, -0.01)
	assert.True(t, errors.Is(err, types.ErrInvalidFill))

	_, err = Fill(100, "", 0.01)
	assert.True(t, errors.Is(err, types.ErrInvalidFill))
}
