package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(nil)
		SetLevel("info")
	})
	fn()
	return buf.String()
}

func TestInfoBlockWrapsOutput(t *testing.T) {
	out := capture(t, func() {
		InfoBlock("verdict", func() {
			Infof("status=GO")
			Infof("days=3")
		})
	})
	assert.Contains(t, out, "===== verdict =====")
	assert.Contains(t, out, "status=GO")
	assert.Contains(t, out, "days=3")
	assert.Contains(t, out, "===== end verdict =====")
}

func TestInfoBlockEmptyTitle(t *testing.T) {
	out := capture(t, func() {
		InfoBlock("  ", func() { Infof("bare line") })
	})
	assert.Contains(t, out, "bare line")
	assert.NotContains(t, out, "=====")

	// nil fn 什么都不输出
	out = capture(t, func() { InfoBlock("title", nil) })
	assert.Empty(t, out)
}

func TestSetLevelFiltersDebug(t *testing.T) {
	out := capture(t, func() {
		SetLevel("info")
		Debugf("hidden")
		SetLevel("debug")
		Debugf("visible")
	})
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}
