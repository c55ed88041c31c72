package config

import (
	"fmt"
	"strings"
	"sync"

	"vela/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ChangeListener 在策略文件热更新并通过校验后触发。
type ChangeListener func(*Policy)

// Watcher 监听单个策略文件的变更，供实盘进程在不重启的情况下换参。
// 回测与 AutoFix 不使用它（它们要求参数冻结）。
type Watcher struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	current   *Policy
	listeners []ChangeListener
}

// NewWatcher 读取策略文件并开始监听更新。
func NewWatcher(path string) (*Watcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("policy watcher requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read policy file failed: %w", err)
	}
	w := &Watcher{path: path, v: v}
	if err := w.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := w.reload(); err != nil {
			logger.Errorf("policy reload failed, keeping previous revision: %v", err)
			return
		}
		w.notifyListeners()
	})
	v.WatchConfig()
	return w, nil
}

// Current 返回最近一次通过校验的 Policy。
func (w *Watcher) Current() *Policy {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange 注册热更新回调。
func (w *Watcher) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *Watcher) reload() error {
	if err := w.v.ReadInConfig(); err != nil {
		return err
	}
	p, err := decodeSettings(w.v.AllSettings())
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.current = p
	w.mu.Unlock()
	logger.Infof("policy reloaded path=%s", w.path)
	return nil
}

func (w *Watcher) notifyListeners() {
	w.mu.RLock()
	listeners := make([]ChangeListener, len(w.listeners))
	copy(listeners, w.listeners)
	current := w.current
	w.mu.RUnlock()
	for _, fn := range listeners {
		fn(current)
	}
}
