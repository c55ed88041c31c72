// Package verdict 持久化裁决快照，供报表端查询历史 GO/NO_GO 轨迹。
package verdict

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vela/internal/types"
)

// Snapshot 是一条裁决快照。Meta 承载调用方的自由元数据。
type Snapshot struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	RunID     string         `gorm:"index;size:36" json:"run_id"`
	Symbol    string         `gorm:"index;size:32" json:"symbol"`
	Mode      string         `gorm:"size:16" json:"mode"`
	Status    string         `gorm:"size:8" json:"status"`
	Reasons   datatypes.JSON `json:"reasons"`
	Metrics   datatypes.JSON `json:"metrics"`
	Meta      datatypes.JSON `json:"meta,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (Snapshot) TableName() string { return "verdict_snapshots" }

// Store 用 Gorm + SQLite 管理快照表。
type Store struct {
	db *gorm.DB
}

// Open 打开（或创建）指定路径的快照库。
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("verdict store: 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Snapshot{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// WAL 下留一点并发空间给报表端的只读查询
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save 写入一条快照并返回其 ID。meta 允许为 nil。
func (s *Store) Save(ctx context.Context, runID, symbol string, v types.Verdict, meta map[string]any) (string, error) {
	reasons, err := json.Marshal(v.Reasons)
	if err != nil {
		return "", err
	}
	metrics, err := json.Marshal(v.Metrics)
	if err != nil {
		return "", err
	}
	snap := Snapshot{
		ID:        uuid.NewString(),
		RunID:     runID,
		Symbol:    symbol,
		Mode:      v.Mode,
		Status:    string(v.Status),
		Reasons:   datatypes.JSON(reasons),
		Metrics:   datatypes.JSON(metrics),
		CreatedAt: time.Now(),
	}
	if len(meta) > 0 {
		raw, err := json.Marshal(meta)
		if err != nil {
			return "", err
		}
		snap.Meta = datatypes.JSON(raw)
	}
	if err := s.db.WithContext(ctx).Create(&snap).Error; err != nil {
		return "", err
	}
	return snap.ID, nil
}

// Latest 返回某标的在某模式下最近的一条快照。
func (s *Store) Latest(ctx context.Context, symbol, mode string) (Snapshot, error) {
	var snap Snapshot
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND mode = ?", symbol, mode).
		Order("created_at DESC").
		First(&snap).Error
	return snap, err
}

// List 按时间倒序列出快照。
func (s *Store) List(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []Snapshot
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
