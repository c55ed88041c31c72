// Package result 把回测运行及其成交序列落到本地 SQLite。
// 单写者模型：连接数压到 1，靠 WAL 保证并发读取方不被阻塞。
package result

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"vela/internal/types"
)

// Run 状态。
const (
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// Run 是一次回测（或 autofix 中一次候选评估）的持久化记录。
type Run struct {
	ID          string               `json:"id"`
	Symbol      string               `json:"symbol"`
	Mode        string               `json:"mode"`
	Status      string               `json:"status"`
	PolicyJSON  json.RawMessage      `json:"policy"`
	Verdict     types.Verdict        `json:"verdict"`
	Days        int                  `json:"days"`
	Trades      int                  `json:"trades"`
	TotalPnL    float64              `json:"total_pnl"`
	Message     string               `json:"message"`
	CreatedAt   time.Time            `json:"created_at"`
	CompletedAt time.Time            `json:"completed_at"`
}

// Store 管理 runs / run_days / run_trades 三张表。
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open 打开（或创建）root 目录下的结果库。
func Open(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("result store root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "runs.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			policy_json TEXT NOT NULL,
			verdict_json TEXT,
			days INTEGER NOT NULL DEFAULT 0,
			trades INTEGER NOT NULL DEFAULT 0,
			total_pnl REAL NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			completed_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS run_days (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			day INTEGER NOT NULL,
			total_pnl REAL NOT NULL,
			day_loss_hit INTEGER NOT NULL,
			max_drawdown REAL NOT NULL,
			loss_streak INTEGER NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS run_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			entry_ts INTEGER NOT NULL,
			exit_ts INTEGER NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			quantity INTEGER NOT NULL,
			pnl REAL NOT NULL,
			r_multiple REAL NOT NULL,
			reason TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_run_days_run ON run_days(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_run_trades_run ON run_trades(run_id, entry_ts);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateRun 新建一条 running 状态的记录并返回其 ID。
func (s *Store) CreateRun(ctx context.Context, symbol, mode string, policyJSON []byte) (string, error) {
	id := uuid.NewString()
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, symbol, mode, status, policy_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, symbol, mode, RunStatusRunning, string(policyJSON), now)
	if err != nil {
		return "", err
	}
	return id, nil
}

// CompleteRun 落盘最终裁决与全部逐日结果。
func (s *Store) CompleteRun(ctx context.Context, id string, verdict types.Verdict, summaries []types.DaySummary) error {
	verdictJSON, err := json.Marshal(verdict)
	if err != nil {
		return err
	}
	var trades int
	var totalPnL float64
	for _, day := range summaries {
		trades += len(day.Trades)
		totalPnL += day.TotalPnL
		if err := s.insertDay(ctx, id, day); err != nil {
			return err
		}
	}
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		UPDATE runs
		SET status=?, verdict_json=?, days=?, trades=?, total_pnl=?, completed_at=?
		WHERE id=?`,
		RunStatusDone, string(verdictJSON), len(summaries), trades, totalPnL, now, id)
	return err
}

// FailRun 标记失败并记录原因。
func (s *Store) FailRun(ctx context.Context, id, message string) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status=?, message=?, completed_at=? WHERE id=?`,
		RunStatusFailed, message, now, id)
	return err
}

func (s *Store) insertDay(ctx context.Context, runID string, day types.DaySummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_days (run_id, day, total_pnl, day_loss_hit, max_drawdown, loss_streak)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, day.Date.UnixMilli(), day.TotalPnL, boolInt(day.DayLossHit), day.MaxDrawdown, day.LossStreak)
	if err != nil {
		return err
	}
	for _, trade := range day.Trades {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO run_trades
				(run_id, entry_ts, exit_ts, entry_price, exit_price, quantity, pnl, r_multiple, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, trade.EntryTime.UnixMilli(), trade.ExitTime.UnixMilli(), trade.EntryPrice,
			trade.ExitPrice, trade.Quantity, trade.PnL, trade.RMultiple, string(trade.Reason))
		if err != nil {
			return err
		}
	}
	return nil
}

// ListRuns 按创建时间倒序列出最近的运行。
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, mode, status, policy_json, verdict_json, days, trades,
		       total_pnl, message, created_at, completed_at
		FROM runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// GetRun 取单条记录。
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, mode, status, policy_json, verdict_json, days, trades,
		       total_pnl, message, created_at, completed_at
		FROM runs WHERE id=?`, id)
	return scanRun(row)
}

// ListTrades 按入场时间顺序列出一次运行的全部成交。
func (s *Store) ListTrades(ctx context.Context, runID string, limit int) ([]types.Trade, error) {
	if limit <= 0 || limit > 2000 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_ts, exit_ts, entry_price, exit_price, quantity, pnl, r_multiple, reason
		FROM run_trades
		WHERE run_id=?
		ORDER BY entry_ts ASC, id ASC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Trade
	for rows.Next() {
		var trade types.Trade
		var entryTS, exitTS int64
		var reason string
		if err := rows.Scan(&entryTS, &exitTS, &trade.EntryPrice, &trade.ExitPrice,
			&trade.Quantity, &trade.PnL, &trade.RMultiple, &reason); err != nil {
			return nil, err
		}
		trade.EntryTime = timeFromMillis(entryTS)
		trade.ExitTime = timeFromMillis(exitTS)
		trade.Reason = types.ExitReason(reason)
		out = append(out, trade)
	}
	return out, rows.Err()
}

// ListDays 列出一次运行的逐日汇总（不含逐笔明细）。
func (s *Store) ListDays(ctx context.Context, runID string) ([]types.DaySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, total_pnl, day_loss_hit, max_drawdown, loss_streak
		FROM run_days
		WHERE run_id=?
		ORDER BY day ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.DaySummary
	for rows.Next() {
		var day types.DaySummary
		var ts int64
		var lossHit int
		if err := rows.Scan(&ts, &day.TotalPnL, &lossHit, &day.MaxDrawdown, &day.LossStreak); err != nil {
			return nil, err
		}
		day.Date = timeFromMillis(ts)
		day.DayLossHit = lossHit != 0
		out = append(out, day)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var policyStr string
	var verdictStr sql.NullString
	var createdAt int64
	var completedAt sql.NullInt64
	if err := row.Scan(&run.ID, &run.Symbol, &run.Mode, &run.Status, &policyStr, &verdictStr,
		&run.Days, &run.Trades, &run.TotalPnL, &run.Message, &createdAt, &completedAt); err != nil {
		return Run{}, err
	}
	run.PolicyJSON = json.RawMessage(policyStr)
	run.CreatedAt = timeFromMillis(createdAt)
	if completedAt.Valid {
		run.CompletedAt = timeFromMillis(completedAt.Int64)
	}
	if verdictStr.Valid && verdictStr.String != "" {
		if err := json.Unmarshal([]byte(verdictStr.String), &run.Verdict); err != nil {
			return Run{}, err
		}
	}
	return run, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond))
}
