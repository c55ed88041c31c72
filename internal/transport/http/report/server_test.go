package reporthttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vela/internal/store/result"
	"vela/internal/store/verdict"
	"vela/internal/types"
)

func setupServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	results, err := result.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { results.Close() })

	verdicts, err := verdict.Open(filepath.Join(dir, "verdicts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { verdicts.Close() })

	ctx := context.Background()
	id, err := results.CreateRun(ctx, "600519", "dev", []byte(`{"strategy":{"name":"vwap_pullback_long"}}`))
	require.NoError(t, err)

	entry := time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC)
	summaries := []types.DaySummary{{
		Date:     time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		TotalPnL: 6300,
		Trades: []types.Trade{{
			EntryTime: entry, ExitTime: entry.Add(9 * time.Minute),
			EntryPrice: 100, ExitPrice: 106.3, Quantity: 1000,
			PnL: 6300, RMultiple: 2.1, Reason: types.ExitTakeProfit,
		}},
	}}
	v := types.Verdict{Status: types.VerdictGo, Mode: "dev"}
	require.NoError(t, results.CompleteRun(ctx, id, v, summaries))
	_, err = verdicts.Save(ctx, id, "600519", v, nil)
	require.NoError(t, err)

	srv, err := NewServer(Config{Addr: ":0", Results: results, Verdicts: verdicts})
	require.NoError(t, err)
	return srv, id
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRunEndpoints(t *testing.T) {
	srv, id := setupServer(t)

	rec := get(t, srv, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Runs []result.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, id, list.Runs[0].ID)

	rec = get(t, srv, "/api/runs?strategy=other")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Runs)

	rec = get(t, srv, "/api/runs/"+id+"/trades")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "take_profit")

	rec = get(t, srv, "/api/runs/"+id+"/chart")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestRunLaunch(t *testing.T) {
	srv, _ := setupServer(t)

	// 未配置发起器时路由不存在
	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"mode":"dev"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var got LaunchRequest
	launching, err := NewServer(Config{
		Addr:    ":0",
		Results: srv.results,
		Launch: func(_ context.Context, r LaunchRequest) (string, error) {
			got = r
			return "run-123", nil
		},
	})
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"mode":"prod","limit":300}`))
	rec = httptest.NewRecorder()
	launching.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "run-123")
	assert.Equal(t, "prod", got.Mode)
	assert.Equal(t, 300, got.Limit)

	// 空请求体等于全部取默认
	req = httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	rec = httptest.NewRecorder()
	launching.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestVerdictEndpoints(t *testing.T) {
	srv, _ := setupServer(t)

	rec := get(t, srv, "/api/verdicts/latest?symbol=600519&mode=dev")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "GO")

	rec = get(t, srv, "/api/verdicts/latest")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, srv, "/api/runs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
