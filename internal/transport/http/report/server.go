// Package reporthttp 暴露回测结果与裁决快照的只读查询 API。
package reporthttp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"vela/internal/report/chart"
	"vela/internal/store/result"
	"vela/internal/store/verdict"
)

// Server 提供结果查询相关的 HTTP API。
type Server struct {
	addr     string
	results  *result.Store
	verdicts *verdict.Store
	launch   LaunchFunc
	router   *gin.Engine
}

// LaunchRequest 是 POST /api/runs 的请求体。零值字段由调用方取默认。
type LaunchRequest struct {
	Mode  string `json:"mode"`
	Limit int    `json:"limit"`
}

// LaunchFunc 同步登记一次回测并返回 run ID，回放本身在后台完成。
type LaunchFunc func(ctx context.Context, req LaunchRequest) (string, error)

// Config 描述 Server 的依赖。Launch 为空时不注册发起回测的路由。
type Config struct {
	Addr     string
	Results  *result.Store
	Verdicts *verdict.Store
	Launch   LaunchFunc
}

// NewServer 构建报表 HTTP Server。
func NewServer(cfg Config) (*Server, error) {
	if cfg.Results == nil {
		return nil, errors.New("result store 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:     cfg.Addr,
		results:  cfg.Results,
		verdicts: cfg.Verdicts,
		launch:   cfg.Launch,
		router:   router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.GET("/runs", s.handleRunList)
	if s.launch != nil {
		api.POST("/runs", s.handleRunLaunch)
	}
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/trades", s.handleRunTrades)
	api.GET("/runs/:id/days", s.handleRunDays)
	api.GET("/runs/:id/chart", s.handleRunChart)
	if s.verdicts != nil {
		api.GET("/verdicts", s.handleVerdictList)
		api.GET("/verdicts/latest", s.handleVerdictLatest)
	}
}

func (s *Server) handleRunList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.results.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// 可选：按落盘 Policy 里的策略名过滤
	if name := c.Query("strategy"); name != "" {
		filtered := runs[:0]
		for _, run := range runs {
			if gjson.GetBytes(run.PolicyJSON, "strategy.name").String() == name {
				filtered = append(filtered, run)
			}
		}
		runs = filtered
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunLaunch(c *gin.Context) {
	var req LaunchRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.launch(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": id})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	run, err := s.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleRunTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "500"))
	trades, err := s.results.ListTrades(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleRunDays(c *gin.Context) {
	days, err := s.results.ListDays(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

func (s *Server) handleRunChart(c *gin.Context) {
	id := c.Param("id")
	run, err := s.results.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	days, err := s.results.ListDays(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	title := run.Symbol + " " + run.Mode
	if err := chart.RenderRun(c.Writer, title, days); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleVerdictList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	snaps, err := s.verdicts.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"verdicts": snaps})
}

func (s *Server) handleVerdictLatest(c *gin.Context) {
	symbol := c.Query("symbol")
	mode := c.DefaultQuery("mode", "dev")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 必填"})
		return
	}
	snap, err := s.verdicts.Latest(c.Request.Context(), symbol, mode)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"verdict": snap})
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler 暴露底层路由，便于测试。
func (s *Server) Handler() http.Handler { return s.router }
