package api

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"floodwatch/internal/api/web"
	"floodwatch/internal/config"
	"floodwatch/internal/metrics"
	"floodwatch/internal/render"
	"floodwatch/internal/scheduler"
)

// Controller is the part of the scheduler the console drives.
type Controller interface {
	OnManualRefresh(ctx context.Context) scheduler.Status
	Status() scheduler.Status
	Target() (string, string)
	UpdateTarget(baseURL, locationID string)
}

type FrameSource interface {
	Current() *render.Frame
}

type Server struct {
	cfg       *config.Manager
	metrics   *metrics.Store
	scheduler Controller
	frames    FrameSource
	logger    *slog.Logger
	engine    *gin.Engine
	page      *template.Template
	version   string
}

type statusResponse struct {
	Status     scheduler.Status `json:"status"`
	Time       string           `json:"time"`
	Version    string           `json:"version"`
	ConfigPath string           `json:"config_path"`
	BaseURL    string           `json:"base_url"`
	LocationID string           `json:"location_id"`
	FrameSeq   uint64           `json:"frame_seq"`
	Cycles     metrics.Counters `json:"cycles"`
}

type settingsRequest struct {
	BaseURL    string `json:"base_url" form:"base_url"`
	LocationID string `json:"location_id" form:"location_id"`
}

type dashboardData struct {
	Status         scheduler.Status
	PillClass      string
	BaseURL        string
	LocationID     string
	RefreshMillis  int64
	Error          string
	Frame          *render.Frame
}

func New(cfg *config.Manager, metricsStore *metrics.Store, sched Controller, frames FrameSource, logger *slog.Logger, version string) (*Server, error) {
	page, err := web.Dashboard()
	if err != nil {
		return nil, err
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))

	s := &Server{
		cfg:       cfg,
		metrics:   metricsStore,
		scheduler: sched,
		frames:    frames,
		logger:    logger,
		engine:    engine,
		page:      page,
		version:   version,
	}
	s.registerRoutes()
	return s, nil
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves on api.addr until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Get().API.Addr
	if s.logger != nil {
		s.logger.Info("api enabled", "addr", addr)
	}
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/", s.handleDashboard)
	s.engine.GET("/status", s.handleStatus)
	s.engine.GET("/views", s.handleFrame)
	s.engine.GET("/views/:name", s.handleView)
	s.engine.POST("/refresh", s.handleRefresh)
	s.engine.GET("/settings", s.handleGetSettings)
	s.engine.POST("/settings", s.handleUpdateSettings)
	s.engine.GET("/metrics", s.handleMetrics)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if logger == nil {
			return
		}
		logger.Debug("api request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) handleDashboard(c *gin.Context) {
	st := s.scheduler.Status()
	baseURL, locationID := s.scheduler.Target()
	data := dashboardData{
		Status:         st,
		PillClass:      pillClass(st.State),
		BaseURL:        baseURL,
		LocationID:     locationID,
		RefreshMillis:  refreshMillis(s.cfg.Get().Refresh.Interval),
		Error:          c.Query("error"),
		Frame:          s.frames.Current(),
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	if err := s.page.Execute(c.Writer, data); err != nil && s.logger != nil {
		s.logger.Error("dashboard render failed", "err", err)
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	baseURL, locationID := s.scheduler.Target()
	resp := statusResponse{
		Status:     s.scheduler.Status(),
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		BaseURL:    baseURL,
		LocationID: locationID,
	}
	if frame := s.frames.Current(); frame != nil {
		resp.FrameSeq = frame.Seq
	}
	if s.metrics != nil {
		resp.Cycles = s.metrics.Counters()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleFrame(c *gin.Context) {
	frame := s.frames.Current()
	if frame == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot yet"})
		return
	}
	c.JSON(http.StatusOK, frame)
}

func (s *Server) handleView(c *gin.Context) {
	frame := s.frames.Current()
	if frame == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot yet"})
		return
	}
	name := c.Param("name")
	view, ok := frame.View(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown view " + strconv.Quote(name), "views": render.ViewNames})
		return
	}
	c.JSON(http.StatusOK, gin.H{"seq": frame.Seq, "view": name, "data": view})
}

// handleRefresh runs a manual cycle. The cycle is detached from the request so
// a client that goes away does not fail it.
func (s *Server) handleRefresh(c *gin.Context) {
	st := s.scheduler.OnManualRefresh(context.WithoutCancel(c.Request.Context()))
	if isForm(c) {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	code := http.StatusOK
	if st.State == scheduler.StateOffline {
		code = http.StatusBadGateway
	}
	c.JSON(code, gin.H{"status": st})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	baseURL, locationID := s.scheduler.Target()
	c.JSON(http.StatusOK, settingsRequest{BaseURL: baseURL, LocationID: locationID})
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	form := isForm(c)
	fail := func(code int, msg string) {
		if form {
			c.Redirect(http.StatusSeeOther, "/?error="+url.QueryEscape(msg))
			return
		}
		c.JSON(code, gin.H{"error": msg})
	}

	var req settingsRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(http.StatusBadRequest, "invalid settings body")
		return
	}
	baseURL, err := config.ValidateBaseURL(req.BaseURL)
	if err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}
	locationID := strings.TrimSpace(req.LocationID)

	next := *s.cfg.Get()
	next.Remote.BaseURL = baseURL
	next.Remote.LocationID = locationID
	if err := s.cfg.Update(&next); err != nil {
		fail(http.StatusInternalServerError, err.Error())
		return
	}
	s.scheduler.UpdateTarget(baseURL, locationID)
	if s.logger != nil {
		s.logger.Info("settings updated", "base_url", baseURL, "location_id", locationID)
	}
	if form {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.JSON(http.StatusOK, settingsRequest{BaseURL: baseURL, LocationID: locationID})
}

func (s *Server) handleMetrics(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	if s.metrics == nil {
		c.JSON(http.StatusOK, gin.H{"cycles": []metrics.CycleStat{}, "count": 0})
		return
	}
	list := s.metrics.List(limit)
	c.JSON(http.StatusOK, gin.H{
		"cycles":   list,
		"count":    len(list),
		"counters": s.metrics.Counters(),
	})
}

func pillClass(state scheduler.State) string {
	switch state {
	case scheduler.StateLive:
		return "ok"
	case scheduler.StateOffline:
		return "bad"
	default:
		return ""
	}
}

func isForm(c *gin.Context) bool {
	switch c.ContentType() {
	case binding.MIMEPOSTForm, binding.MIMEMultipartPOSTForm:
		return true
	}
	return false
}

func refreshMillis(d time.Duration) int64 {
	if d < time.Second {
		d = time.Second
	}
	return d.Milliseconds()
}
