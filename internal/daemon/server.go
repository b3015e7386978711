package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"harborsync/internal/activity"
	"harborsync/internal/logger"
	"harborsync/internal/mirror"
	"harborsync/internal/model"
	"harborsync/internal/store"
	"harborsync/internal/version"
)

type Server struct {
	echo    *echo.Echo
	manager *Manager
	sched   *Scheduler
	store   *store.Store
	act     *activity.Log
	errlog  *activity.ErrorLog
	auth    *Authenticator
	port    int
}

func NewServer(manager *Manager, sched *Scheduler, st *store.Store, act *activity.Log, errlog *activity.ErrorLog, auth *Authenticator, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		manager: manager,
		sched:   sched,
		store:   st,
		act:     act,
		errlog:  errlog,
		auth:    auth,
		port:    port,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", s.handleHealth)
	api.GET("/version", s.handleVersion)

	api.GET("/auth/status", s.handleAuthStatus)
	api.POST("/auth/setup", s.handleAuthSetup)
	api.POST("/auth/login", s.handleAuthLogin)
	api.POST("/auth/logout", s.handleAuthLogout)

	guarded := api.Group("", s.requireAuth)
	guarded.GET("/config", s.handleGetConfig)
	guarded.PUT("/config", s.handleUpdateConfig)
	guarded.GET("/status", s.handleStatus)
	guarded.POST("/sync/start", s.handleSyncStart)
	guarded.POST("/sync/stop", s.handleSyncStop)
	guarded.GET("/history", s.handleHistory)

	guarded.GET("/errors", s.handleErrors)
	guarded.POST("/errors/clear", s.handleErrorsClear)
	guarded.GET("/errors/download", s.handleErrorsDownload)
	guarded.GET("/activity/log", s.handleActivity)
	guarded.POST("/activity/clear", s.handleActivityClear)
	guarded.GET("/activity/download", s.handleActivityDownload)

	guarded.GET("/jellyfin/config", s.handleGetJellyfinConfig)
	guarded.PUT("/jellyfin/config", s.handleUpdateJellyfinConfig)
	guarded.POST("/jellyfin/test", s.handleJellyfinTest)
	guarded.GET("/jellyfin/tasks", s.handleJellyfinTasks)
	guarded.POST("/jellyfin/tasks/run", s.handleJellyfinRun)
}

func (s *Server) Start() {
	go func() {
		addr := ":" + strconv.Itoa(s.port)
		logger.Log.Info("daemon server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("daemon server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requireAuth guards the API once a credential exists. Until setup runs the
// API stays open so the first-run flow can reach it.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		configured, err := s.auth.Configured()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		if !configured {
			return next(c)
		}
		if !s.auth.Validate(bearerToken(c)) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		}
		return next(c)
	}
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Get())
}

type authRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type authResponse struct {
	Token     string  `json:"token"`
	ExpiresAt float64 `json:"expires_at"`
}

func (s *Server) handleAuthStatus(c echo.Context) error {
	configured, err := s.auth.Configured()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	token := bearerToken(c)
	resp := map[string]any{
		"configured":    configured,
		"authenticated": s.auth.Validate(token),
	}
	if exp := s.auth.SessionExpiry(token); exp != nil {
		resp["session_expires_at"] = epoch(*exp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAuthSetup(c echo.Context) error {
	var req authRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}

	sess, err := s.auth.Setup(req.Username, req.Password, req.RememberMe)
	switch {
	case errors.Is(err, ErrAuthConfigured):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrMissingUserPass):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	s.act.Event("auth.setup", zap.String("username", req.Username))
	return c.JSON(http.StatusOK, authResponse{Token: sess.Token, ExpiresAt: epoch(sess.ExpiresAt)})
}

func (s *Server) handleAuthLogin(c echo.Context) error {
	var req authRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}

	sess, err := s.auth.Login(req.Username, req.Password, req.RememberMe)
	switch {
	case errors.Is(err, ErrInvalidLogin), errors.Is(err, ErrNotConfigured):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, authResponse{Token: sess.Token, ExpiresAt: epoch(sess.ExpiresAt)})
}

func (s *Server) handleAuthLogout(c echo.Context) error {
	s.auth.Logout(bearerToken(c))
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type configResponse struct {
	model.SftpConfig
	HasPassword  bool     `json:"has_password"`
	LastSyncTime *float64 `json:"last_sync_time"`
}

func (s *Server) buildConfigResponse(cfg model.SftpConfig, reveal bool) (configResponse, error) {
	masked, hasPassword := store.MaskSftpConfig(cfg)
	if reveal {
		masked = cfg
	}

	resp := configResponse{SftpConfig: masked, HasPassword: hasPassword}
	last, err := s.store.LastSyncTime()
	if err != nil {
		return resp, err
	}
	if last != nil {
		ts := epoch(*last)
		resp.LastSyncTime = &ts
	}
	return resp, nil
}

func (s *Server) handleGetConfig(c echo.Context) error {
	cfg, err := s.store.SftpConfig()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	resp, err := s.buildConfigResponse(cfg, c.QueryParam("reveal") == "true")
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleUpdateConfig(c echo.Context) error {
	var payload model.SftpConfig
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}

	if err := s.store.SaveSftpConfig(payload); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	fresh, err := s.store.SftpConfig()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	s.sched.UpdateConfig(fresh)

	s.act.Event("sftp.config_saved",
		zap.String("host", fresh.Host),
		zap.String("username", fresh.Username),
		zap.String("remote_root", fresh.RemoteRoot),
		zap.Bool("auto_sync", fresh.AutoSyncEnabled))

	resp, err := s.buildConfigResponse(fresh, false)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStatus(c echo.Context) error {
	snap := s.manager.CurrentStatus()
	if next := s.sched.NextRunTime(); next != nil {
		ts := epoch(*next)
		snap.NextSyncTime = &ts
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleSyncStart(c echo.Context) error {
	cfg, err := s.store.SftpConfig()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	snap, err := s.manager.startMirrorWith(cfg)
	switch {
	case errors.Is(err, mirror.ErrMissingCredentials):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrSyncInProgress):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	s.sched.ScheduleNext(&cfg)
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleSyncStop(c echo.Context) error {
	s.sched.CancelSchedule()
	return c.JSON(http.StatusOK, s.manager.StopActive())
}

func (s *Server) handleHistory(c echo.Context) error {
	records, err := s.store.RecentTransfers(intQuery(c, "n", 50))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"transfers": records})
}

func intQuery(c echo.Context, name string, fallback int) int {
	if raw := c.QueryParam(name); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func (s *Server) handleErrors(c echo.Context) error {
	lines, err := s.errlog.Tail(intQuery(c, "limit", 200))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"errors": lines})
}

func (s *Server) handleErrorsClear(c echo.Context) error {
	if err := s.errlog.Clear(); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleErrorsDownload(c echo.Context) error {
	name := fmt.Sprintf("sync-errors-%s.log", time.Now().UTC().Format("20060102T150405Z"))
	return c.Attachment(s.errlog.Path(), name)
}

func (s *Server) handleActivity(c echo.Context) error {
	lines, err := s.act.Tail(intQuery(c, "limit", 1000))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": lines})
}

func (s *Server) handleActivityClear(c echo.Context) error {
	if err := s.act.Clear(); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleActivityDownload(c echo.Context) error {
	name := fmt.Sprintf("activity-%s.log", time.Now().UTC().Format("20060102T150405Z"))
	return c.Attachment(s.act.Path(), name)
}

type jellyfinConfigResponse struct {
	model.JellyfinConfig
	HasAPIKey bool `json:"has_api_key"`
}

func (s *Server) handleGetJellyfinConfig(c echo.Context) error {
	cfg, err := s.store.JellyfinConfig()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	masked, hasKey := store.MaskJellyfinConfig(cfg)
	if c.QueryParam("reveal") == "true" {
		masked = cfg
	}
	return c.JSON(http.StatusOK, jellyfinConfigResponse{JellyfinConfig: masked, HasAPIKey: hasKey})
}

func (s *Server) handleUpdateJellyfinConfig(c echo.Context) error {
	var payload model.JellyfinConfig
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}

	if err := s.store.SaveJellyfinConfig(payload); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	fresh, err := s.store.JellyfinConfig()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	s.act.Event("jellyfin.config_saved",
		zap.String("server_url", fresh.ServerURL),
		zap.Bool("include_hidden", fresh.IncludeHiddenTasks),
		zap.Int("selected_tasks", len(fresh.SelectedTasks)))

	masked, hasKey := store.MaskJellyfinConfig(fresh)
	return c.JSON(http.StatusOK, jellyfinConfigResponse{JellyfinConfig: masked, HasAPIKey: hasKey})
}

type jellyfinTestRequest struct {
	ServerURL          string `json:"server_url"`
	APIKey             string `json:"api_key"`
	IncludeHiddenTasks bool   `json:"include_hidden_tasks"`
	Persist            bool   `json:"persist"`
}

func (s *Server) handleJellyfinTest(c echo.Context) error {
	var req jellyfinTestRequest
	// The body is optional; without one the stored config is probed.
	_ = c.Bind(&req)

	if err := s.manager.TestJellyfin(req.ServerURL, req.APIKey, req.IncludeHiddenTasks, req.Persist); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleJellyfinTasks(c echo.Context) error {
	tasks, err := s.manager.ListJellyfinTasks()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleJellyfinRun(c echo.Context) error {
	snap, err := s.manager.StartJellyfinTasks()
	switch {
	case errors.Is(err, ErrSyncActive), errors.Is(err, ErrJellyfinRunning):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrNotTested):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, snap)
}
