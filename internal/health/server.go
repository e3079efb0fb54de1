package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amishk599/jobalert/internal/model"
	"github.com/amishk599/jobalert/internal/scheduler"
)

// DefaultLockWait bounds how long POST /check waits for a running cycle.
const DefaultLockWait = 5 * time.Second

// Cycles is the scheduler surface the endpoint needs.
// *scheduler.Scheduler implements it.
type Cycles interface {
	RunCycleWithin(ctx context.Context, requester model.RecipientID, wait time.Duration) (model.CycleReport, error)
	LastReport() (model.CycleReport, bool)
	NextRun() time.Time
	Running() bool
}

// Server exposes GET /healthz and POST /check for operators.
type Server struct {
	cycles   Cycles
	registry model.Registry
	logger   *slog.Logger
	lockWait time.Duration
	engine   *gin.Engine
}

// NewServer builds the HTTP handlers. lockWait <= 0 selects DefaultLockWait.
func NewServer(cycles Cycles, registry model.Registry, lockWait time.Duration, logger *slog.Logger) *Server {
	if lockWait <= 0 {
		lockWait = DefaultLockWait
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cycles:   cycles,
		registry: registry,
		logger:   logger,
		lockWait: lockWait,
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.logRequests())
	s.engine.GET("/healthz", s.healthz)
	s.engine.POST("/check", s.check)
	return s
}

// Handler returns the HTTP handler, for tests and custom servers.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("health endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("health server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("health server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
		)
	}
}

type cycleJSON struct {
	ID          string    `json:"id"`
	Trigger     string    `json:"trigger"`
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
	Queries     int       `json:"queries"`
	FetchErrors int       `json:"fetch_errors"`
	Candidates  int       `json:"candidates"`
	Postings    int       `json:"postings"`
	Delivered   int       `json:"delivered"`
	Failed      int       `json:"failed"`
	Suppressed  bool      `json:"suppressed"`
}

func toJSON(r model.CycleReport) *cycleJSON {
	return &cycleJSON{
		ID:          r.ID,
		Trigger:     r.Trigger.Kind.String(),
		StartedAt:   r.StartedAt,
		DurationMS:  r.Duration.Milliseconds(),
		Queries:     r.Queries,
		FetchErrors: r.FetchErrors,
		Candidates:  r.Candidates,
		Postings:    r.Postings,
		Delivered:   r.Delivered,
		Failed:      r.Failed,
		Suppressed:  r.Suppressed,
	}
}

func (s *Server) healthz(c *gin.Context) {
	resp := gin.H{
		"status":     "ok",
		"running":    s.cycles.Running(),
		"last_cycle": nil,
	}
	if last, ok := s.cycles.LastReport(); ok {
		resp["last_cycle"] = toJSON(last)
	}
	if next := s.cycles.NextRun(); !next.IsZero() {
		resp["next_run"] = next
	}

	ids, err := s.registry.ActiveRecipients(c.Request.Context())
	resp["subscribers"] = len(ids)
	if err != nil {
		s.logger.Warn("healthz: reading registry", "error", err)
		resp["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) check(c *gin.Context) {
	report, err := s.cycles.RunCycleWithin(c.Request.Context(), 0, s.lockWait)
	switch {
	case errors.Is(err, scheduler.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "a cycle is already running"})
		return
	case err != nil:
		s.logger.Warn("manual check via http failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cycle did not complete", "cycle": toJSON(report)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycle": toJSON(report)})
}
