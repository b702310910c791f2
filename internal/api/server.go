// Package api serves read-only views of recorded runs over HTTP.
package api

import (
	stderrors "errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"hypoforge/app"
	"hypoforge/domain/core"
	"hypoforge/domain/run"
	"hypoforge/internal"
	"hypoforge/internal/reporting"
	"hypoforge/ports"
)

// Server exposes the run manifests and the run index.
type Server struct {
	manifests ports.ManifestReader
	index     ports.RunIndex
	logger    *internal.Logger
	router    *gin.Engine

	// PollInterval paces the event stream.
	PollInterval time.Duration
}

// NewServer wires the routes. index may be nil, in which case run listings
// are derived from the manifests.
func NewServer(manifests ports.ManifestReader, index ports.RunIndex, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	s := &Server{
		manifests:    manifests,
		index:        index,
		logger:       logger,
		router:       gin.New(),
		PollInterval: 500 * time.Millisecond,
	}
	s.router.Use(gin.Recovery(), s.accessLog())
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr until the server fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("serving run API on %s", addr)
	return s.router.Run(addr)
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	runs := s.router.Group("/runs")
	runs.GET("", s.handleListRuns)
	runs.GET("/:id", s.handleGetRun)
	runs.GET("/:id/state", s.handleState)
	runs.GET("/:id/events", s.handleEvents)
	runs.GET("/:id/events/stream", s.handleEventStream)
	runs.GET("/:id/report", s.handleReport)
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if s.index != nil {
		summaries, err := s.index.List(c.Request.Context(), limit)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": summaries})
		return
	}

	ids, err := s.manifests.ListRuns(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	summaries := make([]run.Summary, 0, len(ids))
	for _, id := range ids {
		state, err := s.replay(c, id)
		if err != nil {
			s.logger.Warn("skip run %s: %v", id, err)
			continue
		}
		summaries = append(summaries, app.Summarize(state))
	}
	// Newest first, to match the index ordering.
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[j].StartedAt.Before(summaries[i].StartedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"runs": summaries})
}

func (s *Server) handleGetRun(c *gin.Context) {
	state, ok := s.loadState(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, app.Summarize(state))
}

func (s *Server) handleState(c *gin.Context) {
	state, ok := s.loadState(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleEvents(c *gin.Context) {
	id, ok := runID(c)
	if !ok {
		return
	}
	after, err := queryInt(c, "after", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	events, err := s.manifests.LoadEvents(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "events": eventsAfter(events, int64(after))})
}

func (s *Server) handleReport(c *gin.Context) {
	state, ok := s.loadState(c)
	if !ok {
		return
	}
	report := reporting.Build(state, app.Summarize(state))
	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, report)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", reporting.HTML(report))
}

func (s *Server) loadState(c *gin.Context) (*run.State, bool) {
	id, ok := runID(c)
	if !ok {
		return nil, false
	}
	state, err := s.replay(c, id)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return state, true
}

func (s *Server) replay(c *gin.Context, id core.RunID) (*run.State, error) {
	events, err := s.manifests.LoadEvents(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	return run.Replay(events)
}

func (s *Server) fail(c *gin.Context, err error) {
	if stderrors.Is(err, core.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func runID(c *gin.Context) (core.RunID, bool) {
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, stderrors.New(key + " must be a non-negative integer")
	}
	return v, nil
}

func eventsAfter(events []run.Event, after int64) []run.Event {
	out := make([]run.Event, 0, len(events))
	for _, e := range events {
		if e.Seq > after {
			out = append(out, e)
		}
	}
	return out
}
