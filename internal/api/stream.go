package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hypoforge/domain/run"
)

// handleEventStream follows a run's manifest as Server-Sent Events. It
// replays recorded events after ?after=<seq>, then polls for new ones until
// the run ends or the client goes away.
func (s *Server) handleEventStream(c *gin.Context) {
	id, ok := runID(c)
	if !ok {
		return
	}
	after, err := queryInt(c, "after", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	// Fail fast on unknown runs before switching to the stream content type.
	if _, err := s.manifests.LoadEvents(ctx, id); err != nil {
		s.fail(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	last := int64(after)
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		events, err := s.manifests.LoadEvents(ctx, id)
		if err != nil {
			s.logger.Warn("[SSE] load events for %s: %v", id, err)
			return false
		}
		for _, e := range eventsAfter(events, last) {
			c.SSEvent(string(e.Type), e)
			last = e.Seq
		}
		// A resumed run appends after its earlier terminal event, so only the
		// tail decides whether the run is over.
		if n := len(events); n > 0 {
			if t := events[n-1].Type; t == run.EventRunCompleted || t == run.EventRunFailed {
				return false
			}
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			return true
		}
	})
}
