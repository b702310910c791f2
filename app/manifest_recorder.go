package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"hypoforge/domain/core"
	"hypoforge/domain/run"
	"hypoforge/internal"
	"hypoforge/internal/errors"
	"hypoforge/ports"
)

// ErrRecorderClosed is returned by appends after Close.
var ErrRecorderClosed = stderrors.New("manifest recorder closed")

// ManifestRecorder is the single writer lane for one run's manifest. Every
// append from the orchestrator and from concurrent review workers is queued
// onto one goroutine, validated by replay, and made durable before the caller
// continues.
type ManifestRecorder struct {
	runID    core.RunID
	store    ports.ManifestWriter
	clock    core.Clock
	log      *internal.Logger
	requests chan recordRequest
	quit     chan struct{}
	done     chan struct{}
	once     sync.Once
}

type recordRequest struct {
	ctx       context.Context
	event     run.Event
	stateOnly bool
	reply     chan recordReply
}

type recordReply struct {
	state *run.State
	err   error
}

// StartRecorder takes ownership of manifest and starts the writer goroutine.
// Close must be called to stop it.
func StartRecorder(manifest *run.Manifest, store ports.ManifestWriter, clock core.Clock, log *internal.Logger) *ManifestRecorder {
	r := &ManifestRecorder{
		runID:    manifest.RunID,
		store:    store,
		clock:    clock,
		log:      log,
		requests: make(chan recordRequest),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.loop(manifest)
	return r
}

// RunID returns the run this recorder writes.
func (r *ManifestRecorder) RunID() core.RunID { return r.runID }

func (r *ManifestRecorder) loop(m *run.Manifest) {
	defer close(r.done)
	for {
		select {
		case req := <-r.requests:
			req.reply <- r.handle(m, req)
		case <-r.quit:
			return
		}
	}
}

func (r *ManifestRecorder) handle(m *run.Manifest, req recordRequest) recordReply {
	if req.stateOnly {
		state, err := m.State()
		return recordReply{state: state, err: err}
	}

	stamped, state, err := m.Record(req.event, r.clock())
	if err != nil {
		return recordReply{err: fmt.Errorf("record %s event: %w", req.event.Type, err)}
	}
	if err := r.store.AppendEvent(req.ctx, r.runID, stamped); err != nil {
		m.Rollback(stamped.Seq)
		return recordReply{err: errors.Wrapf(err, "flush %s event %d", stamped.Type, stamped.Seq)}
	}
	r.log.Trace("manifest %s: event %d %s", r.runID, stamped.Seq, stamped.Type)

	if checkpoint(stamped.Type) {
		// The snapshot is derived data; the log is already durable.
		if err := r.store.WriteSnapshot(req.ctx, r.runID, state); err != nil {
			r.log.Warn("manifest %s: snapshot after event %d failed: %v", r.runID, stamped.Seq, err)
		}
	}
	return recordReply{state: state}
}

func checkpoint(t run.EventType) bool {
	switch t {
	case run.EventStageCompleted, run.EventStageFailed, run.EventIterationCompleted,
		run.EventRunCompleted, run.EventRunFailed, run.EventResumeStarted:
		return true
	}
	return false
}

// Append records e and returns the state after it.
func (r *ManifestRecorder) Append(ctx context.Context, e run.Event) (*run.State, error) {
	return r.submit(recordRequest{ctx: ctx, event: e})
}

// State returns the current derived state.
func (r *ManifestRecorder) State(ctx context.Context) (*run.State, error) {
	return r.submit(recordRequest{ctx: ctx, stateOnly: true})
}

func (r *ManifestRecorder) submit(req recordRequest) (*run.State, error) {
	req.reply = make(chan recordReply, 1)
	select {
	case r.requests <- req:
	case <-r.done:
		return nil, ErrRecorderClosed
	}
	reply := <-req.reply
	return reply.state, reply.err
}

// Close stops the writer goroutine. Appends still queued get ErrRecorderClosed.
func (r *ManifestRecorder) Close() {
	r.once.Do(func() { close(r.quit) })
	<-r.done
}
