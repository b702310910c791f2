package run

import (
	"fmt"
	"sort"

	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/stage"
)

// Manifest is the append-only event log of one run. It is the truth source
// for audit and resume; State is always derived from it by replay.
type Manifest struct {
	RunID  core.RunID `json:"run_id"`
	Events []Event    `json:"events"`
	next   int64
}

// NewManifest creates an empty manifest for runID.
func NewManifest(runID core.RunID) *Manifest {
	return &Manifest{RunID: runID, next: 1}
}

// LoadManifest rebuilds a manifest from persisted events, checking sequence order.
func LoadManifest(runID core.RunID, events []Event) (*Manifest, error) {
	m := NewManifest(runID)
	for _, e := range events {
		if e.Seq != m.next {
			return nil, fmt.Errorf("%w: run %s: event seq %d, expected %d", core.ErrCorruptManifest, runID, e.Seq, m.next)
		}
		m.Events = append(m.Events, e)
		m.next++
	}
	if _, err := Replay(m.Events); err != nil {
		return nil, err
	}
	return m, nil
}

// Append assigns the next sequence number and timestamp and appends e.
func (m *Manifest) Append(e Event, at core.Timestamp) Event {
	if m.next == 0 {
		m.next = int64(len(m.Events)) + 1
	}
	e.Seq = m.next
	e.At = at
	m.next++
	m.Events = append(m.Events, e)
	return e
}

// Record appends e only if the log still replays cleanly afterwards, and
// returns the stamped event with the resulting state.
func (m *Manifest) Record(e Event, at core.Timestamp) (Event, *State, error) {
	stamped := m.Append(e, at)
	s, err := Replay(m.Events)
	if err != nil {
		m.Rollback(stamped.Seq)
		return Event{}, nil, err
	}
	return stamped, s, nil
}

// Rollback drops the last event if it carries seq.
func (m *Manifest) Rollback(seq int64) bool {
	n := len(m.Events)
	if n == 0 || m.Events[n-1].Seq != seq {
		return false
	}
	m.Events = m.Events[:n-1]
	m.next = seq
	return true
}

// State replays the log.
func (m *Manifest) State() (*State, error) {
	return Replay(m.Events)
}

// State is the derived current view of a run.
type State struct {
	RunID       core.RunID     `json:"run_id"`
	Mode        Mode           `json:"mode"`
	DryRun      bool           `json:"dry_run"`
	Ceiling     int            `json:"ceiling"`
	Fingerprint RunFingerprint `json:"fingerprint"`
	Status      Status         `json:"status"`
	Failure     *Failure       `json:"failure,omitempty"`

	// Stages holds the latest successful execution of each stage still valid.
	Stages map[stage.Name]StageExecution `json:"stages"`

	LoopRounds   int                                 `json:"loop_rounds"`
	LoopComplete bool                                `json:"loop_complete"`
	Drafts       map[research.DraftID]DraftStatus    `json:"drafts"`
	Reviews      []ReviewRecord                      `json:"reviews,omitempty"`
	LoopOutputs  []core.ArtifactRef                  `json:"loop_outputs,omitempty"`
	Exports      map[core.CandidateID]ExportDecision `json:"exports"`
	LastSeq      int64                               `json:"last_seq"`
	StartedAt    core.Timestamp                      `json:"started_at"`
	UpdatedAt    core.Timestamp                      `json:"updated_at"`

	// pending holds reviews of the round in progress; they become part of
	// Reviews only when the round's iteration record is flushed.
	pending []ReviewRecord
}

func newState() *State {
	return &State{
		Stages:  make(map[stage.Name]StageExecution),
		Drafts:  make(map[research.DraftID]DraftStatus),
		Exports: make(map[core.CandidateID]ExportDecision),
	}
}

// Replay derives State from an ordered event log.
func Replay(events []Event) (*State, error) {
	s := newState()
	for _, e := range events {
		if e.Seq <= s.LastSeq {
			return nil, fmt.Errorf("%w: non-monotonic seq %d after %d", core.ErrCorruptManifest, e.Seq, s.LastSeq)
		}
		if err := s.apply(e); err != nil {
			return nil, fmt.Errorf("%w: event %d (%s): %v", core.ErrCorruptManifest, e.Seq, e.Type, err)
		}
		s.LastSeq = e.Seq
	}
	return s, nil
}

func (s *State) apply(e Event) error {
	s.UpdatedAt = e.At
	switch e.Type {
	case EventRunStarted:
		if e.Run == nil {
			return fmt.Errorf("missing run payload")
		}
		if s.RunID != "" {
			return fmt.Errorf("run already started")
		}
		s.RunID = e.Run.RunID
		s.StartedAt = e.At
		s.Mode = e.Run.Mode
		s.DryRun = e.Run.DryRun
		s.Ceiling = e.Run.Ceiling
		s.Fingerprint = e.Run.Fingerprint
		s.Status = StatusRunning

	case EventResumeStarted:
		if e.Resume == nil {
			return fmt.Errorf("missing resume payload")
		}
		if s.RunID == "" {
			return fmt.Errorf("resume before run start")
		}
		s.resetFrom(*e.Resume)

	case EventStageCompleted:
		if e.Execution == nil {
			return fmt.Errorf("missing execution payload")
		}
		s.Stages[e.Execution.Stage] = *e.Execution
		if e.Execution.Stage == stage.Review {
			s.LoopComplete = true
			if e.Execution.Loop != nil {
				s.LoopRounds = e.Execution.Loop.Rounds
				s.setDrafts(e.Execution.Loop.Drafts)
			}
		}

	case EventStageFailed:
		if e.Failure == nil {
			return fmt.Errorf("missing failure payload")
		}
		failure := *e.Failure
		s.Failure = &failure

	case EventReviewRecorded:
		if e.Review == nil {
			return fmt.Errorf("missing review payload")
		}
		for _, p := range s.pending {
			if p.DraftID == e.Review.DraftID && p.DraftVersion == e.Review.DraftVersion && p.Iteration == e.Review.Iteration {
				return fmt.Errorf("second review of %s in iteration %d", research.VersionKey(p.DraftID, p.DraftVersion), p.Iteration)
			}
		}
		s.pending = append(s.pending, *e.Review)

	case EventIterationCompleted:
		if e.Iteration == nil {
			return fmt.Errorf("missing iteration payload")
		}
		if e.Iteration.Iteration != s.LoopRounds {
			return fmt.Errorf("iteration %d recorded after %d completed rounds", e.Iteration.Iteration, s.LoopRounds)
		}
		s.LoopRounds = e.Iteration.Iteration + 1
		s.setDrafts(e.Iteration.Drafts)
		s.LoopOutputs = append(s.LoopOutputs, e.Iteration.Outputs...)
		for _, p := range s.pending {
			if p.Iteration == e.Iteration.Iteration {
				s.Reviews = append(s.Reviews, p)
			}
		}
		s.pending = nil

	case EventExportDecision:
		if e.Export == nil {
			return fmt.Errorf("missing export payload")
		}
		s.Exports[e.Export.CandidateID] = *e.Export

	case EventRunCompleted:
		s.Status = StatusCompleted

	case EventRunFailed:
		s.Status = StatusFailed
		if e.Failure != nil {
			failure := *e.Failure
			s.Failure = &failure
		}

	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

func (s *State) resetFrom(r ResumeInfo) {
	for _, name := range r.From.From() {
		delete(s.Stages, name)
	}
	s.Mode = r.Mode
	s.DryRun = r.DryRun
	s.Ceiling = r.Ceiling
	s.Fingerprint = r.Fingerprint
	s.Status = StatusRunning
	s.Failure = nil
	s.pending = nil

	if r.From.Index() <= stage.Review.Index() {
		s.LoopComplete = false
		s.LoopRounds = r.LoopRounds
		if !r.KeepDraftStates {
			s.Drafts = make(map[research.DraftID]DraftStatus)
			s.Reviews = nil
			s.LoopOutputs = nil
		}
	}
	if r.From.Index() <= stage.Export.Index() {
		s.Exports = make(map[core.CandidateID]ExportDecision)
	}
}

func (s *State) setDrafts(drafts []DraftStatus) {
	for _, d := range drafts {
		s.Drafts[d.DraftID] = d
	}
}

// Completed reports whether stage n has a valid successful execution.
func (s *State) Completed(n stage.Name) bool {
	exec, ok := s.Stages[n]
	return ok && exec.Status == stage.StatusOK
}

// CheckResumable verifies every stage strictly before target has completed.
// This is the only place that decides whether a resume target is satisfiable.
func (s *State) CheckResumable(target stage.Name) error {
	if !target.Valid() {
		return fmt.Errorf("%w: unknown stage %q", core.ErrResumeUnsatisfiable, target)
	}
	if s.RunID == "" {
		return fmt.Errorf("%w: run has no manifest", core.ErrResumeUnsatisfiable)
	}
	var missing []string
	for _, prior := range target.Before() {
		if !s.Completed(prior) {
			missing = append(missing, string(prior))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: cannot resume %s at %s: stages %v never completed",
			core.ErrResumeUnsatisfiable, s.RunID, target, missing)
	}
	return nil
}

// Outputs returns the output refs of kind produced by stage n's latest valid execution.
func (s *State) Outputs(n stage.Name, kind core.ArtifactKind) ([]core.ArtifactRef, bool) {
	exec, ok := s.Stages[n]
	if !ok || exec.Status != stage.StatusOK {
		return nil, false
	}
	var refs []core.ArtifactRef
	for _, ref := range exec.Outputs {
		if ref.Kind == kind {
			refs = append(refs, ref)
		}
	}
	return refs, true
}

// DraftList returns the tracked drafts ordered by id.
func (s *State) DraftList() []DraftStatus {
	out := make([]DraftStatus, 0, len(s.Drafts))
	for _, d := range s.Drafts {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DraftID < out[j].DraftID })
	return out
}

// Dispositions maps every draft that reached a terminal state to that state.
func (s *State) Dispositions() map[research.DraftID]DraftState {
	out := make(map[research.DraftID]DraftState, len(s.Drafts))
	for id, d := range s.Drafts {
		if d.State.Terminal() {
			out[id] = d.State
		}
	}
	return out
}

// ExportSet returns the candidates that were exported (or would have been, in
// a dry run), sorted.
func (s *State) ExportSet() []core.CandidateID {
	var out []core.CandidateID
	for id, d := range s.Exports {
		if d.Eligible {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ReviewChain returns the recorded reviews of one draft lineage in order.
func (s *State) ReviewChain(id research.DraftID) []ReviewRecord {
	var out []ReviewRecord
	for _, r := range s.Reviews {
		if r.DraftID == id {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Iteration < out[j].Iteration })
	return out
}
