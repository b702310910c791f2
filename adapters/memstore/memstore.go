// Package memstore provides an in-memory artifact and manifest store with the
// same visibility rules as the filesystem store. Tests and dry experiments
// use it.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"hypoforge/domain/core"
	"hypoforge/domain/run"
)

// Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	scopes    map[core.RunID]map[string][]core.Artifact
	events    map[core.RunID][]run.Event
	snapshots map[core.RunID]*run.State

	// BeforeAppend, when set, runs before an event is persisted; a non-nil
	// error rejects the append. Tests use it to simulate a crash.
	BeforeAppend func(run.Event) error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		scopes:    make(map[core.RunID]map[string][]core.Artifact),
		events:    make(map[core.RunID][]run.Event),
		snapshots: make(map[core.RunID]*run.State),
	}
}

func (s *Store) Commit(ctx context.Context, runID core.RunID, scope string, artifacts []core.Artifact) ([]core.ArtifactRef, error) {
	if err := core.ValidateScope(scope); err != nil {
		return nil, err
	}
	stored := make([]core.Artifact, 0, len(artifacts))
	refs := make([]core.ArtifactRef, 0, len(artifacts))
	seen := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		if err := core.ValidateKey(a.Key); err != nil {
			return nil, err
		}
		id := string(a.Kind) + "/" + a.Key
		if seen[id] {
			return nil, fmt.Errorf("duplicate artifact %s in scope %s", id, scope)
		}
		seen[id] = true
		a.Payload = append([]byte(nil), a.Payload...)
		stored = append(stored, a)
		refs = append(refs, core.ArtifactRef{Scope: scope, Kind: a.Kind, Key: a.Key, Hash: a.Fingerprint()})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scopes[runID] == nil {
		s.scopes[runID] = make(map[string][]core.Artifact)
	}
	// Replacing a scope also replaces everything nested below it, as a
	// directory rename would.
	for existing := range s.scopes[runID] {
		if strings.HasPrefix(existing, scope+"/") {
			delete(s.scopes[runID], existing)
		}
	}
	s.scopes[runID][scope] = stored
	return refs, nil
}

func (s *Store) Load(ctx context.Context, runID core.RunID, ref core.ArtifactRef) (core.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.scopes[runID][ref.Scope] {
		if a.Kind == ref.Kind && a.Key == ref.Key {
			if !ref.Hash.IsEmpty() && a.Fingerprint() != ref.Hash {
				return core.Artifact{}, fmt.Errorf("%w: %s/%s", core.ErrHashMismatch, runID, ref.Path())
			}
			a.Payload = append([]byte(nil), a.Payload...)
			return a, nil
		}
	}
	return core.Artifact{}, fmt.Errorf("%w: %s/%s", core.ErrArtifactNotFound, runID, ref.Path())
}

func (s *Store) Exists(ctx context.Context, runID core.RunID, ref core.ArtifactRef) (bool, error) {
	_, err := s.Load(ctx, runID, core.ArtifactRef{Scope: ref.Scope, Kind: ref.Kind, Key: ref.Key})
	if err != nil {
		if core.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) List(ctx context.Context, runID core.RunID, scope string) ([]core.ArtifactRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var refs []core.ArtifactRef
	for _, a := range s.scopes[runID][scope] {
		refs = append(refs, core.ArtifactRef{Scope: scope, Kind: a.Kind, Key: a.Key, Hash: a.Fingerprint()})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind < refs[j].Kind
		}
		return refs[i].Key < refs[j].Key
	})
	return refs, nil
}

// Scopes lists the scopes committed for a run, sorted.
func (s *Store) Scopes(runID core.RunID) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.scopes[runID]))
	for scope := range s.scopes[runID] {
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}

func (s *Store) AppendEvent(ctx context.Context, runID core.RunID, event run.Event) error {
	if s.BeforeAppend != nil {
		if err := s.BeforeAppend(event); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[runID] = append(s.events[runID], event)
	return nil
}

func (s *Store) LoadEvents(ctx context.Context, runID core.RunID) ([]run.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events, ok := s.events[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	return append([]run.Event(nil), events...), nil
}

func (s *Store) WriteSnapshot(ctx context.Context, runID core.RunID, state *run.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[runID] = state
	return nil
}

// Snapshot returns the last state written for a run.
func (s *Store) Snapshot(runID core.RunID) *run.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshots[runID]
}

func (s *Store) ListRuns(ctx context.Context) ([]core.RunID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.RunID, 0, len(s.events))
	for id := range s.events {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
