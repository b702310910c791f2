package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"hypoforge/domain/core"
	"hypoforge/domain/run"
	"hypoforge/internal/errors"
)

const (
	manifestLog      = "manifest.jsonl"
	manifestSnapshot = "manifest.json"
)

// AppendEvent appends one JSON line to the run's log and fsyncs it. A torn
// line left by a crash is cut off before the new event is written.
func (s *Store) AppendEvent(ctx context.Context, runID core.RunID, event run.Event) error {
	if _, err := core.ParseRunID(string(runID)); err != nil {
		return errors.StorageError("append event", err)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	dir := s.RunDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.StorageError("create run dir", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, manifestLog), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errors.StorageError("open event log", err)
	}
	defer f.Close()

	end, err := trimTornTail(f)
	if err != nil {
		return errors.StorageError("repair event log", err)
	}
	if _, err := f.WriteAt(append(data, '\n'), end); err != nil {
		return errors.StorageError("append event", err)
	}
	if err := f.Sync(); err != nil {
		return errors.StorageError("sync event log", err)
	}
	return nil
}

// trimTornTail truncates f after its last newline and returns the new size.
func trimTornTail(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return 0, err
	}
	if last[0] == '\n' {
		return size, nil
	}
	data := make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil && err != io.EOF {
		return 0, err
	}
	keep := int64(bytes.LastIndexByte(data, '\n') + 1)
	if err := f.Truncate(keep); err != nil {
		return 0, err
	}
	return keep, nil
}

// LoadEvents reads a run's log. An unterminated final line is a write that
// never completed and is ignored.
func (s *Store) LoadEvents(ctx context.Context, runID core.RunID) ([]run.Event, error) {
	if _, err := core.ParseRunID(string(runID)); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRunNotFound, err)
	}
	data, err := os.ReadFile(filepath.Join(s.RunDir(runID), manifestLog))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
		}
		return nil, errors.StorageError("read event log", err)
	}
	if i := bytes.LastIndexByte(data, '\n'); i < len(data)-1 {
		data = data[:i+1]
	}

	var events []run.Event
	for lineNo, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var e run.Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", core.ErrCorruptManifest, runID, lineNo+1, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// WriteSnapshot replaces manifest.json with the derived state
func (s *Store) WriteSnapshot(ctx context.Context, runID core.RunID, state *run.State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	path := filepath.Join(s.RunDir(runID), manifestSnapshot)
	tmp := path + ".tmp"
	if err := writeFileSync(tmp, append(data, '\n')); err != nil {
		return errors.StorageError("write snapshot", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.StorageError("rename snapshot", err)
	}
	return nil
}

// ListRuns returns every run directory holding a manifest, sorted.
func (s *Store) ListRuns(ctx context.Context) ([]core.RunID, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, errors.StorageError("list runs", err)
	}
	var out []core.RunID
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.basePath, e.Name(), manifestLog)); err == nil {
			out = append(out, core.RunID(e.Name()))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
