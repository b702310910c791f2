package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hypoforge/domain/core"
	"hypoforge/internal/errors"
)

const stagingDir = ".staging"

// Store keeps run manifests and artifacts on the local filesystem:
//
//	<root>/<run>/manifest.jsonl           append-only event log
//	<root>/<run>/manifest.json            derived state snapshot
//	<root>/<run>/<scope>/<kind>/<key>.json artifact payloads
type Store struct {
	basePath string
}

// New creates a store rooted at basePath
func New(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// Root returns the base directory.
func (s *Store) Root() string { return s.basePath }

// RunDir returns the directory holding one run.
func (s *Store) RunDir(runID core.RunID) string {
	return filepath.Join(s.basePath, string(runID))
}

// Commit writes artifacts into a staging directory, then swaps it in for
// scope with a rename. A crash leaves either the previous contents, nothing,
// or the complete new set, never a partial one.
func (s *Store) Commit(ctx context.Context, runID core.RunID, scope string, artifacts []core.Artifact) ([]core.ArtifactRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := core.ParseRunID(string(runID)); err != nil {
		return nil, errors.StorageError("commit", err)
	}
	if err := core.ValidateScope(scope); err != nil {
		return nil, errors.StorageError("commit", err)
	}

	runDir := s.RunDir(runID)
	if err := os.MkdirAll(filepath.Join(runDir, stagingDir), 0o755); err != nil {
		return nil, errors.StorageError("create staging", err)
	}
	staging, err := os.MkdirTemp(filepath.Join(runDir, stagingDir), "commit-")
	if err != nil {
		return nil, errors.StorageError("create staging", err)
	}
	defer os.RemoveAll(staging)

	refs := make([]core.ArtifactRef, 0, len(artifacts))
	seen := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		if err := core.ValidateKey(a.Key); err != nil {
			return nil, errors.StorageError("commit", err)
		}
		ref := core.ArtifactRef{Scope: scope, Kind: a.Kind, Key: a.Key, Hash: a.Fingerprint()}
		rel := filepath.Join(string(a.Kind), a.Key+".json")
		if seen[rel] {
			return nil, errors.StorageError("commit", fmt.Errorf("duplicate artifact %s in scope %s", rel, scope))
		}
		seen[rel] = true
		if err := writeFileSync(filepath.Join(staging, rel), a.Payload); err != nil {
			return nil, errors.StorageError("write "+ref.Path(), err)
		}
		refs = append(refs, ref)
	}

	target := filepath.Join(runDir, filepath.FromSlash(scope))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, errors.StorageError("create scope parent", err)
	}
	var retired string
	if _, err := os.Stat(target); err == nil {
		retired = staging + ".old"
		if err := os.Rename(target, retired); err != nil {
			return nil, errors.StorageError("retire "+scope, err)
		}
	}
	if err := os.Rename(staging, target); err != nil {
		return nil, errors.StorageError("publish "+scope, err)
	}
	if retired != "" {
		if err := os.RemoveAll(retired); err != nil {
			return nil, errors.StorageError("remove retired "+scope, err)
		}
	}
	if err := syncDir(filepath.Dir(target)); err != nil {
		return nil, errors.StorageError("sync "+scope, err)
	}
	return refs, nil
}

// Load reads one artifact and verifies it against the ref's hash when set.
func (s *Store) Load(ctx context.Context, runID core.RunID, ref core.ArtifactRef) (core.Artifact, error) {
	path, err := s.refPath(runID, ref)
	if err != nil {
		return core.Artifact{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return core.Artifact{}, fmt.Errorf("%w: %s/%s", core.ErrArtifactNotFound, runID, ref.Path())
		}
		return core.Artifact{}, errors.StorageError("read "+ref.Path(), err)
	}
	a := core.Artifact{Kind: ref.Kind, Key: ref.Key, Payload: data}
	if !ref.Hash.IsEmpty() && a.Fingerprint() != ref.Hash {
		return core.Artifact{}, fmt.Errorf("%w: %s/%s", core.ErrHashMismatch, runID, ref.Path())
	}
	return a, nil
}

// Exists checks whether the artifact file is present
func (s *Store) Exists(ctx context.Context, runID core.RunID, ref core.ArtifactRef) (bool, error) {
	path, err := s.refPath(runID, ref)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.StorageError("stat "+ref.Path(), err)
}

// List returns every artifact stored directly under scope
func (s *Store) List(ctx context.Context, runID core.RunID, scope string) ([]core.ArtifactRef, error) {
	if err := core.ValidateScope(scope); err != nil {
		return nil, errors.StorageError("list", err)
	}
	dir := filepath.Join(s.RunDir(runID), filepath.FromSlash(scope))
	kinds, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.StorageError("list "+scope, err)
	}

	var refs []core.ArtifactRef
	for _, kindDir := range kinds {
		kind := core.ArtifactKind(kindDir.Name())
		if !kindDir.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(dir, kindDir.Name()))
		if err != nil {
			return nil, errors.StorageError("list "+scope, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			ref := core.ArtifactRef{Scope: scope, Kind: kind, Key: strings.TrimSuffix(e.Name(), ".json")}
			a, err := s.Load(ctx, runID, ref)
			if err != nil {
				return nil, err
			}
			ref.Hash = a.Fingerprint()
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind < refs[j].Kind
		}
		return refs[i].Key < refs[j].Key
	})
	return refs, nil
}

func (s *Store) refPath(runID core.RunID, ref core.ArtifactRef) (string, error) {
	if err := core.ValidateScope(ref.Scope); err != nil {
		return "", errors.StorageError("resolve ref", err)
	}
	if err := core.ValidateKey(ref.Key); err != nil {
		return "", errors.StorageError("resolve ref", err)
	}
	return filepath.Join(s.RunDir(runID), filepath.FromSlash(ref.Path())), nil
}

func writeFileSync(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Some filesystems refuse fsync on directories; the rename already happened.
	_ = d.Sync()
	return nil
}
