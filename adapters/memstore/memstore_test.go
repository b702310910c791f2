package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypoforge/domain/core"
)

func TestCommitReplacesNestedScopes(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := core.MustArtifact(core.ArtifactReview, "r1", map[string]string{"v": "1"})

	_, err := s.Commit(ctx, "run", "review/round-00", []core.Artifact{a})
	require.NoError(t, err)
	_, err = s.Commit(ctx, "run", "review/round-01", []core.Artifact{a})
	require.NoError(t, err)
	assert.Equal(t, []string{"review/round-00", "review/round-01"}, s.Scopes("run"))

	_, err = s.Commit(ctx, "run", "review", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"review"}, s.Scopes("run"))
}

func TestLoadVerifiesHash(t *testing.T) {
	ctx := context.Background()
	s := New()
	refs, err := s.Commit(ctx, "run", "hints", []core.Artifact{core.MustArtifact(core.ArtifactHint, "h1", 1)})
	require.NoError(t, err)

	ref := refs[0]
	ref.Hash = core.NewHash([]byte("other"))
	_, err = s.Load(ctx, "run", ref)
	assert.True(t, errors.Is(err, core.ErrHashMismatch))

	ok, err := s.Exists(ctx, "run", ref)
	require.NoError(t, err)
	assert.True(t, ok)
}
