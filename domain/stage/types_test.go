package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName_BeforeAndFrom(t *testing.T) {
	assert.Nil(t, Detection.Before())
	assert.Equal(t, []Name{Detection, Hints}, Concepts.Before())
	assert.Equal(t, []Name{Review, Export}, Review.From())
	assert.Nil(t, Name("nope").From())
}

func TestParseName(t *testing.T) {
	n, err := ParseName(" Drafts ")
	require.NoError(t, err)
	assert.Equal(t, Drafts, n)

	_, err = ParseName("deploy")
	assert.Error(t, err)
}

func TestPlan_ValidateAndHash(t *testing.T) {
	full := NewPlan(Detection)
	require.NoError(t, full.Validate())
	assert.Len(t, full.Stages, 6)

	resumed := NewPlan(Concepts)
	require.NoError(t, resumed.Validate())
	assert.NotEqual(t, full.Hash(), resumed.Hash())
	assert.Equal(t, full.Hash(), NewPlan(Detection).Hash())

	bad := &Plan{Stages: []Name{Review, Drafts}}
	assert.Error(t, bad.Validate())

	dup := &Plan{Stages: []Name{Drafts, Drafts}}
	assert.Error(t, dup.Validate())

	assert.Error(t, (&Plan{}).Validate())
}

func TestPlan_Without(t *testing.T) {
	p := NewPlan(Detection).Without(Export)
	assert.False(t, p.Includes(Export))
	assert.True(t, p.Includes(Review))
}

func TestResultHelpers(t *testing.T) {
	assert.True(t, OK().Succeeded())
	failed := Failed("missing %s", "feed")
	assert.False(t, failed.Succeeded())
	assert.Equal(t, "missing feed", failed.Reason)
}

func TestConfig_Params(t *testing.T) {
	cfg := Config{Params: map[string]any{"candidate_id": "c1", "iteration": 2, "decoded": float64(3)}}
	assert.Equal(t, "c1", cfg.Param("candidate_id"))
	assert.Equal(t, "", cfg.Param("iteration"))
	assert.Equal(t, 2, cfg.IntParam("iteration"))
	assert.Equal(t, 3, cfg.IntParam("decoded"))
	assert.Equal(t, 0, cfg.IntParam("missing"))
}
