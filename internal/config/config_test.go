package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypoforge/internal/errors"
)

func TestDefaults(t *testing.T) {
	c := Defaults()
	assert.Equal(t, 2, c.Pipeline.IterationCeiling)
	assert.True(t, c.Pipeline.DedupEnabled)
	assert.InDelta(t, 0.75, c.Pipeline.DedupThreshold, 1e-9)
	assert.False(t, c.Pipeline.StrictExport)
	require.NoError(t, c.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hypoforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  iteration_ceiling: 4
  strict_export: true
  synthetic_ratio: 0.5
storage:
  root: /tmp/hf-runs
`), 0o644))

	t.Setenv("HYPOFORGE_ITERATION_CEILING", "3")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Pipeline.IterationCeiling, "env wins over file")
	assert.True(t, c.Pipeline.StrictExport)
	assert.InDelta(t, 0.5, c.Pipeline.SyntheticRatio, 1e-9)
	assert.Equal(t, "/tmp/hf-runs", c.Storage.Root)
	assert.InDelta(t, 0.75, c.Pipeline.DedupThreshold, 1e-9, "unset keys keep defaults")
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("HYPOFORGE_DEDUP_THRESHOLD", "1.5")
	_, err := Load("")
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestLoad_RejectsNaN(t *testing.T) {
	for _, key := range []string{"HYPOFORGE_DEDUP_THRESHOLD", "HYPOFORGE_SYNTHETIC_RATIO"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, "NaN")
			_, err := Load("")
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}

func TestPipelineHash(t *testing.T) {
	a := Defaults().Pipeline
	b := a
	b.ReviewWorkers = 16
	b.IdeasFile = "ideas.json"
	assert.Equal(t, a.Hash(), b.Hash(), "operational knobs do not change the fingerprint")

	b.StrictExport = true
	assert.NotEqual(t, a.Hash(), b.Hash())
}
