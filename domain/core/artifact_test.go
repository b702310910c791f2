package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func TestDecodeAll_FiltersByKindAndKeepsOrder(t *testing.T) {
	artifacts := []Artifact{
		MustArtifact(ArtifactTicket, "b", sample{Name: "b", Score: 2}),
		MustArtifact(ArtifactHint, "h", sample{Name: "hint"}),
		MustArtifact(ArtifactTicket, "a", sample{Name: "a", Score: 1}),
	}

	got, err := DecodeAll[sample](artifacts, ArtifactTicket)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Name)
	assert.Equal(t, "a", got[1].Name)
}

func TestArtifact_DecodeEmptyPayload(t *testing.T) {
	var s sample
	err := Artifact{Kind: ArtifactTicket, Key: "x"}.Decode(&s)
	assert.Error(t, err)
}

func TestArtifactRef_Path(t *testing.T) {
	ref := ArtifactRef{Scope: "review/round-01", Kind: ArtifactReview, Key: "d1-v2"}
	assert.Equal(t, "review/round-01/review/d1-v2.json", ref.Path())
}

func TestValidateScopeAndKey(t *testing.T) {
	assert.NoError(t, ValidateScope("export/cand-1"))
	assert.Error(t, ValidateScope("../x"))
	assert.Error(t, ValidateScope("/abs"))
	assert.Error(t, ValidateScope("a//b"))
	assert.Error(t, ValidateScope(""))

	assert.NoError(t, ValidateKey("ticket-1"))
	assert.Error(t, ValidateKey("a/b"))
	assert.Error(t, ValidateKey(" "))
}

func TestArtifact_FingerprintChangesWithPayload(t *testing.T) {
	a := MustArtifact(ArtifactTicket, "k", sample{Score: 1})
	b := MustArtifact(ArtifactTicket, "k", sample{Score: 2})
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, a.Fingerprint(), MustArtifact(ArtifactTicket, "k", sample{Score: 1}).Fingerprint())
}
