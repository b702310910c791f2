package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConceptIDFor_PureFunctionOfKey(t *testing.T) {
	a := ConceptIDFor(HypothesisBreakout, MechanismFlow, RegimeRiskOn)
	b := ConceptIDFor(HypothesisBreakout, MechanismFlow, RegimeRiskOn)
	c := ConceptIDFor(HypothesisBreakout, MechanismFlow, RegimeRiskOff)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, string(a), "concept-breakout-")
}

func TestConcept_ValidateRejectsForeignID(t *testing.T) {
	c := Concept{
		ID:                     "concept-made-up",
		HypothesisType:         HypothesisBreakout,
		MechanismTag:           MechanismFlow,
		RegimeBias:             RegimeRiskOn,
		RecommendedEntryFamily: EntryPivotBreakout,
	}
	assert.Error(t, c.Validate())

	c.ID = ConceptIDFor(c.HypothesisType, c.MechanismTag, c.RegimeBias)
	assert.NoError(t, c.Validate())
}

func TestConcept_ConditionSet(t *testing.T) {
	c := Concept{Conditions: []string{"b", "a", "b", ""}}
	assert.Equal(t, []string{"a", "b"}, c.ConditionSet())
}

func TestTicket_Validate(t *testing.T) {
	ok := Ticket{ID: "t1", HypothesisType: HypothesisMomentum, EntryFamily: EntryPullbackReentry, PriorityScore: 55}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.PriorityScore = 101
	assert.Error(t, bad.Validate())

	bad = ok
	bad.HypothesisType = "astrology"
	assert.Error(t, bad.Validate())

	bad = ok
	bad.ID = " "
	assert.Error(t, bad.Validate())
}

func TestHint_KeyIsStable(t *testing.T) {
	h := Hint{Title: "  Gap-up follow through!  ", RegimeBias: RegimeRiskOn, MechanismTag: MechanismBehavior}
	assert.Equal(t, "hint-gap-up-follow-through", h.Key())
	assert.NoError(t, h.Validate())

	h.MechanismTag = "vibes"
	assert.Error(t, h.Validate())
}

func TestReview_Validate(t *testing.T) {
	r := Review{DraftID: "d", DraftVersion: 1, Verdict: VerdictRevise, ConfidenceScore: 40}
	assert.Error(t, r.Validate(), "REVISE without instructions")

	r.RevisionInstructions = []string{"tighten stop"}
	assert.NoError(t, r.Validate())

	r.Verdict = VerdictPass
	assert.Error(t, r.Validate(), "PASS with instructions")

	r.RevisionInstructions = nil
	assert.NoError(t, r.Validate())
}

func TestReview_HasWarnings(t *testing.T) {
	r := Review{Findings: []Finding{{Severity: SeverityInfo, Message: "ok"}}}
	assert.False(t, r.HasWarnings())
	r.Findings = append(r.Findings, Finding{Severity: SeverityWarn, Message: "thin sample"})
	assert.True(t, r.HasWarnings())
}

func TestDraft_DowngradeWritesNewVersion(t *testing.T) {
	d := Draft{
		ID: "c.core", Version: 2, Predecessor: 1, ConceptID: "c",
		Variant: VariantCore, EntryFamily: EntryPivotBreakout, ExportReadyV1: true,
		EntryConditions: []string{"close > pivot"}, Exit: ExitRule{StopLossPct: 5, TakeProfitRR: 2},
	}
	next := d.Downgrade()

	assert.Equal(t, 3, next.Version)
	assert.Equal(t, 2, next.Predecessor)
	assert.Equal(t, VariantResearchProbe, next.Variant)
	assert.False(t, next.ExportReadyV1)
	assert.NoError(t, next.Validate())

	// the reviewed version is untouched
	assert.Equal(t, VariantCore, d.Variant)
	assert.True(t, d.ExportReadyV1)

	next.EntryConditions[0] = "mutated"
	assert.Equal(t, "close > pivot", d.EntryConditions[0])
}

func TestDraft_ValidatePredecessorChain(t *testing.T) {
	d := Draft{
		ID: "c.core", Version: 3, Predecessor: 1, ConceptID: "c",
		Variant: VariantCore, EntryFamily: EntryPivotBreakout,
		EntryConditions: []string{"x"}, Exit: ExitRule{StopLossPct: 4},
	}
	assert.Error(t, d.Validate())
	d.Predecessor = 2
	assert.NoError(t, d.Validate())
}

func TestExportableFamilies(t *testing.T) {
	for _, f := range ExportableFamilies() {
		assert.True(t, f.Exportable())
	}
	assert.False(t, EntryResearchOnly.Exportable())
	assert.False(t, EntryEventWatch.Exportable())
	assert.True(t, EntryResearchOnly.Valid())
}
