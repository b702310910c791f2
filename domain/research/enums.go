// Package research defines the records that flow through a research run:
// tickets and hints in, concepts and drafts in the middle, reviews and
// exported strategies out.
package research

// HypothesisType tags the kind of market hypothesis a ticket or concept carries.
type HypothesisType string

const (
	HypothesisBreakout        HypothesisType = "breakout"
	HypothesisEarningsDrift   HypothesisType = "earnings_drift"
	HypothesisNewsReaction    HypothesisType = "news_reaction"
	HypothesisFuturesTrigger  HypothesisType = "futures_trigger"
	HypothesisCalendarAnomaly HypothesisType = "calendar_anomaly"
	HypothesisMomentum        HypothesisType = "momentum_continuation"
	HypothesisMeanReversion   HypothesisType = "mean_reversion"
	HypothesisRegimeShift     HypothesisType = "regime_shift"
)

var hypothesisTypes = map[HypothesisType]bool{
	HypothesisBreakout: true, HypothesisEarningsDrift: true, HypothesisNewsReaction: true,
	HypothesisFuturesTrigger: true, HypothesisCalendarAnomaly: true, HypothesisMomentum: true,
	HypothesisMeanReversion: true, HypothesisRegimeShift: true,
}

// Valid reports whether h belongs to the closed set.
func (h HypothesisType) Valid() bool { return hypothesisTypes[h] }

// EntryFamily determines how a strategy enters and whether it can be exported.
type EntryFamily string

const (
	EntryPivotBreakout     EntryFamily = "pivot_breakout"
	EntryGapUpContinuation EntryFamily = "gap_up_continuation"
	EntryPullbackReentry   EntryFamily = "pullback_reentry"
	EntryResearchOnly      EntryFamily = "research_only"
	EntryEventWatch        EntryFamily = "event_watch"
)

var entryFamilies = map[EntryFamily]bool{
	EntryPivotBreakout: true, EntryGapUpContinuation: true, EntryPullbackReentry: true,
	EntryResearchOnly: true, EntryEventWatch: true,
}

// exportableFamilies is the fixed allow-list of entry families the downstream
// execution system can run. Research-only families are never on it.
var exportableFamilies = map[EntryFamily]bool{
	EntryPivotBreakout:     true,
	EntryGapUpContinuation: true,
	EntryPullbackReentry:   true,
}

// Valid reports whether f belongs to the closed set.
func (f EntryFamily) Valid() bool { return entryFamilies[f] }

// Exportable reports whether f is on the export allow-list.
func (f EntryFamily) Exportable() bool { return exportableFamilies[f] }

// ExportableFamilies returns the allow-list in a stable order.
func ExportableFamilies() []EntryFamily {
	return []EntryFamily{EntryPivotBreakout, EntryGapUpContinuation, EntryPullbackReentry}
}

// RegimeBias is the market regime a hint or concept leans toward.
type RegimeBias string

const (
	RegimeRiskOn  RegimeBias = "risk_on"
	RegimeRiskOff RegimeBias = "risk_off"
	RegimeNeutral RegimeBias = "neutral"
)

// Valid reports whether r belongs to the closed set.
func (r RegimeBias) Valid() bool {
	return r == RegimeRiskOn || r == RegimeRiskOff || r == RegimeNeutral
}

// MechanismTag names the causal mechanism behind an observation.
type MechanismTag string

const (
	MechanismBehavior    MechanismTag = "behavior"
	MechanismFlow        MechanismTag = "flow"
	MechanismStructure   MechanismTag = "structure"
	MechanismInformation MechanismTag = "information"
	MechanismUncertain   MechanismTag = "uncertain"
)

// Valid reports whether m belongs to the closed set.
func (m MechanismTag) Valid() bool {
	switch m {
	case MechanismBehavior, MechanismFlow, MechanismStructure, MechanismInformation, MechanismUncertain:
		return true
	}
	return false
}

// Variant distinguishes the strategy drafts derived from one concept.
type Variant string

const (
	VariantCore          Variant = "core"
	VariantConservative  Variant = "conservative"
	VariantResearchProbe Variant = "research_probe"
)

// Valid reports whether v belongs to the closed set.
func (v Variant) Valid() bool {
	return v == VariantCore || v == VariantConservative || v == VariantResearchProbe
}

// Verdict is the outcome of reviewing one draft version.
type Verdict string

const (
	VerdictPass   Verdict = "PASS"
	VerdictRevise Verdict = "REVISE"
	VerdictReject Verdict = "REJECT"
)

// Valid reports whether v belongs to the closed set.
func (v Verdict) Valid() bool {
	return v == VerdictPass || v == VerdictRevise || v == VerdictReject
}

// Severity grades a review finding.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)
