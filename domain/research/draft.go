package research

import (
	"fmt"
	"strings"
)

// DraftID identifies a draft lineage. Every version of a draft shares it.
type DraftID string

// DraftIDFor derives the draft identifier from its concept and variant.
func DraftIDFor(concept ConceptID, variant Variant) DraftID {
	return DraftID(fmt.Sprintf("%s.%s", concept, variant))
}

// ExitRule defines how a position is closed.
type ExitRule struct {
	StopLossPct  float64 `json:"stop_loss_pct"`
	TakeProfitRR float64 `json:"take_profit_rr"`
}

// RiskParams bounds exposure for a strategy.
type RiskParams struct {
	RiskPerTradePct float64 `json:"risk_per_trade_pct"`
	MaxPositions    int     `json:"max_positions"`
}

// Draft is one immutable version of a strategy candidate derived from exactly
// one concept. Revisions are new versions pointing back at their predecessor.
type Draft struct {
	ID              DraftID     `json:"id"`
	Version         int         `json:"version"`
	Predecessor     int         `json:"predecessor,omitempty"`
	ConceptID       ConceptID   `json:"concept_id"`
	Variant         Variant     `json:"variant"`
	EntryFamily     EntryFamily `json:"entry_family"`
	ExportReadyV1   bool        `json:"export_ready_v1"`
	EntryConditions []string    `json:"entry_conditions"`
	TrendFilters    []string    `json:"trend_filters,omitempty"`
	Exit            ExitRule    `json:"exit"`
	Risk            RiskParams  `json:"risk"`
	// AppliedInstructions lists the revision instructions this version answers.
	AppliedInstructions []string `json:"applied_instructions,omitempty"`
}

// VersionKey is the storage key of this draft version.
func (d Draft) VersionKey() string {
	return VersionKey(d.ID, d.Version)
}

// VersionKey formats the storage key for a draft version.
func VersionKey(id DraftID, version int) string {
	return fmt.Sprintf("%s@v%d", id, version)
}

// Validate checks the draft contract.
func (d Draft) Validate() error {
	if strings.TrimSpace(string(d.ID)) == "" {
		return fmt.Errorf("draft id cannot be empty")
	}
	if d.ConceptID == "" {
		return fmt.Errorf("draft %s: concept_id cannot be empty", d.ID)
	}
	if d.Version < 1 {
		return fmt.Errorf("draft %s: version must be >= 1, got %d", d.ID, d.Version)
	}
	if d.Version > 1 && d.Predecessor != d.Version-1 {
		return fmt.Errorf("draft %s: version %d must point at predecessor %d", d.ID, d.Version, d.Version-1)
	}
	if !d.Variant.Valid() {
		return fmt.Errorf("draft %s: unknown variant %q", d.ID, d.Variant)
	}
	if !d.EntryFamily.Valid() {
		return fmt.Errorf("draft %s: unknown entry_family %q", d.ID, d.EntryFamily)
	}
	if len(d.EntryConditions) == 0 {
		return fmt.Errorf("draft %s: entry_conditions cannot be empty", d.ID)
	}
	if d.Exit.StopLossPct <= 0 {
		return fmt.Errorf("draft %s: stop_loss_pct must be positive", d.ID)
	}
	return nil
}

// Downgrade returns the next version of d marked as a research probe that is
// not export-ready. d itself is left untouched.
func (d Draft) Downgrade() Draft {
	next := d.clone()
	next.Version = d.Version + 1
	next.Predecessor = d.Version
	next.Variant = VariantResearchProbe
	next.ExportReadyV1 = false
	next.AppliedInstructions = nil
	return next
}

func (d Draft) clone() Draft {
	out := d
	out.EntryConditions = append([]string(nil), d.EntryConditions...)
	out.TrendFilters = append([]string(nil), d.TrendFilters...)
	out.AppliedInstructions = append([]string(nil), d.AppliedInstructions...)
	return out
}
