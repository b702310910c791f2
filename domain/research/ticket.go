package research

import (
	"fmt"
	"strings"
)

// Ticket is a candidate hypothesis unit produced by detection. Tickets are
// immutable once written.
type Ticket struct {
	ID             string         `json:"id"`
	HypothesisType HypothesisType `json:"hypothesis_type"`
	EntryFamily    EntryFamily    `json:"entry_family"`
	PriorityScore  float64        `json:"priority_score"`
	Symbols        []string       `json:"symbols,omitempty"`
	// Synthetic marks tickets generated rather than observed in market data.
	Synthetic bool `json:"synthetic,omitempty"`
}

// Validate checks the ticket contract.
func (t Ticket) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("ticket id cannot be empty")
	}
	if !t.HypothesisType.Valid() {
		return fmt.Errorf("ticket %s: unknown hypothesis_type %q", t.ID, t.HypothesisType)
	}
	if !t.EntryFamily.Valid() {
		return fmt.Errorf("ticket %s: unknown entry_family %q", t.ID, t.EntryFamily)
	}
	if t.PriorityScore < 0 || t.PriorityScore > 100 {
		return fmt.Errorf("ticket %s: priority_score %.2f outside 0..100", t.ID, t.PriorityScore)
	}
	return nil
}

// HintSource records where a hint came from.
type HintSource string

const (
	HintFromStage HintSource = "stage"
	HintFromIdea  HintSource = "idea"
)

// Hint is an observation extracted from market summaries or supplied as an idea.
type Hint struct {
	Title                string         `json:"title"`
	Observation          string         `json:"observation"`
	Symbols              []string       `json:"symbols,omitempty"`
	RegimeBias           RegimeBias     `json:"regime_bias"`
	MechanismTag         MechanismTag   `json:"mechanism_tag"`
	PreferredEntryFamily EntryFamily    `json:"preferred_entry_family,omitempty"`
	HypothesisType       HypothesisType `json:"hypothesis_type,omitempty"`
	Source               HintSource     `json:"source,omitempty"`
}

// Key returns a stable identifier for storing the hint.
func (h Hint) Key() string {
	return "hint-" + slug(h.Title)
}

// Validate checks the hint contract.
func (h Hint) Validate() error {
	if strings.TrimSpace(h.Title) == "" {
		return fmt.Errorf("hint title cannot be empty")
	}
	if !h.RegimeBias.Valid() {
		return fmt.Errorf("hint %q: unknown regime_bias %q", h.Title, h.RegimeBias)
	}
	if !h.MechanismTag.Valid() {
		return fmt.Errorf("hint %q: unknown mechanism_tag %q", h.Title, h.MechanismTag)
	}
	if h.PreferredEntryFamily != "" && !h.PreferredEntryFamily.Valid() {
		return fmt.Errorf("hint %q: unknown preferred_entry_family %q", h.Title, h.PreferredEntryFamily)
	}
	if h.HypothesisType != "" && !h.HypothesisType.Valid() {
		return fmt.Errorf("hint %q: unknown hypothesis_type %q", h.Title, h.HypothesisType)
	}
	return nil
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
