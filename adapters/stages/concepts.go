package stages

import (
	"context"
	"sort"

	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/stage"
)

// familyConditions are the normalized entry conditions of each entry family.
var familyConditions = map[research.EntryFamily][]string{
	research.EntryPivotBreakout:     {"close_above_pivot", "volume_above_avg", "range_expansion"},
	research.EntryGapUpContinuation: {"gap_up_open", "volume_above_avg", "holds_opening_range"},
	research.EntryPullbackReentry:   {"trend_intact", "pullback_to_ma", "volume_contraction"},
	research.EntryResearchOnly:      {"observation_window"},
	research.EntryEventWatch:        {"event_scheduled", "observation_window"},
}

// ConceptSynthesizer groups tickets and hints into concepts keyed by
// (hypothesis type, mechanism, regime).
type ConceptSynthesizer struct{}

// NewConceptSynthesizer creates the concepts stage
func NewConceptSynthesizer() *ConceptSynthesizer {
	return &ConceptSynthesizer{}
}

func (s *ConceptSynthesizer) Name() stage.Name { return stage.Concepts }

type conceptKey struct {
	ht     research.HypothesisType
	mech   research.MechanismTag
	regime research.RegimeBias
}

func (s *ConceptSynthesizer) Run(ctx context.Context, in stage.Inputs, _ stage.Config) stage.Result {
	tickets, err := core.DecodeAll[research.Ticket](in.Get("tickets"), core.ArtifactTicket)
	if err != nil {
		return stage.Failed("decode tickets: %v", err)
	}
	hints, err := core.DecodeAll[research.Hint](in.Get("hints"), core.ArtifactHint)
	if err != nil {
		return stage.Failed("decode hints: %v", err)
	}
	if len(tickets) == 0 {
		return stage.Failed("no tickets to synthesize concepts from")
	}
	sort.Slice(hints, func(i, j int) bool { return hints[i].Key() < hints[j].Key() })

	byType := make(map[research.HypothesisType][]research.Ticket)
	for _, t := range tickets {
		byType[t.HypothesisType] = append(byType[t.HypothesisType], t)
	}
	types := make([]research.HypothesisType, 0, len(byType))
	for ht := range byType {
		types = append(types, ht)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var order []conceptKey
	groups := make(map[conceptKey]*research.Concept)
	add := func(k conceptKey, family research.EntryFamily, hintKey string) {
		c, ok := groups[k]
		if !ok {
			c = &research.Concept{
				ID:                     research.ConceptIDFor(k.ht, k.mech, k.regime),
				HypothesisType:         k.ht,
				MechanismTag:           k.mech,
				RegimeBias:             k.regime,
				RecommendedEntryFamily: family,
				ExportReadyV1:          family.Exportable(),
				Conditions:             conditionsFor(k, family),
			}
			for _, t := range byType[k.ht] {
				c.TicketIDs = append(c.TicketIDs, t.ID)
			}
			sort.Strings(c.TicketIDs)
			groups[k] = c
			order = append(order, k)
		}
		if hintKey != "" {
			c.HintKeys = append(c.HintKeys, hintKey)
		}
	}

	for _, ht := range types {
		matched := false
		for _, h := range hints {
			if !hintApplies(h, ht) {
				continue
			}
			family := h.PreferredEntryFamily
			if family == "" {
				family = ticketFamily(byType[ht])
			}
			add(conceptKey{ht, h.MechanismTag, h.RegimeBias}, family, h.Key())
			matched = true
		}
		if !matched {
			add(conceptKey{ht, mechanismFor[ht], research.RegimeNeutral}, ticketFamily(byType[ht]), "")
		}
	}

	out := make([]core.Artifact, 0, len(order))
	for i, k := range order {
		if err := ctx.Err(); err != nil {
			return stage.Failed("%v", err)
		}
		c := groups[k]
		c.CreatedOrder = i
		a, err := core.NewArtifact(core.ArtifactConcept, string(c.ID), c)
		if err != nil {
			return stage.Failed("encode concept %s: %v", c.ID, err)
		}
		out = append(out, a)
	}
	return stage.OK(out...)
}

// hintApplies reports whether h speaks to tickets of type ht. Untyped hints
// apply wherever their mechanism is the type's usual one.
func hintApplies(h research.Hint, ht research.HypothesisType) bool {
	if h.HypothesisType != "" {
		return h.HypothesisType == ht
	}
	return mechanismFor[ht] == h.MechanismTag
}

func ticketFamily(tickets []research.Ticket) research.EntryFamily {
	counts := make(map[research.EntryFamily]int)
	for _, t := range tickets {
		counts[t.EntryFamily]++
	}
	return dominantFamily(counts)
}

func conditionsFor(k conceptKey, family research.EntryFamily) []string {
	conds := append([]string(nil), familyConditions[family]...)
	return append(conds,
		"type:"+string(k.ht),
		"mechanism:"+string(k.mech),
		"regime:"+string(k.regime),
	)
}
