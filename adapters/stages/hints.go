package stages

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/stage"
)

// mechanismFor maps a hypothesis type to the mechanism it usually rests on.
var mechanismFor = map[research.HypothesisType]research.MechanismTag{
	research.HypothesisBreakout:        research.MechanismFlow,
	research.HypothesisEarningsDrift:   research.MechanismInformation,
	research.HypothesisNewsReaction:    research.MechanismInformation,
	research.HypothesisFuturesTrigger:  research.MechanismStructure,
	research.HypothesisCalendarAnomaly: research.MechanismStructure,
	research.HypothesisMomentum:        research.MechanismBehavior,
	research.HypothesisMeanReversion:   research.MechanismBehavior,
	research.HypothesisRegimeShift:     research.MechanismUncertain,
}

// Priority bands for the regime a group of tickets leans toward.
const (
	riskOnPriority  = 60.0
	riskOffPriority = 40.0
)

// TicketHints is a hints stage that summarizes tickets into one hint per
// hypothesis type. Hints read from Path, when set, are added to the output.
type TicketHints struct {
	Path string
}

// NewTicketHints creates the hint extractor
func NewTicketHints(path string) *TicketHints {
	return &TicketHints{Path: path}
}

func (h *TicketHints) Name() stage.Name { return stage.Hints }

func (h *TicketHints) Run(ctx context.Context, in stage.Inputs, _ stage.Config) stage.Result {
	tickets, err := core.DecodeAll[research.Ticket](in.Get("tickets"), core.ArtifactTicket)
	if err != nil {
		return stage.Failed("decode tickets: %v", err)
	}

	byType := make(map[research.HypothesisType][]research.Ticket)
	for _, t := range tickets {
		byType[t.HypothesisType] = append(byType[t.HypothesisType], t)
	}
	types := make([]research.HypothesisType, 0, len(byType))
	for ht := range byType {
		types = append(types, ht)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var hints []research.Hint
	for _, ht := range types {
		hints = append(hints, summarize(ht, byType[ht]))
	}
	if h.Path != "" {
		extra, err := LoadHints(h.Path)
		if err != nil {
			return stage.Failed("%v", err)
		}
		hints = append(hints, extra...)
	}

	seen := make(map[string]bool, len(hints))
	out := make([]core.Artifact, 0, len(hints))
	for _, hint := range hints {
		if err := ctx.Err(); err != nil {
			return stage.Failed("%v", err)
		}
		if seen[hint.Key()] {
			continue
		}
		seen[hint.Key()] = true
		if hint.Source == "" {
			hint.Source = research.HintFromStage
		}
		a, err := core.NewArtifact(core.ArtifactHint, hint.Key(), hint)
		if err != nil {
			return stage.Failed("encode hint %q: %v", hint.Title, err)
		}
		out = append(out, a)
	}
	return stage.OK(out...)
}

func summarize(ht research.HypothesisType, tickets []research.Ticket) research.Hint {
	var sum float64
	families := make(map[research.EntryFamily]int)
	symbols := make(map[string]bool)
	for _, t := range tickets {
		sum += t.PriorityScore
		families[t.EntryFamily]++
		for _, s := range t.Symbols {
			symbols[s] = true
		}
	}
	mean := sum / float64(len(tickets))
	regime := research.RegimeNeutral
	switch {
	case mean >= riskOnPriority:
		regime = research.RegimeRiskOn
	case mean < riskOffPriority:
		regime = research.RegimeRiskOff
	}
	syms := make([]string, 0, len(symbols))
	for s := range symbols {
		syms = append(syms, s)
	}
	sort.Strings(syms)

	return research.Hint{
		Title:                fmt.Sprintf("%s setups", strings.ReplaceAll(string(ht), "_", " ")),
		Observation:          fmt.Sprintf("%d tickets, mean priority %.1f", len(tickets), mean),
		Symbols:              syms,
		RegimeBias:           regime,
		MechanismTag:         mechanismFor[ht],
		PreferredEntryFamily: dominantFamily(families),
		HypothesisType:       ht,
		Source:               research.HintFromStage,
	}
}

// dominantFamily returns the most frequent family, ties broken by name.
func dominantFamily(counts map[research.EntryFamily]int) research.EntryFamily {
	var best research.EntryFamily
	for f, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && f < best) {
			best = f
		}
	}
	return best
}
