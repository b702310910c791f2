package curation

import (
	"math"
	"sort"

	"hypoforge/domain/research"
)

// SyntheticFloor is the number of synthetic tickets always allowed through,
// however few real tickets there are.
const SyntheticFloor = 3

// SyntheticLimit returns how many synthetic tickets may accompany real ones.
func SyntheticLimit(observed int, ratio float64) int {
	limit := int(math.Floor(ratio * float64(observed)))
	if limit < SyntheticFloor {
		return SyntheticFloor
	}
	return limit
}

// CapSynthetic bounds the synthetic tickets to SyntheticLimit. Excess tickets
// go lowest priority first, ties by id. Real tickets always pass and the
// survivors keep their input order.
func CapSynthetic(tickets []research.Ticket, ratio float64) ([]research.Ticket, research.VolumeReport) {
	var synthetic []research.Ticket
	observed := 0
	for _, t := range tickets {
		if t.Synthetic {
			synthetic = append(synthetic, t)
		} else {
			observed++
		}
	}

	limit := SyntheticLimit(observed, ratio)
	report := research.VolumeReport{
		RealCount:   observed,
		SyntheticIn: len(synthetic),
		Limit:       limit,
		Ratio:       ratio,
	}
	if len(synthetic) <= limit {
		report.SyntheticKept = len(synthetic)
		return append([]research.Ticket(nil), tickets...), report
	}

	sort.SliceStable(synthetic, func(i, j int) bool {
		if synthetic[i].PriorityScore != synthetic[j].PriorityScore {
			return synthetic[i].PriorityScore < synthetic[j].PriorityScore
		}
		return synthetic[i].ID < synthetic[j].ID
	})
	dropped := make(map[string]bool, len(synthetic)-limit)
	for _, t := range synthetic[:len(synthetic)-limit] {
		dropped[t.ID] = true
		report.DroppedTickets = append(report.DroppedTickets, t.ID)
	}
	sort.Strings(report.DroppedTickets)

	out := make([]research.Ticket, 0, len(tickets)-len(dropped))
	for _, t := range tickets {
		if t.Synthetic && dropped[t.ID] {
			continue
		}
		out = append(out, t)
	}
	report.SyntheticKept = limit
	return out, report
}
