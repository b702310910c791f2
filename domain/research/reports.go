package research

// VolumeReport records what the synthetic volume cap kept and dropped.
type VolumeReport struct {
	RealCount      int      `json:"real_count"`
	SyntheticIn    int      `json:"synthetic_in"`
	SyntheticKept  int      `json:"synthetic_kept"`
	Limit          int      `json:"limit"`
	Ratio          float64  `json:"ratio"`
	DroppedTickets []string `json:"dropped_tickets,omitempty"`
}

// Merge records one concept absorbed into a surviving concept.
type Merge struct {
	Survivor ConceptID `json:"survivor"`
	Absorbed ConceptID `json:"absorbed"`
	Overlap  float64   `json:"overlap"`
}

// DedupReport records the concept set reduction performed before drafting.
type DedupReport struct {
	Enabled   bool        `json:"enabled"`
	Threshold float64     `json:"threshold"`
	InputIDs  []ConceptID `json:"input_ids"`
	Survivors []ConceptID `json:"survivors"`
	Merges    []Merge     `json:"merges,omitempty"`
}
