package stage

import (
	"encoding/json"
	"fmt"
	"strings"

	"hypoforge/domain/core"
)

// Name represents a named stage in the pipeline
type Name string

// Predefined stage names, in pipeline order
const (
	Detection Name = "detection"
	Hints     Name = "hints"
	Concepts  Name = "concepts"
	Drafts    Name = "drafts"
	Review    Name = "review"
	Export    Name = "export"
)

var pipelineOrder = []Name{Detection, Hints, Concepts, Drafts, Review, Export}

// Order returns the stage names in pipeline order.
func Order() []Name {
	out := make([]Name, len(pipelineOrder))
	copy(out, pipelineOrder)
	return out
}

// Index returns the position of n in the pipeline, or -1 if unknown.
func (n Name) Index() int {
	for i, name := range pipelineOrder {
		if name == n {
			return i
		}
	}
	return -1
}

// Valid reports whether n is a known stage.
func (n Name) Valid() bool { return n.Index() >= 0 }

// Before returns every stage strictly before n.
func (n Name) Before() []Name {
	idx := n.Index()
	if idx <= 0 {
		return nil
	}
	return Order()[:idx]
}

// From returns n and every stage after it.
func (n Name) From() []Name {
	idx := n.Index()
	if idx < 0 {
		return nil
	}
	return Order()[idx:]
}

// ParseName parses a stage name.
func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	if !n.Valid() {
		return "", fmt.Errorf("unknown stage %q (want one of %v)", s, pipelineOrder)
	}
	return n, nil
}

// Status is the terminal signal of one stage invocation.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Inputs are the named artifact sets handed to a stage.
type Inputs map[string][]core.Artifact

// Get returns the artifacts bound to name.
func (in Inputs) Get(name string) []core.Artifact {
	return in[name]
}

// Clone returns a shallow copy whose slices can be replaced independently.
func (in Inputs) Clone() Inputs {
	out := make(Inputs, len(in))
	for k, v := range in {
		out[k] = append([]core.Artifact(nil), v...)
	}
	return out
}

// Config carries per-invocation configuration to a stage.
type Config struct {
	RunID  core.RunID     `json:"run_id"`
	Mode   string         `json:"mode,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Param returns a string parameter or the empty string.
func (c Config) Param(key string) string {
	if v, ok := c.Params[key].(string); ok {
		return v
	}
	return ""
}

// IntParam returns an integer parameter or zero.
func (c Config) IntParam(key string) int {
	switch v := c.Params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Result represents the output of a stage execution.
// CONTRACT: a stage either succeeds with all of its outputs or fails with a reason.
type Result struct {
	Status  Status          `json:"status"`
	Reason  string          `json:"reason,omitempty"`
	Outputs []core.Artifact `json:"outputs,omitempty"`
}

// OK builds a successful result.
func OK(outputs ...core.Artifact) Result {
	return Result{Status: StatusOK, Outputs: outputs}
}

// Failed builds a failed result with a human-readable reason.
func Failed(format string, args ...any) Result {
	return Result{Status: StatusFailed, Reason: fmt.Sprintf(format, args...)}
}

// Succeeded reports whether the stage returned ok.
func (r Result) Succeeded() bool {
	return r.Status == StatusOK
}

// Requirement declares one input a stage needs: the artifacts of Kind produced
// by stage From, bound to Name.
type Requirement struct {
	Name     string            `json:"name"`
	From     Name              `json:"from"`
	Kind     core.ArtifactKind `json:"kind"`
	Optional bool              `json:"optional,omitempty"`
}

// Plan represents the ordered list of stages a run will execute.
type Plan struct {
	Stages []Name `json:"stages"`
}

// NewPlan builds the plan that starts at from and runs to the end of the pipeline.
func NewPlan(from Name) *Plan {
	return &Plan{Stages: from.From()}
}

// Without returns a copy of the plan with the named stages removed.
func (p *Plan) Without(names ...Name) *Plan {
	skip := make(map[Name]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	out := &Plan{}
	for _, n := range p.Stages {
		if !skip[n] {
			out.Stages = append(out.Stages, n)
		}
	}
	return out
}

// Includes reports whether n is part of the plan.
func (p *Plan) Includes(n Name) bool {
	for _, s := range p.Stages {
		if s == n {
			return true
		}
	}
	return false
}

// Hash computes a deterministic hash of the stage plan
func (p *Plan) Hash() core.Hash {
	data, _ := json.Marshal(p.Stages)
	return core.NewHash(data)
}

// Validate checks if the stage plan is valid
func (p *Plan) Validate() error {
	if len(p.Stages) == 0 {
		return core.NewValidationError("stage_plan", "must contain at least one stage")
	}

	seen := make(map[Name]bool)
	last := -1
	for _, s := range p.Stages {
		if !s.Valid() {
			return core.NewValidationError("stage", "unknown stage name: "+string(s))
		}
		if seen[s] {
			return core.NewValidationError("stage", "duplicate stage name: "+string(s))
		}
		if s.Index() < last {
			return core.NewValidationError("stage", "stage out of pipeline order: "+string(s))
		}
		seen[s] = true
		last = s.Index()
	}

	return nil
}
