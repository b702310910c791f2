package core

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// ArtifactKind defines types of artifacts
type ArtifactKind string

const (
	ArtifactTicket  ArtifactKind = "ticket"
	ArtifactHint    ArtifactKind = "hint"
	ArtifactConcept ArtifactKind = "concept"
	ArtifactDraft   ArtifactKind = "draft"
	ArtifactReview  ArtifactKind = "review"
	// ArtifactStrategy is the exported strategy specification.
	ArtifactStrategy ArtifactKind = "strategy"
	// ArtifactProvenance records the concept/draft/review chain behind an export.
	ArtifactProvenance ArtifactKind = "provenance"
	// ArtifactVolumeReport captures what the synthetic volume cap dropped.
	ArtifactVolumeReport ArtifactKind = "volume_report"
	// ArtifactDedupReport captures which concepts were merged before drafting.
	ArtifactDedupReport ArtifactKind = "dedup_report"
)

// Artifact is one typed record exchanged between stages. Payload is kept as
// raw JSON so a stage's output is stored byte-for-byte as produced.
type Artifact struct {
	Kind    ArtifactKind    `json:"kind"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

// NewArtifact marshals v into an artifact payload.
func NewArtifact(kind ArtifactKind, key string, v any) (Artifact, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Artifact{}, fmt.Errorf("encode %s artifact %s: %w", kind, key, err)
	}
	return Artifact{Kind: kind, Key: key, Payload: data}, nil
}

// MustArtifact is NewArtifact for payloads that cannot fail to marshal.
func MustArtifact(kind ArtifactKind, key string, v any) Artifact {
	a, err := NewArtifact(kind, key, v)
	if err != nil {
		panic(err)
	}
	return a
}

// Decode unmarshals the payload into v.
func (a Artifact) Decode(v any) error {
	if len(a.Payload) == 0 {
		return fmt.Errorf("%s artifact %s has empty payload", a.Kind, a.Key)
	}
	if err := json.Unmarshal(a.Payload, v); err != nil {
		return fmt.Errorf("decode %s artifact %s: %w", a.Kind, a.Key, err)
	}
	return nil
}

// Fingerprint hashes kind, key and payload.
func (a Artifact) Fingerprint() Hash {
	return HashParts(string(a.Kind), a.Key, string(a.Payload))
}

// DecodeAll decodes every artifact of the requested kind into T, preserving order.
func DecodeAll[T any](artifacts []Artifact, kind ArtifactKind) ([]T, error) {
	out := make([]T, 0, len(artifacts))
	for _, a := range artifacts {
		if a.Kind != kind {
			continue
		}
		var v T
		if err := a.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// FilterKind returns the artifacts of one kind, preserving order.
func FilterKind(artifacts []Artifact, kind ArtifactKind) []Artifact {
	var out []Artifact
	for _, a := range artifacts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// ArtifactRef addresses a stored artifact within a run.
type ArtifactRef struct {
	Scope string       `json:"scope"`
	Kind  ArtifactKind `json:"kind"`
	Key   string       `json:"key"`
	Hash  Hash         `json:"hash,omitempty"`
}

// Path returns the slash-separated logical location of the artifact within its run.
func (r ArtifactRef) Path() string {
	return path.Join(r.Scope, string(r.Kind), r.Key+".json")
}

// String renders the reference for logs and error messages.
func (r ArtifactRef) String() string {
	return r.Path()
}

// ValidateKey rejects keys that would escape their scope directory.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("artifact key cannot be empty")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("artifact key %q contains path separators", key)
	}
	return nil
}

// ValidateScope rejects scopes that are absolute or contain parent references.
func ValidateScope(scope string) error {
	if strings.TrimSpace(scope) == "" {
		return fmt.Errorf("artifact scope cannot be empty")
	}
	if strings.HasPrefix(scope, "/") || strings.Contains(scope, `\`) {
		return fmt.Errorf("artifact scope %q must be relative", scope)
	}
	for _, part := range strings.Split(scope, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("artifact scope %q has an invalid segment", scope)
		}
	}
	return nil
}
