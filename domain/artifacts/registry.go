package artifacts

import (
	"fmt"

	"hypoforge/domain/core"
	"hypoforge/domain/research"
)

// ArtifactSchema defines the structure of an artifact
type ArtifactSchema struct {
	Kind          core.ArtifactKind
	SchemaVersion string
	KeyFunc       func(core.Artifact) (string, error) // Stable identifier function
	ValidateFunc  func(core.Artifact) error           // Validation function
}

// Registry maps artifact kinds to their schemas
var Registry = map[core.ArtifactKind]ArtifactSchema{
	core.ArtifactTicket: {
		Kind:          core.ArtifactTicket,
		SchemaVersion: "1.0.0",
		KeyFunc:       ticketKey,
		ValidateFunc:  validateRecord[research.Ticket],
	},
	core.ArtifactHint: {
		Kind:          core.ArtifactHint,
		SchemaVersion: "1.0.0",
		KeyFunc:       hintKey,
		ValidateFunc:  validateRecord[research.Hint],
	},
	core.ArtifactConcept: {
		Kind:          core.ArtifactConcept,
		SchemaVersion: "1.0.0",
		KeyFunc:       conceptKey,
		ValidateFunc:  validateRecord[research.Concept],
	},
	core.ArtifactDraft: {
		Kind:          core.ArtifactDraft,
		SchemaVersion: "1.0.0",
		KeyFunc:       draftKey,
		ValidateFunc:  validateRecord[research.Draft],
	},
	core.ArtifactReview: {
		Kind:          core.ArtifactReview,
		SchemaVersion: "1.0.0",
		KeyFunc:       reviewKey,
		ValidateFunc:  validateRecord[research.Review],
	},
	core.ArtifactStrategy: {
		Kind:          core.ArtifactStrategy,
		SchemaVersion: "1.0.0",
		KeyFunc:       strategyKey,
		ValidateFunc:  validateStrategy,
	},
	core.ArtifactProvenance: {
		Kind:          core.ArtifactProvenance,
		SchemaVersion: "1.0.0",
		KeyFunc:       provenanceKey,
		ValidateFunc:  validateProvenance,
	},
	core.ArtifactVolumeReport: {
		Kind:          core.ArtifactVolumeReport,
		SchemaVersion: "1.0.0",
		KeyFunc:       fixedKey("volume-report"),
		ValidateFunc:  decodes[research.VolumeReport],
	},
	core.ArtifactDedupReport: {
		Kind:          core.ArtifactDedupReport,
		SchemaVersion: "1.0.0",
		KeyFunc:       fixedKey("dedup-report"),
		ValidateFunc:  decodes[research.DedupReport],
	},
}

// GetSchema returns the schema for an artifact kind
func GetSchema(kind core.ArtifactKind) (ArtifactSchema, error) {
	schema, exists := Registry[kind]
	if !exists {
		return ArtifactSchema{}, fmt.Errorf("unknown artifact kind: %s", kind)
	}
	return schema, nil
}

// ValidateArtifact validates an artifact against its schema and checks that
// its key is the one the schema derives from the payload.
func ValidateArtifact(artifact core.Artifact) error {
	schema, err := GetSchema(artifact.Kind)
	if err != nil {
		return err
	}
	if err := core.ValidateKey(artifact.Key); err != nil {
		return fmt.Errorf("%s artifact: %w", artifact.Kind, err)
	}
	if err := schema.ValidateFunc(artifact); err != nil {
		return err
	}
	key, err := schema.KeyFunc(artifact)
	if err != nil {
		return err
	}
	if key != artifact.Key {
		return fmt.Errorf("%s artifact key %q does not match payload key %q", artifact.Kind, artifact.Key, key)
	}
	return nil
}

// GetArtifactKey returns the stable key for an artifact
func GetArtifactKey(artifact core.Artifact) (string, error) {
	schema, err := GetSchema(artifact.Kind)
	if err != nil {
		return "", err
	}
	return schema.KeyFunc(artifact)
}

type validator interface {
	Validate() error
}

func validateRecord[T validator](artifact core.Artifact) error {
	var record T
	if err := artifact.Decode(&record); err != nil {
		return err
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%s artifact %s: %w", artifact.Kind, artifact.Key, err)
	}
	return nil
}

func decodes[T any](artifact core.Artifact) error {
	var record T
	return artifact.Decode(&record)
}

func fixedKey(key string) func(core.Artifact) (string, error) {
	return func(core.Artifact) (string, error) { return key, nil }
}

// Key functions for each artifact type
func ticketKey(artifact core.Artifact) (string, error) {
	var t research.Ticket
	if err := artifact.Decode(&t); err != nil {
		return "", err
	}
	return t.ID, nil
}

func hintKey(artifact core.Artifact) (string, error) {
	var h research.Hint
	if err := artifact.Decode(&h); err != nil {
		return "", err
	}
	return h.Key(), nil
}

func conceptKey(artifact core.Artifact) (string, error) {
	var c research.Concept
	if err := artifact.Decode(&c); err != nil {
		return "", err
	}
	return string(c.ID), nil
}

func draftKey(artifact core.Artifact) (string, error) {
	var d research.Draft
	if err := artifact.Decode(&d); err != nil {
		return "", err
	}
	return d.VersionKey(), nil
}

func reviewKey(artifact core.Artifact) (string, error) {
	var r research.Review
	if err := artifact.Decode(&r); err != nil {
		return "", err
	}
	return r.Key(), nil
}

func strategyKey(artifact core.Artifact) (string, error) {
	var s research.StrategySpec
	if err := artifact.Decode(&s); err != nil {
		return "", err
	}
	return string(s.CandidateID), nil
}

func provenanceKey(artifact core.Artifact) (string, error) {
	var p research.Provenance
	if err := artifact.Decode(&p); err != nil {
		return "", err
	}
	return string(p.CandidateID), nil
}

// Validation functions for each artifact type
func validateStrategy(artifact core.Artifact) error {
	var s research.StrategySpec
	if err := artifact.Decode(&s); err != nil {
		return err
	}
	if s.CandidateID == "" {
		return fmt.Errorf("strategy artifact missing candidate_id")
	}
	if !s.EntryFamily.Exportable() {
		return fmt.Errorf("strategy %s: entry_family %q is not exportable", s.CandidateID, s.EntryFamily)
	}
	return nil
}

func validateProvenance(artifact core.Artifact) error {
	var p research.Provenance
	if err := artifact.Decode(&p); err != nil {
		return err
	}
	if p.CandidateID == "" || p.DraftID == "" || p.ConceptID == "" {
		return fmt.Errorf("provenance artifact %s is incomplete", artifact.Key)
	}
	if len(p.ReviewChain) == 0 {
		return fmt.Errorf("provenance %s has an empty review chain", p.CandidateID)
	}
	return nil
}
