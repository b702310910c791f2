package app

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"hypoforge/domain/core"
	"hypoforge/domain/research"
	"hypoforge/domain/run"
	"hypoforge/domain/stage"
	"hypoforge/internal"
	"hypoforge/ports"
)

// Stage modes the loop invokes collaborators with.
const (
	ModeReview = "review"
	ModeRevise = "revise"
)

// RoundScope is the artifact scope holding one loop round's reviews and the
// draft versions it produced.
func RoundScope(round int) string {
	return fmt.Sprintf("%s/round-%02d", stage.Review, round)
}

// LoopConfig bounds the feedback loop.
type LoopConfig struct {
	// Ceiling is the number of rounds in which a REVISE verdict may still be
	// answered with a revision. A REVISE in any later round downgrades.
	Ceiling int
	Workers int
}

// LoopController drives drafts through review until every one is passed,
// rejected or downgraded.
type LoopController struct {
	store    ports.ArtifactStore
	recorder *ManifestRecorder
	executor *Executor
	reviewer ports.Stage
	drafter  ports.Stage
	cfg      LoopConfig
	log      *internal.Logger
}

// NewLoopController wires the reviewer and the drafter (invoked in revise mode).
func NewLoopController(store ports.ArtifactStore, recorder *ManifestRecorder, executor *Executor,
	reviewer, drafter ports.Stage, cfg LoopConfig, log *internal.Logger) *LoopController {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &LoopController{
		store:    store,
		recorder: recorder,
		executor: executor,
		reviewer: reviewer,
		drafter:  drafter,
		cfg:      cfg,
		log:      log,
	}
}

// LoopOutcome is the loop's result.
type LoopOutcome struct {
	Rounds int
	Drafts []run.DraftStatus
}

type roundResult struct {
	status run.DraftStatus
	review core.Artifact
	next   *core.Artifact
}

// Run continues the loop at round start with the tracked draft lineages.
// Terminal lineages are carried through untouched. Each round's artifacts are
// committed together and followed by an iteration record, so a resumed run
// never observes half a round.
func (c *LoopController) Run(ctx context.Context, runID core.RunID, start int, tracked []run.DraftStatus) (*LoopOutcome, error) {
	statuses := make(map[research.DraftID]run.DraftStatus, len(tracked))
	ids := make([]research.DraftID, 0, len(tracked))
	for _, d := range tracked {
		statuses[d.DraftID] = d
		ids = append(ids, d.DraftID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if start == 0 {
		// Rounds left by an earlier loop over other drafts must not linger.
		if _, err := c.store.Commit(ctx, runID, string(stage.Review), nil); err != nil {
			return nil, fmt.Errorf("reset review scope: %w", err)
		}
	}

	round := start
	for ; ; round++ {
		var active []research.DraftID
		for _, id := range ids {
			if !statuses[id].State.Terminal() {
				active = append(active, id)
			}
		}
		if len(active) == 0 {
			break
		}
		c.log.Info("review round %d: %d drafts under review", round, len(active))
		results := make([]roundResult, len(active))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.cfg.Workers)
		for i, id := range active {
			i, current := i, statuses[id]
			g.Go(func() error {
				res, err := c.step(gctx, runID, round, current)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var produced []core.Artifact
		changed := make([]run.DraftStatus, 0, len(active))
		for _, res := range results {
			produced = append(produced, res.review)
			if res.next != nil {
				produced = append(produced, *res.next)
			}
			statuses[res.status.DraftID] = res.status
			changed = append(changed, res.status)
		}
		refs, err := c.store.Commit(ctx, runID, RoundScope(round), produced)
		if err != nil {
			return nil, fmt.Errorf("commit round %d: %w", round, err)
		}
		if _, err := c.recorder.Append(ctx, run.Event{
			Type:      run.EventIterationCompleted,
			Iteration: &run.IterationRecord{Iteration: round, Drafts: changed, Outputs: refs},
		}); err != nil {
			return nil, err
		}
	}

	out := &LoopOutcome{Rounds: round}
	for _, id := range ids {
		out.Drafts = append(out.Drafts, statuses[id])
	}
	return out, nil
}

// step reviews one draft version and applies the verdict. It runs on a pool
// worker; its only shared write is the review record sent to the recorder.
func (c *LoopController) step(ctx context.Context, runID core.RunID, round int, status run.DraftStatus) (roundResult, error) {
	draftArt, err := c.store.Load(ctx, runID, status.Ref)
	if err != nil {
		return roundResult{}, core.NewContractError(string(stage.Review), fmt.Sprintf("draft %s: %v", status.DraftID, err))
	}
	var draft research.Draft
	if err := draftArt.Decode(&draft); err != nil {
		return roundResult{}, core.NewContractError(string(stage.Review), err.Error())
	}
	if status.Rounds > c.cfg.Ceiling {
		return roundResult{}, fmt.Errorf("draft %s still active after %d reviews (ceiling %d)", draft.ID, status.Rounds, c.cfg.Ceiling)
	}
	status.State = run.DraftUnderReview

	cfg := stage.Config{RunID: runID, Mode: ModeReview, Params: map[string]any{"iteration": round}}
	outputs, err := c.executor.Invoke(ctx, c.reviewer, stage.Inputs{"draft": {draftArt}}, cfg, core.ArtifactReview)
	if err != nil {
		return roundResult{}, err
	}
	reviewArt, review, err := singleReview(outputs, draft, round)
	if err != nil {
		return roundResult{}, err
	}

	record := run.ReviewRecord{
		DraftID:      draft.ID,
		DraftVersion: draft.Version,
		Iteration:    round,
		Verdict:      review.Verdict,
		Confidence:   review.ConfidenceScore,
		Warned:       review.HasWarnings(),
		Ref:          refIn(RoundScope(round), reviewArt),
	}
	if _, err := c.recorder.Append(ctx, run.Event{Type: run.EventReviewRecorded, Review: &record}); err != nil {
		return roundResult{}, err
	}

	status.LastVerdict = review.Verdict
	status.Rounds++
	res := roundResult{review: reviewArt}

	switch review.Verdict {
	case research.VerdictPass:
		status.State = run.DraftPassed
	case research.VerdictReject:
		status.State = run.DraftRejected
	case research.VerdictRevise:
		var next core.Artifact
		if round+1 < c.cfg.Ceiling {
			next, err = c.revise(ctx, runID, round, draft, draftArt, reviewArt)
			if err != nil {
				return roundResult{}, err
			}
			status.State = run.DraftRevised
			status.Version = draft.Version + 1
		} else {
			downgraded := draft.Downgrade()
			next, err = core.NewArtifact(core.ArtifactDraft, downgraded.VersionKey(), downgraded)
			if err != nil {
				return roundResult{}, err
			}
			status.State = run.DraftDowngraded
			status.Version = downgraded.Version
			c.log.Info("draft %s downgraded to %s after %d rounds", draft.ID, research.VariantResearchProbe, status.Rounds)
		}
		status.Ref = refIn(RoundScope(round), next)
		res.next = &next
	}
	res.status = status
	return res, nil
}

// revise asks the drafter for the next version of draft. The new version
// must continue the same lineage.
func (c *LoopController) revise(ctx context.Context, runID core.RunID, round int, draft research.Draft, draftArt, reviewArt core.Artifact) (core.Artifact, error) {
	cfg := stage.Config{RunID: runID, Mode: ModeRevise, Params: map[string]any{"iteration": round}}
	inputs := stage.Inputs{"draft": {draftArt}, "review": {reviewArt}}
	outputs, err := c.executor.Invoke(ctx, c.drafter, inputs, cfg, core.ArtifactDraft)
	if err != nil {
		return core.Artifact{}, err
	}
	if len(outputs) != 1 {
		return core.Artifact{}, core.NewContractError(string(stage.Drafts),
			fmt.Sprintf("revise of %s returned %d drafts, want 1", draft.ID, len(outputs)))
	}
	var next research.Draft
	if err := outputs[0].Decode(&next); err != nil {
		return core.Artifact{}, core.NewContractError(string(stage.Drafts), err.Error())
	}
	if next.ID != draft.ID || next.ConceptID != draft.ConceptID || next.Version != draft.Version+1 {
		return core.Artifact{}, core.NewContractError(string(stage.Drafts),
			fmt.Sprintf("revise of %s produced %s (concept %s), want version %d of the same lineage",
				draft.VersionKey(), next.VersionKey(), next.ConceptID, draft.Version+1))
	}
	return outputs[0], nil
}

func singleReview(outputs []core.Artifact, draft research.Draft, round int) (core.Artifact, research.Review, error) {
	if len(outputs) != 1 {
		return core.Artifact{}, research.Review{}, core.NewContractError(string(stage.Review),
			fmt.Sprintf("review of %s returned %d reviews, want 1", draft.VersionKey(), len(outputs)))
	}
	var review research.Review
	if err := outputs[0].Decode(&review); err != nil {
		return core.Artifact{}, research.Review{}, core.NewContractError(string(stage.Review), err.Error())
	}
	if review.DraftID != draft.ID || review.DraftVersion != draft.Version || review.Iteration != round {
		return core.Artifact{}, research.Review{}, core.NewContractError(string(stage.Review),
			fmt.Sprintf("review %s does not match draft %s in round %d", review.Key(), draft.VersionKey(), round))
	}
	return outputs[0], review, nil
}

func refIn(scope string, a core.Artifact) core.ArtifactRef {
	return core.ArtifactRef{Scope: scope, Kind: a.Kind, Key: a.Key, Hash: a.Fingerprint()}
}
