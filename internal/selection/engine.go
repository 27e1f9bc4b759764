// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package selection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fablemint/storyforge/internal/job"
	"github.com/fablemint/storyforge/internal/orchestrator"
	"github.com/fablemint/storyforge/internal/platform/apperr"
	"github.com/fablemint/storyforge/internal/platform/constants"
	"github.com/fablemint/storyforge/internal/provider"
	"github.com/fablemint/storyforge/pkg/slice"
)

// Engine drives candidate auto-selection and manual overrides.
type Engine struct {
	store Store
	orch  *orchestrator.Engine
	log   *slog.Logger
}

// NewEngine constructs the selection engine.
func NewEngine(store Store, orch *orchestrator.Engine, log *slog.Logger) *Engine {
	return &Engine{store: store, orch: orch, log: log}
}

// judgeInputs is the workflow input payload of a judging job. The ordered
// candidate IDs let the result handler map scores back to rows.
type judgeInputs struct {
	CandidateIDs []string `json:"candidate_ids"`
	ImageURLs    []string `json:"image_urls"`
}

/*
MaybeAutoSelect evaluates an owner's candidate set and, when it has fully
settled, starts auto-selection.

Description: Called from the image-job handler on every terminal candidate.
It is an aggregate barrier: nothing happens until every candidate of the
owner is terminal. A prior user selection pins the owner and suppresses
auto-selection entirely. One succeeded candidate selects directly; two or
more submit a judging job (deduplicated by the orchestrator).
*/
func (e *Engine) MaybeAutoSelect(ctx context.Context, projectID string, kind job.OwnerKind, ownerID string) error {
	candidates, err := e.store.ListCandidates(ctx, kind, ownerID)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	var succeeded []Candidate
	for _, c := range candidates {
		if !c.Terminal {
			return nil // set not settled yet
		}
		if c.Selection == ModeUser {
			return nil // pinned by the user
		}
		if c.Selection == ModeAuto {
			return nil // already resolved
		}
		if c.Succeeded {
			succeeded = append(succeeded, c)
		}
	}

	switch len(succeeded) {
	case 0:
		// every candidate failed; the owner stays unresolved until the
		// user retries or skips
		return nil

	case 1:
		return e.store.ApplySelection(ctx, kind, ownerID, succeeded[0].ID, ModeAuto, nil)
	}

	inputs := judgeInputs{
		CandidateIDs: slice.Map(succeeded, func(c Candidate) string { return c.ID }),
		ImageURLs:    slice.Map(succeeded, func(c Candidate) string { return c.AssetRef }),
	}

	_, created, err := e.orch.Enqueue(ctx, orchestrator.EnqueueParams{
		ProjectID: projectID,
		OwnerKind: kind,
		OwnerID:   ownerID,
		Kind:      job.KindJudge,
		Provider:  constants.ProviderDify,
		Request: provider.Request{
			Task: provider.TaskJudge,
			Inputs: map[string]any{
				"candidate_ids": inputs.CandidateIDs,
				"image_urls":    inputs.ImageURLs,
			},
		},
	})
	if err != nil {
		return err
	}

	if created {
		e.log.Info("judge_enqueued",
			slog.String("owner_kind", string(kind)),
			slog.String("owner_id", ownerID),
			slog.Int("candidates", len(succeeded)),
		)
	}

	return nil
}

/*
HandleJudgeResult applies a finished judging job to the candidate set.

Description: Registered as the KindJudge handler. A failed judge leaves the
owner unselected (manual selection remains available). A verdict arriving
after the user selected manually is discarded. The highest score wins;
exact ties resolve to the earliest-submitted candidate.
*/
func (e *Engine) HandleJudgeResult(ctx context.Context, j *job.Job) error {
	if j.Status != job.StatusSucceeded {
		e.log.Warn("judge_unresolved",
			slog.String("job_id", j.ID),
			slog.String("status", string(j.Status)),
			slog.String("reason", j.LastError),
		)
		return nil
	}

	var req provider.Request
	if err := json.Unmarshal(j.Input, &req); err != nil {
		return fmt.Errorf("selection: decode judge input: %w", err)
	}
	ids, err := candidateIDsFromInputs(req.Inputs)
	if err != nil {
		return err
	}

	payload, err := orchestrator.DecodeResult(j.Output)
	if err != nil {
		return err
	}

	verdict, err := provider.ParseJudgeVerdict(payload.Output, len(ids))
	if err != nil {
		return err
	}

	candidates, err := e.store.ListCandidates(ctx, j.OwnerKind, j.OwnerID)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if c.Selection == ModeUser {
			e.log.Info("judge_verdict_discarded_pinned", slog.String("owner_id", j.OwnerID))
			return nil
		}
	}

	scores := make(map[string]float64, len(ids))
	for i, id := range ids {
		if i < len(verdict.Scores) {
			scores[id] = verdict.Scores[i]
		}
	}

	best, found := winner(candidates, scores)
	if !found {
		// scores missing entirely; fall back to the judge's own pick
		best = Candidate{ID: ids[verdict.SelectedIndex]}
	}

	e.log.Info("candidate_auto_selected",
		slog.String("owner_kind", string(j.OwnerKind)),
		slog.String("owner_id", j.OwnerID),
		slog.String("candidate_id", best.ID),
	)

	return e.store.ApplySelection(ctx, j.OwnerKind, j.OwnerID, best.ID, ModeAuto, scores)
}

/*
Select applies a manual selection.

Description: The user's choice always overwrites any prior selection, auto
or manual, and pins the owner: later judge verdicts are discarded until the
owner is regenerated (which clears selection state).
*/
func (e *Engine) Select(ctx context.Context, kind job.OwnerKind, ownerID, candidateID string) error {
	candidates, err := e.store.ListCandidates(ctx, kind, ownerID)
	if err != nil {
		return err
	}

	for _, c := range candidates {
		if c.ID != candidateID {
			continue
		}
		if !c.Succeeded {
			return apperr.Unprocessable("Only a succeeded candidate can be selected")
		}
		return e.store.ApplySelection(ctx, kind, ownerID, candidateID, ModeUser, nil)
	}

	return apperr.NotFound("Candidate")
}

func candidateIDsFromInputs(inputs map[string]any) ([]string, error) {
	raw, ok := inputs["candidate_ids"].([]any)
	if !ok {
		return nil, fmt.Errorf("selection: judge input missing candidate_ids")
	}

	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("selection: malformed candidate id %v", v)
		}
		ids = append(ids, s)
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("selection: judge input has no candidates")
	}

	return ids, nil
}
