// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package reference

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablemint/storyforge/internal/core/image"
	"github.com/fablemint/storyforge/internal/core/project"
	"github.com/fablemint/storyforge/internal/job"
	"github.com/fablemint/storyforge/internal/orchestrator"
	"github.com/fablemint/storyforge/internal/platform/apperr"
	"github.com/fablemint/storyforge/internal/stage"
)

// # Test Fakes

type memProjects struct {
	rows map[string]*project.Project
}

func (m *memProjects) Create(_ context.Context, p *project.Project) error {
	m.rows[p.ID] = p
	return nil
}

func (m *memProjects) FindByID(_ context.Context, id string) (*project.Project, error) {
	p, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("Project")
	}
	clone := *p
	return &clone, nil
}

func (m *memProjects) List(_ context.Context, _, _ int) ([]*project.Project, int, error) {
	return nil, 0, nil
}

func (m *memProjects) Update(_ context.Context, p *project.Project) error {
	clone := *p
	m.rows[p.ID] = &clone
	return nil
}

func (m *memProjects) UpdateStage(_ context.Context, _ string, _, _ stage.Stage) error { return nil }
func (m *memProjects) Delete(_ context.Context, _ string) error                        { return nil }
func (m *memProjects) StageSnapshot(_ context.Context, _ string) (stage.Snapshot, error) {
	return stage.Snapshot{}, nil
}

type memReferences struct {
	rows map[string]*Reference
}

func (m *memReferences) ReplaceForProject(_ context.Context, projectID string, refs []*Reference) error {
	for id, r := range m.rows {
		if r.ProjectID == projectID {
			delete(m.rows, id)
		}
	}
	for _, r := range refs {
		clone := *r
		m.rows[r.ID] = &clone
	}
	return nil
}

func (m *memReferences) FindByID(_ context.Context, id string) (*Reference, error) {
	r, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("Reference")
	}
	clone := *r
	return &clone, nil
}

func (m *memReferences) ListByProject(_ context.Context, projectID string, refType Type) ([]*Reference, error) {
	var out []*Reference
	for _, r := range m.rows {
		if r.ProjectID != projectID {
			continue
		}
		if refType != "" && r.Type != refType {
			continue
		}
		clone := *r
		out = append(out, &clone)
	}
	return out, nil
}

func (m *memReferences) UpdatePrompt(_ context.Context, id, prompt string) error {
	r, ok := m.rows[id]
	if !ok {
		return apperr.NotFound("Reference")
	}
	r.Prompt = prompt
	return nil
}

func (m *memReferences) Delete(_ context.Context, id string) error {
	delete(m.rows, id)
	return nil
}

// stubRenderer records rounds and serves canned candidate sets.
type stubRenderer struct {
	generated  []image.GenerateSpec
	candidates map[string][]*image.Candidate
	purged     []string
}

func (s *stubRenderer) Generate(_ context.Context, spec image.GenerateSpec) ([]*image.Candidate, error) {
	s.generated = append(s.generated, spec)
	return nil, nil
}

func (s *stubRenderer) CheckStatus(_ context.Context, _ job.OwnerKind, ownerID string) ([]*image.Candidate, error) {
	return s.candidates[ownerID], nil
}

func (s *stubRenderer) List(_ context.Context, _ job.OwnerKind, ownerID string) ([]*image.Candidate, error) {
	return s.candidates[ownerID], nil
}

func (s *stubRenderer) DeleteOwned(_ context.Context, _ job.OwnerKind, ownerID string) error {
	s.purged = append(s.purged, ownerID)
	delete(s.candidates, ownerID)
	return nil
}

type noopDispatcher struct{}

func (noopDispatcher) Push(context.Context, string) error                         { return nil }
func (noopDispatcher) PopBlocking(context.Context, time.Duration) (string, error) { return "", nil }
func (noopDispatcher) Schedule(context.Context, string, time.Time) error          { return nil }
func (noopDispatcher) Due(context.Context, time.Time) ([]string, error)           { return nil, nil }
func (noopDispatcher) MarkCancelled(context.Context, string) error                { return nil }
func (noopDispatcher) IsCancelled(context.Context, string) bool                   { return false }

// # Fixture

type fixture struct {
	service    *Service
	projects   *memProjects
	references *memReferences
	renderer   *stubRenderer
	ledger     *job.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := job.NewLedger(job.NewMemoryStore(), log)
	orch := orchestrator.NewEngine(ledger, noopDispatcher{}, 3, log)

	projects := &memProjects{rows: map[string]*project.Project{}}
	references := &memReferences{rows: map[string]*Reference{}}
	renderer := &stubRenderer{candidates: map[string][]*image.Candidate{}}

	return &fixture{
		service:    NewService(references, projects, orch, renderer, log),
		projects:   projects,
		references: references,
		renderer:   renderer,
		ledger:     ledger,
	}
}

func (f *fixture) seedProject(t *testing.T, content, stylePrompt string) *project.Project {
	t.Helper()

	proj := &project.Project{
		ID:              "proj-1",
		Name:            "The Fox",
		Platform:        "jimeng",
		StylePrompt:     stylePrompt,
		TargetAge:       "7-9",
		ImageSize:       "16:9",
		ImageResolution: "2K",
		Content:         content,
	}
	require.NoError(t, f.projects.Create(context.Background(), proj))
	return proj
}

// # Prompt Extraction

func TestGeneratePrompts_QueuesWorkflowJob(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 a fox wakes up", "watercolor")

	queued, err := f.service.GeneratePrompts(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, job.KindReferencePrompts, queued.Kind)
	assert.Equal(t, job.StatusQueued, queued.Status)
	assert.Contains(t, string(queued.Input), "a fox wakes up")
	assert.Contains(t, string(queued.Input), "watercolor")

	// A second call while the first run is live returns the same job.
	again, err := f.service.GeneratePrompts(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, queued.ID, again.ID)
}

func TestGeneratePrompts_RequiresContentAndStyle(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "", "watercolor")

	_, err := f.service.GeneratePrompts(context.Background(), "proj-1")
	require.Error(t, err)
	assert.Equal(t, "UNPROCESSABLE", apperr.As(err).Code)

	f.projects.rows["proj-1"].Content = "P1 a fox"
	f.projects.rows["proj-1"].StylePrompt = ""

	_, err = f.service.GeneratePrompts(context.Background(), "proj-1")
	require.Error(t, err)
	assert.Equal(t, "UNPROCESSABLE", apperr.As(err).Code)
}

func TestHandleReferencePrompts_ReplacesSlots(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 a fox in a garden", "watercolor")

	// A stale slot from a previous extraction must not survive the rerun.
	f.references.rows["stale"] = &Reference{ID: "stale", ProjectID: "proj-1", Type: TypeProp, Name: "Old Prop"}

	finished := &job.Job{
		ID:        "job-1",
		ProjectID: "proj-1",
		OwnerKind: job.OwnerProject,
		OwnerID:   "proj-1",
		Kind:      job.KindReferencePrompts,
		Status:    job.StatusSucceeded,
		Output: []byte(`{"output":{"result":{
			"characters":[{"name":"Fox","prompt":"small red fox"}],
			"props":[],
			"scenes":[{"name":"Garden","prompt":"sunlit garden"}]
		}}}`),
	}

	require.NoError(t, f.service.HandleReferencePrompts(context.Background(), finished))

	slots, err := f.service.List(context.Background(), "proj-1", "")
	require.NoError(t, err)
	require.Len(t, slots, 2)

	characters, err := f.service.List(context.Background(), "proj-1", TypeCharacter)
	require.NoError(t, err)
	require.Len(t, characters, 1)
	assert.Equal(t, "Fox", characters[0].Name)
	assert.Equal(t, 1, characters[0].RefIndex)
	assert.Equal(t, "small red fox", characters[0].Prompt)
}

func TestHandleReferencePrompts_IgnoresUnsuccessfulJob(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 a fox", "watercolor")

	failed := &job.Job{
		ID:        "job-1",
		ProjectID: "proj-1",
		Kind:      job.KindReferencePrompts,
		Status:    job.StatusFailed,
	}

	require.NoError(t, f.service.HandleReferencePrompts(context.Background(), failed))

	slots, err := f.service.List(context.Background(), "proj-1", "")
	require.NoError(t, err)
	assert.Empty(t, slots)
}

// # Slot Management

func TestList_RejectsUnknownType(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.List(context.Background(), "proj-1", Type("vehicle"))
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)
}

func TestUpdatePrompt_RequiresText(t *testing.T) {
	f := newFixture(t)
	f.references.rows["ref-1"] = &Reference{ID: "ref-1", ProjectID: "proj-1", Type: TypeCharacter, Name: "Fox"}

	_, err := f.service.UpdatePrompt(context.Background(), "ref-1", "")
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)

	updated, err := f.service.UpdatePrompt(context.Background(), "ref-1", "small red fox, gouache")
	require.NoError(t, err)
	assert.Equal(t, "small red fox, gouache", updated.Prompt)
}

// # Image Generation

func TestGenerate_UsesProjectRenderSettings(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 a fox", "watercolor")
	f.references.rows["ref-1"] = &Reference{
		ID: "ref-1", ProjectID: "proj-1",
		Type: TypeCharacter, Name: "Fox", Prompt: "small red fox",
	}

	_, err := f.service.Generate(context.Background(), "ref-1", 2)
	require.NoError(t, err)

	require.Len(t, f.renderer.generated, 1)
	spec := f.renderer.generated[0]
	assert.Equal(t, job.OwnerReference, spec.OwnerKind)
	assert.Equal(t, "ref-1", spec.OwnerID)
	assert.Equal(t, "small red fox", spec.Prompt)
	assert.Equal(t, "jimeng", spec.Provider)
	assert.Equal(t, "16:9", spec.Size)
	assert.Equal(t, "2K", spec.Resolution)
	assert.Equal(t, 2, spec.Count)
}

func TestGenerate_RequiresPrompt(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 a fox", "watercolor")
	f.references.rows["ref-1"] = &Reference{ID: "ref-1", ProjectID: "proj-1", Type: TypeCharacter, Name: "Fox"}

	_, err := f.service.Generate(context.Background(), "ref-1", 2)
	require.Error(t, err)
	assert.Equal(t, "UNPROCESSABLE", apperr.As(err).Code)
	assert.Empty(t, f.renderer.generated)
}

func TestDelete_CancelsLiveWorkAndPurgesCandidates(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 a fox", "watercolor")
	f.references.rows["ref-1"] = &Reference{ID: "ref-1", ProjectID: "proj-1", Type: TypeCharacter, Name: "Fox"}

	slotJob, err := f.ledger.Create(context.Background(), job.NewJobParams{
		ProjectID:   "proj-1",
		OwnerKind:   job.OwnerReference,
		OwnerID:     "ref-1",
		Kind:        job.KindImage,
		Provider:    "jimeng",
		MaxAttempts: 3,
	})
	require.NoError(t, err)

	f.renderer.candidates["ref-1"] = []*image.Candidate{{
		ID: "cand-1", OwnerKind: job.OwnerReference, OwnerID: "ref-1",
		Status: image.StatusGenerating,
	}}

	require.NoError(t, f.service.Delete(context.Background(), "ref-1"))

	_, err = f.service.Get(context.Background(), "ref-1")
	require.Error(t, err)

	// no candidate rows may outlive their slot
	assert.Equal(t, []string{"ref-1"}, f.renderer.purged)

	cancelled, err := f.ledger.Get(context.Background(), slotJob.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, cancelled.Status)
}
