// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package page

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablemint/storyforge/internal/core/image"
	"github.com/fablemint/storyforge/internal/core/project"
	"github.com/fablemint/storyforge/internal/core/reference"
	"github.com/fablemint/storyforge/internal/job"
	"github.com/fablemint/storyforge/internal/orchestrator"
	"github.com/fablemint/storyforge/internal/platform/apperr"
	"github.com/fablemint/storyforge/internal/selection"
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
	if _, ok := m.rows[p.ID]; !ok {
		return apperr.NotFound("Project")
	}
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
	rows map[string]*reference.Reference
}

func (m *memReferences) ReplaceForProject(_ context.Context, _ string, refs []*reference.Reference) error {
	for _, r := range refs {
		m.rows[r.ID] = r
	}
	return nil
}

func (m *memReferences) FindByID(_ context.Context, id string) (*reference.Reference, error) {
	r, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("Reference")
	}
	return r, nil
}

func (m *memReferences) ListByProject(_ context.Context, projectID string, refType reference.Type) ([]*reference.Reference, error) {
	var out []*reference.Reference
	for _, r := range m.rows {
		if r.ProjectID != projectID {
			continue
		}
		if refType != "" && r.Type != refType {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memReferences) UpdatePrompt(_ context.Context, id, prompt string) error {
	m.rows[id].Prompt = prompt
	return nil
}

func (m *memReferences) Delete(_ context.Context, id string) error {
	delete(m.rows, id)
	return nil
}

type memPages struct {
	rows map[string]*Page
}

func (m *memPages) ReplaceForProject(_ context.Context, projectID string, pages []*Page) error {
	for id, p := range m.rows {
		if p.ProjectID == projectID {
			delete(m.rows, id)
		}
	}
	for _, p := range pages {
		clone := *p
		m.rows[p.ID] = &clone
	}
	return nil
}

func (m *memPages) FindByID(_ context.Context, id string) (*Page, error) {
	p, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("Page")
	}
	clone := *p
	return &clone, nil
}

func (m *memPages) ListByProject(_ context.Context, projectID string) ([]*Page, error) {
	var out []*Page
	for index := 1; ; index++ {
		found := false
		for _, p := range m.rows {
			if p.ProjectID == projectID && p.PageIndex == index {
				clone := *p
				out = append(out, &clone)
				found = true
			}
		}
		if !found {
			break
		}
	}
	return out, nil
}

func (m *memPages) Update(_ context.Context, page *Page) error {
	stored, ok := m.rows[page.ID]
	if !ok {
		return apperr.NotFound("Page")
	}
	stored.Content = page.Content
	stored.SceneType = page.SceneType
	stored.Skipped = page.Skipped
	stored.ReferenceIDs = page.ReferenceIDs
	return nil
}

func (m *memPages) UpdatePrompt(_ context.Context, id, prompt string) error {
	p, ok := m.rows[id]
	if !ok {
		return apperr.NotFound("Page")
	}
	p.Prompt = prompt
	return nil
}

func (m *memPages) Delete(_ context.Context, id string) error {
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

func (s *stubRenderer) CheckStatus(_ context.Context, kind job.OwnerKind, ownerID string) ([]*image.Candidate, error) {
	return s.candidates[ownerID], nil
}

func (s *stubRenderer) List(_ context.Context, kind job.OwnerKind, ownerID string) ([]*image.Candidate, error) {
	return s.candidates[ownerID], nil
}

func (s *stubRenderer) AutoSelect(_ context.Context, kind job.OwnerKind, ownerID string) error {
	return nil
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
	pages      *memPages
	renderer   *stubRenderer
	ledger     *job.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := job.NewLedger(job.NewMemoryStore(), log)
	orch := orchestrator.NewEngine(ledger, noopDispatcher{}, 3, log)

	projects := &memProjects{rows: map[string]*project.Project{}}
	references := &memReferences{rows: map[string]*reference.Reference{}}
	pages := &memPages{rows: map[string]*Page{}}
	renderer := &stubRenderer{candidates: map[string][]*image.Candidate{}}

	return &fixture{
		service:    NewService(pages, projects, references, orch, renderer, log),
		projects:   projects,
		references: references,
		pages:      pages,
		renderer:   renderer,
		ledger:     ledger,
	}
}

func (f *fixture) seedProject(t *testing.T, content string) *project.Project {
	t.Helper()

	proj := &project.Project{
		ID:              "proj-1",
		Name:            "The Fox",
		Platform:        "jimeng",
		StylePrompt:     "watercolor, soft light",
		TargetAge:       "7-9",
		ImageSize:       "16:9",
		ImageResolution: "2K",
		Content:         content,
		Stage:           stage.PagesPlanned,
	}
	require.NoError(t, f.projects.Create(context.Background(), proj))
	return proj
}

func (f *fixture) seedReference(t *testing.T, id string, refType reference.Type) *reference.Reference {
	t.Helper()

	ref := &reference.Reference{
		ID:        id,
		ProjectID: "proj-1",
		Type:      refType,
		Name:      id,
		RefIndex:  1,
		Prompt:    "a prompt for " + id,
	}
	f.references.rows[id] = ref
	return ref
}

// selectedCandidate arms the renderer with a resolved round for a slot.
func (f *fixture) selectedCandidate(refID, path string) {
	f.renderer.candidates[refID] = []*image.Candidate{{
		ID:        refID + "-c1",
		OwnerKind: job.OwnerReference,
		OwnerID:   refID,
		Status:    image.StatusSucceeded,
		LocalPath: path,
		Selection: selection.ModeAuto,
	}}
}

// # Planning

func TestPlanPages_FromContent(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1\nThe fox wakes up.\nP2\nShe walks to the river.")

	pages, err := f.service.PlanPages(context.Background(), "proj-1", nil)

	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "P1", pages[0].PageNumber)
	assert.Equal(t, 1, pages[0].PageIndex)
	assert.Equal(t, "The fox wakes up.", pages[0].Content)
	assert.Equal(t, SceneReal, pages[0].SceneType)
	assert.False(t, pages[0].Skipped)
}

func TestPlanPages_AppliesPlanDecisions(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 one\nP2 two")
	f.seedReference(t, "char-1", reference.TypeCharacter)

	pages, err := f.service.PlanPages(context.Background(), "proj-1", []PagePlan{
		{PageNumber: "P2", SceneType: SceneKnowledge, ReferenceIDs: []string{"char-1"}, Skipped: false},
		{PageNumber: "P1", Skipped: true},
	})

	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.True(t, pages[0].Skipped)
	assert.Equal(t, SceneKnowledge, pages[1].SceneType)
	assert.Equal(t, []string{"char-1"}, pages[1].ReferenceIDs)
}

func TestPlanPages_EnforcesReferenceLimits(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 one")
	for i := 0; i < 4; i++ {
		f.seedReference(t, fmt.Sprintf("char-%d", i), reference.TypeCharacter)
	}

	_, err := f.service.PlanPages(context.Background(), "proj-1", []PagePlan{
		{PageNumber: "P1", ReferenceIDs: []string{"char-0", "char-1", "char-2", "char-3"}},
	})

	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)
}

func TestPlanPages_RejectsForeignReference(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 one")

	_, err := f.service.PlanPages(context.Background(), "proj-1", []PagePlan{
		{PageNumber: "P1", ReferenceIDs: []string{"someone-elses"}},
	})

	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)
}

func TestPlanPages_WithoutContent(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "")

	_, err := f.service.PlanPages(context.Background(), "proj-1", nil)

	require.Error(t, err)
	assert.Equal(t, "UNPROCESSABLE", apperr.As(err).Code)
}

func TestPlanPages_ReplanClearsCompletion(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 one")

	_, err := f.service.PlanPages(context.Background(), "proj-1", nil)
	require.NoError(t, err)
	require.NoError(t, f.service.CompletePlanning(context.Background(), "proj-1"))

	_, err = f.service.PlanPages(context.Background(), "proj-1", nil)
	require.NoError(t, err)

	proj, err := f.projects.FindByID(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.False(t, proj.PlanningComplete)
}

func TestCompletePlanning_RequiresPages(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 one")

	err := f.service.CompletePlanning(context.Background(), "proj-1")

	require.Error(t, err)
	assert.Equal(t, "UNPROCESSABLE", apperr.As(err).Code)
}

// # Prompt Assembly

func TestGeneratePrompt_RequiresResolvedReferences(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 one")
	f.seedReference(t, "char-1", reference.TypeCharacter)

	pages, err := f.service.PlanPages(context.Background(), "proj-1", []PagePlan{
		{PageNumber: "P1", ReferenceIDs: []string{"char-1"}},
	})
	require.NoError(t, err)

	_, err = f.service.GeneratePrompt(context.Background(), pages[0].ID)

	require.Error(t, err)
	assert.Equal(t, "UNPROCESSABLE", apperr.As(err).Code)
	assert.Contains(t, err.Error(), "no selected image")
}

func TestGeneratePrompt_QueuesWorkflowJob(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1\nThe fox wakes up.")
	f.seedReference(t, "char-1", reference.TypeCharacter)
	f.seedReference(t, "scene-1", reference.TypeScene)
	f.selectedCandidate("char-1", "generated_images/fox.png")
	f.selectedCandidate("scene-1", "generated_images/forest.png")

	pages, err := f.service.PlanPages(context.Background(), "proj-1", []PagePlan{
		{PageNumber: "P1", ReferenceIDs: []string{"char-1", "scene-1"}},
	})
	require.NoError(t, err)

	queued, err := f.service.GeneratePrompt(context.Background(), pages[0].ID)

	require.NoError(t, err)
	assert.Equal(t, job.KindPagePrompt, queued.Kind)
	assert.Equal(t, job.OwnerPage, queued.OwnerKind)
	assert.Equal(t, pages[0].ID, queued.OwnerID)
	assert.Contains(t, string(queued.Input), "The fox wakes up.")
	assert.Contains(t, string(queued.Input), "generated_images/fox.png")
	assert.Contains(t, string(queued.Input), "generated_images/forest.png")

	// A second call reuses the in-flight job.
	again, err := f.service.GeneratePrompt(context.Background(), pages[0].ID)
	require.NoError(t, err)
	assert.Equal(t, queued.ID, again.ID)
}

func TestGeneratePrompt_RejectsSkippedPage(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 one")

	pages, err := f.service.PlanPages(context.Background(), "proj-1", []PagePlan{
		{PageNumber: "P1", Skipped: true},
	})
	require.NoError(t, err)

	_, err = f.service.GeneratePrompt(context.Background(), pages[0].ID)

	require.Error(t, err)
	assert.Equal(t, "UNPROCESSABLE", apperr.As(err).Code)
}

func TestHandlePagePrompt_StoresPrompt(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 one")

	pages, err := f.service.PlanPages(context.Background(), "proj-1", nil)
	require.NoError(t, err)

	finished := &job.Job{
		ID:        "job-1",
		ProjectID: "proj-1",
		OwnerKind: job.OwnerPage,
		OwnerID:   pages[0].ID,
		Kind:      job.KindPagePrompt,
		Status:    job.StatusSucceeded,
		Output:    []byte(`{"output":{"prompt":"a watercolor fox waking up"}}`),
	}

	require.NoError(t, f.service.HandlePagePrompt(context.Background(), finished))

	page, err := f.service.Get(context.Background(), pages[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "a watercolor fox waking up", page.Prompt)
}

// # Rounds & Edits

func TestGenerate_UsesProjectRenderSettings(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 one")

	pages, err := f.service.PlanPages(context.Background(), "proj-1", nil)
	require.NoError(t, err)
	_, err = f.service.UpdatePrompt(context.Background(), pages[0].ID, "a fox")
	require.NoError(t, err)

	_, err = f.service.Generate(context.Background(), pages[0].ID, 2)

	require.NoError(t, err)
	require.Len(t, f.renderer.generated, 1)
	spec := f.renderer.generated[0]
	assert.Equal(t, job.OwnerPage, spec.OwnerKind)
	assert.Equal(t, "a fox", spec.Prompt)
	assert.Equal(t, "jimeng", spec.Provider)
	assert.Equal(t, "16:9", spec.Size)
	assert.Equal(t, "2K", spec.Resolution)
	assert.Equal(t, 2, spec.Count)
}

func TestGenerate_RequiresPrompt(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 one")

	pages, err := f.service.PlanPages(context.Background(), "proj-1", nil)
	require.NoError(t, err)

	_, err = f.service.Generate(context.Background(), pages[0].ID, 0)

	require.Error(t, err)
	assert.Equal(t, "UNPROCESSABLE", apperr.As(err).Code)
}

func TestUpdatePage_EditInvalidatesPrompt(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 one")

	pages, err := f.service.PlanPages(context.Background(), "proj-1", nil)
	require.NoError(t, err)
	_, err = f.service.UpdatePrompt(context.Background(), pages[0].ID, "stale prompt")
	require.NoError(t, err)

	newScene := SceneAbstract
	updated, err := f.service.UpdatePage(context.Background(), pages[0].ID, UpdateInput{SceneType: &newScene})

	require.NoError(t, err)
	assert.Equal(t, SceneAbstract, updated.SceneType)
	assert.Empty(t, updated.Prompt)
}

func TestUpdatePage_SkipKeepsPrompt(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 one")

	pages, err := f.service.PlanPages(context.Background(), "proj-1", nil)
	require.NoError(t, err)
	_, err = f.service.UpdatePrompt(context.Background(), pages[0].ID, "kept prompt")
	require.NoError(t, err)

	skipped := true
	updated, err := f.service.UpdatePage(context.Background(), pages[0].ID, UpdateInput{Skipped: &skipped})

	require.NoError(t, err)
	assert.True(t, updated.Skipped)
	assert.Equal(t, "kept prompt", updated.Prompt)
}

func TestDelete_PurgesCandidateRounds(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, "P1 one")

	pages, err := f.service.PlanPages(context.Background(), "proj-1", nil)
	require.NoError(t, err)
	pageID := pages[0].ID

	pageJob, err := f.ledger.Create(context.Background(), job.NewJobParams{
		ProjectID:   "proj-1",
		OwnerKind:   job.OwnerPage,
		OwnerID:     pageID,
		Kind:        job.KindImage,
		Provider:    "jimeng",
		MaxAttempts: 3,
	})
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(context.Background(), pageID))

	_, err = f.service.Get(context.Background(), pageID)
	require.Error(t, err)

	// deleting a page removes its candidate rows, not just the live jobs
	assert.Equal(t, []string{pageID}, f.renderer.purged)

	cancelled, err := f.ledger.Get(context.Background(), pageJob.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, cancelled.Status)
}

func TestGenerateAllPrompts_SkipsIneligiblePages(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t, strings.Join([]string{"P1 one", "P2 two", "P3 three"}, "\n"))
	f.seedReference(t, "char-1", reference.TypeCharacter)

	_, err := f.service.PlanPages(context.Background(), "proj-1", []PagePlan{
		{PageNumber: "P2", Skipped: true},
		{PageNumber: "P3", ReferenceIDs: []string{"char-1"}},
	})
	require.NoError(t, err)

	queued, rejected, err := f.service.GenerateAllPrompts(context.Background(), "proj-1")

	require.NoError(t, err)
	// P1 has no references and queues; P2 is skipped; P3's reference
	// has no selected image yet.
	require.Len(t, queued, 1)
	assert.Equal(t, job.KindPagePrompt, queued[0].Kind)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected["P3"], "no selected image")
}
