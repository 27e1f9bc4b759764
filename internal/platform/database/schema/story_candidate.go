package schema

// StoryCandidateTable represents the 'story.candidate' table
type StoryCandidateTable struct {
	Table         string
	ID            string
	ProjectID     string
	OwnerKind     string
	OwnerID       string
	JobID         string
	Provider      string
	Status        string
	AssetRef      string
	LocalPath     string
	Score         string
	SelectionMode string
	CreatedAt     string
	UpdatedAt     string
}

// StoryCandidate is the schema definition for story.candidate
var StoryCandidate = StoryCandidateTable{
	Table:         "story.candidate",
	ID:            "id",
	ProjectID:     "project_id",
	OwnerKind:     "owner_kind",
	OwnerID:       "owner_id",
	JobID:         "job_id",
	Provider:      "provider",
	Status:        "status",
	AssetRef:      "asset_ref",
	LocalPath:     "local_path",
	Score:         "score",
	SelectionMode: "selection_mode",
	CreatedAt:     "created_at",
	UpdatedAt:     "updated_at",
}

func (t StoryCandidateTable) Columns() []string {
	return []string{
		t.ID, t.ProjectID, t.OwnerKind, t.OwnerID, t.JobID, t.Provider,
		t.Status, t.AssetRef, t.LocalPath, t.Score, t.SelectionMode,
		t.CreatedAt, t.UpdatedAt,
	}
}
