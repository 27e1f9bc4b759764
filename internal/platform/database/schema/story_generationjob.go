package schema

// StoryGenerationJobTable represents the 'story.generation_job' table
type StoryGenerationJobTable struct {
	Table          string
	ID             string
	ProjectID      string
	OwnerKind      string
	OwnerID        string
	Kind           string
	Provider       string
	ExternalHandle string
	Status         string
	Attempts       string
	MaxAttempts    string
	Polls          string
	LastError      string
	Input          string
	Output         string
	CreatedAt      string
	UpdatedAt      string
}

// StoryGenerationJob is the schema definition for story.generation_job
var StoryGenerationJob = StoryGenerationJobTable{
	Table:          "story.generation_job",
	ID:             "id",
	ProjectID:      "project_id",
	OwnerKind:      "owner_kind",
	OwnerID:        "owner_id",
	Kind:           "kind",
	Provider:       "provider",
	ExternalHandle: "external_handle",
	Status:         "status",
	Attempts:       "attempts",
	MaxAttempts:    "max_attempts",
	Polls:          "polls",
	LastError:      "last_error",
	Input:          "input",
	Output:         "output",
	CreatedAt:      "created_at",
	UpdatedAt:      "updated_at",
}

func (t StoryGenerationJobTable) Columns() []string {
	return []string{
		t.ID, t.ProjectID, t.OwnerKind, t.OwnerID, t.Kind, t.Provider,
		t.ExternalHandle, t.Status, t.Attempts, t.MaxAttempts, t.Polls,
		t.LastError, t.Input, t.Output, t.CreatedAt, t.UpdatedAt,
	}
}
