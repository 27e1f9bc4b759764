package schema

// StoryPageTable represents the 'story.page' table
type StoryPageTable struct {
	Table      string
	ID         string
	ProjectID  string
	PageNumber string
	PageIndex  string
	Content    string
	SceneType  string
	Prompt     string
	Skipped    string
	CreatedAt  string
	UpdatedAt  string
}

// StoryPage is the schema definition for story.page
var StoryPage = StoryPageTable{
	Table:      "story.page",
	ID:         "id",
	ProjectID:  "project_id",
	PageNumber: "page_number",
	PageIndex:  "page_index",
	Content:    "content",
	SceneType:  "scene_type",
	Prompt:     "prompt",
	Skipped:    "skipped",
	CreatedAt:  "created_at",
	UpdatedAt:  "updated_at",
}

func (t StoryPageTable) Columns() []string {
	return []string{
		t.ID, t.ProjectID, t.PageNumber, t.PageIndex, t.Content, t.SceneType,
		t.Prompt, t.Skipped, t.CreatedAt, t.UpdatedAt,
	}
}
