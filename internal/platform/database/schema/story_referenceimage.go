package schema

// StoryReferenceImageTable represents the 'story.reference_image' table
type StoryReferenceImageTable struct {
	Table     string
	ID        string
	ProjectID string
	RefType   string
	Name      string
	RefIndex  string
	Prompt    string
	CreatedAt string
	UpdatedAt string
}

// StoryReferenceImage is the schema definition for story.reference_image
var StoryReferenceImage = StoryReferenceImageTable{
	Table:     "story.reference_image",
	ID:        "id",
	ProjectID: "project_id",
	RefType:   "ref_type",
	Name:      "name",
	RefIndex:  "ref_index",
	Prompt:    "prompt",
	CreatedAt: "created_at",
	UpdatedAt: "updated_at",
}

func (t StoryReferenceImageTable) Columns() []string {
	return []string{
		t.ID, t.ProjectID, t.RefType, t.Name, t.RefIndex, t.Prompt,
		t.CreatedAt, t.UpdatedAt,
	}
}
