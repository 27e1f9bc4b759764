package schema

// StoryProjectTable represents the 'story.project' table
type StoryProjectTable struct {
	Table            string
	ID               string
	Name             string
	Description      string
	Platform         string
	StyleAsset       string
	StylePrompt      string
	TargetAge        string
	ImageSize        string
	ImageResolution  string
	Content          string
	Stage            string
	PlanningComplete string
	CreatedAt        string
	UpdatedAt        string
}

// StoryProject is the schema definition for story.project
var StoryProject = StoryProjectTable{
	Table:            "story.project",
	ID:               "id",
	Name:             "name",
	Description:      "description",
	Platform:         "platform",
	StyleAsset:       "style_asset",
	StylePrompt:      "style_prompt",
	TargetAge:        "target_age",
	ImageSize:        "image_size",
	ImageResolution:  "image_resolution",
	Content:          "content",
	Stage:            "stage",
	PlanningComplete: "planning_complete",
	CreatedAt:        "created_at",
	UpdatedAt:        "updated_at",
}

func (t StoryProjectTable) Columns() []string {
	return []string{
		t.ID, t.Name, t.Description, t.Platform, t.StyleAsset, t.StylePrompt, t.TargetAge,
		t.ImageSize, t.ImageResolution, t.Content, t.Stage, t.PlanningComplete,
		t.CreatedAt, t.UpdatedAt,
	}
}
