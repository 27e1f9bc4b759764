package schema

// StoryPageReferenceTable represents the 'story.page_reference' junction table
type StoryPageReferenceTable struct {
	Table       string
	PageID      string
	ReferenceID string
}

// StoryPageReference is the schema definition for story.page_reference
var StoryPageReference = StoryPageReferenceTable{
	Table:       "story.page_reference",
	PageID:      "page_id",
	ReferenceID: "reference_id",
}

func (t StoryPageReferenceTable) Columns() []string {
	return []string{t.PageID, t.ReferenceID}
}
