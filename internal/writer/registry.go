package writer

import "github.com/tavernforge/statevar/internal/sheet"

// DomainBinding routes a sheet-addressed domain to its sheet and row
// identity rules.
type DomainBinding struct {
	SheetID       sheet.ID
	KeyField      string
	DefaultEntity string
	// IDAliases are payload fields consulted, in order, when resolving the
	// target row id from an event value.
	IDAliases []string
}

// defaultRegistry binds the sheet-addressed domains the writer accepts
// beyond the three path-addressed pilot domains.
var defaultRegistry = map[string]DomainBinding{
	"quest": {
		SheetID:   sheet.QuestActive,
		KeyField:  "任务ID",
		IDAliases: []string{"任务ID", "quest_id", "id"},
	},
	"story_mainline": {
		SheetID:       sheet.StoryMainline,
		KeyField:      "mainline_id",
		DefaultEntity: "MAINLINE_PRIMARY",
		IDAliases:     []string{"mainline_id", "id"},
	},
	"phone_threads": {
		SheetID:   sheet.PhoneThreads,
		KeyField:  "thread_id",
		IDAliases: []string{"thread_id", "id"},
	},
	"world_news": {
		SheetID:   sheet.WorldNews,
		KeyField:  "news_id",
		IDAliases: []string{"news_id", "id"},
	},
	"forum_posts": {
		SheetID:   sheet.ForumPosts,
		KeyField:  "post_id",
		IDAliases: []string{"post_id", "id"},
	},
}

// Registry returns a copy of the default domain bindings. Callers may
// extend the copy before handing it to a writer.
func Registry() map[string]DomainBinding {
	out := make(map[string]DomainBinding, len(defaultRegistry))
	for domain, binding := range defaultRegistry {
		out[domain] = binding
	}
	return out
}
