package writer

import (
	"fmt"
	"time"

	"github.com/rivergate/chronicle/document"
	"github.com/rivergate/chronicle/window"
)

const systemInstructions = `You are the writer agent of an archival pipeline. You turn a window of
source messages into zero or more durable posts.

You have three tools available: rag_search to find semantically similar
posts already published, recent_posts to list the most recently published
posts, and pipeline_metadata to read the current run's identifying
metadata. Use them when they would improve continuity with prior posts;
do not call a tool you don't need.

When you are done, reply with nothing but a JSON array of posts, no
surrounding prose. Each post object has exactly these fields: "title"
(string), "content" (string), "authors" (array of author id strings),
"date" (a single RFC3339 instant — never a range or a pair of dates), and
"disambiguator" (optional string, only needed if this window produces more
than one post with the same title). Reply with an empty array "[]" if
nothing in this window is worth archiving.`

const windowPromptTemplate = `Window: {{.Label}} ({{.StartTime}} to {{.EndTime}})
{{range .Profiles}}
Author profile — {{.Author}}: {{.Summary}}
{{- end}}

Messages:
{{range .Entries}}
[{{.Time}}] {{.Author}}: {{.Content}}{{if .Media}} (media: {{range .Media}}{{.}} {{end}}){{end}}
{{- end}}
`

type windowPromptData struct {
	Label     string
	StartTime string
	EndTime   string
	Entries   []entryView
	Profiles  []profileView
}

type entryView struct {
	Author  string
	Time    string
	Content string
	Media   []string
}

type profileView struct {
	Author  string
	Summary string
}

// renderWindowPrompt assembles the user-turn prompt from a window's entries
// and the author profiles collected for it, via the one declarative
// template every window prompt goes through.
func renderWindowPrompt(w *window.Window, profiles []*document.Document) (string, error) {
	data := windowPromptData{
		Label:     w.Label,
		StartTime: w.StartTime.Format(time.RFC3339),
		EndTime:   w.EndTime.Format(time.RFC3339),
	}
	for _, p := range profiles {
		data.Profiles = append(data.Profiles, profileView{Author: p.ID, Summary: p.ContentBody})
	}
	for _, e := range w.Entries {
		author := e.AuthorDisplay
		if author == "" {
			author = e.AuthorID
		}
		data.Entries = append(data.Entries, entryView{
			Author:  author,
			Time:    e.Timestamp.Format(time.RFC3339),
			Content: e.Content,
			Media:   e.MediaRefs,
		})
	}

	tpl := NewPromptTemplate("window")
	if err := tpl.Execute(windowPromptTemplate, data); err != nil {
		return "", fmt.Errorf("writer: render window prompt: %w", err)
	}
	return tpl.Render(), nil
}
