package writer

import (
	"strings"
	"text/template"
)

// PromptTemplate renders a named text/template against structured data,
// adapted from the chat prompt template used elsewhere in the corpus to
// assemble generation prompts from placeholders and attributes.
type PromptTemplate struct {
	tp *template.Template
	sb *strings.Builder
}

// NewPromptTemplate constructs an empty named template.
func NewPromptTemplate(name string) *PromptTemplate {
	return &PromptTemplate{tp: template.New(name), sb: new(strings.Builder)}
}

// Render returns everything the Execute calls on t have appended so far.
func (t *PromptTemplate) Render() string {
	return t.sb.String()
}

// Execute parses content and executes it against attr, appending the result
// to the builder backing Render.
func (t *PromptTemplate) Execute(content string, attr any) error {
	parsed, err := t.tp.Parse(content)
	if err != nil {
		return err
	}
	t.tp = parsed
	return t.tp.Execute(t.sb, attr)
}
