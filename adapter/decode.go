package adapter

import (
	"time"

	"github.com/rivergate/chronicle/entry"
)

// RawEntry is the common wire shape both the reference chat-export and
// kafka-stream adapters decode into before anonymization; a new source
// adapter maps its own payload format into this shape at its own decode
// boundary rather than teaching the core a new representation.
type RawEntry struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"author_id"`
	AuthorDisplay string    `json:"author_display"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	MediaRefs     []string  `json:"media_refs"`
}

// ToEntry anonymizes raw's author id under namespace and builds a
// validated entry.Entry, extracting links from its content. It is the one
// conversion path every Source implementation in this package goes
// through, so anonymization can never be forgotten at one call site and
// applied at another.
func ToEntry(raw RawEntry, namespace, source string) (*entry.Entry, error) {
	authorID := UUIDv5(namespace, raw.AuthorID)

	var opts []entry.Option
	if raw.AuthorDisplay != "" {
		opts = append(opts, entry.WithAuthorDisplay(raw.AuthorDisplay))
	}
	if len(raw.MediaRefs) > 0 {
		opts = append(opts, entry.WithMediaRefs(raw.MediaRefs...))
	}
	if links := entry.ExtractLinks(raw.Content); len(links) > 0 {
		opts = append(opts, entry.WithLinks(links...))
	}

	return entry.New(raw.ID, source, raw.Timestamp.UTC(), authorID, raw.Content, opts...)
}
