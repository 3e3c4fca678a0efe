// Package enrichment implements the enrichment workers (C7): bounded
// batches of pending URL/media, author-profile, and banner work, driven
// through the shared rate-limited LLM client and persisted as documents.
package enrichment

import "time"

// Kind distinguishes the category of work a Task represents. URL and media
// enrichment share a Kind since they share a prompt family and worker
// infrastructure; only the rendered prompt differs.
type Kind string

const (
	KindURLMedia Kind = "url_media"
	KindProfile  Kind = "profile"
	KindBanner   Kind = "banner"
)

// Status is a Task's position in its processing lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Task is a single pending unit of enrichment work. Workers are data-in/
// data-out: Target and ParentID are simple strings, never heavyweight
// domain objects, so the caller — not the worker — decides what qualifies
// for processing.
type Task struct {
	ID     string
	Kind   Kind
	Target string // media URI, author id, or post id, depending on Kind
	// ParentID is the document id the resulting enrichment document
	// attaches to (media doc for URL/media enrichment, post for banners).
	ParentID  string
	Status    Status
	Error     string
	CreatedAt time.Time
}
