// Package document defines the persisted artifact type produced by the
// pipeline core — posts, media, enrichments, profiles, and banners — along
// with the Feed aggregate used to render them for syndication.
package document

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/rivergate/chronicle/pkg/kv"
)

// Type enumerates the kinds of artifact the core persists.
type Type string

const (
	TypePost       Type = "post"
	TypeMedia      Type = "media"
	TypeEnrichment Type = "enrichment"
	TypeProfile    Type = "profile"
	TypeBanner     Type = "banner"
)

// ContentType identifies the encoding of Document.ContentBody.
type ContentType string

const (
	ContentTypePlain    ContentType = "text/plain"
	ContentTypeMarkdown ContentType = "text/markdown"
	ContentTypeBinary   ContentType = "application/octet-stream"
)

var (
	ErrEmptyID              = errors.New("document: id must not be empty")
	ErrEmptyTitle           = errors.New("document: title must not be empty")
	ErrUnknownType          = errors.New("document: unknown doc_type")
	ErrUpdatedBeforeCreated = errors.New("document: updated_at must not precede created_at")
	ErrVectorDimMismatch    = errors.New("document: vector dimensionality does not match index dimensionality")
)

// Document is the persisted artifact the core owns: a post, media asset,
// enrichment, author profile, or banner.
//
// Invariants: (ID, DocType) is unique; UpdatedAt >= CreatedAt; mutation
// rewrites the whole record, there is no partial-update path; when Vector
// is present its length must equal the index's configured dimensionality,
// checked by callers that know that dimensionality (the repository does
// not enforce it, since it has no notion of "the current index").
type Document struct {
	ID            string
	DocType       Type
	Title         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Authors       []string
	ContentBody   string
	ContentType   ContentType
	ParentID      string
	SourceWindow  string
	Metadata      map[string]any
	Vector        []float32
}

// Option mutates a Document under construction.
type Option func(*Document)

func WithParentID(id string) Option {
	return func(d *Document) { d.ParentID = id }
}

func WithSourceWindow(label string) Option {
	return func(d *Document) { d.SourceWindow = label }
}

func WithMetadata(md map[string]any) Option {
	return func(d *Document) { d.Metadata = md }
}

func WithVector(v []float32) Option {
	return func(d *Document) { d.Vector = v }
}

// New constructs a validated Document. id must already be resolved by the
// caller (via Slug for posts, a content hash for media/enrichments, or the
// author id for profiles) — New performs no identifier derivation itself,
// since a post without an explicit identifier is a caller bug, not a case
// to paper over with a default.
func New(id string, docType Type, title string, authors []string, contentBody string, contentType ContentType, createdAt, updatedAt time.Time, opts ...Option) (*Document, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	if !validType(docType) {
		return nil, ErrUnknownType
	}
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if updatedAt.Before(createdAt) {
		return nil, ErrUpdatedBeforeCreated
	}

	d := &Document{
		ID:          id,
		DocType:     docType,
		Title:       title,
		Authors:     append([]string(nil), authors...),
		ContentBody: contentBody,
		ContentType: contentType,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
		Metadata:    make(map[string]any),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func validType(t Type) bool {
	switch t {
	case TypePost, TypeMedia, TypeEnrichment, TypeProfile, TypeBanner:
		return true
	default:
		return false
	}
}

// Meta looks up a single Metadata field and wraps it for type coercion,
// so a caller that knows it stored an int or a time.Time doesn't need a
// type assertion to get it back out.
func (d *Document) Meta(key string) *kv.Reply {
	return kv.StringAny(d.Metadata).Reply(key)
}

// CheckVectorDim validates Document.Vector against an index's configured
// dimensionality. A nil vector always passes.
func CheckVectorDim(d *Document, dim int) error {
	if d.Vector == nil {
		return nil
	}
	if len(d.Vector) != dim {
		return ErrVectorDimMismatch
	}
	return nil
}

var slugNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives a URL-safe identifier from a title and disambiguator. It is
// the only legal path for deriving a post identifier — slug generation is a
// pure function of its inputs, so the same (title, disambiguator) always
// produces the same id.
func Slug(title, disambiguator string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugNonAlnum.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "untitled"
	}
	if disambiguator != "" {
		s = s + "-" + disambiguator
	}
	return s
}
