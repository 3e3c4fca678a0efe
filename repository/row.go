package repository

import (
	"fmt"

	"github.com/rivergate/chronicle/document"
)

// Row is the pure storage projection of a document.Document. toRow and
// hydrate are the only two conversion functions between Document and Row;
// no other code in this package builds or reads document fields directly
// from storage.
type Row struct {
	ID           string
	DocType      string
	Title        string
	CreatedAtUTC int64 // unix nanos
	UpdatedAtUTC int64 // unix nanos
	Authors      []string
	ContentBody  string
	ContentType  string
	ParentID     string
	SourceWindow string
	Metadata     map[string]any
	Vector       []float32
}

// toRow projects a Document to its storage Row. Pure: no I/O, no defaults.
func toRow(d *document.Document) Row {
	return Row{
		ID:           d.ID,
		DocType:      string(d.DocType),
		Title:        d.Title,
		CreatedAtUTC: d.CreatedAt.UTC().UnixNano(),
		UpdatedAtUTC: d.UpdatedAt.UTC().UnixNano(),
		Authors:      append([]string(nil), d.Authors...),
		ContentBody:  d.ContentBody,
		ContentType:  string(d.ContentType),
		ParentID:     d.ParentID,
		SourceWindow: d.SourceWindow,
		Metadata:     d.Metadata,
		Vector:       d.Vector,
	}
}

// hydrators dispatches Row -> Document construction on doc_type. Every
// entry shares the same construction logic today, but the table keeps the
// dispatch declarative rather than an if/else or type-switch cascade, and
// gives each doc_type a seam to diverge later.
var hydrators = map[document.Type]func(Row) (*document.Document, error){
	document.TypePost:       hydrateGeneric(document.TypePost),
	document.TypeMedia:      hydrateGeneric(document.TypeMedia),
	document.TypeEnrichment: hydrateGeneric(document.TypeEnrichment),
	document.TypeProfile:    hydrateGeneric(document.TypeProfile),
	document.TypeBanner:     hydrateGeneric(document.TypeBanner),
}

func hydrateGeneric(want document.Type) func(Row) (*document.Document, error) {
	return func(r Row) (*document.Document, error) {
		opts := []document.Option{
			document.WithParentID(r.ParentID),
			document.WithSourceWindow(r.SourceWindow),
		}
		if r.Metadata != nil {
			opts = append(opts, document.WithMetadata(r.Metadata))
		}
		if r.Vector != nil {
			opts = append(opts, document.WithVector(r.Vector))
		}
		return document.New(
			r.ID,
			want,
			r.Title,
			r.Authors,
			r.ContentBody,
			document.ContentType(r.ContentType),
			timeFromUnixNano(r.CreatedAtUTC),
			timeFromUnixNano(r.UpdatedAtUTC),
			opts...,
		)
	}
}

// hydrate dispatches a Row to its Document via the hydrators table.
func hydrate(r Row) (*document.Document, error) {
	fn, ok := hydrators[document.Type(r.DocType)]
	if !ok {
		return nil, fmt.Errorf("repository: hydrate: %w: %q", document.ErrUnknownType, r.DocType)
	}
	return fn(r)
}
