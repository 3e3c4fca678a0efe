// Package repository implements the Document repository: a single-writer,
// tabular persistent store keyed by stable (id, doc_type), with filtering,
// ordering, and limiting pushed to the storage layer.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rivergate/chronicle/document"
)

// ErrNotFound is returned by Get when no row matches (id, doc_type). It is a
// recoverable signal, not an error condition callers need to log.
var ErrNotFound = errors.New("repository: document not found")

// RepositoryError wraps underlying storage I/O failures.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository: %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RepositoryError{Op: op, Err: err}
}

// OrderBy names a sortable column and direction.
type OrderBy struct {
	Field     string
	Ascending bool
}

var OrderByUpdatedAtDesc = OrderBy{Field: "updated_at", Ascending: false}

// Filter constrains a List query. A zero-value field means "unconstrained".
type Filter struct {
	DocType       document.Type
	ParentID      string
	Author        string
	UpdatedAfter  int64 // unix nanos; 0 means unconstrained
	UpdatedBefore int64 // unix nanos; 0 means unconstrained
}

// ListOptions bundles the filter, ordering, and limit pushed down to the
// storage query layer. Callers never receive the full table to filter in
// memory.
type ListOptions struct {
	Filter  Filter
	OrderBy OrderBy
	Limit   int
}

// Store is the Document repository contract. Implementations own all
// persistence of documents exclusively: nothing else in the system writes
// document rows directly.
type Store interface {
	Get(ctx context.Context, id string, docType document.Type) (*document.Document, error)
	List(ctx context.Context, opts ListOptions) ([]*document.Document, error)
	Upsert(ctx context.Context, doc *document.Document) error
	Delete(ctx context.Context, id string, docType document.Type) error
	RecentPosts(ctx context.Context, limit int) ([]*document.Document, error)
	Close() error
}
