// Package adapter defines the input adapter contract (C11): the uniform
// boundary every source — a chat export, a Kafka topic, or any other
// append-only message stream — crosses to become a normalized entry
// stream. A Source is the only place its source's privacy/PII policy is
// encoded; the core trusts every entry it yields as already anonymized.
package adapter

import (
	"context"
	"iter"

	"github.com/rivergate/chronicle/document"
	"github.com/rivergate/chronicle/entry"
)

// Metadata identifies the adapter producing an entry stream.
type Metadata struct {
	SourceName    string
	Version       string
	SchemaVersion string
}

// Source is the input adapter contract consumed by the pipeline runner.
type Source interface {
	// ReadEntries streams entries ordered by timestamp. The iterator's
	// second value is non-nil on a malformed record; the runner aborts the
	// run before committing any window rather than skipping the record
	// silently.
	ReadEntries(ctx context.Context) iter.Seq2[*entry.Entry, error]

	// ExtractMedia materializes media referenced by entries under root
	// into targetDir, returning a Document per reference. A source with
	// nothing to materialize returns an empty map.
	ExtractMedia(ctx context.Context, root, targetDir string) (map[string]*document.Document, error)

	GetMetadata() Metadata
}
