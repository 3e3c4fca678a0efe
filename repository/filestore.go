package repository

import (
	"bufio"
	"context"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rivergate/chronicle/document"
)

func init() {
	// Metadata is a JSON-like map[string]any; gob requires its concrete
	// dynamic types registered up front since the field type is an
	// interface.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register([]string{})
	gob.Register(float64(0))
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(true)
}

// FileStore is a single tabular file per archive, implemented as an
// append-only log of gob-encoded Rows with an in-memory index rebuilt at
// open. Writes are serialized by writeMu so the file never observes
// interleaved records from concurrent Upserts; reads are served from the
// in-memory index and never touch disk.
//
// Compact rewrites the log on demand to drop superseded rows, since
// Upsert appends rather than rewrites in place; nothing calls it
// automatically.
type FileStore struct {
	path    string
	writeMu sync.Mutex

	indexMu sync.RWMutex
	index   map[rowKey]Row // latest row per (id, doc_type)
	order   []rowKey       // insertion order, for stable iteration before sort
}

type rowKey struct {
	id      string
	docType string
}

// OpenFileStore opens (creating if absent) the tabular file at path and
// rebuilds the in-memory index by replaying every record in the log.
func OpenFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, wrapErr("open", err)
	}

	s := &FileStore{
		path:  path,
		index: make(map[rowKey]Row),
	}

	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, wrapErr("open", err)
	}
	defer f.Close()

	dec := gob.NewDecoder(bufio.NewReader(f))
	for {
		var r Row
		if err := dec.Decode(&r); err != nil {
			if err == io.EOF {
				break
			}
			return nil, wrapErr("replay", err)
		}
		s.applyReplay(r)
	}

	return s, nil
}

func (s *FileStore) applyReplay(r Row) {
	k := rowKey{id: r.ID, docType: r.DocType}
	if r.ContentType == tombstoneContentType {
		delete(s.index, k)
		return
	}
	if _, exists := s.index[k]; !exists {
		s.order = append(s.order, k)
	}
	s.index[k] = r
}

func (s *FileStore) Get(_ context.Context, id string, docType document.Type) (*document.Document, error) {
	s.indexMu.RLock()
	r, ok := s.index[rowKey{id: id, docType: string(docType)}]
	s.indexMu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return hydrate(r)
}

func (s *FileStore) List(_ context.Context, opts ListOptions) ([]*document.Document, error) {
	s.indexMu.RLock()
	rows := make([]Row, 0, len(s.order))
	for _, k := range s.order {
		r, ok := s.index[k]
		if !ok {
			continue
		}
		rows = append(rows, r)
	}
	s.indexMu.RUnlock()

	var filtered []Row
	for _, r := range rows {
		if !matchesFilter(r, opts.Filter) {
			continue
		}
		filtered = append(filtered, r)
	}

	sortRows(filtered, opts.OrderBy)

	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}

	docs := make([]*document.Document, 0, len(filtered))
	for _, r := range filtered {
		d, err := hydrate(r)
		if err != nil {
			return nil, wrapErr("list", err)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func matchesFilter(r Row, f Filter) bool {
	if f.DocType != "" && r.DocType != string(f.DocType) {
		return false
	}
	if f.ParentID != "" && r.ParentID != f.ParentID {
		return false
	}
	if f.Author != "" && !containsStr(r.Authors, f.Author) {
		return false
	}
	if f.UpdatedAfter != 0 && r.UpdatedAtUTC < f.UpdatedAfter {
		return false
	}
	if f.UpdatedBefore != 0 && r.UpdatedAtUTC > f.UpdatedBefore {
		return false
	}
	return true
}

func containsStr(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}

func sortRows(rows []Row, order OrderBy) {
	field := order.Field
	if field == "" {
		field = OrderByUpdatedAtDesc.Field
	}
	less := func(i, j int) bool {
		switch field {
		case "created_at":
			return rows[i].CreatedAtUTC < rows[j].CreatedAtUTC
		case "title":
			return rows[i].Title < rows[j].Title
		default: // updated_at
			return rows[i].UpdatedAtUTC < rows[j].UpdatedAtUTC
		}
	}
	if order.Ascending {
		sort.SliceStable(rows, less)
		return
	}
	sort.SliceStable(rows, func(i, j int) bool { return less(j, i) })
}

func (s *FileStore) Upsert(_ context.Context, doc *document.Document) error {
	r := toRow(doc)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return wrapErr("upsert", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := gob.NewEncoder(w).Encode(r); err != nil {
		return wrapErr("upsert", err)
	}
	if err := w.Flush(); err != nil {
		return wrapErr("upsert", err)
	}

	s.indexMu.Lock()
	s.applyReplay(r)
	s.indexMu.Unlock()
	return nil
}

// tombstoneContentType marks a row as deleted in the log; Delete appends a
// tombstone rather than rewriting the file, consistent with the
// append-only log design.
const tombstoneContentType = "__deleted__"

func (s *FileStore) Delete(_ context.Context, id string, docType document.Type) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return wrapErr("delete", err)
	}
	defer f.Close()

	tomb := Row{ID: id, DocType: string(docType), ContentType: tombstoneContentType}
	w := bufio.NewWriter(f)
	if err := gob.NewEncoder(w).Encode(tomb); err != nil {
		return wrapErr("delete", err)
	}
	if err := w.Flush(); err != nil {
		return wrapErr("delete", err)
	}

	s.indexMu.Lock()
	delete(s.index, rowKey{id: id, docType: string(docType)})
	s.indexMu.Unlock()
	return nil
}

// RecentPosts is a convenience built atop List with order_by=updated_at desc.
func (s *FileStore) RecentPosts(ctx context.Context, limit int) ([]*document.Document, error) {
	return s.List(ctx, ListOptions{
		Filter:  Filter{DocType: document.TypePost},
		OrderBy: OrderByUpdatedAtDesc,
		Limit:   limit,
	})
}

func (s *FileStore) Close() error {
	return nil
}

// Compact rewrites the log to contain only the current index contents,
// dropping superseded and tombstoned rows. Safe to call concurrently with
// readers; blocks writers for its duration.
func (s *FileStore) Compact() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.indexMu.RLock()
	rows := make([]Row, 0, len(s.index))
	for _, k := range s.order {
		if r, ok := s.index[k]; ok {
			rows = append(rows, r)
		}
	}
	s.indexMu.RUnlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".compact-*")
	if err != nil {
		return wrapErr("compact", err)
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	enc := gob.NewEncoder(w)
	for _, r := range rows {
		if r.ContentType == tombstoneContentType {
			continue
		}
		if err := enc.Encode(r); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return wrapErr("compact", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return wrapErr("compact", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return wrapErr("compact", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return wrapErr("compact", err)
	}
	return nil
}
