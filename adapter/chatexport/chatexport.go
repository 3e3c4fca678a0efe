// Package chatexport adapts a JSON-lines group-chat archive (one
// adapter.RawEntry per line) to adapter.Source — the reference input
// adapter used outside a broker, exercising the contract on a plain file
// rather than a live stream.
package chatexport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/rivergate/chronicle/adapter"
	"github.com/rivergate/chronicle/document"
	"github.com/rivergate/chronicle/entry"
)

// Source reads a JSON-lines chat export from Path, anonymizing authors
// under Namespace as each line is decoded.
type Source struct {
	Path          string
	Namespace     string
	SourceName    string
	SchemaVersion string
}

var _ adapter.Source = (*Source)(nil)

const version = "chatexport/v1"

// ReadEntries opens Path and decodes it one line at a time so a
// multi-gigabyte export never needs to be held in memory at once. A line
// that fails to parse surfaces as the iterator's error value, aborting
// the run before any window is committed, per adapter.Source's contract.
func (s *Source) ReadEntries(ctx context.Context) iter.Seq2[*entry.Entry, error] {
	return func(yield func(*entry.Entry, error) bool) {
		f, err := os.Open(s.Path)
		if err != nil {
			yield(nil, fmt.Errorf("chatexport: open %s: %w", s.Path, err))
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var raw adapter.RawEntry
			if err := json.Unmarshal([]byte(line), &raw); err != nil {
				if !yield(nil, fmt.Errorf("chatexport: line %d: %w", lineNo, err)) {
					return
				}
				continue
			}

			e, err := adapter.ToEntry(raw, s.Namespace, s.SourceName)
			if err != nil {
				if !yield(nil, fmt.Errorf("chatexport: line %d: %w", lineNo, err)) {
					return
				}
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("chatexport: scan %s: %w", s.Path, err))
		}
	}
}

// ExtractMedia copies every regular file directly under root (whether or
// not an entry references it; subdirectories are skipped) into targetDir,
// producing one document.TypeMedia per file. A chat
// export with no accompanying media directory (root == "") returns an
// empty map rather than an error, since not every export bundles media.
func (s *Source) ExtractMedia(ctx context.Context, root, targetDir string) (map[string]*document.Document, error) {
	out := make(map[string]*document.Document)
	if root == "" {
		return out, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("chatexport: read media dir %s: %w", root, err)
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("chatexport: create media target %s: %w", targetDir, err)
	}

	for _, de := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if de.IsDir() {
			continue
		}
		name := de.Name()
		srcPath := filepath.Join(root, name)
		dstPath := filepath.Join(targetDir, name)
		if err := copyFile(srcPath, dstPath); err != nil {
			return nil, fmt.Errorf("chatexport: copy %s: %w", name, err)
		}

		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("chatexport: stat %s: %w", name, err)
		}
		modTime := info.ModTime().UTC()
		doc, err := document.New(name, document.TypeMedia, name, nil, dstPath, document.ContentTypeBinary, modTime, modTime)
		if err != nil {
			return nil, fmt.Errorf("chatexport: build media document %s: %w", name, err)
		}
		out[name] = doc
	}
	return out, nil
}

func (s *Source) GetMetadata() adapter.Metadata {
	return adapter.Metadata{
		SourceName:    s.SourceName,
		Version:       version,
		SchemaVersion: s.SchemaVersion,
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
