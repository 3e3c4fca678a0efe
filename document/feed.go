package document

import (
	"encoding/xml"
	"errors"
	"time"

	"github.com/samber/lo"
)

// ErrEmptyFeedID is returned when constructing a Feed without a stable id.
var ErrEmptyFeedID = errors.New("document: feed id must not be empty")

// Feed is an ordered collection of post documents rendered for syndication.
// Serialization is driven entirely by the xml struct tags on feedXML and
// its children: there is no imperative string building anywhere in the
// output path, so the same Feed always produces byte-identical XML.
type Feed struct {
	ID      string
	Title   string
	Updated time.Time
	Authors []string
	Entries []*Document
}

// FromEntries assembles a Feed from an ordered slice of post documents.
// Only documents with DocType == TypePost are eligible; callers are
// expected to have already filtered, since silently dropping non-posts
// here would hide a caller bug.
func FromEntries(id, title string, docs []*Document) (*Feed, error) {
	if id == "" {
		return nil, ErrEmptyFeedID
	}

	var updated time.Time
	authorSet := make(map[string]bool)
	var authors []string
	for _, d := range docs {
		if d.DocType != TypePost {
			return nil, ErrUnknownType
		}
		if d.UpdatedAt.After(updated) {
			updated = d.UpdatedAt
		}
		for _, a := range d.Authors {
			if !authorSet[a] {
				authorSet[a] = true
				authors = append(authors, a)
			}
		}
	}

	return &Feed{
		ID:      id,
		Title:   title,
		Updated: updated,
		Authors: authors,
		Entries: append([]*Document(nil), docs...),
	}, nil
}

// feedXML, entryXML, and personXML are the declarative Atom templates:
// encoding/xml walks these struct tags to produce output, rather than any
// code in this package concatenating strings.
type feedXML struct {
	XMLName xml.Name    `xml:"feed"`
	Xmlns   string      `xml:"xmlns,attr"`
	ID      string      `xml:"id"`
	Title   string      `xml:"title"`
	Updated string      `xml:"updated"`
	Authors []personXML `xml:"author,omitempty"`
	Entries []entryXML  `xml:"entry"`
}

type personXML struct {
	Name string `xml:"name"`
}

type entryXML struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Updated   string      `xml:"updated"`
	Published string      `xml:"published"`
	Authors   []personXML `xml:"author,omitempty"`
	Content   contentXML  `xml:"content"`
}

type contentXML struct {
	Type string `xml:"type,attr"`
	Body string `xml:",chardata"`
}

const atomNS = "http://www.w3.org/2005/Atom"

// MarshalXML renders the feed as an Atom document. The rendering is a pure
// projection from Feed to feedXML; encoding/xml performs the actual
// serialization.
func (f *Feed) MarshalXML() ([]byte, error) {
	fx := feedXML{
		Xmlns:   atomNS,
		ID:      f.ID,
		Title:   f.Title,
		Updated: formatAtomTime(f.Updated),
		Authors: toPersons(f.Authors),
	}
	for _, d := range f.Entries {
		ct := "text"
		if d.ContentType == ContentTypeMarkdown {
			ct = "text/markdown"
		} else if d.ContentType == ContentTypeBinary {
			ct = "application/octet-stream"
		}
		fx.Entries = append(fx.Entries, entryXML{
			ID:        d.ID,
			Title:     d.Title,
			Updated:   formatAtomTime(d.UpdatedAt),
			Published: formatAtomTime(d.CreatedAt),
			Authors:   toPersons(d.Authors),
			Content: contentXML{
				Type: ct,
				Body: d.ContentBody,
			},
		})
	}

	out, err := xml.MarshalIndent(fx, "", "  ")
	if err != nil {
		return nil, err
	}
	header := []byte(xml.Header)
	return append(header, out...), nil
}

func toPersons(names []string) []personXML {
	if len(names) == 0 {
		return nil
	}
	return lo.Map(names, func(n string, _ int) personXML {
		return personXML{Name: n}
	})
}

func formatAtomTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
