package entry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utcNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestNew(t *testing.T) {
	t.Run("valid entry", func(t *testing.T) {
		e, err := New("e1", "chatgpt-export", utcNow(), "author-abc", "hello world")

		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, "e1", e.ID)
		assert.Equal(t, "chatgpt-export", e.Source)
		assert.Equal(t, "author-abc", e.AuthorID)
		assert.Equal(t, "hello world", e.Content)
	})

	t.Run("rejects empty id", func(t *testing.T) {
		_, err := New("", "src", utcNow(), "author", "content")
		assert.ErrorIs(t, err, ErrEmptyID)
	})

	t.Run("rejects empty source", func(t *testing.T) {
		_, err := New("e1", "", utcNow(), "author", "content")
		assert.ErrorIs(t, err, ErrEmptySource)
	})

	t.Run("rejects empty author id", func(t *testing.T) {
		_, err := New("e1", "src", utcNow(), "", "content")
		assert.ErrorIs(t, err, ErrEmptyAuthorID)
	})

	t.Run("rejects non-UTC timestamp", func(t *testing.T) {
		loc := time.FixedZone("PST", -8*60*60)
		_, err := New("e1", "src", time.Date(2026, 3, 1, 12, 0, 0, 0, loc), "author", "content")
		assert.ErrorIs(t, err, ErrNonUTCTimestamp)
	})

	t.Run("applies options", func(t *testing.T) {
		e, err := New("e1", "src", utcNow(), "author", "content",
			WithAuthorDisplay("Alice"),
			WithMediaRefs("ref1", "ref2"),
			WithLinks(Link{URL: "https://example.com"}),
			WithExtension("thread_id", "t-1"),
		)

		require.NoError(t, err)
		assert.Equal(t, "Alice", e.AuthorDisplay)
		assert.Equal(t, []string{"ref1", "ref2"}, e.MediaRefs)
		assert.Equal(t, []Link{{URL: "https://example.com"}}, e.Links)
		assert.Equal(t, "t-1", e.Extensions["thread_id"])
	})
}

func TestExtractLinks(t *testing.T) {
	t.Run("extracts absolute http(s) urls", func(t *testing.T) {
		links := ExtractLinks("see https://example.com/a and http://other.org/b.")

		require.Len(t, links, 2)
		assert.Equal(t, "https://example.com/a", links[0].URL)
		assert.Equal(t, "http://other.org/b", links[1].URL)
	})

	t.Run("deduplicates repeated urls", func(t *testing.T) {
		links := ExtractLinks("https://example.com https://example.com")
		assert.Len(t, links, 1)
	})

	t.Run("ignores non-url tokens", func(t *testing.T) {
		links := ExtractLinks("no links here, just text.")
		assert.Empty(t, links)
	})
}
