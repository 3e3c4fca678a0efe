package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPost(t *testing.T, id, title string, created, updated time.Time, authors ...string) *Document {
	t.Helper()
	d, err := New(id, TypePost, title, authors, "body of "+title, ContentTypeMarkdown, created, updated)
	require.NoError(t, err)
	return d
}

func TestFromEntries(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("aggregates authors and latest updated_at", func(t *testing.T) {
		d1 := mustPost(t, "p1", "First", created, created.Add(time.Hour), "alice")
		d2 := mustPost(t, "p2", "Second", created, created.Add(2*time.Hour), "bob", "alice")

		f, err := FromEntries("feed-1", "My Feed", []*Document{d1, d2})

		require.NoError(t, err)
		assert.Equal(t, "feed-1", f.ID)
		assert.Equal(t, created.Add(2*time.Hour), f.Updated)
		assert.Equal(t, []string{"alice", "bob"}, f.Authors)
	})

	t.Run("rejects non-post documents", func(t *testing.T) {
		media, err := New("m1", TypeMedia, "Media", nil, "x", ContentTypeBinary, created, created)
		require.NoError(t, err)

		_, err = FromEntries("feed-1", "My Feed", []*Document{media})
		assert.ErrorIs(t, err, ErrUnknownType)
	})

	t.Run("rejects empty feed id", func(t *testing.T) {
		_, err := FromEntries("", "My Feed", nil)
		assert.ErrorIs(t, err, ErrEmptyFeedID)
	})
}

func TestFeedMarshalXML(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := mustPost(t, "p1", "First Post", created, created.Add(time.Hour), "alice")

	f, err := FromEntries("feed-1", "My Feed", []*Document{d})
	require.NoError(t, err)

	out1, err := f.MarshalXML()
	require.NoError(t, err)
	out2, err := f.MarshalXML()
	require.NoError(t, err)

	assert.Equal(t, out1, out2, "serialization must be deterministic")
	assert.Contains(t, string(out1), "<title>First Post</title>")
	assert.Contains(t, string(out1), `xmlns="http://www.w3.org/2005/Atom"`)
}
