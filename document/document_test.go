package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)

	t.Run("valid document", func(t *testing.T) {
		d, err := New("my-post-a1b2", TypePost, "My Post", []string{"author-1"}, "body", ContentTypeMarkdown, created, updated)

		require.NoError(t, err)
		assert.Equal(t, "my-post-a1b2", d.ID)
		assert.Equal(t, TypePost, d.DocType)
	})

	t.Run("rejects empty id", func(t *testing.T) {
		_, err := New("", TypePost, "Title", nil, "body", ContentTypePlain, created, updated)
		assert.ErrorIs(t, err, ErrEmptyID)
	})

	t.Run("rejects empty title", func(t *testing.T) {
		_, err := New("id1", TypePost, "", nil, "body", ContentTypePlain, created, updated)
		assert.ErrorIs(t, err, ErrEmptyTitle)
	})

	t.Run("rejects unknown doc_type", func(t *testing.T) {
		_, err := New("id1", Type("bogus"), "Title", nil, "body", ContentTypePlain, created, updated)
		assert.ErrorIs(t, err, ErrUnknownType)
	})

	t.Run("rejects updated before created", func(t *testing.T) {
		_, err := New("id1", TypePost, "Title", nil, "body", ContentTypePlain, updated, created)
		assert.ErrorIs(t, err, ErrUpdatedBeforeCreated)
	})
}

func TestCheckVectorDim(t *testing.T) {
	d := &Document{Vector: []float32{1, 2, 3}}

	assert.NoError(t, CheckVectorDim(d, 3))
	assert.ErrorIs(t, CheckVectorDim(d, 4), ErrVectorDimMismatch)
	assert.NoError(t, CheckVectorDim(&Document{}, 5))
}

func TestSlug(t *testing.T) {
	t.Run("derives from title", func(t *testing.T) {
		assert.Equal(t, "hello-world-a1", Slug("Hello, World!", "a1"))
	})

	t.Run("is pure", func(t *testing.T) {
		assert.Equal(t, Slug("Same Title", "x"), Slug("Same Title", "x"))
	})

	t.Run("falls back when title empties out", func(t *testing.T) {
		assert.Equal(t, "untitled-x", Slug("!!!", "x"))
	})

	t.Run("no disambiguator", func(t *testing.T) {
		assert.Equal(t, "hello-world", Slug("Hello World", ""))
	})
}
