package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/tally/internal/counts"
	"github.com/mesh-intelligence/tally/internal/relations"
	"github.com/mesh-intelligence/tally/pkg/types"
)

func newCountStack(b *Backend) (*counts.Manager, *relations.Service) {
	m := counts.NewManager(counts.Stores{
		Relationships: b,
		Meta:          b,
		Taxonomies:    b,
		Terms:         b,
	})
	return m, relations.NewService(b, b, b, m)
}

func TestCountCacheOverSQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: dir}

	b := NewBackend()
	require.NoError(t, b.Attach(cfg))
	seed(t, b)
	term, err := b.CreateTerm("tag", "Go")
	require.NoError(t, err)

	m, svc := newCountStack(b)

	n, err := m.GetObjectCount(term.TermID, "tag", "post")
	require.NoError(t, err)
	assert.Zero(t, n)
	keys, err := b.MetaKeys(term.TermID)
	require.NoError(t, err)
	assert.Empty(t, keys, "empty term creates no cache state")

	require.NoError(t, svc.AddObjectTerms("p1", "post", "tag", term.TermID))
	require.NoError(t, svc.AddObjectTerms("p2", "post", "tag", term.TermID))
	require.NoError(t, svc.AddObjectTerms("g1", "page", "tag", term.TermID))

	n, err = m.GetObjectCount(term.TermID, "tag", "post")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = m.GetObjectCount(term.TermID, "tag", "page")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	total, err := b.GetCount(term.TermID)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.NoError(t, b.Detach())

	// The cache survives a reload from JSONL.
	b2 := setupBackendWith(t, cfg)
	m2, svc2 := newCountStack(b2)

	v, ok, err := b2.Get(term.TermID, counts.CountedTypesKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `["post","page"]`, v)

	require.NoError(t, svc2.RemoveObjectTerms("g1", "page", "tag", term.TermID))
	n, err = m2.GetObjectCount(term.TermID, "tag", "page")
	require.NoError(t, err)
	assert.Zero(t, n)
	_, ok, err = b2.Get(term.TermID, counts.ObjectCountKey("page"))
	require.NoError(t, err)
	assert.False(t, ok, "zero counts delete the entry")

	total, err = b2.GetCount(term.TermID)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestRecountAfterCorruptionOverSQLite(t *testing.T) {
	b := setupBackend(t)
	seed(t, b)
	term, err := b.CreateTerm("tag", "Go")
	require.NoError(t, err)
	m, svc := newCountStack(b)

	require.NoError(t, svc.AddObjectTerms("p1", "post", "tag", term.TermID))
	_, err = m.GetObjectCount(term.TermID, "tag", "post")
	require.NoError(t, err)

	require.NoError(t, b.Set(term.TermID, counts.ObjectCountKey("post"), "41"))
	n, err := m.GetObjectCount(term.TermID, "tag", "post")
	require.NoError(t, err)
	assert.Equal(t, 41, n, "cached values are trusted until recounted")

	total, err := m.Recount(term.TermID, "tag")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	n, err = m.GetObjectCount(term.TermID, "tag", "post")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSingleTypeTaxonomyOverSQLite(t *testing.T) {
	b := setupBackend(t)
	seed(t, b)
	term, err := b.CreateTerm("category", "News")
	require.NoError(t, err)
	m, svc := newCountStack(b)

	require.NoError(t, svc.SetObjectTerms("p1", "post", "category", term.TermID))
	require.NoError(t, svc.SetObjectTerms("p2", "post", "category", term.TermID))

	n, err := m.GetObjectCount(term.TermID, "category", "post")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	keys, err := b.MetaKeys(term.TermID)
	require.NoError(t, err)
	assert.Empty(t, keys, "single-type taxonomies keep no meta")
}
