package counts

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/tally/internal/memory"
	"github.com/mesh-intelligence/tally/pkg/types"
)

// countingRelationships records how many live queries reach the store.
type countingRelationships struct {
	types.RelationshipStore
	mu      sync.Mutex
	queries int
}

func (c *countingRelationships) CountObjectsOfTypeForTerm(termID, objectType string) (int, error) {
	c.mu.Lock()
	c.queries++
	c.mu.Unlock()
	return c.RelationshipStore.CountObjectsOfTypeForTerm(termID, objectType)
}

func (c *countingRelationships) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries
}

type fixture struct {
	store   *memory.Store
	rels    *countingRelationships
	manager *Manager
}

// setupManager registers post and page (countable), user (not countable),
// and the taxonomies category [post], tag [post, page], audience [user, post].
func setupManager(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	s := memory.New()
	require.NoError(t, s.RegisterObjectType(types.ObjectType{Name: "post", Countable: true}))
	require.NoError(t, s.RegisterObjectType(types.ObjectType{Name: "page", Countable: true}))
	require.NoError(t, s.RegisterObjectType(types.ObjectType{Name: "user"}))
	require.NoError(t, s.RegisterTaxonomy("category", "post"))
	require.NoError(t, s.RegisterTaxonomy("tag", "post", "page"))
	require.NoError(t, s.RegisterTaxonomy("audience", "user", "post"))

	rels := &countingRelationships{RelationshipStore: s}
	m := NewManager(Stores{
		Relationships: rels,
		Meta:          s,
		Taxonomies:    s,
		Terms:         s,
	}, opts...)
	return &fixture{store: s, rels: rels, manager: m}
}

func (f *fixture) term(t *testing.T, taxonomy string) string {
	t.Helper()
	term, err := f.store.CreateTerm(taxonomy, "term-"+taxonomy)
	require.NoError(t, err)
	return term.TermID
}

// link adds a relationship and invalidates the affected entry, the way the
// relationship mutation service does.
func (f *fixture) link(t *testing.T, objectID, objectType, termID, taxonomy string) {
	t.Helper()
	_, err := f.store.AddRelationship(objectID, objectType, termID)
	require.NoError(t, err)
	require.NoError(t, f.manager.Invalidate(termID, taxonomy, objectType))
}

func (f *fixture) unlink(t *testing.T, objectID, objectType, termID, taxonomy string) {
	t.Helper()
	_, err := f.store.RemoveRelationship(objectID, objectType, termID)
	require.NoError(t, err)
	require.NoError(t, f.manager.Invalidate(termID, taxonomy, objectType))
}

func (f *fixture) meta(t *testing.T, termID, key string) (string, bool) {
	t.Helper()
	v, ok, err := f.store.Get(termID, key)
	require.NoError(t, err)
	return v, ok
}

func (f *fixture) metaKeys(t *testing.T, termID string) []string {
	t.Helper()
	keys, err := f.store.MetaKeys(termID)
	require.NoError(t, err)
	return keys
}

func (f *fixture) termCount(t *testing.T, termID string) int {
	t.Helper()
	n, err := f.store.GetCount(termID)
	require.NoError(t, err)
	return n
}

func (f *fixture) objectCount(t *testing.T, termID, taxonomy, objectType string) int {
	t.Helper()
	n, err := f.manager.GetObjectCount(termID, taxonomy, objectType)
	require.NoError(t, err)
	return n
}

func TestGetObjectCountValidation(t *testing.T) {
	f := setupManager(t)
	tagTerm := f.term(t, "tag")
	categoryTerm := f.term(t, "category")

	tests := []struct {
		name       string
		termID     string
		taxonomy   string
		objectType string
		wantErr    error
	}{
		{"unregistered taxonomy", tagTerm, "does-not-exist", "post", types.ErrInvalidTaxonomy},
		{"object type not in taxonomy", tagTerm, "category", "page", types.ErrObjectTypeNotInTaxonomy},
		{"empty object type", tagTerm, "tag", "", types.ErrObjectTypeNotInTaxonomy},
		{"empty term", "", "category", "post", types.ErrInvalidTerm},
		{"unknown term", "missing", "tag", "post", types.ErrInvalidTerm},
		{"term of another taxonomy", categoryTerm, "tag", "post", types.ErrInvalidTerm},
		{"taxonomy checked before object type", "", "nope", "nope", types.ErrInvalidTaxonomy},
		{"object type checked before term", "", "tag", "user", types.ErrObjectTypeNotInTaxonomy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := f.manager.GetObjectCount(tt.termID, tt.taxonomy, tt.objectType)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, n)
		})
	}

	assert.Empty(t, f.metaKeys(t, tagTerm), "validation failures must not touch the cache")
	assert.Zero(t, f.rels.count())
}

func TestSingleObjectTypeTaxonomy(t *testing.T) {
	f := setupManager(t)
	termID := f.term(t, "category")

	f.link(t, "p1", "post", termID, "category")

	assert.Empty(t, f.metaKeys(t, termID))
	assert.Equal(t, 1, f.objectCount(t, termID, "category", "post"))
	assert.Equal(t, 1, f.termCount(t, termID))

	f.unlink(t, "p1", "post", termID, "category")

	assert.Equal(t, 0, f.objectCount(t, termID, "category", "post"))
	assert.Equal(t, 0, f.termCount(t, termID))
	assert.Empty(t, f.metaKeys(t, termID), "single-type taxonomies never create per-type entries")
}

func TestSingleObjectTypeUsesTermCount(t *testing.T) {
	f := setupManager(t)
	termID := f.term(t, "category")

	// The term's own count is authoritative, even when it disagrees with
	// the relationship store.
	require.NoError(t, f.store.SetCount(termID, 7))
	assert.Equal(t, 7, f.objectCount(t, termID, "category", "post"))
	assert.Zero(t, f.rels.count())
}

func TestMultipleObjectTypes(t *testing.T) {
	f := setupManager(t)
	termID := f.term(t, "tag")

	// No relationships: zero everywhere and nothing cached.
	assert.Equal(t, 0, f.objectCount(t, termID, "tag", "post"))
	assert.Equal(t, 0, f.objectCount(t, termID, "tag", "page"))
	assert.Empty(t, f.metaKeys(t, termID))

	f.link(t, "p1", "post", termID, "tag")

	assert.Equal(t, 1, f.objectCount(t, termID, "tag", "post"))
	assert.Equal(t, 0, f.objectCount(t, termID, "tag", "page"))
	marker, ok := f.meta(t, termID, CountedTypesKey)
	require.True(t, ok)
	assert.JSONEq(t, `["post","page"]`, marker)
	v, ok := f.meta(t, termID, ObjectCountKey("post"))
	require.True(t, ok)
	assert.Equal(t, "1", v)
	_, ok = f.meta(t, termID, ObjectCountKey("page"))
	assert.False(t, ok)
	assert.Equal(t, 1, f.termCount(t, termID))

	f.link(t, "pg1", "page", termID, "tag")

	assert.Equal(t, 1, f.objectCount(t, termID, "tag", "post"))
	assert.Equal(t, 1, f.objectCount(t, termID, "tag", "page"))
	v, _ = f.meta(t, termID, ObjectCountKey("post"))
	assert.Equal(t, "1", v)
	v, _ = f.meta(t, termID, ObjectCountKey("page"))
	assert.Equal(t, "1", v)
	assert.Equal(t, 2, f.termCount(t, termID))

	f.unlink(t, "pg1", "page", termID, "tag")

	assert.Equal(t, 1, f.objectCount(t, termID, "tag", "post"))
	assert.Equal(t, 0, f.objectCount(t, termID, "tag", "page"))
	marker, ok = f.meta(t, termID, CountedTypesKey)
	require.True(t, ok)
	assert.JSONEq(t, `["post","page"]`, marker)
	_, ok = f.meta(t, termID, ObjectCountKey("page"))
	assert.False(t, ok, "zero counts delete the entry")
	assert.Equal(t, 1, f.termCount(t, termID))

	f.unlink(t, "p1", "post", termID, "tag")

	assert.Equal(t, 0, f.objectCount(t, termID, "tag", "post"))
	assert.Equal(t, 0, f.objectCount(t, termID, "tag", "page"))
	marker, ok = f.meta(t, termID, CountedTypesKey)
	require.True(t, ok, "invalidation never removes the marker")
	assert.JSONEq(t, `["post","page"]`, marker)
	assert.Equal(t, []string{CountedTypesKey}, f.metaKeys(t, termID))
	assert.Equal(t, 0, f.termCount(t, termID))
}

func TestCacheHitSkipsRelationshipStore(t *testing.T) {
	f := setupManager(t)
	termID := f.term(t, "tag")
	f.link(t, "p1", "post", termID, "tag")

	// First read recomputes every type once.
	assert.Equal(t, 1, f.objectCount(t, termID, "tag", "post"))
	before := f.rels.count()

	for i := 0; i < 5; i++ {
		assert.Equal(t, 1, f.objectCount(t, termID, "tag", "post"))
		assert.Equal(t, 0, f.objectCount(t, termID, "tag", "page"))
	}
	assert.Equal(t, before, f.rels.count())
}

func TestLegacyTermRecomputes(t *testing.T) {
	f := setupManager(t)
	termID := f.term(t, "tag")
	f.link(t, "p1", "post", termID, "tag")

	// Mimic a legacy term: the cache was never written.
	require.NoError(t, f.store.Delete(termID, ObjectCountKey("post")))
	require.NoError(t, f.store.Delete(termID, CountedTypesKey))

	assert.Equal(t, 1, f.objectCount(t, termID, "tag", "post"))
	v, ok := f.meta(t, termID, ObjectCountKey("post"))
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestStaleEntriesWithoutMarkerAreIgnored(t *testing.T) {
	f := setupManager(t)
	termID := f.term(t, "tag")
	f.link(t, "p1", "post", termID, "tag")

	require.NoError(t, f.store.Delete(termID, CountedTypesKey))
	require.NoError(t, f.store.Set(termID, ObjectCountKey("post"), "42"))
	require.NoError(t, f.store.Set(termID, ObjectCountKey("page"), "9"))

	assert.Equal(t, 1, f.objectCount(t, termID, "tag", "post"))
	assert.Equal(t, 0, f.objectCount(t, termID, "tag", "page"))
	_, ok := f.meta(t, termID, ObjectCountKey("page"))
	assert.False(t, ok)
	assert.Equal(t, 1, f.termCount(t, termID))
}

func TestMarkerMismatchRecomputes(t *testing.T) {
	f := setupManager(t)
	termID := f.term(t, "tag")
	f.link(t, "p1", "post", termID, "tag")
	f.link(t, "pg1", "page", termID, "tag")
	assert.Equal(t, 1, f.objectCount(t, termID, "tag", "page"))

	// Same types in a different order no longer match.
	require.NoError(t, f.store.Set(termID, CountedTypesKey, `["page","post"]`))
	require.NoError(t, f.store.Set(termID, ObjectCountKey("page"), "5"))

	assert.Equal(t, 1, f.objectCount(t, termID, "tag", "page"))
	marker, _ := f.meta(t, termID, CountedTypesKey)
	assert.JSONEq(t, `["post","page"]`, marker)
	assert.Equal(t, 2, f.termCount(t, termID))
}

func TestMalformedCacheValuesRecompute(t *testing.T) {
	f := setupManager(t)
	termID := f.term(t, "tag")
	f.link(t, "p1", "post", termID, "tag")
	assert.Equal(t, 1, f.objectCount(t, termID, "tag", "post"))

	require.NoError(t, f.store.Set(termID, ObjectCountKey("post"), "lots"))
	assert.Equal(t, 1, f.objectCount(t, termID, "tag", "post"))
	v, _ := f.meta(t, termID, ObjectCountKey("post"))
	assert.Equal(t, "1", v)

	require.NoError(t, f.store.Set(termID, CountedTypesKey, "{not json"))
	assert.Equal(t, 1, f.objectCount(t, termID, "tag", "post"))
	marker, _ := f.meta(t, termID, CountedTypesKey)
	assert.JSONEq(t, `["post","page"]`, marker)
}

func TestNonCountableObjectType(t *testing.T) {
	f := setupManager(t)
	termID := f.term(t, "audience")

	f.link(t, "u1", "user", termID, "audience")
	assert.Equal(t, 0, f.objectCount(t, termID, "audience", "user"))
	_, ok := f.meta(t, termID, ObjectCountKey("user"))
	assert.False(t, ok)

	f.link(t, "p1", "post", termID, "audience")
	assert.Equal(t, 0, f.objectCount(t, termID, "audience", "user"))
	assert.Equal(t, 1, f.objectCount(t, termID, "audience", "post"))
	assert.Equal(t, 1, f.termCount(t, termID))

	// Even a stale non-zero entry for the type is not reported.
	require.NoError(t, f.store.Set(termID, ObjectCountKey("user"), "3"))
	assert.Equal(t, 0, f.objectCount(t, termID, "audience", "user"))
}

func TestObjectCounts(t *testing.T) {
	f := setupManager(t)
	termID := f.term(t, "tag")

	counts, err := f.manager.ObjectCounts(termID, "tag")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"post": 0, "page": 0}, counts)

	f.link(t, "p1", "post", termID, "tag")
	f.link(t, "p2", "post", termID, "tag")

	counts, err = f.manager.ObjectCounts(termID, "tag")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"post": 2, "page": 0}, counts)

	// Cached path returns the same shape.
	counts, err = f.manager.ObjectCounts(termID, "tag")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"post": 2, "page": 0}, counts)

	catTerm := f.term(t, "category")
	f.link(t, "p1", "post", catTerm, "category")
	counts, err = f.manager.ObjectCounts(catTerm, "category")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"post": 1}, counts)

	_, err = f.manager.ObjectCounts(termID, "nope")
	assert.ErrorIs(t, err, types.ErrInvalidTaxonomy)
	_, err = f.manager.ObjectCounts(catTerm, "tag")
	assert.ErrorIs(t, err, types.ErrInvalidTerm)
}

func TestResetAndRecount(t *testing.T) {
	f := setupManager(t)
	termID := f.term(t, "tag")
	f.link(t, "p1", "post", termID, "tag")
	f.link(t, "pg1", "page", termID, "tag")
	assert.Equal(t, 1, f.objectCount(t, termID, "tag", "post"))

	// An entry for a type the taxonomy no longer has.
	require.NoError(t, f.store.Set(termID, CountedTypesKey, `["post","page","note"]`))
	require.NoError(t, f.store.Set(termID, ObjectCountKey("note"), "4"))

	require.NoError(t, f.manager.Reset(termID, "tag"))
	assert.Empty(t, f.metaKeys(t, termID))

	// Corrupt the aggregate, then recount.
	require.NoError(t, f.store.SetCount(termID, 99))
	total, err := f.manager.Recount(termID, "tag")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, f.termCount(t, termID))
	assert.Equal(t, []string{CountedTypesKey, ObjectCountKey("page"), ObjectCountKey("post")}, f.metaKeys(t, termID))

	catTerm := f.term(t, "category")
	_, err = f.store.AddRelationship("p1", "post", catTerm)
	require.NoError(t, err)
	total, err = f.manager.Recount(catTerm, "category")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, f.termCount(t, catTerm))
	assert.Empty(t, f.metaKeys(t, catTerm))

	assert.ErrorIs(t, f.manager.Reset(termID, "nope"), types.ErrInvalidTaxonomy)
	_, err = f.manager.Recount("missing", "tag")
	assert.ErrorIs(t, err, types.ErrInvalidTerm)
}

func TestInvalidateValidation(t *testing.T) {
	f := setupManager(t)
	termID := f.term(t, "tag")

	assert.ErrorIs(t, f.manager.Invalidate(termID, "nope", "post"), types.ErrInvalidTaxonomy)
	assert.ErrorIs(t, f.manager.Invalidate(termID, "tag", "user"), types.ErrObjectTypeNotInTaxonomy)
	assert.ErrorIs(t, f.manager.Invalidate("missing", "tag", "post"), types.ErrInvalidTerm)
	assert.Empty(t, f.metaKeys(t, termID))
}

func TestInvalidateSumsPresentEntriesOnly(t *testing.T) {
	f := setupManager(t)
	termID := f.term(t, "tag")
	_, err := f.store.AddRelationship("p1", "post", termID)
	require.NoError(t, err)

	// A page entry from an earlier recompute is still cached.
	require.NoError(t, f.store.Set(termID, ObjectCountKey("page"), "3"))
	require.NoError(t, f.manager.Invalidate(termID, "tag", "post"))
	assert.Equal(t, 4, f.termCount(t, termID))
	_, ok := f.meta(t, termID, CountedTypesKey)
	assert.False(t, ok, "invalidation does not write the marker")

	// Without a marker the next read recomputes and the aggregate heals.
	assert.Equal(t, 1, f.objectCount(t, termID, "tag", "post"))
	assert.Equal(t, 1, f.termCount(t, termID))
	_, ok = f.meta(t, termID, ObjectCountKey("page"))
	assert.False(t, ok)
}

var errStoreDown = errors.New("store unavailable")

type failingMeta struct {
	types.TermMetaStore
	failGet bool
	failSet bool
}

func (f *failingMeta) Get(termID, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errStoreDown
	}
	return f.TermMetaStore.Get(termID, key)
}

func (f *failingMeta) Set(termID, key, value string) error {
	if f.failSet {
		return errStoreDown
	}
	return f.TermMetaStore.Set(termID, key, value)
}

type failingRelationships struct{}

func (failingRelationships) CountObjectsOfTypeForTerm(string, string) (int, error) {
	return 0, errStoreDown
}

func TestStoreErrorsPropagate(t *testing.T) {
	f := setupManager(t)
	termID := f.term(t, "tag")
	_, err := f.store.AddRelationship("p1", "post", termID)
	require.NoError(t, err)

	meta := &failingMeta{TermMetaStore: f.store, failGet: true}
	m := NewManager(Stores{Relationships: f.store, Meta: meta, Taxonomies: f.store, Terms: f.store})
	_, err = m.GetObjectCount(termID, "tag", "post")
	assert.Same(t, errStoreDown, err)

	meta.failGet, meta.failSet = false, true
	_, err = m.GetObjectCount(termID, "tag", "post")
	assert.Same(t, errStoreDown, err)

	m = NewManager(Stores{Relationships: failingRelationships{}, Meta: f.store, Taxonomies: f.store, Terms: f.store})
	_, err = m.GetObjectCount(termID, "tag", "post")
	assert.Same(t, errStoreDown, err)
	assert.Same(t, errStoreDown, m.Invalidate(termID, "tag", "post"))
	assert.Empty(t, f.metaKeys(t, termID))
}

func TestSumCounts(t *testing.T) {
	tests := []struct {
		name        string
		entries     map[string]int
		objectTypes []string
		want        int
	}{
		{"no entries", nil, []string{"post", "page"}, 0},
		{"absent entries count zero", map[string]int{"post": 2}, []string{"post", "page"}, 2},
		{"all present", map[string]int{"post": 2, "page": 3}, []string{"post", "page"}, 5},
		{"types outside the taxonomy are ignored", map[string]int{"post": 2, "note": 8}, []string{"post", "page"}, 2},
		{"no types", map[string]int{"post": 2}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SumCounts(tt.entries, tt.objectTypes))
		})
	}
}

func TestTermLockingSerializesInvalidations(t *testing.T) {
	f := setupManager(t, WithTermLocking())
	termID := f.term(t, "tag")

	const perType = 20
	for i := 0; i < perType; i++ {
		_, err := f.store.AddRelationship("p"+string(rune('a'+i)), "post", termID)
		require.NoError(t, err)
		_, err = f.store.AddRelationship("g"+string(rune('a'+i)), "page", termID)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < perType; i++ {
		for _, ot := range []string{"post", "page"} {
			wg.Add(1)
			go func(objectType string) {
				defer wg.Done()
				assert.NoError(t, f.manager.Invalidate(termID, "tag", objectType))
			}(ot)
		}
	}
	wg.Wait()

	assert.Equal(t, 2*perType, f.termCount(t, termID))
	assert.Zero(t, f.manager.locks.size())
}
