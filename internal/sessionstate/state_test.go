package sessionstate

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t0 }
}

func TestNewStateDefaults(t *testing.T) {
	st := NewState("s1")

	assert.Equal(t, CurrentSearch{SortBy: DefaultSortBy}, st.CurrentSearch())
	assert.Equal(t, Pagination{Page: 1, PageSize: 10}, st.Pagination())
	assert.Empty(t, st.Preferences())
	assert.Equal(t, ConversationContext{}, st.ConversationContext())
	assert.Empty(t, st.CartItems())
	assert.Empty(t, st.ArtifactRefs("search"))
}

func TestSetCurrentSearchKeepsPaginationDefaults(t *testing.T) {
	st := NewStore().Get("s1")

	st.SetCurrentSearch("sữa vinamilk", nil, "")

	assert.Equal(t, Pagination{Page: 1, PageSize: 10}, st.Pagination())
	assert.Equal(t, "sữa vinamilk", st.CurrentSearch().Keywords)
	assert.Equal(t, DefaultSortBy, st.CurrentSearch().SortBy)
}

func TestSetCurrentSearchReplaces(t *testing.T) {
	st := NewState("s1")
	st.SetCurrentSearch("bơ", map[string]any{"category": "bơ - trứng - sữa"}, "price_asc")

	st.SetCurrentSearch("trứng", nil, "")

	cs := st.CurrentSearch()
	assert.Equal(t, "trứng", cs.Keywords)
	assert.Nil(t, cs.Filters, "filters are replaced, not merged")
	assert.Equal(t, DefaultSortBy, cs.SortBy)
}

func TestCurrentSearchReturnsCopy(t *testing.T) {
	st := NewState("s1")
	filters := map[string]any{"brand": "Vinamilk"}
	st.SetCurrentSearch("sữa", filters, "")

	filters["brand"] = "TH"
	got := st.CurrentSearch()
	got.Filters["brand"] = "Dutch Lady"

	assert.Equal(t, "Vinamilk", st.CurrentSearch().Filters["brand"])
}

func TestSetPaginationClamps(t *testing.T) {
	st := NewState("s1")

	st.SetPagination(0, -5)
	assert.Equal(t, Pagination{Page: 1, PageSize: 1}, st.Pagination())

	st.SetPagination(3, 20)
	st.SetPage(-1)
	assert.Equal(t, Pagination{Page: 1, PageSize: 20}, st.Pagination())
}

func TestUpdatePreferencesShallowMerge(t *testing.T) {
	st := NewState("s1")
	st.UpdatePreferences(map[string]any{"brand": "Vinamilk", "budget": 100000})

	st.UpdatePreferences(map[string]any{"brand": "TH", "sugar": "low"})

	assert.Equal(t, map[string]any{"brand": "TH", "budget": 100000, "sugar": "low"}, st.Preferences())
}

func TestConversationContext(t *testing.T) {
	st := NewState("s1")
	st.SetConversationContext(ConversationContext{Intent: "compare", LastAction: "compare", ItemCount: 2})

	st.SetLastUserQuestion("cái nào rẻ hơn?")

	c := st.ConversationContext()
	assert.Equal(t, "cái nào rẻ hơn?", c.LastUserQuestion)
	assert.Equal(t, "compare", c.Intent)
	assert.Equal(t, 2, c.ItemCount)
}

func TestArtifactRefsAppendOnly(t *testing.T) {
	st := newState("s1", fixedClock())
	now := fixedClock()()

	st.AddArtifactRef("search", domain.NewArtifactRef("a.json", now))
	st.AddArtifactRef("search", domain.NewArtifactRef("b.json", now))
	st.AddArtifactRef("dialog", domain.NewArtifactRef("c.json", now))

	refs := st.ArtifactRefs("search")
	require.Len(t, refs, 2)
	assert.Equal(t, "a.json", refs[0].Path)
	assert.Equal(t, "b.json", refs[1].Path)
	assert.Equal(t, domain.ArtifactRefType, refs[0].Type)
	assert.Equal(t, domain.ArtifactMimeTypeJSON, refs[0].MimeType)

	refs[0].Path = "mutated"
	assert.Equal(t, "a.json", st.ArtifactRefs("search")[0].Path)

	ts, ok := st.UpdatedAt(ArtifactsSection("search"))
	assert.True(t, ok)
	assert.Equal(t, now, ts)
}

func TestTimestamps(t *testing.T) {
	st := newState("s1", fixedClock())

	_, ok := st.UpdatedAt(SectionCurrentSearch)
	assert.False(t, ok)

	st.SetCurrentSearch("bơ", nil, "")
	ts, ok := st.UpdatedAt(SectionCurrentSearch)
	assert.True(t, ok)
	assert.Equal(t, fixedClock()(), ts)
}

func TestTempCart(t *testing.T) {
	st := NewState("s1")
	st.AddCartItem(CartItem{ProductID: "p1", Name: "Sữa"})
	st.AddCartItem(CartItem{ProductID: "p2", Name: "Bơ", Quantity: 2})
	st.AddCartItem(CartItem{ProductID: "p1", Name: "Sữa"})

	items := st.CartItems()
	require.Len(t, items, 3)
	assert.Equal(t, 1, items[0].Quantity)
	assert.False(t, items[0].AddedAt.IsZero())

	removed := st.RemoveCartItems(func(it CartItem) bool { return it.ProductID == "p1" })
	assert.Equal(t, 2, removed)
	assert.Len(t, st.CartItems(), 1)
}

func TestSnapshot(t *testing.T) {
	st := NewState("s1")
	st.SetCurrentSearch("bơ", nil, "")
	st.AddArtifactRef("search", domain.NewArtifactRef("a.json", time.Now()))

	snap := st.Snapshot()

	assert.Equal(t, "s1", snap.SessionID)
	assert.Equal(t, "bơ", snap.CurrentSearch.Keywords)
	assert.NotNil(t, snap.TempCart)
	assert.Len(t, snap.Artifacts["search"], 1)
	assert.Contains(t, snap.Timestamps, SectionCurrentSearch)
}

func TestStoreLazyAndIsolated(t *testing.T) {
	store := NewStore()

	_, ok := store.Lookup("a")
	assert.False(t, ok)

	a := store.Get("a")
	a.SetPagination(4, 10)
	b := store.Get("b")

	assert.Same(t, a, store.Get("a"))
	assert.Equal(t, 1, b.Pagination().Page)
	assert.Equal(t, 2, store.Len())

	store.Delete("a")
	assert.Equal(t, 1, store.Len())
}

func TestStoreConcurrentSessions(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st := store.Get(string(rune('a' + i%26)))
			_ = st.Pagination()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 26, store.Len())
}
