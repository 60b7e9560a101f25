package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/artifact"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/config"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/metrics"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/persist"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/policy"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/repository"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/sessionstate"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/tests/helpers"
)

type testRuntime struct {
	*Runtime
	pipeline *persist.Pipeline
	index    *repository.SQLiteIndex
	metrics  *metrics.Metrics
	dir      string
}

// newTestRuntime returns a runtime whose pipeline is not started, so queued
// jobs stay visible through Pending.
func newTestRuntime(t *testing.T) *testRuntime {
	t.Helper()

	idx := helpers.NewTestSQLiteIndex(t)
	dir := t.TempDir()
	writer := artifact.NewFileWriter(dir)
	m := metrics.New()
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	p := persist.NewPipeline(writer, idx, engine, zerolog.Nop(), persist.WithIdleInterval(5*time.Millisecond), persist.WithMetrics(m))
	t.Cleanup(p.Stop)

	rt := New(config.Default(), p, writer, idx, m, zerolog.Nop())
	return &testRuntime{Runtime: rt, pipeline: p, index: idx, metrics: m, dir: dir}
}

func record(id, name string) domain.ProductRecord {
	return domain.ProductRecord{
		ID:       id,
		SKU:      "SKU" + id,
		Name:     name,
		Category: "Sữa",
		Price:    domain.Price{Current: 32000},
		Image:    domain.Image{URL: "https://cdn.example/" + id + ".jpg"},
	}
}

func textTurn(role domain.Role, text string) domain.Turn {
	return domain.Turn{Role: role, Parts: []domain.Part{domain.TextPart(text)}}
}

func intPtr(v int) *int { return &v }

func TestPrepareHistoryCountsEvictions(t *testing.T) {
	rt := newTestRuntime(t)

	var turns []domain.Turn
	for i := 0; i < 5; i++ {
		turns = append(turns,
			textTurn(domain.RoleUser, strings.Repeat("a", 4000)),
			textTurn(domain.RoleAgent, strings.Repeat("b", 4000)),
		)
	}

	res := rt.PrepareHistory(turns)

	assert.Equal(t, 5, res.Invocations)
	assert.Less(t, res.Kept, 5)
	assert.Equal(t, float64(res.Evicted), testutil.ToFloat64(rt.metrics.TrimEvictions))
}

func TestBeginTurnRecordsQuestion(t *testing.T) {
	rt := newTestRuntime(t)

	rt.BeginTurn("s1", "có sữa tươi không?")

	snap, err := rt.State("s1")
	require.NoError(t, err)
	assert.Equal(t, "có sữa tươi không?", snap.Context.LastUserQuestion)
	assert.Equal(t, 1, rt.pipeline.Pending())
	require.Len(t, snap.Artifacts["dialog"], 1)
	assert.Equal(t, rt.dir, filepath.Dir(snap.Artifacts["dialog"][0].Path))
}

func TestBeginTurnIgnoresBlankMessages(t *testing.T) {
	rt := newTestRuntime(t)

	rt.BeginTurn("s1", "  ")

	assert.Equal(t, 0, rt.pipeline.Pending())
}

func TestCompleteTurnUpdatesLatency(t *testing.T) {
	rt := newTestRuntime(t)
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	rt.now = func() time.Time { return base.Add(2 * time.Second) }
	assert.InDelta(t, 2.0, rt.CompleteTurn("s1", "q", "a", base), 1e-9)

	rt.now = func() time.Time { return base.Add(4 * time.Second) }
	assert.InDelta(t, 2.6, rt.CompleteTurn("s1", "q", "a", base), 1e-9)

	assert.Equal(t, 2, rt.pipeline.Pending())
	assert.InDelta(t, 2.6, testutil.ToFloat64(rt.metrics.LatencyEWMA), 1e-9)
}

func TestCompleteTurnWithoutAnswerOnlyRecordsLatency(t *testing.T) {
	rt := newTestRuntime(t)

	rt.CompleteTurn("s1", "q", "", time.Now())

	assert.Equal(t, 0, rt.pipeline.Pending())
	assert.Equal(t, int64(1), rt.Stats(context.Background()).Latency.SampleCount)
}

func TestResolveSearchWithoutKeywords(t *testing.T) {
	rt := newTestRuntime(t)

	_, ok := rt.ResolveSearch("s1", SearchInput{})
	assert.False(t, ok)

	out := rt.MissingKeywords()
	assert.Equal(t, domain.PayloadTypeProductDisplay, out.Payload.Type)
	assert.Contains(t, out.JSON, `"products":[]`)
}

func TestResolveSearchBackfillsFromState(t *testing.T) {
	rt := newTestRuntime(t)

	q, ok := rt.ResolveSearch("s1", SearchInput{Keywords: "sữa vinamilk", FiltersJSON: `{"brand":"Vinamilk"}`, Page: intPtr(2)})
	require.True(t, ok)
	assert.Equal(t, 2, q.Page)

	q, ok = rt.ResolveSearch("s1", SearchInput{})
	require.True(t, ok)
	assert.Equal(t, "sữa vinamilk", q.Keywords)
	assert.Equal(t, map[string]any{"brand": "Vinamilk"}, q.Filters)
	assert.Equal(t, 2, q.Page)

	snap, _ := rt.State("s1")
	assert.Equal(t, "relevant", snap.CurrentSearch.SortBy)
	assert.Equal(t, 10, snap.Pagination.PageSize)
}

func TestResolveSearchClampsPageAndIgnoresMalformedFilters(t *testing.T) {
	rt := newTestRuntime(t)

	q, ok := rt.ResolveSearch("s1", SearchInput{Keywords: "bơ", FiltersJSON: `["not","an","object"]`, Page: intPtr(-3)})
	require.True(t, ok)
	assert.Equal(t, 1, q.Page)
	assert.Nil(t, q.Filters)
}

func TestRecordSearch(t *testing.T) {
	rt := newTestRuntime(t)
	rt.BeginTurn("s1", "tìm sữa")
	q, _ := rt.ResolveSearch("s1", SearchInput{Keywords: "sữa"})

	var results []domain.ProductRecord
	for i := 0; i < 25; i++ {
		results = append(results, record(fmt.Sprint(i), fmt.Sprintf("Sữa tươi %d", i)))
	}
	out := rt.RecordSearch("s1", q, results, domain.SearchMeta{Total: "25", SearchType: "keyword"})

	assert.Equal(t, domain.PayloadTypeProductDisplay, out.Payload.Type)
	assert.Len(t, out.Payload.Products, 10)
	assert.Equal(t, 2, rt.pipeline.Pending())

	snap, _ := rt.State("s1")
	assert.Equal(t, ActionSearch, snap.Context.LastAction)
	assert.Equal(t, 10, snap.Context.ItemCount)
	assert.Len(t, snap.Artifacts["search"], 1)
}

func TestRecordSearchNoResults(t *testing.T) {
	rt := newTestRuntime(t)

	out := rt.RecordSearch("s1", SearchQuery{Keywords: "xyz", Page: 1}, nil, domain.SearchMeta{})

	assert.Equal(t, domain.PayloadTypeNoResults, out.Payload.Type)
	assert.Contains(t, out.JSON, `"products":[]`)
}

func TestRecordComparisonValidation(t *testing.T) {
	rt := newTestRuntime(t)
	products := []domain.ProductRecord{record("1", "A"), record("2", "B")}

	_, err := rt.RecordComparison("s1", []string{"1"}, products)
	assert.Equal(t, ErrCompareTooFew, err)
	assert.Equal(t, "Cần ít nhất 2 sản phẩm để so sánh", err.Error())

	_, err = rt.RecordComparison("s1", []string{"1", "2", "3", "4", "5", "6"}, products)
	assert.Equal(t, ErrCompareTooMany, err)

	_, err = rt.RecordComparison("s1", []string{"1", "2"}, products[:1])
	assert.Equal(t, ErrCompareNotFound, err)

	assert.Equal(t, 0, rt.pipeline.Pending())
}

func TestRecordComparison(t *testing.T) {
	rt := newTestRuntime(t)
	products := []domain.ProductRecord{record("1", "A"), record("2", "B"), record("3", "C"), record("4", "D")}

	out, err := rt.RecordComparison("s1", []string{"1", "2", "3", "4"}, products)
	require.NoError(t, err)

	assert.Equal(t, domain.PayloadTypeProductComparison, out.Payload.Type)
	assert.Len(t, out.Payload.Products, 3)
	assert.Equal(t, 1, rt.pipeline.Pending())

	snap, _ := rt.State("s1")
	assert.Equal(t, ActionCompare, snap.Context.LastAction)
	assert.Len(t, snap.Artifacts["compare"], 1)
}

func TestRecordExplore(t *testing.T) {
	rt := newTestRuntime(t)

	rt.RecordExplore("s1", "SKU404", nil)
	assert.Equal(t, 0, rt.pipeline.Pending())

	out := rt.RecordExplore("s1", "SKU1", []domain.ProductRecord{record("1", "A")})
	assert.Equal(t, "Chi tiết sản phẩm", out.Payload.Message)
	assert.Equal(t, 1, rt.pipeline.Pending())
}

func TestExploreCategories(t *testing.T) {
	rt := newTestRuntime(t)

	out := rt.ExploreCategories("s1", []domain.CategoryCount{{Name: "Sữa", Count: 12}, {Name: "Bánh", Count: 3}})

	assert.Equal(t, domain.PayloadTypeCategoryExploration, out.Payload.Type)
	assert.Equal(t, 0, rt.pipeline.Pending())

	snap, _ := rt.State("s1")
	assert.Equal(t, ActionExploreCategories, snap.Context.LastAction)
	assert.Equal(t, 2, snap.Context.ItemCount)
}

func TestSaveDialogSummary(t *testing.T) {
	rt := newTestRuntime(t)
	rt.SetIntent("s1", "product_search")

	got := rt.SaveDialogSummary("s1", "q", "a", "", `{"budget": 50000}`)
	assert.Equal(t, "product_search", got.Intent)
	assert.Equal(t, map[string]any{"budget": float64(50000)}, got.KeyInfo)

	got = rt.SaveDialogSummary("s1", "q", "a", "compare", `not json`)
	assert.Equal(t, "compare", got.Intent)
	assert.Empty(t, got.KeyInfo)

	assert.Equal(t, 2, rt.pipeline.Pending())
}

func TestSaveDialogSummaryRecordsQuestion(t *testing.T) {
	rt := newTestRuntime(t)

	rt.SaveDialogSummary("s1", "sữa TH loại nào rẻ nhất?", "a", "product_search", "")

	snap, err := rt.State("s1")
	require.NoError(t, err)
	assert.Equal(t, "sữa TH loại nào rẻ nhất?", snap.Context.LastUserQuestion)

	rt.SaveDialogSummary("s1", " ", "a", "", "")

	snap, err = rt.State("s1")
	require.NoError(t, err)
	assert.Equal(t, "sữa TH loại nào rẻ nhất?", snap.Context.LastUserQuestion)
}

func TestForgetDropsSession(t *testing.T) {
	rt := newTestRuntime(t)
	rt.SetIntent("s1", "product_search")
	_, err := rt.SetUserPreferences("s1", `{"brand":"TH"}`)
	require.NoError(t, err)
	rt.SetIntent("s2", "compare")

	rt.Forget("s1")
	rt.Forget("never-seen")

	rt.locksMu.Lock()
	assert.Len(t, rt.locks, 1)
	rt.locksMu.Unlock()
	assert.Equal(t, 1, rt.sessions.Len())

	snap, err := rt.State("s1")
	require.NoError(t, err)
	assert.Empty(t, snap.Context.Intent)
	assert.Empty(t, snap.Preferences)

	snap, err = rt.State("s2")
	require.NoError(t, err)
	assert.Equal(t, "compare", snap.Context.Intent)
}

func TestSetUserPreferences(t *testing.T) {
	rt := newTestRuntime(t)

	_, err := rt.SetUserPreferences("s1", `{"brand":"TH","size":"1L"}`)
	require.NoError(t, err)
	prefs, err := rt.SetUserPreferences("s1", `{"size":"2L"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"brand": "TH", "size": "2L"}, prefs)

	_, err = rt.SetUserPreferences("s1", `[1,2]`)
	assert.Equal(t, domain.ErrorKindMalformedInput, domain.KindOf(err))
}

func TestStateRequiresSessionID(t *testing.T) {
	rt := newTestRuntime(t)

	_, err := rt.State("")
	assert.ErrorIs(t, err, domain.ErrEmptySessionID)
}

func TestActivityIsPersisted(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()
	rt.pipeline.Start(ctx)

	started := rt.BeginTurn("s1", "so sánh giúp mình")
	_, err := rt.RecordComparison("s1", []string{"1", "2"}, []domain.ProductRecord{record("1", "A"), record("2", "B")})
	require.NoError(t, err)
	rt.CompleteTurn("s1", "so sánh giúp mình", "Đây là bảng so sánh", started)

	assert.Eventually(t, func() bool {
		c := rt.index.Counts(ctx)
		return c["dialogs"] == 2 && c["comparisons"] == 1 && c["artifacts"] == 3
	}, 5*time.Second, 10*time.Millisecond)

	snap, _ := rt.State("s1")
	_, err = os.Stat(snap.Artifacts["compare"][0].Path)
	assert.NoError(t, err, "the recorded reference points at the written artifact")

	stats := rt.Stats(ctx)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, int64(1), stats.Counts["comparisons"])
}

func TestTempCart(t *testing.T) {
	rt := newTestRuntime(t)

	rt.AddToCart("s1", sessionstate.CartItem{ProductID: "1", Name: "Sữa A"})
	items := rt.AddToCart("s1", sessionstate.CartItem{ProductID: "2", Name: "Sữa B", Quantity: 3})
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Quantity)

	assert.Equal(t, 1, rt.RemoveFromCart("s1", "1"))
	assert.Equal(t, 0, rt.RemoveFromCart("s1", "1"))

	snap, _ := rt.State("s1")
	require.Len(t, snap.TempCart, 1)
	assert.Equal(t, "2", snap.TempCart[0].ProductID)
}
