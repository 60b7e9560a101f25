package service

import (
	"strings"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/sessionstate"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/shaper"
)

const (
	MinCompareProducts = 2
	MaxCompareProducts = 5

	// maxStoredProducts caps the products kept in a search record.
	maxStoredProducts = 20
)

// Last actions recorded in the conversation context.
const (
	ActionSearch            = "search"
	ActionCompare           = "compare"
	ActionExplore           = "explore"
	ActionExploreCategories = "explore_categories"
)

// MsgMissingKeywords is returned when no keywords were given or remembered.
const MsgMissingKeywords = "Không có từ khóa tìm kiếm. Vui lòng nhập từ khóa (ví dụ: 'sữa tươi')."

// ToolError is a plain-text message returned to the model in place of a
// payload.
type ToolError string

func (e ToolError) Error() string { return string(e) }

const (
	ErrCompareTooFew   ToolError = "Cần ít nhất 2 sản phẩm để so sánh"
	ErrCompareTooMany  ToolError = "Chỉ có thể so sánh tối đa 5 sản phẩm cùng lúc"
	ErrCompareNotFound ToolError = "Không tìm đủ sản phẩm để so sánh"
)

// SearchInput is a search request as issued by the model. Every field may be
// empty.
type SearchInput struct {
	Keywords    string
	FiltersJSON string
	Page        *int
}

// SearchQuery is a search request after backfilling from session state.
type SearchQuery struct {
	Keywords string
	Filters  map[string]any
	Page     int
}

// ResolveSearch completes in from the session: missing keywords (and then
// filters) come from the current search, a missing page from pagination.
// The resolved query becomes the current search. It reports false when no
// keywords are known, in which case the state is left unchanged.
func (r *Runtime) ResolveSearch(sessionID string, in SearchInput) (SearchQuery, bool) {
	filters, err := sessionstate.ParseFilters(in.FiltersJSON)
	if err != nil {
		r.log.Warn().Err(err).Str("session_id", sessionKey(sessionID)).Msg("ignoring malformed search filters")
	}

	q := SearchQuery{Keywords: strings.TrimSpace(in.Keywords), Filters: filters}
	ok := true
	r.withState(sessionKey(sessionID), func(st *sessionstate.State) {
		if q.Keywords == "" {
			cs := st.CurrentSearch()
			q.Keywords = cs.Keywords
			if q.Filters == nil {
				q.Filters = cs.Filters
			}
		}
		if q.Keywords == "" {
			ok = false
			return
		}

		if in.Page != nil {
			q.Page = *in.Page
		} else {
			q.Page = st.Pagination().Page
		}
		q.Page = max(q.Page, 1)

		st.SetCurrentSearch(q.Keywords, q.Filters, st.CurrentSearch().SortBy)
		st.SetPage(q.Page)
	})
	return q, ok
}

// MissingKeywords is the reply to a search without keywords.
func (r *Runtime) MissingKeywords() shaper.Shaped {
	return r.shaper.Notice(domain.PayloadTypeProductDisplay, MsgMissingKeywords)
}

// RecordSearch shapes the results of q and records the search.
func (r *Runtime) RecordSearch(sessionID string, q SearchQuery, results []domain.ProductRecord, meta domain.SearchMeta) shaper.Shaped {
	out := r.observe(r.shaper.SearchResult(results, q.Keywords, meta))

	ranked := shaper.Rank(results, q.Keywords)
	if len(ranked) > maxStoredProducts {
		ranked = ranked[:maxStoredProducts]
	}
	top := make([]domain.MinimalProduct, len(ranked))
	for i, rec := range ranked {
		top[i] = shaper.Minimal(rec)
	}

	r.withState(sessionKey(sessionID), func(st *sessionstate.State) {
		c := st.ConversationContext()
		r.enqueue(st, domain.SearchRecord{
			Query:        q.Keywords,
			Filters:      q.Filters,
			Page:         q.Page,
			Intent:       c.Intent,
			UserQuestion: c.LastUserQuestion,
			Meta:         meta,
			TopProducts:  top,
			RawCount:     len(results),
		})
		c.LastAction = ActionSearch
		c.ItemCount = len(out.Payload.Products)
		st.SetConversationContext(c)
	})
	return out
}

// CheckComparison validates the ids of a comparison request.
func CheckComparison(productIDs []string) error {
	switch {
	case len(productIDs) < MinCompareProducts:
		return ErrCompareTooFew
	case len(productIDs) > MaxCompareProducts:
		return ErrCompareTooMany
	}
	return nil
}

// RecordComparison shapes and records a comparison of the products found for
// productIDs.
func (r *Runtime) RecordComparison(sessionID string, productIDs []string, products []domain.ProductRecord) (shaper.Shaped, error) {
	if err := CheckComparison(productIDs); err != nil {
		return shaper.Shaped{}, err
	}
	if len(products) < MinCompareProducts {
		return shaper.Shaped{}, ErrCompareNotFound
	}

	out := r.observe(r.shaper.Comparison(products))
	minimal := make([]domain.MinimalProduct, len(products))
	for i, rec := range products {
		minimal[i] = shaper.Minimal(rec)
	}

	r.withState(sessionKey(sessionID), func(st *sessionstate.State) {
		r.enqueue(st, domain.ComparisonRecord{ProductIDs: productIDs, Products: minimal})
		c := st.ConversationContext()
		c.LastAction = ActionCompare
		c.ItemCount = len(out.Payload.Products)
		st.SetConversationContext(c)
	})
	return out, nil
}

// RecordExplore shapes the details of products looked up for input. Only
// lookups that found something are recorded.
func (r *Runtime) RecordExplore(sessionID, input string, products []domain.ProductRecord) shaper.Shaped {
	out := r.observe(r.shaper.ProductDetails(products))

	r.withState(sessionKey(sessionID), func(st *sessionstate.State) {
		if len(products) > 0 {
			minimal := make([]domain.MinimalProduct, len(products))
			for i, rec := range products {
				minimal[i] = shaper.Minimal(rec)
			}
			r.enqueue(st, domain.ExploreRecord{Input: input, Products: minimal})
		}
		c := st.ConversationContext()
		c.LastAction = ActionExplore
		c.ItemCount = len(out.Payload.Products)
		st.SetConversationContext(c)
	})
	return out
}

// ExploreCategories shapes a category listing. Listings are not recorded.
func (r *Runtime) ExploreCategories(sessionID string, categories []domain.CategoryCount) shaper.Shaped {
	out := r.observe(r.shaper.Categories(categories))

	r.withState(sessionKey(sessionID), func(st *sessionstate.State) {
		c := st.ConversationContext()
		c.LastAction = ActionExploreCategories
		c.ItemCount = len(out.Payload.Categories)
		st.SetConversationContext(c)
	})
	return out
}

// ToolFailure shapes an error reply for a failed tool call.
func (r *Runtime) ToolFailure(message string) shaper.Shaped {
	return r.shaper.Error(message)
}
