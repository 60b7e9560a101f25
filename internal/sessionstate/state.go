// Package sessionstate holds the structured per-conversation record used by
// the tool layer: current search, pagination, preferences, conversation
// context, a temporary cart and artifact references.
//
// A State is not safe for concurrent use. Each session is handled by one
// turn at a time; the Store only guards its own map.
package sessionstate

import (
	"maps"
	"slices"
	"time"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
)

// Section names a part of the state for timestamping.
type Section string

const (
	SectionCurrentSearch Section = "current_search"
	SectionPagination    Section = "pagination"
	SectionPreferences   Section = "preferences"
	SectionContext       Section = "context"
	SectionTempCart      Section = "temp_cart"
)

// ArtifactsSection returns the timestamp section of an artifact category.
func ArtifactsSection(category string) Section {
	return Section("artifacts:" + category)
}

const (
	DefaultSortBy   = "relevant"
	DefaultPage     = 1
	DefaultPageSize = 10
)

// CurrentSearch is the active search request.
type CurrentSearch struct {
	Keywords string         `json:"keywords"`
	Filters  map[string]any `json:"filters"`
	SortBy   string         `json:"sort_by"`
}

// Pagination is the active result page.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// ConversationContext carries what the agent last did for the user.
type ConversationContext struct {
	LastUserQuestion string `json:"last_user_question"`
	Intent           string `json:"intent"`
	LastAction       string `json:"last_action"`
	ItemCount        int    `json:"item_count"`
}

// CartItem is a product the user set aside during the conversation.
type CartItem struct {
	ProductID string    `json:"product_id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Price     float64   `json:"price"`
	AddedAt   time.Time `json:"added_at"`
}

// State is the record of one conversation.
type State struct {
	sessionID     string
	currentSearch CurrentSearch
	pagination    Pagination
	preferences   map[string]any
	context       ConversationContext
	cart          []CartItem
	artifacts     map[string][]domain.ArtifactRef
	timestamps    map[Section]time.Time
	now           func() time.Time
}

// NewState returns a state with every section at its default.
func NewState(sessionID string) *State {
	return newState(sessionID, time.Now)
}

func newState(sessionID string, now func() time.Time) *State {
	return &State{
		sessionID:     sessionID,
		currentSearch: CurrentSearch{SortBy: DefaultSortBy},
		pagination:    Pagination{Page: DefaultPage, PageSize: DefaultPageSize},
		preferences:   map[string]any{},
		artifacts:     map[string][]domain.ArtifactRef{},
		timestamps:    map[Section]time.Time{},
		now:           now,
	}
}

// SessionID returns the id of the conversation.
func (s *State) SessionID() string { return s.sessionID }

func (s *State) touch(section Section) {
	s.timestamps[section] = s.now()
}

// SetCurrentSearch replaces the current search. An empty sortBy means
// DefaultSortBy.
func (s *State) SetCurrentSearch(keywords string, filters map[string]any, sortBy string) {
	if sortBy == "" {
		sortBy = DefaultSortBy
	}
	s.currentSearch = CurrentSearch{
		Keywords: keywords,
		Filters:  maps.Clone(filters),
		SortBy:   sortBy,
	}
	s.touch(SectionCurrentSearch)
}

// CurrentSearch returns a copy of the current search.
func (s *State) CurrentSearch() CurrentSearch {
	cs := s.currentSearch
	cs.Filters = maps.Clone(cs.Filters)
	return cs
}

// SetPagination sets page and page size, each clamped to at least 1.
func (s *State) SetPagination(page, pageSize int) {
	s.pagination = Pagination{Page: max(1, page), PageSize: max(1, pageSize)}
	s.touch(SectionPagination)
}

// SetPage changes the page, clamped to at least 1, keeping the page size.
func (s *State) SetPage(page int) {
	s.pagination.Page = max(1, page)
	s.touch(SectionPagination)
}

// Pagination returns the current pagination.
func (s *State) Pagination() Pagination {
	return s.pagination
}

// UpdatePreferences merges prefs into the stored preferences, overwriting
// existing keys.
func (s *State) UpdatePreferences(prefs map[string]any) {
	maps.Copy(s.preferences, prefs)
	s.touch(SectionPreferences)
}

// Preferences returns a copy of the stored preferences.
func (s *State) Preferences() map[string]any {
	return maps.Clone(s.preferences)
}

// SetConversationContext replaces the conversation context.
func (s *State) SetConversationContext(c ConversationContext) {
	s.context = c
	s.touch(SectionContext)
}

// SetLastUserQuestion updates the last user question only.
func (s *State) SetLastUserQuestion(q string) {
	s.context.LastUserQuestion = q
	s.touch(SectionContext)
}

// ConversationContext returns the conversation context.
func (s *State) ConversationContext() ConversationContext {
	return s.context
}

// AddCartItem appends an item to the temporary cart. Quantity defaults to 1.
func (s *State) AddCartItem(item CartItem) {
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = s.now()
	}
	s.cart = append(s.cart, item)
	s.touch(SectionTempCart)
}

// RemoveCartItems removes every item matching pred and returns how many
// were removed.
func (s *State) RemoveCartItems(pred func(CartItem) bool) int {
	before := len(s.cart)
	s.cart = slices.DeleteFunc(s.cart, pred)
	removed := before - len(s.cart)
	if removed > 0 {
		s.touch(SectionTempCart)
	}
	return removed
}

// CartItems returns a copy of the cart.
func (s *State) CartItems() []CartItem {
	return slices.Clone(s.cart)
}

// AddArtifactRef appends ref to the category's history.
func (s *State) AddArtifactRef(category string, ref domain.ArtifactRef) {
	s.artifacts[category] = append(s.artifacts[category], ref)
	s.touch(ArtifactsSection(category))
}

// ArtifactRefs returns the category's full history, oldest first.
func (s *State) ArtifactRefs(category string) []domain.ArtifactRef {
	return slices.Clone(s.artifacts[category])
}

// UpdatedAt returns the last write time of section, if any.
func (s *State) UpdatedAt(section Section) (time.Time, bool) {
	t, ok := s.timestamps[section]
	return t, ok
}

// Snapshot is a serializable copy of a State.
type Snapshot struct {
	SessionID     string                          `json:"session_id"`
	CurrentSearch CurrentSearch                   `json:"current_search"`
	Pagination    Pagination                      `json:"pagination"`
	Preferences   map[string]any                  `json:"preferences"`
	Context       ConversationContext             `json:"context"`
	TempCart      []CartItem                      `json:"temp_cart"`
	Artifacts     map[string][]domain.ArtifactRef `json:"artifacts"`
	Timestamps    map[Section]time.Time           `json:"timestamps"`
}

// Snapshot copies the state.
func (s *State) Snapshot() Snapshot {
	artifacts := make(map[string][]domain.ArtifactRef, len(s.artifacts))
	for k, v := range s.artifacts {
		artifacts[k] = slices.Clone(v)
	}
	cart := slices.Clone(s.cart)
	if cart == nil {
		cart = []CartItem{}
	}
	return Snapshot{
		SessionID:     s.sessionID,
		CurrentSearch: s.CurrentSearch(),
		Pagination:    s.pagination,
		Preferences:   s.Preferences(),
		Context:       s.context,
		TempCart:      cart,
		Artifacts:     artifacts,
		Timestamps:    maps.Clone(s.timestamps),
	}
}
