// Package shaper converts raw product records into bounded tool replies.
package shaper

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/tokens"
)

const (
	// ReducedMaxItems caps the item count during the reduction pass.
	ReducedMaxItems = 10
	// MaxComparisonItems caps comparison payloads.
	MaxComparisonItems = 3
	// MaxCategoryItems caps category listings.
	MaxCategoryItems = 5
	// MaxDetailItems caps product detail payloads.
	MaxDetailItems = 12
)

// Config bounds shaped payloads.
type Config struct {
	MaxItems        int
	MaxOutputTokens int
}

// DefaultConfig returns the limits used by the tool layer.
func DefaultConfig() Config {
	return Config{MaxItems: 10, MaxOutputTokens: 500}
}

// Payload is the top level of every shaped reply.
type Payload struct {
	Type       domain.PayloadType      `json:"type"`
	Message    string                  `json:"message"`
	Products   []domain.MinimalProduct `json:"products,omitzero"`
	Categories []domain.CategoryCount  `json:"categories,omitzero"`
	Metadata   *Metadata               `json:"metadata,omitempty"`
}

// Metadata summarizes a search result set.
type Metadata struct {
	Total   string `json:"total"`
	Type    string `json:"type"`
	Showing int    `json:"showing"`
}

// Shaped is a shaped reply together with its serialized form.
type Shaped struct {
	Payload Payload
	JSON    string
	Tokens  int
	Reduced bool
}

// Shaper builds bounded payloads. It holds no mutable state.
type Shaper struct {
	cfg Config
	log zerolog.Logger
}

// New creates a shaper. Non-positive limits take their defaults.
func New(cfg Config, log zerolog.Logger) *Shaper {
	def := DefaultConfig()
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = def.MaxItems
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = def.MaxOutputTokens
	}
	return &Shaper{cfg: cfg, log: log}
}

// SearchResult ranks records against query and returns a product-display
// payload of at most MaxItems products.
func (s *Shaper) SearchResult(records []domain.ProductRecord, query string, meta domain.SearchMeta) Shaped {
	if len(records) == 0 {
		return s.finish(noResults(fmt.Sprintf("Không tìm thấy sản phẩm phù hợp với '%s'", query)))
	}

	ranked := Rank(records, query)
	if len(ranked) > s.cfg.MaxItems {
		ranked = ranked[:s.cfg.MaxItems]
	}
	products := make([]domain.MinimalProduct, len(ranked))
	for i, r := range ranked {
		products[i] = Minimal(r)
	}

	p := Payload{
		Type:     domain.PayloadTypeProductDisplay,
		Message:  fmt.Sprintf("Tìm thấy %d sản phẩm phù hợp", len(products)),
		Products: products,
		Metadata: &Metadata{
			Total:   meta.Total,
			Type:    meta.SearchType,
			Showing: len(products),
		},
	}

	out := s.finish(p)
	if out.Tokens > s.cfg.MaxOutputTokens {
		before := out.Tokens
		out = s.finish(reduce(p))
		out.Reduced = true
		s.log.Debug().Int("tokens_before", before).Int("tokens_after", out.Tokens).Msg("search payload reduced")
	}
	s.log.Info().Str("query", query).Int("tokens", out.Tokens).Int("showing", len(out.Payload.Products)).Msg("search response shaped")
	return out
}

// Comparison returns a product-comparison payload of at most three products,
// kept in the given order.
func (s *Shaper) Comparison(records []domain.ProductRecord) Shaped {
	if len(records) == 0 {
		return s.finish(noResults("Không có sản phẩm để so sánh"))
	}
	if len(records) > MaxComparisonItems {
		records = records[:MaxComparisonItems]
	}
	products := make([]domain.MinimalProduct, len(records))
	for i, r := range records {
		products[i] = Minimal(r)
	}
	return s.finish(Payload{
		Type:     domain.PayloadTypeProductComparison,
		Message:  fmt.Sprintf("So sánh %d sản phẩm", len(products)),
		Products: products,
	})
}

// Categories returns a category-exploration payload of at most five entries.
func (s *Shaper) Categories(categories []domain.CategoryCount) Shaped {
	if len(categories) == 0 {
		return s.finish(noResults("Không tìm thấy danh mục nào"))
	}
	if len(categories) > MaxCategoryItems {
		categories = categories[:MaxCategoryItems]
	}
	out := make([]domain.CategoryCount, len(categories))
	copy(out, categories)
	return s.finish(Payload{
		Type:       domain.PayloadTypeCategoryExploration,
		Message:    fmt.Sprintf("Tìm thấy %d danh mục", len(out)),
		Categories: out,
	})
}

// ProductDetails returns a product-display payload for looked-up products.
func (s *Shaper) ProductDetails(records []domain.ProductRecord) Shaped {
	if len(records) == 0 {
		return s.finish(Payload{
			Type:     domain.PayloadTypeProductDisplay,
			Message:  "Không tìm thấy sản phẩm theo yêu cầu",
			Products: []domain.MinimalProduct{},
		})
	}
	if len(records) > MaxDetailItems {
		records = records[:MaxDetailItems]
	}
	products := make([]domain.MinimalProduct, len(records))
	for i, r := range records {
		products[i] = Minimal(r)
	}
	msg := "Danh sách sản phẩm đã chọn"
	if len(products) == 1 {
		msg = "Chi tiết sản phẩm"
	}
	out := s.finish(Payload{Type: domain.PayloadTypeProductDisplay, Message: msg, Products: products})
	if out.Tokens > s.cfg.MaxOutputTokens {
		out = s.finish(reduce(out.Payload))
		out.Reduced = true
	}
	return out
}

// Notice returns a payload of type t carrying only a message and an empty
// product list.
func (s *Shaper) Notice(t domain.PayloadType, message string) Shaped {
	return s.finish(Payload{Type: t, Message: message, Products: []domain.MinimalProduct{}})
}

// Error returns an error payload.
func (s *Shaper) Error(message string) Shaped {
	return s.finish(Payload{Type: domain.PayloadTypeError, Message: message})
}

// Rank orders records by descending relevance to query. Equal scores keep
// their input order.
func Rank(records []domain.ProductRecord, query string) []domain.ProductRecord {
	type scored struct {
		rec   domain.ProductRecord
		score float64
	}
	q := strings.ToLower(query)
	words := strings.Fields(q)
	items := make([]scored, len(records))
	for i, r := range records {
		items[i] = scored{rec: r, score: score(r, q, words)}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})
	out := make([]domain.ProductRecord, len(items))
	for i, it := range items {
		out[i] = it.rec
	}
	return out
}

// Score returns the relevance of r to query.
func Score(r domain.ProductRecord, query string) float64 {
	q := strings.ToLower(query)
	return score(r, q, strings.Fields(q))
}

func score(r domain.ProductRecord, q string, words []string) float64 {
	if q == "" {
		return 0
	}
	var total float64

	if name := strings.ToLower(r.Name); name != "" {
		if strings.Contains(name, q) {
			total += 1.0
		} else if containsAny(name, words) {
			total += 0.5
		}
	}
	if category := strings.ToLower(r.Category); category != "" && containsAny(category, words) {
		total += 0.3
	}
	if sku := strings.ToLower(r.SKU); sku != "" && strings.Contains(sku, q) {
		total += 0.8
	}
	return total
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Minimal projects a record onto the fields sent to the model.
func Minimal(r domain.ProductRecord) domain.MinimalProduct {
	category := r.Category
	return domain.MinimalProduct{
		ID:         r.ID,
		Name:       r.Name,
		Price:      domain.ShapedPrice{Current: r.Price.Current, Currency: domain.Currency},
		Image:      &domain.Image{URL: r.Image.URL},
		ProductURL: r.ProductURL,
		Category:   &category,
	}
}

// reduce is the single reduction pass: cap the item count, drop categories
// and empty images. It does not search for an exact fit.
func reduce(p Payload) Payload {
	products := p.Products
	if len(products) > ReducedMaxItems {
		products = products[:ReducedMaxItems]
		p.Message = fmt.Sprintf("Tìm thấy %d sản phẩm phù hợp (hiển thị top %d)", len(products), ReducedMaxItems)
	}
	out := make([]domain.MinimalProduct, len(products))
	for i, mp := range products {
		mp.Category = nil
		if mp.Image != nil && mp.Image.URL == "" {
			mp.Image = nil
		}
		out[i] = mp
	}
	p.Products = out
	if p.Metadata != nil {
		m := *p.Metadata
		m.Showing = len(out)
		p.Metadata = &m
	}
	return p
}

func noResults(message string) Payload {
	return Payload{
		Type:     domain.PayloadTypeNoResults,
		Message:  message,
		Products: []domain.MinimalProduct{},
	}
}

func (s *Shaper) finish(p Payload) Shaped {
	data, err := marshal(p)
	if err != nil {
		s.log.Error().Err(err).Str("type", string(p.Type)).Msg("failed to serialize payload")
		fallback := Payload{Type: domain.PayloadTypeError, Message: "Lỗi khi xử lý kết quả: " + err.Error()}
		data, _ = marshal(fallback)
		return Shaped{Payload: fallback, JSON: data, Tokens: tokens.Estimate(data)}
	}
	return Shaped{Payload: p, JSON: data, Tokens: tokens.Estimate(data)}
}

// marshal encodes without HTML escaping so Vietnamese text and URLs stay
// readable to the model.
func marshal(p Payload) (string, error) {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", err
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}
