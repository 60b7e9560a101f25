package domain

// Currency is the currency reported for every shaped price.
const Currency = "VND"

// Price is the raw price of a product record.
type Price struct {
	Current  float64  `json:"current"`
	Original *float64 `json:"original,omitempty"`
}

// Image references a product image.
type Image struct {
	URL string `json:"url"`
}

// ProductRecord is a raw search hit or product detail as returned by the
// external product APIs.
type ProductRecord struct {
	ID         string `json:"id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Price      Price  `json:"price"`
	Image      Image  `json:"image"`
	ProductURL string `json:"productUrl"`
}

// ShapedPrice is the price as presented to the model.
type ShapedPrice struct {
	Current  float64 `json:"current"`
	Currency string  `json:"currency"`
}

// MinimalProduct is the bounded projection of a ProductRecord. Category and
// Image are pointers so the reduction pass can drop them from the output.
type MinimalProduct struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Price      ShapedPrice `json:"price"`
	Image      *Image      `json:"image,omitempty"`
	ProductURL string      `json:"productUrl"`
	Category   *string     `json:"category,omitempty"`
}

// CategoryCount is one entry of a category listing.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SearchMeta describes a search result set as reported by the search API.
type SearchMeta struct {
	Total      string         `json:"total"`
	SearchType string         `json:"search_type"`
	Categories map[string]any `json:"categories,omitempty"`
}
