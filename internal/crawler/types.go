package crawler

import (
	"context"
	"io"

	"github.com/dealmungchi/pricewatcher/internal/model"
)

// Field names used for custom handlers and extraction errors
const (
	FieldName          = "name"
	FieldImage         = "image"
	FieldPrice         = "price"
	FieldUsedPrice     = "used_price"
	FieldStock         = "stock"
	FieldRateCount     = "rate_count"
	FieldRating        = "rating"
	FieldSeller        = "seller"
	FieldShippingPrice = "shipping_price"
	FieldCondition     = "condition"
)

// PageFetcher retrieves raw pages for adapters
type PageFetcher interface {
	// FetchHTTP performs a plain GET and returns the UTF-8 body
	FetchHTTP(ctx context.Context, url string, extraHeaders map[string]string) (io.Reader, error)

	// FetchHeadless renders the page in a browser. It returns an empty string
	// on failure and the partial HTML when the wait bound is hit.
	FetchHeadless(ctx context.Context, url string) string
}

// SiteAdapter is the extraction strategy for one retailer
type SiteAdapter interface {
	// Name returns the adapter's name for logging and identification
	Name() string

	BuildURL(domain, key string, site model.Site) string
	Fetch(ctx context.Context, f PageFetcher, url string) (*Page, error)

	ExtractName(p *Page) string
	ExtractImage(p *Page) string
	ExtractPrice(p *Page) float64
	ExtractUsedPrice(p *Page) float64
	ExtractStock(p *Page) bool
	ExtractRateCount(p *Page) int
	ExtractRating(p *Page) string
	ExtractSeller(p *Page) string
	ExtractShippingPrice(p *Page) float64
	ExtractCondition(p *Page) string
}

// FieldHandlerFunc replaces selector extraction for one field. The returned
// text goes through the same parsing as selector text.
type FieldHandlerFunc func(*Page) string

// URLBuilderFunc builds the product URL from the site domain and product key
type URLBuilderFunc func(domain, key string, site model.Site) string

// Selectors contains CSS selectors for the fields of a product page
type Selectors struct {
	Name           string
	Image          string
	ImageAttrs     []string
	Price          string
	UsedPrice      string
	Stock          string
	OutOfStock     string
	OutOfStockText []string
	RateCount      string
	Rating         string
	RatingAttr     string
	RatingSep      string
	Seller         string
	ShippingPrice  string
	Condition      string
}

// CustomHandlers maps field names to custom handlers
type CustomHandlers struct {
	FieldHandlers map[string]FieldHandlerFunc
}

// AdapterConfig contains the configuration for one retailer adapter
type AdapterConfig struct {
	Name           string
	Domains        []string
	URLBuilder     URLBuilderFunc
	ExtraHeaders   map[string]string
	UseChrome      bool
	Selectors      Selectors
	CustomHandlers CustomHandlers
}
