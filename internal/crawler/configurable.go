package crawler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dealmungchi/pricewatcher/helpers"
	"github.com/dealmungchi/pricewatcher/internal/model"
	"github.com/dealmungchi/pricewatcher/pkg/errors"
)

var defaultImageAttrs = []string{"data-old-hires", "data-src", "src"}

var defaultOutOfStockText = []string{"out of stock", "currently unavailable", "sold out", "not available"}

// ConfigurableAdapter is a SiteAdapter driven by selectors. Fields without a
// selector or handler, or whose selector finds nothing, fall back to the
// page's JSON-LD product and OpenGraph tags.
type ConfigurableAdapter struct {
	name           string
	urlBuilder     URLBuilderFunc
	extraHeaders   map[string]string
	useChrome      bool
	Selectors      Selectors
	CustomHandlers CustomHandlers
}

// NewConfigurableAdapter creates a new configurable adapter
func NewConfigurableAdapter(config AdapterConfig) *ConfigurableAdapter {
	return &ConfigurableAdapter{
		name:           config.Name,
		urlBuilder:     config.URLBuilder,
		extraHeaders:   config.ExtraHeaders,
		useChrome:      config.UseChrome,
		Selectors:      config.Selectors,
		CustomHandlers: config.CustomHandlers,
	}
}

// Name returns the adapter's name
func (c *ConfigurableAdapter) Name() string {
	return c.name
}

// BuildURL returns the product page address
func (c *ConfigurableAdapter) BuildURL(domain, key string, site model.Site) string {
	if c.urlBuilder != nil {
		return c.urlBuilder(domain, key, site)
	}
	return fmt.Sprintf("https://%s/%s", strings.TrimSuffix(domain, "/"), strings.TrimPrefix(key, "/"))
}

// Fetch retrieves and parses the product page
func (c *ConfigurableAdapter) Fetch(ctx context.Context, f PageFetcher, url string) (*Page, error) {
	if c.useChrome {
		html := f.FetchHeadless(ctx, url)
		if html == "" {
			return nil, errors.NewFetch(url, "headless fetch returned no content", nil)
		}
		return NewPageFromString(html, url)
	}

	body, err := f.FetchHTTP(ctx, url, c.extraHeaders)
	if err != nil {
		return nil, err
	}
	page, err := NewPage(body, url)
	if err != nil {
		return nil, errors.NewFetch(url, "failed to parse page", err)
	}
	return page, nil
}

// field returns the handler output or the selector text for a field
func (c *ConfigurableAdapter) field(p *Page, field, selector string) string {
	if c.CustomHandlers.FieldHandlers != nil {
		if handler, exists := c.CustomHandlers.FieldHandlers[field]; exists && handler != nil {
			return strings.TrimSpace(handler(p))
		}
	}
	return p.Text(selector)
}

// ExtractName reads the product title
func (c *ConfigurableAdapter) ExtractName(p *Page) string {
	if name := c.field(p, FieldName, c.Selectors.Name); name != "" {
		return name
	}
	if ld := p.Product(); ld != nil && ld.Name != "" {
		return ld.Name
	}
	return p.Meta("og:title")
}

// ExtractImage reads the main product image as an absolute URL
func (c *ConfigurableAdapter) ExtractImage(p *Page) string {
	if handler, exists := c.CustomHandlers.FieldHandlers[FieldImage]; exists && handler != nil {
		if img := strings.TrimSpace(handler(p)); img != "" {
			return p.Resolve(img)
		}
	} else if c.Selectors.Image != "" {
		attrs := c.Selectors.ImageAttrs
		if len(attrs) == 0 {
			attrs = defaultImageAttrs
		}
		for _, attr := range attrs {
			if img := p.Attr(c.Selectors.Image, attr); img != "" && !strings.HasPrefix(img, "data:") {
				return p.Resolve(img)
			}
		}
	}
	if ld := p.Product(); ld != nil && ld.Image != "" {
		return p.Resolve(ld.Image)
	}
	return p.Resolve(p.Meta("og:image"))
}

// ExtractPrice reads the current new price, 0 when not found
func (c *ConfigurableAdapter) ExtractPrice(p *Page) float64 {
	if price := helpers.PriceOrZero(c.field(p, FieldPrice, c.Selectors.Price)); price > 0 {
		return price
	}
	if ld := p.Product(); ld != nil && ld.Price > 0 {
		return ld.Price
	}
	for _, key := range []string{"product:price:amount", "og:price:amount"} {
		if price := helpers.PriceOrZero(p.Meta(key)); price > 0 {
			return price
		}
	}
	return 0
}

// ExtractUsedPrice reads the used/second-hand price, 0 when not found
func (c *ConfigurableAdapter) ExtractUsedPrice(p *Page) float64 {
	return helpers.PriceOrZero(c.field(p, FieldUsedPrice, c.Selectors.UsedPrice))
}

// ExtractStock reports availability. Unknown availability counts as in stock.
func (c *ConfigurableAdapter) ExtractStock(p *Page) bool {
	if c.Selectors.OutOfStock != "" && p.Exists(c.Selectors.OutOfStock) {
		return false
	}

	fragments := c.Selectors.OutOfStockText
	if len(fragments) == 0 {
		fragments = defaultOutOfStockText
	}
	if text := c.field(p, FieldStock, c.Selectors.Stock); text != "" {
		return !helpers.ContainsFold(text, fragments...)
	}

	if ld := p.Product(); ld != nil && ld.Availability != "" {
		switch ld.Availability {
		case "OutOfStock", "SoldOut", "Discontinued":
			return false
		}
	}
	return true
}

// ExtractRateCount reads the number of ratings, 0 when not found
func (c *ConfigurableAdapter) ExtractRateCount(p *Page) int {
	if n := helpers.ParseCount(c.field(p, FieldRateCount, c.Selectors.RateCount)); n > 0 {
		return n
	}
	if ld := p.Product(); ld != nil {
		return ld.ReviewCount
	}
	return 0
}

// ExtractRating reads the average rating, model.DefaultRating when not found
func (c *ConfigurableAdapter) ExtractRating(p *Page) string {
	var text string
	if c.Selectors.RatingAttr != "" {
		text = p.Attr(c.Selectors.Rating, c.Selectors.RatingAttr)
	}
	if text == "" {
		text = c.field(p, FieldRating, c.Selectors.Rating)
	}
	if text != "" && c.Selectors.RatingSep != "" {
		text, _ = helpers.GetSplitPart(text, c.Selectors.RatingSep, 0)
	}
	if rating, ok := normalizeRating(text); ok {
		return rating
	}
	if ld := p.Product(); ld != nil {
		if rating, ok := normalizeRating(ld.Rating); ok {
			return rating
		}
	}
	return model.DefaultRating
}

func normalizeRating(text string) (string, bool) {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	if text == "" {
		return "", false
	}
	value, err := strconv.ParseFloat(strings.Fields(text)[0], 64)
	if err != nil || value < 0 {
		return "", false
	}
	return strconv.FormatFloat(value, 'f', -1, 64), true
}

// ExtractSeller reads the seller name, empty when not found
func (c *ConfigurableAdapter) ExtractSeller(p *Page) string {
	if seller := c.field(p, FieldSeller, c.Selectors.Seller); seller != "" {
		return seller
	}
	if ld := p.Product(); ld != nil {
		return ld.Seller
	}
	return ""
}

// ExtractShippingPrice reads the delivery cost, 0 when free or not found
func (c *ConfigurableAdapter) ExtractShippingPrice(p *Page) float64 {
	text := c.field(p, FieldShippingPrice, c.Selectors.ShippingPrice)
	if text == "" || helpers.ContainsFold(text, "free") {
		return 0
	}
	return helpers.PriceOrZero(text)
}

// ExtractCondition reads the item condition, model.DefaultCondition when not found
func (c *ConfigurableAdapter) ExtractCondition(p *Page) string {
	text := c.field(p, FieldCondition, c.Selectors.Condition)
	if text == "" {
		if ld := p.Product(); ld != nil {
			text = ld.Condition
		}
	}
	return normalizeCondition(text)
}

func normalizeCondition(text string) string {
	switch lower := strings.ToLower(text); {
	case lower == "":
		return model.DefaultCondition
	case strings.Contains(lower, "refurb"):
		return "refurbished"
	case strings.Contains(lower, "used"), strings.Contains(lower, "pre-owned"):
		return "used"
	case strings.Contains(lower, "damaged"):
		return "damaged"
	default:
		return model.DefaultCondition
	}
}
