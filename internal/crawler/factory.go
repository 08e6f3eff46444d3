package crawler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dealmungchi/pricewatcher/internal/model"
	"github.com/dealmungchi/pricewatcher/logger"
)

// ErrNoAdapter is returned when no adapter is registered for a domain
var ErrNoAdapter = errors.New("no adapter registered for domain")

type registryEntry struct {
	pattern string
	adapter SiteAdapter
}

// Registry resolves a site domain to its adapter. Entries are matched in
// registration order by case-insensitive substring.
type Registry struct {
	entries []registryEntry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an adapter for a domain pattern
func (r *Registry) Register(pattern string, adapter SiteAdapter) {
	r.entries = append(r.entries, registryEntry{pattern: strings.ToLower(pattern), adapter: adapter})
}

// Resolve returns the first adapter whose pattern occurs in domain
func (r *Registry) Resolve(domain string) (SiteAdapter, error) {
	domain = strings.ToLower(domain)
	for _, e := range r.entries {
		if strings.Contains(domain, e.pattern) {
			return e.adapter, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoAdapter, domain)
}

// Len returns the number of registered patterns
func (r *Registry) Len() int {
	return len(r.entries)
}

// CreateRegistry registers every built-in retailer adapter
func CreateRegistry() *Registry {
	registry := NewRegistry()
	for _, config := range AdapterConfigs() {
		adapter := NewConfigurableAdapter(config)
		for _, domain := range config.Domains {
			registry.Register(domain, adapter)
		}
	}

	log := logger.ForFetcher()
	log.Debug().Int("patterns", registry.Len()).Msg("Created adapter registry")
	return registry
}

func productURL(format string) URLBuilderFunc {
	return func(domain, key string, _ model.Site) string {
		return fmt.Sprintf(format, strings.TrimSuffix(domain, "/"), key)
	}
}

// AdapterConfigs returns the built-in retailer configurations
func AdapterConfigs() []AdapterConfig {
	return []AdapterConfig{
		{
			// Amazon marketplaces (amazon.com, amazon.co.uk, amazon.ae, ...)
			Name:       "Amazon",
			Domains:    []string{"amazon."},
			URLBuilder: productURL("https://%s/dp/%s"),
			ExtraHeaders: map[string]string{
				"Accept-Language": "en-GB,en;q=0.9",
			},
			Selectors: Selectors{
				Name:          "#productTitle",
				Image:         "#landingImage, #imgBlkFront",
				ImageAttrs:    []string{"data-old-hires", "src"},
				Price:         "#corePrice_feature_div .a-offscreen, #corePriceDisplay_desktop_feature_div .a-offscreen, #priceblock_ourprice",
				UsedPrice:     "#usedBuySection .a-color-price, #olpLinkWidget_feature_div .a-color-price",
				Stock:         "#availability",
				OutOfStock:    "#outOfStock",
				RateCount:     "#acrCustomerReviewText",
				Rating:        "#acrPopover",
				RatingAttr:    "title",
				RatingSep:     "out of",
				Seller:        "#sellerProfileTriggerId, #merchant-info a span",
				ShippingPrice: "#deliveryBlockMessage [data-csa-c-delivery-price]",
				Condition:     "#usedItemConditionInfo_feature_div",
			},
		},
		{
			// Argos
			Name:       "Argos",
			Domains:    []string{"argos.co.uk"},
			URLBuilder: productURL("https://%s/product/%s/"),
			Selectors: Selectors{
				Name:       "[data-test='product-title']",
				Image:      "[data-test='component-media-gallery'] img",
				Price:      "[data-test='product-price-primary']",
				Stock:      "[data-test='add-to-trolley-button-button']",
				OutOfStock: "[data-test='component-att-button-out-of-stock']",
				RateCount:  "[itemprop='ratingCount']",
				Rating:     "[itemprop='ratingValue']",
			},
			CustomHandlers: CustomHandlers{
				FieldHandlers: map[string]FieldHandlerFunc{
					// Argos only sells its own stock
					FieldSeller: func(*Page) string { return "Argos" },
				},
			},
		},
		{
			// Costco
			Name:       "Costco",
			Domains:    []string{"costco."},
			URLBuilder: productURL("https://%s/p/%s"),
			Selectors: Selectors{
				Name:       "h1[itemprop='name'], .product-name",
				Image:      "img.product-image, #productImageContainer img",
				Price:      ".product-price-amount, [automation-id='productPriceOutput']",
				Stock:      "#add-to-cart-btn, .add-to-cart",
				OutOfStock: ".out-of-stock, #outOfStockMessage",
				RateCount:  ".bv_numReviews_text",
				Rating:     ".bv_avgRating_component_container",
			},
			CustomHandlers: CustomHandlers{
				FieldHandlers: map[string]FieldHandlerFunc{
					FieldSeller: func(*Page) string { return "Costco" },
				},
			},
		},
		{
			// Currys
			Name:       "Currys",
			Domains:    []string{"currys.c"},
			URLBuilder: productURL("https://%s/products/%s.html"),
			Selectors: Selectors{
				Name:          "h1.product-name",
				Image:         ".product-gallery img, .pdp-image img",
				Price:         ".product-price .value, [data-product='price'] .price",
				Stock:         ".availability-msg, .delivery-availability",
				OutOfStock:    ".product-unavailable",
				RateCount:     ".bv_numReviews_text",
				Rating:        ".bv_avgRating_component_container",
				ShippingPrice: ".delivery-price",
			},
			CustomHandlers: CustomHandlers{
				FieldHandlers: map[string]FieldHandlerFunc{
					FieldSeller: func(*Page) string { return "Currys" },
				},
			},
		},
		{
			// Noon
			Name:       "Noon",
			Domains:    []string{"noon.com"},
			URLBuilder: productURL("https://%s/uae-en/%s/p/"),
			UseChrome:  true,
			Selectors: Selectors{
				Name:      "h1[data-qa='pdp-name'], h1",
				Image:     "div[class*='imageContainer'] img",
				Price:     "div[data-qa='div-price-now'], .priceNow",
				Stock:     "button[data-qa='pdp-add-to-cart']",
				RateCount: "[data-qa='product-rating-count'], span[class*='ratingsCount']",
				Rating:    "[data-qa='product-rating'], div[class*='RatingPreview'] span",
				Seller:    "[data-qa='pdp-seller-name'], .allOffers a",
			},
		},
		{
			// Walmart serves a JSON-LD product block on every item page
			Name:       "Walmart",
			Domains:    []string{"walmart"},
			URLBuilder: productURL("https://%s/ip/%s"),
			Selectors: Selectors{
				Name:          "h1[itemprop='name']",
				Image:         "[data-testid='hero-image-container'] img",
				Price:         "[itemprop='price']",
				OutOfStock:    "[data-testid='out-of-stock-message']",
				Seller:        "[data-testid='product-seller-info'] a, a[data-testid='seller-name-link']",
				ShippingPrice: "[data-testid='fulfillment-shipping-text']",
			},
		},
		{
			// MediaMarkt renders prices client side
			Name:       "MediaMarkt",
			Domains:    []string{"mediamarkt"},
			URLBuilder: productURL("https://%s/de/product/%s.html"),
			UseChrome:  true,
			Selectors: Selectors{
				Name:       "h1[data-test='mms-select-details-header'], h1",
				Image:      "[data-test='mms-media-gallery'] img, picture img",
				Price:      "[data-test='branded-price-whole-value']",
				Stock:      "[data-test='mms-delivery-online-availability']",
				OutOfStock: "[data-test='mms-product-not-available']",
				RateCount:  "[data-test='mms-customer-rating-count']",
			},
			CustomHandlers: CustomHandlers{
				FieldHandlers: map[string]FieldHandlerFunc{
					FieldSeller: func(*Page) string { return "MediaMarkt" },
				},
			},
		},
		{
			// eBay
			Name:       "eBay",
			Domains:    []string{"ebay."},
			URLBuilder: productURL("https://%s/itm/%s"),
			Selectors: Selectors{
				Name:          "h1.x-item-title__mainTitle span",
				Image:         ".ux-image-carousel-item.active img, .ux-image-carousel-item img",
				ImageAttrs:    []string{"data-zoom-src", "src"},
				Price:         ".x-price-primary span",
				Stock:         ".d-quantity__availability, #qtySubTxt",
				OutOfStock:    ".d-statusmessage--out-of-stock",
				RateCount:     ".x-sellercard-atf__data-item .ux-textspans--SECONDARY",
				Seller:        ".x-sellercard-atf__info__about-seller a span",
				ShippingPrice: ".ux-labels-values--shipping .ux-textspans--BOLD",
				Condition:     ".x-item-condition-text .ux-textspans",
			},
		},
	}
}
