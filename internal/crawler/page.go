package crawler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Page is a parsed product page that adapters query with CSS selectors
type Page struct {
	url string
	doc *goquery.Document

	ldOnce  sync.Once
	product *StructuredProduct
}

// NewPage parses an HTML document
func NewPage(reader io.Reader, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Page{url: pageURL, doc: doc}, nil
}

// NewPageFromString parses an HTML string
func NewPageFromString(html, pageURL string) (*Page, error) {
	return NewPage(strings.NewReader(html), pageURL)
}

// URL returns the address the page was fetched from
func (p *Page) URL() string {
	if p == nil {
		return ""
	}
	return p.url
}

// Document exposes the goquery document for custom handlers
func (p *Page) Document() *goquery.Document {
	if p == nil {
		return nil
	}
	return p.doc
}

// Find returns the selection for selector, empty when the page is nil
func (p *Page) Find(selector string) *goquery.Selection {
	if p == nil || p.doc == nil || selector == "" {
		return &goquery.Selection{}
	}
	return p.doc.Find(selector)
}

// Text returns the trimmed text of the first element matching selector
func (p *Page) Text(selector string) string {
	sel := p.Find(selector)
	if sel.Length() == 0 {
		return ""
	}
	return strings.Join(strings.Fields(sel.First().Text()), " ")
}

// Attr returns an attribute of the first element matching selector
func (p *Page) Attr(selector, attr string) string {
	sel := p.Find(selector)
	if sel.Length() == 0 {
		return ""
	}
	value, _ := sel.First().Attr(attr)
	return strings.TrimSpace(value)
}

// Exists reports whether any element matches selector
func (p *Page) Exists(selector string) bool {
	return p.Find(selector).Length() > 0
}

// Meta returns the content of a <meta property=...> or <meta name=...> tag
func (p *Page) Meta(key string) string {
	if v := p.Attr(fmt.Sprintf("meta[property=%q]", key), "content"); v != "" {
		return v
	}
	return p.Attr(fmt.Sprintf("meta[name=%q]", key), "content")
}

// Resolve turns a possibly relative reference into an absolute URL
func (p *Page) Resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	base, err := url.Parse(p.URL())
	if err != nil || base.Host == "" {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

// StructuredProduct is the schema.org Product embedded as JSON-LD
type StructuredProduct struct {
	Name         string
	Image        string
	Price        float64
	Availability string
	Seller       string
	Rating       string
	ReviewCount  int
	Condition    string
}

// Product returns the first schema.org Product found in the page's JSON-LD
// scripts, or nil.
func (p *Page) Product() *StructuredProduct {
	if p == nil {
		return nil
	}
	p.ldOnce.Do(func() {
		p.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			var raw any
			if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
				return true
			}
			if node := findProductNode(raw); node != nil {
				p.product = parseProductNode(node)
				return false
			}
			return true
		})
	})
	return p.product
}

func findProductNode(raw any) map[string]any {
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if node := findProductNode(item); node != nil {
				return node
			}
		}
	case map[string]any:
		if isType(v["@type"], "Product") {
			return v
		}
		if graph, ok := v["@graph"]; ok {
			return findProductNode(graph)
		}
	}
	return nil
}

func isType(value any, want string) bool {
	switch v := value.(type) {
	case string:
		return v == want
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func parseProductNode(node map[string]any) *StructuredProduct {
	product := &StructuredProduct{
		Name:      ldString(node["name"]),
		Image:     ldImage(node["image"]),
		Condition: ldSchemaValue(ldString(node["itemCondition"])),
	}

	if rating, ok := node["aggregateRating"].(map[string]any); ok {
		product.Rating = ldString(rating["ratingValue"])
		count := ldString(rating["reviewCount"])
		if count == "" {
			count = ldString(rating["ratingCount"])
		}
		product.ReviewCount, _ = strconv.Atoi(count)
	}

	offer := firstOffer(node["offers"])
	if offer != nil {
		price := ldString(offer["price"])
		if price == "" {
			price = ldString(offer["lowPrice"])
		}
		product.Price, _ = strconv.ParseFloat(price, 64)
		product.Availability = ldSchemaValue(ldString(offer["availability"]))
		if seller, ok := offer["seller"].(map[string]any); ok {
			product.Seller = ldString(seller["name"])
		}
		if product.Condition == "" {
			product.Condition = ldSchemaValue(ldString(offer["itemCondition"]))
		}
	}
	return product
}

func firstOffer(raw any) map[string]any {
	switch v := raw.(type) {
	case map[string]any:
		if nested, ok := v["offers"]; ok && v["price"] == nil && v["lowPrice"] == nil {
			return firstOffer(nested)
		}
		return v
	case []any:
		for _, item := range v {
			if offer := firstOffer(item); offer != nil {
				return offer
			}
		}
	}
	return nil
}

func ldString(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case map[string]any:
		if name, ok := v["name"]; ok {
			return ldString(name)
		}
		return ldString(v["@id"])
	}
	return ""
}

func ldImage(raw any) string {
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if img := ldImage(item); img != "" {
				return img
			}
		}
	case map[string]any:
		return ldString(v["url"])
	}
	return ldString(raw)
}

// ldSchemaValue strips the schema.org prefix: "https://schema.org/InStock" -> "InStock"
func ldSchemaValue(value string) string {
	if i := strings.LastIndex(value, "/"); i >= 0 {
		return value[i+1:]
	}
	return value
}
