package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Notification is the payload handed to the notification sink
type Notification struct {
	ProductID    int64    `json:"product_id"`
	ProductName  string   `json:"product_name"`
	SiteName     string   `json:"store_name"`
	Price        float64  `json:"price"`
	HighestPrice float64  `json:"highest_price"`
	LowestPrice  float64  `json:"lowest_price"`
	ProductURL   string   `json:"product_url"`
	Image        string   `json:"image"`
	Currency     string   `json:"currency"`
	Reasons      []string `json:"tags"`
	Message      string   `json:"message"`
}

// FormatMessage renders the human readable alert body
func (n Notification) FormatMessage() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is now %s at %s", n.ProductName, FormatPrice(n.Currency, n.Price), n.SiteName)
	if n.HighestPrice > 0 || n.LowestPrice > 0 {
		fmt.Fprintf(&b, " (highest %s, lowest %s)",
			FormatPrice(n.Currency, n.HighestPrice), FormatPrice(n.Currency, n.LowestPrice))
	}
	if len(n.Reasons) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(n.Reasons, ", "))
	}
	return b.String()
}

// FeedItem is the denormalized feed record of a notification
type FeedItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Timestamp   time.Time `json:"updated"`
	ProductID   int64     `json:"product_id"`
	Image       string    `json:"image"`
	SourceLabel string    `json:"name"`
}

// NewFeedItem derives the feed entry of a notification. ID and SourceLabel
// are left to the feed sink.
func NewFeedItem(n Notification, at time.Time) FeedItem {
	price := strconv.FormatFloat(n.Price, 'f', -1, 64)
	return FeedItem{
		Title:     fmt.Sprintf("For Just %s - Discount For %s", price, n.ProductName),
		Summary:   fmt.Sprintf("Your product %s, is at discount with price %s %s", n.ProductName, n.Currency, price),
		Timestamp: at,
		ProductID: n.ProductID,
		Image:     n.Image,
	}
}

// FormatPrice renders a price with its currency code, trimming a zero fraction
func FormatPrice(currency string, price float64) string {
	amount := strconv.FormatFloat(price, 'f', 2, 64)
	amount = strings.TrimSuffix(amount, ".00")
	if currency == "" {
		return amount
	}
	return currency + " " + amount
}
