package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotificationFormatMessage(t *testing.T) {
	n := Notification{
		ProductName:  "Kettle",
		SiteName:     "Amazon",
		Price:        80,
		HighestPrice: 100,
		LowestPrice:  79.5,
		Currency:     "GBP",
		Reasons:      []string{"Official Only", "Price Reached"},
	}
	assert.Equal(t, "Kettle is now GBP 80 at Amazon (highest GBP 100, lowest GBP 79.50) [Official Only, Price Reached]", n.FormatMessage())

	n.HighestPrice, n.LowestPrice, n.Reasons = 0, 0, nil
	assert.Equal(t, "Kettle is now GBP 80 at Amazon", n.FormatMessage())
}

func TestNewFeedItem(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	item := NewFeedItem(Notification{
		ProductID:   4,
		ProductName: "Kettle",
		Price:       79.99,
		Currency:    "GBP",
		Image:       "https://img.example/k.jpg",
	}, at)

	assert.Equal(t, "For Just 79.99 - Discount For Kettle", item.Title)
	assert.Equal(t, "Your product Kettle, is at discount with price GBP 79.99", item.Summary)
	assert.Equal(t, int64(4), item.ProductID)
	assert.Equal(t, at, item.Timestamp)
	assert.Empty(t, item.ID)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "GBP 12", FormatPrice("GBP", 12))
	assert.Equal(t, "12.50", FormatPrice("", 12.5))
	assert.Equal(t, "AED 1049.99", FormatPrice("AED", 1049.99))
}
