// Package notify delivers alerts and feed entries over publisher streams.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dealmungchi/pricewatcher/internal/model"
	"github.com/dealmungchi/pricewatcher/logger"
	"github.com/dealmungchi/pricewatcher/services/publisher"
)

// Stream message keys
const (
	NotificationKey = "notification"
	FeedKey         = "feed_item"
)

// StreamNotifier publishes notifications as JSON
type StreamNotifier struct {
	pub publisher.Publisher
	log *logger.Logger
}

// NewStreamNotifier creates a notifier on pub
func NewStreamNotifier(pub publisher.Publisher) *StreamNotifier {
	return &StreamNotifier{pub: pub, log: logger.ForNotifier()}
}

// Send publishes n, rendering its message when unset
func (s *StreamNotifier) Send(ctx context.Context, n model.Notification) error {
	if n.Message == "" {
		n.Message = n.FormatMessage()
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := s.pub.Publish(ctx, NotificationKey, data); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	s.log.Info().
		Str("product", n.ProductName).
		Str("site", n.SiteName).
		Float64("price", n.Price).
		Strs("tags", n.Reasons).
		Msg("Notification sent")
	return nil
}

// StreamFeed publishes feed items as JSON
type StreamFeed struct {
	pub   publisher.Publisher
	label string
	newID func() string
	log   *logger.Logger
}

// NewStreamFeed creates a feed sink labelling every item with label
func NewStreamFeed(pub publisher.Publisher, label string) *StreamFeed {
	return &StreamFeed{
		pub:   pub,
		label: label,
		newID: uuid.NewString,
		log:   logger.ForNotifier(),
	}
}

// Publish assigns an id and source label when missing and publishes item
func (f *StreamFeed) Publish(ctx context.Context, item model.FeedItem) error {
	if item.ID == "" {
		item.ID = f.newID()
	}
	if item.SourceLabel == "" {
		item.SourceLabel = f.label
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal feed item: %w", err)
	}
	if err := f.pub.Publish(ctx, FeedKey, data); err != nil {
		return fmt.Errorf("publish feed item: %w", err)
	}

	f.log.Debug().Str("id", item.ID).Str("title", item.Title).Msg("Feed item published")
	return nil
}
