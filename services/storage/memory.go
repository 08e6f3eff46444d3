package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dealmungchi/pricewatcher/internal/history"
	"github.com/dealmungchi/pricewatcher/internal/model"
)

type historyKey struct {
	productID, siteID int64
	day               string
}

// MemoryStore is a mutex-guarded in-process store for tests and local runs
type MemoryStore struct {
	mu       sync.Mutex
	products map[int64]model.Product
	sites    map[int64]model.Site
	links    map[int64]model.Link
	history  map[historyKey]model.PriceHistoryRecord
	nextID   int64
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[int64]model.Product),
		sites:    make(map[int64]model.Site),
		links:    make(map[int64]model.Link),
		history:  make(map[historyKey]model.PriceHistoryRecord),
	}
}

func (s *MemoryStore) id(current int64) int64 {
	if current != 0 {
		if current > s.nextID {
			s.nextID = current
		}
		return current
	}
	s.nextID++
	return s.nextID
}

// AddProduct stores p, assigning an id when unset
func (s *MemoryStore) AddProduct(p model.Product) model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id(p.ID)
	s.products[p.ID] = p
	return p
}

// AddSite stores site, assigning an id when unset
func (s *MemoryStore) AddSite(site model.Site) model.Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	site.ID = s.id(site.ID)
	s.sites[site.ID] = site
	return site
}

// AddLink stores link, assigning an id when unset
func (s *MemoryStore) AddLink(link model.Link) model.Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	link.ID = s.id(link.ID)
	s.links[link.ID] = link
	return link
}

// Product returns a stored product
func (s *MemoryStore) Product(id int64) (model.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	return p, ok
}

// Link returns a stored link
func (s *MemoryStore) Link(id int64) (model.Link, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	return l, ok
}

// History returns the history row of one day
func (s *MemoryStore) History(productID, siteID int64, day time.Time) (model.PriceHistoryRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.history[newHistoryKey(productID, siteID, day)]
	return rec, ok
}

// ListLinkIDs returns the ids of every link in ascending order
func (s *MemoryStore) ListLinkIDs(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.links))
	for id := range s.links {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// LoadLink reads a link with its product and site
func (s *MemoryStore) LoadLink(_ context.Context, linkID int64) (model.LinkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[linkID]
	if !ok {
		return model.LinkRecord{}, fmt.Errorf("link %d: %w", linkID, ErrNotFound)
	}
	product, ok := s.products[link.ProductID]
	if !ok {
		return model.LinkRecord{}, fmt.Errorf("product %d: %w", link.ProductID, ErrNotFound)
	}
	site, ok := s.sites[link.SiteID]
	if !ok {
		return model.LinkRecord{}, fmt.Errorf("site %d: %w", link.SiteID, ErrNotFound)
	}
	return model.LinkRecord{Product: product, Site: site, Link: link}, nil
}

// SaveLink replaces a stored link
func (s *MemoryStore) SaveLink(_ context.Context, link model.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[link.ID]; !ok {
		return fmt.Errorf("link %d: %w", link.ID, ErrNotFound)
	}
	s.links[link.ID] = link
	return nil
}

// UpdateProduct stores a crawled name and image. Empty values are skipped.
func (s *MemoryStore) UpdateProduct(_ context.Context, productID int64, name, image string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("product %d: %w", productID, ErrNotFound)
	}
	if name != "" {
		p.Name = name
	}
	if image != "" {
		p.Image = image
	}
	s.products[productID] = p
	return nil
}

// FindOrCreateDailyPrice returns the row of the day, inserting rec when absent
func (s *MemoryStore) FindOrCreateDailyPrice(_ context.Context, rec model.PriceHistoryRecord) (model.PriceHistoryRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := newHistoryKey(rec.ProductID, rec.SiteID, rec.Day)
	if stored, ok := s.history[key]; ok {
		return stored, false, nil
	}
	s.history[key] = rec
	return rec, true, nil
}

// UpdateDailyPrice lowers the stored prices of the day
func (s *MemoryStore) UpdateDailyPrice(_ context.Context, rec model.PriceHistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := newHistoryKey(rec.ProductID, rec.SiteID, rec.Day)
	stored, ok := s.history[key]
	if !ok {
		return fmt.Errorf("price history %v: %w", key, ErrNotFound)
	}
	stored.Price = history.Lower(stored.Price, rec.Price)
	stored.UsedPrice = history.Lower(stored.UsedPrice, rec.UsedPrice)
	s.history[key] = stored
	return nil
}

// MinPriceSince returns the lowest positive price recorded on or after day
func (s *MemoryStore) MinPriceSince(_ context.Context, productID, siteID int64, day time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	since := dayKey(day)

	var lowest float64
	for key, rec := range s.history {
		if key.productID != productID || key.siteID != siteID || key.day < since {
			continue
		}
		if rec.Price > 0 && (lowest == 0 || rec.Price < lowest) {
			lowest = rec.Price
		}
	}
	return lowest, nil
}

func newHistoryKey(productID, siteID int64, day time.Time) historyKey {
	return historyKey{productID: productID, siteID: siteID, day: dayKey(day)}
}

// dayKey compares like a DATE column: calendar date only, in the day's own zone
func dayKey(day time.Time) string {
	return day.Format(time.DateOnly)
}
