package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealmungchi/pricewatcher/internal/model"
	"github.com/dealmungchi/pricewatcher/logger"
)

// PostgresStore implements the crawl repository and the price history store
// on a pgx pool
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresStore opens a pool for dsn with at most maxConns connections
func NewPostgresStore(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool, log: logger.ForStorage()}, nil
}

// Migrate creates the schema when missing
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	s.log.Debug().Msg("Schema ready")
	return nil
}

// Close releases the pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// ListLinkIDs returns the ids of every tracked link
func (s *PostgresStore) ListLinkIDs(ctx context.Context) ([]int64, error) {
	query, args, err := listLinksQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list links: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan links: %w", err)
	}
	return ids, nil
}

// LoadLink reads a link with its product and site
func (s *PostgresStore) LoadLink(ctx context.Context, linkID int64) (model.LinkRecord, error) {
	query, args, err := loadLinkQuery(linkID).ToSql()
	if err != nil {
		return model.LinkRecord{}, fmt.Errorf("build load link: %w", err)
	}

	var rec model.LinkRecord
	p, st, l := &rec.Product, &rec.Site, &rec.Link
	err = s.pool.QueryRow(ctx, query, args...).Scan(
		&l.ID, &l.ProductID, &l.SiteID, &l.Key,
		&l.Price, &l.UsedPrice, &l.HighestPrice, &l.LowestPrice,
		&l.InStock, &l.Seller, &l.Rating, &l.RateCount,
		&l.ShippingPrice, &l.Condition, &l.NotificationsSent,
		&l.NotifyPrice, &l.AddShipping,
		&p.ID, &p.Name, &p.Image, &p.SnoozedUntil,
		&p.MaxNotifications, &p.LowestWithinDays, &p.StockWatch, &p.OnlyOfficial,
		&st.ID, &st.Name, &st.Domain, &st.Currency, &st.Referral,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.LinkRecord{}, fmt.Errorf("link %d: %w", linkID, ErrNotFound)
	}
	if err != nil {
		return model.LinkRecord{}, fmt.Errorf("load link %d: %w", linkID, err)
	}
	return rec, nil
}

// SaveLink writes the crawl-updated columns of a link
func (s *PostgresStore) SaveLink(ctx context.Context, link model.Link) error {
	query, args, err := saveLinkQuery(link).ToSql()
	if err != nil {
		return fmt.Errorf("build save link: %w", err)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save link %d: %w", link.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("link %d: %w", link.ID, ErrNotFound)
	}
	return nil
}

// UpdateProduct stores a crawled name and image. Empty values are skipped.
func (s *PostgresStore) UpdateProduct(ctx context.Context, productID int64, name, image string) error {
	builder, ok := updateProductQuery(productID, name, image)
	if !ok {
		return nil
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build update product: %w", err)
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update product %d: %w", productID, err)
	}
	return nil
}

// FindOrCreateDailyPrice upserts the (product, site, day) row without
// touching the stored prices of an existing one
func (s *PostgresStore) FindOrCreateDailyPrice(ctx context.Context, rec model.PriceHistoryRecord) (model.PriceHistoryRecord, bool, error) {
	query, args, err := findOrCreateDailyPriceQuery(rec).ToSql()
	if err != nil {
		return model.PriceHistoryRecord{}, false, fmt.Errorf("build daily price: %w", err)
	}

	stored := rec
	var created bool
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&stored.Price, &stored.UsedPrice, &created); err != nil {
		return model.PriceHistoryRecord{}, false, fmt.Errorf("daily price: %w", err)
	}
	return stored, created, nil
}

// UpdateDailyPrice lowers the stored prices. The comparison runs in the
// statement so concurrent crawls cannot raise a minimum.
func (s *PostgresStore) UpdateDailyPrice(ctx context.Context, rec model.PriceHistoryRecord) error {
	query, args, err := updateDailyPriceQuery(rec).ToSql()
	if err != nil {
		return fmt.Errorf("build update daily price: %w", err)
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update daily price: %w", err)
	}
	return nil
}

// MinPriceSince returns the lowest positive price recorded on or after day
func (s *PostgresStore) MinPriceSince(ctx context.Context, productID, siteID int64, day time.Time) (float64, error) {
	query, args, err := minPriceSinceQuery(productID, siteID, day).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build min price: %w", err)
	}

	var lowest float64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&lowest); err != nil {
		return 0, fmt.Errorf("min price: %w", err)
	}
	return lowest, nil
}

func listLinksQuery() sq.SelectBuilder {
	return psql.Select("id").From(tableLinks).OrderBy("id")
}

func loadLinkQuery(linkID int64) sq.SelectBuilder {
	return psql.Select(
		"l.id", "l.product_id", "l.site_id", "l.key",
		"l.price", "l.used_price", "l.highest_price", "l.lowest_price",
		"l.in_stock", "l.seller", "l.rate", "l.number_of_rates",
		"l.shipping_price", "l.condition", "l.notifications_sent",
		"l.notify_price", "l.add_shipping",
		"p.id", "p.name", "p.image", "p.snoozed_until",
		"p.max_notifications", "p.lowest_within", "p.stock", "p.only_official",
		"s.id", "s.name", "s.domain", "s.currency", "s.referral",
	).
		From(tableLinks + " l").
		Join(tableProducts + " p ON p.id = l.product_id").
		Join(tableSites + " s ON s.id = l.site_id").
		Where(sq.Eq{"l.id": linkID})
}

func saveLinkQuery(link model.Link) sq.UpdateBuilder {
	return psql.Update(tableLinks).
		SetMap(map[string]interface{}{
			"price":              link.Price,
			"used_price":         link.UsedPrice,
			"highest_price":      link.HighestPrice,
			"lowest_price":       link.LowestPrice,
			"in_stock":           link.InStock,
			"seller":             link.Seller,
			"rate":               link.Rating,
			"number_of_rates":    link.RateCount,
			"shipping_price":     link.ShippingPrice,
			"condition":          link.Condition,
			"notifications_sent": link.NotificationsSent,
		}).
		Where(sq.Eq{"id": link.ID})
}

func updateProductQuery(productID int64, name, image string) (sq.UpdateBuilder, bool) {
	values := map[string]interface{}{}
	if name != "" {
		values["name"] = name
	}
	if image != "" {
		values["image"] = image
	}
	if len(values) == 0 {
		return sq.UpdateBuilder{}, false
	}
	return psql.Update(tableProducts).SetMap(values).Where(sq.Eq{"id": productID}), true
}

// xmax is 0 only on a freshly inserted row
func findOrCreateDailyPriceQuery(rec model.PriceHistoryRecord) sq.InsertBuilder {
	return psql.Insert(tablePriceHistory).
		Columns("product_id", "site_id", "date", "price", "used_price").
		Values(rec.ProductID, rec.SiteID, rec.Day, rec.Price, rec.UsedPrice).
		Suffix("ON CONFLICT (product_id, site_id, date) DO UPDATE SET product_id = EXCLUDED.product_id " +
			"RETURNING price, used_price, (xmax = 0)")
}

func updateDailyPriceQuery(rec model.PriceHistoryRecord) sq.UpdateBuilder {
	return psql.Update(tablePriceHistory).
		Set("price", lowerExpr("price", rec.Price)).
		Set("used_price", lowerExpr("used_price", rec.UsedPrice)).
		Where(sq.Eq{
			"product_id": rec.ProductID,
			"site_id":    rec.SiteID,
			"date":       rec.Day,
		})
}

func lowerExpr(column string, observed float64) sq.Sqlizer {
	return sq.Expr(
		fmt.Sprintf("CASE WHEN ?::double precision > 0 AND (%[1]s <= 0 OR ? < %[1]s) THEN ? ELSE %[1]s END", column),
		observed, observed, observed,
	)
}

func minPriceSinceQuery(productID, siteID int64, day time.Time) sq.SelectBuilder {
	return psql.Select("COALESCE(MIN(price), 0)").
		From(tablePriceHistory).
		Where(sq.Eq{"product_id": productID, "site_id": siteID}).
		Where(sq.GtOrEq{"date": day}).
		Where(sq.Gt{"price": 0})
}
