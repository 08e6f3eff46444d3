// Package storage persists products, links and their daily price history.
package storage

import (
	"errors"

	sq "github.com/Masterminds/squirrel"
)

// ErrNotFound is returned when a link does not exist
var ErrNotFound = errors.New("storage: not found")

// psql builds Postgres statements with $n placeholders
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Table names
const (
	tableProducts     = "products"
	tableSites        = "sites"
	tableLinks        = "product_links"
	tablePriceHistory = "price_history"
)

// Schema creates every table the worker needs. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS products (
	id                BIGSERIAL PRIMARY KEY,
	name              TEXT NOT NULL DEFAULT 'NA',
	image             TEXT NOT NULL DEFAULT '',
	snoozed_until     TIMESTAMPTZ,
	max_notifications INTEGER NOT NULL DEFAULT 0,
	lowest_within     INTEGER NOT NULL DEFAULT 0,
	stock             BOOLEAN NOT NULL DEFAULT FALSE,
	only_official     BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS sites (
	id       BIGSERIAL PRIMARY KEY,
	name     TEXT NOT NULL,
	domain   TEXT NOT NULL,
	currency TEXT NOT NULL DEFAULT '',
	referral TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS product_links (
	id                 BIGSERIAL PRIMARY KEY,
	product_id         BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	site_id            BIGINT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
	key                TEXT NOT NULL,
	price              DOUBLE PRECISION NOT NULL DEFAULT 0,
	used_price         DOUBLE PRECISION NOT NULL DEFAULT 0,
	highest_price      DOUBLE PRECISION NOT NULL DEFAULT 0,
	lowest_price       DOUBLE PRECISION NOT NULL DEFAULT 0,
	in_stock           BOOLEAN NOT NULL DEFAULT TRUE,
	seller             TEXT NOT NULL DEFAULT '',
	rate               TEXT NOT NULL DEFAULT '-1',
	number_of_rates    INTEGER NOT NULL DEFAULT 0,
	shipping_price     DOUBLE PRECISION NOT NULL DEFAULT 0,
	condition          TEXT NOT NULL DEFAULT 'new',
	notifications_sent INTEGER NOT NULL DEFAULT 0,
	notify_price       DOUBLE PRECISION NOT NULL DEFAULT 0,
	add_shipping       BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (product_id, site_id, key)
);

CREATE TABLE IF NOT EXISTS price_history (
	product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	site_id    BIGINT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
	date       DATE NOT NULL,
	price      DOUBLE PRECISION NOT NULL DEFAULT 0,
	used_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (product_id, site_id, date)
);
`
