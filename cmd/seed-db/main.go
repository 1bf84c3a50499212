// Binary seed-db loads a development dataset: products, a demo membership
// with free-unit allocations, a few promotions, and an API key for the order
// administration endpoints.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/montebay/storefront/internal/repository"
)

type productJSON struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	CategoryID     string           `json:"categoryId"`
	CollectionIDs  []string         `json:"collectionIds"`
	Price          decimal.Decimal  `json:"price"`
	CompareAtPrice *decimal.Decimal `json:"compareAtPrice"`
	WeightOz       int              `json:"weightOz"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
		customerID   string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or STOREFRONT_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STOREFRONT_API_KEY_PEPPER env)")
	flag.StringVar(&customerID, "customer-id", "demo-customer", "customer to attach the demo membership to")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("STOREFRONT_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or STOREFRONT_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("STOREFRONT_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper, customerID); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper, customerID string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedMembership(ctx, pool, customerID); err != nil {
		return errors.Wrap(err, "seed membership")
	}
	if err := seedPromotions(ctx, pool); err != nil {
		return errors.Wrap(err, "seed promotions")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

const upsertProductSQL = `INSERT INTO products (id, name, category_id, collection_ids, price, compare_at_price, weight_oz)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    category_id = EXCLUDED.category_id,
    collection_ids = EXCLUDED.collection_ids,
    price = EXCLUDED.price,
    compare_at_price = EXCLUDED.compare_at_price,
    weight_oz = EXCLUDED.weight_oz`

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if p.CollectionIDs == nil {
			p.CollectionIDs = []string{}
		}
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.CategoryID, p.CollectionIDs, p.Price, p.CompareAtPrice, p.WeightOz,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

const (
	upsertMembershipSQL = `INSERT INTO memberships (id, customer_id, active)
VALUES ($1, $2, TRUE)
ON CONFLICT (id) DO UPDATE SET customer_id = EXCLUDED.customer_id, active = TRUE`

	upsertAllocationSQL = `INSERT INTO allocation_ledger (membership_id, category_id, allocated_quantity, used_quantity)
VALUES ($1, $2, $3, 0)
ON CONFLICT (membership_id, category_id) DO UPDATE SET
    allocated_quantity = EXCLUDED.allocated_quantity`
)

func seedMembership(ctx context.Context, pool *pgxpool.Pool, customerID string) error {
	slog.Info("seeding demo membership", slog.String("customer_id", customerID))

	membershipID := "mem-" + customerID
	if _, err := pool.Exec(ctx, upsertMembershipSQL, membershipID, customerID); err != nil {
		return errors.Wrap(err, "upsert membership")
	}

	allocations := map[string]int{
		"coffee": 4,
		"bakery": 2,
	}
	for categoryID, quantity := range allocations {
		if _, err := pool.Exec(ctx, upsertAllocationSQL, membershipID, categoryID, quantity); err != nil {
			return errors.Wrapf(err, "upsert allocation %s", categoryID)
		}

		slog.Info("upserted allocation",
			slog.String("category_id", categoryID), slog.Int("allocated", quantity))
	}

	return nil
}

const (
	upsertPromotionSQL = `INSERT INTO promotions (
    id, name, discount_type, discount_value,
    buy_quantity, get_quantity, get_discount_percent,
    scope_kind, scope_ids, min_purchase, min_quantity,
    usage_limit, per_customer_limit, exclude_discounted, starts_at, ends_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    discount_type = EXCLUDED.discount_type,
    discount_value = EXCLUDED.discount_value,
    buy_quantity = EXCLUDED.buy_quantity,
    get_quantity = EXCLUDED.get_quantity,
    get_discount_percent = EXCLUDED.get_discount_percent,
    scope_kind = EXCLUDED.scope_kind,
    scope_ids = EXCLUDED.scope_ids,
    min_purchase = EXCLUDED.min_purchase,
    min_quantity = EXCLUDED.min_quantity,
    usage_limit = EXCLUDED.usage_limit,
    per_customer_limit = EXCLUDED.per_customer_limit,
    exclude_discounted = EXCLUDED.exclude_discounted,
    starts_at = EXCLUDED.starts_at,
    ends_at = EXCLUDED.ends_at`

	upsertCodeSQL = `INSERT INTO promotion_codes (code, promotion_id, usage_limit, active)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (code) DO UPDATE SET
    promotion_id = EXCLUDED.promotion_id,
    usage_limit = EXCLUDED.usage_limit,
    active = TRUE`
)

type promoSeed struct {
	id              string
	name            string
	discountType    string
	value           decimal.Decimal
	buyQty          int
	getQty          int
	getDiscountPct  decimal.Decimal
	scopeKind       string
	scopeIDs        []string
	minPurchase     decimal.Decimal
	minQuantity     int
	usageLimit      int
	perCustomer     int
	excludeMarkdown bool
	code            string
	codeLimit       int
}

func seedPromotions(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding promotions")

	yearEnd := time.Date(time.Now().Year(), 12, 31, 23, 59, 59, 0, time.UTC)
	promos := []promoSeed{
		{
			id:           "promo-save10",
			name:         "10% off orders over $50",
			discountType: "percentage",
			value:        decimal.NewFromInt(10),
			scopeKind:    "all",
			minPurchase:  decimal.NewFromInt(50),
			perCustomer:  3,
			code:         "SAVE10",
		},
		{
			id:              "promo-coffee5",
			name:            "$5 off coffee",
			discountType:    "fixed_amount",
			value:           decimal.NewFromInt(5),
			scopeKind:       "categories",
			scopeIDs:        []string{"coffee"},
			excludeMarkdown: true,
			code:            "COFFEE5",
			codeLimit:       1000,
		},
		{
			id:           "promo-gifts15",
			name:         "15% off the gift shop",
			discountType: "percentage",
			value:        decimal.NewFromInt(15),
			scopeKind:    "collections",
			scopeIDs:     []string{"gift-shop"},
			code:         "GIFTS15",
		},
		{
			id:             "promo-b2g1",
			name:           "Buy 2 get 1 free, bakery",
			discountType:   "buy_x_get_y",
			buyQty:         2,
			getQty:         1,
			getDiscountPct: decimal.NewFromInt(100),
			scopeKind:      "categories",
			scopeIDs:       []string{"bakery"},
			usageLimit:     500,
			code:           "TREATYOURSELF",
		},
	}

	for _, p := range promos {
		if p.scopeIDs == nil {
			p.scopeIDs = []string{}
		}
		if _, err := pool.Exec(ctx, upsertPromotionSQL,
			p.id, p.name, p.discountType, p.value,
			p.buyQty, p.getQty, p.getDiscountPct,
			p.scopeKind, p.scopeIDs, p.minPurchase, p.minQuantity,
			p.usageLimit, p.perCustomer, p.excludeMarkdown, nil, yearEnd,
		); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", p.id)
		}
		if _, err := pool.Exec(ctx, upsertCodeSQL, p.code, p.id, p.codeLimit); err != nil {
			return errors.Wrapf(err, "upsert code %s", p.code)
		}

		slog.Info("upserted promotion", slog.String("id", p.id), slog.String("code", p.code))
	}

	return nil
}

const upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
VALUES ($1, $2, $3, $4, TRUE)
ON CONFLICT (id) DO UPDATE SET
    key_hash = EXCLUDED.key_hash,
    name = EXCLUDED.name,
    scopes = EXCLUDED.scopes,
    active = TRUE`

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertAPIKeySQL,
		"default", keyHash, "Default admin key", []string{"manage_orders"},
	); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))

	return nil
}
