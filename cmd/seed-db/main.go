// Command seed-db loads the product catalog, demo coupons, demo users, and a
// default API key into the database. It is idempotent: everything is
// upserted.
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

	"github.com/caremart/checkout/internal/repository"
)

type productJSON struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	Price                decimal.Decimal `json:"price"`
	Category             string          `json:"category"`
	RequiresPrescription bool            `json:"requires_prescription"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or CARE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or CARE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("CARE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or CARE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("CARE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
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
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedUsers(ctx, pool); err != nil {
		return errors.Wrap(err, "seed users")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

const upsertProductSQL = `INSERT INTO products (id, name, price, category, requires_prescription)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		price = EXCLUDED.price,
		category = EXCLUDED.category,
		requires_prescription = EXCLUDED.requires_prescription`

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
		_, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Price, p.Category, p.RequiresPrescription)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

const upsertCouponSQL = `INSERT INTO coupons
	(code, type, value, max_discount, min_order_value, start_date, expiry_date,
	 usage_limit, user_usage_limit, applicable_users, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (code) DO UPDATE SET
		type = EXCLUDED.type,
		value = EXCLUDED.value,
		max_discount = EXCLUDED.max_discount,
		min_order_value = EXCLUDED.min_order_value,
		start_date = EXCLUDED.start_date,
		expiry_date = EXCLUDED.expiry_date,
		usage_limit = EXCLUDED.usage_limit,
		user_usage_limit = EXCLUDED.user_usage_limit,
		applicable_users = EXCLUDED.applicable_users,
		status = EXCLUDED.status`

type couponSeed struct {
	code           string
	typ            string
	value          decimal.Decimal
	maxDiscount    int64
	minOrderValue  int64
	expiryDate     *time.Time
	usageLimit     int
	userUsageLimit int
	users          []string
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo coupons")

	yearOut := time.Now().AddDate(1, 0, 0)
	coupons := []couponSeed{
		{
			code:        "HEALTH10",
			typ:         "percentage",
			value:       decimal.NewFromInt(10),
			maxDiscount: 10000, // 100.00 cap
			usageLimit:  1000,
			expiryDate:  &yearOut,
		},
		{
			code:          "FLAT150",
			typ:           "fixed",
			value:         decimal.NewFromInt(150),
			minOrderValue: 50000, // orders of 500.00 and up
			usageLimit:    500,
		},
		{
			code:           "WELCOME",
			typ:            "percentage",
			value:          decimal.NewFromInt(20),
			maxDiscount:    20000,
			userUsageLimit: 1,
		},
	}

	for _, c := range coupons {
		userLimit := c.userUsageLimit
		if userLimit == 0 {
			userLimit = 1
		}
		users := c.users
		if users == nil {
			users = []string{}
		}
		_, err := pool.Exec(ctx, upsertCouponSQL,
			c.code, c.typ, c.value, c.maxDiscount, c.minOrderValue,
			nil, c.expiryDate, c.usageLimit, userLimit, users, "active")
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}

		slog.Info("upserted coupon", slog.String("code", c.code), slog.String("type", c.typ))
	}

	return nil
}

const upsertUserSQL = `INSERT INTO users
	(id, name, email, phone, role, referral_code, referred_by, commission_rate)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		email = EXCLUDED.email,
		phone = EXCLUDED.phone,
		role = EXCLUDED.role,
		referral_code = EXCLUDED.referral_code,
		referred_by = EXCLUDED.referred_by,
		commission_rate = EXCLUDED.commission_rate`

func seedUsers(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo users")

	users := []struct {
		id, name, email, phone, role, referralCode, referredBy string
		commissionRate                                         decimal.Decimal
	}{
		{
			id: "inf-demo", name: "Dr. Anita Mehta", email: "anita@example.com",
			role: "influencer", referralCode: "DRMEHTA",
			commissionRate: decimal.NewFromInt(10),
		},
		{
			id: "cust-demo", name: "Asha Kumar", email: "asha@example.com",
			role: "customer", referredBy: "inf-demo",
			commissionRate: decimal.Zero,
		},
	}

	for _, u := range users {
		_, err := pool.Exec(ctx, upsertUserSQL,
			u.id, u.name, u.email, u.phone, u.role, u.referralCode, u.referredBy, u.commissionRate)
		if err != nil {
			return errors.Wrapf(err, "upsert user %s", u.id)
		}

		slog.Info("upserted user", slog.String("id", u.id), slog.String("role", u.role))
	}

	return nil
}

const upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		key_hash = EXCLUDED.key_hash,
		name = EXCLUDED.name,
		scopes = EXCLUDED.scopes,
		active = EXCLUDED.active`

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	_, err := pool.Exec(ctx, upsertAPIKeySQL,
		"default", keyHash, "Default test key", []string{"create_order"}, true)
	if err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))

	return nil
}
