// Package pgtest starts a throwaway Postgres container with the schema
// applied, plus small fixture helpers for integration tests.
package pgtest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// New returns a migrated database. The container is terminated when the test ends.
// Integration tests are skipped under -short.
func New(t *testing.T) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	if _, err := database.Migrate(ctx, db, "up"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	return db
}

func insertID(t *testing.T, db *sql.DB, query string, args ...any) int64 {
	t.Helper()

	var id int64
	if err := db.QueryRowContext(context.Background(), query, args...).Scan(&id); err != nil {
		t.Fatalf("fixture insert failed: %v\n%s", err, query)
	}
	return id
}

// Dec parses a decimal literal, failing the test on bad input.
func Dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()

	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

// Seller creates a seller with an empty wallet.
func Seller(t *testing.T, db *sql.DB, name, city string) int64 {
	t.Helper()

	id := insertID(t, db,
		`INSERT INTO sellers (name, company_name, phone, city) VALUES ($1, $1, '9800000000', $2) RETURNING id`,
		name, city)
	insertID(t, db, `INSERT INTO seller_wallets (seller_id) VALUES ($1) RETURNING seller_id`, id)
	return id
}

func User(t *testing.T, db *sql.DB, email string, referredBy *int64) int64 {
	t.Helper()

	return insertID(t, db,
		`INSERT INTO users (email, referred_by) VALUES ($1, $2) RETURNING id`,
		email, referredBy)
}

func Product(t *testing.T, db *sql.DB, sellerID *int64, name string, commission string) int64 {
	t.Helper()

	return insertID(t, db,
		`INSERT INTO products (seller_id, name, affiliate_commission) VALUES ($1, $2, $3) RETURNING id`,
		sellerID, name, Dec(t, commission))
}

func DigitalProduct(t *testing.T, db *sql.DB, productID int64) {
	t.Helper()

	insertID(t, db,
		`INSERT INTO digital_products (product_id, file_url) VALUES ($1, 'https://files.example/dl') RETURNING id`,
		productID)
}

func Courier(t *testing.T, db *sql.DB, name, city, status string) int64 {
	t.Helper()

	return insertID(t, db,
		`INSERT INTO curiors (name, phone, city, status) VALUES ($1, '9811111111', $2, $3) RETURNING id`,
		name, city, status)
}

func Coupon(t *testing.T, db *sql.DB, code string, sellerID *int64) int64 {
	t.Helper()

	return insertID(t, db,
		`INSERT INTO coupons (code, seller_id, discount_type, discount_value) VALUES ($1, $2, 'fixed', 0) RETURNING id`,
		code, sellerID)
}

// OrderSpec describes an order fixture. Zero values take column defaults.
type OrderSpec struct {
	UserID           *int64
	Status           string
	PaymentStatus    string
	Subtotal         string
	DeliveryFee      string
	TaxAmount        string
	DiscountAmount   string
	CouponCode       string
	AffiliatePercent string
	IsReferral       bool
	CourierID        *int64
}

func Order(t *testing.T, db *sql.DB, spec OrderSpec) int64 {
	t.Helper()

	if spec.Status == "" {
		spec.Status = "pending"
	}
	if spec.PaymentStatus == "" {
		spec.PaymentStatus = "pending"
	}

	var coupon *string
	if spec.CouponCode != "" {
		coupon = &spec.CouponCode
	}

	id := insertID(t, db,
		`INSERT INTO orders (user_id, status, payment_status, subtotal, delivery_fee, tax_amount,
		                     discount_amount, coupon_code, affiliate_percent, is_referral, curior_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		spec.UserID, spec.Status, spec.PaymentStatus, decOrZero(t, spec.Subtotal), decOrZero(t, spec.DeliveryFee),
		decOrZero(t, spec.TaxAmount), decOrZero(t, spec.DiscountAmount), coupon,
		decOrZero(t, spec.AffiliatePercent), spec.IsReferral, spec.CourierID)

	if _, err := db.Exec(`UPDATE orders SET invoice = 'INV-' || id WHERE id = $1`, id); err != nil {
		t.Fatalf("set invoice: %v", err)
	}
	return id
}

// Item adds a line with total = price * quantity. A nil sellerID leaves the
// item's seller empty.
func Item(t *testing.T, db *sql.DB, orderID, productID int64, sellerID *int64, quantity int, price string) int64 {
	t.Helper()

	p := Dec(t, price)
	return insertID(t, db,
		`INSERT INTO order_items (order_id, product_id, seller_id, quantity, price, total)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		orderID, productID, sellerID, quantity, p, p.Mul(decimal.NewFromInt(int64(quantity))))
}

func decOrZero(t *testing.T, s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	return Dec(t, s)
}

func Ptr(id int64) *int64 {
	return &id
}
