package testhelpers

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neuralsalvage/pkg/db"
)

var uniqueCounter int64

func nextSuffix() int64 {
	return atomic.AddInt64(&uniqueCounter, 1)
}

// NewTestPool connects to DATABASE_URL_FOR_TEST, applies migrations and
// skips the test when the variable is unset.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL_FOR_TEST")
	if dsn == "" {
		t.Skip("DATABASE_URL_FOR_TEST not set; skipping repository tests")
	}
	require.NoError(t, db.Migrate(dsn, zap.NewNop()))

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))

	t.Cleanup(pool.Close)
	return pool
}

// Truncate empties every application table.
func Truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		"TRUNCATE TABLE notifications, sales, mint_orders, nfts, collection_assets, collections, media_assets, otps, users RESTART IDENTITY CASCADE")
	require.NoError(t, err)
}

// CreateTestUser inserts a minimal free-tier user and returns its UUID.
func CreateTestUser(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	suffix := nextSuffix()
	uid := fmt.Sprintf("test-user-uuid-%d", suffix)
	email := fmt.Sprintf("test-user-%d@example.com", suffix)

	_, err := pool.Exec(context.Background(),
		"INSERT INTO users (uuid, name, email, password_hash) VALUES ($1, $2, $3, 'hash')",
		uid, fmt.Sprintf("test-user-%d", suffix), email)
	require.NoError(t, err)
	return uid
}

// CreateTestMedia inserts an analysed image owned by ownerUUID and returns its ID.
func CreateTestMedia(t *testing.T, pool *pgxpool.Pool, ownerUUID string) int64 {
	t.Helper()

	suffix := nextSuffix()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO media_assets (owner_uuid, title, file_name, mime_type, kind, size_bytes, storage_key, analysis_status)
		 VALUES ($1, $2, $3, 'image/png', 'image', 1024, $4, 'completed') RETURNING id`,
		ownerUUID, fmt.Sprintf("test-media-%d", suffix), fmt.Sprintf("file-%d.png", suffix), fmt.Sprintf("media/%s/%d.png", ownerUUID, suffix),
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// ListForSale flags a media asset as purchasable at priceCents.
func ListForSale(t *testing.T, pool *pgxpool.Pool, mediaID, priceCents int64) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		"UPDATE media_assets SET for_sale = TRUE, price_cents = $1 WHERE id = $2", priceCents, mediaID)
	require.NoError(t, err)
}
