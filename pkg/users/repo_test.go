package users

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"neuralsalvage/pkg/testhelpers"
)

func insertUser(t *testing.T, repo UserRepository, name string) User {
	t.Helper()

	n := time.Now().UnixNano()
	created, err := repo.CreateUser(context.Background(), name, fmt.Sprintf("%s-%d@example.com", name, n), "hash", "", fmt.Sprintf("uuid-%d", n))
	require.NoError(t, err)
	return created
}

func TestPostgresUserRepository_CreateUser(t *testing.T) {
	pool := testhelpers.NewTestPool(t)
	repo := NewPostgresUserRepository(pool)

	created := insertUser(t, repo, "Alice")

	require.NotZero(t, created.ID)
	require.Equal(t, "Alice", created.Name)
	require.Equal(t, TierFree, created.Tier)
	require.Empty(t, created.BetaFeatures)
	require.False(t, created.CreatedAt.IsZero())
}

func TestPostgresUserRepository_UpdateAndDelete(t *testing.T) {
	pool := testhelpers.NewTestPool(t)
	repo := NewPostgresUserRepository(pool)
	ctx := context.Background()
	created := insertUser(t, repo, "Bob")

	updated, err := repo.UpdateProfile(ctx, created.UUID, "Bobby", "new-pic.png")
	require.NoError(t, err)
	require.Equal(t, "Bobby", updated.Name)
	require.Equal(t, "new-pic.png", updated.ProfilePicURL)

	require.NoError(t, repo.DeleteUserByUUID(ctx, created.UUID))
	_, err = repo.GetUserByUUID(ctx, created.UUID)
	require.ErrorIs(t, err, ErrUserNotFound)
	require.ErrorIs(t, repo.DeleteUserByUUID(ctx, created.UUID), ErrUserNotFound)
}

func TestPostgresUserRepository_ListUsers(t *testing.T) {
	pool := testhelpers.NewTestPool(t)
	testhelpers.Truncate(t, pool)
	repo := NewPostgresUserRepository(pool)

	insertUser(t, repo, "First")
	insertUser(t, repo, "Second")
	insertUser(t, repo, "Third")

	users, total, err := repo.ListUsers(context.Background(), 2, 0)

	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, users, 2)
	require.Equal(t, "First", users[0].Name)
	require.Equal(t, "Second", users[1].Name)
}

func TestPostgresUserRepository_IncrementUsage_StopsAtLimit(t *testing.T) {
	pool := testhelpers.NewTestPool(t)
	repo := NewPostgresUserRepository(pool)
	ctx := context.Background()
	u := insertUser(t, repo, "Meter")

	require.NoError(t, repo.IncrementUsage(ctx, u.UUID, UsageAnalyses, 2))
	require.NoError(t, repo.IncrementUsage(ctx, u.UUID, UsageAnalyses, 2))
	require.ErrorIs(t, repo.IncrementUsage(ctx, u.UUID, UsageAnalyses, 2), ErrUsageLimit)
	require.NoError(t, repo.IncrementUsage(ctx, u.UUID, UsageMints, 0))

	got, err := repo.GetUserByUUID(ctx, u.UUID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Usage.Analyses)
	require.Equal(t, 1, got.Usage.Mints)

	require.ErrorIs(t, repo.IncrementUsage(ctx, "missing", UsageUploads, 5), ErrUserNotFound)
}

func TestPostgresUserRepository_ResetUsage(t *testing.T) {
	pool := testhelpers.NewTestPool(t)
	repo := NewPostgresUserRepository(pool)
	ctx := context.Background()
	u := insertUser(t, repo, "Reset")
	require.NoError(t, repo.IncrementUsage(ctx, u.UUID, UsageUploads, 0))

	n, err := repo.ResetUsage(ctx, time.Now().Add(24*time.Hour*40))
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, int64(1))

	got, err := repo.GetUserByUUID(ctx, u.UUID)
	require.NoError(t, err)
	require.Zero(t, got.Usage.Uploads)
}

func TestPostgresUserRepository_TierAndSubscription(t *testing.T) {
	pool := testhelpers.NewTestPool(t)
	repo := NewPostgresUserRepository(pool)
	ctx := context.Background()
	u := insertUser(t, repo, "Payer")

	subID := fmt.Sprintf("sub_%d", time.Now().UnixNano())
	require.NoError(t, repo.SetTier(ctx, u.UUID, TierPro, "cus_1", subID))

	got, err := repo.GetUserByUUID(ctx, u.UUID)
	require.NoError(t, err)
	require.True(t, got.IsSubscriber())

	uid, err := repo.DowngradeBySubscription(ctx, subID)
	require.NoError(t, err)
	require.Equal(t, u.UUID, uid)

	got, err = repo.GetUserByUUID(ctx, u.UUID)
	require.NoError(t, err)
	require.Equal(t, TierFree, got.Tier)
	require.Equal(t, "cus_1", got.StripeCustomerID)
}

func TestPostgresUserRepository_BetaFeatures(t *testing.T) {
	pool := testhelpers.NewTestPool(t)
	repo := NewPostgresUserRepository(pool)
	ctx := context.Background()
	u := insertUser(t, repo, "Beta")

	got, err := repo.AddBetaFeature(ctx, u.UUID, "nft_minting")
	require.NoError(t, err)
	got, err = repo.AddBetaFeature(ctx, u.UUID, "nft_minting")
	require.NoError(t, err)
	require.Equal(t, []string{"nft_minting"}, got.BetaFeatures)

	got, err = repo.RemoveBetaFeature(ctx, u.UUID, "nft_minting")
	require.NoError(t, err)
	require.Empty(t, got.BetaFeatures)
}

func TestPostgresUserRepository_GetUserAuthByEmail(t *testing.T) {
	pool := testhelpers.NewTestPool(t)
	repo := NewPostgresUserRepository(pool)
	u := insertUser(t, repo, "Auth")

	uid, hash, err := repo.GetUserAuthByEmail(context.Background(), u.Email)
	require.NoError(t, err)
	require.Equal(t, u.UUID, uid)
	require.Equal(t, "hash", hash)

	_, _, err = repo.GetUserAuthByEmail(context.Background(), "nobody@example.com")
	require.ErrorIs(t, err, ErrUserNotFound)
}
