package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUsageLimit   = errors.New("usage limit reached for current plan")
)

type UserRepository interface {
	CreateUser(ctx context.Context, name, email, passwordHash, profilePicURL, uuid string) (User, error)
	UpdateProfile(ctx context.Context, uuid, name, profilePicURL string) (User, error)
	DeleteUserByUUID(ctx context.Context, uuid string) error
	GetUserByUUID(ctx context.Context, uuid string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]User, int64, error)
	// Auth helpers
	GetUserAuthByEmail(ctx context.Context, email string) (string, string, error)
	UpdateVerifiedAtByEmail(ctx context.Context, email string, ts time.Time) error
	// Billing
	SetTier(ctx context.Context, uuid, tier, customerID, subscriptionID string) error
	DowngradeBySubscription(ctx context.Context, subscriptionID string) (string, error)
	SetStripeAccount(ctx context.Context, uuid, accountID string) error
	IncrementUsage(ctx context.Context, uuid string, kind UsageKind, limit int) error
	ResetUsage(ctx context.Context, periodStart time.Time) (int64, error)
	// Beta
	AddBetaFeature(ctx context.Context, uuid, feature string) (User, error)
	RemoveBetaFeature(ctx context.Context, uuid, feature string) (User, error)
}

type postgresUserRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepository(pool *pgxpool.Pool) UserRepository {
	return &postgresUserRepository{pool: pool}
}

const userColumns = `id, uuid, name, email, profile_pic_url, tier, stripe_customer_id, stripe_subscription_id,
	stripe_account_id, uploads_used, analyses_used, mints_used, period_start, beta_features, verified_at, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.UUID, &u.Name, &u.Email, &u.ProfilePicURL, &u.Tier, &u.StripeCustomerID,
		&u.StripeSubscriptionID, &u.StripeAccountID, &u.Usage.Uploads, &u.Usage.Analyses, &u.Usage.Mints,
		&u.Usage.PeriodStart, &u.BetaFeatures, &u.VerifiedAt, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *postgresUserRepository) CreateUser(ctx context.Context, name, email, passwordHash, profilePicURL, uuid string) (User, error) {
	query := `INSERT INTO users (name, email, password_hash, profile_pic_url, uuid, created_at)
              VALUES ($1, $2, $3, $4, $5, NOW())
              RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, query, name, email, passwordHash, profilePicURL, uuid))
}

func (r *postgresUserRepository) UpdateProfile(ctx context.Context, uuid, name, profilePicURL string) (User, error) {
	query := `UPDATE users
              SET name = $1, profile_pic_url = $2
              WHERE uuid = $3 AND is_deleted = false
              RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, query, name, profilePicURL, uuid))
}

func (r *postgresUserRepository) DeleteUserByUUID(ctx context.Context, uuid string) error {
	cmd, err := r.pool.Exec(ctx, "UPDATE users SET is_deleted = true WHERE uuid = $1 AND is_deleted = false", uuid)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *postgresUserRepository) GetUserByUUID(ctx context.Context, uuid string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE uuid = $1 AND is_deleted = false`
	return scanUser(r.pool.QueryRow(ctx, query, uuid))
}

func (r *postgresUserRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) AND is_deleted = false`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *postgresUserRepository) ListUsers(ctx context.Context, limit, offset int) ([]User, int64, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE is_deleted = false ORDER BY id LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE is_deleted = false").Scan(&total); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *postgresUserRepository) GetUserAuthByEmail(ctx context.Context, email string) (string, string, error) {
	var uuid, hash string
	err := r.pool.QueryRow(ctx, "SELECT uuid, password_hash FROM users WHERE lower(email) = lower($1) AND is_deleted = false", email).Scan(&uuid, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrUserNotFound
		}
		return "", "", err
	}
	return uuid, hash, nil
}

func (r *postgresUserRepository) UpdateVerifiedAtByEmail(ctx context.Context, email string, ts time.Time) error {
	cmd, err := r.pool.Exec(ctx, "UPDATE users SET verified_at = $1 WHERE lower(email) = lower($2) AND is_deleted = false", ts, email)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *postgresUserRepository) SetTier(ctx context.Context, uuid, tier, customerID, subscriptionID string) error {
	query := `UPDATE users
              SET tier = $1,
                  stripe_customer_id = COALESCE(NULLIF($2, ''), stripe_customer_id),
                  stripe_subscription_id = $3
              WHERE uuid = $4 AND is_deleted = false`
	cmd, err := r.pool.Exec(ctx, query, tier, customerID, subscriptionID, uuid)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *postgresUserRepository) DowngradeBySubscription(ctx context.Context, subscriptionID string) (string, error) {
	query := `UPDATE users SET tier = 'free', stripe_subscription_id = ''
              WHERE stripe_subscription_id = $1
              RETURNING uuid`
	var uuid string
	if err := r.pool.QueryRow(ctx, query, subscriptionID).Scan(&uuid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return uuid, nil
}

func (r *postgresUserRepository) SetStripeAccount(ctx context.Context, uuid, accountID string) error {
	cmd, err := r.pool.Exec(ctx, "UPDATE users SET stripe_account_id = $1 WHERE uuid = $2 AND is_deleted = false", accountID, uuid)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// IncrementUsage bumps one counter unless it already reached limit.
// A limit <= 0 means unmetered.
func (r *postgresUserRepository) IncrementUsage(ctx context.Context, uuid string, kind UsageKind, limit int) error {
	switch kind {
	case UsageUploads, UsageAnalyses, UsageMints:
	default:
		return fmt.Errorf("unknown usage counter %q", kind)
	}

	query := fmt.Sprintf(`UPDATE users SET %[1]s = %[1]s + 1
              WHERE uuid = $1 AND is_deleted = false AND ($2 <= 0 OR %[1]s < $2)`, kind)
	cmd, err := r.pool.Exec(ctx, query, uuid, limit)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetUserByUUID(ctx, uuid); err != nil {
			return err
		}
		return ErrUsageLimit
	}
	return nil
}

func (r *postgresUserRepository) ResetUsage(ctx context.Context, periodStart time.Time) (int64, error) {
	query := `UPDATE users SET uploads_used = 0, analyses_used = 0, mints_used = 0, period_start = $1
              WHERE period_start < $1`
	cmd, err := r.pool.Exec(ctx, query, periodStart)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *postgresUserRepository) AddBetaFeature(ctx context.Context, uuid, feature string) (User, error) {
	query := `UPDATE users
              SET beta_features = CASE WHEN $1 = ANY(beta_features) THEN beta_features ELSE array_append(beta_features, $1) END
              WHERE uuid = $2 AND is_deleted = false
              RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, query, feature, uuid))
}

func (r *postgresUserRepository) RemoveBetaFeature(ctx context.Context, uuid, feature string) (User, error) {
	query := `UPDATE users SET beta_features = array_remove(beta_features, $1)
              WHERE uuid = $2 AND is_deleted = false
              RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, query, feature, uuid))
}
