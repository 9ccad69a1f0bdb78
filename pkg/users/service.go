package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"neuralsalvage/pkg/beta"
	"neuralsalvage/pkg/response"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("user exists with that email")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrUnknownFeature     = errors.New("unknown beta feature")
	ErrInvalidTier        = errors.New("invalid tier")
)

type UserService interface {
	CreateUser(ctx context.Context, name, email, password, profilePicURL string) (User, error)
	UpdateProfile(ctx context.Context, uuid, name, profilePicURL string) (User, error)
	DeleteUserByUUID(ctx context.Context, uuid string) error
	GetUserByUUID(ctx context.Context, uuid string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, page, limit int) ([]User, int64, error)
	Login(ctx context.Context, email, password string) (User, error)
	CheckAndUpdateVerification(ctx context.Context, email string) (bool, error)
	ConsumeUsage(ctx context.Context, uuid string, kind UsageKind) error
	SetTier(ctx context.Context, uuid, tier, customerID, subscriptionID string) error
	CancelSubscription(ctx context.Context, subscriptionID string) (string, error)
	SetStripeAccount(ctx context.Context, uuid, accountID string) error
	ResetUsagePeriod(ctx context.Context, now time.Time) (int64, error)
	GrantBeta(ctx context.Context, uuid, feature string) (User, error)
	RevokeBeta(ctx context.Context, uuid, feature string) (User, error)
}

type userService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) UserService {
	return &userService{repo: repo}
}

func (s *userService) CreateUser(ctx context.Context, name, email, password, profilePicURL string) (User, error) {
	if len(password) < 8 {
		return User{}, ErrWeakPassword
	}
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.repo.CreateUser(ctx, strings.TrimSpace(name), email, string(hashBytes), profilePicURL, uuid.NewString())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return u, nil
}

func (s *userService) UpdateProfile(ctx context.Context, uuid, name, profilePicURL string) (User, error) {
	return s.repo.UpdateProfile(ctx, uuid, strings.TrimSpace(name), profilePicURL)
}

func (s *userService) DeleteUserByUUID(ctx context.Context, uuid string) error {
	return s.repo.DeleteUserByUUID(ctx, uuid)
}

func (s *userService) GetUserByUUID(ctx context.Context, uuid string) (User, error) {
	return s.repo.GetUserByUUID(ctx, uuid)
}

func (s *userService) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.GetUserByEmail(ctx, email)
}

func (s *userService) ListUsers(ctx context.Context, page, limit int) ([]User, int64, error) {
	limit, offset := response.Offset(page, limit)
	return s.repo.ListUsers(ctx, limit, offset)
}

func (s *userService) Login(ctx context.Context, email, password string) (User, error) {
	uid, hash, err := s.repo.GetUserAuthByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	return s.repo.GetUserByUUID(ctx, uid)
}

func (s *userService) CheckAndUpdateVerification(ctx context.Context, email string) (bool, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return false, err
	}

	now := time.Now()
	within := false
	if u.VerifiedAt != nil {
		if now.Sub(*u.VerifiedAt) <= 30*24*time.Hour {
			within = true
		}
	}

	if within {
		if err := s.repo.UpdateVerifiedAtByEmail(ctx, email, now); err != nil {
			return false, err
		}
	}

	return within, nil
}

// ConsumeUsage meters one action against the user's plan limits.
// Mints are paid per item and never limited.
func (s *userService) ConsumeUsage(ctx context.Context, uuid string, kind UsageKind) error {
	u, err := s.repo.GetUserByUUID(ctx, uuid)
	if err != nil {
		return err
	}

	limits := LimitsFor(u.Tier)
	limit := 0
	switch kind {
	case UsageUploads:
		limit = limits.Uploads
	case UsageAnalyses:
		limit = limits.Analyses
	}
	return s.repo.IncrementUsage(ctx, uuid, kind, limit)
}

func (s *userService) SetTier(ctx context.Context, uuid, tier, customerID, subscriptionID string) error {
	if _, ok := TierLimits[tier]; !ok {
		return ErrInvalidTier
	}
	return s.repo.SetTier(ctx, uuid, tier, customerID, subscriptionID)
}

func (s *userService) CancelSubscription(ctx context.Context, subscriptionID string) (string, error) {
	return s.repo.DowngradeBySubscription(ctx, subscriptionID)
}

func (s *userService) SetStripeAccount(ctx context.Context, uuid, accountID string) error {
	return s.repo.SetStripeAccount(ctx, uuid, accountID)
}

// ResetUsagePeriod zeroes counters for users whose period started before this month.
func (s *userService) ResetUsagePeriod(ctx context.Context, now time.Time) (int64, error) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.repo.ResetUsage(ctx, start)
}

func (s *userService) GrantBeta(ctx context.Context, uuid, feature string) (User, error) {
	if !beta.IsKnown(beta.Feature(feature)) {
		return User{}, ErrUnknownFeature
	}
	return s.repo.AddBetaFeature(ctx, uuid, feature)
}

func (s *userService) RevokeBeta(ctx context.Context, uuid, feature string) (User, error) {
	return s.repo.RemoveBetaFeature(ctx, uuid, feature)
}
