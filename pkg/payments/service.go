package payments

import (
	"context"
	"errors"
	"strings"

	"neuralsalvage/pkg/users"
)

var ErrAlreadySubscribed = errors.New("user already has an active subscription")

type UserReader interface {
	GetUserByUUID(ctx context.Context, uuid string) (users.User, error)
}

type SubscriptionService interface {
	StartCheckout(ctx context.Context, userUUID string) (Session, error)
}

type subscriptionService struct {
	gateway   Gateway
	users     UserReader
	priceID   string
	publicURL string
}

func NewSubscriptionService(gateway Gateway, users UserReader, priceID, publicURL string) SubscriptionService {
	return &subscriptionService{
		gateway:   gateway,
		users:     users,
		priceID:   priceID,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (s *subscriptionService) StartCheckout(ctx context.Context, userUUID string) (Session, error) {
	if s.priceID == "" {
		return Session{}, ErrNotConfigured
	}
	u, err := s.users.GetUserByUUID(ctx, userUUID)
	if err != nil {
		return Session{}, err
	}
	if u.IsSubscriber() {
		return Session{}, ErrAlreadySubscribed
	}
	return s.gateway.CheckoutSubscription(ctx, SubscriptionRequest{
		PriceID:       s.priceID,
		CustomerID:    u.StripeCustomerID,
		CustomerEmail: u.Email,
		Reference:     u.UUID,
		Metadata: map[string]string{
			MetaKind:     KindSubscription,
			MetaUserUUID: u.UUID,
		},
		SuccessURL: s.publicURL + "/settings/billing?checkout=success",
		CancelURL:  s.publicURL + "/settings/billing?checkout=cancelled",
	})
}
