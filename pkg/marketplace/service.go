package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"neuralsalvage/pkg/media"
	"neuralsalvage/pkg/notifications"
	"neuralsalvage/pkg/payments"
	"neuralsalvage/pkg/pricing"
	"neuralsalvage/pkg/response"
	"neuralsalvage/pkg/users"
)

const maxPriceCents = 100_000_00

var (
	ErrInvalidPrice = errors.New("price must be between $0.01 and $100,000")
	ErrNotListed    = errors.New("asset is not for sale")
	ErrOwnAsset     = errors.New("cannot buy your own asset")
)

type AssetStore interface {
	GetAssetByID(ctx context.Context, id int64) (media.Asset, error)
	ListAssets(ctx context.Context, filters media.Filters, limit, offset int) ([]media.Asset, int64, error)
}

type UserAccess interface {
	GetUserByUUID(ctx context.Context, uuid string) (users.User, error)
	SetStripeAccount(ctx context.Context, uuid, accountID string) error
}

type Notifier interface {
	Notify(ctx context.Context, n notifications.Notification) (notifications.Notification, error)
}

// ListingIndex keeps the search index in step with listing state.
type ListingIndex interface {
	SyncListing(ctx context.Context, a media.Asset) error
}

type MarketplaceService interface {
	ListAsset(ctx context.Context, assetID int64, callerUUID string, priceCents int64) (media.Asset, error)
	UnlistAsset(ctx context.Context, assetID int64, callerUUID string) (media.Asset, error)
	BrowseListings(ctx context.Context, kind *media.Kind, page, limit int) ([]media.Asset, int64, error)
	Purchase(ctx context.Context, assetID int64, buyerUUID string) (Checkout, error)
	CompletePurchase(ctx context.Context, c payments.Completion) error
	StartOnboarding(ctx context.Context, userUUID string) (Onboarding, error)
	ListSales(ctx context.Context, userUUID string, page, limit int) ([]Sale, int64, error)
}

type Deps struct {
	Repo      MarketplaceRepository
	Assets    AssetStore
	Users     UserAccess
	Gateway   payments.Gateway
	Notifier  Notifier
	Index     ListingIndex
	FeeBps    int64
	PublicURL string
	Log       *zap.Logger
}

type marketplaceService struct {
	repo      MarketplaceRepository
	assets    AssetStore
	users     UserAccess
	gateway   payments.Gateway
	notifier  Notifier
	index     ListingIndex
	feeBps    int64
	publicURL string
	log       *zap.Logger
}

// NewMarketplaceService wires listings and Stripe checkout. Notifier and Index may be nil.
func NewMarketplaceService(d Deps) MarketplaceService {
	return &marketplaceService{
		repo:      d.Repo,
		assets:    d.Assets,
		users:     d.Users,
		gateway:   d.Gateway,
		notifier:  d.Notifier,
		index:     d.Index,
		feeBps:    d.FeeBps,
		publicURL: strings.TrimRight(d.PublicURL, "/"),
		log:       d.Log,
	}
}

func (s *marketplaceService) ListAsset(ctx context.Context, assetID int64, callerUUID string, priceCents int64) (media.Asset, error) {
	if priceCents <= 0 || priceCents > maxPriceCents {
		return media.Asset{}, ErrInvalidPrice
	}
	return s.setListing(ctx, assetID, callerUUID, true, priceCents)
}

func (s *marketplaceService) UnlistAsset(ctx context.Context, assetID int64, callerUUID string) (media.Asset, error) {
	return s.setListing(ctx, assetID, callerUUID, false, 0)
}

func (s *marketplaceService) setListing(ctx context.Context, assetID int64, callerUUID string, forSale bool, priceCents int64) (media.Asset, error) {
	a, err := s.assets.GetAssetByID(ctx, assetID)
	if err != nil {
		return media.Asset{}, err
	}
	if a.OwnerUUID != callerUUID {
		return media.Asset{}, media.ErrForbidden
	}
	if a.Sold {
		return media.Asset{}, media.ErrSold
	}
	if err := s.repo.SetListing(ctx, assetID, forSale, priceCents); err != nil {
		return media.Asset{}, err
	}

	a.ForSale = forSale
	a.PriceCents = priceCents
	s.syncIndex(ctx, a)
	return a, nil
}

func (s *marketplaceService) BrowseListings(ctx context.Context, kind *media.Kind, page, limit int) ([]media.Asset, int64, error) {
	limit, offset := response.Offset(page, limit)
	forSale, sold := true, false
	return s.assets.ListAssets(ctx, media.Filters{Kind: kind, ForSale: &forSale, Sold: &sold}, limit, offset)
}

func (s *marketplaceService) Purchase(ctx context.Context, assetID int64, buyerUUID string) (Checkout, error) {
	a, err := s.assets.GetAssetByID(ctx, assetID)
	if err != nil {
		return Checkout{}, err
	}
	if !a.ForSale || a.Sold || a.PriceCents <= 0 {
		return Checkout{}, ErrNotListed
	}
	if a.OwnerUUID == buyerUUID {
		return Checkout{}, ErrOwnAsset
	}

	buyer, err := s.users.GetUserByUUID(ctx, buyerUUID)
	if err != nil {
		return Checkout{}, err
	}
	seller, err := s.users.GetUserByUUID(ctx, a.OwnerUUID)
	if err != nil {
		return Checkout{}, fmt.Errorf("load seller: %w", err)
	}

	req := payments.PaymentRequest{
		Name:          a.Title,
		Description:   a.Caption,
		AmountCents:   a.PriceCents,
		CustomerEmail: buyer.Email,
		Reference:     buyer.UUID,
		Metadata: map[string]string{
			payments.MetaKind:      payments.KindPurchase,
			payments.MetaAssetID:   strconv.FormatInt(a.ID, 10),
			payments.MetaBuyerUUID: buyer.UUID,
		},
		SuccessURL: fmt.Sprintf("%s/marketplace/%d?checkout=success&session_id={CHECKOUT_SESSION_ID}", s.publicURL, a.ID),
		CancelURL:  fmt.Sprintf("%s/marketplace/%d?checkout=cancelled", s.publicURL, a.ID),
	}
	if seller.StripeAccountID != "" {
		req.Destination = seller.StripeAccountID
		req.FeeCents = pricing.FeeCents(a.PriceCents, s.feeBps)
	}

	session, err := s.gateway.CheckoutPayment(ctx, req)
	if err != nil {
		return Checkout{}, err
	}
	return Checkout{
		SessionID:   session.ID,
		URL:         session.URL,
		AssetID:     a.ID,
		AmountCents: a.PriceCents,
		Amount:      pricing.Dollars(a.PriceCents),
		FeeCents:    req.FeeCents,
	}, nil
}

// CompletePurchase applies a paid checkout. Replays of the same session are no-ops.
func (s *marketplaceService) CompletePurchase(ctx context.Context, c payments.Completion) error {
	a, err := s.assets.GetAssetByID(ctx, c.AssetID)
	if err != nil {
		return err
	}
	if a.Sold && a.OwnerUUID == c.BuyerUUID {
		return nil
	}
	if a.OwnerUUID == c.BuyerUUID {
		return ErrOwnAsset
	}

	amount := c.AmountCents
	if amount <= 0 {
		amount = a.PriceCents
	}
	var fee int64
	if seller, err := s.users.GetUserByUUID(ctx, a.OwnerUUID); err == nil && seller.StripeAccountID != "" {
		fee = pricing.FeeCents(amount, s.feeBps)
	}

	sale, err := s.repo.RecordSale(ctx, Sale{
		AssetID:          a.ID,
		SellerUUID:       a.OwnerUUID,
		BuyerUUID:        c.BuyerUUID,
		AmountCents:      amount,
		PlatformFeeCents: fee,
		StripeSessionID:  c.SessionID,
	})
	if err != nil {
		if errors.Is(err, ErrSaleRecorded) {
			return nil
		}
		return err
	}

	s.log.Info("asset sold",
		zap.Int64("asset_id", a.ID),
		zap.String("seller_uuid", sale.SellerUUID),
		zap.String("buyer_uuid", sale.BuyerUUID),
		zap.Int64("amount_cents", sale.AmountCents))

	price := pricing.Dollars(sale.AmountCents).StringFixed(2)
	s.notify(ctx, notifications.Notification{
		UserUUID: sale.SellerUUID,
		Kind:     notifications.KindSale,
		Title:    "Your item sold",
		Body:     fmt.Sprintf("%q sold for $%s.", a.Title, price),
		Link:     "/marketplace/sales",
	})
	s.notify(ctx, notifications.Notification{
		UserUUID: sale.BuyerUUID,
		Kind:     notifications.KindPurchase,
		Title:    "Purchase complete",
		Body:     fmt.Sprintf("You bought %q for $%s. It is now in your library.", a.Title, price),
		Link:     fmt.Sprintf("/media/%d", a.ID),
	})

	a.OwnerUUID = sale.BuyerUUID
	a.Sold = true
	a.ForSale = false
	s.syncIndex(ctx, a)
	return nil
}

func (s *marketplaceService) StartOnboarding(ctx context.Context, userUUID string) (Onboarding, error) {
	u, err := s.users.GetUserByUUID(ctx, userUUID)
	if err != nil {
		return Onboarding{}, err
	}

	accountID := u.StripeAccountID
	if accountID == "" {
		accountID, err = s.gateway.CreateConnectAccount(ctx, u.Email)
		if err != nil {
			return Onboarding{}, err
		}
		if err := s.users.SetStripeAccount(ctx, u.UUID, accountID); err != nil {
			return Onboarding{}, fmt.Errorf("save connect account: %w", err)
		}
	}

	url, err := s.gateway.AccountLink(ctx, accountID,
		s.publicURL+"/settings/payouts?onboarding=refresh",
		s.publicURL+"/settings/payouts?onboarding=done")
	if err != nil {
		return Onboarding{}, err
	}
	return Onboarding{AccountID: accountID, URL: url}, nil
}

func (s *marketplaceService) ListSales(ctx context.Context, userUUID string, page, limit int) ([]Sale, int64, error) {
	limit, offset := response.Offset(page, limit)
	return s.repo.ListSales(ctx, userUUID, limit, offset)
}

func (s *marketplaceService) notify(ctx context.Context, n notifications.Notification) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn("sale notification", zap.String("user_uuid", n.UserUUID), zap.Error(err))
	}
}

func (s *marketplaceService) syncIndex(ctx context.Context, a media.Asset) {
	if s.index == nil {
		return
	}
	if err := s.index.SyncListing(ctx, a); err != nil {
		s.log.Warn("sync listing to search index", zap.Int64("asset_id", a.ID), zap.Error(err))
	}
}
