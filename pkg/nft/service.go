package nft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"neuralsalvage/pkg/arweave"
	"neuralsalvage/pkg/beta"
	"neuralsalvage/pkg/locks"
	"neuralsalvage/pkg/media"
	"neuralsalvage/pkg/metrics"
	"neuralsalvage/pkg/notifications"
	"neuralsalvage/pkg/payments"
	"neuralsalvage/pkg/polygon"
	"neuralsalvage/pkg/pricing"
	"neuralsalvage/pkg/response"
	"neuralsalvage/pkg/storage"
	"neuralsalvage/pkg/users"
)

const (
	maxRoyaltyBps     = 1000
	clockSkew         = time.Minute
	stalledAfter      = 30 * time.Minute
	mintLockTTL       = 2 * stalledAfter
	confirmationsGoal = 10
	pollBatch         = 100
)

var (
	ErrPaymentRequired = errors.New("mint must be paid before it can start")
	ErrMessageExpired  = errors.New("ownership message expired, request a new one")
	ErrMessageMismatch = errors.New("ownership message does not match this request")
	ErrInvalidRoyalty  = errors.New("royalty must be between 0 and 1000 basis points")
	ErrNotRetryable    = errors.New("nft has nothing to retry")
	ErrMintFailed      = errors.New("minting failed")
)

type AssetReader interface {
	GetAssetByID(ctx context.Context, id int64) (media.Asset, error)
}

type UserAccess interface {
	GetUserByUUID(ctx context.Context, uuid string) (users.User, error)
	ConsumeUsage(ctx context.Context, uuid string, kind users.UsageKind) error
}

// StorageGateway is the read side of Arweave.
type StorageGateway interface {
	Price(ctx context.Context, size int64) (arweave.Estimate, error)
	Status(ctx context.Context, txID string) (arweave.TxStatus, error)
	URL(txID string, subpath ...string) string
}

type Notifier interface {
	Notify(ctx context.Context, n notifications.Notification) (notifications.Notification, error)
}

type NFTService interface {
	OwnershipMessage(ctx context.Context, callerUUID string, assetID int64, wallet string) (OwnershipMessage, error)
	Quote(ctx context.Context, callerUUID string, assetID int64) (Quote, error)
	Checkout(ctx context.Context, callerUUID string, assetID int64) (Checkout, error)
	MarkOrderPaid(ctx context.Context, orderID int64, sessionID string) error
	Mint(ctx context.Context, callerUUID string, req MintRequest) (NFT, error)
	Retry(ctx context.Context, callerUUID string, id int64) (NFT, error)
	Get(ctx context.Context, id int64) (NFT, error)
	ListOwn(ctx context.Context, ownerUUID string, page, limit int) ([]NFT, int64, error)
	PollConfirmations(ctx context.Context) (int, error)
}

type Deps struct {
	Repo          NFTRepository
	Assets        AssetReader
	Store         storage.Store
	Users         UserAccess
	Beta          *beta.Checker
	Locker        locks.Locker
	Uploader      arweave.Uploader
	Gateway       StorageGateway
	Minter        polygon.Minter
	Payments      payments.Gateway
	Notifier      Notifier
	PublicURL     string
	MessageMaxAge time.Duration
	Log           *zap.Logger
	Now           func() time.Time
}

type nftService struct {
	Deps
}

// NewNFTService wires the minting pipeline. Notifier may be nil.
func NewNFTService(d Deps) NFTService {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MessageMaxAge <= 0 {
		d.MessageMaxAge = 15 * time.Minute
	}
	d.PublicURL = strings.TrimRight(d.PublicURL, "/")
	return &nftService{Deps: d}
}

// ownedAsset loads an asset the caller owns and that has no NFT yet.
func (s *nftService) ownedAsset(ctx context.Context, callerUUID string, assetID int64) (media.Asset, error) {
	a, err := s.Assets.GetAssetByID(ctx, assetID)
	if err != nil {
		return media.Asset{}, err
	}
	if a.OwnerUUID != callerUUID {
		return media.Asset{}, media.ErrForbidden
	}
	if a.NFTID != nil {
		return media.Asset{}, ErrAlreadyMinted
	}
	return a, nil
}

func (s *nftService) requireBeta(ctx context.Context, callerUUID string, feature beta.Feature) (users.User, error) {
	u, err := s.Users.GetUserByUUID(ctx, callerUUID)
	if err != nil {
		return users.User{}, err
	}
	if err := s.Beta.Require(u.BetaMember(), feature); err != nil {
		return users.User{}, err
	}
	return u, nil
}

func (s *nftService) OwnershipMessage(ctx context.Context, callerUUID string, assetID int64, wallet string) (OwnershipMessage, error) {
	wallet, err := polygon.NormalizeAddress(wallet)
	if err != nil {
		return OwnershipMessage{}, err
	}
	if _, err := s.ownedAsset(ctx, callerUUID, assetID); err != nil {
		return OwnershipMessage{}, err
	}
	return NewOwnershipMessage(assetID, wallet, s.Now()), nil
}

func (s *nftService) Quote(ctx context.Context, callerUUID string, assetID int64) (Quote, error) {
	a, err := s.ownedAsset(ctx, callerUUID, assetID)
	if err != nil {
		return Quote{}, err
	}
	u, err := s.Users.GetUserByUUID(ctx, callerUUID)
	if err != nil {
		return Quote{}, err
	}
	price, err := pricing.QuoteForUser(a.SizeBytes, u.IsSubscriber())
	if err != nil {
		return Quote{}, err
	}

	q := Quote{AssetID: a.ID, Price: price}
	if est, err := s.Gateway.Price(ctx, a.SizeBytes); err != nil {
		s.Log.Warn("arweave price estimate", zap.Int64("asset_id", a.ID), zap.Error(err))
	} else {
		q.Storage = &est
	}
	return q, nil
}

func (s *nftService) Checkout(ctx context.Context, callerUUID string, assetID int64) (Checkout, error) {
	u, err := s.requireBeta(ctx, callerUUID, beta.NFTMinting)
	if err != nil {
		return Checkout{}, err
	}
	a, err := s.ownedAsset(ctx, callerUUID, assetID)
	if err != nil {
		return Checkout{}, err
	}
	price, err := pricing.QuoteForUser(a.SizeBytes, u.IsSubscriber())
	if err != nil {
		return Checkout{}, err
	}

	order, err := s.Repo.CreateOrder(ctx, MintOrder{AssetID: a.ID, UserUUID: u.UUID, PriceCents: price.PriceCents})
	if err != nil {
		return Checkout{}, fmt.Errorf("create mint order: %w", err)
	}

	session, err := s.Payments.CheckoutPayment(ctx, payments.PaymentRequest{
		Name:          "NFT mint: " + a.Title,
		Description:   fmt.Sprintf("%s tier, %s", price.Tier, price.Size),
		AmountCents:   price.PriceCents,
		CustomerEmail: u.Email,
		Reference:     u.UUID,
		Metadata: map[string]string{
			payments.MetaKind:     payments.KindMint,
			payments.MetaOrderID:  strconv.FormatInt(order.ID, 10),
			payments.MetaAssetID:  strconv.FormatInt(a.ID, 10),
			payments.MetaUserUUID: u.UUID,
		},
		SuccessURL: fmt.Sprintf("%s/media/%d/mint?checkout=success&order_id=%d", s.PublicURL, a.ID, order.ID),
		CancelURL:  fmt.Sprintf("%s/media/%d/mint?checkout=cancelled", s.PublicURL, a.ID),
	})
	if err != nil {
		return Checkout{}, err
	}
	if err := s.Repo.SetOrderSession(ctx, order.ID, session.ID); err != nil {
		return Checkout{}, fmt.Errorf("save checkout session: %w", err)
	}
	return Checkout{OrderID: order.ID, SessionID: session.ID, URL: session.URL, Price: price}, nil
}

func (s *nftService) MarkOrderPaid(ctx context.Context, orderID int64, sessionID string) error {
	return s.Repo.MarkOrderPaid(ctx, orderID, sessionID)
}

// checkOwnership validates the signed claim against the request.
func (s *nftService) checkOwnership(req MintRequest) (string, error) {
	wallet, err := polygon.NormalizeAddress(req.Wallet)
	if err != nil {
		return "", err
	}
	msg, err := ParseOwnershipMessage(req.Message)
	if err != nil {
		return "", err
	}
	if msg.AssetID != req.AssetID || !strings.EqualFold(msg.Wallet, wallet) {
		return "", ErrMessageMismatch
	}
	now := s.Now()
	if msg.IssuedAt.After(now.Add(clockSkew)) || now.Sub(msg.IssuedAt) > s.MessageMaxAge {
		return "", ErrMessageExpired
	}
	if err := polygon.VerifySignature(req.Message, req.Signature, wallet); err != nil {
		return "", err
	}
	return wallet, nil
}

func (s *nftService) Mint(ctx context.Context, callerUUID string, req MintRequest) (NFT, error) {
	if req.RoyaltyBps < 0 || req.RoyaltyBps > maxRoyaltyBps {
		return NFT{}, ErrInvalidRoyalty
	}
	u, err := s.requireBeta(ctx, callerUUID, beta.NFTMinting)
	if err != nil {
		return NFT{}, err
	}
	if req.Bridge {
		if err := s.Beta.Require(u.BetaMember(), beta.PolygonBridge); err != nil {
			return NFT{}, err
		}
	}
	a, err := s.ownedAsset(ctx, callerUUID, req.AssetID)
	if err != nil {
		return NFT{}, err
	}
	wallet, err := s.checkOwnership(req)
	if err != nil {
		return NFT{}, err
	}

	order, err := s.Repo.FindPaidOrder(ctx, a.ID, callerUUID)
	if err != nil {
		if errors.Is(err, ErrNoPaidOrder) {
			return NFT{}, ErrPaymentRequired
		}
		return NFT{}, err
	}

	release, err := s.Locker.Acquire(ctx, mintLockKey(a.ID), mintLockTTL)
	if err != nil {
		return NFT{}, err
	}
	defer s.release(release, a.ID)

	n, err := s.Repo.CreateNFT(ctx, NFT{
		AssetID:          a.ID,
		OwnerUUID:        callerUUID,
		OwnerWallet:      wallet,
		OwnershipMessage: req.Message,
		OwnershipSig:     req.Signature,
		RoyaltyBps:       req.RoyaltyBps,
		BridgeRequested:  req.Bridge,
	}, order.ID)
	if err != nil {
		if errors.Is(err, ErrNoPaidOrder) {
			return NFT{}, ErrPaymentRequired
		}
		return NFT{}, err
	}
	if err := s.Users.ConsumeUsage(ctx, callerUUID, users.UsageMints); err != nil {
		s.Log.Warn("count mint usage", zap.String("user_uuid", callerUUID), zap.Error(err))
	}

	s.Log.Info("mint started",
		zap.Int64("nft_id", n.ID),
		zap.Int64("asset_id", a.ID),
		zap.Int64("order_id", order.ID),
		zap.Bool("bridge", n.BridgeRequested))
	return s.run(ctx, n, a)
}

func (s *nftService) Retry(ctx context.Context, callerUUID string, id int64) (NFT, error) {
	n, err := s.retryable(ctx, callerUUID, id)
	if err != nil {
		return NFT{}, err
	}
	a, err := s.Assets.GetAssetByID(ctx, n.AssetID)
	if err != nil {
		return NFT{}, err
	}

	release, err := s.Locker.Acquire(ctx, mintLockKey(a.ID), mintLockTTL)
	if err != nil {
		return NFT{}, err
	}
	defer s.release(release, a.ID)

	// Another retry may have finished while we waited for the lock.
	if n, err = s.retryable(ctx, callerUUID, id); err != nil {
		return NFT{}, err
	}

	s.Log.Info("mint retried", zap.Int64("nft_id", n.ID), zap.String("from_status", string(n.Status)))
	return s.run(ctx, n, a)
}

func (s *nftService) retryable(ctx context.Context, callerUUID string, id int64) (NFT, error) {
	n, err := s.Repo.GetNFT(ctx, id)
	if err != nil {
		return NFT{}, err
	}
	if n.OwnerUUID != callerUUID {
		return NFT{}, media.ErrForbidden
	}
	if !n.Retryable(s.Now()) {
		return NFT{}, ErrNotRetryable
	}
	return n, nil
}

// run executes every step that has not landed yet, persisting after each.
func (s *nftService) run(ctx context.Context, n NFT, a media.Asset) (NFT, error) {
	var err error

	if n.ArweaveAssetTx == "" {
		data, rerr := storage.ReadAll(ctx, s.Store, a.StorageKey)
		if rerr != nil {
			return s.fail(ctx, n, "asset", fmt.Errorf("read media: %w", rerr))
		}
		txID, uerr := s.Uploader.Upload(ctx, data, arweave.AssetTags(a.MimeType, a.Title))
		metrics.RecordMintStep("asset", uerr)
		if uerr != nil {
			return s.fail(ctx, n, "asset", uerr)
		}
		n.ArweaveAssetTx, n.Status = txID, StatusAssetUploaded
		if n, err = s.save(ctx, n); err != nil {
			return n, err
		}
	}

	if n.ArweaveMetaTx == "" {
		doc, merr := json.Marshal(s.metadata(n, a))
		if merr != nil {
			return s.fail(ctx, n, "metadata", merr)
		}
		txID, uerr := s.Uploader.Upload(ctx, doc, arweave.MetadataTags(a.Title))
		metrics.RecordMintStep("metadata", uerr)
		if uerr != nil {
			return s.fail(ctx, n, "metadata", uerr)
		}
		n.ArweaveMetaTx, n.Status = txID, StatusMetadataUploaded
		if n, err = s.save(ctx, n); err != nil {
			return n, err
		}
	}

	if n.ArweaveManifestTx == "" {
		txID, uerr := s.uploadManifest(ctx, n, a)
		metrics.RecordMintStep("manifest", uerr)
		if uerr != nil {
			return s.fail(ctx, n, "manifest", uerr)
		}
		n.ArweaveManifestTx, n.Status = txID, StatusMinted
		n.MetadataURI = s.Gateway.URL(txID)
		n.LastError = ""
		if n, err = s.save(ctx, n); err != nil {
			return n, err
		}
		s.notify(ctx, notifications.Notification{
			UserUUID: n.OwnerUUID,
			Kind:     notifications.KindMint,
			Title:    "Your NFT is minted",
			Body:     fmt.Sprintf("%q is stored permanently on Arweave.", a.Title),
			Link:     fmt.Sprintf("/nft/%d", n.ID),
		})
	}

	if n.BridgeRequested && n.PolygonTokenID == "" {
		return s.bridge(ctx, n, a)
	}
	if n.Status != StatusMinted && n.Status != StatusBridged {
		n.Status, n.LastError = StatusMinted, ""
		return s.save(ctx, n)
	}
	return n, nil
}

func (s *nftService) uploadManifest(ctx context.Context, n NFT, a media.Asset) (string, error) {
	doc, err := arweave.BuildManifest(n.ArweaveAssetTx, n.ArweaveMetaTx)
	if err != nil {
		return "", err
	}
	tags, err := arweave.ManifestTags(arweave.AtomicAsset{
		Title:       a.Title,
		Description: firstNonEmpty(a.Description, a.Caption),
		Kind:        string(a.Kind),
		Creator:     s.Uploader.Address(),
		OwnerWallet: n.OwnerWallet,
		RoyaltyBps:  n.RoyaltyBps,
		Topics:      a.Tags,
	})
	if err != nil {
		return "", err
	}
	return s.Uploader.Upload(ctx, doc, tags)
}

// bridge mints on Polygon. A failure here leaves the Arweave NFT intact.
func (s *nftService) bridge(ctx context.Context, n NFT, a media.Asset) (NFT, error) {
	res, err := s.Minter.Mint(ctx, n.OwnerWallet, n.MetadataURI)
	metrics.RecordMintStep("bridge", err)
	if res.TxHash != "" {
		n.PolygonTxHash = res.TxHash
	}

	note := notifications.Notification{UserUUID: n.OwnerUUID, Kind: notifications.KindBridge, Link: fmt.Sprintf("/nft/%d", n.ID)}
	if err != nil {
		s.Log.Warn("polygon bridge failed", zap.Int64("nft_id", n.ID), zap.Error(err))
		n.Status, n.LastError = StatusBridgeFailed, err.Error()
		note.Title = "Polygon bridge failed"
		note.Body = fmt.Sprintf("%q is safe on Arweave, but bridging to Polygon failed. You can retry from the NFT page.", a.Title)
	} else {
		n.Status, n.LastError = StatusBridged, ""
		n.PolygonTokenID, n.OpenSeaURL = res.TokenID, res.OpenSeaURL
		note.Title = "Your NFT is on Polygon"
		note.Body = fmt.Sprintf("%q is now token #%s and visible on OpenSea.", a.Title, res.TokenID)
	}

	saved, serr := s.save(ctx, n)
	if serr != nil {
		return saved, serr
	}
	s.notify(ctx, note)
	return saved, nil
}

func (s *nftService) metadata(n NFT, a media.Asset) arweave.Metadata {
	assetURL := s.Gateway.URL(n.ArweaveAssetTx)
	meta := arweave.Metadata{
		Name:                 a.Title,
		Description:          firstNonEmpty(a.Description, a.Caption),
		ExternalURL:          fmt.Sprintf("%s/media/%d", s.PublicURL, a.ID),
		SellerFeeBasisPoints: n.RoyaltyBps,
		Attributes: []arweave.Attribute{
			{TraitType: "kind", Value: string(a.Kind)},
			{TraitType: "size_bytes", Value: a.SizeBytes},
		},
		Properties: arweave.Properties{
			Category: string(a.Kind),
			Files:    []arweave.File{{URI: assetURL, Type: a.MimeType}},
			Creators: []string{n.OwnerWallet},
		},
	}
	for _, tag := range a.Tags {
		meta.Attributes = append(meta.Attributes, arweave.Attribute{TraitType: "tag", Value: tag})
	}

	switch a.Kind {
	case media.KindImage:
		meta.Image = assetURL
	case media.KindVideo, media.KindAudio:
		meta.AnimationURL = assetURL
		meta.Image = a.CoverArtURL
	default:
		meta.Image = a.CoverArtURL
	}
	return meta
}

// fail records a step failure and returns ErrMintFailed.
func (s *nftService) fail(ctx context.Context, n NFT, step string, cause error) (NFT, error) {
	s.Log.Error("mint step failed", zap.Int64("nft_id", n.ID), zap.String("step", step), zap.Error(cause))
	n.Status, n.LastError = StatusFailed, fmt.Sprintf("%s: %v", step, cause)

	saved, err := s.save(context.WithoutCancel(ctx), n)
	if err != nil {
		return saved, err
	}
	s.notify(ctx, notifications.Notification{
		UserUUID: n.OwnerUUID,
		Kind:     notifications.KindMintFailed,
		Title:    "Minting failed",
		Body:     fmt.Sprintf("The %s upload failed. Your payment is kept and you can retry.", step),
		Link:     fmt.Sprintf("/nft/%d", n.ID),
	})
	return saved, fmt.Errorf("%w at %s step: %v", ErrMintFailed, step, cause)
}

func (s *nftService) save(ctx context.Context, n NFT) (NFT, error) {
	saved, err := s.Repo.SaveProgress(ctx, n)
	if err != nil {
		s.Log.Error("persist mint progress", zap.Int64("nft_id", n.ID), zap.String("status", string(n.Status)), zap.Error(err))
		return n, fmt.Errorf("save nft progress: %w", err)
	}
	return saved, nil
}

func (s *nftService) release(release locks.Release, assetID int64) {
	if err := release(context.Background()); err != nil {
		s.Log.Warn("release mint lock", zap.Int64("asset_id", assetID), zap.Error(err))
	}
}

func (s *nftService) notify(ctx context.Context, n notifications.Notification) {
	if s.Notifier == nil {
		return
	}
	if _, err := s.Notifier.Notify(ctx, n); err != nil {
		s.Log.Warn("mint notification", zap.String("user_uuid", n.UserUUID), zap.Error(err))
	}
}

func (s *nftService) Get(ctx context.Context, id int64) (NFT, error) {
	return s.Repo.GetNFT(ctx, id)
}

func (s *nftService) ListOwn(ctx context.Context, ownerUUID string, page, limit int) ([]NFT, int64, error) {
	limit, offset := response.Offset(page, limit)
	return s.Repo.ListByOwner(ctx, ownerUUID, limit, offset)
}

// PollConfirmations refreshes Arweave confirmation counts and returns how many changed.
func (s *nftService) PollConfirmations(ctx context.Context) (int, error) {
	items, err := s.Repo.ListUnconfirmed(ctx, confirmationsGoal, pollBatch)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, n := range items {
		st, err := s.Gateway.Status(ctx, n.ArweaveManifestTx)
		if err != nil {
			if errors.Is(err, arweave.ErrTxNotFound) {
				s.Log.Warn("arweave manifest not found", zap.Int64("nft_id", n.ID), zap.String("tx_id", n.ArweaveManifestTx))
				continue
			}
			return updated, err
		}
		if st.Pending || st.Confirmations == n.Confirmations {
			continue
		}
		if err := s.Repo.SetConfirmations(ctx, n.ID, st.Confirmations); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func mintLockKey(assetID int64) string {
	return "mint:asset:" + strconv.FormatInt(assetID, 10)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
