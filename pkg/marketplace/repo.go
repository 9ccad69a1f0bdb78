package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"neuralsalvage/pkg/media"
	"neuralsalvage/pkg/payments"
	"neuralsalvage/pkg/pricing"
)

var (
	ErrAlreadySold  = fmt.Errorf("%w: asset already sold", payments.ErrConflict)
	ErrSaleRecorded = errors.New("sale already recorded for this session")
)

type MarketplaceRepository interface {
	SetListing(ctx context.Context, assetID int64, forSale bool, priceCents int64) error
	RecordSale(ctx context.Context, sale Sale) (Sale, error)
	ListSales(ctx context.Context, userUUID string, limit, offset int) ([]Sale, int64, error)
}

type postgresMarketplaceRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresMarketplaceRepository(pool *pgxpool.Pool) MarketplaceRepository {
	return &postgresMarketplaceRepository{pool: pool}
}

func (r *postgresMarketplaceRepository) SetListing(ctx context.Context, assetID int64, forSale bool, priceCents int64) error {
	query := `UPDATE media_assets SET for_sale = $1, price_cents = $2
              WHERE id = $3 AND is_deleted = false AND sold = false`
	cmd, err := r.pool.Exec(ctx, query, forSale, priceCents, assetID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return media.ErrMediaNotFound
	}
	return nil
}

// RecordSale marks the asset sold, hands it and its NFT to the buyer and
// stores the sale, all in one transaction.
func (r *postgresMarketplaceRepository) RecordSale(ctx context.Context, sale Sale) (Sale, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Sale{}, err
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM sales WHERE stripe_session_id = $1)", sale.StripeSessionID).Scan(&exists); err != nil {
		return Sale{}, err
	}
	if exists {
		return Sale{}, ErrSaleRecorded
	}

	cmd, err := tx.Exec(ctx, `UPDATE media_assets
              SET sold = true, sold_at = NOW(), for_sale = false, owner_uuid = $1
              WHERE id = $2 AND owner_uuid = $3 AND sold = false AND is_deleted = false`,
		sale.BuyerUUID, sale.AssetID, sale.SellerUUID)
	if err != nil {
		return Sale{}, fmt.Errorf("mark asset sold: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return Sale{}, ErrAlreadySold
	}

	err = tx.QueryRow(ctx, `INSERT INTO sales (asset_id, seller_uuid, buyer_uuid, amount_cents, platform_fee_cents, stripe_session_id, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, NOW())
              RETURNING id, created_at`,
		sale.AssetID, sale.SellerUUID, sale.BuyerUUID, sale.AmountCents, sale.PlatformFeeCents, sale.StripeSessionID).
		Scan(&sale.ID, &sale.CreatedAt)
	if err != nil {
		return Sale{}, fmt.Errorf("insert sale: %w", err)
	}

	if _, err := tx.Exec(ctx, "UPDATE nfts SET owner_uuid = $1, updated_at = NOW() WHERE asset_id = $2", sale.BuyerUUID, sale.AssetID); err != nil {
		return Sale{}, fmt.Errorf("transfer nft record: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM collection_assets ca USING collections c
              WHERE ca.collection_id = c.id AND ca.asset_id = $1 AND c.owner_uuid = $2`, sale.AssetID, sale.SellerUUID); err != nil {
		return Sale{}, fmt.Errorf("detach from seller collections: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Sale{}, err
	}
	sale.Amount = pricing.Dollars(sale.AmountCents)
	return sale, nil
}

// ListSales returns sales where userUUID was seller or buyer, newest first.
func (r *postgresMarketplaceRepository) ListSales(ctx context.Context, userUUID string, limit, offset int) ([]Sale, int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, asset_id, seller_uuid, buyer_uuid, amount_cents, platform_fee_cents, stripe_session_id, created_at
              FROM sales WHERE seller_uuid = $1 OR buyer_uuid = $1
              ORDER BY created_at DESC, id DESC
              LIMIT $2 OFFSET $3`, userUUID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]Sale, 0)
	for rows.Next() {
		var s Sale
		if err := rows.Scan(&s.ID, &s.AssetID, &s.SellerUUID, &s.BuyerUUID, &s.AmountCents, &s.PlatformFeeCents, &s.StripeSessionID, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		s.Amount = pricing.Dollars(s.AmountCents)
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM sales WHERE seller_uuid = $1 OR buyer_uuid = $1", userUUID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
