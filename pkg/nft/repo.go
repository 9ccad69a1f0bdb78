package nft

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNFTNotFound   = errors.New("nft not found")
	ErrOrderNotFound = errors.New("mint order not found")
	ErrAlreadyMinted = errors.New("asset already has an nft")
	ErrNoPaidOrder   = errors.New("no paid mint order for this asset")
)

type NFTRepository interface {
	CreateOrder(ctx context.Context, order MintOrder) (MintOrder, error)
	SetOrderSession(ctx context.Context, orderID int64, sessionID string) error
	MarkOrderPaid(ctx context.Context, orderID int64, sessionID string) error
	FindPaidOrder(ctx context.Context, assetID int64, userUUID string) (MintOrder, error)
	CreateNFT(ctx context.Context, n NFT, orderID int64) (NFT, error)
	GetNFT(ctx context.Context, id int64) (NFT, error)
	ListByOwner(ctx context.Context, ownerUUID string, limit, offset int) ([]NFT, int64, error)
	SaveProgress(ctx context.Context, n NFT) (NFT, error)
	ListUnconfirmed(ctx context.Context, below, limit int) ([]NFT, error)
	SetConfirmations(ctx context.Context, id int64, confirmations int) error
}

type postgresNFTRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresNFTRepository(pool *pgxpool.Pool) NFTRepository {
	return &postgresNFTRepository{pool: pool}
}

const orderColumns = `id, asset_id, user_uuid, price_cents, stripe_session_id, status, created_at`

const nftColumns = `id, asset_id, owner_uuid, owner_wallet, ownership_message, ownership_sig, royalty_bps, status,
	arweave_asset_tx, arweave_meta_tx, arweave_manifest_tx, metadata_uri, bridge_requested,
	polygon_tx_hash, polygon_token_id, opensea_url, confirmations, last_error, created_at, updated_at`

func scanOrder(row pgx.Row) (MintOrder, error) {
	var o MintOrder
	err := row.Scan(&o.ID, &o.AssetID, &o.UserUUID, &o.PriceCents, &o.StripeSessionID, &o.Status, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MintOrder{}, ErrOrderNotFound
	}
	return o, err
}

func scanNFT(row pgx.Row) (NFT, error) {
	var n NFT
	err := row.Scan(&n.ID, &n.AssetID, &n.OwnerUUID, &n.OwnerWallet, &n.OwnershipMessage, &n.OwnershipSig, &n.RoyaltyBps, &n.Status,
		&n.ArweaveAssetTx, &n.ArweaveMetaTx, &n.ArweaveManifestTx, &n.MetadataURI, &n.BridgeRequested,
		&n.PolygonTxHash, &n.PolygonTokenID, &n.OpenSeaURL, &n.Confirmations, &n.LastError, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return NFT{}, ErrNFTNotFound
	}
	return n, err
}

func collectNFTs(rows pgx.Rows) ([]NFT, error) {
	defer rows.Close()
	items := make([]NFT, 0)
	for rows.Next() {
		n, err := scanNFT(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (r *postgresNFTRepository) CreateOrder(ctx context.Context, order MintOrder) (MintOrder, error) {
	query := `INSERT INTO mint_orders (asset_id, user_uuid, price_cents, status, created_at)
              VALUES ($1, $2, $3, $4, NOW())
              RETURNING ` + orderColumns
	return scanOrder(r.pool.QueryRow(ctx, query, order.AssetID, order.UserUUID, order.PriceCents, OrderPending))
}

func (r *postgresNFTRepository) SetOrderSession(ctx context.Context, orderID int64, sessionID string) error {
	cmd, err := r.pool.Exec(ctx, "UPDATE mint_orders SET stripe_session_id = $1 WHERE id = $2", sessionID, orderID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// MarkOrderPaid is idempotent: paid and consumed orders are left as they are.
func (r *postgresNFTRepository) MarkOrderPaid(ctx context.Context, orderID int64, sessionID string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE mint_orders SET status = $1, stripe_session_id = $2
              WHERE id = $3 AND status = $4`, OrderPaid, sessionID, orderID, OrderPending)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM mint_orders WHERE id = $1)", orderID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresNFTRepository) FindPaidOrder(ctx context.Context, assetID int64, userUUID string) (MintOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM mint_orders
              WHERE asset_id = $1 AND user_uuid = $2 AND status = $3
              ORDER BY id LIMIT 1`
	o, err := scanOrder(r.pool.QueryRow(ctx, query, assetID, userUUID, OrderPaid))
	if errors.Is(err, ErrOrderNotFound) {
		return MintOrder{}, ErrNoPaidOrder
	}
	return o, err
}

// CreateNFT inserts the record, links it to its media asset and consumes the
// paid order in one transaction.
func (r *postgresNFTRepository) CreateNFT(ctx context.Context, n NFT, orderID int64) (NFT, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return NFT{}, err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, "UPDATE mint_orders SET status = $1 WHERE id = $2 AND status = $3", OrderConsumed, orderID, OrderPaid)
	if err != nil {
		return NFT{}, fmt.Errorf("consume order: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return NFT{}, ErrNoPaidOrder
	}

	query := `INSERT INTO nfts (asset_id, owner_uuid, owner_wallet, ownership_message, ownership_sig, royalty_bps, status, bridge_requested, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
              RETURNING ` + nftColumns
	created, err := scanNFT(tx.QueryRow(ctx, query, n.AssetID, n.OwnerUUID, n.OwnerWallet, n.OwnershipMessage, n.OwnershipSig,
		n.RoyaltyBps, StatusPending, n.BridgeRequested))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return NFT{}, ErrAlreadyMinted
		}
		return NFT{}, fmt.Errorf("insert nft: %w", err)
	}

	if _, err := tx.Exec(ctx, "UPDATE media_assets SET nft_id = $1 WHERE id = $2", created.ID, created.AssetID); err != nil {
		return NFT{}, fmt.Errorf("link media asset: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return NFT{}, err
	}
	return created, nil
}

func (r *postgresNFTRepository) GetNFT(ctx context.Context, id int64) (NFT, error) {
	return scanNFT(r.pool.QueryRow(ctx, "SELECT "+nftColumns+" FROM nfts WHERE id = $1", id))
}

func (r *postgresNFTRepository) ListByOwner(ctx context.Context, ownerUUID string, limit, offset int) ([]NFT, int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+nftColumns+` FROM nfts WHERE owner_uuid = $1
              ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, ownerUUID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectNFTs(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM nfts WHERE owner_uuid = $1", ownerUUID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// SaveProgress writes the mutable minting columns.
func (r *postgresNFTRepository) SaveProgress(ctx context.Context, n NFT) (NFT, error) {
	query := `UPDATE nfts SET status = $1, arweave_asset_tx = $2, arweave_meta_tx = $3, arweave_manifest_tx = $4,
              metadata_uri = $5, polygon_tx_hash = $6, polygon_token_id = $7, opensea_url = $8, last_error = $9, updated_at = NOW()
              WHERE id = $10
              RETURNING ` + nftColumns
	return scanNFT(r.pool.QueryRow(ctx, query, n.Status, n.ArweaveAssetTx, n.ArweaveMetaTx, n.ArweaveManifestTx,
		n.MetadataURI, n.PolygonTxHash, n.PolygonTokenID, n.OpenSeaURL, n.LastError, n.ID))
}

// ListUnconfirmed returns NFTs with a manifest on Arweave that have fewer
// than below confirmations, oldest first.
func (r *postgresNFTRepository) ListUnconfirmed(ctx context.Context, below, limit int) ([]NFT, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+nftColumns+` FROM nfts
              WHERE arweave_manifest_tx <> '' AND confirmations < $1
              ORDER BY confirmations, id LIMIT $2`, below, limit)
	if err != nil {
		return nil, err
	}
	return collectNFTs(rows)
}

func (r *postgresNFTRepository) SetConfirmations(ctx context.Context, id int64, confirmations int) error {
	cmd, err := r.pool.Exec(ctx, "UPDATE nfts SET confirmations = $1 WHERE id = $2", confirmations, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNFTNotFound
	}
	return nil
}
