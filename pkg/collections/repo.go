package collections

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrCollectionNotFound   = errors.New("collection not found")
	ErrAssetNotInCollection = errors.New("asset is not in this collection")
)

type CollectionRepository interface {
	CreateCollection(ctx context.Context, input Collection) (Collection, error)
	UpdateCollection(ctx context.Context, input Collection) (Collection, error)
	DeleteCollection(ctx context.Context, id int64) error
	GetCollectionByID(ctx context.Context, id int64) (Collection, error)
	ListCollectionsByOwner(ctx context.Context, ownerUUID string, publicOnly bool, limit, offset int) ([]Collection, int64, error)
	AddAsset(ctx context.Context, collectionID, assetID int64) error
	RemoveAsset(ctx context.Context, collectionID, assetID int64) error
}

type postgresCollectionRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresCollectionRepository(pool *pgxpool.Pool) CollectionRepository {
	return &postgresCollectionRepository{pool: pool}
}

const collectionColumns = `c.id, c.owner_uuid, c.name, c.description, c.is_public, c.created_at,
	COALESCE((SELECT array_agg(ca.asset_id ORDER BY ca.added_at, ca.asset_id)
	          FROM collection_assets ca JOIN media_assets m ON m.id = ca.asset_id
	          WHERE ca.collection_id = c.id AND m.is_deleted = false), '{}')`

func scanCollection(row pgx.Row) (Collection, error) {
	var c Collection
	if err := row.Scan(&c.ID, &c.OwnerUUID, &c.Name, &c.Description, &c.IsPublic, &c.CreatedAt, &c.AssetIDs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Collection{}, ErrCollectionNotFound
		}
		return Collection{}, err
	}
	return c, nil
}

func (r *postgresCollectionRepository) CreateCollection(ctx context.Context, input Collection) (Collection, error) {
	query := `WITH c AS (
                INSERT INTO collections (owner_uuid, name, description, is_public, created_at)
                VALUES ($1, $2, $3, $4, NOW())
                RETURNING id, owner_uuid, name, description, is_public, created_at)
              SELECT c.id, c.owner_uuid, c.name, c.description, c.is_public, c.created_at, '{}'::bigint[] FROM c`

	return scanCollection(r.pool.QueryRow(ctx, query, input.OwnerUUID, input.Name, input.Description, input.IsPublic))
}

func (r *postgresCollectionRepository) UpdateCollection(ctx context.Context, input Collection) (Collection, error) {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE collections SET name = $1, description = $2, is_public = $3
         WHERE id = $4 AND is_deleted = false`,
		input.Name, input.Description, input.IsPublic, input.ID)
	if err != nil {
		return Collection{}, err
	}
	if cmd.RowsAffected() == 0 {
		return Collection{}, ErrCollectionNotFound
	}
	return r.GetCollectionByID(ctx, input.ID)
}

func (r *postgresCollectionRepository) DeleteCollection(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, "UPDATE collections SET is_deleted = true WHERE id = $1 AND is_deleted = false", id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrCollectionNotFound
	}
	return nil
}

func (r *postgresCollectionRepository) GetCollectionByID(ctx context.Context, id int64) (Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections c WHERE c.id = $1 AND c.is_deleted = false`
	return scanCollection(r.pool.QueryRow(ctx, query, id))
}

func (r *postgresCollectionRepository) ListCollectionsByOwner(ctx context.Context, ownerUUID string, publicOnly bool, limit, offset int) ([]Collection, int64, error) {
	where := `WHERE c.owner_uuid = $1 AND c.is_deleted = false AND (c.is_public OR NOT $2)`
	query := `SELECT ` + collectionColumns + ` FROM collections c ` + where + `
              ORDER BY c.created_at DESC, c.id DESC
              LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, ownerUUID, publicOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]Collection, 0)
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM collections c "+where, ownerUUID, publicOnly).Scan(&total); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *postgresCollectionRepository) AddAsset(ctx context.Context, collectionID, assetID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO collection_assets (collection_id, asset_id, added_at) VALUES ($1, $2, NOW())
         ON CONFLICT (collection_id, asset_id) DO NOTHING`,
		collectionID, assetID)
	return err
}

func (r *postgresCollectionRepository) RemoveAsset(ctx context.Context, collectionID, assetID int64) error {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM collection_assets WHERE collection_id = $1 AND asset_id = $2", collectionID, assetID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAssetNotInCollection
	}
	return nil
}
