package media

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrMediaNotFound = errors.New("media not found")

type MediaRepository interface {
	CreateAsset(ctx context.Context, input Asset) (Asset, error)
	UpdateDetails(ctx context.Context, id int64, title, description string) (Asset, error)
	SetAnalysisStatus(ctx context.Context, id int64, status AnalysisStatus, errMsg string) error
	SaveAnalysis(ctx context.Context, id int64, a Analysis) (Asset, error)
	DeleteAsset(ctx context.Context, id int64) error
	GetAssetByID(ctx context.Context, id int64) (Asset, error)
	GetAssetsByIDs(ctx context.Context, ids []int64) ([]Asset, error)
	ListAssets(ctx context.Context, filters Filters, limit, offset int) ([]Asset, int64, error)
	TextSearch(ctx context.Context, query string, filters Filters, limit int) ([]Asset, error)
}

type postgresMediaRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresMediaRepository(pool *pgxpool.Pool) MediaRepository {
	return &postgresMediaRepository{pool: pool}
}

const assetColumns = `id, owner_uuid, title, description, file_name, mime_type, kind, size_bytes, storage_key,
	caption, tags, transcript, cover_art_url, analysis_status, analysis_error, sandbox_exit, sandbox_output,
	for_sale, price_cents, sold, sold_at, nft_id, created_at`

func scanAsset(row pgx.Row) (Asset, error) {
	var (
		a             Asset
		sandboxExit   *int
		sandboxOutput string
	)
	err := row.Scan(&a.ID, &a.OwnerUUID, &a.Title, &a.Description, &a.FileName, &a.MimeType, &a.Kind, &a.SizeBytes, &a.StorageKey,
		&a.Caption, &a.Tags, &a.Transcript, &a.CoverArtURL, &a.AnalysisStatus, &a.AnalysisError, &sandboxExit, &sandboxOutput,
		&a.ForSale, &a.PriceCents, &a.Sold, &a.SoldAt, &a.NFTID, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, ErrMediaNotFound
		}
		return Asset{}, err
	}
	if sandboxExit != nil {
		a.Sandbox = &SandboxRun{ExitCode: *sandboxExit, Output: sandboxOutput}
	}
	return a, nil
}

func collectAssets(rows pgx.Rows) ([]Asset, error) {
	defer rows.Close()
	items := make([]Asset, 0)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *postgresMediaRepository) CreateAsset(ctx context.Context, input Asset) (Asset, error) {
	if input.AnalysisStatus == "" {
		input.AnalysisStatus = AnalysisPending
	}
	query := `INSERT INTO media_assets (owner_uuid, title, description, file_name, mime_type, kind, size_bytes, storage_key, analysis_status, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
              RETURNING ` + assetColumns

	return scanAsset(r.pool.QueryRow(ctx, query, input.OwnerUUID, input.Title, input.Description, input.FileName,
		input.MimeType, input.Kind, input.SizeBytes, input.StorageKey, input.AnalysisStatus))
}

func (r *postgresMediaRepository) UpdateDetails(ctx context.Context, id int64, title, description string) (Asset, error) {
	query := `UPDATE media_assets SET title = $1, description = $2
              WHERE id = $3 AND is_deleted = false
              RETURNING ` + assetColumns
	return scanAsset(r.pool.QueryRow(ctx, query, title, description, id))
}

func (r *postgresMediaRepository) SetAnalysisStatus(ctx context.Context, id int64, status AnalysisStatus, errMsg string) error {
	cmd, err := r.pool.Exec(ctx, "UPDATE media_assets SET analysis_status = $1, analysis_error = $2 WHERE id = $3 AND is_deleted = false", status, errMsg, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrMediaNotFound
	}
	return nil
}

func (r *postgresMediaRepository) SaveAnalysis(ctx context.Context, id int64, a Analysis) (Asset, error) {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	var (
		sandboxExit   *int
		sandboxOutput string
	)
	if a.Sandbox != nil {
		sandboxExit = &a.Sandbox.ExitCode
		sandboxOutput = a.Sandbox.Output
	}
	query := `UPDATE media_assets
              SET caption = $1, tags = $2, transcript = $3,
                  cover_art_url = COALESCE(NULLIF($4, ''), cover_art_url),
                  sandbox_exit = $5, sandbox_output = $6,
                  analysis_status = 'completed', analysis_error = ''
              WHERE id = $7 AND is_deleted = false
              RETURNING ` + assetColumns
	return scanAsset(r.pool.QueryRow(ctx, query, a.Caption, tags, a.Transcript, a.CoverArtURL, sandboxExit, sandboxOutput, id))
}

func (r *postgresMediaRepository) DeleteAsset(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, "UPDATE media_assets SET is_deleted = true, for_sale = false WHERE id = $1 AND is_deleted = false", id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrMediaNotFound
	}
	return nil
}

func (r *postgresMediaRepository) GetAssetByID(ctx context.Context, id int64) (Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM media_assets WHERE id = $1 AND is_deleted = false`
	return scanAsset(r.pool.QueryRow(ctx, query, id))
}

// GetAssetsByIDs returns the live assets among ids, preserving the order of ids.
func (r *postgresMediaRepository) GetAssetsByIDs(ctx context.Context, ids []int64) ([]Asset, error) {
	if len(ids) == 0 {
		return []Asset{}, nil
	}
	query := `SELECT ` + assetColumns + ` FROM media_assets WHERE id = ANY($1) AND is_deleted = false`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	found, err := collectAssets(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]Asset, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}
	ordered := make([]Asset, 0, len(found))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			ordered = append(ordered, a)
		}
	}
	return ordered, nil
}

func buildWhere(filters Filters, argPos int) ([]string, []any, int) {
	whereClauses := []string{"is_deleted = false"}
	args := []any{}

	if filters.OwnerUUID != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("owner_uuid = $%d", argPos))
		args = append(args, *filters.OwnerUUID)
		argPos++
	}
	if filters.Kind != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("kind = $%d", argPos))
		args = append(args, *filters.Kind)
		argPos++
	}
	if filters.ForSale != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("for_sale = $%d", argPos))
		args = append(args, *filters.ForSale)
		argPos++
	}
	if filters.Sold != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("sold = $%d", argPos))
		args = append(args, *filters.Sold)
		argPos++
	}
	return whereClauses, args, argPos
}

func (r *postgresMediaRepository) ListAssets(ctx context.Context, filters Filters, limit, offset int) ([]Asset, int64, error) {
	whereClauses, args, argPos := buildWhere(filters, 1)
	whereSQL := "WHERE " + strings.Join(whereClauses, " AND ")

	query := fmt.Sprintf(`SELECT %s FROM media_assets %s
              ORDER BY created_at DESC, id DESC
              LIMIT $%d OFFSET $%d`, assetColumns, whereSQL, argPos, argPos+1)

	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectAssets(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM media_assets "+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// TextSearch matches every whitespace-separated term against title, description,
// caption and tags. It backs search when the vector index is unavailable.
func (r *postgresMediaRepository) TextSearch(ctx context.Context, query string, filters Filters, limit int) ([]Asset, error) {
	whereClauses, args, argPos := buildWhere(filters, 1)

	for _, term := range strings.Fields(query) {
		whereClauses = append(whereClauses, fmt.Sprintf(
			"(title ILIKE $%[1]d OR description ILIKE $%[1]d OR caption ILIKE $%[1]d OR array_to_string(tags, ' ') ILIKE $%[1]d)", argPos))
		args = append(args, "%"+escapeLike(term)+"%")
		argPos++
	}

	sql := fmt.Sprintf(`SELECT %s FROM media_assets WHERE %s ORDER BY created_at DESC LIMIT $%d`,
		assetColumns, strings.Join(whereClauses, " AND "), argPos)
	rows, err := r.pool.Query(ctx, sql, append(args, limit)...)
	if err != nil {
		return nil, err
	}
	return collectAssets(rows)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
