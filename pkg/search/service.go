// Package search answers semantic queries over a user's library and the marketplace.
package search

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"neuralsalvage/pkg/media"
)

const (
	defaultLimit   = 20
	maxLimit       = 50
	maxQueryLength = 500
)

type Scope string

const (
	ScopeLibrary     Scope = "library"
	ScopeMarketplace Scope = "marketplace"
)

const (
	ModeVector = "vector"
	ModeText   = "text"
)

var (
	ErrEmptyQuery   = errors.New("query is required")
	ErrQueryTooLong = errors.New("query is too long")
	ErrInvalidScope = errors.New("scope must be library or marketplace")
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, f Filter, limit int) ([]Match, error)
}

// AssetReader is the part of the media repository search hydrates from.
type AssetReader interface {
	GetAssetsByIDs(ctx context.Context, ids []int64) ([]media.Asset, error)
	TextSearch(ctx context.Context, query string, filters media.Filters, limit int) ([]media.Asset, error)
}

type Request struct {
	Query string `json:"query" binding:"required"`
	Scope Scope  `json:"scope"`
	Limit int    `json:"limit"`
}

type Hit struct {
	Asset media.Asset `json:"asset"`
	Score float64     `json:"score,omitempty"`
}

type Response struct {
	Mode    string `json:"mode"`
	Results []Hit  `json:"results"`
}

type SearchService interface {
	Search(ctx context.Context, callerUUID string, req Request) (Response, error)
}

type searchService struct {
	embedder Embedder
	vectors  VectorSearcher
	assets   AssetReader
	log      *zap.Logger
}

// NewSearchService builds the search pipeline. embedder and vectors may be
// nil, in which case every query uses text search.
func NewSearchService(embedder Embedder, vectors VectorSearcher, assets AssetReader, log *zap.Logger) SearchService {
	return &searchService{embedder: embedder, vectors: vectors, assets: assets, log: log}
}

func (s *searchService) Search(ctx context.Context, callerUUID string, req Request) (Response, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return Response{}, ErrEmptyQuery
	}
	if len(req.Query) > maxQueryLength {
		return Response{}, ErrQueryTooLong
	}
	if req.Scope == "" {
		req.Scope = ScopeLibrary
	}
	if req.Scope != ScopeLibrary && req.Scope != ScopeMarketplace {
		return Response{}, ErrInvalidScope
	}
	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}

	if s.embedder != nil && s.vectors != nil {
		hits, err := s.vectorSearch(ctx, callerUUID, req)
		if err == nil {
			return Response{Mode: ModeVector, Results: hits}, nil
		}
		s.log.Warn("vector search failed, using text search", zap.String("scope", string(req.Scope)), zap.Error(err))
	}

	hits, err := s.textSearch(ctx, callerUUID, req)
	if err != nil {
		return Response{}, err
	}
	return Response{Mode: ModeText, Results: hits}, nil
}

func (s *searchService) vectorSearch(ctx context.Context, callerUUID string, req Request) ([]Hit, error) {
	vec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	filter := Filter{OwnerUUID: callerUUID}
	if req.Scope == ScopeMarketplace {
		filter = Filter{ForSale: true}
	}
	matches, err := s.vectors.Search(ctx, vec, filter, req.Limit)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(matches))
	scores := make(map[int64]float64, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
		scores[m.ID] = m.Score
	}
	assets, err := s.assets.GetAssetsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(assets))
	for _, a := range assets {
		if !visible(a, callerUUID, req.Scope) {
			continue
		}
		hits = append(hits, Hit{Asset: a, Score: scores[a.ID]})
	}
	return hits, nil
}

func (s *searchService) textSearch(ctx context.Context, callerUUID string, req Request) ([]Hit, error) {
	filters := media.Filters{OwnerUUID: &callerUUID}
	if req.Scope == ScopeMarketplace {
		forSale, sold := true, false
		filters = media.Filters{ForSale: &forSale, Sold: &sold}
	}
	assets, err := s.assets.TextSearch(ctx, req.Query, filters, req.Limit)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(assets))
	for i, a := range assets {
		hits[i] = Hit{Asset: a}
	}
	return hits, nil
}

// visible drops index entries that went stale since they were written.
func visible(a media.Asset, callerUUID string, scope Scope) bool {
	if scope == ScopeMarketplace {
		return a.ForSale && !a.Sold
	}
	return a.OwnerUUID == callerUUID
}
