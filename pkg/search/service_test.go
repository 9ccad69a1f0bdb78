package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neuralsalvage/pkg/media"
)

type stubEmbedder struct {
	err error
}

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, s.err
}

type mockVectors struct {
	mock.Mock
}

func (m *mockVectors) Search(ctx context.Context, vector []float32, f Filter, limit int) ([]Match, error) {
	args := m.Called(ctx, vector, f, limit)
	matches, _ := args.Get(0).([]Match)
	return matches, args.Error(1)
}

type mockAssets struct {
	mock.Mock
}

func (m *mockAssets) GetAssetsByIDs(ctx context.Context, ids []int64) ([]media.Asset, error) {
	args := m.Called(ctx, ids)
	items, _ := args.Get(0).([]media.Asset)
	return items, args.Error(1)
}

func (m *mockAssets) TextSearch(ctx context.Context, query string, filters media.Filters, limit int) ([]media.Asset, error) {
	args := m.Called(ctx, query, filters, limit)
	items, _ := args.Get(0).([]media.Asset)
	return items, args.Error(1)
}

func TestSearch_VectorLibrary(t *testing.T) {
	vectors, assets := new(mockVectors), new(mockAssets)
	s := NewSearchService(stubEmbedder{}, vectors, assets, zap.NewNop())
	ctx := context.Background()

	vectors.On("Search", ctx, []float32{1, 0}, Filter{OwnerUUID: "me"}, defaultLimit).
		Return([]Match{{ID: 2, Score: 0.9}, {ID: 7, Score: 0.5}}, nil)
	assets.On("GetAssetsByIDs", ctx, []int64{2, 7}).
		Return([]media.Asset{{ID: 2, OwnerUUID: "me"}, {ID: 7, OwnerUUID: "someone-else"}}, nil)

	res, err := s.Search(ctx, "me", Request{Query: " foxes "})

	require.NoError(t, err)
	require.Equal(t, ModeVector, res.Mode)
	require.Len(t, res.Results, 1)
	require.Equal(t, int64(2), res.Results[0].Asset.ID)
	require.InDelta(t, 0.9, res.Results[0].Score, 1e-9)
}

func TestSearch_VectorMarketplaceDropsSold(t *testing.T) {
	vectors, assets := new(mockVectors), new(mockAssets)
	s := NewSearchService(stubEmbedder{}, vectors, assets, zap.NewNop())
	ctx := context.Background()

	vectors.On("Search", ctx, mock.Anything, Filter{ForSale: true}, 5).Return([]Match{{ID: 1}, {ID: 3}}, nil)
	assets.On("GetAssetsByIDs", ctx, []int64{1, 3}).
		Return([]media.Asset{{ID: 1, ForSale: true}, {ID: 3, ForSale: true, Sold: true}}, nil)

	res, err := s.Search(ctx, "me", Request{Query: "art", Scope: ScopeMarketplace, Limit: 5})

	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	require.Equal(t, int64(1), res.Results[0].Asset.ID)
}

func TestSearch_FallsBackToText(t *testing.T) {
	assets := new(mockAssets)
	s := NewSearchService(stubEmbedder{err: errors.New("rate limited")}, new(mockVectors), assets, zap.NewNop())
	ctx := context.Background()

	assets.On("TextSearch", ctx, "fox", mock.MatchedBy(func(f media.Filters) bool {
		return f.ForSale != nil && *f.ForSale && f.Sold != nil && !*f.Sold && f.OwnerUUID == nil
	}), maxLimit).Return([]media.Asset{{ID: 9}}, nil)

	res, err := s.Search(ctx, "me", Request{Query: "fox", Scope: ScopeMarketplace, Limit: 500})

	require.NoError(t, err)
	require.Equal(t, ModeText, res.Mode)
	require.Len(t, res.Results, 1)
}

func TestSearch_TextOnlyWhenNoIndex(t *testing.T) {
	assets := new(mockAssets)
	s := NewSearchService(nil, nil, assets, zap.NewNop())
	ctx := context.Background()
	assets.On("TextSearch", ctx, "fox", mock.MatchedBy(func(f media.Filters) bool {
		return f.OwnerUUID != nil && *f.OwnerUUID == "me"
	}), defaultLimit).Return([]media.Asset{}, nil)

	res, err := s.Search(ctx, "me", Request{Query: "fox"})

	require.NoError(t, err)
	require.Equal(t, ModeText, res.Mode)
	require.Empty(t, res.Results)
}

func TestSearch_Validation(t *testing.T) {
	s := NewSearchService(nil, nil, new(mockAssets), zap.NewNop())
	ctx := context.Background()

	_, err := s.Search(ctx, "me", Request{Query: "   "})
	require.ErrorIs(t, err, ErrEmptyQuery)

	_, err = s.Search(ctx, "me", Request{Query: string(make([]byte, maxQueryLength+1))})
	require.ErrorIs(t, err, ErrQueryTooLong)

	_, err = s.Search(ctx, "me", Request{Query: "x", Scope: "everything"})
	require.ErrorIs(t, err, ErrInvalidScope)
}
