package collections

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"neuralsalvage/pkg/media"
)

type mockCollectionRepository struct {
	mock.Mock
}

func (m *mockCollectionRepository) CreateCollection(ctx context.Context, input Collection) (Collection, error) {
	args := m.Called(ctx, input)
	c, _ := args.Get(0).(Collection)
	return c, args.Error(1)
}

func (m *mockCollectionRepository) UpdateCollection(ctx context.Context, input Collection) (Collection, error) {
	args := m.Called(ctx, input)
	c, _ := args.Get(0).(Collection)
	return c, args.Error(1)
}

func (m *mockCollectionRepository) DeleteCollection(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockCollectionRepository) GetCollectionByID(ctx context.Context, id int64) (Collection, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(Collection)
	return c, args.Error(1)
}

func (m *mockCollectionRepository) ListCollectionsByOwner(ctx context.Context, ownerUUID string, publicOnly bool, limit, offset int) ([]Collection, int64, error) {
	args := m.Called(ctx, ownerUUID, publicOnly, limit, offset)
	items, _ := args.Get(0).([]Collection)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *mockCollectionRepository) AddAsset(ctx context.Context, collectionID, assetID int64) error {
	return m.Called(ctx, collectionID, assetID).Error(0)
}

func (m *mockCollectionRepository) RemoveAsset(ctx context.Context, collectionID, assetID int64) error {
	return m.Called(ctx, collectionID, assetID).Error(0)
}

type mockAssetReader struct {
	mock.Mock
}

func (m *mockAssetReader) GetAssetByID(ctx context.Context, id int64) (media.Asset, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(media.Asset)
	return a, args.Error(1)
}

func (m *mockAssetReader) GetAssetsByIDs(ctx context.Context, ids []int64) ([]media.Asset, error) {
	args := m.Called(ctx, ids)
	items, _ := args.Get(0).([]media.Asset)
	return items, args.Error(1)
}

func TestCreateCollection_Validates(t *testing.T) {
	repo := new(mockCollectionRepository)
	s := NewCollectionService(repo, new(mockAssetReader))
	ctx := context.Background()

	_, err := s.CreateCollection(ctx, Collection{OwnerUUID: "me", Name: "   "})
	require.ErrorIs(t, err, ErrInvalidName)

	_, err = s.CreateCollection(ctx, Collection{OwnerUUID: "me", Name: strings.Repeat("x", maxNameLength+1)})
	require.ErrorIs(t, err, ErrInvalidName)

	repo.On("CreateCollection", ctx, Collection{OwnerUUID: "me", Name: "Trips", Description: "d"}).
		Return(Collection{ID: 1, OwnerUUID: "me", Name: "Trips"}, nil).Once()
	got, err := s.CreateCollection(ctx, Collection{OwnerUUID: "me", Name: " Trips ", Description: " d "})
	require.NoError(t, err)
	require.Equal(t, int64(1), got.ID)
}

func TestGetCollection_Visibility(t *testing.T) {
	repo := new(mockCollectionRepository)
	s := NewCollectionService(repo, new(mockAssetReader))
	ctx := context.Background()
	repo.On("GetCollectionByID", ctx, int64(1)).Return(Collection{ID: 1, OwnerUUID: "me"}, nil)
	repo.On("GetCollectionByID", ctx, int64(2)).Return(Collection{ID: 2, OwnerUUID: "me", IsPublic: true}, nil)

	_, err := s.GetCollection(ctx, "me", 1)
	require.NoError(t, err)
	_, err = s.GetCollection(ctx, "other", 1)
	require.ErrorIs(t, err, ErrCollectionNotFound)
	_, err = s.GetCollection(ctx, "other", 2)
	require.NoError(t, err)
}

func TestUpdateAndDelete_RequireOwner(t *testing.T) {
	repo := new(mockCollectionRepository)
	s := NewCollectionService(repo, new(mockAssetReader))
	ctx := context.Background()
	repo.On("GetCollectionByID", ctx, int64(1)).Return(Collection{ID: 1, OwnerUUID: "me"}, nil)
	repo.On("UpdateCollection", ctx, Collection{ID: 1, Name: "New", IsPublic: true}).Return(Collection{ID: 1, Name: "New"}, nil).Once()
	repo.On("DeleteCollection", ctx, int64(1)).Return(nil).Once()

	_, err := s.UpdateCollection(ctx, "other", Collection{ID: 1, Name: "New"})
	require.ErrorIs(t, err, ErrForbidden)
	require.ErrorIs(t, s.DeleteCollection(ctx, "other", 1), ErrForbidden)

	_, err = s.UpdateCollection(ctx, "me", Collection{ID: 1, Name: "New", IsPublic: true})
	require.NoError(t, err)
	require.NoError(t, s.DeleteCollection(ctx, "me", 1))
	repo.AssertExpectations(t)
}

func TestAddAsset_RequiresOwnedMedia(t *testing.T) {
	repo, assets := new(mockCollectionRepository), new(mockAssetReader)
	s := NewCollectionService(repo, assets)
	ctx := context.Background()
	repo.On("GetCollectionByID", ctx, int64(1)).Return(Collection{ID: 1, OwnerUUID: "me"}, nil)
	assets.On("GetAssetByID", ctx, int64(10)).Return(media.Asset{ID: 10, OwnerUUID: "other"}, nil)
	assets.On("GetAssetByID", ctx, int64(11)).Return(media.Asset{ID: 11, OwnerUUID: "me"}, nil)
	repo.On("AddAsset", ctx, int64(1), int64(11)).Return(nil).Once()

	_, err := s.AddAsset(ctx, "me", 1, 10)
	require.ErrorIs(t, err, media.ErrForbidden)

	_, err = s.AddAsset(ctx, "me", 1, 11)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestListAssets_HydratesInOrder(t *testing.T) {
	repo, assets := new(mockCollectionRepository), new(mockAssetReader)
	s := NewCollectionService(repo, assets)
	ctx := context.Background()
	repo.On("GetCollectionByID", ctx, int64(3)).Return(Collection{ID: 3, OwnerUUID: "me", AssetIDs: []int64{5, 4}}, nil)
	assets.On("GetAssetsByIDs", ctx, []int64{5, 4}).Return([]media.Asset{{ID: 5}, {ID: 4}}, nil)

	items, err := s.ListAssets(ctx, "me", 3)

	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestListPublicByUser_PagesPublicOnly(t *testing.T) {
	repo := new(mockCollectionRepository)
	s := NewCollectionService(repo, new(mockAssetReader))
	ctx := context.Background()
	repo.On("ListCollectionsByOwner", ctx, "someone", true, 10, 10).Return([]Collection{}, int64(0), nil).Once()

	_, _, err := s.ListPublicByUser(ctx, "someone", 2, 10)

	require.NoError(t, err)
	repo.AssertExpectations(t)
}
