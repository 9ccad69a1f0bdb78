package collections

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"neuralsalvage/pkg/media"
	"neuralsalvage/pkg/response"
)

const maxNameLength = 100

var (
	ErrInvalidName = errors.New("name must be between 1 and 100 characters")
	ErrForbidden   = errors.New("not the owner of this collection")
)

// AssetReader is what collections needs from the media repository.
type AssetReader interface {
	GetAssetByID(ctx context.Context, id int64) (media.Asset, error)
	GetAssetsByIDs(ctx context.Context, ids []int64) ([]media.Asset, error)
}

type CollectionService interface {
	CreateCollection(ctx context.Context, input Collection) (Collection, error)
	UpdateCollection(ctx context.Context, callerUUID string, input Collection) (Collection, error)
	DeleteCollection(ctx context.Context, callerUUID string, id int64) error
	GetCollection(ctx context.Context, callerUUID string, id int64) (Collection, error)
	ListAssets(ctx context.Context, callerUUID string, id int64) ([]media.Asset, error)
	ListMine(ctx context.Context, callerUUID string, page, limit int) ([]Collection, int64, error)
	ListPublicByUser(ctx context.Context, ownerUUID string, page, limit int) ([]Collection, int64, error)
	AddAsset(ctx context.Context, callerUUID string, id, assetID int64) (Collection, error)
	RemoveAsset(ctx context.Context, callerUUID string, id, assetID int64) (Collection, error)
}

type collectionService struct {
	repo   CollectionRepository
	assets AssetReader
}

func NewCollectionService(repo CollectionRepository, assets AssetReader) CollectionService {
	return &collectionService{repo: repo, assets: assets}
}

func normalize(c *Collection) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Description = strings.TrimSpace(c.Description)
	if c.Name == "" || utf8.RuneCountInString(c.Name) > maxNameLength {
		return ErrInvalidName
	}
	return nil
}

func (s *collectionService) CreateCollection(ctx context.Context, input Collection) (Collection, error) {
	if err := normalize(&input); err != nil {
		return Collection{}, err
	}
	return s.repo.CreateCollection(ctx, input)
}

func (s *collectionService) UpdateCollection(ctx context.Context, callerUUID string, input Collection) (Collection, error) {
	if err := normalize(&input); err != nil {
		return Collection{}, err
	}
	if _, err := s.owned(ctx, callerUUID, input.ID); err != nil {
		return Collection{}, err
	}
	return s.repo.UpdateCollection(ctx, input)
}

func (s *collectionService) DeleteCollection(ctx context.Context, callerUUID string, id int64) error {
	if _, err := s.owned(ctx, callerUUID, id); err != nil {
		return err
	}
	return s.repo.DeleteCollection(ctx, id)
}

// GetCollection hides private collections of other users behind not found.
func (s *collectionService) GetCollection(ctx context.Context, callerUUID string, id int64) (Collection, error) {
	c, err := s.repo.GetCollectionByID(ctx, id)
	if err != nil {
		return Collection{}, err
	}
	if c.OwnerUUID != callerUUID && !c.IsPublic {
		return Collection{}, ErrCollectionNotFound
	}
	return c, nil
}

func (s *collectionService) ListAssets(ctx context.Context, callerUUID string, id int64) ([]media.Asset, error) {
	c, err := s.GetCollection(ctx, callerUUID, id)
	if err != nil {
		return nil, err
	}
	return s.assets.GetAssetsByIDs(ctx, c.AssetIDs)
}

func (s *collectionService) ListMine(ctx context.Context, callerUUID string, page, limit int) ([]Collection, int64, error) {
	limit, offset := response.Offset(page, limit)
	return s.repo.ListCollectionsByOwner(ctx, callerUUID, false, limit, offset)
}

func (s *collectionService) ListPublicByUser(ctx context.Context, ownerUUID string, page, limit int) ([]Collection, int64, error) {
	limit, offset := response.Offset(page, limit)
	return s.repo.ListCollectionsByOwner(ctx, ownerUUID, true, limit, offset)
}

func (s *collectionService) AddAsset(ctx context.Context, callerUUID string, id, assetID int64) (Collection, error) {
	if _, err := s.owned(ctx, callerUUID, id); err != nil {
		return Collection{}, err
	}
	a, err := s.assets.GetAssetByID(ctx, assetID)
	if err != nil {
		return Collection{}, err
	}
	if a.OwnerUUID != callerUUID {
		return Collection{}, media.ErrForbidden
	}
	if err := s.repo.AddAsset(ctx, id, assetID); err != nil {
		return Collection{}, err
	}
	return s.repo.GetCollectionByID(ctx, id)
}

func (s *collectionService) RemoveAsset(ctx context.Context, callerUUID string, id, assetID int64) (Collection, error) {
	if _, err := s.owned(ctx, callerUUID, id); err != nil {
		return Collection{}, err
	}
	if err := s.repo.RemoveAsset(ctx, id, assetID); err != nil {
		return Collection{}, err
	}
	return s.repo.GetCollectionByID(ctx, id)
}

func (s *collectionService) owned(ctx context.Context, callerUUID string, id int64) (Collection, error) {
	c, err := s.repo.GetCollectionByID(ctx, id)
	if err != nil {
		return Collection{}, err
	}
	if c.OwnerUUID != callerUUID {
		return Collection{}, ErrForbidden
	}
	return c, nil
}
