package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"neuralsalvage/pkg/beta"
	"neuralsalvage/pkg/metrics"
	"neuralsalvage/pkg/moderation"
	"neuralsalvage/pkg/response"
	"neuralsalvage/pkg/storage"
	"neuralsalvage/pkg/users"
)

var (
	ErrForbidden = errors.New("not the owner of this media")
	ErrMinted    = errors.New("media has an NFT and cannot be deleted")
	ErrSold      = errors.New("media was sold and cannot be changed")
)

// Read budgets for analysis, matching what the providers accept.
const (
	maxAnalysisImageBytes = 20 << 20
	maxAnalysisAudioBytes = 25 << 20
	maxAnalysisCodeBytes  = 1 << 20
	maxAnalysisTextBytes  = 64 << 10
)

// UserAccess is the slice of the user service media depends on.
type UserAccess interface {
	GetUserByUUID(ctx context.Context, uuid string) (users.User, error)
	ConsumeUsage(ctx context.Context, uuid string, kind users.UsageKind) error
}

type AnalyzeOptions struct {
	CoverArt bool
	Sandbox  bool
}

// Analyzer runs AI analysis over stored bytes. Implementations may return a
// partial Analysis together with a nil error when optional steps fail.
type Analyzer interface {
	Analyze(ctx context.Context, a Asset, data []byte, opts AnalyzeOptions) (Analysis, error)
}

// Deindexer removes an asset from the search index.
type Deindexer interface {
	Remove(ctx context.Context, id int64) error
}

type UploadInput struct {
	OwnerUUID   string
	Title       string
	Description string
	FileName    string
	MimeType    string
	SizeBytes   int64
	Body        io.Reader
}

type MediaService interface {
	Upload(ctx context.Context, in UploadInput) (Asset, error)
	Analyze(ctx context.Context, id int64, callerUUID string) (Asset, error)
	GetAsset(ctx context.Context, id int64, callerUUID string) (Asset, error)
	OpenFile(ctx context.Context, id int64, callerUUID string) (Asset, io.ReadCloser, error)
	UpdateAsset(ctx context.Context, id int64, callerUUID, title, description string) (Asset, error)
	DeleteAsset(ctx context.Context, id int64, callerUUID string) error
	ListLibrary(ctx context.Context, ownerUUID string, kind *Kind, page, limit int) ([]Asset, int64, error)
}

type Deps struct {
	Repo      MediaRepository
	Store     storage.Store
	Moderator *moderation.Service
	Users     UserAccess
	Beta      *beta.Checker
	Analyzer  Analyzer
	Index     Deindexer
	Log       *zap.Logger
}

type mediaService struct {
	repo      MediaRepository
	store     storage.Store
	moderator *moderation.Service
	users     UserAccess
	beta      *beta.Checker
	analyzer  Analyzer
	index     Deindexer
	log       *zap.Logger
	timeout   time.Duration
}

// NewMediaService wires the upload pipeline. Analyzer and Index may be nil.
func NewMediaService(d Deps) MediaService {
	return &mediaService{
		repo:      d.Repo,
		store:     d.Store,
		moderator: d.Moderator,
		users:     d.Users,
		beta:      d.Beta,
		analyzer:  d.Analyzer,
		index:     d.Index,
		log:       d.Log,
		timeout:   2 * time.Minute,
	}
}

func (s *mediaService) Upload(ctx context.Context, in UploadInput) (Asset, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		in.Title = in.FileName
	}

	err := s.moderator.Check(ctx, moderation.Input{
		Title:       in.Title,
		Description: in.Description,
		FileName:    in.FileName,
		MimeType:    in.MimeType,
		SizeBytes:   in.SizeBytes,
	})
	if err != nil {
		metrics.RecordUpload("rejected")
		return Asset{}, err
	}

	owner, err := s.users.GetUserByUUID(ctx, in.OwnerUUID)
	if err != nil {
		return Asset{}, err
	}
	if limit := users.LimitsFor(owner.Tier).Uploads; limit > 0 && owner.Usage.Uploads >= limit {
		metrics.RecordUpload("limited")
		return Asset{}, users.ErrUsageLimit
	}

	key := storage.NewKey(in.OwnerUUID, in.FileName)
	written, err := s.store.Save(ctx, key, in.Body)
	if err != nil {
		metrics.RecordUpload("error")
		return Asset{}, fmt.Errorf("store upload: %w", err)
	}

	asset, err := s.repo.CreateAsset(ctx, Asset{
		OwnerUUID:   in.OwnerUUID,
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		FileName:    in.FileName,
		MimeType:    in.MimeType,
		Kind:        DetectKind(in.MimeType, in.FileName),
		SizeBytes:   written,
		StorageKey:  key,
	})
	if err != nil {
		if derr := s.store.Delete(ctx, key); derr != nil {
			s.log.Warn("remove orphaned upload", zap.String("key", key), zap.Error(derr))
		}
		metrics.RecordUpload("error")
		return Asset{}, fmt.Errorf("create media record: %w", err)
	}

	if err := s.users.ConsumeUsage(ctx, in.OwnerUUID, users.UsageUploads); err != nil {
		// a concurrent upload won the last slot; the file is already stored
		s.log.Warn("upload usage not recorded", zap.String("user_uuid", in.OwnerUUID), zap.Error(err))
	}
	metrics.RecordUpload("accepted")

	return s.runAnalysis(ctx, asset, owner), nil
}

// Analyze re-runs analysis on an owned asset and counts against the analysis quota.
func (s *mediaService) Analyze(ctx context.Context, id int64, callerUUID string) (Asset, error) {
	asset, err := s.owned(ctx, id, callerUUID)
	if err != nil {
		return Asset{}, err
	}
	owner, err := s.users.GetUserByUUID(ctx, callerUUID)
	if err != nil {
		return Asset{}, err
	}
	if s.analyzer == nil {
		return asset, nil
	}
	if err := s.users.ConsumeUsage(ctx, callerUUID, users.UsageAnalyses); err != nil {
		return Asset{}, err
	}
	return s.analyze(ctx, asset, owner), nil
}

// runAnalysis is the best-effort step after upload. Quota exhaustion or
// analyzer errors never fail the upload.
func (s *mediaService) runAnalysis(ctx context.Context, asset Asset, owner users.User) Asset {
	if s.analyzer == nil {
		return s.markStatus(ctx, asset, AnalysisSkipped, "analysis disabled")
	}
	if err := s.users.ConsumeUsage(ctx, owner.UUID, users.UsageAnalyses); err != nil {
		if errors.Is(err, users.ErrUsageLimit) {
			return s.markStatus(ctx, asset, AnalysisSkipped, "analysis quota reached for current plan")
		}
		s.log.Warn("analysis usage check failed", zap.Int64("media_id", asset.ID), zap.Error(err))
		return s.markStatus(ctx, asset, AnalysisFailed, err.Error())
	}
	return s.analyze(ctx, asset, owner)
}

func (s *mediaService) analyze(ctx context.Context, asset Asset, owner users.User) Asset {
	asset = s.markStatus(ctx, asset, AnalysisProcessing, "")

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var data []byte
	if n := analysisBytes(asset); n > 0 {
		var err error
		data, err = storage.ReadPrefix(ctx, s.store, asset.StorageKey, n)
		if err != nil {
			metrics.RecordAnalysis(string(asset.Kind), err)
			return s.markStatus(ctx, asset, AnalysisFailed, "read stored file: "+err.Error())
		}
	}

	opts := AnalyzeOptions{}
	if s.beta != nil {
		member := owner.BetaMember()
		opts.CoverArt = s.beta.HasAccess(member, beta.AICoverArt)
		// only complete source files are worth running
		opts.Sandbox = asset.Kind == KindCode && int64(len(data)) == asset.SizeBytes &&
			s.beta.HasAccess(member, beta.CodeSandbox)
	}

	result, err := s.analyzer.Analyze(ctx, asset, data, opts)
	metrics.RecordAnalysis(string(asset.Kind), err)
	if err != nil {
		s.log.Warn("analysis failed", zap.Int64("media_id", asset.ID), zap.Error(err))
		return s.markStatus(ctx, asset, AnalysisFailed, err.Error())
	}

	updated, err := s.repo.SaveAnalysis(ctx, asset.ID, result)
	if err != nil {
		s.log.Error("save analysis", zap.Int64("media_id", asset.ID), zap.Error(err))
		return s.markStatus(ctx, asset, AnalysisFailed, "save analysis: "+err.Error())
	}
	return updated
}

// analysisBytes is how much of the stored file the analyzer needs.
// Zero means the file is not opened at all.
func analysisBytes(a Asset) int64 {
	switch a.Kind {
	case KindImage:
		if a.SizeBytes <= maxAnalysisImageBytes {
			return a.SizeBytes
		}
	case KindAudio:
		if a.SizeBytes <= maxAnalysisAudioBytes {
			return a.SizeBytes
		}
	case KindCode:
		if a.SizeBytes <= maxAnalysisCodeBytes {
			return a.SizeBytes
		}
		return maxAnalysisTextBytes
	case KindDocument:
		return min(a.SizeBytes, maxAnalysisTextBytes)
	}
	return 0
}

func (s *mediaService) markStatus(ctx context.Context, asset Asset, status AnalysisStatus, msg string) Asset {
	if err := s.repo.SetAnalysisStatus(context.WithoutCancel(ctx), asset.ID, status, msg); err != nil {
		s.log.Error("set analysis status", zap.Int64("media_id", asset.ID), zap.String("status", string(status)), zap.Error(err))
	}
	asset.AnalysisStatus = status
	asset.AnalysisError = msg
	return asset
}

// GetAsset returns owned assets and, for anyone else, only marketplace listings.
func (s *mediaService) GetAsset(ctx context.Context, id int64, callerUUID string) (Asset, error) {
	a, err := s.repo.GetAssetByID(ctx, id)
	if err != nil {
		return Asset{}, err
	}
	if a.OwnerUUID != callerUUID && !a.ForSale {
		return Asset{}, ErrMediaNotFound
	}
	return a, nil
}

func (s *mediaService) OpenFile(ctx context.Context, id int64, callerUUID string) (Asset, io.ReadCloser, error) {
	a, err := s.owned(ctx, id, callerUUID)
	if err != nil {
		return Asset{}, nil, err
	}
	rc, err := s.store.Open(ctx, a.StorageKey)
	if err != nil {
		return Asset{}, nil, err
	}
	return a, rc, nil
}

func (s *mediaService) UpdateAsset(ctx context.Context, id int64, callerUUID, title, description string) (Asset, error) {
	a, err := s.owned(ctx, id, callerUUID)
	if err != nil {
		return Asset{}, err
	}
	if a.Sold {
		return Asset{}, ErrSold
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = a.Title
	}
	if err := s.moderator.Check(ctx, moderation.Input{
		Title: title, Description: description, FileName: a.FileName, MimeType: a.MimeType, SizeBytes: a.SizeBytes,
	}); err != nil {
		return Asset{}, err
	}
	return s.repo.UpdateDetails(ctx, id, title, strings.TrimSpace(description))
}

func (s *mediaService) DeleteAsset(ctx context.Context, id int64, callerUUID string) error {
	a, err := s.owned(ctx, id, callerUUID)
	if err != nil {
		return err
	}
	if a.NFTID != nil {
		return ErrMinted
	}
	if err := s.repo.DeleteAsset(ctx, id); err != nil {
		return err
	}

	if s.index != nil {
		if err := s.index.Remove(ctx, id); err != nil {
			s.log.Warn("remove from search index", zap.Int64("media_id", id), zap.Error(err))
		}
	}
	if err := s.store.Delete(ctx, a.StorageKey); err != nil {
		s.log.Warn("delete stored file", zap.Int64("media_id", id), zap.Error(err))
	}
	return nil
}

func (s *mediaService) ListLibrary(ctx context.Context, ownerUUID string, kind *Kind, page, limit int) ([]Asset, int64, error) {
	limit, offset := response.Offset(page, limit)
	return s.repo.ListAssets(ctx, Filters{OwnerUUID: &ownerUUID, Kind: kind}, limit, offset)
}

func (s *mediaService) owned(ctx context.Context, id int64, callerUUID string) (Asset, error) {
	a, err := s.repo.GetAssetByID(ctx, id)
	if err != nil {
		return Asset{}, err
	}
	if a.OwnerUUID != callerUUID {
		return Asset{}, ErrForbidden
	}
	return a, nil
}
