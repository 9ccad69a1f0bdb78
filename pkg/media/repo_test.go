package media

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"neuralsalvage/pkg/testhelpers"
)

func TestPostgresMediaRepository_CreateAndAnalyse(t *testing.T) {
	pool := testhelpers.NewTestPool(t)
	testhelpers.Truncate(t, pool)
	repo := NewPostgresMediaRepository(pool)
	ctx := context.Background()
	owner := testhelpers.CreateTestUser(t, pool)

	created, err := repo.CreateAsset(ctx, Asset{
		OwnerUUID: owner, Title: "Riff", FileName: "riff.mp3", MimeType: "audio/mpeg",
		Kind: KindAudio, SizeBytes: 42, StorageKey: owner + "/riff.mp3",
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, AnalysisPending, created.AnalysisStatus)
	require.Empty(t, created.Tags)

	require.NoError(t, repo.SetAnalysisStatus(ctx, created.ID, AnalysisProcessing, ""))

	saved, err := repo.SaveAnalysis(ctx, created.ID, Analysis{
		Caption: "guitar riff", Tags: []string{"rock", "guitar"}, Transcript: "la la",
		Sandbox: &SandboxRun{ExitCode: 0, Output: "ok"},
	})
	require.NoError(t, err)
	require.Equal(t, AnalysisCompleted, saved.AnalysisStatus)
	require.Equal(t, []string{"rock", "guitar"}, saved.Tags)
	require.Equal(t, "la la", saved.Transcript)
	require.NotNil(t, saved.Sandbox)
	require.Equal(t, "ok", saved.Sandbox.Output)

	updated, err := repo.UpdateDetails(ctx, created.ID, "Riff v2", "live take")
	require.NoError(t, err)
	require.Equal(t, "Riff v2", updated.Title)
}

func TestPostgresMediaRepository_ListSearchDelete(t *testing.T) {
	pool := testhelpers.NewTestPool(t)
	testhelpers.Truncate(t, pool)
	repo := NewPostgresMediaRepository(pool)
	ctx := context.Background()
	owner := testhelpers.CreateTestUser(t, pool)
	other := testhelpers.CreateTestUser(t, pool)

	first := testhelpers.CreateTestMedia(t, pool, owner)
	second := testhelpers.CreateTestMedia(t, pool, owner)
	foreign := testhelpers.CreateTestMedia(t, pool, other)
	testhelpers.ListForSale(t, pool, foreign, 599)

	items, total, err := repo.ListAssets(ctx, Filters{OwnerUUID: &owner}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Equal(t, second, items[0].ID)

	forSale := true
	listed, total, err := repo.ListAssets(ctx, Filters{ForSale: &forSale}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, int64(599), listed[0].PriceCents)

	_, err = repo.SaveAnalysis(ctx, first, Analysis{Caption: "a red 100% fox", Tags: []string{"animal"}})
	require.NoError(t, err)
	hits, err := repo.TextSearch(ctx, "fox animal", Filters{OwnerUUID: &owner}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, first, hits[0].ID)

	hits, err = repo.TextSearch(ctx, "100%", Filters{}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	ordered, err := repo.GetAssetsByIDs(ctx, []int64{foreign, first, 999999})
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	require.Equal(t, foreign, ordered[0].ID)
	require.Equal(t, first, ordered[1].ID)

	require.NoError(t, repo.DeleteAsset(ctx, first))
	_, err = repo.GetAssetByID(ctx, first)
	require.ErrorIs(t, err, ErrMediaNotFound)
	require.ErrorIs(t, repo.DeleteAsset(ctx, first), ErrMediaNotFound)
}
