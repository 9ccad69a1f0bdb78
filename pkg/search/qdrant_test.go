package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neuralsalvage/pkg/media"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

func newQdrantServer(t *testing.T, respond func(r recordedRequest) (int, string)) (*Qdrant, *[]recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path}
		_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		mu.Lock()
		seen = append(seen, rec)
		mu.Unlock()

		code, body := respond(rec)
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewQdrant(srv.URL, "key", "media", 2, zap.NewNop()), &seen
}

func TestQdrant_EnsureCollectionCreates(t *testing.T) {
	q, seen := newQdrantServer(t, func(r recordedRequest) (int, string) {
		if r.Method == http.MethodGet {
			return http.StatusNotFound, `{"status":{"error":"Not found"}}`
		}
		return http.StatusOK, `{"result":true}`
	})

	require.NoError(t, q.EnsureCollection(context.Background()))

	require.Len(t, *seen, 4)
	create := (*seen)[1]
	require.Equal(t, http.MethodPut, create.Method)
	require.Equal(t, "/collections/media", create.Path)
	require.Equal(t, "Cosine", create.Body["vectors"].(map[string]any)["distance"])
}

func TestQdrant_EnsureCollectionExisting(t *testing.T) {
	q, seen := newQdrantServer(t, func(recordedRequest) (int, string) {
		return http.StatusOK, `{"result":{"status":"green"}}`
	})

	require.NoError(t, q.EnsureCollection(context.Background()))
	require.Len(t, *seen, 1)
}

func TestQdrant_UpsertAndSearch(t *testing.T) {
	q, seen := newQdrantServer(t, func(r recordedRequest) (int, string) {
		if r.Path == "/collections/media/points/search" {
			return http.StatusOK, `{"result":[{"id":4,"score":0.8},{"id":2,"score":0.4}]}`
		}
		return http.StatusOK, `{"result":{"status":"completed"}}`
	})
	ctx := context.Background()

	require.Error(t, q.Upsert(ctx, media.Asset{ID: 4}, []float32{1}))
	require.NoError(t, q.Upsert(ctx, media.Asset{ID: 4, OwnerUUID: "me", ForSale: true, Sold: true}, []float32{1, 0}))
	payload := (*seen)[0].Body["points"].([]any)[0].(map[string]any)["payload"].(map[string]any)
	require.Equal(t, false, payload["for_sale"])
	require.Equal(t, "me", payload["owner_uuid"])

	matches, err := q.Search(ctx, []float32{1, 0}, Filter{OwnerUUID: "me"}, 10)
	require.NoError(t, err)
	require.Equal(t, []Match{{ID: 4, Score: 0.8}, {ID: 2, Score: 0.4}}, matches)

	_, err = q.Search(ctx, []float32{1, 0}, Filter{}, 10)
	require.Error(t, err)
}

func TestQdrant_SyncListingIgnoresMissingPoint(t *testing.T) {
	q, _ := newQdrantServer(t, func(recordedRequest) (int, string) {
		return http.StatusNotFound, `{"status":{"error":"No point with id 5 found"}}`
	})

	require.NoError(t, q.SyncListing(context.Background(), media.Asset{ID: 5}))
	require.Error(t, q.Remove(context.Background(), 5))
}
