package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"neuralsalvage/pkg/media"
	"neuralsalvage/pkg/restclient"
)

// Filter restricts vector matches by payload.
type Filter struct {
	OwnerUUID string
	ForSale   bool
}

type Match struct {
	ID    int64
	Score float64
}

// Qdrant talks to the Qdrant REST API. Point ids are media asset ids.
type Qdrant struct {
	api        *restclient.Client
	collection string
	dims       int
	log        *zap.Logger
}

func NewQdrant(baseURL, apiKey, collection string, dims int, log *zap.Logger) *Qdrant {
	return &Qdrant{
		api:        restclient.New(baseURL, restclient.WithHeader("api-key", apiKey)),
		collection: collection,
		dims:       dims,
		log:        log,
	}
}

func (q *Qdrant) path(suffix string) string {
	return "/collections/" + url.PathEscape(q.collection) + suffix
}

// EnsureCollection creates the collection and its payload indexes when missing.
func (q *Qdrant) EnsureCollection(ctx context.Context) error {
	_, err := q.api.DoJSON(ctx, http.MethodGet, q.path(""), nil)
	if err == nil {
		return nil
	}
	if !restclient.IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("qdrant get collection: %w", err)
	}

	_, err = q.api.DoJSON(ctx, http.MethodPut, q.path(""), map[string]any{
		"vectors": map[string]any{"size": q.dims, "distance": "Cosine"},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	for field, schema := range map[string]string{"owner_uuid": "keyword", "for_sale": "bool"} {
		_, err := q.api.DoJSON(ctx, http.MethodPut, q.path("/index?wait=true"), map[string]any{
			"field_name":   field,
			"field_schema": schema,
		})
		if err != nil {
			return fmt.Errorf("qdrant index %s: %w", field, err)
		}
	}
	q.log.Info("created qdrant collection", zap.String("collection", q.collection), zap.Int("dims", q.dims))
	return nil
}

func payloadFor(a media.Asset) map[string]any {
	return map[string]any{
		"owner_uuid": a.OwnerUUID,
		"for_sale":   a.ForSale && !a.Sold,
		"kind":       string(a.Kind),
		"title":      a.Title,
	}
}

func (q *Qdrant) Upsert(ctx context.Context, a media.Asset, vector []float32) error {
	if len(vector) != q.dims {
		return fmt.Errorf("qdrant upsert: vector has %d dims, collection expects %d", len(vector), q.dims)
	}
	_, err := q.api.DoJSON(ctx, http.MethodPut, q.path("/points?wait=true"), map[string]any{
		"points": []map[string]any{{
			"id":      a.ID,
			"vector":  vector,
			"payload": payloadFor(a),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (q *Qdrant) Remove(ctx context.Context, id int64) error {
	_, err := q.api.DoJSON(ctx, http.MethodPost, q.path("/points/delete?wait=true"), map[string]any{
		"points": []int64{id},
	})
	if err != nil {
		return fmt.Errorf("qdrant delete: %w", err)
	}
	return nil
}

// SyncListing refreshes the payload used for marketplace filtering after a
// listing, unlisting or sale changes ownership.
func (q *Qdrant) SyncListing(ctx context.Context, a media.Asset) error {
	_, err := q.api.DoJSON(ctx, http.MethodPost, q.path("/points/payload?wait=true"), map[string]any{
		"payload": payloadFor(a),
		"points":  []int64{a.ID},
	})
	if restclient.IsStatus(err, http.StatusNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("qdrant set payload: %w", err)
	}
	return nil
}

func (q *Qdrant) Search(ctx context.Context, vector []float32, f Filter, limit int) ([]Match, error) {
	var must []map[string]any
	if f.OwnerUUID != "" {
		must = append(must, map[string]any{"key": "owner_uuid", "match": map[string]any{"value": f.OwnerUUID}})
	}
	if f.ForSale {
		must = append(must, map[string]any{"key": "for_sale", "match": map[string]any{"value": true}})
	}
	if len(must) == 0 {
		return nil, errors.New("qdrant search: refusing an unfiltered search")
	}

	res, err := q.api.DoJSON(ctx, http.MethodPost, q.path("/points/search"), map[string]any{
		"vector":       vector,
		"limit":        limit,
		"filter":       map[string]any{"must": must},
		"with_payload": false,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	matches := make([]Match, 0, limit)
	res.Get("result").ForEach(func(_, v gjson.Result) bool {
		matches = append(matches, Match{ID: v.Get("id").Int(), Score: v.Get("score").Float()})
		return true
	})
	return matches, nil
}
