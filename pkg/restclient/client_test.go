package restclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDoJSON_SendsBodyAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/collections/x", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("api-key"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "cosine", body["distance"])

		_, _ = w.Write([]byte(`{"result":{"ok":true},"status":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", WithHeader("api-key", "secret"))
	res, err := c.DoJSON(context.Background(), http.MethodPut, "/collections/x", map[string]string{"distance": "cosine"})

	require.NoError(t, err)
	require.True(t, res.Get("result.ok").Bool())
}

func TestDoJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL).DoJSON(context.Background(), http.MethodGet, "/missing", nil)

	require.Error(t, err)
	require.True(t, IsStatus(err, http.StatusNotFound))
	require.False(t, IsStatus(err, http.StatusInternalServerError))
	require.Contains(t, err.Error(), "nope")
}

func TestDoJSON_EmptyAndInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			_, _ = w.Write([]byte("not json"))
		}
	}))
	defer srv.Close()
	c := New(srv.URL)

	res, err := c.DoJSON(context.Background(), http.MethodGet, "/empty", nil)
	require.NoError(t, err)
	require.False(t, res.Exists())

	_, err = c.DoJSON(context.Background(), http.MethodGet, "/bad", nil)
	require.Error(t, err)
}
