package arweave

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neuralsalvage/pkg/cache"
)

func newGatewayServer(t *testing.T, handler http.HandlerFunc) (*Gateway, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewGateway(srv.URL, cache.NewMemory(), zap.NewNop()), &calls
}

func TestGateway_PriceRoundsToChunksAndCaches(t *testing.T) {
	g, calls := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/price/262144" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("2500000000\n"))
	})
	ctx := context.Background()

	est, err := g.Price(ctx, 1000)
	require.NoError(t, err)
	require.Equal(t, "2500000000", est.Winston)
	require.Equal(t, "0.0025", est.AR.String())
	require.Equal(t, int64(1000), est.Bytes)

	est, err = g.Price(ctx, 2000)
	require.NoError(t, err)
	require.Equal(t, int64(2000), est.Bytes)
	require.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestGateway_PriceRejectsGarbage(t *testing.T) {
	g, _ := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("nope"))
	})
	_, err := g.Price(context.Background(), 10)
	require.Error(t, err)

	_, err = g.Price(context.Background(), 0)
	require.Error(t, err)
}

func TestGateway_Status(t *testing.T) {
	g, _ := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tx/confirmed/status":
			_, _ = w.Write([]byte(`{"block_height":1200,"block_indep_hash":"bh","number_of_confirmations":17}`))
		case "/tx/pending/status":
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte("Pending"))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("Not Found"))
		}
	})
	ctx := context.Background()

	st, err := g.Status(ctx, "confirmed")
	require.NoError(t, err)
	require.False(t, st.Pending)
	require.Equal(t, 17, st.Confirmations)
	require.Equal(t, int64(1200), st.BlockHeight)

	st, err = g.Status(ctx, "pending")
	require.NoError(t, err)
	require.True(t, st.Pending)

	_, err = g.Status(ctx, "missing")
	require.ErrorIs(t, err, ErrTxNotFound)
}

func TestGateway_URL(t *testing.T) {
	g := NewGateway("https://arweave.net/", nil, zap.NewNop())
	require.Equal(t, "https://arweave.net/abc", g.URL("abc"))
	require.Equal(t, "https://arweave.net/abc/metadata.json", g.URL("abc", MetadataPath))
}

func TestUploader_Disabled(t *testing.T) {
	u, err := NewUploader("", "", "https://arweave.net", zap.NewNop())
	require.NoError(t, err)
	_, err = u.Upload(context.Background(), []byte("x"), nil)
	require.ErrorIs(t, err, ErrNotConfigured)
	require.Empty(t, u.Address())

	_, err = NewUploader("not-a-jwk", "", "https://arweave.net", zap.NewNop())
	require.Error(t, err)
}
