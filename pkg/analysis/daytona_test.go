package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDaytonaSandbox_Run(t *testing.T) {
	var polls, deleted atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/sandbox":
			_, _ = w.Write([]byte(`{"id":"sb-1","state":"creating"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/sandbox/sb-1":
			polls.Add(1)
			_, _ = w.Write([]byte(`{"id":"sb-1","state":"started"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/toolbox/sb-1/toolbox/process/execute":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.True(t, strings.Contains(body["command"].(string), "python3 /tmp/main.py"))
			_, _ = w.Write([]byte(`{"exitCode":0,"result":"hello\n"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/sandbox/sb-1":
			deleted.Add(1)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := NewDaytonaSandbox(srv.URL, "key", zap.NewNop())
	d.pollInterval = time.Millisecond

	run, err := d.Run(context.Background(), "main.py", `print("hello")`)

	require.NoError(t, err)
	require.Equal(t, 0, run.ExitCode)
	require.Equal(t, "hello\n", run.Output)
	require.Equal(t, int32(1), polls.Load())
	require.Equal(t, int32(1), deleted.Load())
}

func TestDaytonaSandbox_UnsupportedLanguage(t *testing.T) {
	d := NewDaytonaSandbox("http://unused", "key", zap.NewNop())

	_, err := d.Run(context.Background(), "main.rs", "fn main() {}")

	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestDaytonaSandbox_FailedState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"id":"sb-2","state":"error"}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	_, err := NewDaytonaSandbox(srv.URL, "key", zap.NewNop()).Run(context.Background(), "a.js", "1")

	require.ErrorContains(t, err, `state "error"`)
}
