package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestGinMiddleware_CountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/media/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/media/:id", "204"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/media/42", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/media/43", nil))

	require.Equal(t, before+2, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/media/:id", "204")))
}

func TestRecordMintStep(t *testing.T) {
	ok := testutil.ToFloat64(mintSteps.WithLabelValues("asset", "ok"))
	bad := testutil.ToFloat64(mintSteps.WithLabelValues("asset", "error"))

	RecordMintStep("asset", nil)
	RecordMintStep("asset", errors.New("gateway down"))

	require.Equal(t, ok+1, testutil.ToFloat64(mintSteps.WithLabelValues("asset", "ok")))
	require.Equal(t, bad+1, testutil.ToFloat64(mintSteps.WithLabelValues("asset", "error")))
}

func TestHandler_ServesRegistry(t *testing.T) {
	RecordUpload("accepted")
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "neuralsalvage_media_uploads_total")
}
