package response

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := map[string][2]int{
		"/":                    {1, 10},
		"/?page=3&limit=20":    {3, 20},
		"/?page=-1&limit=0":    {1, 10},
		"/?page=abc&limit=500": {1, 100},
	}
	for url, want := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, url, nil)
		page, limit := Pagination(c)
		require.Equal(t, want[0], page, url)
		require.Equal(t, want[1], limit, url)
	}
}

func TestOffset(t *testing.T) {
	limit, offset := Offset(0, 0)
	require.Equal(t, 10, limit)
	require.Equal(t, 0, offset)

	limit, offset = Offset(3, 25)
	require.Equal(t, 25, limit)
	require.Equal(t, 50, offset)
}

func TestParseID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x/:id", func(c *gin.Context) {
		id, ok := ParseID(c, "id")
		if !ok {
			return
		}
		c.JSON(http.StatusOK, id)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x/42", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "42", w.Body.String())

	for _, bad := range []string{"/x/0", "/x/-3", "/x/abc"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, bad, nil))
		require.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}
