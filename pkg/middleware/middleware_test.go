package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"hashmine/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Error())
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestError_RendersBaseError(t *testing.T) {
	r := newRouter()
	r.GET("/x", func(c *gin.Context) {
		c.Error(errutil.UnprocessableEntity("insufficient balance", nil))
	})
	r.GET("/boom", func(c *gin.Context) {
		c.Error(errors.New("db down"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decodeError(t, w)
	require.Equal(t, "unprocessable_entity", body["code"])
	require.Equal(t, "insufficient balance", body["message"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "internal error", decodeError(t, w)["message"])
}

func TestUserIDAndAdminKey(t *testing.T) {
	r := newRouter()
	r.GET("/me", UserID(), func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c))
	})
	r.GET("/admin", AdminKey("s3cret"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/locked", AdminKey(""), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "u-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "u-1", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(HeaderAdminKey, "wrong")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(HeaderAdminKey, "s3cret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/locked", nil)
	req.Header.Set(HeaderAdminKey, "")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}
