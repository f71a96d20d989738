package csrf

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEcho() *echo.Echo {
	e := echo.New()
	e.Use(Middleware(Config{SkipPaths: []string{"/api/auth/login"}}))
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	e.GET("/api/cart", ok)
	e.POST("/api/cart/checkout", ok)
	e.POST("/api/auth/login", ok)
	return e
}

func TestMiddleware_SafeMethodIssuesToken(t *testing.T) {
	e := newEcho()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-CSRF-Token"))
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "XSRF-TOKEN=")
}

func TestMiddleware_UnsafeMethod(t *testing.T) {
	e := newEcho()

	tests := []struct {
		name   string
		cookie string
		header string
		bearer bool
		path   string
		want   int
	}{
		{name: "missing header", cookie: "tok", path: "/api/cart/checkout", want: http.StatusForbidden},
		{name: "mismatch", cookie: "tok", header: "other", path: "/api/cart/checkout", want: http.StatusForbidden},
		{name: "match", cookie: "tok", header: "tok", path: "/api/cart/checkout", want: http.StatusNoContent},
		{name: "bearer bypass", path: "/api/cart/checkout", bearer: true, want: http.StatusNoContent},
		{name: "skipped path", path: "/api/auth/login", want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "XSRF-TOKEN", Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("X-CSRF-Token", tt.header)
			}
			if tt.bearer {
				req.Header.Set(echo.HeaderAuthorization, "Bearer x")
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
