package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapResolver map[string]string

func (m mapResolver) ResolveToken(token string) (string, bool) {
	id, ok := m[token]
	return id, ok
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	auth := BearerAuth(mapResolver{"tok-1": "u1"})
	e.GET("/whoami", func(c echo.Context) error {
		return c.String(http.StatusOK, UserID(c))
	}, auth, Logger)
	e.POST("/limited", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, auth, RateLimiter(2))
	return e
}

func TestBearerAuth(t *testing.T) {
	e := newTestEcho()

	tests := []struct {
		name   string
		target string
		header string
		status int
		body   string
	}{
		{name: "header", target: "/whoami", header: "Bearer tok-1", status: http.StatusOK, body: "u1"},
		{name: "lowercase scheme", target: "/whoami", header: "bearer tok-1", status: http.StatusOK, body: "u1"},
		{name: "query parameter", target: "/whoami?access_token=tok-1", status: http.StatusOK, body: "u1"},
		{name: "missing", target: "/whoami", status: http.StatusUnauthorized},
		{name: "unknown token", target: "/whoami", header: "Bearer nope", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestRateLimiter_PerUser(t *testing.T) {
	e := newTestEcho()

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/limited", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer tok-1")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Len(t, codes, 3)
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestFromContext_Default(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.NotNil(t, FromContext(req.Context()))
}
