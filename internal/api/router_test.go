package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouterReturns501ForUnwiredEndpoints(t *testing.T) {
	router := NewRouter(Dependencies{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/jobs/abc", nil))

	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_IMPLEMENTED")
}

func TestRouterWiresHealthOutsideRateLimit(t *testing.T) {
	called := false
	router := NewRouter(Dependencies{
		Health: func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterUnknownRouteIs404(t *testing.T) {
	router := NewRouter(Dependencies{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v2/nothing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
