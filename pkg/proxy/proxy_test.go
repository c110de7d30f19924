package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthz(t *testing.T) {
	p := testProxy(t, &fakeAuthAPI{})

	rec := httptest.NewRecorder()
	p.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	p := testProxy(t, &fakeAuthAPI{})

	rec := httptest.NewRecorder()
	p.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlePreviewInvalidPort(t *testing.T) {
	p := testProxy(t, &fakeAuthAPI{})

	for _, port := range []string{"abc", "0", "-1", "70000"} {
		rec := httptest.NewRecorder()
		p.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sb-1/"+port+"/index.html", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "port %s", port)
	}
}

func TestHandlePreviewRedirectsUnauthenticated(t *testing.T) {
	api := &fakeAuthAPI{
		exchangeErr: errors.New("unknown token"),
		authURL:     "https://auth.example/login",
	}
	p := testProxy(t, api)

	rec := httptest.NewRecorder()
	p.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sb-1/8080/index.html", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "https://auth.example/login", rec.Header().Get("Location"))
}

func TestHandlePreviewUnauthorizedWithoutRedirect(t *testing.T) {
	api := &fakeAuthAPI{
		exchangeErr: errors.New("unknown token"),
		authURLErr:  errors.New("api down"),
	}
	p := testProxy(t, api)

	rec := httptest.NewRecorder()
	p.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sb-1/8080/index.html", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlePreviewForwardsAuthenticated(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/index.html", r.URL.Path)
		assert.Empty(t, r.Header.Get(AuthKeyHeader))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("sandbox says hi"))
	}))
	defer upstream.Close()

	api := &fakeAuthAPI{bearerValid: true}
	p := testProxy(t, api)
	p.upstreamHost = func(sandboxID string, port int) string {
		return upstream.Listener.Addr().String()
	}

	req := httptest.NewRequest(http.MethodGet, "/sb-1/8080/index.html", nil)
	// ReverseProxy needs a cancellable context; without one it falls back to
	// http.CloseNotifier, which httptest.ResponseRecorder does not implement.
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	p.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sandbox says hi", rec.Body.String())
}

func TestRequestIDHeader(t *testing.T) {
	p := testProxy(t, &fakeAuthAPI{})

	rec := httptest.NewRecorder()
	p.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
