package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeAuthAPI records which validators ran and with what credentials.
type fakeAuthAPI struct {
	bearerValid bool
	bearerErr   error
	bearerCalls int

	keyValid bool
	keyErr   error
	keyCalls []string

	exchangeID    string
	exchangeErr   error
	exchangeCalls int

	authURL    string
	authURLErr error
}

func (f *fakeAuthAPI) ValidateSandboxBearerToken(ctx context.Context, sandboxID, token string) (bool, error) {
	f.bearerCalls++
	return f.bearerValid, f.bearerErr
}

func (f *fakeAuthAPI) ValidateSandboxAuthKey(ctx context.Context, sandboxID, authKey string) (bool, error) {
	f.keyCalls = append(f.keyCalls, authKey)
	return f.keyValid, f.keyErr
}

func (f *fakeAuthAPI) ExchangeSignedPreviewToken(ctx context.Context, token string, port int) (string, error) {
	f.exchangeCalls++
	if f.exchangeErr != nil {
		return "", f.exchangeErr
	}
	return f.exchangeID, nil
}

func (f *fakeAuthAPI) GetAuthURL(ctx context.Context, sandboxIDOrToken string) (string, error) {
	if f.authURLErr != nil {
		return "", f.authURLErr
	}
	return f.authURL, nil
}

func testProxy(t *testing.T, api *fakeAuthAPI) *Proxy {
	t.Helper()
	cfg := &Config{
		ProxyPort:     "4000",
		DaytonaAPIURL: "https://api.daytona.example",
		DaytonaAPIKey: "secret",
		CookieHashKey: testHashKey,
	}
	p, err := New(cfg, api, zaptest.NewLogger(t))
	require.NoError(t, err)
	return p
}

func authContext(t *testing.T, req *http.Request) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	return c, rec
}

func TestAuthenticateBearerSuccess(t *testing.T) {
	api := &fakeAuthAPI{bearerValid: true}
	p := testProxy(t, api)

	req := httptest.NewRequest(http.MethodGet, "/sb-1/8080/index.html", nil)
	req.Header.Set("Authorization", "Bearer tok-abc")
	c, rec := authContext(t, req)

	sandboxID, didRedirect, err := p.Authenticate(c, "sb-1", 8080)

	require.NoError(t, err)
	assert.False(t, didRedirect)
	assert.Equal(t, "sb-1", sandboxID)
	assert.Equal(t, 1, api.bearerCalls)
	assert.Empty(t, rec.Result().Cookies())
}

func TestAuthenticateBearerPrecedesAuthKey(t *testing.T) {
	// Valid bearer and valid auth-key header together: only the bearer
	// validator runs, and the header is still stripped
	api := &fakeAuthAPI{bearerValid: true, keyValid: true}
	p := testProxy(t, api)

	req := httptest.NewRequest(http.MethodGet, "/sb-1/8080/", nil)
	req.Header.Set("Authorization", "Bearer tok-abc")
	req.Header.Set(AuthKeyHeader, "key-xyz")
	c, rec := authContext(t, req)

	_, _, err := p.Authenticate(c, "sb-1", 8080)

	require.NoError(t, err)
	assert.Equal(t, 1, api.bearerCalls)
	assert.Empty(t, api.keyCalls)
	assert.Empty(t, rec.Result().Cookies())
	// Stripped even though the bearer token won
	assert.Empty(t, c.Request.Header.Get(AuthKeyHeader))
}

func TestAuthenticateInvalidBearerFallsThrough(t *testing.T) {
	api := &fakeAuthAPI{bearerValid: false, keyValid: true}
	p := testProxy(t, api)

	req := httptest.NewRequest(http.MethodGet, "/sb-1/8080/", nil)
	req.Header.Set("Authorization", "Bearer bad")
	req.Header.Set(AuthKeyHeader, "key-xyz")
	c, _ := authContext(t, req)

	sandboxID, didRedirect, err := p.Authenticate(c, "sb-1", 8080)

	require.NoError(t, err)
	assert.False(t, didRedirect)
	assert.Equal(t, "sb-1", sandboxID)
	assert.Equal(t, 1, api.bearerCalls)
	assert.Equal(t, []string{"key-xyz"}, api.keyCalls)
	// The auth-key header never reaches the upstream
	assert.Empty(t, c.Request.Header.Get(AuthKeyHeader))
}

func TestAuthenticateHeaderStrippedEvenWhenInvalid(t *testing.T) {
	api := &fakeAuthAPI{keyValid: false, exchangeErr: errors.New("not a token"), authURL: "https://auth.example/login"}
	p := testProxy(t, api)

	req := httptest.NewRequest(http.MethodGet, "/sb-1/8080/", nil)
	req.Header.Set(AuthKeyHeader, "bad-key")
	c, _ := authContext(t, req)

	_, didRedirect, err := p.Authenticate(c, "sb-1", 8080)

	require.Error(t, err)
	assert.True(t, didRedirect)
	assert.Empty(t, c.Request.Header.Get(AuthKeyHeader))
}

func TestAuthenticateQueryKeyRemovedOnSuccess(t *testing.T) {
	api := &fakeAuthAPI{keyValid: true}
	p := testProxy(t, api)

	req := httptest.NewRequest(http.MethodGet, "/sb-1/8080/app?foo=bar&"+AuthKeyQueryParam+"=key-xyz", nil)
	c, _ := authContext(t, req)

	sandboxID, _, err := p.Authenticate(c, "sb-1", 8080)

	require.NoError(t, err)
	assert.Equal(t, "sb-1", sandboxID)
	assert.Equal(t, []string{"key-xyz"}, api.keyCalls)

	query := c.Request.URL.Query()
	assert.Empty(t, query.Get(AuthKeyQueryParam))
	assert.Equal(t, "bar", query.Get("foo"))
}

func TestAuthenticateQueryKeyKeptWhenInvalid(t *testing.T) {
	api := &fakeAuthAPI{keyValid: false, exchangeErr: errors.New("not a token"), authURL: "https://auth.example/login"}
	p := testProxy(t, api)

	req := httptest.NewRequest(http.MethodGet, "/sb-1/8080/app?"+AuthKeyQueryParam+"=bad", nil)
	c, _ := authContext(t, req)

	_, didRedirect, err := p.Authenticate(c, "sb-1", 8080)

	require.Error(t, err)
	assert.True(t, didRedirect)
	assert.Equal(t, "bad", c.Request.URL.Query().Get(AuthKeyQueryParam))
}

func TestAuthenticateCookieSuccess(t *testing.T) {
	api := &fakeAuthAPI{}
	p := testProxy(t, api)

	encoded, err := p.codec.Encode(AuthCookiePrefix+"sb-1", "sb-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/sb-1/8080/", nil)
	req.AddCookie(&http.Cookie{Name: AuthCookiePrefix + "sb-1", Value: encoded})
	c, _ := authContext(t, req)

	sandboxID, didRedirect, err := p.Authenticate(c, "sb-1", 8080)

	require.NoError(t, err)
	assert.False(t, didRedirect)
	assert.Equal(t, "sb-1", sandboxID)
	// No API round trip for a valid cookie
	assert.Zero(t, api.bearerCalls)
	assert.Empty(t, api.keyCalls)
	assert.Zero(t, api.exchangeCalls)
}

func TestAuthenticateForeignCookieRejected(t *testing.T) {
	// A cookie minted for another sandbox must not authenticate this one
	api := &fakeAuthAPI{exchangeErr: errors.New("not a token"), authURL: "https://auth.example/login"}
	p := testProxy(t, api)

	encoded, err := p.codec.Encode(AuthCookiePrefix+"sb-other", "sb-other")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/sb-1/8080/", nil)
	req.AddCookie(&http.Cookie{Name: AuthCookiePrefix + "sb-1", Value: encoded})
	c, _ := authContext(t, req)

	_, didRedirect, err := p.Authenticate(c, "sb-1", 8080)

	require.Error(t, err)
	assert.True(t, didRedirect)
}

func TestAuthenticateSignedTokenMintsCookie(t *testing.T) {
	api := &fakeAuthAPI{exchangeID: "sb-9"}
	p := testProxy(t, api)

	req := httptest.NewRequest(http.MethodGet, "/signed-tok/3000/", nil)
	req.Host = "3000-sb-9.proxy.daytona.example"
	c, rec := authContext(t, req)

	sandboxID, didRedirect, err := p.Authenticate(c, "signed-tok", 3000)

	require.NoError(t, err)
	assert.False(t, didRedirect)
	assert.Equal(t, "sb-9", sandboxID)
	assert.Equal(t, 1, api.exchangeCalls)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, AuthCookiePrefix+"sb-9", cookie.Name)
	assert.Equal(t, AuthCookieMaxAge, cookie.MaxAge)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, "proxy.daytona.example", cookie.Domain)
	assert.True(t, cookie.HttpOnly)
	assert.False(t, cookie.Secure)

	// The stored value is the encoded sandbox id, never the token
	decoded, err := p.codec.Decode(cookie.Name, cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "sb-9", decoded)
}

func TestAuthenticateAllMethodsFailRedirects(t *testing.T) {
	api := &fakeAuthAPI{
		bearerValid: false,
		keyValid:    false,
		exchangeErr: errors.New("token expired"),
		authURL:     "https://auth.example/login",
	}
	p := testProxy(t, api)

	req := httptest.NewRequest(http.MethodGet, "/sb-1/8080/?"+AuthKeyQueryParam+"=bad", nil)
	req.Header.Set("Authorization", "Bearer bad")
	req.Header.Set(AuthKeyHeader, "bad")
	c, rec := authContext(t, req)

	_, didRedirect, err := p.Authenticate(c, "sb-1", 8080)

	require.Error(t, err)
	assert.True(t, didRedirect)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "https://auth.example/login", rec.Header().Get("Location"))

	// Every failed attempt shows up in the aggregated error
	assert.Contains(t, err.Error(), "Bearer token is invalid")
	assert.Contains(t, err.Error(), "Auth key header is invalid")
	assert.Contains(t, err.Error(), "Auth key query parameter is invalid")
	assert.Contains(t, err.Error(), "token expired")
}

func TestAuthenticateNoCredentialsMessage(t *testing.T) {
	api := &fakeAuthAPI{
		exchangeErr: errors.New("unknown token"),
		authURL:     "https://auth.example/login",
	}
	p := testProxy(t, api)

	req := httptest.NewRequest(http.MethodGet, "/sb-1/8080/", nil)
	c, rec := authContext(t, req)

	_, didRedirect, err := p.Authenticate(c, "sb-1", 8080)

	require.Error(t, err)
	assert.True(t, didRedirect)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	// The failed signed-token exchange is itself a recorded attempt
	assert.Contains(t, err.Error(), "unknown token")
}

func TestAuthenticateAuthURLFailure(t *testing.T) {
	api := &fakeAuthAPI{
		exchangeErr: errors.New("unknown token"),
		authURLErr:  errors.New("api down"),
	}
	p := testProxy(t, api)

	req := httptest.NewRequest(http.MethodGet, "/sb-1/8080/", nil)
	c, rec := authContext(t, req)

	_, didRedirect, err := p.Authenticate(c, "sb-1", 8080)

	require.Error(t, err)
	assert.False(t, didRedirect)
	assert.Contains(t, err.Error(), "failed to get auth URL")
	assert.NotEqual(t, http.StatusTemporaryRedirect, rec.Code)
}

func TestDeriveCookieDomain(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{host: "3000-sb-1.proxy.daytona.example", want: "proxy.daytona.example"},
		{host: "3000-sb-1.proxy.daytona.example:443", want: "proxy.daytona.example"},
		{host: "proxy.example", want: "proxy.example"},
		{host: "localhost", want: "localhost"},
		{host: "localhost:4000", want: "localhost"},
		{host: "a.b.c", want: "b.c"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveCookieDomain(tt.host))
		})
	}
}
