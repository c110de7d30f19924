package proxy

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/caredai/daytona/pkg/metrics"
)

const (
	methodBearer      = "bearer"
	methodAuthHeader  = "auth_key_header"
	methodAuthQuery   = "auth_key_query"
	methodCookie      = "cookie"
	methodSignedToken = "signed_token"

	outcomeSuccess = "success"
	outcomeInvalid = "invalid"
	outcomeError   = "error"
)

// missingAuthMessage is returned when a request carries no credential at all.
const missingAuthMessage = "missing authentication: provide a preview access token (via header, query parameter, or cookie) or use an API key or JWT"

// Authenticate resolves the path token plus whatever credential the request
// carries into a validated sandbox id. Credentials are tried in a fixed
// order: bearer token, auth-key header, auth-key query parameter, auth
// cookie, then signed preview token. The first success wins; each failed
// attempt is recorded and the next one runs. When everything fails, the
// client is redirected to the upstream auth URL and didRedirect is true.
func (p *Proxy) Authenticate(ctx *gin.Context, sandboxIDOrToken string, port int) (sandboxID string, didRedirect bool, err error) {
	var authErrors []string

	// The auth-key header never reaches the upstream, no matter which
	// method ends up authenticating the request
	authKey := ctx.Request.Header.Get(AuthKeyHeader)
	ctx.Request.Header.Del(AuthKeyHeader)

	// Bearer token from the Authorization header
	authHeader := ctx.Request.Header.Get("Authorization")
	if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
		bearerToken := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		start := time.Now()
		valid, err := p.api.ValidateSandboxBearerToken(ctx.Request.Context(), sandboxIDOrToken, bearerToken)
		duration := time.Since(start)
		switch {
		case err != nil:
			metrics.RecordAuthAttempt(methodBearer, outcomeError, duration)
			p.logger.Error("bearer token validation failed",
				zap.String("sandboxId", sandboxIDOrToken),
				zap.Duration("duration", duration),
				zap.Error(err))
			authErrors = append(authErrors, fmt.Sprintf("Bearer token validation error: %v", err))
		case valid:
			metrics.RecordAuthAttempt(methodBearer, outcomeSuccess, duration)
			p.logger.Info("bearer token validation successful",
				zap.String("sandboxId", sandboxIDOrToken),
				zap.Duration("duration", duration))
			return sandboxIDOrToken, false, nil
		default:
			metrics.RecordAuthAttempt(methodBearer, outcomeInvalid, duration)
			p.logger.Warn("bearer token is invalid",
				zap.String("sandboxId", sandboxIDOrToken),
				zap.Duration("duration", duration))
			authErrors = append(authErrors, "Bearer token is invalid")
		}
	}

	// Auth key from the preview header
	if authKey != "" {
		start := time.Now()
		valid, err := p.api.ValidateSandboxAuthKey(ctx.Request.Context(), sandboxIDOrToken, authKey)
		duration := time.Since(start)
		switch {
		case err != nil:
			metrics.RecordAuthAttempt(methodAuthHeader, outcomeError, duration)
			p.logger.Error("auth key header validation failed",
				zap.String("sandboxId", sandboxIDOrToken),
				zap.Duration("duration", duration),
				zap.Error(err))
			authErrors = append(authErrors, fmt.Sprintf("Auth key header validation error: %v", err))
		case valid:
			metrics.RecordAuthAttempt(methodAuthHeader, outcomeSuccess, duration)
			p.logger.Info("auth key header validation successful",
				zap.String("sandboxId", sandboxIDOrToken),
				zap.Duration("duration", duration))
			return sandboxIDOrToken, false, nil
		default:
			metrics.RecordAuthAttempt(methodAuthHeader, outcomeInvalid, duration)
			p.logger.Warn("auth key from header is invalid",
				zap.String("sandboxId", sandboxIDOrToken),
				zap.Duration("duration", duration))
			authErrors = append(authErrors, "Auth key header is invalid")
		}
	}

	// Auth key from the query string. Removed from the forwarded URL only
	// when it validates.
	queryAuthKey := ctx.Query(AuthKeyQueryParam)
	if queryAuthKey != "" {
		start := time.Now()
		valid, err := p.api.ValidateSandboxAuthKey(ctx.Request.Context(), sandboxIDOrToken, queryAuthKey)
		duration := time.Since(start)
		switch {
		case err != nil:
			metrics.RecordAuthAttempt(methodAuthQuery, outcomeError, duration)
			p.logger.Error("auth key query param validation failed",
				zap.String("sandboxId", sandboxIDOrToken),
				zap.Duration("duration", duration),
				zap.Error(err))
			authErrors = append(authErrors, fmt.Sprintf("Auth key query param validation error: %v", err))
		case valid:
			metrics.RecordAuthAttempt(methodAuthQuery, outcomeSuccess, duration)
			p.logger.Info("auth key query param validation successful",
				zap.String("sandboxId", sandboxIDOrToken),
				zap.Duration("duration", duration))
			newQuery := ctx.Request.URL.Query()
			newQuery.Del(AuthKeyQueryParam)
			ctx.Request.URL.RawQuery = newQuery.Encode()
			return sandboxIDOrToken, false, nil
		default:
			metrics.RecordAuthAttempt(methodAuthQuery, outcomeInvalid, duration)
			p.logger.Warn("auth key from query param is invalid",
				zap.String("sandboxId", sandboxIDOrToken),
				zap.Duration("duration", duration))
			authErrors = append(authErrors, "Auth key query parameter is invalid")
		}
	}

	// Auth cookie minted by an earlier signed-token exchange. The decoded
	// value must match the path token, so a cookie for one sandbox grants
	// nothing on another.
	cookieName := AuthCookiePrefix + sandboxIDOrToken
	if cookieValue, err := ctx.Cookie(cookieName); err == nil && cookieValue != "" {
		start := time.Now()
		decoded, err := p.codec.Decode(cookieName, cookieValue)
		duration := time.Since(start)
		switch {
		case err != nil:
			metrics.RecordAuthAttempt(methodCookie, outcomeError, duration)
			p.logger.Error("cookie decoding failed",
				zap.String("sandboxId", sandboxIDOrToken),
				zap.String("cookieName", cookieName),
				zap.Duration("duration", duration),
				zap.Error(err))
			authErrors = append(authErrors, fmt.Sprintf("Cookie decoding error: %v", err))
		case decoded == sandboxIDOrToken:
			metrics.RecordAuthAttempt(methodCookie, outcomeSuccess, duration)
			p.logger.Info("cookie auth successful",
				zap.String("sandboxId", sandboxIDOrToken),
				zap.Duration("duration", duration))
			return sandboxIDOrToken, false, nil
		default:
			metrics.RecordAuthAttempt(methodCookie, outcomeInvalid, duration)
			p.logger.Warn("decoded cookie value does not match sandbox id",
				zap.String("sandboxId", sandboxIDOrToken),
				zap.String("cookieName", cookieName),
				zap.Duration("duration", duration))
		}
	}

	// Last resort: treat the path token as a signed preview URL token
	cookieDomain := deriveCookieDomain(ctx.Request.Host)

	start := time.Now()
	sandboxID, err = p.resolveSignedToken(ctx, sandboxIDOrToken, port, cookieDomain)
	duration := time.Since(start)
	if err == nil {
		metrics.RecordAuthAttempt(methodSignedToken, outcomeSuccess, duration)
		p.logger.Info("signed preview token validation successful",
			zap.String("sandboxId", sandboxID),
			zap.Duration("duration", duration))
		return sandboxID, false, nil
	}
	metrics.RecordAuthAttempt(methodSignedToken, outcomeError, duration)
	p.logger.Error("signed preview token validation failed",
		zap.String("sandboxIdOrToken", sandboxIDOrToken),
		zap.Int("port", port),
		zap.Duration("duration", duration),
		zap.Error(err))
	authErrors = append(authErrors, err.Error())

	// Every method failed: hand the client to the auth flow
	authURL, err := p.api.GetAuthURL(ctx.Request.Context(), sandboxIDOrToken)
	if err != nil {
		return sandboxIDOrToken, false, fmt.Errorf("failed to get auth URL: %w", err)
	}

	metrics.AuthRedirectsTotal.Inc()
	ctx.Redirect(http.StatusTemporaryRedirect, authURL)

	var errorMsg string
	if len(authErrors) > 0 {
		errorMsg = fmt.Sprintf("authentication failed:\n%s", strings.Join(authErrors, "\n;\n"))
	} else {
		errorMsg = missingAuthMessage
	}

	return sandboxIDOrToken, true, errors.New(errorMsg)
}

// resolveSignedToken exchanges a signed preview URL token for its sandbox id
// and mints the auth cookie for follow-up requests. The cookie stores the
// encoded sandbox id only; the token itself is never persisted.
func (p *Proxy) resolveSignedToken(ctx *gin.Context, token string, port int, cookieDomain string) (string, error) {
	sandboxID, err := p.api.ExchangeSignedPreviewToken(ctx.Request.Context(), token, port)
	if err != nil {
		return "", fmt.Errorf("failed to get sandbox id: %w (is the token expired?)", err)
	}

	encoded, err := p.codec.Encode(AuthCookiePrefix+sandboxID, sandboxID)
	if err != nil {
		return "", fmt.Errorf("failed to encode cookie: %w", err)
	}

	ctx.SetCookie(AuthCookiePrefix+sandboxID, encoded, AuthCookieMaxAge, "/", cookieDomain, p.cfg.EnableTLS, true)

	return sandboxID, nil
}

// deriveCookieDomain widens the request host to the shared preview domain.
// Preview hosts look like 8080-sandboxid.proxy.example.com; dropping the
// left-most label lets the cookie cover sibling preview hosts. Hosts with
// fewer than three labels are used as-is.
func deriveCookieDomain(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	labels := strings.Split(host, ".")
	if len(labels) >= 3 {
		return strings.Join(labels[1:], ".")
	}
	return host
}
