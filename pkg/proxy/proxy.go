package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/caredai/daytona/internal/logging"
	"github.com/caredai/daytona/pkg/daytona/client"
)

// Proxy authenticates preview requests and forwards them to the sandbox.
// Request paths are /<sandboxIdOrToken>/<port>/<rest>; the first segment is
// either a sandbox id (validated against a credential on the request) or a
// signed preview URL token (exchanged for a sandbox id).
type Proxy struct {
	cfg    *Config
	api    client.AuthAPI
	codec  *Codec
	logger *zap.Logger

	engine *gin.Engine
	server *http.Server

	// upstreamHost resolves a sandbox and port to the upstream address.
	// Overridable in tests.
	upstreamHost func(sandboxID string, port int) string
}

// New creates the preview proxy.
func New(cfg *Config, api client.AuthAPI, logger *zap.Logger) (*Proxy, error) {
	codec, err := NewCodec(cfg.CookieHashKey, cfg.CookieBlockKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie codec: %w", err)
	}

	p := &Proxy{
		cfg:    cfg,
		api:    api,
		codec:  codec,
		logger: logger.Named("proxy"),
		upstreamHost: func(sandboxID string, port int) string {
			// Sandbox ids resolve through cluster DNS to their runner
			return fmt.Sprintf("%s:%d", sandboxID, port)
		},
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), p.requestIDMiddleware())

	engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(ctrlmetrics.Registry, promhttp.HandlerOpts{})))
	engine.Any("/:target/:port/*path", p.handlePreview)

	p.engine = engine
	p.server = &http.Server{
		Addr:              ":" + cfg.ProxyPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return p, nil
}

// Engine exposes the gin engine for tests.
func (p *Proxy) Engine() *gin.Engine {
	return p.engine
}

// Run serves until the listener fails or Shutdown is called.
func (p *Proxy) Run() error {
	p.logger.Info("preview proxy listening",
		zap.String("addr", p.server.Addr),
		zap.Bool("tls", p.cfg.EnableTLS))
	var err error
	if p.cfg.EnableTLS {
		err = p.server.ListenAndServeTLS(p.cfg.TLSCertFile, p.cfg.TLSKeyFile)
	} else {
		err = p.server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (p *Proxy) Shutdown(ctx context.Context) error {
	return p.server.Shutdown(ctx)
}

// handlePreview authenticates the request and forwards it to the sandbox.
func (p *Proxy) handlePreview(c *gin.Context) {
	target := c.Param("target")
	port, err := strconv.Atoi(c.Param("port"))
	if err != nil || port <= 0 || port > 65535 {
		c.String(http.StatusBadRequest, "invalid port: %s", c.Param("port"))
		return
	}

	sandboxID, didRedirect, err := p.Authenticate(c, target, port)
	if err != nil {
		if didRedirect {
			// Redirect already written; nothing else to send
			return
		}
		p.logger.Error("authentication failed without redirect", zap.Error(err))
		c.String(http.StatusUnauthorized, "unauthorized")
		return
	}

	p.forward(c, sandboxID, port)
}

// forward proxies the request to the sandbox.
func (p *Proxy) forward(c *gin.Context, sandboxID string, port int) {
	upstream := &url.URL{
		Scheme: "http",
		Host:   p.upstreamHost(sandboxID, port),
	}

	rp := httputil.NewSingleHostReverseProxy(upstream)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		p.logger.Error("upstream request failed",
			zap.String("sandboxId", sandboxID),
			zap.Int("port", port),
			zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
	}

	// The authenticated prefix is consumed; the upstream sees only the rest
	c.Request.URL.Path = c.Param("path")

	rp.ServeHTTP(c.Writer, c.Request)
}

// requestIDMiddleware tags each request context with a request id for log
// correlation.
func (p *Proxy) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := logging.WithRequestID(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Request-ID", logging.GetRequestID(ctx))
		c.Next()
	}
}
