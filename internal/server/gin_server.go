// Package server exposes the formatting host to editor plugins over a
// loopback HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"javafmtd/internal/config"
	"javafmtd/internal/health"
)

// GinServer serves the editor API on top of a Runtime.
type GinServer struct {
	rt           *Runtime
	router       *gin.Engine
	version      string
	apiValidator *openAPIValidator

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// GinServerOption configures a GinServer.
type GinServerOption func(*GinServer)

func WithGinVersion(version string) GinServerOption {
	return func(s *GinServer) {
		s.version = version
	}
}

// WithListener serves on an existing listener instead of the configured address.
func WithListener(l net.Listener) GinServerOption {
	return func(s *GinServer) {
		s.listener = l
	}
}

// NewGinServer builds the router. Components are started by Start.
func NewGinServer(rt *Runtime, opts ...GinServerOption) (*GinServer, error) {
	if rt == nil {
		return nil, errors.New("server: runtime is required")
	}
	s := &GinServer{rt: rt, version: "dev"}
	for _, opt := range opts {
		opt(s)
	}
	if rt.Config.APIValidate {
		v, err := newOpenAPIValidator()
		if err != nil {
			return nil, fmt.Errorf("openapi validator: %w", err)
		}
		s.apiValidator = v
	}
	s.setupGinRoutes()
	return s, nil
}

// Handler exposes the router for in-process use.
func (s *GinServer) Handler() http.Handler { return s.router }

// Start runs the runtime components and serves until Stop. It returns nil
// after a graceful shutdown.
func (s *GinServer) Start(ctx context.Context) error {
	if err := s.rt.Start(ctx); err != nil {
		return fmt.Errorf("failed to start runtime components: %w", err)
	}

	s.mu.Lock()
	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.rt.Config.Listen)
		if err != nil {
			s.mu.Unlock()
			_ = s.rt.Stop(ctx)
			s.rt.Health.Setf(health.ComponentHTTP, health.LevelError, "listen %s: %v", s.rt.Config.Listen, err)
			return fmt.Errorf("listen %s: %w", s.rt.Config.Listen, err)
		}
		s.listener = ln
	}
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.srv
	s.mu.Unlock()

	s.rt.Health.Setf(health.ComponentHTTP, health.LevelOK, "listening on %s", ln.Addr())
	log.Printf("INFO: Starting javafmtd %s on http://%s", s.version, ln.Addr())

	// Type=notify units wait for this before dependents start
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Printf("WARN: Failed to notify systemd of readiness: %v", err)
	} else if sent {
		log.Printf("INFO: Notified systemd that service is ready")
	}

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once Start is listening.
func (s *GinServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts down HTTP and the runtime components. The format service is
// left running for other editor hosts.
func (s *GinServer) Stop(ctx context.Context) error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		log.Printf("WARN: Failed to notify systemd of shutdown: %v", err)
	}
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	var firstErr error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if err := s.rt.Stop(ctx); err != nil {
		log.Printf("WARN: Failed to stop components cleanly: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *GinServer) setupGinRoutes() {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(s.securityHeadersMiddleware())
	if s.apiValidator != nil {
		r.Use(s.apiValidator.Middleware())
	}

	r.GET("/healthz", s.handleHealthLive)
	r.GET("/readyz", s.handleReadiness)
	r.GET("/metrics", gin.WrapH(s.rt.Metrics.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/openapi.yaml", s.handleOpenAPI)
		v1.POST("/format", s.handleFormatDocument)
		v1.POST("/format/file", s.handleFormatFile)
		v1.GET("/editors/visible", s.handleGetVisible)
		v1.PUT("/editors/visible", s.handlePutVisible)
		v1.POST("/service/ensure", s.handleEnsureService)
		v1.GET("/status", s.handleStatus)
	}
	s.router = r
}

func (s *GinServer) handleHealthLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": s.rt.Health.Overall().String()})
}

func (s *GinServer) handleReadiness(c *gin.Context) {
	var required []string
	if s.rt.Config.Formatter.Backend == config.BackendService {
		required = append(required, health.ComponentRegistry)
	}
	ready, snapshot := s.rt.Health.Ready(required...)
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"ready":      ready,
		"status":     s.rt.Health.Overall().String(),
		"degraded":   s.rt.Health.Degraded(),
		"components": flattenHealth(snapshot),
	})
}

func flattenHealth(snapshot map[string]health.Status) []gin.H {
	components := make([]gin.H, 0, len(snapshot))
	for name, st := range snapshot {
		components = append(components, gin.H{
			"name":       name,
			"level":      st.Level.String(),
			"message":    st.Message,
			"since":      st.Since,
			"updated_at": st.UpdatedAt,
		})
	}
	return components
}

func (s *GinServer) handleOpenAPI(c *gin.Context) {
	b, err := loadOpenAPIDocument()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "openapi document not available"})
		return
	}
	c.Data(http.StatusOK, "application/yaml; charset=utf-8", b)
}
