// Package api provides the HTTP control API over the websocket transport
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-wsnet/pkg/network"
	"github.com/ZentaChain/zentalk-wsnet/pkg/peercomm"
	"github.com/ZentaChain/zentalk-wsnet/pkg/protocol"
	"github.com/ZentaChain/zentalk-wsnet/pkg/storage"
)

// Transport is the part of network.Client the API drives
type Transport interface {
	Put(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string) (json.RawMessage, error)
	PeerSend(contact *protocol.Contact, payload any) error
	Ping(ctx context.Context) bool
	Status() network.Status
}

// Server is the HTTP API server
type Server struct {
	transport  Transport
	channel    *peercomm.Channel
	db         *storage.DB
	gatherer   prometheus.Gatherer
	log        *zap.SugaredLogger
	router     *gin.Engine
	config     *Config
	httpServer *http.Server
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	EnableCORS     bool
	RateLimit      int // Requests per minute
	RequestTimeout time.Duration
	OutboxTTL      time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:           "127.0.0.1",
		Port:           8090,
		EnableCORS:     true,
		RateLimit:      100,
		RequestTimeout: network.DefaultRequestTimeout,
		OutboxTTL:      storage.DefaultOutboxTTL,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   45 * time.Second,
	}
}

// Deps are the components the server exposes. Channel, DB and Gatherer may be nil.
type Deps struct {
	Transport Transport
	Channel   *peercomm.Channel
	DB        *storage.DB
	Gatherer  prometheus.Gatherer
	Log       *zap.SugaredLogger
}

// NewServer creates a new HTTP API server
func NewServer(deps Deps, config *Config) (*Server, error) {
	if deps.Transport == nil {
		return nil, fmt.Errorf("api: transport is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop().Sugar()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		transport: deps.Transport,
		channel:   deps.Channel,
		db:        deps.DB,
		gatherer:  deps.Gatherer,
		log:       deps.Log,
		router:    gin.New(),
		config:    config,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(RequestIDMiddleware())

	if s.config.EnableCORS {
		s.router.Use(CORSMiddleware())
	}
	if s.config.RateLimit > 0 {
		s.router.Use(RateLimitMiddleware(NewRateLimiter(s.config.RateLimit)))
	}

	s.router.Use(LoggingMiddleware(s.log))
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		records := v1.Group("/dht")
		{
			records.POST("/put", s.handlePut)
			records.GET("/get/:key", s.handleGet)
			records.GET("/contact/:pkhash", s.handleFindContact)
		}

		peer := v1.Group("/peer")
		{
			peer.POST("/send", s.handlePeerSend)
			peer.POST("/file-offer", s.handleFileOffer)
		}

		contacts := v1.Group("/contacts")
		{
			contacts.GET("", s.handleListContacts)
			contacts.POST("", s.handleSaveContact)
			contacts.GET("/:name", s.handleGetContact)
			contacts.DELETE("/:name", s.handleDeleteContact)
		}

		v1.GET("/ping", s.handlePing)
		v1.GET("/status", s.handleStatus)
	}

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("🌐 HTTP API server starting on %s", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("🛑 Shutting down HTTP API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
