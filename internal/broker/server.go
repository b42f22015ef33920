// Package broker is a self-hostable rendezvous server speaking the PeerJS
// signaling protocol.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultAddr          = ":9000"
	DefaultPath          = "/"
	DefaultKey           = "peerjs"
	DefaultExpireTimeout = 5 * time.Second
	DefaultAliveTimeout  = 60 * time.Second
)

// Options configures a broker instance.
type Options struct {
	Addr string
	Path string
	Key  string

	// JWTSecret switches API keys from the static Key to signed tokens.
	JWTSecret string

	// RedisURL shares id claims and relays frames between instances.
	RedisURL string

	ExpireTimeout time.Duration
	AliveTimeout  time.Duration
	Release       bool
}

// Server is a broker bound to its registry and relay.
type Server struct {
	opts   Options
	log    *slog.Logger
	hub    *Hub
	router *gin.Engine
	rdb    *redis.Client
}

// New wires a broker. With RedisURL set it connects to Redis first.
func New(ctx context.Context, opts Options, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "broker")
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.ExpireTimeout <= 0 {
		opts.ExpireTimeout = DefaultExpireTimeout
	}
	if opts.AliveTimeout <= 0 {
		opts.AliveTimeout = DefaultAliveTimeout
	}
	if opts.Release {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{opts: opts, log: log}

	var (
		registry Registry = NewMemoryRegistry()
		relay    Relay
	)
	if opts.RedisURL != "" {
		ropts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		s.rdb = redis.NewClient(ropts)
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			s.rdb.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		registry = NewRedisRegistry(s.rdb, opts.AliveTimeout)
		relay = NewRedisRelay(s.rdb, log)
		log.Info("redis connection established", "addr", ropts.Addr)
	}

	s.hub = NewHub(registry, relay, opts.ExpireTimeout, log)
	s.router = NewRouter(s.hub, KeyValidator{Static: opts.Key, Secret: opts.JWTSecret}, opts.Path, log)
	return s, nil
}

// Handler exposes the HTTP routes, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the server's hub, which Run drives.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hubErr := make(chan error, 1)
	go func() { hubErr <- s.hub.Run(ctx) }()

	srv := &http.Server{Addr: s.opts.Addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()
	s.log.Info("starting broker", "addr", s.opts.Addr, "path", s.opts.Path, "redis", s.rdb != nil)

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	case err = <-hubErr:
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if serr := srv.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	if s.rdb != nil {
		s.rdb.Close()
	}
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
