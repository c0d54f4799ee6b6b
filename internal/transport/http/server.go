package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/caserelay/internal/auth"
	"github.com/vovakirdan/caserelay/internal/config"
	"github.com/vovakirdan/caserelay/internal/core"
	"github.com/vovakirdan/caserelay/internal/store"
)

// NewServer builds the HTTP server: health, relay upgrade, history API and,
// when metricsHandler is non-nil, the metrics endpoint.
func NewServer(
	hub *core.Hub,
	messages store.MessageStore,
	cfg *config.Config,
	metricsHandler stdhttp.Handler,
	logger *zerolog.Logger,
) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(hub, messages, cfg, metricsHandler, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter builds the handler behind NewServer. The relay path bypasses gin,
// whose writer cannot be hijacked after the upgrade headers are written.
func NewRouter(
	hub *core.Hub,
	messages store.MessageStore,
	cfg *config.Config,
	metricsHandler stdhttp.Handler,
	logger *zerolog.Logger,
) stdhttp.Handler {
	var jwtCfg *auth.JWTConfig
	if cfg.Auth.Enabled {
		jwtCfg = &auth.JWTConfig{
			Secret:       []byte(cfg.Auth.JWTSecret),
			Issuer:       cfg.Auth.Issuer,
			Audience:     cfg.Auth.Audience,
			TTL:          cfg.Auth.TokenTTL,
			AllowedRoles: cfg.Auth.AllowedRoles,
		}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))

	api := NewAPIHandlers(messages, logger)
	r.GET("/health", api.Health)

	if metricsHandler != nil && cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(metricsHandler))
	}

	collab := r.Group("/api/collaboration")
	if jwtCfg != nil {
		collab.Use(AuthMiddleware(jwtCfg, logger))
	}
	collab.GET("/messages/:sessionId", api.ListMessages)

	mux := stdhttp.NewServeMux()
	mux.Handle(cfg.Relay.Path, NewWSHandler(hub, cfg.Relay, jwtCfg, logger))
	mux.Handle("/", r)
	return mux
}
