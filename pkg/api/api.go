package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/smtp-notifier/pkg/apiresponses"
	"github.com/telekom/smtp-notifier/pkg/metrics"
	"github.com/telekom/smtp-notifier/pkg/system"
	"github.com/telekom/smtp-notifier/pkg/version"
)

const (
	DefaultListenAddress = ":8080"

	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

type APIController interface {
	BasePath() string
	Register(rg *gin.RouterGroup) error
	Handlers() []gin.HandlerFunc
}

type ServerConfig struct {
	ListenAddress string
	TLSCertFile   string
	TLSKeyFile    string
	Debug         bool
	// AllowOrigins is used for CORS in debug mode.
	AllowOrigins []string
}

type Server struct {
	gin    *gin.Engine
	config ServerConfig
	log    *zap.SugaredLogger
}

func NewServer(log *zap.Logger, cfg ServerConfig) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
		system.RequestLogger(log.Sugar()),
	)

	if cfg.Debug {
		origins := cfg.AllowOrigins
		if len(origins) == 0 {
			origins = []string{"http://localhost:5173", "http://127.0.0.1:8080"}
		}
		engine.Use(
			cors.New(cors.Config{
				AllowOrigins: origins,
				AllowMethods: []string{"GET", "PUT", "POST", "OPTIONS"},
				AllowHeaders: []string{"Origin", "Content-Type", system.RequestIDHeader},
				MaxAge:       12 * time.Hour,
			}),
		)
	}

	s := &Server{
		gin:    engine,
		config: cfg,
		log:    log.Sugar().Named("api"),
	}

	engine.GET("healthz", s.healthz)
	engine.GET("metrics", gin.WrapH(metrics.MetricsHandler()))
	engine.GET("api/buildinfo", s.buildInfo)

	return s
}

// RegisterAll mounts every controller below /api/v1.
func (s *Server) RegisterAll(controllers []APIController) error {
	r := s.gin.Group("api/v1")
	for _, c := range controllers {
		if err := c.Register(r.Group(c.BasePath(), c.Handlers()...)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.gin
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.gin,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("Starting HTTP server", "address", s.config.ListenAddress, "tls", s.config.TLSCertFile != "")
		var err error
		if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
			err = srv.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) healthz(c *gin.Context) {
	apiresponses.RespondOK(c, gin.H{"status": "ok"})
}

func (s *Server) buildInfo(c *gin.Context) {
	apiresponses.RespondOK(c, version.GetBuildInfo())
}
