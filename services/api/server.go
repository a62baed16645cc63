package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"sonopix/config"
	"sonopix/logging"
	"sonopix/middleware"
	"sonopix/pkg/imagecodec"
	"sonopix/pkg/models"
	"sonopix/pkg/pipeline"
	"sonopix/pkg/repository"
	"sonopix/services/jobs"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Server is the sonopix HTTP API
type Server struct {
	router      *gin.Engine
	engine      *pipeline.Engine
	jobs        *jobs.Manager
	repo        *repository.Repository
	rateLimiter *middleware.RateLimiter
	cfg         *config.Config
	format      imagecodec.Format
	logger      *logging.Logger
}

// Options wires a Server to its collaborators
type Options struct {
	Config *config.Config
	Engine *pipeline.Engine
	Jobs   *jobs.Manager
	// Repo defaults to a no-op audit repository
	Repo   *repository.Repository
	Logger *logging.Logger
}

// NewServer creates a new API server instance
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Engine == nil || opts.Jobs == nil {
		return nil, fmt.Errorf("config, engine and jobs are required")
	}

	format, err := opts.Config.GetFormat()
	if err != nil {
		return nil, err
	}

	if opts.Repo == nil {
		opts.Repo = repository.NewNoOpRepository()
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger()
	}

	s := &Server{
		router:      gin.New(),
		engine:      opts.Engine,
		jobs:        opts.Jobs,
		repo:        opts.Repo,
		rateLimiter: middleware.NewRateLimiter(opts.Config),
		cfg:         opts.Config,
		format:      format,
		logger:      opts.Logger,
	}

	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())

	corsConfig := s.cfg.Security.CORS
	if corsConfig.Enabled {
		// Must be first to handle preflight
		maxAge := corsConfig.MaxAge
		if maxAge <= 0 {
			maxAge = 12 * time.Hour
		}
		s.router.Use(cors.New(cors.Config{
			AllowOrigins:     corsConfig.AllowedOrigins,
			AllowMethods:     corsConfig.AllowedMethods,
			AllowHeaders:     corsConfig.AllowedHeaders,
			ExposeHeaders:    corsConfig.ExposeHeaders,
			AllowCredentials: corsConfig.AllowCredentials,
			MaxAge:           maxAge,
		}))
	}

	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	v1.Use(s.rateLimiter.Handler(), s.limitBody())
	{
		v1.POST("/passphrase/validate", s.validatePassphrase)
		v1.POST("/encrypt", s.encrypt)
		v1.POST("/decrypt", s.decrypt)

		jobRoutes := v1.Group("/jobs")
		{
			jobRoutes.POST("/encrypt", s.submitEncryptJob)
			jobRoutes.POST("/decrypt", s.submitDecryptJob)
			jobRoutes.GET("/:id", s.getJob)
			jobRoutes.GET("/:id/result", s.getJobResult)
			jobRoutes.DELETE("/:id", s.cancelJob)
		}

		auditLogs := v1.Group("/audit-logs")
		{
			auditLogs.GET("", s.listAuditLogs)
			auditLogs.GET("/:id", s.getAuditLog)
		}
	}
}

// Handler exposes the router for an http.Server
func (s *Server) Handler() http.Handler {
	return s.router
}

// PrintStartupInfo logs the limits the server runs with
func (s *Server) PrintStartupInfo() {
	s.logger.Startup("Default artifact format: %s", s.format)
	s.logger.Startup("Max upload size: %d bytes", s.cfg.Server.MaxUploadBytes)
	s.logger.Startup("Job store: %s (max concurrent: %d)", s.cfg.Jobs.Store, s.cfg.Jobs.MaxConcurrent)
	s.rateLimiter.PrintRateLimitInfo(s.cfg.Service.Name)
}

// CleanupLimiters drops rate limiters of idle clients until ctx ends
func (s *Server) CleanupLimiters(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.rateLimiter.Cleanup(every); removed > 0 {
				s.logger.Debug("Dropped %d idle rate limiters", removed)
			}
		}
	}
}

// limitBody caps request bodies at server.max_upload_bytes
func (s *Server) limitBody() gin.HandlerFunc {
	limit := s.cfg.Server.MaxUploadBytes
	return func(c *gin.Context) {
		if c.Request.Body != nil && limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// healthCheck returns the server health status
func (s *Server) healthCheck(c *gin.Context) {
	if err := s.repo.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"message": "database connection failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"service":      s.cfg.Service.Name,
		"version":      s.cfg.Service.Version,
		"running_jobs": s.jobs.Running(),
	})
}

// Helper methods

func (s *Server) recordAudit(c *gin.Context, req models.CreateAuditLogRequest) {
	req.IPAddress = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()
	s.createAuditLog(context.WithoutCancel(c.Request.Context()), req)
}

func (s *Server) createAuditLog(ctx context.Context, req models.CreateAuditLogRequest) {
	if err := s.repo.Audit.Create(ctx, req.ToAuditLog()); err != nil {
		s.logger.Error("failed to create audit log: %v", err)
	}
}

func (s *Server) parseUUID(id string) (uuid.UUID, error) {
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid UUID format")
	}
	return parsedID, nil
}

func (s *Server) parseFormat(raw string) (imagecodec.Format, error) {
	if raw == "" {
		return s.format, nil
	}
	return imagecodec.ParseFormat(raw)
}
