// Package httpapi serves the sync API over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/common"
	"github.com/dmitrijs2005/papershelf/internal/logging"
	"github.com/dmitrijs2005/papershelf/internal/server/models"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type UserService interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*api.Token, error)
	Authenticate(token string) (string, error)
}

type SyncService interface {
	Snapshot(ctx context.Context, userID string) (*api.Snapshot, error)
	Incremental(ctx context.Context, userID string, req *api.IncrementalRequest) (*api.IncrementalResponse, error)
	Status(ctx context.Context, userID string) (*api.Status, error)
	Create(ctx context.Context, userID, origin string, e api.Entity, rec api.Record) (api.Record, error)
	Update(ctx context.Context, userID, origin string, e api.Entity, id int64, patch api.Record) (api.Record, error)
	Delete(ctx context.Context, userID, origin string, e api.Entity, id int64) error
	PaperPDFURL(ctx context.Context, userID string, paperID int64) (string, error)
	PaperPDFUpload(ctx context.Context, userID, origin string, paperID int64) (*api.PDFUpload, error)
}

const shutdownTimeout = 5 * time.Second

type Server struct {
	address string
	users   UserService
	sync    SyncService
	logger  logging.Logger
}

func NewServer(a string, l logging.Logger, us UserService, ss SyncService) *Server {
	return &Server{
		address: a,
		logger:  l.With("module", "http_server"),
		users:   us,
		sync:    ss,
	}
}

// Router builds the gin engine. Everything under /api except ping and the
// auth endpoints requires a bearer token.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Client-Id"},
		ExposeHeaders: []string{"Location"},
	}))

	pub := r.Group("/api")
	{
		pub.GET("/ping", s.ping)
		pub.POST("/auth/register", s.register)
		pub.POST("/auth/token", s.login)
	}

	v1 := r.Group("/api")
	v1.Use(s.auth())
	{
		v1.GET("/sync/full", s.snapshot)
		v1.POST("/sync/incremental", s.incremental)
		v1.GET("/sync/status", s.status)

		v1.GET("/papers/:id/pdf", s.paperPDF)
		v1.POST("/papers/:id/pdf", s.paperPDFUpload)

		v1.POST("/:entity", s.create)
		v1.PATCH("/:entity/:id", s.update)
		v1.DELETE("/:entity/:id", s.delete)
	}
	return r
}

func (s *Server) Run(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	var code int
	switch {
	case errors.Is(err, common.ErrorValidation):
		code = http.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		code = http.StatusUnauthorized
	case errors.Is(err, common.ErrorNotFound):
		code = http.StatusNotFound
	case errors.Is(err, common.ErrorAlreadyExists):
		code = http.StatusConflict
	default:
		s.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, api.ErrorBody{Error: "internal error"})
		return
	}
	c.AbortWithStatusJSON(code, api.ErrorBody{Error: err.Error()})
}
