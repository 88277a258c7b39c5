package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ollama/ollama-usage/envconfig"
	"github.com/ollama/ollama-usage/usage"
)

// Reporter collects a fresh usage report.
type Reporter func(ctx context.Context) (usage.Result, error)

type Server struct {
	report Reporter
}

func (s *Server) UsageHandler(c *gin.Context) {
	result, err := s.report(c.Request.Context())
	if err != nil {
		slog.Error("collecting usage", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	for _, w := range result.Warnings {
		slog.Debug("usage warning", "error", w)
	}

	c.JSON(http.StatusOK, result.Report())
}

func (s *Server) GenerateRoutes() http.Handler {
	config := cors.DefaultConfig()
	config.AllowWildcard = true
	config.AllowBrowserExtensions = true
	config.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.Use(cors.New(config))

	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "Ollama usage is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "Ollama usage is running") })
	r.GET("/api/usage", s.UsageHandler)

	return r
}

// Serve answers usage requests on ln until ctx is done.
func Serve(ctx context.Context, ln net.Listener, report Reporter) error {
	s := &Server{report: report}

	srvr := &http.Server{
		Handler: s.GenerateRoutes(),
	}

	stop := context.AfterFunc(ctx, func() {
		srvr.Close()
	})
	defer stop()

	slog.Info("Listening on " + ln.Addr().String())
	if err := srvr.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
