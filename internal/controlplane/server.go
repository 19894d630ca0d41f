// Package controlplane exposes a small read-only HTTP API over the
// running connector: cached quotes, position/order snapshots and health.
// It never submits transactions; trading stays in-process only.
package controlplane

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/perpdesk/goperp/internal/domain"
	"github.com/perpdesk/goperp/internal/exchange"
)

// Server wraps an exchange with a read-only JSON API.
type Server struct {
	exch exchange.Exchange
	srv  *http.Server
}

// New builds a control-plane server over the given exchange.
func New(exch exchange.Exchange) *Server {
	return &Server{exch: exch}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"exchange": s.exch.Name(),
			"time":     time.Now().UTC(),
		})
	}
	r.GET("/healthz", health)

	api := r.Group("/api")
	api.GET("/health", health)
	api.GET("/quotes", s.handleQuote)
	api.GET("/positions", s.handlePositions)
	api.GET("/orders", s.handleOrders)
	return r
}

func (s *Server) handleQuote(c *gin.Context) {
	pair := domain.Pair(c.Query("pair"))
	if pair == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pair query parameter is required"})
		return
	}
	quote, ok := s.exch.Quote(pair)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no quote cached for pair"})
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.exch.Positions()})
}

func (s *Server) handleOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"orders": s.exch.Orders()})
}

// Start begins serving on addr. Blocks until the listener fails.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
