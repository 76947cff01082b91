// Package api is the HTTP surface of the order service.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bombily/pkg/logger"
	"bombily/pkg/realtime"
	"bombily/service"
)

type Server struct {
	svc service.IServiceManager
	hub *realtime.Hub
	log logger.ILogger
	now func() time.Time
}

func New(svc service.IServiceManager, hub *realtime.Hub, log logger.ILogger) *Server {
	return &Server{svc: svc, hub: hub, log: log, now: time.Now}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog(), cors())

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.POST("/schedule/resolve", s.resolveSchedule)
		api.GET("/cities", s.listCities)
		api.GET("/cities/:id/shops", s.listShops)
		api.GET("/shops/:id/categories", s.listCategories)
		api.GET("/shops/:id/products", s.listProducts)
		api.GET("/settings", s.getSettings)
	}

	authed := api.Group("", s.identify())
	{
		authed.GET("/ws", s.serveWS)
		authed.GET("/me", s.me)
		authed.PUT("/me/phone", s.setPhone)
		authed.PUT("/me/city", s.setCity)

		authed.POST("/orders", s.createOrder)
		authed.POST("/orders/quote", s.quoteOrder)
		authed.GET("/orders/available", s.listAvailable)
		authed.GET("/orders/mine", s.listMine)
		authed.GET("/orders/:id", s.getOrder)
		authed.GET("/orders/:id/items", s.orderItems)
		for _, ev := range transitionEvents {
			authed.POST("/orders/:id/"+string(ev), s.transition(ev))
		}

		admin := authed.Group("/admin")
		admin.GET("/bootstrap", s.bootstrap)
		admin.GET("/orders", s.listRecent)
		admin.DELETE("/orders/:id", s.deleteOrder)
		admin.PUT("/users/:id/role", s.setRole)
		admin.POST("/cities", s.createCity)
		admin.PUT("/cities/:id/fee", s.setDeliveryFee)
		admin.PUT("/settings/markup", s.setMarkup)
	}

	return r
}

// Run serves until ctx is done, then drains for up to five seconds.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", logger.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	return srv.Shutdown(shutdownCtx)
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)),
		)
	}
}
