// Package httpserver exposes the engine over HTTP/JSON: commands,
// queries, health, and the prometheus endpoint. Caller identity rides in
// the X-Account-Id header; authenticating it is someone else's job.
package httpserver

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"njord/service"
)

type Server struct {
	router *gin.Engine
	svc    *service.Service
	log    *zap.Logger
}

func New(svc *service.Service, reg *prometheus.Registry, log *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(ginzap.Ginzap(log, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(log, true))

	s := &Server{router: router, svc: svc, log: log}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	{
		v1.POST("/orders", s.placeOrders)
		v1.POST("/orders/cancel", s.cancelOrders)
		v1.POST("/claims/coins", s.claimCoins)
		v1.POST("/claims/items", s.claimItems)
		v1.POST("/claims/all", s.claimAll)

		v1.PUT("/admin/items", s.setItemConfigs)
		v1.PUT("/admin/max-orders-per-price", s.setMaxOrders)
		v1.PUT("/admin/fees", s.setFees)
		v1.POST("/admin/royalty/refresh", s.refreshRoyalty)

		v1.GET("/items/:item/best", s.bestPrices)
		v1.GET("/items/:item/levels/:side/:price", s.ordersAtPrice)
		v1.GET("/items/:item/node/:side/:price", s.levelNode)
		v1.GET("/orders/:id/maker", s.makerOf)
		v1.GET("/claims/coins", s.coinsClaimable)
		v1.GET("/claims/items", s.itemsClaimable)
	}
	return s
}

// Handler returns the router; tests drive it through httptest.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Run(addr string) error {
	s.log.Info("http server listening", zap.String("addr", addr))
	return s.router.Run(addr)
}
