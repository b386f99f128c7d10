// Package api exposes the relay's HTTP surface: JSON-RPC submission,
// the REST transaction/group endpoints, and health.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/warp-contracts/tempo-watchtower/src/ingest"
	"github.com/warp-contracts/tempo-watchtower/src/store"
	"github.com/warp-contracts/tempo-watchtower/src/utils/config"
	"github.com/warp-contracts/tempo-watchtower/src/utils/task"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Server is the REST+JSON-RPC server, run as a task.
type Server struct {
	*task.Task

	httpServer *http.Server
	Router     *gin.Engine

	ingest *ingest.Ingest
	store  *store.Store
	db     *gorm.DB
	rdb    *redis.Client

	// Guards the submission endpoints; nil when unconfigured.
	submitLimiter *rate.Limiter
}

func NewServer(cfg *config.Config, ing *ingest.Ingest, st *store.Store, db *gorm.DB, rdb *redis.Client) (self *Server) {
	self = new(Server)
	self.ingest = ing
	self.store = st
	self.db = db
	self.rdb = rdb

	self.Task = task.NewTask(cfg, "api").
		WithSubtaskFunc(self.run).
		WithOnStop(self.stop)

	if cfg.IsDevelopment {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Api.MaxSubmitRps > 0 {
		self.submitLimiter = rate.NewLimiter(rate.Limit(cfg.Api.MaxSubmitRps), cfg.Api.MaxSubmitRps)
	}

	self.Router = gin.New()
	self.Router.Use(gin.Recovery(), self.limitBody(cfg.Api.MaxBodyBytes))

	self.httpServer = &http.Server{
		Addr:              cfg.Api.Bind,
		Handler:           self.Router,
		ReadHeaderTimeout: time.Duration(cfg.Api.RequestTimeoutMs) * time.Millisecond,
	}

	return
}

func (self *Server) run() (err error) {
	self.Router.POST("/rpc", self.throttleSubmits, self.onRpc)

	v1 := self.Router.Group("v1")
	{
		v1.POST("transactions", self.throttleSubmits, self.onSubmitTransactions)
		v1.GET("transactions", self.onListTransactions)
		v1.GET("transactions/:txHash", self.onGetTransaction)
		v1.DELETE("transactions/:txHash", self.onMarkStale)
		v1.GET("groups", self.onListGroups)
		v1.GET("senders/:sender/groups/:groupId", self.onGetGroup)
		v1.POST("senders/:sender/groups/:groupId/cancel", self.onCancelGroup)
	}

	self.Router.GET("/health", self.onHealth)

	self.Log.WithField("addr", self.httpServer.Addr).Info("Starting API server")

	err = self.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		self.Log.WithError(err).Error("Failed to start API server")
		return
	}
	return nil
}

func (self *Server) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), self.Config.StopTimeout)
	defer cancel()

	err := self.httpServer.Shutdown(ctx)
	if err != nil {
		self.Log.WithError(err).Error("Failed to gracefully shutdown API server")
	}
}

func (self *Server) throttleSubmits(c *gin.Context) {
	if self.submitLimiter != nil && !self.submitLimiter.Allow() {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "submission rate limit exceeded"})
		return
	}
	c.Next()
}

func (self *Server) limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

func (self *Server) onHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	sqlDB, err := self.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "store unreachable"})
		return
	}

	if err = self.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "accelerator unreachable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
