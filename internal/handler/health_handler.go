package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/edukit/examgate-backend/internal/response"
)

// HealthHandler reports process liveness and backing-store reachability.
type HealthHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(pool *pgxpool.Pool, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{
		pool:      pool,
		rdb:       rdb,
		startTime: time.Now(),
	}
}

// Check godoc
// GET /health
// Pings both stores; reports degraded components instead of failing outright
// so load balancers can still read uptime.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()

	dbStatus := "ok"
	if err := h.pool.Ping(ctx); err != nil {
		dbStatus = "unreachable"
	}
	cacheStatus := "ok"
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		cacheStatus = "unreachable"
	}

	response.Success(c, gin.H{
		"status":   "ok",
		"uptime":   time.Since(h.startTime).Round(time.Second).String(),
		"database": dbStatus,
		"cache":    cacheStatus,
	})
}
