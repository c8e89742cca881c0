// Package health provides health check endpoints for the Aster service.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Response represents a health check response
type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

// Checker provides health check functionality
type Checker struct {
	db        *sqlx.DB
	redis     *redis.Client
	startTime time.Time
	version   string
	mu        sync.RWMutex
	ready     bool
}

// NewChecker creates a new health checker
func NewChecker(db *sqlx.DB, redisClient *redis.Client, version string) *Checker {
	return &Checker{
		db:        db,
		redis:     redisClient,
		startTime: time.Now(),
		version:   version,
		ready:     false,
	}
}

// SetReady marks the service as ready to accept traffic
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// IsReady returns whether the service is ready
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

func (c *Checker) checkDatabase(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.db.PingContext(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Latency: time.Since(start).String()}
}

func (c *Checker) checkRedis(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Latency: time.Since(start).String()}
}

// Check runs all health checks and aggregates the result
func (c *Checker) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	checks := map[string]CheckResult{
		"database": c.checkDatabase(ctx),
		"redis":    c.checkRedis(ctx),
	}

	status := StatusHealthy
	for _, result := range checks {
		if result.Status == StatusUnhealthy {
			status = StatusUnhealthy
			break
		}
	}

	return Response{
		Status:     status,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).String(),
		Checks:     checks,
		ReportedAt: time.Now(),
	}
}

// RegisterRoutes registers the health endpoints
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/health/live", c.handleLive)
	e.GET("/health/ready", c.handleReady)
	e.GET("/health", c.handleHealth)
}

func (c *Checker) handleLive(ec echo.Context) error {
	return ec.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

func (c *Checker) handleReady(ec echo.Context) error {
	if !c.IsReady() {
		return ec.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
	return ec.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

func (c *Checker) handleHealth(ec echo.Context) error {
	response := c.Check(ec.Request().Context())
	code := http.StatusOK
	if response.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return ec.JSON(code, response)
}
