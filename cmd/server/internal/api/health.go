package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	serviceName    = "SPM Agent API"
	serviceVersion = "0.1.0"
)

// HealthCheckResponse 存活探针响应
type HealthCheckResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
	Env       string    `json:"env,omitempty"`
}

// ReadinessCheck 单项就绪检查结果
type ReadinessCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // ok, fail
	Error  string `json:"error,omitempty"`
}

// ReadinessCheckResponse 就绪探针响应
type ReadinessCheckResponse struct {
	Ready     bool             `json:"ready"`
	Checks    []ReadinessCheck `json:"checks"`
	Timestamp time.Time        `json:"timestamp"`
}

// Pinger 可探测的依赖（数据库等）
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthCheckHandler 返回存活探针
func healthCheckHandler(env string, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthCheckResponse{
			Status:    "healthy",
			Service:   serviceName,
			Version:   serviceVersion,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			Timestamp: time.Now(),
			Env:       env,
		})
	}
}

// apiHealthHandler GET /api/health
func apiHealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readinessCheckHandler 逐项探测依赖，任一失败返回 503
func readinessCheckHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := []ReadinessCheck{}
		allReady := true

		if db != nil {
			check := ReadinessCheck{Name: "database", Status: "ok"}
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			if err := db.Ping(ctx); err != nil {
				check.Status = "fail"
				check.Error = err.Error()
				allReady = false
			}
			cancel()
			checks = append(checks, check)
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, ReadinessCheckResponse{
			Ready:     allReady,
			Checks:    checks,
			Timestamp: time.Now(),
		})
	}
}
