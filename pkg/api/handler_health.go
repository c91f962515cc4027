package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/umami-labs/brigade/pkg/database"
	"github.com/umami-labs/brigade/pkg/version"
)

const (
	healthStatusHealthy     = "healthy"
	healthStatusConstrained = "constrained"
	healthStatusUnhealthy   = "unhealthy"
)

// healthHandler handles GET /health. Resource pressure reports
// "constrained" (still 200); only a failing database is unhealthy, so the
// orchestrator never restarts the server for an external condition it cannot
// fix.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	res := s.monitor.Status()
	status := healthStatusHealthy
	if !res.Healthy || s.monitor.Degraded() {
		status = healthStatusConstrained
	}

	body := gin.H{
		"status":    status,
		"version":   version.GitCommit,
		"resources": res,
		"degraded":  s.monitor.Degraded(),
	}

	httpStatus := http.StatusOK
	if s.db != nil {
		dbHealth, err := database.Health(reqCtx, s.db)
		body["database"] = dbHealth
		if err != nil {
			body["status"] = healthStatusUnhealthy
			body["error"] = err.Error()
			httpStatus = http.StatusServiceUnavailable
		}
	}
	c.JSON(httpStatus, body)
}
