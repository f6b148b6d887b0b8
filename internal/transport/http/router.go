package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/cmtonkinson/brain-scheduler/internal/health"
	"github.com/cmtonkinson/brain-scheduler/internal/transport/http/handler"
	"github.com/cmtonkinson/brain-scheduler/internal/transport/http/middleware"
)

// NewRouter wires the full middleware chain and route table.
func NewRouter(logger *slog.Logger, scheduleHandler *handler.ScheduleHandler, queryHandler *handler.QueryHandler, checker *health.Checker, jwksURL string, hmacKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, checker.Liveness(c.Request.Context()))
	})
	r.GET("/readyz", func(c *gin.Context) {
		result := checker.Readiness(c.Request.Context())
		status := http.StatusOK
		if result.Status != "up" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, result)
	})

	auth := middleware.Auth(jwksURL, hmacKey)

	schedules := r.Group("/schedules", auth)
	schedules.POST("", scheduleHandler.Create)
	schedules.GET("", queryHandler.ListSchedules)
	schedules.GET("/:id", queryHandler.GetSchedule)
	schedules.PATCH("/:id", scheduleHandler.Update)
	schedules.DELETE("/:id", scheduleHandler.Delete)
	schedules.POST("/:id/pause", scheduleHandler.Pause)
	schedules.POST("/:id/resume", scheduleHandler.Resume)
	schedules.POST("/:id/run_now", scheduleHandler.RunNow)
	schedules.GET("/:id/executions", queryHandler.ListExecutions)
	schedules.GET("/:id/audit", queryHandler.ListScheduleAudit)
	schedules.GET("/:id/predicate_audit", queryHandler.ListPredicateAudit)

	executions := r.Group("/executions", auth)
	executions.GET("/:id", queryHandler.GetExecution)
	executions.GET("/:id/audit", queryHandler.ListExecutionAudit)

	return r
}
