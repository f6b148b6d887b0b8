package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
	"github.com/cmtonkinson/brain-scheduler/internal/query"
)

// QueryHandler exposes the schedule query service (C10) over HTTP.
type QueryHandler struct {
	svc    *query.Service
	logger *slog.Logger
}

func NewQueryHandler(svc *query.Service, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{svc: svc, logger: logger.With("component", "query_handler")}
}

func pageParams(c *gin.Context) (cursor string, limit int) {
	cursor = c.Query("cursor")
	limit, _ = strconv.Atoi(c.Query("limit"))
	return cursor, limit
}

// GetSchedule handles GET /schedules/:id.
func (h *QueryHandler) GetSchedule(c *gin.Context) {
	sched, err := h.svc.GetSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, scheduleResponse(sched))
}

// ListSchedules handles GET /schedules.
func (h *QueryHandler) ListSchedules(c *gin.Context) {
	cursor, limit := pageParams(c)

	var filter domain.ScheduleFilter
	if v := c.Query("state"); v != "" {
		s := domain.ScheduleState(v)
		filter.State = &s
	}
	if v := c.Query("schedule_type"); v != "" {
		t := domain.ScheduleType(v)
		filter.ScheduleType = &t
	}

	result, err := h.svc.ListSchedules(c.Request.Context(), filter, cursor, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]gin.H, len(result.Schedules))
	for i, s := range result.Schedules {
		items[i] = scheduleResponse(s)
	}
	c.JSON(http.StatusOK, gin.H{"schedules": items, "next_cursor": result.NextCursor})
}

// GetExecution handles GET /executions/:id.
func (h *QueryHandler) GetExecution(c *gin.Context) {
	exec, err := h.svc.GetExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

// ListExecutions handles GET /schedules/:id/executions.
func (h *QueryHandler) ListExecutions(c *gin.Context) {
	cursor, limit := pageParams(c)
	scheduleID := c.Param("id")

	result, err := h.svc.ListExecutions(c.Request.Context(), domain.ExecutionFilter{ScheduleID: &scheduleID}, cursor, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": result.Executions, "next_cursor": result.NextCursor})
}

// ListScheduleAudit handles GET /schedules/:id/audit.
func (h *QueryHandler) ListScheduleAudit(c *gin.Context) {
	cursor, limit := pageParams(c)

	result, err := h.svc.ListScheduleAudit(c.Request.Context(), c.Param("id"), cursor, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": result.Rows, "next_cursor": result.NextCursor})
}

// ListExecutionAudit handles GET /executions/:id/audit.
func (h *QueryHandler) ListExecutionAudit(c *gin.Context) {
	cursor, limit := pageParams(c)

	result, err := h.svc.ListExecutionAudit(c.Request.Context(), c.Param("id"), cursor, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": result.Rows, "next_cursor": result.NextCursor})
}

// ListPredicateAudit handles GET /schedules/:id/predicate_audit — the
// primary operator-visible surface for debugging why a conditional
// schedule did or didn't fire.
func (h *QueryHandler) ListPredicateAudit(c *gin.Context) {
	cursor, limit := pageParams(c)

	result, err := h.svc.ListPredicateAudit(c.Request.Context(), c.Param("id"), cursor, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": result.Rows, "next_cursor": result.NextCursor})
}
