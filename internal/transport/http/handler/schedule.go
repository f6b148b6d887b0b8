package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cmtonkinson/brain-scheduler/internal/command"
	"github.com/cmtonkinson/brain-scheduler/internal/domain"
	"github.com/cmtonkinson/brain-scheduler/internal/transport/http/middleware"
)

// ScheduleHandler exposes the schedule command service (C9) over HTTP.
type ScheduleHandler struct {
	svc    *command.Service
	logger *slog.Logger
}

func NewScheduleHandler(svc *command.Service, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{svc: svc, logger: logger.With("component", "schedule_handler")}
}

// definitionRequest is the wire shape of ScheduleDefinition — exactly the
// fields for the request's schedule_type must be populated; the rest are
// left zero and ignored by validateDefinition downstream.
type definitionRequest struct {
	RunAt *time.Time `json:"run_at"`

	IntervalCount int        `json:"interval_count"`
	IntervalUnit  string     `json:"interval_unit"`
	AnchorAt      *time.Time `json:"anchor_at"`

	RRule            string     `json:"rrule"`
	CalendarAnchorAt *time.Time `json:"calendar_anchor_at"`

	PredicateSubject        string  `json:"predicate_subject"`
	PredicateOperator       string  `json:"predicate_operator"`
	PredicateValue          *string `json:"predicate_value"`
	EvaluationIntervalCount int     `json:"evaluation_interval_count"`
	EvaluationIntervalUnit  string  `json:"evaluation_interval_unit"`
}

func (d definitionRequest) toDomain() domain.ScheduleDefinition {
	return domain.ScheduleDefinition{
		RunAt:                   d.RunAt,
		IntervalCount:           d.IntervalCount,
		IntervalUnit:            domain.IntervalUnit(d.IntervalUnit),
		AnchorAt:                d.AnchorAt,
		RRule:                   d.RRule,
		CalendarAnchorAt:        d.CalendarAnchorAt,
		PredicateSubject:        d.PredicateSubject,
		PredicateOperator:       domain.PredicateOperator(d.PredicateOperator),
		PredicateValue:          d.PredicateValue,
		EvaluationIntervalCount: d.EvaluationIntervalCount,
		EvaluationIntervalUnit:  domain.EvalIntervalUnit(d.EvaluationIntervalUnit),
	}
}

type createScheduleRequest struct {
	Summary         string             `json:"summary" binding:"required"`
	Details         *string            `json:"details"`
	OriginReference *string            `json:"origin_reference"`
	ScheduleType    string             `json:"schedule_type" binding:"required,oneof=one_time interval calendar_rule conditional"`
	Timezone        string             `json:"timezone" binding:"required"`
	Definition      definitionRequest  `json:"definition"`
	RequestID       *string            `json:"request_id"`
}

func scheduleResponse(s *domain.Schedule) gin.H {
	return gin.H{
		"id":             s.ID,
		"task_intent_id": s.TaskIntentID,
		"schedule_type":  s.ScheduleType,
		"state":          s.State,
		"timezone":       s.Timezone,
		"next_run_at":    s.NextRunAt,
		"last_run_at":    s.LastRunAt,
		"failure_count":  s.FailureCount,
		"created_at":     s.CreatedAt,
		"updated_at":     s.UpdatedAt,
	}
}

// Create handles POST /schedules.
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	actor := middleware.ActorFromContext(c)
	in := command.CreateScheduleInput{
		Schedule: domain.ScheduleCreateInput{
			Intent: domain.TaskIntentCreateInput{
				Summary:          req.Summary,
				Details:          req.Details,
				OriginReference:  req.OriginReference,
				CreatorActorType: actor.ActorType,
				CreatorActorID:   actor.ActorID,
				CreatorChannel:   actor.Channel,
			},
			ScheduleType: domain.ScheduleType(req.ScheduleType),
			Timezone:     req.Timezone,
			Definition:   req.Definition.toDomain(),
		},
		RequestID: req.RequestID,
	}

	sched, err := h.svc.CreateSchedule(c.Request.Context(), actor, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, scheduleResponse(sched))
}

type updateScheduleRequest struct {
	Timezone   *string            `json:"timezone"`
	Definition *definitionRequest `json:"definition"`
	RequestID  *string            `json:"request_id"`
}

// Update handles PATCH /schedules/:id.
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req updateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	in := command.UpdateScheduleInput{Timezone: req.Timezone, RequestID: req.RequestID}
	if req.Definition != nil {
		def := req.Definition.toDomain()
		in.Definition = &def
	}

	actor := middleware.ActorFromContext(c)
	sched, err := h.svc.UpdateSchedule(c.Request.Context(), actor, c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, scheduleResponse(sched))
}

// Pause handles POST /schedules/:id/pause.
func (h *ScheduleHandler) Pause(c *gin.Context) {
	actor := middleware.ActorFromContext(c)
	sched, err := h.svc.PauseSchedule(c.Request.Context(), actor, c.Param("id"), nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, scheduleResponse(sched))
}

// Resume handles POST /schedules/:id/resume.
func (h *ScheduleHandler) Resume(c *gin.Context) {
	actor := middleware.ActorFromContext(c)
	sched, err := h.svc.ResumeSchedule(c.Request.Context(), actor, c.Param("id"), nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, scheduleResponse(sched))
}

// Delete handles DELETE /schedules/:id — cancels, never hard-deletes.
func (h *ScheduleHandler) Delete(c *gin.Context) {
	actor := middleware.ActorFromContext(c)
	sched, err := h.svc.DeleteSchedule(c.Request.Context(), actor, c.Param("id"), nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, scheduleResponse(sched))
}

type runNowRequest struct {
	RequestedFor *time.Time `json:"requested_for"`
	RequestID    *string    `json:"request_id"`
}

// RunNow handles POST /schedules/:id/run_now.
func (h *ScheduleHandler) RunNow(c *gin.Context) {
	var req runNowRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
	}

	actor := middleware.ActorFromContext(c)
	traceID, err := h.svc.RunNow(c.Request.Context(), actor, c.Param("id"), command.RunNowInput{
		RequestedFor: req.RequestedFor,
		RequestID:    req.RequestID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"trace_id": traceID})
}
