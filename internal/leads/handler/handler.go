package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"lead_dispatch_backend/internal/dispatch"
	"lead_dispatch_backend/internal/leads/domain"
	"lead_dispatch_backend/internal/leads/lifecycle"
	"lead_dispatch_backend/internal/leads/repository"
	"lead_dispatch_backend/internal/leads/transport"
	"lead_dispatch_backend/platform/apperr"
	"lead_dispatch_backend/platform/httpkit"
	"lead_dispatch_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LeadOrchestrator is the set of lifecycle and dispatch operations exposed over HTTP.
type LeadOrchestrator interface {
	Get(ctx context.Context, leadID uuid.UUID) (domain.Lead, error)
	CreateLead(ctx context.Context, in lifecycle.NewLeadInput, actor lifecycle.Actor) (domain.Lead, error)
	Timeline(ctx context.Context, leadID, clientID uuid.UUID) ([]repository.TimelineEvent, error)
	Transition(ctx context.Context, leadID uuid.UUID, to domain.Stage, opts lifecycle.TransitionOptions) (domain.Lead, error)
	CloseLead(ctx context.Context, leadID uuid.UUID, reason domain.CloseReason, notes *string, actor lifecycle.Actor) (domain.Lead, error)
	Reopen(ctx context.Context, leadID uuid.UUID, actor lifecycle.Actor) (domain.Lead, error)
	StartAutomation(ctx context.Context, leadID uuid.UUID, actor lifecycle.Actor) (domain.Lead, error)
	PauseAutomation(ctx context.Context, leadID uuid.UUID, actor lifecycle.Actor) (domain.Lead, error)
	FailAutomation(ctx context.Context, leadID uuid.UUID, message string, actor lifecycle.Actor) (domain.Lead, error)
	MarkSalesReady(ctx context.Context, leadID uuid.UUID, assignTo *uuid.UUID, actor lifecycle.Actor) (domain.Lead, error)
	ListAttempts(ctx context.Context, leadID uuid.UUID) ([]dispatch.Attempt, error)
	RetryAttempt(ctx context.Context, clientID, attemptID uuid.UUID) (dispatch.AttemptResult, error)
	RetrySweep(ctx context.Context) ([]dispatch.AttemptResult, error)
	ActivePipeline(ctx context.Context, clientID uuid.UUID, limit int) ([]domain.Lead, error)
	SalesReady(ctx context.Context, clientID uuid.UUID, limit int) ([]domain.Lead, error)
}

type Handler struct {
	orch LeadOrchestrator
	val  *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgClientRequired   = "token is not scoped to a client"
	msgLeadNotFound     = "lead not found"
)

func New(orch LeadOrchestrator, val *validator.Validator) *Handler {
	return &Handler{orch: orch, val: val}
}

// RegisterRoutes mounts the lead routes on the /leads group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/pipeline/active", h.ListActivePipeline)
	rg.GET("/pipeline/sales-ready", h.ListSalesReady)
	rg.GET("/:id", h.GetByID)
	rg.POST("/:id/transition", h.Transition)
	rg.POST("/:id/close", h.Close)
	rg.POST("/:id/reopen", h.Reopen)
	rg.POST("/:id/sales-ready", h.MarkSalesReady)
	rg.POST("/:id/automation/start", h.StartAutomation)
	rg.POST("/:id/automation/pause", h.PauseAutomation)
	rg.POST("/:id/automation/fail", h.FailAutomation)
	rg.GET("/:id/timeline", h.Timeline)
	rg.GET("/:id/dispatch-attempts", h.ListDispatchAttempts)
}

// RegisterDispatchRoutes mounts the /dispatch group.
func (h *Handler) RegisterDispatchRoutes(rg *gin.RouterGroup) {
	rg.POST("/attempts/:attemptId/retry", h.RetryAttempt)
}

// RegisterAdminRoutes mounts operational routes on the admin group.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/dispatch/retry-sweep", h.RetrySweep)
}

func (h *Handler) ListActivePipeline(c *gin.Context) {
	h.listPipeline(c, h.orch.ActivePipeline)
}

func (h *Handler) ListSalesReady(c *gin.Context) {
	h.listPipeline(c, h.orch.SalesReady)
}

type pipelineLister func(ctx context.Context, clientID uuid.UUID, limit int) ([]domain.Lead, error)

func (h *Handler) listPipeline(c *gin.Context, list pipelineLister) {
	clientID, ok := mustClientID(c)
	if !ok {
		return
	}

	var query transport.ListPipelineQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return
	}
	if !h.validate(c, query) {
		return
	}

	leads, err := list(c.Request.Context(), clientID, query.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadListResponse(leads))
}

func (h *Handler) Create(c *gin.Context) {
	clientID, ok := mustClientID(c)
	if !ok {
		return
	}

	var req transport.CreateLeadRequest
	if !h.bind(c, &req) {
		return
	}

	lead, err := h.orch.CreateLead(c.Request.Context(), lifecycle.NewLeadInput{
		ClientID:   clientID,
		CampaignID: req.CampaignID,
		FirstName:  strings.TrimSpace(req.FirstName),
		LastName:   strings.TrimSpace(req.LastName),
		Phone:      strings.TrimSpace(req.Phone),
		Email:      req.Email,
	}, actorFrom(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToLeadResponse(lead))
}

func (h *Handler) GetByID(c *gin.Context) {
	lead, ok := h.loadOwnedLead(c)
	if !ok {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) Transition(c *gin.Context) {
	lead, ok := h.loadOwnedLead(c)
	if !ok {
		return
	}

	var req transport.TransitionRequest
	if !h.bind(c, &req) {
		return
	}

	stage, _ := domain.ParseStage(req.Stage)
	opts := lifecycle.TransitionOptions{Actor: actorFrom(c)}
	opts.Reason = strings.TrimSpace(req.Reason)
	opts.CloseNotes = req.CloseNotes
	opts.AssignTo = req.AssignTo
	if req.CloseReason != "" {
		reason, _ := domain.ParseCloseReason(req.CloseReason)
		opts.CloseReason = &reason
	}

	updated, err := h.orch.Transition(c.Request.Context(), lead.ID, stage, opts)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(updated))
}

// Close always answers 200 once the stage change is committed; delivery runs after it.
func (h *Handler) Close(c *gin.Context) {
	lead, ok := h.loadOwnedLead(c)
	if !ok {
		return
	}

	var req transport.CloseLeadRequest
	if !h.bind(c, &req) {
		return
	}
	reason, _ := domain.ParseCloseReason(req.CloseReason)

	updated, err := h.orch.CloseLead(c.Request.Context(), lead.ID, reason, req.CloseNotes, actorFrom(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(updated))
}

func (h *Handler) Reopen(c *gin.Context) {
	h.runCommand(c, h.orch.Reopen)
}

func (h *Handler) StartAutomation(c *gin.Context) {
	h.runCommand(c, h.orch.StartAutomation)
}

func (h *Handler) PauseAutomation(c *gin.Context) {
	h.runCommand(c, h.orch.PauseAutomation)
}

func (h *Handler) FailAutomation(c *gin.Context) {
	lead, ok := h.loadOwnedLead(c)
	if !ok {
		return
	}

	var req transport.FailAutomationRequest
	if !h.bind(c, &req) {
		return
	}

	updated, err := h.orch.FailAutomation(c.Request.Context(), lead.ID, req.Error, actorFrom(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(updated))
}

func (h *Handler) MarkSalesReady(c *gin.Context) {
	lead, ok := h.loadOwnedLead(c)
	if !ok {
		return
	}

	var req transport.SalesReadyRequest
	if !h.bindOptional(c, &req) {
		return
	}

	updated, err := h.orch.MarkSalesReady(c.Request.Context(), lead.ID, req.AssignTo, actorFrom(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(updated))
}

func (h *Handler) Timeline(c *gin.Context) {
	lead, ok := h.loadOwnedLead(c)
	if !ok {
		return
	}

	items, err := h.orch.Timeline(c.Request.Context(), lead.ID, lead.ClientID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToTimelineResponse(items))
}

func (h *Handler) ListDispatchAttempts(c *gin.Context) {
	lead, ok := h.loadOwnedLead(c)
	if !ok {
		return
	}

	attempts, err := h.orch.ListAttempts(c.Request.Context(), lead.ID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToDispatchAttemptListResponse(attempts))
}

func (h *Handler) RetryAttempt(c *gin.Context) {
	clientID, ok := mustClientID(c)
	if !ok {
		return
	}
	attemptID, err := uuid.Parse(c.Param("attemptId"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return
	}

	result, err := h.orch.RetryAttempt(c.Request.Context(), clientID, attemptID)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.RetryAttemptResponse{Attempt: transport.ToDispatchAttemptResponse(result.Attempt)}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	httpkit.OK(c, resp)
}

func (h *Handler) RetrySweep(c *gin.Context) {
	results, err := h.orch.RetrySweep(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, dispatch.SummarizeSweep(results))
}

type leadCommand func(ctx context.Context, leadID uuid.UUID, actor lifecycle.Actor) (domain.Lead, error)

func (h *Handler) runCommand(c *gin.Context, cmd leadCommand) {
	lead, ok := h.loadOwnedLead(c)
	if !ok {
		return
	}

	updated, err := cmd(c.Request.Context(), lead.ID, actorFrom(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(updated))
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return false
	}
	return h.validate(c, req)
}

// bindOptional accepts an absent body, whatever the transfer encoding.
func (h *Handler) bindOptional(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return false
	}
	return h.validate(c, req)
}

func (h *Handler) validate(c *gin.Context, req any) bool {
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgValidationFailed).WithDetails(validator.Describe(err)))
		return false
	}
	return true
}

// loadOwnedLead resolves :id and hides leads that belong to another client.
func (h *Handler) loadOwnedLead(c *gin.Context) (domain.Lead, bool) {
	clientID, ok := mustClientID(c)
	if !ok {
		return domain.Lead{}, false
	}
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return domain.Lead{}, false
	}

	lead, err := h.orch.Get(c.Request.Context(), leadID)
	if err == nil && lead.ClientID != clientID {
		err = apperr.NotFound(msgLeadNotFound)
	}
	if httpkit.HandleError(c, err) {
		return domain.Lead{}, false
	}
	return lead, true
}

func mustClientID(c *gin.Context) (uuid.UUID, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return uuid.Nil, false
	}
	clientID, ok := identity.ClientID()
	if !ok {
		httpkit.HandleError(c, apperr.Forbidden(msgClientRequired).WithCode("client_scope_required"))
		return uuid.Nil, false
	}
	return clientID, true
}

func actorFrom(c *gin.Context) lifecycle.Actor {
	identity := httpkit.GetIdentity(c)
	if !identity.IsAuthenticated() {
		return lifecycle.SystemActor
	}
	return lifecycle.Actor{Type: repository.ActorTypeUser, Name: identity.UserID().String()}
}
