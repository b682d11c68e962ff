package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/procurement-tracker/internal/application/service"
	"github.com/garyjia/procurement-tracker/internal/application/workflow"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	domainwf "github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine    workflow.WorkflowEngine
	documents service.DocumentService
	health    HealthFunc
	logger    Logger
	reserved  map[string]bool
}

// NewHandlers creates a new Handlers instance. Requests naming one of the
// reserved actors are refused.
func NewHandlers(engine workflow.WorkflowEngine, documents service.DocumentService, health HealthFunc, logger Logger, reserved ...string) *Handlers {
	h := &Handlers{
		engine:    engine,
		documents: documents,
		health:    health,
		logger:    logger,
		reserved:  make(map[string]bool, len(reserved)),
	}
	for _, actor := range reserved {
		if actor = strings.ToLower(strings.TrimSpace(actor)); actor != "" {
			h.reserved[actor] = true
		}
	}
	return h
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// TransitionBody is the payload of POST /api/documents/:number/transitions
type TransitionBody struct {
	Status         string `json:"status" binding:"required"`
	Notes          string `json:"notes"`
	ExpectedStatus string `json:"expected_status"`
}

// AllowedResponse lists the statuses reachable from the current one
type AllowedResponse struct {
	DocNumber string            `json:"document_number"`
	Current   domainwf.Status   `json:"current"`
	Allowed   []domainwf.Status `json:"allowed"`
}

// HistoryResponse lists the status changes of one document
type HistoryResponse struct {
	DocNumber string                       `json:"document_number"`
	Records   []*entity.StatusChangeRecord `json:"records"`
}

type errorDetails struct {
	Allowed       []domainwf.Status `json:"allowed,omitempty"`
	MissingFields []string          `json:"missing_fields,omitempty"`
	Rule          string            `json:"rule,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			response.Status = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, Response{
				Success: false,
				Data:    response,
				Error:   err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// GetDocument handles GET /api/documents/:number
func (h *Handlers) GetDocument(c *gin.Context) {
	number := c.Param("number")

	doc, err := h.documents.Get(c.Request.Context(), number)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: doc})
}

// GetHistory handles GET /api/documents/:number/history
func (h *Handlers) GetHistory(c *gin.Context) {
	number := c.Param("number")

	records, err := h.documents.History(c.Request.Context(), number)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if records == nil {
		records = []*entity.StatusChangeRecord{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    HistoryResponse{DocNumber: number, Records: records},
	})
}

// GetAllowed handles GET /api/documents/:number/allowed
func (h *Handlers) GetAllowed(c *gin.Context) {
	number := c.Param("number")

	current, allowed, err := h.engine.AllowedTransitions(c.Request.Context(), number)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if allowed == nil {
		allowed = []domainwf.Status{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    AllowedResponse{DocNumber: number, Current: current, Allowed: allowed},
	})
}

// RequestTransition handles POST /api/documents/:number/transitions
func (h *Handlers) RequestTransition(c *gin.Context) {
	number := c.Param("number")

	actor := strings.TrimSpace(c.GetHeader(ActorHeader))
	if actor == "" {
		c.JSON(http.StatusUnauthorized, Response{
			Success: false,
			Error:   "missing " + ActorHeader + " header",
		})
		return
	}
	if h.reserved[strings.ToLower(actor)] {
		h.logger.Info("Rejected reserved actor", "actor", actor, "path", c.Request.URL.Path)
		c.JSON(http.StatusForbidden, Response{
			Success: false,
			Error:   "actor " + actor + " cannot act over HTTP",
			Code:    string(domainwf.ErrorUnauthorized),
		})
		return
	}

	var body TransitionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body: " + err.Error(),
		})
		return
	}

	result, err := h.engine.RequestTransition(c.Request.Context(), workflow.TransitionRequest{
		DocNumber:      number,
		NewStatus:      domainwf.Status(strings.TrimSpace(body.Status)),
		Notes:          body.Notes,
		Actor:          actor,
		ExpectedStatus: domainwf.Status(strings.TrimSpace(body.ExpectedStatus)),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

func (h *Handlers) writeError(c *gin.Context, err error) {
	kind := domainwf.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"path", c.Request.URL.Path,
			"error", err)
	}

	resp := Response{
		Success: false,
		Error:   err.Error(),
		Code:    string(kind),
	}

	var te *domainwf.TransitionError
	if errors.As(err, &te) {
		if len(te.Allowed) > 0 || len(te.MissingFields) > 0 || te.Rule != "" {
			resp.Details = errorDetails{
				Allowed:       te.Allowed,
				MissingFields: te.MissingFields,
				Rule:          te.Rule,
			}
		}
	}

	c.JSON(status, resp)
}

func statusFor(kind domainwf.ErrorKind) int {
	switch kind {
	case domainwf.ErrorUnauthorized:
		return http.StatusForbidden
	case domainwf.ErrorNotFound:
		return http.StatusNotFound
	case domainwf.ErrorLockTimeout:
		return http.StatusServiceUnavailable
	case domainwf.ErrorInvalidTransition:
		return http.StatusConflict
	case domainwf.ErrorMissingFields, domainwf.ErrorBusinessRuleViolation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
