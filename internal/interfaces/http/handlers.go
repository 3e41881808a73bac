package http

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/invoice-approval/internal/application/service"
	"github.com/garyjia/invoice-approval/internal/application/workflow"
	"github.com/garyjia/invoice-approval/internal/domain/apperror"
	"github.com/garyjia/invoice-approval/internal/domain/entity"
	domainwf "github.com/garyjia/invoice-approval/internal/domain/workflow"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	version  string
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, version string, logger Logger) *Handlers {
	return &Handlers{services: services, version: version, logger: logger}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Database  string `json:"database,omitempty"`
}

// SubmitInvoiceRequest is the body of POST /api/invoices
type SubmitInvoiceRequest struct {
	InvoiceNumber string  `json:"invoiceNumber" binding:"required"`
	Amount        float64 `json:"amount" binding:"required"`
	Currency      string  `json:"currency"`
	Date          string  `json:"date"`
	Project       string  `json:"project"`
	VendorID      string  `json:"vendorId"`
	AssignedPM    string  `json:"assignedPM"`
	Path          string  `json:"path"`
}

// ListInvoicesRequest represents query parameters for listing invoices
type ListInvoicesRequest struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// TransitionRequest is the body of POST /api/invoices/:id/transitions
type TransitionRequest struct {
	Action string `json:"action" binding:"required"`
	Notes  string `json:"notes"`
}

// TransitionResponse reports the outcome of an accepted transition
type TransitionResponse struct {
	NewStatus  string             `json:"newStatus"`
	Idempotent bool               `json:"idempotent"`
	Invoice    *entity.Invoice    `json:"invoice"`
	AuditEntry *entity.AuditEntry `json:"auditEntry,omitempty"`
	Message    *entity.Message    `json:"message,omitempty"`
}

// InvoiceView is an invoice plus the actions its current status admits
type InvoiceView struct {
	*entity.Invoice
	PermittedActions []string `json:"permittedActions"`
}

// SetDelegationRequest is the body of PUT /api/users/:id/delegation
type SetDelegationRequest struct {
	DelegateID   string `json:"delegateId" binding:"required"`
	DurationDays int    `json:"durationDays"`
}

// CreateUserRequest is the body of POST /api/users
type CreateUserRequest struct {
	Username         string   `json:"username" binding:"required"`
	Email            string   `json:"email"`
	Role             string   `json:"role" binding:"required"`
	AssignedProjects []string `json:"assignedProjects"`
}

// AssignProjectsRequest is the body of PUT /api/users/:id/projects
type AssignProjectsRequest struct {
	Projects []string `json:"projects"`
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status, body := errorBody(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err)
	}
	c.AbortWithStatusJSON(status, body)
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
	}
	status := http.StatusOK
	if h.services.Health != nil {
		if err := h.services.Health(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			resp.Status = "unhealthy"
			resp.Database = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}
	c.JSON(status, Response{Success: status == http.StatusOK, Data: resp})
}

// SubmitInvoice handles POST /api/invoices
func (h *Handlers) SubmitInvoice(c *gin.Context) {
	var req SubmitInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var date time.Time
	if req.Date != "" {
		var err error
		if date, err = parseDate(req.Date); err != nil {
			badRequest(c, err)
			return
		}
	}

	inv, err := h.services.Invoices.Submit(c.Request.Context(), actorID(c), service.SubmitInvoiceRequest{
		InvoiceNumber: req.InvoiceNumber,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Date:          date,
		Project:       req.Project,
		VendorID:      req.VendorID,
		AssignedPM:    req.AssignedPM,
		Path:          req.Path,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, inv)
}

// ListInvoices handles GET /api/invoices
func (h *Handlers) ListInvoices(c *gin.Context) {
	var req ListInvoicesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	invoices, err := h.services.Invoices.List(c.Request.Context(), actorID(c), entity.InvoiceFilter{
		Status: req.Status,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if invoices == nil {
		invoices = []*entity.Invoice{}
	}
	ok(c, http.StatusOK, invoices)
}

// GetInvoice handles GET /api/invoices/:id
func (h *Handlers) GetInvoice(c *gin.Context) {
	ctx := c.Request.Context()
	inv, err := h.services.Invoices.Get(ctx, actorID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	view := InvoiceView{Invoice: inv, PermittedActions: []string{}}
	if h.services.Workflow != nil {
		triggers, err := h.services.Workflow.PermittedActions(ctx, actorID(c), inv.ID)
		if err != nil {
			h.fail(c, err)
			return
		}
		view.PermittedActions = triggerNames(triggers)
	}
	ok(c, http.StatusOK, view)
}

// ListMessages handles GET /api/invoices/:id/messages
func (h *Handlers) ListMessages(c *gin.Context) {
	msgs, err := h.services.Invoices.Messages(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if msgs == nil {
		msgs = []*entity.Message{}
	}
	ok(c, http.StatusOK, msgs)
}

// SubmitTransition handles POST /api/invoices/:id/transitions
func (h *Handlers) SubmitTransition(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.services.Workflow.SubmitTransition(c.Request.Context(), workflow.TransitionRequest{
		ActorID:   actorID(c),
		InvoiceID: c.Param("id"),
		Action:    req.Action,
		Notes:     req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	ok(c, http.StatusOK, TransitionResponse{
		NewStatus:  string(result.NewStatus),
		Idempotent: result.Idempotent,
		Invoice:    result.Invoice,
		AuditEntry: result.AuditEntry,
		Message:    result.Message,
	})
}

// ListAudit handles GET /api/invoices/:id/audit
func (h *Handlers) ListAudit(c *gin.Context) {
	entries, err := h.services.Audit.List(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if entries == nil {
		entries = []*entity.AuditEntry{}
	}
	ok(c, http.StatusOK, entries)
}

// ExportAudit handles GET /api/invoices/:id/audit/export
func (h *Handlers) ExportAudit(c *gin.Context) {
	id := c.Param("id")
	var buf bytes.Buffer
	if err := h.services.Audit.Export(c.Request.Context(), actorID(c), id, &buf); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="audit-%s.xlsx"`, id))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// CreateUser handles POST /api/users
func (h *Handlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.services.Users.Create(c.Request.Context(), actorID(c), service.CreateUserRequest{
		Username:         req.Username,
		Email:            req.Email,
		Role:             req.Role,
		AssignedProjects: req.AssignedProjects,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, user)
}

// GetUser handles GET /api/users/:id
func (h *Handlers) GetUser(c *gin.Context) {
	user, err := h.services.Users.Get(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, user)
}

// AssignProjects handles PUT /api/users/:id/projects
func (h *Handlers) AssignProjects(c *gin.Context) {
	var req AssignProjectsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.services.Users.AssignProjects(c.Request.Context(), actorID(c), c.Param("id"), req.Projects)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, user)
}

// SetDelegation handles PUT /api/users/:id/delegation
func (h *Handlers) SetDelegation(c *gin.Context) {
	var req SetDelegationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.services.Delegations.SetDelegation(c.Request.Context(), actorID(c), c.Param("id"), req.DelegateID, req.DurationDays)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// GetDelegation handles GET /api/users/:id/delegation
func (h *Handlers) GetDelegation(c *gin.Context) {
	d, err := h.services.Delegations.Get(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// ClearDelegation handles DELETE /api/users/:id/delegation
func (h *Handlers) ClearDelegation(c *gin.Context) {
	if err := h.services.Delegations.ClearDelegation(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Capabilities handles GET /api/me/capabilities
func (h *Handlers) Capabilities(c *gin.Context) {
	caps, err := h.services.Users.Capabilities(c.Request.Context(), actorID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, caps)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, apperror.New(apperror.KindInvalidArgument, "date must be YYYY-MM-DD or RFC3339, got %q", s)
	}
	return t.UTC(), nil
}

func triggerNames(triggers []domainwf.Trigger) []string {
	out := make([]string, 0, len(triggers))
	for _, t := range triggers {
		out = append(out, string(t))
	}
	return out
}
