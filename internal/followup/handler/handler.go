package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"leadflow_backend/internal/followup/archive"
	"leadflow_backend/internal/followup/rules"
	"leadflow_backend/internal/followup/service"
	"leadflow_backend/internal/followup/transport"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"
)

// Handler handles HTTP requests for follow-up rules, reminders and analytics.
type Handler struct {
	rules   *rules.Service
	svc     *service.Service
	archive *archive.Archiver
	val     *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidRuleID    = "invalid rule ID"
	msgInvalidReminder  = "invalid reminder ID"
	msgInvalidLeadID    = "invalid lead ID"
	msgArchiveDisabled  = "analytics archive is not configured"
)

// New creates a new follow-up handler. archiver may be nil when object
// storage is not configured.
func New(rulesSvc *rules.Service, svc *service.Service, archiver *archive.Archiver, val *validator.Validator) *Handler {
	return &Handler{rules: rulesSvc, svc: svc, archive: archiver, val: val}
}

// ListRules retrieves all rules of the caller's company.
// GET /api/v1/followups/rules
func (h *Handler) ListRules(c *gin.Context) {
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.rules.List(c.Request.Context(), companyID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetRule retrieves a rule by ID.
// GET /api/v1/followups/rules/:id
func (h *Handler) GetRule(c *gin.Context) {
	id, ok := parseID(c, msgInvalidRuleID)
	if !ok {
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.rules.GetByID(c.Request.Context(), companyID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// CreateRule creates a new rule.
// POST /api/v1/followups/rules
func (h *Handler) CreateRule(c *gin.Context) {
	var req transport.RuleRequest
	if !h.bindJSON(c, &req) {
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.rules.Create(c.Request.Context(), companyID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// UpdateRule replaces a rule definition.
// PUT /api/v1/followups/rules/:id
func (h *Handler) UpdateRule(c *gin.Context) {
	id, ok := parseID(c, msgInvalidRuleID)
	if !ok {
		return
	}
	var req transport.RuleRequest
	if !h.bindJSON(c, &req) {
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.rules.Update(c.Request.Context(), companyID, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// DeleteRule removes a rule and cancels its open reminders.
// DELETE /api/v1/followups/rules/:id
func (h *Handler) DeleteRule(c *gin.Context) {
	id, ok := parseID(c, msgInvalidRuleID)
	if !ok {
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.rules.Delete(c.Request.Context(), companyID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ToggleRule flips a rule's active flag.
// PATCH /api/v1/followups/rules/:id/toggle-active
func (h *Handler) ToggleRule(c *gin.Context) {
	id, ok := parseID(c, msgInvalidRuleID)
	if !ok {
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.rules.ToggleActive(c.Request.Context(), companyID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ListReminders retrieves reminders, optionally filtered.
// GET /api/v1/followups/reminders
func (h *Handler) ListReminders(c *gin.Context) {
	var req transport.ListRemindersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.svc.ListReminders(c.Request.Context(), companyID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetReminder retrieves a reminder by ID.
// GET /api/v1/followups/reminders/:id
func (h *Handler) GetReminder(c *gin.Context) {
	id, ok := parseID(c, msgInvalidReminder)
	if !ok {
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.svc.GetReminder(c.Request.Context(), companyID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// DispatchReminder sends a pending reminder now.
// POST /api/v1/followups/reminders/:id/dispatch
func (h *Handler) DispatchReminder(c *gin.Context) {
	id, ok := parseID(c, msgInvalidReminder)
	if !ok {
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.svc.Dispatch(c.Request.Context(), companyID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// CompleteReminder marks a reminder as done.
// POST /api/v1/followups/reminders/:id/complete
func (h *Handler) CompleteReminder(c *gin.Context) {
	id, ok := parseID(c, msgInvalidReminder)
	if !ok {
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.svc.Complete(c.Request.Context(), companyID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// SnoozeReminder postpones a reminder.
// POST /api/v1/followups/reminders/:id/snooze
func (h *Handler) SnoozeReminder(c *gin.Context) {
	id, ok := parseID(c, msgInvalidReminder)
	if !ok {
		return
	}
	var req transport.SnoozeRequest
	if !h.bindJSON(c, &req) {
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.svc.Snooze(c.Request.Context(), companyID, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// CancelReminder cancels a reminder.
// POST /api/v1/followups/reminders/:id/cancel
func (h *Handler) CancelReminder(c *gin.Context) {
	id, ok := parseID(c, msgInvalidReminder)
	if !ok {
		return
	}
	var req transport.CancelRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.svc.Cancel(c.Request.Context(), companyID, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// EscalateReminder escalates a sent reminder on demand.
// POST /api/v1/followups/reminders/:id/escalate
func (h *Handler) EscalateReminder(c *gin.Context) {
	id, ok := parseID(c, msgInvalidReminder)
	if !ok {
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.svc.Escalate(c.Request.Context(), companyID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// RecordInteraction stores an outcome for a sent reminder.
// POST /api/v1/followups/reminders/:id/interactions
func (h *Handler) RecordInteraction(c *gin.Context) {
	id, ok := parseID(c, msgInvalidReminder)
	if !ok {
		return
	}
	var req transport.InteractionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.svc.RecordInteraction(c.Request.Context(), companyID, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Summary returns the dashboard summary.
// GET /api/v1/followups/analytics/summary
func (h *Handler) Summary(c *gin.Context) {
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.svc.Summary(c.Request.Context(), companyID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// RuleEffectiveness returns per-rule effectiveness.
// GET /api/v1/followups/analytics/rules
func (h *Handler) RuleEffectiveness(c *gin.Context) {
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.svc.RuleEffectiveness(c.Request.Context(), companyID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Aging returns the aging report of all leads.
// GET /api/v1/followups/aging
func (h *Handler) Aging(c *gin.Context) {
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.svc.Aging(c.Request.Context(), companyID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Sweep runs a manual follow-up pass.
// POST /api/v1/followups/sweep
func (h *Handler) Sweep(c *gin.Context) {
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.svc.Sweep(c.Request.Context(), companyID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// UpsertLead stores a CRM lead snapshot and evaluates the rules for it.
// PUT /api/v1/followups/leads/:id
func (h *Handler) UpsertLead(c *gin.Context) {
	id, ok := parseID(c, msgInvalidLeadID)
	if !ok {
		return
	}
	var req transport.LeadRequest
	if !h.bindJSON(c, &req) {
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.svc.UpsertLead(c.Request.Context(), companyID, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// DeleteLead removes a lead and cancels its open reminders.
// DELETE /api/v1/followups/leads/:id
func (h *Handler) DeleteLead(c *gin.Context) {
	id, ok := parseID(c, msgInvalidLeadID)
	if !ok {
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.svc.DeleteLead(c.Request.Context(), companyID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ListSnapshots lists the days with an archived analytics snapshot.
// GET /api/v1/followups/analytics/snapshots
func (h *Handler) ListSnapshots(c *gin.Context) {
	if h.archive == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, msgArchiveDisabled, nil)
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	dates, err := h.archive.Dates(c.Request.Context(), companyID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"dates": dates})
}

// GetSnapshot returns the archived analytics of one day.
// GET /api/v1/followups/analytics/snapshots/:date
func (h *Handler) GetSnapshot(c *gin.Context) {
	if h.archive == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, msgArchiveDisabled, nil)
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.archive.Load(c.Request.Context(), companyID, c.Param("date"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// DownloadSnapshot returns a short-lived link to the stored snapshot file.
// GET /api/v1/followups/analytics/snapshots/:date/download
func (h *Handler) DownloadSnapshot(c *gin.Context) {
	if h.archive == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, msgArchiveDisabled, nil)
		return
	}
	companyID, ok := mustGetCompanyID(c)
	if !ok {
		return
	}
	result, err := h.archive.DownloadURL(c.Request.Context(), companyID, c.Param("date"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return false
	}
	return true
}

func parseID(c *gin.Context, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msg, nil)
		return uuid.UUID{}, false
	}
	return id, true
}

func mustGetCompanyID(c *gin.Context) (uuid.UUID, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return uuid.UUID{}, false
	}
	return identity.CompanyID(), true
}
