// README: Safety handlers: alerts and reports for users, review endpoints for admins.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"giftwave/internal/apperr"
	"giftwave/internal/http/middleware"
	"giftwave/internal/modules/safety"
	"giftwave/internal/types"
)

type Safety interface {
	RaiseAlert(ctx context.Context, cmd safety.RaiseAlertCommand) (*safety.Alert, error)
	ListAlerts(ctx context.Context, f safety.AlertFilter) ([]*safety.Alert, error)
	ResolveAlert(ctx context.Context, cmd safety.ResolveAlertCommand) (*safety.Alert, error)
	SubmitReport(ctx context.Context, cmd safety.SubmitReportCommand) (*safety.Report, error)
	ListReports(ctx context.Context, f safety.ReportFilter) ([]*safety.Report, error)
	ReviewReport(ctx context.Context, cmd safety.ReviewReportCommand) (*safety.Report, error)
}

type SafetyHandler struct {
	safety Safety
}

func NewSafetyHandler(svc Safety) *SafetyHandler {
	return &SafetyHandler{safety: svc}
}

type alertReq struct {
	AlertType   string       `json:"alertType" binding:"required,oneof=panic suspicious delay dispute"`
	OrderID     string       `json:"orderId" binding:"omitempty,max=64"`
	Location    *types.Point `json:"location"`
	Description string       `json:"description" binding:"required,max=1000"`
}

type resolveAlertReq struct {
	AdminResponse string `json:"adminResponse" binding:"required"`
}

type reportReq struct {
	ReportedUserID string   `json:"reportedUserId" binding:"required,max=64"`
	ReportType     string   `json:"reportType" binding:"required,oneof=misconduct safety fraud harassment other"`
	Description    string   `json:"description" binding:"required,max=1000"`
	OrderID        string   `json:"orderId" binding:"omitempty,max=64"`
	Evidence       []string `json:"evidence" binding:"max=5,dive,omitempty,httpurl"`
}

type reviewReportReq struct {
	Status     string `json:"status" binding:"required,oneof=underReview resolved dismissed"`
	AdminNotes string `json:"adminNotes" binding:"max=1000"`
}

func (h *SafetyHandler) RaiseAlert(c *gin.Context) {
	var req alertReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	a, err := h.safety.RaiseAlert(c.Request.Context(), safety.RaiseAlertCommand{
		UserID:      middleware.CallerID(c),
		Type:        safety.AlertType(req.AlertType),
		OrderID:     types.ID(req.OrderID),
		Location:    req.Location,
		Description: req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"alert": a})
}

func (h *SafetyHandler) MyAlerts(c *gin.Context) {
	h.listAlerts(c, safety.AlertFilter{UserID: middleware.CallerID(c)})
}

// Alerts lists every alert for admins; ?open=true keeps unresolved ones.
func (h *SafetyHandler) Alerts(c *gin.Context) {
	open, err := strconv.ParseBool(c.DefaultQuery("open", "false"))
	if err != nil {
		writeError(c, apperr.Validation("open", "open must be true or false"))
		return
	}
	h.listAlerts(c, safety.AlertFilter{Unresolved: open})
}

func (h *SafetyHandler) listAlerts(c *gin.Context, f safety.AlertFilter) {
	alerts, err := h.safety.ListAlerts(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"alerts": nonNil(alerts)})
}

func (h *SafetyHandler) ResolveAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req resolveAlertReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	a, err := h.safety.ResolveAlert(c.Request.Context(), safety.ResolveAlertCommand{
		AlertID:  types.ID(id),
		AdminID:  middleware.CallerID(c),
		Response: req.AdminResponse,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"alert": a})
}

func (h *SafetyHandler) SubmitReport(c *gin.Context) {
	var req reportReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	r, err := h.safety.SubmitReport(c.Request.Context(), safety.SubmitReportCommand{
		ReporterID:     middleware.CallerID(c),
		ReportedUserID: types.ID(req.ReportedUserID),
		Type:           safety.ReportType(req.ReportType),
		Description:    req.Description,
		OrderID:        types.ID(req.OrderID),
		Evidence:       req.Evidence,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"report": r})
}

func (h *SafetyHandler) MyReports(c *gin.Context) {
	h.listReports(c, safety.ReportFilter{ReporterID: middleware.CallerID(c)})
}

// Reports lists reports for admins, filtered by ?status= when given.
func (h *SafetyHandler) Reports(c *gin.Context) {
	h.listReports(c, safety.ReportFilter{Status: safety.ReportStatus(c.Query("status"))})
}

func (h *SafetyHandler) listReports(c *gin.Context, f safety.ReportFilter) {
	reports, err := h.safety.ListReports(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"reports": nonNil(reports)})
}

func (h *SafetyHandler) ReviewReport(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req reviewReportReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	r, err := h.safety.ReviewReport(c.Request.Context(), safety.ReviewReportCommand{
		ReportID: types.ID(id),
		AdminID:  middleware.CallerID(c),
		Status:   safety.ReportStatus(req.Status),
		Notes:    req.AdminNotes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"report": r})
}
