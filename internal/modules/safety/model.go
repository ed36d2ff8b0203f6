// README: Safety alerts raised during deliveries and user reports awaiting admin review.
package safety

import (
	"time"

	"giftwave/internal/types"
)

type AlertType string

const (
	AlertPanic      AlertType = "panic"
	AlertSuspicious AlertType = "suspicious"
	AlertDelay      AlertType = "delay"
	AlertDispute    AlertType = "dispute"
)

func (t AlertType) Valid() bool {
	switch t {
	case AlertPanic, AlertSuspicious, AlertDelay, AlertDispute:
		return true
	}
	return false
}

type Alert struct {
	ID            types.ID     `json:"id"`
	UserID        types.ID     `json:"userId"`
	UserName      string       `json:"userName"`
	Type          AlertType    `json:"alertType"`
	OrderID       types.ID     `json:"orderId,omitempty"`
	Location      *types.Point `json:"location,omitempty"`
	Description   string       `json:"description"`
	IsResolved    bool         `json:"isResolved"`
	AdminResponse string       `json:"adminResponse,omitempty"`
	ResolvedBy    types.ID     `json:"resolvedBy,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	ResolvedAt    *time.Time   `json:"resolvedAt,omitempty"`
}

type ReportType string

const (
	ReportMisconduct ReportType = "misconduct"
	ReportSafety     ReportType = "safety"
	ReportFraud      ReportType = "fraud"
	ReportHarassment ReportType = "harassment"
	ReportOther      ReportType = "other"
)

func (t ReportType) Valid() bool {
	switch t {
	case ReportMisconduct, ReportSafety, ReportFraud, ReportHarassment, ReportOther:
		return true
	}
	return false
}

type ReportStatus string

const (
	ReportPending     ReportStatus = "pending"
	ReportUnderReview ReportStatus = "underReview"
	ReportResolved    ReportStatus = "resolved"
	ReportDismissed   ReportStatus = "dismissed"
)

// reportTransitions is the admin review flow. Resolved and dismissed are final.
var reportTransitions = map[ReportStatus][]ReportStatus{
	ReportPending:     {ReportUnderReview, ReportResolved, ReportDismissed},
	ReportUnderReview: {ReportResolved, ReportDismissed},
}

func CanReview(from, to ReportStatus) bool {
	for _, s := range reportTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Report struct {
	ID               types.ID     `json:"id"`
	ReporterID       types.ID     `json:"reporterId"`
	ReporterName     string       `json:"reporterName"`
	ReportedUserID   types.ID     `json:"reportedUserId"`
	ReportedUserName string       `json:"reportedUserName"`
	Type             ReportType   `json:"reportType"`
	Description      string       `json:"description"`
	OrderID          types.ID     `json:"orderId,omitempty"`
	Evidence         []string     `json:"evidence,omitempty"`
	Status           ReportStatus `json:"status"`
	AdminNotes       string       `json:"adminNotes,omitempty"`
	ReviewedBy       types.ID     `json:"reviewedBy,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

type AlertFilter struct {
	UserID     types.ID
	Unresolved bool
}

type ReportFilter struct {
	ReporterID types.ID
	Status     ReportStatus
}
