// README: Safety service raises alerts, files reports and drives admin review.
package safety

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"giftwave/internal/apperr"
	"giftwave/internal/modules/account"
	"giftwave/internal/modules/order"
	"giftwave/internal/modules/validation"
	"giftwave/internal/notify"
	"giftwave/internal/types"
)

// AdminTopic is the FCM topic admin devices subscribe to.
const AdminTopic = "safety-alerts"

const (
	maxDescriptionLen = 1000
	maxEvidence       = 5
)

type Users interface {
	Get(ctx context.Context, id types.ID) (*account.User, error)
}

type Orders interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
}

type TopicPusher interface {
	PushTopic(ctx context.Context, topic string, msg notify.Message) error
}

type Service struct {
	repo   Repository
	users  Users
	orders Orders
	pusher TopicPusher
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, users Users, orders Orders, pusher TopicPusher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, users: users, orders: orders, pusher: pusher, log: log, now: time.Now}
}

type RaiseAlertCommand struct {
	UserID      types.ID
	Type        AlertType
	OrderID     types.ID
	Location    *types.Point
	Description string
}

type ResolveAlertCommand struct {
	AlertID  types.ID
	AdminID  types.ID
	Response string
}

type SubmitReportCommand struct {
	ReporterID     types.ID
	ReportedUserID types.ID
	Type           ReportType
	Description    string
	OrderID        types.ID
	Evidence       []string
}

type ReviewReportCommand struct {
	ReportID types.ID
	AdminID  types.ID
	Status   ReportStatus
	Notes    string
}

func checkDescription(d string) error {
	switch n := utf8.RuneCountInString(d); {
	case n == 0:
		return apperr.Validation("description", "Please describe what happened")
	case n > maxDescriptionLen:
		return apperr.Validation("description", fmt.Sprintf("Description cannot exceed %d characters", maxDescriptionLen))
	}
	return nil
}

func checkLocation(p *types.Point) error {
	if p == nil {
		return nil
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 || p.IsZero() {
		return apperr.Validation("location", "Invalid coordinates")
	}
	return nil
}

// RaiseAlert records an alert and notifies admins. An alert tied to an order
// may only come from the order's sender or its rider. The push is best-effort.
func (s *Service) RaiseAlert(ctx context.Context, cmd RaiseAlertCommand) (*Alert, error) {
	desc := strings.TrimSpace(cmd.Description)
	if !cmd.Type.Valid() {
		return nil, apperr.Validation("alertType", "Alert type must be panic, suspicious, delay or dispute")
	}
	if err := validation.First(checkDescription(desc), checkLocation(cmd.Location)); err != nil {
		return nil, err
	}
	u, err := s.user(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if cmd.OrderID != "" {
		o, err := s.order(ctx, cmd.OrderID)
		if err != nil {
			return nil, err
		}
		if o.Sender.ID != u.ID && !o.IsAssignedTo(u.ID) {
			return nil, apperr.ErrForbidden
		}
	}

	a := &Alert{
		ID:          types.NewID(),
		UserID:      u.ID,
		UserName:    u.FullName,
		Type:        cmd.Type,
		OrderID:     cmd.OrderID,
		Location:    cmd.Location,
		Description: desc,
		CreatedAt:   s.now(),
	}
	if err := s.repo.CreateAlert(ctx, a); err != nil {
		return nil, apperr.Unavailable("create safety alert", err)
	}
	s.log.Warn("safety alert raised",
		zap.String("alert_id", string(a.ID)),
		zap.String("user_id", string(a.UserID)),
		zap.String("type", string(a.Type)),
		zap.String("order_id", string(a.OrderID)),
	)
	s.notifyAdmins(ctx, a)
	return a, nil
}

func (s *Service) notifyAdmins(ctx context.Context, a *Alert) {
	if s.pusher == nil {
		return
	}
	data := map[string]string{
		"type":      "safety_alert",
		"alertId":   string(a.ID),
		"alertType": string(a.Type),
	}
	if a.OrderID != "" {
		data["orderId"] = string(a.OrderID)
	}
	err := s.pusher.PushTopic(ctx, AdminTopic, notify.Message{
		Title: alertTitle(a.Type) + " from " + a.UserName,
		Body:  a.Description,
		Data:  data,
	})
	if err != nil {
		s.log.Error("safety alert push failed", zap.String("alert_id", string(a.ID)), zap.Error(err))
	}
}

func alertTitle(t AlertType) string {
	switch t {
	case AlertPanic:
		return "PANIC alert"
	case AlertSuspicious:
		return "Suspicious activity"
	case AlertDelay:
		return "Delivery delay"
	}
	return "Delivery dispute"
}

func (s *Service) ListAlerts(ctx context.Context, f AlertFilter) ([]*Alert, error) {
	out, err := s.repo.ListAlerts(ctx, f)
	if err != nil {
		return nil, apperr.Unavailable("list safety alerts", err)
	}
	return out, nil
}

// ResolveAlert closes an open alert with the admin's response. Each alert is
// resolved once.
func (s *Service) ResolveAlert(ctx context.Context, cmd ResolveAlertCommand) (*Alert, error) {
	response := strings.TrimSpace(cmd.Response)
	if response == "" {
		return nil, apperr.Validation("adminResponse", "Response is required")
	}
	now := s.now()
	ok, err := s.repo.ResolveAlert(ctx, cmd.AlertID, cmd.AdminID, response, now)
	if err != nil {
		return nil, apperr.Unavailable("resolve safety alert", err)
	}
	a, err := s.repo.GetAlert(ctx, cmd.AlertID)
	if err != nil {
		return nil, apperr.Unavailable("get safety alert", err)
	}
	if !ok {
		return nil, apperr.InvalidState("resolved", "resolved")
	}
	s.log.Info("safety alert resolved", zap.String("alert_id", string(a.ID)), zap.String("admin_id", string(cmd.AdminID)))
	return a, nil
}

// SubmitReport files a report against another user. A report tied to an
// order must name two of its parties.
func (s *Service) SubmitReport(ctx context.Context, cmd SubmitReportCommand) (*Report, error) {
	desc := strings.TrimSpace(cmd.Description)
	if !cmd.Type.Valid() {
		return nil, apperr.Validation("reportType", "Report type must be misconduct, safety, fraud, harassment or other")
	}
	if cmd.ReportedUserID == "" {
		return nil, apperr.Validation("reportedUserId", "Reported user is required")
	}
	if cmd.ReportedUserID == cmd.ReporterID {
		return nil, apperr.Validation("reportedUserId", "You cannot report yourself")
	}
	if err := checkDescription(desc); err != nil {
		return nil, err
	}
	evidence, err := checkEvidence(cmd.Evidence)
	if err != nil {
		return nil, err
	}

	reporter, err := s.user(ctx, cmd.ReporterID)
	if err != nil {
		return nil, err
	}
	reported, err := s.users.Get(ctx, cmd.ReportedUserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Validation("reportedUserId", "Reported user does not exist")
	}
	if err != nil {
		return nil, apperr.Unavailable("get user", err)
	}
	if cmd.OrderID != "" {
		o, err := s.order(ctx, cmd.OrderID)
		if err != nil {
			return nil, err
		}
		if !isParty(o, reporter.ID) || !isParty(o, reported.ID) {
			return nil, apperr.ErrForbidden
		}
	}

	now := s.now()
	r := &Report{
		ID:               types.NewID(),
		ReporterID:       reporter.ID,
		ReporterName:     reporter.FullName,
		ReportedUserID:   reported.ID,
		ReportedUserName: reported.FullName,
		Type:             cmd.Type,
		Description:      desc,
		OrderID:          cmd.OrderID,
		Evidence:         evidence,
		Status:           ReportPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.CreateReport(ctx, r); err != nil {
		return nil, apperr.Unavailable("create report", err)
	}
	s.log.Info("report submitted",
		zap.String("report_id", string(r.ID)),
		zap.String("reported_user_id", string(r.ReportedUserID)),
		zap.String("type", string(r.Type)),
	)
	return r, nil
}

func checkEvidence(urls []string) ([]string, error) {
	if len(urls) > maxEvidence {
		return nil, apperr.Validation("evidence", fmt.Sprintf("At most %d evidence links", maxEvidence))
	}
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if err := validation.Check("evidence", validation.URL(u)); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func isParty(o *order.Order, id types.ID) bool {
	return o.Sender.ID == id || o.IsAssignedTo(id)
}

func (s *Service) ListReports(ctx context.Context, f ReportFilter) ([]*Report, error) {
	if f.Status != "" && !validStatus(f.Status) {
		return nil, apperr.Validation("status", "Unknown report status")
	}
	out, err := s.repo.ListReports(ctx, f)
	if err != nil {
		return nil, apperr.Unavailable("list reports", err)
	}
	return out, nil
}

func validStatus(st ReportStatus) bool {
	switch st {
	case ReportPending, ReportUnderReview, ReportResolved, ReportDismissed:
		return true
	}
	return false
}

// ReviewReport moves a report along pending, underReview, then resolved or
// dismissed. A concurrent review that got there first wins.
func (s *Service) ReviewReport(ctx context.Context, cmd ReviewReportCommand) (*Report, error) {
	if !validStatus(cmd.Status) || cmd.Status == ReportPending {
		return nil, apperr.Validation("status", "Status must be underReview, resolved or dismissed")
	}
	r, err := s.repo.GetReport(ctx, cmd.ReportID)
	if err != nil {
		return nil, apperr.Unavailable("get report", err)
	}
	if !CanReview(r.Status, cmd.Status) {
		return nil, apperr.InvalidState(string(r.Status), string(cmd.Status))
	}
	notes := strings.TrimSpace(cmd.Notes)
	now := s.now()
	ok, err := s.repo.ReviewReport(ctx, r.ID, r.Status, cmd.Status, cmd.AdminID, notes, now)
	if err != nil {
		return nil, apperr.Unavailable("review report", err)
	}
	if !ok {
		cur, err := s.repo.GetReport(ctx, r.ID)
		if err != nil {
			return nil, apperr.Unavailable("get report", err)
		}
		return nil, apperr.InvalidState(string(cur.Status), string(cmd.Status))
	}
	r.Status = cmd.Status
	r.ReviewedBy = cmd.AdminID
	if notes != "" {
		r.AdminNotes = notes
	}
	r.UpdatedAt = now
	s.log.Info("report reviewed",
		zap.String("report_id", string(r.ID)),
		zap.String("status", string(r.Status)),
		zap.String("admin_id", string(cmd.AdminID)),
	)
	return r, nil
}

func (s *Service) user(ctx context.Context, id types.ID) (*account.User, error) {
	u, err := s.users.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrForbidden
	}
	if err != nil {
		return nil, apperr.Unavailable("get user", err)
	}
	return u, nil
}

func (s *Service) order(ctx context.Context, id types.ID) (*order.Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, apperr.Unavailable("get order", err)
	}
	return o, nil
}
