// README: Safety store backed by PostgreSQL. Resolution and review are conditional UPDATEs.
package safety

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"giftwave/internal/apperr"
	"giftwave/internal/types"
)

// Repository reports false from ResolveAlert and ReviewReport when the row is
// no longer in the expected state.
type Repository interface {
	CreateAlert(ctx context.Context, a *Alert) error
	GetAlert(ctx context.Context, id types.ID) (*Alert, error)
	ListAlerts(ctx context.Context, f AlertFilter) ([]*Alert, error)
	ResolveAlert(ctx context.Context, id, adminID types.ID, response string, at time.Time) (bool, error)
	CreateReport(ctx context.Context, r *Report) error
	GetReport(ctx context.Context, id types.ID) (*Report, error)
	ListReports(ctx context.Context, f ReportFilter) ([]*Report, error)
	ReviewReport(ctx context.Context, id types.ID, from, to ReportStatus, adminID types.ID, notes string, at time.Time) (bool, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const alertColumns = `
	id, user_id, user_name, alert_type, order_id, lat, lng, description,
	is_resolved, admin_response, resolved_by, created_at, resolved_at`

func (s *Store) CreateAlert(ctx context.Context, a *Alert) error {
	var lat, lng *float64
	if a.Location != nil {
		lat, lng = &a.Location.Lat, &a.Location.Lng
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO safety_alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		string(a.ID), string(a.UserID), a.UserName, string(a.Type), nullID(a.OrderID), lat, lng, a.Description,
		a.IsResolved, nullString(a.AdminResponse), nullID(a.ResolvedBy), a.CreatedAt, a.ResolvedAt,
	)
	return err
}

func (s *Store) GetAlert(ctx context.Context, id types.ID) (*Alert, error) {
	return scanAlert(s.db.QueryRow(ctx, `SELECT `+alertColumns+` FROM safety_alerts WHERE id = $1`, string(id)))
}

func (s *Store) ListAlerts(ctx context.Context, f AlertFilter) ([]*Alert, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+alertColumns+` FROM safety_alerts
		WHERE ($1 = '' OR user_id = $1) AND (NOT $2 OR NOT is_resolved)
		ORDER BY created_at DESC`, string(f.UserID), f.Unresolved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ResolveAlert(ctx context.Context, id, adminID types.ID, response string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE safety_alerts
		SET is_resolved = TRUE, admin_response = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $1 AND NOT is_resolved`,
		string(id), response, string(adminID), at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const reportColumns = `
	id, reporter_id, reporter_name, reported_user_id, reported_user_name, report_type,
	description, order_id, evidence, status, admin_notes, reviewed_by, created_at, updated_at`

func (s *Store) CreateReport(ctx context.Context, r *Report) error {
	evidence := r.Evidence
	if evidence == nil {
		evidence = []string{}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		string(r.ID), string(r.ReporterID), r.ReporterName, string(r.ReportedUserID), r.ReportedUserName, string(r.Type),
		r.Description, nullID(r.OrderID), evidence, string(r.Status), nullString(r.AdminNotes), nullID(r.ReviewedBy),
		r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *Store) GetReport(ctx context.Context, id types.ID) (*Report, error) {
	return scanReport(s.db.QueryRow(ctx, `SELECT `+reportColumns+` FROM user_reports WHERE id = $1`, string(id)))
}

func (s *Store) ListReports(ctx context.Context, f ReportFilter) ([]*Report, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+reportColumns+` FROM user_reports
		WHERE ($1 = '' OR reporter_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`, string(f.ReporterID), string(f.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ReviewReport(ctx context.Context, id types.ID, from, to ReportStatus, adminID types.ID, notes string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE user_reports
		SET status = $3, admin_notes = COALESCE($5, admin_notes), reviewed_by = $4, updated_at = $6
		WHERE id = $1 AND status = $2`,
		string(id), string(from), string(to), string(adminID), nullString(notes), at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	var orderID, response, resolvedBy sql.NullString
	var lat, lng sql.NullFloat64
	var resolvedAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.UserID, &a.UserName, &a.Type, &orderID, &lat, &lng, &a.Description,
		&a.IsResolved, &response, &resolvedBy, &a.CreatedAt, &resolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.OrderID = types.ID(orderID.String)
	a.AdminResponse = response.String
	a.ResolvedBy = types.ID(resolvedBy.String)
	if lat.Valid && lng.Valid {
		a.Location = &types.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return &a, nil
}

func scanReport(row pgx.Row) (*Report, error) {
	var r Report
	var orderID, notes, reviewedBy sql.NullString
	err := row.Scan(
		&r.ID, &r.ReporterID, &r.ReporterName, &r.ReportedUserID, &r.ReportedUserName, &r.Type,
		&r.Description, &orderID, &r.Evidence, &r.Status, &notes, &reviewedBy, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.OrderID = types.ID(orderID.String)
	r.AdminNotes = notes.String
	r.ReviewedBy = types.ID(reviewedBy.String)
	return &r, nil
}

func nullID(id types.ID) *string {
	return nullString(string(id))
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
