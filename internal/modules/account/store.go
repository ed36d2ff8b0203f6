// README: Account store backed by PostgreSQL.
package account

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"giftwave/internal/apperr"
	"giftwave/internal/types"
)

// ErrEmailTaken is returned by Create when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// ErrFirebaseLinked is returned by LinkFirebaseUID when the user already has a
// Firebase account or the Firebase account belongs to another user.
var ErrFirebaseLinked = errors.New("firebase account already linked")

type Repository interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id types.ID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByFirebaseUID(ctx context.Context, uid string) (*User, error)
	LinkFirebaseUID(ctx context.Context, id types.ID, uid string) error
	EmailExists(ctx context.Context, email string) (bool, error)
	RecordFailedLogin(ctx context.Context, id types.ID, max int, reason string) (int, bool, error)
	RecordLogin(ctx context.Context, id types.ID, at time.Time) error
	SetRiderStatus(ctx context.Context, id types.ID, status RiderStatus, reason string, at time.Time) error
	SetBlocked(ctx context.Context, id types.ID, blocked bool, reason string, at time.Time) error
	AppendReview(ctx context.Context, r *ReviewRecord) error
	ListRiders(ctx context.Context, status RiderStatus) ([]*User, error)
	UpdateStats(ctx context.Context, riderID types.ID, s Stats) error
	SetProfileImage(ctx context.Context, id types.ID, url string, at time.Time) error
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const userColumns = `
	id, email, phone, full_name, user_type, cnic, city, rider_status, status_reason,
	profile_image_url, average_rating, total_deliveries, is_email_verified, is_phone_verified,
	is_admin, firebase_uid, password_hash, login_attempts, is_blocked, blocked_reason, last_login_at,
	created_at, updated_at`

func (s *Store) Create(ctx context.Context, u *User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21,
			$22, $23
		)`,
		string(u.ID), normalizeEmail(u.Email), u.Phone, u.FullName, string(u.UserType),
		nullString(u.CNIC), nullString(u.City), nullString(string(u.RiderStatus)), nullString(u.StatusReason),
		nullString(u.ProfileImageURL), u.AverageRating, u.TotalDeliveries, u.IsEmailVerified, u.IsPhoneVerified,
		u.IsAdmin, nullString(u.FirebaseUID), u.PasswordHash, u.LoginAttempts, u.IsBlocked, nullString(u.BlockedReason), u.LastLoginAt,
		u.CreatedAt, u.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, string(id)))
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, normalizeEmail(email)))
}

func (s *Store) GetByFirebaseUID(ctx context.Context, uid string) (*User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE firebase_uid = $1`, uid))
}

// LinkFirebaseUID sets the Firebase UID on a user that has none yet.
func (s *Store) LinkFirebaseUID(ctx context.Context, id types.ID, uid string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET firebase_uid = $2, updated_at = NOW()
		WHERE id = $1 AND firebase_uid IS NULL`, string(id), uid)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrFirebaseLinked
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrFirebaseLinked
	}
	return nil
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, normalizeEmail(email)).Scan(&exists)
	return exists, err
}

// RecordFailedLogin increments the counter in place and sets the block once
// it reaches max. It returns the new count and whether the account is blocked.
func (s *Store) RecordFailedLogin(ctx context.Context, id types.ID, max int, reason string) (int, bool, error) {
	var attempts int
	var blocked bool
	err := s.db.QueryRow(ctx, `
		UPDATE users
		SET login_attempts = login_attempts + 1,
		    is_blocked = is_blocked OR login_attempts + 1 >= $2,
		    blocked_reason = CASE
		        WHEN NOT is_blocked AND login_attempts + 1 >= $2 THEN $3
		        ELSE blocked_reason END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING login_attempts, is_blocked`,
		string(id), max, reason,
	).Scan(&attempts, &blocked)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, apperr.ErrNotFound
	}
	return attempts, blocked, err
}

func (s *Store) RecordLogin(ctx context.Context, id types.ID, at time.Time) error {
	return s.exec(ctx, `
		UPDATE users SET login_attempts = 0, last_login_at = $2, updated_at = $2
		WHERE id = $1`, string(id), at)
}

func (s *Store) SetRiderStatus(ctx context.Context, id types.ID, status RiderStatus, reason string, at time.Time) error {
	return s.exec(ctx, `
		UPDATE users SET rider_status = $2, status_reason = $3, updated_at = $4
		WHERE id = $1 AND user_type = 'rider'`,
		string(id), string(status), nullString(reason), at)
}

// SetBlocked also clears the failed-login counter on unblock.
func (s *Store) SetBlocked(ctx context.Context, id types.ID, blocked bool, reason string, at time.Time) error {
	return s.exec(ctx, `
		UPDATE users
		SET is_blocked = $2,
		    blocked_reason = $3,
		    login_attempts = CASE WHEN $2 THEN login_attempts ELSE 0 END,
		    updated_at = $4
		WHERE id = $1`,
		string(id), blocked, nullString(reason), at)
}

func (s *Store) AppendReview(ctx context.Context, r *ReviewRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO rider_review_actions (rider_id, action, reason, admin_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(r.RiderID), string(r.Action), nullString(r.Reason), string(r.AdminID), r.CreatedAt)
	return err
}

func (s *Store) ListRiders(ctx context.Context, status RiderStatus) ([]*User, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE user_type = 'rider' AND ($1 = '' OR rider_status = $1)
		ORDER BY created_at DESC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateStats(ctx context.Context, riderID types.ID, st Stats) error {
	return s.exec(ctx, `
		UPDATE users SET average_rating = $2, total_deliveries = $3, updated_at = NOW()
		WHERE id = $1`, string(riderID), st.AverageRating, st.TotalDeliveries)
}

func (s *Store) SetProfileImage(ctx context.Context, id types.ID, url string, at time.Time) error {
	return s.exec(ctx, `UPDATE users SET profile_image_url = $2, updated_at = $3 WHERE id = $1`, string(id), url, at)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var cnic, city, riderStatus, statusReason, profileURL, firebaseUID, blockedReason sql.NullString
	var lastLogin sql.NullTime
	err := row.Scan(
		&u.ID, &u.Email, &u.Phone, &u.FullName, &u.UserType, &cnic, &city, &riderStatus, &statusReason,
		&profileURL, &u.AverageRating, &u.TotalDeliveries, &u.IsEmailVerified, &u.IsPhoneVerified,
		&u.IsAdmin, &firebaseUID, &u.PasswordHash, &u.LoginAttempts, &u.IsBlocked, &blockedReason, &lastLogin,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CNIC = cnic.String
	u.City = city.String
	u.RiderStatus = RiderStatus(riderStatus.String)
	u.StatusReason = statusReason.String
	u.ProfileImageURL = profileURL.String
	u.FirebaseUID = firebaseUID.String
	u.BlockedReason = blockedReason.String
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
