// README: OTP service issues, verifies and re-issues one-time codes.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"giftwave/internal/apperr"
	"giftwave/internal/modules/validation"
	"giftwave/internal/types"
)

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, html string) error
}

type Service struct {
	store       Store
	sms         SMSSender
	email       EmailSender
	log         *zap.Logger
	now         func() time.Time
	newCode     func() (string, error)
	ttl         time.Duration
	maxAttempts int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newCode = gen }
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

func NewService(store Store, sms SMSSender, email EmailSender, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:       store,
		sms:         sms,
		email:       email,
		log:         log,
		now:         time.Now,
		newCode:     randomCode,
		ttl:         DefaultTTL,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type GenerateCommand struct {
	UserID   *types.ID
	Channels Channels
	Type     Type
}

// randomCode draws uniformly from 100000-999999.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func validateChannels(t Type, c Channels) error {
	if !t.Valid() {
		return apperr.Validation("otpType", "OTP type must be phone, cnic or email")
	}
	if c.Phone == "" && c.Email == "" {
		return apperr.Validation("channels", "A phone number or email is required to deliver the code")
	}
	var errs []error
	if c.Phone != "" {
		errs = append(errs, validation.Check("phone", validation.Phone(c.Phone)))
	}
	if c.Email != "" {
		errs = append(errs, validation.Check("email", validation.Email(c.Email)))
	}
	if c.CNIC != "" || t == TypeCNIC {
		errs = append(errs, validation.Check("cnic", validation.CNIC(c.CNIC)))
	}
	return validation.First(errs...)
}

// Generate creates a pending record and sends the code. Delivery is best
// effort; a sink failure leaves the record usable.
func (s *Service) Generate(ctx context.Context, cmd GenerateCommand) (*Verification, error) {
	if err := validateChannels(cmd.Type, cmd.Channels); err != nil {
		return nil, err
	}
	code, err := s.newCode()
	if err != nil {
		return nil, fmt.Errorf("generate otp code: %w", err)
	}
	now := s.now()
	v := &Verification{
		ID:          types.NewID(),
		UserID:      cmd.UserID,
		Channels:    cmd.Channels,
		Type:        cmd.Type,
		Code:        code,
		Status:      StatusPending,
		Attempts:    0,
		MaxAttempts: s.maxAttempts,
		ExpiresAt:   now.Add(s.ttl),
		CreatedAt:   now,
	}
	if err := s.store.Create(ctx, v); err != nil {
		return nil, apperr.Unavailable("create otp", err)
	}
	s.dispatch(ctx, v)
	return v, nil
}

func (s *Service) dispatch(ctx context.Context, v *Verification) {
	minutes := int(s.ttl / time.Minute)
	if v.Channels.Phone != "" && s.sms != nil {
		body := fmt.Sprintf("Gift Wave OTP: %s. Valid for %d minutes. Don't share this code.", v.Code, minutes)
		if err := s.sms.SendSMS(ctx, v.Channels.Phone, body); err != nil {
			s.log.Warn("otp sms delivery failed", zap.String("otp_id", string(v.ID)), zap.Error(err))
		}
	}
	if v.Channels.Email != "" && s.email != nil {
		if err := s.email.SendEmail(ctx, v.Channels.Email, "Gift Wave - OTP Verification", emailBody(v.Code, minutes)); err != nil {
			s.log.Warn("otp email delivery failed", zap.String("otp_id", string(v.ID)), zap.Error(err))
		}
	}
}

func emailBody(code string, minutes int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString("<h2>Gift Wave - OTP Verification</h2>")
	fmt.Fprintf(&b, "<p>Your OTP code is: <strong>%s</strong></p>", code)
	fmt.Fprintf(&b, "<p>This code will expire in %d minutes.</p>", minutes)
	b.WriteString("<p>If you didn't request this code, please ignore this email.</p>")
	b.WriteString("</body></html>")
	return b.String()
}

// Verify checks code against record id. It fails closed: any error means the
// code was not accepted. A wrong code that uses up the last attempt moves the
// record to failed.
func (s *Service) Verify(ctx context.Context, id types.ID, code string) (bool, error) {
	v, err := s.store.Get(ctx, id)
	if err != nil {
		return false, apperr.Unavailable("get otp", err)
	}
	switch v.Status {
	case StatusExpired:
		return false, apperr.ErrExpired
	case StatusFailed:
		return false, apperr.ErrAttemptsExhausted
	case StatusVerified:
		return false, apperr.InvalidState(string(StatusVerified), string(StatusVerified))
	}

	now := s.now()
	if now.After(v.ExpiresAt) {
		if err := s.transition(ctx, v, StatusExpired, now); err != nil {
			return false, err
		}
		return false, apperr.ErrExpired
	}
	if v.Attempts >= v.MaxAttempts {
		if err := s.transition(ctx, v, StatusFailed, now); err != nil {
			return false, err
		}
		return false, apperr.ErrAttemptsExhausted
	}

	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(v.Code)) == 1 {
		ok, err := s.store.SetStatus(ctx, v.ID, StatusPending, StatusVerified, now)
		if err != nil {
			return false, apperr.Unavailable("verify otp", err)
		}
		if !ok {
			// A concurrent call finished the record first.
			return false, s.terminalError(ctx, v.ID)
		}
		return true, nil
	}

	attempts, err := s.store.IncrementAttempts(ctx, v.ID)
	switch {
	case errors.Is(err, ErrNotPending):
		return false, s.terminalError(ctx, v.ID)
	case errors.Is(err, apperr.ErrAttemptsExhausted):
		return false, err
	case err != nil:
		return false, apperr.Unavailable("count otp attempt", err)
	}
	// The store marks the record failed when this attempt reaches the cap.
	if attempts >= v.MaxAttempts {
		return false, apperr.ErrAttemptsExhausted
	}
	return false, apperr.ErrCodeMismatch
}

// transition moves a pending record to a terminal state. Losing the race to
// another terminal write is not an error.
func (s *Service) transition(ctx context.Context, v *Verification, to Status, at time.Time) error {
	if _, err := s.store.SetStatus(ctx, v.ID, StatusPending, to, at); err != nil {
		return apperr.Unavailable("update otp status", err)
	}
	return nil
}

func (s *Service) terminalError(ctx context.Context, id types.ID) error {
	v, err := s.store.Get(ctx, id)
	if err != nil {
		return apperr.Unavailable("get otp", err)
	}
	switch v.Status {
	case StatusExpired:
		return apperr.ErrExpired
	case StatusFailed:
		return apperr.ErrAttemptsExhausted
	}
	return apperr.InvalidState(string(v.Status), string(StatusVerified))
}

// Resend replaces record id with a fresh code for the same channels.
func (s *Service) Resend(ctx context.Context, id types.ID) (*Verification, error) {
	old, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperr.Unavailable("get otp", err)
	}
	if err := s.store.Delete(ctx, old.ID); err != nil {
		return nil, apperr.Unavailable("delete otp", err)
	}
	return s.Generate(ctx, GenerateCommand{
		UserID:   old.UserID,
		Channels: old.Channels,
		Type:     old.Type,
	})
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Verification, error) {
	v, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperr.Unavailable("get otp", err)
	}
	return v, nil
}

// Consume accepts a verified record for exactly these channels and deletes it
// so it cannot back a second registration.
func (s *Service) Consume(ctx context.Context, id types.ID, want Channels) error {
	if err := s.CheckVerified(ctx, id, want); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return apperr.Unavailable("delete otp", err)
	}
	return nil
}

// CheckVerified reports whether id is verified for exactly these channels
// without consuming it.
func (s *Service) CheckVerified(ctx context.Context, id types.ID, want Channels) error {
	v, err := s.store.Get(ctx, id)
	if err != nil {
		return apperr.Unavailable("get otp", err)
	}
	if v.Status != StatusVerified {
		return apperr.NotEligible("Please verify your phone number and email first")
	}
	if v.Channels.Key() != want.Key() {
		return apperr.Validation("otpId", "Verification does not match the provided contact details")
	}
	return nil
}
