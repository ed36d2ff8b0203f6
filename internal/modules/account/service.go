// README: Account service covers registration, sign-in gating and admin review.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"giftwave/internal/apperr"
	"giftwave/internal/modules/otp"
	"giftwave/internal/modules/validation"
	"giftwave/internal/types"
)

type Verifier interface {
	Generate(ctx context.Context, cmd otp.GenerateCommand) (*otp.Verification, error)
	CheckVerified(ctx context.Context, id types.ID, want otp.Channels) error
	Consume(ctx context.Context, id types.ID, want otp.Channels) error
}

// Tokens issues and parses session tokens.
type Tokens interface {
	Issue(userID types.ID, role string) (string, time.Time, error)
	Parse(token string) (types.ID, error)
}

type MediaStore interface {
	Store(ctx context.Context, data []byte, contentType, path string) (string, error)
}

type Service struct {
	repo       Repository
	otp        Verifier
	tokens     Tokens
	media      MediaStore
	log        *zap.Logger
	now        func() time.Time
	bcryptCost int
}

func NewService(repo Repository, verifier Verifier, tokens Tokens, media MediaStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		otp:        verifier,
		tokens:     tokens,
		media:      media,
		log:        log,
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
	}
}

const minPasswordLen = 6

type SenderRegistration struct {
	Email    string
	Phone    string
	FullName string
	Password string
}

type RiderRegistration struct {
	Email    string
	Phone    string
	FullName string
	CNIC     string
	City     string
}

type CompleteRiderCommand struct {
	OTPID    types.ID
	Rider    RiderRegistration
	Password string
}

type ReviewCommand struct {
	AdminID types.ID
	RiderID types.ID
	Action  ReviewAction
	Reason  string
}

type BlockCommand struct {
	AdminID types.ID
	UserID  types.ID
	Reason  string
}

func checkPassword(pw string) error {
	if len(pw) < minPasswordLen {
		return apperr.Validation("password", "Password is too weak. Please use at least 6 characters.")
	}
	return nil
}

func (r RiderRegistration) validate() error {
	return validation.First(
		validation.Check("fullName", validation.Name(r.FullName)),
		validation.Check("email", validation.Email(r.Email)),
		validation.Check("phoneNumber", validation.Phone(r.Phone)),
		validation.Check("cnic", validation.CNIC(r.CNIC)),
		validation.Check("city", validation.City(r.City)),
	)
}

func (r RiderRegistration) channels() otp.Channels {
	return otp.Channels{Phone: r.Phone, Email: r.Email, CNIC: r.CNIC}
}

func (s *Service) ensureEmailFree(ctx context.Context, email string) error {
	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return apperr.Unavailable("check email", err)
	}
	if exists {
		return emailTaken()
	}
	return nil
}

func emailTaken() error {
	return apperr.Validation("email", "This email is already registered. Please use a different email or try logging in instead.")
}

func (s *Service) hash(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func (s *Service) create(ctx context.Context, u *User) error {
	err := s.repo.Create(ctx, u)
	if errors.Is(err, ErrEmailTaken) {
		return emailTaken()
	}
	if err != nil {
		return apperr.Unavailable("create user", err)
	}
	return nil
}

func (s *Service) RegisterSender(ctx context.Context, r SenderRegistration) (*User, error) {
	if err := validation.First(
		validation.Check("fullName", validation.Name(r.FullName)),
		validation.Check("email", validation.Email(r.Email)),
		validation.Check("phoneNumber", validation.Phone(r.Phone)),
		checkPassword(r.Password),
	); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, r.Email); err != nil {
		return nil, err
	}
	hash, err := s.hash(r.Password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	u := &User{
		ID:           types.NewID(),
		Email:        strings.ToLower(strings.TrimSpace(r.Email)),
		Phone:        validation.NormalizePhone(r.Phone),
		FullName:     strings.TrimSpace(r.FullName),
		UserType:     UserTypeSender,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("sender registered", zap.String("user_id", string(u.ID)))
	return u, nil
}

// StartRiderRegistration validates the application and sends one code to the
// rider's phone and email, bound to the CNIC as well.
func (s *Service) StartRiderRegistration(ctx context.Context, r RiderRegistration) (*otp.Verification, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, r.Email); err != nil {
		return nil, err
	}
	return s.otp.Generate(ctx, otp.GenerateCommand{Channels: r.channels(), Type: otp.TypeCNIC})
}

// CompleteRiderRegistration creates the rider once the code has been verified
// for exactly the submitted contact details. New riders await review. The code
// is consumed only after the insert, so a failed insert leaves it usable.
func (s *Service) CompleteRiderRegistration(ctx context.Context, cmd CompleteRiderCommand) (*User, error) {
	r := cmd.Rider
	if err := validation.First(r.validate(), checkPassword(cmd.Password)); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, r.Email); err != nil {
		return nil, err
	}
	if err := s.otp.CheckVerified(ctx, cmd.OTPID, r.channels()); err != nil {
		return nil, err
	}
	hash, err := s.hash(cmd.Password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	u := &User{
		ID:              types.NewID(),
		Email:           strings.ToLower(strings.TrimSpace(r.Email)),
		Phone:           validation.NormalizePhone(r.Phone),
		FullName:        strings.TrimSpace(r.FullName),
		UserType:        UserTypeRider,
		CNIC:            validation.FormatCNIC(r.CNIC),
		City:            strings.TrimSpace(r.City),
		RiderStatus:     RiderPending,
		IsEmailVerified: true,
		IsPhoneVerified: true,
		PasswordHash:    hash,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.create(ctx, u); err != nil {
		return nil, err
	}
	if err := s.otp.Consume(ctx, cmd.OTPID, r.channels()); err != nil {
		// The account exists and the email is now taken, so the code cannot
		// back a second rider. It expires on its own.
		s.log.Warn("consume otp after registration", zap.String("user_id", string(u.ID)), zap.Error(err))
	}
	s.log.Info("rider registered", zap.String("user_id", string(u.ID)), zap.String("city", u.City))
	return u, nil
}

// SignIn checks the password, counts failures towards lockout and refuses
// accounts that may not participate. No token is issued on refusal.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Unavailable("get user", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		if u.IsBlocked {
			return nil, CheckSignIn(u)
		}
		attempts, blocked, err := s.repo.RecordFailedLogin(ctx, u.ID, MaxLoginAttempts, lockoutReason)
		if err != nil {
			return nil, apperr.Unavailable("record failed login", err)
		}
		if blocked {
			s.log.Warn("account locked", zap.String("user_id", string(u.ID)), zap.Int("attempts", attempts))
			return nil, apperr.NotEligible("Account is blocked: " + lockoutReason)
		}
		return nil, apperr.ErrInvalidCredentials
	}

	if err := CheckSignIn(u); err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.repo.RecordLogin(ctx, u.ID, now); err != nil {
		return nil, apperr.Unavailable("record login", err)
	}
	u.LoginAttempts = 0
	u.LastLoginAt = &now

	token, exp, err := s.tokens.Issue(u.ID, u.Role())
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// GetSession resolves a token to a freshly loaded user and re-applies the
// sign-in checks, so a block or ban takes effect on the next request.
func (s *Service) GetSession(ctx context.Context, token string) (*Session, error) {
	uid, err := s.tokens.Parse(token)
	if err != nil {
		return nil, apperr.ErrInvalidCredentials
	}
	u, err := s.Authorize(ctx, uid)
	if err != nil {
		return nil, err
	}
	return &Session{User: u}, nil
}

// Authorize loads id and applies the sign-in checks.
func (s *Service) Authorize(ctx context.Context, id types.ID) (*User, error) {
	u, err := s.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := CheckSignIn(u); err != nil {
		return nil, err
	}
	return u, nil
}

// AuthorizeFirebase resolves a Firebase account to its user and applies the
// sign-in checks. An unlinked Firebase account is linked on first use when its
// verified email matches a registered user.
func (s *Service) AuthorizeFirebase(ctx context.Context, firebaseUID, verifiedEmail string) (*User, error) {
	u, err := s.repo.GetByFirebaseUID(ctx, firebaseUID)
	if errors.Is(err, apperr.ErrNotFound) {
		u, err = s.linkFirebase(ctx, firebaseUID, verifiedEmail)
	}
	if err != nil {
		return nil, err
	}
	if err := CheckSignIn(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) linkFirebase(ctx context.Context, firebaseUID, verifiedEmail string) (*User, error) {
	if verifiedEmail == "" {
		return nil, apperr.ErrInvalidCredentials
	}
	u, err := s.repo.GetByEmail(ctx, verifiedEmail)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Unavailable("get user", err)
	}
	err = s.repo.LinkFirebaseUID(ctx, u.ID, firebaseUID)
	if errors.Is(err, ErrFirebaseLinked) {
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Unavailable("link firebase account", err)
	}
	u.FirebaseUID = firebaseUID
	s.log.Info("firebase account linked", zap.String("user_id", string(u.ID)))
	return u, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*User, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperr.Unavailable("get user", err)
	}
	return u, nil
}

func (s *Service) requireAdmin(ctx context.Context, adminID types.ID) error {
	admin, err := s.repo.Get(ctx, adminID)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.ErrForbidden
	}
	if err != nil {
		return apperr.Unavailable("get admin", err)
	}
	if !admin.IsAdmin || admin.IsBlocked {
		return apperr.ErrForbidden
	}
	return nil
}

// ReviewRider applies an admin decision. Reject and ban need a reason. Any
// status may be re-reviewed, e.g. to lift a ban.
func (s *Service) ReviewRider(ctx context.Context, cmd ReviewCommand) (*User, error) {
	status, ok := actionStatus[cmd.Action]
	if !ok {
		return nil, apperr.Validation("action", "Action must be approve, reject or ban")
	}
	reason := strings.TrimSpace(cmd.Reason)
	if cmd.Action != ActionApprove && reason == "" {
		return nil, apperr.Validation("reason", "A reason is required to "+string(cmd.Action)+" a rider")
	}
	if err := s.requireAdmin(ctx, cmd.AdminID); err != nil {
		return nil, err
	}
	rider, err := s.Get(ctx, cmd.RiderID)
	if err != nil {
		return nil, err
	}
	if !rider.IsRider() {
		return nil, apperr.Validation("riderId", "User is not a rider")
	}
	now := s.now()
	if cmd.Action == ActionApprove {
		reason = ""
	}
	if err := s.repo.SetRiderStatus(ctx, rider.ID, status, reason, now); err != nil {
		return nil, apperr.Unavailable("set rider status", err)
	}
	if err := s.repo.AppendReview(ctx, &ReviewRecord{
		RiderID:   rider.ID,
		Action:    cmd.Action,
		Reason:    reason,
		AdminID:   cmd.AdminID,
		CreatedAt: now,
	}); err != nil {
		s.log.Warn("review audit append failed", zap.String("rider_id", string(rider.ID)), zap.Error(err))
	}
	s.log.Info("rider reviewed",
		zap.String("rider_id", string(rider.ID)),
		zap.String("action", string(cmd.Action)),
		zap.String("admin_id", string(cmd.AdminID)),
	)
	rider.RiderStatus = status
	rider.StatusReason = reason
	rider.UpdatedAt = now
	return rider, nil
}

func (s *Service) Block(ctx context.Context, cmd BlockCommand) error {
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return apperr.Validation("reason", "Please provide a reason for blocking")
	}
	if err := s.requireAdmin(ctx, cmd.AdminID); err != nil {
		return err
	}
	if err := s.repo.SetBlocked(ctx, cmd.UserID, true, reason, s.now()); err != nil {
		return apperr.Unavailable("block user", err)
	}
	s.log.Info("user blocked", zap.String("user_id", string(cmd.UserID)), zap.String("admin_id", string(cmd.AdminID)))
	return nil
}

// Unblock also resets the failed-login counter.
func (s *Service) Unblock(ctx context.Context, cmd BlockCommand) error {
	if err := s.requireAdmin(ctx, cmd.AdminID); err != nil {
		return err
	}
	if err := s.repo.SetBlocked(ctx, cmd.UserID, false, "", s.now()); err != nil {
		return apperr.Unavailable("unblock user", err)
	}
	s.log.Info("user unblocked", zap.String("user_id", string(cmd.UserID)), zap.String("admin_id", string(cmd.AdminID)))
	return nil
}

func (s *Service) ListRiders(ctx context.Context, adminID types.ID, status RiderStatus) ([]*User, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	riders, err := s.repo.ListRiders(ctx, status)
	if err != nil {
		return nil, apperr.Unavailable("list riders", err)
	}
	return riders, nil
}

// UpdateRiderStats stores a recomputed reputation.
func (s *Service) UpdateRiderStats(ctx context.Context, riderID types.ID, st Stats) error {
	if err := s.repo.UpdateStats(ctx, riderID, st); err != nil {
		return apperr.Unavailable("update rider stats", err)
	}
	return nil
}

func (s *Service) SetProfileImage(ctx context.Context, userID types.ID, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", apperr.Validation("image", "Image is required")
	}
	if s.media == nil {
		return "", apperr.Unavailable("profile image", errors.New("media storage not configured"))
	}
	url, err := s.media.Store(ctx, data, contentType, fmt.Sprintf("profile_images/%s.jpg", userID))
	if err != nil {
		return "", apperr.Unavailable("upload profile image", err)
	}
	if err := s.repo.SetProfileImage(ctx, userID, url, s.now()); err != nil {
		return "", apperr.Unavailable("set profile image", err)
	}
	return url, nil
}
