package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giftwave/internal/apperr"
	"giftwave/internal/http/handlers"
	httpmiddleware "giftwave/internal/http/middleware"
	"giftwave/internal/modules/account"
	"giftwave/internal/modules/order"
	"giftwave/internal/modules/otp"
	"giftwave/internal/types"
)

type stubAccounts struct {
	signInErr  error
	sessionTok string
	review     account.ReviewCommand
	blocked    map[types.ID]bool
}

func (s *stubAccounts) RegisterSender(_ context.Context, r account.SenderRegistration) (*account.User, error) {
	return &account.User{ID: "u1", Email: r.Email, UserType: account.UserTypeSender}, nil
}

func (s *stubAccounts) StartRiderRegistration(context.Context, account.RiderRegistration) (*otp.Verification, error) {
	return &otp.Verification{ID: "otp1", Status: otp.StatusPending}, nil
}

func (s *stubAccounts) CompleteRiderRegistration(_ context.Context, cmd account.CompleteRiderCommand) (*account.User, error) {
	if cmd.OTPID != "otp1" {
		return nil, apperr.NotEligible("Please verify your phone number and email first")
	}
	return &account.User{ID: "r1", UserType: account.UserTypeRider, RiderStatus: account.RiderPending}, nil
}

func (s *stubAccounts) SignIn(context.Context, string, string) (*account.Session, error) {
	if s.signInErr != nil {
		return nil, s.signInErr
	}
	return &account.Session{Token: "tok", ExpiresAt: time.Now().Add(time.Hour), User: &account.User{ID: "u1"}}, nil
}

func (s *stubAccounts) GetSession(_ context.Context, token string) (*account.Session, error) {
	s.sessionTok = token
	if token != "good" {
		return nil, apperr.ErrInvalidCredentials
	}
	return &account.Session{User: &account.User{ID: "u1"}}, nil
}

func (s *stubAccounts) SetProfileImage(context.Context, types.ID, []byte, string) (string, error) {
	return "https://cdn/u1.jpg", nil
}

func (s *stubAccounts) ListRiders(context.Context, types.ID, account.RiderStatus) ([]*account.User, error) {
	return []*account.User{{ID: "r1"}}, nil
}

func (s *stubAccounts) ReviewRider(_ context.Context, cmd account.ReviewCommand) (*account.User, error) {
	s.review = cmd
	if cmd.Action != account.ActionApprove && cmd.Reason == "" {
		return nil, apperr.Validation("reason", "A reason is required")
	}
	return &account.User{ID: cmd.RiderID}, nil
}

func (s *stubAccounts) Block(_ context.Context, cmd account.BlockCommand) error {
	if s.blocked == nil {
		s.blocked = map[types.ID]bool{}
	}
	s.blocked[cmd.UserID] = true
	return nil
}

func (s *stubAccounts) Unblock(_ context.Context, cmd account.BlockCommand) error {
	delete(s.blocked, cmd.UserID)
	return nil
}

type stubOTP struct {
	verifyErr error
}

func (s *stubOTP) Generate(_ context.Context, cmd otp.GenerateCommand) (*otp.Verification, error) {
	return &otp.Verification{ID: "otp1", Type: cmd.Type, Channels: cmd.Channels}, nil
}

func (s *stubOTP) Verify(context.Context, types.ID, string) (bool, error) {
	return s.verifyErr == nil, s.verifyErr
}

func (s *stubOTP) Resend(context.Context, types.ID) (*otp.Verification, error) {
	return &otp.Verification{ID: "otp2"}, nil
}

type stubAdminOrders struct{}

func (stubAdminOrders) ListPending(context.Context) ([]*order.Order, error) { return nil, nil }

func (stubAdminOrders) RefundPayment(context.Context, order.RefundCommand) (*order.Order, error) {
	return nil, apperr.InvalidState("confirmed", "refunded")
}

type stubReputation struct{}

func (stubReputation) Recompute(context.Context, types.ID) (account.Stats, error) {
	return account.Stats{AverageRating: 4.5, TotalDeliveries: 2}, nil
}

func buildAuthRouter(t *testing.T, accounts *stubAccounts, codes *stubOTP) *gin.Engine {
	setupGin(t)
	r := gin.New()
	ah := handlers.NewAuthHandler(accounts)
	oh := handlers.NewOTPHandler(codes)
	r.POST("/api/auth/senders", ah.RegisterSender)
	r.POST("/api/auth/riders/start", ah.StartRider)
	r.POST("/api/auth/riders/complete", ah.CompleteRider)
	r.POST("/api/auth/signin", ah.SignIn)
	r.GET("/api/auth/session", ah.Session)
	r.POST("/api/otp", oh.Generate)
	r.POST("/api/otp/:id/verify", oh.Verify)
	r.POST("/api/otp/:id/resend", oh.Resend)

	admin := r.Group("/api/admin", httpmiddleware.Auth(asUser("admin1"), stubUsers{
		"admin1": {ID: "admin1", IsAdmin: true, UserType: account.UserTypeSender},
	}), httpmiddleware.RequireRole("admin"))
	adm := handlers.NewAdminHandler(accounts, stubAdminOrders{}, stubReputation{})
	admin.POST("/riders/:id/review", adm.ReviewRider)
	admin.POST("/riders/:id/reputation", adm.RecomputeReputation)
	admin.POST("/users/:id/block", adm.Block)
	admin.POST("/orders/:id/refund", adm.Refund)
	return r
}

func riderBody() map[string]any {
	return map[string]any{
		"email":       "rider@example.com",
		"phoneNumber": "+92 300 1234567",
		"fullName":    "Ali Raza",
		"cnic":        "35202-1234567-1",
		"city":        "Lahore",
	}
}

func TestRegisterSender_Binding(t *testing.T) {
	r := buildAuthRouter(t, &stubAccounts{}, &stubOTP{})
	w := doRequest(r, http.MethodPost, "/api/auth/senders", map[string]any{
		"email": "not-an-email", "phoneNumber": "3001234567", "fullName": "Ayesha", "password": "secret1",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Email", decode(t, w)["field"])

	w = doRequest(r, http.MethodPost, "/api/auth/senders", map[string]any{
		"email": "ayesha@example.com", "phoneNumber": "3001234567", "fullName": "Ayesha", "password": "secret1",
	}, "")
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRiderRegistrationFlow(t *testing.T) {
	r := buildAuthRouter(t, &stubAccounts{}, &stubOTP{})

	w := doRequest(r, http.MethodPost, "/api/auth/riders/start", riderBody(), "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	bad := riderBody()
	bad["cnic"] = "1234"
	w = doRequest(r, http.MethodPost, "/api/auth/riders/start", bad, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := riderBody()
	body["otpId"] = "otp9"
	body["password"] = "secret1"
	w = doRequest(r, http.MethodPost, "/api/auth/riders/complete", body, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	body["otpId"] = "otp1"
	w = doRequest(r, http.MethodPost, "/api/auth/riders/complete", body, "")
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSignIn_ErrorStatuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{apperr.ErrInvalidCredentials, http.StatusUnauthorized},
		{apperr.NotEligible("Account is blocked: Too many failed login attempts"), http.StatusForbidden},
	}
	for _, tc := range cases {
		r := buildAuthRouter(t, &stubAccounts{signInErr: tc.err}, &stubOTP{})
		w := doRequest(r, http.MethodPost, "/api/auth/signin", map[string]any{"email": "a@b.pk", "password": "x"}, "")
		assert.Equal(t, tc.want, w.Code)
		if tc.err != nil {
			assert.Equal(t, apperr.Message(tc.err), decode(t, w)["error"])
		}
	}
}

func TestSession(t *testing.T) {
	accounts := &stubAccounts{}
	r := buildAuthRouter(t, accounts, &stubOTP{})

	w := doRequest(r, http.MethodGet, "/api/auth/session", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodGet, "/api/auth/session", nil, "Bearer good")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "good", accounts.sessionTok)
}

func TestOTPVerify_Statuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{apperr.ErrCodeMismatch, http.StatusUnprocessableEntity},
		{apperr.ErrExpired, http.StatusGone},
		{apperr.ErrAttemptsExhausted, http.StatusGone},
	}
	for _, tc := range cases {
		r := buildAuthRouter(t, &stubAccounts{}, &stubOTP{verifyErr: tc.err})
		w := doRequest(r, http.MethodPost, "/api/otp/otp1/verify", map[string]any{"code": "123456"}, "")
		assert.Equal(t, tc.want, w.Code, "%v", tc.err)
	}

	r := buildAuthRouter(t, &stubAccounts{}, &stubOTP{})
	w := doRequest(r, http.MethodPost, "/api/otp/otp1/verify", map[string]any{"code": "12ab56"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOTPGenerate(t *testing.T) {
	r := buildAuthRouter(t, &stubAccounts{}, &stubOTP{})
	w := doRequest(r, http.MethodPost, "/api/otp", map[string]any{"otpType": "phone", "phone": "03001234567"}, "")
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(r, http.MethodPost, "/api/otp", map[string]any{"otpType": "fax"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	accounts := &stubAccounts{}
	r := buildAuthRouter(t, accounts, &stubOTP{})

	w := doRequest(r, http.MethodPost, "/api/admin/riders/r1/review", map[string]any{"action": "promote"}, "Bearer t")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/admin/riders/r1/review", map[string]any{"action": "ban"}, "Bearer t")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "reason", decode(t, w)["field"])

	w = doRequest(r, http.MethodPost, "/api/admin/riders/r1/review", map[string]any{"action": "approve"}, "Bearer t")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.ID("admin1"), accounts.review.AdminID)

	w = doRequest(r, http.MethodPost, "/api/admin/users/u7/block", map[string]any{"reason": "spam"}, "Bearer t")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, accounts.blocked["u7"])

	w = doRequest(r, http.MethodPost, "/api/admin/orders/o1/refund", nil, "Bearer t")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(r, http.MethodPost, "/api/admin/riders/r1/reputation", nil, "Bearer t")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4.5, decode(t, w)["averageRating"])
}

func TestProfileImage_RequiresFile(t *testing.T) {
	setupGin(t)
	r := gin.New()
	r.Use(httpmiddleware.Auth(asUser("sender1"), testUsers))
	r.POST("/api/me/profile-image", handlers.NewAuthHandler(&stubAccounts{}).ProfileImage)

	w := doRequest(r, http.MethodPost, "/api/me/profile-image", nil, "Bearer t")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct := multipartBody(t, nil, "image", "image/jpeg", []byte("jpg"))
	req := httptest.NewRequest(http.MethodPost, "/api/me/profile-image", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
