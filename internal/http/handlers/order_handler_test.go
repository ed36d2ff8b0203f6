// README: Handler tests for auth gating, request binding and error mapping.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"giftwave/internal/apperr"
	"giftwave/internal/http/handlers"
	httpmiddleware "giftwave/internal/http/middleware"
	"giftwave/internal/infra"
	"giftwave/internal/modules/account"
	"giftwave/internal/modules/matching"
	"giftwave/internal/modules/order"
	"giftwave/internal/modules/validation"
	"giftwave/internal/types"
)

var rulesOnce sync.Once

func setupGin(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rulesOnce.Do(func() {
		if err := validation.RegisterRules(binding.Validator.Engine().(*validator.Validate)); err != nil {
			t.Fatalf("register rules: %v", err)
		}
	})
}

// stubTokenVerifier is a test double for infra.TokenVerifier.
type stubTokenVerifier struct {
	token *infra.Token
	err   error
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.Token, error) {
	return s.token, s.err
}

type stubUsers map[types.ID]*account.User

func (s stubUsers) Authorize(_ context.Context, id types.ID) (*account.User, error) {
	u, ok := s[id]
	if !ok {
		return nil, apperr.ErrInvalidCredentials
	}
	return u, nil
}

func (s stubUsers) AuthorizeFirebase(context.Context, string, string) (*account.User, error) {
	return nil, apperr.ErrInvalidCredentials
}

var testUsers = stubUsers{
	"sender1": {ID: "sender1", UserType: account.UserTypeSender},
	"rider1":  {ID: "rider1", UserType: account.UserTypeRider, RiderStatus: account.RiderApproved},
}

// stubOrders implements the sender and rider order surfaces. err, when set,
// is returned from every call.
type stubOrders struct {
	err       error
	timeframe order.Timeframe
	create   order.CreateCommand
	price    order.ConfirmPriceCommand
	claim    order.ClaimCommand
	rateErr  error
	getErr   error
	lastKind order.MediaKind
}

func (s *stubOrders) result() (*order.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &order.Order{ID: "o1", Status: order.StatusPending}, nil
}

func (s *stubOrders) Create(_ context.Context, cmd order.CreateCommand) (*order.Order, error) {
	s.create = cmd
	return s.result()
}

func (s *stubOrders) GetFor(context.Context, types.ID, *account.User) (*order.Order, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.result()
}

func (s *stubOrders) ListBySender(context.Context, types.ID) ([]*order.Order, error) { return nil, s.err }
func (s *stubOrders) ListByRider(context.Context, types.ID) ([]*order.Order, error)  { return nil, s.err }

func (s *stubOrders) ConfirmPayment(context.Context, order.ConfirmPaymentCommand) (*order.Order, error) {
	return s.result()
}

func (s *stubOrders) DisputePayment(context.Context, order.DisputeCommand) (*order.Order, error) {
	return s.result()
}

func (s *stubOrders) Rate(context.Context, order.RateCommand) (*order.Order, error) {
	if s.rateErr != nil {
		return &order.Order{ID: "o1", Status: order.StatusDelivered}, s.rateErr
	}
	return s.result()
}

func (s *stubOrders) Cancel(context.Context, order.CancelCommand) (*order.Order, error) {
	return s.result()
}

func (s *stubOrders) ConfirmActualPrice(_ context.Context, cmd order.ConfirmPriceCommand) (*order.Order, error) {
	s.price = cmd
	return s.result()
}

func (s *stubOrders) MarkDelivered(context.Context, order.DeliverCommand) (*order.Order, error) {
	return s.result()
}

func (s *stubOrders) AttachMedia(_ context.Context, cmd order.AttachMediaCommand) (*order.Order, error) {
	s.lastKind = cmd.Kind
	return s.result()
}

func (s *stubOrders) Earnings(_ context.Context, _ types.ID, tf order.Timeframe) (*order.Earnings, error) {
	s.timeframe = tf
	if s.err != nil {
		return nil, s.err
	}
	return &order.Earnings{Timeframe: tf, Total: types.PKR(800), Deliveries: 2}, nil
}

func (s *stubOrders) ListAvailable(context.Context, matching.Query) ([]matching.Candidate, error) {
	return nil, s.err
}

func (s *stubOrders) Claim(_ context.Context, cmd order.ClaimCommand) (*order.Order, error) {
	s.claim = cmd
	return s.result()
}

func (s *stubOrders) UpdatePresence(context.Context, matching.Presence) error { return s.err }
func (s *stubOrders) RemovePresence(context.Context, types.ID) error          { return s.err }

// buildTestRouter wires a minimal gin engine with the auth middleware and the
// order and rider handlers.
func buildTestRouter(t *testing.T, verifier infra.TokenVerifier, svc *stubOrders) *gin.Engine {
	setupGin(t)
	r := gin.New()
	r.Use(httpmiddleware.Auth(verifier, testUsers))
	oh := handlers.NewOrderHandler(svc)
	rh := handlers.NewRiderHandler(svc, svc, svc)
	r.POST("/api/orders", oh.Create)
	r.GET("/api/orders", oh.List)
	r.GET("/api/orders/:id", oh.Get)
	r.POST("/api/orders/:id/rating", oh.Rate)
	r.POST("/api/orders/:id/cancel", oh.Cancel)
	r.GET("/api/riders/orders/available", rh.ListAvailable)
	r.POST("/api/riders/orders/:id/claim", rh.Claim)
	r.POST("/api/riders/orders/:id/price", rh.ConfirmPrice)
	r.POST("/api/riders/orders/:id/media", rh.AttachMedia)
	r.GET("/api/riders/earnings", rh.Earnings)
	return r
}

func asUser(uid string) *stubTokenVerifier {
	return &stubTokenVerifier{token: &infra.Token{UID: uid, Claims: map[string]interface{}{}}}
}

func doRequest(r *gin.Engine, method, path string, body interface{}, authHeader string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func validOrderBody() map[string]any {
	return map[string]any{
		"giftName":              "Roses",
		"receiverName":          "Sara Khan",
		"receiverAddress":       "House 12, Street 4, DHA Phase 5",
		"receiverCity":          "Lahore",
		"receiverPhone":         "03001234567",
		"estimatedProductPrice": 2000,
		"tip":                   100,
	}
}

func TestCreate_Unauthenticated(t *testing.T) {
	r := buildTestRouter(t, &stubTokenVerifier{err: errors.New("no token")}, &stubOrders{})
	w := doRequest(r, http.MethodPost, "/api/orders", validOrderBody(), "Bearer badtoken")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestCreate_UnknownUser(t *testing.T) {
	r := buildTestRouter(t, asUser("ghost"), &stubOrders{})
	w := doRequest(r, http.MethodPost, "/api/orders", validOrderBody(), "Bearer t")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestCreate_SenderTakenFromToken(t *testing.T) {
	svc := &stubOrders{}
	r := buildTestRouter(t, asUser("sender1"), svc)
	body := validOrderBody()
	body["senderId"] = "someone-else"
	w := doRequest(r, http.MethodPost, "/api/orders", body, "Bearer t")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if svc.create.SenderID != "sender1" {
		t.Fatalf("sender = %q, want sender1", svc.create.SenderID)
	}
	if svc.create.EstimatedPrice == nil || *svc.create.EstimatedPrice != 2000 {
		t.Fatalf("estimated price not passed through")
	}
}

func TestCreate_BindingRules(t *testing.T) {
	cases := map[string]func(map[string]any){
		"bad phone":     func(b map[string]any) { b["receiverPhone"] = "12345" },
		"missing gift":  func(b map[string]any) { delete(b, "giftName") },
		"bad link":      func(b map[string]any) { b["productLink"] = "ftp://example.com" },
		"negative tip":  func(b map[string]any) { b["tip"] = -5 },
		"digit in name": func(b map[string]any) { b["receiverName"] = "Sara 2" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubOrders{}
			r := buildTestRouter(t, asUser("sender1"), svc)
			body := validOrderBody()
			mutate(body)
			w := doRequest(r, http.MethodPost, "/api/orders", body, "Bearer t")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if decode(t, w)["error"] == "" {
				t.Fatalf("expected error message")
			}
			if svc.create.SenderID != "" {
				t.Fatalf("service should not be called")
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("giftName", "Gift name is required"), http.StatusBadRequest},
		{apperr.ErrInvalidCredentials, http.StatusUnauthorized},
		{apperr.NotEligible("Your rider account is pending approval"), http.StatusForbidden},
		{apperr.ErrForbidden, http.StatusForbidden},
		{apperr.ErrNotFound, http.StatusNotFound},
		{apperr.ErrAlreadyClaimed, http.StatusConflict},
		{apperr.InvalidState("cancelled", "accepted"), http.StatusConflict},
		{apperr.ErrExpired, http.StatusGone},
		{apperr.ErrAttemptsExhausted, http.StatusGone},
		{apperr.ErrCodeMismatch, http.StatusUnprocessableEntity},
		{apperr.Unavailable("claim", errors.New("db down")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := buildTestRouter(t, asUser("rider1"), &stubOrders{err: tc.err})
		w := doRequest(r, http.MethodPost, "/api/riders/orders/o1/claim", nil, "Bearer t")
		if w.Code != tc.want {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
		if msg := decode(t, w)["error"]; msg != apperr.Message(tc.err) {
			t.Errorf("%v: message %q, want %q", tc.err, msg, apperr.Message(tc.err))
		}
	}
}

func TestClaim_RiderTakenFromToken(t *testing.T) {
	svc := &stubOrders{}
	r := buildTestRouter(t, asUser("rider1"), svc)
	w := doRequest(r, http.MethodPost, "/api/riders/orders/o1/claim", nil, "Bearer t")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if svc.claim.RiderID != "rider1" || svc.claim.OrderID != "o1" {
		t.Fatalf("unexpected claim command %+v", svc.claim)
	}
}

func TestInvalidPathID(t *testing.T) {
	r := buildTestRouter(t, asUser("rider1"), &stubOrders{})
	w := doRequest(r, http.MethodPost, "/api/riders/orders/bad%20id/claim", nil, "Bearer t")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGet_Forbidden(t *testing.T) {
	r := buildTestRouter(t, asUser("sender1"), &stubOrders{getErr: apperr.ErrForbidden})
	w := doRequest(r, http.MethodGet, "/api/orders/o1", nil, "Bearer t")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestList_EmptyIsArray(t *testing.T) {
	r := buildTestRouter(t, asUser("sender1"), &stubOrders{})
	w := doRequest(r, http.MethodGet, "/api/orders", nil, "Bearer t")
	if w.Code != http.StatusOK || w.Body.String() != `{"orders":[]}` {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}

func TestRate_ReputationPendingStillSucceeds(t *testing.T) {
	r := buildTestRouter(t, asUser("sender1"), &stubOrders{rateErr: order.ErrReputationPending})
	w := doRequest(r, http.MethodPost, "/api/orders/o1/rating", map[string]any{"rating": 5}, "Bearer t")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if decode(t, w)["warning"] == nil {
		t.Fatalf("expected warning in body")
	}
}

func TestRate_OutOfRange(t *testing.T) {
	r := buildTestRouter(t, asUser("sender1"), &stubOrders{})
	w := doRequest(r, http.MethodPost, "/api/orders/o1/rating", map[string]any{"rating": 6}, "Bearer t")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCancel_WithoutBody(t *testing.T) {
	r := buildTestRouter(t, asUser("sender1"), &stubOrders{})
	w := doRequest(r, http.MethodPost, "/api/orders/o1/cancel", nil, "Bearer t")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestListAvailable_BadCoordinates(t *testing.T) {
	r := buildTestRouter(t, asUser("rider1"), &stubOrders{})
	w := doRequest(r, http.MethodGet, "/api/riders/orders/available?lat=abc&lng=74.3", nil, "Bearer t")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func multipartBody(t *testing.T, fields map[string]string, fileField, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileField != "" {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="`+fileField+`"; filename="upload"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(data)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestConfirmPrice_MultipartReceipt(t *testing.T) {
	svc := &stubOrders{}
	r := buildTestRouter(t, asUser("rider1"), svc)
	body, ct := multipartBody(t, map[string]string{"actualProductPrice": "2150"}, "receipt", "image/png", []byte("png"))
	req := httptest.NewRequest(http.MethodPost, "/api/riders/orders/o1/price", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer t")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if svc.price.ActualPrice != 2150 || svc.price.Receipt == nil {
		t.Fatalf("unexpected command %+v", svc.price)
	}
	if svc.price.Receipt.ContentType != "image/png" || string(svc.price.Receipt.Data) != "png" {
		t.Fatalf("receipt not passed through")
	}
}

func TestConfirmPrice_JSONWithoutReceipt(t *testing.T) {
	svc := &stubOrders{}
	r := buildTestRouter(t, asUser("rider1"), svc)
	w := doRequest(r, http.MethodPost, "/api/riders/orders/o1/price", map[string]any{"actualProductPrice": 900}, "Bearer t")
	if w.Code != http.StatusOK || svc.price.Receipt != nil || svc.price.ActualPrice != 900 {
		t.Fatalf("got %d %+v", w.Code, svc.price)
	}
}

func TestAttachMedia_RequiresFile(t *testing.T) {
	svc := &stubOrders{}
	r := buildTestRouter(t, asUser("rider1"), svc)
	body, ct := multipartBody(t, map[string]string{"kind": "giftImage"}, "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/riders/orders/o1/media", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer t")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	body, ct = multipartBody(t, map[string]string{"kind": "reactionVideo"}, "file", "video/mp4", []byte("mp4"))
	req = httptest.NewRequest(http.MethodPost, "/api/riders/orders/o1/media", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer t")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || svc.lastKind != order.MediaReactionVideo {
		t.Fatalf("got %d kind=%s", w.Code, svc.lastKind)
	}
}

func TestEarnings_TimeframeFromQuery(t *testing.T) {
	svc := &stubOrders{}
	r := buildTestRouter(t, asUser("rider1"), svc)
	w := doRequest(r, http.MethodGet, "/api/riders/earnings?timeframe=month", nil, "Bearer t")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	if svc.timeframe != order.TimeframeMonth {
		t.Fatalf("timeframe = %q", svc.timeframe)
	}
	earnings, _ := decode(t, w)["earnings"].(map[string]any)
	if earnings["deliveries"] != float64(2) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	svc.err = apperr.Validation("timeframe", "Timeframe must be week, month, year or all")
	if w := doRequest(r, http.MethodGet, "/api/riders/earnings?timeframe=decade", nil, "Bearer t"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
