// README: API gateway; builds the gin engine, middleware chain and route table.
package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"giftwave/internal/http/middleware"
	"giftwave/internal/infra"
	"giftwave/internal/modules/account"
	"giftwave/internal/modules/matching"
	"giftwave/internal/modules/order"
	"giftwave/internal/modules/otp"
	"giftwave/internal/modules/pricing"
	"giftwave/internal/modules/reputation"
	"giftwave/internal/modules/safety"
)

type ServerDeps struct {
	Accounts   *account.Service
	OTP        *otp.Service
	Order      *order.Service
	Matching   *matching.Service
	Dispatcher *matching.Dispatcher
	Pricing    *pricing.Service
	Reputation *reputation.Service
	Safety     *safety.Service
	Verifier   infra.TokenVerifier
	Log        *zap.Logger

	AllowOrigins   []string
	RequestTimeout time.Duration
	// RatePerMinute and RateBurst limit the unauthenticated routes per client IP.
	RatePerMinute float64
	RateBurst     int
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 5 * time.Second
	}
	if deps.RatePerMinute <= 0 {
		deps.RatePerMinute = 30
	}
	if deps.RateBurst <= 0 {
		deps.RateBurst = 10
	}
	return &Server{deps: deps}
}

// Routes builds the engine. It fails only if the binding rules cannot be
// registered.
func (s *Server) Routes() (http.Handler, error) {
	if err := registerValidators(); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}

	r := gin.New()
	r.Use(
		middleware.RequestLogger(s.deps.Log),
		middleware.Recovery(s.deps.Log),
		cors.New(cors.Config{
			AllowOrigins:     s.deps.AllowOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		middleware.Timeout(s.deps.RequestTimeout),
	)

	limiter := middleware.NewRateLimiter(rate.Limit(s.deps.RatePerMinute/60), s.deps.RateBurst)
	var users middleware.Authorizer
	if s.deps.Accounts != nil {
		users = s.deps.Accounts
	}
	registerRoutes(r, s.deps, limiter.Middleware(), middleware.Auth(s.deps.Verifier, users))
	return r, nil
}
