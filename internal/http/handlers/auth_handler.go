// README: Registration, sign-in, session and profile photo handlers.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"giftwave/internal/apperr"
	"giftwave/internal/http/middleware"
	"giftwave/internal/modules/account"
	"giftwave/internal/modules/otp"
	"giftwave/internal/types"
)

type Accounts interface {
	RegisterSender(ctx context.Context, r account.SenderRegistration) (*account.User, error)
	StartRiderRegistration(ctx context.Context, r account.RiderRegistration) (*otp.Verification, error)
	CompleteRiderRegistration(ctx context.Context, cmd account.CompleteRiderCommand) (*account.User, error)
	SignIn(ctx context.Context, email, password string) (*account.Session, error)
	GetSession(ctx context.Context, token string) (*account.Session, error)
	SetProfileImage(ctx context.Context, userID types.ID, data []byte, contentType string) (string, error)
}

type AuthHandler struct {
	accounts Accounts
}

func NewAuthHandler(accounts Accounts) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

type registerSenderReq struct {
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phoneNumber" binding:"required,pkphone"`
	FullName string `json:"fullName" binding:"required,person"`
	Password string `json:"password" binding:"required"`
}

type riderDetails struct {
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phoneNumber" binding:"required,pkphone"`
	FullName string `json:"fullName" binding:"required,person"`
	CNIC     string `json:"cnic" binding:"required,cnic"`
	City     string `json:"city" binding:"required"`
}

func (d riderDetails) registration() account.RiderRegistration {
	return account.RiderRegistration{Email: d.Email, Phone: d.Phone, FullName: d.FullName, CNIC: d.CNIC, City: d.City}
}

type completeRiderReq struct {
	riderDetails
	OTPID    string `json:"otpId" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type signInReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) RegisterSender(c *gin.Context) {
	var req registerSenderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	u, err := h.accounts.RegisterSender(c.Request.Context(), account.SenderRegistration{
		Email: req.Email, Phone: req.Phone, FullName: req.FullName, Password: req.Password,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"user": u})
}

// StartRider validates the rider's details and sends one OTP to phone and email.
func (h *AuthHandler) StartRider(c *gin.Context) {
	var req riderDetails
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	v, err := h.accounts.StartRiderRegistration(c.Request.Context(), req.registration())
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, gin.H{"otp": v})
}

func (h *AuthHandler) CompleteRider(c *gin.Context) {
	var req completeRiderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	u, err := h.accounts.CompleteRiderRegistration(c.Request.Context(), account.CompleteRiderCommand{
		OTPID:    types.ID(req.OTPID),
		Rider:    req.registration(),
		Password: req.Password,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"user": u})
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req signInReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	s, err := h.accounts.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s)
}

// Session resolves the bearer token to the current user, re-checking
// eligibility.
func (h *AuthHandler) Session(c *gin.Context) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		writeError(c, apperr.ErrInvalidCredentials)
		return
	}
	s, err := h.accounts.GetSession(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s)
}

func (h *AuthHandler) ProfileImage(c *gin.Context) {
	up, err := readUpload(c, "image")
	if err != nil {
		writeError(c, err)
		return
	}
	if up == nil {
		writeError(c, apperr.Validation("image", "Image is required"))
		return
	}
	url, err := h.accounts.SetProfileImage(c.Request.Context(), middleware.CallerID(c), up.Data, up.ContentType)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"profileImageURL": url})
}
