// README: OTP generate, verify and resend handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"giftwave/internal/modules/otp"
	"giftwave/internal/types"
)

type Verifications interface {
	Generate(ctx context.Context, cmd otp.GenerateCommand) (*otp.Verification, error)
	Verify(ctx context.Context, id types.ID, code string) (bool, error)
	Resend(ctx context.Context, id types.ID) (*otp.Verification, error)
}

type OTPHandler struct {
	otp Verifications
}

func NewOTPHandler(v Verifications) *OTPHandler {
	return &OTPHandler{otp: v}
}

type generateOTPReq struct {
	Type  string `json:"otpType" binding:"required,oneof=phone email cnic"`
	Phone string `json:"phone" binding:"omitempty,pkphone"`
	Email string `json:"email" binding:"omitempty,email"`
	CNIC  string `json:"cnic" binding:"omitempty,cnic"`
}

type verifyOTPReq struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

func (h *OTPHandler) Generate(c *gin.Context) {
	var req generateOTPReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	v, err := h.otp.Generate(c.Request.Context(), otp.GenerateCommand{
		Type:     otp.Type(req.Type),
		Channels: otp.Channels{Phone: req.Phone, Email: req.Email, CNIC: req.CNIC},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"otp": v})
}

func (h *OTPHandler) Verify(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req verifyOTPReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	if _, err := h.otp.Verify(c.Request.Context(), types.ID(id), req.Code); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"verified": true})
}

func (h *OTPHandler) Resend(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	v, err := h.otp.Resend(c.Request.Context(), types.ID(id))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"otp": v})
}
