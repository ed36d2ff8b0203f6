// README: Base handler utilities (JSON helpers, error mapping, uploads).
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"giftwave/internal/apperr"
	"giftwave/internal/media"
	"giftwave/internal/modules/order"
	"giftwave/internal/modules/validation"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// isValidID accepts the uuid-style ids the stores generate.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

// pathID reads :id and answers 400 when it is malformed.
func pathID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: "Invalid id", Field: "id"})
		return "", false
	}
	return id, true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrNotEligible), errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidState), errors.Is(err, apperr.ErrAlreadyClaimed):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrExpired), errors.Is(err, apperr.ErrAttemptsExhausted):
		return http.StatusGone
	case errors.Is(err, apperr.ErrCodeMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError maps a service error to its status and user-facing message.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	resp := errorResponse{Error: apperr.Message(err)}
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	writeJSON(c, statusFor(err), resp)
}

// writeBindError reports a request body that failed binding or validation tags.
func writeBindError(c *gin.Context, err error) {
	_ = c.Error(err)
	if field, msg, ok := validation.Describe(err); ok {
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: msg, Field: field})
		return
	}
	writeJSON(c, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
}

// readUpload returns the multipart file under field, or nil when absent or
// when the request is not multipart.
func readUpload(c *gin.Context, field string) (*order.Upload, error) {
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		return nil, nil
	}
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Validation(field, "Invalid file upload")
	}
	if fh.Size > media.MaxVideoBytes {
		return nil, media.ErrTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperr.Validation(field, "Invalid file upload")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, media.MaxVideoBytes+1))
	if err != nil {
		return nil, apperr.Validation(field, "Invalid file upload")
	}
	return &order.Upload{Data: data, ContentType: fh.Header.Get("Content-Type")}, nil
}
