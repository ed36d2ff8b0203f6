// README: Delivery fee quote handler.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"giftwave/internal/apperr"
	"giftwave/internal/modules/pricing"
)

type Quoter interface {
	Quote(ctx context.Context, origin, dest string) (pricing.Quote, error)
}

type PricingHandler struct {
	pricing Quoter
}

func NewPricingHandler(q Quoter) *PricingHandler {
	return &PricingHandler{pricing: q}
}

// Quote prices ?origin=&dest=; origin defaults to dest.
func (h *PricingHandler) Quote(c *gin.Context) {
	dest := c.Query("dest")
	if dest == "" {
		writeError(c, apperr.Validation("dest", "Destination city is required"))
		return
	}
	q, err := h.pricing.Quote(c.Request.Context(), c.DefaultQuery("origin", dest), dest)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, q)
}
