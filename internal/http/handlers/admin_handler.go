// README: Admin handlers for rider review, blocking, refunds and reputation repair.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"giftwave/internal/http/middleware"
	"giftwave/internal/modules/account"
	"giftwave/internal/modules/order"
	"giftwave/internal/types"
)

type Admin interface {
	ListRiders(ctx context.Context, adminID types.ID, status account.RiderStatus) ([]*account.User, error)
	ReviewRider(ctx context.Context, cmd account.ReviewCommand) (*account.User, error)
	Block(ctx context.Context, cmd account.BlockCommand) error
	Unblock(ctx context.Context, cmd account.BlockCommand) error
}

type AdminOrders interface {
	ListPending(ctx context.Context) ([]*order.Order, error)
	RefundPayment(ctx context.Context, cmd order.RefundCommand) (*order.Order, error)
}

type Reputation interface {
	Recompute(ctx context.Context, riderID types.ID) (account.Stats, error)
}

type AdminHandler struct {
	accounts   Admin
	orders     AdminOrders
	reputation Reputation
}

func NewAdminHandler(accounts Admin, orders AdminOrders, reputation Reputation) *AdminHandler {
	return &AdminHandler{accounts: accounts, orders: orders, reputation: reputation}
}

type reviewReq struct {
	Action string `json:"action" binding:"required,oneof=approve reject ban"`
	Reason string `json:"reason"`
}

type blockReq struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) ListRiders(c *gin.Context) {
	status := account.RiderStatus(c.DefaultQuery("status", string(account.RiderPending)))
	riders, err := h.accounts.ListRiders(c.Request.Context(), middleware.CallerID(c), status)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"riders": nonNil(riders)})
}

func (h *AdminHandler) ReviewRider(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req reviewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	u, err := h.accounts.ReviewRider(c.Request.Context(), account.ReviewCommand{
		AdminID: middleware.CallerID(c),
		RiderID: types.ID(id),
		Action:  account.ReviewAction(req.Action),
		Reason:  req.Reason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"rider": u})
}

func (h *AdminHandler) Block(c *gin.Context) {
	h.setBlocked(c, true)
}

func (h *AdminHandler) Unblock(c *gin.Context) {
	h.setBlocked(c, false)
}

func (h *AdminHandler) setBlocked(c *gin.Context, blocked bool) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req blockReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
	}
	cmd := account.BlockCommand{AdminID: middleware.CallerID(c), UserID: types.ID(id), Reason: req.Reason}
	var err error
	if blocked {
		err = h.accounts.Block(c.Request.Context(), cmd)
	} else {
		err = h.accounts.Unblock(c.Request.Context(), cmd)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) PendingOrders(c *gin.Context) {
	orders, err := h.orders.ListPending(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": nonNil(orders)})
}

func (h *AdminHandler) Refund(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.orders.RefundPayment(c.Request.Context(), order.RefundCommand{
		OrderID: types.ID(id),
		AdminID: middleware.CallerID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order": o})
}

// RecomputeReputation retries a rider's reputation after a failed update.
func (h *AdminHandler) RecomputeReputation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	st, err := h.reputation.Recompute(c.Request.Context(), types.ID(id))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"averageRating": st.AverageRating, "totalDeliveries": st.TotalDeliveries})
}
