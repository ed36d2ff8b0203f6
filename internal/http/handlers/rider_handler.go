// README: Rider handlers for listing, claim, purchase, delivery, media, presence and earnings.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"giftwave/internal/apperr"
	"giftwave/internal/http/middleware"
	"giftwave/internal/modules/matching"
	"giftwave/internal/modules/order"
	"giftwave/internal/types"
)

type Matching interface {
	ListAvailable(ctx context.Context, q matching.Query) ([]matching.Candidate, error)
	Claim(ctx context.Context, cmd order.ClaimCommand) (*order.Order, error)
}

type RiderOrders interface {
	ListByRider(ctx context.Context, riderID types.ID) ([]*order.Order, error)
	ConfirmActualPrice(ctx context.Context, cmd order.ConfirmPriceCommand) (*order.Order, error)
	MarkDelivered(ctx context.Context, cmd order.DeliverCommand) (*order.Order, error)
	AttachMedia(ctx context.Context, cmd order.AttachMediaCommand) (*order.Order, error)
	Earnings(ctx context.Context, riderID types.ID, tf order.Timeframe) (*order.Earnings, error)
}

type Presence interface {
	UpdatePresence(ctx context.Context, p matching.Presence) error
	RemovePresence(ctx context.Context, riderID types.ID) error
}

type RiderHandler struct {
	order    RiderOrders
	matching Matching
	presence Presence
}

func NewRiderHandler(orderSvc RiderOrders, matchingSvc Matching, presence Presence) *RiderHandler {
	return &RiderHandler{order: orderSvc, matching: matchingSvc, presence: presence}
}

type priceReq struct {
	ActualPrice int64 `form:"actualProductPrice" json:"actualProductPrice" binding:"required,gt=0"`
}

type mediaReq struct {
	Kind string `form:"kind" binding:"required,oneof=giftImage reactionVideo"`
}

type presenceReq struct {
	City        string  `json:"city" binding:"required"`
	Lat         float64 `json:"lat" binding:"gte=-90,lte=90"`
	Lng         float64 `json:"lng" binding:"gte=-180,lte=180"`
	DeviceToken string  `json:"deviceToken"`
}

// ListAvailable filters by ?city=, or by ?lat=&lng=&radiusKm= when a
// position is given.
func (h *RiderHandler) ListAvailable(c *gin.Context) {
	q := matching.Query{City: c.Query("city")}
	if lat, lng := c.Query("lat"), c.Query("lng"); lat != "" || lng != "" {
		p, err := parsePoint(lat, lng)
		if err != nil {
			writeError(c, err)
			return
		}
		q.Near = &p
		if r := c.Query("radiusKm"); r != "" {
			km, err := strconv.ParseFloat(r, 64)
			if err != nil {
				writeError(c, apperr.Validation("radiusKm", "Radius must be a number"))
				return
			}
			q.RadiusKm = km
		}
	}
	candidates, err := h.matching.ListAvailable(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": nonNil(candidates)})
}

func parsePoint(lat, lng string) (types.Point, error) {
	la, err1 := strconv.ParseFloat(lat, 64)
	ln, err2 := strconv.ParseFloat(lng, 64)
	if err1 != nil || err2 != nil || la < -90 || la > 90 || ln < -180 || ln > 180 {
		return types.Point{}, apperr.Validation("position", "Invalid coordinates")
	}
	return types.Point{Lat: la, Lng: ln}, nil
}

func (h *RiderHandler) ListMine(c *gin.Context) {
	orders, err := h.order.ListByRider(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": nonNil(orders)})
}

// Earnings reads ?timeframe=week|month|year|all, defaulting to week.
func (h *RiderHandler) Earnings(c *gin.Context) {
	e, err := h.order.Earnings(c.Request.Context(), middleware.CallerID(c), order.Timeframe(c.Query("timeframe")))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"earnings": e})
}

func (h *RiderHandler) Claim(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.matching.Claim(c.Request.Context(), order.ClaimCommand{
		OrderID: types.ID(id),
		RiderID: middleware.CallerID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order": o})
}

// ConfirmPrice accepts JSON or a multipart form with an optional "receipt" file.
func (h *RiderHandler) ConfirmPrice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req priceReq
	if err := c.ShouldBind(&req); err != nil {
		writeBindError(c, err)
		return
	}
	receipt, err := readUpload(c, "receipt")
	if err != nil {
		writeError(c, err)
		return
	}
	o, err := h.order.ConfirmActualPrice(c.Request.Context(), order.ConfirmPriceCommand{
		OrderID:     types.ID(id),
		RiderID:     middleware.CallerID(c),
		ActualPrice: req.ActualPrice,
		Receipt:     receipt,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order": o})
}

func (h *RiderHandler) Deliver(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.order.MarkDelivered(c.Request.Context(), order.DeliverCommand{
		OrderID: types.ID(id),
		RiderID: middleware.CallerID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order": o})
}

func (h *RiderHandler) AttachMedia(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req mediaReq
	if err := c.ShouldBind(&req); err != nil {
		writeBindError(c, err)
		return
	}
	file, err := readUpload(c, "file")
	if err != nil {
		writeError(c, err)
		return
	}
	if file == nil {
		writeError(c, apperr.Validation("file", "File is required"))
		return
	}
	o, err := h.order.AttachMedia(c.Request.Context(), order.AttachMediaCommand{
		OrderID: types.ID(id),
		RiderID: middleware.CallerID(c),
		Kind:    order.MediaKind(req.Kind),
		File:    *file,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order": o})
}

func (h *RiderHandler) UpdatePresence(c *gin.Context) {
	var req presenceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	err := h.presence.UpdatePresence(c.Request.Context(), matching.Presence{
		RiderID:     middleware.CallerID(c),
		City:        req.City,
		Position:    types.Point{Lat: req.Lat, Lng: req.Lng},
		DeviceToken: req.DeviceToken,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RiderHandler) RemovePresence(c *gin.Context) {
	if err := h.presence.RemovePresence(c.Request.Context(), middleware.CallerID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
