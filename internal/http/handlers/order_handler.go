// README: Sender-side order handlers: create, read, pay, dispute, rate, cancel.
package handlers

import (
    "context"
    "errors"
    "net/http"

    "github.com/gin-gonic/gin"

    "giftwave/internal/apperr"
    "giftwave/internal/http/middleware"
    "giftwave/internal/modules/account"
    "giftwave/internal/modules/order"
    "giftwave/internal/types"
)

type SenderOrders interface {
    Create(ctx context.Context, cmd order.CreateCommand) (*order.Order, error)
    GetFor(ctx context.Context, id types.ID, viewer *account.User) (*order.Order, error)
    ListBySender(ctx context.Context, senderID types.ID) ([]*order.Order, error)
    ConfirmPayment(ctx context.Context, cmd order.ConfirmPaymentCommand) (*order.Order, error)
    DisputePayment(ctx context.Context, cmd order.DisputeCommand) (*order.Order, error)
    Rate(ctx context.Context, cmd order.RateCommand) (*order.Order, error)
    Cancel(ctx context.Context, cmd order.CancelCommand) (*order.Order, error)
}

type OrderHandler struct {
    order SenderOrders
}

func NewOrderHandler(svc SenderOrders) *OrderHandler {
    return &OrderHandler{order: svc}
}

type createOrderReq struct {
    GiftName         string       `json:"giftName" binding:"required"`
    ProductURL       string       `json:"productLink" binding:"omitempty,httpurl"`
    PersonalNote     string       `json:"personalMessage"`
    RequestVideo     bool         `json:"requestVideo"`
    ReceiverName     string       `json:"receiverName" binding:"required,person"`
    ReceiverAddress  string       `json:"receiverAddress" binding:"required"`
    ReceiverCity     string       `json:"receiverCity" binding:"required"`
    ReceiverPhone    string       `json:"receiverPhone" binding:"required,pkphone"`
    OriginCity       string       `json:"originCity"`
    DeliveryLocation *types.Point `json:"deliveryLocation"`
    EstimatedPrice   *int64       `json:"estimatedProductPrice" binding:"omitempty,gte=0"`
    Tip              *int64       `json:"tip" binding:"omitempty,gte=0"`
}

type paymentReq struct {
    Method string `form:"paymentMethod" json:"paymentMethod" binding:"required"`
}

type disputeReq struct {
    Reason string `json:"reason" binding:"required"`
}

type rateReq struct {
    Rating int    `json:"rating" binding:"required,min=1,max=5"`
    Review string `json:"review" binding:"max=500"`
}

type cancelReq struct {
    Reason string `json:"reason"`
}

func (h *OrderHandler) Create(c *gin.Context) {
    var req createOrderReq
    if err := c.ShouldBindJSON(&req); err != nil {
        writeBindError(c, err)
        return
    }
    o, err := h.order.Create(c.Request.Context(), order.CreateCommand{
        SenderID:         middleware.CallerID(c),
        GiftName:         req.GiftName,
        ProductURL:       req.ProductURL,
        PersonalNote:     req.PersonalNote,
        RequestVideo:     req.RequestVideo,
        ReceiverName:     req.ReceiverName,
        ReceiverAddress:  req.ReceiverAddress,
        ReceiverCity:     req.ReceiverCity,
        ReceiverPhone:    req.ReceiverPhone,
        OriginCity:       req.OriginCity,
        DeliveryLocation: req.DeliveryLocation,
        EstimatedPrice:   req.EstimatedPrice,
        Tip:              req.Tip,
    })
    if err != nil {
        writeError(c, err)
        return
    }
    writeJSON(c, http.StatusCreated, gin.H{"order": o})
}

func (h *OrderHandler) Get(c *gin.Context) {
    id, ok := pathID(c)
    if !ok {
        return
    }
    viewer := middleware.CallerUser(c)
    if viewer == nil {
        writeError(c, apperr.ErrInvalidCredentials)
        return
    }
    o, err := h.order.GetFor(c.Request.Context(), types.ID(id), viewer)
    if err != nil {
        writeError(c, err)
        return
    }
    writeJSON(c, http.StatusOK, gin.H{"order": o})
}

func (h *OrderHandler) List(c *gin.Context) {
    orders, err := h.order.ListBySender(c.Request.Context(), middleware.CallerID(c))
    if err != nil {
        writeError(c, err)
        return
    }
    writeJSON(c, http.StatusOK, gin.H{"orders": nonNil(orders)})
}

// ConfirmPayment accepts JSON or a multipart form with an optional "proof" file.
func (h *OrderHandler) ConfirmPayment(c *gin.Context) {
    id, ok := pathID(c)
    if !ok {
        return
    }
    var req paymentReq
    if err := c.ShouldBind(&req); err != nil {
        writeBindError(c, err)
        return
    }
    proof, err := readUpload(c, "proof")
    if err != nil {
        writeError(c, err)
        return
    }
    o, err := h.order.ConfirmPayment(c.Request.Context(), order.ConfirmPaymentCommand{
        OrderID:  types.ID(id),
        SenderID: middleware.CallerID(c),
        Method:   req.Method,
        Proof:    proof,
    })
    if err != nil {
        writeError(c, err)
        return
    }
    writeJSON(c, http.StatusOK, gin.H{"order": o})
}

func (h *OrderHandler) Dispute(c *gin.Context) {
    id, ok := pathID(c)
    if !ok {
        return
    }
    var req disputeReq
    if err := c.ShouldBindJSON(&req); err != nil {
        writeBindError(c, err)
        return
    }
    o, err := h.order.DisputePayment(c.Request.Context(), order.DisputeCommand{
        OrderID:  types.ID(id),
        SenderID: middleware.CallerID(c),
        Reason:   req.Reason,
    })
    if err != nil {
        writeError(c, err)
        return
    }
    writeJSON(c, http.StatusOK, gin.H{"order": o})
}

// Rate answers 200 with a warning when the rating was stored but the rider's
// reputation still needs a recompute.
func (h *OrderHandler) Rate(c *gin.Context) {
    id, ok := pathID(c)
    if !ok {
        return
    }
    var req rateReq
    if err := c.ShouldBindJSON(&req); err != nil {
        writeBindError(c, err)
        return
    }
    o, err := h.order.Rate(c.Request.Context(), order.RateCommand{
        OrderID:  types.ID(id),
        SenderID: middleware.CallerID(c),
        Rating:   req.Rating,
        Review:   req.Review,
    })
    if errors.Is(err, order.ErrReputationPending) {
        _ = c.Error(err)
        writeJSON(c, http.StatusOK, gin.H{"order": o, "warning": "Rating saved. The rider's score will update shortly."})
        return
    }
    if err != nil {
        writeError(c, err)
        return
    }
    writeJSON(c, http.StatusOK, gin.H{"order": o})
}

func (h *OrderHandler) Cancel(c *gin.Context) {
    id, ok := pathID(c)
    if !ok {
        return
    }
    var req cancelReq
    if c.Request.ContentLength > 0 {
        if err := c.ShouldBindJSON(&req); err != nil {
            writeBindError(c, err)
            return
        }
    }
    o, err := h.order.Cancel(c.Request.Context(), order.CancelCommand{
        OrderID: types.ID(id),
        ActorID: middleware.CallerID(c),
        Reason:  req.Reason,
    })
    if err != nil {
        writeError(c, err)
        return
    }
    writeJSON(c, http.StatusOK, gin.H{"order": o})
}

func nonNil[T any](s []T) []T {
    if s == nil {
        return []T{}
    }
    return s
}
