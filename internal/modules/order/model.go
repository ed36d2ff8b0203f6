// README: Gift order aggregate, status definitions and the transition table.
package order

import (
    "time"

    "giftwave/internal/types"
)

type Status string

const (
    StatusNone      Status = "none"
    StatusPending   Status = "pending"
    StatusAccepted  Status = "accepted"
    StatusPurchased Status = "purchased"
    StatusInTransit Status = "inTransit"
    StatusDelivered Status = "delivered"
    StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
    PaymentPending   PaymentStatus = "pending"
    PaymentConfirmed PaymentStatus = "confirmed"
    PaymentDisputed  PaymentStatus = "disputed"
    PaymentRefunded  PaymentStatus = "refunded"
)

// Party is a name/phone snapshot taken when a user joins an order.
type Party struct {
    ID    types.ID `json:"id"`
    Name  string   `json:"name"`
    Phone string   `json:"phone"`
}

type Order struct {
    ID            types.ID `json:"id"`
    Sender        Party    `json:"sender"`
    Rider         *Party   `json:"rider,omitempty"`
    Status        Status   `json:"status"`
    StatusVersion int      `json:"statusVersion"`

    GiftName     string `json:"giftName"`
    ProductURL   string `json:"productLink,omitempty"`
    PersonalNote string `json:"personalMessage,omitempty"`
    RequestVideo bool   `json:"requestVideo"`

    ReceiverName     string       `json:"receiverName"`
    ReceiverAddress  string       `json:"receiverAddress"`
    ReceiverCity     string       `json:"receiverCity"`
    ReceiverPhone    string       `json:"receiverPhone"`
    OriginCity       string       `json:"originCity,omitempty"`
    DeliveryLocation *types.Point `json:"deliveryLocation,omitempty"`

    DeliveryFee    types.Money   `json:"deliveryFee"`
    Tip            *types.Money  `json:"tip,omitempty"`
    EstimatedPrice *types.Money  `json:"estimatedProductPrice,omitempty"`
    ActualPrice    *types.Money  `json:"actualProductPrice,omitempty"`
    TotalAmount    types.Money   `json:"totalAmount"`
    PaymentStatus  PaymentStatus `json:"paymentStatus"`
    PaymentMethod  string        `json:"paymentMethod,omitempty"`

    GiftImageURL     string `json:"giftImageURL,omitempty"`
    ReceiptImageURL  string `json:"receiptImageURL,omitempty"`
    PaymentProofURL  string `json:"paymentProofURL,omitempty"`
    ReactionVideoURL string `json:"reactionVideoURL,omitempty"`

    Rating *int   `json:"rating,omitempty"`
    Review string `json:"review,omitempty"`

    CreatedAt    time.Time  `json:"createdAt"`
    UpdatedAt    time.Time  `json:"updatedAt"`
    AcceptedAt   *time.Time `json:"acceptedAt,omitempty"`
    DeliveredAt  *time.Time `json:"deliveredAt,omitempty"`
    CancelledAt  *time.Time `json:"cancelledAt,omitempty"`
    CancelReason string     `json:"cancelReason,omitempty"`
}

// RecomputeTotal applies total = (actual ?? estimated ?? 0) + fee + (tip ?? 0).
func (o *Order) RecomputeTotal() {
    total := types.Money{Currency: o.DeliveryFee.Currency}
    switch {
    case o.ActualPrice != nil:
        total = total.Add(*o.ActualPrice)
    case o.EstimatedPrice != nil:
        total = total.Add(*o.EstimatedPrice)
    }
    total = total.Add(o.DeliveryFee)
    if o.Tip != nil {
        total = total.Add(*o.Tip)
    }
    if total.Currency == "" {
        total.Currency = types.DefaultCurrency
    }
    o.TotalAmount = total
}

func (o *Order) RiderID() types.ID {
    if o.Rider == nil {
        return ""
    }
    return o.Rider.ID
}

func (o *Order) IsAssignedTo(riderID types.ID) bool {
    return o.Rider != nil && riderID != "" && o.Rider.ID == riderID
}

type Event struct {
    ID         int64
    OrderID    types.ID
    FromStatus Status
    ToStatus   Status
    ActorType  string
    ActorID    *types.ID
    CreatedAt  time.Time
}

const (
    ActorSender = "sender"
    ActorRider  = "rider"
    ActorAdmin  = "admin"
)

// AllowedTransitions represents the order state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
    StatusPending:   {StatusAccepted, StatusCancelled},
    StatusAccepted:  {StatusPurchased, StatusCancelled},
    StatusPurchased: {StatusInTransit},
    StatusInTransit: {StatusDelivered},
}

func CanTransition(from, to Status) bool {
    next, ok := AllowedTransitions[from]
    if !ok {
        return false
    }
    for _, s := range next {
        if s == to {
            return true
        }
    }
    return false
}

const maxReviewLen = 500
