// README: Rider earnings over delivered orders for a calendar timeframe.
package order

import (
    "context"
    "time"

    "giftwave/internal/apperr"
    "giftwave/internal/types"
)

type Timeframe string

const (
    TimeframeWeek  Timeframe = "week"
    TimeframeMonth Timeframe = "month"
    TimeframeYear  Timeframe = "year"
    TimeframeAll   Timeframe = "all"
)

// EarningEntry is one delivered order. The rider earns the fee and the tip;
// the product price is a reimbursement.
type EarningEntry struct {
    OrderID     types.ID    `json:"orderId"`
    GiftName    string      `json:"giftName"`
    DeliveredAt time.Time   `json:"deliveredAt"`
    DeliveryFee types.Money `json:"deliveryFee"`
    Tip         types.Money `json:"tip"`
    Amount      types.Money `json:"amount"`
}

type Earnings struct {
    Timeframe  Timeframe      `json:"timeframe"`
    Since      *time.Time     `json:"since,omitempty"`
    Total      types.Money    `json:"total"`
    Average    types.Money    `json:"average"`
    Deliveries int            `json:"deliveries"`
    Entries    []EarningEntry `json:"entries"`
}

// start returns the beginning of the calendar period holding now, or the zero
// time for TimeframeAll. Weeks start on Monday.
func (tf Timeframe) start(now time.Time) (time.Time, error) {
    y, m, d := now.Date()
    day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
    switch tf {
    case TimeframeWeek:
        offset := (int(day.Weekday()) + 6) % 7
        return day.AddDate(0, 0, -offset), nil
    case TimeframeMonth:
        return time.Date(y, m, 1, 0, 0, 0, 0, now.Location()), nil
    case TimeframeYear:
        return time.Date(y, time.January, 1, 0, 0, 0, 0, now.Location()), nil
    case TimeframeAll:
        return time.Time{}, nil
    }
    return time.Time{}, apperr.Validation("timeframe", "Timeframe must be week, month, year or all")
}

func earningFor(o *Order) EarningEntry {
    e := EarningEntry{
        OrderID:     o.ID,
        GiftName:    o.GiftName,
        DeliveryFee: o.DeliveryFee,
        Tip:         types.Money{Currency: o.DeliveryFee.Currency},
    }
    if o.DeliveredAt != nil {
        e.DeliveredAt = *o.DeliveredAt
    }
    if o.Tip != nil {
        e.Tip = *o.Tip
    }
    e.Amount = e.DeliveryFee.Add(e.Tip)
    return e
}

// Earnings totals what riderID earned from orders delivered in the current
// timeframe. An empty timeframe means the current week.
func (s *Service) Earnings(ctx context.Context, riderID types.ID, tf Timeframe) (*Earnings, error) {
    if tf == "" {
        tf = TimeframeWeek
    }
    since, err := tf.start(s.now())
    if err != nil {
        return nil, err
    }
    orders, err := s.repo.DeliveredByRider(ctx, riderID, since)
    if err != nil {
        return nil, apperr.Unavailable("list delivered orders", err)
    }

    out := &Earnings{
        Timeframe: tf,
        Total:     types.PKR(0),
        Average:   types.PKR(0),
        Entries:   make([]EarningEntry, 0, len(orders)),
    }
    if !since.IsZero() {
        out.Since = &since
    }
    for _, o := range orders {
        e := earningFor(o)
        out.Entries = append(out.Entries, e)
        out.Total = out.Total.Add(e.Amount)
    }
    out.Deliveries = len(out.Entries)
    if out.Deliveries > 0 {
        out.Average = types.Money{Amount: out.Total.Amount / int64(out.Deliveries), Currency: out.Total.Currency}
    }
    return out, nil
}
