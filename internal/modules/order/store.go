// README: Order store backed by PostgreSQL. Every transition is a conditional UPDATE.
package order

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"

    "giftwave/internal/apperr"
    "giftwave/internal/types"
)

// Repository is the persistence surface the service needs. Claim and Update
// report false when the guarding condition no longer holds.
type Repository interface {
    Create(ctx context.Context, o *Order) error
    Get(ctx context.Context, id types.ID) (*Order, error)
    Claim(ctx context.Context, id types.ID, rider Party, at time.Time) (bool, error)
    Update(ctx context.Context, o *Order, expect Status, version int) (bool, error)
    ListAvailable(ctx context.Context, city string) ([]*Order, error)
    ListPending(ctx context.Context) ([]*Order, error)
    ListBySender(ctx context.Context, senderID types.ID) ([]*Order, error)
    ListByRider(ctx context.Context, riderID types.ID) ([]*Order, error)
    RatingsForRider(ctx context.Context, riderID types.ID) ([]int, error)
    DeliveredByRider(ctx context.Context, riderID types.ID, since time.Time) ([]*Order, error)
    AppendEvent(ctx context.Context, e *Event) error
}

type Store struct {
    db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
    return &Store{db: db}
}

const orderColumns = `
    id, sender_id, sender_name, sender_phone, rider_id, rider_name, rider_phone,
    status, status_version, gift_name, product_url, personal_note, request_video,
    receiver_name, receiver_address, receiver_city, receiver_phone, origin_city,
    delivery_lat, delivery_lng, currency, delivery_fee, tip, estimated_price,
    actual_price, total_amount, payment_status, payment_method,
    gift_image_url, receipt_image_url, payment_proof_url, reaction_video_url,
    rating, review, created_at, updated_at, accepted_at, delivered_at,
    cancelled_at, cancel_reason`

func (s *Store) Create(ctx context.Context, o *Order) error {
    var lat, lng *float64
    if o.DeliveryLocation != nil {
        lat, lng = &o.DeliveryLocation.Lat, &o.DeliveryLocation.Lng
    }
    _, err := s.db.Exec(ctx, `
        INSERT INTO orders (
            id, sender_id, sender_name, sender_phone, status, status_version,
            gift_name, product_url, personal_note, request_video,
            receiver_name, receiver_address, receiver_city, receiver_phone, origin_city,
            delivery_lat, delivery_lng, currency, delivery_fee, tip, estimated_price,
            total_amount, payment_status, created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6,
            $7, $8, $9, $10,
            $11, $12, $13, $14, $15,
            $16, $17, $18, $19, $20, $21,
            $22, $23, $24, $25
        )`,
        string(o.ID), string(o.Sender.ID), o.Sender.Name, o.Sender.Phone,
        string(o.Status), o.StatusVersion,
        o.GiftName, o.ProductURL, o.PersonalNote, o.RequestVideo,
        o.ReceiverName, o.ReceiverAddress, o.ReceiverCity, o.ReceiverPhone, o.OriginCity,
        lat, lng, o.DeliveryFee.Currency, o.DeliveryFee.Amount,
        amountPtr(o.Tip), amountPtr(o.EstimatedPrice),
        o.TotalAmount.Amount, string(o.PaymentStatus), o.CreatedAt, o.UpdatedAt,
    )
    return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
    row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
    o, err := scanOrder(row)
    if errors.Is(err, pgx.ErrNoRows) {
        return nil, apperr.ErrNotFound
    }
    return o, err
}

// Claim assigns the rider only while the order is still pending and
// unassigned. Concurrent callers race on this single statement.
func (s *Store) Claim(ctx context.Context, id types.ID, rider Party, at time.Time) (bool, error) {
    tag, err := s.db.Exec(ctx, `
        UPDATE orders
        SET status = 'accepted',
            status_version = status_version + 1,
            rider_id = $2,
            rider_name = $3,
            rider_phone = $4,
            accepted_at = $5,
            updated_at = $5
        WHERE id = $1 AND status = 'pending' AND rider_id IS NULL`,
        string(id), string(rider.ID), rider.Name, rider.Phone, at,
    )
    if err != nil {
        return false, err
    }
    return tag.RowsAffected() == 1, nil
}

// Update writes the mutable fields of o when the stored row still has the
// expected status and version.
func (s *Store) Update(ctx context.Context, o *Order, expect Status, version int) (bool, error) {
    tag, err := s.db.Exec(ctx, `
        UPDATE orders
        SET status = $3,
            status_version = status_version + 1,
            actual_price = $4,
            total_amount = $5,
            payment_status = $6,
            payment_method = $7,
            gift_image_url = $8,
            receipt_image_url = $9,
            payment_proof_url = $10,
            reaction_video_url = $11,
            rating = $12,
            review = $13,
            delivered_at = $14,
            cancelled_at = $15,
            cancel_reason = $16,
            updated_at = $17
        WHERE id = $1 AND status = $2 AND status_version = $18`,
        string(o.ID), string(expect), string(o.Status),
        amountPtr(o.ActualPrice), o.TotalAmount.Amount,
        string(o.PaymentStatus), o.PaymentMethod,
        o.GiftImageURL, o.ReceiptImageURL, o.PaymentProofURL, o.ReactionVideoURL,
        o.Rating, o.Review,
        o.DeliveredAt, o.CancelledAt, o.CancelReason, o.UpdatedAt,
        version,
    )
    if err != nil {
        return false, err
    }
    return tag.RowsAffected() == 1, nil
}

func (s *Store) ListAvailable(ctx context.Context, city string) ([]*Order, error) {
    return s.list(ctx, `
        SELECT `+orderColumns+` FROM orders
        WHERE status = 'pending' AND lower(receiver_city) = lower($1)
        ORDER BY created_at DESC`, city)
}

func (s *Store) ListPending(ctx context.Context) ([]*Order, error) {
    rows, err := s.db.Query(ctx, `
        SELECT `+orderColumns+` FROM orders
        WHERE status = 'pending'
        ORDER BY created_at DESC`)
    if err != nil {
        return nil, err
    }
    return collectOrders(rows)
}

func (s *Store) ListBySender(ctx context.Context, senderID types.ID) ([]*Order, error) {
    return s.list(ctx, `
        SELECT `+orderColumns+` FROM orders
        WHERE sender_id = $1
        ORDER BY created_at DESC`, string(senderID))
}

func (s *Store) ListByRider(ctx context.Context, riderID types.ID) ([]*Order, error) {
    return s.list(ctx, `
        SELECT `+orderColumns+` FROM orders
        WHERE rider_id = $1
        ORDER BY accepted_at DESC`, string(riderID))
}

func (s *Store) RatingsForRider(ctx context.Context, riderID types.ID) ([]int, error) {
    rows, err := s.db.Query(ctx, `
        SELECT rating FROM orders
        WHERE rider_id = $1 AND status = 'delivered' AND rating IS NOT NULL`,
        string(riderID),
    )
    if err != nil {
        return nil, err
    }
    return pgx.CollectRows(rows, pgx.RowTo[int])
}

// DeliveredByRider lists the rider's delivered orders, newest first, that
// were delivered at or after since.
func (s *Store) DeliveredByRider(ctx context.Context, riderID types.ID, since time.Time) ([]*Order, error) {
    rows, err := s.db.Query(ctx, `
        SELECT `+orderColumns+` FROM orders
        WHERE rider_id = $1 AND status = 'delivered' AND delivered_at >= $2
        ORDER BY delivered_at DESC`,
        string(riderID), since,
    )
    if err != nil {
        return nil, err
    }
    return collectOrders(rows)
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
    _, err := s.db.Exec(ctx, `
        INSERT INTO order_state_events (
            order_id, from_status, to_status, actor_type, actor_id, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6)`,
        string(e.OrderID),
        string(e.FromStatus),
        string(e.ToStatus),
        e.ActorType,
        toStringPtr(e.ActorID),
        e.CreatedAt,
    )
    return err
}

func (s *Store) list(ctx context.Context, query string, arg any) ([]*Order, error) {
    rows, err := s.db.Query(ctx, query, arg)
    if err != nil {
        return nil, err
    }
    return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]*Order, error) {
    defer rows.Close()

    var out []*Order
    for rows.Next() {
        o, err := scanOrder(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, o)
    }
    return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
    var o Order
    var riderID, riderName, riderPhone sql.NullString
    var lat, lng sql.NullFloat64
    var tip, estimated, actual sql.NullInt64
    var rating sql.NullInt32
    var acceptedAt, deliveredAt, cancelledAt sql.NullTime
    var currency string

    err := row.Scan(
        &o.ID, &o.Sender.ID, &o.Sender.Name, &o.Sender.Phone, &riderID, &riderName, &riderPhone,
        &o.Status, &o.StatusVersion, &o.GiftName, &o.ProductURL, &o.PersonalNote, &o.RequestVideo,
        &o.ReceiverName, &o.ReceiverAddress, &o.ReceiverCity, &o.ReceiverPhone, &o.OriginCity,
        &lat, &lng, &currency, &o.DeliveryFee.Amount, &tip, &estimated,
        &actual, &o.TotalAmount.Amount, &o.PaymentStatus, &o.PaymentMethod,
        &o.GiftImageURL, &o.ReceiptImageURL, &o.PaymentProofURL, &o.ReactionVideoURL,
        &rating, &o.Review, &o.CreatedAt, &o.UpdatedAt, &acceptedAt, &deliveredAt,
        &cancelledAt, &o.CancelReason,
    )
    if err != nil {
        return nil, err
    }

    if currency == "" {
        currency = types.DefaultCurrency
    }
    o.DeliveryFee.Currency = currency
    o.TotalAmount.Currency = currency
    if riderID.Valid {
        o.Rider = &Party{ID: types.ID(riderID.String), Name: riderName.String, Phone: riderPhone.String}
    }
    if lat.Valid && lng.Valid {
        o.DeliveryLocation = &types.Point{Lat: lat.Float64, Lng: lng.Float64}
    }
    o.Tip = toMoneyPtr(tip, currency)
    o.EstimatedPrice = toMoneyPtr(estimated, currency)
    o.ActualPrice = toMoneyPtr(actual, currency)
    if rating.Valid {
        r := int(rating.Int32)
        o.Rating = &r
    }
    o.AcceptedAt = toTimePtr(acceptedAt)
    o.DeliveredAt = toTimePtr(deliveredAt)
    o.CancelledAt = toTimePtr(cancelledAt)
    return &o, nil
}

func toStringPtr(v *types.ID) *string {
    if v == nil {
        return nil
    }
    s := string(*v)
    return &s
}

func amountPtr(v *types.Money) *int64 {
    if v == nil {
        return nil
    }
    n := v.Amount
    return &n
}

func toMoneyPtr(v sql.NullInt64, currency string) *types.Money {
    if !v.Valid {
        return nil
    }
    return &types.Money{Amount: v.Int64, Currency: currency}
}

func toTimePtr(v sql.NullTime) *time.Time {
    if !v.Valid {
        return nil
    }
    t := v.Time
    return &t
}
