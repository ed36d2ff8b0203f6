// README: Order service implements state transitions and persistence.
package order

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"
    "unicode/utf8"

    "go.uber.org/zap"

    "giftwave/internal/apperr"
    "giftwave/internal/modules/account"
    "giftwave/internal/modules/validation"
    "giftwave/internal/types"
)

// Users resolves the acting account so eligibility is checked on fresh data.
type Users interface {
    Get(ctx context.Context, id types.ID) (*account.User, error)
}

type Pricing interface {
    DeliveryFee(ctx context.Context, origin, dest string) (types.Money, error)
}

type MediaStore interface {
    Store(ctx context.Context, data []byte, contentType, path string) (string, error)
}

type Reputation interface {
    Recompute(ctx context.Context, riderID types.ID) (account.Stats, error)
}

// Announcer tells nearby riders about a new order.
type Announcer interface {
    AnnounceOrder(ctx context.Context, o *Order) error
}

// ErrReputationPending is returned together with a saved rating when the
// rider's reputation could not be recomputed.
var ErrReputationPending = errors.New("rating saved; rider reputation update pending")

type Service struct {
    repo       Repository
    users      Users
    pricing    Pricing
    media      MediaStore
    reputation Reputation
    announcer  Announcer
    log        *zap.Logger
    now        func() time.Time
}

type Option func(*Service)

func WithMedia(m MediaStore) Option { return func(s *Service) { s.media = m } }

func WithReputation(r Reputation) Option { return func(s *Service) { s.reputation = r } }

func WithAnnouncer(a Announcer) Option { return func(s *Service) { s.announcer = a } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo Repository, users Users, pricing Pricing, log *zap.Logger, opts ...Option) *Service {
    if log == nil {
        log = zap.NewNop()
    }
    s := &Service{repo: repo, users: users, pricing: pricing, log: log, now: time.Now}
    for _, opt := range opts {
        opt(s)
    }
    return s
}

// Upload is an optional file attached to a command.
type Upload struct {
    Data        []byte
    ContentType string
}

type CreateCommand struct {
    SenderID         types.ID
    GiftName         string
    ProductURL       string
    PersonalNote     string
    RequestVideo     bool
    ReceiverName     string
    ReceiverAddress  string
    ReceiverCity     string
    ReceiverPhone    string
    OriginCity       string
    DeliveryLocation *types.Point
    EstimatedPrice   *int64
    Tip              *int64
    // DeliveryFee overrides the quoted fee when set.
    DeliveryFee *int64
}

type ClaimCommand struct {
    OrderID types.ID
    RiderID types.ID
}

type ConfirmPriceCommand struct {
    OrderID     types.ID
    RiderID     types.ID
    ActualPrice int64
    Receipt     *Upload
}

type ConfirmPaymentCommand struct {
    OrderID  types.ID
    SenderID types.ID
    Method   string
    Proof    *Upload
}

type DeliverCommand struct {
    OrderID types.ID
    RiderID types.ID
}

type RateCommand struct {
    OrderID  types.ID
    SenderID types.ID
    Rating   int
    Review   string
}

type CancelCommand struct {
    OrderID types.ID
    ActorID types.ID
    Reason  string
}

type MediaKind string

const (
    MediaGiftPhoto     MediaKind = "giftImage"
    MediaReactionVideo MediaKind = "reactionVideo"
)

type AttachMediaCommand struct {
    OrderID types.ID
    RiderID types.ID
    Kind    MediaKind
    File    Upload
}

type DisputeCommand struct {
    OrderID  types.ID
    SenderID types.ID
    Reason   string
}

type RefundCommand struct {
    OrderID types.ID
    AdminID types.ID
}

// MaxAmount caps every single amount on an order. Four capped parts sum far
// below the int64 range, so totals cannot wrap.
const MaxAmount int64 = 10_000_000

func checkAmount(field string, v int64) error {
    switch {
    case v < 0:
        return apperr.Validation(field, "Amount cannot be negative")
    case v > MaxAmount:
        return apperr.Validation(field, fmt.Sprintf("Amount cannot exceed PKR %d", MaxAmount))
    }
    return nil
}

func optionalAmount(field string, v *int64) (*types.Money, error) {
    if v == nil {
        return nil, nil
    }
    if err := checkAmount(field, *v); err != nil {
        return nil, err
    }
    m := types.PKR(*v)
    return &m, nil
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
    sender, err := s.users.Get(ctx, cmd.SenderID)
    if err != nil {
        return nil, err
    }
    if err := account.CheckSignIn(sender); err != nil {
        return nil, err
    }
    if err := validation.First(
        validation.Check("senderPhone", validation.Phone(sender.Phone)),
        validation.Check("giftName", validation.GiftName(cmd.GiftName)),
        validation.Check("productLink", validation.URL(cmd.ProductURL)),
        validation.Check("receiverName", validation.Name(cmd.ReceiverName)),
        validation.Check("receiverAddress", validation.Address(cmd.ReceiverAddress)),
        validation.Check("receiverCity", validation.City(cmd.ReceiverCity)),
        validation.Check("receiverPhone", validation.Phone(cmd.ReceiverPhone)),
    ); err != nil {
        return nil, err
    }
    estimated, err := optionalAmount("estimatedProductPrice", cmd.EstimatedPrice)
    if err != nil {
        return nil, err
    }
    tip, err := optionalAmount("tip", cmd.Tip)
    if err != nil {
        return nil, err
    }

    origin := strings.TrimSpace(cmd.OriginCity)
    if origin == "" {
        origin = strings.TrimSpace(cmd.ReceiverCity)
    }
    fee, err := s.deliveryFee(ctx, cmd.DeliveryFee, origin, cmd.ReceiverCity)
    if err != nil {
        return nil, err
    }

    now := s.now()
    o := &Order{
        ID:               types.NewID(),
        Sender:           Party{ID: sender.ID, Name: sender.FullName, Phone: sender.Phone},
        Status:           StatusPending,
        GiftName:         strings.TrimSpace(cmd.GiftName),
        ProductURL:       strings.TrimSpace(cmd.ProductURL),
        PersonalNote:     strings.TrimSpace(cmd.PersonalNote),
        RequestVideo:     cmd.RequestVideo,
        ReceiverName:     strings.TrimSpace(cmd.ReceiverName),
        ReceiverAddress:  strings.TrimSpace(cmd.ReceiverAddress),
        ReceiverCity:     strings.TrimSpace(cmd.ReceiverCity),
        ReceiverPhone:    validation.NormalizePhone(cmd.ReceiverPhone),
        OriginCity:       origin,
        DeliveryLocation: cmd.DeliveryLocation,
        DeliveryFee:      fee,
        Tip:              tip,
        EstimatedPrice:   estimated,
        PaymentStatus:    PaymentPending,
        CreatedAt:        now,
        UpdatedAt:        now,
    }
    o.RecomputeTotal()
    if err := s.repo.Create(ctx, o); err != nil {
        return nil, apperr.Unavailable("create order", err)
    }
    s.appendEvent(ctx, o.ID, StatusNone, StatusPending, ActorSender, sender.ID, now)
    s.log.Info("order created",
        zap.String("order_id", string(o.ID)),
        zap.String("city", o.ReceiverCity),
        zap.Int64("total", o.TotalAmount.Amount),
    )

    if s.announcer != nil {
        if err := s.announcer.AnnounceOrder(ctx, o); err != nil {
            s.log.Warn("announce order failed", zap.String("order_id", string(o.ID)), zap.Error(err))
        }
    }
    return o, nil
}

func (s *Service) deliveryFee(ctx context.Context, explicit *int64, origin, dest string) (types.Money, error) {
    if explicit != nil {
        if err := checkAmount("deliveryFee", *explicit); err != nil {
            return types.Money{}, err
        }
        return types.PKR(*explicit), nil
    }
    if s.pricing == nil {
        return types.Money{}, apperr.Validation("deliveryFee", "Delivery fee is required")
    }
    fee, err := s.pricing.DeliveryFee(ctx, origin, dest)
    if err != nil {
        return types.Money{}, apperr.Unavailable("quote delivery fee", err)
    }
    if err := checkAmount("deliveryFee", fee.Amount); err != nil {
        return types.Money{}, err
    }
    return fee, nil
}

// Claim assigns the order to the rider if it is still pending. Exactly one of
// any number of concurrent claimants succeeds; the rest get ErrAlreadyClaimed.
func (s *Service) Claim(ctx context.Context, cmd ClaimCommand) (*Order, error) {
    rider, err := s.users.Get(ctx, cmd.RiderID)
    if errors.Is(err, apperr.ErrNotFound) {
        return nil, apperr.NotEligible("Only approved riders can accept orders")
    }
    if err != nil {
        return nil, err
    }
    if err := account.CheckClaim(rider); err != nil {
        return nil, err
    }

    o, err := s.load(ctx, cmd.OrderID)
    if err != nil {
        return nil, err
    }
    if o.Status != StatusPending {
        return nil, claimLost(o)
    }

    now := s.now()
    party := Party{ID: rider.ID, Name: rider.FullName, Phone: rider.Phone}
    ok, err := s.repo.Claim(ctx, o.ID, party, now)
    if err != nil {
        return nil, apperr.Unavailable("claim order", err)
    }
    if !ok {
        cur, err := s.load(ctx, o.ID)
        if err != nil {
            return nil, err
        }
        return nil, claimLost(cur)
    }

    o.Rider = &party
    o.Status = StatusAccepted
    o.StatusVersion++
    o.AcceptedAt = &now
    o.UpdatedAt = now
    s.appendEvent(ctx, o.ID, StatusPending, StatusAccepted, ActorRider, rider.ID, now)
    s.log.Info("order claimed", zap.String("order_id", string(o.ID)), zap.String("rider_id", string(rider.ID)))
    return o, nil
}

func claimLost(o *Order) error {
    if o.Status == StatusCancelled {
        return apperr.InvalidState(string(o.Status), string(StatusAccepted))
    }
    return apperr.ErrAlreadyClaimed
}

// ConfirmActualPrice records what the rider paid for the gift and moves the
// order to purchased. Payment stays pending until the sender confirms.
func (s *Service) ConfirmActualPrice(ctx context.Context, cmd ConfirmPriceCommand) (*Order, error) {
    o, err := s.load(ctx, cmd.OrderID)
    if err != nil {
        return nil, err
    }
    if !o.IsAssignedTo(cmd.RiderID) {
        return nil, apperr.ErrForbidden
    }
    if o.Status != StatusAccepted {
        return nil, apperr.InvalidState(string(o.Status), string(StatusPurchased))
    }
    if cmd.ActualPrice <= 0 {
        return nil, apperr.Validation("actualProductPrice", "Please enter a valid price")
    }
    if err := checkAmount("actualProductPrice", cmd.ActualPrice); err != nil {
        return nil, err
    }
    from, version := o.Status, o.StatusVersion

    if cmd.Receipt != nil && len(cmd.Receipt.Data) > 0 {
        url, err := s.upload(ctx, *cmd.Receipt, "image/jpeg", fmt.Sprintf("receipt_images/%s.jpg", o.ID))
        if err != nil {
            return nil, err
        }
        o.ReceiptImageURL = url
    }
    price := types.PKR(cmd.ActualPrice)
    o.ActualPrice = &price
    o.RecomputeTotal()
    o.Status = StatusPurchased
    o.UpdatedAt = s.now()
    if err := s.commit(ctx, o, from, version, ActorRider, cmd.RiderID); err != nil {
        return nil, err
    }
    return o, nil
}

func (s *Service) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (*Order, error) {
    o, err := s.load(ctx, cmd.OrderID)
    if err != nil {
        return nil, err
    }
    if o.Sender.ID != cmd.SenderID {
        return nil, apperr.ErrForbidden
    }
    if o.Status != StatusPurchased || o.PaymentStatus != PaymentPending {
        return nil, apperr.InvalidState(string(o.Status), string(StatusInTransit))
    }
    method := strings.TrimSpace(cmd.Method)
    if method == "" {
        return nil, apperr.Validation("paymentMethod", "Please select a payment method")
    }
    from, version := o.Status, o.StatusVersion

    if cmd.Proof != nil && len(cmd.Proof.Data) > 0 {
        url, err := s.upload(ctx, *cmd.Proof, "image/jpeg", fmt.Sprintf("payment_proofs/%s.jpg", o.ID))
        if err != nil {
            return nil, err
        }
        o.PaymentProofURL = url
    }
    o.PaymentMethod = method
    o.PaymentStatus = PaymentConfirmed
    o.Status = StatusInTransit
    o.UpdatedAt = s.now()
    if err := s.commit(ctx, o, from, version, ActorSender, cmd.SenderID); err != nil {
        return nil, err
    }
    return o, nil
}

func (s *Service) MarkDelivered(ctx context.Context, cmd DeliverCommand) (*Order, error) {
    o, err := s.load(ctx, cmd.OrderID)
    if err != nil {
        return nil, err
    }
    if !o.IsAssignedTo(cmd.RiderID) {
        return nil, apperr.ErrForbidden
    }
    if !CanTransition(o.Status, StatusDelivered) {
        return nil, apperr.InvalidState(string(o.Status), string(StatusDelivered))
    }
    from, version := o.Status, o.StatusVersion

    now := s.now()
    o.Status = StatusDelivered
    o.DeliveredAt = &now
    o.UpdatedAt = now
    if err := s.commit(ctx, o, from, version, ActorRider, cmd.RiderID); err != nil {
        return nil, err
    }
    return o, nil
}

// Rate stores the sender's rating once and recomputes the rider's reputation.
// A failed recompute keeps the rating and returns ErrReputationPending.
func (s *Service) Rate(ctx context.Context, cmd RateCommand) (*Order, error) {
    o, err := s.load(ctx, cmd.OrderID)
    if err != nil {
        return nil, err
    }
    if o.Sender.ID != cmd.SenderID {
        return nil, apperr.ErrForbidden
    }
    if o.Status != StatusDelivered {
        return nil, apperr.InvalidState(string(o.Status), "rated")
    }
    if o.Rating != nil {
        return nil, apperr.InvalidState("rated", "rated")
    }
    if cmd.Rating < 1 || cmd.Rating > 5 {
        return nil, apperr.Validation("rating", "Rating must be between 1 and 5")
    }
    review := strings.TrimSpace(cmd.Review)
    if utf8.RuneCountInString(review) > maxReviewLen {
        return nil, apperr.Validation("review", "Review must be 500 characters or less")
    }
    from, version := o.Status, o.StatusVersion

    rating := cmd.Rating
    o.Rating = &rating
    o.Review = review
    o.UpdatedAt = s.now()
    if err := s.commit(ctx, o, from, version, ActorSender, cmd.SenderID); err != nil {
        return nil, err
    }

    if s.reputation != nil && o.Rider != nil {
        if _, err := s.reputation.Recompute(ctx, o.Rider.ID); err != nil {
            s.log.Warn("reputation recompute failed",
                zap.String("order_id", string(o.ID)),
                zap.String("rider_id", string(o.Rider.ID)),
                zap.Error(err),
            )
            return o, ErrReputationPending
        }
    }
    return o, nil
}

// Cancel is open to the sender while pending or accepted and to the
// assigned rider while accepted.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Order, error) {
    o, err := s.load(ctx, cmd.OrderID)
    if err != nil {
        return nil, err
    }
    var actor string
    switch {
    case o.Sender.ID == cmd.ActorID:
        actor = ActorSender
    case o.IsAssignedTo(cmd.ActorID):
        actor = ActorRider
    default:
        return nil, apperr.ErrForbidden
    }
    if !CanTransition(o.Status, StatusCancelled) || (actor == ActorRider && o.Status != StatusAccepted) {
        return nil, apperr.InvalidState(string(o.Status), string(StatusCancelled))
    }
    from, version := o.Status, o.StatusVersion

    now := s.now()
    o.Status = StatusCancelled
    o.CancelledAt = &now
    o.CancelReason = strings.TrimSpace(cmd.Reason)
    o.UpdatedAt = now
    if err := s.commit(ctx, o, from, version, actor, cmd.ActorID); err != nil {
        return nil, err
    }
    return o, nil
}

func (s *Service) AttachMedia(ctx context.Context, cmd AttachMediaCommand) (*Order, error) {
    o, err := s.load(ctx, cmd.OrderID)
    if err != nil {
        return nil, err
    }
    if !o.IsAssignedTo(cmd.RiderID) {
        return nil, apperr.ErrForbidden
    }
    if len(cmd.File.Data) == 0 {
        return nil, apperr.Validation("file", "File is required")
    }
    from, version := o.Status, o.StatusVersion

    switch cmd.Kind {
    case MediaGiftPhoto:
        if o.Status != StatusAccepted && o.Status != StatusPurchased && o.Status != StatusInTransit {
            return nil, apperr.InvalidState(string(o.Status), string(cmd.Kind))
        }
        url, err := s.upload(ctx, cmd.File, "image/jpeg", fmt.Sprintf("gift_images/%s.jpg", o.ID))
        if err != nil {
            return nil, err
        }
        o.GiftImageURL = url
    case MediaReactionVideo:
        if !o.RequestVideo {
            return nil, apperr.Validation("kind", "The sender did not request a reaction video")
        }
        if o.Status != StatusInTransit && o.Status != StatusDelivered {
            return nil, apperr.InvalidState(string(o.Status), string(cmd.Kind))
        }
        url, err := s.upload(ctx, cmd.File, "video/mp4", fmt.Sprintf("reaction_videos/%s.mp4", o.ID))
        if err != nil {
            return nil, err
        }
        o.ReactionVideoURL = url
    default:
        return nil, apperr.Validation("kind", "Unknown media kind")
    }
    o.UpdatedAt = s.now()
    if err := s.commit(ctx, o, from, version, ActorRider, cmd.RiderID); err != nil {
        return nil, err
    }
    return o, nil
}

func (s *Service) DisputePayment(ctx context.Context, cmd DisputeCommand) (*Order, error) {
    o, err := s.load(ctx, cmd.OrderID)
    if err != nil {
        return nil, err
    }
    if o.Sender.ID != cmd.SenderID {
        return nil, apperr.ErrForbidden
    }
    if o.PaymentStatus != PaymentConfirmed || (o.Status != StatusInTransit && o.Status != StatusDelivered) {
        return nil, apperr.InvalidState(string(o.PaymentStatus), string(PaymentDisputed))
    }
    from, version := o.Status, o.StatusVersion

    o.PaymentStatus = PaymentDisputed
    o.UpdatedAt = s.now()
    if err := s.commit(ctx, o, from, version, ActorSender, cmd.SenderID); err != nil {
        return nil, err
    }
    s.log.Info("payment disputed", zap.String("order_id", string(o.ID)), zap.String("reason", cmd.Reason))
    return o, nil
}

func (s *Service) RefundPayment(ctx context.Context, cmd RefundCommand) (*Order, error) {
    admin, err := s.users.Get(ctx, cmd.AdminID)
    if errors.Is(err, apperr.ErrNotFound) {
        return nil, apperr.ErrForbidden
    }
    if err != nil {
        return nil, err
    }
    if !admin.IsAdmin {
        return nil, apperr.ErrForbidden
    }
    o, err := s.load(ctx, cmd.OrderID)
    if err != nil {
        return nil, err
    }
    if o.PaymentStatus != PaymentDisputed {
        return nil, apperr.InvalidState(string(o.PaymentStatus), string(PaymentRefunded))
    }
    from, version := o.Status, o.StatusVersion

    o.PaymentStatus = PaymentRefunded
    o.UpdatedAt = s.now()
    if err := s.commit(ctx, o, from, version, ActorAdmin, cmd.AdminID); err != nil {
        return nil, err
    }
    return o, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
    return s.load(ctx, id)
}

// GetFor returns the order if viewer is its sender, its rider, an admin, or
// an eligible rider looking at a pending order.
func (s *Service) GetFor(ctx context.Context, id types.ID, viewer *account.User) (*Order, error) {
    o, err := s.load(ctx, id)
    if err != nil {
        return nil, err
    }
    switch {
    case viewer.IsAdmin, o.Sender.ID == viewer.ID, o.IsAssignedTo(viewer.ID):
        return o, nil
    case o.Status == StatusPending && account.CheckClaim(viewer) == nil:
        return o, nil
    }
    return nil, apperr.ErrForbidden
}

func (s *Service) ListAvailable(ctx context.Context, city string) ([]*Order, error) {
    out, err := s.repo.ListAvailable(ctx, strings.TrimSpace(city))
    if err != nil {
        return nil, apperr.Unavailable("list available orders", err)
    }
    return out, nil
}

// ListPending returns every open order regardless of city.
func (s *Service) ListPending(ctx context.Context) ([]*Order, error) {
    out, err := s.repo.ListPending(ctx)
    if err != nil {
        return nil, apperr.Unavailable("list pending orders", err)
    }
    return out, nil
}

func (s *Service) ListBySender(ctx context.Context, senderID types.ID) ([]*Order, error) {
    out, err := s.repo.ListBySender(ctx, senderID)
    if err != nil {
        return nil, apperr.Unavailable("list sender orders", err)
    }
    return out, nil
}

func (s *Service) ListByRider(ctx context.Context, riderID types.ID) ([]*Order, error) {
    out, err := s.repo.ListByRider(ctx, riderID)
    if err != nil {
        return nil, apperr.Unavailable("list rider orders", err)
    }
    return out, nil
}

func (s *Service) load(ctx context.Context, id types.ID) (*Order, error) {
    o, err := s.repo.Get(ctx, id)
    if err != nil {
        return nil, apperr.Unavailable("get order", err)
    }
    return o, nil
}

// commit persists o if the stored row is still at (from, version). On a lost
// race the order is re-read and the caller gets the state it lost to.
func (s *Service) commit(ctx context.Context, o *Order, from Status, version int, actorType string, actorID types.ID) error {
    ok, err := s.repo.Update(ctx, o, from, version)
    if err != nil {
        return apperr.Unavailable("update order", err)
    }
    if !ok {
        cur, err := s.load(ctx, o.ID)
        if err != nil {
            return err
        }
        s.log.Info("order update lost race",
            zap.String("order_id", string(o.ID)),
            zap.String("current", string(cur.Status)),
            zap.String("attempted", string(o.Status)),
        )
        return apperr.InvalidState(string(cur.Status), string(o.Status))
    }
    o.StatusVersion = version + 1
    if from != o.Status {
        s.appendEvent(ctx, o.ID, from, o.Status, actorType, actorID, o.UpdatedAt)
    }
    return nil
}

func (s *Service) appendEvent(ctx context.Context, id types.ID, from, to Status, actorType string, actorID types.ID, at time.Time) {
    err := s.repo.AppendEvent(ctx, &Event{
        OrderID:    id,
        FromStatus: from,
        ToStatus:   to,
        ActorType:  actorType,
        ActorID:    &actorID,
        CreatedAt:  at,
    })
    if err != nil {
        s.log.Warn("append order event failed", zap.String("order_id", string(id)), zap.Error(err))
    }
}

func (s *Service) upload(ctx context.Context, u Upload, defaultType, path string) (string, error) {
    if s.media == nil {
        return "", apperr.Unavailable("upload media", errors.New("media storage not configured"))
    }
    ct := u.ContentType
    if ct == "" {
        ct = defaultType
    }
    url, err := s.media.Store(ctx, u.Data, ct, path)
    if err != nil {
        return "", apperr.Unavailable("upload media", err)
    }
    return url, nil
}
