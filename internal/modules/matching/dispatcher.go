// README: Dispatcher tracks rider presence and pushes new orders to riders nearby.
package matching

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"

	"giftwave/internal/apperr"
	"giftwave/internal/modules/location"
	"giftwave/internal/modules/order"
	"giftwave/internal/notify"
	"giftwave/internal/types"
)

type PresenceStore interface {
	UpdatePresence(ctx context.Context, p Presence) error
	RemovePresence(ctx context.Context, riderID types.ID) error
	RidersInCity(ctx context.Context, city string) ([]types.ID, error)
	NearbyRiders(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error)
	DeviceTokens(ctx context.Context, ids []types.ID) ([]string, error)
}

type Pusher interface {
	Push(ctx context.Context, tokens []string, msg notify.Message) (int, error)
}

type Dispatcher struct {
	presence PresenceStore
	pusher   Pusher
	radiusKm float64
	log      *zap.Logger
}

func NewDispatcher(presence PresenceStore, pusher Pusher, radiusKm float64, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{presence: presence, pusher: pusher, radiusKm: clampRadius(radiusKm), log: log}
}

func (d *Dispatcher) UpdatePresence(ctx context.Context, p Presence) error {
	if p.RiderID == "" {
		return apperr.Validation("riderId", "Rider is required")
	}
	if err := validatePoint(p.Position); err != nil {
		return err
	}
	if location.NormalizeCity(p.City) == "" {
		return apperr.Validation("city", "City is required")
	}
	if err := d.presence.UpdatePresence(ctx, p); err != nil {
		return apperr.Unavailable("update presence", err)
	}
	return nil
}

func (d *Dispatcher) RemovePresence(ctx context.Context, riderID types.ID) error {
	return apperr.Unavailable("remove presence", d.presence.RemovePresence(ctx, riderID))
}

func validatePoint(p types.Point) error {
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 || p.IsZero() {
		return apperr.Validation("position", "Invalid coordinates")
	}
	return nil
}

// AnnounceOrder pushes a new-order alert to riders present in the receiver
// city, plus riders near the delivery point. Delivery is best-effort.
func (d *Dispatcher) AnnounceOrder(ctx context.Context, o *order.Order) error {
	ids, err := d.presence.RidersInCity(ctx, o.ReceiverCity)
	if err != nil {
		return fmt.Errorf("riders in city: %w", err)
	}
	if dest, ok := destination(o); ok {
		near, err := d.presence.NearbyRiders(ctx, dest, d.radiusKm)
		if err != nil {
			d.log.Warn("nearby riders lookup failed", zap.String("order_id", string(o.ID)), zap.Error(err))
		}
		ids = mergeIDs(near, ids)
	}
	ids = PickRandomRiders(ids, announceLimit)
	if len(ids) == 0 {
		d.log.Debug("no riders to announce to", zap.String("order_id", string(o.ID)))
		return nil
	}

	tokens, err := d.presence.DeviceTokens(ctx, ids)
	if err != nil {
		return fmt.Errorf("device tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	sent, err := d.pusher.Push(ctx, tokens, notify.Message{
		Title: "New delivery in " + strings.TrimSpace(o.ReceiverCity),
		Body:  fmt.Sprintf("%s · fee %s", o.GiftName, o.DeliveryFee),
		Data: map[string]string{
			"type":    "new_order",
			"orderId": string(o.ID),
			"city":    o.ReceiverCity,
		},
	})
	d.log.Info("order announced",
		zap.String("order_id", string(o.ID)),
		zap.Int("riders", len(ids)),
		zap.Int("delivered", sent),
	)
	return err
}

// mergeIDs concatenates lists keeping first occurrences.
func mergeIDs(lists ...[]types.ID) []types.ID {
	seen := make(map[types.ID]struct{})
	var out []types.ID
	for _, l := range lists {
		for _, id := range l {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// PickRandomRiders returns up to n distinct riders chosen uniformly from pool
// without mutating it.
func PickRandomRiders(pool []types.ID, n int) []types.ID {
	if n <= 0 || len(pool) == 0 {
		return nil
	}
	cp := make([]types.ID, len(pool))
	copy(cp, pool)
	if n >= len(cp) {
		return cp
	}
	rand.Shuffle(len(cp), func(i, j int) { cp[i], cp[j] = cp[j], cp[i] })
	return cp[:n]
}
