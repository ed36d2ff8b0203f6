// README: Matching service lists open orders for riders and routes claims to the order CAS.
package matching

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"giftwave/internal/apperr"
	"giftwave/internal/modules/location"
	"giftwave/internal/modules/order"
	"giftwave/internal/types"
)

type Orders interface {
	ListAvailable(ctx context.Context, city string) ([]*order.Order, error)
	ListPending(ctx context.Context) ([]*order.Order, error)
	Claim(ctx context.Context, cmd order.ClaimCommand) (*order.Order, error)
}

type Service struct {
	orders Orders
	log    *zap.Logger
}

func NewService(orders Orders, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{orders: orders, log: log}
}

// ListAvailable is a read-only snapshot; an order listed here may already be
// claimed by the time the rider acts on it.
func (s *Service) ListAvailable(ctx context.Context, q Query) ([]Candidate, error) {
	if q.Near == nil {
		if location.NormalizeCity(q.City) == "" {
			return nil, apperr.Validation("city", "City is required")
		}
		orders, err := s.orders.ListAvailable(ctx, q.City)
		if err != nil {
			return nil, err
		}
		out := make([]Candidate, len(orders))
		for i, o := range orders {
			out[i] = Candidate{Order: o}
		}
		return out, nil
	}

	orders, err := s.orders.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	radius := clampRadius(q.RadiusKm)
	out := make([]Candidate, 0, len(orders))
	for _, o := range orders {
		dest, ok := destination(o)
		if !ok {
			continue
		}
		d := location.HaversineKm(*q.Near, dest)
		if d > radius {
			continue
		}
		out = append(out, Candidate{Order: o, DistanceKm: &d, Distance: location.FormatDistance(d)})
	}
	location.SortByDistance(out, func(c Candidate) float64 { return *c.DistanceKm })
	return out, nil
}

// destination prefers the pinned delivery point and falls back to the centre
// of the receiver's city.
func destination(o *order.Order) (types.Point, bool) {
	if o.DeliveryLocation != nil && !o.DeliveryLocation.IsZero() {
		return *o.DeliveryLocation, true
	}
	return location.CityCentre(o.ReceiverCity)
}

func (s *Service) Claim(ctx context.Context, cmd order.ClaimCommand) (*order.Order, error) {
	o, err := s.orders.Claim(ctx, cmd)
	switch {
	case errors.Is(err, apperr.ErrAlreadyClaimed):
		s.log.Info("claim lost",
			zap.String("order_id", string(cmd.OrderID)),
			zap.String("rider_id", string(cmd.RiderID)),
		)
	case errors.Is(err, apperr.ErrInvalidState), errors.Is(err, apperr.ErrNotEligible):
		s.log.Info("claim refused",
			zap.String("order_id", string(cmd.OrderID)),
			zap.String("rider_id", string(cmd.RiderID)),
			zap.Error(err),
		)
	}
	return o, err
}
