// README: Rider-side views of open orders and rider presence.
package matching

import (
	"time"

	"giftwave/internal/modules/order"
	"giftwave/internal/types"
)

// Query selects open orders for a rider. Without Near only City is used;
// with Near every pending order within RadiusKm is returned, nearest first.
type Query struct {
	City     string
	Near     *types.Point
	RadiusKm float64
}

type Candidate struct {
	Order      *order.Order `json:"order"`
	DistanceKm *float64     `json:"distanceKm,omitempty"`
	Distance   string       `json:"distance,omitempty"`
}

// Presence is a rider's last reported position and push token.
type Presence struct {
	RiderID     types.ID
	City        string
	Position    types.Point
	DeviceToken string
}

const (
	// DefaultRadiusKm matches the rider app's default distance filter.
	DefaultRadiusKm = 10.0
	MinRadiusKm     = 1.0
	MaxRadiusKm     = 20.0

	// announceLimit caps how many riders are pushed for a single order.
	announceLimit = 25
	// presenceTTL drops riders that stopped reporting.
	presenceTTL = 30 * time.Minute
)

func clampRadius(r float64) float64 {
	switch {
	case r <= 0:
		return DefaultRadiusKm
	case r < MinRadiusKm:
		return MinRadiusKm
	case r > MaxRadiusKm:
		return MaxRadiusKm
	}
	return r
}
