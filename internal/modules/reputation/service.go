// README: Rider reputation recomputed from delivered, rated orders.
package reputation

import (
	"context"

	"go.uber.org/zap"

	"giftwave/internal/apperr"
	"giftwave/internal/modules/account"
	"giftwave/internal/types"
)

type RatingSource interface {
	RatingsForRider(ctx context.Context, riderID types.ID) ([]int, error)
}

type StatsWriter interface {
	UpdateRiderStats(ctx context.Context, riderID types.ID, s account.Stats) error
}

type Service struct {
	ratings RatingSource
	stats   StatsWriter
	log     *zap.Logger
}

func NewService(ratings RatingSource, stats StatsWriter, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{ratings: ratings, stats: stats, log: log}
}

// Aggregate returns the mean rating and the number of rated deliveries.
func Aggregate(ratings []int) account.Stats {
	if len(ratings) == 0 {
		return account.Stats{}
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return account.Stats{
		AverageRating:   float64(sum) / float64(len(ratings)),
		TotalDeliveries: len(ratings),
	}
}

// Recompute rebuilds the rider's stats from scratch, so running it twice
// yields the same result. Riders with no ratings are left untouched.
func (s *Service) Recompute(ctx context.Context, riderID types.ID) (account.Stats, error) {
	ratings, err := s.ratings.RatingsForRider(ctx, riderID)
	if err != nil {
		return account.Stats{}, apperr.Unavailable("load ratings", err)
	}
	st := Aggregate(ratings)
	if st.TotalDeliveries == 0 {
		return st, nil
	}
	if err := s.stats.UpdateRiderStats(ctx, riderID, st); err != nil {
		return account.Stats{}, apperr.Unavailable("write rider stats", err)
	}
	s.log.Debug("reputation recomputed",
		zap.String("rider_id", string(riderID)),
		zap.Float64("average", st.AverageRating),
		zap.Int("count", st.TotalDeliveries),
	)
	return st, nil
}
