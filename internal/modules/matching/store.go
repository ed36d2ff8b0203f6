// README: Rider presence store backed by Redis GEO, city sets and token hashes.
package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"giftwave/internal/modules/location"
	"giftwave/internal/types"
)

const (
	riderGeoKey    = "matching:riders"
	cityKeyPattern = "matching:city:%s"
	riderKeyPrefix = "matching:rider:%s"
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// UpdatePresence records position, city membership and device token. A rider
// that changed city is removed from the previous city's set.
func (s *Store) UpdatePresence(ctx context.Context, p Presence) error {
	key := riderKey(p.RiderID)
	prev, err := s.redis.HGet(ctx, key, "city").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	city := location.NormalizeCity(p.City)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.GeoAdd(ctx, riderGeoKey, &redis.GeoLocation{
			Name:      string(p.RiderID),
			Longitude: p.Position.Lng,
			Latitude:  p.Position.Lat,
		})
		if prev != "" && prev != city {
			pipe.SRem(ctx, cityKey(prev), string(p.RiderID))
		}
		pipe.SAdd(ctx, cityKey(city), string(p.RiderID))
		pipe.HSet(ctx, key, "city", city, "token", p.DeviceToken)
		pipe.Expire(ctx, key, presenceTTL)
		return nil
	})
	return err
}

func (s *Store) RemovePresence(ctx context.Context, riderID types.ID) error {
	key := riderKey(riderID)
	city, err := s.redis.HGet(ctx, key, "city").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, riderGeoKey, string(riderID))
		if city != "" {
			pipe.SRem(ctx, cityKey(city), string(riderID))
		}
		pipe.Del(ctx, key)
		return nil
	})
	return err
}

func (s *Store) RidersInCity(ctx context.Context, city string) ([]types.ID, error) {
	members, err := s.redis.SMembers(ctx, cityKey(location.NormalizeCity(city))).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(members))
	for i, m := range members {
		ids[i] = types.ID(m)
	}
	return ids, nil
}

func (s *Store) NearbyRiders(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, riderGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

// DeviceTokens returns the live push tokens for ids. Riders whose presence
// expired are skipped.
func (s *Store) DeviceTokens(ctx context.Context, ids []types.ID) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.StringCmd, len(ids))
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGet(ctx, riderKey(id), "token")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	tokens := make([]string, 0, len(ids))
	for _, c := range cmds {
		if tok, err := c.Result(); err == nil && tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens, nil
}

func cityKey(city string) string {
	return fmt.Sprintf(cityKeyPattern, city)
}

func riderKey(id types.ID) string {
	return fmt.Sprintf(riderKeyPrefix, string(id))
}
