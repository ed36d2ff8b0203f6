// README: OTP store backed by Redis hashes with TTL.
package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"giftwave/internal/apperr"
	"giftwave/internal/types"
)

const (
	recordKeyPrefix  = "otp:%s"
	channelKeyPrefix = "otp:channel:%s"
)

// ErrNotPending is returned by IncrementAttempts when the record already left
// the pending state.
var ErrNotPending = errors.New("otp record not pending")

// Store persists verification records. Attempt increments and status changes
// must be atomic per record.
type Store interface {
	Create(ctx context.Context, v *Verification) error
	Get(ctx context.Context, id types.ID) (*Verification, error)
	// IncrementAttempts counts one wrong code on a pending record. It never
	// raises attempts above max_attempts: at the cap it moves the record to
	// failed and returns apperr.ErrAttemptsExhausted.
	IncrementAttempts(ctx context.Context, id types.ID) (int, error)
	SetStatus(ctx context.Context, id types.ID, from, to Status, at time.Time) (bool, error)
	Delete(ctx context.Context, id types.ID) error
}

type RedisStore struct {
	redis     *redis.Client
	retention time.Duration
}

// NewRedisStore keeps records for retention past their expiry so a late
// verify still observes the expired state.
func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{redis: client, retention: retention}
}

// incrAttempts returns -1 missing, -2 not pending, -3 already at the cap,
// otherwise the new count. Reaching the cap marks the record failed.
var incrAttempts = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
if redis.call('HGET', KEYS[1], 'status') ~= 'pending' then
  return -2
end
local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts') or '0')
local max = tonumber(redis.call('HGET', KEYS[1], 'max_attempts') or '0')
if attempts >= max then
  redis.call('HSET', KEYS[1], 'status', 'failed')
  return -3
end
attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if attempts >= max then
  redis.call('HSET', KEYS[1], 'status', 'failed')
end
return attempts
`)

// swapSlot points the channel slot at the new record and deletes the record
// it pointed at before, in one step.
var swapSlot = redis.NewScript(`
local prev = redis.call('GET', KEYS[1])
if prev and prev ~= ARGV[1] then
  redis.call('DEL', ARGV[3] .. prev)
end
redis.call('HSET', KEYS[2], unpack(ARGV, 4))
redis.call('PEXPIRE', KEYS[2], ARGV[2])
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

var casStatus = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
  return -1
end
if cur ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2])
if ARGV[3] ~= '' then
  redis.call('HSET', KEYS[1], 'verified_at', ARGV[3])
end
return 1
`)

// Create writes v and makes it the single active record for its channels,
// removing whichever record held that slot before.
func (s *RedisStore) Create(ctx context.Context, v *Verification) error {
	ttl := time.Until(v.ExpiresAt) + s.retention
	if ttl <= 0 {
		ttl = s.retention
	}
	slot := fmt.Sprintf(channelKeyPrefix, v.Channels.Key())

	fields := []interface{}{
		"id", string(v.ID),
		"type", string(v.Type),
		"code", v.Code,
		"status", string(v.Status),
		"attempts", v.Attempts,
		"max_attempts", v.MaxAttempts,
		"phone", v.Channels.Phone,
		"email", v.Channels.Email,
		"cnic", v.Channels.CNIC,
		"expires_at", v.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"created_at", v.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if v.UserID != nil {
		fields = append(fields, "user_id", string(*v.UserID))
	}

	args := append([]interface{}{string(v.ID), ttl.Milliseconds(), recordKey("")}, fields...)
	return swapSlot.Run(ctx, s.redis, []string{slot, recordKey(v.ID)}, args...).Err()
}

func (s *RedisStore) Get(ctx context.Context, id types.ID) (*Verification, error) {
	vals, err := s.redis.HGetAll(ctx, recordKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, apperr.ErrNotFound
	}
	return decode(vals)
}

func (s *RedisStore) IncrementAttempts(ctx context.Context, id types.ID) (int, error) {
	n, err := incrAttempts.Run(ctx, s.redis, []string{recordKey(id)}).Int()
	if err != nil {
		return 0, err
	}
	switch n {
	case -1:
		return 0, apperr.ErrNotFound
	case -2:
		return 0, ErrNotPending
	case -3:
		return 0, apperr.ErrAttemptsExhausted
	}
	return n, nil
}

func (s *RedisStore) SetStatus(ctx context.Context, id types.ID, from, to Status, at time.Time) (bool, error) {
	verifiedAt := ""
	if to == StatusVerified {
		verifiedAt = at.UTC().Format(time.RFC3339Nano)
	}
	n, err := casStatus.Run(ctx, s.redis, []string{recordKey(id)}, string(from), string(to), verifiedAt).Int()
	if err != nil {
		return false, err
	}
	if n < 0 {
		return false, apperr.ErrNotFound
	}
	return n == 1, nil
}

// Delete removes the record. The channel slot is left to expire; a stale slot
// only points at a missing record.
func (s *RedisStore) Delete(ctx context.Context, id types.ID) error {
	return s.redis.Del(ctx, recordKey(id)).Err()
}

func recordKey(id types.ID) string {
	return fmt.Sprintf(recordKeyPrefix, string(id))
}

func decode(vals map[string]string) (*Verification, error) {
	v := &Verification{
		ID:     types.ID(vals["id"]),
		Type:   Type(vals["type"]),
		Code:   vals["code"],
		Status: Status(vals["status"]),
		Channels: Channels{
			Phone: vals["phone"],
			Email: vals["email"],
			CNIC:  vals["cnic"],
		},
	}
	var err error
	if v.Attempts, err = strconv.Atoi(vals["attempts"]); err != nil {
		return nil, fmt.Errorf("otp attempts: %w", err)
	}
	if v.MaxAttempts, err = strconv.Atoi(vals["max_attempts"]); err != nil {
		return nil, fmt.Errorf("otp max_attempts: %w", err)
	}
	if v.ExpiresAt, err = time.Parse(time.RFC3339Nano, vals["expires_at"]); err != nil {
		return nil, fmt.Errorf("otp expires_at: %w", err)
	}
	if v.CreatedAt, err = time.Parse(time.RFC3339Nano, vals["created_at"]); err != nil {
		return nil, fmt.Errorf("otp created_at: %w", err)
	}
	if raw := vals["verified_at"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("otp verified_at: %w", err)
		}
		v.VerifiedAt = &t
	}
	if raw := vals["user_id"]; raw != "" {
		uid := types.ID(raw)
		v.UserID = &uid
	}
	return v, nil
}
