package redis

import (
	"context"
	"fmt"
	"time"

	"tour-booking/internal/logger"

	"github.com/go-redis/redis/v8"
)

// Redis holds short-lived payment coordination keys: a per-booking lock
// around intent creation and markers for webhook events already handled.
// Losing any of these keys only costs extra work; booking status in the
// database stays authoritative.
type Redis struct {
	Client   *redis.Client
	Logger   *logger.Logger
	LockTTL  time.Duration
	EventTTL time.Duration
}

func NewRedis(client *redis.Client, log *logger.Logger, eventTTL time.Duration) *Redis {
	return &Redis{
		Client:   client,
		Logger:   log,
		LockTTL:  30 * time.Second,
		EventTTL: eventTTL,
	}
}

func intentLockKey(bookingID string) string {
	return "intent_lock:" + bookingID
}

func eventKey(eventID string) string {
	return "stripe_event:" + eventID
}

// LockIntent takes the intent-creation lock for a booking. owner must be
// unique per caller so an expired lock is never released by someone else.
func (r *Redis) LockIntent(ctx context.Context, bookingID, owner string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, intentLockKey(bookingID), owner, r.LockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("lock intent for %s: %w", bookingID, err)
	}
	return ok, nil
}

func (r *Redis) UnlockIntent(ctx context.Context, bookingID, owner string) error {
	key := intentLockKey(bookingID)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already expired
	}
	if err != nil {
		return err
	}
	if val == owner {
		return r.Client.Del(ctx, key).Err()
	}
	return nil
}

// EventProcessed reports whether a processor event id was marked done.
func (r *Redis) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := r.Client.Exists(ctx, eventKey(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Redis) MarkEventProcessed(ctx context.Context, eventID, outcome string) error {
	_, err := r.Client.SetNX(ctx, eventKey(eventID), outcome, r.EventTTL).Result()
	if err != nil {
		r.Logger.Warn("REDIS", fmt.Sprintf("mark event %s: %v", eventID, err))
	}
	return err
}
