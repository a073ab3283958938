package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-fulfillment/internal/logger"
)

// Redis holds short-lived locks on event resources (staff, equipment,
// vehicles) while an assignment is written, so two bookings cannot claim
// the same resource concurrently.
type Redis struct {
	Client  *redis.Client
	LockTTL time.Duration
	Logger  *logger.Logger
}

func NewRedis(client *redis.Client, lockTTL time.Duration, log *logger.Logger) *Redis {
	return &Redis{
		Client:  client,
		LockTTL: lockTTL,
		Logger:  log,
	}
}

// LockResource locks a single resource for a booking.
func (r *Redis) LockResource(resourceID, bookingID string) (bool, error) {
	key := "resource_lock:" + resourceID
	ok, err := r.Client.SetNX(context.Background(), key, bookingID, r.LockTTL).Result()
	return ok, err
}

// UnlockResource releases a resource only if this booking holds it.
func (r *Redis) UnlockResource(resourceID, bookingID string) error {
	ctx := context.Background()
	key := fmt.Sprintf("resource_lock:%s", resourceID)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already unlocked
	}
	if err != nil {
		return err
	}
	if val == bookingID {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}

// LockResources locks all resources or none. On any failure the already
// acquired locks are released.
func (r *Redis) LockResources(resourceIDs []string, bookingID string) (bool, error) {
	locked := []string{}
	for _, resourceID := range resourceIDs {
		ok, err := r.LockResource(resourceID, bookingID)
		if err != nil {
			for _, l := range locked {
				_ = r.UnlockResource(l, bookingID)
			}
			return false, err
		}
		if !ok {
			r.Logger.Warn("REDIS", fmt.Sprintf("Resource %s already locked, rolling back for booking %s", resourceID, bookingID))
			for _, l := range locked {
				_ = r.UnlockResource(l, bookingID)
			}
			return false, nil
		}
		locked = append(locked, resourceID)
	}
	return true, nil
}

// UnlockResources releases all resources held by a booking.
func (r *Redis) UnlockResources(resourceIDs []string, bookingID string) error {
	var firstErr error
	for _, resourceID := range resourceIDs {
		err := r.UnlockResource(resourceID, bookingID)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
