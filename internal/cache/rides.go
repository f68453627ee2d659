package cache

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// UpcomingRidesKey holds the public upcoming rides feed, scored by start time.
	UpcomingRidesKey = "feed:rides:upcoming"

	// UpcomingRidesCap is the maximum number of rides kept in the feed cache.
	UpcomingRidesCap = 1000

	// UpcomingRidesTTL bounds staleness if the worker stops maintaining the key.
	UpcomingRidesTTL = 24 * time.Hour
)

// RideScore pairs a ride ID with its start-time score for caching.
type RideScore struct {
	RideID    int64
	StartTime int64 // Unix timestamp
}

// RideFeedCache is the sorted-set cache of public upcoming rides. The ride
// listing endpoint reads IDs from here; workers keep it current as rides are
// created, rescheduled and deleted.
type RideFeedCache interface {
	// Upsert adds a ride or refreshes its score after a reschedule.
	Upsert(ctx context.Context, rideID, startTime int64) error

	// Remove drops a ride from the feed (deleted or made private).
	Remove(ctx context.Context, rideID int64) error

	// GetUpcoming returns ride IDs whose start time is at or after `from`,
	// soonest first.
	GetUpcoming(ctx context.Context, from int64, limit int) ([]int64, error)

	// Warm bulk-loads the feed from the database.
	Warm(ctx context.Context, rides []RideScore) error

	// Exists reports whether the feed key is populated. The service warms the
	// cache from the database when this returns false.
	Exists(ctx context.Context) (bool, error)
}

// RedisRideFeedCache implements RideFeedCache using a Redis sorted set.
type RedisRideFeedCache struct {
	client *redis.Client
}

// NewRideFeedCache creates a RideFeedCache backed by Redis.
func NewRideFeedCache(client *redis.Client) RideFeedCache {
	return &RedisRideFeedCache{client: client}
}

// Upsert adds the ride with its start time as score and trims the set.
// Pipeline: ZADD + ZREMRANGEBYRANK (cap) + EXPIRE (refresh TTL).
func (c *RedisRideFeedCache) Upsert(ctx context.Context, rideID, startTime int64) error {
	pipe := c.client.Pipeline()

	pipe.ZAdd(ctx, UpcomingRidesKey, redis.Z{
		Score:  float64(startTime),
		Member: strconv.FormatInt(rideID, 10),
	})

	// Keep the soonest UpcomingRidesCap entries; the furthest-out rides are
	// the ones a client is least likely to page to.
	pipe.ZRemRangeByRank(ctx, UpcomingRidesKey, int64(UpcomingRidesCap), -1)

	pipe.Expire(ctx, UpcomingRidesKey, UpcomingRidesTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[RideFeedCache] Upsert FAILED: ride=%d err=%v", rideID, err)
		return fmt.Errorf("upsert ride in feed: %w", err)
	}
	return nil
}

// Remove drops a ride from the feed.
func (c *RedisRideFeedCache) Remove(ctx context.Context, rideID int64) error {
	member := strconv.FormatInt(rideID, 10)
	if err := c.client.ZRem(ctx, UpcomingRidesKey, member).Err(); err != nil {
		log.Printf("[RideFeedCache] Remove FAILED: ride=%d err=%v", rideID, err)
		return fmt.Errorf("remove ride from feed: %w", err)
	}
	return nil
}

// GetUpcoming reads ride IDs starting at `from`, soonest first.
func (c *RedisRideFeedCache) GetUpcoming(ctx context.Context, from int64, limit int) ([]int64, error) {
	members, err := c.client.ZRangeByScore(ctx, UpcomingRidesKey, &redis.ZRangeBy{
		Min:   strconv.FormatInt(from, 10),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read upcoming rides: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			// Corrupt member; skip rather than fail the whole listing.
			log.Printf("[RideFeedCache] skipping bad member %q", m)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Warm bulk-inserts rides with pipelined ZADDs and sets the TTL.
func (c *RedisRideFeedCache) Warm(ctx context.Context, rides []RideScore) error {
	if len(rides) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, r := range rides {
		pipe.ZAdd(ctx, UpcomingRidesKey, redis.Z{
			Score:  float64(r.StartTime),
			Member: strconv.FormatInt(r.RideID, 10),
		})
	}
	pipe.Expire(ctx, UpcomingRidesKey, UpcomingRidesTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warm ride feed: %w", err)
	}

	log.Printf("[RideFeedCache] Warmed with %d rides", len(rides))
	return nil
}

// Exists reports whether the feed key currently holds any entries.
func (c *RedisRideFeedCache) Exists(ctx context.Context) (bool, error) {
	n, err := c.client.Exists(ctx, UpcomingRidesKey).Result()
	if err != nil {
		return false, fmt.Errorf("check ride feed existence: %w", err)
	}
	return n > 0, nil
}
