package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// Cache TTLs
const (
	WalletTTL          = 60 * time.Second // Wallet reads
	TxListTTL          = 60 * time.Second // Transaction list pages
	DepositInflightTTL = 30 * time.Second // In-flight deposit confirmation
)

// WalletKey is the cache key of a user's wallet
func WalletKey(userID string) string {
	return "wallet:user:" + userID
}

// TxHistoryPrefix prefixes every cached transaction history page of a user
func TxHistoryPrefix(userID string) string {
	return "txhistory:user:" + userID
}

// DepositInflightKey marks a deposit reference being confirmed
func DepositInflightKey(reference string) string {
	return "deposit:inflight:" + reference
}

// GetCache retrieves a value from Redis and unmarshals it into dest
func GetCache(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	val, err := rdb.Get(ctx, key).Result() // Get value from Redis
	if err == redis.Nil {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// SetCache sets a value in Redis with a specified TTL
func SetCache(ctx context.Context, rdb *redis.Client, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return rdb.Set(ctx, key, b, ttl).Err() // Set value in Redis with TTL
}

// DeleteCache deletes keys from Redis
func DeleteCache(ctx context.Context, rdb *redis.Client, keys ...string) error {
	return rdb.Del(ctx, keys...).Err()
}

// DeletePrefix deletes every key starting with prefix
func DeletePrefix(ctx context.Context, rdb *redis.Client, prefix string) error {
	iter := rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return rdb.Del(ctx, keys...).Err()
}

// RedisCache drops cached wallet reads and guards in-flight deposit
// confirmations. Redis failures never block a ledger operation.
type RedisCache struct {
	rdb *redis.Client
	log *logrus.Logger
}

// NewRedisCache wraps rdb
func NewRedisCache(rdb *redis.Client, log *logrus.Logger) *RedisCache {
	return &RedisCache{rdb: rdb, log: log}
}

// InvalidateWallet removes the cached wallet and transaction history pages of a user
func (c *RedisCache) InvalidateWallet(ctx context.Context, userID string) {
	if err := DeleteCache(ctx, c.rdb, WalletKey(userID)); err != nil {
		c.log.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("Wallet cache invalidation failed")
	}
	if err := DeletePrefix(ctx, c.rdb, TxHistoryPrefix(userID)); err != nil {
		c.log.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("History cache invalidation failed")
	}
}

// Acquire claims reference for DepositInflightTTL; false means another
// confirmation of the same reference holds it
func (c *RedisCache) Acquire(ctx context.Context, reference string) (bool, error) {
	return c.rdb.SetNX(ctx, DepositInflightKey(reference), time.Now().Unix(), DepositInflightTTL).Result()
}

// Release frees reference
func (c *RedisCache) Release(ctx context.Context, reference string) {
	if err := DeleteCache(ctx, c.rdb, DepositInflightKey(reference)); err != nil {
		c.log.WithFields(logrus.Fields{"reference": reference, "error": err.Error()}).Warn("Deposit guard release failed")
	}
}
