// File: utils/redis.go
package utils

import (
	"context"
	"log"
	"time"

	"corebill/config"

	"github.com/go-redis/redis/v8"
)

// LockClient is the dedicated client backing the per-account lock service.
var LockClient *redis.Client

// InitLockClient initializes the Redis client used for account locking.
func InitLockClient() {
	LockClient = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisLockDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := LockClient.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis (Lock): %v", err)
	}
}

// GetLockClient returns the lock client.
func GetLockClient() *redis.Client {
	if LockClient == nil {
		InitLockClient()
	}
	return LockClient
}
