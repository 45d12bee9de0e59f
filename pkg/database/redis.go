package database

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"baria-go/pkg/log"
)

var RDB *redis.Client

// InitRedis connects RDB. Redis backs conversation state and caches only,
// so an unreachable server is logged and the client is kept for later retries.
func InitRedis(addr, password string, db int) {
	RDB = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Error("redis is not reachable, continuing without it", err)
		return
	}
	log.Info("Redis client connected successfully")
}
