package redis

import (
	"log"
	"sync"

	radix "github.com/mediocregopher/radix/v3"

	"github.com/example/museauction/internal/config"
)

var (
	client radix.Client
	once   sync.Once
)

// Init opens the Redis connection pool.
func Init(cfg *config.RedisConfig) radix.Client {
	once.Do(func() {
		pool, err := radix.NewPool("tcp", cfg.Addr, 10)
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		client = pool
	})
	return client
}

// Client returns the pool.
func Client() radix.Client {
	return client
}
