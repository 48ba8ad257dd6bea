// Package rediscontainer provides the Redis instance the cache tests run against.
package rediscontainer

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/adeilh/go-rakh-weather/internal/testutil/docker"
)

const hostPort = "6390"

// Addr exposes the Redis host:port combination used by integration tests.
func Addr() string { return "127.0.0.1:" + hostPort }

var container = &docker.Container{
	Name:         "go-rakh-weather-redis-test",
	Image:        "redis:7-alpine",
	HostPort:     hostPort,
	ServicePort:  "6379",
	ReadyTimeout: 5 * time.Second,
	Ready: func(ctx context.Context) error {
		client := goredis.NewClient(&goredis.Options{Addr: Addr(), DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
		defer client.Close()
		return client.Ping(ctx).Err()
	},
}

// Setup runs a throwaway Redis container and waits until it answers PING.
func Setup() error { return container.Setup() }

func Teardown() error { return container.Teardown() }
