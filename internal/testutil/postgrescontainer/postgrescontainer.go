// Package postgrescontainer provides the database the repository tests run against.
package postgrescontainer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/adeilh/go-rakh-weather/internal/testutil/docker"
)

const (
	hostPort = "55432"
	user     = "rakh"
	password = "secret"
	dbName   = "weather_test"
)

// DSN returns a lib/pq connection string for the test database.
func DSN() string {
	return fmt.Sprintf("postgres://%s:%s@127.0.0.1:%s/%s?sslmode=disable", user, password, hostPort, dbName)
}

var container = &docker.Container{
	Name:        "go-rakh-weather-postgres-test",
	Image:       "postgres:16-alpine",
	HostPort:    hostPort,
	ServicePort: "5432",
	Env: map[string]string{
		"POSTGRES_USER":     user,
		"POSTGRES_PASSWORD": password,
		"POSTGRES_DB":       dbName,
	},
	ReadyTimeout: 15 * time.Second,
	Ready: func(ctx context.Context) error {
		db, err := sql.Open("postgres", DSN())
		if err != nil {
			return err
		}
		defer db.Close()
		return db.PingContext(ctx)
	},
}

// Setup launches the Postgres container if it isn't already running.
func Setup() error { return container.Setup() }

func Teardown() error { return container.Teardown() }
