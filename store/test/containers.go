package test

import (
	"context"
	"net"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	testDatabase = "saaskit"
	testUser     = "saaskit"
	testPassword = "saaskit"
)

// startContainer runs a throwaway database for driver and returns its DSN.
func startContainer(ctx context.Context, t *testing.T, driver string) string {
	t.Helper()
	switch driver {
	case "postgres":
		container, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase(testDatabase),
			postgres.WithUsername(testUser),
			postgres.WithPassword(testPassword),
			postgres.BasicWaitStrategies(),
		)
		testcontainers.CleanupContainer(t, container)
		if err != nil {
			t.Fatalf("failed to start postgres container: %v", err)
		}
		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("failed to get postgres dsn: %v", err)
		}
		return dsn
	case "mysql":
		container, err := mysql.Run(ctx, "mysql:8.4",
			mysql.WithDatabase(testDatabase),
			mysql.WithUsername(testUser),
			mysql.WithPassword(testPassword),
		)
		testcontainers.CleanupContainer(t, container)
		if err != nil {
			t.Fatalf("failed to start mysql container: %v", err)
		}
		dsn, err := container.ConnectionString(ctx)
		if err != nil {
			t.Fatalf("failed to get mysql dsn: %v", err)
		}
		return dsn
	default:
		t.Fatalf("unsupported test driver %q", driver)
		return ""
	}
}

func getUnusedPort() int {
	// Get a random unused port
	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		panic(err)
	}
	defer listener.Close()

	// Get the port number
	port := listener.Addr().(*net.TCPAddr).Port
	return port
}
