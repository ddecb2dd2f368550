package test

import (
	"context"
	"fmt"
	"os"
	"testing"

	// sqlite driver.
	_ "modernc.org/sqlite"

	"github.com/joho/godotenv"

	"github.com/usememos/saaskit/internal/profile"
	"github.com/usememos/saaskit/store"
	"github.com/usememos/saaskit/store/db"
)

// NewTestingStore returns a migrated store on the driver named by the DRIVER
// environment variable, sqlite when unset.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()
	profile := getTestingProfile(ctx, t)
	dbDriver, err := db.NewDBDriver(profile)
	if err != nil {
		t.Fatalf("failed to create db driver, error: %+v", err)
	}

	store := store.New(dbDriver, profile)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db, error: %+v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func getTestingProfile(ctx context.Context, t *testing.T) *profile.Profile {
	if err := godotenv.Load(".env"); err != nil {
		t.Log("failed to load .env file, but it's ok")
	}

	// Get a temporary directory for the test data.
	dir := t.TempDir()
	mode := "prod"
	driver := getDriverFromEnv()
	dsn := os.Getenv("DSN")
	switch {
	case driver == "sqlite":
		dsn = fmt.Sprintf("%s/saaskit_%s.db", dir, mode)
	case dsn == "":
		dsn = startContainer(ctx, t, driver)
	}
	return &profile.Profile{
		Mode:   mode,
		Port:   getUnusedPort(),
		Data:   dir,
		DSN:    dsn,
		Driver: driver,
	}
}

func getDriverFromEnv() string {
	driver := os.Getenv("DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	return driver
}
