package store

import (
	"context"

	"github.com/usememos/saaskit/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) Profile() *profile.Profile {
	return s.profile
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

// Migrate prepares the schema. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}
