package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"songbook/internal/app/songs"
	"songbook/internal/store"
)

const (
	demoName     = "Demo Listener"
	demoUsername = "demo"
	demoPassword = "demo123"
)

type demoAccounts interface {
	CreateUser(ctx context.Context, name, username, password string) (uuid.UUID, error)
	Authenticate(ctx context.Context, username, password string) (store.User, error)
}

type demoCatalog interface {
	Create(ctx context.Context, ownerID uuid.UUID, fields songs.Fields) (store.Song, error)
	Statistics(ctx context.Context, ownerID uuid.UUID) (songs.Statistics, error)
}

// bootstrapDemoData creates the demo account and, when its catalog is empty,
// a handful of songs. Running it again is a no-op.
func bootstrapDemoData(ctx context.Context, accounts demoAccounts, catalog demoCatalog) error {
	if _, err := accounts.CreateUser(ctx, demoName, demoUsername, demoPassword); err != nil && !errors.Is(err, store.ErrUserExists) {
		return fmt.Errorf("bootstrap demo user: %w", err)
	}

	user, err := accounts.Authenticate(ctx, demoUsername, demoPassword)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			// The username exists with another password; leave it alone.
			return nil
		}
		return fmt.Errorf("lookup demo user: %w", err)
	}

	stats, err := catalog.Statistics(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("count demo songs: %w", err)
	}
	if stats.TotalSongs > 0 {
		return nil
	}

	intPtr := func(v int) *int { return &v }
	strPtr := func(v string) *string { return &v }

	seed := []songs.Fields{
		{Title: "Imagine", Artist: "John Lennon", Album: strPtr("Imagine"), Genre: "Pop", Duration: intPtr(183), ReleaseYear: intPtr(1971)},
		{Title: "Bohemian Rhapsody", Artist: "Queen", Album: strPtr("A Night at the Opera"), Genre: "Rock", Duration: intPtr(354), ReleaseYear: intPtr(1975)},
		{Title: "Under Pressure", Artist: "Queen", Genre: "Rock", Duration: intPtr(248), ReleaseYear: intPtr(1981)},
		{Title: "So What", Artist: "Miles Davis", Album: strPtr("Kind of Blue"), Genre: "Jazz", Duration: intPtr(562), ReleaseYear: intPtr(1959)},
	}
	for _, fields := range seed {
		if err := fields.Validate(); err != nil {
			return fmt.Errorf("demo song %q: %w", fields.Title, err)
		}
		if _, err := catalog.Create(ctx, user.ID, fields); err != nil {
			return fmt.Errorf("create demo song %q: %w", fields.Title, err)
		}
	}

	log.Info().Int("songs", len(seed)).Str("username", demoUsername).Msg("demo data created")
	return nil
}
