// Package window adapts the database sorted-set window to the shared rate gate.
package window

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/searchscout/internal/db"
	"github.com/kailas-cloud/searchscout/internal/domain"
)

var keyPrefix = domain.KeyPrefix + "ratelimit:"

// Store implements ratelimit.WindowStore on top of DB (ZADD + ZCARD with TTL).
type Store struct {
	store  db.WindowStore
	member func() string
}

// New creates a window store.
func New(s db.WindowStore) *Store {
	return &Store{
		store:  s,
		member: func() string { return uuid.NewString() },
	}
}

// Record adds a unique member at now and rolls it back when the window was already full.
func (s *Store) Record(
	ctx context.Context, identity string, now time.Time, window time.Duration, limit int,
) (domain.WindowState, error) {
	key := windowKey(identity)
	member := s.member()

	snap, err := s.store.WindowAdd(ctx, key, member, now, window)
	if err != nil {
		return domain.WindowState{}, fmt.Errorf("window add: %w", err)
	}

	state := domain.WindowState{
		Admitted: snap.Count <= int64(limit),
		Count:    int(snap.Count),
		Oldest:   snap.Oldest,
	}
	if state.Admitted {
		return state, nil
	}

	// Denied requests must not occupy the window.
	if err := s.store.WindowRemove(ctx, key, member); err != nil {
		return domain.WindowState{}, fmt.Errorf("window rollback: %w", err)
	}
	state.Count--
	return state, nil
}

// windowKey hashes the identity so raw API keys never land in the store.
func windowKey(identity string) string {
	h := sha256.Sum256([]byte(identity))
	return keyPrefix + hex.EncodeToString(h[:])
}
