package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/searchscout/internal/db"
)

// window transaction positions, MULTI and EXEC excluded
const (
	stepTrim = iota
	stepAdd
	stepCard
	stepOldest
	stepExpire
)

var windowOps = [...]string{
	stepTrim:   db.OpZRemRangeByScore,
	stepAdd:    db.OpZAdd,
	stepCard:   db.OpZCard,
	stepOldest: db.OpZRange,
	stepExpire: db.OpPExpire,
}

// WindowAdd trims, inserts, counts and reads the oldest member in one MULTI/EXEC
// transaction, so the count never includes members added by concurrent callers
// after this insert. Scores are unix milliseconds.
func (s *Store) WindowAdd(
	ctx context.Context, key, member string, now time.Time, window time.Duration,
) (db.WindowSnapshot, error) {
	nowMs := now.UnixMilli()
	cutoff := strconv.FormatInt(nowMs-window.Milliseconds(), 10)

	results := s.client.DoMulti(ctx,
		s.b().Multi().Build(),
		s.b().Zremrangebyscore().Key(key).Min("-inf").Max(cutoff).Build(),
		s.b().Zadd().Key(key).ScoreMember().ScoreMember(float64(nowMs), member).Build(),
		s.b().Zcard().Key(key).Build(),
		s.b().Zrange().Key(key).Min("0").Max("0").Withscores().Build(),
		s.b().Pexpire().Key(key).Milliseconds(window.Milliseconds()).Build(),
		s.b().Exec().Build(),
	)
	if len(results) != len(windowOps)+2 {
		return db.WindowSnapshot{}, fmt.Errorf("window transaction: got %d replies, want %d",
			len(results), len(windowOps)+2)
	}
	if err := results[0].Error(); err != nil {
		return db.WindowSnapshot{}, &db.Error{Op: db.OpMulti, Err: err}
	}
	for i, r := range results[1 : len(results)-1] {
		if err := r.Error(); err != nil {
			return db.WindowSnapshot{}, &db.Error{Op: windowOps[i], Err: err}
		}
	}

	replies, err := results[len(results)-1].ToArray()
	if err != nil {
		return db.WindowSnapshot{}, &db.Error{Op: db.OpExec, Err: err}
	}
	if len(replies) != len(windowOps) {
		return db.WindowSnapshot{}, &db.Error{Op: db.OpExec,
			Err: fmt.Errorf("got %d replies, want %d", len(replies), len(windowOps))}
	}
	for i := range replies {
		if err := replies[i].Error(); err != nil {
			return db.WindowSnapshot{}, &db.Error{Op: windowOps[i], Err: err}
		}
	}

	count, err := replies[stepCard].AsInt64()
	if err != nil {
		return db.WindowSnapshot{}, &db.Error{Op: db.OpZCard, Err: err}
	}

	pair, err := replies[stepOldest].AsStrSlice()
	if err != nil {
		return db.WindowSnapshot{}, &db.Error{Op: db.OpZRange, Err: err}
	}

	snap := db.WindowSnapshot{Count: count}
	if len(pair) == 2 {
		score, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return db.WindowSnapshot{}, &db.Error{Op: db.OpZRange, Err: fmt.Errorf("parse score %q: %w", pair[1], err)}
		}
		snap.Oldest = time.UnixMilli(int64(score))
	}
	return snap, nil
}

// WindowRemove deletes member from the window at key.
func (s *Store) WindowRemove(ctx context.Context, key, member string) error {
	cmd := s.b().Zrem().Key(key).Member(member).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpZRem, Err: err}
	}
	return nil
}
