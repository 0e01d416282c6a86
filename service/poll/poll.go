// Package poll provides the loop shared by every "poll until a condition holds or a
// budget runs out" operation in the relay: slot alignment, batch confirmation and
// single-signature confirmation. Callers supply the schedule and the per-round check;
// the loop owns the sleeping, the round counting and the budget checks.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRoundsExhausted is returned when MaxRounds rounds ran without the step reporting done.
	ErrRoundsExhausted = errors.New("polling rounds exhausted")

	// ErrDeadlineExceeded is returned when the wall-clock deadline elapsed before the step reported done.
	ErrDeadlineExceeded = errors.New("polling deadline exceeded")
)

// Schedule returns the offset from the start of polling at which the given round ends.
// Rounds are numbered from 1.
type Schedule func(round int) time.Duration

// Linear ends round N at N*step after the start of polling.
func Linear(step time.Duration) Schedule {
	return func(round int) time.Duration {
		return time.Duration(round) * step
	}
}

// Busy never waits between rounds; the step itself paces the loop.
func Busy() Schedule {
	return func(int) time.Duration { return 0 }
}

// Step runs one round. Returning done=true ends the loop successfully.
// A non-nil error aborts the loop and is returned unchanged.
type Step func(ctx context.Context, round int) (done bool, err error)

// Config parameterizes a polling loop.
type Config struct {
	Schedule  Schedule
	MaxRounds int           // 0 means unbounded
	Deadline  time.Duration // 0 means no wall-clock limit
}

// Outcome describes how far the loop got.
type Outcome struct {
	Rounds  int
	Elapsed time.Duration
}

// Run executes step on cfg's schedule until it reports done, errors, or a budget runs out.
func Run(ctx context.Context, cfg Config, step Step) (Outcome, error) {
	if cfg.Schedule == nil {
		cfg.Schedule = Busy()
	}

	start := time.Now()
	var out Outcome

	for round := 1; ; round++ {
		if cfg.Deadline > 0 && time.Since(start) >= cfg.Deadline {
			out.Elapsed = time.Since(start)
			return out, fmt.Errorf("%w after %s (%d rounds)", ErrDeadlineExceeded, cfg.Deadline, out.Rounds)
		}

		done, err := step(ctx, round)
		out.Rounds = round
		if err != nil {
			out.Elapsed = time.Since(start)
			return out, err
		}
		if done {
			out.Elapsed = time.Since(start)
			return out, nil
		}

		if cfg.MaxRounds > 0 && round >= cfg.MaxRounds {
			out.Elapsed = time.Since(start)
			return out, fmt.Errorf("%w after %d rounds", ErrRoundsExhausted, round)
		}

		if err := sleepUntil(ctx, start.Add(cfg.Schedule(round))); err != nil {
			out.Elapsed = time.Since(start)
			return out, err
		}
	}
}

// sleepUntil blocks until t or until ctx is done. It returns immediately when t has passed.
func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	return sleepUntil(ctx, time.Now().Add(d))
}
