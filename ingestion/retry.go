// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultMaxRetryDelay caps a single pause between attempts.
const DefaultMaxRetryDelay = 30 * time.Second

// permanentError stops Backoff.Do without further attempts.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Backoff retries an operation, doubling the pause after every failure.
type Backoff struct {
	Attempts  int           // total tries including the first; must be > 0
	BaseDelay time.Duration // pause after the first failure
	MaxDelay  time.Duration // zero means DefaultMaxRetryDelay
	Logger    *slog.Logger
}

// Delay returns the pause after the given number of consecutive failures.
func (b Backoff) Delay(failures int) time.Duration {
	ceiling := b.MaxDelay
	if ceiling <= 0 {
		ceiling = DefaultMaxRetryDelay
	}
	if failures < 1 || b.BaseDelay <= 0 {
		return 0
	}
	delay := b.BaseDelay
	for i := 1; i < failures; i++ {
		if delay >= ceiling/2 {
			return ceiling
		}
		delay *= 2
	}
	return min(delay, ceiling)
}

// Do calls op until it succeeds, returns a Permanent error, the attempts
// run out, or ctx ends. The last error from op is returned as is; a
// Permanent error is returned unwrapped.
func (b Backoff) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if b.Attempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err = op(ctx); err == nil {
			if attempt > 1 {
				logger.Debug("succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		var permanent *permanentError
		if errors.As(err, &permanent) {
			return permanent.err
		}
		if attempt == b.Attempts {
			return err
		}

		delay := b.Delay(attempt)
		logger.Debug("attempt failed, retrying", "attempt", attempt, "of", b.Attempts, "delay", delay, "err", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
