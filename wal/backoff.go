/*
Copyright (C) 2026  ferrodb authors

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package wal

import (
	"context"
	"math/rand"
	"time"

	"github.com/ferrodb/ferrodb/internal/ferrodberrs"
)

// BoundedBackoff retries fn with exponential backoff and jitter until
// it succeeds, ctx is cancelled, or the cumulative wait exceeds
// maxElapsed (20s for batch uploads). fn must return a
// *ferrodberrs.Error so the caller can decide whether a given failure
// is retryable.
func BoundedBackoff(ctx context.Context, maxElapsed time.Duration, fn func() error) error {
	const (
		initial = 20 * time.Millisecond
		max     = 2 * time.Second
	)
	deadline := time.Now().Add(maxElapsed)
	delay := initial

	for {
		err := fn()
		if err == nil {
			return nil
		}
		code := ferrodberrs.CodeOf(err)
		if code != ferrodberrs.Internal && code != ferrodberrs.ResourceExhausted && code != ferrodberrs.Aborted {
			// structural errors (InvalidArgument, Precondition once
			// escalated, etc.) are not transient; surface immediately.
			return err
		}
		if time.Now().After(deadline) {
			return err
		}

		jitter := time.Duration(rand.Int63n(int64(delay) + 1))
		wait := delay/2 + jitter/2
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay *= 2
		if delay > max {
			delay = max
		}
	}
}
