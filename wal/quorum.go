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
	"sync"
	"time"

	"github.com/ferrodb/ferrodb/internal/ferrodberrs"
)

// QuorumResult is the outcome of one region's write attempt.
type QuorumResult struct {
	Region string
	Offset int64
	Err    error
}

// WriteQuorum runs fn against every region concurrently. Once
// minSuccesses regions have succeeded it waits up to graceTimeout for
// stragglers, then returns what it has collected (so a slow region
// doesn't block the caller once quorum is already durable). If fewer
// than minSuccesses succeed, it returns the collected per-region
// results together with an Aborted error.
func WriteQuorum(ctx context.Context, regions []string, minSuccesses int, graceTimeout time.Duration, fn func(ctx context.Context, region string) (int64, error)) ([]QuorumResult, error) {
	if minSuccesses <= 0 || minSuccesses > len(regions) {
		return nil, ferrodberrs.New(ferrodberrs.InvalidArgument, "wal: min_successes=%d invalid for %d regions", minSuccesses, len(regions))
	}

	results := make(chan QuorumResult, len(regions))
	var wg sync.WaitGroup
	for _, region := range regions {
		wg.Add(1)
		go func(region string) {
			defer wg.Done()
			offset, err := fn(ctx, region)
			results <- QuorumResult{Region: region, Offset: offset, Err: err}
		}(region)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var collected []QuorumResult
	successes := 0
	var graceDeadline <-chan time.Time

	for {
		select {
		case r, ok := <-results:
			if !ok {
				if successes >= minSuccesses {
					return collected, nil
				}
				return collected, ferrodberrs.New(ferrodberrs.Aborted, "wal: quorum not reached, %d/%d regions succeeded", successes, minSuccesses)
			}
			collected = append(collected, r)
			if r.Err == nil {
				successes++
				if successes == minSuccesses && graceDeadline == nil {
					timer := time.NewTimer(graceTimeout)
					defer timer.Stop()
					graceDeadline = timer.C
				}
			}
		case <-graceDeadline:
			return collected, nil
		case <-ctx.Done():
			return collected, ctx.Err()
		}
	}
}
