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

// Package metering implements a scoped event stack for billing/usage
// accounting: Open pushes an event onto a per-request Stack and
// returns a Guard; dropping the guard (or calling CloseTop/CloseAll)
// submits the event to a Receiver exactly once. AttachTop/AttachAll
// let callers mutate well-known fields (received-at, completed-at) on
// already-open events without threading a result value back through
// every intermediate call.
package metering

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MeterEventData is the payload of one metered event. Concrete types
// implement ReceivedAtMutable and/or CompletedAtMutable to opt into
// AttachTop/AttachAll mutation; a type that implements neither is
// simply skipped by those calls, mirroring a no-op default.
type MeterEventData interface {
	Kind() string
}

// ReceivedAtMutable is implemented by event payloads that track when
// their request was received.
type ReceivedAtMutable interface {
	MutateReceivedAt(mutate func(current time.Time) time.Time)
}

// CompletedAtMutable is implemented by event payloads that track when
// their request completed; nil means not yet completed.
type CompletedAtMutable interface {
	MutateCompletedAt(mutate func(current *time.Time) *time.Time)
}

// MeterEvent is one submitted usage record.
type MeterEvent struct {
	Tenant       string
	Database     string
	CollectionID uuid.UUID
	Data         MeterEventData
}

// Receiver accepts a completed MeterEvent for downstream billing
// aggregation.
type Receiver interface {
	Send(ctx context.Context, event MeterEvent) error
}

// Stack is one request's scoped event stack. The zero value is ready
// to use. Stack is not safe for concurrent use by multiple goroutines
// simultaneously mutating it; callers thread one *Stack per request
// through context.Context (see WithStack/FromContext) rather than
// sharing it across concurrent requests.
type Stack struct {
	mu       sync.Mutex
	receiver Receiver
	entries  []*entry
}

type entry struct {
	event     MeterEvent
	submitted bool
}

// Guard is returned by Open; dropping it (calling Close, including via
// a deferred call) submits the event if it hasn't already been
// submitted by CloseTop/CloseAll.
type Guard struct {
	stack *Stack
	e     *entry
}

type stackContextKey struct{}

// WithStack attaches a fresh Stack to ctx for the lifetime of one
// request.
func WithStack(ctx context.Context, receiver Receiver) (context.Context, *Stack) {
	s := &Stack{receiver: receiver}
	return context.WithValue(ctx, stackContextKey{}, s), s
}

// FromContext retrieves the Stack attached by WithStack, if any.
func FromContext(ctx context.Context) (*Stack, bool) {
	s, ok := ctx.Value(stackContextKey{}).(*Stack)
	return s, ok
}

// Open pushes a new event onto the stack and returns a Guard. The
// caller should defer guard.Close() so the event is submitted even on
// an early return or panic-free error path.
func (s *Stack) Open(tenant, database string, collectionID uuid.UUID, data MeterEventData) *Guard {
	e := &entry{event: MeterEvent{Tenant: tenant, Database: database, CollectionID: collectionID, Data: data}}
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return &Guard{stack: s, e: e}
}

// Close submits this guard's event if it hasn't already been
// submitted (by itself, CloseTop, or CloseAll). Safe to call multiple
// times.
func (g *Guard) Close(ctx context.Context) error {
	return g.stack.submit(ctx, g.e)
}

func (s *Stack) submit(ctx context.Context, e *entry) error {
	s.mu.Lock()
	if e.submitted {
		s.mu.Unlock()
		return nil
	}
	e.submitted = true
	for i, cand := range s.entries {
		if cand == e {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	receiver := s.receiver
	s.mu.Unlock()
	if receiver == nil {
		return nil
	}
	return receiver.Send(ctx, e.event)
}

// CloseTop submits the most recently opened, not-yet-submitted event.
func (s *Stack) CloseTop(ctx context.Context) error {
	s.mu.Lock()
	if len(s.entries) == 0 {
		s.mu.Unlock()
		return nil
	}
	top := s.entries[len(s.entries)-1]
	s.mu.Unlock()
	return s.submit(ctx, top)
}

// CloseAll submits every open event in LIFO order (most recently
// opened first).
func (s *Stack) CloseAll(ctx context.Context) error {
	for {
		s.mu.Lock()
		if len(s.entries) == 0 {
			s.mu.Unlock()
			return nil
		}
		top := s.entries[len(s.entries)-1]
		s.mu.Unlock()
		if err := s.submit(ctx, top); err != nil {
			return err
		}
	}
}

// AttachTop applies f to the most recently opened event's data,
// in place.
func (s *Stack) AttachTop(f func(data MeterEventData)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return
	}
	f(s.entries[len(s.entries)-1].event.Data)
}

// AttachAll applies f to every currently open event's data.
func (s *Stack) AttachAll(f func(data MeterEventData)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		f(e.event.Data)
	}
}

// MutateReceivedAt is a convenience wrapper that type-asserts data to
// ReceivedAtMutable and no-ops when it doesn't implement it, matching
// the trait's default no-op behavior for payloads that don't track a
// received-at timestamp.
func MutateReceivedAt(data MeterEventData, mutate func(current time.Time) time.Time) {
	if m, ok := data.(ReceivedAtMutable); ok {
		m.MutateReceivedAt(mutate)
	}
}

// MutateCompletedAt is the CompletedAtMutable analogue of
// MutateReceivedAt.
func MutateCompletedAt(data MeterEventData, mutate func(current *time.Time) *time.Time) {
	if m, ok := data.(CompletedAtMutable); ok {
		m.MutateCompletedAt(mutate)
	}
}
