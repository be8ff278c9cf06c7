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

package metering

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

type recordingReceiver struct {
	events []MeterEvent
}

func (r *recordingReceiver) Send(_ context.Context, event MeterEvent) error {
	r.events = append(r.events, event)
	return nil
}

func TestGuardCloseSubmitsOnce(t *testing.T) {
	recv := &recordingReceiver{}
	ctx, stack := WithStack(context.Background(), recv)
	collID := uuid.New()
	guard := stack.Open("tenant-a", "db-a", collID, &WriteEvent{BytesAppended: 10})

	if err := guard.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := guard.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if len(recv.events) != 1 {
		t.Fatalf("len(events) = %d, want 1 (Close must be idempotent)", len(recv.events))
	}
	if recv.events[0].Tenant != "tenant-a" || recv.events[0].CollectionID != collID {
		t.Fatalf("event mismatch: %+v", recv.events[0])
	}
}

func TestFromContextRoundTrip(t *testing.T) {
	recv := &recordingReceiver{}
	ctx, stack := WithStack(context.Background(), recv)
	got, ok := FromContext(ctx)
	if !ok || got != stack {
		t.Fatalf("FromContext did not return the attached stack")
	}
}

func TestCloseAllSubmitsLIFO(t *testing.T) {
	recv := &recordingReceiver{}
	ctx, stack := WithStack(context.Background(), recv)
	stack.Open("t", "d", uuid.New(), &WriteEvent{BytesAppended: 1})
	stack.Open("t", "d", uuid.New(), &WriteEvent{BytesAppended: 2})

	if err := stack.CloseAll(ctx); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	if len(recv.events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(recv.events))
	}
	first := recv.events[0].Data.(*WriteEvent)
	second := recv.events[1].Data.(*WriteEvent)
	if first.BytesAppended != 2 || second.BytesAppended != 1 {
		t.Fatalf("CloseAll order = [%d %d], want [2 1] (LIFO)", first.BytesAppended, second.BytesAppended)
	}
}

func TestAttachTopMutatesOnlyMostRecent(t *testing.T) {
	recv := &recordingReceiver{}
	ctx, stack := WithStack(context.Background(), recv)
	stack.Open("t", "d", uuid.New(), &QueryEvent{})
	stack.Open("t", "d", uuid.New(), &QueryEvent{})

	stack.AttachTop(func(data MeterEventData) {
		data.(*QueryEvent).CandidatesScored = 99
	})
	_ = stack.CloseAll(ctx)

	top := recv.events[0].Data.(*QueryEvent)
	bottom := recv.events[1].Data.(*QueryEvent)
	if top.CandidatesScored != 99 {
		t.Fatalf("AttachTop did not mutate the top entry")
	}
	if bottom.CandidatesScored != 0 {
		t.Fatalf("AttachTop leaked into the bottom entry: %d", bottom.CandidatesScored)
	}
}

func TestMutateReceivedAtNoopForUnsupportedPayload(t *testing.T) {
	// a payload type that implements neither mutable interface must be
	// silently skipped rather than panicking.
	called := false
	MutateReceivedAt(kindOnly{}, func(current time.Time) time.Time {
		called = true
		return current
	})
	if called {
		t.Fatalf("mutate should not be called for a payload without ReceivedAtMutable")
	}
}

type kindOnly struct{}

func (kindOnly) Kind() string { return "kind-only" }
