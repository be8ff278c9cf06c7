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

import "time"

// QueryEvent meters one orchestrator request: when it was received
// and completed, how many candidates each stage touched, and whether
// the exact-rerank stage ran.
type QueryEvent struct {
	ReceivedAt     time.Time
	CompletedAt    *time.Time
	LogRecordsRead int64
	SegmentsRead   int64
	CandidatesScored int64
	Reranked       bool
}

func (e *QueryEvent) Kind() string { return "query" }

func (e *QueryEvent) MutateReceivedAt(mutate func(current time.Time) time.Time) {
	e.ReceivedAt = mutate(e.ReceivedAt)
}

func (e *QueryEvent) MutateCompletedAt(mutate func(current *time.Time) *time.Time) {
	e.CompletedAt = mutate(e.CompletedAt)
}

// CompactionEvent meters one compaction round: records materialized,
// bytes written per writer, and wall time.
type CompactionEvent struct {
	ReceivedAt        time.Time
	CompletedAt       *time.Time
	RecordsMaterialized int64
	BytesWritten      int64
}

func (e *CompactionEvent) Kind() string { return "compaction" }

func (e *CompactionEvent) MutateReceivedAt(mutate func(current time.Time) time.Time) {
	e.ReceivedAt = mutate(e.ReceivedAt)
}

func (e *CompactionEvent) MutateCompletedAt(mutate func(current *time.Time) *time.Time) {
	e.CompletedAt = mutate(e.CompletedAt)
}

// WriteEvent meters one WAL append (or quorum append): bytes
// appended and to how many regions.
type WriteEvent struct {
	ReceivedAt  time.Time
	CompletedAt *time.Time
	BytesAppended int64
	Regions     int
}

func (e *WriteEvent) Kind() string { return "write" }

func (e *WriteEvent) MutateReceivedAt(mutate func(current time.Time) time.Time) {
	e.ReceivedAt = mutate(e.ReceivedAt)
}

func (e *WriteEvent) MutateCompletedAt(mutate func(current *time.Time) *time.Time) {
	e.CompletedAt = mutate(e.CompletedAt)
}
