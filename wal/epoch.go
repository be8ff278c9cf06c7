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
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ferrodb/ferrodb/internal/ferrodberrs"
	"github.com/ferrodb/ferrodb/objectstore"
)

// EpochWriter owns "the" current Writer and a monotonically
// increasing epoch. On LogContention the next Append opens a fresh
// writer and swaps it in under a single mutex; concurrent callers
// racing the reopen all observe the new writer.
type EpochWriter struct {
	store     objectstore.Store
	logPrefix string
	writerID  string
	cfg       WriterConfig
	logger    *zap.Logger

	mu     sync.Mutex
	writer *Writer
	epoch  uint64
}

func OpenEpochWriter(ctx context.Context, store objectstore.Store, logPrefix, writerID string, cfg WriterConfig, logger *zap.Logger) (*EpochWriter, error) {
	w, err := OpenWriter(ctx, store, logPrefix, writerID, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &EpochWriter{store: store, logPrefix: logPrefix, writerID: writerID, cfg: cfg, logger: logger, writer: w, epoch: 1}, nil
}

// Epoch returns the current epoch, incremented once per reopen.
func (e *EpochWriter) Epoch() uint64 {
	return atomic.LoadUint64(&e.epoch)
}

func (e *EpochWriter) current() *Writer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writer
}

// Append retries once across a single reopen when the underlying
// writer reports LogContention (the loser reopens under the next
// epoch and retries).
func (e *EpochWriter) Append(ctx context.Context, payload []byte) (int64, error) {
	for attempt := 0; attempt < 2; attempt++ {
		w := e.current()
		offset, err := w.Append(ctx, payload)
		if err == nil {
			return offset, nil
		}
		if !errors.Is(err, ErrLogContention) {
			return 0, err
		}
		if reopenErr := e.reopen(ctx, w); reopenErr != nil {
			return 0, reopenErr
		}
	}
	return 0, ferrodberrs.New(ferrodberrs.Aborted, "wal: repeated log contention across reopen")
}

// reopen swaps in a fresh writer if nobody else already did so for
// this stale writer instance, advancing the epoch exactly once per
// genuine contention event.
func (e *EpochWriter) reopen(ctx context.Context, stale *Writer) error {
	e.mu.Lock()
	if e.writer != stale {
		// someone else already reopened; nothing to do.
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	fresh, err := OpenWriter(ctx, e.store, e.logPrefix, e.writerID, e.cfg, e.logger)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writer == stale {
		stale.Close()
		e.writer = fresh
		atomic.AddUint64(&e.epoch, 1)
	} else {
		fresh.Close()
	}
	return nil
}
