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

	"go.uber.org/zap"

	"github.com/ferrodb/ferrodb/internal/ferrodberrs"
	"github.com/ferrodb/ferrodb/objectstore"
)

// WriterConfig tunes batching and upload rate limiting.
type WriterConfig struct {
	BatchSizeBytes   int
	BatchIntervalUs  int64
	BucketCount      uint64
	MaxElapsedUpload time.Duration // 20s default
}

func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSizeBytes:   4 * 1024 * 1024,
		BatchIntervalUs:  10_000,
		BucketCount:      64,
		MaxElapsedUpload: 20 * time.Second,
	}
}

type appendRequest struct {
	payload []byte
	result  chan appendResult
}

type appendResult struct {
	offset int64
	err    error
}

// Writer accepts appends, batches them, assigns offsets, and installs
// fragments into the manifest. Exactly one upload is in flight at a
// time (rate-limited to 1/throughput); the enqueue mutex linearizes
// concurrent callers of Append.
type Writer struct {
	store       objectstore.Store
	logPrefix   string
	manifestMgr *ManifestManager
	cfg         WriterConfig
	logger      *zap.Logger

	mu         sync.Mutex
	nextOffset uint64
	nextSeqNo  uint64
	queue      []appendRequest
	queueBytes int
	wake       chan struct{}
	closed     bool
}

// OpenWriter resolves the manifest and starts the batching loop. It
// implements a recovery probe: after reading the current manifest it
// probes seq_no = next, next+1, ... for orphan fragments (uploads
// whose manifest install never completed) and replays them into the
// manifest before accepting new appends.
func OpenWriter(ctx context.Context, store objectstore.Store, logPrefix, writerID string, cfg WriterConfig, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mm := NewManifestManager(store, objectstore.LogManifestKey(logPrefix), writerID, logger)
	manifest, err := mm.Open(ctx)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		store:       store,
		logPrefix:   logPrefix,
		manifestMgr: mm,
		cfg:         cfg,
		logger:      logger,
		nextOffset:  manifest.NextOffset(),
		nextSeqNo:   manifest.NextSeqNo(),
		wake:        make(chan struct{}, 1),
	}

	if err := w.recoverOrphans(ctx); err != nil {
		return nil, err
	}

	go w.batchLoop(ctx)
	return w, nil
}

// recoverOrphans probes for fragments uploaded under a seq_no the
// installed manifest doesn't yet know about (the writer crashed, or
// lost a race, between upload and manifest install).
func (w *Writer) recoverOrphans(ctx context.Context) error {
	seq := w.nextSeqNo
	for {
		key := objectstore.LogFragmentKey(w.logPrefix, seq, w.cfg.BucketCount)
		body, _, err := w.store.Get(ctx, key, objectstore.GetOptions{})
		if err != nil {
			if ferrodberrs.HasCode(err, ferrodberrs.NotFound) {
				return nil
			}
			return err
		}
		rows, decErr := DecodeFragment(body)
		if decErr != nil {
			return decErr
		}
		if len(rows) == 0 {
			return nil
		}
		ref := FragmentRef{
			Path:     key,
			SeqNo:    seq,
			Start:    rows[0].Offset,
			Limit:    rows[len(rows)-1].Offset + 1,
			NumBytes: int64(len(body)),
			Setsum:   ComputeFragmentSetsum(body),
		}
		if err := w.manifestMgr.Enqueue(ctx, ref); err != nil {
			return err
		}
		w.nextOffset = ref.Limit
		seq++
		w.nextSeqNo = seq
	}
}

// Append returns once payload is durably referenced by an installed
// manifest.
func (w *Writer) Append(ctx context.Context, payload []byte) (int64, error) {
	result := make(chan appendResult, 1)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return 0, ferrodberrs.New(ferrodberrs.Aborted, "wal: writer closed")
	}
	w.queue = append(w.queue, appendRequest{payload: payload, result: result})
	w.queueBytes += len(payload)
	full := w.queueBytes >= w.cfg.BatchSizeBytes
	w.mu.Unlock()

	if full {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}

	select {
	case r := <-result:
		return r.offset, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *Writer) batchLoop(ctx context.Context) {
	interval := time.Duration(w.cfg.BatchIntervalUs) * time.Microsecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		case <-ticker.C:
		}
		w.flush(ctx)
	}
}

func (w *Writer) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.queue) == 0 {
		w.mu.Unlock()
		return
	}
	batch := w.queue
	w.queue = nil
	w.queueBytes = 0
	startOffset := w.nextOffset
	seqNo := w.nextSeqNo
	if startOffset > maxSafeOffset-uint64(len(batch)) {
		w.mu.Unlock()
		failAll(batch, ErrLogFull)
		return
	}
	w.nextOffset += uint64(len(batch))
	w.nextSeqNo++
	w.mu.Unlock()

	rows := make([]FragmentRow, len(batch))
	now := uint64(time.Now().UnixMicro())
	for i, req := range batch {
		rows[i] = FragmentRow{Offset: startOffset + uint64(i), TimestampUs: now, Body: req.payload}
	}

	encoded, err := EncodeFragment(rows)
	if err != nil {
		failAll(batch, err)
		return
	}

	key := objectstore.LogFragmentKey(w.logPrefix, seqNo, w.cfg.BucketCount)
	uploadErr := BoundedBackoff(ctx, w.cfg.MaxElapsedUpload, func() error {
		_, putErr := w.store.Put(ctx, key, encoded, objectstore.PutOptions{IfNotExists: true})
		return putErr
	})
	if uploadErr != nil {
		if ferrodberrs.HasCode(uploadErr, ferrodberrs.Precondition) {
			failAll(batch, ErrLogContention)
			return
		}
		failAll(batch, uploadErr)
		return
	}

	ref := FragmentRef{
		Path:     key,
		SeqNo:    seqNo,
		Start:    startOffset,
		Limit:    startOffset + uint64(len(batch)),
		NumBytes: int64(len(encoded)),
		Setsum:   ComputeFragmentSetsum(encoded),
	}

	if err := w.manifestMgr.Enqueue(ctx, ref); err != nil {
		failAll(batch, err)
		return
	}

	for i, req := range batch {
		req.result <- appendResult{offset: int64(startOffset) + int64(i)}
	}
}

func failAll(batch []appendRequest, err error) {
	for _, req := range batch {
		req.result <- appendResult{err: err}
	}
}

// ErrLogContention signals another writer won this fragment slot; the
// epoch writer reopens under a fresh epoch in response.
var ErrLogContention = ferrodberrs.New(ferrodberrs.Aborted, "wal: log contention, fragment slot stolen by another writer")

// ErrLogFull signals next_offset is approaching u64::MAX.
var ErrLogFull = ferrodberrs.New(ferrodberrs.ResourceExhausted, "wal: log is full")

// maxSafeOffset leaves headroom below math.MaxUint64 so offset math
// never wraps.
const maxSafeOffset = ^uint64(0) - (1 << 32)

// Close stops accepting new appends. In-flight batches still drain.
func (w *Writer) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// NextOffset reports the offset the next Append will receive (best
// effort; concurrent appenders may race ahead of this read).
func (w *Writer) NextOffset() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextOffset
}
