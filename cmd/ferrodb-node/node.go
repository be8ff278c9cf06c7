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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ferrodb/ferrodb/dispatch"
	"github.com/ferrodb/ferrodb/internal/ferrotypes"
	"github.com/ferrodb/ferrodb/metering"
	"github.com/ferrodb/ferrodb/objectstore"
	"github.com/ferrodb/ferrodb/query"
	"github.com/ferrodb/ferrodb/segment"
	"github.com/ferrodb/ferrodb/spann"
	"github.com/ferrodb/ferrodb/sysdb"
	"github.com/ferrodb/ferrodb/wal"
)

// collectionState is everything one collection's data plane keeps
// resident between requests: its append path, its live vector index,
// and the projection cache compaction leaves behind.
type collectionState struct {
	coll ferrotypes.Collection

	writer      *wal.EpochWriter
	manifestKey string

	vector       *spannVectorWriter
	vectorReader *spann.Reader

	mu   sync.RWMutex
	live map[uint64]ferrotypes.MaterializedRecord
}

// node bundles the process-wide singletons: one object store, one
// control-plane handle, one dispatcher and metering sink shared by
// every collection, plus the compactor driving them all.
type node struct {
	cfg    Config
	store  objectstore.Store
	db     *sysdb.Fake
	cache  *sysdb.Cache
	reader *wal.Reader
	logger *zap.Logger

	dispatcher *dispatch.Dispatcher
	meterRecv  metering.Receiver

	compactor *segment.Compactor

	mu          sync.Mutex
	collections map[string]*collectionState
}

func newNode(cfg Config, store objectstore.Store, db *sysdb.Fake, logger *zap.Logger) *node {
	n := &node{
		cfg: cfg, store: store, db: db, logger: logger,
		cache:       sysdb.NewCache(db),
		reader:      wal.NewReader(store),
		dispatcher:  dispatch.NewDispatcher(cfg.IOWorkers, cfg.OtherWorkers, cfg.QueueDepth),
		meterRecv:   loggingMeterReceiver{logger: logger},
		collections: make(map[string]*collectionState),
	}

	adapter := sysdb.CompactorAdapter{DB: db}
	n.compactor = segment.NewCompactor(adapter, n.reader, cfg.MinCompactionSizeBytes, cfg.CompactionPollInterval, n.resolveTargets, decodeOperationRecord, logger)
	return n
}

func (n *node) collectionByID(ctx context.Context, id string) (*ferrotypes.Collection, error) {
	all, err := n.db.GetCollections(ctx, sysdb.CollectionFilter{})
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("ferrodb-node: unknown collection %q", id)
}

func logPrefixFor(coll ferrotypes.Collection) string {
	return fmt.Sprintf("tenant/%s/database/%s/collection/%s", coll.Tenant, coll.Database, coll.ID)
}

// openCollection lazily opens the WAL writer and vector index for a
// collection the first time it's touched, and keeps it resident for
// the life of the process.
func (n *node) openCollection(ctx context.Context, id string) (*collectionState, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if cs, ok := n.collections[id]; ok {
		return cs, nil
	}

	coll, err := n.collectionByID(ctx, id)
	if err != nil {
		return nil, err
	}

	logPrefix := logPrefixFor(*coll)
	manifestKey := objectstore.LogManifestKey(logPrefix)

	mm := wal.NewManifestManager(n.store, manifestKey, "ferrodb-node", n.logger)
	if _, err := mm.Initialize(ctx, "ferrodb-node"); err != nil {
		n.logger.Debug("wal: log already initialized, opening existing manifest", zap.String("collection_id", id))
	}

	writer, err := wal.OpenEpochWriter(ctx, n.store, logPrefix, "ferrodb-node", wal.DefaultWriterConfig(), n.logger)
	if err != nil {
		return nil, err
	}

	hnswCfg := spann.DefaultHNSWConfig()
	if coll.Index.SPANN.ReassignNeighborCount > 0 {
		hnswCfg.M = coll.Index.SPANN.ReassignNeighborCount
	}
	vectorWriter := spann.NewWriter(coll.Dimensionality, spann.WriterConfig{
		SplitThreshold:        coll.Index.SPANN.SplitThreshold,
		ReassignNeighborCount: coll.Index.SPANN.ReassignNeighborCount,
		Metric:                coll.Metric,
		SearchEpsilon:         coll.Index.SPANN.SearchEpsilon,
	}, hnswCfg)

	cs := &collectionState{
		coll:        *coll,
		writer:      writer,
		manifestKey: manifestKey,
		vector:      newSpannVectorWriter(vectorWriter),
		live:        make(map[uint64]ferrotypes.MaterializedRecord),
	}
	cs.vectorReader = spann.NewReader(vectorWriter, spann.ReaderConfig{
		SearchNprobe:         coll.Index.SPANN.SearchNprobe,
		VectorRerankFactor:   coll.Index.SPANN.VectorRerankFactor,
		CentroidRerankFactor: coll.Index.SPANN.CentroidRerankFactor,
		Metric:               coll.Metric,
	})
	n.collections[id] = cs
	return cs, nil
}

// Append encodes an OperationRecord, writes it to the collection's
// log, and returns the assigned offset. The write itself runs on the
// dispatcher's IO pool since it blocks on an object-store round trip.
func (n *node) Append(ctx context.Context, collectionID string, rec ferrotypes.OperationRecord) (int64, error) {
	cs, err := n.openCollection(ctx, collectionID)
	if err != nil {
		return 0, err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return 0, err
	}

	ctx, stack := n.withMetering(ctx)
	collID, _ := uuid.Parse(collectionID)
	event := &metering.WriteEvent{BytesAppended: int64(len(body)), Regions: 1}
	guard := stack.Open(cs.coll.Tenant, cs.coll.Database, collID, event)
	defer guard.Close(ctx)

	result := <-dispatch.Submit[[]byte, int64](ctx, n.dispatcher, appendOperator{writer: cs.writer}, body)
	return result.Output, result.Err
}

// Query runs one scatter/gather request against a collection's
// current log tail and compacted segment state, dispatched onto the
// CPU pool: the request's own fan-out (fetch, knn) does the blocking
// IO internally via errgroup.
func (n *node) Query(ctx context.Context, req query.Request) ([]query.Result, error) {
	cs, err := n.openCollection(ctx, req.CollectionID)
	if err != nil {
		return nil, err
	}

	ctx, stack := n.withMetering(ctx)
	collID, _ := uuid.Parse(req.CollectionID)
	event := &metering.QueryEvent{}
	guard := stack.Open(cs.coll.Tenant, cs.coll.Database, collID, event)
	defer guard.Close(ctx)

	orch := n.orchestratorFor(cs)
	result := <-dispatch.Submit[query.Request, []query.Result](ctx, n.dispatcher, queryOperator{orch: orch}, req)
	if result.Err == nil {
		event.CandidatesScored = int64(len(result.Output))
	}
	return result.Output, result.Err
}

type appendOperator struct {
	writer *wal.EpochWriter
}

func (appendOperator) Name() string             { return "wal.append" }
func (appendOperator) Type() dispatch.OperatorType { return dispatch.IO }
func (o appendOperator) Run(ctx context.Context, body []byte) (int64, error) {
	return o.writer.Append(ctx, body)
}

type queryOperator struct {
	orch *query.Orchestrator
}

func (queryOperator) Name() string             { return "query.execute" }
func (queryOperator) Type() dispatch.OperatorType { return dispatch.Other }
func (o queryOperator) Run(ctx context.Context, req query.Request) ([]query.Result, error) {
	return o.orch.Execute(ctx, req)
}

func decodeOperationRecord(body []byte) ferrotypes.OperationRecord {
	var rec ferrotypes.OperationRecord
	_ = json.Unmarshal(body, &rec)
	return rec
}

// resolveTargets builds one compaction round's writer bundle: fresh
// metadata/record blockfile writers per round, and the collection's
// single resident vector writer, since spann accumulates state
// incrementally across rounds instead of rebuilding from scratch.
func (n *node) resolveTargets(ctx context.Context, coll ferrotypes.Collection) (segment.CompactionTarget, error) {
	cs, err := n.openCollection(ctx, coll.ID)
	if err != nil {
		return segment.CompactionTarget{}, err
	}
	prefix := fmt.Sprintf("%s/segment", logPrefixFor(coll))
	recordInner := segment.NewRecordBlockWriter(n.store, prefix, n.cfg.BlockfilePageSize)
	return segment.CompactionTarget{
		Manifest: cs.manifestKey,
		Metadata: segment.NewMetadataBlockWriter(n.store, prefix, n.cfg.BlockfilePageSize),
		Record:   newLiveRecordWriter(recordInner, &cs.mu, cs.live),
		Vector:   cs.vector,
		IDs:      fnvIDMapper{},
	}, nil
}

// orchestratorFor builds a query.Orchestrator wired against one
// collection's live state.
func (n *node) orchestratorFor(cs *collectionState) *query.Orchestrator {
	return &query.Orchestrator{
		Log:      logFetcher{reader: n.reader, manifestKey: cs.manifestKey, logPosition: cs.coll.LogPosition},
		Segments: segmentFetcher{cs: cs},
		Filter:   equalityFilterer{},
		LogKNN:   logScorer{},
		SegKNN:   segmentScorer{},
		Raw:      rawEmbeddingFetcher{},
		Project:  projector{},
	}
}

type loggingMeterReceiver struct {
	logger *zap.Logger
}

func (r loggingMeterReceiver) Send(_ context.Context, event metering.MeterEvent) error {
	r.logger.Debug("metering: event",
		zap.String("kind", event.Data.Kind()),
		zap.String("tenant", event.Tenant),
		zap.String("collection_id", event.CollectionID.String()))
	return nil
}

// withMetering attaches a fresh metering.Stack to ctx for one request.
func (n *node) withMetering(ctx context.Context) (context.Context, *metering.Stack) {
	return metering.WithStack(ctx, n.meterRecv)
}
