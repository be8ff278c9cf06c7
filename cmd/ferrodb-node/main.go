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

// Command ferrodb-node runs one data-plane node: a log writer, a
// compactor, and a query orchestrator sharing one object store and
// one in-memory control-plane cache.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/ferrodb/ferrodb/internal/logging"
	"github.com/ferrodb/ferrodb/objectstore"
	"github.com/ferrodb/ferrodb/sysdb"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ferrodb")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "ferrodb-node",
		Short: "ferrodb data-plane node: log writer, compactor, and query server",
	}
	root.AddCommand(newServeCmd(v))
	return root
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cfg := defaultConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the node until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			bindConfig(cmd, v, &cfg)
			return runServe(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("listen-addr", cfg.ListenAddr, "gRPC listen address")
	flags.String("log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.String("objectstore-backend", cfg.ObjectStoreBackend, "object store backend: file, s3, ceph")
	flags.String("objectstore-bucket", cfg.ObjectStoreBucket, "bucket name for the s3 backend")
	flags.String("objectstore-root", cfg.ObjectStoreRoot, "root directory for the file backend")
	flags.Int("io-workers", cfg.IOWorkers, "dispatcher IO worker pool size")
	flags.Int("other-workers", cfg.OtherWorkers, "dispatcher CPU worker pool size")
	flags.Int("queue-depth", cfg.QueueDepth, "dispatcher per-pool queue depth")
	flags.Int64("min-compaction-size-bytes", cfg.MinCompactionSizeBytes, "minimum log growth before a collection is compacted")
	flags.Duration("compaction-poll-interval", cfg.CompactionPollInterval, "how often the compactor polls for eligible collections")
	flags.Int("grpc-connections-per-node", cfg.GRPCConnectionsPerNode, "client connections to open per peer node")
	flags.Int("grpc-port", cfg.GRPCPort, "peer gRPC port used for outbound client dialing")
	flags.Duration("grpc-connect-timeout", cfg.GRPCConnectTimeout, "peer connect timeout")
	flags.Duration("grpc-request-timeout", cfg.GRPCRequestTimeout, "peer request timeout")
	_ = v.BindPFlags(flags)

	return cmd
}

// bindConfig resolves cfg's fields from, in ascending priority: the
// struct's own defaults, FERRODB_* environment variables, and command
// line flags (cobra/viper's normal precedence).
func bindConfig(cmd *cobra.Command, v *viper.Viper, cfg *Config) {
	cfg.ListenAddr = v.GetString("listen-addr")
	cfg.LogLevel = v.GetString("log-level")
	cfg.ObjectStoreBackend = v.GetString("objectstore-backend")
	cfg.ObjectStoreBucket = v.GetString("objectstore-bucket")
	cfg.ObjectStoreRoot = v.GetString("objectstore-root")
	cfg.IOWorkers = v.GetInt("io-workers")
	cfg.OtherWorkers = v.GetInt("other-workers")
	cfg.QueueDepth = v.GetInt("queue-depth")
	cfg.MinCompactionSizeBytes = v.GetInt64("min-compaction-size-bytes")
	cfg.CompactionPollInterval = v.GetDuration("compaction-poll-interval")
	cfg.GRPCConnectionsPerNode = v.GetInt("grpc-connections-per-node")
	cfg.GRPCPort = v.GetInt("grpc-port")
	cfg.GRPCConnectTimeout = v.GetDuration("grpc-connect-timeout")
	cfg.GRPCRequestTimeout = v.GetDuration("grpc-request-timeout")
}

func openStore(cfg Config) (objectstore.Store, error) {
	switch cfg.ObjectStoreBackend {
	case "file", "":
		return objectstore.NewFileStore(cfg.ObjectStoreRoot), nil
	case "s3":
		return objectstore.NewS3Store(objectstore.S3Config{Bucket: cfg.ObjectStoreBucket}), nil
	default:
		return nil, fmt.Errorf("ferrodb-node: unsupported object store backend %q (ceph requires a build-tagged binary)", cfg.ObjectStoreBackend)
	}
}

func runServe(ctx context.Context, cfg Config) error {
	logger := logging.New(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	db := sysdb.NewFake()
	n := newNode(cfg, store, db, logger)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go n.cache.RefreshLoop(ctx, cfg.CompactionPollInterval)
	go func() {
		if err := n.compactor.Run(ctx); err != nil {
			logger.Error("compactor stopped", zap.Error(err))
		}
	}()

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("ferrodb-node: listen on %s: %w", cfg.ListenAddr, err)
	}
	grpcServer := grpc.NewServer()
	// Service registration (collection CRUD, add/query RPCs) lives in
	// the control-plane/data-plane proto definitions; wiring them onto
	// grpcServer is the next step once that surface is generated.

	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	logger.Info("ferrodb-node: serving", zap.String("addr", cfg.ListenAddr))
	return grpcServer.Serve(lis)
}
