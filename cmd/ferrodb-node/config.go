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

import "time"

// Config is one node's resolved configuration, bound from flags and
// environment variables (FERRODB_*) via viper.
type Config struct {
	ListenAddr string
	LogLevel   string

	ObjectStoreBackend string // "file", "s3", "ceph"
	ObjectStoreBucket  string
	ObjectStoreRoot    string // used by the file backend

	IOWorkers    int
	OtherWorkers int
	QueueDepth   int

	BlockfilePageSize       int
	MinCompactionSizeBytes  int64
	CompactionPollInterval  time.Duration

	GRPCConnectionsPerNode int
	GRPCPort               int
	GRPCConnectTimeout     time.Duration
	GRPCRequestTimeout     time.Duration
}

func defaultConfig() Config {
	return Config{
		ListenAddr:             ":50051",
		LogLevel:               "info",
		ObjectStoreBackend:     "file",
		ObjectStoreRoot:        "./data",
		IOWorkers:              8,
		OtherWorkers:           4,
		QueueDepth:             256,
		BlockfilePageSize:      1024,
		MinCompactionSizeBytes: 4 * 1024 * 1024,
		CompactionPollInterval: 5 * time.Second,
		GRPCConnectionsPerNode: 4,
		GRPCPort:               50051,
		GRPCConnectTimeout:     5 * time.Second,
		GRPCRequestTimeout:     30 * time.Second,
	}
}
