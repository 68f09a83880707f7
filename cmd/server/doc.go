// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

/*
Package main is the entry point for the Tracelane server.

Tracelane ingests vehicle presence data (LPR camera reads, GPS tracks and
external records such as insurer or registry exports) into investigation
cases, and correlates it: external records against camera reads, plates
seen across several cases, and vehicles travelling in the shadow of a
target plate.

# Application Architecture

The server runs under a Suture v4 supervision tree:

	RootSupervisor ("tracelane")
	├── DataSupervisor ("data-layer")
	│   ├── Task sweeper (evicts finished tasks, fails stuck ones)
	│   └── Result cache GC (expired entries, badger value log)
	└── APISupervisor ("api-layer")
	    └── HTTP Server (chi router, REST + websocket task streams)

Component initialization order:

 1. Configuration: Koanf v2 with environment variables and config files
 2. Logging: zerolog with JSON/console output modes
 3. Database: DuckDB
 4. Result cache: go-cache in memory or BadgerDB on disk
 5. Task registry, ingestion pipeline and correlation engine
 6. Supervisor tree and HTTP server

# Configuration

Configuration is loaded via Koanf v2 with layered sources (highest priority wins):

	Priority: Environment variables > Config file > Defaults

Core environment variables:

	HTTP_HOST=0.0.0.0
	HTTP_PORT=8080
	MAX_UPLOAD_BYTES=536870912
	DUCKDB_PATH=/data/tracelane.duckdb
	LOG_LEVEL=info               # trace, debug, info, warn, error
	LOG_FORMAT=json              # json or console
	CORS_ORIGINS=https://ui.example.org
	UPLOAD_DIR=/data/uploads
	TASK_RETENTION=5m
	CACHE_BACKEND=memory         # memory or badger
	CACHE_PATH=/data/cache

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains
in-flight requests for up to 10 seconds, the supervisor stops the data
layer, then the cache and the database are closed.
*/
package main
