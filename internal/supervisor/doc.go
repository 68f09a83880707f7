// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

/*
Package supervisor runs Tracelane's long-lived services under suture v4.

# Overview

Services are split into two layers so that a crash in background
maintenance never interrupts the HTTP API:

	RootSupervisor ("tracelane")
	├── DataSupervisor ("data-layer")
	│   ├── task-sweeper
	│   └── result-cache-gc
	└── APISupervisor ("api-layer")
	    └── http-server

Ingestion and asynchronous cross-source jobs are not services. They run as
detached goroutines bound to a task in the registry, and the task sweeper
fails any of them that outlive the stuck timeout.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDataService(tasks.NewSweeper(registry, sweeperCfg))
	tree.AddDataService(services.NewCacheGCService(store, 10*time.Minute))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	errCh := tree.ServeBackground(ctx)
	<-ctx.Done()
	<-errCh

# Failure Handling

Each failure increments a counter that decays over FailureDecay seconds.
Once the counter passes FailureThreshold the supervisor waits
FailureBackoff before restarting. A service that returns nil is not
restarted.

Supervisor events are logged through sutureslog, which the caller points
at the zerolog stream via logging.NewSlogLogger.

DuckDB is not supervised. It is an embedded library owned by the database
package and a failure there needs a process restart anyway.
*/
package supervisor
