// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

/*
Package websocket streams background task progress to clients over
gorilla/websocket.

A TaskStream owns one connection and relays the snapshots of a single task
as they arrive from the task registry:

	updates, cancel, err := registry.Watch(taskID)
	...
	conn, err := upgrader.Upgrade(w, r, nil)
	...
	websocket.NewTaskStream(conn, updates, cancel).Run()

Each connection has two loops:
  - readPump: reads client frames, answers "ping" messages, detects disconnects
  - writePump: writes task snapshots and keepalive pings

Messages are JSON objects {"type": ..., "data": ...}:

  - task: a task snapshot; the last one sent is terminal
  - pong: reply to a client "ping"

The stream ends with a normal close frame once the task reaches completed
or failed.
*/
package websocket
