// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package websocket

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/tracelane/internal/logging"
	"github.com/tomtom215/tracelane/internal/tasks"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024 // clients only send pings
)

// Message types.
const (
	MessageTypeTask = "task"
	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

// Message is the frame written to and read from clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// TaskStream relays the snapshots of one task to one websocket peer.
type TaskStream struct {
	conn    *websocket.Conn
	updates <-chan tasks.Task
	cancel  func()
	send    chan Message
	gone    chan struct{}
}

// NewTaskStream binds conn to a registry watch. cancel releases the watch
// and is called when the stream ends.
func NewTaskStream(conn *websocket.Conn, updates <-chan tasks.Task, cancel func()) *TaskStream {
	if cancel == nil {
		cancel = func() {}
	}
	return &TaskStream{
		conn:    conn,
		updates: updates,
		cancel:  cancel,
		send:    make(chan Message, 8),
		gone:    make(chan struct{}),
	}
}

// Run blocks until the task is terminal, the peer disconnects or a write
// fails. The connection is closed on return.
func (s *TaskStream) Run() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.readPump()
	}()

	s.writePump()
	s.cancel()
	_ = s.conn.Close() // best-effort; unblocks readPump
	wg.Wait()
}

// readPump consumes client frames until the connection fails.
func (s *TaskStream) readPump() {
	defer close(s.gone)

	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Msg("Unexpected task stream close")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == MessageTypePing {
			select {
			case s.send <- Message{Type: MessageTypePong}:
			default:
			}
		}
	}
}

// writePump writes snapshots, pongs and keepalive pings.
func (s *TaskStream) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case t, ok := <-s.updates:
			if !ok {
				// Watch closed after the terminal snapshot.
				s.writeClose(websocket.CloseNormalClosure, "task finished")
				return
			}
			if err := s.write(Message{Type: MessageTypeTask, Data: t}); err != nil {
				logging.Debug().Err(err).Str("task_id", t.ID).Msg("Task stream write failed")
				return
			}

		case msg := <-s.send:
			if err := s.write(msg); err != nil {
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.gone:
			return
		}
	}
}

func (s *TaskStream) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *TaskStream) writeClose(code int, text string) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}
