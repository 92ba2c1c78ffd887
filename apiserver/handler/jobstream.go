package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// streamPushInterval is how often job snapshots are pushed to a
	// connected client.
	streamPushInterval = 2 * time.Second
	// streamReadDeadline is the maximum time to wait for a pong before
	// considering the connection dead.
	streamReadDeadline = 90 * time.Second
)

var streamUpgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	CheckOrigin:      func(r *http.Request) bool { return true },
}

// JobStreamHub tracks active job-stream connections so they can be closed
// during graceful shutdown.
type JobStreamHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	done  chan struct{}
}

// NewJobStreamHub builds an empty hub.
func NewJobStreamHub() *JobStreamHub {
	return &JobStreamHub{conns: make(map[*websocket.Conn]struct{}), done: make(chan struct{})}
}

func (h *JobStreamHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *JobStreamHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// Shutdown closes every active connection and signals handlers to exit.
func (h *JobStreamHub) Shutdown() {
	close(h.done)
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	h.conns = make(map[*websocket.Conn]struct{})
}

// JobStream handles GET /api/download/jobs/stream: it upgrades to a
// WebSocket and periodically pushes the full job list as JSON until the
// client disconnects or the server shuts down. An optional job_id query
// param narrows the stream to a single job.
func (d *Deps) JobStream(hub *JobStreamHub) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Query("job_id")

		conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		hub.add(conn)
		defer func() {
			hub.remove(conn)
			_ = conn.Close()
		}()

		ticker := time.NewTicker(streamPushInterval)
		defer ticker.Stop()

		_ = conn.SetReadDeadline(time.Now().Add(streamReadDeadline))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(streamReadDeadline))
			return nil
		})

		readErr := make(chan error, 1)
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					readErr <- err
					return
				}
			}
		}()

		if err := d.pushJobs(conn, jobID); err != nil {
			return
		}

		for {
			select {
			case <-hub.done:
				return
			case <-ticker.C:
				if err := d.pushJobs(conn, jobID); err != nil {
					slog.Debug("job stream: write error", "error", err)
					return
				}
				// The client's pong extends the read deadline.
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					slog.Debug("job stream: ping error", "error", err)
					return
				}
			case err := <-readErr:
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
					slog.Debug("job stream: unexpected close", "error", err)
				}
				return
			}
		}
	}
}

func (d *Deps) pushJobs(conn *websocket.Conn, jobID string) error {
	var payload []byte
	var err error

	if jobID != "" {
		job, ok := d.Queue.Get(jobID)
		if !ok {
			payload, err = json.Marshal(gin.H{"error": "job not found"})
		} else {
			payload, err = json.Marshal(jobToWire(job.View()))
		}
	} else {
		jobs := d.Queue.List()
		out := make([]jobWire, 0, len(jobs))
		for _, job := range jobs {
			out = append(out, jobToWire(job.View()))
		}
		payload, err = json.Marshal(gin.H{"jobs": out})
	}
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}
