// Package ui serves the operator-facing status surface: a WebSocket stream
// of pipeline snapshots with a command channel back, a one-shot JSON status
// endpoint, Prometheus metrics and health probes.
package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/pulsecord/internal/health"
	"github.com/MrWong99/pulsecord/internal/observe"
	"github.com/MrWong99/pulsecord/internal/pipeline"
	"github.com/MrWong99/pulsecord/internal/source"
)

// Pipeline is the coordinator surface the server needs.
type Pipeline interface {
	Snapshot() pipeline.Snapshot
	Submit(pipeline.Command) bool
}

// command is the wire format for operator commands received over the
// WebSocket.
type command struct {
	// Action is "select" or "stop".
	Action string `json:"action"`

	// Index and Name identify the source for "select".
	Index uint32 `json:"index,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Option configures a [Server].
type Option func(*Server)

// WithPushInterval overrides the default 100 ms snapshot push cadence.
func WithPushInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pushInterval = d
		}
	}
}

// Server exposes the relay's status endpoints on one mux.
type Server struct {
	pipe         Pipeline
	metrics      *observe.Metrics
	probes       *health.Handler
	pushInterval time.Duration
}

// NewServer creates a status server over the given pipeline.
func NewServer(pipe Pipeline, m *observe.Metrics, probes *health.Handler, opts ...Option) *Server {
	s := &Server{
		pipe:         pipe,
		metrics:      m,
		probes:       probes,
		pushInterval: 100 * time.Millisecond,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the full route set: /ws, /status, /metrics, /healthz and
// /readyz. Everything except /metrics goes through the observe middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /status", s.handleStatus)
	s.probes.Register(mux)

	wrapped := observe.Middleware(s.metrics)(mux)

	outer := http.NewServeMux()
	outer.Handle("GET /metrics", promhttp.Handler())
	outer.Handle("/", wrapped)
	return outer
}

// Run serves the status endpoints until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("status server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errc:
		return fmt.Errorf("ui: serve %s: %w", addr, err)
	}
}

// handleStatus serves one snapshot as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(s.pipe.Snapshot()); err != nil {
		http.Error(w, "encode snapshot", http.StatusInternalServerError)
	}
}

// handleWS upgrades to a WebSocket, streams snapshots at the push cadence
// and accepts commands from the client on the same connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		s.readCommands(ctx, conn)
	}()

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "done")
			return
		case <-ticker.C:
			data, err := json.Marshal(s.pipe.Snapshot())
			if err != nil {
				slog.Warn("snapshot marshal failed", "error", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}

// readCommands consumes operator commands until the connection drops.
func (s *Server) readCommands(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			slog.Warn("malformed command ignored", "error", err)
			continue
		}
		s.dispatch(ctx, cmd)
	}
}

// dispatch translates a wire command into a pipeline command.
func (s *Server) dispatch(ctx context.Context, cmd command) {
	s.metrics.CommandsReceived.Add(ctx, 1,
		metric.WithAttributes(observe.Attr("kind", cmd.Action)))

	switch cmd.Action {
	case "select":
		sel := s.resolveSelection(cmd)
		if !s.pipe.Submit(pipeline.Command{Kind: pipeline.CommandSelect, Selection: sel}) {
			slog.Warn("select command dropped, coordinator busy")
		}
	case "stop":
		if !s.pipe.Submit(pipeline.Command{Kind: pipeline.CommandStop}) {
			slog.Warn("stop command dropped, coordinator busy")
		}
	default:
		slog.Warn("unknown command ignored", "action", cmd.Action)
	}
}

// resolveSelection builds a full selection from the current source list so
// the remembered identity carries the application name and kind, not just
// what the client sent.
func (s *Server) resolveSelection(cmd command) source.Selection {
	for _, src := range s.pipe.Snapshot().Sources {
		if src.Index == cmd.Index {
			return source.Select(src)
		}
	}
	return source.Selection{Index: cmd.Index, Name: cmd.Name}
}
