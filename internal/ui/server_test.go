package ui

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/pulsecord/internal/health"
	"github.com/MrWong99/pulsecord/internal/observe"
	"github.com/MrWong99/pulsecord/internal/pipeline"
	"github.com/MrWong99/pulsecord/internal/source"
)

type fakePipe struct {
	mu   sync.Mutex
	snap pipeline.Snapshot
	cmds []pipeline.Command
}

func (f *fakePipe) Snapshot() pipeline.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakePipe) Submit(cmd pipeline.Command) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return true
}

func (f *fakePipe) commands() []pipeline.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Command(nil), f.cmds...)
}

func newTestServer(t *testing.T, pipe *fakePipe) *httptest.Server {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(pipe, m, health.New(), WithPushInterval(10*time.Millisecond))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusEndpoint(t *testing.T) {
	pipe := &fakePipe{snap: pipeline.Snapshot{
		State: pipeline.StateStreaming,
		Sources: []source.AudioSource{
			{Index: 7, Name: "firefox", Application: "firefox"},
		},
		FramesSent: 42,
	}}
	srv := newTestServer(t, pipe)

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var snap pipeline.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.State != pipeline.StateStreaming || snap.FramesSent != 42 {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(snap.Sources) != 1 || snap.Sources[0].Name != "firefox" {
		t.Errorf("sources = %+v", snap.Sources)
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	srv := newTestServer(t, &fakePipe{})

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d", path, resp.StatusCode)
		}
	}
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := strings.Replace(srv.URL, "http://", "ws://", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func TestWebSocket_StreamsSnapshots(t *testing.T) {
	pipe := &fakePipe{snap: pipeline.Snapshot{State: pipeline.StateIdle}}
	srv := newTestServer(t, pipe)
	conn := dialWS(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snap pipeline.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.State != pipeline.StateIdle {
		t.Errorf("state = %v", snap.State)
	}
}

func TestWebSocket_SelectCommand(t *testing.T) {
	pipe := &fakePipe{snap: pipeline.Snapshot{
		Sources: []source.AudioSource{
			{Index: 7, Name: "firefox", Application: "firefox", Kind: source.KindFirefoxTab},
		},
	}}
	srv := newTestServer(t, pipe)
	conn := dialWS(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText,
		[]byte(`{"action":"select","index":7,"name":"firefox"}`)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		cmds := pipe.commands()
		if len(cmds) == 1 {
			if cmds[0].Kind != pipeline.CommandSelect {
				t.Fatalf("command kind = %v", cmds[0].Kind)
			}
			sel := cmds[0].Selection
			// The selection carries the full identity from the source list.
			if sel.Index != 7 || sel.Application != "firefox" || sel.Kind != source.KindFirefoxTab {
				t.Fatalf("selection = %+v", sel)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("select command never reached the pipeline")
}

func TestWebSocket_StopAndMalformedCommands(t *testing.T) {
	pipe := &fakePipe{}
	srv := newTestServer(t, pipe)
	conn := dialWS(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Garbage must not kill the connection.
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{not json`)); err != nil {
		t.Fatal(err)
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"action":"stop"}`)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		cmds := pipe.commands()
		if len(cmds) == 1 && cmds[0].Kind == pipeline.CommandStop {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("stop command never reached the pipeline")
}

func TestSelectCommand_UnknownIndexFallsBackToName(t *testing.T) {
	pipe := &fakePipe{}
	s := NewServer(pipe, mustMetrics(t), health.New())

	sel := s.resolveSelection(command{Action: "select", Index: 99, Name: "rhythmbox"})
	if sel.Index != 99 || sel.Name != "rhythmbox" || sel.Application != "" {
		t.Errorf("selection = %+v", sel)
	}
}

func mustMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	return m
}
