package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/alarm"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/command"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/freshness"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/transport"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSender struct {
	mu   sync.Mutex
	sent []protocol.Packet
	err  error
}

func (f *fakeSender) Send(ctx context.Context, peer string, data []byte) transport.Result {
	pkt, _ := protocol.Decode(data)
	f.mu.Lock()
	f.sent = append(f.sent, pkt)
	f.mu.Unlock()
	return transport.Result{Peer: peer, Attempts: 1, Err: f.err}
}

func newTestServer(now time.Time) (*Server, *fakeClock, *fakeSender) {
	clock := &fakeClock{now: now}
	tracker := freshness.New(freshness.DefaultConfig(), freshness.WithClock(clock))
	sender := &fakeSender{}
	router := command.NewRouter(sender, "24:6F:28:00:00:10")
	return NewServer(tracker, router, 6), clock, sender
}

func TestStatusJSON(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s, clock, _ := newTestServer(now)
	s.Tracker.Observe(protocol.NewSensorReport(1, 423, 3712))
	clock.Advance(42 * time.Second)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["server_time_iso"] != "2025-06-01T12:00:42Z" || got["ntp_synced"] != true || got["wifi_channel"] != float64(6) {
		t.Fatalf("unexpected header fields: %v", got)
	}
	tanks := got["tanks"].([]any)
	if len(tanks) != 3 {
		t.Fatalf("expected 3 tanks, got %d", len(tanks))
	}
	t0 := tanks[0].(map[string]any)
	if t0["distance_cm"] != nil || t0["last_update_iso"] != nil || t0["last_seen_secs_ago"] != nil || t0["offline"] != true {
		t.Fatalf("tank 0 should be empty and offline: %v", t0)
	}
	t1 := tanks[1].(map[string]any)
	if t1["distance_cm"] != 42.3 || t1["at_risk"] != false || t1["battery_mV"] != float64(3712) {
		t.Fatalf("unexpected tank 1: %v", t1)
	}
	if t1["last_update_iso"] != "2025-06-01T12:00:00Z" || t1["last_seen_secs_ago"] != float64(42) || t1["offline"] != false {
		t.Fatalf("unexpected tank 1 timing: %v", t1)
	}
}

func TestStatusUnsyncedClock(t *testing.T) {
	s, clock, _ := newTestServer(time.Unix(3600, 0))
	s.Tracker.Observe(protocol.NewSensorReport(2, 50, 3600))
	clock.Advance(6 * time.Minute)

	st := BuildStatus(s.Tracker, 1)
	if st.NTPSynced || st.ServerTimeISO != "" {
		t.Fatalf("clock should be unsynced: %+v", st)
	}
	tank := st.Tanks[2]
	if tank.LastUpdateISO != nil {
		t.Fatalf("last_update_iso should be null when unsynced")
	}
	if tank.LastSeenSecsAgo == nil || *tank.LastSeenSecsAgo != 360 {
		t.Fatalf("last_seen_secs_ago = %v", tank.LastSeenSecsAgo)
	}
	if !tank.Offline || !tank.AtRisk {
		t.Fatalf("tank 2 should be offline and at risk: %+v", tank)
	}
}

func TestSirenPost(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		code     int
		wantSent int
		wantErr  string
	}{
		{"test", `{"action":"test"}`, http.StatusOK, 1, ""},
		{"snooze", `{"action":"snooze_1h"}`, http.StatusOK, 1, ""},
		{"empty body", ``, http.StatusBadRequest, 0, "missing body"},
		{"bad json", `{"action":`, http.StatusBadRequest, 0, "bad json"},
		{"missing action", `{}`, http.StatusBadRequest, 0, "missing action"},
		{"unknown action", `{"action":"explode"}`, http.StatusBadRequest, 0, "unknown action"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _, sender := newTestServer(time.Now())
			req := httptest.NewRequest(http.MethodPost, "/api/siren", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			if w.Code != tc.code {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.code, w.Body.String())
			}
			if len(sender.sent) != tc.wantSent {
				t.Fatalf("sent %d commands, want %d", len(sender.sent), tc.wantSent)
			}
			var got map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tc.wantErr != "" {
				if msg, _ := got["error"].(string); !strings.Contains(msg, tc.wantErr) {
					t.Fatalf("error = %q, want %q", msg, tc.wantErr)
				}
				return
			}
			if got["ok"] != true || got["id"] == "" || got["id"] == nil {
				t.Fatalf("unexpected response: %v", got)
			}
		})
	}
}

func TestSirenPostTransportFailure(t *testing.T) {
	s, _, sender := newTestServer(time.Now())
	sender.err = transport.ErrAckTimeout
	req := httptest.NewRequest(http.MethodPost, "/api/siren", strings.NewReader(`{"action":"clear_snooze"}`))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got sirenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.OK || got.ID == "" {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestLegacyEndpoints(t *testing.T) {
	s, _, sender := newTestServer(time.Now())
	h := s.Handler()
	for _, path := range []string{"/api/force_on", "/api/force_off", "/api/snooze", "/api/clear_snooze"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok":true`) {
			t.Fatalf("%s: %d %s", path, w.Code, w.Body.String())
		}
	}
	if len(sender.sent) != 4 {
		t.Fatalf("expected 4 commands, got %d", len(sender.sent))
	}
	first := sender.sent[0].(protocol.Command)
	want := protocol.NewCommand(protocol.TargetAll, protocol.ForceOn{Duration: 5 * time.Second})
	if first != want {
		t.Fatalf("force_on sent %v, want %v", first, want)
	}
	if _, ok := sender.sent[1].(protocol.Command).Op.(protocol.ForceOff); !ok {
		t.Fatalf("force_off sent %v", sender.sent[1])
	}
}

func TestIndexAndMetrics(t *testing.T) {
	s, _, _ := newTestServer(time.Now())
	h := s.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "snooze_20m") {
		t.Fatalf("index: %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/siren", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /api/siren = %d, want 405", w.Code)
	}
}

func TestEventsStream(t *testing.T) {
	s, _, _ := newTestServer(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	events := make(chan StatusJSON, 4)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var st StatusJSON
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &st) == nil {
				events <- st
			}
		}
	}()

	first := <-events
	if first.Tanks[0].DistanceCM != nil {
		t.Fatalf("initial snapshot should be empty")
	}

	s.Tracker.Observe(protocol.NewSensorReport(0, 55, 3650))
	s.NotifyReport(0)
	select {
	case st := <-events:
		if st.Tanks[0].DistanceCM == nil || *st.Tanks[0].DistanceCM != 5.5 || !st.Tanks[0].AtRisk {
			t.Fatalf("unexpected pushed status: %+v", st.Tanks[0])
		}
	case <-ctx.Done():
		t.Fatalf("no event after report")
	}
}

func TestAlarmServer(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m := alarm.New(alarm.DefaultConfig(), nopOutput{}, alarm.WithClock(clock))
	m.HandleReport(protocol.NewSensorReport(0, 40, 3700))
	clock.Advance(8 * time.Minute)
	m.Tick()

	w := httptest.NewRecorder()
	NewAlarmServer(m).Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/alarm", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var snap alarm.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Tanks) != 3 {
		t.Fatalf("expected 3 tanks, got %d", len(snap.Tanks))
	}
	t0 := snap.Tanks[0]
	if t0.DistanceCM == nil || *t0.DistanceCM != 4.0 || !t0.Stale {
		t.Fatalf("unexpected tank 0: %+v", t0)
	}
	if snap.Active {
		t.Fatalf("pulse should be over: %+v", snap)
	}
}

type nopOutput struct{}

func (nopOutput) Energize()   {}
func (nopOutput) Deenergize() {}

func TestServeStopsOnCancel(t *testing.T) {
	s, _, _ := newTestServer(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not stop")
	}
}
