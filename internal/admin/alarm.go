package admin

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/alarm"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/logging"
)

// AlarmServer exposes the alarm node's state.
type AlarmServer struct {
	Machine *alarm.Machine
}

// NewAlarmServer returns a server over m.
func NewAlarmServer(m *alarm.Machine) *AlarmServer {
	return &AlarmServer{Machine: m}
}

// Handler returns the routed mux.
func (s *AlarmServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/alarm", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Machine.Snapshot())
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start serves on addr until ctx is done.
func (s *AlarmServer) Start(ctx context.Context, addr string) error {
	return serve(ctx, logging.FromContext(ctx), addr, s.Handler())
}
