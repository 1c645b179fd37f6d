// Package admin serves the aggregator dashboard and API, and the alarm node's
// status endpoint.
package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/command"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/freshness"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/logging"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
)

// Dispatcher sends dashboard actions to the alarm node.
type Dispatcher interface {
	Dispatch(ctx context.Context, action string) (command.Result, error)
	Send(ctx context.Context, action string, cmd protocol.Command) command.Result
}

// Server is the aggregator's HTTP surface.
type Server struct {
	Tracker *freshness.Tracker
	Router  Dispatcher
	Channel int

	broker *SSEBroker
	tpl    *template.Template
	log    *slog.Logger
}

//go:embed templates/index.html
var content embed.FS

// NewServer returns a server over tracker and router.
func NewServer(tracker *freshness.Tracker, router Dispatcher, channel int) *Server {
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	return &Server{
		Tracker: tracker,
		Router:  router,
		Channel: channel,
		broker:  NewSSEBroker(),
		tpl:     tpl,
		log:     slog.Default(),
	}
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("POST /api/siren", s.handleSiren)
	for _, name := range []string{"force_on", "force_off", "snooze", "clear_snooze"} {
		mux.HandleFunc("GET /api/"+name, s.handleLegacy(name))
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	return serve(ctx, logging.FromContext(ctx), addr, s.Handler())
}

// NotifyReport pushes a fresh status document to every event stream.
func (s *Server) NotifyReport(tank uint8) {
	if s.broker.Clients() == 0 {
		return
	}
	payload, err := json.Marshal(BuildStatus(s.Tracker, s.Channel))
	if err != nil {
		s.log.Warn("encode status", "tank", tank, "err", err)
		return
	}
	s.broker.Broadcast(payload)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Tanks   int
		Actions []string
	}{Tanks: protocol.MaxTanks, Actions: command.Actions()}
	if err := s.tpl.Execute(w, data); err != nil {
		s.log.Warn("render index", "err", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BuildStatus(s.Tracker, s.Channel))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	initial, err := json.Marshal(BuildStatus(s.Tracker, s.Channel))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.broker.serveStream(w, r, initial)
}

type sirenRequest struct {
	Action string `json:"action"`
}

type sirenResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSiren(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1024))
	if err != nil || len(strings.TrimSpace(string(body))) == 0 {
		s.reject(w, command.ErrMalformedRequest, "missing body")
		return
	}
	var req sirenRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.reject(w, command.ErrMalformedRequest, "bad json: "+err.Error())
		return
	}
	if req.Action == "" {
		s.reject(w, command.ErrMalformedRequest, "missing action")
		return
	}
	res, err := s.Router.Dispatch(r.Context(), req.Action)
	if err != nil {
		s.reject(w, err, "unknown action")
		return
	}
	writeJSON(w, http.StatusOK, sirenResponse{OK: res.OK, ID: res.ID})
}

func (s *Server) handleLegacy(name string) http.HandlerFunc {
	cmd, err := command.LookupLegacy(name)
	if err != nil {
		panic(err)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		res := s.Router.Send(r.Context(), name, cmd)
		writeJSON(w, http.StatusOK, sirenResponse{OK: res.OK})
	}
}

func (s *Server) reject(w http.ResponseWriter, err error, msg string) {
	s.log.Debug("siren request rejected", "reason", msg, "err", err)
	if !errors.Is(err, command.ErrMalformedRequest) && !errors.Is(err, command.ErrUnknownAction) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func serve(ctx context.Context, log *slog.Logger, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
