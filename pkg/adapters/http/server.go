// Package http exposes the orchestrator as a JSON API. Message
// delivery stays external: handlers only return the selected strings,
// and a per-transaction SSE stream relays telemetry to subscribers.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/convertly/funnel/internal/logging"
	"github.com/convertly/funnel/pkg/domain"
	"github.com/convertly/funnel/pkg/flow"
	"github.com/convertly/funnel/pkg/telemetry"
)

// Server wires the orchestrator behind HTTP handlers.
type Server struct {
	orch    *flow.Orchestrator
	streams *StreamManager
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewHandler builds the chi router for the engine. The telemetry log
// is subscribed so SSE clients receive events as they are emitted.
func NewHandler(orch *flow.Orchestrator, events *telemetry.Log, opts ...Option) http.Handler {
	s := &Server{
		orch:    orch,
		streams: NewStreamManager(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	events.Subscribe(s.streams)

	r := chi.NewRouter()
	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/stats", s.stats)
	r.Get("/events", s.subscribeEvents)

	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", s.initialize)
		r.Route("/{txID}", func(r chi.Router) {
			r.Get("/", s.getContext)
			r.Get("/events", s.getEvents)
			r.Post("/transition", s.transition)
			r.Post("/confidence", s.updateConfidence)
			r.Post("/view", s.recordView)
			r.Post("/complete", s.complete)
			r.Post("/cancel", s.cancel)
			r.Post("/fail", s.fail)
			r.Post("/hesitation", s.processHesitation)
		})
	})
	return r
}

// envelope is the uniform response shape: an explicit success flag, a
// human-readable message, and the operation result when there is one.
type envelope struct {
	OK      bool         `json:"ok"`
	Message string       `json:"message,omitempty"`
	Result  *flow.Result `json:"result,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

// respondResult maps engine errors to the handled-failure statuses: a
// rejected transition or conflict is 409, an unknown id 404; neither
// changed any state.
func (s *Server) respondResult(w http.ResponseWriter, res *flow.Result, err error) {
	switch {
	case err == nil:
		s.respond(w, http.StatusOK, envelope{OK: true, Result: res})
	case errors.Is(err, domain.ErrContextNotFound), errors.Is(err, domain.ErrSessionNotFound):
		s.respond(w, http.StatusNotFound, envelope{OK: false, Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrContextExists):
		s.respond(w, http.StatusConflict, envelope{OK: false, Message: err.Error()})
	default:
		s.logger.Error("operation failed", "err", err)
		s.respond(w, http.StatusInternalServerError, envelope{OK: false, Message: "internal error"})
	}
}

func decode(r *http.Request, out any) error {
	return json.NewDecoder(r.Body).Decode(out)
}

type initializeRequest struct {
	TxID       string               `json:"tx_id"`
	CustomerID string               `json:"customer_id"`
	SessionID  string               `json:"session_id"`
	Device     *domain.DeviceSignal `json:"device,omitempty"`
}

func (s *Server) initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := decode(r, &req); err != nil {
		s.respond(w, http.StatusBadRequest, envelope{OK: false, Message: "invalid request body"})
		return
	}
	if req.TxID == "" || req.SessionID == "" {
		s.respond(w, http.StatusBadRequest, envelope{OK: false, Message: "tx_id and session_id are required"})
		return
	}
	res, err := s.orch.Initialize(r.Context(), req.TxID, req.CustomerID, req.SessionID, req.Device)
	s.respondResult(w, res, err)
}

type transitionRequest struct {
	Target domain.Stage `json:"target"`
	Reason string       `json:"reason,omitempty"`
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decode(r, &req); err != nil {
		s.respond(w, http.StatusBadRequest, envelope{OK: false, Message: "invalid request body"})
		return
	}
	if !req.Target.Valid() {
		s.respond(w, http.StatusBadRequest, envelope{OK: false, Message: "unknown target stage"})
		return
	}
	res, err := s.orch.Transition(r.Context(), chi.URLParam(r, "txID"), req.Target, req.Reason)
	s.respondResult(w, res, err)
}

type confidenceRequest struct {
	Level            int      `json:"level"`
	HesitationPoints []string `json:"hesitation_points,omitempty"`
	RiskFactors      []string `json:"risk_factors,omitempty"`
}

func (s *Server) updateConfidence(w http.ResponseWriter, r *http.Request) {
	var req confidenceRequest
	if err := decode(r, &req); err != nil {
		s.respond(w, http.StatusBadRequest, envelope{OK: false, Message: "invalid request body"})
		return
	}
	res, err := s.orch.UpdateConfidence(r.Context(), chi.URLParam(r, "txID"), req.Level, req.HesitationPoints, req.RiskFactors)
	s.respondResult(w, res, err)
}

type viewRequest struct {
	URL  string `json:"url"`
	View string `json:"view"`
}

func (s *Server) recordView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := decode(r, &req); err != nil {
		s.respond(w, http.StatusBadRequest, envelope{OK: false, Message: "invalid request body"})
		return
	}
	res, err := s.orch.RecordView(r.Context(), chi.URLParam(r, "txID"), req.URL, req.View)
	s.respondResult(w, res, err)
}

func (s *Server) complete(w http.ResponseWriter, r *http.Request) {
	res, err := s.orch.Complete(r.Context(), chi.URLParam(r, "txID"))
	s.respondResult(w, res, err)
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			s.respond(w, http.StatusBadRequest, envelope{OK: false, Message: "invalid request body"})
			return
		}
	}
	res, err := s.orch.Cancel(r.Context(), chi.URLParam(r, "txID"), req.Reason)
	s.respondResult(w, res, err)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			s.respond(w, http.StatusBadRequest, envelope{OK: false, Message: "invalid request body"})
			return
		}
	}
	res, err := s.orch.Fail(r.Context(), chi.URLParam(r, "txID"), req.Reason)
	s.respondResult(w, res, err)
}

func (s *Server) processHesitation(w http.ResponseWriter, r *http.Request) {
	res, err := s.orch.ProcessHesitation(r.Context(), chi.URLParam(r, "txID"))
	s.respondResult(w, res, err)
}

func (s *Server) getContext(w http.ResponseWriter, r *http.Request) {
	tc, err := s.orch.Context(r.Context(), chi.URLParam(r, "txID"))
	if err != nil {
		s.respondResult(w, nil, err)
		return
	}
	s.respond(w, http.StatusOK, tc)
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	events := s.orch.Events(chi.URLParam(r, "txID"))
	s.respond(w, http.StatusOK, events)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.orch.SessionStats())
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// subscribeEvents relays telemetry for one transaction over SSE.
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	txID := r.URL.Query().Get("tx_id")
	if txID == "" {
		s.respond(w, http.StatusBadRequest, envelope{OK: false, Message: "tx_id query parameter is required"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.streams.Subscribe(txID)
	defer cancel()

	w.Write([]byte("event: ping\ndata: connected\n\n"))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()
		}
	}
}
