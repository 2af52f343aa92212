package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"bizbot-backend/internal/assistant"
	"bizbot-backend/internal/config"
	"bizbot-backend/internal/logger"
	"bizbot-backend/internal/metrics"
	"bizbot-backend/internal/store"
	"bizbot-backend/internal/types"
)

const maxBodyBytes = 1 << 20

// Pipeline turns one inbound message into a reply.
type Pipeline interface {
	HandleInbound(ctx context.Context, in assistant.Inbound) (assistant.Reply, error)
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Deps struct {
	Pipeline Pipeline
	Sender   assistant.Sender
	Dedupe   store.Deduper
	// Optional; health reports ok without it.
	Database HealthChecker
	Logger   *zap.Logger
}

type Server struct {
	router   *chi.Mux
	cfg      config.Config
	pipeline Pipeline
	sender   assistant.Sender
	dedupe   store.Deduper
	database HealthChecker
	log      *zap.Logger
	inflight sync.WaitGroup
}

func NewServer(cfg config.Config, d Deps) (*Server, error) {
	if d.Pipeline == nil || d.Sender == nil {
		return nil, errors.New("server: pipeline and sender are required")
	}
	if d.Dedupe == nil {
		d.Dedupe = store.NewMemoryStore(cfg.DedupeTTL, 10000)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))

	s := &Server{
		router:   r,
		cfg:      cfg,
		pipeline: d.Pipeline,
		sender:   d.Sender,
		dedupe:   d.Dedupe,
		database: d.Database,
		log:      d.Logger,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Get("/webhook", s.handleWebhookVerify)
	s.router.Post("/webhook", s.handleWebhook)
	s.router.Post("/api/messages", s.handleMessage)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
}

func (s *Server) Router() http.Handler { return s.router }

// Wait blocks until every message accepted by the webhook has been handled
// or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	code := http.StatusOK
	if s.database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.database.HealthCheck(ctx); err != nil {
			resp = map[string]string{"status": "degraded", "database": err.Error()}
			code = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, code, resp)
}

// handleWebhookVerify answers the subscription handshake.
func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")
	if mode == "" || s.cfg.WebhookSecret == "" || token != s.cfg.WebhookSecret {
		s.log.Warn("webhook verification rejected", zap.String("mode", mode))
		s.writeError(w, http.StatusBadRequest, "Invalid or missing query params")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(challenge))
}

// handleWebhook acknowledges at once and handles each new text message in
// the background.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload types.WebhookPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		metrics.WebhookEvents.WithLabelValues("invalid").Inc()
		s.writeError(w, http.StatusBadRequest, "Invalid or missing JSON body")
		return
	}

	accepted := 0
	for _, msg := range payload.TextMessages() {
		if msg.MessageID != "" {
			seen, err := s.dedupe.Seen(r.Context(), msg.MessageID)
			if err != nil {
				s.log.Warn("dedupe lookup failed; handling message anyway", zap.String("message_id", msg.MessageID), zap.Error(err))
			} else if seen {
				metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
				continue
			}
		}
		metrics.WebhookEvents.WithLabelValues("accepted").Inc()
		accepted++
		s.dispatch(r.Context(), msg)
	}
	if accepted == 0 {
		metrics.WebhookEvents.WithLabelValues("ignored").Inc()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "received", "accepted": accepted})
}

// dispatch handles msg on its own goroutine. The request context only lends
// its values; the work is bounded by the pipeline timeout instead.
func (s *Server) dispatch(parent context.Context, msg types.InboundText) {
	id := msg.MessageID
	if id == "" {
		id = uuid.NewString()
	}
	s.inflight.Add(1)
	metrics.InFlight.Inc()
	go func() {
		defer s.inflight.Done()
		defer metrics.InFlight.Dec()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cfg.PipelineTimeout)
		defer cancel()
		log := s.log.With(zap.String("message_id", id))
		ctx = logger.WithContext(ctx, log)

		reply, err := s.handle(ctx, log, assistant.Inbound{Phone: msg.Phone, Name: msg.Name, Text: msg.Body})
		if err != nil {
			log.Warn("message handling failed", zap.String("kind", assistant.ErrorKind(err)), zap.Error(err))
		}
		if reply.Content == "" {
			return
		}
		if err := assistant.Deliver(ctx, s.sender, msg.Phone, reply); err != nil {
			log.Error("reply delivery failed", zap.String("reply_type", string(reply.Kind)), zap.Error(err))
			return
		}
		log.Info("reply delivered", zap.String("reply_type", string(reply.Kind)))
	}()
}

// handle runs the pipeline and turns a panic into the fallback reply.
func (s *Server) handle(ctx context.Context, log *zap.Logger, in assistant.Inbound) (reply assistant.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PipelineFailures.WithLabelValues("PANIC").Inc()
			log.Error("message handling panicked", zap.Any("panic", r), zap.Stack("stack"))
			reply, err = assistant.FallbackReply(), fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return s.pipeline.HandleInbound(ctx, in)
}

// handleMessage runs the pipeline synchronously and returns the reply
// instead of delivering it.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req types.MessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "phone and message are required")
		return
	}

	id := uuid.NewString()
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.PipelineTimeout)
	defer cancel()
	log := s.log.With(zap.String("message_id", id))
	ctx = logger.WithContext(ctx, log)

	reply, err := s.handle(ctx, log, assistant.Inbound{Phone: req.Phone, Name: req.Name, Text: req.Message})
	resp := types.MessageResponse{
		MessageID: id,
		Type:      string(reply.Kind),
		Content:   reply.Content,
		Caption:   reply.Caption,
	}
	code := http.StatusOK
	if err != nil {
		resp.Error = assistant.ErrorKind(err)
		code = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, types.ErrorResponse{Error: msg})
}
