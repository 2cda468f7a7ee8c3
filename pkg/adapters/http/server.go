package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/hotswap"
	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/aretw0/hotswap/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxPacketBytes bounds the body of POST /updates.
const maxPacketBytes = 8 << 20

// Server exposes a coordinator to the bundler and to dev tooling.
type Server struct {
	Coordinator ports.Coordinator
	Streams     *StreamManager
	gatherer    prometheus.Gatherer
}

// Option configures the handler.
type Option func(*Server)

// WithMetrics serves GET /metrics from g.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewHandler creates the HTTP handler. streams should be the transport the
// coordinator emits to, so GET /events sees every lifecycle event.
func NewHandler(c ports.Coordinator, streams *StreamManager, opts ...Option) http.Handler {
	if streams == nil {
		streams = NewStreamManager()
	}
	server := &Server{
		Coordinator: c,
		Streams:     streams,
	}
	for _, opt := range opts {
		opt(server)
	}

	r := chi.NewRouter()
	r.Post("/updates", server.PostUpdate)
	r.Get("/events", server.SubscribeEvents)
	r.Get("/instances", server.GetInstances)
	r.Get("/graph", server.GetGraph)
	r.Get("/health", server.GetHealth)
	r.Get("/info", server.GetInfo)
	if server.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(server.gatherer, promhttp.HandlerOpts{}))
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PostUpdate handles the POST /updates request sent by the bundler.
func (s *Server) PostUpdate(w http.ResponseWriter, r *http.Request) {
	var packet domain.UpdatePacket
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPacketBytes)).Decode(&packet); err != nil {
		http.Error(w, "Invalid update packet", http.StatusBadRequest)
		slog.Warn("PostUpdate: Invalid request body", "err", err)
		return
	}

	// The cycle must outlive the request: a bundler that hangs up early must
	// not leave an update half-applied.
	if err := s.Coordinator.Enqueue(context.WithoutCancel(r.Context()), packet); err != nil {
		if errors.Is(err, domain.ErrMalformedUpdate) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, fmt.Sprintf("Enqueue error: %v", err), http.StatusInternalServerError)
		slog.Error("Enqueue failed", "err", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"modules": packet.ModuleIDs()})
}

// GetInstances handles the GET /instances request.
func (s *Server) GetInstances(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Coordinator.Instances()); err != nil {
		slog.Error("GetInstances response encode failed", "err", err)
	}
}

// GetGraph handles the GET /graph request.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Coordinator.Graph()); err != nil {
		slog.Error("GetGraph response encode failed", "err", err)
	}
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"app":     "hotswap-http",
		"version": strings.TrimSpace(hotswap.Version),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// globalTopic receives every event.
const globalTopic = "*"

// StreamManager handles active SSE connections.
// It implements ports.Transport: every emitted event is broadcast to the global
// topic and to the topic named after the event subject.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // topic -> set of channels
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
	}
}

func (sm *StreamManager) Subscribe(topic string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 64)
	if _, ok := sm.subscribers[topic]; !ok {
		sm.subscribers[topic] = make(map[chan<- string]struct{})
	}
	sm.subscribers[topic][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[topic]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, topic)
			}
		}
	}
}

// Subscribers returns the number of open channels on topic.
func (sm *StreamManager) Subscribers(topic string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[topic])
}

func (sm *StreamManager) Broadcast(topic string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[topic] {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			slog.Warn("SSE: Client buffer full, dropping message", "topic", topic)
		}
	}
}

// Emit implements ports.Transport.
func (sm *StreamManager) Emit(ctx context.Context, e domain.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	sm.Broadcast(globalTopic, string(payload))
	if e.Subject != "" {
		sm.Broadcast(e.Subject, string(payload))
	}
	return nil
}

// SubscribeEvents handles the GET /events request (SSE).
// ?subject= narrows the stream to one subtree or instance id and ?types= to a
// comma separated list of event types.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		slog.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	topic := globalTopic
	if subject := r.URL.Query().Get("subject"); subject != "" {
		topic = subject
	}
	types := make(map[domain.EventType]bool)
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			types[domain.EventType(strings.TrimSpace(t))] = true
		}
	}

	slog.Info("SSE: Subscribing to lifecycle events", "topic", topic)
	ch, cancel := s.Streams.Subscribe(topic)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			slog.Info("SSE Client Disconnected", "topic", topic)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(types) > 0 {
				var e domain.Event
				if err := json.Unmarshal([]byte(msg), &e); err == nil && !types[e.Type] {
					continue
				}
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

var _ ports.Transport = (*StreamManager)(nil)
