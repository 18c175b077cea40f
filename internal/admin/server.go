// Package admin is the operator-facing debug server: partition stats over
// plain HTTP via gorilla/mux, and a live snapshot stream over
// gorilla/websocket. It never touches the ingest or forwarding path;
// spec.md places both out of scope for this module, and this server only
// reads buffer state, it never calls Push/Pop itself.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/chartly-labs/envbuffer/internal/buffer"
	"github.com/chartly-labs/envbuffer/internal/telemetry"
)

// PartitionSnapshot is one partition's point-in-time stats, the JSON shape
// served by both /debug/partitions and the /debug/stream websocket.
type PartitionSnapshot struct {
	Partition   string `json:"partition"`
	IsMemory    bool   `json:"is_memory"`
	ItemCount   uint64 `json:"item_count"`
	StackCount  int    `json:"stack_count"`
	TotalBytes  int64  `json:"total_bytes"`
}

// Registry tracks every partition's PolymorphicEnvelopeBuffer so the admin
// server can snapshot them on demand.
type Registry struct {
	mu         sync.RWMutex
	partitions map[string]*buffer.PolymorphicEnvelopeBuffer
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{partitions: make(map[string]*buffer.PolymorphicEnvelopeBuffer)}
}

// Register adds or replaces the buffer for a partition tag.
func (r *Registry) Register(tag string, b *buffer.PolymorphicEnvelopeBuffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partitions[tag] = b
}

// Snapshot returns a stats snapshot for every registered partition.
func (r *Registry) Snapshot(ctx context.Context) []PartitionSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PartitionSnapshot, 0, len(r.partitions))
	for tag, b := range r.partitions {
		out = append(out, PartitionSnapshot{
			Partition:  tag,
			IsMemory:   b.IsMemory(),
			ItemCount:  b.ItemCount(),
			StackCount: b.StackCount(),
			TotalBytes: b.TotalSize(ctx),
		})
	}
	return out
}

// Server is the admin HTTP + websocket server.
type Server struct {
	registry   *Registry
	logger     *telemetry.Logger
	router     *mux.Router
	upgrader   websocket.Upgrader
	streamTick time.Duration
}

// NewServer builds a Server backed by registry, routed with gorilla/mux.
func NewServer(registry *Registry, logger *telemetry.Logger) *Server {
	if logger == nil {
		logger = telemetry.Nop()
	}
	s := &Server{
		registry:   registry,
		logger:     logger,
		router:     mux.NewRouter(),
		streamTick: time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
	s.router.HandleFunc("/debug/partitions", s.handlePartitions).Methods(http.MethodGet)
	s.router.HandleFunc("/debug/stream", s.handleStream)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) handlePartitions(w http.ResponseWriter, r *http.Request) {
	snapshot := s.registry.Snapshot(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		s.logger.Error("failed to encode partition snapshot", map[string]any{"error": err.Error()})
	}
}

// handleStream upgrades to a websocket connection and pushes a JSON
// snapshot every streamTick until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(s.streamTick)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := s.registry.Snapshot(ctx)
			if err := conn.WriteJSON(snapshot); err != nil {
				s.logger.Debug("websocket stream closed", map[string]any{"error": err.Error()})
				return
			}
		}
	}
}
