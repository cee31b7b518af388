// Package api provides REST API endpoints for packet decoding and trigger state.
package api

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gcn_parser/internal/extractor"
	"gcn_parser/internal/gcn"
	"gcn_parser/internal/metrics"
	"gcn_parser/internal/packet"
	"gcn_parser/internal/parsers/binary"
	"gcn_parser/internal/registry"
	"gcn_parser/internal/state"
	"gcn_parser/internal/storage"
)

// maxBodyBytes bounds decode request bodies. Hex text of one packet is 320
// characters, so this leaves room for whitespace and line breaks.
const maxBodyBytes = 64 << 10

// TriggerStore looks up trigger state. Implemented by storage.PostgresDB,
// state.Store and, through FromTracker, by state.Tracker.
type TriggerStore interface {
	GetTrigger(ctx context.Context, family string, trigNum int32) (*state.TriggerState, error)
	ListTriggers(ctx context.Context, since time.Time, limit int) ([]*state.TriggerState, error)
}

// PacketStore queries decoded packets. Implemented by storage.ClickHouseDB.
type PacketStore interface {
	QueryPackets(ctx context.Context, p storage.CHQueryParams) ([]extractor.PacketRow, error)
	GetPacket(ctx context.Context, messageID string) (*extractor.PacketRow, error)
}

// Server provides REST API access to the decoder and trigger state.
type Server struct {
	triggers    TriggerStore
	packets     PacketStore
	reg         *registry.Registry
	metrics     *metrics.Metrics
	listen      string
	authEnabled bool
	apiKeys     map[string]bool // Simple API key auth (when enabled).
	serveProm   bool
}

// Config holds configuration for the API server.
type Config struct {
	Listen      string
	AuthEnabled bool
	APIKeys     []string // List of valid API keys.
	Metrics     bool     // Serve /metrics.
}

// NewServer creates a new API server. triggers may be nil, in which case
// the trigger endpoints answer 503.
func NewServer(triggers TriggerStore, m *metrics.Metrics, cfg Config) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	if m == nil {
		m = metrics.New(nil)
	}

	return &Server{
		triggers:    triggers,
		reg:         registry.Default(),
		metrics:     m,
		listen:      cfg.Listen,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
		serveProm:   cfg.Metrics,
	}
}

// SetPacketStore enables the /packets endpoints.
func (s *Server) SetPacketStore(p PacketStore) {
	s.packets = p
}

// Handler returns the full HTTP handler with middleware, the API under
// /api/v1 and, when enabled, /metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS for browser access.
	r.Use(corsMiddleware)

	r.Mount("/api/v1", s.Router())
	if s.serveProm {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// Router returns the API routes for embedding in other servers.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Health check (no auth required).
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.authEnabled {
			r.Use(s.authMiddleware)
		}

		r.Post("/decode", s.handleDecode)
		r.Get("/types", s.handleListTypes)
		r.Get("/types/{code}", s.handleGetType)
		r.Get("/triggers", s.handleListTriggers)
		r.Get("/triggers/{type_name}/{trig_num}", s.handleGetTrigger)
		r.Get("/packets", s.handleListPackets)
		r.Get("/packets/{message_id}", s.handleGetPacket)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("GCN API starting at http://localhost%s", s.listen)
	if s.authEnabled {
		log.Printf("Authentication: ENABLED (API key required)")
	} else {
		log.Printf("Authentication: DISABLED (open access)")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check X-API-Key header first.
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		// Fall back to query parameter (for simple testing).
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HealthResponse reports liveness and the decoders this server routes to.
type HealthResponse struct {
	Status  string     `json:"status"`
	Time    string     `json:"time"`
	Parsers []string   `json:"parsers"`
	Kinds   []gcn.Kind `json:"kinds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Time:    time.Now().UTC().Format(time.RFC3339),
		Parsers: []string{},
		Kinds:   s.reg.RegisteredKinds(),
	}
	for _, p := range s.reg.AllParsers() {
		resp.Parsers = append(resp.Parsers, p.Name())
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDecode decodes one packet. The body is the raw 160 bytes when sent
// as application/octet-stream, otherwise hex text. A packet that fails to
// decode is still a 200 with parse_error set; only unreadable hex is a 400.
//
// With ?topic= the body is routed as if received on that topic and the
// first parser result is returned, including topic mismatch flags.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.metrics.APIDecodes.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}

	data := body
	if !isOctetStream(r.Header.Get("Content-Type")) {
		data, err = decodeHex(body)
		if err != nil {
			s.metrics.APIDecodes.WithLabelValues("bad_request").Inc()
			writeError(w, http.StatusBadRequest, "Invalid hex: "+err.Error())
			return
		}
	}

	topic := r.URL.Query().Get("topic")
	if r.URL.Query().Get("trace") == "true" {
		if topic == "" {
			topic = gcn.PrefixClassicBinary
		}
		msg := gcn.NewMessage(topic, "", data, time.Time{})
		writeJSON(w, http.StatusOK, (&binary.Parser{}).ParseWithTrace(msg))
		return
	}
	if topic != "" {
		result := s.reg.DispatchFirst(gcn.NewMessage(topic, "", data, time.Time{}))
		if result == nil {
			writeError(w, http.StatusUnprocessableEntity, "No parser for topic")
			return
		}
		s.countDecode(result)
		writeJSON(w, http.StatusOK, result)
		return
	}

	d := packet.Decode(data)
	s.countDecode(&binary.Result{Decoded: d})
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) countDecode(result registry.Result) {
	br, ok := result.(*binary.Result)
	switch {
	case !ok:
		s.metrics.APIDecodes.WithLabelValues("not_binary").Inc()
	case br.OK():
		s.metrics.APIDecodes.WithLabelValues("ok").Inc()
	default:
		s.metrics.APIDecodes.WithLabelValues("parse_error").Inc()
	}
}

func isOctetStream(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), "application/octet-stream")
}

// decodeHex accepts hex with optional 0x prefix and any whitespace.
func decodeHex(body []byte) ([]byte, error) {
	s := strings.Join(strings.Fields(string(body)), "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

// TypeResponse is one packet type table entry.
type TypeResponse struct {
	Code int32  `json:"code"`
	Name string `json:"name"`
}

func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	entries := packet.Types()
	resp := make([]TypeResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, TypeResponse{Code: e.Code, Name: e.Name})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetType looks a type up by numeric code or by mnemonic.
func (s *Server) handleGetType(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "code")

	if n, err := strconv.ParseInt(param, 10, 32); err == nil {
		name := packet.TypeName(int32(n))
		if _, known := packet.TypeCode(name); !known {
			writeError(w, http.StatusNotFound, "Unknown packet type")
			return
		}
		writeJSON(w, http.StatusOK, TypeResponse{Code: int32(n), Name: name})
		return
	}

	name := strings.ToUpper(param)
	code, ok := packet.TypeCode(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown packet type")
		return
	}
	writeJSON(w, http.StatusOK, TypeResponse{Code: code, Name: name})
}

// handleGetTrigger accepts either a full type mnemonic or just the mission
// family, e.g. /triggers/SWIFT_BAT_GRB_POSITION/1234 or /triggers/swift/1234.
func (s *Server) handleGetTrigger(w http.ResponseWriter, r *http.Request) {
	if s.triggers == nil {
		writeError(w, http.StatusServiceUnavailable, "Trigger store not configured")
		return
	}

	family := extractor.Family(strings.ToUpper(chi.URLParam(r, "type_name")))
	trigNum, err := strconv.ParseInt(chi.URLParam(r, "trig_num"), 10, 32)
	if family == "" || err != nil || trigNum <= 0 {
		writeError(w, http.StatusBadRequest, "type_name and a positive trig_num are required")
		return
	}

	ts, err := s.triggers.GetTrigger(r.Context(), family, int32(trigNum))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ts == nil {
		writeError(w, http.StatusNotFound, "No state found for trigger")
		return
	}

	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	if s.triggers == nil {
		writeError(w, http.StatusServiceUnavailable, "Trigger store not configured")
		return
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since (use RFC 3339)")
			return
		}
		since = t
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	triggers, err := s.triggers.ListTriggers(r.Context(), since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if triggers == nil {
		triggers = []*state.TriggerState{}
	}
	writeJSON(w, http.StatusOK, triggers)
}

func (s *Server) handleListPackets(w http.ResponseWriter, r *http.Request) {
	if s.packets == nil {
		writeError(w, http.StatusServiceUnavailable, "Packet store not configured")
		return
	}

	q := r.URL.Query()
	params := storage.CHQueryParams{
		PktTypeName: strings.ToUpper(q.Get("type")),
		Limit:       100,
		OrderDesc:   q.Get("order") != "asc",
	}
	if v := q.Get("trig_num"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "trig_num must be a positive integer")
			return
		}
		params.TrigNum = int32(n)
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since (use RFC 3339)")
			return
		}
		params.Since = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		params.Limit = n
	}

	packets, err := s.packets.QueryPackets(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if packets == nil {
		packets = []extractor.PacketRow{}
	}
	writeJSON(w, http.StatusOK, packets)
}

func (s *Server) handleGetPacket(w http.ResponseWriter, r *http.Request) {
	if s.packets == nil {
		writeError(w, http.StatusServiceUnavailable, "Packet store not configured")
		return
	}

	p, err := s.packets.GetPacket(r.Context(), chi.URLParam(r, "message_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "No packet found for message")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
