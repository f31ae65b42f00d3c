// Package api provides the REST API for forging CRC checksums and querying
// forge-run history.
//
// Grounded on internal/api/enrichment.go: same chi router, same middleware
// stack (Logger/Recoverer/RealIP/Timeout plus a CORS middleware), same
// optional API-key auth (header, bearer, or query param), same writeJSON/
// writeError helpers. Routes and payloads are the forge domain's, not the
// enrichment lookup domain's.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"crchack/internal/bigint"
	"crchack/internal/crcparam"
	"crchack/internal/forgesvc"
	"crchack/internal/sparse"
	"crchack/internal/store"
)

// RunStore is the slice of internal/store.DB the API needs, kept as an
// interface so tests can substitute a fake instead of a live database.
type RunStore interface {
	RecordRun(ctx context.Context, run store.ForgeRun) error
	GetRun(ctx context.Context, id int64) (*store.ForgeRun, error)
	ListRuns(ctx context.Context, limit, offset int) ([]store.ForgeRun, error)
}

// Config holds configuration for the forge API server.
type Config struct {
	Port        int
	AuthEnabled bool
	APIKeys     []string
}

// Server provides REST API access to the forge service.
type Server struct {
	store       RunStore
	port        int
	authEnabled bool
	apiKeys     map[string]bool
}

// NewServer creates a new forge API server backed by store (nil is valid --
// a server with no store can still serve /health and one-shot /forge
// requests, just not /forge/{id} or /forge/history).
func NewServer(st RunStore, cfg Config) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	return &Server{store: st, port: cfg.Port, authEnabled: cfg.AuthEnabled, apiKeys: keys}
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := ":" + strconv.Itoa(s.port)
	log.Printf("forge API starting at http://localhost%s", addr)
	if s.authEnabled {
		log.Printf("authentication: ENABLED (API key required)")
	} else {
		log.Printf("authentication: DISABLED (open access)")
	}
	return http.ListenAndServe(addr, s.Router())
}

// Router returns the configured chi router for embedding in other servers.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			if s.authEnabled {
				r.Use(s.authMiddleware)
			}
			r.Post("/forge", s.handleForge)
			r.Get("/forge/history", s.handleHistory)
			r.Get("/forge/{id}", s.handleGetRun)
		})
	})

	return r
}

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

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}
		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ForgeRequest is the POST /api/v1/forge body.
type ForgeRequest struct {
	Width      uint   `json:"width"`
	Poly       string `json:"poly"`
	Init       string `json:"init"`
	XorOut     string `json:"xor_out"`
	ReflectIn  bool   `json:"reflect_in"`
	ReflectOut bool   `json:"reflect_out"`
	MessageB64 string `json:"message_b64"`
	TargetHex  string `json:"target_hex,omitempty"`
	Bits       []uint `json:"bits,omitempty"`
}

// ForgeResponse is the POST /api/v1/forge response body.
type ForgeResponse struct {
	Success   bool   `json:"success"`
	OutputB64 string `json:"output_b64"`
	Flips     []uint `json:"flips,omitempty"`
	ForgeCode int    `json:"forge_code"`
}

func (s *Server) handleForge(w http.ResponseWriter, r *http.Request) {
	var req ForgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	params, err := paramsFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := base64.StdEncoding.DecodeString(req.MessageB64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message_b64: "+err.Error())
		return
	}

	var target *bigint.Bigint
	if req.TargetHex != "" {
		target, err = bigint.FromHex(params.Width, req.TargetHex)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid target_hex: "+err.Error())
			return
		}
	}

	start := time.Now()
	res, runErr := forgesvc.Run(forgesvc.Request{Params: params, Message: msg, Target: target, Bits: req.Bits})
	elapsed := time.Since(start)

	run := store.ForgeRun{
		RequestedAt:     start.UTC(),
		Params:          storeParams(params),
		MessageDigest:   store.Digest(msg),
		MessageLength:   uint(len(msg)) * 8,
		MutableBitCount: len(req.Bits),
		TargetChecksum:  req.TargetHex,
		DurationMicros:  elapsed.Microseconds(),
	}

	if runErr != nil {
		var insufficient *forgesvc.InsufficientBitsError
		switch {
		case errors.As(runErr, &insufficient):
			run.ForgeReturnCode = 6
			s.recordRun(r.Context(), run)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error":      runErr.Error(),
				"forge_code": 6,
			})
		case errors.Is(runErr, sparse.ErrDegenerateParams):
			run.ForgeReturnCode = 5
			s.recordRun(r.Context(), run)
			writeError(w, http.StatusUnprocessableEntity, runErr.Error())
		default:
			writeError(w, http.StatusBadRequest, runErr.Error())
		}
		return
	}

	run.Success = true
	run.FlipCount = len(res.FlippedBits)
	run.ForgeReturnCode = 0
	s.recordRun(r.Context(), run)

	writeJSON(w, http.StatusOK, ForgeResponse{
		Success:   true,
		OutputB64: base64.StdEncoding.EncodeToString(res.Message),
		Flips:     res.FlippedBits,
		ForgeCode: 0,
	})
}

// recordRun best-effort persists run; a store failure shouldn't fail a
// forge that already succeeded for the caller.
func (s *Server) recordRun(ctx context.Context, run store.ForgeRun) {
	if s.store == nil {
		return
	}
	if err := s.store.RecordRun(ctx, run); err != nil {
		log.Printf("forge API: recording run failed: %v", err)
	}
}

func paramsFromRequest(req ForgeRequest) (*crcparam.Params, error) {
	if req.Width == 0 {
		return crcparam.Default(), nil
	}
	poly, err := bigint.FromHex(req.Width, req.Poly)
	if err != nil {
		return nil, errors.New("invalid poly: " + err.Error())
	}
	initVal := bigint.New(req.Width)
	if req.Init != "" {
		if initVal, err = bigint.FromHex(req.Width, req.Init); err != nil {
			return nil, errors.New("invalid init: " + err.Error())
		}
	}
	xorOut := bigint.New(req.Width)
	if req.XorOut != "" {
		if xorOut, err = bigint.FromHex(req.Width, req.XorOut); err != nil {
			return nil, errors.New("invalid xor_out: " + err.Error())
		}
	}
	p, err := crcparam.New(req.Width, poly, initVal, xorOut, req.ReflectIn, req.ReflectOut)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func storeParams(p *crcparam.Params) store.CRCParams {
	return store.CRCParams{
		Width:      p.Width,
		Poly:       p.Poly.ToHex(),
		Init:       p.Init.ToHex(),
		XorOut:     p.XorOut.ToHex(),
		ReflectIn:  p.ReflectIn,
		ReflectOut: p.ReflectOut,
	}
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history store not configured")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "no such forge run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history store not configured")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	runs, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
