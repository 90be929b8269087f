package signal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/centimo/centimo/internal/room"
)

// Server exposes the room registry over HTTP. Peers claim a code before
// hosting, look it up before joining, and invalidate it after the first
// successful pairing.
type Server struct {
	registry *Registry
}

// NewServer creates a signaling HTTP server over the given registry.
func NewServer(registry *Registry) *Server {
	return &Server{registry: registry}
}

// claimRequest is the body of POST /api/v1/rooms.
type claimRequest struct {
	Code string `json:"code"`
}

// Routes builds the signaling API router.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/rooms", s.handleClaim).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{code}", s.handleLookup).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{code}", s.handleInvalidate).Methods(http.MethodDelete)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	code := room.Normalize(req.Code)
	if !room.Valid(code) {
		respondError(w, http.StatusBadRequest, "invalid room code")
		return
	}
	if err := s.registry.Claim(code); err != nil {
		if errors.Is(err, ErrRoomTaken) {
			respondError(w, http.StatusConflict, "room already claimed")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	slog.Info("Room claimed", "code", code)
	respondJSON(w, http.StatusCreated, s.registry.Lookup(code))
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	code := room.Normalize(mux.Vars(r)["code"])
	status := s.registry.Lookup(code)
	if status == nil {
		respondError(w, http.StatusNotFound, "unknown room")
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	code := room.Normalize(mux.Vars(r)["code"])
	if err := s.registry.Invalidate(code); err != nil {
		respondError(w, http.StatusNotFound, "unknown room")
		return
	}
	slog.Info("Room invalidated", "code", code)
	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
