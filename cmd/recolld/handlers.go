package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/recollect-ai/recolld/internal/config"
	"github.com/recollect-ai/recolld/pkg/core/capture"
	"github.com/recollect-ai/recolld/pkg/store"
)

type sessionStartRequest struct {
	UserID         int64  `json:"user_id"`
	PartnerID      int64  `json:"partner_id"`
	DeepgramAPIKey string `json:"deepgram_api_key,omitempty"`
}

type sessionListResponse struct {
	Sessions []capture.Stats `json:"sessions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// newHandler builds the thin control surface over the session manager.
func newHandler(manager *capture.Manager, st *store.Store, cfg config.Config, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/sessions/start", func(w http.ResponseWriter, r *http.Request) {
		var req sessionStartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		credential := req.DeepgramAPIKey
		if credential == "" {
			credential = cfg.DeepgramAPIKey
		}

		// The frontend hard-codes ids; seed placeholder rows so a fresh
		// database does not 404 the first session.
		if err := st.EnsureUser(r.Context(), req.UserID); err != nil {
			logger.Error("ensure user", "error", err)
			writeError(w, http.StatusInternalServerError, "unable to prepare user")
			return
		}
		if err := st.EnsurePartner(r.Context(), req.UserID, req.PartnerID); err != nil {
			logger.Error("ensure partner", "error", err)
			writeError(w, http.StatusInternalServerError, "unable to prepare partner")
			return
		}

		sessionID := uuid.NewString()
		stats, err := manager.Create(r.Context(), sessionID, req.UserID, req.PartnerID, credential)
		if err != nil {
			writeCaptureError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionListResponse{Sessions: manager.List()})
	})

	mux.HandleFunc("GET /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		stats, err := manager.Get(r.PathValue("id"))
		if err != nil {
			writeCaptureError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	mux.HandleFunc("GET /api/sessions/{id}/transcripts", func(w http.ResponseWriter, r *http.Request) {
		n := 10
		if raw := r.URL.Query().Get("lines"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				n = parsed
			}
		}
		entries, err := manager.Recent(r.PathValue("id"), n)
		if err != nil {
			writeCaptureError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transcripts": entries})
	})

	mux.HandleFunc("POST /api/sessions/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
		if err := manager.Stop(r.Context(), r.PathValue("id")); err != nil {
			writeCaptureError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	})

	mux.HandleFunc("POST /api/sessions/stop-all", func(w http.ResponseWriter, r *http.Request) {
		manager.StopAll(r.Context())
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	})

	return mux
}

func writeCaptureError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch capture.KindOf(err) {
	case capture.ErrConfiguration:
		status = http.StatusBadRequest
	case capture.ErrDuplicateSession:
		status = http.StatusConflict
	case capture.ErrNotFound:
		status = http.StatusNotFound
	case capture.ErrDevice:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
