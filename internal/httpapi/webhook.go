package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrWong99/lensrelay/internal/config"
	"github.com/MrWong99/lensrelay/internal/session"
)

// webhookRequest is the cloud service's session lifecycle notification.
type webhookRequest struct {
	Type        string `json:"type"`
	SessionID   string `json:"sessionId"`
	UserID      string `json:"userId"`
	DeviceModel string `json:"deviceModel"`
}

// settingsRequest pushes updated user settings from the cloud.
type settingsRequest struct {
	UserID   string                  `json:"userId"`
	Settings config.SettingsDefaults `json:"settings"`
}

// authorizeCloud checks the service-to-service credential on cloud-facing
// endpoints. Development mode accepts unauthenticated calls.
func (s *Server) authorizeCloud(r *http.Request) bool {
	auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(auth), []byte(s.env.APIKey)) == 1 {
		return true
	}
	return !s.env.Production
}

// handleWebhook processes session lifecycle notifications from the cloud.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeCloud(r) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	switch req.Type {
	case "session_request":
		if req.UserID == "" || req.SessionID == "" {
			http.Error(w, `{"error":"userId and sessionId are required"}`, http.StatusBadRequest)
			return
		}
		if err := s.registry.Open(r.Context(), session.OpenRequest{
			UserID:      req.UserID,
			SessionID:   req.SessionID,
			DeviceModel: req.DeviceModel,
		}); err != nil {
			slog.Error("session open failed", "user_id", req.UserID, "err", err)
			http.Error(w, `{"error":"session open failed"}`, http.StatusBadGateway)
			return
		}

	case "stop_request":
		if req.UserID == "" {
			http.Error(w, `{"error":"userId is required"}`, http.StatusBadRequest)
			return
		}
		s.registry.Stop(req.UserID)

	default:
		http.Error(w, `{"error":"unknown webhook type"}`, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSettingsPush applies updated user settings.
func (s *Server) handleSettingsPush(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeCloud(r) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, `{"error":"userId is required"}`, http.StatusBadRequest)
		return
	}

	settings := session.SettingsFromDefaults(req.Settings)
	if err := s.registry.UpdateSettings(req.UserID, settings); err != nil {
		http.Error(w, `{"error":"no active session"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
