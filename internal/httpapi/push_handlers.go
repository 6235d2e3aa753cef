package httpapi

import (
	"encoding/json"
	"net/http"
)

type pushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// handlePushRegister stores a coordinator device token for completion pushes.
func (r *Router) handlePushRegister(w http.ResponseWriter, req *http.Request) {
	var body pushTokenRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if body.Token == "" {
		http.Error(w, `{"error": "token is required"}`, http.StatusBadRequest)
		return
	}
	if body.Platform == "" {
		body.Platform = "ios"
	}

	if err := r.store.RegisterPushToken(req.Context(), body.Token, body.Platform); err != nil {
		captureError(req, err, "failed to register push token")
		http.Error(w, `{"error": "failed to register token"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

// handlePushUnregister removes a coordinator device token.
func (r *Router) handlePushUnregister(w http.ResponseWriter, req *http.Request) {
	var body pushTokenRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if body.Token == "" {
		http.Error(w, `{"error": "token is required"}`, http.StatusBadRequest)
		return
	}

	if err := r.store.UnregisterPushToken(req.Context(), body.Token); err != nil {
		captureError(req, err, "failed to unregister push token")
		http.Error(w, `{"error": "failed to unregister token"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unregistered"})
}
