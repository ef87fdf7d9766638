package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"example.com/fittrack/internal/domain"
)

// SendPushRequest is the payload for POST /api/push/send.
type SendPushRequest struct {
	Subscription domain.PushSubscription `json:"subscription"`
	Payload      json.RawMessage         `json:"payload"`
}

func (h *Handler) publicKey(w http.ResponseWriter, r *http.Request) {
	if h.push == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "push notifications are not configured"})
		return
	}
	key, err := h.push.PublicKey()
	if err != nil {
		h.logger.Printf("vapid public key: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "public key unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": key})
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	var sub domain.PushSubscription
	if err := decodeBody(w, r, &sub); err != nil {
		h.writeFailure(w, http.StatusBadRequest, "Invalid subscription", err)
		return
	}
	if err := h.service.SaveSubscription(r.Context(), sub); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			h.writeFailure(w, http.StatusBadRequest, "Invalid subscription", err)
			return
		}
		h.writeFailure(w, http.StatusInternalServerError, "Error registering subscription", err)
		return
	}
	h.logger.Printf("new push subscription %s", sub.Endpoint)
	writeJSON(w, http.StatusCreated, Envelope{Success: true, Message: "Subscription registered"})
}

func (h *Handler) sendPush(w http.ResponseWriter, r *http.Request) {
	if h.push == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "push notifications are not configured"})
		return
	}
	var req SendPushRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	payload := []byte(req.Payload)
	if len(payload) == 0 {
		payload = []byte("null")
	}
	if err := h.push.Send(r.Context(), req.Subscription, payload); err != nil {
		h.logger.Printf("error sending notification: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Error sending notification"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
