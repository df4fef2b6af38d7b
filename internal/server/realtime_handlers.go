package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/auth"
	"github.com/bunbase/bunbase/internal/realtime"
)

// handleRealtimeConnect serves GET /api/realtime: it registers a client,
// sends the PB_CONNECT frame with the allocated clientId, and streams
// events and keepalive pings until the client disconnects or is evicted.
func (a *App) handleRealtimeConnect(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.writeError(w, apperrors.Internal(errors.New("response writer does not support streaming")))
		return
	}

	client := a.Hub.Register()
	defer a.Hub.Remove(client.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	frame, err := realtime.ConnectFrame(client.ID)
	if err != nil {
		log.Printf("ERROR: format connect frame: %v", err)
		return
	}
	if _, err := w.Write(frame); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(a.Hub.PingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
			a.Hub.Touch(client.ID)
		case <-ticker.C:
			if _, err := w.Write(realtime.PingFrame); err != nil {
				return
			}
			flusher.Flush()
			a.Hub.Touch(client.ID)
		}
	}
}

type subscribeRequest struct {
	ClientID      string   `json:"clientId"`
	Subscriptions []string `json:"subscriptions"`
}

// handleRealtimeSubscribe serves POST /api/realtime: it replaces the
// client's subscription set. The first authenticated call captures the
// caller's auth; an anonymous client may authenticate later, but a
// captured identity cannot change.
func (a *App) handleRealtimeSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, apperrors.Validation("invalid JSON body: %s", err))
		return
	}
	if req.ClientID == "" {
		a.writeError(w, apperrors.Validation("clientId is required"))
		return
	}

	principal, err := a.Auth.Resolve(r.Context(), r)
	if err != nil {
		a.writeError(w, err)
		return
	}

	if err := a.Hub.SetSubscriptions(req.ClientID, req.Subscriptions, accessFor(principal)); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// accessFor projects a principal onto the hub's captured auth state.
// Anonymous callers capture an empty key.
func accessFor(principal *auth.Principal) *realtime.Access {
	access := &realtime.Access{}
	if principal != nil {
		access.IsAdmin = principal.IsAdmin()
		access.Info = principal.RuleInfo()
		access.Key = string(principal.Kind) + ":" + principal.ID()
	}
	return access
}
