package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matheus3301/detox/internal/domain"
	"github.com/matheus3301/detox/internal/messaging"
)

const (
	errMissingFields = "Se requiere receiverId y content"
	errBadBody       = "Formato de solicitud incorrecto"
	errSendFailed    = "No se pudo enviar el mensaje"
	errStatusFailed  = "No se pudo actualizar el estado"
)

type handlers struct {
	deps Deps
	log  *zap.Logger
}

// SendRequest is the body of POST /api/messages.
type SendRequest struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	ClientID   string `json:"clientId,omitempty"`
}

// OnlineRequest is the body of PUT /api/users/me/online.
type OnlineRequest struct {
	Online bool `json:"online"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Message: "detox daemon is running"})
}

func (h *handlers) currentUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Identity.CurrentProfile(r.Context()))
}

func (h *handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	profiles, err := messaging.Read(r.Context(), h.deps.Policy, h.deps.Backend.ListProfiles)
	if err != nil || len(profiles) == 0 {
		if err != nil {
			h.log.Warn("profiles unavailable, serving fallback users", zap.Error(err))
		}
		setDegraded(w)
		profiles = messaging.FallbackUsers()
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (h *handlers) listContacts(w http.ResponseWriter, r *http.Request) {
	contacts, degraded := h.deps.Contacts.LoadOrFallback(r.Context())
	if degraded {
		setDegraded(w)
	}
	writeJSON(w, http.StatusOK, messaging.FilterContacts(contacts, r.URL.Query().Get("q")))
}

func (h *handlers) conversation(w http.ResponseWriter, r *http.Request) {
	peer := chi.URLParam(r, "userId")
	me := h.deps.Identity.Current(r.Context())

	msgs, err := messaging.Read(r.Context(), h.deps.Policy, func(ctx context.Context) ([]domain.Message, error) {
		return h.deps.Backend.QueryConversation(ctx, me, peer)
	})
	if err != nil || len(msgs) == 0 {
		if err != nil {
			h.log.Warn("history unavailable, serving fallback", zap.String("peer", peer), zap.Error(err))
		}
		setDegraded(w)
		msgs = messaging.FallbackHistory(me, peer)
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errBadBody)
		return
	}
	content := strings.TrimSpace(req.Content)
	if req.ReceiverID == "" || content == "" {
		writeError(w, http.StatusBadRequest, errMissingFields)
		return
	}

	me := h.deps.Identity.Current(r.Context())
	m, err := messaging.Write(r.Context(), h.deps.Policy, func(ctx context.Context) (*domain.Message, error) {
		return h.deps.Backend.InsertMessage(ctx, &domain.Message{
			SenderID:   me,
			ReceiverID: req.ReceiverID,
			Content:    content,
			ClientID:   req.ClientID,
		})
	})
	if err != nil {
		h.log.Error("send failed", zap.String("receiver", req.ReceiverID), zap.Error(err))
		writeError(w, http.StatusBadGateway, errSendFailed)
		return
	}

	if h.deps.Contacts != nil {
		h.deps.Contacts.SetPreview(m.ReceiverID, m.Content)
	}
	if h.deps.Hub != nil && !h.deps.Hub.Following() {
		h.deps.Hub.Broadcast(*m)
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *handlers) setOnline(w http.ResponseWriter, r *http.Request) {
	var req OnlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errBadBody)
		return
	}
	me := h.deps.Identity.Current(r.Context())
	_, err := messaging.Write(r.Context(), h.deps.Policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.deps.Backend.UpdateOnlineStatus(ctx, me, req.Online)
	})
	if err != nil {
		h.log.Warn("online status update failed", zap.String("user_id", me), zap.Error(err))
		writeError(w, http.StatusBadGateway, errStatusFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": me, "online": req.Online})
}

func setDegraded(w http.ResponseWriter) {
	w.Header().Set(DegradedHeader, "true")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
