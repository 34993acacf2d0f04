package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matheus3301/detox/internal/domain"
	"github.com/matheus3301/detox/internal/posts"
)

const (
	errPostInvalid  = "La publicación necesita un tipo válido y contenido"
	errPostNotFound = "Publicación no encontrada"
	errPostFailed   = "No se pudo guardar la publicación"
)

func (h *handlers) listPosts(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Posts.List(r.Context())
	if err != nil {
		h.postError(w, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) addPost(w http.ResponseWriter, r *http.Request) {
	var d posts.Draft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, errBadBody)
		return
	}
	v, err := h.deps.Posts.Add(r.Context(), d)
	if err != nil {
		h.postError(w, "add", err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *handlers) updatePost(w http.ResponseWriter, r *http.Request) {
	var d posts.Draft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, errBadBody)
		return
	}
	v, err := h.deps.Posts.Update(r.Context(), chi.URLParam(r, "postId"), d)
	if err != nil {
		h.postError(w, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handlers) deletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Posts.Delete(r.Context(), chi.URLParam(r, "postId")); err != nil {
		h.postError(w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) likePost(w http.ResponseWriter, r *http.Request) {
	v, err := h.deps.Posts.Like(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		h.postError(w, "like", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handlers) postError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, errPostInvalid)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, errPostNotFound)
	default:
		h.log.Error("post store failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, errPostFailed)
	}
}
