package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/postmod/apiserver/internal/services"
)

// PostHandler provides HTTP handlers for posts.
type PostHandler struct {
	postService *services.PostService
}

func NewPostHandler(postService *services.PostService) *PostHandler {
	return &PostHandler{postService: postService}
}

// PostRouter registers post routes on the given router. Every route
// requires authentication.
func PostRouter(r chi.Router, postService *services.PostService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewPostHandler(postService)

	r.Use(authMiddleware)
	r.Get("/", handler.ListPosts)
	r.Post("/", handler.CreatePost)
	r.Get("/{postID}", handler.GetPost)
	r.Delete("/{postID}", handler.DeletePost)
}

type CreatePostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, detailCredentials)
		return
	}

	var req CreatePostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, detailInvalidBody)
		return
	}

	post, err := h.postService.Create(r.Context(), user.Username, req.Title, req.Content)
	if err != nil {
		if errors.Is(err, services.ErrContentRejected) {
			writeError(w, http.StatusBadRequest, detailPostRejected)
			return
		}
		writeServiceError(w, r, err, detailPostNotFound)
		return
	}

	writeJSON(w, http.StatusCreated, post)
}

func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.postService.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err, detailPostNotFound)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "postID")
	if err != nil {
		writeServiceError(w, r, err, detailPostNotFound)
		return
	}

	post, err := h.postService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, detailPostNotFound)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "postID")
	if err != nil {
		writeServiceError(w, r, err, detailPostNotFound)
		return
	}

	if err := h.postService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err, detailPostNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
