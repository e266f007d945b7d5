package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/postmod/apiserver/internal/services"
)

// CommentHandler provides HTTP handlers for comments.
type CommentHandler struct {
	commentService *services.CommentService
}

func NewCommentHandler(commentService *services.CommentService) *CommentHandler {
	return &CommentHandler{commentService: commentService}
}

// CommentRouter registers comment routes on the given router. Every
// route requires authentication.
func CommentRouter(r chi.Router, commentService *services.CommentService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewCommentHandler(commentService)

	r.Use(authMiddleware)
	r.Get("/", handler.ListComments)
	r.Post("/", handler.CreateComment)
	r.Get("/{commentID}", handler.GetComment)
	r.Delete("/{commentID}", handler.DeleteComment)
}

// CreateCommentRequest is the comment submission body. Any author field
// sent by the client is ignored; the caller is the author.
type CreateCommentRequest struct {
	PostID  int    `json:"post_id"`
	Content string `json:"content"`
}

func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, detailCredentials)
		return
	}

	var req CreateCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, detailInvalidBody)
		return
	}

	comment, err := h.commentService.Create(r.Context(), user.Username, req.PostID, req.Content)
	if err != nil {
		if errors.Is(err, services.ErrContentRejected) {
			writeError(w, http.StatusBadRequest, detailCommentRejected)
			return
		}
		writeServiceError(w, r, err, detailCommentNotFound)
		return
	}

	writeJSON(w, http.StatusCreated, comment)
}

func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.commentService.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err, detailCommentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (h *CommentHandler) GetComment(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "commentID")
	if err != nil {
		writeServiceError(w, r, err, detailCommentNotFound)
		return
	}

	comment, err := h.commentService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, detailCommentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "commentID")
	if err != nil {
		writeServiceError(w, r, err, detailCommentNotFound)
		return
	}

	if err := h.commentService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err, detailCommentNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
