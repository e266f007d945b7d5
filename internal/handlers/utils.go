package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/postmod/apiserver/internal/moderation"
	"github.com/postmod/apiserver/internal/services"
	"github.com/postmod/apiserver/internal/store"
	"github.com/postmod/apiserver/types"
)

const maxBodyBytes = 1 << 20

const (
	detailCredentials        = "Could not validate credentials"
	detailInvalidBody        = "Invalid request body"
	detailModerationDown     = "content moderation is unavailable"
	detailInternal           = "Internal server error"
	detailUserExists         = "User already exists"
	detailPostNotFound       = "Post not found"
	detailCommentNotFound    = "Comment not found"
	detailUserNotFound       = "User not found"
	detailPostRejected       = "Post contains offensive content and cannot be created."
	detailCommentRejected    = "Comment contains offensive content and cannot be created."
	detailIncorrectLogin     = "Incorrect username or password"
	detailInvalidDate        = "Invalid date format. Use YYYY-MM-DD."
	detailTooManyRequests    = "Too many login attempts, try again later"
	bearerChallenge          = "Bearer"
	headerWWWAuthenticate    = "WWW-Authenticate"
	contentTypeFormURLEncode = "application/x-www-form-urlencoded"
)

type contextKey string

const contextUserKey contextKey = "user"

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// MessageResponse is the body of replies that only confirm an action.
type MessageResponse struct {
	Message string `json:"message"`
}

func withUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

func userFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok && user.Username != ""
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

func writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set(headerWWWAuthenticate, bearerChallenge)
	writeError(w, http.StatusUnauthorized, detail)
}

// writeServiceError maps service and store errors to a status code.
// notFound is the detail used for store.ErrNotFound.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, validationDetail(err))
	case errors.Is(err, services.ErrInvalidToken):
		writeUnauthorized(w, detailCredentials)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusBadRequest, detailUserExists)
	case errors.Is(err, moderation.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, detailModerationDown)
	default:
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, detailInternal)
	}
}

func validationDetail(err error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, services.ErrValidation.Error()+": "); ok {
		return rest
	}
	return msg
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", services.ErrValidation, err)
	}
	return nil
}

func parseIDParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid %s", services.ErrValidation, name)
	}
	return id, nil
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func Welcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Welcome to the Post Management API!"})
}
