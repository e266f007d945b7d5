package handlers

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/postmod/apiserver/internal/services"
)

const tokenTypeBearer = "bearer"

// AuthHandler provides registration, login and account endpoints.
type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
}

func NewAuthHandler(authService *services.AuthService, userService *services.UserService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
	}
}

// UserRouter registers user routes on the given router.
func UserRouter(
	r chi.Router,
	authService *services.AuthService,
	userService *services.UserService,
	limiter *LoginLimiter,
) {
	handler := NewAuthHandler(authService, userService)
	authMiddleware := RequireAuth(authService)

	r.Get("/", handler.Index)
	r.Post("/register", handler.Register)
	r.With(RateLimit(limiter)).Post("/token", handler.Token)
	r.With(authMiddleware).Put("/update_auto_reply_config", handler.UpdateAutoReplyConfig)
	r.With(authMiddleware).Post("/logout", handler.Logout)
}

// RequireAuth resolves the bearer token to a user and stores it in the
// request context. Every failure gets the same 401.
func RequireAuth(authService *services.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeUnauthorized(w, detailCredentials)
				return
			}

			user, err := authService.Authorize(r.Context(), token)
			if err != nil {
				if errors.Is(err, services.ErrInvalidToken) {
					writeUnauthorized(w, detailCredentials)
					return
				}
				writeServiceError(w, r, err, detailCredentials)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

func (h *AuthHandler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Users endpoint is working!"})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, detailInvalidBody)
		return
	}

	if _, err := h.authService.Register(r.Context(), req.Username, req.Password); err != nil {
		writeServiceError(w, r, err, detailUserNotFound)
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "User registered successfully"})
}

// Token exchanges credentials for an access token. It accepts the OAuth2
// password form as well as a JSON body.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	req, err := parseLoginRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, detailInvalidBody)
		return
	}

	token, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeUnauthorized(w, detailIncorrectLogin)
			return
		}
		writeServiceError(w, r, err, detailIncorrectLogin)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token.Token, TokenType: tokenTypeBearer})
}

func (h *AuthHandler) UpdateAutoReplyConfig(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, detailCredentials)
		return
	}

	var req AutoReplyConfigRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, detailInvalidBody)
		return
	}
	if req.Enabled == nil || req.DelaySeconds == nil {
		writeError(w, http.StatusBadRequest, "enabled and delay_seconds are required")
		return
	}

	if _, err := h.userService.UpdateAutoReplyConfig(r.Context(), user.Username, *req.Enabled, *req.DelaySeconds); err != nil {
		writeServiceError(w, r, err, detailUserNotFound)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Auto-reply configuration updated successfully"})
}

// Logout revokes the token used for this request.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeUnauthorized(w, detailCredentials)
		return
	}
	if err := h.authService.Revoke(r.Context(), token); err != nil {
		writeServiceError(w, r, err, detailCredentials)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// AutoReplyConfigRequest uses pointers so that missing fields can be
// told apart from false and zero.
type AutoReplyConfigRequest struct {
	Enabled      *bool `json:"enabled"`
	DelaySeconds *int  `json:"delay_seconds"`
}

func parseLoginRequest(w http.ResponseWriter, r *http.Request) (LoginRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case contentTypeFormURLEncode, "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if mediaType == "multipart/form-data" {
			if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
				return LoginRequest{}, err
			}
		} else if err := r.ParseForm(); err != nil {
			return LoginRequest{}, err
		}
		return LoginRequest{
			Username: r.PostFormValue("username"),
			Password: r.PostFormValue("password"),
		}, nil
	default:
		var req LoginRequest
		err := decodeJSON(w, r, &req)
		return req, err
	}
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
