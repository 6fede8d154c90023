package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/troopledger/troopledger/internal/platform/httpx"
	"github.com/troopledger/troopledger/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "username and password are required")
		return
	}
	token, principal, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{
		Token: token,
		User: userResponse{
			ID:       principal.ID,
			Username: principal.Username,
			Role:     string(principal.Role),
		},
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r)
	if token != "" {
		if err := h.service.Logout(r.Context(), token); err != nil {
			h.logger.Warn("revoke token", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Middleware resolves the bearer token into a request principal. Requests
// without a valid token are rejected before reaching any handler.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		principal, err := h.service.Resolve(r.Context(), token)
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "valid bearer token required")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}
