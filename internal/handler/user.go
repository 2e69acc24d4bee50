package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/postboard/internal/auth"
	"github.com/sakif/postboard/internal/service"
)

// UserHandler serves the caller's own account.
type UserHandler struct {
	users  *service.UserService
	gate   auth.Gate
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, gate auth.Gate, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, gate: gate, logger: logger}
}

// HandleMe returns the currently authenticated user's profile.
//
// HTTP: GET /api/me
//
// A valid token for a user that no longer exists is a 404, not a 401: the
// credential itself checked out.
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, err := h.gate.CurrentUserID(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		h.logger.Warn("HandleMe: user lookup failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
