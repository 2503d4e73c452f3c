// auth.go — обработчики аутентификации персонала:
// POST /api/login, GET /api/me, POST /api/change-password.
package handlers

import (
	"errors"
	"net/http"

	apierrors "github.com/bigkaa/filmrental/internal/api/errors"
	"github.com/bigkaa/filmrental/internal/api/middleware"
	"github.com/bigkaa/filmrental/internal/service"
)

// loginRequest — тело POST /api/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// changePasswordRequest — тело POST /api/change-password.
type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// messageResponse — ответ с текстовым сообщением.
type messageResponse struct {
	Message string `json:"message"`
}

// Login — POST /api/login.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			apierrors.Unauthorized(w, "Invalid username or password")
			return
		}
		h.writeServiceError(w, err, "вход")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Me — GET /api/me. Требует JWT.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Unauthorized")
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), claims)
	if err != nil {
		h.writeServiceError(w, err, "получение пользователя")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// ChangePassword — POST /api/change-password. Требует JWT с ролью admin или staff.
func (h *APIHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Unauthorized")
		return
	}

	var req changePasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	err := h.auth.ChangePassword(r.Context(), claims.Subject, req.OldPassword, req.NewPassword)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, messageResponse{Message: "Password changed successfully"})
	case errors.Is(err, service.ErrPasswordMissing),
		errors.Is(err, service.ErrPasswordIncorrect),
		errors.Is(err, service.ErrPasswordTooShort):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "User not found")
	default:
		h.writeServiceError(w, err, "смена пароля")
	}
}
