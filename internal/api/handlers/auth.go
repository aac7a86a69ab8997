// auth.go — вход и выход из ALM.
// POST /api/v1/auth/login — проверяет учётные данные у upstream ALM,
// сохраняет их зашифрованными и открывает сессию.
// POST /api/v1/auth/logout — завершает сессию ALM.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/arturkryukov/almstore/internal/almclient"
	apierrors "github.com/arturkryukov/almstore/internal/api/errors"
	"github.com/arturkryukov/almstore/internal/api/middleware"
	"github.com/arturkryukov/almstore/internal/service"
)

// loginRequest — тело запроса входа в ALM.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse — ответ успешного входа.
type loginResponse struct {
	Status string `json:"status"`
	User   string `json:"user"`
}

// handleLogin — реализация POST /api/v1/auth/login.
// Маршрут публичный (JWT-исключение): сессия открывается учётными
// данными ALM, пользователь ещё может не иметь сессии Extractor.
func (h *APIHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}
	if req.Username == "" || req.Password == "" {
		apierrors.ValidationError(w, "Поля username и password обязательны")
		return
	}

	if _, err := h.sessions.Login(r.Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, almclient.ErrAuthFailed) {
			apierrors.ALMAuthFailed(w, "ALM отверг учётные данные")
			return
		}
		h.logger.Error("Ошибка входа в ALM",
			slog.String("user", req.Username),
			slog.String("error", err.Error()),
		)
		apierrors.ALMUnavailable(w, "Не удалось выполнить вход в ALM")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Status: "ok", User: req.Username})
}

// handleLogout — реализация POST /api/v1/auth/logout.
// Владелец сессии берётся из JWT.
func (h *APIHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	owner := middleware.UserFromContext(r.Context())
	if owner == "" {
		apierrors.Unauthorized(w, "Отсутствует идентификатор пользователя в токене")
		return
	}

	if err := h.sessions.Logout(r.Context(), owner); err != nil {
		if errors.Is(err, service.ErrNoSession) {
			apierrors.NoALMSession(w, "Нет активной сессии ALM")
			return
		}
		h.logger.Error("Ошибка выхода из ALM",
			slog.String("user", owner),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при выходе")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
