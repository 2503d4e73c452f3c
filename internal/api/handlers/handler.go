// handler.go — основной обработчик API Film Rental.
// Объединяет health и бизнес-обработчики, делегируя запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"

	apierrors "github.com/bigkaa/filmrental/internal/api/errors"
	"github.com/bigkaa/filmrental/internal/domain/payment"
	"github.com/bigkaa/filmrental/internal/service"
)

// noStore — значение Cache-Control для всех ответов API.
const noStore = "no-store, no-cache, must-revalidate, proxy-revalidate, max-age=0"

// maxBodySize — предел размера тела запроса.
const maxBodySize = 4 << 20

// APIHandler — основной обработчик API Film Rental.
type APIHandler struct {
	health   *HealthHandler
	catalog  *service.CatalogService
	rentals  *service.RentalService
	stats    *service.StatsService
	payments *service.PaymentService
	auth     *service.AuthService
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	catalog *service.CatalogService,
	rentals *service.RentalService,
	stats *service.StatsService,
	payments *service.PaymentService,
	auth *service.AuthService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:   health,
		catalog:  catalog,
		rentals:  rentals,
		stats:    stats,
		payments: payments,
		auth:     auth,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", noStore)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// readBody читает тело запроса и проверяет, что это корректный JSON.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("чтение тела запроса: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("некорректный JSON в теле запроса")
	}
	return body, nil
}

// decodeBody читает тело запроса в v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("некорректное тело запроса: %w", err)
	}
	return nil
}

// writeServiceError отображает ошибку сервисного слоя в HTTP-ответ.
// action — описание операции для лога и сообщения 500.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, action string) {
	var te *payment.TransitionError
	switch {
	case errors.As(err, &te):
		apierrors.InvalidTransition(w, te.Message)
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		apierrors.Unauthorized(w, err.Error())
	case errors.Is(err, service.ErrInsufficientBalance):
		apierrors.InsufficientBalance(w, err.Error())
	case errors.Is(err, service.ErrChainUnavailable):
		apierrors.ChainUnavailable(w, err.Error())
	case errors.Is(err, service.ErrRemoteCatalogDisabled):
		apierrors.CatalogUnavailable(w, err.Error())
	case errors.Is(err, service.ErrCatalogCorrupt):
		h.logger.Error("Каталог повреждён", slog.String("error", err.Error()))
		apierrors.InternalError(w, err.Error())
	default:
		h.logger.Error("Ошибка: "+action, slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка: "+action)
	}
}
