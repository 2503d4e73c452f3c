// payments.go — обработчики платёжных сессий:
// POST /api/payments, GET /api/payments/{id},
// POST /api/payments/{id}/submit, /reject, /fail.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/filmrental/internal/api/errors"
)

// createPaymentRequest — тело POST /api/payments.
type createPaymentRequest struct {
	Address string `json:"address"`
	FilmID  string `json:"filmId"`
}

// submitPaymentRequest — тело POST /api/payments/{id}/submit.
type submitPaymentRequest struct {
	TxHash string `json:"txHash"`
}

// failPaymentRequest — тело POST /api/payments/{id}/fail.
type failPaymentRequest struct {
	Error string `json:"error"`
}

// CreatePayment — POST /api/payments. Создаёт сессию и возвращает запрос перевода.
func (h *APIHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeBody(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	created, err := h.payments.Create(r.Context(), req.Address, req.FilmID)
	if err != nil {
		h.writeServiceError(w, err, "создание платёжной сессии")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetPayment — GET /api/payments/{id}.
func (h *APIHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "получение платёжной сессии")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// SubmitPayment — POST /api/payments/{id}/submit.
// Блокируется до подтверждения транзакции. Неподтверждённая оплата — 200 с state=failed.
func (h *APIHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	var req submitPaymentRequest
	if err := decodeBody(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	p, err := h.payments.Submit(r.Context(), chi.URLParam(r, "id"), req.TxHash)
	if err != nil {
		h.writeServiceError(w, err, "подтверждение оплаты")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RejectPayment — POST /api/payments/{id}/reject. Пользователь отказался подписывать.
func (h *APIHandler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Reject(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "отмена оплаты")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// FailPayment — POST /api/payments/{id}/fail. Ошибка кошелька до отправки.
// Тело необязательно.
func (h *APIHandler) FailPayment(w http.ResponseWriter, r *http.Request) {
	var req failPaymentRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			apierrors.ValidationError(w, err.Error())
			return
		}
	}

	p, err := h.payments.Fail(chi.URLParam(r, "id"), req.Error)
	if err != nil {
		h.writeServiceError(w, err, "ошибка оплаты")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
