// rentals.go — обработчики аренд:
// GET/POST /api/rentals, POST /api/rentals/record, GET /api/rentals/all, GET /api/rentals/stats.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tidwall/gjson"

	apierrors "github.com/bigkaa/filmrental/internal/api/errors"
	"github.com/bigkaa/filmrental/internal/domain/model"
	"github.com/bigkaa/filmrental/internal/service"
)

// rentalsResponse — ответ со списком аренд кошелька.
type rentalsResponse struct {
	Rentals []model.Rental `json:"rentals"`
}

// walletRental — аренда в сводном списке с адресом кошелька.
type walletRental struct {
	Address string `json:"address"`
	model.Rental
}

// recordRentalRequest — тело POST /api/rentals/record.
type recordRentalRequest struct {
	Address string            `json:"address"`
	FilmID  string            `json:"filmId"`
	Price   model.PriceString `json:"price"`
	Title   string            `json:"title"`
	Poster  string            `json:"poster"`
	TxHash  string            `json:"txHash"`
}

// ListRentals — GET /api/rentals?address=&view=.
func (h *APIHandler) ListRentals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	address := q.Get("address")
	if address == "" {
		apierrors.ValidationError(w, "Wallet address is required")
		return
	}

	rentals, err := h.rentals.List(r.Context(), address, q.Get("view"))
	if err != nil {
		h.writeServiceError(w, err, "чтение аренд")
		return
	}
	writeJSON(w, http.StatusOK, rentalsResponse{Rentals: rentals})
}

// ReplaceRentals — POST /api/rentals {address, rentals}. Перезаписывает список кошелька.
func (h *APIHandler) ReplaceRentals(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	address := gjson.GetBytes(body, "address").String()
	if address == "" {
		apierrors.ValidationError(w, "Wallet address is required")
		return
	}
	raw := gjson.GetBytes(body, "rentals")
	if !raw.IsArray() {
		apierrors.ValidationError(w, "Rentals must be an array")
		return
	}

	var rentals []model.Rental
	if err := json.Unmarshal([]byte(raw.Raw), &rentals); err != nil {
		apierrors.ValidationError(w, "Некорректный список аренд: "+err.Error())
		return
	}

	if err := h.rentals.Replace(r.Context(), address, rentals); err != nil {
		h.writeServiceError(w, err, "запись аренд")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// RecordRental — POST /api/rentals/record. Записывает аренду и обновляет счётчики фильма.
func (h *APIHandler) RecordRental(w http.ResponseWriter, r *http.Request) {
	var req recordRentalRequest
	if err := decodeBody(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.rentals.Record(r.Context(), service.RecordRequest{
		Address: req.Address,
		FilmID:  req.FilmID,
		Price:   req.Price,
		Title:   req.Title,
		Poster:  req.Poster,
		TxHash:  req.TxHash,
	})
	if err != nil {
		h.writeServiceError(w, err, "запись аренды")
		return
	}

	status := http.StatusCreated
	if !res.Created {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"success":     true,
		"rental":      res.Rental,
		"created":     res.Created,
		"filmUpdated": res.FilmUpdated,
	})
}

// AllRentals — GET /api/rentals/all. Аренды всех кошельков.
func (h *APIHandler) AllRentals(w http.ResponseWriter, r *http.Request) {
	all, err := h.rentals.All(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "чтение аренд")
		return
	}

	items := make([]walletRental, 0, len(all))
	for i := range all {
		items = append(items, walletRental{Address: all[i].Address, Rental: all[i].Rental})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rentals": items})
}

// RentalStats — GET /api/rentals/stats. Статистика панели персонала.
func (h *APIHandler) RentalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Dashboard(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "расчёт статистики")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
