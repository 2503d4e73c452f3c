// films.go — обработчики каталога фильмов:
// GET/POST /api/films, POST /api/films/add, PUT /api/films/update/{id},
// DELETE /api/films/delete, GET /api/films/{id}, GET /api/catalog, POST /api/catalog/sync.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	apierrors "github.com/bigkaa/filmrental/internal/api/errors"
	"github.com/bigkaa/filmrental/internal/domain/model"
	"github.com/bigkaa/filmrental/internal/service"
)

// ListFilms — GET /api/films.
// Пустой или отсутствующий каталог — набор-заглушка.
func (h *APIHandler) ListFilms(w http.ResponseWriter, r *http.Request) {
	films, err := h.catalog.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "чтение каталога")
		return
	}
	writeJSON(w, http.StatusOK, films)
}

// ReplaceFilms — POST /api/films. Перезаписывает каталог целиком.
func (h *APIHandler) ReplaceFilms(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if !gjson.ParseBytes(body).IsArray() {
		apierrors.ValidationError(w, "Тело запроса должно быть массивом фильмов")
		return
	}

	var films []model.Film
	if err := json.Unmarshal(body, &films); err != nil {
		apierrors.ValidationError(w, "Некорректный список фильмов: "+err.Error())
		return
	}

	if err := h.catalog.ReplaceAll(r.Context(), films); err != nil {
		h.writeServiceError(w, err, "запись каталога")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// AddFilm — POST /api/films/add. id в теле необязателен (строка или число).
func (h *APIHandler) AddFilm(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	var patch model.FilmPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		apierrors.ValidationError(w, "Некорректные поля фильма: "+err.Error())
		return
	}
	id := gjson.GetBytes(body, "id").String()

	film, err := h.catalog.Add(r.Context(), id, patch)
	if err != nil {
		h.writeServiceError(w, err, "добавление фильма")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "film": film})
}

// UpdateFilm — PUT /api/films/update/{id}. Меняются только переданные поля.
func (h *APIHandler) UpdateFilm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		apierrors.ValidationError(w, "Не указан id фильма")
		return
	}

	var patch model.FilmPatch
	if err := decodeBody(w, r, &patch); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	film, err := h.catalog.Update(r.Context(), id, patch)
	if err != nil {
		h.writeServiceError(w, err, "обновление фильма")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "film": film})
}

// DeleteFilm — DELETE /api/films/delete?id=.
func (h *APIHandler) DeleteFilm(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")

	film, err := h.catalog.Delete(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "удаление фильма")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deletedFilm": film})
}

// GetFilm — GET /api/films/{id}. Ищет в каталоге витрины с откатом по источникам.
func (h *APIHandler) GetFilm(w http.ResponseWriter, r *http.Request) {
	film, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "получение фильма")
		return
	}
	writeJSON(w, http.StatusOK, film)
}

// catalogResponse — ответ GET /api/catalog.
type catalogResponse struct {
	Films  []model.Film          `json:"films"`
	Source service.CatalogSource `json:"source"`
}

// GetCatalog — GET /api/catalog. Каталог витрины и его источник.
func (h *APIHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	films, source := h.catalog.Current(r.Context())
	writeJSON(w, http.StatusOK, catalogResponse{Films: films, Source: source})
}

// SyncCatalog — POST /api/catalog/sync. Принудительная загрузка из удалённого API.
func (h *APIHandler) SyncCatalog(w http.ResponseWriter, r *http.Request) {
	count, err := h.catalog.Sync(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrRemoteCatalogDisabled) {
			h.writeServiceError(w, err, "синхронизация каталога")
			return
		}
		h.logger.Warn("Синхронизация каталога не удалась", slog.String("error", err.Error()))
		apierrors.CatalogUnavailable(w, "Удалённый API каталога недоступен: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": count})
}
