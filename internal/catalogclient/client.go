// Пакет catalogclient — HTTP-клиент удалённого API каталога фильмов.
//
// API отдаёт список фильмов в одной из форм:
//   - массив на верхнем уровне
//   - {"data": [...]}
//   - {"films": [...]}
//   - объект, первый член-массив которого содержит фильмы
//
// Записи нормализуются в model.Film: _id → id, runtime и year
// приводятся к числу и строке, пропущенные поля заполняются значениями по умолчанию.
// Одна попытка на вызов, без повторов.
package catalogclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/bigkaa/filmrental/internal/domain/model"
)

// maxResponseSize — ограничение размера ответа API каталога.
const maxResponseSize = 16 << 20

// ErrNoFilms — в ответе API не найден непустой массив фильмов.
var ErrNoFilms = errors.New("в ответе API каталога нет фильмов")

// Client — HTTP-клиент удалённого API каталога.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string //nolint:gosec // G101: поле структуры, не содержит секрет напрямую
	logger     *slog.Logger
}

// New создаёт клиент API каталога.
// baseURL — базовый URL API (например, https://host:18888/api/v2).
// token — опциональный Bearer-токен.
// timeout — таймаут HTTP-запроса (FR_CATALOG_API_TIMEOUT).
func New(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		logger:     logger.With(slog.String("component", "catalog_client")),
	}
}

// BaseURL возвращает базовый URL API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchFilms запрашивает GET {baseURL}/films и возвращает нормализованный список.
func (c *Client) FetchFilms(ctx context.Context) ([]model.Film, error) {
	reqURL := c.baseURL + "/films"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("запрос к API каталога: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("чтение ответа API каталога: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API каталога вернул HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	films, err := ParseFilms(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Каталог получен из API",
		slog.Int("count", len(films)),
		slog.Duration("duration", time.Since(start)),
	)
	return films, nil
}

// ParseFilms извлекает массив фильмов из тела ответа и нормализует записи.
func ParseFilms(body []byte) ([]model.Film, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("ответ API каталога не является JSON")
	}

	arr := extractFilmArray(gjson.ParseBytes(body))
	if !arr.Exists() {
		return nil, ErrNoFilms
	}

	items := arr.Array()
	films := make([]model.Film, 0, len(items))
	for _, item := range items {
		if !item.IsObject() {
			continue
		}
		films = append(films, convertFilm(item))
	}
	if len(films) == 0 {
		return nil, ErrNoFilms
	}
	return films, nil
}

// extractFilmArray находит массив фильмов в одной из поддерживаемых форм ответа.
func extractFilmArray(root gjson.Result) gjson.Result {
	if root.IsArray() {
		return root
	}
	if !root.IsObject() {
		return gjson.Result{}
	}
	for _, key := range []string{"data", "films"} {
		if v := root.Get(key); v.IsArray() {
			return v
		}
	}

	// Первый член-массив в порядке следования в документе
	var found gjson.Result
	root.ForEach(func(_, value gjson.Result) bool {
		if value.IsArray() {
			found = value
			return false
		}
		return true
	})
	return found
}

// convertFilm приводит запись API к model.Film.
// Пропущенные год, режиссёр, жанр и постер получают значения по умолчанию.
func convertFilm(item gjson.Result) model.Film {
	f := model.DecodeFilmLenient(item)

	f.ID = firstNonEmpty(item.Get("_id").String(), f.ID)
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.Available = true
	if v := item.Get("available"); v.IsBool() {
		f.Available = v.Bool()
	}

	f.ApplyDefaults(time.Now())
	return f
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
