// catalog.go — сервис каталога фильмов.
//
// Каталог хранится в films.json. Для витрины каталог собирается
// с откатом по источникам:
//  1. локальный файл (если в нём есть фильмы)
//  2. удалённый API каталога (результат сохраняется в films.json)
//  3. последняя известная копия в памяти
//  4. встроенный набор-заглушка
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/filmrental/internal/domain/model"
	"github.com/bigkaa/filmrental/internal/repository"
)

// CatalogSource — источник, из которого получен каталог.
type CatalogSource string

const (
	SourceLocal       CatalogSource = "local"
	SourceRemote      CatalogSource = "remote"
	SourceCache       CatalogSource = "cache"
	SourcePlaceholder CatalogSource = "placeholder"
)

var catalogSourceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fr_catalog_source_total",
	Help: "Количество выдач каталога по источнику.",
}, []string{"source"})

// RemoteCatalog — удалённый источник каталога.
type RemoteCatalog interface {
	FetchFilms(ctx context.Context) ([]model.Film, error)
}

// CatalogService — бизнес-логика каталога фильмов.
type CatalogService struct {
	films  repository.FilmRepository
	remote RemoteCatalog
	cache  *CatalogCache
	logger *slog.Logger
	now    func() time.Time
}

// NewCatalogService создаёт сервис каталога.
// remote может быть nil — тогда удалённый источник пропускается.
func NewCatalogService(
	films repository.FilmRepository,
	remote RemoteCatalog,
	cache *CatalogCache,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		films:  films,
		remote: remote,
		cache:  cache,
		logger: logger.With(slog.String("component", "catalog_service")),
		now:    time.Now,
	}
}

// RemoteEnabled — настроен ли удалённый API каталога.
func (s *CatalogService) RemoteEnabled() bool {
	return s.remote != nil
}

// List возвращает содержимое films.json.
// Отсутствующий, пустой файл или пустой массив — набор-заглушка.
// Повреждённый файл — ErrCatalogCorrupt.
func (s *CatalogService) List(ctx context.Context) ([]model.Film, error) {
	films, err := s.films.List(ctx)
	switch {
	case errors.Is(err, repository.ErrNoCatalog):
		return model.Placeholders(), nil
	case errors.Is(err, repository.ErrCorrupt), errors.Is(err, repository.ErrNotList):
		return nil, fmt.Errorf("%w: %w", ErrCatalogCorrupt, err)
	case err != nil:
		return nil, fmt.Errorf("чтение каталога: %w", err)
	}
	if len(films) == 0 {
		return model.Placeholders(), nil
	}
	return films, nil
}

// Current возвращает каталог для витрины с откатом по источникам.
// Никогда не возвращает ошибку: в худшем случае — заглушка.
func (s *CatalogService) Current(ctx context.Context) ([]model.Film, CatalogSource) {
	films, err := s.films.List(ctx)
	if err == nil && len(films) > 0 {
		s.cache.Set(films)
		return s.served(films, SourceLocal)
	}
	if err != nil && !errors.Is(err, repository.ErrNoCatalog) {
		s.logger.Warn("Локальный каталог недоступен", slog.String("error", err.Error()))
	}

	if s.remote != nil {
		films, err := s.fetchAndPersist(ctx)
		if err == nil {
			return s.served(films, SourceRemote)
		}
		s.logger.Warn("Удалённый каталог недоступен", slog.String("error", err.Error()))
	}

	if films, ok := s.cache.Get(); ok {
		return s.served(films, SourceCache)
	}
	return s.served(model.Placeholders(), SourcePlaceholder)
}

func (s *CatalogService) served(films []model.Film, source CatalogSource) ([]model.Film, CatalogSource) {
	catalogSourceTotal.WithLabelValues(string(source)).Inc()
	return films, source
}

// Get возвращает фильм из текущего каталога витрины.
func (s *CatalogService) Get(ctx context.Context, id string) (*model.Film, error) {
	films, _ := s.Current(ctx)
	for i := range films {
		if films[i].ID == id {
			f := films[i]
			return &f, nil
		}
	}
	return nil, fmt.Errorf("фильм %s: %w", id, ErrNotFound)
}

// Sync принудительно загружает каталог из удалённого API и сохраняет его.
// Возвращает количество загруженных фильмов.
func (s *CatalogService) Sync(ctx context.Context) (int, error) {
	if s.remote == nil {
		return 0, ErrRemoteCatalogDisabled
	}
	films, err := s.fetchAndPersist(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Каталог синхронизирован", slog.Int("count", len(films)))
	return len(films), nil
}

// fetchAndPersist загружает каталог из API, записывает в films.json и в кэш.
// Ошибка записи файла логируется, но не отменяет результат.
func (s *CatalogService) fetchAndPersist(ctx context.Context) ([]model.Film, error) {
	films, err := s.remote.FetchFilms(ctx)
	if err != nil {
		return nil, err
	}
	if len(films) == 0 {
		return nil, fmt.Errorf("удалённый каталог пуст")
	}
	if err := s.films.ReplaceAll(ctx, films); err != nil {
		s.logger.Error("Не удалось сохранить удалённый каталог",
			slog.String("error", err.Error()),
		)
	}
	s.cache.Set(films)
	return films, nil
}

// ReplaceAll перезаписывает каталог целиком.
func (s *CatalogService) ReplaceAll(ctx context.Context, films []model.Film) error {
	if films == nil {
		films = []model.Film{}
	}
	if err := s.films.ReplaceAll(ctx, films); err != nil {
		return fmt.Errorf("запись каталога: %w", err)
	}
	s.cache.Set(films)
	s.logger.Info("Каталог перезаписан", slog.Int("count", len(films)))
	return nil
}

// Add добавляет фильм. Пустой id — генерируется UUID.
func (s *CatalogService) Add(ctx context.Context, id string, patch model.FilmPatch) (model.Film, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}

	film, err := model.NewFilm(id, patch, s.now())
	if err != nil {
		return model.Film{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if err := s.films.Add(ctx, film); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return model.Film{}, fmt.Errorf("фильм %s уже существует: %w", id, ErrConflict)
		}
		return model.Film{}, fmt.Errorf("добавление фильма: %w", err)
	}

	s.cache.Invalidate()
	s.logger.Info("Фильм добавлен",
		slog.String("film_id", film.ID),
		slog.String("title", film.Title),
	)
	return film, nil
}

// Update применяет частичное обновление к фильму.
func (s *CatalogService) Update(ctx context.Context, id string, patch model.FilmPatch) (model.Film, error) {
	if err := patch.Validate(); err != nil {
		return model.Film{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	film, err := s.films.Update(ctx, id, patch)
	if err != nil {
		return model.Film{}, mapFilmRepoError(id, err)
	}

	s.cache.Invalidate()
	s.logger.Info("Фильм обновлён", slog.String("film_id", id))
	return film, nil
}

// Delete удаляет фильм и возвращает удалённую запись.
func (s *CatalogService) Delete(ctx context.Context, id string) (model.Film, error) {
	if strings.TrimSpace(id) == "" {
		return model.Film{}, fmt.Errorf("%w: не указан id фильма", ErrValidation)
	}

	film, err := s.films.Delete(ctx, id)
	if err != nil {
		return model.Film{}, mapFilmRepoError(id, err)
	}

	s.cache.Invalidate()
	s.logger.Info("Фильм удалён",
		slog.String("film_id", id),
		slog.String("title", film.Title),
	)
	return film, nil
}

func mapFilmRepoError(id string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("фильм %s: %w", id, ErrNotFound)
	case errors.Is(err, repository.ErrCorrupt), errors.Is(err, repository.ErrNotList):
		return fmt.Errorf("%w: %w", ErrCatalogCorrupt, err)
	default:
		return err
	}
}
