package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/bigkaa/filmrental/internal/domain/model"
	"github.com/bigkaa/filmrental/internal/storage/jsonfile"
)

// FilmsFileName — имя файла каталога в каталоге данных.
const FilmsFileName = "films.json"

// FilmRepository — интерфейс доступа к каталогу фильмов.
type FilmRepository interface {
	// List возвращает все фильмы. Отсутствующий или пустой файл — ErrNoCatalog,
	// "[]" — пустой срез без ошибки.
	List(ctx context.Context) ([]model.Film, error)
	// Get возвращает фильм по ID.
	Get(ctx context.Context, id string) (*model.Film, error)
	// Add добавляет фильм в конец каталога.
	Add(ctx context.Context, film model.Film) error
	// Update применяет частичное обновление к фильму и возвращает результат.
	Update(ctx context.Context, id string, patch model.FilmPatch) (model.Film, error)
	// Delete удаляет фильм и возвращает удалённую запись.
	Delete(ctx context.Context, id string) (model.Film, error)
	// ReplaceAll перезаписывает каталог целиком.
	ReplaceAll(ctx context.Context, films []model.Film) error
	// Modify выполняет read-modify-write каталога под блокировкой.
	Modify(ctx context.Context, fn func(films []model.Film) ([]model.Film, error)) error
}

// filmRepo — реализация FilmRepository поверх films.json.
type filmRepo struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFilmRepository создаёт репозиторий каталога в каталоге данных dataDir.
func NewFilmRepository(dataDir string, logger *slog.Logger) FilmRepository {
	return &filmRepo{
		path:   filepath.Join(dataDir, FilmsFileName),
		logger: logger.With(slog.String("component", "film_repository")),
	}
}

func (r *filmRepo) List(ctx context.Context) ([]model.Film, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.load()
}

func (r *filmRepo) Get(ctx context.Context, id string) (*model.Film, error) {
	films, err := r.List(ctx)
	if err != nil {
		if errors.Is(err, ErrNoCatalog) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	for i := range films {
		if films[i].ID == id {
			return &films[i], nil
		}
	}
	return nil, ErrNotFound
}

func (r *filmRepo) Add(ctx context.Context, film model.Film) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	films, err := r.load()
	if err != nil {
		// Отсутствующий файл, невалидный JSON или не-массив заменяются новым списком.
		// Валидный массив load всегда возвращает без ошибки.
		if !errors.Is(err, ErrNoCatalog) && !errors.Is(err, ErrNotList) && !errors.Is(err, ErrCorrupt) {
			return err
		}
		films = make([]model.Film, 0, 1)
	}

	for i := range films {
		if films[i].ID == film.ID {
			return fmt.Errorf("фильм %s: %w", film.ID, ErrAlreadyExists)
		}
	}

	return r.save(append(films, film))
}

func (r *filmRepo) Update(ctx context.Context, id string, patch model.FilmPatch) (model.Film, error) {
	var updated model.Film
	err := r.Modify(ctx, func(films []model.Film) ([]model.Film, error) {
		for i := range films {
			if films[i].ID == id {
				films[i] = patch.Apply(films[i])
				updated = films[i]
				return films, nil
			}
		}
		return nil, ErrNotFound
	})
	return updated, err
}

func (r *filmRepo) Delete(ctx context.Context, id string) (model.Film, error) {
	var deleted model.Film
	err := r.Modify(ctx, func(films []model.Film) ([]model.Film, error) {
		for i := range films {
			if films[i].ID == id {
				deleted = films[i]
				return append(films[:i:i], films[i+1:]...), nil
			}
		}
		return nil, ErrNotFound
	})
	return deleted, err
}

func (r *filmRepo) ReplaceAll(ctx context.Context, films []model.Film) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if films == nil {
		films = make([]model.Film, 0)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(films)
}

// Modify читает каталог, передаёт его в fn и записывает результат.
// Если fn вернула ошибку, файл не меняется.
// Отсутствующий каталог даёт ErrNotFound.
func (r *filmRepo) Modify(ctx context.Context, fn func(films []model.Film) ([]model.Film, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	films, err := r.load()
	if err != nil {
		if errors.Is(err, ErrNoCatalog) {
			return ErrNotFound
		}
		return err
	}

	result, err := fn(films)
	if err != nil {
		return err
	}
	return r.save(result)
}

// load читает и разбирает films.json.
// Каждая запись разбирается отдельно: запись с полями неподходящего типа
// декодируется поле за полем, не-объект пропускается. Обе ситуации логируются.
func (r *filmRepo) load() ([]model.Film, error) {
	data, err := jsonfile.ReadRaw(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, jsonfile.ErrEmpty) {
			return nil, ErrNoCatalog
		}
		return nil, err
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("%s: %w", FilmsFileName, ErrCorrupt)
	}
	if trimmed := bytes.TrimSpace(data); trimmed[0] != '[' {
		return nil, ErrNotList
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", FilmsFileName, ErrCorrupt, err)
	}

	films := make([]model.Film, 0, len(raw))
	for i, item := range raw {
		var f model.Film
		err := json.Unmarshal(item, &f)
		if err == nil {
			films = append(films, f)
			continue
		}

		parsed := gjson.ParseBytes(item)
		if !parsed.IsObject() {
			r.logger.Warn("Запись каталога не является объектом, пропущена",
				slog.Int("index", i),
			)
			continue
		}
		f = model.DecodeFilmLenient(parsed)
		r.logger.Warn("Запись каталога с некорректными полями",
			slog.Int("index", i),
			slog.String("id", f.ID),
			slog.String("error", err.Error()),
		)
		films = append(films, f)
	}
	return films, nil
}

func (r *filmRepo) save(films []model.Film) error {
	return jsonfile.Write(r.path, films)
}
