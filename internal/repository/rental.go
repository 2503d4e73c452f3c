package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bigkaa/filmrental/internal/domain/model"
	"github.com/bigkaa/filmrental/internal/storage/jsonfile"
)

const (
	rentalFilePrefix = "rentals_"
	rentalFileSuffix = ".json"
)

// WalletRental — аренда с адресом кошелька-владельца (для сводных выборок).
type WalletRental struct {
	Address string
	model.Rental
}

// RentalRepository — интерфейс доступа к арендам по кошелькам.
type RentalRepository interface {
	// List возвращает аренды кошелька. Неизвестный кошелёк — пустой срез.
	List(ctx context.Context, address string) ([]model.Rental, error)
	// Replace перезаписывает список аренд кошелька.
	Replace(ctx context.Context, address string, rentals []model.Rental) error
	// Append добавляет аренду в конец списка кошелька.
	// Если у аренды задан TxHash и он уже записан — возвращает существующую запись и false.
	Append(ctx context.Context, address string, rental model.Rental) (model.Rental, bool, error)
	// All возвращает аренды всех кошельков. Нечитаемые файлы пропускаются.
	All(ctx context.Context) ([]WalletRental, error)
}

// rentalRepo — реализация RentalRepository поверх rentals_<адрес>.json.
type rentalRepo struct {
	dataDir string
	logger  *slog.Logger

	// Мьютекс на каждый кошелёк
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewRentalRepository создаёт репозиторий аренд в каталоге данных dataDir.
func NewRentalRepository(dataDir string, logger *slog.Logger) RentalRepository {
	return &rentalRepo{
		dataDir: dataDir,
		logger:  logger.With(slog.String("component", "rental_repository")),
		locks:   make(map[string]*sync.Mutex),
	}
}

// NormalizeAddress приводит адрес кошелька к ключу хранения:
// нижний регистр, без префикса 0x. Допустимы только латинские буквы и цифры.
func NormalizeAddress(address string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(address))
	key = strings.TrimPrefix(key, "0x")
	if key == "" {
		return "", ErrInvalidAddress
	}
	for _, c := range key {
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') {
			return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}
	}
	return key, nil
}

// RentalFileName возвращает имя файла аренд для ключа кошелька.
func RentalFileName(key string) string {
	return rentalFilePrefix + key + rentalFileSuffix
}

func (r *rentalRepo) List(ctx context.Context, address string) ([]model.Rental, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return r.load(key)
}

func (r *rentalRepo) Replace(ctx context.Context, address string, rentals []model.Rental) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := NormalizeAddress(address)
	if err != nil {
		return err
	}
	if rentals == nil {
		rentals = make([]model.Rental, 0)
	}

	mu := r.lock(key)
	mu.Lock()
	defer mu.Unlock()

	return jsonfile.Write(r.path(key), rentals)
}

func (r *rentalRepo) Append(ctx context.Context, address string, rental model.Rental) (model.Rental, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Rental{}, false, err
	}
	key, err := NormalizeAddress(address)
	if err != nil {
		return model.Rental{}, false, err
	}

	mu := r.lock(key)
	mu.Lock()
	defer mu.Unlock()

	rentals, err := r.load(key)
	if err != nil {
		return model.Rental{}, false, err
	}

	if rental.TxHash != "" {
		for _, existing := range rentals {
			if strings.EqualFold(existing.TxHash, rental.TxHash) {
				return existing, false, nil
			}
		}
	}

	rentals = append(rentals, rental)
	if err := jsonfile.Write(r.path(key), rentals); err != nil {
		return model.Rental{}, false, err
	}
	return rental, true, nil
}

func (r *rentalRepo) All(ctx context.Context) ([]WalletRental, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(r.dataDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make([]WalletRental, 0), nil
		}
		return nil, fmt.Errorf("ошибка чтения каталога данных: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, rentalFilePrefix) || !strings.HasSuffix(name, rentalFileSuffix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]WalletRental, 0)
	for _, name := range names {
		key := strings.TrimSuffix(strings.TrimPrefix(name, rentalFilePrefix), rentalFileSuffix)
		var rentals []model.Rental
		if err := jsonfile.Read(filepath.Join(r.dataDir, name), &rentals); err != nil {
			if errors.Is(err, jsonfile.ErrEmpty) {
				continue
			}
			r.logger.Warn("Файл аренд пропущен",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, rental := range rentals {
			result = append(result, WalletRental{Address: "0x" + key, Rental: rental})
		}
	}
	return result, nil
}

// load читает аренды кошелька. Отсутствующий или пустой файл — пустой срез.
func (r *rentalRepo) load(key string) ([]model.Rental, error) {
	rentals := make([]model.Rental, 0)
	if err := jsonfile.Read(r.path(key), &rentals); err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, jsonfile.ErrEmpty) {
			return make([]model.Rental, 0), nil
		}
		return nil, fmt.Errorf("%s: %w: %v", RentalFileName(key), ErrCorrupt, err)
	}
	if rentals == nil {
		rentals = make([]model.Rental, 0)
	}
	return rentals, nil
}

func (r *rentalRepo) path(key string) string {
	return filepath.Join(r.dataDir, RentalFileName(key))
}

// lock возвращает мьютекс кошелька, создавая его при первом обращении.
func (r *rentalRepo) lock(key string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	mu, ok := r.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[key] = mu
	}
	return mu
}
