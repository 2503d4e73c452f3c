// rental.go — сервис учёта аренд.
//
// Запись аренды выполняется в два шага без общей атомарности:
//  1. аренда дописывается в файл кошелька
//  2. у фильма увеличиваются счётчики rentals и revenue, каталог перезаписывается
//
// Сбой второго шага логируется и отражается в RecordResult.FilmUpdated.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/filmrental/internal/domain/model"
	"github.com/bigkaa/filmrental/internal/repository"
)

var rentalsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "fr_rentals_recorded_total",
	Help: "Общее количество записанных аренд.",
})

// Представления списка аренд кошелька.
const (
	ViewAll     = ""
	ViewCurrent = "current"
	ViewPast    = "past"
)

// errFilmNotInCatalog — фильм аренды отсутствует в каталоге.
var errFilmNotInCatalog = errors.New("фильм отсутствует в каталоге")

// RecordRequest — параметры записи аренды.
type RecordRequest struct {
	Address string
	FilmID  string
	Price   model.PriceString
	Title   string
	Poster  string
	TxHash  string
}

// RecordResult — результат записи аренды.
type RecordResult struct {
	Rental model.Rental
	// Created — false, если аренда с тем же TxHash уже была записана
	Created bool
	// FilmUpdated — счётчики фильма обновлены
	FilmUpdated bool
}

// RentalService — бизнес-логика аренд.
type RentalService struct {
	rentals repository.RentalRepository
	films   repository.FilmRepository
	logger  *slog.Logger
	now     func() time.Time
}

// NewRentalService создаёт сервис аренд.
func NewRentalService(
	rentals repository.RentalRepository,
	films repository.FilmRepository,
	logger *slog.Logger,
) *RentalService {
	return &RentalService{
		rentals: rentals,
		films:   films,
		logger:  logger.With(slog.String("component", "rental_service")),
		now:     time.Now,
	}
}

// Record записывает аренду и обновляет счётчики фильма.
func (s *RentalService) Record(ctx context.Context, req RecordRequest) (*RecordResult, error) {
	if strings.TrimSpace(req.Address) == "" {
		return nil, fmt.Errorf("%w: не указан адрес кошелька", ErrValidation)
	}
	if _, err := repository.NormalizeAddress(req.Address); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	filmID := strings.TrimSpace(req.FilmID)
	if filmID == "" {
		return nil, fmt.Errorf("%w: не указан filmId", ErrValidation)
	}
	if strings.TrimSpace(string(req.Price)) == "" {
		return nil, fmt.Errorf("%w: не указана цена", ErrValidation)
	}
	price, err := req.Price.Amount()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if price.IsNegative() {
		return nil, fmt.Errorf("%w: цена не может быть отрицательной", ErrValidation)
	}

	rental := model.NewRental(filmID, req.Title, req.Poster, req.Price, s.now())
	rental.TxHash = strings.TrimSpace(req.TxHash)

	stored, created, err := s.rentals.Append(ctx, req.Address, rental)
	if err != nil {
		return nil, mapRentalRepoError(err)
	}

	result := &RecordResult{Rental: stored, Created: created}
	if !created {
		s.logger.Info("Аренда с этим txHash уже записана",
			slog.String("rental_id", stored.ID),
			slog.String("tx_hash", stored.TxHash),
		)
		return result, nil
	}
	rentalsRecordedTotal.Inc()

	err = s.films.Modify(ctx, func(films []model.Film) ([]model.Film, error) {
		for i := range films {
			if films[i].ID == filmID {
				films[i].AddRental(price.Decimal)
				return films, nil
			}
		}
		return nil, errFilmNotInCatalog
	})
	switch {
	case err == nil:
		result.FilmUpdated = true
	case errors.Is(err, errFilmNotInCatalog), errors.Is(err, repository.ErrNotFound):
		s.logger.Warn("Фильм не найден в каталоге, счётчики не обновлены",
			slog.String("film_id", filmID),
		)
	default:
		s.logger.Error("Ошибка обновления счётчиков фильма",
			slog.String("film_id", filmID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Аренда записана",
		slog.String("rental_id", stored.ID),
		slog.String("film_id", filmID),
		slog.String("price", string(stored.Price)),
		slog.Bool("film_updated", result.FilmUpdated),
	)
	return result, nil
}

// List возвращает аренды кошелька в указанном представлении.
func (s *RentalService) List(ctx context.Context, address, view string) ([]model.Rental, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("%w: не указан адрес кошелька", ErrValidation)
	}
	if view != ViewAll && view != ViewCurrent && view != ViewPast {
		return nil, fmt.Errorf("%w: недопустимое значение view %q, допустимые: current, past", ErrValidation, view)
	}

	rentals, err := s.rentals.List(ctx, address)
	if err != nil {
		return nil, mapRentalRepoError(err)
	}

	current, past := model.SplitRentals(rentals, s.now())
	switch view {
	case ViewCurrent:
		return current, nil
	case ViewPast:
		return past, nil
	default:
		return rentals, nil
	}
}

// Replace перезаписывает список аренд кошелька.
func (s *RentalService) Replace(ctx context.Context, address string, rentals []model.Rental) error {
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("%w: не указан адрес кошелька", ErrValidation)
	}
	if rentals == nil {
		rentals = []model.Rental{}
	}
	if err := s.rentals.Replace(ctx, address, rentals); err != nil {
		return mapRentalRepoError(err)
	}
	s.logger.Info("Аренды кошелька перезаписаны", slog.Int("count", len(rentals)))
	return nil
}

// All возвращает аренды всех кошельков.
func (s *RentalService) All(ctx context.Context) ([]repository.WalletRental, error) {
	all, err := s.rentals.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("чтение аренд: %w", err)
	}
	return all, nil
}

// HasCurrentRental — есть ли у кошелька действующая аренда фильма.
func (s *RentalService) HasCurrentRental(ctx context.Context, address, filmID string) (bool, error) {
	rentals, err := s.rentals.List(ctx, address)
	if err != nil {
		return false, mapRentalRepoError(err)
	}
	now := s.now()
	for i := range rentals {
		if rentals[i].FilmID == filmID && rentals[i].IsCurrent(now) {
			return true, nil
		}
	}
	return false, nil
}

func mapRentalRepoError(err error) error {
	if errors.Is(err, repository.ErrInvalidAddress) {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return err
}
