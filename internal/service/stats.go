// stats.go — сводная статистика для панели персонала.
package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/filmrental/internal/domain/model"
)

// popularGenresLimit — сколько жанров попадает в топ.
const popularGenresLimit = 5

// GenreCount — жанр и количество фильмов с ним.
type GenreCount struct {
	Genre string `json:"genre"`
	Count int    `json:"count"`
}

// DashboardStats — статистика панели персонала.
type DashboardStats struct {
	TotalFilms       int          `json:"totalFilms"`
	TotalRentals     int          `json:"totalRentals"`
	ActiveRentals    int          `json:"activeRentals"`
	Revenue          model.Amount `json:"revenue"`
	PopularGenres    []GenreCount `json:"popularGenres"`
	TotalGenreCounts int          `json:"totalGenreCounts"`
}

// StatsService считает статистику по каталогу и арендам всех кошельков.
type StatsService struct {
	catalog *CatalogService
	rentals *RentalService
	now     func() time.Time
}

// NewStatsService создаёт сервис статистики.
func NewStatsService(catalog *CatalogService, rentals *RentalService) *StatsService {
	return &StatsService{catalog: catalog, rentals: rentals, now: time.Now}
}

// Dashboard считает статистику.
// totalRentals и revenue — суммы счётчиков фильмов,
// activeRentals — аренды с тегом active и неистёкшим окном.
func (s *StatsService) Dashboard(ctx context.Context) (*DashboardStats, error) {
	films, _ := s.catalog.Current(ctx)

	all, err := s.rentals.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("статистика: %w", err)
	}

	stats := &DashboardStats{TotalFilms: len(films)}
	revenue := decimal.Zero

	var order []string
	counts := make(map[string]int)
	for i := range films {
		stats.TotalRentals += films[i].Rentals
		revenue = revenue.Add(films[i].Revenue.Decimal)
		for _, g := range films[i].Genres() {
			if _, ok := counts[g]; !ok {
				order = append(order, g)
			}
			counts[g]++
			stats.TotalGenreCounts++
		}
	}
	stats.Revenue = model.NewAmount(revenue)

	// Стабильная сортировка: при равенстве — порядок первого появления
	genres := make([]GenreCount, 0, len(order))
	for _, g := range order {
		genres = append(genres, GenreCount{Genre: g, Count: counts[g]})
	}
	slices.SortStableFunc(genres, func(a, b GenreCount) int {
		return b.Count - a.Count
	})
	if len(genres) > popularGenresLimit {
		genres = genres[:popularGenresLimit]
	}
	stats.PopularGenres = genres

	now := s.now()
	for i := range all {
		if all[i].IsActive(now) {
			stats.ActiveRentals++
		}
	}
	return stats, nil
}
