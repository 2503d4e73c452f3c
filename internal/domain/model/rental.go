package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RentalPeriod — окно аренды: фильм доступен 7 суток с момента оплаты.
const RentalPeriod = 7 * 24 * time.Hour

// Значения по умолчанию для денормализованных полей аренды.
const (
	DefaultRentalPoster = "https://via.placeholder.com/300x450?text=Film"
)

// RentalStatus — сохранённый тег статуса аренды.
// Не является источником истины: актуальность определяется по ExpiresAt.
type RentalStatus string

const (
	RentalActive  RentalStatus = "active"
	RentalExpired RentalStatus = "expired"
)

// Rental — запись об аренде фильма кошельком.
type Rental struct {
	// ID — "<filmId>-<unix millis>"
	ID     string `json:"id"`
	FilmID string `json:"filmId"`
	// Title и Poster копируются из фильма в момент аренды и могут устареть.
	Title     string       `json:"title"`
	Poster    string       `json:"poster"`
	RentedAt  time.Time    `json:"rentedAt"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Status    RentalStatus `json:"status"`
	Price     PriceString  `json:"price"`
	// TxHash — хэш платёжной транзакции (если аренда оформлена через оплату).
	TxHash string `json:"txHash,omitempty"`
}

// NewRental создаёт активную аренду с окном RentalPeriod от now.
func NewRental(filmID, title, poster string, price PriceString, now time.Time) Rental {
	rentedAt := now.UTC().Truncate(time.Millisecond)
	if strings.TrimSpace(title) == "" {
		title = "Film " + filmID
	}
	if strings.TrimSpace(poster) == "" {
		poster = DefaultRentalPoster
	}
	return Rental{
		ID:        fmt.Sprintf("%s-%d", filmID, rentedAt.UnixMilli()),
		FilmID:    filmID,
		Title:     title,
		Poster:    poster,
		RentedAt:  rentedAt,
		ExpiresAt: rentedAt.Add(RentalPeriod),
		Status:    RentalActive,
		Price:     price,
	}
}

// IsCurrent — аренда действует строго до ExpiresAt.
func (r *Rental) IsCurrent(now time.Time) bool {
	return r.ExpiresAt.After(now)
}

// IsActive — тег active и окно ещё не истекло (для статистики дашборда).
func (r *Rental) IsActive(now time.Time) bool {
	return r.Status == RentalActive && r.IsCurrent(now)
}

// SplitRentals разделяет аренды на текущие и прошедшие относительно now.
func SplitRentals(rentals []Rental, now time.Time) (current, past []Rental) {
	current = make([]Rental, 0)
	past = make([]Rental, 0)
	for _, r := range rentals {
		if r.IsCurrent(now) {
			current = append(current, r)
		} else {
			past = append(past, r)
		}
	}
	return current, past
}

// PriceString — цена аренды, хранится десятичной строкой ("0.02").
// При чтении принимает и JSON-число.
type PriceString string

// UnmarshalJSON принимает строку, число или null.
func (p *PriceString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*p = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PriceString(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("некорректная цена: %s", data)
		}
		*p = PriceString(n.String())
	}
	return nil
}

// Amount разбирает цену в десятичное значение.
func (p PriceString) Amount() (Amount, error) {
	return ParseAmount(string(p))
}
