// Пакет model — доменные модели Film Rental.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Значения по умолчанию для необязательных полей фильма.
const (
	DefaultDirector = "Unknown"
	DefaultGenre    = "Uncategorized"
	DefaultPoster   = "https://via.placeholder.com/300x450?text=No+Poster"
)

// ErrTitleRequired — при создании фильма не передано название.
var ErrTitleRequired = errors.New("название фильма обязательно")

// Film — запись каталога фильмов (элемент массива films.json).
type Film struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Year        Year    `json:"year"`
	Director    string  `json:"director"`
	Genre       string  `json:"genre"`
	Runtime     Runtime `json:"runtime"`
	Language    string  `json:"language"`
	Poster      string  `json:"poster"`
	Description string  `json:"description"`
	Price       Amount  `json:"price"`
	// Available переключается персоналом вручную и не зависит от аренд.
	Available bool   `json:"available"`
	Rentals   int    `json:"rentals"`
	Revenue   Amount `json:"revenue"`
}

// Genres разбивает строку жанров по запятой, обрезая пробелы.
func (f *Film) Genres() []string {
	parts := strings.Split(f.Genre, ",")
	genres := make([]string, 0, len(parts))
	for _, p := range parts {
		if g := strings.TrimSpace(p); g != "" {
			genres = append(genres, g)
		}
	}
	return genres
}

// AddRental увеличивает счётчик аренд на 1 и выручку на price.
func (f *Film) AddRental(price decimal.Decimal) {
	f.Rentals++
	f.Revenue = Amount{f.Revenue.Add(price)}
}

// FilmPatch — частичное обновление фильма.
// nil-поле означает «не передано» и не меняет текущее значение.
type FilmPatch struct {
	Title       *string  `json:"title,omitempty"`
	Year        *Year    `json:"year,omitempty"`
	Director    *string  `json:"director,omitempty"`
	Genre       *string  `json:"genre,omitempty"`
	Runtime     *Runtime `json:"runtime,omitempty"`
	Language    *string  `json:"language,omitempty"`
	Poster      *string  `json:"poster,omitempty"`
	Description *string  `json:"description,omitempty"`
	Price       *Amount  `json:"price,omitempty"`
	Available   *bool    `json:"available,omitempty"`
	Rentals     *int     `json:"rentals,omitempty"`
	Revenue     *Amount  `json:"revenue,omitempty"`
}

// Apply накладывает переданные поля на копию f и возвращает результат.
// Идентификатор не меняется никогда.
func (p *FilmPatch) Apply(f Film) Film {
	if p.Title != nil {
		f.Title = *p.Title
	}
	if p.Year != nil {
		f.Year = *p.Year
	}
	if p.Director != nil {
		f.Director = *p.Director
	}
	if p.Genre != nil {
		f.Genre = *p.Genre
	}
	if p.Runtime != nil {
		f.Runtime = *p.Runtime
	}
	if p.Language != nil {
		f.Language = *p.Language
	}
	if p.Poster != nil {
		f.Poster = *p.Poster
	}
	if p.Description != nil {
		f.Description = *p.Description
	}
	if p.Price != nil {
		f.Price = *p.Price
	}
	if p.Available != nil {
		f.Available = *p.Available
	}
	if p.Rentals != nil {
		f.Rentals = *p.Rentals
	}
	if p.Revenue != nil {
		f.Revenue = *p.Revenue
	}
	return f
}

// Validate проверяет значения, которые нельзя сохранить в каталог.
func (p *FilmPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return ErrTitleRequired
	}
	if p.Price != nil && p.Price.IsNegative() {
		return fmt.Errorf("цена не может быть отрицательной")
	}
	if p.Runtime != nil && *p.Runtime < 0 {
		return fmt.Errorf("длительность не может быть отрицательной")
	}
	if p.Rentals != nil && *p.Rentals < 0 {
		return fmt.Errorf("количество аренд не может быть отрицательным")
	}
	return nil
}

// NewFilm создаёт фильм из переданных полей, заполняя пропущенные значениями по умолчанию.
// Название обязательно.
func NewFilm(id string, p FilmPatch, now time.Time) (Film, error) {
	if p.Title == nil || strings.TrimSpace(*p.Title) == "" {
		return Film{}, ErrTitleRequired
	}
	if err := p.Validate(); err != nil {
		return Film{}, err
	}

	f := Film{
		ID:        id,
		Year:      Year(strconv.Itoa(now.Year())),
		Director:  DefaultDirector,
		Genre:     DefaultGenre,
		Poster:    DefaultPoster,
		Available: true,
	}
	f = p.Apply(f)
	f.ApplyDefaults(now)
	return f, nil
}

// ApplyDefaults заполняет пустые год, режиссёра, жанр и постер
// значениями по умолчанию. Пустая строка равносильна пропущенному полю.
func (f *Film) ApplyDefaults(now time.Time) {
	if strings.TrimSpace(string(f.Year)) == "" {
		f.Year = Year(strconv.Itoa(now.Year()))
	}
	if strings.TrimSpace(f.Director) == "" {
		f.Director = DefaultDirector
	}
	if strings.TrimSpace(f.Genre) == "" {
		f.Genre = DefaultGenre
	}
	if strings.TrimSpace(f.Poster) == "" {
		f.Poster = DefaultPoster
	}
}

// DecodeFilmLenient разбирает запись каталога поле за полем.
// Поле неподходящего типа получает нулевое значение, остальные сохраняются.
func DecodeFilmLenient(item gjson.Result) Film {
	f := Film{
		ID:          item.Get("id").String(),
		Title:       item.Get("title").String(),
		Year:        Year(strings.TrimSpace(item.Get("year").String())),
		Director:    item.Get("director").String(),
		Genre:       item.Get("genre").String(),
		Runtime:     RuntimeFromJSON(item.Get("runtime")),
		Language:    item.Get("language").String(),
		Poster:      item.Get("poster").String(),
		Description: item.Get("description").String(),
		Price:       AmountFromJSON(item.Get("price")),
		Available:   item.Get("available").Bool(),
		Rentals:     int(item.Get("rentals").Int()),
		Revenue:     AmountFromJSON(item.Get("revenue")),
	}
	if f.Rentals < 0 {
		f.Rentals = 0
	}
	return f
}

// AmountFromJSON принимает число или числовую строку, иначе 0.
func AmountFromJSON(v gjson.Result) Amount {
	switch v.Type {
	case gjson.Number:
		if a, err := ParseAmount(v.Raw); err == nil {
			return a
		}
	case gjson.String:
		if _, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64); err == nil {
			if a, err := ParseAmount(v.Str); err == nil {
				return a
			}
		}
	}
	return Amount{}
}

// RuntimeFromJSON принимает число или строку вида "136 min", иначе 0.
func RuntimeFromJSON(v gjson.Result) Runtime {
	switch v.Type {
	case gjson.Number:
		return Runtime(v.Int())
	case gjson.String:
		return Runtime(ParseRuntime(v.Str))
	default:
		return 0
	}
}

// Placeholders возвращает встроенный набор из трёх фильмов,
// который отдаётся вместо пустого каталога.
func Placeholders() []Film {
	return []Film{
		{
			ID:          "1",
			Title:       "The Matrix",
			Year:        "1999",
			Director:    "The Wachowskis",
			Genre:       "Action, Sci-Fi",
			Runtime:     136,
			Language:    "English",
			Poster:      "https://m.media-amazon.com/images/I/51EG732BV3L._AC_SY445_.jpg",
			Description: "A computer hacker learns about the true nature of reality and his role in the war against its controllers.",
			Price:       MustAmount("3.99"),
			Available:   true,
		},
		{
			ID:          "2",
			Title:       "Inception",
			Year:        "2010",
			Director:    "Christopher Nolan",
			Genre:       "Action, Adventure, Sci-Fi",
			Runtime:     148,
			Language:    "English",
			Poster:      "https://m.media-amazon.com/images/I/81p+xe8cbnL._AC_SY679_.jpg",
			Description: "A thief who steals corporate secrets through the use of dream-sharing technology is given the inverse task of planting an idea into the mind of a C.E.O.",
			Price:       MustAmount("4.99"),
			Available:   true,
		},
		{
			ID:          "3",
			Title:       "Spirited Away",
			Year:        "2001",
			Director:    "Hayao Miyazaki",
			Genre:       "Animation, Adventure, Family",
			Runtime:     125,
			Language:    "Japanese",
			Poster:      "https://m.media-amazon.com/images/I/51Qvs9i5a%2BL._AC_SY445_.jpg",
			Description: "During her family's move to the suburbs, a sullen 10-year-old girl wanders into a world ruled by gods, witches, and spirits, and where humans are changed into beasts.",
			Price:       MustAmount("3.49"),
			Available:   true,
		},
	}
}

// --- Типы полей с гибким JSON ---

// Amount — денежная сумма. В JSON записывается числом,
// при чтении принимает число, числовую строку, "" и null.
type Amount struct {
	decimal.Decimal
}

// NewAmount оборачивает decimal.Decimal.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{d}
}

// ParseAmount разбирает десятичную строку.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("некорректная сумма %q", s)
	}
	return Amount{d}, nil
}

// MustAmount — ParseAmount для констант, паникует при ошибке.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// MarshalJSON записывает сумму JSON-числом.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// UnmarshalJSON принимает число, числовую строку, пустую строку или null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Year — год выпуска. Хранится строкой, при чтении принимает и число.
type Year string

// UnmarshalJSON принимает строку, число или null.
func (y *Year) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*y = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*y = Year(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("некорректный год: %s", data)
		}
		*y = Year(n.String())
	}
	return nil
}

// Runtime — длительность в минутах. При чтении принимает число
// или строку вида "136" / "136 min".
type Runtime int

// UnmarshalJSON принимает число, строку с ведущими цифрами или null.
func (r *Runtime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Runtime(ParseRuntime(s))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("некорректная длительность: %s", data)
	}
	*r = Runtime(int(f))
	return nil
}

// ParseRuntime извлекает ведущее целое из строки ("148 min" → 148).
// Строка без ведущих цифр даёт 0.
func ParseRuntime(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
