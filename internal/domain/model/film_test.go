package model

import (
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

func strPtr(s string) *string { return &s }

func TestFilm_UnmarshalFlexibleFields(t *testing.T) {
	raw := `{
		"id": "42", "title": "Alien", "year": 1979, "runtime": "117 min",
		"price": "2.50", "available": true, "rentals": 3, "revenue": 7.5
	}`

	var f Film
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if f.Year != "1979" {
		t.Errorf("Year = %q, ожидался 1979", f.Year)
	}
	if f.Runtime != 117 {
		t.Errorf("Runtime = %d, ожидалось 117", f.Runtime)
	}
	if !f.Price.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("Price = %s, ожидалось 2.5", f.Price)
	}
	if !f.Revenue.Equal(decimal.RequireFromString("7.5")) {
		t.Errorf("Revenue = %s, ожидалось 7.5", f.Revenue)
	}
}

func TestFilm_MarshalAmountAsNumber(t *testing.T) {
	f := Film{ID: "1", Price: MustAmount("3.99")}
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[string]any
	_ = json.Unmarshal(data, &m)
	if price, ok := m["price"].(float64); !ok || price != 3.99 {
		t.Errorf("price = %#v, ожидалось число 3.99", m["price"])
	}
	if revenue, ok := m["revenue"].(float64); !ok || revenue != 0 {
		t.Errorf("revenue = %#v, ожидалось число 0", m["revenue"])
	}
}

func TestAmount_UnmarshalInvalid(t *testing.T) {
	var a Amount
	if err := json.Unmarshal([]byte(`"free"`), &a); err == nil {
		t.Error("ожидалась ошибка для нечисловой цены")
	}
	if err := json.Unmarshal([]byte(`null`), &a); err != nil || !a.IsZero() {
		t.Errorf("null: err=%v, value=%s", err, a)
	}
}

func TestNewFilm_Defaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f, err := NewFilm("abc", FilmPatch{Title: strPtr("Heat")}, now)
	if err != nil {
		t.Fatalf("NewFilm: %v", err)
	}

	if f.ID != "abc" || f.Title != "Heat" {
		t.Errorf("ID/Title = %q/%q", f.ID, f.Title)
	}
	if f.Year != Year(strconv.Itoa(now.Year())) {
		t.Errorf("Year = %q, ожидался текущий год", f.Year)
	}
	if f.Director != DefaultDirector || f.Genre != DefaultGenre || f.Poster != DefaultPoster {
		t.Errorf("значения по умолчанию не заполнены: %+v", f)
	}
	if !f.Available || f.Rentals != 0 || !f.Revenue.IsZero() || !f.Price.IsZero() {
		t.Errorf("available/rentals/revenue/price по умолчанию некорректны: %+v", f)
	}
}

func TestNewFilm_EmptyStringsGetDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	empty := Year("")
	patch := FilmPatch{
		Title:    strPtr("Heat"),
		Year:     &empty,
		Director: strPtr(""),
		Genre:    strPtr("  "),
		Poster:   strPtr(""),
		Language: strPtr(""),
	}

	f, err := NewFilm("abc", patch, now)
	if err != nil {
		t.Fatalf("NewFilm: %v", err)
	}
	if f.Year != "2026" {
		t.Errorf("Year = %q, ожидалось 2026", f.Year)
	}
	if f.Director != DefaultDirector || f.Genre != DefaultGenre || f.Poster != DefaultPoster {
		t.Errorf("пустые строки не заменены значениями по умолчанию: %+v", f)
	}
	if f.Language != "" {
		t.Errorf("Language = %q, у языка нет значения по умолчанию", f.Language)
	}
}

func TestDecodeFilmLenient(t *testing.T) {
	raw := `{
		"id": 7, "title": "Alien", "year": 1979, "runtime": "117 min",
		"price": "N/A", "available": true, "rentals": "4", "revenue": "oops",
		"director": "Ridley Scott"
	}`

	f := DecodeFilmLenient(gjson.Parse(raw))
	if f.ID != "7" || f.Title != "Alien" || f.Year != "1979" {
		t.Errorf("ID/Title/Year = %q/%q/%q", f.ID, f.Title, f.Year)
	}
	if f.Runtime != 117 {
		t.Errorf("Runtime = %d, ожидалось 117", f.Runtime)
	}
	if !f.Price.IsZero() || !f.Revenue.IsZero() {
		t.Errorf("Price/Revenue = %s/%s, ожидались 0", f.Price, f.Revenue)
	}
	if f.Rentals != 4 {
		t.Errorf("Rentals = %d, ожидалось 4", f.Rentals)
	}
	if !f.Available || f.Director != "Ridley Scott" {
		t.Errorf("Available/Director = %v/%q", f.Available, f.Director)
	}
}

func TestNewFilm_TitleRequired(t *testing.T) {
	for _, title := range []*string{nil, strPtr(""), strPtr("   ")} {
		_, err := NewFilm("x", FilmPatch{Title: title}, time.Now())
		if !errors.Is(err, ErrTitleRequired) {
			t.Errorf("title=%v: ожидалась ErrTitleRequired, получено %v", title, err)
		}
	}
}

func TestFilmPatch_ApplyMergesOnlySupplied(t *testing.T) {
	orig := Placeholders()[1]
	newPrice := MustAmount("5.49")
	available := false
	patch := FilmPatch{Price: &newPrice, Available: &available}

	got := patch.Apply(orig)

	if !got.Price.Equal(newPrice.Decimal) || got.Available {
		t.Errorf("переданные поля не применены: %+v", got)
	}
	if got.ID != orig.ID || got.Title != orig.Title || got.Director != orig.Director ||
		got.Genre != orig.Genre || got.Runtime != orig.Runtime || got.Description != orig.Description {
		t.Errorf("непереданные поля изменились: %+v", got)
	}
}

func TestFilmPatch_ValidateNegative(t *testing.T) {
	neg := MustAmount("-1")
	p := FilmPatch{Price: &neg}
	if err := p.Validate(); err == nil {
		t.Error("ожидалась ошибка для отрицательной цены")
	}
}

func TestFilm_Genres(t *testing.T) {
	f := Film{Genre: " Action,Sci-Fi , ,Drama"}
	got := f.Genres()
	want := []string{"Action", "Sci-Fi", "Drama"}
	if len(got) != len(want) {
		t.Fatalf("Genres() = %v, ожидалось %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Genres()[%d] = %q, ожидалось %q", i, got[i], want[i])
		}
	}
}

func TestFilm_AddRental(t *testing.T) {
	f := Film{Rentals: 2, Revenue: MustAmount("0.1")}
	f.AddRental(decimal.RequireFromString("0.2"))

	if f.Rentals != 3 {
		t.Errorf("Rentals = %d, ожидалось 3", f.Rentals)
	}
	// Десятичная арифметика без ошибок округления float
	if f.Revenue.String() != "0.3" {
		t.Errorf("Revenue = %s, ожидалось 0.3", f.Revenue)
	}
}

func TestPlaceholders(t *testing.T) {
	films := Placeholders()
	want := map[string]string{"1": "The Matrix", "2": "Inception", "3": "Spirited Away"}
	if len(films) != 3 {
		t.Fatalf("len = %d, ожидалось 3", len(films))
	}
	for _, f := range films {
		if want[f.ID] != f.Title {
			t.Errorf("фильм %q: title = %q, ожидалось %q", f.ID, f.Title, want[f.ID])
		}
	}

	// Возвращается новая копия
	films[0].Title = "changed"
	if Placeholders()[0].Title != "The Matrix" {
		t.Error("Placeholders() вернул общий срез")
	}
}

func TestParseRuntime(t *testing.T) {
	tests := map[string]int{"148": 148, "136 min": 136, " 90min": 90, "n/a": 0, "": 0}
	for in, want := range tests {
		if got := ParseRuntime(in); got != want {
			t.Errorf("ParseRuntime(%q) = %d, ожидалось %d", in, got, want)
		}
	}
}
