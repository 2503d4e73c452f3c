package openapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoad(t *testing.T) {
	doc, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if doc.Info == nil || doc.Info.Title != "Film Rental API" {
		t.Errorf("Info.Title = %v, ожидалось Film Rental API", doc.Info)
	}

	// Маршруты сервера должны присутствовать в контракте
	routes := map[string][]string{
		"/api/films":                {http.MethodGet, http.MethodPost},
		"/api/films/add":            {http.MethodPost},
		"/api/films/update/{id}":    {http.MethodPut},
		"/api/films/delete":         {http.MethodDelete},
		"/api/films/{id}":           {http.MethodGet},
		"/api/catalog":              {http.MethodGet},
		"/api/catalog/sync":         {http.MethodPost},
		"/api/rentals":              {http.MethodGet, http.MethodPost},
		"/api/rentals/record":       {http.MethodPost},
		"/api/rentals/all":          {http.MethodGet},
		"/api/rentals/stats":        {http.MethodGet},
		"/api/payments":             {http.MethodPost},
		"/api/payments/{id}":        {http.MethodGet},
		"/api/payments/{id}/submit": {http.MethodPost},
		"/api/payments/{id}/reject": {http.MethodPost},
		"/api/payments/{id}/fail":   {http.MethodPost},
		"/api/login":                {http.MethodPost},
		"/api/me":                   {http.MethodGet},
		"/api/change-password":      {http.MethodPost},
		"/health/live":              {http.MethodGet},
		"/health/ready":             {http.MethodGet},
		"/metrics":                  {http.MethodGet},
		"/api/openapi.yaml":         {http.MethodGet},
	}

	for path, methods := range routes {
		item := doc.Paths.Value(path)
		if item == nil {
			t.Errorf("путь %s отсутствует в контракте", path)
			continue
		}
		for _, m := range methods {
			if item.GetOperation(m) == nil {
				t.Errorf("%s %s отсутствует в контракте", m, path)
			}
		}
	}

	if doc.Paths.Len() != len(routes) {
		t.Errorf("путей в контракте %d, ожидалось %d", doc.Paths.Len(), len(routes))
	}
}

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/openapi.yaml", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d, ожидался 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.Len() != len(Spec()) {
		t.Errorf("тело %d байт, ожидалось %d", rec.Body.Len(), len(Spec()))
	}
}
