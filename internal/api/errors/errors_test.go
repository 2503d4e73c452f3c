package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter, msg string)
		wantStatus int
		wantCode   string
	}{
		{"ValidationError", ValidationError, http.StatusBadRequest, CodeValidationError},
		{"Unauthorized", Unauthorized, http.StatusUnauthorized, CodeUnauthorized},
		{"InsufficientBalance", InsufficientBalance, http.StatusPaymentRequired, CodeInsufficientBalance},
		{"Forbidden", Forbidden, http.StatusForbidden, CodeForbidden},
		{"NotFound", NotFound, http.StatusNotFound, CodeNotFound},
		{"Conflict", Conflict, http.StatusConflict, CodeConflict},
		{"InvalidTransition", InvalidTransition, http.StatusConflict, CodeInvalidTransition},
		{"RateLimited", RateLimited, http.StatusTooManyRequests, CodeRateLimited},
		{"InternalError", InternalError, http.StatusInternalServerError, CodeInternalError},
		{"ChainUnavailable", ChainUnavailable, http.StatusServiceUnavailable, CodeChainUnavailable},
		{"CatalogUnavailable", CatalogUnavailable, http.StatusServiceUnavailable, CodeCatalogUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w, "сообщение")

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, ожидался %d", w.Code, tt.wantStatus)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var body errorBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("декодирование: %v", err)
			}
			if body.Error.Code != tt.wantCode || body.Error.Message != "сообщение" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}
