package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dailyledger/internal/core"
)

func TestJSONResponseBuilder(t *testing.T) {
	rec := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusAccepted).
		Header("X-Test", "1").
		Freshness(time.Date(2024, 3, 18, 9, 0, 0, 0, time.UTC), true).
		Data(map[string]string{"hello": "world"}).
		Write(rec)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Test") != "1" || rec.Header().Get("X-Ledger-Loaded-At") != "2024-03-18T09:00:00Z" {
		t.Fatalf("headers = %v", rec.Header())
	}
	if !strings.HasPrefix(rec.Header().Get("Warning"), "110 - ") {
		t.Fatalf("warning = %q", rec.Header().Get("Warning"))
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["hello"] != "world" {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestFromError(t *testing.T) {
	validation := &core.ValidationError{Field: "amount", Value: "-1", Err: core.ErrInvalidAmount}
	tests := []struct {
		name       string
		err        error
		status     int
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{"query validation", validation, http.StatusBadRequest, http.StatusBadRequest, CodeBadRequest, "amount"},
		{"entry validation", fmt.Errorf("append: %w", validation), http.StatusUnprocessableEntity, http.StatusUnprocessableEntity, CodeInvalidEntry, "amount"},
		{"unauthenticated", core.ErrUnauthenticated, http.StatusBadRequest, http.StatusUnauthorized, CodeUnauthorized, ""},
		{"store", &core.StoreError{Op: "read", Err: errors.New("timeout")}, http.StatusBadRequest, http.StatusServiceUnavailable, CodeUnavailable, ""},
		{"other", errors.New("boom"), http.StatusBadRequest, http.StatusInternalServerError, CodeInternal, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			FromError(tt.err, tt.status).Write(rec)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != tt.wantCode || body.Field != tt.wantField {
				t.Fatalf("body = %+v", body)
			}
		})
	}
}

func TestInternalErrorsDoNotLeakDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	FromError(errors.New("dial tcp 10.0.0.5:443: secret host"), http.StatusBadRequest).Write(rec)
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Fatalf("body leaked error detail: %s", rec.Body.String())
	}
}
