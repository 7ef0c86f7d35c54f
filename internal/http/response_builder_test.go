package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"cariya/internal/core"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/users/x").
		Data(map[string]int{"n": 1}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if w.Header().Get("Content-Type") != "application/json" || w.Header().Get("Location") != "/users/x" {
		t.Errorf("unexpected headers %v", w.Header())
	}
	var got map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got["n"] != 1 {
		t.Errorf("Body = %q (%v)", w.Body.String(), err)
	}
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad phone", core.ErrInvalidFormat), http.StatusBadRequest},
		{fmt.Errorf("%w: negative", core.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: user x", core.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: phone taken", core.ErrConflict), http.StatusConflict},
		{fmt.Errorf("%w: %w", core.ErrUnrecoverable, errors.New("disk")), http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestErrorFromHidesServerErrors(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorFrom(context.Background(), fmt.Errorf("%w: secret path /var/db", core.ErrUnrecoverable)).Write(w)

	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.Code != http.StatusInternalServerError || body.Error != "internal server error" {
		t.Fatalf("got %d %+v", w.Code, body)
	}

	w = httptest.NewRecorder()
	ErrorFrom(context.Background(), fmt.Errorf("%w: month must be between 1 and 4", core.ErrInvalidInput)).Write(w)
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.Code != http.StatusBadRequest || body.Error != "invalid input: month must be between 1 and 4" {
		t.Fatalf("got %d %+v", w.Code, body)
	}
}
