package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gatehouse-io/gatehouse/model"
)

func TestWriteError_statusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"bad request", model.NewBadRequestError("nope"), http.StatusBadRequest, model.ErrBadRequest},
		{"unauthorized", model.NewUnauthorizedError("no token"), http.StatusUnauthorized, model.ErrUnauthorized},
		{"authorization", model.NewAuthorizationError("bob", []string{"manager"}, nil), http.StatusForbidden, model.ErrAuthorization},
		{"not found", model.NewNotFoundError("gone"), http.StatusNotFound, model.ErrNotFound},
		{"state not found", model.NewStateNotFoundError("Archived"), http.StatusNotFound, model.ErrStateNotFound},
		{"conflict", model.NewConflictError("stale"), http.StatusConflict, model.ErrConflict},
		{"validation", model.NewValidationError([]model.FieldError{{Field: "amount"}}), http.StatusUnprocessableEntity, model.ErrValidation},
		{"action", model.NewActionError("bad action"), http.StatusUnprocessableEntity, model.ErrActionError},
		{"cascade limit", model.NewCascadeLimitError(10), http.StatusUnprocessableEntity, model.ErrCascadeLimit},
		{"hook", model.NewHookError("notify", errors.New("boom")), http.StatusBadGateway, model.ErrHook},
		{"definition", model.NewDefinitionError("broken"), http.StatusInternalServerError, model.ErrDefinition},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, model.ErrInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var body struct {
				Error *model.ErrorEnvelope `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error == nil || body.Error.Code != tc.wantCode {
				t.Errorf("code = %+v, want %q", body.Error, tc.wantCode)
			}
		})
	}
}

func TestWriteJSON_headers(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"id": "r-1"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}
