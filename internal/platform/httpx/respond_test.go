package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/troopledger/troopledger/internal/shared"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: bad amount", shared.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: account", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("%w: pair incomplete", shared.ErrIntegrity), http.StatusConflict},
		{shared.ErrInvalidCredentials, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		if rec.Code != tc.status {
			t.Errorf("error %v: status = %d, want %d", tc.err, rec.Code, tc.status)
		}
		if got := rec.Header().Get("Content-Type"); got != "application/problem+json" {
			t.Errorf("content type = %q", got)
		}
		var problem ProblemDetail
		if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
			t.Fatalf("decode problem: %v", err)
		}
		if problem.Status != tc.status {
			t.Errorf("problem status = %d, want %d", problem.Status, tc.status)
		}
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: connection refused"))

	var problem ProblemDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if problem.Detail != "" {
		t.Fatalf("internal error leaked detail %q", problem.Detail)
	}
}
