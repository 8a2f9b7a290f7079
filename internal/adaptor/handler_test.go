package adaptor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"bus-booking/internal/domain"
	"bus-booking/pkg/utils"

	"go.uber.org/zap"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", &domain.ValidationError{Field: "amount", Msg: "must be positive"}, http.StatusBadRequest},
		{"bad reference", fmt.Errorf("%w: x", domain.ErrInvalidReference), http.StatusBadRequest},
		{"signature", domain.ErrInvalidSignature, http.StatusUnauthorized},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden},
		{"booking not found", domain.ErrBookingNotFound, http.StatusNotFound},
		{"payout not found", fmt.Errorf("find: %w", domain.ErrPayoutNotFound), http.StatusNotFound},
		{"state", &domain.InvalidStateTransitionError{Entity: "booking", Current: "pending", Expected: "confirmed"}, http.StatusConflict},
		{"sold out", domain.ErrNoSeatsAvailable, http.StatusConflict},
		{"insufficient", fmt.Errorf("debit: %w", domain.ErrInsufficientBalance), http.StatusConflict},
		{"window", domain.ErrCancellationWindowClosed, http.StatusConflict},
		{"credential", &domain.CredentialInvalidError{Reason: domain.CredentialUsed}, http.StatusUnprocessableEntity},
		{"gateway", fmt.Errorf("%w: timeout", domain.ErrGatewayUnavailable), http.StatusBadGateway},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, zap.NewNop(), tt.err, "test")
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}

func TestWriteErrorBodies(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, zap.NewNop(), fmt.Errorf("%w: timeout", domain.ErrGatewayUnavailable), "test")

	var resp utils.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status || !resp.Retryable {
		t.Fatalf("gateway error body = %+v", resp)
	}

	rec = httptest.NewRecorder()
	writeError(rec, zap.NewNop(), &domain.CredentialInvalidError{Reason: domain.CredentialExpired}, "test")
	var body struct {
		Data map[string]string `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data["reason"] != domain.CredentialExpired {
		t.Fatalf("reason = %q", body.Data["reason"])
	}
}
