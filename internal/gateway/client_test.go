package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bus-booking/internal/domain"
	"bus-booking/pkg/utils"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(utils.GatewayConfig{
		BaseURL:     srv.URL,
		APIKey:      "sk-test",
		CallbackURL: "http://localhost/api/payments/callback",
		ReturnURL:   "http://localhost/api/payments/failed",
		Timeout:     2 * time.Second,
	}, zap.NewNop())
}

func TestInitiateCheckout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payment" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}

		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["tx_ref"] != "BOOKING-1" || body["amount"] != "15000" {
			t.Errorf("unexpected body %v", body)
		}

		w.Write([]byte(`{"status":"success","data":{"checkout_url":"https://pay.example/c/1"}}`))
	})

	session, err := client.InitiateCheckout(context.Background(), CheckoutRequest{
		Amount: 15000, Currency: "MWK", Reference: "BOOKING-1",
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if session.CheckoutURL != "https://pay.example/c/1" {
		t.Fatalf("checkout url = %s", session.CheckoutURL)
	}
}

func TestGatewayErrorsAreRetryable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.InitiateCheckout(context.Background(), CheckoutRequest{Amount: 1, Reference: "x"})
	if !errors.Is(err, domain.ErrGatewayUnavailable) || !domain.IsRetryable(err) {
		t.Fatalf("err = %v, want retryable ErrGatewayUnavailable", err)
	}
}

func TestVerifyPaymentNormalisesStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify-payment/BOOKING-2" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"status":"success","data":{"status":"Successful"}}`))
	})

	status, err := client.VerifyPayment(context.Background(), "BOOKING-2")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if status != StatusSuccess {
		t.Fatalf("status = %s", status)
	}
}

func TestInitiatePayoutReadsRefID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"transaction":{"ref_id":"REF-77","status":"pending"}}}`))
	})

	ref, err := client.InitiatePayout(context.Background(), PayoutRequest{Amount: 5000, ChargeID: "PAYOUT-1"})
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if ref != "REF-77" {
		t.Fatalf("ref = %s", ref)
	}
}

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"success":   StatusSuccess,
		"COMPLETED": StatusSuccess,
		"declined":  StatusFailed,
		"canceled":  StatusCancelled,
		"expired":   StatusExpired,
		"pending":   StatusPending,
	}
	for raw, want := range cases {
		got, err := ParseStatus(raw)
		if err != nil || got != want {
			t.Fatalf("ParseStatus(%q) = %s, %v", raw, got, err)
		}
	}
	if _, err := ParseStatus("weird"); !errors.Is(err, domain.ErrUnknownStatus) {
		t.Fatalf("unknown status err = %v", err)
	}
}
