package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bus-booking/internal/data/memstore"
	"bus-booking/internal/gateway"
	"bus-booking/internal/usecase"
	"bus-booking/pkg/middleware"
	"bus-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const webhookSecret = "whsec_wire"

type stubGateway struct {
	mu       sync.Mutex
	statuses map[string]gateway.Status
}

func (g *stubGateway) InitiateCheckout(_ context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	return &gateway.CheckoutSession{CheckoutURL: "https://pay.test/" + req.Reference, Reference: req.Reference}, nil
}

func (g *stubGateway) VerifyPayment(_ context.Context, ref string) (gateway.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.statuses[ref]; ok {
		return st, nil
	}
	return gateway.StatusPending, nil
}

func (g *stubGateway) InitiatePayout(_ context.Context, req gateway.PayoutRequest) (string, error) {
	return "REF-" + req.ChargeID, nil
}

func (g *stubGateway) VerifyPayout(context.Context, string) (gateway.Status, error) {
	return gateway.StatusPending, nil
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	srv *httptest.Server
	gw  *stubGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	sealer, err := utils.NewSealer(strings.Repeat("11", 32))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	config := &utils.Config{
		Booking: utils.BookingConfig{
			PlatformFee:        1000,
			Currency:           "MWK",
			CancellationWindow: 24 * time.Hour,
			BoardingGrace:      time.Hour,
			PendingTimeout:     15 * time.Minute,
			SweepInterval:      time.Minute,
			SweepBatchSize:     10,
		},
		Gateway: utils.GatewayConfig{WebhookSecret: webhookSecret},
	}
	gw := &stubGateway{statuses: make(map[string]gateway.Status)}
	app := Wiring(memstore.New(zap.NewNop()).Repository(), config, usecase.Deps{
		Payments: gw,
		Payouts:  gw,
		Sealer:   sealer,
	}, zap.NewNop())

	srv := httptest.NewServer(app.Router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, gw: gw}
}

func (ts *testServer) do(t *testing.T, method, path string, actor *utils.Actor, body any, headers map[string]string) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set(middleware.HeaderActorID, actor.ID.String())
		req.Header.Set(middleware.HeaderActorRole, actor.Role)
		if actor.CompanyID != uuid.Nil {
			req.Header.Set(middleware.HeaderActorCompany, actor.CompanyID.String())
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env
}

func decodeData(t *testing.T, env envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := ts.srv.Client().Get(ts.srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestBookingFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	adminActor := &utils.Actor{ID: uuid.New(), Role: utils.RoleAdmin}
	companyID := uuid.New()
	rider := &utils.Actor{ID: uuid.New(), Role: utils.RolePassenger}

	dep := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second)
	code, env := ts.do(t, http.MethodPost, "/api/admin/schedules", adminActor, map[string]any{
		"company_id":     companyID.String(),
		"bus_id":         uuid.NewString(),
		"route_id":       uuid.NewString(),
		"departure_time": dep,
		"arrival_time":   dep.Add(4 * time.Hour),
		"price":          9000,
		"total_seats":    1,
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("create schedule: %d %s", code, env.Message)
	}
	var schedule struct {
		ID string `json:"id"`
	}
	decodeData(t, env, &schedule)

	code, env = ts.do(t, http.MethodPost, "/api/bookings", rider, map[string]string{"schedule_id": schedule.ID}, nil)
	if code != http.StatusCreated {
		t.Fatalf("create booking: %d %s", code, env.Message)
	}
	var booking struct {
		ID          string `json:"id"`
		TxRef       string `json:"tx_ref"`
		CheckoutURL string `json:"checkout_url"`
	}
	decodeData(t, env, &booking)
	if booking.CheckoutURL == "" {
		t.Fatalf("no checkout url")
	}

	// the only seat is taken
	code, _ = ts.do(t, http.MethodPost, "/api/bookings", &utils.Actor{ID: uuid.New(), Role: utils.RolePassenger},
		map[string]string{"schedule_id": schedule.ID}, nil)
	if code != http.StatusConflict {
		t.Fatalf("sold out booking: %d, want 409", code)
	}

	// unsigned webhook is refused
	body, _ := json.Marshal(map[string]string{"tx_ref": booking.TxRef, "status": "success"})
	code, _ = ts.do(t, http.MethodPost, "/api/payments/webhook", nil, body, map[string]string{"Signature": "bogus"})
	if code != http.StatusUnauthorized {
		t.Fatalf("unsigned webhook: %d, want 401", code)
	}

	sig := utils.SignPayload(webhookSecret, body)
	code, env = ts.do(t, http.MethodPost, "/api/payments/webhook", nil, body, map[string]string{"Signature": sig})
	if code != http.StatusOK {
		t.Fatalf("webhook: %d %s", code, env.Message)
	}
	var result struct {
		Result string `json:"result"`
		Status string `json:"booking_status"`
	}
	decodeData(t, env, &result)
	if result.Result != "applied" || result.Status != "confirmed" {
		t.Fatalf("result = %+v", result)
	}

	// the redirect arrives after the webhook
	ts.gw.mu.Lock()
	ts.gw.statuses[booking.TxRef] = gateway.StatusSuccess
	ts.gw.mu.Unlock()
	code, env = ts.do(t, http.MethodGet, "/api/payments/callback?tx_ref="+booking.TxRef, nil, nil, nil)
	if code != http.StatusOK {
		t.Fatalf("callback: %d %s", code, env.Message)
	}
	decodeData(t, env, &result)
	if result.Result != "already_applied" {
		t.Fatalf("callback result = %s", result.Result)
	}

	code, env = ts.do(t, http.MethodPost, "/api/bookings/"+booking.ID+"/credential", rider, nil, nil)
	if code != http.StatusOK {
		t.Fatalf("issue credential: %d %s", code, env.Message)
	}
	var cred struct {
		Credential string `json:"credential"`
	}
	decodeData(t, env, &cred)

	// boarding opens at departure, so an early scan is refused without mutation
	conductorActor := &utils.Actor{ID: uuid.New(), Role: utils.RoleConductor, CompanyID: companyID}
	code, env = ts.do(t, http.MethodPost, "/api/boarding/validate", conductorActor, map[string]string{"credential": cred.Credential}, nil)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("early scan: %d, want 422", code)
	}
	var reason map[string]string
	decodeData(t, env, &reason)
	if reason["reason"] != "not_yet_valid" {
		t.Fatalf("reason = %v", reason)
	}

	companyActor := &utils.Actor{ID: uuid.New(), Role: utils.RoleCompany, CompanyID: companyID}
	code, env = ts.do(t, http.MethodGet, "/api/companies/"+companyID.String()+"/account", companyActor, nil, nil)
	if code != http.StatusOK {
		t.Fatalf("account: %d %s", code, env.Message)
	}
	var account struct {
		Balance int64 `json:"balance"`
	}
	decodeData(t, env, &account)
	if account.Balance != 8000 {
		t.Fatalf("balance = %d, want 8000", account.Balance)
	}
}

func TestRoleGates(t *testing.T) {
	ts := newTestServer(t)

	code, _ := ts.do(t, http.MethodPost, "/api/bookings", nil, map[string]string{"schedule_id": uuid.NewString()}, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("anonymous booking: %d, want 401", code)
	}

	conductorActor := &utils.Actor{ID: uuid.New(), Role: utils.RoleConductor}
	code, _ = ts.do(t, http.MethodPost, "/api/bookings", conductorActor, map[string]string{"schedule_id": uuid.NewString()}, nil)
	if code != http.StatusForbidden {
		t.Fatalf("conductor booking: %d, want 403", code)
	}

	rider := &utils.Actor{ID: uuid.New(), Role: utils.RolePassenger}
	code, _ = ts.do(t, http.MethodPost, "/api/admin/schedules/"+uuid.NewString()+"/cancel", rider, nil, nil)
	if code != http.StatusForbidden {
		t.Fatalf("passenger cancelling schedule: %d, want 403", code)
	}

	code, _ = ts.do(t, http.MethodGet, "/api/bookings/"+uuid.NewString(), rider, nil, nil)
	if code != http.StatusNotFound {
		t.Fatalf("missing booking: %d, want 404", code)
	}

	code, _ = ts.do(t, http.MethodGet, "/api/payments/callback?tx_ref=nonsense", nil, nil, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("bad reference: %d, want 400", code)
	}
}
