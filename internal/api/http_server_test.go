package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gearrent/internal/config"
	"gearrent/internal/lock"
	"gearrent/internal/models"
	"gearrent/internal/pricing"
	"gearrent/internal/repository"
	"gearrent/internal/retry"
	"gearrent/internal/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testCatalog() *config.Catalog {
	return &config.Catalog{
		Categories: []models.CategoryPricing{
			{ID: 1, Name: "Cameras", BasePriceFactor: dec("1.5"), WeekendFactor: dec("1.2"), DefaultLateFee: dec("500.00")},
		},
		Equipment: []models.EquipmentOffer{
			{ID: 5, Code: "CAM-005", BranchID: 2, CategoryID: 1, DailyBasePrice: dec("1000.00"), SecurityDeposit: dec("2000.00")},
			{ID: 6, Code: "CAM-006", BranchID: 2, CategoryID: 1, DailyBasePrice: dec("1000.00"), SecurityDeposit: dec("4000.00")},
		},
		Customers: []models.CustomerProfile{
			{ID: 9, Name: "Ann", Tier: models.TierGold, DepositLimit: dec("5000.00")},
		},
	}
}

func newTestServer(t *testing.T, cfg config.APIConfig) *httptest.Server {
	t.Helper()
	store := repository.NewMemoryStore()
	require.NoError(t, store.SeedCatalog(context.Background(), testCatalog()))

	calc, err := pricing.NewCalculator(pricing.DefaultConfig())
	require.NoError(t, err)

	logger := zerolog.Nop()
	clock := fixedClock{now: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)}
	desk := service.NewRentalDesk(store, lock.NewKeyedMutex(), calc, nil, retry.Policy{}, clock, &logger)

	ts := httptest.NewServer(NewHTTPServer(cfg, desk, &logger).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func windowBody(equipmentID int64, start, end string) map[string]any {
	return map[string]any{"equipment_id": equipmentID, "customer_id": 9, "start_date": start, "end_date": end}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})
	code, body := doJSON(t, ts, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestReservationFlow(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})

	code, res := doJSON(t, ts, http.MethodPost, "/api/v1/reservations", windowBody(5, "2025-06-10", "2025-06-15"))
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "PENDING", res["status"])
	assert.True(t, strings.HasPrefix(res["code"].(string), "RES-"))
	id := int64(res["id"].(float64))

	code, body := doJSON(t, ts, http.MethodPost, "/api/v1/reservations", windowBody(5, "2025-06-15", "2025-06-20"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body["error"], "not available")

	code, body = doJSON(t, ts, http.MethodPost, fmt.Sprintf("/api/v1/reservations/%d/convert", id), nil)
	require.Equal(t, http.StatusCreated, code)
	rental := body["rental"].(map[string]any)
	assert.Equal(t, "9600.00", rental["rental_amount"])
	assert.Equal(t, "960.00", rental["membership_discount"])
	assert.Equal(t, "8640.00", rental["final_payable"])
	assert.Equal(t, "ACTIVE", rental["status"])
	assert.Equal(t, "CONFIRMED", body["reservation"].(map[string]any)["status"])

	code, _ = doJSON(t, ts, http.MethodPost, fmt.Sprintf("/api/v1/reservations/%d/convert", id), nil)
	assert.Equal(t, http.StatusConflict, code)

	code, body = doJSON(t, ts, http.MethodGet, fmt.Sprintf("/api/v1/reservations/%d", id), nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CONFIRMED", body["status"])

	code, body = doJSON(t, ts, http.MethodPost, fmt.Sprintf("/api/v1/reservations/%d/cancel", id), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CANCELLED", body["reservation"].(map[string]any)["status"])
	assert.Equal(t, "CANCELLED", body["rental"].(map[string]any)["status"])
}

func TestQuoteEndpoint(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})

	code, body := doJSON(t, ts, http.MethodPost, "/api/v1/quotes", windowBody(5, "2025-06-09", "2025-06-15"))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(7), body["days"])
	assert.Equal(t, "1500.00", body["daily_rate"])
	assert.Equal(t, "11100.00", body["rental_amount"])
	assert.Equal(t, "1110.00", body["long_rental_discount"])
	assert.Equal(t, "8880.00", body["final_payable"])

	lines := body["lines"].([]any)
	require.Len(t, lines, 7)
	saturday := lines[5].(map[string]any)
	assert.Equal(t, "2025-06-14", saturday["date"])
	assert.Equal(t, true, saturday["weekend"])
	assert.Equal(t, "1800.00", saturday["rate"])
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"invalid json", http.MethodPost, "/api/v1/reservations", "{", http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/reservations", `{"equipment":5}`, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/api/v1/reservations", windowBody(5, "10/06/2025", "2025-06-12"), http.StatusBadRequest},
		{"missing ids", http.MethodPost, "/api/v1/rentals", windowBody(0, "2025-06-10", "2025-06-12"), http.StatusBadRequest},
		{"bad id", http.MethodPost, "/api/v1/rentals/abc/cancel", nil, http.StatusBadRequest},
		{"unknown equipment", http.MethodPost, "/api/v1/reservations", windowBody(404, "2025-06-10", "2025-06-12"), http.StatusNotFound},
		{"unknown rental", http.MethodGet, "/api/v1/rentals/77", nil, http.StatusNotFound},
		{"past window", http.MethodPost, "/api/v1/reservations", windowBody(5, "2025-05-20", "2025-06-02"), http.StatusUnprocessableEntity},
		{"end before start", http.MethodPost, "/api/v1/quotes", windowBody(5, "2025-06-12", "2025-06-10"), http.StatusUnprocessableEntity},
		{"missing from", http.MethodGet, "/api/v1/equipment/5/availability", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := doJSON(t, ts, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestRentAndReturn(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})

	code, rental := doJSON(t, ts, http.MethodPost, "/api/v1/rentals", windowBody(5, "2025-06-05", "2025-06-10"))
	require.Equal(t, http.StatusCreated, code)
	id := int64(rental["id"].(float64))
	assert.True(t, strings.HasPrefix(rental["code"].(string), "RENT-"))
	assert.Equal(t, "UNPAID", rental["payment_status"])

	// deposit 2000 held, 4000 more would exceed 5000
	code, body := doJSON(t, ts, http.MethodPost, "/api/v1/rentals", windowBody(6, "2025-06-05", "2025-06-06"))
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body["error"], "deposit")

	path := fmt.Sprintf("/api/v1/rentals/%d/return", id)
	code, _ = doJSON(t, ts, http.MethodPost, path, map[string]any{"actual_return_date": "2025-06-04"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, body = doJSON(t, ts, http.MethodPost, path, map[string]any{
		"actual_return_date": "2025-06-13",
		"damage_description": "cracked grip",
		"damage_charge":      "300.00",
	})
	require.Equal(t, http.StatusOK, code)
	settlement := body["settlement"].(map[string]any)
	assert.Equal(t, "1500.00", settlement["late_fee"])
	assert.Equal(t, "1800.00", settlement["total_charges"])
	assert.Equal(t, "200.00", settlement["refund_amount"])
	assert.Equal(t, "0.00", settlement["additional_payment_required"])
	assert.Equal(t, "RETURNED", body["rental"].(map[string]any)["status"])
	assert.Equal(t, "2025-06-13", body["rental"].(map[string]any)["actual_return_date"])

	code, _ = doJSON(t, ts, http.MethodPost, path, map[string]any{"actual_return_date": "2025-06-14"})
	assert.Equal(t, http.StatusConflict, code)

	// the deposit is released by the return
	code, _ = doJSON(t, ts, http.MethodPost, "/api/v1/rentals", windowBody(6, "2025-06-05", "2025-06-06"))
	assert.Equal(t, http.StatusCreated, code)
}

func TestCancelRentalEndpoint(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})

	code, rental := doJSON(t, ts, http.MethodPost, "/api/v1/rentals", windowBody(5, "2025-06-02", "2025-06-03"))
	require.Equal(t, http.StatusCreated, code)
	path := fmt.Sprintf("/api/v1/rentals/%d/cancel", int64(rental["id"].(float64)))

	code, body := doJSON(t, ts, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CANCELLED", body["status"])

	code, _ = doJSON(t, ts, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestAvailabilityEndpoint(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})

	code, res := doJSON(t, ts, http.MethodPost, "/api/v1/reservations", windowBody(5, "2025-06-10", "2025-06-11"))
	require.Equal(t, http.StatusCreated, code)

	code, body := doJSON(t, ts, http.MethodGet, "/api/v1/equipment/5/availability?from=2025-06-09&days=3", nil)
	require.Equal(t, http.StatusOK, code)
	days := body["days"].([]any)
	require.Len(t, days, 3)
	assert.Equal(t, true, days[0].(map[string]any)["available"])
	assert.Equal(t, false, days[1].(map[string]any)["available"])
	assert.Equal(t, res["code"], days[1].(map[string]any)["booked_by"])

	code, _ = doJSON(t, ts, http.MethodGet, "/api/v1/equipment/5/availability?from=2025-06-09&days=500", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestOverdueEndpoint(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})

	code, body := doJSON(t, ts, http.MethodGet, "/api/v1/rentals/overdue", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["rentals"])
}

func TestPricingEndpoints(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})

	code, _ := doJSON(t, ts, http.MethodPut, "/api/v1/pricing/membership-discounts/gold", map[string]any{"percent": "150"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = doJSON(t, ts, http.MethodPut, "/api/v1/pricing/membership-discounts/platinum", map[string]any{"percent": "5"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = doJSON(t, ts, http.MethodPut, "/api/v1/pricing/membership-discounts/gold", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := doJSON(t, ts, http.MethodPut, "/api/v1/pricing/membership-discounts/gold", map[string]any{"percent": "12.5"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "GOLD", body["tier"])

	code, body = doJSON(t, ts, http.MethodGet, "/api/v1/pricing", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "12.5", body["membership_discounts"].(map[string]any)["GOLD"])
	assert.Equal(t, float64(30), body["max_booking_days"])
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.01, Burst: 1}})

	code, _ := doJSON(t, ts, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)

	code, body := doJSON(t, ts, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate limit exceeded", body["error"])

	// another client has its own bucket
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(clientIDHeader, "desk-2")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
