/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Salary and expense admin actions through generation and payment
- Error mapping (400 / 404 / 409 with current entry)
- Definition administration and the snapshot policy on edits
- Entry filters and statistics
*/
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/obligation-engine/factory"
	"github.com/warp/obligation-engine/logging"
	"github.com/warp/obligation-engine/obligation"
	memstore "github.com/warp/obligation-engine/obligation/store"
)

var june15 = time.Date(2025, time.June, 15, 10, 30, 0, 0, time.UTC)

type testServer struct {
	h      *Handler
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logging.Discard()
	h := NewHandler(memstore.NewMemory(), nil, log)
	h.SetClock(obligation.FixedClock(june15))
	t.Cleanup(h.Ledger.Wait)
	return &testServer{h: h, router: NewRouter(h, log, nil)}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func (s *testServer) onlyEntry(t *testing.T, query string) EntryDTO {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/entries?"+query, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entries := decode[[]EntryDTO](t, rec)
	require.Len(t, entries, 1)
	return entries[0]
}

const salesSalaryBody = `{
	"employee_id": "emp-001",
	"name": "Ana Lima",
	"department": "sales",
	"fixed_salary": "50000",
	"incentive": "5000",
	"start_date": "2025-01-01"
}`

const rentBody = `{
	"name": "Office Rent",
	"category": "facilities",
	"amount": "1200",
	"anchor_day": 5,
	"start_date": "2025-01-01"
}`

// =============================================================================
// SALARY FLOW
// =============================================================================

func TestSalaryFlow_GeneratePayAndConflict(t *testing.T) {
	// GIVEN: A sales employee paid 50000 base + 5000 incentive from January
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/salaries", salesSalaryBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	def := decode[factory.DefinitionJSON](t, rec)
	assert.Equal(t, "salary-emp-001", def.ID)
	assert.Equal(t, "salary_sales", def.Kind)

	// WHEN: Generating salaries through June
	rec = s.do(t, http.MethodPost, "/api/generate", `{"kind":"salary_sales","period":"2025-06"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, obligation.GenerateResult{Created: 6}, decode[obligation.GenerateResult](t, rec))

	// THEN: June's entry is due on the 30th with all three sales channels
	june := s.onlyEntry(t, "period=2025-06")
	assert.Equal(t, "2025-06-30", june.DueDate)
	assert.Equal(t, "pending", june.Status)
	assert.False(t, june.Overdue)
	assert.Len(t, june.Channels, 3)
	assert.True(t, june.Total.Equal(decimal.NewFromInt(55000)))

	// WHEN: Paying the base channel
	path := "/api/entries/" + june.ID + "/channels/base/pay"
	rec = s.do(t, http.MethodPut, path, `{"method":"bank_transfer","reference":"TXN123"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decode[EntryDTO](t, rec)
	assert.Equal(t, "partial", paid.Status)
	assert.Equal(t, "paid", paid.Channels["base"].Status)
	assert.Equal(t, "2025-06-15T10:30:00Z", paid.Channels["base"].PaidDate)

	// THEN: Paying it again is a conflict carrying the current entry
	rec = s.do(t, http.MethodPut, path, `{"method":"cash"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	conflict := decode[ConflictResponse](t, rec)
	assert.Equal(t, obligation.ErrAlreadyPaid.Error(), conflict.Error)
	require.NotNil(t, conflict.Entry)
	assert.Equal(t, "bank_transfer", conflict.Entry.Channels["base"].PaymentMethod)
}

func TestListEntries_StatusFilterAndStats(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/salaries", salesSalaryBody).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/generate", `{"period":"2025-06"}`).Code)

	june := s.onlyEntry(t, "period=2025-06")
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/entries/"+june.ID+"/channels/base/pay", `{"method":"cash"}`).Code)

	// January through May are past their due date
	rec := s.do(t, http.MethodGet, "/api/entries?status=overdue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]EntryDTO](t, rec), 5)

	rec = s.do(t, http.MethodGet, "/api/entries?status=partial", "")
	assert.Len(t, decode[[]EntryDTO](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/api/stats?period=2025-06", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[obligation.Stats](t, rec)
	assert.True(t, stats.Combined.PaidAmount.Equal(decimal.NewFromInt(50000)))
	assert.True(t, stats.Combined.PendingAmount.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, 1, stats.ByChannel[obligation.ChannelIncentive].PendingCount)
}

// =============================================================================
// ENTRY TRANSITIONS
// =============================================================================

func TestMarkPaid_ChannelNotSupportedByKind(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/expenses", rentBody).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/generate", `{"kind":"expense","period":"2025-06"}`).Code)
	june := s.onlyEntry(t, "period=2025-06")

	rec := s.do(t, http.MethodPut, "/api/entries/"+june.ID+"/channels/incentive/pay", `{"method":"cash"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/entries/"+june.ID+"/channels/bonus/pay", `{"method":"cash"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "channel", decode[ErrorResponse](t, rec).Field)

	rec = s.do(t, http.MethodPut, "/api/entries/"+june.ID+"/channels/base/pay", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "method", decode[ErrorResponse](t, rec).Field)
}

func TestEditPendingAmount_DefaultsToBase(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/expenses", rentBody).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/generate", `{"period":"2025-06"}`).Code)
	june := s.onlyEntry(t, "period=2025-06")
	path := "/api/entries/" + june.ID + "/pending-amount"

	rec := s.do(t, http.MethodPut, path, `{"amount":"1300.50"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[EntryDTO](t, rec).Channels["base"].Amount.Equal(decimal.RequireFromString("1300.50")))

	rec = s.do(t, http.MethodPut, path, `{"amount":"-5"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, path, `{"amount":"lots"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "amount", decode[ErrorResponse](t, rec).Field)

	// Paid channels are frozen
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/entries/"+june.ID+"/channels/base/pay", `{"method":"cash"}`).Code)
	rec = s.do(t, http.MethodPut, path, `{"channel":"base","amount":"1400"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteEntry_Guards(t *testing.T) {
	// GIVEN: Rent generated through July
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/expenses", rentBody).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/generate", `{"period":"2025-07"}`).Code)

	// WHEN/THEN: A past entry cannot be deleted
	may := s.onlyEntry(t, "period=2025-05")
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodDelete, "/api/entries/"+may.ID, "").Code)

	// WHEN/THEN: A future unpaid entry can, once
	july := s.onlyEntry(t, "period=2025-07")
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/entries/"+july.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/entries/"+july.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/entries/"+july.ID, "").Code)
}

// =============================================================================
// DEFINITIONS
// =============================================================================

const insuranceJSON = `{
	"id": "insurance",
	"kind": "expense",
	"party_id": "acme-insurance",
	"party_name": "ACME Insurance",
	"category": "insurance",
	"amount": "1000",
	"frequency": "quarterly",
	"anchor_day": 10,
	"start_date": "2025-01-01"
}`

func TestDefinitions_CRUD(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/definitions", insuranceJSON)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "active", decode[factory.DefinitionJSON](t, rec).Status)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/definitions", insuranceJSON).Code)

	rec = s.do(t, http.MethodGet, "/api/definitions?kind=expense", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]factory.DefinitionJSON](t, rec), 1)

	rec = s.do(t, http.MethodPut, "/api/definitions/insurance/status", `{"status":"paused"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paused", decode[factory.DefinitionJSON](t, rec).Status)

	rec = s.do(t, http.MethodPut, "/api/definitions/insurance/status", `{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Paused definitions generate nothing, so the definition is still unused
	rec = s.do(t, http.MethodPost, "/api/definitions/insurance/generate", `{"period":"2025-06"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[obligation.GenerateResult](t, rec).Created)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/definitions/insurance", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/definitions/insurance", "").Code)
}

func TestDeleteDefinition_InUse(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/definitions", insuranceJSON).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/definitions/insurance/generate", `{"period":"2025-06"}`).Code)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodDelete, "/api/definitions/insurance", "").Code)
}

func TestUpdateDefinition_ExistingEntriesKeepAmounts(t *testing.T) {
	// GIVEN: A quarterly insurance generated through March
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/definitions", insuranceJSON).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/definitions/insurance/generate", `{"period":"2025-03"}`).Code)

	// WHEN: Raising the premium and generating through July
	updated := strings.Replace(insuranceJSON, `"amount": "1000"`, `"amount": "1250"`, 1)
	rec := s.do(t, http.MethodPut, "/api/definitions/insurance", updated)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/definitions/insurance/generate", `{"period":"2025-07"}`).Code)

	// THEN: January keeps the old premium, April and July get the new one
	jan := s.onlyEntry(t, "period=2025-01")
	apr := s.onlyEntry(t, "period=2025-04")
	jul := s.onlyEntry(t, "period=2025-07")
	assert.True(t, jan.Total.Equal(decimal.NewFromInt(1000)))
	assert.True(t, apr.Total.Equal(decimal.NewFromInt(1250)))
	assert.True(t, jul.Total.Equal(decimal.NewFromInt(1250)))

	// Changing the kind is rejected
	salaryKind := strings.Replace(insuranceJSON, `"kind": "expense"`, `"kind": "salary"`, 1)
	rec = s.do(t, http.MethodPut, "/api/definitions/insurance", salaryKind)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "kind", decode[ErrorResponse](t, rec).Field)
}

func TestHistory_Endpoint(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/salaries", salesSalaryBody).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/generate", `{"period":"2025-06"}`).Code)

	may := s.onlyEntry(t, "period=2025-05")
	for _, ch := range []string{"base", "incentive"} {
		rec := s.do(t, http.MethodPut, "/api/entries/"+may.ID+"/channels/"+ch+"/pay", `{"method":"bank_transfer"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := s.do(t, http.MethodGet, "/api/definitions/salary-emp-001/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]HistoryItemDTO](t, rec)
	require.Len(t, items, 2)
	assert.Equal(t, "base", items[0].Channel)
	assert.Equal(t, "incentive", items[1].Channel)
	assert.Equal(t, "2025-05", items[0].Period)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/definitions/nobody/history", "").Code)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		field  string
	}{
		{"generate without period", http.MethodPost, "/api/generate", `{}`, "period"},
		{"generate bad period", http.MethodPost, "/api/generate", `{"period":"June"}`, "period"},
		{"generate unknown kind", http.MethodPost, "/api/generate", `{"kind":"pension","period":"2025-06"}`, "kind"},
		{"entries bad period", http.MethodGet, "/api/entries?period=2025-13", "", "period"},
		{"entries bad status", http.MethodGet, "/api/entries?status=late", "", "status"},
		{"salary missing amount", http.MethodPost, "/api/salaries", `{"employee_id":"e","name":"E","start_date":"2025-01-01"}`, "fixed_salary"},
		{"expense bad frequency", http.MethodPost, "/api/expenses", `{"name":"X","amount":"1","anchor_day":1,"start_date":"2025-01-01","frequency":"weekly"}`, "frequency"},
		{"expense anchor day", http.MethodPost, "/api/expenses", `{"name":"X","amount":"1","anchor_day":40,"start_date":"2025-01-01"}`, "anchor_day"},
		{"definition unknown kind", http.MethodPost, "/api/definitions", `{"kind":"pension"}`, "kind"},
	}

	s := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.field, decode[ErrorResponse](t, rec).Field)
		})
	}
}

func TestListKinds(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/kinds", "")

	require.Equal(t, http.StatusOK, rec.Code)
	kinds := map[string][]string{}
	for _, k := range decode[[]KindDTO](t, rec) {
		kinds[k.ID] = k.Channels
	}
	assert.Equal(t, []string{"base"}, kinds["expense"])
	assert.Equal(t, []string{"base", "reward"}, kinds["salary"])
	assert.Equal(t, []string{"base", "incentive", "reward"}, kinds["salary_sales"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", "").Code)
}
