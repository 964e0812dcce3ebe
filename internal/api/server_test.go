package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/timesheet-app/timesheet/internal/analytics"
	"github.com/timesheet-app/timesheet/internal/domain"
	"github.com/timesheet-app/timesheet/internal/mnemonic"
	"github.com/timesheet-app/timesheet/internal/store/sqlite"
	"github.com/timesheet-app/timesheet/internal/tracking"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fixture struct {
	t      *testing.T
	server *httptest.Server
	store  *sqlite.Store
	user   *domain.User
	token  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.sqlite"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	user := domain.NewUser(42, false, time.Now())
	require.NoError(t, store.InsertUser(context.Background(), user))

	tokens := NewTokenIssuer([]byte(testSecret), time.Hour)
	srv := NewServer(
		store,
		tracking.NewService(store),
		analytics.NewService(store),
		mnemonic.NewService(store),
		tokens,
		Options{},
	)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	token, err := tokens.Issue(user)
	require.NoError(t, err)

	return &fixture{t: t, server: ts, store: store, user: user, token: token}
}

func (f *fixture) do(method, path string, body any) *http.Response {
	f.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(f.t, err)
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	f.token = ""
	resp := f.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_MissingTokenRejected(t *testing.T) {
	f := newFixture(t)
	f.token = ""
	resp := f.do(http.MethodGet, "/api/v1/tracking/status", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_GarbageTokenRejected(t *testing.T) {
	f := newFixture(t)
	f.token = "not-a-jwt"
	resp := f.do(http.MethodGet, "/api/v1/tracking/status", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogin_MnemonicToToken(t *testing.T) {
	f := newFixture(t)
	svc := mnemonic.NewService(f.store)
	phrase, err := svc.IssueLogin(context.Background(), f.user, 0)
	require.NoError(t, err)

	f.token = ""
	resp := f.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"mnemonic": phrase})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]string](t, resp)
	require.NotEmpty(t, body["token"])

	// The minted token authenticates as the issuing user.
	f.token = body["token"]
	resp = f.do(http.MethodGet, "/api/v1/tracking/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The phrase is single use.
	f.token = ""
	resp = f.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"mnemonic": phrase})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestToggle_RoundTrip(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodPost, "/api/v1/tracking/toggle", map[string]any{"activity": "working"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]*sessionDTO](t, resp)
	require.NotNil(t, body["started"])
	require.Equal(t, "working", body["started"].Activity)
	require.Nil(t, body["ended"])

	resp = f.do(http.MethodGet, "/api/v1/tracking/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeBody[map[string]any](t, resp)
	require.NotNil(t, status["active"])

	resp = f.do(http.MethodPost, "/api/v1/tracking/toggle", map[string]any{"activity": "working"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody[map[string]*sessionDTO](t, resp)
	require.Nil(t, body["started"])
	require.NotNil(t, body["ended"])
}

func TestToggle_UnknownActivity(t *testing.T) {
	f := newFixture(t)
	resp := f.do(http.MethodPost, "/api/v1/tracking/toggle", map[string]any{"activity": "napping"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEntries_AdjustEndOfActiveConflicts(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodPost, "/api/v1/tracking/toggle", map[string]any{"activity": "working"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]*sessionDTO](t, resp)
	id := body["started"].ID

	resp = f.do(http.MethodPatch, "/api/v1/entries/"+id, map[string]any{"field": "end", "delta_minutes": -5})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.do(http.MethodPatch, "/api/v1/entries/"+id, map[string]any{"field": "start", "delta_minutes": -5})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEntries_ListAndDelete(t *testing.T) {
	f := newFixture(t)

	f.do(http.MethodPost, "/api/v1/tracking/toggle", map[string]any{"activity": "working"})
	f.do(http.MethodPost, "/api/v1/tracking/toggle", map[string]any{"activity": "working"})

	resp := f.do(http.MethodGet, "/api/v1/entries?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decodeBody[[]sessionDTO](t, resp)
	require.Len(t, entries, 1)

	resp = f.do(http.MethodDelete, "/api/v1/entries/"+entries[0].ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(http.MethodDelete, "/api/v1/entries/"+entries[0].ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSettings_PatchAndEcho(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodPatch, "/api/v1/settings", map[string]any{
		"utc_offset_minutes": 120,
		"max_work_hours":     9.0,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[settingsDTO](t, resp)
	require.NotNil(t, got.UTCOffsetMinutes)
	require.Equal(t, 120, *got.UTCOffsetMinutes)
	require.NotNil(t, got.MaxWorkHours)
	require.Equal(t, 9.0, *got.MaxWorkHours)
}

func TestSettings_OffsetOutOfRange(t *testing.T) {
	f := newFixture(t)
	resp := f.do(http.MethodPatch, "/api/v1/settings", map[string]any{"utc_offset_minutes": 2000})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalytics_DailyWindow(t *testing.T) {
	f := newFixture(t)
	resp := f.do(http.MethodGet, "/api/v1/analytics/daily?from=2026-03-02&to=2026-03-04", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows := decodeBody[[]analytics.DayBreakdown](t, resp)
	require.Len(t, rows, 2, "half-open window yields one row per day")
}

func TestAnalytics_PatternsRequireDirection(t *testing.T) {
	f := newFixture(t)
	resp := f.do(http.MethodGet, "/api/v1/analytics/patterns", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(http.MethodGet, "/api/v1/analytics/patterns?direction=to_work", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEmployerAttendance_ImportAndList(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodPut, "/api/v1/employer-attendance", map[string]any{
		"from":   "2026-03-01",
		"to":     "2026-03-08",
		"source": "corporate-hr",
		"records": []map[string]any{
			{"date": "2026-03-02", "working_hours": 8.0},
			{"date": "2026-03-03", "working_hours": 7.5, "has_conflict": true},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(http.MethodGet, "/api/v1/employer-attendance?from=2026-03-01&to=2026-03-08", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records := decodeBody[[]employerRecordDTO](t, resp)
	require.Len(t, records, 2)
}

func TestEmployerAttendance_RecordOutsideWindowRejected(t *testing.T) {
	f := newFixture(t)
	resp := f.do(http.MethodPut, "/api/v1/employer-attendance", map[string]any{
		"from":    "2026-03-01",
		"to":      "2026-03-08",
		"records": []map[string]any{{"date": "2026-04-01", "working_hours": 8.0}},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestComplianceRules_UpsertListDelete(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodPut, "/api/v1/compliance/rules", map[string]any{
		"rule_type":       "min_work",
		"is_enabled":      true,
		"threshold_hours": 6.0,
		"clock_in_def":    "first_session_start",
		"clock_out_def":   "last_session_end",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(http.MethodGet, "/api/v1/compliance/rules", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rules := decodeBody[[]ruleDTO](t, resp)
	require.Len(t, rules, 1)
	require.Equal(t, domain.RuleMinWork, rules[0].RuleType)

	resp = f.do(http.MethodDelete, "/api/v1/compliance/rules/min_work", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestComplianceRules_UnknownTypeRejected(t *testing.T) {
	f := newFixture(t)
	resp := f.do(http.MethodPut, "/api/v1/compliance/rules", map[string]any{"rule_type": "min_sleep"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHolidays_CreateListDelete(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodPost, "/api/v1/holidays", map[string]any{
		"start_date": "2026-03-04",
		"end_date":   "2026-03-06",
		"type":       "vacation",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[holidayDTO](t, resp)
	require.NotEmpty(t, created.ID)

	resp = f.do(http.MethodGet, "/api/v1/holidays?from=2026-03-01&to=2026-03-31", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	holidays := decodeBody[[]holidayDTO](t, resp)
	require.Len(t, holidays, 1)

	resp = f.do(http.MethodDelete, "/api/v1/holidays/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHolidays_InvertedIntervalRejected(t *testing.T) {
	f := newFixture(t)
	resp := f.do(http.MethodPost, "/api/v1/holidays", map[string]any{
		"start_date": "2026-03-06",
		"end_date":   "2026-03-04",
		"type":       "vacation",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORS_Preflight(t *testing.T) {
	f := newFixture(t)
	req, err := http.NewRequest(http.MethodOptions, f.server.URL+"/api/v1/tracking/status", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"), "unlisted origin gets no allow header")
}
