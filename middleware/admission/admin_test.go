package admission

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type adminFixture struct {
	now     time.Time
	limiter *infra.WindowLimiter
	abuse   *infra.AbuseTracker
	stats   *infra.MemoryStatsStore
	handler http.Handler
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()

	f := &adminFixture{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	f.limiter = infra.NewWindowLimiter(profiles(3, 3), infra.WithClock(clock))
	f.abuse = infra.NewAbuseTracker(domain.AbusePolicy{Threshold: 1}, infra.WithAbuseClock(clock))
	f.stats = infra.NewMemoryStatsStore()
	f.handler = AdminHandler(AdminOptions{
		Token:    "s3cret",
		Limiter:  f.limiter,
		Abuse:    f.abuse,
		Requests: f.stats,
		Pool:     infra.NewChanPool(4),
		Now:      clock,
	})
	return f
}

func (f *adminFixture) do(method, body, auth string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, "http://example/api/security-status", strings.NewReader(body))
	if auth != "" {
		r.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func TestAdminHandler_Auth(t *testing.T) {
	f := newAdminFixture(t)

	w := f.do(http.MethodGet, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthorized", decodeMap(t, w)["error"])

	w = f.do(http.MethodGet, "", "Basic abc")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthorized", decodeMap(t, w)["error"])

	w = f.do(http.MethodGet, "", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid token", decodeMap(t, w)["error"])
}

func TestAdminHandler_EmptyTokenRejectsEverything(t *testing.T) {
	h := AdminHandler(AdminOptions{
		Limiter: infra.NewWindowLimiter(domain.DefaultProfiles()),
		Abuse:   infra.NewAbuseTracker(domain.DefaultAbusePolicy()),
	})

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.Header.Set("Authorization", "Bearer ")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminHandler_Snapshot(t *testing.T) {
	f := newAdminFixture(t)
	f.limiter.ManuallyBlock("9.9.9.9", time.Hour)
	f.abuse.Record("8.8.8.8", domain.CategoryHoneypotTriggered)
	f.abuse.Record("8.8.8.8", domain.CategoryHoneypotTriggered)

	w := f.do(http.MethodGet, "", "Bearer s3cret")
	require.Equal(t, http.StatusOK, w.Code)

	var snap adminSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))

	assert.Equal(t, "operational", snap.Status)
	assert.Equal(t, "2025-01-01T12:00:00Z", snap.Timestamp)
	assert.Equal(t, []domain.ClientID{"9.9.9.9"}, snap.RateLimiter.BlockedList)
	assert.Equal(t, 2, snap.RateLimiter.TrackedEntries)
	assert.Equal(t, []domain.ClientID{"8.8.8.8"}, snap.AbuseTracker.BlockedList)
	require.NotNil(t, snap.Requests)
	require.NotNil(t, snap.InFlight)
	assert.Equal(t, 0, *snap.InFlight)
}

func TestAdminHandler_UnblockClearsBothComponents(t *testing.T) {
	f := newAdminFixture(t)
	f.limiter.ManuallyBlock("1.2.3.4", 0)
	f.abuse.Record("1.2.3.4", domain.CategorySuspiciousRequest)
	f.abuse.Record("1.2.3.4", domain.CategorySuspiciousRequest)
	require.True(t, f.abuse.IsBlocked("1.2.3.4"))

	w := f.do(http.MethodPost, `{"action":"unblock","ip":"1.2.3.4"}`, "Bearer s3cret")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeMap(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "IP 1.2.3.4 has been unblocked", body["message"])

	assert.False(t, f.abuse.IsBlocked("1.2.3.4"))
	assert.Empty(t, f.limiter.Stats().BlockedList)
	assert.True(t, f.limiter.Check("1.2.3.4", domain.ProfileGeneral).Allowed)
}

func TestAdminHandler_BlockUsesDurationOrDefault(t *testing.T) {
	f := newAdminFixture(t)

	w := f.do(http.MethodPost, `{"action":"block","ip":"5.5.5.5","duration":"30m"}`, "Bearer s3cret")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "IP 5.5.5.5 has been blocked", decodeMap(t, w)["message"])

	d := f.limiter.Check("5.5.5.5", domain.ProfileSensitive)
	assert.False(t, d.Allowed)
	assert.Equal(t, 30*time.Minute, d.RetryAfter)

	w = f.do(http.MethodPost, `{"action":"block","ip":"6.6.6.6"}`, "Bearer s3cret")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 24*time.Hour, f.limiter.Check("6.6.6.6", domain.ProfileGeneral).RetryAfter)
}

func TestAdminHandler_Cleanup(t *testing.T) {
	f := newAdminFixture(t)
	f.limiter.Check("1.1.1.1", domain.ProfileGeneral)
	f.limiter.Check("2.2.2.2", domain.ProfileGeneral)
	f.now = f.now.Add(2 * time.Minute)

	w := f.do(http.MethodPost, `{"action":"cleanup"}`, "Bearer s3cret")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeMap(t, w)
	assert.Equal(t, "Cleanup completed", body["message"])
	assert.EqualValues(t, 2, body["removed"])
	assert.Equal(t, 0, f.limiter.Stats().TrackedEntries)
}

func TestAdminHandler_BadRequests(t *testing.T) {
	f := newAdminFixture(t)

	tt := []struct {
		desc string
		body string
		want string
	}{
		{"malformed json", `{"action":`, "Invalid request body"},
		{"unknown action", `{"action":"nuke","ip":"1.1.1.1"}`, "Invalid action"},
		{"unblock without ip", `{"action":"unblock"}`, "Invalid action"},
		{"block without ip", `{"action":"block","ip":"  "}`, "Invalid action"},
		{"bad duration", `{"action":"block","ip":"1.1.1.1","duration":"soon"}`, "Invalid duration"},
		{"negative duration", `{"action":"block","ip":"1.1.1.1","duration":"-1h"}`, "Invalid duration"},
	}
	for _, tc := range tt {
		w := f.do(http.MethodPost, tc.body, "Bearer s3cret")
		assert.Equal(t, http.StatusBadRequest, w.Code, tc.desc)
		assert.Equal(t, tc.want, decodeMap(t, w)["error"], tc.desc)
	}
}

func TestAdminHandler_MethodNotAllowed(t *testing.T) {
	f := newAdminFixture(t)

	w := f.do(http.MethodDelete, "", "Bearer s3cret")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, POST", w.Header().Get("Allow"))
}
