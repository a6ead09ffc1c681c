package submission

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUA = "Mozilla/5.0 (X11; Linux x86_64)"

type fakeRelay struct {
	mu  sync.Mutex
	got []Submission
	err error
}

func (f *fakeRelay) Forward(_ context.Context, s Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, s)
	return f.err
}

type handlerFixture struct {
	relay   *fakeRelay
	abuse   *infra.AbuseTracker
	handler http.Handler
	at      time.Time
}

func newHandlerFixture(relay Relay) *handlerFixture {
	f := &handlerFixture{
		abuse: infra.NewAbuseTracker(domain.DefaultAbusePolicy()),
		at:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if fr, ok := relay.(*fakeRelay); ok {
		f.relay = fr
	}
	f.handler = NewHandler(HandlerOptions{
		Relay: relay,
		Abuse: f.abuse,
		Now:   func() time.Time { return f.at },
		NewID: func() string { return "sub-1" },
	})
	return f
}

func (f *handlerFixture) serve(r *http.Request) *httptest.ResponseRecorder {
	if r.Header.Get("X-Forwarded-For") == "" {
		r.Header.Set("X-Forwarded-For", "1.2.3.4")
	}
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", testUA)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func jsonRequest(t *testing.T, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "http://example/api/submit", bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e), w.Body.String())
	return e
}

func TestHandler_AcceptsJSON(t *testing.T) {
	f := newHandlerFixture(&fakeRelay{})

	w := f.serve(jsonRequest(t, validValues()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var ok successResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ok))
	assert.True(t, ok.Success)
	assert.Equal(t, "Application submitted successfully", ok.Message)
	assert.Equal(t, "sub-1", ok.SubmissionID)

	require.Len(t, f.relay.got, 1)
	sub := f.relay.got[0]
	assert.Equal(t, "Ana Souza", sub.Form.FullName)
	assert.Equal(t, "1.2.3.4", sub.ClientIP)
	assert.Equal(t, testUA, sub.UserAgent)
	assert.Equal(t, f.at, sub.At)
}

func TestHandler_AcceptsNumericRollNumber(t *testing.T) {
	f := newHandlerFixture(&fakeRelay{})

	body := map[string]any{}
	for k, v := range validValues() {
		body[k] = v
	}
	body["rollNumber"] = 2023001

	w := f.serve(jsonRequest(t, body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "2023001", f.relay.got[0].Form.RollNumber)
}

func TestHandler_AcceptsURLEncoded(t *testing.T) {
	f := newHandlerFixture(&fakeRelay{})

	vals := url.Values{}
	for k, v := range validValues() {
		vals.Set(k, v)
	}
	r := httptest.NewRequest(http.MethodPost, "http://example/api/submit", strings.NewReader(vals.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := f.serve(r)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHandler_AcceptsMultipart(t *testing.T) {
	f := newHandlerFixture(&fakeRelay{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range validValues() {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "http://example/api/submit", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())

	w := f.serve(r)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHandler_RejectsUnsupportedContentType(t *testing.T) {
	f := newHandlerFixture(&fakeRelay{})

	r := httptest.NewRequest(http.MethodPost, "http://example/api/submit", strings.NewReader("hello"))
	r.Header.Set("Content-Type", "text/plain")

	w := f.serve(r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidContentType, decodeError(t, w).Code)
	assert.Zero(t, f.abuse.Stats().TrackedRows)
}

func TestHandler_MalformedJSON(t *testing.T) {
	f := newHandlerFixture(&fakeRelay{})

	r := httptest.NewRequest(http.MethodPost, "http://example/api/submit", strings.NewReader(`{"fullName":`))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")

	w := f.serve(r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidRequest, decodeError(t, w).Code)
	assert.Equal(t, 1, f.abuse.Count("1.2.3.4", domain.CategoryInvalidFormData))
}

func TestHandler_ValidationFailure(t *testing.T) {
	f := newHandlerFixture(&fakeRelay{})

	values := validValues()
	values["email"] = "nope"
	w := f.serve(jsonRequest(t, values))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	e := decodeError(t, w)
	assert.Equal(t, CodeValidation, e.Code)
	assert.Equal(t, "Validation failed", e.Error)
	assert.Contains(t, e.Details, "email: Invalid email format")
	assert.Equal(t, 1, f.abuse.Count("1.2.3.4", domain.CategoryInvalidFormData))
	assert.Empty(t, f.relay.got)
}

func TestHandler_NonTextJSONField(t *testing.T) {
	f := newHandlerFixture(&fakeRelay{})

	body := map[string]any{}
	for k, v := range validValues() {
		body[k] = v
	}
	body["teamWork"] = true

	w := f.serve(jsonRequest(t, body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Details, "teamWork must be a string")
}

func TestHandler_Honeypot(t *testing.T) {
	for _, field := range honeypotFields {
		f := newHandlerFixture(&fakeRelay{})

		values := validValues()
		values[field] = "http://spam.example"
		w := f.serve(jsonRequest(t, values))

		assert.Equal(t, http.StatusTooManyRequests, w.Code, field)
		assert.Equal(t, CodeSpam, decodeError(t, w).Code, field)
		assert.Equal(t, 1, f.abuse.Count("1.2.3.4", domain.CategoryHoneypotTriggered), field)
		assert.Empty(t, f.relay.got, field)
	}
}

func TestHandler_ShortUserAgent(t *testing.T) {
	f := newHandlerFixture(&fakeRelay{})

	r := jsonRequest(t, validValues())
	r.Header.Set("User-Agent", "curl/8")
	w := f.serve(r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidRequest, decodeError(t, w).Code)
	assert.Equal(t, 1, f.abuse.Count("1.2.3.4", domain.CategorySuspiciousUserAgent))
}

func TestHandler_NoRelayConfigured(t *testing.T) {
	f := newHandlerFixture(nil)

	w := f.serve(jsonRequest(t, validValues()))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, CodeConfig, decodeError(t, w).Code)
}

func TestHandler_RelayFailures(t *testing.T) {
	tt := []struct {
		err    error
		status int
		code   string
	}{
		{ErrRelayTimeout, http.StatusRequestTimeout, CodeTimeout},
		{errors.New("boom"), http.StatusInternalServerError, CodeSubmission},
	}

	for _, tc := range tt {
		f := newHandlerFixture(&fakeRelay{err: tc.err})

		w := f.serve(jsonRequest(t, validValues()))
		assert.Equal(t, tc.status, w.Code, tc.code)
		assert.Equal(t, tc.code, decodeError(t, w).Code)
		assert.Equal(t, 1, f.abuse.Count("1.2.3.4", domain.CategorySubmissionError), tc.code)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	f := newHandlerFixture(&fakeRelay{})

	w := f.serve(httptest.NewRequest(http.MethodGet, "http://example/api/submit", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
}
