package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

type observedRequest struct {
	method string
	status int
}

type fakeObserver struct{ seen []observedRequest }

func (f *fakeObserver) ObserveHTTPRequest(method string, status int) {
	f.seen = append(f.seen, observedRequest{method, status})
}

func TestRequestLoggerLogsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithFormat("info", "json", &buf)
	obs := &fakeObserver{}

	r := chi.NewRouter()
	r.Use(RequestLogger(logger, obs))
	var seenID string
	r.Get("/wizard/appointments/{patientID}", func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/wizard/appointments/PN-99812", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-1", seenID)
	out := buf.String()
	assert.Contains(t, out, "/wizard/appointments/{patientID}")
	assert.NotContains(t, out, "PN-99812")
	require.Len(t, obs.seen, 1)
	assert.Equal(t, observedRequest{http.MethodGet, http.StatusNotFound}, obs.seen[0])
}

func TestRequestLoggerGeneratesID(t *testing.T) {
	rec := httptest.NewRecorder()
	RequestLogger(nil, nil)(okHandler(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, http.StatusOK, rec.Code)
}
