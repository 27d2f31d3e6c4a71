package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-booking-wizard/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medspa-booking-wizard/internal/config"
	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

type credentialStub struct {
	practice.API
}

func (credentialStub) FetchVendorCredentials(ctx context.Context, botID string) ([]practice.VendorCredential, error) {
	return []practice.VendorCredential{{VendorID: "1", VendorName: "WelcomeformAPI", AccountID: "acme"}}, nil
}

func (credentialStub) ExchangeForToken(ctx context.Context, p string, cred practice.VendorCredential) (string, error) {
	return "tok", nil
}

func TestSetupMetricsExposesWizardMetrics(t *testing.T) {
	registry, handler := setupMetrics()
	require.NotNil(t, handler)

	cfg := &appconfig.Config{PracticeName: "acme", BotID: "bot-1", SessionTTL: time.Hour}
	rt, err := bootstrap.BuildRuntime(context.Background(), cfg, logging.New("error"), bootstrap.RuntimeOptions{
		API:        credentialStub{},
		Registerer: registry,
	})
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	rt.Metrics.ObserveBooking("succeeded")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "medspa_wizard_bookings_total"))
}

func TestNewServerServesWizard(t *testing.T) {
	registry, metricsHandler := setupMetrics()
	cfg := &appconfig.Config{Port: "9999", PracticeName: "acme", BotID: "bot-1", SessionTTL: time.Hour, RateLimitRPS: 100, RateLimitBurst: 100}
	logger := logging.New("error")
	rt, err := bootstrap.BuildRuntime(context.Background(), cfg, logger, bootstrap.RuntimeOptions{
		API:        credentialStub{},
		Registerer: registry,
	})
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	srv := newServer(cfg, rt, logger, metricsHandler)
	assert.Equal(t, ":9999", srv.Addr)

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/wizard/sessions", nil))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rr.Body.String(), "medspa_http_requests_total")
}
