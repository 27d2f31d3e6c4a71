package wizard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
)

type stubValidator struct {
	ok    bool
	err   error
	calls int
}

func (s *stubValidator) ValidateOTP(ctx context.Context, auth practice.Auth, req practice.OTPRequest) (bool, error) {
	s.calls++
	return s.ok, s.err
}

func TestOTPVerifier_TestModeBypass(t *testing.T) {
	unreachable := &stubValidator{err: errors.New("dial tcp: connection refused")}
	v := NewOTPVerifier(unreachable, true, []string{"1234", "9753"}, nil)
	require.True(t, v.TestMode())

	for _, code := range []string{"1234", "9753"} {
		ok, err := v.Verify(context.Background(), practice.Auth{}, practice.OTPRequest{Code: code})
		require.NoError(t, err, code)
		assert.True(t, ok, code)
	}

	ok, err := v.Verify(context.Background(), practice.Auth{}, practice.OTPRequest{Code: "0000"})
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, unreachable.calls, "remote is always consulted")
}

func TestOTPVerifier_BypassRejectedOutsideTestMode(t *testing.T) {
	v := NewOTPVerifier(&stubValidator{ok: false}, false, []string{"1234", "9753"}, nil)
	for _, code := range []string{"1234", "9753"} {
		ok, err := v.Verify(context.Background(), practice.Auth{}, practice.OTPRequest{Code: code})
		require.NoError(t, err)
		assert.False(t, ok, code)
	}

	down := NewOTPVerifier(&stubValidator{err: errors.New("timeout")}, false, []string{"1234"}, nil)
	_, err := down.Verify(context.Background(), practice.Auth{}, practice.OTPRequest{Code: "1234"})
	assert.Error(t, err)
}

func TestOTPVerifier_RemoteIsAuthoritative(t *testing.T) {
	tests := []struct {
		name   string
		remote *stubValidator
		code   string
		want   bool
	}{
		{name: "accepted", remote: &stubValidator{ok: true}, code: "4821", want: true},
		{name: "rejected", remote: &stubValidator{ok: false}, code: "4821", want: false},
		{name: "rejected bypass in test mode", remote: &stubValidator{ok: false}, code: "1234", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewOTPVerifier(tt.remote, true, []string{"1234"}, nil)
			ok, err := v.Verify(context.Background(), practice.Auth{}, practice.OTPRequest{Code: tt.code})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}
