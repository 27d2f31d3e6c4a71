package wizard

import (
	"context"
	"strings"

	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

// OTPValidator checks a code against the practice API.
type OTPValidator interface {
	ValidateOTP(ctx context.Context, auth practice.Auth, req practice.OTPRequest) (bool, error)
}

// OTPVerifier treats the remote result as authoritative. Bypass codes are
// honoured only in test mode.
type OTPVerifier struct {
	remote   OTPValidator
	testMode bool
	bypass   map[string]struct{}
	logger   *logging.Logger
}

// NewOTPVerifier creates a verifier. bypassCodes are ignored unless testMode.
func NewOTPVerifier(remote OTPValidator, testMode bool, bypassCodes []string, logger *logging.Logger) *OTPVerifier {
	if logger == nil {
		logger = logging.Default()
	}
	v := &OTPVerifier{remote: remote, testMode: testMode, bypass: make(map[string]struct{}), logger: logger}
	if testMode {
		for _, code := range bypassCodes {
			if code = strings.TrimSpace(code); code != "" {
				v.bypass[code] = struct{}{}
			}
		}
	}
	return v
}

// TestMode reports whether bypass codes are active.
func (v *OTPVerifier) TestMode() bool { return v.testMode }

// Verify returns true when the code is accepted. A remote failure is returned
// as an error unless a test-mode bypass code applies.
func (v *OTPVerifier) Verify(ctx context.Context, auth practice.Auth, req practice.OTPRequest) (bool, error) {
	ok, err := v.remote.ValidateOTP(ctx, auth, req)
	if err == nil && ok {
		return true, nil
	}
	if _, bypass := v.bypass[strings.TrimSpace(req.Code)]; bypass {
		v.logger.Warn("otp accepted via test-mode bypass", "session_id", req.SessionID, "remote_error", err != nil)
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}
