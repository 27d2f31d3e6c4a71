package practice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

const (
	defaultBaseURL    = "https://welcomeformchatbotapi.maximeyes.com/"
	defaultTimeout    = 30 * time.Second
	defaultVendorName = "WelcomeformAPI"
	maxResponseBytes  = 4 << 20
)

var practiceTracer = otel.Tracer("medspa.internal.practice")

// CallObserver receives one observation per practice API call.
type CallObserver interface {
	ObservePracticeCall(op, outcome string, seconds float64)
}

// Options configures a Client.
type Options struct {
	BaseURL      string
	BookingURL   string
	LookupURL    string
	PracticeName string
	VendorName   string
	Timeout      time.Duration
	HTTPClient   *http.Client
	// Breaker enables the circuit breaker when non-nil.
	Breaker  *BreakerConfig
	Observer CallObserver
	Logger   *logging.Logger
}

// Client wraps the practice-management REST API used by the booking wizard.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	bookingURL   string
	lookupURL    string
	practiceName string
	vendorName   string
	breaker      *gobreaker.CircuitBreaker
	observer     CallObserver
	logger       *logging.Logger
}

// NewClient constructs a practice API client.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	vendorName := strings.TrimSpace(opts.VendorName)
	if vendorName == "" {
		vendorName = defaultVendorName
	}
	c := &Client{
		httpClient:   httpClient,
		baseURL:      baseURL,
		bookingURL:   strings.TrimSpace(opts.BookingURL),
		lookupURL:    strings.TrimSpace(opts.LookupURL),
		practiceName: strings.TrimSpace(opts.PracticeName),
		vendorName:   vendorName,
		observer:     opts.Observer,
		logger:       logger,
	}
	if c.bookingURL == "" {
		c.bookingURL = baseURL + "book_appointment_ui"
	}
	if c.lookupURL == "" {
		c.lookupURL = baseURL + "api/Appointment/CB_getAppointment"
	}
	if opts.Breaker != nil {
		c.breaker = newBreaker(*opts.Breaker, logger)
	}
	return c
}

// VendorName is the vendor whose credentials are exchanged for tokens.
func (c *Client) VendorName() string { return c.vendorName }

// FetchVendorCredentials resolves the vendor credential list for a bot.
func (c *Client) FetchVendorCredentials(ctx context.Context, botID string) ([]VendorCredential, error) {
	raw, err := c.do(ctx, call{
		op:     "fetch_vendor_credentials",
		method: http.MethodGet,
		url:    c.baseURL + "api/PracticeDetails/CB_GetVendorsCredentialsFromBotID",
		query:  url.Values{"BotID": {botID}},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch vendor credentials: %w", err)
	}
	creds, err := decodeCredentials(raw)
	if err != nil {
		return nil, fmt.Errorf("fetch vendor credentials: decode: %w", err)
	}
	return creds, nil
}

// SelectCredential picks the credential for vendorName and practice.
func SelectCredential(creds []VendorCredential, vendorName, practice string) (VendorCredential, error) {
	for _, cred := range creds {
		if cred.VendorName == vendorName && cred.AccountID == practice {
			return cred, nil
		}
	}
	return VendorCredential{}, fmt.Errorf("%w: vendor %q practice %q", ErrCredentialNotFound, vendorName, practice)
}

// ExchangeForToken authenticates a vendor credential and returns a bearer token.
func (c *Client) ExchangeForToken(ctx context.Context, practice string, cred VendorCredential) (string, error) {
	payload := map[string]string{
		"vendorId":       cred.VendorID.String(),
		"vendorName":     cred.VendorName,
		"vendorPassword": cred.VendorPassword,
		"accountId":      practice,
	}
	raw, err := c.do(ctx, call{
		op:     "exchange_token",
		method: http.MethodPost,
		url:    c.baseURL + "Authenticate",
		body:   payload,
	})
	if err != nil {
		return "", fmt.Errorf("exchange token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if strings.HasPrefix(token, `"`) {
		var unquoted string
		if err := json.Unmarshal([]byte(token), &unquoted); err == nil {
			token = strings.TrimSpace(unquoted)
		}
	}
	if token == "" {
		return "", fmt.Errorf("exchange token: %w", ErrEmptyToken)
	}
	return token, nil
}

// FetchLocations lists the practice locations.
func (c *Client) FetchLocations(ctx context.Context, auth Auth) ([]Location, error) {
	raw, err := c.do(ctx, call{
		op:     "fetch_locations",
		method: http.MethodGet,
		url:    c.baseURL + "api/PracticeDetails/CB_GetPractiseDetailsForApptBooking",
		query:  url.Values{"PracticeName": {c.practiceFor(auth)}},
		header: bearer(auth.Token, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch locations: %w", err)
	}
	locations, err := decodeList[Location](raw)
	if err != nil {
		return nil, fmt.Errorf("fetch locations: decode: %w", err)
	}
	return locations, nil
}

// FetchProviders lists the providers practicing at a location.
func (c *Client) FetchProviders(ctx context.Context, auth Auth, locationID string) ([]Provider, error) {
	raw, err := c.do(ctx, call{
		op:     "fetch_providers",
		method: http.MethodGet,
		url:    c.baseURL + "api/Dropdown/GetPracticePerson",
		query: url.Values{
			"PracticeName": {c.practiceFor(auth)},
			"LocationId":   {locationID},
		},
		header: bearer(auth.Token, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch providers: %w", err)
	}
	providers, err := decodeList[Provider](raw)
	if err != nil {
		return nil, fmt.Errorf("fetch providers: decode: %w", err)
	}
	return providers, nil
}

// FetchReasons lists the appointment reasons.
func (c *Client) FetchReasons(ctx context.Context, auth Auth) ([]Reason, error) {
	raw, err := c.do(ctx, call{
		op:     "fetch_reasons",
		method: http.MethodGet,
		url:    c.baseURL + "api/Dropdown/CB_GetAppointmentReasonsList",
		query:  url.Values{"PracticeName": {c.practiceFor(auth)}},
		header: bearer(auth.Token, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch reasons: %w", err)
	}
	reasons, err := decodeList[Reason](raw)
	if err != nil {
		return nil, fmt.Errorf("fetch reasons: decode: %w", err)
	}
	return reasons, nil
}

// FetchAvailableDates returns the bookable dates in [q.From, q.To], sorted.
func (c *Client) FetchAvailableDates(ctx context.Context, auth Auth, q AvailableDatesQuery) ([]time.Time, error) {
	payload := map[string]string{
		"FROMDATE":    q.From.Format(DateLayout),
		"TODATE":      q.To.Format(DateLayout),
		"LocationIds": q.LocationID,
		"ResourceIds": q.ProviderID,
		"ReasonIds":   q.ReasonID,
	}
	raw, err := c.do(ctx, call{
		op:     "fetch_available_dates",
		method: http.MethodPost,
		url:    c.baseURL + "api/Appointment/CB_GetAvailableDatesForAppointment",
		body:   payload,
		header: bearer(auth.Token, c.practiceFor(auth)),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch available dates: %w", err)
	}
	dates, err := decodeDates(raw)
	if err != nil {
		return nil, fmt.Errorf("fetch available dates: decode: %w", err)
	}
	return dates, nil
}

// FetchOpenSlots returns open slots on q.Date in server order.
func (c *Client) FetchOpenSlots(ctx context.Context, auth Auth, q OpenSlotsQuery) ([]AvailableSlot, error) {
	day := q.Date.Format(DateLayout)
	payload := map[string]any{
		"fromDate":           day,
		"toDate":             day,
		"locationIds":        q.LocationID,
		"appointmentTypeIds": "",
		"reasonIds":          q.ReasonID,
		"resourceIds":        q.ProviderID,
		"pageNo":             1,
		"pageSize":           500,
		"isOpenSlotsOnly":    true,
		"callFrom":           "",
	}
	raw, err := c.do(ctx, call{
		op:     "fetch_open_slots",
		method: http.MethodPost,
		url:    c.baseURL + "api/Appointment/CB_GetOpenSlot",
		body:   payload,
		header: bearer(auth.Token, c.practiceFor(auth)),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch open slots: %w", err)
	}
	wire, err := decodeList[openSlotWire](raw)
	if err != nil {
		return nil, fmt.Errorf("fetch open slots: decode: %w", err)
	}
	slots := make([]AvailableSlot, 0, len(wire))
	for _, w := range wire {
		slot, ok := w.toSlot()
		if !ok {
			c.logger.Warn("skipping open slot with unparseable start", "open_slot_id", w.OpenSlotID.String(), "start", w.ApptStartDateTime)
			continue
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// SendOTP asks the practice API to deliver a one-time code.
func (c *Client) SendOTP(ctx context.Context, auth Auth, req OTPRequest) error {
	_, err := c.do(ctx, call{
		op:     "send_otp",
		method: http.MethodPost,
		url:    c.baseURL + "CB_SendOTP",
		query:  url.Values{"PracticeName": {c.practiceFor(auth)}},
		body:   otpPayload(auth, OTPRequest{Phone: req.Phone, Email: req.Email, SessionID: req.SessionID}),
		header: bearer(auth.Token, ""),
	})
	if err != nil {
		return fmt.Errorf("send otp: %w", err)
	}
	return nil
}

// ValidateOTP reports whether the remote service accepted the code.
func (c *Client) ValidateOTP(ctx context.Context, auth Auth, req OTPRequest) (bool, error) {
	raw, err := c.do(ctx, call{
		op:     "validate_otp",
		method: http.MethodPost,
		url:    c.baseURL + "CB_ValidateOTP",
		query:  url.Values{"PracticeName": {c.practiceFor(auth)}},
		body:   otpPayload(auth, req),
		header: bearer(auth.Token, ""),
	})
	if err != nil {
		return false, fmt.Errorf("validate otp: %w", err)
	}
	return otpAccepted(raw), nil
}

// ResolveCustomerID looks up the practice customer id for an identity.
func (c *Client) ResolveCustomerID(ctx context.Context, auth Auth, id Identity, sessionID string) (string, error) {
	payload := map[string]string{
		"firstName":   id.FirstName,
		"lastName":    id.LastName,
		"middleName":  id.MiddleName,
		"dob":         id.DOB,
		"phoneNumber": id.Phone,
		"email":       id.Email,
		"SessionID":   sessionID,
	}
	header := http.Header{}
	// This endpoint expects a lower-case scheme.
	header.Set("Authorization", "bearer "+auth.Token)
	raw, err := c.do(ctx, call{
		op:     "resolve_customer_id",
		method: http.MethodPost,
		url:    c.baseURL + "api/Home/CB_GetCustomerIdFromDetails",
		body:   payload,
		header: header,
	})
	if err != nil {
		return "", fmt.Errorf("resolve customer id: %w", err)
	}
	return decodeCustomerID(raw), nil
}

// BookAppointment submits a finalized booking. A rejected booking returns an
// *APIError whose UserMessage carries the server text when present.
func (c *Client) BookAppointment(ctx context.Context, auth Auth, req BookingRequest) (*BookingResponse, error) {
	raw, err := c.do(ctx, call{
		op:     "book_appointment",
		method: http.MethodPost,
		url:    c.bookingURL,
		body:   req,
		header: bearer(auth.Token, c.practiceFor(auth)),
	})
	if err != nil {
		return nil, fmt.Errorf("book appointment: %w", err)
	}
	var body struct {
		BookingResponse
		Error string `json:"error"`
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			body.Response = strings.TrimSpace(string(raw))
		}
	}
	if strings.TrimSpace(body.Error) != "" {
		return nil, fmt.Errorf("book appointment: %w", &APIError{
			Op:          "book_appointment",
			Status:      http.StatusOK,
			Message:     body.Error,
			UserMessage: body.UserMessage,
		})
	}
	return &body.BookingResponse, nil
}

// GetPatientAppointment returns the raw appointment record for a patient.
func (c *Client) GetPatientAppointment(ctx context.Context, auth Auth, patientID string) (json.RawMessage, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, ErrMissingPatientID
	}
	raw, err := c.do(ctx, call{
		op:     "get_patient_appointment",
		method: http.MethodGet,
		url:    c.lookupURL,
		query:  url.Values{"patientNumber": {patientID}},
		header: bearer(auth.Token, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("get patient appointment: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(raw) {
		quoted, _ := json.Marshal(string(raw))
		return quoted, nil
	}
	return raw, nil
}

func (c *Client) practiceFor(auth Auth) string {
	if p := strings.TrimSpace(auth.Practice); p != "" {
		return p
	}
	return c.practiceName
}

type call struct {
	op     string
	method string
	url    string
	query  url.Values
	body   any
	header http.Header
}

func (c *Client) do(ctx context.Context, cl call) ([]byte, error) {
	ctx, span := practiceTracer.Start(ctx, "practice."+cl.op)
	defer span.End()
	span.SetAttributes(
		attribute.String("practice.op", cl.op),
		attribute.String("http.method", cl.method),
	)

	start := time.Now()
	exec := func() (interface{}, error) {
		return c.roundTrip(ctx, cl)
	}
	var (
		res interface{}
		err error
	)
	if c.breaker != nil {
		res, err = c.breaker.Execute(exec)
	} else {
		res, err = exec()
	}
	outcome := callOutcome(err)
	if c.observer != nil {
		c.observer.ObservePracticeCall(cl.op, outcome, time.Since(start).Seconds())
	}
	span.SetAttributes(attribute.String("practice.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		c.logger.Warn("practice api call failed", "op", cl.op, "outcome", outcome, "error", err)
		return nil, err
	}
	return res.([]byte), nil
}

func (c *Client) roundTrip(ctx context.Context, cl call) ([]byte, error) {
	endpoint := cl.url
	if len(cl.query) > 0 {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint += sep + cl.query.Encode()
	}

	var bodyReader io.Reader
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range cl.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(cl.op, resp.StatusCode, raw)
	}
	return raw, nil
}

func newAPIError(op string, status int, raw []byte) *APIError {
	apiErr := &APIError{Op: op, Status: status}
	var body struct {
		Error       string `json:"error"`
		Message     string `json:"message"`
		UserMessage string `json:"usermessage"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Message = firstNonEmpty(body.Error, body.Message)
		apiErr.UserMessage = body.UserMessage
		return apiErr
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 256 {
		text = text[:256]
	}
	apiErr.Message = text
	return apiErr
}

func callOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	if IsBreakerOpen(err) {
		return "breaker_open"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.clientSide() {
			return "client_error"
		}
		return "server_error"
	}
	return "transport_error"
}

func bearer(token, accountID string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	if accountID != "" {
		h.Set("AccountId", accountID)
	}
	return h
}

func otpPayload(auth Auth, req OTPRequest) map[string]any {
	phone := NormalizePhone(req.Phone)
	return map[string]any{
		"userOTP":          req.Code,
		"sessionId":        req.SessionID,
		"botId":            auth.BotID,
		"isSms":            channelPresent(phone),
		"isEmail":          channelPresent(req.Email),
		"recipientAddress": req.Email,
		"recipientPhone":   phone,
	}
}

// NormalizePhone prefixes a US country code and strips dashes and spaces.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" || strings.HasPrefix(phone, "+1") || strings.EqualFold(phone, "na") {
		return phone
	}
	phone = strings.NewReplacer("-", "", " ", "").Replace(phone)
	return "+1" + phone
}

func channelPresent(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.EqualFold(v, "na")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
