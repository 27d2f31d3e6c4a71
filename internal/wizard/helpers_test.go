package wizard

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
	"github.com/wolfman30/medspa-booking-wizard/internal/session"
	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

type fakeAPI struct {
	mu sync.Mutex

	locations     []practice.Location
	reasons       []practice.Reason
	providers     map[string][]practice.Provider
	providersHook func(locationID string)
	dates         []time.Time
	datesErr      error
	datesHook     func()
	slots         map[string][]practice.AvailableSlot
	slotsErr      error
	sendErr       error
	validateOK    bool
	validateErr   error
	validateHook  func()
	customerID    string
	customerErr   error
	bookResp      *practice.BookingResponse
	bookErr       error
	appointment   json.RawMessage

	sent        []practice.OTPRequest
	validated   []practice.OTPRequest
	bookings    []practice.BookingRequest
	slotQueries []practice.OpenSlotsQuery
	datesCalls  int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		locations: []practice.Location{{ID: "L1", Name: "Main"}, {ID: "L2", Name: "North"}},
		reasons:   []practice.Reason{{ID: "R1", Name: "Eye exam"}},
		providers: map[string][]practice.Provider{
			"L1": {{ID: "P1", Name: "Dr. One"}},
			"L2": {{ID: "P2", Name: "Dr. Two"}},
		},
		dates: []time.Time{day(2024, 3, 10), day(2024, 3, 12), day(2024, 3, 15), day(2024, 3, 20)},
		slots: map[string][]practice.AvailableSlot{
			"2024-03-10": {
				slotAt("S1", 2024, 3, 10, 9, 0),
				slotAt("S2", 2024, 3, 10, 13, 30),
			},
			"2024-03-12": {
				slotAt("S3", 2024, 3, 12, 17, 0),
			},
		},
		validateOK: true,
		customerID: "C-1",
		bookResp:   &practice.BookingResponse{Response: SuccessMessage},
	}
}

func (f *fakeAPI) FetchVendorCredentials(ctx context.Context, botID string) ([]practice.VendorCredential, error) {
	return []practice.VendorCredential{{VendorID: "1", VendorName: "WelcomeformAPI", AccountID: "acme"}}, nil
}

func (f *fakeAPI) ExchangeForToken(ctx context.Context, p string, cred practice.VendorCredential) (string, error) {
	return "tok", nil
}

func (f *fakeAPI) FetchLocations(ctx context.Context, auth practice.Auth) ([]practice.Location, error) {
	return f.locations, nil
}

func (f *fakeAPI) FetchProviders(ctx context.Context, auth practice.Auth, locationID string) ([]practice.Provider, error) {
	if f.providersHook != nil {
		f.providersHook(locationID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.providers[locationID], nil
}

func (f *fakeAPI) FetchReasons(ctx context.Context, auth practice.Auth) ([]practice.Reason, error) {
	return f.reasons, nil
}

func (f *fakeAPI) FetchAvailableDates(ctx context.Context, auth practice.Auth, q practice.AvailableDatesQuery) ([]time.Time, error) {
	if f.datesHook != nil {
		f.datesHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.datesCalls++
	return f.dates, f.datesErr
}

func (f *fakeAPI) FetchOpenSlots(ctx context.Context, auth practice.Auth, q practice.OpenSlotsQuery) ([]practice.AvailableSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slotQueries = append(f.slotQueries, q)
	if f.slotsErr != nil {
		return nil, f.slotsErr
	}
	return f.slots[q.Date.Format(practice.DateLayout)], nil
}

func (f *fakeAPI) SendOTP(ctx context.Context, auth practice.Auth, req practice.OTPRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return f.sendErr
}

func (f *fakeAPI) ValidateOTP(ctx context.Context, auth practice.Auth, req practice.OTPRequest) (bool, error) {
	f.mu.Lock()
	f.validated = append(f.validated, req)
	hook := f.validateHook
	ok, err := f.validateOK, f.validateErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ok, err
}

func (f *fakeAPI) ResolveCustomerID(ctx context.Context, auth practice.Auth, id practice.Identity, sessionID string) (string, error) {
	return f.customerID, f.customerErr
}

func (f *fakeAPI) BookAppointment(ctx context.Context, auth practice.Auth, req practice.BookingRequest) (*practice.BookingResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookings = append(f.bookings, req)
	return f.bookResp, f.bookErr
}

func (f *fakeAPI) GetPatientAppointment(ctx context.Context, auth practice.Auth, patientID string) (json.RawMessage, error) {
	if patientID == "" {
		return nil, practice.ErrMissingPatientID
	}
	return f.appointment, nil
}

type recordingMetrics struct {
	mu          sync.Mutex
	transitions []string
	validation  []string
	bookings    []string
	stale       []string
}

func (m *recordingMetrics) ObserveTransition(from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, from+"->"+to)
}

func (m *recordingMetrics) ObserveValidationFailure(step, field string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validation = append(m.validation, step+":"+field)
}

func (m *recordingMetrics) ObserveBooking(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings = append(m.bookings, outcome)
}

func (m *recordingMetrics) ObserveStaleResponse(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stale = append(m.stale, op)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func slotAt(id string, y int, m time.Month, d, hour, minute int) practice.AvailableSlot {
	start := time.Date(y, m, d, hour, minute, 0, 0, time.UTC)
	return practice.AvailableSlot{
		ID:          id,
		Start:       start,
		End:         start.Add(30 * time.Minute),
		DisplayTime: start.Format("03:04 PM"),
		Duration:    "30",
	}
}

func testSession() *session.Session {
	return &session.Session{ID: "sess-1", BotID: "bot-1", Practice: "acme", Token: "tok"}
}

func fixedNow() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }

type controllerFixture struct {
	api     *fakeAPI
	store   *session.MemoryStore
	metrics *recordingMetrics
	ctrl    *Controller
}

func newControllerFixture(cfg Config) *controllerFixture {
	api := newFakeAPI()
	store := session.NewMemoryStore(time.Hour)
	metrics := &recordingMetrics{}
	logger := logging.Default()
	deps := Deps{
		API:       api,
		Store:     store,
		OTP:       NewOTPVerifier(api, cfg.OTPTestMode, []string{"1234", "9753"}, logger),
		Assembler: NewAssembler(api, nil, logger),
		Metrics:   metrics,
		Logger:    logger,
		Now:       fixedNow,
	}
	return &controllerFixture{
		api:     api,
		store:   store,
		metrics: metrics,
		ctrl:    NewController(testSession(), deps, cfg),
	}
}

func janeDoe() Identity {
	return Identity{FirstName: "Jane", LastName: "Doe", DOB: "01/02/1990", Phone: "555-123-4567"}
}

func completeDraft() *Draft {
	start, end := day(2024, 3, 10), day(2024, 3, 12)
	return &Draft{
		Identity:             janeDoe(),
		OTP:                  "4821",
		Verified:             true,
		AppointmentSelection: AppointmentSelection{LocationID: "L1", ProviderID: "P1", ReasonID: "R1"},
		Range:                DateRange{Start: &start, End: &end},
		Slot:                 SlotSelection{Date: start, SlotID: "S1", DisplayTime: "09:00 AM", Duration: "30"},
		SessionID:            "sess-1",
	}
}
