package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
	"github.com/wolfman30/medspa-booking-wizard/internal/session"
	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

// Config tunes wizard behaviour.
type Config struct {
	MaxRangeDays        int
	AvailableDateWindow int
	OTPTestMode         bool
	// FallbackSessionID replaces the session id sent to the practice API,
	// only in OTP test mode.
	FallbackSessionID string
}

// Metrics receives wizard events. Implementations must be safe for concurrent use.
type Metrics interface {
	ObserveTransition(from, to string)
	ObserveValidationFailure(step, field string)
	ObserveBooking(outcome string)
	ObserveStaleResponse(op string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTransition(string, string)        {}
func (noopMetrics) ObserveValidationFailure(string, string) {}
func (noopMetrics) ObserveBooking(string)                   {}
func (noopMetrics) ObserveStaleResponse(string)             {}

// Deps are the collaborators of a Controller.
type Deps struct {
	API       practice.API
	Store     session.Store
	OTP       *OTPVerifier
	Assembler *Assembler
	Metrics   Metrics
	Logger    *logging.Logger
	Now       func() time.Time
}

// Snapshot is a copy of the controller state.
type Snapshot struct {
	SessionID  string
	Step       Step
	Draft      Draft
	RangeState RangeState
}

// CalendarView is the displayed month of the date-range selector.
type CalendarView struct {
	Year  int
	Month time.Month
	Cells []Cell
	State RangeState
	Range DateRange
}

// Controller owns one session's draft and drives it through the steps.
// Generation counters tag dependent fetches so late responses are dropped.
type Controller struct {
	mu sync.Mutex

	sess      *session.Session
	api       practice.API
	store     session.Store
	otp       *OTPVerifier
	assembler *Assembler
	metrics   Metrics
	logger    *logging.Logger
	cfg       Config
	now       func() time.Time

	step      Step
	draft     Draft
	selector  *Selector
	locations []practice.Location
	reasons   []practice.Reason
	providers []practice.Provider
	slots     []practice.AvailableSlot

	providersFor string
	locationGen  uint64
	selectionGen uint64

	// lastSeen holds unix nanoseconds and is read without mu.
	lastSeen atomic.Int64
}

// NewController creates a controller on the entry step.
func NewController(sess *session.Session, deps Deps, cfg Config) *Controller {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.OTP == nil {
		deps.OTP = NewOTPVerifier(deps.API, false, nil, deps.Logger)
	}
	if deps.Assembler == nil {
		deps.Assembler = NewAssembler(deps.API, nil, deps.Logger)
	}
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = DefaultMaxRangeDays
	}
	if cfg.AvailableDateWindow <= 0 {
		cfg.AvailableDateWindow = 60
	}
	now := deps.Now()
	c := &Controller{
		sess:      sess,
		api:       deps.API,
		store:     deps.Store,
		otp:       deps.OTP,
		assembler: deps.Assembler,
		metrics:   deps.Metrics,
		logger:    deps.Logger.WithSession(sess.ID),
		cfg:       cfg,
		now:       deps.Now,
		step:      EntryStep,
		draft:     Draft{SessionID: sess.ID},
		selector:  NewSelector(now, cfg.MaxRangeDays),
	}
	c.lastSeen.Store(now.UnixNano())
	return c
}

// Restore rehydrates the draft and step from the store.
func (c *Controller) Restore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, step, err := loadFragments(ctx, c.store, c.sess.ID)
	if err != nil {
		return err
	}
	c.draft = d
	c.step = step
	c.selector.Restore(d.Range)

	// Fetched lists are not persisted; reload what the current step shows.
	auth := c.sess.Auth()
	if step >= StepDateRange {
		dates, err := c.api.FetchAvailableDates(ctx, auth, c.availableDatesQuery())
		if err != nil {
			c.logger.Warn("reload available dates failed", "error", err)
		} else {
			c.selector.SetAvailable(dates)
		}
	}
	if step == StepTimeSlot {
		slots, err := c.fetchSlots(ctx, auth, d.Range.Dates(), c.openSlotsQuery())
		if err != nil {
			c.logger.Warn("reload open slots failed", "error", err)
		} else {
			c.slots = slots
		}
	}
	return nil
}

// Session returns the session context.
func (c *Controller) Session() *session.Session { return c.sess }

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:  c.sess.ID,
		Step:       c.step,
		Draft:      c.draft,
		RangeState: c.selector.State(),
	}
}

// LastSeen is the time of the last interaction.
func (c *Controller) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Advance moves forward when the current step's gate is satisfied.
func (c *Controller) Advance(ctx context.Context) (Step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if err := c.advanceLocked(ctx); err != nil {
		return c.step, err
	}
	return c.step, nil
}

// Back moves to the previous step. It always succeeds and clears nothing.
func (c *Controller) Back(ctx context.Context) Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	prev := c.step.Prev()
	if prev != c.step {
		c.metrics.ObserveTransition(c.step.String(), prev.String())
		c.step = prev
		c.persistLocked(ctx)
	}
	return c.step
}

// SubmitPersonalInfo records identity fields and advances to OTP.
func (c *Controller) SubmitPersonalInfo(ctx context.Context, id Identity) (Step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if err := c.requireStep(StepPersonalInfo); err != nil {
		return c.step, err
	}
	c.draft.MergeIdentity(id)
	if err := c.advanceLocked(ctx); err != nil {
		c.persistLocked(ctx)
		return c.step, err
	}
	return c.step, nil
}

// SendOTP asks the practice API to deliver a code to the draft's contacts.
func (c *Controller) SendOTP(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if err := c.requireStep(StepOTP); err != nil {
		return err
	}
	err := c.api.SendOTP(ctx, c.sess.Auth(), practice.OTPRequest{
		Phone:     c.draft.Phone,
		Email:     c.draft.Email,
		SessionID: c.remoteSessionID(),
	})
	if err != nil {
		return remote("send_otp", err)
	}
	c.logger.Info("otp sent", "phone", logging.MaskPhone(c.draft.Phone))
	return nil
}

// VerifyOTP checks code, resolves the customer id and advances.
func (c *Controller) VerifyOTP(ctx context.Context, code string) (Step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if err := c.requireStep(StepOTP); err != nil {
		return c.step, err
	}
	c.draft.OTP = strings.TrimSpace(code)
	c.draft.Verified = false
	if !validOTPCode(c.draft.OTP) {
		return c.step, c.validation(StepOTP, FieldOTP, fieldMessages[FieldOTP])
	}

	auth := c.sess.Auth()
	ok, err := c.otp.Verify(ctx, auth, practice.OTPRequest{
		Code:      c.draft.OTP,
		Phone:     c.draft.Phone,
		Email:     c.draft.Email,
		SessionID: c.remoteSessionID(),
	})
	if err != nil {
		return c.step, remote("validate_otp", err)
	}
	if !ok {
		c.metrics.ObserveValidationFailure(StepOTP.String(), string(FieldOTP))
		return c.step, &ValidationError{Step: StepOTP, Field: FieldOTP, Message: "Invalid verification code. Please try again."}
	}
	c.draft.Verified = true

	customerID, err := c.api.ResolveCustomerID(ctx, auth, practice.Identity{
		FirstName: c.draft.FirstName,
		LastName:  c.draft.LastName,
		DOB:       c.draft.DOB,
		Phone:     c.draft.Phone,
		Email:     c.draft.Email,
	}, c.remoteSessionID())
	if err != nil {
		c.logger.Warn("customer lookup failed", "error", err)
	} else if customerID != "" {
		c.draft.CustomerID = customerID
	}

	if err := c.advanceLocked(ctx); err != nil {
		return c.step, err
	}
	return c.step, nil
}

// Locations returns the practice locations, cached per session.
func (c *Controller) Locations(ctx context.Context) ([]practice.Location, error) {
	c.mu.Lock()
	c.touch()
	if c.locations != nil {
		defer c.mu.Unlock()
		return c.locations, nil
	}
	auth := c.sess.Auth()
	c.mu.Unlock()

	locations, err := c.api.FetchLocations(ctx, auth)
	if err != nil {
		return nil, remote("fetch_locations", err)
	}
	c.mu.Lock()
	c.locations = locations
	c.mu.Unlock()
	return locations, nil
}

// Reasons returns the appointment reasons, cached per session.
func (c *Controller) Reasons(ctx context.Context) ([]practice.Reason, error) {
	c.mu.Lock()
	c.touch()
	if c.reasons != nil {
		defer c.mu.Unlock()
		return c.reasons, nil
	}
	auth := c.sess.Auth()
	c.mu.Unlock()

	reasons, err := c.api.FetchReasons(ctx, auth)
	if err != nil {
		return nil, remote("fetch_reasons", err)
	}
	c.mu.Lock()
	c.reasons = reasons
	c.mu.Unlock()
	return reasons, nil
}

// SelectLocation records a location choice. Changing it clears the provider
// and invalidates in-flight provider fetches.
func (c *Controller) SelectLocation(ctx context.Context, locationID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if c.draft.SetLocation(locationID, name) {
		c.locationChangedLocked()
	}
	c.persistLocked(ctx)
}

// Providers fetches providers for locationID (the draft location when empty).
// It returns ErrStaleResponse when the location changed during the fetch.
func (c *Controller) Providers(ctx context.Context, locationID string) ([]practice.Provider, error) {
	c.mu.Lock()
	c.touch()
	if strings.TrimSpace(locationID) == "" {
		locationID = c.draft.LocationID
	}
	if locationID == "" {
		c.mu.Unlock()
		return nil, &ValidationError{Step: StepAppointmentType, Field: FieldLocation, Message: fieldMessages[FieldLocation]}
	}
	if c.providers != nil && c.providersFor == locationID {
		defer c.mu.Unlock()
		return c.providers, nil
	}
	gen := c.locationGen
	auth := c.sess.Auth()
	c.mu.Unlock()

	providers, err := c.api.FetchProviders(ctx, auth, locationID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.locationGen {
		c.metrics.ObserveStaleResponse("fetch_providers")
		return nil, ErrStaleResponse
	}
	if err != nil {
		return nil, remote("fetch_providers", err)
	}
	c.providers = providers
	c.providersFor = locationID
	return providers, nil
}

// SelectAppointmentType records location, provider and reason, loads the
// bookable dates and advances to the date range step.
func (c *Controller) SelectAppointmentType(ctx context.Context, sel AppointmentSelection) (Step, error) {
	c.mu.Lock()
	c.touch()
	if err := c.requireStep(StepAppointmentType); err != nil {
		defer c.mu.Unlock()
		return c.step, err
	}
	prevLocation := c.draft.LocationID
	if c.draft.MergeSelection(sel) {
		if prevLocation != c.draft.LocationID {
			c.locationChangedLocked()
		} else {
			c.selectionChangedLocked()
		}
	}
	if err := c.gateLocked(StepAppointmentType); err != nil {
		c.persistLocked(ctx)
		defer c.mu.Unlock()
		return c.step, err
	}
	gen := c.selectionGen
	auth := c.sess.Auth()
	q := c.availableDatesQuery()
	c.mu.Unlock()

	dates, err := c.api.FetchAvailableDates(ctx, auth, q)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.selectionGen {
		c.metrics.ObserveStaleResponse("fetch_available_dates")
		return c.step, ErrStaleResponse
	}
	if err != nil {
		return c.step, remote("fetch_available_dates", err)
	}
	c.selector.SetAvailable(dates)
	if len(dates) > 0 && c.selector.State() == RangeEmpty {
		c.selector.year, c.selector.month = dates[0].Year(), dates[0].Month()
	}
	if err := c.advanceLocked(ctx); err != nil {
		return c.step, err
	}
	return c.step, nil
}

// Calendar returns the displayed month.
func (c *Controller) Calendar() CalendarView {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	return c.calendarLocked()
}

func (c *Controller) calendarLocked() CalendarView {
	year, month := c.selector.Month()
	return CalendarView{
		Year:  year,
		Month: month,
		Cells: c.selector.Grid(),
		State: c.selector.State(),
		Range: c.selector.Range(),
	}
}

// PrevMonth shows the previous month.
func (c *Controller) PrevMonth() CalendarView {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	c.selector.PrevMonth()
	return c.calendarLocked()
}

// NextMonth shows the next month.
func (c *Controller) NextMonth() CalendarView {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	c.selector.NextMonth()
	return c.calendarLocked()
}

// ClickDate feeds a calendar click to the date-range selector.
func (c *Controller) ClickDate(ctx context.Context, day time.Time) (ClickResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if err := c.requireStep(StepDateRange); err != nil {
		return ClickResult{State: c.selector.State(), Range: c.selector.Range()}, err
	}
	res := c.selector.Click(day)
	if res.Ignored {
		return res, nil
	}
	c.draft.Range = res.Range
	c.selectionChangedLocked()
	c.persistLocked(ctx)
	return res, nil
}

// ConfirmDateRange loads open slots for every day of the range and advances
// to the time slot step.
func (c *Controller) ConfirmDateRange(ctx context.Context) (Step, error) {
	c.mu.Lock()
	c.touch()
	if err := c.requireStep(StepDateRange); err != nil {
		defer c.mu.Unlock()
		return c.step, err
	}
	if err := c.gateLocked(StepDateRange); err != nil {
		defer c.mu.Unlock()
		return c.step, err
	}
	gen := c.selectionGen
	auth := c.sess.Auth()
	days := c.draft.Range.Dates()
	base := c.openSlotsQuery()
	c.mu.Unlock()

	all, fetchErr := c.fetchSlots(ctx, auth, days, base)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.selectionGen {
		c.metrics.ObserveStaleResponse("fetch_open_slots")
		return c.step, ErrStaleResponse
	}
	if fetchErr != nil {
		return c.step, remote("fetch_open_slots", fetchErr)
	}
	c.slots = all
	if err := c.advanceLocked(ctx); err != nil {
		return c.step, err
	}
	return c.step, nil
}

// Slots returns the loaded slots on date within bucket, in server order.
func (c *Controller) Slots(date time.Time, bucket Bucket) ([]practice.AvailableSlot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if err := c.requireStep(StepTimeSlot); err != nil {
		return nil, err
	}
	return Collect(c.slots, date, bucket), nil
}

// SlotDays returns all loaded slots grouped by day and bucket.
func (c *Controller) SlotDays() ([]DaySlots, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if err := c.requireStep(StepTimeSlot); err != nil {
		return nil, err
	}
	return GroupByDay(c.slots), nil
}

// SelectSlot records the chosen slot. The flow stays on the time slot step
// until Finish.
func (c *Controller) SelectSlot(ctx context.Context, date time.Time, slotID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if err := c.requireStep(StepTimeSlot); err != nil {
		return err
	}
	if date.IsZero() {
		return c.validation(StepTimeSlot, FieldSelectedDate, fieldMessages[FieldSelectedDate])
	}
	if strings.TrimSpace(slotID) == "" {
		return c.validation(StepTimeSlot, FieldTimeSlot, fieldMessages[FieldTimeSlot])
	}
	slot, ok := FindSlot(c.slots, date, slotID)
	if !ok {
		return c.validation(StepTimeSlot, FieldTimeSlot, "The selected time slot is not available. Please choose another.")
	}
	c.draft.SelectSlot(SlotSelection{
		Date:        CivilDate(slot.Start),
		SlotID:      slot.ID,
		DisplayTime: slot.DisplayTime,
		Duration:    slot.Duration,
	})
	c.persistLocked(ctx)
	return nil
}

// Finish submits the booking once. On success all draft state is cleared and
// the flow returns to the entry step; on failure the draft is kept.
func (c *Controller) Finish(ctx context.Context) (*Confirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if err := c.requireStep(StepTimeSlot); err != nil {
		return nil, err
	}
	if err := c.gateLocked(StepTimeSlot); err != nil {
		return nil, err
	}

	conf, err := c.assembler.Submit(ctx, c.sess.Auth(), &c.draft, c.remoteSessionID())
	if err != nil {
		c.metrics.ObserveBooking(bookingOutcome(err))
		return nil, err
	}
	c.metrics.ObserveBooking(OutcomeSucceeded)

	if c.store != nil {
		if err := c.store.Delete(ctx, c.sess.ID, session.DraftKeys...); err != nil {
			c.logger.Error("failed to clear draft after booking", "error", err)
		}
	}
	c.metrics.ObserveTransition(c.step.String(), EntryStep.String())
	c.draft = Draft{SessionID: c.sess.ID}
	c.step = EntryStep
	c.selector.Reset()
	c.slots = nil
	c.providers = nil
	c.providersFor = ""
	c.locationGen++
	c.selectionGen++
	return conf, nil
}

// PatientAppointment looks up a patient's appointment record.
func (c *Controller) PatientAppointment(ctx context.Context, patientID string) (json.RawMessage, error) {
	c.mu.Lock()
	c.touch()
	auth := c.sess.Auth()
	step := c.step
	c.mu.Unlock()
	raw, err := c.api.GetPatientAppointment(ctx, auth, patientID)
	if err != nil {
		if errors.Is(err, practice.ErrMissingPatientID) {
			return nil, &ValidationError{Step: step, Field: "patientId", Message: "Missing patient ID."}
		}
		return nil, remote("get_patient_appointment", err)
	}
	return raw, nil
}

func (c *Controller) availableDatesQuery() practice.AvailableDatesQuery {
	today := CivilDate(c.now())
	return practice.AvailableDatesQuery{
		LocationID: c.draft.LocationID,
		ProviderID: c.draft.ProviderID,
		ReasonID:   c.draft.ReasonID,
		From:       today,
		To:         today.AddDate(0, 0, c.cfg.AvailableDateWindow),
	}
}

func (c *Controller) openSlotsQuery() practice.OpenSlotsQuery {
	return practice.OpenSlotsQuery{
		LocationID: c.draft.LocationID,
		ProviderID: c.draft.ProviderID,
		ReasonID:   c.draft.ReasonID,
	}
}

// fetchSlots loads open slots one day at a time, stopping at the first error.
func (c *Controller) fetchSlots(ctx context.Context, auth practice.Auth, days []time.Time, base practice.OpenSlotsQuery) ([]practice.AvailableSlot, error) {
	var all []practice.AvailableSlot
	for _, day := range days {
		q := base
		q.Date = day
		slots, err := c.api.FetchOpenSlots(ctx, auth, q)
		if err != nil {
			return nil, err
		}
		all = append(all, slots...)
	}
	return all, nil
}

func (c *Controller) advanceLocked(ctx context.Context) error {
	if err := c.gateLocked(c.step); err != nil {
		return err
	}
	next, ok := c.step.Next()
	if !ok {
		return nil
	}
	c.metrics.ObserveTransition(c.step.String(), next.String())
	c.logger.Info("wizard step advanced", "from", c.step.String(), "to", next.String())
	c.step = next
	c.persistLocked(ctx)
	return nil
}

func (c *Controller) gateLocked(step Step) error {
	err := CheckGate(&c.draft, step)
	if ve, ok := err.(*ValidationError); ok {
		c.metrics.ObserveValidationFailure(step.String(), string(ve.Field))
	}
	return err
}

func (c *Controller) validation(step Step, field Field, msg string) error {
	c.metrics.ObserveValidationFailure(step.String(), string(field))
	return &ValidationError{Step: step, Field: field, Message: msg}
}

func (c *Controller) requireStep(step Step) error {
	if c.step != step {
		return ErrWrongStep
	}
	return nil
}

func (c *Controller) locationChangedLocked() {
	c.locationGen++
	c.providers = nil
	c.providersFor = ""
	c.selectionChangedLocked()
}

func (c *Controller) selectionChangedLocked() {
	c.selectionGen++
	c.slots = nil
}

func (c *Controller) persistLocked(ctx context.Context) {
	if c.store == nil {
		return
	}
	values, err := encodeFragments(&c.draft, c.step)
	if err == nil {
		err = c.store.Put(ctx, c.sess.ID, values)
	}
	if err != nil {
		c.logger.Error("failed to persist draft", "error", err)
	}
}

func (c *Controller) remoteSessionID() string {
	if c.cfg.OTPTestMode && strings.TrimSpace(c.cfg.FallbackSessionID) != "" {
		return c.cfg.FallbackSessionID
	}
	return c.draft.SessionID
}

func (c *Controller) touch() { c.lastSeen.Store(c.now().UnixNano()) }

func bookingOutcome(err error) string {
	switch err.(type) {
	case *BookingFailure:
		return OutcomeRejected
	case *ValidationError:
		return "invalid"
	default:
		return OutcomeError
	}
}
