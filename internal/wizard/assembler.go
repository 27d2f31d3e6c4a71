package wizard

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

const (
	// SuccessMessage is the booking endpoint's success acknowledgement.
	SuccessMessage = "Appointment scheduled successfully."
	// GenericFailureMessage is shown when the server gives no user message.
	GenericFailureMessage = "Booking failed."
)

// Booking attempt outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

var wizardTracer = otel.Tracer("medspa.internal.wizard")

// Booker submits bookings.
type Booker interface {
	BookAppointment(ctx context.Context, auth practice.Auth, req practice.BookingRequest) (*practice.BookingResponse, error)
}

// BookingAttempt is an audit record of one submission. It carries ids only.
type BookingAttempt struct {
	SessionID  string
	LocationID string
	ProviderID string
	ReasonID   string
	SlotID     string
	ApptDate   time.Time
	Outcome    string
	Message    string
	At         time.Time
}

// AttemptRecorder persists booking attempts.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt BookingAttempt) error
}

// Confirmation is returned for a successful booking.
type Confirmation struct {
	Message     string
	SlotID      string
	Date        time.Time
	DisplayTime string
}

// Assembler builds and submits the booking request.
type Assembler struct {
	booker   Booker
	recorder AttemptRecorder
	logger   *logging.Logger
	now      func() time.Time
}

// NewAssembler creates an Assembler. recorder may be nil.
func NewAssembler(booker Booker, recorder AttemptRecorder, logger *logging.Logger) *Assembler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Assembler{booker: booker, recorder: recorder, logger: logger, now: time.Now}
}

// Build turns a gated draft into the booking request.
func (a *Assembler) Build(d *Draft, sessionID string) practice.BookingRequest {
	return practice.BookingRequest{
		OpenSlotID:   d.Slot.SlotID,
		ApptDate:     d.Slot.Date.Format(practice.DateLayout),
		ReasonID:     d.ReasonID,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		PatientDOB:   d.DOB,
		MobileNumber: d.Phone,
		EmailID:      d.Email,
		SessionID:    sessionID,
		ResourceID:   d.ProviderID,
		LocationID:   d.LocationID,
		IsNewPatient: practice.NewPatientFlag(d.IsNewPatient),
	}
}

// Submit sends exactly one booking request for the draft. The draft is never
// modified here.
func (a *Assembler) Submit(ctx context.Context, auth practice.Auth, d *Draft, sessionID string) (*Confirmation, error) {
	if err := CheckThrough(d, StepTimeSlot); err != nil {
		return nil, err
	}

	ctx, span := wizardTracer.Start(ctx, "wizard.submit_booking")
	defer span.End()
	span.SetAttributes(
		attribute.String("wizard.location_id", d.LocationID),
		attribute.String("wizard.slot_id", d.Slot.SlotID),
	)

	req := a.Build(d, sessionID)
	resp, err := a.booker.BookAppointment(ctx, auth, req)

	attempt := BookingAttempt{
		SessionID:  d.SessionID,
		LocationID: d.LocationID,
		ProviderID: d.ProviderID,
		ReasonID:   d.ReasonID,
		SlotID:     d.Slot.SlotID,
		ApptDate:   d.Slot.Date,
		At:         a.now().UTC(),
	}

	var result error
	switch {
	case err != nil:
		var apiErr *practice.APIError
		if errors.As(err, &apiErr) {
			attempt.Outcome = OutcomeRejected
			result = &BookingFailure{Message: userMessage(apiErr.UserMessage), Err: err}
		} else {
			attempt.Outcome = OutcomeError
			result = remote("book_appointment", err)
		}
	case resp == nil || resp.Response != SuccessMessage:
		attempt.Outcome = OutcomeRejected
		msg := ""
		if resp != nil {
			msg = resp.UserMessage
		}
		result = &BookingFailure{Message: userMessage(msg)}
	default:
		attempt.Outcome = OutcomeSucceeded
	}
	if result != nil {
		attempt.Message = result.Error()
		span.RecordError(result)
		span.SetStatus(codes.Error, attempt.Outcome)
	}
	span.SetAttributes(attribute.String("wizard.booking_outcome", attempt.Outcome))
	a.record(ctx, attempt)

	if result != nil {
		a.logger.Warn("booking not confirmed", "session_id", d.SessionID, "outcome", attempt.Outcome, "error", result)
		return nil, result
	}
	a.logger.Info("booking confirmed", "session_id", d.SessionID, "slot_id", d.Slot.SlotID)
	return &Confirmation{
		Message:     SuccessMessage,
		SlotID:      d.Slot.SlotID,
		Date:        d.Slot.Date,
		DisplayTime: d.Slot.DisplayTime,
	}, nil
}

func (a *Assembler) record(ctx context.Context, attempt BookingAttempt) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.RecordAttempt(ctx, attempt); err != nil {
		a.logger.Error("failed to record booking attempt", "session_id", attempt.SessionID, "error", err)
	}
}

func userMessage(msg string) string {
	if strings.TrimSpace(msg) == "" {
		return GenericFailureMessage
	}
	return msg
}
