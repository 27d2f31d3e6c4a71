package wizard

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
)

type stubBooker struct {
	resp *practice.BookingResponse
	err  error
	reqs []practice.BookingRequest
}

func (s *stubBooker) BookAppointment(ctx context.Context, auth practice.Auth, req practice.BookingRequest) (*practice.BookingResponse, error) {
	s.reqs = append(s.reqs, req)
	return s.resp, s.err
}

type stubRecorder struct {
	attempts []BookingAttempt
	err      error
}

func (s *stubRecorder) RecordAttempt(ctx context.Context, a BookingAttempt) error {
	s.attempts = append(s.attempts, a)
	return s.err
}

func TestAssembler_Build(t *testing.T) {
	d := completeDraft()
	d.Email = "jane@example.com"
	d.IsNewPatient = true

	req := NewAssembler(nil, nil, nil).Build(d, "remote-session")
	assert.Equal(t, practice.BookingRequest{
		OpenSlotID:   "S1",
		ApptDate:     "2024-03-10",
		ReasonID:     "R1",
		FirstName:    "Jane",
		LastName:     "Doe",
		PatientDOB:   "01/02/1990",
		MobileNumber: "555-123-4567",
		EmailID:      "jane@example.com",
		SessionID:    "remote-session",
		ResourceID:   "P1",
		LocationID:   "L1",
		IsNewPatient: practice.NewPatientFlag(true),
	}, req)
}

func TestAssembler_SubmitSuccess(t *testing.T) {
	booker := &stubBooker{resp: &practice.BookingResponse{Response: SuccessMessage}}
	rec := &stubRecorder{}
	d := completeDraft()

	conf, err := NewAssembler(booker, rec, nil).Submit(context.Background(), practice.Auth{}, d, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, SuccessMessage, conf.Message)
	assert.Equal(t, "S1", conf.SlotID)
	require.Len(t, booker.reqs, 1)
	require.Len(t, rec.attempts, 1)
	assert.Equal(t, OutcomeSucceeded, rec.attempts[0].Outcome)
	assert.Equal(t, "S1", rec.attempts[0].SlotID)
	assert.Equal(t, completeDraft(), d, "draft is not modified")
}

func TestAssembler_SubmitFailures(t *testing.T) {
	tests := []struct {
		name        string
		booker      *stubBooker
		wantMessage string
		wantOutcome string
		wantRemote  bool
	}{
		{
			name:        "usermessage surfaced",
			booker:      &stubBooker{resp: &practice.BookingResponse{Response: "Failed", UserMessage: "That slot was just taken."}},
			wantMessage: "That slot was just taken.",
			wantOutcome: OutcomeRejected,
		},
		{
			name:        "generic message",
			booker:      &stubBooker{resp: &practice.BookingResponse{Response: "appointment scheduled"}},
			wantMessage: GenericFailureMessage,
			wantOutcome: OutcomeRejected,
		},
		{
			name:        "api rejection",
			booker:      &stubBooker{err: &practice.APIError{Op: "book_appointment", Status: http.StatusConflict, UserMessage: "Slot unavailable."}},
			wantMessage: "Slot unavailable.",
			wantOutcome: OutcomeRejected,
		},
		{
			name:        "transport failure",
			booker:      &stubBooker{err: errors.New("connection reset")},
			wantOutcome: OutcomeError,
			wantRemote:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &stubRecorder{}
			conf, err := NewAssembler(tt.booker, rec, nil).Submit(context.Background(), practice.Auth{}, completeDraft(), "sess-1")
			require.Error(t, err)
			assert.Nil(t, conf)

			if tt.wantRemote {
				var rce *RemoteCallError
				assert.True(t, errors.As(err, &rce))
			} else {
				var bf *BookingFailure
				require.True(t, errors.As(err, &bf))
				assert.Equal(t, tt.wantMessage, bf.Message)
			}
			require.Len(t, rec.attempts, 1)
			assert.Equal(t, tt.wantOutcome, rec.attempts[0].Outcome)
			assert.NotEmpty(t, rec.attempts[0].Message)
		})
	}
}

func TestAssembler_RejectsIncompleteDraft(t *testing.T) {
	booker := &stubBooker{resp: &practice.BookingResponse{Response: SuccessMessage}}
	d := completeDraft()
	d.Slot.SlotID = ""

	_, err := NewAssembler(booker, nil, nil).Submit(context.Background(), practice.Auth{}, d, "sess-1")
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, FieldTimeSlot, ve.Field)
	assert.Empty(t, booker.reqs, "nothing is sent")
}

func TestAssembler_RecorderFailureDoesNotFailBooking(t *testing.T) {
	booker := &stubBooker{resp: &practice.BookingResponse{Response: SuccessMessage}}
	rec := &stubRecorder{err: errors.New("db down")}
	_, err := NewAssembler(booker, rec, nil).Submit(context.Background(), practice.Auth{}, completeDraft(), "sess-1")
	assert.NoError(t, err)
}
