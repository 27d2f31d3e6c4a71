package wizard

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearField(d *Draft, f Field) {
	switch f {
	case FieldFirstName:
		d.FirstName = ""
	case FieldLastName:
		d.LastName = ""
	case FieldDOB:
		d.DOB = ""
	case FieldPhoneNumber:
		d.Phone = " "
	case FieldOTP:
		d.OTP = ""
	case FieldLocation:
		d.LocationID = ""
	case FieldProvider:
		d.ProviderID = ""
	case FieldReason:
		d.ReasonID = ""
	case FieldStartDate:
		d.Range = DateRange{}
	case FieldSelectedDate:
		d.Slot.Date = time.Time{}
	case FieldTimeSlot:
		d.Slot.SlotID = ""
	}
}

func TestCanAdvance_EveryRequiredField(t *testing.T) {
	for _, step := range Steps() {
		require.True(t, CanAdvance(completeDraft(), step), "complete draft passes %s", step)

		for _, field := range RequiredFields(step) {
			t.Run(step.String()+"/"+string(field), func(t *testing.T) {
				d := completeDraft()
				clearField(d, field)
				assert.False(t, CanAdvance(d, step))

				var ve *ValidationError
				require.True(t, errors.As(CheckGate(d, step), &ve))
				assert.Equal(t, field, ve.Field)
				assert.Equal(t, step, ve.Step)
				assert.NotEmpty(t, ve.Message)
			})
		}
	}
}

func TestCheckGate_NamesFirstMissingField(t *testing.T) {
	d := &Draft{Identity: Identity{Phone: "555"}}
	var ve *ValidationError
	require.True(t, errors.As(CheckGate(d, StepPersonalInfo), &ve))
	assert.Equal(t, FieldFirstName, ve.Field)
}

func TestPersonalInfo_EmailOptional(t *testing.T) {
	d := &Draft{Identity: Identity{
		FirstName: "Jane",
		LastName:  "Doe",
		DOB:       "01/02/1990",
		Phone:     "555-123-4567",
		Email:     "",
	}}
	assert.True(t, CanAdvance(d, StepPersonalInfo))
}

func TestOTPGate_RequiresFourCharacters(t *testing.T) {
	for code, want := range map[string]bool{"123": false, "1234": true, "12345": false, " 9753 ": true} {
		d := &Draft{OTP: code, Verified: true}
		assert.Equal(t, want, CanAdvance(d, StepOTP), "code %q", code)
	}
}

func TestOTPGate_RequiresVerifiedCode(t *testing.T) {
	d := completeDraft()
	d.Verified = false
	assert.False(t, CanAdvance(d, StepOTP))

	var ve *ValidationError
	require.True(t, errors.As(CheckThrough(d, StepTimeSlot), &ve))
	assert.Equal(t, StepOTP, ve.Step)
	assert.Equal(t, FieldOTP, ve.Field)
}

func TestCheckThrough(t *testing.T) {
	d := completeDraft()
	require.NoError(t, CheckThrough(d, StepTimeSlot))

	d.ReasonID = ""
	var ve *ValidationError
	require.True(t, errors.As(CheckThrough(d, StepTimeSlot), &ve))
	assert.Equal(t, StepAppointmentType, ve.Step)
	assert.NoError(t, CheckThrough(d, StepOTP))
}

func TestDraft_LocationChangeClearsProvider(t *testing.T) {
	d := completeDraft()
	d.ProviderName = "Dr. One"

	assert.False(t, d.SetLocation("L1", ""))
	assert.Equal(t, "P1", d.ProviderID)

	assert.True(t, d.SetLocation("L2", "North"))
	assert.Empty(t, d.ProviderID)
	assert.Empty(t, d.ProviderName)
	assert.Equal(t, "R1", d.ReasonID, "other selections are kept")
}

func TestDraft_MergeIdentityIsAdditive(t *testing.T) {
	d := &Draft{Identity: janeDoe()}
	d.Identity.Email = "jane@example.com"
	d.MergeIdentity(Identity{FirstName: "Janet"})
	assert.Equal(t, "Janet", d.FirstName)
	assert.Equal(t, "jane@example.com", d.Email)
	assert.Equal(t, "Doe", d.LastName)
}

func TestStepNavigation(t *testing.T) {
	next, ok := StepPersonalInfo.Next()
	assert.True(t, ok)
	assert.Equal(t, StepOTP, next)

	_, ok = StepTimeSlot.Next()
	assert.False(t, ok)
	assert.Equal(t, StepPersonalInfo, StepPersonalInfo.Prev())

	s, err := ParseStep("date_range")
	require.NoError(t, err)
	assert.Equal(t, StepDateRange, s)
	_, err = ParseStep("nope")
	assert.Error(t, err)
}
