package wizard

import "strings"

// Field names a draft field checked by a step gate.
type Field string

const (
	FieldFirstName    Field = "firstName"
	FieldLastName     Field = "lastName"
	FieldDOB          Field = "dob"
	FieldPhoneNumber  Field = "phoneNumber"
	FieldOTP          Field = "otp"
	FieldLocation     Field = "location"
	FieldProvider     Field = "provider"
	FieldReason       Field = "reason"
	FieldStartDate    Field = "startDate"
	FieldSelectedDate Field = "selectedDate"
	FieldTimeSlot     Field = "selectedTimeSlot"
)

// OTPLength is the number of digits in a verification code.
const OTPLength = 4

var requiredFields = map[Step][]Field{
	StepPersonalInfo:    {FieldFirstName, FieldLastName, FieldDOB, FieldPhoneNumber},
	StepOTP:             {FieldOTP},
	StepAppointmentType: {FieldLocation, FieldProvider, FieldReason},
	StepDateRange:       {FieldStartDate},
	StepTimeSlot:        {FieldSelectedDate, FieldTimeSlot},
}

var fieldMessages = map[Field]string{
	FieldFirstName:    "First name is required.",
	FieldLastName:     "Last name is required.",
	FieldDOB:          "Date of birth is required.",
	FieldPhoneNumber:  "Phone number is required.",
	FieldOTP:          "Please enter the 4-digit verification code.",
	FieldLocation:     "Please select a location.",
	FieldProvider:     "Please select a provider.",
	FieldReason:       "Please select a reason for the visit.",
	FieldStartDate:    "Please select a date range.",
	FieldSelectedDate: "Please select a date.",
	FieldTimeSlot:     "Please select a time slot.",
}

// RequiredFields returns the fields step requires, in check order.
func RequiredFields(step Step) []Field {
	return append([]Field(nil), requiredFields[step]...)
}

// CanAdvance reports whether every field required by step is present.
func CanAdvance(d *Draft, step Step) bool {
	return CheckGate(d, step) == nil
}

// CheckGate returns a *ValidationError naming the first missing field.
func CheckGate(d *Draft, step Step) error {
	for _, f := range requiredFields[step] {
		if !fieldPresent(d, f) {
			return &ValidationError{Step: step, Field: f, Message: fieldMessages[f]}
		}
	}
	return nil
}

// CheckThrough checks every gate up to and including step.
func CheckThrough(d *Draft, step Step) error {
	for _, s := range Steps() {
		if s > step {
			break
		}
		if err := CheckGate(d, s); err != nil {
			return err
		}
	}
	return nil
}

// validOTPCode reports whether code has the shape of a verification code.
// A code only satisfies the OTP gate once the practice API has accepted it.
func validOTPCode(code string) bool {
	return len(strings.TrimSpace(code)) == OTPLength
}

func fieldPresent(d *Draft, f Field) bool {
	switch f {
	case FieldFirstName:
		return notBlank(d.FirstName)
	case FieldLastName:
		return notBlank(d.LastName)
	case FieldDOB:
		return notBlank(d.DOB)
	case FieldPhoneNumber:
		return notBlank(d.Phone)
	case FieldOTP:
		return d.Verified && validOTPCode(d.OTP)
	case FieldLocation:
		return notBlank(d.LocationID)
	case FieldProvider:
		return notBlank(d.ProviderID)
	case FieldReason:
		return notBlank(d.ReasonID)
	case FieldStartDate:
		return d.Range.Start != nil
	case FieldSelectedDate:
		return !d.Slot.Date.IsZero()
	case FieldTimeSlot:
		return notBlank(d.Slot.SlotID)
	}
	return false
}

func notBlank(v string) bool { return strings.TrimSpace(v) != "" }
