package practice

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used on the wire and in the wizard.
const DateLayout = "2006-01-02"

// Auth is the per-session authorization context passed to every API call.
type Auth struct {
	Token    string // bearer token from ExchangeForToken
	Practice string // practice account id, sent as AccountId / PracticeName
	BotID    string
}

// FlexString accepts JSON strings, numbers and booleans, since the practice API
// is inconsistent about identifier types.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(string(data))
	return nil
}

func (f FlexString) String() string { return string(f) }

// VendorCredential is one entry of the vendor credential list resolved from a bot id.
type VendorCredential struct {
	VendorID       FlexString `json:"vendorId"`
	VendorName     string     `json:"vendorName"`
	VendorPassword string     `json:"vendorPassword"`
	AccountID      string     `json:"accountId"`
}

// Location is a practice location offered for booking.
type Location struct {
	ID   FlexString `json:"LocationId"`
	Name string     `json:"LocationName"`
}

// Provider is a practice person (resource) bookable at a location.
type Provider struct {
	ID   FlexString `json:"ProviderId"`
	Name string     `json:"ProviderName"`
}

// Reason is an appointment reason / type.
type Reason struct {
	ID   FlexString `json:"ReasonId"`
	Name string     `json:"ReasonName"`
}

// AvailableSlot is a bookable appointment time unit.
type AvailableSlot struct {
	ID          string
	Start       time.Time
	End         time.Time
	DisplayTime string
	Duration    string
}

// openSlotWire mirrors the CB_GetOpenSlot payload.
type openSlotWire struct {
	OpenSlotID        FlexString `json:"openSlotId"`
	ApptStartDateTime string     `json:"apptStartDateTime"`
	ApptEndDateTime   string     `json:"apptEndDateTime"`
	DisplayTime       string     `json:"displayTime"`
	SlotDuration      FlexString `json:"slotDuration"`
}

// Identity is the patient identity used for OTP and customer lookups.
type Identity struct {
	FirstName  string
	LastName   string
	MiddleName string
	DOB        string
	Phone      string
	Email      string
}

// AvailableDatesQuery selects bookable calendar dates.
type AvailableDatesQuery struct {
	LocationID string
	ProviderID string
	ReasonID   string
	From       time.Time
	To         time.Time
}

// OpenSlotsQuery selects open slots on one calendar date.
type OpenSlotsQuery struct {
	LocationID string
	ProviderID string
	ReasonID   string
	Date       time.Time
}

// OTPRequest carries the contact channels for sending or validating a code.
type OTPRequest struct {
	Code      string
	Phone     string
	Email     string
	SessionID string
}

// BookingRequest is the finalized booking payload.
type BookingRequest struct {
	OpenSlotID   string `json:"OpenSlotId"`
	ApptDate     string `json:"ApptDate"`
	ReasonID     string `json:"ReasonId"`
	FirstName    string `json:"FirstName"`
	LastName     string `json:"LastName"`
	PatientDOB   string `json:"PatientDob"`
	MobileNumber string `json:"MobileNumber"`
	EmailID      string `json:"EmailId"`
	SessionID    string `json:"SessionID"`
	ResourceID   string `json:"resourceId"`
	LocationID   string `json:"locationId"`
	IsNewPatient string `json:"isNewPatient"`
}

// BookingResponse is the booking endpoint acknowledgement.
type BookingResponse struct {
	Response    string `json:"response"`
	UserMessage string `json:"usermessage"`
}

// NewPatientFlag renders the isNewPatient wire value.
func NewPatientFlag(isNew bool) string {
	if isNew {
		return "True"
	}
	return "False"
}

var slotTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// parseWallClock parses slot timestamps. Timestamps without zone are read as
// wall clock in UTC so date and hour come out the way the practice shows them.
func parseWallClock(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range slotTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			if layout == time.RFC3339 {
				return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), true
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDate parses a calendar date, tolerating a trailing time component.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if len(value) > len(DateLayout) {
		value = value[:len(DateLayout)]
	}
	return time.Parse(DateLayout, value)
}

func (w openSlotWire) toSlot() (AvailableSlot, bool) {
	start, ok := parseWallClock(w.ApptStartDateTime)
	if !ok {
		return AvailableSlot{}, false
	}
	end, _ := parseWallClock(w.ApptEndDateTime)
	duration := strings.TrimSpace(w.SlotDuration.String())
	if duration == "" && !end.IsZero() {
		duration = strconv.Itoa(int(end.Sub(start).Minutes()))
	}
	return AvailableSlot{
		ID:          w.OpenSlotID.String(),
		Start:       start,
		End:         end,
		DisplayTime: w.DisplayTime,
		Duration:    duration,
	}, true
}
