package wizard

import (
	"strings"
	"time"
)

// Identity is the patient identity collected on the personal info step.
type Identity struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	DOB       string `json:"dob"`
	Phone     string `json:"phoneNumber"`
	Email     string `json:"email"`
}

// AppointmentSelection is the location, provider and reason choice.
type AppointmentSelection struct {
	LocationID   string `json:"location"`
	LocationName string `json:"locationName,omitempty"`
	ProviderID   string `json:"provider"`
	ProviderName string `json:"providerName,omitempty"`
	ReasonID     string `json:"reason"`
	ReasonName   string `json:"reasonName,omitempty"`
	IsNewPatient bool   `json:"isNewPatient"`
}

// SlotSelection is the chosen open slot.
type SlotSelection struct {
	Date        time.Time
	SlotID      string
	DisplayTime string
	Duration    string
}

// Draft accumulates booking data across steps. Fields are only ever set,
// except the provider which is scoped to a location.
type Draft struct {
	Identity
	OTP      string
	Verified bool

	AppointmentSelection

	Range DateRange
	Slot  SlotSelection

	CustomerID string
	SessionID  string
}

// MergeIdentity copies non-empty fields of id into the draft.
func (d *Draft) MergeIdentity(id Identity) {
	setIfPresent(&d.FirstName, id.FirstName)
	setIfPresent(&d.LastName, id.LastName)
	setIfPresent(&d.DOB, id.DOB)
	setIfPresent(&d.Phone, id.Phone)
	setIfPresent(&d.Email, id.Email)
}

// SetLocation records a location and clears the provider when it changed.
// It reports whether the location changed.
func (d *Draft) SetLocation(id, name string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	changed := id != d.LocationID
	if changed {
		d.ProviderID = ""
		d.ProviderName = ""
	}
	d.LocationID = id
	setIfPresent(&d.LocationName, name)
	return changed
}

// MergeSelection applies a selection, honouring the location scoping of the
// provider. It reports whether any id changed.
func (d *Draft) MergeSelection(sel AppointmentSelection) bool {
	before := [3]string{d.LocationID, d.ProviderID, d.ReasonID}
	d.SetLocation(sel.LocationID, sel.LocationName)
	if strings.TrimSpace(sel.ProviderID) != "" {
		d.ProviderID = strings.TrimSpace(sel.ProviderID)
		setIfPresent(&d.ProviderName, sel.ProviderName)
	}
	if strings.TrimSpace(sel.ReasonID) != "" {
		d.ReasonID = strings.TrimSpace(sel.ReasonID)
		setIfPresent(&d.ReasonName, sel.ReasonName)
	}
	d.IsNewPatient = sel.IsNewPatient
	return before != [3]string{d.LocationID, d.ProviderID, d.ReasonID}
}

// SelectSlot records the chosen slot.
func (d *Draft) SelectSlot(s SlotSelection) {
	d.Slot = s
}

func setIfPresent(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
