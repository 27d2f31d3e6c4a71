package handlers

import (
	"strings"
	"time"

	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
	"github.com/wolfman30/medspa-booking-wizard/internal/wizard"
	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

type optionView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type rangeView struct {
	Start string `json:"startDate,omitempty"`
	End   string `json:"endDate,omitempty"`
}

// draftView is the client-facing draft. Contact and birth details are masked
// and the OTP is never echoed.
type draftView struct {
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	DOB          string    `json:"dob,omitempty"`
	Phone        string    `json:"phoneNumber,omitempty"`
	Email        string    `json:"email,omitempty"`
	Verified     bool      `json:"verified"`
	Location     string    `json:"location,omitempty"`
	LocationName string    `json:"locationName,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	ProviderName string    `json:"providerName,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	ReasonName   string    `json:"reasonName,omitempty"`
	IsNewPatient bool      `json:"isNewPatient"`
	Range        rangeView `json:"dateRange"`
	SelectedDate string    `json:"selectedDate,omitempty"`
	SelectedSlot string    `json:"selectedTimeSlot,omitempty"`
	DisplayTime  string    `json:"displayTime,omitempty"`
}

type stateView struct {
	Step       string    `json:"step"`
	StepIndex  int       `json:"stepIndex"`
	Steps      []string  `json:"steps"`
	RangeState string    `json:"rangeState"`
	CanAdvance bool      `json:"canAdvance"`
	Draft      draftView `json:"draft"`
}

type calendarView struct {
	Year      int           `json:"year"`
	Month     int           `json:"month"`
	MonthName string        `json:"monthName"`
	State     string        `json:"state"`
	Range     rangeView     `json:"range"`
	Cells     []wizard.Cell `json:"cells"`
}

type slotView struct {
	ID          string `json:"id"`
	Start       string `json:"start"`
	End         string `json:"end,omitempty"`
	DisplayTime string `json:"displayTime"`
	Duration    string `json:"duration,omitempty"`
}

type daySlotsView struct {
	Date    string                `json:"date"`
	Buckets map[string][]slotView `json:"buckets"`
}

func newStateView(s wizard.Snapshot) stateView {
	steps := wizard.Steps()
	names := make([]string, 0, len(steps))
	for _, st := range steps {
		names = append(names, st.String())
	}
	d := s.Draft
	view := draftView{
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		DOB:          maskDOB(d.DOB),
		Phone:        logging.MaskPhone(d.Phone),
		Email:        maskEmail(d.Email),
		Verified:     d.Verified,
		Location:     d.LocationID,
		LocationName: d.LocationName,
		Provider:     d.ProviderID,
		ProviderName: d.ProviderName,
		Reason:       d.ReasonID,
		ReasonName:   d.ReasonName,
		IsNewPatient: d.IsNewPatient,
		Range:        newRangeView(d.Range),
		SelectedSlot: d.Slot.SlotID,
		DisplayTime:  d.Slot.DisplayTime,
	}
	if !d.Slot.Date.IsZero() {
		view.SelectedDate = d.Slot.Date.Format(practice.DateLayout)
	}
	return stateView{
		Step:       s.Step.String(),
		StepIndex:  int(s.Step),
		Steps:      names,
		RangeState: s.RangeState.String(),
		CanAdvance: wizard.CanAdvance(&d, s.Step),
		Draft:      view,
	}
}

func newRangeView(r wizard.DateRange) rangeView {
	var v rangeView
	if r.Start != nil {
		v.Start = r.Start.Format(practice.DateLayout)
	}
	if r.End != nil {
		v.End = r.End.Format(practice.DateLayout)
	}
	return v
}

func newCalendarView(c wizard.CalendarView) calendarView {
	return calendarView{
		Year:      c.Year,
		Month:     int(c.Month),
		MonthName: c.Month.String(),
		State:     c.State.String(),
		Range:     newRangeView(c.Range),
		Cells:     c.Cells,
	}
}

func newSlotViews(slots []practice.AvailableSlot) []slotView {
	out := make([]slotView, 0, len(slots))
	for _, s := range slots {
		v := slotView{
			ID:          s.ID,
			Start:       s.Start.Format(time.RFC3339),
			DisplayTime: s.DisplayTime,
			Duration:    s.Duration,
		}
		if !s.End.IsZero() {
			v.End = s.End.Format(time.RFC3339)
		}
		out = append(out, v)
	}
	return out
}

func newDaySlotsViews(days []wizard.DaySlots) []daySlotsView {
	out := make([]daySlotsView, 0, len(days))
	for _, d := range days {
		buckets := make(map[string][]slotView, len(d.Buckets))
		for _, b := range wizard.Buckets() {
			buckets[string(b)] = newSlotViews(d.Buckets[b])
		}
		out = append(out, daySlotsView{Date: d.Date.Format(practice.DateLayout), Buckets: buckets})
	}
	return out
}

func locationOptions(in []practice.Location) []optionView {
	out := make([]optionView, 0, len(in))
	for _, l := range in {
		out = append(out, optionView{ID: l.ID.String(), Name: l.Name})
	}
	return out
}

func providerOptions(in []practice.Provider) []optionView {
	out := make([]optionView, 0, len(in))
	for _, p := range in {
		out = append(out, optionView{ID: p.ID.String(), Name: p.Name})
	}
	return out
}

func reasonOptions(in []practice.Reason) []optionView {
	out := make([]optionView, 0, len(in))
	for _, r := range in {
		out = append(out, optionView{ID: r.ID.String(), Name: r.Name})
	}
	return out
}

// maskDOB keeps only the year.
func maskDOB(dob string) string {
	dob = strings.TrimSpace(dob)
	if dob == "" {
		return ""
	}
	for _, sep := range []string{"/", "-"} {
		parts := strings.Split(dob, sep)
		if len(parts) != 3 {
			continue
		}
		for i, p := range parts {
			if len(p) == 4 {
				continue
			}
			parts[i] = strings.Repeat("*", len(p))
		}
		return strings.Join(parts, sep)
	}
	return strings.Repeat("*", len(dob))
}

func maskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return ""
	}
	return email[:1] + "***" + email[at:]
}
