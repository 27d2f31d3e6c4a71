package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
	"github.com/wolfman30/medspa-booking-wizard/internal/session"
)

type formDataFragment struct {
	Identity
	SessionID  string `json:"sessionId"`
	CustomerID string `json:"customerId,omitempty"`
	OTP        string `json:"otp,omitempty"`
	Verified   bool   `json:"verified"`
}

type dateFragment struct {
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

type slotFragment struct {
	SelectedDate     string `json:"selectedDate,omitempty"`
	SelectedTimeSlot string `json:"selectedTimeSlot,omitempty"`
	DisplayTime      string `json:"displayTime,omitempty"`
	Duration         string `json:"duration,omitempty"`
}

// encodeFragments renders the draft and step as persisted key values.
func encodeFragments(d *Draft, step Step) (map[string][]byte, error) {
	values := make(map[string][]byte, 5)
	put := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("wizard: encode %s: %w", key, err)
		}
		values[key] = raw
		return nil
	}
	if err := put(session.KeyFormData, formDataFragment{
		Identity:   d.Identity,
		SessionID:  d.SessionID,
		CustomerID: d.CustomerID,
		OTP:        d.OTP,
		Verified:   d.Verified,
	}); err != nil {
		return nil, err
	}
	if err := put(session.KeySelections, d.AppointmentSelection); err != nil {
		return nil, err
	}
	if err := put(session.KeyDate, dateFragment{
		StartDate: formatDatePtr(d.Range.Start),
		EndDate:   formatDatePtr(d.Range.End),
	}); err != nil {
		return nil, err
	}
	slot := slotFragment{
		SelectedTimeSlot: d.Slot.SlotID,
		DisplayTime:      d.Slot.DisplayTime,
		Duration:         d.Slot.Duration,
	}
	if !d.Slot.Date.IsZero() {
		slot.SelectedDate = d.Slot.Date.Format(practice.DateLayout)
	}
	if err := put(session.KeySlot, slot); err != nil {
		return nil, err
	}
	values[session.KeyStep] = []byte(step.String())
	return values, nil
}

// loadFragments rebuilds a draft and step from the store. Missing keys leave
// the corresponding fields empty.
func loadFragments(ctx context.Context, store session.Store, sessionID string) (Draft, Step, error) {
	d := Draft{SessionID: sessionID}
	step := EntryStep

	get := func(key string, v any) error {
		raw, err := store.Get(ctx, sessionID, key)
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("wizard: decode %s: %w", key, err)
		}
		return nil
	}

	var form formDataFragment
	if err := get(session.KeyFormData, &form); err != nil {
		return d, step, err
	}
	d.Identity = form.Identity
	d.CustomerID = form.CustomerID
	d.OTP = form.OTP
	d.Verified = form.Verified

	if err := get(session.KeySelections, &d.AppointmentSelection); err != nil {
		return d, step, err
	}

	var dates dateFragment
	if err := get(session.KeyDate, &dates); err != nil {
		return d, step, err
	}
	d.Range.Start = parseDatePtr(dates.StartDate)
	if d.Range.Start != nil {
		d.Range.End = parseDatePtr(dates.EndDate)
	}

	var slot slotFragment
	if err := get(session.KeySlot, &slot); err != nil {
		return d, step, err
	}
	if slot.SelectedDate != "" {
		if t, err := practice.ParseDate(slot.SelectedDate); err == nil {
			d.Slot.Date = t
		}
	}
	d.Slot.SlotID = slot.SelectedTimeSlot
	d.Slot.DisplayTime = slot.DisplayTime
	d.Slot.Duration = slot.Duration

	raw, err := store.Get(ctx, sessionID, session.KeyStep)
	switch {
	case err == nil:
		if s, perr := ParseStep(string(raw)); perr == nil {
			step = s
		}
	case !errors.Is(err, session.ErrNotFound):
		return d, step, err
	}
	return d, step, nil
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(practice.DateLayout)
}

func parseDatePtr(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := practice.ParseDate(v)
	if err != nil {
		return nil
	}
	return &t
}
