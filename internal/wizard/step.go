package wizard

import (
	"fmt"
	"strings"
)

// Step is a wizard screen.
type Step int

const (
	StepPersonalInfo Step = iota
	StepOTP
	StepAppointmentType
	StepDateRange
	StepTimeSlot
)

// EntryStep is where every flow starts and where a successful booking returns.
const EntryStep = StepPersonalInfo

var stepNames = map[Step]string{
	StepPersonalInfo:    "personal_info",
	StepOTP:             "otp",
	StepAppointmentType: "appointment_type",
	StepDateRange:       "date_range",
	StepTimeSlot:        "time_slot",
}

// Steps lists the steps in flow order.
func Steps() []Step {
	return []Step{StepPersonalInfo, StepOTP, StepAppointmentType, StepDateRange, StepTimeSlot}
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// ParseStep is the inverse of String.
func ParseStep(v string) (Step, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	for step, name := range stepNames {
		if name == v {
			return step, nil
		}
	}
	return 0, fmt.Errorf("wizard: unknown step %q", v)
}

// Next returns the following step; the last step has no successor.
func (s Step) Next() (Step, bool) {
	if s >= StepTimeSlot || s < StepPersonalInfo {
		return s, false
	}
	return s + 1, true
}

// Prev returns the preceding step, staying on the entry step.
func (s Step) Prev() Step {
	if s <= StepPersonalInfo {
		return StepPersonalInfo
	}
	return s - 1
}
