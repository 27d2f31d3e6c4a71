package wizard

import (
	"fmt"
	"time"
)

// DefaultMaxRangeDays bounds a date range: end - start must stay below it.
const DefaultMaxRangeDays = 7

// RangeState is the date-range selector state.
type RangeState int

const (
	RangeEmpty RangeState = iota
	RangeStartOnly
	RangeComplete
)

func (s RangeState) String() string {
	switch s {
	case RangeStartOnly:
		return "START_ONLY"
	case RangeComplete:
		return "COMPLETE"
	default:
		return "EMPTY"
	}
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// State derives the selector state from the range.
func (r DateRange) State() RangeState {
	switch {
	case r.Start == nil:
		return RangeEmpty
	case r.End == nil:
		return RangeStartOnly
	default:
		return RangeComplete
	}
}

// Dates expands the range into each calendar day. A range with only a start
// yields that single day.
func (r DateRange) Dates() []time.Time {
	if r.Start == nil {
		return nil
	}
	end := *r.Start
	if r.End != nil {
		end = *r.End
	}
	var out []time.Time
	for d := *r.Start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// Contains reports whether day lies inside the range.
func (r DateRange) Contains(day time.Time) bool {
	if r.Start == nil {
		return false
	}
	day = CivilDate(day)
	if r.End == nil {
		return day.Equal(*r.Start)
	}
	return !day.Before(*r.Start) && !day.After(*r.End)
}

// ClickResult describes the outcome of a calendar click.
type ClickResult struct {
	Ignored    bool
	OutOfRange bool
	Notice     string
	State      RangeState
	Range      DateRange
}

// Cell is one calendar grid cell. Day is zero for leading empty cells.
type Cell struct {
	Day       int       `json:"day"`
	Date      time.Time `json:"-"`
	Available bool      `json:"available"`
	InRange   bool      `json:"inRange"`
	IsStart   bool      `json:"isStart"`
	IsEnd     bool      `json:"isEnd"`
}

// Selector implements the calendar date-range state machine for one
// displayed month.
type Selector struct {
	year      int
	month     time.Month
	available map[time.Time]struct{}
	rng       DateRange
	maxDays   int
}

// NewSelector shows the month containing month. maxDays <= 0 uses the default.
func NewSelector(month time.Time, maxDays int) *Selector {
	if maxDays <= 0 {
		maxDays = DefaultMaxRangeDays
	}
	return &Selector{
		year:      month.Year(),
		month:     month.Month(),
		available: make(map[time.Time]struct{}),
		maxDays:   maxDays,
	}
}

// SetAvailable replaces the set of bookable dates.
func (s *Selector) SetAvailable(dates []time.Time) {
	s.available = make(map[time.Time]struct{}, len(dates))
	for _, d := range dates {
		s.available[CivilDate(d)] = struct{}{}
	}
}

// IsAvailable reports whether day is bookable.
func (s *Selector) IsAvailable(day time.Time) bool {
	_, ok := s.available[CivilDate(day)]
	return ok
}

// AvailableCount is the number of bookable dates.
func (s *Selector) AvailableCount() int { return len(s.available) }

// Range returns the current range.
func (s *Selector) Range() DateRange { return s.rng }

// State returns the current state.
func (s *Selector) State() RangeState { return s.rng.State() }

// Restore sets the range without validation, used when rehydrating a draft.
func (s *Selector) Restore(r DateRange) {
	s.rng = r
	if r.Start != nil {
		s.year, s.month = r.Start.Year(), r.Start.Month()
	}
}

// Reset clears the range.
func (s *Selector) Reset() { s.rng = DateRange{} }

// Month returns the displayed month.
func (s *Selector) Month() (int, time.Month) { return s.year, s.month }

// PrevMonth shows the previous month, wrapping into the previous year.
func (s *Selector) PrevMonth() {
	if s.month == time.January {
		s.month = time.December
		s.year--
		return
	}
	s.month--
}

// NextMonth shows the next month, wrapping into the next year.
func (s *Selector) NextMonth() {
	if s.month == time.December {
		s.month = time.January
		s.year++
		return
	}
	s.month++
}

// ClickDay clicks a day of the displayed month. Day zero is an empty cell.
func (s *Selector) ClickDay(day int) ClickResult {
	if day < 1 || day > daysIn(s.year, s.month) {
		return s.ignored()
	}
	return s.Click(time.Date(s.year, s.month, day, 0, 0, 0, 0, time.UTC))
}

// Click applies a date click. Unavailable dates leave the state unchanged.
func (s *Selector) Click(day time.Time) ClickResult {
	d := CivilDate(day)
	if !s.IsAvailable(d) {
		return s.ignored()
	}

	result := ClickResult{}
	switch s.rng.State() {
	case RangeEmpty, RangeComplete:
		s.rng = DateRange{Start: &d}
	case RangeStartOnly:
		start := *s.rng.Start
		if daysBetween(start, d) >= s.maxDays {
			result.OutOfRange = true
			result.Notice = fmt.Sprintf("Date range cannot exceed %d days. Please select a shorter range.", s.maxDays)
			s.rng = DateRange{Start: &d}
			break
		}
		if d.Before(start) {
			s.rng = DateRange{Start: &d, End: &start}
		} else {
			s.rng = DateRange{Start: &start, End: &d}
		}
	}
	result.State = s.rng.State()
	result.Range = s.rng
	return result
}

// Grid returns the displayed month, Sunday first, with leading empty cells.
func (s *Selector) Grid() []Cell {
	first := time.Date(s.year, s.month, 1, 0, 0, 0, 0, time.UTC)
	lead := int(first.Weekday())
	n := daysIn(s.year, s.month)
	cells := make([]Cell, lead, lead+n)
	for day := 1; day <= n; day++ {
		d := time.Date(s.year, s.month, day, 0, 0, 0, 0, time.UTC)
		cells = append(cells, Cell{
			Day:       day,
			Date:      d,
			Available: s.IsAvailable(d),
			InRange:   s.rng.Contains(d),
			IsStart:   s.rng.Start != nil && d.Equal(*s.rng.Start),
			IsEnd:     s.rng.End != nil && d.Equal(*s.rng.End),
		})
	}
	return cells
}

func (s *Selector) ignored() ClickResult {
	return ClickResult{Ignored: true, State: s.rng.State(), Range: s.rng}
}

// CivilDate truncates t to its calendar date at UTC midnight.
func CivilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	diff := b.Sub(a)
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
