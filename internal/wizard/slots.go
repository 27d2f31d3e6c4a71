package wizard

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
)

// Bucket is a time-of-day partition for slot display.
type Bucket string

const (
	Morning   Bucket = "Morning"
	Afternoon Bucket = "Afternoon"
	Evening   Bucket = "Evening"
)

// Buckets lists buckets in display order.
func Buckets() []Bucket { return []Bucket{Morning, Afternoon, Evening} }

// ParseBucket accepts a bucket name in any case.
func ParseBucket(v string) (Bucket, error) {
	for _, b := range Buckets() {
		if strings.EqualFold(strings.TrimSpace(v), string(b)) {
			return b, nil
		}
	}
	return "", fmt.Errorf("wizard: unknown bucket %q", v)
}

// Contains reports whether a start hour falls in the bucket. Morning is
// [07,12), Afternoon [12,17) and Evening [17,20].
func (b Bucket) Contains(hour int) bool {
	switch b {
	case Morning:
		return hour >= 7 && hour < 12
	case Afternoon:
		return hour >= 12 && hour < 17
	case Evening:
		return hour >= 17 && hour <= 20
	}
	return false
}

// BucketOf returns the bucket for a start time.
func BucketOf(t time.Time) (Bucket, bool) {
	for _, b := range Buckets() {
		if b.Contains(t.Hour()) {
			return b, true
		}
	}
	return "", false
}

// Categorize lazily yields the slots starting on date within bucket, in
// input order. It does not modify slots.
func Categorize(slots []practice.AvailableSlot, date time.Time, bucket Bucket) iter.Seq[practice.AvailableSlot] {
	day := CivilDate(date)
	return func(yield func(practice.AvailableSlot) bool) {
		for _, s := range slots {
			if !CivilDate(s.Start).Equal(day) || !bucket.Contains(s.Start.Hour()) {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}

// Collect drains Categorize into a slice.
func Collect(slots []practice.AvailableSlot, date time.Time, bucket Bucket) []practice.AvailableSlot {
	return slices.Collect(Categorize(slots, date, bucket))
}

// DaySlots groups one day's slots by bucket.
type DaySlots struct {
	Date    time.Time
	Buckets map[Bucket][]practice.AvailableSlot
}

// GroupByDay groups slots by start date (ascending) then bucket. Slots outside
// every bucket are omitted.
func GroupByDay(slots []practice.AvailableSlot) []DaySlots {
	index := make(map[time.Time]int)
	var out []DaySlots
	for _, s := range slots {
		b, ok := BucketOf(s.Start)
		if !ok {
			continue
		}
		day := CivilDate(s.Start)
		i, seen := index[day]
		if !seen {
			i = len(out)
			index[day] = i
			out = append(out, DaySlots{Date: day, Buckets: make(map[Bucket][]practice.AvailableSlot)})
		}
		out[i].Buckets[b] = append(out[i].Buckets[b], s)
	}
	slices.SortStableFunc(out, func(a, b DaySlots) int { return a.Date.Compare(b.Date) })
	return out
}

// FindSlot looks a slot up by id on a date.
func FindSlot(slots []practice.AvailableSlot, date time.Time, id string) (practice.AvailableSlot, bool) {
	day := CivilDate(date)
	for _, s := range slots {
		if s.ID == id && CivilDate(s.Start).Equal(day) {
			return s, true
		}
	}
	return practice.AvailableSlot{}, false
}
