package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Interval is a parsed provider interval such as "1 month" or "2 weeks".
type Interval struct {
	Count int
	Unit  string
}

const (
	UnitDay   = "day"
	UnitWeek  = "week"
	UnitMonth = "month"
	UnitYear  = "year"
)

func ParseInterval(raw string) (Interval, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(raw)))
	if len(fields) != 2 {
		return Interval{}, ErrInvalidInterval
	}
	count, err := strconv.Atoi(fields[0])
	if err != nil || count <= 0 {
		return Interval{}, ErrInvalidInterval
	}
	unit := strings.TrimSuffix(fields[1], "s")
	switch unit {
	case UnitDay, UnitWeek, UnitMonth, UnitYear:
	default:
		return Interval{}, ErrInvalidInterval
	}
	return Interval{Count: count, Unit: unit}, nil
}

// Months returns the interval length in months. Day and week intervals have
// no whole-month length and return ErrInvalidInterval.
func (i Interval) Months() (int, error) {
	switch i.Unit {
	case UnitMonth:
		return i.Count, nil
	case UnitYear:
		return i.Count * 12, nil
	default:
		return 0, ErrInvalidInterval
	}
}

// AddTo advances t by one interval.
func (i Interval) AddTo(t time.Time) time.Time {
	switch i.Unit {
	case UnitDay:
		return t.AddDate(0, 0, i.Count)
	case UnitWeek:
		return t.AddDate(0, 0, 7*i.Count)
	case UnitMonth:
		return t.AddDate(0, i.Count, 0)
	default:
		return t.AddDate(i.Count, 0, 0)
	}
}

// Provider renders the interval in a unit the provider accepts. Years are
// sent as months.
func (i Interval) Provider() string {
	count, unit := i.Count, i.Unit
	if unit == UnitYear {
		count, unit = count*12, UnitMonth
	}
	if count == 1 {
		return fmt.Sprintf("%d %s", count, unit)
	}
	return fmt.Sprintf("%d %ss", count, unit)
}

// Times is the number of charges the provider should make after the first
// payment when the subscription runs for years. A nil result means open
// ended. A bounded term that leaves no charge after the first payment is
// rejected.
func (i Interval) Times(years int) (*int, error) {
	if years <= 0 {
		return nil, nil
	}
	months, err := i.Months()
	if err != nil {
		return nil, err
	}
	if months > 12 || 12%months != 0 {
		return nil, ErrInvalidInterval
	}
	times := (12/months)*years - 1
	if times < 1 {
		return nil, ErrInvalidInterval
	}
	return &times, nil
}
