package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Kind names a recurrence pattern.
type Kind string

const (
	KindOnce     Kind = "once"
	KindDaily    Kind = "daily"
	KindWeekly   Kind = "weekly"
	KindMonthly  Kind = "monthly"
	KindYearly   Kind = "yearly"
	KindWeekdays Kind = "weekdays"
	KindMonthDay Kind = "monthday"
)

// Repeating reports whether rules of this kind fire more than once.
func (k Kind) Repeating() bool { return k != KindOnce }

func (k Kind) usesInterval() bool {
	switch k {
	case KindDaily, KindWeekly, KindMonthly, KindYearly:
		return true
	}
	return false
}

// Rule describes how often a notification repeats.
type Rule struct {
	Kind Kind `validate:"required,oneof=once daily weekly monthly yearly weekdays monthday"`
	// Interval repeats every N days/weeks/months/years.
	Interval int `validate:"gte=0,max=100"`
	// WeekDays uses 0=Sunday..6=Saturday.
	WeekDays []int `validate:"dive,min=0,max=6"`
	MonthDay int   `validate:"omitempty,min=1,max=31"`
	// SendTime is minutes from midnight; nil fires at any time of the due day.
	SendTime *int `validate:"omitempty,min=0,max=1439"`
	// Anchor is the target date for once rules and the earliest eligible date otherwise.
	Anchor *Date
	// Invalid is set when a stored rule could not be decoded; Validate reports it.
	Invalid *ValidationError `validate:"-"`
}

var intervalUnits = map[Kind]string{
	KindDaily:   "day",
	KindWeekly:  "week",
	KindMonthly: "month",
	KindYearly:  "year",
}

var ErrInvalidRule = errors.New("invalid recurrence rule")

// ValidationError reports a malformed rule field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidRule, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRule }

var validate = validator.New()

// Validate checks field ranges and the per-kind requirements.
func (r Rule) Validate() error {
	if r.Invalid != nil {
		return r.Invalid
	}
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			reason := fe.Tag()
			if fe.Param() != "" {
				reason += "=" + fe.Param()
			}
			return &ValidationError{Field: fe.Field(), Reason: "failed " + reason}
		}
		return &ValidationError{Field: "Rule", Reason: err.Error()}
	}
	switch {
	case r.Kind.usesInterval() && r.Interval < 1:
		return &ValidationError{Field: "Interval", Reason: "must be >= 1"}
	case r.Kind == KindWeekdays && len(r.WeekDays) == 0:
		return &ValidationError{Field: "WeekDays", Reason: "must not be empty"}
	case r.Kind == KindMonthDay && r.MonthDay == 0:
		return &ValidationError{Field: "MonthDay", Reason: "is required"}
	}
	return nil
}

// String renders the rule the way the admin surface shows it, e.g. "every 2 weeks at 09:00".
func (r Rule) String() string {
	var b strings.Builder
	switch r.Kind {
	case KindOnce:
		b.WriteString("once")
		if r.Anchor != nil {
			b.WriteString(" on " + r.Anchor.String())
		}
	case KindWeekdays:
		names := make([]string, 0, len(r.WeekDays))
		for _, d := range r.WeekDays {
			names = append(names, time.Weekday(d).String()[:3])
		}
		b.WriteString("on " + strings.Join(names, ","))
	case KindMonthDay:
		fmt.Fprintf(&b, "monthly on day %d", r.MonthDay)
	default:
		unit := intervalUnits[r.Kind]
		if r.Interval <= 1 {
			b.WriteString("every " + unit)
		} else {
			fmt.Fprintf(&b, "every %d %ss", r.Interval, unit)
		}
	}
	if r.SendTime != nil {
		b.WriteString(" at " + FormatMinutes(*r.SendTime))
	}
	return b.String()
}

// Date is a calendar day without a time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// At returns the instant at the given minutes from midnight on d in loc.
func (d Date) At(mins int, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, mins/60, mins%60, 0, 0, loc)
}

// AddDays normalizes through time.Date, so overflow rolls into the next month.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool { return d.Compare(o) > 0 }

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return sign(d.Year - o.Year)
	case d.Month != o.Month:
		return sign(int(d.Month) - int(o.Month))
	default:
		return sign(d.Day - o.Day)
	}
}

// Weekday returns the day of the week for d.
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// DaysUntil returns the number of whole days from d to o (negative if o is earlier).
func (d Date) DaysUntil(o Date) int {
	a := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	b := time.Date(o.Year, o.Month, o.Day, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
