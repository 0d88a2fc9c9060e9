package domain

import (
	"slices"
	"time"
)

// Decision is the outcome of evaluating a rule at one instant.
type Decision struct {
	Due bool
	// Expired marks a once rule whose date passed without a fire.
	Expired bool
	// Next is the next due instant in now's location, nil when the rule has none.
	// When Due is true it assumes the fire at now happens.
	Next *time.Time
}

// Evaluate decides whether rule is due at now given the last fire time.
// Calendar math runs in now's location. A rule that already fired in its
// current period is never due again in that period, and a poll that lands
// any time after the send time of a due day still fires.
func Evaluate(rule Rule, lastFiredAt *time.Time, now time.Time) (Decision, error) {
	if err := rule.Validate(); err != nil {
		return Decision{}, err
	}
	if rule.Kind == KindOnce {
		return evaluateOnce(rule, lastFiredAt, now), nil
	}

	next := nextOccurrence(rule, lastFiredAt, now)
	if next == nil || next.After(now) {
		return Decision{Next: next}, nil
	}
	fired := now
	return Decision{Due: true, Next: nextOccurrence(rule, &fired, now)}, nil
}

// NextFire returns the next due instant at or after now's day, or nil.
// The result may be <= now, which means the rule is due right away.
func NextFire(rule Rule, lastFiredAt *time.Time, now time.Time) (*time.Time, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if rule.Kind == KindOnce {
		d := evaluateOnce(rule, lastFiredAt, now)
		if d.Due {
			t := now
			return &t, nil
		}
		return d.Next, nil
	}
	return nextOccurrence(rule, lastFiredAt, now), nil
}

func evaluateOnce(rule Rule, lastFiredAt *time.Time, now time.Time) Decision {
	if lastFiredAt != nil {
		return Decision{}
	}
	today := DateOf(now)
	target := today
	if rule.Anchor != nil {
		// Exact calendar day only; no catch-up for a date that went by.
		if rule.Anchor.Before(today) {
			return Decision{Expired: true}
		}
		target = *rule.Anchor
	}
	at := target.At(sendMinutes(rule), now.Location())
	if target == today && !at.After(now) {
		return Decision{Due: true}
	}
	return Decision{Next: &at}
}

// nextOccurrence scans forward day by day from max(today, anchor) and returns
// the first day that matches the rule and is not covered by the last fire.
func nextOccurrence(rule Rule, lastFiredAt *time.Time, now time.Time) *time.Time {
	loc := now.Location()
	start := DateOf(now)
	if rule.Anchor != nil && rule.Anchor.After(start) {
		start = *rule.Anchor
	}

	var last *Date
	if lastFiredAt != nil {
		d := DateOf(lastFiredAt.In(loc))
		last = &d
	}
	base := cycleBase(rule, last)
	start = skipToCycle(rule, base, start)

	horizon := 366 * (max(rule.Interval, 1) + 1)
	for i := 0; i <= horizon; i++ {
		d := start.AddDays(i)
		if firedInPeriod(rule, last, d) || !occursOn(rule, base, d) {
			continue
		}
		t := d.At(sendMinutes(rule), loc)
		return &t
	}
	return nil
}

// cycleBase is the day interval arithmetic counts from. Daily and weekly
// rules count from the last fire, falling back to the anchor. Monthly and
// yearly rules prefer the anchor so a clamped short-month fire does not move
// the day of month.
func cycleBase(rule Rule, last *Date) *Date {
	switch rule.Kind {
	case KindDaily, KindWeekly:
		if last != nil {
			return last
		}
		return rule.Anchor
	case KindMonthly, KindYearly:
		if rule.Anchor != nil {
			return rule.Anchor
		}
		return last
	}
	return nil
}

// skipToCycle moves start forward to the next day on a daily or weekly
// cycle so long intervals are not scanned day by day.
func skipToCycle(rule Rule, base *Date, start Date) Date {
	if base == nil || (rule.Kind != KindDaily && rule.Kind != KindWeekly) {
		return start
	}
	step := rule.Interval
	if rule.Kind == KindWeekly {
		step *= 7
	}
	days := base.DaysUntil(start)
	if days < 0 {
		return *base
	}
	if rem := days % step; rem != 0 {
		return start.AddDays(step - rem)
	}
	return start
}

func occursOn(rule Rule, base *Date, d Date) bool {
	switch rule.Kind {
	case KindDaily, KindWeekly:
		if base == nil {
			return true
		}
		step := rule.Interval
		if rule.Kind == KindWeekly {
			step *= 7
		}
		days := base.DaysUntil(d)
		return days >= 0 && days%step == 0

	case KindMonthly:
		if base == nil {
			return true
		}
		months := (d.Year-base.Year)*12 + int(d.Month) - int(base.Month)
		return months >= 0 && months%rule.Interval == 0 &&
			d.Day == clampDay(base.Day, d.Year, d.Month)

	case KindYearly:
		if base == nil {
			return true
		}
		years := d.Year - base.Year
		return years >= 0 && years%rule.Interval == 0 &&
			d.Month == base.Month && d.Day == clampDay(base.Day, d.Year, d.Month)

	case KindWeekdays:
		return slices.Contains(rule.WeekDays, int(d.Weekday()))

	case KindMonthDay:
		return d.Day == clampDay(rule.MonthDay, d.Year, d.Month)
	}
	return false
}

// firedInPeriod reports whether the last fire already covers day d.
// Month-day rules have a calendar-month period; everything else a day.
func firedInPeriod(rule Rule, last *Date, d Date) bool {
	if last == nil {
		return false
	}
	if rule.Kind == KindMonthDay {
		return last.Year == d.Year && last.Month == d.Month
	}
	return !last.Before(d)
}

// clampDay maps day 29..31 onto the last day of shorter months.
func clampDay(day, year int, month time.Month) int {
	return min(day, DaysIn(year, month))
}

func sendMinutes(rule Rule) int {
	if rule.SendTime == nil {
		return 0
	}
	return *rule.SendTime
}
