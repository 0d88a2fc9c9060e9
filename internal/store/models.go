package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/AlexanderKara/orgportal-sub002/internal/domain"
)

func toNullInt64(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().Unix(), Valid: true}
}

func fromNullInt64(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := time.Unix(ns.Int64, 0).UTC()
	return &t
}

func toNullMinutes(m *int) sql.NullInt64 {
	if m == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*m), Valid: true}
}

func fromNullMinutes(ns sql.NullInt64) *int {
	if !ns.Valid {
		return nil
	}
	m := int(ns.Int64)
	return &m
}

func toNullDate(d *domain.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func fromNullDate(ns sql.NullString) (*domain.Date, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// notificationRow mirrors a notifications row before conversion.
type notificationRow struct {
	id          int64
	name        string
	templateRef string
	recipients  string
	kind        string
	interval    int
	weekDays    string
	monthDay    int
	sendTime    sql.NullInt64
	anchor      sql.NullString
	isActive    int
	status      string
	lastFired   sql.NullInt64
	nextFire    sql.NullInt64
	createdAt   int64
	updatedAt   int64
}

const notificationColumns = `
	id, name, template_ref, recipients, kind, interval_n, week_days, month_day,
	send_time_m, anchor_date, is_active, status, last_fired_at, next_fire_at,
	created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(s scanner) (*domain.Notification, error) {
	var r notificationRow
	if err := s.Scan(
		&r.id, &r.name, &r.templateRef, &r.recipients, &r.kind, &r.interval,
		&r.weekDays, &r.monthDay, &r.sendTime, &r.anchor, &r.isActive, &r.status,
		&r.lastFired, &r.nextFire, &r.createdAt, &r.updatedAt,
	); err != nil {
		return nil, err
	}
	return r.toDomain(), nil
}

// toDomain converts the row. Columns that do not decode mark the rule
// Invalid instead of failing, so one bad row cannot hide the others.
func (r notificationRow) toDomain() *domain.Notification {
	var invalid *domain.ValidationError
	markInvalid := func(field string, err error) {
		if invalid == nil {
			invalid = &domain.ValidationError{Field: field, Reason: "undecodable: " + err.Error()}
		}
	}

	var recipients []string
	if r.recipients != "" {
		if err := json.Unmarshal([]byte(r.recipients), &recipients); err != nil {
			markInvalid("Recipients", err)
		}
	}
	var weekDays []int
	if r.weekDays != "" {
		days, err := domain.ParseWeekDays(r.weekDays)
		if err != nil {
			markInvalid("WeekDays", err)
		}
		weekDays = days
	}
	anchor, err := fromNullDate(r.anchor)
	if err != nil {
		markInvalid("Anchor", err)
	}

	return &domain.Notification{
		ID:          r.id,
		Name:        r.name,
		TemplateRef: r.templateRef,
		Recipients:  recipients,
		Rule: domain.Rule{
			Kind:     domain.Kind(r.kind),
			Interval: r.interval,
			WeekDays: weekDays,
			MonthDay: r.monthDay,
			SendTime: fromNullMinutes(r.sendTime),
			Anchor:   anchor,
			Invalid:  invalid,
		},
		IsActive:    r.isActive != 0,
		Status:      domain.Status(r.status),
		LastFiredAt: fromNullInt64(r.lastFired),
		NextFireAt:  fromNullInt64(r.nextFire),
		CreatedAt:   time.Unix(r.createdAt, 0).UTC(),
		UpdatedAt:   time.Unix(r.updatedAt, 0).UTC(),
	}
}

// boolToInt converts a boolean to 1/0 for SQLite.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
