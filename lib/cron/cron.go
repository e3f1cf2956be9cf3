// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed cron expression. Use Parse to create one from a
// string, then Next to compute the next matching time.
type Schedule struct {
	minute  fieldSet
	hour    fieldSet
	day     fieldSet
	month   fieldSet
	weekday fieldSet

	// source is the original expression, preserved so a Schedule can be
	// rendered back into a cron.d entry exactly as the operator wrote it.
	source string
}

// fieldSet is a set of small integers backed by a uint64 bitmask.
type fieldSet uint64

func (f fieldSet) contains(value int) bool { return f&(1<<uint(value)) != 0 }
func (f *fieldSet) add(value int)          { *f |= 1 << uint(value) }

// fieldSpec names a cron field and its allowed value range, in
// expression order.
type fieldSpec struct {
	name string
	min  int
	max  int
}

var fieldSpecs = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// Parse parses a 5-field cron expression. Returns an error if the
// expression is malformed or any value is out of range.
func Parse(expression string) (Schedule, error) {
	fields := strings.Fields(expression)
	if len(fields) != 5 {
		return Schedule{}, fmt.Errorf("cron: expected 5 fields, got %d in %q", len(fields), expression)
	}

	var sets [5]fieldSet
	for i, spec := range fieldSpecs {
		set, err := parseField(fields[i], spec.min, spec.max)
		if err != nil {
			return Schedule{}, fmt.Errorf("cron: %s field: %w", spec.name, err)
		}
		sets[i] = set
	}

	return Schedule{
		minute:  sets[0],
		hour:    sets[1],
		day:     sets[2],
		month:   sets[3],
		weekday: sets[4],
		source:  strings.Join(fields, " "),
	}, nil
}

// Validate reports whether the expression parses as a 5-field cron
// expression. Convenience for callers that only need a yes/no answer
// before writing a cron.d entry.
func Validate(expression string) error {
	_, err := Parse(expression)
	return err
}

// String returns the expression with fields normalized to single
// spaces, as rendered into cron.d entries.
func (s Schedule) String() string { return s.source }

// Next returns the earliest time strictly after t that matches the
// schedule. All computation is in UTC.
//
// When both day-of-month and day-of-week are restricted, the match is
// AND rather than vixie cron's OR. The provisioner only ever writes
// schedules with at most one of the two restricted, where AND and OR
// agree.
//
// Returns an error if no matching time exists within 4 years of t
// (guards against impossible schedules like Feb 31).
func (s Schedule) Next(t time.Time) (time.Time, error) {
	t = t.UTC().Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		switch {
		case !s.month.contains(int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		case !s.day.contains(t.Day()) || !s.weekday.contains(int(t.Weekday())):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
		case !s.hour.contains(t.Hour()):
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, time.UTC)
		case !s.minute.contains(t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("cron: no matching time within 4 years of %s", t.Format(time.RFC3339))
}

// parseField parses one comma-separated cron field into a fieldSet.
func parseField(field string, min, max int) (fieldSet, error) {
	var result fieldSet
	for _, term := range strings.Split(field, ",") {
		start, end, step, err := parseTerm(term, min, max)
		if err != nil {
			return 0, err
		}
		for value := start; value <= end; value += step {
			result.add(value)
		}
	}
	if result == 0 {
		return 0, fmt.Errorf("field %q produces empty set", field)
	}
	return result, nil
}

// parseTerm parses a single term (*, */N, V, V-V, or V-V/N) into an
// inclusive range and step.
func parseTerm(term string, min, max int) (start, end, step int, err error) {
	step = 1
	if slash := strings.IndexByte(term, '/'); slash >= 0 {
		step, err = strconv.Atoi(term[slash+1:])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid step %q: %w", term[slash+1:], err)
		}
		if step <= 0 {
			return 0, 0, 0, fmt.Errorf("step must be positive, got %d", step)
		}
		term = term[:slash]
	}

	switch {
	case term == "*":
		start, end = min, max
	case strings.IndexByte(term, '-') >= 0:
		dash := strings.IndexByte(term, '-')
		start, err = strconv.Atoi(term[:dash])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid range start %q: %w", term[:dash], err)
		}
		end, err = strconv.Atoi(term[dash+1:])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid range end %q: %w", term[dash+1:], err)
		}
		if start > end {
			return 0, 0, 0, fmt.Errorf("range start %d > end %d", start, end)
		}
	default:
		start, err = strconv.Atoi(term)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid value %q: %w", term, err)
		}
		end = start
	}

	if start < min || end > max {
		return 0, 0, 0, fmt.Errorf("value out of range [%d-%d]: got %d-%d", min, max, start, end)
	}
	return start, end, step, nil
}
