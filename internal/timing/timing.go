// Package timing implements the timing engine: pure functions
// computing the next fire time for interval, calendar-rule, and conditional
// schedules. Every function takes its reference time explicitly; nothing
// here reads the wall clock.
package timing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

func unitDelta(count int, unit domain.IntervalUnit, from time.Time) time.Time {
	switch unit {
	case domain.UnitMinute:
		return from.Add(time.Duration(count) * time.Minute)
	case domain.UnitHour:
		return from.Add(time.Duration(count) * time.Hour)
	case domain.UnitDay:
		return from.AddDate(0, 0, count)
	case domain.UnitWeek:
		return from.AddDate(0, 0, count*7)
	case domain.UnitMonth:
		return from.AddDate(0, count, 0)
	default:
		return from
	}
}

func evalUnitDelta(count int, unit domain.EvalIntervalUnit, from time.Time) time.Time {
	switch unit {
	case domain.EvalUnitMinute:
		return from.Add(time.Duration(count) * time.Minute)
	case domain.EvalUnitHour:
		return from.Add(time.Duration(count) * time.Hour)
	case domain.EvalUnitDay:
		return from.AddDate(0, 0, count)
	case domain.EvalUnitWeek:
		return from.AddDate(0, 0, count*7)
	default:
		return from
	}
}

// NextInterval returns the smallest `anchor + k*delta > reference`. If
// anchor is nil, createdAt stands in as the anchor.
func NextInterval(count int, unit domain.IntervalUnit, anchor *time.Time, reference, createdAt time.Time) time.Time {
	if count <= 0 {
		count = 1
	}
	base := createdAt
	if anchor != nil {
		base = *anchor
	}

	candidate := base
	if !candidate.After(reference) {
		// Jump forward in bulk rather than stepping one unit at a time,
		// then walk the remainder — avoids O(k) stepping for far-future
		// references. The first step's duration can be shorter than later
		// ones (a month from February), so the jump backs off until it
		// lands at or before reference.
		stepDur := unitDelta(count, unit, base).Sub(base)
		if stepDur > 0 {
			elapsed := reference.Sub(base)
			k := int64(elapsed / stepDur)
			for k > 0 {
				candidate = unitDelta(int(k)*count, unit, base)
				if !candidate.After(reference) {
					break
				}
				k--
			}
		}
	}
	for !candidate.After(reference) {
		candidate = unitDelta(count, unit, candidate)
	}
	return candidate
}

// NextConditionalEval returns reference + k*delta, the same arithmetic as
// NextInterval but over the conditional-schedule evaluation-interval unit
// set.
func NextConditionalEval(count int, unit domain.EvalIntervalUnit, reference time.Time) time.Time {
	if count <= 0 {
		count = 1
	}
	return evalUnitDelta(count, unit, reference)
}

// rrule is the parsed RFC-5545 subset supported here:
// FREQ, INTERVAL, BYDAY, BYHOUR, BYMINUTE, BYMONTH, BYMONTHDAY, COUNT, UNTIL.
type rrule struct {
	freq       string
	interval   int
	byDay      []time.Weekday
	byHour     []int
	byMinute   []int
	byMonth    []int
	byMonthDay []int
	count      int
	until      *time.Time
}

var weekdayTokens = map[string]time.Weekday{
	"SU": time.Sunday, "MO": time.Monday, "TU": time.Tuesday, "WE": time.Wednesday,
	"TH": time.Thursday, "FR": time.Friday, "SA": time.Saturday,
}

// ErrUnsupportedRRule is returned for any RRULE token outside the supported
// subset (e.g. BYSETPOS, WKST) — refused rather than silently ignored.
var ErrUnsupportedRRule = fmt.Errorf("unsupported rrule token")

func parseRRule(s string) (*rrule, error) {
	r := &rrule{interval: 1}
	parts := strings.Split(strings.TrimSpace(s), ";")
	for _, part := range parts {
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("%w: malformed token %q", ErrUnsupportedRRule, part)
		}
		key, val := strings.ToUpper(kv[0]), kv[1]
		switch key {
		case "FREQ":
			switch strings.ToUpper(val) {
			case "DAILY", "WEEKLY", "MONTHLY", "YEARLY":
				r.freq = strings.ToUpper(val)
			default:
				return nil, fmt.Errorf("%w: FREQ=%s", ErrUnsupportedRRule, val)
			}
		case "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("%w: INTERVAL=%s", ErrUnsupportedRRule, val)
			}
			r.interval = n
		case "COUNT":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("%w: COUNT=%s", ErrUnsupportedRRule, val)
			}
			r.count = n
		case "UNTIL":
			t, err := parseUntil(val)
			if err != nil {
				return nil, fmt.Errorf("%w: UNTIL=%s", ErrUnsupportedRRule, val)
			}
			r.until = &t
		case "BYDAY":
			for _, d := range strings.Split(val, ",") {
				wd, ok := weekdayTokens[strings.ToUpper(d)]
				if !ok {
					return nil, fmt.Errorf("%w: BYDAY=%s", ErrUnsupportedRRule, d)
				}
				r.byDay = append(r.byDay, wd)
			}
		case "BYHOUR":
			ns, err := parseIntList(val)
			if err != nil {
				return nil, fmt.Errorf("%w: BYHOUR=%s", ErrUnsupportedRRule, val)
			}
			r.byHour = ns
		case "BYMINUTE":
			ns, err := parseIntList(val)
			if err != nil {
				return nil, fmt.Errorf("%w: BYMINUTE=%s", ErrUnsupportedRRule, val)
			}
			r.byMinute = ns
		case "BYMONTH":
			ns, err := parseIntList(val)
			if err != nil {
				return nil, fmt.Errorf("%w: BYMONTH=%s", ErrUnsupportedRRule, val)
			}
			r.byMonth = ns
		case "BYMONTHDAY":
			ns, err := parseIntList(val)
			if err != nil {
				return nil, fmt.Errorf("%w: BYMONTHDAY=%s", ErrUnsupportedRRule, val)
			}
			r.byMonthDay = ns
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedRRule, key)
		}
	}
	if r.freq == "" {
		return nil, fmt.Errorf("%w: missing FREQ", ErrUnsupportedRRule)
	}
	return r, nil
}

func parseIntList(val string) ([]int, error) {
	var out []int
	for _, s := range strings.Split(val, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func parseUntil(val string) (time.Time, error) {
	if t, err := time.Parse("20060102T150405Z", val); err == nil {
		return t, nil
	}
	return time.Parse("20060102", val)
}

func matches(t time.Time, r *rrule) bool {
	if len(r.byHour) > 0 && !intIn(t.Hour(), r.byHour) {
		return false
	}
	if len(r.byMinute) > 0 && !intIn(t.Minute(), r.byMinute) {
		return false
	}
	if len(r.byMonth) > 0 && !intIn(int(t.Month()), r.byMonth) {
		return false
	}
	if len(r.byMonthDay) > 0 && !intIn(t.Day(), r.byMonthDay) {
		return false
	}
	if len(r.byDay) > 0 {
		found := false
		for _, wd := range r.byDay {
			if t.Weekday() == wd {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func intIn(n int, list []int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}

func stepFreq(t time.Time, r *rrule) time.Time {
	switch r.freq {
	case "DAILY":
		return t.AddDate(0, 0, r.interval)
	case "WEEKLY":
		return t.AddDate(0, 0, 7*r.interval)
	case "MONTHLY":
		return t.AddDate(0, r.interval, 0)
	case "YEARLY":
		return t.AddDate(r.interval, 0, 0)
	default:
		return t
	}
}

// maxScanIterations bounds the candidate search so a pathological rule
// (e.g. BYMONTHDAY=31 on a MONTHLY freq that keeps landing on 30-day months)
// cannot spin forever.
const maxScanIterations = 10_000

// daySlots expands a FREQ-step candidate into the ordered set of
// occurrences it covers. BYHOUR/BYMINUTE name the time-of-day slots for
// each date — e.g. FREQ=DAILY;BYHOUR=9 produces one 09:00 slot per day
// rather than filtering the FREQ step's own (unrelated) hour; absent either
// field, the candidate's own hour/minute is carried through unexpanded.
// Under FREQ=WEEKLY with BYDAY, the slots span the seven dates starting at
// the candidate, so BYDAY selects days within each week. Under MONTHLY and
// YEARLY, BYDAY/BYMONTHDAY/BYMONTH only filter the stepped date itself.
func daySlots(t time.Time, r *rrule) []time.Time {
	hours := r.byHour
	if len(hours) == 0 {
		hours = []int{t.Hour()}
	}
	minutes := r.byMinute
	if len(minutes) == 0 {
		minutes = []int{t.Minute()}
	}
	days := 1
	if r.freq == "WEEKLY" && len(r.byDay) > 0 {
		days = 7
	}

	slots := make([]time.Time, 0, days*len(hours)*len(minutes))
	for d := 0; d < days; d++ {
		day := t.AddDate(0, 0, d)
		for _, h := range hours {
			for _, m := range minutes {
				slots = append(slots, time.Date(day.Year(), day.Month(), day.Day(), h, m, t.Second(), 0, t.Location()))
			}
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots
}

// NextCalendar returns the next occurrence of rrule strictly after
// reference, interpreted in loc, starting the scan from anchor (or
// reference if anchor is nil). Returns ErrUnsupportedRRule for any token
// outside the supported subset.
func NextCalendar(rruleStr string, anchor *time.Time, reference time.Time, loc *time.Location) (time.Time, error) {
	r, err := parseRRule(rruleStr)
	if err != nil {
		return time.Time{}, err
	}

	start := reference
	if anchor != nil {
		start = *anchor
	}
	dateCursor := start.In(loc)

	// occurrences counts every match from the rule's start, including ones
	// at or before reference, so COUNT is measured against the rule's own
	// timeline rather than reset on each call.
	occurrences := 0
	for i := 0; i < maxScanIterations; i++ {
		for _, candidate := range daySlots(dateCursor, r) {
			if r.until != nil && candidate.After(*r.until) {
				return time.Time{}, fmt.Errorf("rrule exhausted: past UNTIL")
			}
			if matches(candidate, r) {
				occurrences++
				if r.count > 0 && occurrences > r.count {
					return time.Time{}, fmt.Errorf("rrule exhausted: COUNT reached")
				}
				if candidate.After(reference) {
					return candidate, nil
				}
			}
		}
		dateCursor = stepFreq(dateCursor, r)
	}
	return time.Time{}, fmt.Errorf("rrule scan exceeded %d iterations without a match", maxScanIterations)
}
