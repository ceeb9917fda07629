// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package retention

import (
	"time"

	"github.com/formworks/formworks/internal/logging"
)

// IsDue reports whether a policy's schedule matches the given instant.
// The instant is truncated to the hour in the schedule's timezone, so a
// policy is due for the whole hour it names; LastRunAt guards against
// running twice within the same hour.
func IsDue(policy *Policy, now time.Time) bool {
	if !policy.Enabled {
		return false
	}

	loc := scheduleLocation(policy.Schedule.Timezone)
	local := now.In(loc)

	if local.Hour() != policy.Schedule.Hour {
		return false
	}

	switch policy.Schedule.Frequency {
	case FrequencyDaily:
		// Hour match is sufficient.
	case FrequencyWeekly:
		if int(local.Weekday()) != policy.Schedule.DayOfWeek {
			return false
		}
	case FrequencyMonthly:
		if local.Day() != policy.Schedule.DayOfMonth {
			return false
		}
	default:
		return false
	}

	// Already ran within this scheduled hour.
	if policy.Stats.LastRunAt != nil {
		lastLocal := policy.Stats.LastRunAt.In(loc)
		if lastLocal.Truncate(time.Hour).Equal(local.Truncate(time.Hour)) {
			return false
		}
	}

	return true
}

// NextRun returns the next instant at or after now that the schedule
// matches, ignoring LastRunAt. Returns the zero time when no match is
// found within two years, which only happens for malformed schedules.
func NextRun(policy *Policy, now time.Time) time.Time {
	loc := scheduleLocation(policy.Schedule.Timezone)
	candidate := now.In(loc).Truncate(time.Hour)

	limit := candidate.AddDate(2, 0, 0)
	for !candidate.After(limit) {
		if scheduleMatches(&policy.Schedule, candidate) {
			return candidate
		}
		candidate = candidate.Add(time.Hour)
	}
	return time.Time{}
}

func scheduleMatches(s *Schedule, t time.Time) bool {
	if t.Hour() != s.Hour {
		return false
	}
	switch s.Frequency {
	case FrequencyDaily:
		return true
	case FrequencyWeekly:
		return int(t.Weekday()) == s.DayOfWeek
	case FrequencyMonthly:
		return t.Day() == s.DayOfMonth
	default:
		return false
	}
}

func scheduleLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logging.Warn().Str("timezone", name).Msg("Unknown schedule timezone, falling back to UTC")
		return time.UTC
	}
	return loc
}
