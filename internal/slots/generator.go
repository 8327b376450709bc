// Package slots turns availability rules into concrete per-date slots.
// Generation is pure and deterministic: the same rules, range and timezone
// always produce the same output.
package slots

import (
	"fmt"
	"time"

	"slotforge/internal/model"
)

// DayOutcome is the generation result for a single calendar date. Exactly
// one of Slot or Err is meaningful: a validation failure on one date is
// reported here instead of aborting the rest of the range.
type DayOutcome struct {
	Date string
	Slot model.GeneratedSlot
	Err  error
}

// Generate computes one outcome per calendar date in [start, start+days).
//
// Resolution order per date: an active one-time rule for the date wins
// outright; otherwise the active recurring rule matching the weekday
// applies; with neither, the scope is closed by default. The winning rule
// either closes the day (closed marker) or opens the interval
// [start_time, end_time) localized to start's zone.
//
// start must be a local midnight in the scope's timezone; days of zero
// yields an empty result. Output is ordered by date ascending.
func Generate(scope model.Scope, rules []model.AvailabilityRule, start time.Time, days, defaultDuration int) []DayOutcome {
	if days <= 0 {
		return nil
	}

	oneTime := make(map[string]model.AvailabilityRule)
	recurring := make(map[int]model.AvailabilityRule)
	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		switch r.Kind {
		case model.RuleOneTime:
			if _, dup := oneTime[r.SpecificDate]; !dup {
				oneTime[r.SpecificDate] = r
			}
		case model.RuleRecurring:
			if _, dup := recurring[r.DayOfWeek]; !dup {
				recurring[r.DayOfWeek] = r
			}
		}
	}

	outcomes := make([]DayOutcome, 0, days)
	for offset := 0; offset < days; offset++ {
		date := start.AddDate(0, 0, offset)
		dateStr := date.Format(DateFormat)

		rule, found := oneTime[dateStr]
		if !found {
			rule, found = recurring[int(date.Weekday())]
		}

		if !found || rule.IsClosed {
			outcomes = append(outcomes, DayOutcome{
				Date: dateStr,
				Slot: closedMarker(scope, dateStr),
			})
			continue
		}

		slot, err := openSlot(scope, rule, date, dateStr, defaultDuration)
		if err != nil {
			outcomes = append(outcomes, DayOutcome{Date: dateStr, Err: err})
			continue
		}
		outcomes = append(outcomes, DayOutcome{Date: dateStr, Slot: slot})
	}

	return outcomes
}

func closedMarker(scope model.Scope, date string) model.GeneratedSlot {
	return model.GeneratedSlot{
		TenantID:   scope.TenantID,
		LocationID: scope.LocationID,
		ScopeKind:  scope.Kind,
		UnitID:     scope.UnitID,
		Date:       date,
		IsClosed:   true,
	}
}

func openSlot(scope model.Scope, rule model.AvailabilityRule, date time.Time, dateStr string, defaultDuration int) (model.GeneratedSlot, error) {
	startHour, startMin, err := ParseClock(rule.StartTime)
	if err != nil {
		return model.GeneratedSlot{}, &model.ValidationError{Date: dateStr, Reason: err.Error()}
	}
	endHour, endMin, err := ParseClock(rule.EndTime)
	if err != nil {
		return model.GeneratedSlot{}, &model.ValidationError{Date: dateStr, Reason: err.Error()}
	}

	if startHour*60+startMin >= endHour*60+endMin {
		return model.GeneratedSlot{}, &model.ValidationError{
			Date:   dateStr,
			Reason: fmt.Sprintf("start time %s is not before end time %s", rule.StartTime, rule.EndTime),
		}
	}

	startAt, err := ResolveLocal(date, startHour, startMin)
	if err != nil {
		return model.GeneratedSlot{}, err
	}
	endAt, err := ResolveLocal(date, endHour, endMin)
	if err != nil {
		return model.GeneratedSlot{}, err
	}

	duration := rule.ServiceDuration
	if duration <= 0 {
		duration = defaultDuration
	}
	if duration <= 0 {
		duration = FallbackServiceDuration
	}

	return model.GeneratedSlot{
		TenantID:        scope.TenantID,
		LocationID:      scope.LocationID,
		ScopeKind:       scope.Kind,
		UnitID:          scope.UnitID,
		Date:            dateStr,
		StartAt:         startAt,
		EndAt:           endAt,
		ServiceDuration: duration,
	}, nil
}
