package smartcharging

import (
	"time"

	"github.com/evstack/ocpp16/internal/ocpp16"
)

// Period is one flattened segment of a schedule: from Start on, the limit
// is Limit, expressed in Unit with NumberPhases.
type Period struct {
	Start        time.Duration // offset from the composite schedule's t0
	Limit        float64
	Unit         ocpp16.ChargingRateUnitType
	NumberPhases int
}

// normalizedKind applies spec.md §4.4's profile-kind normalization: an
// Absolute profile with no startSchedule behaves as Relative.
func normalizedKind(p ocpp16.ChargingProfile) ocpp16.ChargingProfileKindType {
	if p.ChargingProfileKind == ocpp16.KindAbsolute && p.ChargingSchedule.StartSchedule == nil {
		return ocpp16.KindRelative
	}
	return p.ChargingProfileKind
}

// isValidAt implements spec.md §4.4's validity predicate.
func isValidAt(p ocpp16.ChargingProfile, t time.Time) bool {
	if p.ValidFrom != nil && t.Before(p.ValidFrom.Time) {
		return false
	}
	if p.ValidTo != nil && t.After(p.ValidTo.Time) {
		return false
	}
	return true
}

// startTime implements spec.md §4.4's "Profile start time at t", including
// the Open Question #1 decision for Recurring(Weekly): unlike the
// original source's abs(weekday delta) (which can walk backward in
// time), this computes the next occurrence at or after today.
func startTime(p ocpp16.ChargingProfile, t time.Time, txStart time.Time, txActive bool) time.Time {
	switch normalizedKind(p) {
	case ocpp16.KindAbsolute:
		if p.ChargingSchedule.StartSchedule != nil {
			return p.ChargingSchedule.StartSchedule.Time
		}
		return t
	case ocpp16.KindRelative:
		if txActive {
			return txStart
		}
		return t
	case ocpp16.KindRecurring:
		if p.ChargingSchedule.StartSchedule == nil {
			return t
		}
		sched := p.ChargingSchedule.StartSchedule.Time
		if p.RecurrencyKind != nil && *p.RecurrencyKind == ocpp16.RecurrencyWeekly {
			return nextWeeklyOccurrence(sched, t)
		}
		// Daily: today at the wall-clock time-of-day of startSchedule.
		return time.Date(t.Year(), t.Month(), t.Day(), sched.Hour(), sched.Minute(), sched.Second(), sched.Nanosecond(), t.Location())
	}
	return t
}

// nextWeeklyOccurrence returns today (at sched's time-of-day) if today's
// weekday matches sched's weekday, else the next future date whose
// weekday matches, at the same time-of-day. Resolves Open Question #1:
// days forward is (scheduled_wday - today_wday + 7) % 7, never negative.
func nextWeeklyOccurrence(sched, t time.Time) time.Time {
	daysForward := (int(sched.Weekday()) - int(t.Weekday()) + 7) % 7
	day := t.AddDate(0, 0, daysForward)
	return time.Date(day.Year(), day.Month(), day.Day(), sched.Hour(), sched.Minute(), sched.Second(), sched.Nanosecond(), t.Location())
}

// activePeriodIndex implements spec.md §4.4's "Active period selection":
// scan chargingSchedulePeriod[] from last to first, return the
// highest-index period whose scheduleStart+startPeriod <= t. Returns -1
// if the profile does not apply at t at all.
func activePeriodIndex(p ocpp16.ChargingProfile, scheduleStart, t time.Time) int {
	if t.Before(scheduleStart) {
		return -1
	}
	if p.ChargingSchedule.Duration != nil {
		end := scheduleStart.Add(time.Duration(*p.ChargingSchedule.Duration) * time.Second)
		if t.After(end) {
			return -1
		}
	}
	periods := p.ChargingSchedule.ChargingSchedulePeriod
	for i := len(periods) - 1; i >= 0; i-- {
		periodStart := scheduleStart.Add(time.Duration(periods[i].StartPeriod) * time.Second)
		if !t.Before(periodStart) {
			return i
		}
	}
	return -1
}

// VoltageSource supplies the nominal operating voltage used by A<->W
// conversion (spec.md §4.4 point 4); a fixed single-phase/three-phase
// mains voltage per deployment.
type VoltageSource interface {
	NominalVoltage() float64
}

type fixedVoltage float64

func (v fixedVoltage) NominalVoltage() float64 { return float64(v) }

// FixedVoltage builds a VoltageSource returning a constant value.
func FixedVoltage(v float64) VoltageSource { return fixedVoltage(v) }

// convertToUnit converts limit from `from` to `to` using P = V * I * n.
// numberPhases defaults to 3 when unset, per spec.md §4.4.
func convertToUnit(limit float64, from, to ocpp16.ChargingRateUnitType, numberPhases *int, voltage VoltageSource) float64 {
	if from == to {
		return limit
	}
	n := 3.0
	if numberPhases != nil {
		n = float64(*numberPhases)
	}
	v := voltage.NominalVoltage()
	if from == ocpp16.RateUnitA && to == ocpp16.RateUnitW {
		return limit * v * n
	}
	if from == ocpp16.RateUnitW && to == ocpp16.RateUnitA {
		if v == 0 || n == 0 {
			return 0
		}
		return limit / (v * n)
	}
	return limit
}

// Setpoints is getSetpoint's (cp_setpoint?, connector_setpoint?) result.
type Setpoints struct {
	ChargePoint *float64
	Connector   *float64
}

// GetSetpoint implements spec.md §4.4's getSetpoint.
func (db *ProfileDB) GetSetpoint(connectorID int, unit ocpp16.ChargingRateUnitType, conn ConnectorState, voltage VoltageSource, now time.Time) Setpoints {
	db.mu.Lock()
	defer db.mu.Unlock()

	var result Setpoints

	if v, ok := firstActiveLimit(db.chargePointMax, 0, conn, voltage, unit, now); ok {
		result.ChargePoint = &v
	}

	if v, ok := firstActiveLimit(db.txProfiles, connectorID, conn, voltage, unit, now); ok {
		result.Connector = &v
	} else if v, ok := firstActiveLimit(db.txDefault, connectorID, conn, voltage, unit, now); ok {
		result.Connector = &v
	}

	if result.ChargePoint != nil {
		if result.Connector == nil || *result.Connector > *result.ChargePoint {
			clamped := *result.ChargePoint
			result.Connector = &clamped
		}
	}
	return result
}

// firstActiveLimit scans list (already sorted stackLevel descending) for
// the first profile applicable to connectorID (or connector 0 fallback)
// that is active at now, returning its limit converted to unit.
func firstActiveLimit(list []installedProfile, connectorID int, conn ConnectorState, voltage VoltageSource, unit ocpp16.ChargingRateUnitType, now time.Time) (float64, bool) {
	for _, ip := range list {
		if ip.connectorID != connectorID && ip.connectorID != 0 {
			continue
		}
		p := ip.profile
		if !isValidAt(p, now) {
			continue
		}
		st := startTime(p, now, conn.TransactionStart, conn.TransactionActive)
		idx := activePeriodIndex(p, st, now)
		if idx < 0 {
			continue
		}
		period := p.ChargingSchedule.ChargingSchedulePeriod[idx]
		return convertToUnit(period.Limit, p.ChargingSchedule.ChargingRateUnit, unit, period.NumberPhases, voltage), true
	}
	return 0, false
}
