package smartcharging

import (
	"sort"
	"time"

	"github.com/evstack/ocpp16/internal/ocpp16"
)

// mergeSegment is an internal, contiguous [Start,End) slice of a
// composite schedule under construction, expressed as offsets from t0.
type mergeSegment struct {
	Start, End time.Duration
	Limit      float64
	Unit       ocpp16.ChargingRateUnitType
	NumberPhases int
}

// extractProfileSegments computes the profile's schedule periods clipped
// to [windowStart, windowEnd), per spec.md §4.4's "compute per-profile
// periods bounded by [t, t+duration) using the active-period selection
// rule". scheduleStart is the profile's resolved startTime.
func extractProfileSegments(p ocpp16.ChargingProfile, scheduleStart time.Time, windowStart, windowEnd time.Time) []mergeSegment {
	periods := p.ChargingSchedule.ChargingSchedulePeriod
	if len(periods) == 0 {
		return nil
	}

	var profileEnd time.Time
	hasEnd := false
	if p.ChargingSchedule.Duration != nil {
		profileEnd = scheduleStart.Add(time.Duration(*p.ChargingSchedule.Duration) * time.Second)
		hasEnd = true
	}

	var out []mergeSegment
	for i, period := range periods {
		segStart := scheduleStart.Add(time.Duration(period.StartPeriod) * time.Second)
		var segEnd time.Time
		if i+1 < len(periods) {
			segEnd = scheduleStart.Add(time.Duration(periods[i+1].StartPeriod) * time.Second)
		} else if hasEnd {
			segEnd = profileEnd
		} else {
			segEnd = windowEnd
		}
		if hasEnd && segEnd.After(profileEnd) {
			segEnd = profileEnd
		}
		if segEnd.After(windowEnd) {
			segEnd = windowEnd
		}
		if segStart.Before(windowStart) {
			segStart = windowStart
		}
		if !segStart.Before(segEnd) {
			continue
		}
		out = append(out, mergeSegment{
			Start:        segStart.Sub(windowStart),
			End:          segEnd.Sub(windowStart),
			Limit:        period.Limit,
			Unit:         p.ChargingSchedule.ChargingRateUnit,
			NumberPhases: derefOr(period.NumberPhases, 3),
		})
	}
	return out
}

func derefOr(p *int, d int) int {
	if p == nil {
		return d
	}
	return *p
}

// mergeProfilePeriods implements spec.md §4.4's profile-merge rule:
// accumulator periods (higher priority) win on overlap; a new period
// entirely before any accumulator period is appended; the pre-overlap
// prefix of an overlapping new period is appended before resuming with
// its remainder. Non-contiguous coverage aborts with ok=false, per
// spec.md §9's documented (not redesigned) source behavior.
func mergeProfilePeriods(acc, add []mergeSegment) ([]mergeSegment, bool) {
	if len(acc) == 0 {
		return add, true
	}
	if len(add) == 0 {
		return acc, true
	}

	boundarySet := map[time.Duration]struct{}{}
	for _, s := range acc {
		boundarySet[s.Start] = struct{}{}
		boundarySet[s.End] = struct{}{}
	}
	for _, s := range add {
		boundarySet[s.Start] = struct{}{}
		boundarySet[s.End] = struct{}{}
	}
	bounds := make([]time.Duration, 0, len(boundarySet))
	for b := range boundarySet {
		bounds = append(bounds, b)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })

	var merged []mergeSegment
	for i := 0; i+1 < len(bounds); i++ {
		segStart, segEnd := bounds[i], bounds[i+1]
		if segStart >= segEnd {
			continue
		}
		if src, ok := coveringAt(acc, segStart); ok {
			appendSegment(&merged, segStart, segEnd, src)
			continue
		}
		if src, ok := coveringAt(add, segStart); ok {
			appendSegment(&merged, segStart, segEnd, src)
			continue
		}
		return nil, false
	}
	return merged, true
}

func coveringAt(list []mergeSegment, t time.Duration) (mergeSegment, bool) {
	for _, s := range list {
		if t >= s.Start && t < s.End {
			return s, true
		}
	}
	return mergeSegment{}, false
}

func appendSegment(merged *[]mergeSegment, start, end time.Duration, src mergeSegment) {
	if n := len(*merged); n > 0 {
		last := &(*merged)[n-1]
		if last.End == start && last.Limit == src.Limit && last.Unit == src.Unit && last.NumberPhases == src.NumberPhases {
			last.End = end
			return
		}
	}
	*merged = append(*merged, mergeSegment{Start: start, End: end, Limit: src.Limit, Unit: src.Unit, NumberPhases: src.NumberPhases})
}

// LocalLimitation is one entry of getLocalLimitationsSchedule's result:
// a user-supplied hardware/site limit overlaid on the profile-derived
// schedule (spec.md §4.4 step 2).
type LocalLimitation struct {
	Start time.Duration
	End   time.Duration
	Limit float64
	Unit  ocpp16.ChargingRateUnitType
}

// LocalLimitationsSource is the user-side collaborator spec.md §4.4
// names as getLocalLimitationsSchedule(connector, duration).
type LocalLimitationsSource interface {
	GetLocalLimitationsSchedule(connectorID int, duration time.Duration) []LocalLimitation
}

// mergeLocalPeriods implements spec.md §4.4's local-merge rule: each
// overlapping profile segment is clamped to the minimum of its own limit
// and the local limitation's limit (after unit conversion); segments
// with no overlapping local limitation pass through unchanged.
func mergeLocalPeriods(profile []mergeSegment, local []LocalLimitation, voltage VoltageSource) []mergeSegment {
	if len(local) == 0 {
		return profile
	}

	var out []mergeSegment
	for _, seg := range profile {
		limit := seg.Limit
		for _, loc := range local {
			if loc.End <= seg.Start || loc.Start >= seg.End {
				continue
			}
			locLimit := convertToUnit(loc.Limit, loc.Unit, seg.Unit, nil, voltage)
			if locLimit < limit {
				limit = locLimit
			}
		}
		seg.Limit = limit
		out = append(out, seg)
	}
	return out
}

// CompositeSchedule is getCompositeSchedule's output, offsets starting
// from 0 and consecutive same-limit periods coalesced (spec.md §4.4
// step 3).
type CompositeSchedule struct {
	ChargingRateUnit ocpp16.ChargingRateUnitType
	ChargingSchedulePeriod []ocpp16.ChargingSchedulePeriod
	Duration int
}

// GetCompositeSchedule implements spec.md §4.4's getCompositeSchedule.
// Returns ok=false when the profile-merge rule hit non-contiguous
// coverage (empty schedule per the documented source behavior).
func (db *ProfileDB) GetCompositeSchedule(connectorID int, duration time.Duration, unit ocpp16.ChargingRateUnitType, conn ConnectorState, voltage VoltageSource, local LocalLimitationsSource, now time.Time) (CompositeSchedule, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	windowEnd := now.Add(duration)
	var acc []mergeSegment

	if conn.TransactionActive {
		for _, ip := range db.txProfiles {
			if ip.connectorID != connectorID && ip.connectorID != 0 {
				continue
			}
			if !isValidAt(ip.profile, now) {
				continue
			}
			st := startTime(ip.profile, now, conn.TransactionStart, conn.TransactionActive)
			segs := extractProfileSegments(ip.profile, st, now, windowEnd)
			merged, ok := mergeProfilePeriods(acc, segs)
			if !ok {
				return CompositeSchedule{}, false
			}
			acc = merged
		}
	}

	for _, ip := range db.txDefault {
		if ip.connectorID != connectorID && ip.connectorID != 0 {
			continue
		}
		if !isValidAt(ip.profile, now) {
			continue
		}
		st := startTime(ip.profile, now, conn.TransactionStart, conn.TransactionActive)
		segs := extractProfileSegments(ip.profile, st, now, windowEnd)
		merged, ok := mergeProfilePeriods(acc, segs)
		if !ok {
			return CompositeSchedule{}, false
		}
		acc = merged
	}

	// ChargePointMax is a hard ceiling over the Tx/TxDefault-derived
	// schedule, mirroring GetSetpoint's ChargePoint/Connector clamp
	// (spec.md §8 scenario S4): fold each active ChargePointMaxProfile's
	// periods into their own accumulator, then clamp acc to it.
	var cpmAcc []mergeSegment
	for _, ip := range db.chargePointMax {
		if !isValidAt(ip.profile, now) {
			continue
		}
		st := startTime(ip.profile, now, conn.TransactionStart, conn.TransactionActive)
		segs := extractProfileSegments(ip.profile, st, now, windowEnd)
		merged, ok := mergeProfilePeriods(cpmAcc, segs)
		if !ok {
			return CompositeSchedule{}, false
		}
		cpmAcc = merged
	}
	acc = clampToChargePointMax(acc, cpmAcc, voltage)

	if local != nil {
		locals := local.GetLocalLimitationsSchedule(connectorID, duration)
		acc = mergeLocalPeriods(acc, locals, voltage)
	}

	return buildOutputSchedule(acc, unit, voltage, duration), true
}

// clampToChargePointMax bounds each segment of segs to the minimum of its
// own limit and any overlapping ChargePointMax segment's limit (after
// unit conversion), the composite-schedule analog of GetSetpoint's
// ChargePoint-clamps-Connector step.
func clampToChargePointMax(segs, cpm []mergeSegment, voltage VoltageSource) []mergeSegment {
	if len(cpm) == 0 {
		return segs
	}

	out := make([]mergeSegment, 0, len(segs))
	for _, seg := range segs {
		limit := seg.Limit
		for _, ceiling := range cpm {
			if ceiling.End <= seg.Start || ceiling.Start >= seg.End {
				continue
			}
			n := ceiling.NumberPhases
			ceilingLimit := convertToUnit(ceiling.Limit, ceiling.Unit, seg.Unit, &n, voltage)
			if ceilingLimit < limit {
				limit = ceilingLimit
			}
		}
		seg.Limit = limit
		out = append(out, seg)
	}
	return out
}

func buildOutputSchedule(segs []mergeSegment, unit ocpp16.ChargingRateUnitType, voltage VoltageSource, duration time.Duration) CompositeSchedule {
	out := CompositeSchedule{ChargingRateUnit: unit, Duration: int(duration / time.Second)}
	for _, s := range segs {
		limit := convertToUnit(s.Limit, s.Unit, unit, &s.NumberPhases, voltage)
		period := ocpp16.ChargingSchedulePeriod{
			StartPeriod: int(s.Start / time.Second),
			Limit:       limit,
		}
		if n := len(out.ChargingSchedulePeriod); n > 0 {
			last := &out.ChargingSchedulePeriod[n-1]
			if last.Limit == limit {
				continue
			}
		}
		out.ChargingSchedulePeriod = append(out.ChargingSchedulePeriod, period)
	}
	return out
}
