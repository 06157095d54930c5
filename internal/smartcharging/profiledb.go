// Package smartcharging implements the Smart-Charging Engine (spec.md
// §4.4, C5): the three-list profile database, setpoint evaluation and
// composite-schedule construction. It is a close Go port of the
// teacher's closest analog in spirit to original_source's
// SmartChargingManager.cpp, which this package follows algorithm-for-
// algorithm (getSetpoint, installTxProfile, assignPendingTxProfiles,
// clearTxProfiles, cleanupProfiles, getProfileStartTime,
// getProfilePeriods, mergeProfilePeriods, mergeLocalPeriods).
package smartcharging

import (
	"sort"
	"sync"
	"time"

	"github.com/evstack/ocpp16/internal/ocpp16"
)

// installedProfile pairs a profile with the connector it was installed
// against (0 for ChargePointMaxProfile and connector-less TxDefault).
type installedProfile struct {
	connectorID int
	profile     ocpp16.ChargingProfile
}

// Limits bounds profile installation, grounded on the C9 config keys
// named in spec.md §6 (ChargeProfileMaxStackLevel, ...).
type Limits struct {
	MaxStackLevel             int
	MaxSchedulePeriods        int
	AllowedChargingRateUnit   []ocpp16.ChargingRateUnitType
	MaxChargingProfilesInstalled int
}

// InstallError reports an install-time rejection reason, returned as
// PropertyConstraintViolation by the dispatcher handler.
type InstallError struct{ Reason string }

func (e InstallError) Error() string { return e.Reason }

// ConnectorState is the minimal per-connector view the engine needs:
// whether a transaction is active, since when, and its id.
type ConnectorState struct {
	TransactionActive bool
	TransactionID     int
	TransactionStart  time.Time
}

// ProfileDB holds the three ordered profile lists described in
// spec.md §4.4, guarded by a single mutex (spec.md §5: "the profile
// database is guarded by a single mutex held across setpoint/composite-
// schedule computations").
type ProfileDB struct {
	mu     sync.Mutex
	limits Limits

	chargePointMax []installedProfile // always connector 0
	txProfiles     []installedProfile
	txDefault      []installedProfile
}

func NewProfileDB(limits Limits) *ProfileDB {
	return &ProfileDB{limits: limits}
}

// sortByStackLevelDesc keeps each list sorted by stackLevel descending,
// as spec.md §4.4 requires ("sorted within each list by stackLevel
// descending").
func sortByStackLevelDesc(list []installedProfile) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].profile.StackLevel > list[j].profile.StackLevel
	})
}

// Install validates and inserts profile per spec.md §4.4's install
// rules. Testable invariant #6 (§8): a profile installed with stackLevel
// s replaces any existing profile on the same (connector, purpose,
// stackLevel) — purpose is implied by which of the three lists it lands
// in — as well as any profile sharing its ChargingProfileId.
func (db *ProfileDB) Install(connectorID int, profile ocpp16.ChargingProfile, conn ConnectorState) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.validateForInstall(connectorID, profile, conn); err != nil {
		return err
	}

	switch profile.ChargingProfilePurpose {
	case ocpp16.PurposeChargePointMaxProfile:
		db.chargePointMax = replaceProfile(db.chargePointMax, installedProfile{connectorID: 0, profile: profile})
		sortByStackLevelDesc(db.chargePointMax)
	case ocpp16.PurposeTxProfile:
		db.txProfiles = replaceProfile(db.txProfiles, installedProfile{connectorID: connectorID, profile: profile})
		sortByStackLevelDesc(db.txProfiles)
	case ocpp16.PurposeTxDefaultProfile:
		db.txDefault = replaceProfile(db.txDefault, installedProfile{connectorID: connectorID, profile: profile})
		sortByStackLevelDesc(db.txDefault)
	}
	return nil
}

func (db *ProfileDB) validateForInstall(connectorID int, p ocpp16.ChargingProfile, conn ConnectorState) error {
	if db.limits.MaxStackLevel > 0 && p.StackLevel > db.limits.MaxStackLevel {
		return InstallError{"stackLevel exceeds ChargeProfileMaxStackLevel"}
	}
	if db.limits.MaxSchedulePeriods > 0 && len(p.ChargingSchedule.ChargingSchedulePeriod) > db.limits.MaxSchedulePeriods {
		return InstallError{"schedule period count exceeds ChargingScheduleMaxPeriods"}
	}
	if len(db.limits.AllowedChargingRateUnit) > 0 && !unitAllowed(db.limits.AllowedChargingRateUnit, p.ChargingSchedule.ChargingRateUnit) {
		return InstallError{"chargingRateUnit not in ChargingScheduleAllowedChargingRateUnit"}
	}
	if p.ChargingProfilePurpose == ocpp16.PurposeChargePointMaxProfile && connectorID != 0 {
		return InstallError{"ChargePointMaxProfile must target connector 0"}
	}
	if p.ChargingProfilePurpose == ocpp16.PurposeTxProfile && !conn.TransactionActive {
		return InstallError{"TxProfile requires an active transaction on the target connector"}
	}
	if p.ChargingProfileKind == ocpp16.KindRecurring {
		if p.ChargingSchedule.StartSchedule == nil || p.ChargingSchedule.Duration == nil {
			return InstallError{"Recurring profile requires both startSchedule and duration"}
		}
	}
	if db.limits.MaxChargingProfilesInstalled > 0 && db.totalInstalledLocked()+1 > db.limits.MaxChargingProfilesInstalled {
		// count is approximate for a replace-in-place, but an add beyond
		// the bound is still rejected per spec.md §4.4.
		if !db.replacesExistingLocked(connectorID, p) {
			return InstallError{"installing this profile would exceed MaxChargingProfilesInstalled"}
		}
	}
	return nil
}

func unitAllowed(allowed []ocpp16.ChargingRateUnitType, unit ocpp16.ChargingRateUnitType) bool {
	for _, u := range allowed {
		if u == unit {
			return true
		}
	}
	return false
}

func (db *ProfileDB) totalInstalledLocked() int {
	return len(db.chargePointMax) + len(db.txProfiles) + len(db.txDefault)
}

// replacesExistingLocked reports whether installing p against connectorID
// would replace an already-installed profile (by id or by (connector,
// stackLevel) within p's purpose list) rather than adding a new one.
func (db *ProfileDB) replacesExistingLocked(connectorID int, p ocpp16.ChargingProfile) bool {
	var list []installedProfile
	switch p.ChargingProfilePurpose {
	case ocpp16.PurposeChargePointMaxProfile:
		list = db.chargePointMax
	case ocpp16.PurposeTxProfile:
		list = db.txProfiles
	case ocpp16.PurposeTxDefaultProfile:
		list = db.txDefault
	}
	target := installedProfile{connectorID: connectorID, profile: p}
	for _, ip := range list {
		if profileMatches(ip, target) {
			return true
		}
	}
	return false
}

// profileMatches reports whether ip and p identify the same installed
// profile slot: same ChargingProfileId, or same (connector, stackLevel)
// within the purpose-scoped list they both belong to (spec.md §8
// testable invariant #6).
func profileMatches(ip, p installedProfile) bool {
	if ip.profile.ChargingProfileId == p.profile.ChargingProfileId {
		return true
	}
	return ip.connectorID == p.connectorID && ip.profile.StackLevel == p.profile.StackLevel
}

// replaceProfile drops any entry in list that profileMatches p, then
// appends p — implementing the same-(connector, purpose, stackLevel)
// replacement rule (purpose is implied by which list is passed in).
func replaceProfile(list []installedProfile, p installedProfile) []installedProfile {
	out := list[:0:0]
	for _, ip := range list {
		if profileMatches(ip, p) {
			continue
		}
		out = append(out, ip)
	}
	return append(out, p)
}

// ClearFilter mirrors ClearChargingProfile.req's optional filter fields;
// a zero value (all nils/zero) clears every profile.
type ClearFilter struct {
	ProfileID     *int
	ConnectorID   *int
	ChargingProfilePurpose *ocpp16.ChargingProfilePurposeType
	StackLevel    *int
}

// Clear removes every installed profile matching filter and reports
// whether at least one was removed.
func (db *ProfileDB) Clear(filter ClearFilter) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	removed := false
	db.chargePointMax, removed = clearFrom(db.chargePointMax, filter, removed)
	db.txProfiles, removed = clearFrom(db.txProfiles, filter, removed)
	db.txDefault, removed = clearFrom(db.txDefault, filter, removed)
	return removed
}

func clearFrom(list []installedProfile, f ClearFilter, removedSoFar bool) ([]installedProfile, bool) {
	out := list[:0:0]
	removed := removedSoFar
	for _, ip := range list {
		if matchesFilter(ip, f) {
			removed = true
			continue
		}
		out = append(out, ip)
	}
	return out, removed
}

func matchesFilter(ip installedProfile, f ClearFilter) bool {
	if f.ProfileID != nil {
		return ip.profile.ChargingProfileId == *f.ProfileID
	}
	if f.ConnectorID != nil && ip.connectorID != *f.ConnectorID {
		return false
	}
	if f.ChargingProfilePurpose != nil && ip.profile.ChargingProfilePurpose != *f.ChargingProfilePurpose {
		return false
	}
	if f.StackLevel != nil && ip.profile.StackLevel != *f.StackLevel {
		return false
	}
	// No criterion ruled it out; an all-nil filter clears every profile.
	return true
}

// InstallTxProfile accepts only TxProfile profiles with no transactionId
// set yet (spec.md §4.4's Tx profile lifecycle); it is installed
// unassigned and fixed up later by AssignPendingTxProfiles.
func (db *ProfileDB) InstallTxProfile(connectorID int, profile ocpp16.ChargingProfile) error {
	if profile.ChargingProfilePurpose != ocpp16.PurposeTxProfile || profile.TransactionId != nil {
		return InstallError{"installTxProfile requires purpose TxProfile with no transactionId"}
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.txProfiles = append(db.txProfiles, installedProfile{connectorID: connectorID, profile: profile})
	sortByStackLevelDesc(db.txProfiles)
	return nil
}

// AssignPendingTxProfiles fixes transactionId on every unassigned
// TxProfile installed against connectorID.
func (db *ProfileDB) AssignPendingTxProfiles(connectorID, txID int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i := range db.txProfiles {
		ip := &db.txProfiles[i]
		if ip.connectorID == connectorID && ip.profile.TransactionId == nil {
			id := txID
			ip.profile.TransactionId = &id
		}
	}
}

// ClearTxProfiles removes every TxProfile installed against connectorID.
func (db *ProfileDB) ClearTxProfiles(connectorID int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := db.txProfiles[:0:0]
	for _, ip := range db.txProfiles {
		if ip.connectorID != connectorID {
			out = append(out, ip)
		}
	}
	db.txProfiles = out
}

// Cleanup is the profile GC pass described in spec.md §4.4: it removes
// expired profiles (validTo < now), absolute profiles whose
// (startSchedule + duration) has elapsed, and Tx profiles whose
// transactionId no longer matches the connector's current transaction.
// Nothing in this module calls it on a timer; it runs when a caller
// invokes it.
func (db *ProfileDB) Cleanup(now time.Time, currentTx func(connectorID int) (active bool, txID int)) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.chargePointMax = filterExpired(db.chargePointMax, now, nil)
	db.txDefault = filterExpired(db.txDefault, now, nil)
	db.txProfiles = filterExpired(db.txProfiles, now, currentTx)
}

func filterExpired(list []installedProfile, now time.Time, currentTx func(int) (bool, int)) []installedProfile {
	out := list[:0:0]
	for _, ip := range list {
		p := ip.profile
		if p.ValidTo != nil && now.After(p.ValidTo.Time) {
			continue
		}
		if p.ChargingProfileKind == ocpp16.KindAbsolute && p.ChargingSchedule.StartSchedule != nil && p.ChargingSchedule.Duration != nil {
			end := p.ChargingSchedule.StartSchedule.Time.Add(time.Duration(*p.ChargingSchedule.Duration) * time.Second)
			if now.After(end) {
				continue
			}
		}
		if currentTx != nil && p.ChargingProfilePurpose == ocpp16.PurposeTxProfile {
			active, txID := currentTx(ip.connectorID)
			if p.TransactionId != nil && (!active || *p.TransactionId != txID) {
				continue
			}
		}
		out = append(out, ip)
	}
	return out
}
