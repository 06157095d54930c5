package smartcharging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evstack/ocpp16/internal/ocpp16"
)

func absoluteProfile(id, stackLevel int, purpose ocpp16.ChargingProfilePurposeType, periods ...ocpp16.ChargingSchedulePeriod) ocpp16.ChargingProfile {
	return ocpp16.ChargingProfile{
		ChargingProfileId:      id,
		StackLevel:             stackLevel,
		ChargingProfilePurpose: purpose,
		ChargingProfileKind:    ocpp16.KindAbsolute,
		ChargingSchedule: ocpp16.ChargingSchedule{
			ChargingRateUnit:       ocpp16.RateUnitA,
			ChargingSchedulePeriod: periods,
		},
	}
}

func period(start int, limit float64) ocpp16.ChargingSchedulePeriod {
	return ocpp16.ChargingSchedulePeriod{StartPeriod: start, Limit: limit}
}

func TestGetCompositeSchedule_ChargePointMaxClampsTxDefault(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	db := NewProfileDB(Limits{})
	require.NoError(t, db.Install(0, absoluteProfile(1, 0, ocpp16.PurposeChargePointMaxProfile, period(0, 32)), ConnectorState{}))
	require.NoError(t, db.Install(1, absoluteProfile(2, 0, ocpp16.PurposeTxDefaultProfile,
		period(0, 16), period(1800, 20)), ConnectorState{}))

	sched, ok := db.GetCompositeSchedule(1, time.Hour, ocpp16.RateUnitA, ConnectorState{}, FixedVoltage(230), nil, now)
	require.True(t, ok)
	require.Len(t, sched.ChargingSchedulePeriod, 2)
	assert.Equal(t, 0, sched.ChargingSchedulePeriod[0].StartPeriod)
	assert.InDelta(t, 16, sched.ChargingSchedulePeriod[0].Limit, 0.001)
	assert.Equal(t, 1800, sched.ChargingSchedulePeriod[1].StartPeriod)
	assert.InDelta(t, 20, sched.ChargingSchedulePeriod[1].Limit, 0.001, "under the 32A ceiling, the clamp is a no-op")
}

func TestGetCompositeSchedule_ChargePointMaxClampsTxDefaultAboveCeiling(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	db := NewProfileDB(Limits{})
	require.NoError(t, db.Install(0, absoluteProfile(1, 0, ocpp16.PurposeChargePointMaxProfile, period(0, 32)), ConnectorState{}))
	require.NoError(t, db.Install(1, absoluteProfile(2, 0, ocpp16.PurposeTxDefaultProfile,
		period(0, 16), period(1800, 40)), ConnectorState{}))

	sched, ok := db.GetCompositeSchedule(1, time.Hour, ocpp16.RateUnitA, ConnectorState{}, FixedVoltage(230), nil, now)
	require.True(t, ok)
	require.Len(t, sched.ChargingSchedulePeriod, 2)
	assert.Equal(t, 0, sched.ChargingSchedulePeriod[0].StartPeriod)
	assert.InDelta(t, 16, sched.ChargingSchedulePeriod[0].Limit, 0.001)
	assert.Equal(t, 1800, sched.ChargingSchedulePeriod[1].StartPeriod)
	assert.InDelta(t, 32, sched.ChargingSchedulePeriod[1].Limit, 0.001, "40A TxDefault must clamp down to the 32A ChargePointMax ceiling")
}

func TestGetCompositeSchedule_TxProfileOutranksTxDefaultWhenTransactionActive(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	db := NewProfileDB(Limits{})
	require.NoError(t, db.Install(1, absoluteProfile(1, 0, ocpp16.PurposeTxDefaultProfile, period(0, 16)), ConnectorState{}))
	require.NoError(t, db.Install(1, absoluteProfile(2, 0, ocpp16.PurposeTxProfile, period(0, 10)),
		ConnectorState{TransactionActive: true}))

	sched, ok := db.GetCompositeSchedule(1, time.Hour, ocpp16.RateUnitA, ConnectorState{TransactionActive: true}, FixedVoltage(230), nil, now)
	require.True(t, ok)
	require.Len(t, sched.ChargingSchedulePeriod, 1)
	assert.InDelta(t, 10, sched.ChargingSchedulePeriod[0].Limit, 0.001)
}

func TestMergeProfilePeriods_HigherPriorityWinsOnOverlap(t *testing.T) {
	acc := []mergeSegment{{Start: 0, End: 100, Limit: 10, Unit: ocpp16.RateUnitA}}
	add := []mergeSegment{{Start: 50, End: 150, Limit: 20, Unit: ocpp16.RateUnitA}}

	merged, ok := mergeProfilePeriods(acc, add)
	require.True(t, ok)
	require.Len(t, merged, 2)
	assert.Equal(t, mergeSegment{Start: 0, End: 100, Limit: 10, Unit: ocpp16.RateUnitA}, merged[0])
	assert.Equal(t, mergeSegment{Start: 100, End: 150, Limit: 20, Unit: ocpp16.RateUnitA}, merged[1])
}

func TestMergeProfilePeriods_NewPeriodBeforeAccumulatorIsAppended(t *testing.T) {
	acc := []mergeSegment{{Start: 100, End: 200, Limit: 10, Unit: ocpp16.RateUnitA}}
	add := []mergeSegment{{Start: 0, End: 100, Limit: 20, Unit: ocpp16.RateUnitA}}

	merged, ok := mergeProfilePeriods(acc, add)
	require.True(t, ok)
	require.Len(t, merged, 2)
	assert.Equal(t, mergeSegment{Start: 0, End: 100, Limit: 20, Unit: ocpp16.RateUnitA}, merged[0])
	assert.Equal(t, mergeSegment{Start: 100, End: 200, Limit: 10, Unit: ocpp16.RateUnitA}, merged[1])
}

func TestMergeProfilePeriods_NonContiguousCoverageAborts(t *testing.T) {
	acc := []mergeSegment{{Start: 0, End: 50, Limit: 10, Unit: ocpp16.RateUnitA}}
	add := []mergeSegment{{Start: 100, End: 150, Limit: 20, Unit: ocpp16.RateUnitA}}

	_, ok := mergeProfilePeriods(acc, add)
	assert.False(t, ok, "the gap between [0,50) and [100,150) is uncovered and must abort the build")
}

func TestMergeLocalPeriods_ClampsToLowerLocalLimit(t *testing.T) {
	profile := []mergeSegment{{Start: 0, End: 100, Limit: 32, Unit: ocpp16.RateUnitA}}
	local := []LocalLimitation{{Start: 0, End: 100, Limit: 16, Unit: ocpp16.RateUnitA}}

	out := mergeLocalPeriods(profile, local, FixedVoltage(230))
	require.Len(t, out, 1)
	assert.InDelta(t, 16, out[0].Limit, 0.001)
}

func TestMergeLocalPeriods_NonOverlappingPassesThroughUnchanged(t *testing.T) {
	profile := []mergeSegment{{Start: 0, End: 100, Limit: 32, Unit: ocpp16.RateUnitA}}
	local := []LocalLimitation{{Start: 200, End: 300, Limit: 5, Unit: ocpp16.RateUnitA}}

	out := mergeLocalPeriods(profile, local, FixedVoltage(230))
	require.Len(t, out, 1)
	assert.InDelta(t, 32, out[0].Limit, 0.001)
}
