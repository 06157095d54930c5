// Package ocpp16 holds the wire-level types shared by every role: enums,
// the custom DateTime encoding, and the request/response payload structs
// for each OCPP 1.6 action.
package ocpp16

import (
	"strings"
	"time"
)

// Action identifies an OCPP message by name. Direction (CP->CS or CS->CP)
// is implied by the action, not encoded in the type.
type Action string

const (
	// Core profile
	ActionAuthorize              Action = "Authorize"
	ActionBootNotification       Action = "BootNotification"
	ActionChangeAvailability     Action = "ChangeAvailability"
	ActionChangeConfiguration    Action = "ChangeConfiguration"
	ActionClearCache             Action = "ClearCache"
	ActionDataTransfer           Action = "DataTransfer"
	ActionGetConfiguration       Action = "GetConfiguration"
	ActionHeartbeat              Action = "Heartbeat"
	ActionMeterValues            Action = "MeterValues"
	ActionRemoteStartTransaction Action = "RemoteStartTransaction"
	ActionRemoteStopTransaction  Action = "RemoteStopTransaction"
	ActionReset                  Action = "Reset"
	ActionStartTransaction       Action = "StartTransaction"
	ActionStatusNotification     Action = "StatusNotification"
	ActionStopTransaction        Action = "StopTransaction"
	ActionUnlockConnector        Action = "UnlockConnector"

	// FirmwareManagement profile
	ActionGetDiagnostics                Action = "GetDiagnostics"
	ActionDiagnosticsStatusNotification Action = "DiagnosticsStatusNotification"
	ActionFirmwareStatusNotification    Action = "FirmwareStatusNotification"
	ActionUpdateFirmware                Action = "UpdateFirmware"

	// LocalAuthListManagement profile
	ActionGetLocalListVersion Action = "GetLocalListVersion"
	ActionSendLocalList       Action = "SendLocalList"

	// Reservation profile
	ActionCancelReservation Action = "CancelReservation"
	ActionReserveNow        Action = "ReserveNow"

	// SmartCharging profile
	ActionClearChargingProfile Action = "ClearChargingProfile"
	ActionGetCompositeSchedule Action = "GetCompositeSchedule"
	ActionSetChargingProfile   Action = "SetChargingProfile"

	// RemoteTrigger profile
	ActionTriggerMessage Action = "TriggerMessage"

	// SecurityExt profile
	ActionCertificateSigned              Action = "CertificateSigned"
	ActionDeleteCertificate              Action = "DeleteCertificate"
	ActionExtendedTriggerMessage         Action = "ExtendedTriggerMessage"
	ActionGetInstalledCertificateIds     Action = "GetInstalledCertificateIds"
	ActionGetLog                         Action = "GetLog"
	ActionInstallCertificate             Action = "InstallCertificate"
	ActionLogStatusNotification          Action = "LogStatusNotification"
	ActionSecurityEventNotification      Action = "SecurityEventNotification"
	ActionSignCertificate                Action = "SignCertificate"
	ActionSignedFirmwareStatusNotification Action = "SignedFirmwareStatusNotification"
	ActionSignedUpdateFirmware           Action = "SignedUpdateFirmware"
)

// Direction distinguishes which side of a role-pair originates an action.
type Direction int

const (
	DirectionCPToCS Direction = iota
	DirectionCSToCP
)

// actionDirection maps every known action to the direction it is initiated
// from. It is read through DirectionOf and IsKnownAction; rpc.Dispatcher
// uses DirectionOf to pick the payload validation direction.
var actionDirection = map[Action]Direction{
	ActionAuthorize:              DirectionCPToCS,
	ActionBootNotification:       DirectionCPToCS,
	ActionDataTransfer:           DirectionCPToCS, // bidirectional in practice; CP-initiated is the common case
	ActionHeartbeat:              DirectionCPToCS,
	ActionMeterValues:            DirectionCPToCS,
	ActionStartTransaction:       DirectionCPToCS,
	ActionStatusNotification:     DirectionCPToCS,
	ActionStopTransaction:        DirectionCPToCS,
	ActionDiagnosticsStatusNotification: DirectionCPToCS,
	ActionFirmwareStatusNotification:    DirectionCPToCS,
	ActionLogStatusNotification:         DirectionCPToCS,
	ActionSecurityEventNotification:     DirectionCPToCS,
	ActionSignCertificate:               DirectionCPToCS,

	ActionChangeAvailability:     DirectionCSToCP,
	ActionChangeConfiguration:    DirectionCSToCP,
	ActionClearCache:             DirectionCSToCP,
	ActionGetConfiguration:       DirectionCSToCP,
	ActionRemoteStartTransaction: DirectionCSToCP,
	ActionRemoteStopTransaction:  DirectionCSToCP,
	ActionReset:                  DirectionCSToCP,
	ActionUnlockConnector:        DirectionCSToCP,
	ActionGetDiagnostics:         DirectionCSToCP,
	ActionUpdateFirmware:         DirectionCSToCP,
	ActionGetLocalListVersion:    DirectionCSToCP,
	ActionSendLocalList:          DirectionCSToCP,
	ActionCancelReservation:      DirectionCSToCP,
	ActionReserveNow:             DirectionCSToCP,
	ActionClearChargingProfile:   DirectionCSToCP,
	ActionGetCompositeSchedule:   DirectionCSToCP,
	ActionSetChargingProfile:     DirectionCSToCP,
	ActionTriggerMessage:         DirectionCSToCP,
	ActionExtendedTriggerMessage: DirectionCSToCP,
	ActionCertificateSigned:      DirectionCSToCP,
	ActionDeleteCertificate:      DirectionCSToCP,
	ActionGetInstalledCertificateIds: DirectionCSToCP,
	ActionGetLog:                 DirectionCSToCP,
	ActionInstallCertificate:     DirectionCSToCP,
	ActionSignedFirmwareStatusNotification: DirectionCPToCS,
	ActionSignedUpdateFirmware:   DirectionCSToCP,
}

// DirectionOf reports which side initiates the given action, and whether
// the action is known at all.
func DirectionOf(action Action) (Direction, bool) {
	d, ok := actionDirection[action]
	return d, ok
}

// IsKnownAction reports whether action is part of the supported OCPP 1.6
// action set.
func IsKnownAction(action string) bool {
	_, ok := actionDirection[Action(action)]
	return ok
}

// ChargePointStatus mirrors the StatusNotification.status enum.
type ChargePointStatus string

const (
	StatusAvailable     ChargePointStatus = "Available"
	StatusPreparing     ChargePointStatus = "Preparing"
	StatusCharging      ChargePointStatus = "Charging"
	StatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	StatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	StatusFinishing     ChargePointStatus = "Finishing"
	StatusReserved      ChargePointStatus = "Reserved"
	StatusUnavailable   ChargePointStatus = "Unavailable"
	StatusFaulted       ChargePointStatus = "Faulted"
)

// ChargePointErrorCode mirrors StatusNotification.errorCode.
type ChargePointErrorCode string

const (
	ErrorConnectorLockFailure ChargePointErrorCode = "ConnectorLockFailure"
	ErrorEVCommunicationError ChargePointErrorCode = "EVCommunicationError"
	ErrorGroundFailure        ChargePointErrorCode = "GroundFailure"
	ErrorHighTemperature      ChargePointErrorCode = "HighTemperature"
	ErrorInternalError        ChargePointErrorCode = "InternalError"
	ErrorLocalListConflict    ChargePointErrorCode = "LocalListConflict"
	ErrorNoError              ChargePointErrorCode = "NoError"
	ErrorOtherError           ChargePointErrorCode = "OtherError"
	ErrorOverCurrentFailure   ChargePointErrorCode = "OverCurrentFailure"
	ErrorPowerMeterFailure    ChargePointErrorCode = "PowerMeterFailure"
	ErrorPowerSwitchFailure   ChargePointErrorCode = "PowerSwitchFailure"
	ErrorReaderFailure        ChargePointErrorCode = "ReaderFailure"
	ErrorResetFailure         ChargePointErrorCode = "ResetFailure"
	ErrorUnderVoltage         ChargePointErrorCode = "UnderVoltage"
	ErrorWeakSignal           ChargePointErrorCode = "WeakSignal"
)

// RegistrationStatus is BootNotification.conf.status.
type RegistrationStatus string

const (
	RegistrationAccepted RegistrationStatus = "Accepted"
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationRejected RegistrationStatus = "Rejected"
)

// AuthorizationStatus is IdTagInfo.status.
type AuthorizationStatus string

const (
	AuthAccepted     AuthorizationStatus = "Accepted"
	AuthBlocked      AuthorizationStatus = "Blocked"
	AuthExpired      AuthorizationStatus = "Expired"
	AuthInvalid      AuthorizationStatus = "Invalid"
	AuthConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

// ResetType is Reset.req.type.
type ResetType string

const (
	ResetHard ResetType = "Hard"
	ResetSoft ResetType = "Soft"
)

type AvailabilityType string

const (
	AvailabilityInoperative AvailabilityType = "Inoperative"
	AvailabilityOperative   AvailabilityType = "Operative"
)

type AvailabilityStatus string

const (
	AvailabilityStatusAccepted    AvailabilityStatus = "Accepted"
	AvailabilityStatusRejected    AvailabilityStatus = "Rejected"
	AvailabilityStatusScheduled   AvailabilityStatus = "Scheduled"
)

type ConfigurationStatus string

const (
	ConfigurationAccepted        ConfigurationStatus = "Accepted"
	ConfigurationRejected        ConfigurationStatus = "Rejected"
	ConfigurationRebootRequired  ConfigurationStatus = "RebootRequired"
	ConfigurationNotSupported    ConfigurationStatus = "NotSupported"
)

type ClearCacheStatus string

const (
	ClearCacheAccepted ClearCacheStatus = "Accepted"
	ClearCacheRejected ClearCacheStatus = "Rejected"
)

type UnlockStatus string

const (
	UnlockUnlocked     UnlockStatus = "Unlocked"
	UnlockUnlockFailed UnlockStatus = "UnlockFailed"
	UnlockNotSupported UnlockStatus = "NotSupported"
)

type Reason string

const (
	ReasonDeAuthorized   Reason = "DeAuthorized"
	ReasonEmergencyStop  Reason = "EmergencyStop"
	ReasonEVDisconnected Reason = "EVDisconnected"
	ReasonHardReset      Reason = "HardReset"
	ReasonLocal          Reason = "Local"
	ReasonOther          Reason = "Other"
	ReasonPowerLoss      Reason = "PowerLoss"
	ReasonReboot         Reason = "Reboot"
	ReasonRemote         Reason = "Remote"
	ReasonSoftReset      Reason = "SoftReset"
	ReasonUnlockCommand  Reason = "UnlockCommand"
)

type RemoteStartStopStatus string

const (
	RemoteStartStopAccepted RemoteStartStopStatus = "Accepted"
	RemoteStartStopRejected RemoteStartStopStatus = "Rejected"
)

// ChargingProfilePurposeType is ChargingProfile.chargingProfilePurpose.
type ChargingProfilePurposeType string

const (
	PurposeChargePointMaxProfile ChargingProfilePurposeType = "ChargePointMaxProfile"
	PurposeTxDefaultProfile      ChargingProfilePurposeType = "TxDefaultProfile"
	PurposeTxProfile             ChargingProfilePurposeType = "TxProfile"
)

// ChargingProfileKindType is ChargingProfile.chargingProfileKind.
type ChargingProfileKindType string

const (
	KindAbsolute  ChargingProfileKindType = "Absolute"
	KindRecurring ChargingProfileKindType = "Recurring"
	KindRelative  ChargingProfileKindType = "Relative"
)

type RecurrencyKindType string

const (
	RecurrencyDaily  RecurrencyKindType = "Daily"
	RecurrencyWeekly RecurrencyKindType = "Weekly"
)

type ChargingRateUnitType string

const (
	RateUnitA ChargingRateUnitType = "A"
	RateUnitW ChargingRateUnitType = "W"
)

type ChargingProfileStatus string

const (
	ChargingProfileAccepted ChargingProfileStatus = "Accepted"
	ChargingProfileRejected ChargingProfileStatus = "Rejected"
	ChargingProfileNotSupported ChargingProfileStatus = "NotSupported"
)

type ClearChargingProfileStatus string

const (
	ClearChargingProfileAccepted ClearChargingProfileStatus = "Accepted"
	ClearChargingProfileUnknown  ClearChargingProfileStatus = "Unknown"
)

type GetCompositeScheduleStatus string

const (
	GetCompositeScheduleAccepted GetCompositeScheduleStatus = "Accepted"
	GetCompositeScheduleRejected GetCompositeScheduleStatus = "Rejected"
)

type UpdateType string

const (
	UpdateDifferential UpdateType = "Differential"
	UpdateFull         UpdateType = "Full"
)

type UpdateStatus string

const (
	UpdateAccepted        UpdateStatus = "Accepted"
	UpdateFailed          UpdateStatus = "Failed"
	UpdateNotSupported    UpdateStatus = "NotSupported"
	UpdateVersionMismatch UpdateStatus = "VersionMismatch"
)

type ReservationStatus string

const (
	ReservationAccepted   ReservationStatus = "Accepted"
	ReservationFaulted    ReservationStatus = "Faulted"
	ReservationOccupied   ReservationStatus = "Occupied"
	ReservationRejected   ReservationStatus = "Rejected"
	ReservationUnavailable ReservationStatus = "Unavailable"
)

type CancelReservationStatus string

const (
	CancelReservationAccepted CancelReservationStatus = "Accepted"
	CancelReservationRejected CancelReservationStatus = "Rejected"
)

type TriggerMessageStatus string

const (
	TriggerAccepted       TriggerMessageStatus = "Accepted"
	TriggerRejected       TriggerMessageStatus = "Rejected"
	TriggerNotImplemented TriggerMessageStatus = "NotImplemented"
)

type MessageTrigger string

const (
	TriggerBootNotification       MessageTrigger = "BootNotification"
	TriggerDiagnosticsStatusNotification MessageTrigger = "DiagnosticsStatusNotification"
	TriggerFirmwareStatusNotification    MessageTrigger = "FirmwareStatusNotification"
	TriggerHeartbeat              MessageTrigger = "Heartbeat"
	TriggerMeterValues            MessageTrigger = "MeterValues"
	TriggerStatusNotification     MessageTrigger = "StatusNotification"
)

// DateTime wraps time.Time to marshal/unmarshal as RFC3339, matching the
// OCPP wire format.
type DateTime struct {
	time.Time
}

func NewDateTime(t time.Time) DateTime { return DateTime{t} }

func (d DateTime) MarshalJSON() ([]byte, error) {
	if d.Time.IsZero() {
		return []byte(`null`), nil
	}
	return []byte(`"` + d.Time.UTC().Format(time.RFC3339) + `"`), nil
}

func (d *DateTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// IdToken is an end-user identifier (RFID, card, app token).
type IdToken struct {
	IdToken string `json:"idTag" validate:"required,ocpp_id_token"`
}

// IdTagInfo is the authorization result tuple shared by Authorize,
// StartTransaction, and StopTransaction responses, and by the local list
// and cache entries.
type IdTagInfo struct {
	ExpiryDate  *DateTime           `json:"expiryDate,omitempty"`
	ParentIdTag *string             `json:"parentIdTag,omitempty" validate:"omitempty,max=20"`
	Status      AuthorizationStatus `json:"status" validate:"required"`
}

// KeyValue is the GetConfiguration/ChangeConfiguration KV surface entry.
type KeyValue struct {
	Key      string  `json:"key" validate:"required,max=50"`
	Readonly bool    `json:"readonly"`
	Value    *string `json:"value,omitempty" validate:"omitempty,max=500"`
}

type ReadingContext string

const (
	ContextInterruptionBegin ReadingContext = "Interruption.Begin"
	ContextInterruptionEnd   ReadingContext = "Interruption.End"
	ContextOther             ReadingContext = "Other"
	ContextSampleClock       ReadingContext = "Sample.Clock"
	ContextSamplePeriodic    ReadingContext = "Sample.Periodic"
	ContextTransactionBegin  ReadingContext = "Transaction.Begin"
	ContextTransactionEnd    ReadingContext = "Transaction.End"
	ContextTrigger           ReadingContext = "Trigger"
)

type ValueFormat string

const (
	FormatRaw        ValueFormat = "Raw"
	FormatSignedData ValueFormat = "SignedData"
)

type Measurand string

const (
	MeasurandEnergyActiveExportRegister Measurand = "Energy.Active.Export.Register"
	MeasurandEnergyActiveImportRegister Measurand = "Energy.Active.Import.Register"
	MeasurandPowerActiveExport          Measurand = "Power.Active.Export"
	MeasurandPowerActiveImport          Measurand = "Power.Active.Import"
	MeasurandCurrentImport              Measurand = "Current.Import"
	MeasurandCurrentExport              Measurand = "Current.Export"
	MeasurandVoltage                    Measurand = "Voltage"
	MeasurandFrequency                  Measurand = "Frequency"
	MeasurandTemperature                Measurand = "Temperature"
	MeasurandSoC                        Measurand = "SoC"
)

type Phase string

const (
	PhaseL1   Phase = "L1"
	PhaseL2   Phase = "L2"
	PhaseL3   Phase = "L3"
	PhaseN    Phase = "N"
	PhaseL1N  Phase = "L1-N"
	PhaseL2N  Phase = "L2-N"
	PhaseL3N  Phase = "L3-N"
	PhaseL1L2 Phase = "L1-L2"
	PhaseL2L3 Phase = "L2-L3"
	PhaseL3L1 Phase = "L3-L1"
)

type MeterLocation string

const (
	LocationBody    MeterLocation = "Body"
	LocationCable   MeterLocation = "Cable"
	LocationEV      MeterLocation = "EV"
	LocationInlet   MeterLocation = "Inlet"
	LocationOutlet  MeterLocation = "Outlet"
)

type UnitOfMeasure string

const (
	UnitWh  UnitOfMeasure = "Wh"
	UnitKWh UnitOfMeasure = "kWh"
	UnitVarh UnitOfMeasure = "varh"
	UnitKvarh UnitOfMeasure = "kvarh"
	UnitW   UnitOfMeasure = "W"
	UnitKW  UnitOfMeasure = "kW"
	UnitVA  UnitOfMeasure = "VA"
	UnitKVA UnitOfMeasure = "kVA"
	UnitVar UnitOfMeasure = "var"
	UnitKvar UnitOfMeasure = "kvar"
	UnitA   UnitOfMeasure = "A"
	UnitV   UnitOfMeasure = "V"
	UnitCelsius UnitOfMeasure = "Celsius"
	UnitFahrenheit UnitOfMeasure = "Fahrenheit"
	UnitK   UnitOfMeasure = "K"
	UnitPercent UnitOfMeasure = "Percent"
)

type SampledValue struct {
	Value     string          `json:"value" validate:"required,ocpp_meter_value"`
	Context   *ReadingContext `json:"context,omitempty"`
	Format    *ValueFormat    `json:"format,omitempty"`
	Measurand *Measurand      `json:"measurand,omitempty"`
	Phase     *Phase          `json:"phase,omitempty"`
	Location  *MeterLocation  `json:"location,omitempty"`
	Unit      *UnitOfMeasure  `json:"unit,omitempty"`
}

type MeterValue struct {
	Timestamp     DateTime       `json:"timestamp" validate:"required"`
	SampledValue []SampledValue `json:"sampledValue" validate:"required,min=1,dive"`
}

// ChargingSchedulePeriod is one row of a ChargingSchedule, see spec.md §3.
type ChargingSchedulePeriod struct {
	StartPeriod  int      `json:"startPeriod"`
	Limit        float64  `json:"limit"`
	NumberPhases *int     `json:"numberPhases,omitempty"`
}

// ChargingSchedule is the time-series of limits for a ChargingProfile.
type ChargingSchedule struct {
	Duration               *int                     `json:"duration,omitempty"`
	StartSchedule          *DateTime                `json:"startSchedule,omitempty"`
	ChargingRateUnit       ChargingRateUnitType     `json:"chargingRateUnit" validate:"required"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod" validate:"required,min=1,dive"`
	MinChargingRate        *float64                 `json:"minChargingRate,omitempty"`
}

// ChargingProfile is the full profile record, see spec.md §3.
type ChargingProfile struct {
	ChargingProfileId      int                        `json:"chargingProfileId"`
	TransactionId          *int                       `json:"transactionId,omitempty"`
	StackLevel             int                        `json:"stackLevel" validate:"gte=0"`
	ChargingProfilePurpose ChargingProfilePurposeType `json:"chargingProfilePurpose" validate:"required"`
	ChargingProfileKind    ChargingProfileKindType    `json:"chargingProfileKind" validate:"required"`
	RecurrencyKind         *RecurrencyKindType        `json:"recurrencyKind,omitempty"`
	ValidFrom              *DateTime                  `json:"validFrom,omitempty"`
	ValidTo                *DateTime                  `json:"validTo,omitempty"`
	ChargingSchedule       ChargingSchedule           `json:"chargingSchedule" validate:"required"`
}

// AuthorizationData is one entry of SendLocalList.req.localAuthorizationList.
type AuthorizationData struct {
	IdTag     string     `json:"idTag" validate:"required,ocpp_id_token"`
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}
