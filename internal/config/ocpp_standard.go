package config

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/evstack/ocpp16/internal/ocpp16"
)

// Validator checks a candidate value for one config key before it is
// committed (spec.md §6: "writes route through ChangeConfiguration, go
// through optional per-key validator functions").
type Validator func(value string) bool

// Listener is notified after a key's value is committed.
type Listener func(key, value string)

// StandardConfig is the C9 OCPP standard key/value store (spec.md §6's
// "Config keys (OCPP standard)"), keyed case-insensitively per SPEC_FULL.md
// §4.8's decision on Open Question #4: every key is lower-cased on
// read, write, and listener dispatch, so ChangeConfiguration("HeartBeatInterval", ...)
// and a lookup of "heartbeatinterval" hit the same entry.
type StandardConfig struct {
	mu         sync.RWMutex
	values     map[string]string
	readonly   map[string]bool
	validators map[string]Validator
	listeners  map[string][]Listener
	logger     zerolog.Logger
	store      Store
}

func normalizeKey(key string) string { return strings.ToLower(key) }

// NewStandardConfig seeds the store with the OCPP 1.6 core keys spec.md
// §6 names, at their OCPP-specified defaults.
func NewStandardConfig(logger zerolog.Logger) *StandardConfig {
	c := &StandardConfig{
		values:     make(map[string]string),
		readonly:   make(map[string]bool),
		validators: make(map[string]Validator),
		listeners:  make(map[string][]Listener),
		logger:     logger,
		store:      NewMemoryStore(),
	}
	defaults := map[string]string{
		"AuthorizationCacheEnabled":               "true",
		"LocalAuthListEnabled":                    "true",
		"LocalAuthListMaxLength":                  "10000",
		"SendLocalListMaxLength":                  "2500",
		"LocalPreAuthorize":                       "false",
		"LocalAuthorizeOffline":                   "true",
		"AllowOfflineTxForUnknownId":               "false",
		"AuthorizeRemoteTxRequests":                "false",
		"ChargeProfileMaxStackLevel":               "8",
		"ChargingScheduleMaxPeriods":               "24",
		"ChargingScheduleAllowedChargingRateUnit":  "Current,Power",
		"MaxChargingProfilesInstalled":             "10",
		"HeartbeatInterval":                        "86400",
		"ConnectionTimeOut":                        "60",
		"WebSocketPingInterval":                    "30",
		"TransactionMessageAttempts":                "3",
		"TransactionMessageRetryInterval":          "60",
	}
	for k, v := range defaults {
		c.values[normalizeKey(k)] = v
	}
	c.registerValidators()
	return c
}

// NewStandardConfigWithStore builds a StandardConfig seeded with OCPP
// defaults, then overlays any values persisted in store (SPEC_FULL.md
// §3's HA-restart path: a pod rejoining a deployment picks up the last
// ChangeConfiguration writes instead of reverting to defaults).
func NewStandardConfigWithStore(ctx context.Context, logger zerolog.Logger, store Store) (*StandardConfig, error) {
	c := NewStandardConfig(logger)
	c.store = store
	persisted, err := store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for k, v := range persisted {
		nk := normalizeKey(k)
		if _, known := c.values[nk]; known {
			c.values[nk] = v
		}
	}
	return c, nil
}

func (c *StandardConfig) registerValidators() {
	boolValidator := func(v string) bool { _, err := strconv.ParseBool(v); return err == nil }
	uintValidator := func(v string) bool {
		n, err := strconv.Atoi(v)
		return err == nil && n >= 0
	}
	for _, k := range []string{"AuthorizationCacheEnabled", "LocalAuthListEnabled", "LocalPreAuthorize", "LocalAuthorizeOffline", "AllowOfflineTxForUnknownId", "AuthorizeRemoteTxRequests"} {
		c.validators[normalizeKey(k)] = boolValidator
	}
	for _, k := range []string{"LocalAuthListMaxLength", "SendLocalListMaxLength", "ChargeProfileMaxStackLevel", "ChargingScheduleMaxPeriods", "MaxChargingProfilesInstalled", "HeartbeatInterval", "ConnectionTimeOut", "WebSocketPingInterval", "TransactionMessageAttempts", "TransactionMessageRetryInterval"} {
		c.validators[normalizeKey(k)] = uintValidator
	}
}

// SetReadOnly marks key as not settable via ChangeConfiguration.
func (c *StandardConfig) SetReadOnly(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readonly[normalizeKey(key)] = true
}

// OnChange registers a per-key change listener (spec.md §6: "then notify
// per-key change listeners").
func (c *StandardConfig) OnChange(key string, l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := normalizeKey(key)
	c.listeners[k] = append(c.listeners[k], l)
}

// Get implements chargepoint.ConfigStore and GetConfiguration's
// "return requested keys, or all keys if none requested" contract.
func (c *StandardConfig) Get(keys []string) ([]ocpp16.KeyValue, []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(keys) == 0 {
		out := make([]ocpp16.KeyValue, 0, len(c.values))
		for k, v := range c.values {
			val := v
			out = append(out, ocpp16.KeyValue{Key: k, Value: &val, Readonly: c.readonly[k]})
		}
		return out, nil
	}

	var out []ocpp16.KeyValue
	var unknown []string
	for _, k := range keys {
		nk := normalizeKey(k)
		if v, ok := c.values[nk]; ok {
			val := v
			out = append(out, ocpp16.KeyValue{Key: k, Value: &val, Readonly: c.readonly[nk]})
		} else {
			unknown = append(unknown, k)
		}
	}
	return out, unknown
}

// Set implements chargepoint.ConfigStore / ChangeConfiguration.
func (c *StandardConfig) Set(key, value string) ocpp16.ConfigurationStatus {
	nk := normalizeKey(key)

	c.mu.Lock()
	if c.readonly[nk] {
		c.mu.Unlock()
		return ocpp16.ConfigurationRejected
	}
	if _, known := c.values[nk]; !known {
		c.mu.Unlock()
		return ocpp16.ConfigurationNotSupported
	}
	if v, ok := c.validators[nk]; ok && !v(value) {
		c.mu.Unlock()
		return ocpp16.ConfigurationRejected
	}
	c.values[nk] = value
	listeners := append([]Listener(nil), c.listeners[nk]...)
	snapshot := make(map[string]string, len(c.values))
	for k, v := range c.values {
		snapshot[k] = v
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(nk, value)
	}
	if err := c.store.SaveAll(context.Background(), snapshot); err != nil {
		c.logger.Warn().Err(err).Msg("configuration persist failed")
	}
	c.logger.Info().Str("key", nk).Str("value", value).Msg("configuration changed")
	return ocpp16.ConfigurationAccepted
}

func (c *StandardConfig) value(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[normalizeKey(key)]
}

func (c *StandardConfig) boolValue(key string) bool {
	b, _ := strconv.ParseBool(c.value(key))
	return b
}

func (c *StandardConfig) intValue(key string) int {
	n, _ := strconv.Atoi(c.value(key))
	return n
}

// The following accessors satisfy auth.ConfigSource.

func (c *StandardConfig) LocalPreAuthorize() bool           { return c.boolValue("LocalPreAuthorize") }
func (c *StandardConfig) LocalAuthorizeOffline() bool        { return c.boolValue("LocalAuthorizeOffline") }
func (c *StandardConfig) LocalAuthListEnabled() bool         { return c.boolValue("LocalAuthListEnabled") }
func (c *StandardConfig) AuthorizationCacheEnabled() bool    { return c.boolValue("AuthorizationCacheEnabled") }
func (c *StandardConfig) AllowOfflineTxForUnknownId() bool   { return c.boolValue("AllowOfflineTxForUnknownId") }

// HeartbeatIntervalSeconds, ConnectionTimeoutSeconds support the CS/CP
// role runtimes' timers.
func (c *StandardConfig) HeartbeatIntervalSeconds() int { return c.intValue("HeartbeatInterval") }
func (c *StandardConfig) ConnectionTimeoutSeconds() int { return c.intValue("ConnectionTimeOut") }
