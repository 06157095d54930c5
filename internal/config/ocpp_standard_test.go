package config

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evstack/ocpp16/internal/ocpp16"
)

func TestStandardConfig_GetAllReturnsSeededDefaults(t *testing.T) {
	c := NewStandardConfig(zerolog.Nop())
	values, unknown := c.Get(nil)
	assert.Empty(t, unknown)
	assert.NotEmpty(t, values)
}

func TestStandardConfig_GetSpecificKeyIsCaseInsensitive(t *testing.T) {
	c := NewStandardConfig(zerolog.Nop())
	values, unknown := c.Get([]string{"HeartBeatInterval"})
	require.Empty(t, unknown)
	require.Len(t, values, 1)
	assert.Equal(t, "86400", *values[0].Value)
}

func TestStandardConfig_GetUnknownKeyReportedSeparately(t *testing.T) {
	c := NewStandardConfig(zerolog.Nop())
	values, unknown := c.Get([]string{"NotARealKey"})
	assert.Empty(t, values)
	assert.Equal(t, []string{"NotARealKey"}, unknown)
}

func TestStandardConfig_SetAcceptsValidValue(t *testing.T) {
	c := NewStandardConfig(zerolog.Nop())
	status := c.Set("HeartbeatInterval", "120")
	assert.Equal(t, ocpp16.ConfigurationAccepted, status)
	assert.Equal(t, 120, c.HeartbeatIntervalSeconds())
}

func TestStandardConfig_SetRejectsUnknownKey(t *testing.T) {
	c := NewStandardConfig(zerolog.Nop())
	status := c.Set("NotARealKey", "1")
	assert.Equal(t, ocpp16.ConfigurationNotSupported, status)
}

func TestStandardConfig_SetRejectsInvalidValue(t *testing.T) {
	c := NewStandardConfig(zerolog.Nop())
	status := c.Set("HeartbeatInterval", "not-a-number")
	assert.Equal(t, ocpp16.ConfigurationRejected, status)
}

func TestStandardConfig_SetRejectsReadOnlyKey(t *testing.T) {
	c := NewStandardConfig(zerolog.Nop())
	c.SetReadOnly("HeartbeatInterval")
	status := c.Set("HeartbeatInterval", "120")
	assert.Equal(t, ocpp16.ConfigurationRejected, status)
}

func TestStandardConfig_OnChangeListenerFiresOnAcceptedWrite(t *testing.T) {
	c := NewStandardConfig(zerolog.Nop())
	var gotKey, gotValue string
	c.OnChange("HeartbeatInterval", func(key, value string) {
		gotKey, gotValue = key, value
	})

	require.Equal(t, ocpp16.ConfigurationAccepted, c.Set("HeartbeatInterval", "42"))
	assert.Equal(t, "heartbeatinterval", gotKey)
	assert.Equal(t, "42", gotValue)
}

func TestStandardConfig_SetPersistsSnapshotToStore(t *testing.T) {
	store := NewMemoryStore()
	c := NewStandardConfig(zerolog.Nop())
	c.store = store

	require.Equal(t, ocpp16.ConfigurationAccepted, c.Set("HeartbeatInterval", "55"))

	persisted, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "55", persisted["heartbeatinterval"])
}

func TestNewStandardConfigWithStore_OverlaysPersistedValues(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SaveAll(context.Background(), map[string]string{"heartbeatinterval": "999"}))

	c, err := NewStandardConfigWithStore(context.Background(), zerolog.Nop(), store)
	require.NoError(t, err)
	assert.Equal(t, 999, c.HeartbeatIntervalSeconds())
}
