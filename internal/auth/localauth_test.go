package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evstack/ocpp16/internal/ocpp16"
)

func TestLocalList_FullUpdateReplacesEntriesAndSetsVersion(t *testing.T) {
	l := NewLocalList(true, 10)
	err := l.Update(UpdateFull, 1, []ocpp16.AuthorizationData{
		{IdTag: "TAG1", IdTagInfo: &ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, l.Version())

	info, ok := l.Lookup("TAG1")
	require.True(t, ok)
	assert.Equal(t, ocpp16.AuthAccepted, info.Status)
}

func TestLocalList_FullUpdateRejectsOversizedPayload(t *testing.T) {
	l := NewLocalList(true, 1)
	err := l.Update(UpdateFull, 1, []ocpp16.AuthorizationData{
		{IdTag: "TAG1", IdTagInfo: &ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted}},
		{IdTag: "TAG2", IdTagInfo: &ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted}},
	})
	assert.ErrorIs(t, err, ErrUpdateFailed)
}

func TestLocalList_FullUpdateRejectsEntryMissingIdTagInfo(t *testing.T) {
	l := NewLocalList(true, 10)
	err := l.Update(UpdateFull, 1, []ocpp16.AuthorizationData{{IdTag: "TAG1"}})
	assert.ErrorIs(t, err, ErrUpdateFailed)
}

func TestLocalList_DifferentialUpdateUpsertsAndDeletes(t *testing.T) {
	l := NewLocalList(true, 10)
	require.NoError(t, l.Update(UpdateFull, 1, []ocpp16.AuthorizationData{
		{IdTag: "TAG1", IdTagInfo: &ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted}},
		{IdTag: "TAG2", IdTagInfo: &ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted}},
	}))

	err := l.Update(UpdateDifferential, 2, []ocpp16.AuthorizationData{
		{IdTag: "TAG1"}, // no IdTagInfo -> delete
		{IdTag: "TAG3", IdTagInfo: &ocpp16.IdTagInfo{Status: ocpp16.AuthBlocked}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, l.Version())

	_, ok := l.Lookup("TAG1")
	assert.False(t, ok)
	info, ok := l.Lookup("TAG2")
	assert.True(t, ok)
	assert.Equal(t, ocpp16.AuthAccepted, info.Status)
	info, ok = l.Lookup("TAG3")
	assert.True(t, ok)
	assert.Equal(t, ocpp16.AuthBlocked, info.Status)
}

func TestLocalList_DifferentialUpdateRejectsStaleVersion(t *testing.T) {
	l := NewLocalList(true, 10)
	require.NoError(t, l.Update(UpdateFull, 5, nil))

	err := l.Update(UpdateDifferential, 5, []ocpp16.AuthorizationData{{IdTag: "TAG1", IdTagInfo: &ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted}}})
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestLocalList_UpdateRejectedWhenDisabled(t *testing.T) {
	l := NewLocalList(false, 10)
	err := l.Update(UpdateFull, 1, nil)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestLocalList_LookupIgnoresListWhenDisabled(t *testing.T) {
	l := NewLocalList(true, 10)
	require.NoError(t, l.Update(UpdateFull, 1, []ocpp16.AuthorizationData{
		{IdTag: "TAG1", IdTagInfo: &ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted}},
	}))
	l.SetEnabled(false)

	_, ok := l.Lookup("TAG1")
	assert.False(t, ok)
	// Contains ignores the enabled flag, per Cache.Update's "unless idTag in LocalList" rule.
	assert.True(t, l.Contains("TAG1"))
}

func TestNewLocalListWithStore_RestoresVersionAndPersistsUpdates(t *testing.T) {
	store := NewMemoryAuthStore()
	require.NoError(t, store.SaveLocalListVersion(context.Background(), 7))

	l, err := NewLocalListWithStore(context.Background(), true, 10, store)
	require.NoError(t, err)
	assert.Equal(t, 7, l.Version())

	require.NoError(t, l.Update(UpdateDifferential, 8, []ocpp16.AuthorizationData{
		{IdTag: "TAG1", IdTagInfo: &ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted}},
	}))

	persisted, err := store.LoadLocalListVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, persisted)
}
