package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evstack/ocpp16/internal/ocpp16"
)

func TestCache_LookupMiss(t *testing.T) {
	c := NewCache(2)
	_, ok := c.Lookup("TAG1")
	assert.False(t, ok)
}

func TestCache_UpdateThenLookupHits(t *testing.T) {
	c := NewCache(2)
	c.Update("TAG1", ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted})

	entry, ok := c.Lookup("TAG1")
	require.True(t, ok)
	assert.Equal(t, ocpp16.AuthAccepted, entry.Info.Status)
}

func TestCache_UpdateNormalizesConcurrentTxToAccepted(t *testing.T) {
	c := NewCache(2)
	c.Update("TAG1", ocpp16.IdTagInfo{Status: ocpp16.AuthConcurrentTx})

	entry, ok := c.Lookup("TAG1")
	require.True(t, ok)
	assert.Equal(t, ocpp16.AuthAccepted, entry.Info.Status)
}

func TestCache_ExpiredEntryIsEvictedOnLookup(t *testing.T) {
	c := NewCache(2)
	past := ocpp16.NewDateTime(time.Now().Add(-time.Hour))
	c.Update("TAG1", ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted, ExpiryDate: &past})

	_, ok := c.Lookup("TAG1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_EvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	c := NewCache(2)
	c.Update("TAG1", ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted})
	c.Update("TAG2", ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted})

	// Touch TAG1 so it becomes most-recently-used; TAG2 is now the LRU entry.
	_, ok := c.Lookup("TAG1")
	require.True(t, ok)

	c.Update("TAG3", ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted})

	_, ok = c.Lookup("TAG2")
	assert.False(t, ok, "TAG2 should have been evicted as least-recently-used")
	_, ok = c.Lookup("TAG1")
	assert.True(t, ok, "TAG1 was touched and should still be resident")
	_, ok = c.Lookup("TAG3")
	assert.True(t, ok)
}

func TestCache_ClearEmptiesCache(t *testing.T) {
	c := NewCache(2)
	c.Update("TAG1", ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted})
	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Lookup("TAG1")
	assert.False(t, ok)
}
