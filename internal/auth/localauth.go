package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/evstack/ocpp16/internal/ocpp16"
)

// UpdateMode mirrors SendLocalList's updateType (spec.md §4.3).
type UpdateMode string

const (
	UpdateFull         UpdateMode = "Full"
	UpdateDifferential UpdateMode = "Differential"
)

var (
	// ErrVersionMismatch is returned for a Differential update whose
	// listVersion does not exceed the current version.
	ErrVersionMismatch = errors.New("auth: listVersion is not greater than current version")
	// ErrNotSupported is returned when localAuthListEnabled is false.
	ErrNotSupported = errors.New("auth: local authorization list is disabled")
	// ErrUpdateFailed wraps a structural problem with the update payload
	// (e.g. Full update exceeding SendLocalListMaxLength).
	ErrUpdateFailed = errors.New("auth: local list update failed")
)

// LocalList is the durable, versioned authorization list (spec.md §3,
// §4.3). It is authoritative over the Cache: an idTag present here is
// never written into Cache (see Cache.Update callers in authorize.go).
type LocalList struct {
	mu      sync.RWMutex
	enabled bool
	maxLen  int
	version int
	entries map[string]ocpp16.IdTagInfo
	store   AuthStore
}

// NewLocalList builds a LocalList. maxLen bounds a Full update's entry
// count (SendLocalListMaxLength); enabled mirrors localAuthListEnabled.
func NewLocalList(enabled bool, maxLen int) *LocalList {
	return &LocalList{
		enabled: enabled,
		maxLen:  maxLen,
		entries: make(map[string]ocpp16.IdTagInfo),
	}
}

// NewLocalListWithStore builds a LocalList that restores listVersion from
// store on construction and persists every accepted Update to it, so a
// restart does not regress GetLocalListVersion back to 0 while the actual
// entry contents still require a fresh SendLocalList (spec.md §4.3 does
// not require persisting the entries themselves, only the version a CP
// reports).
func NewLocalListWithStore(ctx context.Context, enabled bool, maxLen int, store AuthStore) (*LocalList, error) {
	l := NewLocalList(enabled, maxLen)
	l.store = store
	version, err := store.LoadLocalListVersion(ctx)
	if err != nil {
		return nil, err
	}
	l.version = version
	return l, nil
}

// SetEnabled updates localAuthListEnabled at runtime (C9 config change).
func (l *LocalList) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// Version returns the current listVersion.
func (l *LocalList) Version() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Lookup returns the IdTagInfo for idTag, if present.
func (l *LocalList) Lookup(idTag string) (ocpp16.IdTagInfo, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.enabled {
		return ocpp16.IdTagInfo{}, false
	}
	info, ok := l.entries[idTag]
	return info, ok
}

// Contains reports whether idTag is present in the list regardless of
// the enabled flag, for Cache.Update's "unless idTag in LocalList" rule.
func (l *LocalList) Contains(idTag string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[idTag]
	return ok
}

// Update applies a SendLocalList request per spec.md §4.3.
//
//   - Full: len(data) must be <= maxLen; every entry must carry
//     IdTagInfo; the list is atomically replaced and version set to
//     listVersion.
//   - Differential: listVersion must exceed the current version;
//     entries carrying IdTagInfo upsert, entries without delete; on
//     success version is set to listVersion.
func (l *LocalList) Update(mode UpdateMode, listVersion int, data []ocpp16.AuthorizationData) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return ErrNotSupported
	}

	switch mode {
	case UpdateFull:
		if l.maxLen > 0 && len(data) > l.maxLen {
			return ErrUpdateFailed
		}
		for _, d := range data {
			if d.IdTagInfo == nil {
				return ErrUpdateFailed
			}
		}
		next := make(map[string]ocpp16.IdTagInfo, len(data))
		for _, d := range data {
			next[d.IdTag] = *d.IdTagInfo
		}
		l.entries = next
		l.version = listVersion
		l.persistVersion()
		return nil

	case UpdateDifferential:
		if listVersion <= l.version {
			return ErrVersionMismatch
		}
		for _, d := range data {
			if d.IdTagInfo == nil {
				delete(l.entries, d.IdTag)
			} else {
				l.entries[d.IdTag] = *d.IdTagInfo
			}
		}
		l.version = listVersion
		l.persistVersion()
		return nil

	default:
		return ErrUpdateFailed
	}
}

// persistVersion best-effort saves the current version to the backing
// AuthStore, if one was configured. Called with l.mu already held.
func (l *LocalList) persistVersion() {
	if l.store == nil {
		return
	}
	_ = l.store.SaveLocalListVersion(context.Background(), l.version)
}
