package auth

import (
	"context"

	"github.com/evstack/ocpp16/internal/ocpp16"
)

// Transport abstracts the single RPC call authorize() may need to place
// (Authorize to the Central System) and the connectivity check that
// drives which branch of the loop runs, so this package does not import
// internal/rpc directly.
type Transport interface {
	IsConnected() bool
	Authorize(ctx context.Context, idTag string) (ocpp16.IdTagInfo, error)
}

// ConfigSource exposes the subset of C9 config keys authorize() reads
// on every call, so a live ChangeConfiguration is observed immediately.
type ConfigSource interface {
	LocalPreAuthorize() bool
	LocalAuthorizeOffline() bool
	LocalAuthListEnabled() bool
	AuthorizationCacheEnabled() bool
	AllowOfflineTxForUnknownId() bool
}

// Authorizer runs the authorize() decision loop from spec.md §4.3.
type Authorizer struct {
	list      *LocalList
	cache     *Cache
	config    ConfigSource
	transport Transport
}

func NewAuthorizer(list *LocalList, cache *Cache, config ConfigSource, transport Transport) *Authorizer {
	return &Authorizer{list: list, cache: cache, config: config, transport: transport}
}

// Authorize resolves idTag to an AuthorizationStatus and parentIdTag,
// following spec.md §4.3's algorithm: prefer local sources (LocalList,
// then Cache) when policy allows, fall back to an online Authorize.req,
// and degrade to the offline policy if the call itself fails.
func (a *Authorizer) Authorize(ctx context.Context, idTag string) (ocpp16.AuthorizationStatus, *string) {
	connected := a.transport.IsConnected()

	for {
		found := false
		var info ocpp16.IdTagInfo

		if (connected && a.config.LocalPreAuthorize()) || (!connected && a.config.LocalAuthorizeOffline()) {
			if a.config.LocalAuthListEnabled() {
				info, found = a.list.Lookup(idTag)
			}
			if !found && a.config.AuthorizationCacheEnabled() {
				entry, hit := a.cache.Lookup(idTag)
				if hit {
					found = true
					info = entry.Info
					if connected && info.Status != ocpp16.AuthAccepted {
						found = false
					}
				}
			}
		}

		if !found {
			if connected {
				result, err := a.transport.Authorize(ctx, idTag)
				if err == nil {
					if !a.list.Contains(idTag) {
						a.cache.Update(idTag, result)
					}
					return result.Status, result.ParentIdTag
				}
				connected = false
				continue
			}
			if a.config.AllowOfflineTxForUnknownId() {
				return ocpp16.AuthAccepted, nil
			}
			return ocpp16.AuthInvalid, nil
		}

		return info.Status, info.ParentIdTag
	}
}

// AuthStore is the durable backing for the LocalList version (list entries
// and the Cache are not persisted through it), abstracted so a
// Redis-backed implementation can replace the in-memory
// default without touching Authorizer (grounded on the teacher's
// internal/storage.ConnectionStorage interface shape).
type AuthStore interface {
	SaveLocalListVersion(ctx context.Context, version int) error
	LoadLocalListVersion(ctx context.Context) (int, error)
}
