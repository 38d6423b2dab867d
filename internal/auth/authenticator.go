package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fleet-monitor/realtime/internal/config"
)

// KeyLookup resolves a vehicle API key to its owner, returning "" when the
// key is unknown.
type KeyLookup interface {
	GetAPIKey(ctx context.Context, apiKey string) (string, error)
}

type cacheEntry struct {
	owner     string
	expiresAt time.Time
}

// Authenticator validates vehicle API keys: static keys from config first,
// then a local TTL cache, then the shared key store.
type Authenticator struct {
	localCache sync.Map
	keys       KeyLookup
	ttl        time.Duration
	staticKeys map[string]bool
	logger     *slog.Logger
	now        func() time.Time
}

// NewAuthenticator builds an authenticator. keys may be nil, in which case
// only the static keys are accepted.
func NewAuthenticator(cfg *config.Config, keys KeyLookup, logger *slog.Logger) *Authenticator {
	staticKeys := make(map[string]bool, len(cfg.ValidAPIKeys))
	for _, k := range cfg.ValidAPIKeys {
		if k != "" {
			staticKeys[k] = true
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Authenticator{
		keys:       keys,
		ttl:        time.Duration(cfg.AuthCacheTTLSeconds) * time.Second,
		staticKeys: staticKeys,
		logger:     logger,
		now:        time.Now,
	}
}

func (a *Authenticator) Validate(ctx context.Context, apiKey string) bool {
	if apiKey == "" {
		return false
	}

	// Level 0: static config keys
	if a.staticKeys[apiKey] {
		return true
	}

	// Level 1: in-memory cache
	if raw, ok := a.localCache.Load(apiKey); ok {
		entry := raw.(cacheEntry)
		if a.now().Before(entry.expiresAt) {
			return true
		}
		a.localCache.Delete(apiKey)
	}

	// Level 2: key store lookup
	if a.keys == nil {
		return false
	}
	owner, err := a.keys.GetAPIKey(ctx, apiKey)
	if err != nil {
		a.logger.Warn("api key lookup failed", "err", err)
		return false
	}
	if owner == "" {
		return false
	}

	a.localCache.Store(apiKey, cacheEntry{
		owner:     owner,
		expiresAt: a.now().Add(a.ttl),
	})
	return true
}
