package fetch

import (
	"sync"

	"github.com/plexar-dev/plexar/config"
)

// CompatFlags are the deployment-level gates consulted by the entity model and
// the fetcher verb surface.
type CompatFlags struct {
	// AllowedCacheModes lists the cache modes accepted on Request
	// construction. An explicit cache mode outside this list fails
	// construction. An empty list rejects every explicit mode.
	AllowedCacheModes []string

	// DisableVerbHelpers removes the get/put/delete helpers from fetchers,
	// freeing the names up for RPC method dispatch.
	DisableVerbHelpers bool

	// EnableExtraHandlers enables the queue() and scheduled() helpers.
	EnableExtraHandlers bool

	// EnableRPCMethods enables wildcard RPC method resolution.
	EnableRPCMethods bool

	// MaxRedirects bounds the redirect-following loop.
	MaxRedirects int
}

var (
	compatMu sync.RWMutex
	compat   = CompatFlags{
		AllowedCacheModes: []string{"no-store"},
		MaxRedirects:      20,
	}
)

// SetCompatFlags installs the process-wide compatibility flags. It is called
// once at startup, before any entities are constructed.
func SetCompatFlags(f CompatFlags) {
	compatMu.Lock()
	defer compatMu.Unlock()
	if f.MaxRedirects <= 0 {
		f.MaxRedirects = 20
	}
	compat = f
}

// Compat returns the current compatibility flags.
func Compat() CompatFlags {
	compatMu.RLock()
	defer compatMu.RUnlock()
	return compat
}

// CompatFromConfig maps the runtime configuration onto compatibility flags.
func CompatFromConfig(cfg *config.Config) CompatFlags {
	return CompatFlags{
		AllowedCacheModes:   cfg.AllowedCacheModes,
		DisableVerbHelpers:  cfg.DisableVerbHelpers,
		EnableExtraHandlers: cfg.EnableExtraHandlers,
		EnableRPCMethods:    cfg.EnableRPCMethods,
		MaxRedirects:        cfg.MaxRedirects,
	}
}

func (f CompatFlags) cacheModeAllowed(mode string) bool {
	for _, m := range f.AllowedCacheModes {
		if m == mode {
			return true
		}
	}
	return false
}
