// Package cache provides the invalidation capability the economy engines
// notify after a successful commit. It is injected rather than global so
// tests can observe (or drop) invalidations deterministically.
package cache

import "context"

// Namespaces for the deterministic key scheme: "<namespace>-<key>".
const (
	NamespaceBalance = "balance"
	NamespaceShop    = "shop"
	NamespaceTrade   = "trade"
)

// Invalidator clears read-cache entries. Invalidation is fire-and-forget:
// it is only triggered after a successful commit, and implementations must
// not propagate failures back to the ledger caller.
type Invalidator interface {
	Clear(ctx context.Context, namespace, key string)
}

// Key builds the cache key for a namespace/key pair.
func Key(namespace, key string) string {
	return namespace + "-" + key
}

// Noop discards all invalidations. Used when no cache is configured.
type Noop struct{}

func (Noop) Clear(context.Context, string, string) {}
