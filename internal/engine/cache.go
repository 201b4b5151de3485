package engine

import (
	"context"

	"github.com/roach88/stead/internal/ir"
)

// CacheBridge is the second-level cache shared across transactions.
//
// Objects are cached by (class, key) as field rows. Collections are cached
// as key lists under a query signature, grouped by scope (a class name for
// selects, a relation name for relation loads) so one commit can drop every
// collection it may have changed. Implementations must be safe for
// concurrent use. The engine treats cache errors as misses.
type CacheBridge interface {
	Find(ctx context.Context, class string, key ir.IRValue) (ir.IRObject, bool, error)
	Add(ctx context.Context, class string, key ir.IRValue, row ir.IRObject) error
	Invalidate(ctx context.Context, class string, key ir.IRValue) error

	LoadCollection(ctx context.Context, scope, signature string) ([]ir.IRValue, bool, error)
	StoreCollection(ctx context.Context, scope, signature string, keys []ir.IRValue) error
	InvalidateCollections(ctx context.Context, scope string) error
}
