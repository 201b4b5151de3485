package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/stead/internal/ir"
	"github.com/roach88/stead/internal/queryir"
	"github.com/roach88/stead/internal/source"
)

// Transaction is one unit of work over persistent objects.
//
// It owns the identity map, the dirty list, the relation journals and the
// data source units of work it opened. A Transaction is confined to one
// goroutine; nothing in it is locked.
type Transaction struct {
	id       string
	registry *Registry
	schema   *ir.Schema
	sources  source.Registry
	open     map[string]source.DataSource
	cache    CacheBridge
	logger   *slog.Logger
	idGen    IDGenerator

	maxPrecommitRounds int

	identity   *IdentityMap
	dirty      *dirtyList
	relations  map[string]*RelationTable
	oneToMany  map[string]*OneToMany
	manyToMany map[string]*ManyToMany

	// precommit is non-nil while BeforeCommit hooks run.
	precommit  *workQueue
	committing bool
	closed     bool
}

// Option configures a Transaction.
type Option func(*Transaction)

// WithDataSource registers a data source under its name.
func WithDataSource(ds source.DataSource) Option {
	return func(tx *Transaction) {
		tx.sources[ds.Name()] = ds
	}
}

// WithDataSources registers every data source in reg.
func WithDataSources(reg source.Registry) Option {
	return func(tx *Transaction) {
		maps.Copy(tx.sources, reg)
	}
}

// WithCache sets the second-level cache. Without one, every load hits the data source.
func WithCache(c CacheBridge) Option {
	return func(tx *Transaction) {
		tx.cache = c
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(tx *Transaction) {
		tx.logger = l
	}
}

// WithIDGenerator sets the generator for the transaction id and generated keys.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(tx *Transaction) {
		tx.idGen = g
	}
}

// WithMaxPrecommitRounds sets the BeforeCommit invocation limit per Commit.
// Default: DefaultMaxPrecommitRounds.
func WithMaxPrecommitRounds(n int) Option {
	return func(tx *Transaction) {
		tx.maxPrecommitRounds = n
	}
}

// New creates a transaction over the classes in registry.
func New(registry *Registry, opts ...Option) *Transaction {
	tx := &Transaction{
		registry:           registry,
		schema:             registry.Schema(),
		sources:            source.Registry{},
		open:               map[string]source.DataSource{},
		logger:             slog.Default(),
		idGen:              UUIDv7Generator{},
		maxPrecommitRounds: DefaultMaxPrecommitRounds,
		identity:           NewIdentityMap(registry.Schema()),
		dirty:              newDirtyList(),
		relations:          map[string]*RelationTable{},
		oneToMany:          map[string]*OneToMany{},
		manyToMany:         map[string]*ManyToMany{},
	}
	for _, opt := range opts {
		opt(tx)
	}
	tx.id = tx.idGen.Generate()
	return tx
}

// ID returns the transaction id.
func (tx *Transaction) ID() string { return tx.id }

// Schema returns the class metadata.
func (tx *Transaction) Schema() *ir.Schema { return tx.schema }

// Registry returns the factory registry.
func (tx *Transaction) Registry() *Registry { return tx.registry }

// IdentityMap returns the transaction's identity map.
func (tx *Transaction) IdentityMap() *IdentityMap { return tx.identity }

// GetObjects returns every object in registration order.
func (tx *Transaction) GetObjects() []*Object {
	return tx.identity.Objects()
}

// GetObjectsByClassName returns the objects of a class, subclasses included,
// in registration order.
func (tx *Transaction) GetObjectsByClassName(name string) ([]*Object, error) {
	if _, ok := tx.schema.Class(name); !ok {
		return nil, &UnknownClassError{Name: name}
	}
	return tx.identity.ObjectsOf(name), nil
}

// DirtyObjects returns the objects waiting to be written, in dirty order.
func (tx *Transaction) DirtyObjects() []*Object {
	return tx.dirty.objects()
}

// Factory returns the factory for a class.
func (tx *Transaction) Factory(class string) (*Factory, error) {
	return tx.registry.Factory(class)
}

// CreateNew creates an Insert-mode object. A nil key is generated for
// string-keyed classes.
func (tx *Transaction) CreateNew(class string, key ir.IRValue) (*Object, error) {
	f, err := tx.registry.Factory(class)
	if err != nil {
		return nil, err
	}
	return f.CreateNew(tx, key)
}

// Get returns the loaded object for (class, key).
func (tx *Transaction) Get(ctx context.Context, class string, key ir.IRValue) (*Object, error) {
	f, err := tx.registry.Factory(class)
	if err != nil {
		return nil, err
	}
	return f.Get(ctx, tx, key)
}

// Select loads the stored objects matching sel. Objects already in the
// identity map are returned as they are in memory.
func (tx *Transaction) Select(ctx context.Context, sel queryir.Select) ([]*Object, error) {
	class, ok := tx.schema.Class(sel.From)
	if !ok {
		return nil, &UnknownClassError{Name: sel.From}
	}
	return tx.loadCollection(ctx, class.Name, class, class.DataSource, sel,
		func(ctx context.Context, ds source.DataSource) ([]ir.IRObject, error) {
			return ds.LoadObjectList(ctx, sel)
		})
}

// RelationTable returns the journal for a relation, creating it on first use.
func (tx *Transaction) RelationTable(name string) (*RelationTable, error) {
	if t, ok := tx.relations[name]; ok {
		return t, nil
	}
	info, ok := tx.schema.Relation(name)
	if !ok {
		return nil, &UnknownClassError{Name: name}
	}
	t := newRelationTable(info)
	tx.relations[name] = t
	return t, nil
}

// Rollback discards all in-memory state and rolls back every open unit of
// work. It is always safe to call. Existing views are emptied and reload
// on next use.
func (tx *Transaction) Rollback(ctx context.Context) error {
	var first error
	for _, name := range slices.Sorted(maps.Keys(tx.open)) {
		if err := tx.open[name].Rollback(ctx); err != nil && first == nil {
			first = fmt.Errorf("rollback data source %s: %w", name, err)
		}
	}
	clear(tx.open)

	tx.identity.clear()
	tx.dirty.clear()
	for _, t := range tx.relations {
		t.listeners = nil
	}
	clear(tx.relations)
	for _, c := range tx.oneToMany {
		c.reset()
	}
	clear(tx.oneToMany)
	for _, c := range tx.manyToMany {
		c.reset()
	}
	clear(tx.manyToMany)

	tx.logger.Debug("transaction rolled back", "tx", tx.id)
	return first
}

// Close rolls back any open unit of work and ends the transaction.
// The data sources themselves stay open; they belong to the caller.
func (tx *Transaction) Close() error {
	if tx.closed {
		return nil
	}
	err := tx.Rollback(context.Background())
	tx.closed = true
	return err
}

// unit returns the named data source with a unit of work open on it.
func (tx *Transaction) unit(ctx context.Context, name string) (source.DataSource, error) {
	if ds, ok := tx.open[name]; ok {
		return ds, nil
	}
	ds, err := tx.sources.Get(name)
	if err != nil {
		return nil, err
	}
	if err := ds.Open(ctx); err != nil {
		return nil, fmt.Errorf("open data source %s: %w", name, err)
	}
	tx.open[name] = ds
	return ds, nil
}

// attach registers obj in the identity map. Registration order is the
// order of save walks, per-class listings and non-canonical snapshots.
func (tx *Transaction) attach(obj *Object) error {
	return tx.identity.Register(obj)
}

// materialize returns the identity-map object for a stored row, registering
// a new clean object when none exists. In-memory state always wins over the row.
func (tx *Transaction) materialize(class *ir.ClassInfo, row ir.IRObject) (*Object, error) {
	if obj := tx.identity.FindByKey(class.Name, row[class.PrimaryKey]); obj != nil {
		if !obj.loaded {
			obj.fill(row)
		}
		return obj, nil
	}
	obj := &Object{class: class, tx: tx, values: ir.IRObject{}}
	obj.fill(row)
	obj.state = StateClean
	if err := tx.attach(obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// getRef returns the registered object or an unloaded proxy for it.
func (tx *Transaction) getRef(class *ir.ClassInfo, key ir.IRValue) (*Object, error) {
	if obj := tx.identity.FindByKey(class.Name, key); obj != nil {
		return obj, nil
	}
	if ir.IsNull(key) {
		return nil, fmt.Errorf("get %s: null key", class.Name)
	}
	obj := &Object{class: class, tx: tx, values: ir.IRObject{class.PrimaryKey: key}, state: StateClean}
	if err := tx.attach(obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// getObject returns the registered object for (class, key), loading it if needed.
func (tx *Transaction) getObject(ctx context.Context, class *ir.ClassInfo, key ir.IRValue) (*Object, error) {
	obj, err := tx.getRef(class, key)
	if err != nil {
		return nil, err
	}
	if err := obj.Load(ctx); err != nil {
		return nil, err
	}
	return obj, nil
}

// loadObject fills a proxy from the cache, falling back to its data source.
func (tx *Transaction) loadObject(ctx context.Context, obj *Object) error {
	class, key := obj.class, obj.Key()
	if tx.cache != nil && class.Cacheable {
		row, ok, err := tx.cache.Find(ctx, class.Name, key)
		switch {
		case err != nil:
			tx.logger.Warn("cache find failed", "class", class.Name, "key", ir.KeyString(key), "error", err)
		case ok:
			obj.fill(row)
			obj.cacheResident = true
			return nil
		}
	}

	ds, err := tx.sources.Get(class.DataSource)
	if err != nil {
		return err
	}
	rows, err := ds.LoadObjectList(ctx, queryir.Select{
		From:   class.Name,
		Filter: queryir.Eq(class.PrimaryKey, key),
		Limit:  1,
	})
	if err != nil {
		return fmt.Errorf("load %s: %w", obj.Identity(), err)
	}
	if len(rows) == 0 {
		return &ObjectNotFoundError{Object: obj.Identity()}
	}
	obj.fill(rows[0])
	return nil
}

// loadCollection runs a collection load, consulting the collection cache
// first. scope is the cache invalidation scope: the class name for selects,
// the relation name for relation loads.
func (tx *Transaction) loadCollection(
	ctx context.Context,
	scope string,
	class *ir.ClassInfo,
	dataSource string,
	q queryir.Query,
	fetch func(context.Context, source.DataSource) ([]ir.IRObject, error),
) ([]*Object, error) {
	var sig string
	useCache := tx.cache != nil && class.Cacheable
	if useCache {
		s, err := queryir.Signature(q)
		if err != nil {
			return nil, err
		}
		sig = s
		if objs, ok := tx.loadCachedCollection(ctx, scope, class, sig); ok {
			return objs, nil
		}
	}

	ds, err := tx.sources.Get(dataSource)
	if err != nil {
		return nil, err
	}
	rows, err := fetch(ctx, ds)
	if err != nil {
		return nil, err
	}
	objs := make([]*Object, 0, len(rows))
	keys := make([]ir.IRValue, 0, len(rows))
	for _, row := range rows {
		obj, err := tx.materialize(class, row)
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
		keys = append(keys, obj.Key())
	}

	// Rows read inside an open unit may include this transaction's
	// uncommitted writes.
	if _, open := tx.open[dataSource]; useCache && !open {
		if err := tx.cache.StoreCollection(ctx, scope, sig, keys); err != nil {
			tx.logger.Warn("cache store collection failed", "scope", scope, "error", err)
		}
	}
	return objs, nil
}

func (tx *Transaction) loadCachedCollection(ctx context.Context, scope string, class *ir.ClassInfo, sig string) ([]*Object, bool) {
	keys, ok, err := tx.cache.LoadCollection(ctx, scope, sig)
	if err != nil {
		tx.logger.Warn("cache load collection failed", "scope", scope, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	objs := make([]*Object, 0, len(keys))
	for _, key := range keys {
		obj, err := tx.getObject(ctx, class, key)
		if err != nil {
			tx.logger.Debug("cached collection stale", "scope", scope, "error", err)
			return nil, false
		}
		objs = append(objs, obj)
	}
	return objs, true
}

type txContextKey struct{}

// WithTransaction returns a context carrying tx as the ambient transaction.
func WithTransaction(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// FromContext returns the ambient transaction, if any.
func FromContext(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*Transaction)
	return tx, ok
}
