package engine

import (
	"context"
	"fmt"

	"github.com/roach88/stead/internal/ir"
)

// Behavior holds the optional lifecycle hooks of a class.
//
// Hooks registered on an ancestor apply to its subclasses unless the
// subclass registers its own.
type Behavior struct {
	// BeforeCommit runs once per dirty object during precommit. Objects it
	// dirties are queued for their own BeforeCommit.
	BeforeCommit func(ctx context.Context, obj *Object) error

	// AfterCommit runs once per saved object after relations are flushed.
	AfterCommit func(ctx context.Context, obj *Object) error

	// Validate returns assertion failures; each becomes a Violation.
	Validate func(obj *Object) []string
}

// Registry maps class names to factories and behaviors.
type Registry struct {
	schema    *ir.Schema
	factories map[string]*Factory
	behaviors map[string]Behavior
}

// NewRegistry creates a factory for every class in schema.
func NewRegistry(schema *ir.Schema) *Registry {
	r := &Registry{
		schema:    schema,
		factories: make(map[string]*Factory, len(schema.Classes)),
		behaviors: map[string]Behavior{},
	}
	for i := range schema.Classes {
		class := &schema.Classes[i]
		r.factories[class.Name] = &Factory{class: class}
	}
	return r
}

// Schema returns the class metadata.
func (r *Registry) Schema() *ir.Schema { return r.schema }

// Register attaches hooks to a class.
func (r *Registry) Register(class string, b Behavior) error {
	if _, ok := r.factories[class]; !ok {
		return &UnknownClassError{Name: class}
	}
	r.behaviors[class] = b
	return nil
}

// Factory returns the factory for a class.
func (r *Registry) Factory(class string) (*Factory, error) {
	f, ok := r.factories[class]
	if !ok {
		return nil, &UnknownClassError{Name: class}
	}
	return f, nil
}

// behavior resolves each hook from the class, then its ancestors nearest first.
func (r *Registry) behavior(class string) Behavior {
	var out Behavior
	for _, name := range append([]string{class}, r.schema.Ancestors(class)...) {
		b, ok := r.behaviors[name]
		if !ok {
			continue
		}
		if out.BeforeCommit == nil {
			out.BeforeCommit = b.BeforeCommit
		}
		if out.AfterCommit == nil {
			out.AfterCommit = b.AfterCommit
		}
		if out.Validate == nil {
			out.Validate = b.Validate
		}
	}
	return out
}

// Factory creates and looks up objects of one class within a transaction.
type Factory struct {
	class *ir.ClassInfo
}

// Class returns the class metadata.
func (f *Factory) Class() *ir.ClassInfo { return f.class }

// CreateNew creates an Insert-mode object with every field null except the key.
//
// A nil or null key is generated with the transaction's IDGenerator for
// string-keyed classes; other key types must be supplied.
func (f *Factory) CreateNew(tx *Transaction, key ir.IRValue) (*Object, error) {
	keyField := f.class.KeyField()
	if ir.IsNull(key) {
		if keyField.Type != ir.TypeString {
			return nil, fmt.Errorf("create %s: %s key must be supplied", f.class.Name, keyField.Type)
		}
		key = ir.IRString(tx.idGen.Generate())
	}
	if ir.TypeName(key) != keyField.Type {
		return nil, fmt.Errorf("create %s: %T key for %s field", f.class.Name, key, keyField.Type)
	}

	obj := f.GetRawObject(tx)
	obj.fill(ir.IRObject{f.class.PrimaryKey: key})
	obj.state = StateInsert
	if err := tx.attach(obj); err != nil {
		return nil, err
	}
	tx.dirty.add(obj)
	if tx.precommit != nil {
		tx.precommit.Enqueue(obj)
	}
	return obj, nil
}

// GetRef returns the registered object for key, or registers an unloaded
// proxy. It never touches storage.
func (f *Factory) GetRef(tx *Transaction, key ir.IRValue) (*Object, error) {
	return tx.getRef(f.class, key)
}

// GetRawObject returns a detached object with no values. It is not
// registered and not tracked until attached.
func (f *Factory) GetRawObject(tx *Transaction) *Object {
	return &Object{class: f.class, tx: tx, values: ir.IRObject{}, state: StateNew}
}

// TryGet returns the registered object for key, or nil. It never loads.
func (f *Factory) TryGet(tx *Transaction, key ir.IRValue) *Object {
	return tx.identity.FindByKey(f.class.Name, key)
}

// Get returns the loaded object for key, reading the cache or data source
// when it is not in memory.
func (f *Factory) Get(ctx context.Context, tx *Transaction, key ir.IRValue) (*Object, error) {
	return tx.getObject(ctx, f.class, key)
}
