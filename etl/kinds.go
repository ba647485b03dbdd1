package etl

import (
	"context"
	"reflect"
)

// Extractor is the source of an ETL graph. Next is called repeatedly until it
// reports ok=false, at which point the extractor is exhausted and its final,
// possibly partial, batch is flushed downstream.
type Extractor interface {
	Next(ctx context.Context) (item any, ok bool, err error)
}

// Transformer maps one item to another. Returning an error fails the batch
// currently being produced; see NodeException's process_batch action.
type Transformer interface {
	Transform(ctx context.Context, item any) (any, error)
}

// Filter decides whether an item survives. Check's return value is compared
// against the node's configured FilterValue (see FilterConfig); items for
// which the comparison holds are dropped, all others pass through unchanged.
type Filter interface {
	Check(ctx context.Context, item any) (value any, err error)
}

// Loader consumes items. A Loader forwards each input batch unchanged to its
// downstreams, if any; for a terminal Loader (no downstreams), the node's
// Counter grows by the batch's item count once the whole batch has loaded
// without error.
type Loader interface {
	Load(ctx context.Context, item any) error
}

// Starter is an optional capability: if a node's Impl implements it, Start is
// called once before the node's main loop begins.
type Starter interface {
	Start(ctx context.Context) error
}

// Finalizer is an optional capability: if a node's Impl implements it,
// Finalize is called once after the node's main loop ends, provided no
// exception was captured (otherwise HandleException runs instead, see below).
type Finalizer interface {
	Finalize(ctx context.Context) error
}

// ExceptionHandler is an optional capability allowing a node to react to its
// own captured failure before the worker reports it upstream. The default
// behavior when Impl does not implement this is to run Finalize (if present)
// and propagate the exception unchanged.
type ExceptionHandler interface {
	HandleException(ctx context.Context, cause error) error
}

// Keyed is an optional capability on an item's runtime type: when a
// processing node's configuration sets InputKey, the engine first checks
// whether the incoming item implements Keyed, then falls back to reflecting
// over a map[string]any or a struct field named InputKey.
type Keyed interface {
	Field(key string) (any, bool)
}

// Cloner is an optional capability: items implementing it are deep-copied via
// Clone rather than returned as-is when a batch must be duplicated for more
// than one downstream consumer (see queue.go's safe-copy policy). Items that
// do not implement Cloner are copied with a shallow reflect-based copy
// sufficient for the common case of slices/maps/plain structs; callers whose
// items hold state that must never be shared across consumers should
// implement Cloner explicitly.
type Cloner interface {
	Clone() any
}

// NewExtractor wraps impl and cfg into a root Node of kind KindExtractor.
func NewExtractor(impl Extractor, cfg ExtractorConfig, opts ...NodeOption) (*Node, error) {
	n := &Node{kind: KindExtractor, impl: impl, cfg: cfg}
	applyNodeOptions(n, opts)
	if err := validateConfig(n.resolveName(), cfg); err != nil {
		return nil, err
	}
	return n, nil
}

// NewTransformer wraps impl and cfg into a Node of kind KindTransformer.
func NewTransformer(impl Transformer, cfg TransformerConfig, opts ...NodeOption) (*Node, error) {
	n := &Node{kind: KindTransformer, impl: impl, cfg: cfg}
	applyNodeOptions(n, opts)
	if err := validateConfig(n.resolveName(), cfg); err != nil {
		return nil, err
	}
	return n, nil
}

// NewFilter wraps impl and cfg into a Node of kind KindFilter.
func NewFilter(impl Filter, cfg FilterConfig, opts ...NodeOption) (*Node, error) {
	n := &Node{kind: KindFilter, impl: impl, cfg: cfg}
	applyNodeOptions(n, opts)
	if err := validateConfig(n.resolveName(), cfg); err != nil {
		return nil, err
	}
	return n, nil
}

// NewLoader wraps impl and cfg into a Node of kind KindLoader.
func NewLoader(impl Loader, cfg LoaderConfig, opts ...NodeOption) (*Node, error) {
	n := &Node{kind: KindLoader, impl: impl, cfg: cfg}
	applyNodeOptions(n, opts)
	if err := validateConfig(n.resolveName(), cfg); err != nil {
		return nil, err
	}
	return n, nil
}

// NewBulker wraps cfg into a Node of kind KindBulker. Bulker has no
// user-supplied Impl: its only behavior is grouping items into bulks, so it
// implements neither Starter nor Finalizer and never surfaces user code.
func NewBulker(cfg BulkerConfig, opts ...NodeOption) (*Node, error) {
	n := &Node{kind: KindBulker, cfg: cfg}
	applyNodeOptions(n, opts)
	if err := validateConfig(n.resolveName(), cfg); err != nil {
		return nil, err
	}
	return n, nil
}

// NewDeBulker wraps cfg into a Node of kind KindDeBulker, the inverse of
// Bulker: each incoming bulk is fanned back out as individual single-item
// batches.
func NewDeBulker(cfg DeBulkerConfig, opts ...NodeOption) (*Node, error) {
	n := &Node{kind: KindDeBulker, cfg: cfg}
	applyNodeOptions(n, opts)
	if err := validateConfig(n.resolveName(), cfg); err != nil {
		return nil, err
	}
	return n, nil
}

// NodeOption customizes a node at construction time. Currently the only
// option is WithName; the option slot exists so additional per-node knobs
// can be added without breaking the New* signatures.
type NodeOption func(*Node)

// WithName overrides the node's auto-derived name.
func WithName(name string) NodeOption {
	return func(n *Node) { n.userName = name }
}

func applyNodeOptions(n *Node, opts []NodeOption) {
	for _, opt := range opts {
		opt(n)
	}
}

// resolveName returns the user-supplied name if set, else derives one from
// Impl's concrete type (or the Kind, for Bulker/DeBulker which have no Impl).
// The Planner re-derives and de-duplicates names during discovery (see
// planner.go); resolveName is also used ahead of discovery, to label
// configuration errors with something more useful than a bare node pointer.
func (n *Node) resolveName() string {
	if n.userName != "" {
		return n.userName
	}
	if n.impl != nil {
		t := reflect.TypeOf(n.impl)
		for t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		return deriveName(t.Name())
	}
	return n.kind.String()
}

// fieldOf resolves InputKey against item, trying Keyed, then map[string]any,
// then an exported struct field of the same name.
func fieldOf(item any, key string) (any, bool) {
	if key == "" {
		return item, true
	}
	if k, ok := item.(Keyed); ok {
		return k.Field(key)
	}
	if m, ok := item.(map[string]any); ok {
		v, ok := m[key]
		return v, ok
	}
	v := reflect.ValueOf(item)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, false
	}
	f := v.FieldByName(key)
	if !f.IsValid() {
		return nil, false
	}
	return f.Interface(), true
}

// cloneItem returns a value safe to hand to a second downstream consumer
// alongside the original, per queue.go's safe-copy policy.
func cloneItem(item any) any {
	if c, ok := item.(Cloner); ok {
		return c.Clone()
	}
	v := reflect.ValueOf(item)
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return item
		}
		cp := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		reflect.Copy(cp, v)
		return cp.Interface()
	case reflect.Map:
		if v.IsNil() {
			return item
		}
		cp := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			cp.SetMapIndex(iter.Key(), iter.Value())
		}
		return cp.Interface()
	case reflect.Ptr:
		if v.IsNil() {
			return item
		}
		cp := reflect.New(v.Elem().Type())
		cp.Elem().Set(v.Elem())
		return cp.Interface()
	default:
		// Values (ints, strings, plain structs passed by value, ...) are
		// already copied by Go's assignment semantics.
		return item
	}
}
