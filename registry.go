package txn

import (
	"context"
	"reflect"
	"sort"
	"sync"
)

// MethodFunc is the adapter shape for a transactional method: it receives the
// untyped receiver and positional args and performs the actual typed call.
type MethodFunc func(ctx context.Context, receiver any, args ...any) (any, error)

// PropertyFunc returns the value of one named property of receiver.
type PropertyFunc func(receiver any) any

// TypeInfo declares the transactional surface of a type: which methods join a
// transaction when invoked, and which properties hold transactional
// collaborators that must inherit the live transaction when read.
type TypeInfo struct {
	Methods    map[string]MethodFunc
	Properties map[string]PropertyFunc
}

// Metadata is the capability the binding engine consults to discover the
// transactional surface of a type. Implementations must be side-effect free
// and O(declared members). The default is the package registry populated by
// Register.
type Metadata interface {
	// MethodsOf returns the ordered transactional method names of t.
	MethodsOf(t reflect.Type) []string
	// PropertiesOf returns the transactional property names of t.
	PropertiesOf(t reflect.Type) []string
	// IsTransactional reports whether t is transactional at all.
	IsTransactional(t reflect.Type) bool
}

type registry struct {
	mu    sync.RWMutex
	types map[reflect.Type]TypeInfo
}

var defaultRegistry = &registry{types: make(map[reflect.Type]TypeInfo)}

var (
	metadataMu sync.RWMutex
	metadata   Metadata = defaultRegistry
)

// SetMetadata swaps the metadata capability used for discovery. The default
// registry keeps serving method invocation tables regardless.
func SetMetadata(m Metadata) {
	metadataMu.Lock()
	defer metadataMu.Unlock()
	if m == nil {
		metadata = defaultRegistry
		return
	}
	metadata = m
}

func getMetadata() Metadata {
	metadataMu.RLock()
	defer metadataMu.RUnlock()
	return metadata
}

// Register declares prototype's transactional surface and wraps each declared
// method for demarcation. Call it once per concrete type, typically from an
// init func. Registered methods are reachable via Push, Bound.Call and
// PushAll.
func Register(prototype any, info TypeInfo) {
	rt := reflect.TypeOf(prototype)
	source := rt.String()
	wrapped := TypeInfo{
		Methods:    make(map[string]MethodFunc, len(info.Methods)),
		Properties: make(map[string]PropertyFunc, len(info.Properties)),
	}
	for name, fn := range info.Methods {
		wrapped.Methods[name] = Transactional(source, name, fn)
	}
	for name, getter := range info.Properties {
		wrapped.Properties[name] = getter
	}
	defaultRegistry.mu.Lock()
	defaultRegistry.types[rt] = wrapped
	defaultRegistry.mu.Unlock()
}

// typeInfoOf returns the registered (wrapped) surface of rt.
func typeInfoOf(rt reflect.Type) (TypeInfo, bool) {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	info, ok := defaultRegistry.types[rt]
	return info, ok
}

func (r *registry) MethodsOf(t reflect.Type) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.types[t]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(info.Methods))
	for name := range info.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *registry) PropertiesOf(t reflect.Type) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.types[t]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(info.Properties))
	for name := range info.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *registry) IsTransactional(t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[t]
	return ok
}
