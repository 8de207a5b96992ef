package delay

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/jdziat/simple-deferred-calls/pkg/codec"
	"github.com/jdziat/simple-deferred-calls/pkg/core"
	"github.com/jdziat/simple-deferred-calls/pkg/security"
)

// Registry maps names to receivers whose methods may be deferred.
//
// A receiver is usually a pointer to a service struct. The name is what
// travels in the payload, so a worker process must register the same
// receiver under the same name before it can replay calls.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]any
	byValue map[any]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]any),
		byValue: make(map[any]string),
	}
}

// Register binds name to receiver. Registering the same pair again is a
// no-op; binding either side to something else fails with
// core.ErrDuplicateTarget.
func (r *Registry) Register(name string, receiver any) error {
	if err := security.ValidateTargetName(name); err != nil {
		return fmt.Errorf("%w: %q", err, name)
	}
	if receiver == nil {
		return fmt.Errorf("%w: nil receiver for %q", core.ErrUnsupportedType, name)
	}
	if !hashable(receiver) {
		return fmt.Errorf("%w: receiver %T for %q is not comparable", core.ErrUnsupportedType, receiver, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		if existing == receiver {
			return nil
		}
		return fmt.Errorf("%w: %q is bound to %T", core.ErrDuplicateTarget, name, existing)
	}
	if other, ok := r.byValue[receiver]; ok {
		return fmt.Errorf("%w: %T is registered as %q", core.ErrDuplicateTarget, receiver, other)
	}

	r.byName[name] = receiver
	r.byValue[receiver] = name
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, receiver any) {
	if err := r.Register(name, receiver); err != nil {
		panic(err)
	}
}

// Lookup returns the receiver registered under name.
func (r *Registry) Lookup(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byName[name]
	return v, ok
}

// NameOf returns the name receiver is registered under.
func (r *Registry) NameOf(receiver any) (string, bool) {
	if !hashable(receiver) {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byValue[receiver]
	return name, ok
}

// hashable reports whether v can key a map. The dynamic values held in
// interface fields count, so a struct carrying a slice in an any field is
// rejected.
func hashable(v any) bool {
	return v != nil && reflect.ValueOf(v).Comparable()
}

// Names returns every registered name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// resolve accepts a registered receiver or a codec.Class naming one.
func (r *Registry) resolve(target any) (string, any, error) {
	if c, ok := target.(codec.Class); ok {
		if v, ok := r.Lookup(string(c)); ok {
			return string(c), v, nil
		}
		return "", nil, fmt.Errorf("%w: %s", core.ErrUnknownTarget, c)
	}
	if name, ok := r.NameOf(target); ok {
		v, _ := r.Lookup(name)
		return name, v, nil
	}
	return "", nil, fmt.Errorf("%w: %T", core.ErrUnknownTarget, target)
}
