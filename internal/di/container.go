// Package di provides the string-keyed service registry used to wire bounded
// contexts together without import cycles between business modules.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry is the read side: look services up by token.
type ServiceRegistry interface {
	Get(token string) (any, bool)
	MustGet(token string) any
}

// Container is the write side: modules register factories (or concrete
// values) keyed by token during RegisterServices.
type Container interface {
	ServiceRegistry
	Register(token string, value any)
}

type container struct {
	mu       sync.RWMutex
	services map[string]any
}

// NewContainer creates an empty service container.
func NewContainer() Container {
	return &container{services: make(map[string]any)}
}

func (c *container) Register(token string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[token] = value
}

func (c *container) Get(token string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.services[token]
	return v, ok
}

func (c *container) MustGet(token string) any {
	v, ok := c.Get(token)
	if !ok {
		panic(fmt.Sprintf("di: no service registered for token %q", token))
	}
	return v
}

// RegisterToken registers a service built from a factory that closes over
// the registry, for a service that itself depends on other
// already-registered services. The factory runs immediately, at
// registration time.
func RegisterToken[T any](c Container, token string, factory func(ServiceRegistry) T) {
	c.Register(token, factory(c))
}

// Resolve fetches and type-asserts a service registered under token, panicking
// with a descriptive message on a type mismatch or missing registration —
// acceptable at startup wiring time, never inside the hot path.
func Resolve[T any](r ServiceRegistry, token string) T {
	v := r.MustGet(token)
	t, ok := v.(T)
	if !ok {
		panic(fmt.Sprintf("di: service %q has unexpected type %T", token, v))
	}
	return t
}
