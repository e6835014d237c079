// Package container groups activities under a named controller with a shared
// variable namespace.
package container

import (
	"sort"
	"sync"

	"cyclegen/internal/activity"
	"cyclegen/internal/controller"
	"cyclegen/internal/core"
	"cyclegen/internal/resolver"
)

// Container is one controller and the variables its activities share. When
// an activity ends its final state is stored under "<alias>.state" and its
// error, if any, under "<alias>.error".
type Container struct {
	Name       string
	Controller *controller.Controller
	Vars       *core.Vars
}

func (c *Container) record(res activity.ExecutionResult) {
	c.Vars.Set(res.Alias+".state", res.State.String())
	if res.Err != nil {
		c.Vars.Set(res.Alias+".error", res.Err.Error())
	} else {
		c.Vars.Delete(res.Alias + ".error")
	}
}

// Registry creates containers on first use. Every container shares the
// registry's resolver and driver table.
type Registry struct {
	resolver *resolver.Resolver
	drivers  *activity.DriverTable
	opts     []controller.Option

	mu         sync.Mutex
	containers map[string]*Container
}

// NewRegistry creates an empty registry. opts apply to every controller it
// creates.
func NewRegistry(r *resolver.Resolver, drivers *activity.DriverTable, opts ...controller.Option) *Registry {
	return &Registry{
		resolver:   r,
		drivers:    drivers,
		opts:       opts,
		containers: make(map[string]*Container),
	}
}

// Get returns the container called name, creating it if needed.
func (r *Registry) Get(name string) *Container {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.containers[name]; ok {
		return c
	}
	c := &Container{Name: name, Vars: core.NewVars()}
	opts := append([]controller.Option{}, r.opts...)
	opts = append(opts, controller.WithCompletionHook(c.record))
	c.Controller = controller.New(r.resolver, r.drivers, opts...)
	r.containers[name] = c
	return c
}

// Lookup returns the container called name if it exists.
func (r *Registry) Lookup(name string) (*Container, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[name]
	return c, ok
}

// Names returns the container names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.containers))
	for n := range r.containers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Shutdown shuts down every container's controller and forgets them.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, c := range r.containers {
		c.Controller.Shutdown()
		delete(r.containers, name)
	}
}
