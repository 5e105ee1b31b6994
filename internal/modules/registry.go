package modules

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
)

// Registry owns modules, orders them by dependency and is the process event
// bus. Registration order is mutable until Init; afterwards the resolved
// order is fixed. Only modules whose Init succeeded receive events and
// contribute menus and commands.
type Registry struct {
	mu          sync.RWMutex
	modules     []Module
	active      []Module // Init succeeded, resolved order
	byName      map[string]Module
	listeners   map[string][]bus.Listener
	initialized bool
	app         *Context
}

func NewRegistry() *Registry {
	return &Registry{
		byName:    make(map[string]Module),
		listeners: make(map[string][]bus.Listener),
	}
}

// Register adds a module. A duplicate name is logged and ignored.
func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := m.Name()
	if _, exists := r.byName[name]; exists {
		slog.Warn("module already registered, ignoring", "module", name)
		return
	}
	if r.initialized {
		slog.Warn("module registered after init, it stays inactive", "module", name)
	}
	r.byName[name] = m
	r.modules = append(r.modules, m)
}

// Get returns a registered module by name, for explicit wiring inside Init.
func (r *Registry) Get(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[name]
	return m, ok
}

// Order returns module names in their current order.
func (r *Registry) Order() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.modules))
	for i, m := range r.modules {
		names[i] = m.Name()
	}
	return names
}

// Init resolves the dependency order and initializes every module in it.
// Per-module errors and panics are logged; Init itself never fails.
func (r *Registry) Init(ctx context.Context, app *Context) {
	r.mu.Lock()
	if app.Registry == nil {
		app.Registry = r
	}
	r.app = app
	r.modules = resolveOrder(r.modules, r.byName)
	r.initialized = true
	ordered := append([]Module(nil), r.modules...)
	r.mu.Unlock()

	names := make([]string, len(ordered))
	for i, m := range ordered {
		names[i] = m.Name()
	}
	slog.Debug("module initialization order", "order", names)

	active := make([]Module, 0, len(ordered))
	for _, m := range ordered {
		if err := safeInit(ctx, m, app); err != nil {
			slog.Error("module init failed, module disabled", "module", m.Name(), "error", err)
			continue
		}
		active = append(active, m)
	}

	r.mu.Lock()
	r.active = active
	r.mu.Unlock()
}

func safeInit(ctx context.Context, m Module, app *Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("module init panicked", "module", m.Name(), "stack", string(debug.Stack()))
			err = fmt.Errorf("init panicked: %v", rec)
		}
	}()
	return m.Init(ctx, app)
}

// resolveOrder topologically sorts modules over required and optional
// dependency edges with a DFS. A node re-entered while still being visited
// closes a cycle; the back edge is logged and skipped. Unknown dependency
// names are skipped. Registration order breaks ties.
func resolveOrder(registered []Module, byName map[string]Module) []Module {
	result := make([]Module, 0, len(registered))
	visited := make(map[string]bool)
	visiting := make(map[string]bool)

	var visit func(m Module)
	visit = func(m Module) {
		name := m.Name()
		if visited[name] {
			return
		}
		visiting[name] = true

		deps := append(append([]string(nil), m.Dependencies()...), m.OptionalDependencies()...)
		for _, dep := range deps {
			depMod, ok := byName[dep]
			if !ok {
				slog.Debug("module dependency not registered, skipping", "module", name, "dependency", dep)
				continue
			}
			if visiting[dep] {
				slog.Warn("circular module dependency, treating as resolved", "module", name, "dependency", dep)
				continue
			}
			visit(depMod)
		}

		visiting[name] = false
		visited[name] = true
		result = append(result, m)
	}

	for _, m := range registered {
		visit(m)
	}
	return result
}

// Stop stops every active module in reverse order (errors and panics
// swallowed), cancels scheduled tasks, and clears listeners and modules.
// The registry can be reused.
func (r *Registry) Stop() {
	r.mu.Lock()
	ordered := r.active
	app := r.app
	r.modules = nil
	r.active = nil
	r.byName = make(map[string]Module)
	r.listeners = make(map[string][]bus.Listener)
	r.initialized = false
	r.app = nil
	r.mu.Unlock()

	for i := len(ordered) - 1; i >= 0; i-- {
		m := ordered[i]
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Warn("module stop panicked", "module", m.Name(), "panic", rec)
				}
			}()
			if err := m.Stop(); err != nil {
				slog.Warn("module stop failed", "module", m.Name(), "error", err)
			}
		}()
	}

	if app != nil && app.Tasks != nil {
		app.Tasks.CancelAll()
	}
}

// On subscribes a listener to one event name (protocol.Event*).
func (r *Registry) On(event string, l bus.Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[event] = append(r.listeners[event], l)
}

// Dispatch delivers p synchronously: direct listeners first, then the
// OnEvent of every active module in resolved order. Panics are contained
// per listener.
func (r *Registry) Dispatch(p bus.Payload) {
	name := p.EventName()

	r.mu.RLock()
	listeners := append([]bus.Listener(nil), r.listeners[name]...)
	ordered := append([]Module(nil), r.active...)
	r.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer recoverDispatch(name, "listener")
			l(p)
		}()
	}
	for _, m := range ordered {
		func() {
			defer recoverDispatch(name, m.Name())
			m.OnEvent(p)
		}()
	}
}

func recoverDispatch(event, who string) {
	if rec := recover(); rec != nil {
		slog.Error("event handler panicked", "event", event, "handler", who, "panic", rec, "stack", string(debug.Stack()))
	}
}

// CollectMenuItems flat-maps every active module's menu hook in order,
// dropping nil entries.
func (r *Registry) CollectMenuItems(kind string, mc MenuContext) []*MenuItem {
	r.mu.RLock()
	ordered := append([]Module(nil), r.active...)
	r.mu.RUnlock()

	mc.Kind = kind
	var items []*MenuItem
	for _, m := range ordered {
		func() {
			defer recoverDispatch("menu:"+kind, m.Name())
			for _, it := range m.MenuItems(kind, mc) {
				if it == nil {
					continue
				}
				if it.Module == "" {
					it.Module = m.Name()
				}
				items = append(items, it)
			}
		}()
	}
	return items
}

// Commands flattens every active module's commands in module order.
func (r *Registry) Commands() []ModuleCommand {
	r.mu.RLock()
	ordered := append([]Module(nil), r.active...)
	r.mu.RUnlock()

	var out []ModuleCommand
	for _, m := range ordered {
		for _, c := range m.Commands() {
			if c == nil || c.Execute == nil {
				continue
			}
			out = append(out, ModuleCommand{Module: m.Name(), Command: c})
		}
	}
	return out
}
