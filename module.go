package bthost

import (
	log "github.com/sirupsen/logrus"
)

// fatalf reports a contract violation. Violations are programming
// errors and terminate the process; tests stub this out.
var fatalf = func(format string, args ...interface{}) {
	log.Fatalf(format, args...)
}

// A Descriptor names a module type and knows how to instantiate it.
// Modules are identified by descriptor pointer, so each module package
// exposes exactly one.
type Descriptor struct {
	Name string
	New  func() Module
}

// A Module is a long-lived unit of the stack. Dependencies must be
// declared before Start and may not change afterwards. Start and Stop
// run on the registry's goroutine, never on the module's own queue.
type Module interface {
	Dependencies() []*Descriptor
	Start(env *Env)
	Stop()
}

type moduleState int

const (
	stateUnstarted moduleState = iota
	stateStarting
	stateRunning
	stateStopping
	stateStopped
)

// Env is the runtime context handed to a module at Start: its private
// task queue and checked access to its declared dependencies.
type Env struct {
	reg   *Registry
	desc  *Descriptor
	queue *TaskQueue
	deps  []*Descriptor
}

// Queue returns the module's private task queue.
func (e *Env) Queue() *TaskQueue { return e.queue }

// Dependency returns the started instance of d. Asking for a module
// that was not declared as a dependency is fatal.
func (e *Env) Dependency(d *Descriptor) Module {
	for _, dep := range e.deps {
		if dep == d {
			return e.reg.Get(d)
		}
	}
	fatalf("module %q requested undeclared dependency %q", e.desc.Name, d.Name)
	return nil
}

type instance struct {
	mod   Module
	env   *Env
	state moduleState
}

// Registry starts modules in dependency order and stops them in
// reverse. It is mutated only during Start and StopAll, both of which
// must run before or after, never during, module callbacks.
type Registry struct {
	instances map[*Descriptor]*instance
	order     []*Descriptor
	provided  map[*Descriptor]Module
}

func NewRegistry() *Registry {
	return &Registry{
		instances: make(map[*Descriptor]*instance),
		provided:  make(map[*Descriptor]Module),
	}
}

// Provide injects a pre-built instance for d, to be used instead of
// d.New when d is started. This is how externally configured modules
// (a HAL bound to a transport, a fake in tests) enter the stack.
func (r *Registry) Provide(d *Descriptor, m Module) {
	if _, started := r.instances[d]; started {
		fatalf("module %q provided after start", d.Name)
	}
	r.provided[d] = m
}

// Start brings up every module in the transitive closure of roots,
// dependency-first. Starting a module that is already running is a
// no-op, so overlapping closures are fine.
func (r *Registry) Start(roots ...*Descriptor) {
	for _, d := range roots {
		r.start(d)
	}
}

func (r *Registry) start(d *Descriptor) {
	if in, ok := r.instances[d]; ok {
		if in.state == stateStarting {
			fatalf("dependency cycle through module %q", d.Name)
		}
		return
	}

	mod := r.provided[d]
	if mod == nil {
		mod = d.New()
	}
	env := &Env{
		reg:   r,
		desc:  d,
		queue: NewTaskQueue(d.Name),
		deps:  mod.Dependencies(),
	}
	in := &instance{mod: mod, env: env, state: stateStarting}
	r.instances[d] = in

	for _, dep := range in.env.deps {
		r.start(dep)
	}

	log.WithField("module", d.Name).Debug("starting module")
	mod.Start(env)
	in.state = stateRunning
	r.order = append(r.order, d)
}

// StopAll stops every module in reverse start order and releases its
// queue. Afterwards the registry is empty.
func (r *Registry) StopAll() {
	for i := len(r.order) - 1; i >= 0; i-- {
		d := r.order[i]
		in := r.instances[d]
		log.WithField("module", d.Name).Debug("stopping module")
		in.state = stateStopping
		in.mod.Stop()
		in.env.queue.Shutdown()
		in.state = stateStopped
		delete(r.instances, d)
	}
	r.order = nil
}

// Get returns the started instance of d. Absence is a contract
// violation.
func (r *Registry) Get(d *Descriptor) Module {
	in, ok := r.instances[d]
	if !ok || in.state != stateRunning && in.state != stateStarting {
		fatalf("module %q is not started", d.Name)
		return nil
	}
	return in.mod
}
