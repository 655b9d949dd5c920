// Package core implements the context every pipeline operation runs under: a
// scoped ownership heap that tracks each resource with an owner and an
// optional destructor, plus the context's error state and profiling log.
//
// A context and everything reachable through it is single-threaded. Multiple
// contexts may be used concurrently as long as no tracked resource is shared
// between them.
package core

// Destructor releases a tracked resource. Destructors run exactly once,
// before the resource's children are destroyed, so they may still inspect
// them. A destructor that fails contributes to the context callstack but
// does not halt teardown.
type Destructor func(c *Context, obj any) error

// Context is the root owner of a pipeline's resources. It must be released
// with Destroy when the caller is done; destruction tears down every tracked
// resource depth-first.
type Context struct {
	tracking objTracking
	err      errorState
	prof     *Profiler

	// CodecSet is the per-context codec registry, owned by the codec layer.
	// Held as any so the heap does not depend on codec types.
	CodecSet any
}

// NewContext returns an empty context with no tracked resources.
func NewContext() *Context {
	return &Context{}
}

// Destroy releases every resource owned (transitively) by the context and
// resets the registry. Safe to call once; callers that clear their pointer
// afterwards get idempotence for free.
func (c *Context) Destroy() bool {
	ok := c.destroyByOwner(nil)
	c.tracking = objTracking{}
	return ok
}

// BeginProfiling enables the profiling ring buffer with the given capacity.
func (c *Context) BeginProfiling(capacity int) {
	c.prof = newProfiler(capacity)
}

// Profiler returns the active profiler, or nil when profiling is off.
func (c *Context) Profiler() *Profiler { return c.prof }

// ProfStart records a start entry when profiling is enabled.
func (c *Context) ProfStart(name string, allowRecursion bool) {
	if c.prof != nil {
		c.prof.Start(name, allowRecursion)
	}
}

// ProfStop records a stop entry when profiling is enabled.
func (c *Context) ProfStop(name string, assertStarted bool, stopChildren bool) {
	if c.prof != nil {
		c.prof.Stop(name, assertStarted, stopChildren)
	}
}
