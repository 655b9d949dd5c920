package core

const minRegistrySlots = 64

type heapRecord struct {
	obj              any
	bytes            int
	owner            any // nil means the context itself
	destructor       Destructor
	destructorCalled bool
	isOwner          bool
	allocatedAt      string
	allocatedAtLine  int
}

type trackingStats struct {
	Allocations    int64
	Frees          int64
	BytesAllocated int64
	BytesFreed     int64
}

type objTracking struct {
	records      []heapRecord
	nextFreeSlot int
	stats        trackingStats
}

func (t *objTracking) grow() {
	newSize := len(t.records) * 2
	if newSize < minRegistrySlots {
		newSize = minRegistrySlots
	}
	grown := make([]heapRecord, newSize)
	copy(grown, t.records)
	t.records = grown
}

func (t *objTracking) recordIndex(obj any) int {
	for i := range t.records {
		if t.records[i].obj != nil && t.records[i].obj == obj {
			return i
		}
	}
	return -1
}

// Track registers obj with the context's ownership registry. bytes is the
// caller-reported size of the resource, owner is another tracked resource or
// nil for the context, and destructor (optional) runs exactly once when the
// resource is destroyed. Owners are flagged so teardown recurses into their
// children.
func (c *Context) Track(obj any, bytes int, owner any, destructor Destructor) bool {
	if obj == nil {
		c.setError(StatusNullArgument, "cannot track a nil resource", 1)
		return false
	}
	if owner == c {
		owner = nil
	}
	t := &c.tracking
	for t.nextFreeSlot < len(t.records) && t.records[t.nextFreeSlot].obj != nil {
		t.nextFreeSlot++
	}
	if t.nextFreeSlot >= len(t.records) {
		t.grow()
	}
	frame := caller(1)
	t.records[t.nextFreeSlot] = heapRecord{
		obj:             obj,
		bytes:           bytes,
		owner:           owner,
		destructor:      destructor,
		allocatedAt:     frame.file,
		allocatedAtLine: frame.line,
	}
	t.nextFreeSlot++
	t.stats.Allocations++
	t.stats.BytesAllocated += int64(bytes)

	if owner != nil {
		i := t.recordIndex(owner)
		if i < 0 {
			c.setError(StatusItemDoesNotExist, "owner is not tracked by this context", 1)
			return false
		}
		t.records[i].isOwner = true
	}
	return true
}

// Realloc updates the registered size and source location of a tracked
// resource after the caller has grown it. Owner and destructor are
// unchanged. Fails with Invalid-argument when obj was never tracked.
func (c *Context) Realloc(obj any, newBytes int) bool {
	i := c.tracking.recordIndex(obj)
	if i < 0 {
		c.setError(StatusInvalidArgument, "cannot reallocate an item the context has no record of", 1)
		return false
	}
	rec := &c.tracking.records[i]
	c.tracking.stats.Allocations++
	c.tracking.stats.Frees++
	c.tracking.stats.BytesAllocated += int64(newBytes)
	c.tracking.stats.BytesFreed += int64(rec.bytes)
	rec.bytes = newBytes
	frame := caller(1)
	rec.allocatedAt = frame.file
	rec.allocatedAtLine = frame.line
	return true
}

// SetOwner re-parents a tracked resource. Ownership cycles are not detected;
// constructing one is a caller bug.
func (c *Context) SetOwner(obj, owner any) bool {
	if obj == nil {
		c.SetError(StatusInvalidArgument)
		return false
	}
	if owner == c {
		owner = nil
	}
	i := c.tracking.recordIndex(obj)
	if i < 0 {
		c.SetError(StatusItemDoesNotExist)
		return false
	}
	c.tracking.records[i].owner = owner
	if owner != nil {
		oi := c.tracking.recordIndex(owner)
		if oi < 0 {
			c.SetError(StatusItemDoesNotExist)
			return false
		}
		c.tracking.records[oi].isOwner = true
	}
	return true
}

// SetDestructor attaches or replaces the destructor of a tracked resource.
func (c *Context) SetDestructor(obj any, d Destructor) bool {
	if obj == nil {
		c.SetError(StatusInvalidArgument)
		return false
	}
	i := c.tracking.recordIndex(obj)
	if i < 0 {
		c.SetError(StatusItemDoesNotExist)
		return false
	}
	c.tracking.records[i].destructor = d
	return true
}

func (c *Context) callDestructor(rec *heapRecord) bool {
	if rec.destructor == nil || rec.obj == nil || rec.destructorCalled {
		return true
	}
	rec.destructorCalled = true
	if err := rec.destructor(c, rec.obj); err != nil {
		if !c.HasError() {
			c.setError(StatusOther, "destructor reported failure: "+err.Error(), 2)
		}
		c.addFrameFor("RESOURCE TRACKED BY", rec.allocatedAt, rec.allocatedAtLine)
		return false
	}
	return true
}

// callDestructorsRecursive runs destructors depth-first for everything owned
// by owner, without freeing anything. A failing destructor is recorded but
// the remaining siblings are still processed.
func (c *Context) callDestructorsRecursive(owner any) bool {
	success := true
	for i := 0; i < len(c.tracking.records); i++ {
		rec := &c.tracking.records[i]
		if rec.obj == nil || rec.owner != owner {
			continue
		}
		if rec.isOwner {
			if !c.callDestructorsRecursive(rec.obj) {
				c.AddToCallstack()
				success = false
			}
		}
		if !c.callDestructor(rec) {
			c.AddToCallstack()
			success = false
		}
	}
	return success
}

func (c *Context) partialDestroyRecord(i int) bool {
	rec := &c.tracking.records[i]
	if rec.obj == nil {
		c.SetError(StatusInvalidInternal)
		return false
	}
	success := true

	// Child destructors run first, depth-first, then this record's own
	// destructor, so destructors may still inspect their children. Only
	// afterwards are the children actually released.
	if rec.isOwner && !c.callDestructorsRecursive(rec.obj) {
		c.AddToCallstack()
		success = false
	}
	if !c.callDestructor(rec) {
		c.AddToCallstack()
		success = false
	}
	if rec.isOwner {
		if !c.destroyByOwner(rec.obj) {
			c.AddToCallstack()
			success = false
		}
	}

	// rec may have been invalidated by registry growth inside a destructor.
	rec = &c.tracking.records[i]
	c.tracking.stats.Frees++
	c.tracking.stats.BytesFreed += int64(rec.bytes)
	*rec = heapRecord{}
	if c.tracking.nextFreeSlot > i {
		c.tracking.nextFreeSlot = i
	}
	return success
}

func (c *Context) destroyByOwner(owner any) bool {
	success := true
	for i := 0; i < len(c.tracking.records); i++ {
		rec := &c.tracking.records[i]
		if rec.obj != nil && rec.owner == owner {
			if !c.partialDestroyRecord(i) {
				success = false
			}
		}
	}
	return success
}

// DestroyAllOwnedBy releases every resource directly owned by owner,
// including each one's transitive children. Pass nil to release everything
// owned by the context itself.
func (c *Context) DestroyAllOwnedBy(owner any) bool {
	if owner == c {
		owner = nil
	}
	return c.destroyByOwner(owner)
}

// DestroyObj tears down one tracked resource: descendants' destructors
// depth-first, its own destructor, then the release of its children and
// itself. Destroying the context forwards to Context.Destroy. A nil obj is
// a no-op.
func (c *Context) DestroyObj(obj any) bool {
	if obj == nil {
		return true
	}
	if obj == c {
		return c.Destroy()
	}
	i := c.tracking.recordIndex(obj)
	if i < 0 {
		c.setError(StatusInvalidArgument, "cannot destroy an item the context has no record of", 1)
		return false
	}
	return c.partialDestroyRecord(i)
}

// LiveCount returns the number of tracked resources not yet destroyed.
func (c *Context) LiveCount() int {
	n := 0
	for i := range c.tracking.records {
		if c.tracking.records[i].obj != nil {
			n++
		}
	}
	return n
}

// LiveBytes returns the reported size of all live resources.
func (c *Context) LiveBytes() int64 {
	return c.tracking.stats.BytesAllocated - c.tracking.stats.BytesFreed
}

// Stats returns cumulative allocation counters.
func (c *Context) Stats() (allocations, frees, bytesAllocated, bytesFreed int64) {
	s := c.tracking.stats
	return s.Allocations, s.Frees, s.BytesAllocated, s.BytesFreed
}
