package workflow

import "fmt"

// Context is the mutable state shared by steps in one workflow run. Each
// step writes its output into a slot it owns; a slot written by one step can
// never be overwritten by another, so a step's failure cannot corrupt
// context produced by prior successful steps.
//
// A Context is exclusively owned by a single run and is not safe for
// concurrent use; the engine is strictly sequential so none is needed.
type Context struct {
	slots  map[string]any
	owners map[string]string
}

// NewContext creates an empty workflow context
func NewContext() *Context {
	return &Context{
		slots:  make(map[string]any),
		owners: make(map[string]string),
	}
}

// Put writes a value into a named slot on behalf of a step. Writing to a
// slot owned by a different step is refused; a step may overwrite its own
// slot (e.g. across retry attempts).
func (c *Context) Put(step, slot string, value any) error {
	if owner, taken := c.owners[slot]; taken && owner != step {
		return fmt.Errorf("slot %q is owned by step %q", slot, owner)
	}
	c.owners[slot] = step
	c.slots[slot] = value
	return nil
}

// Get reads a slot value. The second return is false when the slot was
// never written.
func (c *Context) Get(slot string) (any, bool) {
	v, ok := c.slots[slot]
	return v, ok
}

// Owner returns the step that wrote a slot, or "" if unwritten
func (c *Context) Owner(slot string) string {
	return c.owners[slot]
}
