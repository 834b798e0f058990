// Package txn implements the per-held-lock transaction context: a scratch
// buffer that stages a pending row update and/or a pending-delete flag until
// the holder unlocks, at which point the engine commits or rolls back.
package txn

// Context is created fresh by lock() and attached to the lock cell it
// belongs to. It carries the record number it was opened for so the engine
// can commit it without threading the number through separately.
type Context struct {
	n          int64
	pending    []byte
	hasPending bool
	deleted    bool
}

// New returns an empty transaction context for record n.
func New(n int64) *Context {
	return &Context{n: n}
}

// RecordNumber returns the record number this context was created for.
func (c *Context) RecordNumber() int64 {
	return c.n
}

// StageUpdate records row as the pending write. It is ignored if the
// context is already staged-deleted: delete wins over any update staged
// before or after it, per commit semantics.
func (c *Context) StageUpdate(row []byte) {
	if c.deleted {
		return
	}

	cp := make([]byte, len(row))
	copy(cp, row)

	c.pending = cp
	c.hasPending = true
}

// StageDelete sets the pending-delete flag and clears any pending row: a
// delete staged after an update discards that update.
func (c *Context) StageDelete() {
	c.deleted = true
	c.pending = nil
	c.hasPending = false
}

// Pending returns the staged row and whether one is present. It is never
// true at the same time as [Context.IsDeleted].
func (c *Context) Pending() ([]byte, bool) {
	return c.pending, c.hasPending
}

// IsDeleted reports whether a delete is staged.
func (c *Context) IsDeleted() bool {
	return c.deleted
}
