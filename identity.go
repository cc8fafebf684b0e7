// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

// identityCell records which worker an execution is on behalf of. It is owned
// by a single engine and only touched from that engine's thread.
type identityCell struct {
	current Address
	depth   int
}

// install sets addr as the current identity, returning a function that
// restores the previous value. Callers must defer the restore, so nested
// installs unwind in stack order, even when the dispatch panics.
func (c *identityCell) install(addr Address) (restore func()) {
	prev := c.current
	c.current = addr
	c.depth++
	return func() {
		c.current = prev
		c.depth--
	}
}

// Current returns the installed address, or zero if none is installed.
func (c *identityCell) Current() Address {
	return c.current
}
