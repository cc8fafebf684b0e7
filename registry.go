// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"sync"
	"weak"
)

// registry resolves worker addresses to public worker objects. It holds only
// weak pointers, so a worker object that the application drops can be
// collected while its thread is still running. Dead entries are removed
// incrementally, by scanning a ring of addresses.
type registry struct {
	data map[Address]weak.Pointer[Worker]

	// ring is a circular buffer of addresses used for scavenging. Zero marks
	// a removed slot.
	ring []Address

	head int
	mu   sync.RWMutex

	// scavengeMu serializes scavenge passes.
	scavengeMu sync.Mutex
}

func newRegistry() *registry {
	return &registry{
		data: make(map[Address]weak.Pointer[Worker]),
		ring: make([]Address, 0, 64),
	}
}

// register assigns w a fresh address.
func (r *registry) register(w *Worker) Address {
	addr := nextAddress()
	wp := weak.Make(w)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[addr] = wp
	r.ring = append(r.ring, addr)
	return addr
}

// lookup returns the live worker object for addr, or nil.
func (r *registry) lookup(addr Address) *Worker {
	r.mu.RLock()
	wp, ok := r.data[addr]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return wp.Value()
}

func (r *registry) remove(addr Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, addr)
}

// len returns the number of tracked entries, including any not yet
// scavenged.
func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// live returns every worker object that has not been collected.
func (r *registry) live() []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Worker, 0, len(r.data))
	for _, wp := range r.data {
		if w := wp.Value(); w != nil {
			out = append(out, w)
		}
	}
	return out
}

// scavenge checks up to batchSize ring slots, removing entries whose worker
// object was collected. Entries for exited workers are kept, as owner tasks
// the worker posted before exiting may still be queued.
func (r *registry) scavenge(batchSize int) {
	r.scavengeMu.Lock()
	defer r.scavengeMu.Unlock()

	if batchSize <= 0 {
		return
	}

	r.mu.RLock()
	ringLen := len(r.ring)
	if ringLen == 0 {
		r.mu.RUnlock()
		return
	}

	start := r.head
	end := min(start+batchSize, ringLen)

	type item struct {
		wp   weak.Pointer[Worker]
		addr Address
		idx  int
	}
	items := make([]item, 0, end-start)
	for i := start; i < end; i++ {
		addr := r.ring[i]
		if addr == 0 {
			continue
		}
		if wp, ok := r.data[addr]; ok {
			items = append(items, item{wp: wp, addr: addr, idx: i})
		}
	}

	nextHead := end
	if nextHead >= ringLen {
		nextHead = 0
	}
	r.mu.RUnlock()

	cycleCompleted := nextHead == 0

	// checked outside the lock
	var remove []item
	for _, it := range items {
		if it.wp.Value() == nil {
			remove = append(remove, it)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, it := range remove {
		delete(r.data, it.addr)
		if it.idx < len(r.ring) && r.ring[it.idx] == it.addr {
			r.ring[it.idx] = 0
		}
	}
	r.head = nextHead

	// also drops ring slots for addresses removed directly
	if cycleCompleted && len(r.ring) > 64 && len(r.data) < len(r.ring)/4 {
		r.compact()
	}
}

// compact rebuilds the ring and the map. Must be called with mu held.
func (r *registry) compact() {
	ring := make([]Address, 0, len(r.data))
	data := make(map[Address]weak.Pointer[Worker], len(r.data))
	for _, addr := range r.ring {
		if addr == 0 {
			continue
		}
		if wp, ok := r.data[addr]; ok {
			ring = append(ring, addr)
			data[addr] = wp
		}
	}
	r.ring = ring
	r.data = data
	r.head = 0
}
