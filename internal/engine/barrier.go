package engine

import (
	"fmt"
	"maps"
	"slices"
)

// Barrier collects one submission per armed player for a single phase
// instance. It is not safe for concurrent use; the owning room serializes
// every call.
type Barrier struct {
	Instance int

	armed    map[string]bool // id -> submitted
	payloads map[string]string
	order    []string
	pending  int
}

// Arm resets the barrier to exactly ids, all pending.
func (b *Barrier) Arm(ids []string) {
	b.Instance++
	b.armed = make(map[string]bool, len(ids))
	b.payloads = make(map[string]string, len(ids))
	b.order = nil
	for _, id := range ids {
		b.armed[id] = false
	}
	b.pending = len(b.armed)
}

// Submit records id's payload. completed is true only for the submission
// that takes the pending count from one to zero.
func (b *Barrier) Submit(id, payload string) (completed bool, err error) {
	submitted, ok := b.armed[id]
	if !ok {
		return false, fmt.Errorf("%w: %s is not awaited", ErrNotEligible, id)
	}
	if submitted {
		return false, ErrDuplicateSubmission
	}

	b.armed[id] = true
	b.payloads[id] = payload
	b.order = append(b.order, id)
	b.pending--
	return b.pending == 0, nil
}

func (b *Barrier) IsComplete() bool {
	return b.armed != nil && b.pending == 0
}

func (b *Barrier) Pending(id string) bool {
	submitted, ok := b.armed[id]
	return ok && !submitted
}

func (b *Barrier) Submitted(id string) bool {
	return b.armed[id]
}

func (b *Barrier) Payload(id string) (string, bool) {
	p, ok := b.payloads[id]
	return p, ok
}

// Order lists submitters in the order their submissions were accepted.
func (b *Barrier) Order() []string {
	return slices.Clone(b.order)
}

// Disarm drops every pending submission without completing.
func (b *Barrier) Disarm() {
	b.Instance++
	b.armed = nil
	b.payloads = nil
	b.order = nil
	b.pending = 0
}

func (b Barrier) clone() Barrier {
	return Barrier{
		Instance: b.Instance,
		armed:    maps.Clone(b.armed),
		payloads: maps.Clone(b.payloads),
		order:    slices.Clone(b.order),
		pending:  b.pending,
	}
}
