// SPDX-License-Identifier: GPL-3.0-or-later

// Package queue implements the staging queue of spec section 3: an
// ordered, set-like container of endpoints with no duplicates and FIFO
// drain order, bounded only by available memory.
//
// No third-party ordered-set primitive appears anywhere in the retrieved
// example pack (grep for "orderedmap"/"container/list" across the corpus
// turns up nothing usable), so this container is built directly on
// container/list + a membership map, the combination spec section 9's
// design notes call out as the natural implementation where no ordered
// hash-set primitive is available.
package queue

import (
	"container/list"
	"net/netip"
)

// Staging is an insertion-ordered, deduplicating queue of endpoints.
//
// Not safe for concurrent use: the engine's single-threaded readiness
// loop is the only caller (ingest appends, the factory drains).
type Staging struct {
	order   *list.List
	members map[netip.AddrPort]*list.Element
}

// New returns an empty [*Staging] queue.
func New() *Staging {
	return &Staging{
		order:   list.New(),
		members: make(map[netip.AddrPort]*list.Element),
	}
}

// Push inserts ep at the back of the queue unless it is already present,
// per spec section 4.1: "Duplicates arriving on the pipe are collapsed
// by the queue's set semantics." Returns true if ep was newly inserted.
func (s *Staging) Push(ep netip.AddrPort) bool {
	if _, ok := s.members[ep]; ok {
		return false
	}
	elem := s.order.PushBack(ep)
	s.members[ep] = elem
	return true
}

// Pop removes and returns the front endpoint. The second return value is
// false if the queue is empty.
func (s *Staging) Pop() (netip.AddrPort, bool) {
	front := s.order.Front()
	if front == nil {
		return netip.AddrPort{}, false
	}
	s.order.Remove(front)
	ep := front.Value.(netip.AddrPort)
	delete(s.members, ep)
	return ep, true
}

// Len returns the number of endpoints currently staged.
func (s *Staging) Len() int {
	return s.order.Len()
}

// Contains reports whether ep is currently staged.
func (s *Staging) Contains(ep netip.AddrPort) bool {
	_, ok := s.members[ep]
	return ok
}
