// elactive: a tool for detecting active regions in SAM/BAM files.
// Copyright (c) 2020-2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elactive/blob/master/LICENSE.txt>.

package active

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/exascience/elactive/evidence"
)

// A window maps positions to the slots of a ring buffer. Each slot
// remembers the position that owns it, so a recycled or evicted slot
// never answers for another position.
type window struct {
	owner []int32
	low   int32
}

const noOwner = -1

func newWindow(size int32) window {
	w := window{owner: make([]int32, size)}
	w.reset(nil)
	return w
}

func (w *window) slot(pos int32) int {
	size := int32(len(w.owner))
	return int(((pos % size) + size) % size)
}

// lookup returns the slot of pos, and false if pos is not retained.
func (w *window) lookup(pos int32) (int, bool) {
	if pos < w.low {
		return 0, false
	}
	slot := w.slot(pos)
	return slot, w.owner[slot] == pos
}

// claim returns the slot for pos, and whether it was taken over from
// another position. It returns -1 for evicted positions.
func (w *window) claim(pos int32) (slot int, fresh bool) {
	if pos < w.low {
		return -1, false
	}
	slot = w.slot(pos)
	if w.owner[slot] != pos {
		w.owner[slot] = pos
		return slot, true
	}
	return slot, false
}

// evict releases all slots of positions before pos.
func (w *window) evict(pos int32, zero func(slot int)) {
	if pos <= w.low {
		return
	}
	from := w.low
	if size := int32(len(w.owner)); from < pos-size {
		from = pos - size
	}
	for p := from; p < pos; p++ {
		if slot := w.slot(p); w.owner[slot] == p {
			w.owner[slot] = noOwner
			if zero != nil {
				zero(slot)
			}
		}
	}
	w.low = pos
}

func (w *window) reset(zero func(slot int)) {
	for slot := range w.owner {
		w.owner[slot] = noOwner
		if zero != nil {
			zero(slot)
		}
	}
	w.low = 0
}

// retained counts the positions currently held by the window.
func (w *window) retained() (n int) {
	for _, owner := range w.owner {
		if owner >= w.low {
			n++
		}
	}
	return n
}

// posMap maps positions to the ids of the active regions covering them.
type posMap struct {
	window
	ids []RegionID
}

func newPosMap(size int32) *posMap {
	m := &posMap{window: newWindow(size), ids: make([]RegionID, size)}
	m.zero(-1)
	return m
}

func (m *posMap) zero(slot int) {
	if slot < 0 {
		for i := range m.ids {
			m.ids[i] = NoRegion
		}
		return
	}
	m.ids[slot] = NoRegion
}

func (m *posMap) set(pos int32, id RegionID) {
	if slot, _ := m.claim(pos); slot >= 0 {
		m.ids[slot] = id
	}
}

func (m *posMap) get(pos int32) RegionID {
	if slot, ok := m.lookup(pos); ok {
		return m.ids[slot]
	}
	return NoRegion
}

func (m *posMap) clear(pos int32) {
	m.evict(pos, m.zero)
}

func (m *posMap) clearAll() {
	m.reset(m.zero)
}

// siteSet is the set of polymorphic positions of one sample.
type siteSet struct {
	window
	sites *bitset.BitSet
}

func newSiteSet(size int32) *siteSet {
	return &siteSet{window: newWindow(size), sites: bitset.New(uint(size))}
}

func (s *siteSet) zero(slot int) {
	s.sites.Clear(uint(slot))
}

func (s *siteSet) set(pos int32, polymorphic bool) {
	if slot, _ := s.claim(pos); slot >= 0 {
		s.sites.SetTo(uint(slot), polymorphic)
	}
}

func (s *siteSet) test(pos int32) bool {
	slot, ok := s.lookup(pos)
	return ok && s.sites.Test(uint(slot))
}

func (s *siteSet) clear(pos int32) {
	s.evict(pos, s.zero)
}

func (s *siteSet) clearAll() {
	s.reset(nil)
	s.sites.ClearAll()
}

// count returns the number of retained polymorphic positions.
func (s *siteSet) count() (n int) {
	for slot, owner := range s.owner {
		if owner >= s.low && s.sites.Test(uint(slot)) {
			n++
		}
	}
	return n
}

// haplotypeStore maps (position, base) pairs of one sample to the
// haplotype the observation belongs to.
type haplotypeStore struct {
	window
	ids [][evidence.NumBases]HaplotypeID
}

func newHaplotypeStore(size int32) *haplotypeStore {
	return &haplotypeStore{window: newWindow(size), ids: make([][evidence.NumBases]HaplotypeID, size)}
}

func (h *haplotypeStore) zero(slot int) {
	h.ids[slot] = [evidence.NumBases]HaplotypeID{}
}

func (h *haplotypeStore) set(pos int32, baseIndex int, id HaplotypeID) {
	if slot, fresh := h.claim(pos); slot >= 0 {
		if fresh {
			h.zero(slot)
		}
		h.ids[slot][baseIndex] = id
	}
}

func (h *haplotypeStore) get(pos int32, baseIndex int) HaplotypeID {
	if baseIndex < 0 || baseIndex >= evidence.NumBases {
		return NoHaplotype
	}
	if slot, ok := h.lookup(pos); ok {
		return h.ids[slot][baseIndex]
	}
	return NoHaplotype
}

func (h *haplotypeStore) clear(pos int32) {
	h.evict(pos, h.zero)
}

func (h *haplotypeStore) clearAll() {
	h.reset(h.zero)
}
