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

package evidence

import "sort"

// An IndelKey identifies an indel candidate. Pos is the first deleted
// position of a deletion, or the anchor position of an insertion.
type IndelKey struct {
	Pos    int32
	Type   VariantType
	Length int32
	Seq    string
}

// IndelData holds how often an indel candidate was observed in reads,
// and how often it was confirmed by a resolved active region.
type IndelData struct {
	Count, Confirmed int32
}

// An Indel is an entry of an IndelBuffer.
type Indel struct {
	IndelKey
	IndelData
}

// IndelBuffer stores indel candidates for the positions in the
// current window.
type IndelBuffer struct {
	indels map[IndelKey]*IndelData
}

// NewIndelBuffer returns an empty indel buffer.
func NewIndelBuffer() *IndelBuffer {
	return &IndelBuffer{indels: make(map[IndelKey]*IndelData)}
}

// KeyOf returns the indel key of an insertion or deletion event.
func KeyOf(event Event) IndelKey {
	key := IndelKey{Pos: event.Pos, Type: event.Type, Length: event.Length}
	if event.Type == Insert {
		key.Seq = event.Seq
	}
	return key
}

// AddIndel records an observation of the given indel.
func (buffer *IndelBuffer) AddIndel(key IndelKey) {
	if data := buffer.indels[key]; data != nil {
		data.Count++
	} else {
		buffer.indels[key] = &IndelData{Count: 1}
	}
}

// ConfirmIndel records that the given indel is supported by a
// resolved haplotype. Unknown indels are added with a zero count.
func (buffer *IndelBuffer) ConfirmIndel(key IndelKey) {
	if data := buffer.indels[key]; data != nil {
		data.Confirmed++
	} else {
		buffer.indels[key] = &IndelData{Confirmed: 1}
	}
}

// Get returns the data of an indel, and false if it is unknown.
func (buffer *IndelBuffer) Get(key IndelKey) (IndelData, bool) {
	if data := buffer.indels[key]; data != nil {
		return *data, true
	}
	return IndelData{}, false
}

// Len returns the number of stored indels.
func (buffer *IndelBuffer) Len() int {
	return len(buffer.indels)
}

// Range returns the indels in the closed range [start, end], sorted
// by position, type, length, and sequence.
func (buffer *IndelBuffer) Range(start, end int32) (result []Indel) {
	for key, data := range buffer.indels {
		if key.Pos >= start && key.Pos <= end {
			result = append(result, Indel{key, *data})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		ki, kj := result[i].IndelKey, result[j].IndelKey
		switch {
		case ki.Pos != kj.Pos:
			return ki.Pos < kj.Pos
		case ki.Type != kj.Type:
			return ki.Type < kj.Type
		case ki.Length != kj.Length:
			return ki.Length < kj.Length
		default:
			return ki.Seq < kj.Seq
		}
	})
	return result
}

// Clear removes all indels before pos.
func (buffer *IndelBuffer) Clear(pos int32) {
	for key := range buffer.indels {
		if key.Pos < pos {
			delete(buffer.indels, key)
		}
	}
}

// Reset removes all indels.
func (buffer *IndelBuffer) Reset() {
	buffer.indels = make(map[IndelKey]*IndelData)
}
