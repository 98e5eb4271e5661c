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

package fasta

import "github.com/exascience/elactive/utils"

// A Segment is a window on the sequence of one reference contig,
// starting at a 0-based reference position.
type Segment struct {
	Contig utils.Symbol
	start  int32
	seq    []byte
}

// NewSegment returns a segment for the given contig whose first base
// is at reference position start.
func NewSegment(contig string, start int32, seq []byte) *Segment {
	return &Segment{
		Contig: utils.Intern(contig),
		start:  start,
		seq:    seq,
	}
}

// ContigSegment returns a segment that spans the whole sequence of
// the given contig, and false if the provider does not know the
// contig.
func ContigSegment(provider Provider, contig string) (*Segment, bool) {
	seq := provider.Seq(contig)
	if seq == nil {
		return nil, false
	}
	return NewSegment(contig, 0, seq), true
}

// Start is the first reference position covered by the segment.
func (s *Segment) Start() int32 {
	return s.start
}

// End is the last reference position covered by the segment.
func (s *Segment) End() int32 {
	return s.start + int32(len(s.seq)) - 1
}

// Len is the number of bases in the segment.
func (s *Segment) Len() int32 {
	return int32(len(s.seq))
}

// Base returns the normalized reference base at pos, or 'N' outside
// of the segment.
func (s *Segment) Base(pos int32) byte {
	if i := pos - s.start; i >= 0 && i < int32(len(s.seq)) {
		return ToUpperAndN(s.seq[i])
	}
	return 'N'
}

// Slice returns the normalized reference bases in the closed interval
// [start, end], clipped to the segment. The result is a fresh slice.
func (s *Segment) Slice(start, end int32) []byte {
	if start < s.start {
		start = s.start
	}
	if last := s.End(); end > last {
		end = last
	}
	if start > end {
		return nil
	}
	result := make([]byte, end-start+1)
	for i, c := range s.seq[start-s.start : end-s.start+1] {
		result[i] = ToUpperAndN(c)
	}
	return result
}
