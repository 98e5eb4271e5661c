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

import (
	"github.com/biogo/hts/sam"

	"github.com/exascience/elactive/fasta"
)

// A Reference provides the reference bases reads are compared to.
type Reference interface {
	Base(pos int32) byte
}

// A Read is an aligned read retained by a Buffer.
type Read struct {
	Name   string
	Sample int
	// Start and End delimit the closed reference span of the read.
	Start, End int32
	Seq        []byte
	Cigar      sam.Cigar
	// Events are the differences with the reference, in reference
	// order.
	Events []Event
}

const filteredFlags = sam.Unmapped | sam.Secondary | sam.Supplementary | sam.Duplicate | sam.QCFail

// Usable determines whether a record can contribute evidence.
func (config Config) Usable(record *sam.Record) bool {
	if record.Flags&filteredFlags != 0 ||
		record.MapQ < config.MinMapQ ||
		record.Pos < 0 ||
		record.Seq.Length == 0 {
		return false
	}
	refLen := 0
	for _, op := range record.Cigar {
		switch op.Type() {
		case sam.CigarSkipped:
			return false
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch, sam.CigarDeletion:
			refLen += op.Len()
		}
	}
	return refLen > 0
}

// NewRead converts a record into a read, comparing it to the given
// reference. It also returns the classification of each position
// in the read's span.
func NewRead(sample int, record *sam.Record, ref Reference) (*Read, []VariantType) {
	refLen, _ := record.Cigar.Lengths()
	seq := record.Seq.Expand()
	for i, base := range seq {
		seq[i] = fasta.ToUpperAndN(base)
	}
	read := &Read{
		Name:   record.Name,
		Sample: sample,
		Start:  int32(record.Pos),
		End:    int32(record.Pos + refLen - 1),
		Seq:    seq,
		Cigar:  record.Cigar,
	}
	types := make([]VariantType, refLen)
	refPos, readPos := read.Start, int32(0)
	for _, op := range record.Cigar {
		n := int32(op.Len())
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for i := int32(0); i < n; i++ {
				base, refBase := seq[readPos+i], ref.Base(refPos+i)
				if base != refBase && base != 'N' && refBase != 'N' {
					types[refPos+i-read.Start] = Mismatch
					read.Events = append(read.Events, Event{
						Pos:    refPos + i,
						Type:   Mismatch,
						Length: 1,
						Seq:    string(base),
					})
				}
			}
			refPos += n
			readPos += n
		case sam.CigarDeletion:
			for i := int32(0); i < n; i++ {
				types[refPos+i-read.Start] = Delete
			}
			read.Events = append(read.Events, Event{Pos: refPos, Type: Delete, Length: n})
			refPos += n
		case sam.CigarInsertion:
			anchor := refPos - 1
			index := anchor - read.Start
			if index < 0 {
				index = 0
			}
			switch types[index] {
			case Match, SoftClip:
				types[index] = Insert
			case Mismatch:
				types[index] = MismatchInsert
			}
			read.Events = append(read.Events, Event{
				Pos:    anchor,
				Type:   Insert,
				Length: n,
				Seq:    string(seq[readPos : readPos+n]),
			})
			readPos += n
		case sam.CigarSoftClipped:
			if readPos == 0 {
				if types[0] == Match {
					types[0] = SoftClip
				}
				read.Events = append(read.Events, Event{Pos: read.Start, Type: SoftClip, Length: n})
			} else {
				if last := len(types) - 1; types[last] == Match {
					types[last] = SoftClip
				}
				read.Events = append(read.Events, Event{Pos: read.End, Type: SoftClip, Length: n})
			}
			readPos += n
		}
	}
	return read, types
}

// Segment returns the read bases aligned to the closed reference
// range [start, end], including insertions anchored inside the range
// but not at its last position. Soft clipped bases are excluded.
func (read *Read) Segment(start, end int32) []byte {
	var segment []byte
	refPos, readPos := read.Start, int32(0)
	for _, op := range read.Cigar {
		n := int32(op.Len())
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			lo, hi := refPos, refPos+n-1
			if lo < start {
				lo = start
			}
			if hi > end {
				hi = end
			}
			if lo <= hi {
				segment = append(segment, read.Seq[readPos+lo-refPos:readPos+hi-refPos+1]...)
			}
			refPos += n
			readPos += n
		case sam.CigarDeletion:
			refPos += n
		case sam.CigarInsertion:
			if anchor := refPos - 1; anchor >= start && anchor < end {
				segment = append(segment, read.Seq[readPos:readPos+n]...)
			}
			readPos += n
		case sam.CigarSoftClipped:
			readPos += n
		}
	}
	return segment
}

// Observed returns the read base aligned to the given reference
// position, and false if the read has no aligned base there.
func (read *Read) Observed(pos int32) (byte, bool) {
	if pos < read.Start || pos > read.End {
		return 0, false
	}
	refPos, readPos := read.Start, int32(0)
	for _, op := range read.Cigar {
		n := int32(op.Len())
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			if pos < refPos+n {
				return read.Seq[readPos+pos-refPos], true
			}
			refPos += n
			readPos += n
		case sam.CigarDeletion:
			if pos < refPos+n {
				return 0, false
			}
			refPos += n
		case sam.CigarInsertion, sam.CigarSoftClipped:
			readPos += n
		}
	}
	return 0, false
}
