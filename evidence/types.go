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

// Package evidence collects per-position alignment evidence from
// reads, as input for active region detection.
package evidence

// VariantType classifies what a read shows at a reference position.
type VariantType uint8

// The variant types.
const (
	Match VariantType = iota
	Mismatch
	SoftClip
	Delete
	Insert
	MismatchInsert
)

// NumVariantTypes is the number of different variant types.
const NumVariantTypes = int(MismatchInsert) + 1

var variantTypeNames = [NumVariantTypes]string{
	"match", "mismatch", "soft-clip", "delete", "insert", "mismatch-insert",
}

func (t VariantType) String() string {
	if int(t) < NumVariantTypes {
		return variantTypeNames[t]
	}
	return "unknown"
}

// IsAnomalous is true for everything but a match.
func (t VariantType) IsAnomalous() bool {
	return t != Match
}

// IsNonReference is true for variant types that change the sequence
// at a position. Soft clips do not.
func (t VariantType) IsNonReference() bool {
	switch t {
	case Mismatch, Delete, Insert, MismatchInsert:
		return true
	}
	return false
}

// NumBases is the number of base indices: A, C, G, T, and N for
// everything else.
const NumBases = 5

// BaseIndex maps a base to its index.
func BaseIndex(base byte) int {
	switch base {
	case 'A', 'a':
		return 0
	case 'C', 'c':
		return 1
	case 'G', 'g':
		return 2
	case 'T', 't':
		return 3
	default:
		return 4
	}
}

// An Event is a difference between a read and the reference.
//
// For a mismatch, Pos is the mismatching position and Seq is the
// observed base. For a deletion, Pos is the first deleted position.
// For an insertion, Pos is the anchor position after which Seq is
// inserted. For a soft clip, Pos is the first or last aligned
// position of the read.
type Event struct {
	Pos    int32
	Type   VariantType
	Length int32
	Seq    string
}

// Extent returns the last reference position whose context is needed
// to represent the event in full.
func (e Event) Extent() int32 {
	switch e.Type {
	case Delete:
		return e.Pos + e.Length - 1
	case Insert, MismatchInsert, SoftClip:
		return e.Pos + 1
	default:
		return e.Pos
	}
}
