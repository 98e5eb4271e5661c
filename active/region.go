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
	"github.com/exascience/elactive/evidence"
	"github.com/exascience/elactive/utils"
)

// RegionID identifies an active region. Ids are assigned in
// increasing order of region start positions.
type RegionID int64

// NoRegion is returned for positions outside of any active region.
const NoRegion RegionID = -1

// HaplotypeID identifies a candidate haplotype of an active region.
type HaplotypeID uint8

// NoHaplotype is returned for observations that are not part of a
// resolved active region. It is also the id of the reference
// haplotype.
const NoHaplotype HaplotypeID = 0

// A Haplotype is a candidate local sequence of an active region.
type Haplotype struct {
	ID HaplotypeID
	// Seq spans the padded window of the region.
	Seq []byte
	// Events are the differences with the reference inside the region.
	Events []evidence.Event
	// Observed is the number of reads showing exactly these events,
	// Support the number of reads that align best to Seq.
	Observed, Support int32
}

// A Region is an active region: a closed interval of reference
// positions on one contig.
type Region struct {
	ID         RegionID
	Contig     utils.Symbol
	Start, End int32
	Haplotypes []Haplotype
}

// Len returns the number of positions of the region.
func (region *Region) Len() int32 {
	return region.End - region.Start + 1
}

// Contains determines whether pos lies within the region.
func (region *Region) Contains(pos int32) bool {
	return region.Start <= pos && pos <= region.End
}
