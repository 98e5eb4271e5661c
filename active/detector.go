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

// Package active detects active regions: short reference intervals
// where variant evidence is dense enough to require haplotype-aware
// reanalysis.
package active

import (
	"log"

	"github.com/exascience/elactive/align"
	"github.com/exascience/elactive/evidence"
	"github.com/exascience/elactive/utils"
)

// Evidence supplies the per-position, per-sample evidence a Detector
// consumes. It is implemented by *evidence.Buffer.
type Evidence interface {
	SampleCount() int
	IsCandidateVariant(sample int, pos int32) bool
	Counts(sample int, pos int32) evidence.Counts
	Reads(sample int, start, end int32) []*evidence.Read
	MaxIndelSize() int32
	Clear(pos int32)
	Reset()
	Indels() *evidence.IndelBuffer
}

// Reference supplies reference bases. It is implemented by
// *fasta.Segment.
type Reference interface {
	Base(pos int32) byte
	Slice(start, end int32) []byte
	Start() int32
	End() int32
}

// A Detector scans the positions of one contig in increasing order
// and closes active regions as runs of nearby variants end.
//
// A Detector is not safe for concurrent use.
type Detector struct {
	config   Config
	contig   utils.Symbol
	ref      Reference
	evidence Evidence
	aligner  align.Aligner

	// region boundary tracking
	isBeginning    bool
	regionStart    int32
	anchor         int32
	prevVariantPos int32
	variantCount   int32
	maxExtent      int32
	prevRegionEnd  int32
	lastPos        int32
	nextID         RegionID

	regionIDs  *posMap
	polySites  []*siteSet
	haplotypes []*haplotypeStore
	regions    []*Region
	closed     []*Region
}

// NewDetector returns a detector for the given contig. It panics if
// the configuration is invalid, or if the window cannot hold the
// largest indels of the evidence.
func NewDetector(contig string, ref Reference, ev Evidence, config Config) *Detector {
	if err := config.Validate(); err != nil {
		log.Panic(err)
	}
	if config.MaxBufferSize <= ev.MaxIndelSize() {
		log.Panicf("max-buffer-size %v must be larger than the maximum indel size %v", config.MaxBufferSize, ev.MaxIndelSize())
	}
	d := &Detector{
		config:     config,
		contig:     utils.Intern(contig),
		ref:        ref,
		evidence:   ev,
		aligner:    align.NewGlobalAligner(config.Scores, config.Band),
		regionIDs:  newPosMap(config.MaxBufferSize),
		polySites:  make([]*siteSet, ev.SampleCount()),
		haplotypes: make([]*haplotypeStore, ev.SampleCount()),
	}
	for i := range d.polySites {
		d.polySites[i] = newSiteSet(config.MaxBufferSize)
		d.haplotypes[i] = newHaplotypeStore(config.MaxBufferSize)
	}
	d.resetTracker()
	return d
}

func (d *Detector) resetTracker() {
	d.isBeginning = true
	d.regionStart = -1
	d.anchor = -1
	d.prevVariantPos = -1
	d.variantCount = 0
	d.maxExtent = -1
	d.prevRegionEnd = -1
	d.lastPos = -1
	d.nextID = 0
}

// Config returns the configuration of the detector.
func (d *Detector) Config() Config {
	return d.config
}

// LastPos returns the last position the detector advanced to, or -1.
func (d *Detector) LastPos() int32 {
	return d.lastPos
}

// AdvanceTo processes all positions up to and including pos, starting
// at the first position of the reference on the first call. The
// evidence for these positions must be complete, so callers advance
// to start-1 before adding a read that starts at start. Positions
// must never decrease.
func (d *Detector) AdvanceTo(pos int32) {
	if d.isBeginning {
		d.isBeginning = false
		d.anchor = d.ref.Start()
		d.lastPos = d.ref.Start() - 1
	} else if pos < d.lastPos {
		log.Panicf("active region detector for %v advanced to position %v after position %v", *d.contig, pos, d.lastPos)
	}
	for p := d.lastPos + 1; p <= pos; p++ {
		d.step(p)
	}
	if pos > d.lastPos {
		d.lastPos = pos
	}
}

func (d *Detector) isPolymorphic(counts evidence.Counts) bool {
	return counts.NonRef >= d.config.MinPolySiteCount &&
		float64(counts.NonRef) >= d.config.MinPolySiteFraction*float64(counts.Depth)
}

func (d *Detector) step(p int32) {
	isVariant := false
	extent := int32(-1)
	for sample, sites := range d.polySites {
		counts := d.evidence.Counts(sample, p)
		sites.set(p, d.isPolymorphic(counts))
		if d.evidence.IsCandidateVariant(sample, p) {
			isVariant = true
			if counts.Extent > extent {
				extent = counts.Extent
			}
		}
	}

	if d.variantCount > 0 && p-d.prevVariantPos > d.config.MaxDistanceBetweenTwoVariants {
		d.closeRun()
		d.anchor = p
	}
	// a flushed region may extend beyond the positions seen so far
	if !isVariant || (d.variantCount == 0 && p <= d.prevRegionEnd) {
		if d.variantCount == 0 {
			d.anchor = p + 1
		}
		return
	}
	if d.variantCount == 0 {
		d.regionStart = d.anchor
		if d.regionStart <= d.prevRegionEnd {
			d.regionStart = d.prevRegionEnd + 1
		}
		if d.regionStart < 0 || d.regionStart > p {
			d.regionStart = p
		}
	}
	d.variantCount++
	d.prevVariantPos = p
	d.anchor = p + 1
	if extent > d.maxExtent {
		d.maxExtent = extent
	}
}

// Flush closes a run of variants that is still open, for example at
// the end of a contig.
func (d *Detector) Flush() {
	if d.variantCount > 0 {
		d.closeRun()
	}
}

// RetainFrom returns the first position whose state may still be
// needed to detect or resolve regions that are not closed yet.
// Evicting before this position is safe.
func (d *Detector) RetainFrom() int32 {
	if d.isBeginning {
		return d.ref.Start()
	}
	from := d.lastPos + 1
	if d.anchor >= 0 && d.anchor < from {
		from = d.anchor
	}
	if d.variantCount > 0 && d.regionStart < from {
		from = d.regionStart
	}
	return from - d.config.HaplotypePadding
}

func (d *Detector) closeRun() {
	defer func() {
		d.regionStart = -1
		d.variantCount = 0
		d.maxExtent = -1
	}()
	if d.variantCount < d.config.MinNumVariantsPerRegion {
		return
	}
	end := d.prevVariantPos
	if extent := d.maxExtent; extent > end {
		if limit := end + d.config.MaxRegionExtension; extent > limit {
			extent = limit
		}
		end = extent
	}
	if refEnd := d.ref.End(); end > refEnd {
		end = refEnd
	}
	if span := end - d.regionStart + 1; span > d.config.MaxBufferSize {
		log.Panicf("active region %v:%v-%v spans %v positions, more than max-buffer-size %v",
			*d.contig, d.regionStart, end, span, d.config.MaxBufferSize)
	}
	region := &Region{
		ID:     d.nextID,
		Contig: d.contig,
		Start:  d.regionStart,
		End:    end,
	}
	d.nextID++
	d.prevRegionEnd = end
	d.resolve(region)
	for p := region.Start; p <= region.End; p++ {
		d.regionIDs.set(p, region.ID)
	}
	d.regions = dropRegionsBefore(d.regions, d.lastPos-d.config.MaxBufferSize+1)
	d.regions = append(d.regions, region)
	d.closed = append(d.closed, region)
}

// TakeRegions returns the regions closed since the previous call, in
// increasing order of their ids.
func (d *Detector) TakeRegions() []*Region {
	closed := d.closed
	d.closed = nil
	return closed
}

// GetActiveRegionID returns the id of the active region covering pos,
// or NoRegion if there is none or pos has been evicted.
func (d *Detector) GetActiveRegionID(pos int32) RegionID {
	return d.regionIDs.get(pos)
}

// GetRegion returns the active region with the given id, and false if
// it is unknown or has been evicted.
func (d *Detector) GetRegion(id RegionID) (*Region, bool) {
	if len(d.regions) == 0 {
		return nil, false
	}
	index := id - d.regions[0].ID
	if index < 0 || index >= RegionID(len(d.regions)) {
		return nil, false
	}
	return d.regions[index], true
}

// IsPolymorphicSite determines whether the reads of a sample
// consistently show a non-reference allele at pos. It returns false
// for positions that have not been scanned yet or have been evicted.
func (d *Detector) IsPolymorphicSite(sample int, pos int32) bool {
	return d.polySites[sample].test(pos)
}

// GetHaplotypeID returns the haplotype that an observation of the
// given base at pos in a sample belongs to, or NoHaplotype.
func (d *Detector) GetHaplotypeID(sample int, pos int32, baseIndex int) HaplotypeID {
	return d.haplotypes[sample].get(pos, baseIndex)
}

func dropRegionsBefore(regions []*Region, pos int32) []*Region {
	i := 0
	for i < len(regions) && regions[i].End < pos {
		regions[i] = nil
		i++
	}
	return regions[i:]
}

// ClearPosToActiveRegionMap removes the region ids of all positions
// before pos, and forgets the regions that end before pos.
func (d *Detector) ClearPosToActiveRegionMap(pos int32) {
	d.regionIDs.clear(pos)
	d.regions = dropRegionsBefore(d.regions, pos)
}

// ClearReadBuffer removes the evidence of all positions before pos.
func (d *Detector) ClearReadBuffer(pos int32) {
	d.evidence.Clear(pos)
}

// ClearPolySites removes the polymorphic sites before pos.
func (d *Detector) ClearPolySites(pos int32) {
	for _, sites := range d.polySites {
		sites.clear(pos)
	}
}

// Evict removes all state of the positions before pos.
func (d *Detector) Evict(pos int32) {
	d.ClearPosToActiveRegionMap(pos)
	d.ClearReadBuffer(pos)
	d.ClearPolySites(pos)
	for _, store := range d.haplotypes {
		store.clear(pos)
	}
	d.evidence.Indels().Clear(pos)
}

// Clear resets the detector, its evidence, and its indel buffer to
// the state before the scan.
func (d *Detector) Clear() {
	d.resetTracker()
	d.regionIDs.clearAll()
	for i := range d.polySites {
		d.polySites[i].clearAll()
		d.haplotypes[i].clearAll()
	}
	d.regions = nil
	d.closed = nil
	d.evidence.Reset()
	d.evidence.Indels().Reset()
}
