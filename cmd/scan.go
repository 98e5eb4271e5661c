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

package cmd

import (
	"fmt"
	"io"

	"github.com/biogo/hts/sam"

	"github.com/exascience/elactive/active"
	"github.com/exascience/elactive/evidence"
	"github.com/exascience/elactive/fasta"
)

type readSource interface {
	Next() (int, *sam.Record, error)
}

type polySite struct {
	pos    int32
	sample int
}

// A detectBatch holds the output of a contig scan that is complete
// and no longer needed by the detector.
type detectBatch struct {
	contig  string
	regions []*active.Region
	sites   []polySite
	indels  []evidence.Indel
}

func (batch *detectBatch) size() int {
	return len(batch.regions) + len(batch.sites) + len(batch.indels)
}

const maxBatchSize = 512

type scanOptions struct {
	config      detectConfig
	samples     int
	polySites   bool
	indels      bool
	keepRegions func(contig string, region *active.Region) bool
}

// A contigScan runs one detector over the reads of one contig.
type contigScan struct {
	options  *scanOptions
	contig   string
	segment  *fasta.Segment
	buffer   *evidence.Buffer
	detector *active.Detector
	reported int32 // positions before reported are collected
	lastEnd  int32
	batch    *detectBatch
	emit     func(*detectBatch)
}

func newContigScan(options *scanOptions, reference fasta.Provider, contig string, emit func(*detectBatch)) (*contigScan, error) {
	segment, ok := fasta.ContigSegment(reference, contig)
	if !ok {
		return nil, fmt.Errorf("contig %v is missing in the reference", contig)
	}
	indels := evidence.NewIndelBuffer()
	buffer := evidence.NewBuffer(segment, options.samples, options.config.Detector.MaxBufferSize, options.config.Evidence, indels)
	return &contigScan{
		options:  options,
		contig:   contig,
		segment:  segment,
		buffer:   buffer,
		detector: active.NewDetector(contig, segment, buffer, options.config.Detector),
		reported: segment.Start(),
		lastEnd:  segment.Start() - 1,
		batch:    &detectBatch{contig: contig},
		emit:     emit,
	}, nil
}

// collect moves everything before pos that the detector has finished
// into the current batch.
func (scan *contigScan) collect(pos int32) {
	if limit := scan.detector.LastPos() + 1; pos > limit {
		pos = limit
	}
	for _, region := range scan.detector.TakeRegions() {
		if scan.options.keepRegions == nil || scan.options.keepRegions(scan.contig, region) {
			scan.batch.regions = append(scan.batch.regions, region)
		}
	}
	if pos > scan.reported {
		if scan.options.polySites {
			for p := scan.reported; p < pos; p++ {
				for sample := 0; sample < scan.options.samples; sample++ {
					if scan.detector.IsPolymorphicSite(sample, p) {
						scan.batch.sites = append(scan.batch.sites, polySite{pos: p, sample: sample})
					}
				}
			}
		}
		if scan.options.indels {
			scan.batch.indels = append(scan.batch.indels, scan.buffer.Indels().Range(scan.reported, pos-1)...)
		}
		scan.reported = pos
	}
	if scan.batch.size() >= maxBatchSize {
		scan.flushBatch()
	}
}

func (scan *contigScan) flushBatch() {
	if scan.batch.size() > 0 {
		scan.emit(scan.batch)
		scan.batch = &detectBatch{contig: scan.contig}
	}
}

// advanceTo moves the detector to pos in steps small enough that
// the positions it passes are collected before their window slots
// are reused.
func (scan *contigScan) advanceTo(pos int32) {
	step := scan.options.config.Detector.MaxBufferSize / 4
	if step < 1 {
		step = 1
	}
	for last := scan.detector.LastPos(); last < pos; last = scan.detector.LastPos() {
		to := pos
		if last+step < to {
			to = last + step
		}
		scan.detector.AdvanceTo(to)
		retain := scan.detector.RetainFrom()
		scan.collect(retain)
		if retain > scan.reported {
			retain = scan.reported
		}
		scan.detector.Evict(retain)
	}
}

func (scan *contigScan) addRead(sample int, record *sam.Record) {
	scan.advanceTo(int32(record.Pos) - 1)
	if scan.buffer.AddRead(sample, record) {
		if end := int32(record.End()) - 1; end > scan.lastEnd {
			scan.lastEnd = end
		}
	}
}

func (scan *contigScan) finish() {
	config := scan.options.config.Detector
	to := scan.lastEnd + config.MaxDistanceBetweenTwoVariants + 1
	if end := scan.segment.End(); to > end {
		to = end
	}
	scan.advanceTo(to)
	scan.detector.Flush()
	scan.collect(scan.detector.LastPos() + 1)
	scan.flushBatch()
}

// scanReads runs the detectors over all reads of source, one contig
// at a time, and passes the results to emit in order.
func scanReads(source readSource, reference fasta.Provider, options *scanOptions, emit func(*detectBatch)) error {
	var scan *contigScan
	for {
		sample, record, err := source.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		if scan == nil || scan.contig != record.Ref.Name() {
			if scan != nil {
				scan.finish()
			}
			if scan, err = newContigScan(options, reference, record.Ref.Name(), emit); err != nil {
				return err
			}
		}
		scan.addRead(sample, record)
	}
	if scan != nil {
		scan.finish()
	}
	return nil
}
