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
	"log"

	"github.com/biogo/hts/sam"
)

// Counts summarizes the reads of one sample at one position.
type Counts struct {
	Depth, Anomalous, NonRef int32
	Types                    [NumVariantTypes]int32
	// Extent is the last position needed to represent the indels and
	// soft clips classified at this position.
	Extent int32
}

type sampleEvidence struct {
	counts []Counts
	owner  []int32
	reads  []*Read
}

// A Buffer collects the evidence of the reads of all samples over a
// sliding window of positions on one contig.
type Buffer struct {
	config    Config
	ref       Reference
	size      int32
	samples   []sampleEvidence
	indels    *IndelBuffer
	low, high int32
	lastStart int32
}

// NewBuffer returns a buffer for the given number of samples with a
// window of size positions. Indel candidates are recorded in indels.
func NewBuffer(ref Reference, sampleCount int, size int32, config Config, indels *IndelBuffer) *Buffer {
	if err := config.Validate(); err != nil {
		log.Panic(err)
	}
	if size <= config.MaxIndelSize {
		log.Panicf("buffer size %v must be larger than the maximum indel size %v", size, config.MaxIndelSize)
	}
	buffer := &Buffer{
		config:  config,
		ref:     ref,
		size:    size,
		samples: make([]sampleEvidence, sampleCount),
		indels:  indels,
	}
	for i := range buffer.samples {
		buffer.samples[i].counts = make([]Counts, size)
		buffer.samples[i].owner = make([]int32, size)
	}
	buffer.Reset()
	return buffer
}

func (buffer *Buffer) slot(pos int32) int {
	return int(((pos % buffer.size) + buffer.size) % buffer.size)
}

// SampleCount returns the number of samples.
func (buffer *Buffer) SampleCount() int {
	return len(buffer.samples)
}

// MaxIndelSize returns the largest recorded indel size.
func (buffer *Buffer) MaxIndelSize() int32 {
	return buffer.config.MaxIndelSize
}

// Indels returns the indel buffer.
func (buffer *Buffer) Indels() *IndelBuffer {
	return buffer.indels
}

// AddRead adds a read of the given sample. Reads must be added in
// non-decreasing order of their start positions. It returns false if
// the read is filtered out.
func (buffer *Buffer) AddRead(sample int, record *sam.Record) bool {
	if !buffer.config.Usable(record) {
		return false
	}
	read, types := NewRead(sample, record, buffer.ref)
	if read.Start < buffer.lastStart {
		log.Panicf("read %v at position %v added after a read at position %v", read.Name, read.Start, buffer.lastStart)
	}
	if span := read.End - read.Start + 1; span > buffer.size-buffer.config.MaxIndelSize {
		log.Panicf("read %v spans %v positions, which does not fit a buffer of size %v with maximum indel size %v",
			read.Name, span, buffer.size, buffer.config.MaxIndelSize)
	}
	buffer.lastStart = read.Start
	if read.End > buffer.high {
		buffer.high = read.End
	}

	evidence := &buffer.samples[sample]
	for i, t := range types {
		pos := read.Start + int32(i)
		slot := buffer.slot(pos)
		if evidence.owner[slot] != pos {
			evidence.counts[slot] = Counts{}
			evidence.owner[slot] = pos
		}
		counts := &evidence.counts[slot]
		counts.Depth++
		counts.Types[t]++
		if t.IsAnomalous() {
			counts.Anomalous++
		}
		if t.IsNonReference() {
			counts.NonRef++
		}
	}
	for _, event := range read.Events {
		if event.Type == Mismatch {
			continue
		}
		pos := event.Pos
		if pos < read.Start {
			pos = read.Start
		}
		if counts := &evidence.counts[buffer.slot(pos)]; counts.Extent < event.Extent() {
			counts.Extent = event.Extent()
		}
		if (event.Type == Insert || event.Type == Delete) && event.Length <= buffer.config.MaxIndelSize {
			buffer.indels.AddIndel(KeyOf(event))
		}
	}

	// reads that fell out of the window
	if low := buffer.high - buffer.size + 1; low > buffer.low {
		evidence.reads = dropReadsBefore(evidence.reads, low)
	}
	evidence.reads = append(evidence.reads, read)
	return true
}

func dropReadsBefore(reads []*Read, pos int32) []*Read {
	i := 0
	for _, read := range reads {
		if read.End >= pos {
			reads[i] = read
			i++
		}
	}
	for j := i; j < len(reads); j++ {
		reads[j] = nil
	}
	return reads[:i]
}

func (buffer *Buffer) inWindow(pos int32) bool {
	return pos >= buffer.low && pos > buffer.high-buffer.size
}

// Counts returns the counts of a sample at a position, or zero counts
// when the position is outside of the window.
func (buffer *Buffer) Counts(sample int, pos int32) Counts {
	if !buffer.inWindow(pos) {
		return Counts{}
	}
	evidence := &buffer.samples[sample]
	if slot := buffer.slot(pos); evidence.owner[slot] == pos {
		return evidence.counts[slot]
	}
	return Counts{}
}

// IsCandidate determines whether the given counts indicate a
// candidate variant.
func (config Config) IsCandidate(counts Counts) bool {
	return counts.Anomalous > 0 &&
		(counts.Anomalous >= config.MinCandidateCount ||
			float64(counts.Anomalous) >= config.MinCandidateFraction*float64(counts.Depth))
}

// IsCandidateVariant determines whether the reads of the given sample
// show enough anomalies at pos to consider it a variant.
func (buffer *Buffer) IsCandidateVariant(sample int, pos int32) bool {
	return buffer.config.IsCandidate(buffer.Counts(sample, pos))
}

// Reads returns the retained reads of a sample that overlap the
// closed range [start, end], in the order they were added.
func (buffer *Buffer) Reads(sample int, start, end int32) (result []*Read) {
	for _, read := range buffer.samples[sample].reads {
		if read.Start > end {
			break
		}
		if read.End >= start {
			result = append(result, read)
		}
	}
	return result
}

// Clear removes all evidence before pos.
func (buffer *Buffer) Clear(pos int32) {
	if pos <= buffer.low {
		return
	}
	from := buffer.low
	if from < pos-buffer.size {
		from = pos - buffer.size
	}
	for i := range buffer.samples {
		evidence := &buffer.samples[i]
		for p := from; p < pos; p++ {
			if slot := buffer.slot(p); evidence.owner[slot] == p {
				evidence.counts[slot] = Counts{}
				evidence.owner[slot] = -1
			}
		}
		evidence.reads = dropReadsBefore(evidence.reads, pos)
	}
	buffer.low = pos
}

// Reset removes all evidence and restores the initial state.
func (buffer *Buffer) Reset() {
	for i := range buffer.samples {
		evidence := &buffer.samples[i]
		for slot := range evidence.owner {
			evidence.counts[slot] = Counts{}
			evidence.owner[slot] = -1
		}
		evidence.reads = nil
	}
	buffer.low, buffer.high, buffer.lastStart = 0, 0, 0
}
