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
	"bytes"
	"sort"

	"github.com/exascience/pargo/parallel"
	"github.com/minio/highwayhash"

	"github.com/exascience/elactive/evidence"
)

var candidateKey = []byte("elactive-haplotype-candidate-key")

type candidate struct {
	seq      []byte
	events   []evidence.Event
	observed int32
	support  int32
	id       HaplotypeID
}

// regionEvents selects the events of a read that change the sequence
// inside the region and fit in the padded window.
func regionEvents(read *evidence.Read, region *Region, winStart, winEnd int32) (events []evidence.Event) {
	for _, event := range read.Events {
		switch event.Type {
		case evidence.Mismatch, evidence.Insert, evidence.Delete:
		default:
			continue
		}
		if event.Pos < region.Start || event.Pos > region.End ||
			event.Pos < winStart || event.Extent() > winEnd {
			continue
		}
		events = append(events, event)
	}
	return events
}

// applyEvents builds the sequence of the window [winStart, ...] of
// refSeq with the given events applied. Events must be in reference
// order; events that overlap an earlier event are ignored.
func applyEvents(refSeq []byte, winStart int32, events []evidence.Event) []byte {
	seq := make([]byte, 0, len(refSeq))
	cursor := int32(0)
	for _, event := range events {
		pos := event.Pos - winStart
		switch event.Type {
		case evidence.Mismatch:
			if pos < cursor {
				continue
			}
			seq = append(seq, refSeq[cursor:pos]...)
			seq = append(seq, event.Seq...)
			cursor = pos + 1
		case evidence.Insert:
			if pos+1 < cursor {
				continue
			}
			seq = append(seq, refSeq[cursor:pos+1]...)
			seq = append(seq, event.Seq...)
			cursor = pos + 1
		case evidence.Delete:
			if pos < cursor {
				continue
			}
			seq = append(seq, refSeq[cursor:pos]...)
			cursor = pos + event.Length
		}
	}
	return append(seq, refSeq[cursor:]...)
}

type voteKey struct {
	sample    int
	pos       int32
	baseIndex int
}

// resolve assigns the reads overlapping a closed region to candidate
// haplotypes, and records the haplotype ids of their observations.
func (d *Detector) resolve(region *Region) {
	winStart, winEnd := region.Start-d.config.HaplotypePadding, region.End+d.config.HaplotypePadding
	if refStart := d.ref.Start(); winStart < refStart {
		winStart = refStart
	}
	if refEnd := d.ref.End(); winEnd > refEnd {
		winEnd = refEnd
	}
	refSeq := d.ref.Slice(winStart, winEnd)

	candidates := []*candidate{{seq: refSeq}}
	digests := map[uint64][]int{highwayhash.Sum64(refSeq, candidateKey): {0}}
	var reads []*evidence.Read
	for sample := 0; sample < d.evidence.SampleCount(); sample++ {
		for _, read := range d.evidence.Reads(sample, region.Start, region.End) {
			reads = append(reads, read)
			events := regionEvents(read, region, winStart, winEnd)
			if len(events) == 0 {
				candidates[0].observed++
				continue
			}
			seq := applyEvents(refSeq, winStart, events)
			digest := highwayhash.Sum64(seq, candidateKey)
			found := false
			for _, index := range digests[digest] {
				if bytes.Equal(candidates[index].seq, seq) {
					candidates[index].observed++
					found = true
					break
				}
			}
			if !found {
				digests[digest] = append(digests[digest], len(candidates))
				candidates = append(candidates, &candidate{seq: seq, events: events, observed: 1})
			}
		}
	}
	candidates = selectCandidates(candidates, d.config.MaxHaplotypes)

	assigned := make([]int, len(reads))
	alignRead := func(i int) {
		assigned[i] = -1
		segment := reads[i].Segment(winStart, winEnd)
		if len(segment) == 0 {
			return
		}
		best := int32(0)
		for index, c := range candidates {
			if score := d.aligner.Align(segment, c.seq).Score; assigned[i] < 0 || score > best {
				assigned[i], best = index, score
			}
		}
	}
	if d.config.ParallelAlignment && len(reads) > 1 {
		parallel.Range(0, len(reads), 0, func(low, high int) {
			for i := low; i < high; i++ {
				alignRead(i)
			}
		})
	} else {
		for i := range reads {
			alignRead(i)
		}
	}

	votes := make(map[voteKey][]int32)
	for i, read := range reads {
		index := assigned[i]
		if index < 0 {
			continue
		}
		candidates[index].support++
		start, end := read.Start, read.End
		if start < region.Start {
			start = region.Start
		}
		if end > region.End {
			end = region.End
		}
		for pos := start; pos <= end; pos++ {
			base, ok := read.Observed(pos)
			if !ok {
				continue
			}
			key := voteKey{read.Sample, pos, evidence.BaseIndex(base)}
			tally := votes[key]
			if tally == nil {
				tally = make([]int32, len(candidates))
				votes[key] = tally
			}
			tally[index]++
		}
	}
	for key, tally := range votes {
		winner := 0
		for index, count := range tally {
			if count > tally[winner] {
				winner = index
			}
		}
		d.haplotypes[key.sample].set(key.pos, key.baseIndex, candidates[winner].id)
	}

	indels := d.evidence.Indels()
	region.Haplotypes = make([]Haplotype, len(candidates))
	for index, c := range candidates {
		region.Haplotypes[index] = Haplotype{
			ID:       c.id,
			Seq:      c.seq,
			Events:   c.events,
			Observed: c.observed,
			Support:  c.support,
		}
		if c.support == 0 {
			continue
		}
		for _, event := range c.events {
			if event.Type == evidence.Insert || event.Type == evidence.Delete {
				indels.ConfirmIndel(evidence.KeyOf(event))
			}
		}
	}
}

// selectCandidates keeps the reference haplotype and the best
// supported alternatives, up to limit haplotypes in total, and numbers
// them in creation order.
func selectCandidates(candidates []*candidate, limit int) []*candidate {
	if len(candidates) > limit {
		alternatives := append([]*candidate(nil), candidates[1:]...)
		sort.SliceStable(alternatives, func(i, j int) bool {
			return alternatives[i].observed > alternatives[j].observed
		})
		keep := make(map[*candidate]bool, limit-1)
		for _, c := range alternatives[:limit-1] {
			keep[c] = true
		}
		selected := make([]*candidate, 1, limit)
		selected[0] = candidates[0]
		for _, c := range candidates[1:] {
			if keep[c] {
				selected = append(selected, c)
			}
		}
		candidates = selected
	}
	for index, c := range candidates {
		c.id = HaplotypeID(index)
	}
	return candidates
}
