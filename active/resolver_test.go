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
	"math/rand"
	"strconv"
	"testing"

	"github.com/biogo/hts/sam"

	"github.com/exascience/elactive/evidence"
	"github.com/exascience/elactive/fasta"
)

func randomReference(n int) *fasta.Segment {
	r := rand.New(rand.NewSource(7))
	seq := make([]byte, n)
	for i := range seq {
		seq[i] = "ACGT"[r.Intn(4)]
	}
	return fasta.NewSegment("chr2", 0, seq)
}

func altBase(base byte) byte {
	if base == 'A' {
		return 'C'
	}
	return 'A'
}

type testRead struct {
	pos   int
	cigar string
	seq   []byte
}

func newTestRecord(t *testing.T, name string, read testRead) *sam.Record {
	cigar, err := sam.ParseCigar([]byte(read.cigar))
	if err != nil {
		t.Fatal(err)
	}
	return &sam.Record{
		Name:  name,
		Pos:   read.pos,
		MapQ:  60,
		Cigar: cigar,
		Seq:   sam.NewSeq(read.seq),
	}
}

// snpReads returns 4 reference reads and 6 reads with alternative
// bases at 100 and 105.
func snpReads(ref *fasta.Segment) (reads []testRead) {
	for i := 0; i < 10; i++ {
		seq := ref.Slice(60, 139)
		if i%5 != 0 && i%5 != 3 {
			seq[100-60] = altBase(seq[100-60])
			seq[105-60] = altBase(seq[105-60])
		}
		reads = append(reads, testRead{60, "80M", seq})
	}
	return reads
}

func runDetector(t *testing.T, d *Detector, buffer *evidence.Buffer, sample int, reads []testRead) []*Region {
	for i, read := range reads {
		d.AdvanceTo(int32(read.pos - 1))
		buffer.AddRead(sample, newTestRecord(t, "read"+strconv.Itoa(i), read))
	}
	d.AdvanceTo(400)
	d.Flush()
	return d.TakeRegions()
}

func TestResolveSNPs(t *testing.T) {
	ref := randomReference(500)
	indels := evidence.NewIndelBuffer()
	buffer := evidence.NewBuffer(ref, 1, MaxBufferSize, evidence.DefaultConfig(), indels)
	d := NewDetector("chr2", ref, buffer, DefaultConfig())
	regions := runDetector(t, d, buffer, 0, snpReads(ref))
	if len(regions) != 1 || regions[0].Start != 100 || regions[0].End != 105 {
		t.Fatal("SNP region failed")
	}
	haplotypes := regions[0].Haplotypes
	if len(haplotypes) != 2 {
		t.Fatal("SNP haplotypes failed")
	}
	if haplotypes[0].ID != NoHaplotype || haplotypes[0].Support != 4 || haplotypes[0].Observed != 4 {
		t.Error("reference haplotype failed")
	}
	if haplotypes[1].ID != 1 || haplotypes[1].Support != 6 || len(haplotypes[1].Events) != 2 {
		t.Error("alternative haplotype failed")
	}
	refBase, alt := ref.Base(100), altBase(ref.Base(100))
	if d.GetHaplotypeID(0, 100, evidence.BaseIndex(alt)) != 1 {
		t.Error("alternative haplotype id failed")
	}
	if d.GetHaplotypeID(0, 100, evidence.BaseIndex(refBase)) != NoHaplotype {
		t.Error("reference haplotype id failed")
	}
	if d.GetHaplotypeID(0, 150, evidence.BaseIndex(ref.Base(150))) != NoHaplotype {
		t.Error("haplotype id outside region failed")
	}
	if !d.IsPolymorphicSite(0, 100) || !d.IsPolymorphicSite(0, 105) || d.IsPolymorphicSite(0, 102) {
		t.Error("polymorphic sites failed")
	}
}

func TestResolveDeletion(t *testing.T) {
	ref := randomReference(500)
	var reads []testRead
	for i := 0; i < 10; i++ {
		if i < 4 {
			reads = append(reads, testRead{160, "82M", ref.Slice(160, 241)})
			continue
		}
		seq := append(ref.Slice(160, 199), ref.Slice(202, 241)...)
		seq[43] = altBase(seq[43])
		reads = append(reads, testRead{160, "40M2D40M", seq})
	}
	indels := evidence.NewIndelBuffer()
	buffer := evidence.NewBuffer(ref, 1, MaxBufferSize, evidence.DefaultConfig(), indels)
	d := NewDetector("chr2", ref, buffer, DefaultConfig())
	regions := runDetector(t, d, buffer, 0, reads)
	if len(regions) != 1 || regions[0].Start != 200 || regions[0].End != 205 {
		t.Fatal("deletion region failed")
	}
	data, ok := indels.Get(evidence.IndelKey{Pos: 200, Type: evidence.Delete, Length: 2})
	if !ok || data.Count != 6 || data.Confirmed != 1 {
		t.Error("deletion confirmation failed")
	}
	if len(regions[0].Haplotypes) != 2 || regions[0].Haplotypes[1].Support != 6 {
		t.Error("deletion haplotype failed")
	}
}

func TestResolveDeterminism(t *testing.T) {
	ref := randomReference(500)
	reads := snpReads(ref)
	var expected []HaplotypeID
	for _, parallel := range []bool{true, false, true} {
		config := DefaultConfig()
		config.ParallelAlignment = parallel
		buffer := evidence.NewBuffer(ref, 1, MaxBufferSize, evidence.DefaultConfig(), evidence.NewIndelBuffer())
		d := NewDetector("chr2", ref, buffer, config)
		for round := 0; round < 2; round++ {
			runDetector(t, d, buffer, 0, reads)
			var ids []HaplotypeID
			for pos := int32(100); pos <= 105; pos++ {
				for base := 0; base < evidence.NumBases; base++ {
					ids = append(ids, d.GetHaplotypeID(0, pos, base))
				}
			}
			if expected == nil {
				expected = ids
			} else {
				for i := range ids {
					if ids[i] != expected[i] {
						t.Fatal("resolution determinism failed")
					}
				}
			}
			d.Clear()
		}
	}
}

func TestSelectCandidates(t *testing.T) {
	candidates := []*candidate{{observed: 1}, {observed: 1}, {observed: 5}, {observed: 3}, {observed: 5}}
	selected := selectCandidates(candidates, 3)
	if len(selected) != 3 || selected[0] != candidates[0] || selected[1] != candidates[2] || selected[2] != candidates[4] {
		t.Error("selectCandidates failed")
	}
	for i, c := range selected {
		if c.id != HaplotypeID(i) {
			t.Error("selectCandidates ids failed")
		}
	}
}

func TestApplyEvents(t *testing.T) {
	ref := []byte("ACGTACGTAC")
	seq := applyEvents(ref, 100, []evidence.Event{
		{Pos: 101, Type: evidence.Mismatch, Length: 1, Seq: "T"},
		{Pos: 101, Type: evidence.Insert, Length: 2, Seq: "GG"},
		{Pos: 104, Type: evidence.Delete, Length: 2},
	})
	if string(seq) != "ATGGGTGTAC" {
		t.Error("applyEvents failed:", string(seq))
	}
	if string(applyEvents(ref, 100, nil)) != string(ref) {
		t.Error("applyEvents without events failed")
	}
}
