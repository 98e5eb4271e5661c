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

package align

import (
	"math/rand"
	"testing"

	"github.com/biogo/hts/sam"
)

func checkAlignment(t *testing.T, name string, a Aligner, query, ref string, score, offset int32, cigar string) {
	t.Helper()
	result := a.Align([]byte(query), []byte(ref))
	if result.Score != score {
		t.Errorf("%v failed: score %v, expected %v", name, result.Score, score)
	}
	if result.RefOffset != offset {
		t.Errorf("%v failed: offset %v, expected %v", name, result.RefOffset, offset)
	}
	if cigar != "" && result.Cigar.String() != cigar {
		t.Errorf("%v failed: cigar %v, expected %v", name, result.Cigar, cigar)
	}
	refLen, queryLen := result.Cigar.Lengths()
	if queryLen != len(query) {
		t.Errorf("%v failed: cigar covers %v query bases, expected %v", name, queryLen, len(query))
	}
	if int(result.RefOffset)+refLen > len(ref) {
		t.Errorf("%v failed: alignment ends beyond the reference", name)
	}
}

func TestAlign(t *testing.T) {
	for _, a := range []*GlobalAligner{
		NewGlobalAligner(DefaultScores(), DefaultBand),
		NewGlobalAligner(DefaultScores(), -1),
	} {
		checkAlignment(t, "identical", a, "ACGTACGTAC", "ACGTACGTAC", 10, 0, "10M")
		checkAlignment(t, "contained", a, "ACGTACGT", "GGGACGTACGTCCC", 8, 3, "8M")
		checkAlignment(t, "mismatch", a, "ACGTTCGTAC", "ACGTACGTAC", 5, 0, "10M")
	}
}

func TestAlignGaps(t *testing.T) {
	const ref = "GATTACAGGCTTCAGATC"
	a := NewGlobalAligner(DefaultScores(), DefaultBand)

	result := a.Align([]byte(ref[:8]+ref[10:]), []byte(ref))
	if result.Score != 9 {
		t.Error("deletion score failed")
	}
	deletions := 0
	for _, op := range result.Cigar {
		if op.Type() == sam.CigarDeletion {
			deletions += op.Len()
		}
	}
	if deletions != 2 {
		t.Error("deletion cigar failed")
	}

	checkAlignment(t, "insertion", a, ref[:8]+"AA"+ref[8:], ref, 11, 0, "")
	result = a.Align([]byte(ref[:8]+"AA"+ref[8:]), []byte(ref))
	insertions := 0
	for _, op := range result.Cigar {
		if op.Type() == sam.CigarInsertion {
			insertions += op.Len()
		}
	}
	if insertions != 2 {
		t.Error("insertion cigar failed")
	}
}

func TestAlignOffEdge(t *testing.T) {
	scores := DefaultScores()
	scores.OffEdge = -1
	a := NewGlobalAligner(scores, DefaultBand)
	checkAlignment(t, "leading off edge", a, "TTACGTACGTAC", "ACGTACGTAC", 9, 0, "2S10M")
	checkAlignment(t, "trailing off edge", a, "ACGTACGTACGG", "ACGTACGTAC", 9, 0, "10M2S")

	a = NewGlobalAligner(DefaultScores(), DefaultBand)
	result := a.Align([]byte("TTACGTACGTAC"), []byte("ACGTACGTAC"))
	if result.Score <= DefaultScores().OffEdge {
		t.Error("off edge penalty failed")
	}
	result = a.Align([]byte("ACGT"), nil)
	if result.Score != DefaultScores().OffEdge || result.Cigar.String() != "4S" {
		t.Error("empty reference failed")
	}
	if result = a.Align(nil, []byte("ACGT")); result.Score != 0 || len(result.Cigar) != 0 {
		t.Error("empty query failed")
	}
}

func randomSequence(n int) []byte {
	const bases = "ACGT"
	seq := make([]byte, n)
	for i := range seq {
		seq[i] = bases[rand.Intn(4)]
	}
	return seq
}

func TestBandedMatchesUnbanded(t *testing.T) {
	banded := NewGlobalAligner(DefaultScores(), DefaultBand)
	unbanded := NewGlobalAligner(DefaultScores(), -1)
	for i := 0; i < 50; i++ {
		ref := randomSequence(120)
		query := append([]byte(nil), ref[10:110]...)
		query = append(query[:40], query[43:]...)
		query[70] = 'N'
		r1, r2 := banded.Align(query, ref), unbanded.Align(query, ref)
		if r1.Score != r2.Score || r1.RefOffset != r2.RefOffset {
			t.Error("banded alignment failed")
		}
	}
}

func TestBandLimitsSearch(t *testing.T) {
	banded := NewGlobalAligner(DefaultScores(), 0)
	unbanded := NewGlobalAligner(DefaultScores(), -1)
	for i := 0; i < 50; i++ {
		query, ref := randomSequence(60), randomSequence(60)
		if banded.Align(query, ref).Score > unbanded.Align(query, ref).Score {
			t.Error("band limit failed")
		}
	}
}

func BenchmarkAlign(b *testing.B) {
	a := NewGlobalAligner(DefaultScores(), DefaultBand)
	ref := randomSequence(300)
	query := append([]byte(nil), ref[50:200]...)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a.Align(query, ref)
	}
}
