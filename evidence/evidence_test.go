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
	"strings"
	"testing"

	"github.com/biogo/hts/sam"

	"github.com/exascience/elactive/fasta"
)

var testReference = fasta.NewSegment("chr1", 0, []byte(strings.Repeat("ACGT", 100)))

func newRecord(t *testing.T, name string, pos int, cigar, seq string) *sam.Record {
	t.Helper()
	c, err := sam.ParseCigar([]byte(cigar))
	if err != nil {
		t.Fatal(err)
	}
	return &sam.Record{
		Name:  name,
		Pos:   pos,
		MapQ:  60,
		Cigar: c,
		Seq:   sam.NewSeq([]byte(seq)),
	}
}

func TestUsable(t *testing.T) {
	config := DefaultConfig()
	if !config.Usable(newRecord(t, "r1", 2, "4M", "GTAC")) {
		t.Error("Usable 1 failed")
	}
	record := newRecord(t, "r2", 2, "4M", "GTAC")
	record.Flags |= sam.Duplicate
	if config.Usable(record) {
		t.Error("Usable 2 failed")
	}
	record = newRecord(t, "r3", 2, "4M", "GTAC")
	record.MapQ = 5
	if config.Usable(record) {
		t.Error("Usable 3 failed")
	}
	if config.Usable(newRecord(t, "r4", 2, "2M10N2M", "GTAC")) {
		t.Error("Usable 4 failed")
	}
	if config.Usable(newRecord(t, "r5", 2, "4S", "GTAC")) {
		t.Error("Usable 5 failed")
	}
}

func TestNewRead(t *testing.T) {
	read, types := NewRead(0, newRecord(t, "r1", 2, "3M2I3M1D4M1S", "GTTCCCGTCGTAG"), testReference)
	if read.Start != 2 || read.End != 12 {
		t.Error("read span failed")
	}
	expectedTypes := []VariantType{
		Match, Match, MismatchInsert, Match, Match, Match, Delete, Match, Match, Match, SoftClip,
	}
	if len(types) != len(expectedTypes) {
		t.Fatal("classification length failed")
	}
	for i, typ := range types {
		if typ != expectedTypes[i] {
			t.Errorf("classification failed at %v: %v instead of %v", i+2, typ, expectedTypes[i])
		}
	}
	expectedEvents := []Event{
		{Pos: 4, Type: Mismatch, Length: 1, Seq: "T"},
		{Pos: 4, Type: Insert, Length: 2, Seq: "CC"},
		{Pos: 8, Type: Delete, Length: 1},
		{Pos: 12, Type: SoftClip, Length: 1},
	}
	if len(read.Events) != len(expectedEvents) {
		t.Fatal("events failed")
	}
	for i, event := range read.Events {
		if event != expectedEvents[i] {
			t.Errorf("event %v failed: %v", i, event)
		}
	}
	if got := string(read.Segment(2, 12)); got != "GTTCCCGTCGTA" {
		t.Error("Segment 1 failed:", got)
	}
	if got := string(read.Segment(5, 7)); got != "CGT" {
		t.Error("Segment 2 failed:", got)
	}
	if got := string(read.Segment(4, 5)); got != "TCCC" {
		t.Error("Segment 3 failed:", got)
	}
	if _, ok := read.Observed(8); ok {
		t.Error("Observed 1 failed")
	}
	if base, ok := read.Observed(4); !ok || base != 'T' {
		t.Error("Observed 2 failed")
	}
	if base, ok := read.Observed(9); !ok || base != 'C' {
		t.Error("Observed 3 failed")
	}
	if _, ok := read.Observed(13); ok {
		t.Error("Observed 4 failed")
	}
}

func TestLeadingSoftClip(t *testing.T) {
	read, types := NewRead(0, newRecord(t, "r1", 4, "2S4M", "TTACGT"), testReference)
	if read.Start != 4 || read.End != 7 || types[0] != SoftClip {
		t.Error("leading soft clip failed")
	}
	if len(read.Events) != 1 || read.Events[0].Type != SoftClip || read.Events[0].Pos != 4 {
		t.Error("leading soft clip event failed")
	}
}

func TestBuffer(t *testing.T) {
	indels := NewIndelBuffer()
	buffer := NewBuffer(testReference, 2, 100, DefaultConfig(), indels)
	if !buffer.AddRead(0, newRecord(t, "r1", 2, "3M2I3M1D4M1S", "GTTCCCGTCGTAG")) {
		t.Fatal("AddRead 1 failed")
	}
	if !buffer.AddRead(1, newRecord(t, "r2", 3, "5M", "TACGT")) {
		t.Fatal("AddRead 2 failed")
	}
	record := newRecord(t, "r3", 3, "5M", "TACGT")
	record.Flags |= sam.Unmapped
	if buffer.AddRead(1, record) {
		t.Error("AddRead 3 failed")
	}

	counts := buffer.Counts(0, 4)
	if counts.Depth != 1 || counts.Anomalous != 1 || counts.NonRef != 1 || counts.Types[MismatchInsert] != 1 || counts.Extent != 5 {
		t.Error("Counts 1 failed:", counts)
	}
	if counts = buffer.Counts(0, 8); counts.Types[Delete] != 1 || counts.Extent != 8 {
		t.Error("Counts 2 failed:", counts)
	}
	if counts = buffer.Counts(0, 12); counts.Types[SoftClip] != 1 || counts.NonRef != 0 || counts.Extent != 13 {
		t.Error("Counts 3 failed:", counts)
	}
	if counts = buffer.Counts(1, 4); counts.Depth != 1 || counts.Anomalous != 0 {
		t.Error("Counts 4 failed:", counts)
	}
	if !buffer.IsCandidateVariant(0, 4) || buffer.IsCandidateVariant(0, 3) || buffer.IsCandidateVariant(1, 4) {
		t.Error("IsCandidateVariant failed")
	}
	if len(buffer.Reads(0, 0, 1)) != 0 || len(buffer.Reads(0, 12, 20)) != 1 || len(buffer.Reads(1, 0, 20)) != 1 {
		t.Error("Reads failed")
	}
	if _, ok := indels.Get(IndelKey{Pos: 4, Type: Insert, Length: 2, Seq: "CC"}); !ok {
		t.Error("insertion candidate failed")
	}
	if _, ok := indels.Get(IndelKey{Pos: 8, Type: Delete, Length: 1}); !ok {
		t.Error("deletion candidate failed")
	}

	buffer.Clear(8)
	if buffer.Counts(0, 4).Depth != 0 || buffer.Counts(0, 9).Depth != 1 {
		t.Error("Clear 1 failed")
	}
	if len(buffer.Reads(1, 0, 20)) != 0 || len(buffer.Reads(0, 0, 20)) != 1 {
		t.Error("Clear 2 failed")
	}
	buffer.Reset()
	if buffer.Counts(0, 9).Depth != 0 || len(buffer.Reads(0, 0, 20)) != 0 {
		t.Error("Reset failed")
	}
}

func TestBufferWindow(t *testing.T) {
	buffer := NewBuffer(testReference, 1, 100, DefaultConfig(), NewIndelBuffer())
	buffer.AddRead(0, newRecord(t, "r1", 2, "4M", "GTAC"))
	buffer.AddRead(0, newRecord(t, "r2", 202, "4M", "GTAC"))
	if buffer.Counts(0, 2).Depth != 0 {
		t.Error("window eviction failed")
	}
	if buffer.Counts(0, 202).Depth != 1 {
		t.Error("window failed")
	}
	if len(buffer.Reads(0, 0, 300)) != 1 {
		t.Error("window reads failed")
	}
}

func expectPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Error(name, "failed")
		}
	}()
	f()
}

func TestBufferContract(t *testing.T) {
	buffer := NewBuffer(testReference, 1, 100, DefaultConfig(), NewIndelBuffer())
	buffer.AddRead(0, newRecord(t, "r1", 10, "4M", "GTAC"))
	expectPanic(t, "non-monotonic AddRead", func() {
		buffer.AddRead(0, newRecord(t, "r2", 5, "4M", "CGTA"))
	})
	expectPanic(t, "long read", func() {
		buffer.AddRead(0, newRecord(t, "r3", 12, "60M", strings.Repeat("ACGT", 15)))
	})
	expectPanic(t, "small buffer", func() {
		NewBuffer(testReference, 1, 50, DefaultConfig(), NewIndelBuffer())
	})
}

func TestIndelBuffer(t *testing.T) {
	indels := NewIndelBuffer()
	deletion := IndelKey{Pos: 20, Type: Delete, Length: 3}
	insertion := IndelKey{Pos: 10, Type: Insert, Length: 1, Seq: "A"}
	indels.AddIndel(deletion)
	indels.AddIndel(deletion)
	indels.AddIndel(insertion)
	indels.ConfirmIndel(deletion)
	indels.ConfirmIndel(IndelKey{Pos: 30, Type: Delete, Length: 1})
	if data, _ := indels.Get(deletion); data.Count != 2 || data.Confirmed != 1 {
		t.Error("IndelBuffer counts failed")
	}
	if data, ok := indels.Get(IndelKey{Pos: 30, Type: Delete, Length: 1}); !ok || data.Count != 0 || data.Confirmed != 1 {
		t.Error("ConfirmIndel failed")
	}
	r := indels.Range(0, 25)
	if len(r) != 2 || r[0].IndelKey != insertion || r[1].IndelKey != deletion {
		t.Error("Range failed")
	}
	indels.Clear(15)
	if indels.Len() != 2 {
		t.Error("Clear failed")
	}
	indels.Reset()
	if indels.Len() != 0 {
		t.Error("Reset failed")
	}
}

func TestBaseIndex(t *testing.T) {
	for i, base := range []byte("ACGTN") {
		if BaseIndex(base) != i {
			t.Error("BaseIndex failed")
		}
	}
	if BaseIndex('x') != 4 || BaseIndex('g') != 2 {
		t.Error("BaseIndex other failed")
	}
}

func TestConfig(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Error("DefaultConfig failed")
	}
	config := DefaultConfig()
	config.MinCandidateFraction = 1.5
	if config.Validate() == nil {
		t.Error("Validate failed")
	}
	config = DefaultConfig()
	if config.IsCandidate(Counts{Depth: 100, Anomalous: 5}) ||
		!config.IsCandidate(Counts{Depth: 100, Anomalous: 9}) ||
		!config.IsCandidate(Counts{Depth: 10, Anomalous: 2}) ||
		config.IsCandidate(Counts{Depth: 10}) {
		t.Error("IsCandidate failed")
	}
}
