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
	"bytes"
	"io"
	"testing"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
)

// newReferences returns references linked into a new coordinate
// sorted header.
func newReferences(t *testing.T, names ...string) ([]*sam.Reference, *sam.Header) {
	t.Helper()
	var refs []*sam.Reference
	for _, name := range names {
		ref, err := sam.NewReference(name, "", "", 10000, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		refs = append(refs, ref)
	}
	header, err := sam.NewHeader(nil, refs)
	if err != nil {
		t.Fatal(err)
	}
	header.SortOrder = sam.Coordinate
	return refs, header
}

func newMappedRecord(t *testing.T, name string, ref *sam.Reference, pos int, seq []byte) *sam.Record {
	t.Helper()
	cigar := []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, len(seq))}
	qual := bytes.Repeat([]byte{30}, len(seq))
	record, err := sam.NewRecord(name, ref, nil, pos, -1, 0, 60, cigar, seq, qual, nil)
	if err != nil {
		t.Fatal(err)
	}
	return record
}

type sliceReader struct {
	header  *sam.Header
	records []*sam.Record
}

func (r *sliceReader) Header() *sam.Header { return r.header }

func (r *sliceReader) Read() (*sam.Record, error) {
	if len(r.records) == 0 {
		return nil, io.EOF
	}
	record := r.records[0]
	r.records = r.records[1:]
	return record, nil
}

type position struct {
	sample int
	contig string
	pos    int
}

func drain(t *testing.T, m *readMerger) (result []position) {
	t.Helper()
	for {
		sample, record, err := m.Next()
		if err == io.EOF {
			return result
		} else if err != nil {
			t.Fatal(err)
		}
		result = append(result, position{sample, record.Ref.Name(), record.Pos})
	}
}

func TestReadMerger(t *testing.T) {
	refs0, header0 := newReferences(t, "chr1", "chr2")
	refs1, header1 := newReferences(t, "chr2", "chr1")
	seq := []byte("ACGTACGTAC")
	unmapped := newMappedRecord(t, "u", nil, -1, seq)
	unmapped.Flags |= sam.Unmapped
	in0 := &input{sample: 0, name: "s0", reader: &sliceReader{header0, []*sam.Record{
		newMappedRecord(t, "a", refs0[0], 10, seq),
		newMappedRecord(t, "b", refs0[0], 30, seq),
		newMappedRecord(t, "c", refs0[1], 5, seq),
	}}}
	// the second input lists chr2 first in its header, but only has
	// reads on chr1 before its reads on chr2
	in1 := &input{sample: 1, name: "s1", reader: &sliceReader{header1, []*sam.Record{
		newMappedRecord(t, "d", refs1[1], 10, seq),
		newMappedRecord(t, "e", refs1[1], 20, seq),
		newMappedRecord(t, "f", refs1[0], 1, seq),
		unmapped,
	}}}
	m, err := newReadMerger([]*input{in0, in1})
	if err != nil {
		t.Fatal(err)
	}
	if contigs := m.Contigs(); len(contigs) != 2 || contigs[0] != "chr1" || contigs[1] != "chr2" {
		t.Error("merger contigs failed")
	}
	expected := []position{
		{0, "chr1", 10}, {1, "chr1", 10}, {1, "chr1", 20}, {0, "chr1", 30},
		{1, "chr2", 1}, {0, "chr2", 5},
	}
	result := drain(t, m)
	if len(result) != len(expected) {
		t.Fatal("merged read count failed")
	}
	for i := range expected {
		if result[i] != expected[i] {
			t.Error("merge order failed at", i)
		}
	}
}

func TestReadMergerErrors(t *testing.T) {
	refs, header := newReferences(t, "chr1")
	seq := []byte("ACGTACGTAC")
	unsorted := &input{name: "unsorted", reader: &sliceReader{header, []*sam.Record{
		newMappedRecord(t, "a", refs[0], 30, seq),
		newMappedRecord(t, "b", refs[0], 10, seq),
	}}}
	m, err := newReadMerger([]*input{unsorted})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Next(); err == nil {
		t.Error("unsorted input failed")
	}

	_, other := newReferences(t, "chrX")
	missing := &input{sample: 1, name: "missing", reader: &sliceReader{other, nil}}
	first := &input{name: "first", reader: &sliceReader{header, nil}}
	if _, err := newReadMerger([]*input{first, missing}); err == nil {
		t.Error("missing contig failed")
	}
	if _, err := newReadMerger(nil); err == nil {
		t.Error("no inputs failed")
	}
}

func TestBamInput(t *testing.T) {
	refs, header := newReferences(t, "chr1")
	var buf bytes.Buffer
	w, err := bam.NewWriter(&buf, header, 1)
	if err != nil {
		t.Fatal(err)
	}
	seq := []byte("ACGTACGTAC")
	for i, pos := range []int{3, 7, 7, 12} {
		if err := w.Write(newMappedRecord(t, string(rune('a'+i)), refs[0], pos, seq)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	reader, err := bam.NewReader(&buf, 1)
	if err != nil {
		t.Fatal(err)
	}
	m, err := newReadMerger([]*input{{name: "in.bam", reader: reader}})
	if err != nil {
		t.Fatal(err)
	}
	result := drain(t, m)
	if len(result) != 4 || result[0].pos != 3 || result[3].pos != 12 || result[1].contig != "chr1" {
		t.Error("bam input failed")
	}
	if err := m.Close(); err != nil {
		t.Error(err)
	}
}

func TestSampleName(t *testing.T) {
	if sampleName("/data/NA12878.bam") != "NA12878" || sampleName("s1.sam.gz") != "s1" || sampleName("s2.sam") != "s2" {
		t.Error("sampleName failed")
	}
}
