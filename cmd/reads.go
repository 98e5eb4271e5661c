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
	"bufio"
	"container/heap"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"

	"github.com/exascience/elactive/internal"
	"github.com/exascience/elactive/utils"
)

type recordReader interface {
	Header() *sam.Header
	Read() (*sam.Record, error)
}

// An input is one coordinate-sorted SAM or BAM file of one sample.
type input struct {
	sample int
	name   string
	reader recordReader
	file   *os.File
	rank   []int // contig rank by reference id of this input's header
	next   *sam.Record
	prev   struct{ rank, pos int }
}

func sampleName(filename string) string {
	base := filepath.Base(filename)
	for _, ext := range []string{".gz", ".bam", ".sam"} {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

func openInput(sample int, filename string) (*input, error) {
	file := internal.FileOpen(filename)
	var reader recordReader
	var err error
	if strings.HasSuffix(filename, ".bam") {
		reader, err = bam.NewReader(file, 1)
	} else {
		reader, err = sam.NewReader(utils.HandleGzip(bufio.NewReader(file)))
	}
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%v: %w", filename, err)
	}
	return &input{sample: sample, name: filename, reader: reader, file: file}, nil
}

func (in *input) close() error {
	if r, ok := in.reader.(*bam.Reader); ok {
		if err := r.Close(); err != nil {
			_ = in.file.Close()
			return err
		}
	}
	if in.file == nil {
		return nil
	}
	return in.file.Close()
}

// advance reads the next mapped record of the input, or sets next to
// nil at the end of the input.
func (in *input) advance() error {
	for {
		record, err := in.reader.Read()
		if err == io.EOF {
			in.next = nil
			return nil
		} else if err != nil {
			return fmt.Errorf("%v: %w", in.name, err)
		}
		if record.Ref == nil || record.Pos < 0 {
			continue
		}
		rank, pos := in.rank[record.Ref.ID()], record.Pos
		if rank < in.prev.rank || (rank == in.prev.rank && pos < in.prev.pos) {
			return fmt.Errorf("%v is not sorted by coordinate at read %v", in.name, record.Name)
		}
		in.prev.rank, in.prev.pos = rank, pos
		in.next = record
		return nil
	}
}

type inputHeap []*input

func (h inputHeap) Len() int { return len(h) }

func (h inputHeap) Less(i, j int) bool {
	ri, rj := h[i].rank[h[i].next.Ref.ID()], h[j].rank[h[j].next.Ref.ID()]
	if ri != rj {
		return ri < rj
	}
	if pi, pj := h[i].next.Pos, h[j].next.Pos; pi != pj {
		return pi < pj
	}
	return h[i].sample < h[j].sample
}

func (h inputHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *inputHeap) Push(x interface{}) { *h = append(*h, x.(*input)) }

func (h *inputHeap) Pop() interface{} {
	old := *h
	n := len(old) - 1
	in := old[n]
	old[n] = nil
	*h = old[:n]
	return in
}

// A readMerger merges the reads of several samples by contig order of
// the first input, position, and sample.
type readMerger struct {
	inputs  []*input
	contigs []string
	heap    inputHeap
}

func newReadMerger(inputs []*input) (*readMerger, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input files")
	}
	m := &readMerger{inputs: inputs}
	ranks := make(map[string]int)
	for i, ref := range inputs[0].reader.Header().Refs() {
		m.contigs = append(m.contigs, ref.Name())
		ranks[ref.Name()] = i
	}
	for _, in := range inputs {
		refs := in.reader.Header().Refs()
		in.rank = make([]int, len(refs))
		for i, ref := range refs {
			rank, ok := ranks[ref.Name()]
			if !ok {
				return nil, fmt.Errorf("contig %v of %v is missing in the header of %v", ref.Name(), in.name, inputs[0].name)
			}
			in.rank[i] = rank
		}
		if err := in.advance(); err != nil {
			return nil, err
		}
		if in.next != nil {
			m.heap = append(m.heap, in)
		}
	}
	heap.Init(&m.heap)
	return m, nil
}

// Contigs returns the contig names in the order reads are produced.
func (m *readMerger) Contigs() []string {
	return m.contigs
}

// Next returns the next read and its sample, or io.EOF.
func (m *readMerger) Next() (int, *sam.Record, error) {
	if len(m.heap) == 0 {
		return 0, nil, io.EOF
	}
	in := m.heap[0]
	record := in.next
	if err := in.advance(); err != nil {
		return 0, nil, err
	}
	if in.next == nil {
		heap.Pop(&m.heap)
	} else {
		heap.Fix(&m.heap, 0)
	}
	return in.sample, record, nil
}

func (m *readMerger) Close() (err error) {
	for _, in := range m.inputs {
		if nerr := in.close(); err == nil {
			err = nerr
		}
	}
	return err
}
