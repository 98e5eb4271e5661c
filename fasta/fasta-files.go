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

package fasta

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log"

	"github.com/exascience/elactive/internal"
	"github.com/exascience/elactive/utils"
)

// A Provider gives access to the sequences of the contigs of a
// reference.
type Provider interface {
	// Seq returns the sequence for the given contig, or nil if the
	// contig is unknown.
	Seq(contig string) []byte
}

// Fasta is an in-memory reference, mapping contig names to sequences.
type Fasta map[string][]byte

// Seq returns the sequence for the given contig.
func (fasta Fasta) Seq(contig string) []byte {
	return fasta[contig]
}

var iupacUpperTable = map[byte]byte{
	'A': 'A', 'a': 'A',
	'C': 'C', 'c': 'C',
	'G': 'G', 'g': 'G',
	'T': 'T', 't': 'T',
	'N': 'N', 'n': 'N',
	'R': 'N', 'r': 'N',
	'Y': 'N', 'y': 'N',
	'M': 'N', 'm': 'N',
	'K': 'N', 'k': 'N',
	'W': 'N', 'w': 'N',
	'S': 'N', 's': 'N',
	'B': 'N', 'b': 'N',
	'D': 'N', 'd': 'N',
	'H': 'N', 'h': 'N',
	'V': 'N', 'v': 'N',
}

// ToUpperAndN normalizes ambiguity codes in FASTA references to N,
// and converts all codes to upper case.
func ToUpperAndN(base byte) byte {
	if n, ok := iupacUpperTable[base]; ok {
		return n
	}
	return base
}

func contigFromHeader(b []byte) string {
	b = bytes.TrimLeft(b[1:], " \t")
	if i := bytes.IndexAny(b, " \t"); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// ReadFasta sequentially parses FASTA contents. All bases are
// normalized with ToUpperAndN, so that reference bases can be compared
// to read bases directly.
func ReadFasta(r io.Reader) (Fasta, error) {
	reader := bufio.NewReader(r)
	fasta := make(Fasta)
	var contig string
	var seq []byte
	seen := false
	for lineNr := 1; ; lineNr++ {
		line, err := reader.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			// sequence lines longer than the buffer are handled in pieces
			full := append([]byte(nil), line...)
			for err == bufio.ErrBufferFull {
				line, err = reader.ReadSlice('\n')
				full = append(full, line...)
			}
			line = full
		}
		if err != nil && err != io.EOF {
			return nil, err
		}
		line = bytes.TrimRight(line, "\r\n")
		switch {
		case len(line) == 0:
		case line[0] == '>':
			if seen {
				fasta[contig] = seq
			}
			contig = contigFromHeader(line)
			seq = nil
			seen = true
		case line[0] == ';':
		default:
			if !seen {
				return nil, fmt.Errorf("invalid fasta contents - sequence data before first header in line %v", lineNr)
			}
			for _, c := range line {
				seq = append(seq, ToUpperAndN(c))
			}
		}
		if err == io.EOF {
			break
		}
	}
	if !seen {
		return nil, fmt.Errorf("empty fasta contents")
	}
	fasta[contig] = seq
	return fasta, nil
}

// ParseFasta parses a FASTA file, which may be gzip or bgzf
// compressed.
func ParseFasta(filename string) Fasta {
	f := internal.FileOpen(filename)
	defer internal.Close(f)
	fasta, err := ReadFasta(utils.HandleGzip(bufio.NewReader(f)))
	if err != nil {
		log.Panicf("%v, while parsing fasta file %v", err, filename)
	}
	return fasta
}
