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
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/exascience/elactive/internal"
)

// ElfastaMagic is the magic byte sequence that every .elfasta file starts with.
var ElfastaMagic = []byte{0x31, 0xFA, 0x57, 0xA1} // 31FA57A1 => ELFASTA1

// The header of an .elfasta file lists, after the magic bytes, one
// entry per contig: the contig name, a tab, and two fixed-size varint
// slots for the offset and the length of the contig sequence. A
// newline ends the header; the sequences follow back to back.
const slotSize = 2 * binary.MaxVarintLen64

// ToElfasta stores fasta data into an mmappable .elfasta file.
func ToElfasta(fasta Fasta, filename string) {
	contigs := make([]string, 0, len(fasta))
	headerSize := len(ElfastaMagic) + 1
	for contig := range fasta {
		contigs = append(contigs, contig)
		headerSize += len(contig) + 1 + slotSize
	}
	sort.Strings(contigs)

	file := internal.FileCreate(filename)
	defer internal.Close(file)
	out := bufio.NewWriter(file)
	write := func(p []byte) {
		if _, err := out.Write(p); err != nil {
			log.Panic(err)
		}
	}

	write(ElfastaMagic)
	offset := int64(headerSize)
	var slot [slotSize]byte
	for _, contig := range contigs {
		write([]byte(contig))
		write([]byte{'\t'})
		for i := range slot {
			slot[i] = 0
		}
		size := int64(len(fasta[contig]))
		binary.PutVarint(slot[:binary.MaxVarintLen64], offset)
		binary.PutVarint(slot[binary.MaxVarintLen64:], size)
		write(slot[:])
		offset += size
	}
	write([]byte{'\n'})
	for _, contig := range contigs {
		write(fasta[contig])
	}
	if err := out.Flush(); err != nil {
		log.Panic(err)
	}
}

// MappedFasta represents the contents of an .elfasta file.
type MappedFasta struct {
	wait  sync.WaitGroup
	fasta map[string][]byte
	data  []byte
	file  *os.File
}

func parseElfastaHeader(data []byte) (map[string][]byte, error) {
	if len(data) < len(ElfastaMagic) {
		return nil, fmt.Errorf("file too short")
	}
	for i, b := range ElfastaMagic {
		if data[i] != b {
			return nil, fmt.Errorf("invalid magic byte sequence")
		}
	}
	fasta := make(map[string][]byte)
	index := len(ElfastaMagic)
	for index < len(data) && data[index] != '\n' {
		start := index
		for index < len(data) && data[index] != '\t' {
			index++
		}
		if index+1+slotSize > len(data) {
			return nil, fmt.Errorf("truncated header")
		}
		contig := string(data[start:index])
		index++
		offset, n := binary.Varint(data[index : index+binary.MaxVarintLen64])
		if n <= 0 {
			return nil, fmt.Errorf("bad number of bytes while parsing offset of contig %v", contig)
		}
		size, n := binary.Varint(data[index+binary.MaxVarintLen64 : index+slotSize])
		if n <= 0 {
			return nil, fmt.Errorf("bad number of bytes while parsing size of contig %v", contig)
		}
		if offset+size > int64(len(data)) {
			return nil, fmt.Errorf("contig %v extends beyond the end of the file", contig)
		}
		fasta[contig] = data[offset : offset+size]
		index += slotSize
	}
	return fasta, nil
}

// OpenElfasta opens and mmaps an .elfasta file. The header is parsed
// in the background; Seq waits for it to be available.
func OpenElfasta(filename string) (result *MappedFasta) {
	result = new(MappedFasta)
	result.wait.Add(1)
	go func() {
		defer result.wait.Done()
		file := internal.FileOpen(filename)
		stat, err := file.Stat()
		if err != nil {
			_ = file.Close()
			log.Panic(err)
		}
		data, err := unix.Mmap(int(file.Fd()), 0, int(stat.Size()), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			_ = file.Close()
			log.Panic(err)
		}
		fasta, err := parseElfastaHeader(data)
		if err != nil {
			_ = unix.Munmap(data)
			_ = file.Close()
			log.Panicf("%v is not a valid .elfasta file - %v", filename, err)
		}
		result.fasta = fasta
		result.data = data
		result.file = file
	}()
	return result
}

// Close closes the .elfasta file.
func (fasta *MappedFasta) Close() {
	fasta.wait.Wait()
	err := unix.Munmap(fasta.data)
	fasta.data = nil
	if nerr := fasta.file.Close(); err == nil {
		err = nerr
	}
	fasta.file = nil
	fasta.fasta = nil
	if err != nil {
		log.Panic(err)
	}
}

// Seq fetches a sequence for the given contig
// from the .elfasta file.
func (fasta *MappedFasta) Seq(contig string) []byte {
	fasta.wait.Wait()
	return fasta.fasta[contig]
}
