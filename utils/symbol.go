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

package utils

import (
	"github.com/exascience/pargo/sync"
	"github.com/minio/highwayhash"
)

type symbolName string

// A Symbol is a unique pointer to a string.
type Symbol *string

var symbolKey = []byte("elactive-symbol-table-hash-key-0")

func (s symbolName) Hash() uint64 {
	return highwayhash.Sum64([]byte(s), symbolKey)
}

var symbolTable = sync.NewMap(0)

/*
Intern returns a Symbol for the given string.

Contig and sample names are interned so that reads, regions and
polymorphic sites of the same contig share one name, and can be
compared by pointer.

It is safe for multiple goroutines to call Intern concurrently.
*/
func Intern(s string) Symbol {
	entry, _ := symbolTable.LoadOrStore(symbolName(s), Symbol(&s))
	return entry.(Symbol)
}
