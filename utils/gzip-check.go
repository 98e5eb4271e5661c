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
	"bufio"
	"io"
	"log"

	"github.com/klauspost/compress/gzip"
)

// IsGzip checks whether the given reader starts with the gzip magic
// bytes, without consuming them.
func IsGzip(buf *bufio.Reader) (bool, error) {
	magic, err := buf.Peek(2)
	if err == io.EOF {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return magic[0] == 0x1f && magic[1] == 0x8b, nil
}

// HandleGzip checks if the given reader produces a gzip (or bgzf)
// stream by looking at the initial bytes. It then either returns a
// gzip.Reader, or returns the given reader unchanged.
func HandleGzip(buf *bufio.Reader) io.Reader {
	if ok, err := IsGzip(buf); err != nil {
		log.Panic(err)
		return nil
	} else if ok {
		r, err := gzip.NewReader(buf)
		if err != nil {
			log.Panic(err)
			return nil
		}
		return r
	}
	return buf
}
