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

package intervals

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/exascience/pargo/pipeline"

	"github.com/exascience/elactive/utils"
)

// ElsitesHeader is the header line that every .elsites file starts with.
const ElsitesHeader = "# elsites format version 1.0\n"

// ToElsitesFile stores intervals in an .elsites file, one closed
// interval per line, with contigs in lexicographic order.
func ToElsitesFile(intervals map[string][]Interval, filename string) (err error) {
	pathname, err := filepath.Abs(filename)
	if err != nil {
		return err
	}
	output, err := os.Create(pathname)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := output.Close(); nerr != nil {
			if err == nil {
				err = nerr
			}
		}
	}()
	out := bufio.NewWriter(output)
	if _, err = out.WriteString(ElsitesHeader); err != nil {
		return err
	}
	contigs := make([]string, 0, len(intervals))
	for contig := range intervals {
		contigs = append(contigs, contig)
	}
	sort.Strings(contigs)
	var buf []byte
	for _, contig := range contigs {
		for _, ival := range intervals[contig] {
			buf = append(buf[:0], contig...)
			buf = append(buf, '\t')
			buf = strconv.AppendInt(buf, int64(ival.Start), 10)
			buf = append(buf, '\t')
			buf = strconv.AppendInt(buf, int64(ival.End), 10)
			buf = append(buf, '\n')
			if _, err = out.Write(buf); err != nil {
				return err
			}
		}
	}
	return out.Flush()
}

func parseSitesLine(line string) (contig string, interval Interval, err error) {
	fields := strings.SplitN(line, "\t", 4)
	if len(fields) < 3 || fields[0] == "" {
		return "", interval, fmt.Errorf("invalid sites line %v", line)
	}
	start, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return "", interval, err
	}
	end, err := strconv.ParseInt(fields[2], 10, 32)
	if err != nil {
		return "", interval, err
	}
	return fields[0], Interval{Start: int32(start), End: int32(end)}, nil
}

// FromElsitesFile loads intervals from an .elsites file.
func FromElsitesFile(filename string) (intervals map[string][]Interval, err error) {
	pathname, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}
	in, err := os.Open(pathname)
	if err != nil {
		return nil, err
	}
	defer func() {
		if nerr := in.Close(); nerr != nil {
			if err == nil {
				err = nerr
			}
		}
	}()
	input := bufio.NewReader(utils.HandleGzip(bufio.NewReader(in)))
	header, err := input.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if header != ElsitesHeader {
		return nil, fmt.Errorf("%v is not a .elsites file - invalid header", filename)
	}
	var p pipeline.Pipeline
	p.Source(pipeline.NewScanner(input))
	p.Add(pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
		local := make(map[string][]Interval)
		for _, str := range data.([]string) {
			if str == "" {
				continue
			}
			contig, interval, err := parseSitesLine(str)
			if err != nil {
				p.SetErr(err)
				return local
			}
			local[contig] = append(local[contig], interval)
		}
		return local
	})))
	intervals = make(map[string][]Interval)
	p.Add(pipeline.Ord(pipeline.Receive(func(_ int, data interface{}) interface{} {
		for contig, ivals := range data.(map[string][]Interval) {
			intervals[contig] = append(intervals[contig], ivals...)
		}
		return data
	})))
	p.Run()
	if err = p.Err(); err != nil {
		return nil, err
	}
	return intervals, nil
}

// FromBedFile loads the regions of a BED file. BED regions are
// half-open, so each region [start, end) becomes the closed interval
// [start, end-1].
func FromBedFile(filename string) (intervals map[string][]Interval, err error) {
	in, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if nerr := in.Close(); nerr != nil {
			if err == nil {
				err = nerr
			}
		}
	}()
	intervals = make(map[string][]Interval)
	scanner := bufio.NewScanner(utils.HandleGzip(bufio.NewReader(in)))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" ||
			strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "track") ||
			strings.HasPrefix(line, "browser") {
			continue
		}
		contig, interval, err := parseSitesLine(line)
		if err != nil {
			return nil, fmt.Errorf("%v, in BED file %v", err, filename)
		}
		if interval.End <= interval.Start {
			return nil, fmt.Errorf("empty BED region %v in BED file %v", line, filename)
		}
		interval.End--
		intervals[contig] = append(intervals[contig], interval)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return intervals, nil
}

// FromFile loads intervals from either an .elsites file or a BED
// file, depending on the file extension.
func FromFile(filename string) (map[string][]Interval, error) {
	if strings.HasSuffix(filename, ".elsites") {
		return FromElsitesFile(filename)
	}
	return FromBedFile(filename)
}
