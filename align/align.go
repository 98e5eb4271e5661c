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

// Package align implements a banded global aligner with affine gap
// scoring, used to assign reads to candidate haplotypes.
package align

import (
	"math"
	"sync"

	"github.com/biogo/hts/sam"
)

// Scores for the aligner. A gap of length k costs Open + k*Extend.
// OffEdge is charged once for every end of the query that hangs off
// the corresponding edge of the reference.
type Scores struct {
	Match    int32 `yaml:"match"`
	Mismatch int32 `yaml:"mismatch"`
	Open     int32 `yaml:"gap-open"`
	Extend   int32 `yaml:"gap-extend"`
	OffEdge  int32 `yaml:"off-edge"`
}

// DefaultScores returns the bwa-like short read scores.
func DefaultScores() Scores {
	return Scores{
		Match:    1,
		Mismatch: -4,
		Open:     -5,
		Extend:   -1,
		OffEdge:  -100,
	}
}

// DefaultBand is the default number of diagonals the aligner may
// drift beyond the length difference of its two inputs.
const DefaultBand = 25

// Result of aligning a query against a reference. RefOffset is the
// index of the first reference base covered by the alignment, and
// Cigar describes the path in query order, with soft clips for query
// bases that hang off the reference edges.
type Result struct {
	Score     int32
	RefOffset int32
	Cigar     sam.Cigar
}

// An Aligner aligns a complete query against a reference.
type Aligner interface {
	Align(query, ref []byte) Result
}

// GlobalAligner aligns the whole query, with free leading and
// trailing reference bases. A negative Band disables banding.
type GlobalAligner struct {
	Scores
	Band int32
}

// NewGlobalAligner returns a GlobalAligner with the given scores and band.
func NewGlobalAligner(scores Scores, band int32) *GlobalAligner {
	return &GlobalAligner{Scores: scores, Band: band}
}

const negInf = math.MinInt32 / 2

// alignment states, also used as backtrack pointers
const (
	inMatch uint8 = iota
	inInsert
	inDelete
	atStart
)

type dpMatrices struct {
	cols                  int
	match, insert, delete []int32
	trace                 []uint8
}

func ensureScores(v []int32, size int) []int32 {
	if size <= cap(v) {
		v = v[:size]
	} else {
		v = make([]int32, size)
	}
	for i := range v {
		v[i] = negInf
	}
	return v
}

func (m *dpMatrices) ensureSize(rows, cols int) {
	m.cols = cols
	size := rows * cols
	m.match = ensureScores(m.match, size)
	m.insert = ensureScores(m.insert, size)
	m.delete = ensureScores(m.delete, size)
	if size <= cap(m.trace) {
		m.trace = m.trace[:size]
	} else {
		m.trace = make([]uint8, size)
	}
}

var dpMatricesPool = sync.Pool{New: func() interface{} { return &dpMatrices{} }}

func max32(x, y int32) int32 {
	if x > y {
		return x
	}
	return y
}

func min32(x, y int32) int32 {
	if x < y {
		return x
	}
	return y
}

// best3 returns the largest of the three scores and its state,
// preferring earlier arguments on ties.
func best3(m, i, d int32) (int32, uint8) {
	score, state := m, inMatch
	if i > score {
		score, state = i, inInsert
	}
	if d > score {
		score, state = d, inDelete
	}
	return score, state
}

// Align implements the Aligner interface.
func (a *GlobalAligner) Align(query, ref []byte) Result {
	n, m := int32(len(query)), int32(len(ref))
	switch {
	case n == 0:
		return Result{}
	case m == 0:
		return Result{
			Score: a.OffEdge,
			Cigar: sam.Cigar{sam.NewCigarOp(sam.CigarSoftClipped, int(n))},
		}
	}

	// cell (i, j) is inside the band when lo <= j-i <= hi
	lo, hi := -n, m
	if a.Band >= 0 {
		lo = min32(0, m-n) - a.Band
		hi = max32(0, m-n) + a.Band
	}

	dp := dpMatricesPool.Get().(*dpMatrices)
	defer dpMatricesPool.Put(dp)
	cols := int(m + 1)
	dp.ensureSize(int(n+1), cols)

	gapOpen := a.Open + a.Extend
	start := func(i, j int32) int32 {
		switch {
		case i == 0:
			return 0
		case j == 0:
			return a.OffEdge
		default:
			return negInf
		}
	}

	for i := int32(1); i <= n; i++ {
		qBase := query[i-1]
		jlo, jhi := max32(1, i+lo), min32(m, i+hi)
		row, prevRow := int(i)*cols, int(i-1)*cols
		for j := jlo; j <= jhi; j++ {
			cell, diag, up, left := row+int(j), prevRow+int(j-1), prevRow+int(j), row+int(j-1)

			score, from := best3(dp.match[diag], dp.insert[diag], dp.delete[diag])
			if s := start(i-1, j-1); s > score {
				score, from = s, atStart
			}
			if qBase == ref[j-1] {
				score += a.Match
			} else {
				score += a.Mismatch
			}
			dp.match[cell] = max32(negInf, score)
			trace := from

			score, from = best3(dp.match[up]+gapOpen, dp.insert[up]+a.Extend, dp.delete[up]+gapOpen)
			dp.insert[cell] = max32(negInf, score)
			trace |= from << 2

			score, from = best3(dp.match[left]+gapOpen, dp.insert[left]+gapOpen, dp.delete[left]+a.Extend)
			dp.delete[cell] = max32(negInf, score)
			trace |= from << 4

			dp.trace[cell] = trace
		}
	}

	// end of the alignment: the last query base, or a trailing clip
	// at the right reference edge
	bestScore := int32(negInf)
	bestI, bestJ, bestState := n, int32(0), inMatch
	lastRow := int(n) * cols
	for j := max32(1, n+lo); j <= min32(m, n+hi); j++ {
		if s := dp.match[lastRow+int(j)]; s > bestScore {
			bestScore, bestJ, bestState = s, j, inMatch
		}
		if s := dp.insert[lastRow+int(j)]; s > bestScore {
			bestScore, bestJ, bestState = s, j, inInsert
		}
	}
	for i := int32(1); i < n; i++ {
		if m-i < lo || m-i > hi {
			continue
		}
		if s := dp.match[int(i)*cols+int(m)] + a.OffEdge; s > bestScore {
			bestScore, bestI, bestJ, bestState = s, i, m, inMatch
		}
	}

	var ops []sam.CigarOp
	push := func(t sam.CigarOpType, length int32) {
		if length <= 0 {
			return
		}
		if l := len(ops) - 1; l >= 0 && ops[l].Type() == t {
			ops[l] = sam.NewCigarOp(t, ops[l].Len()+int(length))
			return
		}
		ops = append(ops, sam.NewCigarOp(t, int(length)))
	}

	push(sam.CigarSoftClipped, n-bestI)
	i, j, state := bestI, bestJ, bestState
	for {
		trace := dp.trace[int(i)*cols+int(j)]
		switch state {
		case inMatch:
			push(sam.CigarMatch, 1)
			state = trace & 3
			i--
			j--
		case inInsert:
			push(sam.CigarInsertion, 1)
			state = (trace >> 2) & 3
			i--
		default:
			push(sam.CigarDeletion, 1)
			state = (trace >> 4) & 3
			j--
		}
		if state == atStart {
			break
		}
	}
	push(sam.CigarSoftClipped, i)

	for l, r := 0, len(ops)-1; l < r; l, r = l+1, r-1 {
		ops[l], ops[r] = ops[r], ops[l]
	}
	return Result{
		Score:     bestScore,
		RefOffset: j,
		Cigar:     sam.Cigar(ops),
	}
}
