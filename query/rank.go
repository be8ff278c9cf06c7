/*
Copyright (C) 2026  ferrodb authors

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package query implements the scatter/gather orchestrator and its
// supporting operators: rank expression evaluation, the bitmap-based
// limit operator, and grouped aggregation.
package query

import (
	"math"

	"github.com/ferrodb/ferrodb/internal/ferrodberrs"
)

// RankDomain is the result of evaluating a rank expression: a sparse
// mapping from offset id to score, with an optional default applied
// to ids outside the support set.
type RankDomain struct {
	// Support is the set of offset ids this domain assigns an explicit
	// value to; ids outside it take Default when HasDefault is true, or
	// are excluded from the result entirely when false.
	Support    map[uint32]float64
	HasDefault bool
	Default    float64
}

func (d RankDomain) valueFor(id uint32) (float64, bool) {
	if v, ok := d.Support[id]; ok {
		return v, true
	}
	if d.HasDefault {
		return d.Default, true
	}
	return 0, false
}

// combineIDs intersects supports when either side lacks a default
// (since ids missing a default can't be evaluated there), and unions
// them when both sides have a default.
func combineIDs(a, b RankDomain) map[uint32]struct{} {
	out := make(map[uint32]struct{})
	if a.HasDefault && b.HasDefault {
		for id := range a.Support {
			out[id] = struct{}{}
		}
		for id := range b.Support {
			out[id] = struct{}{}
		}
		return out
	}
	// intersect: only ids present in whichever side(s) lack a default
	// must be present in both supports.
	if !a.HasDefault && !b.HasDefault {
		for id := range a.Support {
			if _, ok := b.Support[id]; ok {
				out[id] = struct{}{}
			}
		}
		return out
	}
	if !a.HasDefault {
		for id := range a.Support {
			out[id] = struct{}{}
		}
		return out
	}
	for id := range b.Support {
		out[id] = struct{}{}
	}
	return out
}

func binaryOp(a, b RankDomain, f func(x, y float64) float64) RankDomain {
	ids := combineIDs(a, b)
	support := make(map[uint32]float64, len(ids))
	for id := range ids {
		av, aok := a.valueFor(id)
		bv, bok := b.valueFor(id)
		if !aok || !bok {
			continue
		}
		support[id] = f(av, bv)
	}
	hasDefault := a.HasDefault && b.HasDefault
	var def float64
	if hasDefault {
		def = f(a.Default, b.Default)
	}
	return RankDomain{Support: support, HasDefault: hasDefault, Default: def}
}

func unaryOp(a RankDomain, f func(x float64) float64) RankDomain {
	support := make(map[uint32]float64, len(a.Support))
	for id, v := range a.Support {
		support[id] = f(v)
	}
	out := RankDomain{Support: support, HasDefault: a.HasDefault}
	if a.HasDefault {
		out.Default = f(a.Default)
	}
	return out
}

// Constant builds a RankDomain with no explicit support, only a
// constant default applying to every id.
func Constant(v float64) RankDomain {
	return RankDomain{Support: map[uint32]float64{}, HasDefault: true, Default: v}
}

func Abs(a RankDomain) RankDomain { return unaryOp(a, math.Abs) }
func Exp(a RankDomain) RankDomain { return unaryOp(a, math.Exp) }
func Ln(a RankDomain) RankDomain  { return unaryOp(a, math.Log) }

func Add(a, b RankDomain) RankDomain { return binaryOp(a, b, func(x, y float64) float64 { return x + y }) }
func Sub(a, b RankDomain) RankDomain { return binaryOp(a, b, func(x, y float64) float64 { return x - y }) }
func Mul(a, b RankDomain) RankDomain { return binaryOp(a, b, func(x, y float64) float64 { return x * y }) }
func Div(a, b RankDomain) RankDomain {
	return binaryOp(a, b, func(x, y float64) float64 {
		if y == 0 {
			return math.Inf(int(math.Copysign(1, x)))
		}
		return x / y
	})
}
func Max(a, b RankDomain) RankDomain { return binaryOp(a, b, math.Max) }
func Min(a, b RankDomain) RankDomain { return binaryOp(a, b, math.Min) }

// Knn builds a RankDomain from a pre-computed knn result (ids in
// distance order), applying limit and default. return_rank selects
// whether the domain carries rank positions (0-based) instead of raw
// distances, used when composing with other rank-domain arithmetic
// that expects a rank rather than a metric distance.
func Knn(ids []uint32, distances []float64, limit int, returnRank bool, hasDefault bool, def float64) (RankDomain, error) {
	if len(ids) != len(distances) {
		return RankDomain{}, ferrodberrs.New(ferrodberrs.InvalidArgument, "query: knn ids/distances length mismatch")
	}
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
		distances = distances[:limit]
	}
	support := make(map[uint32]float64, len(ids))
	for i, id := range ids {
		if returnRank {
			support[id] = float64(i)
		} else {
			support[id] = distances[i]
		}
	}
	return RankDomain{Support: support, HasDefault: hasDefault, Default: def}, nil
}

// Evaluate resolves a RankDomain to a flat list of ids restricted to
// candidateIDs, in candidateIDs order; the result is not sorted by
// score.
func Evaluate(domain RankDomain, candidateIDs []uint32) []ScoredID {
	out := make([]ScoredID, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		if v, ok := domain.valueFor(id); ok {
			out = append(out, ScoredID{ID: id, Score: v})
		}
	}
	return out
}

// ScoredID pairs an offset id with its resolved rank score.
type ScoredID struct {
	ID    uint32
	Score float64
}
