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

package quant

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/ferrodb/ferrodb/internal/ferrodberrs"
	"github.com/ferrodb/ferrodb/internal/ferrotypes"
)

// Code4Bit layout: [correction f32][norm f32][radial f32][packed 4-bit grid codes].
const (
	code4HeaderSize = 12
	code4Bits       = 4
	code4Ceil       = 8 // 1 << (bits-1)
	code4GridOffset = 0.5
	code4BlockLen   = 256 // padding granularity, matches posting-list block size
)

// paddedDim4Bit rounds dim up to the packing block length.
func paddedDim4Bit(dim int) int {
	if dim%code4BlockLen == 0 {
		return dim
	}
	return (dim/code4BlockLen + 1) * code4BlockLen
}

// Code4BitPackedLen returns the packed grid byte length for dim.
func Code4BitPackedLen(dim int) int {
	return paddedDim4Bit(dim) * code4Bits / 8
}

// Code4BitSize returns the total byte size of a 4-bit code for dim.
func Code4BitSize(dim int) int {
	return code4HeaderSize + Code4BitPackedLen(dim)
}

// Code4Bit is a 4-bit ray-walk RaBitQ residual code.
type Code4Bit struct {
	bytes []byte
	dim   int
}

func (c Code4Bit) Bytes() []byte { return c.bytes }

func (c Code4Bit) Correction() float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(c.bytes[0:4]))
}

func (c Code4Bit) Norm() float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(c.bytes[4:8]))
}

func (c Code4Bit) Radial() float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(c.bytes[8:12]))
}

func (c Code4Bit) packed() []byte { return c.bytes[code4HeaderSize:] }

// unpackGrid decodes the packed nibbles back to grid values in
// {±0.5, ±1.5, ..., ±7.5} for the first dim entries.
func (c Code4Bit) unpackGrid() []float32 {
	packed := c.packed()
	padded := paddedDim4Bit(c.dim)
	codes := make([]uint8, padded)
	for i := 0; i < padded; i++ {
		b := packed[i/2]
		if i%2 == 0 {
			codes[i] = b & 0x0F
		} else {
			codes[i] = b >> 4
		}
	}
	offset := float32(code4Ceil) - code4GridOffset
	grid := make([]float32, c.dim)
	for i := 0; i < c.dim; i++ {
		grid[i] = float32(codes[i]) - offset
	}
	return grid
}

func writeHeader(bytes []byte, correction, norm, radial float32) {
	binary.LittleEndian.PutUint32(bytes[0:4], math.Float32bits(correction))
	binary.LittleEndian.PutUint32(bytes[4:8], math.Float32bits(norm))
	binary.LittleEndian.PutUint32(bytes[8:12], math.Float32bits(radial))
}

// QuantizeCode4Bit quantizes embedding relative to centroid using the
// ray-walk grid search: it finds the scalar t that walks the residual
// direction out to the grid cell boundary maximizing cosine similarity
// between the grid point and the true residual, then reconstructs and
// packs the per-dimension 4-bit codes.
func QuantizeCode4Bit(embedding, centroid []float32) (Code4Bit, error) {
	if len(embedding) != len(centroid) {
		return Code4Bit{}, ferrodberrs.New(ferrodberrs.InvalidArgument, "quant: embedding/centroid dimension mismatch %d vs %d", len(embedding), len(centroid))
	}
	dim := len(embedding)
	r := make([]float32, dim)
	for i := range r {
		r[i] = embedding[i] - centroid[i]
	}
	norm := float32(ferrotypes.Norm(r))
	radial := float32(ferrotypes.Dot(r, centroid))

	bytes := make([]byte, Code4BitSize(dim))
	if dim == 0 || norm < epsilon32 {
		writeHeader(bytes, 1.0, norm, radial)
		return Code4Bit{bytes: bytes, dim: dim}, nil
	}

	rAbs := make([]float32, dim)
	var maxAbs float32 = epsilon32
	for i, v := range r {
		a := v
		if a < 0 {
			a = -a
		}
		rAbs[i] = a
		if a > maxAbs {
			maxAbs = a
		}
	}
	maxT := (float32(code4Ceil) - 1.0 + epsilon32) / maxAbs

	type critical struct {
		t   float32
		dim int
	}
	var criticals []critical
	for i, v := range rAbs {
		limit := int(maxT * v)
		for g := 1; g <= limit; g++ {
			criticals = append(criticals, critical{t: float32(g) / v, dim: i})
		}
	}
	sort.Slice(criticals, func(i, j int) bool { return criticals[i].t < criticals[j].t })

	code := make([]uint32, dim)
	gL2 := float32(dim) * code4GridOffset * code4GridOffset
	var gDotR float32
	for _, v := range rAbs {
		gDotR += v
	}
	gDotR *= code4GridOffset

	bestCosine := float32(-1.0)
	bestT := float32(0.0)
	for _, cr := range criticals {
		code[cr.dim]++
		gL2 += 2.0 * float32(code[cr.dim])
		gDotR += rAbs[cr.dim]
		cosine := gDotR / float32(math.Sqrt(float64(gL2))) / norm
		if cosine > bestCosine {
			bestCosine = cosine
			bestT = cr.t
		}
	}

	for i, v := range r {
		g := uint32(bestT * rAbs[i])
		if v >= 0 {
			code[i] = g + code4Ceil
		} else {
			code[i] = code4Ceil - 1 - g
		}
	}

	offset := float32(code4Ceil) - code4GridOffset
	var gDotRFinal float32
	for i, c := range code {
		gDotRFinal += (float32(c) - offset) * r[i]
	}
	correction := gDotRFinal / norm

	padded := paddedDim4Bit(dim)
	code = append(code, make([]uint32, padded-dim)...)
	packed := make([]byte, Code4BitPackedLen(dim))
	for i := 0; i < padded; i++ {
		nibble := byte(code[i] & 0x0F)
		if i%2 == 0 {
			packed[i/2] |= nibble
		} else {
			packed[i/2] |= nibble << 4
		}
	}

	writeHeader(bytes, correction, norm, radial)
	copy(bytes[code4HeaderSize:], packed)
	return Code4Bit{bytes: bytes, dim: dim}, nil
}

const epsilon32 = 1.1920929e-7 // float32 machine epsilon

// DistanceToCode estimates the distance between two data vectors that
// share the same centroid, using only their stored codes and the
// centroid's norm: ⟨d_a, d_b⟩ = ‖c‖² + radial_a + radial_b + ⟨r_a, r_b⟩,
// where ⟨r_a, r_b⟩ is recovered from the unpacked grids scaled by each
// code's correction factor.
func (c Code4Bit) DistanceToCode(metric ferrotypes.DistanceMetric, other Code4Bit, centroidNorm float64, dim int) float64 {
	ga := c.unpackGrid()
	gb := other.unpackGrid()
	var gDotG float64
	for i := 0; i < dim && i < len(ga) && i < len(gb); i++ {
		gDotG += float64(ga[i]) * float64(gb[i])
	}
	normA, normB := float64(c.Norm()), float64(other.Norm())
	corrA, corrB := float64(c.Correction()), float64(other.Correction())
	var residualDot float64
	if corrA != 0 && corrB != 0 {
		residualDot = gDotG * normA * normB / (corrA * corrB)
	}
	dot := centroidNorm*centroidNorm + float64(c.Radial()) + float64(other.Radial()) + residualDot
	dNorm2A := centroidNorm*centroidNorm + 2*float64(c.Radial()) + normA*normA
	dNorm2B := centroidNorm*centroidNorm + 2*float64(other.Radial()) + normB*normB
	return dotToDistance(metric, dot, dNorm2A, dNorm2B)
}

// DistanceToQuery estimates the distance from this code's data vector
// to a raw query vector, given the query's residual against the same
// centroid.
func (c Code4Bit) DistanceToQuery(metric ferrotypes.DistanceMetric, centroid, query []float32) float64 {
	dim := len(query)
	rQ := make([]float32, dim)
	for i := range rQ {
		rQ[i] = query[i] - centroid[i]
	}
	grid := c.unpackGrid()
	var gDotRQ float64
	for i := 0; i < dim && i < len(grid); i++ {
		gDotRQ += float64(grid[i]) * float64(rQ[i])
	}
	correction := float64(c.Correction())
	norm := float64(c.Norm())
	var estimatedResidualDot float64
	if correction != 0 {
		estimatedResidualDot = norm * gDotRQ / correction
	}
	cNorm := ferrotypes.Norm(centroid)
	cDotQ := ferrotypes.Dot(centroid, query)
	qNorm := ferrotypes.Norm(query)
	dNorm2 := cNorm*cNorm + 2*float64(c.Radial()) + norm*norm
	dot := cDotQ + estimatedResidualDot
	return dotToDistance(metric, dot, dNorm2, qNorm*qNorm)
}

// dotToDistance converts an estimated inner product (plus, where
// needed, the squared norms of the two vectors) into the requested
// metric's distance value, mirroring ferrotypes.Distance's conventions.
func dotToDistance(metric ferrotypes.DistanceMetric, dot, dNorm2, qNorm2 float64) float64 {
	switch metric {
	case ferrotypes.Euclidean:
		return dNorm2 + qNorm2 - 2*dot
	case ferrotypes.InnerProduct:
		return -dot
	default: // Cosine
		denom := math.Sqrt(dNorm2 * qNorm2)
		if denom < 1e-12 {
			return 1.0
		}
		return 1.0 - dot/denom
	}
}
