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
	"testing"

	"github.com/ferrodb/ferrodb/internal/ferrotypes"
)

func TestCode4BitSizeAndPackedLen(t *testing.T) {
	if got := Code4BitPackedLen(256); got != 128 {
		t.Fatalf("Code4BitPackedLen(256) = %d, want 128", got)
	}
	if got := Code4BitPackedLen(1); got != 128 {
		t.Fatalf("Code4BitPackedLen(1) = %d, want 128 (padded to block)", got)
	}
	if got := Code4BitSize(256); got != code4HeaderSize+128 {
		t.Fatalf("Code4BitSize(256) = %d, want %d", got, code4HeaderSize+128)
	}
}

func TestQuantizeCode4BitDimensionMismatch(t *testing.T) {
	_, err := QuantizeCode4Bit([]float32{1, 2}, []float32{1, 2, 3})
	if err == nil {
		t.Fatalf("QuantizeCode4Bit with mismatched dims: want error, got nil")
	}
}

func TestQuantizeCode4BitZeroResidual(t *testing.T) {
	centroid := []float32{1, 2, 3}
	code, err := QuantizeCode4Bit(centroid, centroid)
	if err != nil {
		t.Fatalf("QuantizeCode4Bit: %v", err)
	}
	if code.Norm() != 0 {
		t.Fatalf("Norm() = %v, want 0 for zero residual", code.Norm())
	}
}

func TestQuantizeCode4BitHeaderRoundTrip(t *testing.T) {
	centroid := make([]float32, 8)
	embedding := make([]float32, 8)
	for i := range embedding {
		embedding[i] = float32(i) - 3.5
	}
	code, err := QuantizeCode4Bit(embedding, centroid)
	if err != nil {
		t.Fatalf("QuantizeCode4Bit: %v", err)
	}
	wantNorm := float32(ferrotypes.Norm(ferrotypes.Sub(embedding, centroid)))
	if diff := code.Norm() - wantNorm; diff > 1e-4 || diff < -1e-4 {
		t.Fatalf("Norm() = %v, want ~%v", code.Norm(), wantNorm)
	}
}

func TestCode4BitDistanceToQuerySelf(t *testing.T) {
	centroid := []float32{0, 0, 0, 0}
	embedding := []float32{2, -1, 0.5, 3}
	code, err := QuantizeCode4Bit(embedding, centroid)
	if err != nil {
		t.Fatalf("QuantizeCode4Bit: %v", err)
	}
	// distance from the quantized point back to the exact embedding
	// that produced it should be small relative to distances from an
	// unrelated vector.
	dNear := code.DistanceToQuery(ferrotypes.Euclidean, centroid, embedding)
	dFar := code.DistanceToQuery(ferrotypes.Euclidean, centroid, []float32{-2, 1, -0.5, -3})
	if dNear >= dFar {
		t.Fatalf("DistanceToQuery(self) = %v, want less than DistanceToQuery(opposite) = %v", dNear, dFar)
	}
}

func TestCode4BitDistanceToCodeSymmetric(t *testing.T) {
	centroid := []float32{1, 1, 1}
	a, err := QuantizeCode4Bit([]float32{2, 0, 1}, centroid)
	if err != nil {
		t.Fatalf("QuantizeCode4Bit a: %v", err)
	}
	b, err := QuantizeCode4Bit([]float32{0, 2, 1}, centroid)
	if err != nil {
		t.Fatalf("QuantizeCode4Bit b: %v", err)
	}
	centroidNorm := ferrotypes.Norm(centroid)
	dAB := a.DistanceToCode(ferrotypes.Euclidean, b, centroidNorm, 3)
	dBA := b.DistanceToCode(ferrotypes.Euclidean, a, centroidNorm, 3)
	if diff := dAB - dBA; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("DistanceToCode not symmetric: a->b=%v b->a=%v", dAB, dBA)
	}
}
