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

// Package ferrotypes holds the shared data model: collections,
// segments, operation records and the small tagged metadata value
// type, a compact tagged union in the spirit of scm.Scmer but scoped
// to exactly the kinds a metadata map allows.
package ferrotypes

import (
	"encoding/json"
	"fmt"
)

// ValueKind tags which field of Value is live.
type ValueKind uint8

const (
	KindNil ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSparseVector
)

// SparseVector is a sparse float vector metadata value: parallel
// index/value slices, indices strictly increasing.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Value is a tagged union over {bool, int, float, string, sparse
// vector}, the metadata value domain.
type Value struct {
	kind   ValueKind
	b      bool
	i      int64
	f      float64
	s      string
	sparse SparseVector
}

func NilValue() Value                { return Value{kind: KindNil} }
func BoolValue(b bool) Value         { return Value{kind: KindBool, b: b} }
func IntValue(i int64) Value         { return Value{kind: KindInt, i: i} }
func FloatValue(f float64) Value     { return Value{kind: KindFloat, f: f} }
func StringValue(s string) Value     { return Value{kind: KindString, s: s} }
func SparseValue(v SparseVector) Value {
	return Value{kind: KindSparseVector, sparse: v}
}

func (v Value) Kind() ValueKind   { return v.kind }
func (v Value) IsNil() bool       { return v.kind == KindNil }
func (v Value) Bool() bool        { return v.b }
func (v Value) Int() int64        { return v.i }
func (v Value) Float() float64    { return v.f }
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return ""
	case KindBool:
		return fmt.Sprint(v.b)
	case KindInt:
		return fmt.Sprint(v.i)
	case KindFloat:
		return fmt.Sprint(v.f)
	case KindString:
		return v.s
	case KindSparseVector:
		return fmt.Sprintf("sparse(%d)", len(v.sparse.Indices))
	}
	return ""
}
func (v Value) Sparse() SparseVector { return v.sparse }

// Equal compares two values for byte-for-byte equality, used by the
// materializer when folding repeated metadata writes.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindString:
		return v.s == other.s
	case KindSparseVector:
		if len(v.sparse.Indices) != len(other.sparse.Indices) {
			return false
		}
		for i := range v.sparse.Indices {
			if v.sparse.Indices[i] != other.sparse.Indices[i] || v.sparse.Values[i] != other.sparse.Values[i] {
				return false
			}
		}
		return true
	}
	return false
}

// DocumentMetadataKey is the distinguished metadata key under which
// the document body is stored.
const DocumentMetadataKey = "ferrodb:document"

// jsonValue is Value's wire shape: a kind tag plus whichever field is
// live, so blockfile pages and API responses can round-trip a Value
// without exposing its internal layout.
type jsonValue struct {
	Kind    ValueKind `json:"kind"`
	Bool    bool      `json:"bool,omitempty"`
	Int     int64     `json:"int,omitempty"`
	Float   float64   `json:"float,omitempty"`
	String  string    `json:"string,omitempty"`
	Indices []uint32  `json:"indices,omitempty"`
	Values  []float32 `json:"values,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	jv := jsonValue{Kind: v.kind}
	switch v.kind {
	case KindBool:
		jv.Bool = v.b
	case KindInt:
		jv.Int = v.i
	case KindFloat:
		jv.Float = v.f
	case KindString:
		jv.String = v.s
	case KindSparseVector:
		jv.Indices = v.sparse.Indices
		jv.Values = v.sparse.Values
	}
	return json.Marshal(jv)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	switch jv.Kind {
	case KindBool:
		*v = BoolValue(jv.Bool)
	case KindInt:
		*v = IntValue(jv.Int)
	case KindFloat:
		*v = FloatValue(jv.Float)
	case KindString:
		*v = StringValue(jv.String)
	case KindSparseVector:
		*v = SparseValue(SparseVector{Indices: jv.Indices, Values: jv.Values})
	default:
		*v = NilValue()
	}
	return nil
}
