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

package spann

import "github.com/ferrodb/ferrodb/quant"

// PostingMember is one (point, version) tuple held in a posting list,
// carrying its 4-bit code for in-cluster scoring without touching raw
// embeddings.
type PostingMember struct {
	Key     uint64
	Version uint64
	Code    quant.Code4Bit
	Raw     []float32
}

// PostingList is the body attached to one HNSW centroid ("head").
type PostingList struct {
	HeadID   uint64
	Centroid []float32
	Members  []PostingMember
}

func (p *PostingList) indexOf(key uint64) int {
	for i, m := range p.Members {
		if m.Key == key {
			return i
		}
	}
	return -1
}

// Upsert inserts or replaces a member by key, bumping version.
func (p *PostingList) Upsert(key uint64, version uint64, code quant.Code4Bit, raw []float32) {
	if idx := p.indexOf(key); idx >= 0 {
		p.Members[idx] = PostingMember{Key: key, Version: version, Code: code, Raw: raw}
		return
	}
	p.Members = append(p.Members, PostingMember{Key: key, Version: version, Code: code, Raw: raw})
}

// Remove drops a member by key.
func (p *PostingList) Remove(key uint64) {
	if idx := p.indexOf(key); idx >= 0 {
		p.Members = append(p.Members[:idx], p.Members[idx+1:]...)
	}
}
