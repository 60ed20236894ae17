// Copyright (C) The bref4 Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import "sort"

// Bref4Rec is a record view specialized for the sequence coder: same
// alleleToHaps shape as RefGTRec, but over a domain that may already
// be a sequence space (size <= 2N) after one or more applyMap calls.
// The two concrete shapes differ only in storage, per a tagged-variant
// dispatch: diallelicRec for the common 2-allele case, multiallelicRec
// otherwise.
type Bref4Rec interface {
	marker() *Marker
	size() int
	nAlleles() int
	nullRow() int
	alleleToHaps() [][]int
	hapToAllele() *IndexArray
	get(h int) int
	applyMap(m *IndexArray) Bref4Rec
}

// sortedDedupMapped applies m to each element of haps and returns the
// sorted, duplicate-free image.
func sortedDedupMapped(haps []int, m *IndexArray) []int {
	seen := make(map[int]bool, len(haps))
	out := make([]int, 0, len(haps))
	for _, h := range haps {
		v := m.Get(h)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

type diallelicRec struct {
	mk        *Marker
	sz        int
	nullAllel int   // 0 or 1
	haps      []int // sorted ascending, carriers of the non-null allele
}

func newDiallelicRec(mk *Marker, size, nullAllele int, haps []int) *diallelicRec {
	return &diallelicRec{mk: mk, sz: size, nullAllel: nullAllele, haps: haps}
}

func (r *diallelicRec) marker() *Marker { return r.mk }
func (r *diallelicRec) size() int       { return r.sz }
func (r *diallelicRec) nAlleles() int   { return 2 }
func (r *diallelicRec) nullRow() int    { return r.nullAllel }

func (r *diallelicRec) alleleToHaps() [][]int {
	out := make([][]int, 2)
	out[1-r.nullAllel] = r.haps
	return out
}

func (r *diallelicRec) hapToAllele() *IndexArray {
	a := NewIndexArray(r.sz, 2)
	if r.nullAllel != 0 {
		// The zero-filled array already encodes allele 0; only a
		// nonzero null allele needs backfilling.
		for h := 0; h < r.sz; h++ {
			a.Set(h, r.nullAllel)
		}
	}
	other := 1 - r.nullAllel
	for _, h := range r.haps {
		a.Set(h, other)
	}
	return a
}

func (r *diallelicRec) get(h int) int {
	i := sort.SearchInts(r.haps, h)
	if i < len(r.haps) && r.haps[i] == h {
		return 1 - r.nullAllel
	}
	return r.nullAllel
}

func (r *diallelicRec) applyMap(m *IndexArray) Bref4Rec {
	return newDiallelicRec(r.mk, m.ValueSize(), r.nullAllel, sortedDedupMapped(r.haps, m))
}

type multiallelicRec struct {
	mk      *Marker
	sz      int
	nullIdx int
	lists   [][]int // one entry is nil: the null row
}

func newMultiallelicRec(mk *Marker, size int, lists [][]int, nullRow int) *multiallelicRec {
	return &multiallelicRec{mk: mk, sz: size, lists: lists, nullIdx: nullRow}
}

func (r *multiallelicRec) marker() *Marker       { return r.mk }
func (r *multiallelicRec) size() int             { return r.sz }
func (r *multiallelicRec) nAlleles() int         { return len(r.lists) }
func (r *multiallelicRec) nullRow() int          { return r.nullIdx }
func (r *multiallelicRec) alleleToHaps() [][]int { return r.lists }

func (r *multiallelicRec) hapToAllele() *IndexArray {
	a := NewIndexArray(r.sz, len(r.lists))
	if r.nullIdx != 0 {
		for h := 0; h < r.sz; h++ {
			a.Set(h, r.nullIdx)
		}
	}
	for allele, list := range r.lists {
		if allele == r.nullIdx {
			continue
		}
		for _, h := range list {
			a.Set(h, allele)
		}
	}
	return a
}

func (r *multiallelicRec) get(h int) int {
	for allele, list := range r.lists {
		if allele == r.nullIdx {
			continue
		}
		i := sort.SearchInts(list, h)
		if i < len(list) && list[i] == h {
			return allele
		}
	}
	return r.nullIdx
}

func (r *multiallelicRec) applyMap(m *IndexArray) Bref4Rec {
	newLists := make([][]int, len(r.lists))
	for allele, list := range r.lists {
		if allele == r.nullIdx {
			continue
		}
		newLists[allele] = sortedDedupMapped(list, m)
	}
	return newMultiallelicRec(r.mk, m.ValueSize(), newLists, r.nullIdx)
}

// newBref4Rec picks the di-allelic or multi-allelic storage depending
// on nAlleles, matching the tagged-variant dispatch used throughout
// the record model.
func newBref4Rec(mk *Marker, size int, lists [][]int, nullRow int) Bref4Rec {
	if len(lists) == 2 {
		other := 1 - nullRow
		return newDiallelicRec(mk, size, nullRow, lists[other])
	}
	return newMultiallelicRec(mk, size, lists, nullRow)
}

// RefGTRec is the external, fully-resolved record: 2N alleles over
// the real haplotype space, as reconstructed by the block decoder (or
// as read directly off a VCF line before it enters the encoder).
type RefGTRec struct {
	mk    *Marker
	nHaps int
	lists [][]int
	nullR int
}

func newRefGTRec(mk *Marker, nHaps int, lists [][]int, nullRow int) *RefGTRec {
	return &RefGTRec{mk: mk, nHaps: nHaps, lists: lists, nullR: nullRow}
}

func (r *RefGTRec) marker() *Marker       { return r.mk }
func (r *RefGTRec) nAlleles() int         { return len(r.lists) }
func (r *RefGTRec) nullRow() int          { return r.nullR }
func (r *RefGTRec) alleleToHaps() [][]int { return r.lists }

// allele returns the allele index carried by haplotype h.
func (r *RefGTRec) allele(h int) int {
	for allele, list := range r.lists {
		if allele == r.nullR {
			continue
		}
		i := sort.SearchInts(list, h)
		if i < len(list) && list[i] == h {
			return allele
		}
	}
	return r.nullR
}

// asBref4Rec views this RefGTRec as a Bref4Rec over its native
// haplotype domain, the starting point for sequence-coder ingestion.
func (r *RefGTRec) asBref4Rec() Bref4Rec {
	return newBref4Rec(r.mk, r.nHaps, r.lists, r.nullR)
}
