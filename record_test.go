// Copyright (C) The bref4 Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"sort"

	"gopkg.in/check.v1"
)

type recordSuite struct{}

var _ = check.Suite(&recordSuite{})

func (s *recordSuite) TestAlleleToHapsHasExactlyOneNullEntry(c *check.C) {
	mk := newMarker(5, ".", "A", []string{"C", "T"}, ".", "PASS", ".")
	lists := make([][]int, 3)
	lists[0] = []int{0, 3}
	lists[2] = []int{1}
	rec := newMultiallelicRec(mk, 6, lists, 1)

	nNull := 0
	for a, list := range rec.alleleToHaps() {
		if list == nil && a == rec.nullRow() {
			nNull++
		}
	}
	c.Check(nNull, check.Equals, 1)

	// Non-null lists are strictly increasing and disjoint, and together
	// with the implicit null carriers they cover [0, size).
	seen := make(map[int]bool)
	for a, list := range rec.alleleToHaps() {
		if a == rec.nullRow() {
			continue
		}
		c.Check(sort.IntsAreSorted(list), check.Equals, true)
		for _, h := range list {
			c.Check(seen[h], check.Equals, false)
			seen[h] = true
		}
	}
	for h := 0; h < rec.size(); h++ {
		if !seen[h] {
			c.Check(rec.get(h), check.Equals, rec.nullRow())
		}
	}
}

func (s *recordSuite) TestHapToAlleleAgreesWithGet(c *check.C) {
	mk := newMarker(9, ".", "G", []string{"T"}, ".", "PASS", ".")
	di := newDiallelicRec(mk, 8, 1, []int{0, 2, 7})
	packed := di.hapToAllele()
	c.Check(packed.Size(), check.Equals, 8)
	c.Check(packed.ValueSize(), check.Equals, 2)
	// Null allele is 1 here, so non-carrier haps must come back as 1,
	// not the packed array's zero-fill default.
	c.Check(packed.Get(1), check.Equals, 1)
	for h := 0; h < 8; h++ {
		c.Check(packed.Get(h), check.Equals, di.get(h), check.Commentf("hap %d", h))
	}

	lists := make([][]int, 3)
	lists[0] = []int{1, 5}
	lists[2] = []int{3}
	multi := newMultiallelicRec(newMarker(9, ".", "G", []string{"T", "C"}, ".", "PASS", "."), 8, lists, 1)
	packed = multi.hapToAllele()
	c.Check(packed.ValueSize(), check.Equals, 3)
	c.Check(packed.Get(0), check.Equals, 1)
	for h := 0; h < 8; h++ {
		c.Check(packed.Get(h), check.Equals, multi.get(h), check.Commentf("hap %d", h))
	}
}

func (s *recordSuite) TestApplyMapDedupsAndSorts(c *check.C) {
	// m collapses haps {0,1} -> 0, {2,3} -> 2, {4,5} -> 1, and every
	// collapsed pair carries the same allele, satisfying the applyMap
	// precondition.
	mk := newMarker(3, ".", "A", []string{"G"}, ".", "PASS", ".")
	rec := newDiallelicRec(mk, 6, 0, []int{4, 5})
	m := NewIndexArrayFromValues([]int{0, 0, 2, 2, 1, 1}, 3)

	mapped := rec.applyMap(m)
	c.Check(mapped.size(), check.Equals, 3)
	c.Check(mapped.alleleToHaps()[1], check.DeepEquals, []int{1})
	c.Check(mapped.nullRow(), check.Equals, rec.nullRow())

	// Composition through m must preserve every hap's allele.
	for h := 0; h < 6; h++ {
		c.Check(mapped.get(m.Get(h)), check.Equals, rec.get(h), check.Commentf("hap %d", h))
	}
}

func (s *recordSuite) TestNewBref4RecDispatch(c *check.C) {
	mk := newMarker(1, ".", "A", []string{"G"}, ".", "PASS", ".")
	lists := make([][]int, 2)
	lists[1] = []int{2}
	rec := newBref4Rec(mk, 4, lists, 0)
	_, isDi := rec.(*diallelicRec)
	c.Check(isDi, check.Equals, true)

	mk3 := newMarker(1, ".", "A", []string{"G", "T"}, ".", "PASS", ".")
	lists3 := make([][]int, 3)
	lists3[1] = []int{2}
	lists3[2] = []int{3}
	rec = newBref4Rec(mk3, 4, lists3, 0)
	_, isMulti := rec.(*multiallelicRec)
	c.Check(isMulti, check.Equals, true)
}

func (s *recordSuite) TestRefGTRecViewMatchesBref4View(c *check.C) {
	mk := newMarker(11, "rs11", "C", []string{"A", "G"}, ".", "PASS", ".")
	lists := make([][]int, 3)
	lists[0] = []int{1}
	lists[2] = []int{2, 3}
	gt := newRefGTRec(mk, 6, lists, 1)

	c.Check(gt.nAlleles(), check.Equals, 3)
	c.Check(gt.nullRow(), check.Equals, 1)
	c.Check(gt.alleleToHaps()[0], check.DeepEquals, []int{1})

	view := gt.asBref4Rec()
	c.Check(view.size(), check.Equals, 6)
	for h := 0; h < 6; h++ {
		c.Check(view.get(h), check.Equals, gt.allele(h), check.Commentf("hap %d", h))
	}
}
