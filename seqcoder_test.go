// Copyright (C) The bref4 Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import "gopkg.in/check.v1"

type seqCoderSuite struct{}

var _ = check.Suite(&seqCoderSuite{})

func diallelic(nullAllele int, haps []int, size int) Bref4Rec {
	return newDiallelicRec(newMarker(1, ".", "A", []string{"G"}, ".", "PASS", "."), size, nullAllele, haps)
}

func (s *seqCoderSuite) TestFirstAddAlwaysSucceeds(c *check.C) {
	coder := newSeqCoder(8, 4)
	ok := coder.add(diallelic(0, []int{1, 3, 5}, 8))
	c.Assert(ok, check.Equals, true)
	c.Check(coder.nSeq, check.Equals, 2)
	c.Check(coder.numRecs(), check.Equals, 1)
}

func (s *seqCoderSuite) TestSeq2cntSumsToNHaps(c *check.C) {
	coder := newSeqCoder(8, 8)
	coder.add(diallelic(0, []int{1, 3, 5}, 8))
	coder.add(diallelic(1, []int{0, 1, 2}, 8))
	total := 0
	for i := 0; i < coder.nSeq; i++ {
		total += coder.seq2cnt[i]
	}
	c.Check(total, check.Equals, 8)
}

func (s *seqCoderSuite) TestAdmissionFailureLeavesPartitionUnchanged(c *check.C) {
	coder := newSeqCoder(8, 2)
	c.Assert(coder.add(diallelic(0, []int{0, 1, 2, 3}, 8)), check.Equals, true)
	nSeqBefore := coder.nSeq
	hap2seqBefore := append([]int(nil), coder.hap2seq...)
	recsBefore := coder.numRecs()
	// A record splitting every hap into its own class would need more
	// than 2 sequences; admission must fail and leave state untouched.
	ok := coder.add(diallelic(0, []int{0}, 8))
	c.Assert(ok, check.Equals, false)
	c.Check(coder.nSeq, check.Equals, nSeqBefore)
	c.Check(coder.hap2seq, check.DeepEquals, hap2seqBefore)
	c.Check(coder.numRecs(), check.Equals, recsBefore)
}

func (s *seqCoderSuite) TestHapToSeqRespectsPartition(c *check.C) {
	coder := newSeqCoder(8, 8)
	coder.add(diallelic(0, []int{1, 3, 5}, 8))
	m := coder.hapToSeq()
	c.Check(m.Size(), check.Equals, 8)
	c.Check(m.ValueSize(), check.Equals, coder.nSeq)
	for h := 0; h < 8; h++ {
		c.Check(m.Get(h), check.Equals, coder.hap2seq[h])
	}
}

func (s *seqCoderSuite) TestClearResetsToOneClass(c *check.C) {
	coder := newSeqCoder(8, 8)
	coder.add(diallelic(0, []int{1, 3, 5}, 8))
	coder.clear()
	c.Check(coder.nSeq, check.Equals, 1)
	c.Check(coder.numRecs(), check.Equals, 0)
	for _, s := range coder.hap2seq {
		c.Check(s, check.Equals, 0)
	}
	c.Check(coder.seq2cnt[0], check.Equals, 8)
}

func (s *seqCoderSuite) TestMappedBref4RecsComposesWithOriginal(c *check.C) {
	coder := newSeqCoder(8, 8)
	rec := diallelic(0, []int{1, 3, 5}, 8)
	coder.add(rec)
	coder.add(diallelic(1, []int{0, 2}, 8))
	m := coder.hapToSeq()
	mapped := coder.mappedBref4Recs(m)
	c.Assert(mapped, check.HasLen, 2)
	// For every original hap, the mapped record must agree with the
	// original on the allele assigned after composing through m.
	for h := 0; h < 8; h++ {
		c.Check(mapped[0].get(m.Get(h)), check.Equals, rec.get(h))
	}
}

func (s *seqCoderSuite) TestReuseOncePerSequencePolicy(c *check.C) {
	// A record whose non-null haps span exactly the haps of one
	// existing sequence should not create a new sequence: the
	// allele's first claim reuses that class.
	coder := newSeqCoder(4, 4)
	c.Assert(coder.nSeq, check.Equals, 1)
	ok := coder.add(diallelic(0, []int{0, 1}, 4))
	c.Assert(ok, check.Equals, true)
	c.Check(coder.nSeq, check.Equals, 2)
	// Second record: non-null allele covers exactly the complement
	// class (haps 2,3), which still holds the implicit null class;
	// it should be claimed in place rather than split again.
	ok = coder.add(diallelic(0, []int{2, 3}, 4))
	c.Assert(ok, check.Equals, true)
	c.Check(coder.nSeq, check.Equals, 2)
}
