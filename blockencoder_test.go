// Copyright (C) The bref4 Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import "gopkg.in/check.v1"

type blockEncoderSuite struct{}

var _ = check.Suite(&blockEncoderSuite{})

// bitRec builds a diallelic record over nHaps haplotypes whose carriers
// (the non-null allele) are exactly the given hap indices.
func bitRec(pos int32, nHaps int, carriers []int) Bref4Rec {
	mk := newMarker(pos, ".", "A", []string{"G"}, ".", "PASS", ".")
	return newDiallelicRec(mk, nHaps, 0, carriers)
}

// TestTopLevelAdmissionFailureForcesLevelDescent drives the block
// encoder with a sequence of splits that exactly fill a 16-sequence
// top-level partition (haps 0-15 each carrying a distinct 4-bit
// pattern, haps 16-29 always riding along with hap 0's class), then a
// fifth record that would require a 17th class. The fifth record must
// be rejected (forcing the caller to flush), and the four admitted
// records must survive a full serialize/decode round trip with their
// original per-haplotype alleles intact.
func (s *blockEncoderSuite) TestTopLevelAdmissionFailureForcesLevelDescent(c *check.C) {
	const nSamples = 15
	const nHaps = 2 * nSamples // 30; haps 16..29 never appear as carriers below

	cfg, caps, maxMaps, err := newBlockEncoderConfig(nSamples, 2, 0)
	c.Assert(err, check.IsNil)
	c.Assert(caps, check.DeepEquals, []int{16})

	enc := newBlockEncoder(cfg, caps, maxMaps)

	bitCarriers := func(bit int) []int {
		var out []int
		for h := 0; h < 16; h++ {
			if h&(1<<uint(bit)) != 0 {
				out = append(out, h)
			}
		}
		return out
	}
	records := []Bref4Rec{
		bitRec(1, nHaps, bitCarriers(0)),
		bitRec(2, nHaps, bitCarriers(1)),
		bitRec(3, nHaps, bitCarriers(2)),
		bitRec(4, nHaps, bitCarriers(3)),
	}
	for i, rec := range records {
		res := enc.add(0, rec)
		c.Assert(res, check.Equals, addOK, check.Commentf("record %d", i))
	}

	// hap 0's class (bit pattern 0000) also holds haps 16..29, which
	// never carry a non-null allele above; splitting hap 0 out of that
	// class needs a 17th sequence, one more than the capacity-16 top
	// coder can hold.
	overflow := bitRec(5, nHaps, []int{0})
	res := enc.add(0, overflow)
	c.Assert(res, check.Equals, addNeedsFlush)
	c.Assert(enc.records, check.HasLen, 4)

	blockBytes, err := enc.serialize("chr1")
	c.Assert(err, check.IsNil)

	decoded, chrom, err := decodeBlock(blockBytes, nHaps)
	c.Assert(err, check.IsNil)
	c.Check(chrom, check.Equals, "chr1")
	c.Assert(decoded, check.HasLen, 4)

	for i, rec := range records {
		for h := 0; h < nHaps; h++ {
			c.Check(decoded[i].allele(h), check.Equals, rec.get(h), check.Commentf("record %d hap %d", i, h))
		}
	}
}

// TestMultiLevelMapChainRoundTrip uses a cohort large enough for a
// two-level capacity ladder ([64 16]) and drives the partition to the
// full 64 classes with six bit-split records. The level-1 sub-coder
// (capacity 16) must spill after the fourth record, so the block holds
// a mix of chain lengths: the first record carries the full
// top-map/sub-map/hapToAllele chain, records that open a new sub-range
// carry a fresh sub-map, and the rest carry only their own
// hapToAllele. Composing each decoded chain must reproduce every
// haplotype's original allele.
func (s *blockEncoderSuite) TestMultiLevelMapChainRoundTrip(c *check.C) {
	const nSamples = 32
	const nHaps = 2 * nSamples

	cfg, caps, maxMaps, err := newBlockEncoderConfig(nSamples, 2, 0)
	c.Assert(err, check.IsNil)
	c.Assert(caps, check.DeepEquals, []int{64, 16})
	c.Assert(maxMaps, check.Equals, 3)

	enc := newBlockEncoder(cfg, caps, maxMaps)

	bitCarriers := func(bit int) []int {
		var out []int
		for h := 0; h < nHaps; h++ {
			if h&(1<<uint(bit)) != 0 {
				out = append(out, h)
			}
		}
		return out
	}
	var records []Bref4Rec
	for bit := 0; bit < 6; bit++ {
		records = append(records, bitRec(int32(bit+1), nHaps, bitCarriers(bit)))
	}
	for i, rec := range records {
		c.Assert(enc.add(0, rec), check.Equals, addOK, check.Commentf("record %d", i))
	}
	c.Check(enc.top.nSeq, check.Equals, 64)

	blockBytes, err := enc.serialize("chr7")
	c.Assert(err, check.IsNil)

	decoded, chrom, err := decodeBlock(blockBytes, nHaps)
	c.Assert(err, check.IsNil)
	c.Check(chrom, check.Equals, "chr7")
	c.Assert(decoded, check.HasLen, 6)

	for i, rec := range records {
		c.Check(decoded[i].kind, check.Equals, refGTMapChain, check.Commentf("record %d", i))
		for h := 0; h < nHaps; h++ {
			c.Check(decoded[i].allele(h), check.Equals, rec.get(h), check.Commentf("record %d hap %d", i, h))
		}
	}
}
