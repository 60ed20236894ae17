// Copyright (C) The bref4 Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"bytes"
	"math/bits"
)

// allRecSentinel is the signed-byte value marking a sparsely-stored
// ("ALLELE_REC") record in the per-record start-map-index field. It
// deliberately shares the 0xFF byte with restricted-int's -1 sentinel
// so that the two framing concepts never need separate constants.
const allRecSentinel = -1

// blockEncoderConfig holds the two policy knobs that shape the level
// ladder and the sparse/map-coded split.
type blockEncoderConfig struct {
	nSamples     int
	bitsPerLevel int
	maxNonmajor  int
}

// defaultMaxNonmajor implements max(4, 4*(floor(log2(2N)) - 11)).
func defaultMaxNonmajor(nHaps int) int {
	if nHaps < 2 {
		return 4
	}
	log2 := bits.Len(uint(nHaps)) - 1
	v := 4 * (log2 - 11)
	if v < 4 {
		v = 4
	}
	return v
}

// computeLevelCaps builds the geometric capacity ladder: starting
// from 16, multiplying by 2^bitsPerLevel while the running value is
// <= nSamples, then reversing so index 0 holds the largest capacity.
func computeLevelCaps(nSamples, bitsPerLevel int) []int {
	caps := []int{16}
	for caps[len(caps)-1] <= nSamples {
		caps = append(caps, caps[len(caps)-1]<<uint(bitsPerLevel))
	}
	for i, j := 0, len(caps)-1; i < j; i, j = i+1, j-1 {
		caps[i], caps[j] = caps[j], caps[i]
	}
	return caps
}

// newBlockEncoderConfig validates the level ladder implied by cfg and
// returns it along with maxMaps, rejecting configurations whose chain
// length would not fit the one-byte nMaps field rather than truncating
// silently at encode time.
func newBlockEncoderConfig(nSamples, bitsPerLevel, maxNonmajor int) (blockEncoderConfig, []int, int, error) {
	if bitsPerLevel < 1 {
		return blockEncoderConfig{}, nil, 0, badArguments("bits-per-level must be >= 1, got %d", bitsPerLevel)
	}
	caps := computeLevelCaps(nSamples, bitsPerLevel)
	maxMaps := len(caps) + 1
	if maxMaps > 255 {
		return blockEncoderConfig{}, nil, 0, badArguments("configuration yields %d maps per record, exceeding the 255 byte-field limit; increase bits-per-level", maxMaps)
	}
	if maxNonmajor < 0 {
		maxNonmajor = defaultMaxNonmajor(2 * nSamples)
	}
	return blockEncoderConfig{nSamples: nSamples, bitsPerLevel: bitsPerLevel, maxNonmajor: maxNonmajor}, caps, maxMaps, nil
}

// storeAsHapCodedRec decides whether rec should be stored through the
// map chain (eligible) or as a sparse allele list.
func storeAsHapCodedRec(rec Bref4Rec, caps []int, maxNonmajor int) bool {
	nonMajor := 0
	for allele, list := range rec.alleleToHaps() {
		if allele == rec.nullRow() {
			continue
		}
		nonMajor += len(list)
	}
	if nonMajor <= maxNonmajor {
		return false
	}
	smallestCap := caps[len(caps)-1]
	limit := smallestCap
	if limit > 256 {
		limit = 256
	}
	return rec.nAlleles() <= limit
}

// blockEncoder accumulates records for one chromosome's worth of
// input (or until the sequence coder can no longer admit a record)
// and serializes the finished block.
type blockEncoder struct {
	cfg     blockEncoderConfig
	caps    []int
	maxMaps int

	chrom    chromID
	haveRecs bool
	firstPos int32
	lastPos  int32

	top      *seqCoder
	records  []Bref4Rec // all records (eligible or sparse), in order
	eligible []bool
}

func newBlockEncoder(cfg blockEncoderConfig, caps []int, maxMaps int) *blockEncoder {
	nHaps := 2 * cfg.nSamples
	return &blockEncoder{
		cfg:     cfg,
		caps:    caps,
		maxMaps: maxMaps,
		top:     newSeqCoder(nHaps, caps[0]),
	}
}

func (e *blockEncoder) empty() bool { return len(e.records) == 0 }

// addResult tells the caller what happened when adding a record: the
// record was buffered, or the block is full and must be flushed
// before the record can be retried.
type addResult int

const (
	addOK addResult = iota
	addNeedsFlush
)

// add buffers rec into the in-progress block. It returns addNeedsFlush
// without buffering anything when chrom differs from the block's
// current chromosome (the caller must flush and create a fresh
// encoder for the new chromosome) or when the sequence coder can no
// longer admit an eligible record.
func (e *blockEncoder) add(chrom chromID, rec Bref4Rec) addResult {
	if e.haveRecs && chrom != e.chrom {
		return addNeedsFlush
	}
	eligible := storeAsHapCodedRec(rec, e.caps, e.cfg.maxNonmajor)
	if eligible && !e.top.add(rec) {
		return addNeedsFlush
	}
	if !e.haveRecs {
		e.chrom = chrom
		e.firstPos = rec.marker().position()
		e.haveRecs = true
	}
	e.lastPos = rec.marker().position()
	e.records = append(e.records, rec)
	e.eligible = append(e.eligible, eligible)
	return addOK
}

// storeMaps implements the recursive level-descent step described for
// the block encoder: at level, a fresh sub-coder of capacity
// caps[level+1] is fed recs in order; each time it cannot admit a
// record, its current hapToSeq is appended to the bucket belonging to
// the sub-range's first record, and the sub-range recurses one level
// deeper. At the final level, every record's own hapToAllele is
// appended to its own bucket.
func storeMaps(level, firstIdx int, recs []Bref4Rec, buckets [][]*IndexArray, caps []int) {
	if level+1 >= len(caps) {
		for i, rec := range recs {
			buckets[firstIdx+i] = append(buckets[firstIdx+i], rec.hapToAllele())
		}
		return
	}
	sub := newSeqCoder(recs[0].size(), caps[level+1])
	lastStart := 0
	for j := 0; j < len(recs); j++ {
		if sub.add(recs[j]) {
			continue
		}
		m := sub.hapToSeq()
		buckets[firstIdx+lastStart] = append(buckets[firstIdx+lastStart], m)
		storeMaps(level+1, firstIdx+lastStart, sub.mappedBref4Recs(m), buckets, caps)
		sub.clear()
		lastStart = j
		if !sub.add(recs[j]) {
			panic("bref4: re-adding a record to a freshly cleared coder must succeed")
		}
	}
	m := sub.hapToSeq()
	buckets[firstIdx+lastStart] = append(buckets[firstIdx+lastStart], m)
	storeMaps(level+1, firstIdx+lastStart, sub.mappedBref4Recs(m), buckets, caps)
}

// buildMapChains runs the top-level coder's hapToSeq through the
// recursive descent and returns one map-chain bucket per eligible
// record, aligned by position with e.records.
func (e *blockEncoder) buildMapChains() [][]*IndexArray {
	nEligible := 0
	for _, el := range e.eligible {
		if el {
			nEligible++
		}
	}
	buckets := make([][]*IndexArray, nEligible)
	if nEligible == 0 {
		return buckets
	}
	if len(e.caps) == 0 {
		i := 0
		for idx, el := range e.eligible {
			if el {
				buckets[i] = append(buckets[i], e.records[idx].hapToAllele())
				i++
			}
		}
		return buckets
	}
	m := e.top.hapToSeq()
	buckets[0] = append(buckets[0], m)
	storeMaps(0, 0, e.top.mappedBref4Recs(m), buckets, e.caps)
	return buckets
}

// serialize produces the on-wire bytes for the block.
func (e *blockEncoder) serialize(chromName string) ([]byte, error) {
	chains := e.buildMapChains()
	var buf bytes.Buffer
	if err := writeInt32(&buf, int32(len(e.records))); err != nil {
		return nil, err
	}
	if err := writeInt32(&buf, e.lastPos); err != nil {
		return nil, err
	}
	nMapsFirst := 0
	if len(chains) > 0 {
		nMapsFirst = len(chains[0])
	}
	if _, err := buf.Write([]byte{byte(nMapsFirst)}); err != nil {
		return nil, err
	}
	if err := writeModifiedUTF8(&buf, chromName); err != nil {
		return nil, err
	}
	var prevPos int32
	eligibleIdx := 0
	for i, rec := range e.records {
		mk := rec.marker()
		if err := writeRestrictedInt(&buf, int(mk.position()-prevPos)); err != nil {
			return nil, err
		}
		prevPos = mk.position()
		if err := mk.writeNonPosFields(&buf); err != nil {
			return nil, err
		}
		if e.eligible[i] {
			chain := chains[eligibleIdx]
			eligibleIdx++
			startIndex := e.maxMaps - len(chain)
			if _, err := buf.Write([]byte{byte(startIndex)}); err != nil {
				return nil, err
			}
			for _, m := range chain {
				if err := writePackedArray(&buf, m); err != nil {
					return nil, err
				}
			}
			continue
		}
		sentinel := int8(allRecSentinel)
		if _, err := buf.Write([]byte{byte(sentinel)}); err != nil {
			return nil, err
		}
		lists := rec.alleleToHaps()
		for a, list := range lists {
			if a == rec.nullRow() {
				if err := writeRestrictedInt(&buf, -1); err != nil {
					return nil, err
				}
				continue
			}
			if err := writeRestrictedInt(&buf, len(list)); err != nil {
				return nil, err
			}
			for _, h := range list {
				if err := writeInt32(&buf, int32(h)); err != nil {
					return nil, err
				}
			}
		}
	}
	return buf.Bytes(), nil
}
