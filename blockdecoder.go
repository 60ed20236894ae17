// Copyright (C) The bref4 Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"bytes"
	"io"
	"sort"
)

// refGTRecKind tags which of the three concrete shapes a decoded
// record was stored as.
type refGTRecKind int

const (
	refGTSparse refGTRecKind = iota
	refGTPacked
	refGTMapChain
)

// decodedRefGTRec is the block decoder's reconstruction of one
// RefGTRec. Only the branch matching kind is populated.
type decodedRefGTRec struct {
	mk   *Marker
	kind refGTRecKind

	lists   [][]int // sparse
	nullIdx int     // sparse

	packed *IndexArray // packed: length nHaps, valueSize nAlleles

	hapToSeq    *IndexArray // map-chain: length nHaps, valueSize nSeq
	seqToAllele *IndexArray // map-chain: length nSeq, valueSize nAlleles
}

func (r *decodedRefGTRec) marker() *Marker { return r.mk }

// allele returns the allele index carried by haplotype h.
func (r *decodedRefGTRec) allele(h int) int {
	switch r.kind {
	case refGTSparse:
		for a, list := range r.lists {
			if a == r.nullIdx {
				continue
			}
			i := sort.SearchInts(list, h)
			if i < len(list) && list[i] == h {
				return a
			}
		}
		return r.nullIdx
	case refGTPacked:
		return r.packed.Get(h)
	default:
		return r.seqToAllele.Get(r.hapToSeq.Get(h))
	}
}

// composeChain functionally composes an ordered list of IndexArrays:
// result[i] = maps[len(maps)-1].Get(...Get(maps[0].Get(i))...). The
// result has the same length as maps[0] and valueSize of the last map.
func composeChain(maps []*IndexArray) *IndexArray {
	cur := maps[0]
	for i := 1; i < len(maps); i++ {
		next := NewIndexArray(cur.Size(), maps[i].ValueSize())
		for h := 0; h < cur.Size(); h++ {
			next.Set(h, maps[i].Get(cur.Get(h)))
		}
		cur = next
	}
	return cur
}

// blockHeader holds the small fixed fields at the front of a block,
// enough to re-derive a tail-index entry without a full decode.
type blockHeader struct {
	nRecs   int32
	lastPos int32
	nMaps   int
	chrom   string
}

func readBlockHeader(r io.Reader) (blockHeader, error) {
	var h blockHeader
	nRecs, err := readInt32(r)
	if err != nil {
		return h, err
	}
	lastPos, err := readInt32(r)
	if err != nil {
		return h, err
	}
	var nMapsByte [1]byte
	if _, err := io.ReadFull(r, nMapsByte[:]); err != nil {
		return h, err
	}
	chrom, err := readModifiedUTF8(r)
	if err != nil {
		return h, err
	}
	h.nRecs, h.lastPos, h.nMaps, h.chrom = nRecs, lastPos, int(nMapsByte[0]), chrom
	return h, nil
}

// decodeBlock parses one block's byte payload into its records. nHaps
// is the configured 2N for the file (the domain size of a record's
// first map, or of its sparse allele lists).
func decodeBlock(blockBytes []byte, nHaps int) ([]*decodedRefGTRec, string, error) {
	r := bytes.NewReader(blockBytes)
	hdr, err := readBlockHeader(r)
	if err != nil {
		return nil, "", err
	}
	nHapToSeqMaps := (hdr.nMaps + 2) / 2

	maps := make([]*IndexArray, hdr.nMaps)
	var cachedHapToSeq *IndexArray

	records := make([]*decodedRefGTRec, 0, hdr.nRecs)
	var prevPos int32
	for i := int32(0); i < hdr.nRecs; i++ {
		delta, err := readRestrictedInt(r)
		if err != nil {
			return nil, "", err
		}
		pos := prevPos + int32(delta)
		prevPos = pos
		mk, err := readMarker(r, pos)
		if err != nil {
			return nil, "", err
		}
		var smi [1]byte
		if _, err := io.ReadFull(r, smi[:]); err != nil {
			return nil, "", err
		}
		startMapIndex := int(int8(smi[0]))

		if startMapIndex == allRecSentinel {
			rec, err := decodeSparseRec(r, mk)
			if err != nil {
				return nil, "", err
			}
			records = append(records, rec)
			continue
		}
		if startMapIndex < 0 || startMapIndex > hdr.nMaps {
			return nil, "", corruptBlock("start map index %d out of range [0,%d]", startMapIndex, hdr.nMaps)
		}
		for k := startMapIndex; k < hdr.nMaps; k++ {
			length := nHaps
			if k > 0 {
				length = maps[k-1].ValueSize()
			}
			m, err := readPackedArray(r, length)
			if err != nil {
				return nil, "", err
			}
			maps[k] = m
		}
		var hapToSeq *IndexArray
		if startMapIndex < nHapToSeqMaps {
			hapToSeq = composeChain(maps[0:nHapToSeqMaps])
			cachedHapToSeq = hapToSeq
		} else {
			if cachedHapToSeq == nil {
				return nil, "", corruptBlock("record reuses hapToSeq before any record computed it")
			}
			hapToSeq = cachedHapToSeq
		}
		rec := &decodedRefGTRec{mk: mk}
		if hdr.nMaps == nHapToSeqMaps {
			rec.kind = refGTPacked
			rec.packed = hapToSeq
		} else {
			rec.kind = refGTMapChain
			rec.hapToSeq = hapToSeq
			rec.seqToAllele = composeChain(maps[nHapToSeqMaps:hdr.nMaps])
		}
		records = append(records, rec)
	}
	return records, hdr.chrom, nil
}

func decodeSparseRec(r io.Reader, mk *Marker) (*decodedRefGTRec, error) {
	nAlleles := mk.nAlleles()
	lists := make([][]int, nAlleles)
	nullIdx := -1
	for a := 0; a < nAlleles; a++ {
		length, err := readRestrictedInt(r)
		if err != nil {
			return nil, err
		}
		if length == -1 {
			nullIdx = a
			continue
		}
		haps := make([]int, length)
		for j := range haps {
			v, err := readInt32(r)
			if err != nil {
				return nil, err
			}
			haps[j] = int(v)
		}
		lists[a] = haps
	}
	if nullIdx < 0 {
		return nil, corruptBlock("sparse record missing null allele marker")
	}
	return &decodedRefGTRec{mk: mk, kind: refGTSparse, lists: lists, nullIdx: nullIdx}, nil
}
