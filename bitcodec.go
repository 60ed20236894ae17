// Copyright (C) The bref4 Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"encoding/binary"
	"io"
	"math/bits"
)

// restrictedIntMax is the exclusive upper bound on restricted-int
// values: 2^30 - 2^24. The gap below 2^30 keeps every valid encoding
// from colliding with the 0xFF (-1) sentinel byte.
const restrictedIntMax = 1<<30 - 1<<24

// writeRestrictedInt writes v, which must be -1 or in [0,
// restrictedIntMax), using the tagged-byte-count layout from the
// bref4 wire format: a first byte whose top two bits give an
// additional-byte count k in {0,1,2,3} and whose low six bits hold
// the high six bits of v, followed by k big-endian bytes holding the
// low 8k bits of v. v == -1 is written as the single byte 0xFF.
func writeRestrictedInt(w io.Writer, v int) error {
	if v == -1 {
		_, err := w.Write([]byte{0xFF})
		return err
	}
	if v < 0 || v >= restrictedIntMax {
		return corruptBlock("restricted int %d out of range [-1,%d)", v, restrictedIntMax)
	}
	var k int
	switch {
	case v < 1<<6:
		k = 0
	case v < 1<<14:
		k = 1
	case v < 1<<22:
		k = 2
	default:
		k = 3
	}
	var buf [4]byte
	buf[0] = byte(k<<6) | byte((v>>uint(8*k))&0x3F)
	for i := 0; i < k; i++ {
		buf[1+i] = byte(v >> uint(8*(k-1-i)))
	}
	_, err := w.Write(buf[:1+k])
	return err
}

// readRestrictedInt is the inverse of writeRestrictedInt. Readers
// must mask off the two tag bits before assembling v.
func readRestrictedInt(r io.Reader) (int, error) {
	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		return 0, err
	}
	if first[0] == 0xFF {
		return -1, nil
	}
	k := int(first[0] >> 6)
	v := int(first[0] & 0x3F)
	if k > 0 {
		var rest [3]byte
		if _, err := io.ReadFull(r, rest[:k]); err != nil {
			return 0, err
		}
		for i := 0; i < k; i++ {
			v = (v << 8) | int(rest[i])
		}
	}
	return v, nil
}

// bitsPerValueFor returns ceil(log2(max(valueSize,2))), the number of
// bits needed to store any value in [0, valueSize).
func bitsPerValueFor(valueSize int) int {
	v := valueSize
	if v < 2 {
		v = 2
	}
	return 32 - bits.LeadingZeros32(uint32(v-1))
}

// IndexArray is a packed integer array of length Size() whose element
// values lie in [0, ValueSize()). Bits are packed LSB-first into a
// contiguous stream of 64-bit little-endian words: element i occupies
// bits [i*bitsPerValue, (i+1)*bitsPerValue) of the stream, which may
// span a word boundary.
type IndexArray struct {
	length    int
	valueSize int
	bitsPer   int
	words     []uint64
}

// NewIndexArray allocates a zero-filled IndexArray of the given
// length and value domain size.
func NewIndexArray(length, valueSize int) *IndexArray {
	bpv := bitsPerValueFor(valueSize)
	nwords := (length*bpv + 63) / 64
	return &IndexArray{
		length:    length,
		valueSize: valueSize,
		bitsPer:   bpv,
		words:     make([]uint64, nwords),
	}
}

// NewIndexArrayFromValues builds a packed IndexArray holding values,
// whose domain is [0, valueSize).
func NewIndexArrayFromValues(values []int, valueSize int) *IndexArray {
	a := NewIndexArray(len(values), valueSize)
	for i, v := range values {
		a.Set(i, v)
	}
	return a
}

func (a *IndexArray) Size() int      { return a.length }
func (a *IndexArray) ValueSize() int { return a.valueSize }

// Get returns the value at index i.
func (a *IndexArray) Get(i int) int {
	if a.bitsPer == 0 {
		return 0
	}
	bitpos := i * a.bitsPer
	wordIdx := bitpos / 64
	bitOff := uint(bitpos % 64)
	v := a.words[wordIdx] >> bitOff
	if bitOff+uint(a.bitsPer) > 64 {
		v |= a.words[wordIdx+1] << (64 - bitOff)
	}
	mask := uint64(1)<<uint(a.bitsPer) - 1
	return int(v & mask)
}

// Set stores v at index i. v must be in [0, ValueSize()).
func (a *IndexArray) Set(i, v int) {
	if a.bitsPer == 0 {
		return
	}
	bitpos := i * a.bitsPer
	wordIdx := bitpos / 64
	bitOff := uint(bitpos % 64)
	mask := uint64(1)<<uint(a.bitsPer) - 1
	a.words[wordIdx] &^= mask << bitOff
	a.words[wordIdx] |= (uint64(v) & mask) << bitOff
	if bitOff+uint(a.bitsPer) > 64 {
		spill := uint(a.bitsPer) - (64 - bitOff)
		spillMask := uint64(1)<<spill - 1
		a.words[wordIdx+1] &^= spillMask
		a.words[wordIdx+1] |= (uint64(v) >> (64 - bitOff)) & spillMask
	}
}

// Values returns the array contents as a plain slice, for callers
// that need to iterate without repeated bit extraction.
func (a *IndexArray) Values() []int {
	out := make([]int, a.length)
	for i := range out {
		out[i] = a.Get(i)
	}
	return out
}

// writePackedArray writes a.ValueSize() as a restricted int, followed
// by the packed bit-stream in 64-bit little-endian words; the final
// word is truncated to whole bytes when the remaining bit count
// allows it.
func writePackedArray(w io.Writer, a *IndexArray) error {
	if err := writeRestrictedInt(w, a.valueSize); err != nil {
		return err
	}
	totalBits := a.length * a.bitsPer
	nWords := len(a.words)
	var buf [8]byte
	for i := 0; i < nWords; i++ {
		binary.LittleEndian.PutUint64(buf[:], a.words[i])
		if i < nWords-1 {
			if _, err := w.Write(buf[:]); err != nil {
				return err
			}
			continue
		}
		leftover := totalBits % 64
		nbytes := 8
		if leftover != 0 && leftover <= 56 {
			nbytes = (leftover + 7) / 8
		}
		if _, err := w.Write(buf[:nbytes]); err != nil {
			return err
		}
	}
	return nil
}

// readPackedArray reads a packed IndexArray of the given length,
// rejecting (CorruptBlock) any stored value outside [0, valueSize).
func readPackedArray(r io.Reader, length int) (*IndexArray, error) {
	valueSize, err := readRestrictedInt(r)
	if err != nil {
		return nil, err
	}
	if valueSize < 0 {
		return nil, corruptBlock("packed array value size %d < 0", valueSize)
	}
	a := NewIndexArray(length, valueSize)
	totalBits := length * a.bitsPer
	nWords := len(a.words)
	var buf [8]byte
	for i := 0; i < nWords; i++ {
		nbytes := 8
		if i == nWords-1 {
			leftover := totalBits % 64
			if leftover != 0 && leftover <= 56 {
				nbytes = (leftover + 7) / 8
			}
		}
		for j := nbytes; j < 8; j++ {
			buf[j] = 0
		}
		if _, err := io.ReadFull(r, buf[:nbytes]); err != nil {
			return nil, err
		}
		a.words[i] = binary.LittleEndian.Uint64(buf[:])
	}
	for i := 0; i < length; i++ {
		if a.Get(i) >= valueSize {
			return nil, corruptBlock("packed array value %d at index %d >= valueSize %d", a.Get(i), i, valueSize)
		}
	}
	return a, nil
}
