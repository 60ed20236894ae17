// Copyright (C) The bref4 Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"encoding/binary"
	"io"
	"unicode/utf8"
)

// Fixed-width integer and modified-UTF-8 string helpers for the
// bref4 wire format. All fixed-width integers are big-endian; the
// packed-array bodies are little-endian internally and are handled in
// bitcodec.go.

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func writeInt32(w io.Writer, v int32) error { return writeUint32(w, uint32(v)) }

func readInt32(r io.Reader) (int32, error) {
	v, err := readUint32(r)
	return int32(v), err
}

func writeInt64(w io.Writer, v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

func readInt64(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

// writeModifiedUTF8 writes s with a 2-byte big-endian length prefix
// counting the encoded bytes, not runes. Only the NUL special case of
// Java's "modified UTF-8" is handled (encoded as the 2-byte overlong
// sequence 0xC0 0x80) since VCF text and sample names never carry
// characters outside the basic multilingual plane in practice.
func writeModifiedUTF8(w io.Writer, s string) error {
	enc := modifiedUTF8Encode(s)
	if len(enc) > 0xFFFF {
		return corruptBlock("string too long for 2-byte length prefix: %d bytes", len(enc))
	}
	var lenbuf [2]byte
	binary.BigEndian.PutUint16(lenbuf[:], uint16(len(enc)))
	if _, err := w.Write(lenbuf[:]); err != nil {
		return err
	}
	_, err := w.Write(enc)
	return err
}

func readModifiedUTF8(r io.Reader) (string, error) {
	var lenbuf [2]byte
	if _, err := io.ReadFull(r, lenbuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(lenbuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	s, ok := modifiedUTF8Decode(buf)
	if !ok {
		return "", corruptBlock("invalid modified UTF-8 string")
	}
	return s, nil
}

func modifiedUTF8Encode(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r == 0 {
			out = append(out, 0xC0, 0x80)
			continue
		}
		var tmp [utf8.UTFMax]byte
		n := utf8.EncodeRune(tmp[:], r)
		out = append(out, tmp[:n]...)
	}
	return out
}

func modifiedUTF8Decode(b []byte) (string, bool) {
	var out []rune
	for i := 0; i < len(b); {
		if b[i] == 0xC0 && i+1 < len(b) && b[i+1] == 0x80 {
			out = append(out, 0)
			i += 2
			continue
		}
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return "", false
		}
		out = append(out, r)
		i += size
	}
	return string(out), true
}
