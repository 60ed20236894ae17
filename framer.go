// Copyright (C) The bref4 Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"bytes"
	"io"
	"sync/atomic"
)

// bref4Magic is the fixed magic number at the start of every bref4
// file.
const bref4Magic uint32 = 25597034

func writeStringArray(w io.Writer, strs []string) error {
	if err := writeRestrictedInt(w, len(strs)); err != nil {
		return err
	}
	for _, s := range strs {
		if err := writeModifiedUTF8(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readStringArray(r io.Reader) ([]string, error) {
	n, err := readRestrictedInt(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, corruptBlock("negative string array length %d", n)
	}
	out := make([]string, n)
	for i := range out {
		if out[i], err = readModifiedUTF8(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// countingWriter tracks the number of bytes written so far. The
// counter is read with atomic.LoadInt64 because a pipeline's worker
// threads may report progress concurrently with the serializer
// thread advancing it; a 32-bit counter would overflow well within
// the size of files this format targets.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	atomic.AddInt64(&c.n, int64(n))
	return n, err
}

func (c *countingWriter) offset() int64 { return atomic.LoadInt64(&c.n) }

// indexEntry is one tail-index record: the position of a block's
// length prefix, its chromosome, and its first/last marker positions.
type indexEntry struct {
	offset   int64
	chrom    string
	startPos int32
	endPos   int32
}

// bref4Writer serializes the bref4 file format: header, then a
// length-prefixed block stream, then the tail index. All methods must
// be called from a single thread (the pipeline's serializer), per the
// concurrency model: only this thread mutates the output stream and
// the byte counter.
type bref4Writer struct {
	cw    *countingWriter
	index []indexEntry
}

func newBref4Writer(w io.Writer) *bref4Writer {
	return &bref4Writer{cw: &countingWriter{w: w}}
}

func (w *bref4Writer) writeHeader(metaLines, sampleIDs []string) error {
	var payload bytes.Buffer
	if err := writeStringArray(&payload, metaLines); err != nil {
		return err
	}
	if err := writeStringArray(&payload, sampleIDs); err != nil {
		return err
	}
	if err := writeUint32(w.cw, bref4Magic); err != nil {
		return err
	}
	if err := writeUint32(w.cw, uint32(payload.Len())); err != nil {
		return err
	}
	_, err := w.cw.Write(payload.Bytes())
	return err
}

// writeBlock emits one already-serialized block (from blockEncoder's
// serialize) and records its tail-index entry.
func (w *bref4Writer) writeBlock(blockBytes []byte, chrom string, startPos, endPos int32) error {
	offset := w.cw.offset()
	if err := writeUint32(w.cw, uint32(len(blockBytes))); err != nil {
		return err
	}
	if _, err := w.cw.Write(blockBytes); err != nil {
		return err
	}
	w.index = append(w.index, indexEntry{offset: offset, chrom: chrom, startPos: startPos, endPos: endPos})
	return nil
}

// finish writes the end-of-blocks sentinel, the tail index, and the
// final sentinels pointing back at it.
func (w *bref4Writer) finish() error {
	if err := writeUint32(w.cw, 0); err != nil {
		return err
	}
	indexOffset := w.cw.offset()
	for _, e := range w.index {
		if err := writeInt64(w.cw, e.offset); err != nil {
			return err
		}
		if err := writeModifiedUTF8(w.cw, e.chrom); err != nil {
			return err
		}
		if err := writeInt32(w.cw, e.startPos); err != nil {
			return err
		}
		if err := writeInt32(w.cw, e.endPos); err != nil {
			return err
		}
	}
	if err := writeInt64(w.cw, -1); err != nil {
		return err
	}
	return writeInt64(w.cw, indexOffset)
}

// bref4Reader sequences reads through a bref4 file: header, then
// blocks until the end-of-blocks sentinel. It does not read the tail
// index — the CLI never seeks by range, so the index is written but
// never consulted on the read side.
type bref4Reader struct {
	r io.Reader
}

func newBref4Reader(r io.Reader) *bref4Reader { return &bref4Reader{r: r} }

func (r *bref4Reader) readHeader() (metaLines, sampleIDs []string, err error) {
	magic, err := readUint32(r.r)
	if err != nil {
		return nil, nil, err
	}
	if magic != bref4Magic {
		return nil, nil, corruptBlock("bad magic number %d, want %d", magic, bref4Magic)
	}
	payloadLen, err := readUint32(r.r)
	if err != nil {
		return nil, nil, err
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, nil, err
	}
	pr := bytes.NewReader(payload)
	if metaLines, err = readStringArray(pr); err != nil {
		return nil, nil, err
	}
	if sampleIDs, err = readStringArray(pr); err != nil {
		return nil, nil, err
	}
	if len(sampleIDs) > (1<<30)-1 {
		return nil, nil, tooManySamples("%d samples exceeds the maximum of %d", len(sampleIDs), (1<<30)-1)
	}
	return metaLines, sampleIDs, nil
}

// nextBlock returns the next block's bytes, or ok == false at the
// end-of-blocks sentinel.
func (r *bref4Reader) nextBlock() (blockBytes []byte, ok bool, err error) {
	n, err := readUint32(r.r)
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, false, err
	}
	return buf, true, nil
}

// Bref4Index is the per-chromosome tail index: the byte offset,
// start position, and end position of each block, in file order
// (which, per the ordering guarantees, is also chromosome order).
type Bref4Index struct {
	Entries []indexEntry
}

// readBref4TailIndex reads the tail index from a reader positioned
// immediately after the end-of-blocks sentinel. It is not used by the
// sequential encode/decode pipeline (which never seeks) but exists to
// let callers verify an index after a full read, and to back
// range-based lookups a future CLI could expose.
func readBref4TailIndex(r io.Reader) (*Bref4Index, error) {
	idx := &Bref4Index{}
	for {
		offset, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		if offset == -1 {
			if _, err := readInt64(r); err != nil {
				return nil, err
			}
			return idx, nil
		}
		chrom, err := readModifiedUTF8(r)
		if err != nil {
			return nil, err
		}
		startPos, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		endPos, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		idx.Entries = append(idx.Entries, indexEntry{offset: offset, chrom: chrom, startPos: startPos, endPos: endPos})
	}
}

// deriveBlockIndexInfo parses only the small fixed fields of a block
// needed to re-derive a tail-index entry without a full record
// decode, for bref4-to-bref4 pass-through re-emission.
func deriveBlockIndexInfo(blockBytes []byte) (chrom string, startPos, endPos int32, err error) {
	r := bytes.NewReader(blockBytes)
	hdr, err := readBlockHeader(r)
	if err != nil {
		return "", 0, 0, err
	}
	startPos = hdr.lastPos
	if hdr.nRecs > 0 {
		delta, err := readRestrictedInt(r)
		if err != nil {
			return "", 0, 0, err
		}
		startPos = int32(delta)
	}
	return hdr.chrom, startPos, hdr.lastPos, nil
}
