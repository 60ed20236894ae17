// Copyright (C) The bref4 Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
)

// vcfReader reads phased, non-missing, diploid-only VCF records. It
// is the "external collaborator" that owns VCF line parsing; the
// pipeline only ever sees *RefGTRec values from it.
type vcfReader struct {
	scanner    *bufio.Scanner
	metaLines  []string
	sampleIDs  []string
	chromTbl   *chromTable
	lineNumber int
}

// openVCFReader wraps rc with gzip decompression when name ends in
// .gz or .bgz (bgzip is a gzip variant; pgzip's reader handles both).
func openVCFReader(rc io.Reader, name string, chromTbl *chromTable) (*vcfReader, error) {
	br := bufio.NewReaderSize(rc, 1<<20)
	var r io.Reader = br
	if strings.HasSuffix(name, ".gz") || strings.HasSuffix(name, ".bgz") {
		gz, err := pgzip.NewReader(br)
		if err != nil {
			return nil, &wrappedError{kind: ErrIOError, msg: fmt.Sprintf("opening %s: %s", name, err)}
		}
		r = gz
	}
	v := &vcfReader{scanner: bufio.NewScanner(r), chromTbl: chromTbl}
	v.scanner.Buffer(make([]byte, 1<<20), 1<<28)
	if err := v.readHeader(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *vcfReader) readHeader() error {
	for v.scan() {
		line := v.scanner.Text()
		if strings.HasPrefix(line, "##") {
			v.metaLines = append(v.metaLines, line)
			continue
		}
		if strings.HasPrefix(line, "#CHROM") {
			cols := strings.Split(line, "\t")
			if len(cols) < 10 {
				return badVcfLine("line %d: header has no sample columns", v.lineNumber)
			}
			if len(cols)-9 > (1<<30)-1 {
				return tooManySamples("%d samples exceeds the maximum of %d", len(cols)-9, (1<<30)-1)
			}
			seen := make(map[string]bool, len(cols)-9)
			for _, id := range cols[9:] {
				if seen[id] {
					return badVcfLine("line %d: duplicate sample name %q", v.lineNumber, id)
				}
				seen[id] = true
			}
			v.sampleIDs = cols[9:]
			return nil
		}
		return badVcfLine("line %d: expected meta-information or #CHROM header", v.lineNumber)
	}
	if err := v.scanner.Err(); err != nil {
		return &wrappedError{kind: ErrIOError, msg: err.Error()}
	}
	return badVcfLine("missing #CHROM header line")
}

func (v *vcfReader) scan() bool {
	ok := v.scanner.Scan()
	if ok {
		v.lineNumber++
	}
	return ok
}

// Next returns the next data record, or nil, nil at end of input.
func (v *vcfReader) Next() (*RefGTRec, chromID, error) {
	if !v.scan() {
		if err := v.scanner.Err(); err != nil {
			return nil, 0, &wrappedError{kind: ErrIOError, msg: err.Error()}
		}
		return nil, 0, nil
	}
	return v.parseDataLine(v.scanner.Text())
}

func (v *vcfReader) parseDataLine(line string) (*RefGTRec, chromID, error) {
	cols := strings.Split(line, "\t")
	if len(cols) != 9+len(v.sampleIDs) {
		return nil, 0, badVcfLine("line %d: expected %d columns, got %d", v.lineNumber, 9+len(v.sampleIDs), len(cols))
	}
	pos, err := strconv.Atoi(cols[1])
	if err != nil {
		return nil, 0, badVcfLine("line %d: bad POS %q", v.lineNumber, cols[1])
	}
	if cols[4] == "." || cols[4] == "" {
		return nil, 0, badVcfLine("line %d: record has no alternate allele", v.lineNumber)
	}
	alts := strings.Split(cols[4], ",")
	for _, a := range alts {
		if a == "" || a == "." {
			return nil, 0, badVcfLine("line %d: malformed ALT field %q", v.lineNumber, cols[4])
		}
	}
	mk := newMarker(int32(pos), cols[2], cols[3], alts, cols[5], cols[6], cols[7])
	chrom := v.chromTbl.intern(cols[0])

	format := strings.Split(cols[8], ":")
	gtCol := -1
	for i, f := range format {
		if f == "GT" {
			gtCol = i
			break
		}
	}
	if gtCol < 0 {
		return nil, 0, badVcfLine("line %d: no GT in FORMAT", v.lineNumber)
	}

	nAlleles := mk.nAlleles()
	lists := make([][]int, nAlleles)
	counts := make([]int, nAlleles)
	alleleOfHap := make([]int, 2*len(v.sampleIDs))
	for i := 9; i < len(cols); i++ {
		sample := i - 9
		fields := strings.Split(cols[i], ":")
		if len(fields) <= gtCol {
			return nil, 0, badVcfLine("line %d: sample %d missing GT field", v.lineNumber, sample)
		}
		gt := fields[gtCol]
		sep := strings.IndexByte(gt, '|')
		if sep < 0 {
			if strings.IndexByte(gt, '/') >= 0 {
				return nil, 0, badVcfLine("line %d: unphased genotype %q", v.lineNumber, gt)
			}
			return nil, 0, badVcfLine("line %d: non-diploid genotype %q", v.lineNumber, gt)
		}
		a0, err0 := strconv.Atoi(gt[:sep])
		a1, err1 := strconv.Atoi(gt[sep+1:])
		if err0 != nil || err1 != nil {
			return nil, 0, badVcfLine("line %d: missing or malformed genotype %q", v.lineNumber, gt)
		}
		if a0 < 0 || a0 >= nAlleles || a1 < 0 || a1 >= nAlleles {
			return nil, 0, badVcfLine("line %d: allele index out of range in %q", v.lineNumber, gt)
		}
		alleleOfHap[2*sample] = a0
		alleleOfHap[2*sample+1] = a1
		counts[a0]++
		counts[a1]++
	}

	majorAllele := 0
	for a := 1; a < nAlleles; a++ {
		if counts[a] > counts[majorAllele] {
			majorAllele = a
		}
	}
	for h, a := range alleleOfHap {
		if a == majorAllele {
			continue
		}
		lists[a] = append(lists[a], h)
	}
	return newRefGTRec(mk, len(alleleOfHap), lists, majorAllele), chrom, nil
}

// vcfWriter emits GT-only VCF: meta-lines, an inserted bref4Command
// line recording the invocation, the #CHROM header, then one data
// line per record.
type vcfWriter struct {
	w         *bufio.Writer
	gz        io.Closer
	sampleIDs []string
}

func openVCFWriter(w io.Writer, name, command string, metaLines, sampleIDs []string) (*vcfWriter, error) {
	vw := &vcfWriter{sampleIDs: sampleIDs}
	if strings.HasSuffix(name, ".gz") || strings.HasSuffix(name, ".bgz") {
		gz := pgzip.NewWriter(w)
		vw.gz = gz
		vw.w = bufio.NewWriterSize(gz, 1<<20)
	} else {
		vw.w = bufio.NewWriterSize(w, 1<<20)
	}
	for _, line := range metaLines {
		if _, err := fmt.Fprintln(vw.w, line); err != nil {
			return nil, &wrappedError{kind: ErrIOError, msg: err.Error()}
		}
	}
	if _, err := fmt.Fprintf(vw.w, "##bref4Command=%q\n", command); err != nil {
		return nil, &wrappedError{kind: ErrIOError, msg: err.Error()}
	}
	cols := append([]string{"#CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO", "FORMAT"}, sampleIDs...)
	if _, err := fmt.Fprintln(vw.w, strings.Join(cols, "\t")); err != nil {
		return nil, &wrappedError{kind: ErrIOError, msg: err.Error()}
	}
	return vw, nil
}

// writeRecord prints one data line. alleleAt(h) returns the allele
// index carried by haplotype h, abstracting over the concrete
// RefGTRec storage shape (sparse, packed, or map-chain) the caller
// decoded.
func (vw *vcfWriter) writeRecord(mk *Marker, chromName string, alleleAt func(h int) int) error {
	altField := "."
	if len(mk.alts) > 0 {
		altField = strings.Join(mk.alts, ",")
	}
	if _, err := fmt.Fprintf(vw.w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\tGT",
		chromName, mk.pos, orDot(mk.id), orDot(mk.ref), altField, orDot(mk.qual), orDot(mk.filter), orDot(mk.info)); err != nil {
		return &wrappedError{kind: ErrIOError, msg: err.Error()}
	}
	for s := 0; s < len(vw.sampleIDs); s++ {
		a0 := alleleAt(2 * s)
		a1 := alleleAt(2*s + 1)
		if _, err := fmt.Fprintf(vw.w, "\t%d|%d", a0, a1); err != nil {
			return &wrappedError{kind: ErrIOError, msg: err.Error()}
		}
	}
	_, err := fmt.Fprintln(vw.w)
	return err
}

func orDot(s string) string {
	if s == "" {
		return "."
	}
	return s
}

func (vw *vcfWriter) Flush() error {
	if err := vw.w.Flush(); err != nil {
		return err
	}
	if vw.gz != nil {
		return vw.gz.Close()
	}
	return nil
}
