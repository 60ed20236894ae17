// Copyright (C) The bref4 Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetOutput(os.Stderr)
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
}

func main() {
	os.Exit(RunCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// openInput opens name for reading, treating "-" as stdin.
func openInput(name string, stdin io.Reader) (io.Reader, io.Closer, error) {
	if name == "-" {
		return stdin, io.NopCloser(nil), nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, &wrappedError{kind: ErrIOError, msg: err.Error()}
	}
	return f, f, nil
}

// openOutput opens name for writing, treating "-" as stdout.
func openOutput(name string, stdout io.Writer) (io.Writer, io.Closer, error) {
	if name == "-" {
		return stdout, io.NopCloser(nil), nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, nil, &wrappedError{kind: ErrIOError, msg: err.Error()}
	}
	return f, f, nil
}

// run wires a.in to a.out through whichever of the four pipeline
// routes the suffix classification selects, and is the single place
// that knows how to turn a parsed cliArgs into a finished conversion.
func run(a *cliArgs, stdin io.Reader, stdout io.Writer, command string) error {
	in, inCloser, err := openInput(a.in, stdin)
	if err != nil {
		return err
	}
	defer inCloser.Close()
	out, outCloser, err := openOutput(a.out, stdout)
	if err != nil {
		return err
	}
	defer outCloser.Close()

	inBref4 := isBref4Path(a.in)
	outBref4 := isBref4Path(a.out)

	log.WithFields(logrus.Fields{"in": a.in, "out": a.out, "nthreads": a.nThreads}).Info("bref4: starting")

	switch {
	case !inBref4 && outBref4:
		chromTbl := newChromTable()
		src, err := openVCFReader(in, a.in, chromTbl)
		if err != nil {
			return err
		}
		nSamples := len(src.sampleIDs)
		cfg, caps, maxMaps, err := newBlockEncoderConfig(nSamples, a.bitsPerLevel, a.maxNonmajor)
		if err != nil {
			return err
		}
		dst := newBref4Writer(out)
		return compressVCFToBref4(src, dst, cfg, caps, maxMaps, a.nThreads, command)

	case inBref4 && !outBref4:
		src := newBref4Reader(in)
		metaLines, sampleIDs, err := src.readHeader()
		if err != nil {
			return err
		}
		dst, err := openVCFWriter(out, a.out, command, metaLines, sampleIDs)
		if err != nil {
			return err
		}
		return decompressBref4ToVCF(src, dst, 2*len(sampleIDs), a.nThreads)

	case inBref4 && outBref4:
		src := newBref4Reader(in)
		dst := newBref4Writer(out)
		return passThroughBref4ToBref4(src, dst, command)

	default:
		chromTbl := newChromTable()
		src, err := openVCFReader(in, a.in, chromTbl)
		if err != nil {
			return err
		}
		dst, err := openVCFWriter(out, a.out, command, src.metaLines, src.sampleIDs)
		if err != nil {
			return err
		}
		return passThroughVCFToVCF(src, dst)
	}
}
