// Copyright (C) The bref4 Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// cliArgs holds the parsed key=value command line. The format is not
// flag-shaped (no leading dashes) so it is parsed by hand rather than
// with flag.FlagSet.
type cliArgs struct {
	in           string
	out          string
	nThreads     int
	bitsPerLevel int
	maxNonmajor  int
}

const usage = `usage: bref4 in=<path|-> out=<path|-> [nthreads=N] [bits-per-level=N] [max-nonmajor=N]

  in, out       "-" means standard input / standard output.
                Routed by suffix: .vcf, .vcf.gz, .vcf.bgz, or "-" is
                VCF; .bref4 is the bref4 binary format.
  nthreads      worker pool size (default 4)
  bits-per-level  sequence coder level-capacity growth factor exponent (default 2)
  max-nonmajor    sparse-vs-map-coded threshold override (default: auto)
`

func parseArgs(args []string) (*cliArgs, error) {
	a := &cliArgs{nThreads: 4, bitsPerLevel: 2, maxNonmajor: -1}
	for _, arg := range args {
		key, value, ok := splitKV(arg)
		if !ok {
			return nil, badArguments("argument %q is not in key=value form", arg)
		}
		var err error
		switch key {
		case "in":
			a.in = value
		case "out":
			a.out = value
		case "nthreads":
			a.nThreads, err = parsePositiveInt(key, value)
		case "bits-per-level":
			a.bitsPerLevel, err = parsePositiveInt(key, value)
		case "max-nonmajor":
			a.maxNonmajor, err = strconv.Atoi(value)
			if err == nil && a.maxNonmajor < 0 {
				err = fmt.Errorf("must be >= 0")
			}
		default:
			return nil, badArguments("unrecognized argument %q", key)
		}
		if err != nil {
			return nil, badArguments("%s=%s: %s", key, value, err)
		}
	}
	if a.in == "" || a.out == "" {
		return nil, badArguments("both in= and out= are required")
	}
	if !knownSuffix(a.in) {
		return nil, badArguments("in=%s: unrecognized suffix (want .vcf, .vcf.gz, .vcf.bgz, .bref4, or -)", a.in)
	}
	if !knownSuffix(a.out) {
		return nil, badArguments("out=%s: unrecognized suffix (want .vcf, .vcf.gz, .vcf.bgz, .bref4, or -)", a.out)
	}
	if a.in == a.out && a.in != "-" {
		return nil, badArguments("in and out must not be the same path")
	}
	return a, nil
}

func knownSuffix(name string) bool {
	switch {
	case name == "-":
		return true
	case strings.HasSuffix(name, ".vcf"),
		strings.HasSuffix(name, ".vcf.gz"),
		strings.HasSuffix(name, ".vcf.bgz"),
		strings.HasSuffix(name, ".bref4"):
		return true
	}
	return false
}

func splitKV(arg string) (key, value string, ok bool) {
	i := strings.IndexByte(arg, '=')
	if i < 0 {
		return "", "", false
	}
	return arg[:i], arg[i+1:], true
}

func parsePositiveInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	if n < 1 {
		return 0, fmt.Errorf("must be >= 1")
	}
	return n, nil
}

// RunCommand parses args, wires up the appropriate reader/writer pair
// by suffix, and runs the requested conversion. It never panics on
// bad input: every error path returns a diagnosed error for the
// caller to print and a conventional exit code.
func RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a, err := parseArgs(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		fmt.Fprint(stderr, usage)
		return 2
	}
	command := prog + " " + strings.Join(args, " ")
	if err := run(a, stdin, stdout, command); err != nil {
		fmt.Fprintln(stderr, err)
		return exitCodeFor(err)
	}
	return 0
}

func exitCodeFor(err error) int {
	if errors.Is(err, ErrBadArguments) {
		return 2
	}
	return 1
}
