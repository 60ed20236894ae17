// Copyright (C) The bref4 Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"errors"
	"fmt"
)

// Error kinds. None of these are locally recovered: a RunCommand
// prints one diagnostic to stderr and returns a non-zero exit code.
var (
	ErrBadArguments            = errors.New("bad arguments")
	ErrBadVcfLine              = errors.New("bad vcf line")
	ErrNonContiguousChromosome = errors.New("chromosome id reappeared after another chromosome")
	ErrTooManySamples          = errors.New("too many samples")
	ErrCorruptBlock            = errors.New("corrupt block")
	ErrIOError                 = errors.New("i/o error")
)

// wrappedError attaches context to one of the sentinel error kinds
// above while still satisfying errors.Is(err, kind).
type wrappedError struct {
	kind error
	msg  string
}

func (e *wrappedError) Error() string { return e.msg }
func (e *wrappedError) Unwrap() error { return e.kind }

func badVcfLine(format string, args ...interface{}) error {
	return &wrappedError{kind: ErrBadVcfLine, msg: fmt.Sprintf(format, args...)}
}

func corruptBlock(format string, args ...interface{}) error {
	return &wrappedError{kind: ErrCorruptBlock, msg: fmt.Sprintf(format, args...)}
}

func badArguments(format string, args ...interface{}) error {
	return &wrappedError{kind: ErrBadArguments, msg: fmt.Sprintf(format, args...)}
}

func nonContiguousChromosome(format string, args ...interface{}) error {
	return &wrappedError{kind: ErrNonContiguousChromosome, msg: fmt.Sprintf(format, args...)}
}

func tooManySamples(format string, args ...interface{}) error {
	return &wrappedError{kind: ErrTooManySamples, msg: fmt.Sprintf(format, args...)}
}
