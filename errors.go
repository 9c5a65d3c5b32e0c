// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flashq

import (
	"errors"
	"fmt"
)

// Kind classifies the surfaced error codes of the public API.
type Kind int

const (
	// KindFailedStore reports a structural or invariant violation in a
	// store or in the device itself.
	KindFailedStore Kind = iota + 1

	// KindStoreFull reports insufficient free pages for a requested
	// Enqueue.
	KindStoreFull

	// KindTimeout reports an empty-queue Dequeue.
	KindTimeout

	// KindFailedMem reports a bookkeeping allocation failure.
	KindFailedMem

	// KindFailedOS reports failure of an OS-level capability (e.g. lock
	// creation).
	KindFailedOS

	// KindInvalidHandle reports a Create failure or use of an unknown or
	// destroyed handle.
	KindInvalidHandle
)

func (k Kind) String() string {
	switch k {
	case KindFailedStore:
		return "FAILED_STORE"
	case KindStoreFull:
		return "STORE_FULL"
	case KindTimeout:
		return "TIMEOUT"
	case KindFailedMem:
		return "FAILED_MEM"
	case KindFailedOS:
		return "FAILED_OS"
	case KindInvalidHandle:
		return "INVALID_HANDLE"
	default:
		return "UNKNOWN"
	}
}

// StoreError is the concrete error type returned by every flashq public
// API entry point that fails. Op names the failing operation, Kind is one
// of the surface codes above and Err, when non-nil, is the underlying
// cause (typically a Driver error).
type StoreError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flashq: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("flashq: %s: %s", e.Op, e.Kind)
}

func (e *StoreError) Unwrap() error { return e.Err }

func newErr(op string, kind Kind, cause error) *StoreError {
	return &StoreError{Op: op, Kind: kind, Err: cause}
}

// KindOf returns the Kind carried by err, or 0 if err is nil or not a
// *StoreError.
func KindOf(err error) Kind {
	var e *StoreError
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// errFreeListExhausted is the internal sentinel registry.allocate returns
// when the free list empties without a successful erase. Enqueue reports
// it as KindStoreFull when allocating a Store's first block and as
// KindFailedStore when it happens inside the page write itself.
var errFreeListExhausted = errors.New("flashq: free list exhausted")
