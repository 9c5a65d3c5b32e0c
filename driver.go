// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flashq

// Driver is the abstract flash device capability flashq is built on: page
// read, page write, block erase, bad-block query and physical-block
// translation, plus the three device-reported geometry constants. The
// concrete device, its error semantics and any wear-leveling beyond
// round-robin allocation are all owned by the Driver implementation, not
// by flashq.
//
// A Driver is used by at most one Queue at a time and is not required to
// be safe for concurrent use; Queue serializes all access to it behind its
// own lock.
type Driver interface {
	// NumBlocks returns the number of logical blocks the device exposes.
	NumBlocks() int

	// PagesPerBlock returns the number of pages in every block.
	PagesPerBlock() int

	// PageSize returns the number of bytes in a page.
	PageSize() int

	// ReadPage reads len(buf) bytes (<= PageSize) from the given page into
	// buf. Read failures are not recoverable by flashq; they are surfaced
	// to the caller after incrementing the device error counter.
	ReadPage(block, page int, buf []byte) error

	// WritePage writes buf (<= PageSize bytes) to the given page. A
	// failure here is something flashq actively recovers from: partially
	// written blocks are truncated and a fresh block is chained in.
	WritePage(block, page int, buf []byte) error

	// EraseBlock erases a block, returning it to the all-ones state. A
	// failure demotes the block to the bad list.
	EraseBlock(block int) error

	// IsBad reports whether the driver currently considers block bad.
	// Queried every time a block is reclaimed.
	IsBad(block int) bool

	// PhysBlock returns a diagnostic physical identifier for block,
	// surfaced only through Stats' bad-block enumeration.
	PhysBlock(block int) int64
}
