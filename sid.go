// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flashq

// SID (Storage IDentifier) is a one-based opaque integer naming the
// (block, page) of an object's first byte. Callers must not manufacture a
// SID; round-trip only a SID returned by Enqueue or read from a Dequeue'd
// or Retrieve'd Object.
type SID int64

// invalidBlock is the sentinel block number terminating a list or marking
// an address as not-yet-allocated.
const invalidBlock = -1

// Addr is a flash address: a (block, page) pair.
type Addr struct {
	Block int
	Page  int
}

var invalidAddr = Addr{Block: invalidBlock, Page: invalidBlock}

func (a Addr) valid() bool { return a.Block != invalidBlock }

// sidFromAddr implements SID = block*pagesPerBlock + page + 1.
func sidFromAddr(a Addr, pagesPerBlock int) SID {
	return SID(int64(a.Block)*int64(pagesPerBlock) + int64(a.Page) + 1)
}

// addrFromSID is sidFromAddr's inverse.
func addrFromSID(sid SID, pagesPerBlock int) Addr {
	z := int64(sid) - 1
	return Addr{
		Block: int(z / int64(pagesPerBlock)),
		Page:  int(z % int64(pagesPerBlock)),
	}
}
