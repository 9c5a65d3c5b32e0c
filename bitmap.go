// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flashq

// singleBitMask[i] isolates bit i of a byte, little-endian within the
// byte. Mirrors the bit-mask table approach of a bit-addressable array
// (set/clear/test one bit at a time).
var singleBitMask = [8]byte{0x01, 0x02, 0x04, 0x08, 0x10, 0x20, 0x40, 0x80}

// pageBitmap is a store's per-block page_use bitmap: one bit per page, set
// meaning "live (or never written)", clear meaning "deleted". NAND cannot
// flip a cleared bit back to set without a full block erase, so pageBitmap
// exposes no "set a single bit" operation beyond the all-ones reset done
// on reclaim.
type pageBitmap []byte

func newPageBitmap(pages int) pageBitmap {
	b := make(pageBitmap, (pages+7)/8)
	for i := range b {
		b[i] = 0xff
	}
	return b
}

// Get reports whether page i is live.
func (b pageBitmap) Get(i int) bool {
	return b[i>>3]&singleBitMask[i&7] != 0
}

// Clear marks page i deleted.
func (b pageBitmap) Clear(i int) {
	b[i>>3] &^= singleBitMask[i&7]
}

// countClear returns the number of deleted pages in [0, maxPages).
func (b pageBitmap) countClear(maxPages int) int {
	n := 0
	for i := 0; i < maxPages; i++ {
		if !b.Get(i) {
			n++
		}
	}
	return n
}
