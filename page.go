// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flashq

import "github.com/cznic/mathutil"

// pageEngine is the linked-block page write/read layer: it knows how to
// lay bytes onto a chain of blocks threaded through a registry and how to
// recover a chain when a WritePage fails partway through a block, but it
// knows nothing about object framing.
type pageEngine struct {
	drv  Driver
	reg  *registry
	size int // driver.PageSize(), cached
}

func newPageEngine(drv Driver, reg *registry) *pageEngine {
	return &pageEngine{drv: drv, reg: reg, size: drv.PageSize()}
}

// writeCursor is the mutable position a sequence of page writes advances
// through: the current block, the next page within it, and the first
// address of the whole run (useful to the caller as an object's SID).
type writeCursor struct {
	block, page int
	first       Addr
}

// write appends data to the chain starting at cur, one page at a time,
// allocating and chaining fresh blocks as cur's current block fills up. On
// a WritePage failure it invokes the bridge-around recovery documented on
// bridgeAround and retries the same page range on the replacement
// block. It returns the updated cursor, the list of addresses written in
// order, and newHead: cur.block's value at entry unless that very block
// was itself bridged around before taking a single successful write, in
// which case newHead is its replacement — the only case a block with no
// predecessor can be reclaimed mid-write, so the only case a caller's
// separately tracked chain-head bookkeeping can go stale.
func (e *pageEngine) write(cur writeCursor, data []byte) (writeCursor, []Addr, int, error) {
	origHead := cur.block
	newHead := cur.block
	var written []Addr
	cur.first = invalidAddr
	off := 0
	for off < len(data) {
		if cur.page >= e.reg.maxPages(cur.block) {
			nb, err := e.reg.allocate()
			if err != nil {
				return cur, written, newHead, err
			}
			e.reg.chain(cur.block, nb)
			cur.block, cur.page = nb, 0
		}

		n := mathutil.Min(e.size, len(data)-off)
		buf := make([]byte, e.size)
		copy(buf, data[off:off+n])

		if err := e.drv.WritePage(cur.block, cur.page, buf); err != nil {
			failing, failingPage := cur.block, cur.page
			nb, rerr := e.bridgeAround(cur.block, cur.page)
			if rerr != nil {
				return cur, written, newHead, rerr
			}
			// Only the page==0 branch of bridgeAround reclaims the failing
			// block (it held no live data yet); the page>0 branch merely
			// truncates it in place and keeps it, still identified by the
			// same block number, as part of the chain. A caller's separate
			// chain-head bookkeeping only needs correcting in the former
			// case.
			if failing == origHead && failingPage == 0 {
				newHead = nb
			}
			cur.block, cur.page = nb, 0
			continue
		}

		if !cur.first.valid() {
			cur.first = Addr{Block: cur.block, Page: cur.page}
		}
		written = append(written, Addr{Block: cur.block, Page: cur.page})
		cur.page++
		off += n
	}
	return cur, written, newHead, nil
}

// bridgeAround recovers from a WritePage failure at (block, page). Two
// cases, both using the block's already-tracked prev pointer rather than a
// separately maintained cursor, per the redesign note this package is
// built against:
//
//   - page > 0: the block already holds live pages. Shrink its maxPages to
//     page (truncate in place) and allocate a fresh block chained after it.
//   - page == 0: the block holds nothing live yet. Unlink it from its
//     predecessor, reclaim it back to the registry, and allocate a
//     replacement chained from the same predecessor — the predecessor's
//     next pointer is rewritten, so no dangling reference to the failed
//     block survives anywhere.
func (e *pageEngine) bridgeAround(block, page int) (int, error) {
	e.reg.errorCount++
	prev := e.reg.blocks[block].prev

	if page > 0 {
		e.reg.blocks[block].maxPages = page
		nb, err := e.reg.allocate()
		if err != nil {
			return invalidBlock, err
		}
		e.reg.chain(block, nb)
		return nb, nil
	}

	e.reg.reclaim(block)
	nb, err := e.reg.allocate()
	if err != nil {
		return invalidBlock, err
	}
	if prev != invalidBlock {
		e.reg.chain(prev, nb)
	}
	return nb, nil
}

// readAt reads exactly len(buf) bytes starting at a, following next
// pointers across block boundaries as needed. It never allocates and never
// recovers from a ReadPage failure; per the Driver contract, read failures
// increment the registry's error counter and are surfaced directly.
func (e *pageEngine) readAt(a Addr, buf []byte) error {
	off := 0
	block, page := a.Block, a.Page
	for off < len(buf) {
		if page >= e.reg.maxPages(block) {
			block = e.reg.blocks[block].next
			page = 0
			if block == invalidBlock {
				return newErr("read", KindFailedStore, nil)
			}
		}

		n := mathutil.Min(e.size, len(buf)-off)
		pbuf := make([]byte, e.size)
		if err := e.drv.ReadPage(block, page, pbuf); err != nil {
			e.reg.errorCount++
			return newErr("read", KindFailedStore, err)
		}
		copy(buf[off:off+n], pbuf[:n])
		off += n
		page++
	}
	return nil
}

// advance returns the address immediately following a, threading through
// chained blocks via the registry. It reports invalidAddr when a is the
// last usable page of a block with no next block; it does not check
// whether the page it returns has been written.
func (e *pageEngine) advance(a Addr) Addr {
	page := a.Page + 1
	if page < e.reg.maxPages(a.Block) {
		return Addr{Block: a.Block, Page: page}
	}
	next := e.reg.blocks[a.Block].next
	if next == invalidBlock {
		return invalidAddr
	}
	return Addr{Block: next, Page: 0}
}
