// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flashq

// blockRecord is the per-block control record. next/prev thread the
// record intrusively through either a store's used chain or one of the
// registry's two global lists (free, bad); both are index-based rather
// than pointer-based, per the redesign note in spec §9 — this stays safe
// against aliasing in a bounds-checked language while keeping the O(1)
// splice the teacher's handle-based lldb.Allocator free lists rely on
// (lldb/falloc.go link/unlink).
type blockRecord struct {
	next, prev int
	maxPages   int // reduced below pagesPerBlock on a mid-block write failure
	pageUse    pageBitmap
}

// blockList is a doubly-linked list of blocks threaded through a
// registry's blocks slice. out is the dequeue end, in is the enqueue end.
type blockList struct {
	out, in, count int
}

func emptyList() blockList { return blockList{out: invalidBlock, in: invalidBlock} }

// registry is the Block Registry: a dense array of blockRecord indexed by
// logical block number, plus the free and bad lists threaded through it,
// and the global used/error counters.
type registry struct {
	drv           Driver
	pagesPerBlock int
	blocks        []blockRecord
	free          blockList
	bad           blockList
	usedCount     int
	errorCount    int64
}

func newRegistry(drv Driver) *registry {
	ppb := drv.PagesPerBlock()
	blocks := make([]blockRecord, drv.NumBlocks())
	for i := range blocks {
		blocks[i] = blockRecord{next: invalidBlock, prev: invalidBlock, maxPages: ppb, pageUse: newPageBitmap(ppb)}
	}
	return &registry{
		drv:           drv,
		pagesPerBlock: ppb,
		blocks:        blocks,
		free:          emptyList(),
		bad:           emptyList(),
	}
}

func (r *registry) maxPages(b int) int { return r.blocks[b].maxPages }

// chain links prev -> next directly, as in a store's write chain.
func (r *registry) chain(prev, next int) {
	r.blocks[prev].next = next
	r.blocks[next].prev = prev
}

// listAdd appends b at list's in end.
func (r *registry) listAdd(list *blockList, b int) {
	r.blocks[b].prev = list.in
	r.blocks[b].next = invalidBlock
	if list.count == 0 {
		list.out = b
	} else {
		r.blocks[list.in].next = b
	}
	list.in = b
	list.count++
}

// popOut removes and returns list's out-end member. The caller must have
// already checked list.count != 0.
func (r *registry) popOut(list *blockList) int {
	b := list.out
	next := r.blocks[b].next
	list.out = next
	if next != invalidBlock {
		r.blocks[next].prev = invalidBlock
	} else {
		list.in = invalidBlock
	}
	list.count--
	return b
}

// reclaim resets b's control record to its pristine, all-pages-live state
// and appends it to the free list, or to the bad list if the driver now
// reports b bad. It does not erase b; erasing happens lazily at
// allocation time (see allocate). reclaim reports whether b landed on the
// free list.
func (r *registry) reclaim(b int) bool {
	r.blocks[b] = blockRecord{next: invalidBlock, prev: invalidBlock, maxPages: r.pagesPerBlock, pageUse: newPageBitmap(r.pagesPerBlock)}
	if r.usedCount > 0 {
		r.usedCount--
	}
	if r.drv.IsBad(b) {
		r.listAdd(&r.bad, b)
		return false
	}
	r.listAdd(&r.free, b)
	return true
}

// allocate pops blocks from the free list's out end, lazily erasing each
// candidate. A successful erase installs the block (used count up, free
// count already down from the pop) and returns it. A failed erase
// increments the error counter, demotes the candidate to the bad list and
// retries the next free block. allocate reports errFreeListExhausted once
// the free list empties without a successful erase.
func (r *registry) allocate() (int, error) {
	for {
		if r.free.count == 0 {
			return invalidBlock, errFreeListExhausted
		}

		b := r.popOut(&r.free)
		if err := r.drv.EraseBlock(b); err != nil {
			r.errorCount++
			r.listAdd(&r.bad, b)
			continue
		}

		r.blocks[b] = blockRecord{next: invalidBlock, prev: invalidBlock, maxPages: r.pagesPerBlock, pageUse: newPageBitmap(r.pagesPerBlock)}
		r.usedCount++
		return b, nil
	}
}

// freeCapacityPages is the number of pages in whole free blocks, used by
// Enqueue's STORE_FULL precheck. Spare pages left in a store's
// already-allocated tail block are not counted, here or by Enqueue, so the
// precheck can reject an object that would have fit in them.
func (r *registry) freeCapacityPages() int64 {
	return int64(r.free.count) * int64(r.pagesPerBlock)
}
