// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flashq

import (
	"sort"
	"testing"

	"github.com/cznic/flashq/memdrv"
	"github.com/cznic/sortutil"
)

func newTestRegistry(numBlocks, pagesPerBlock, pageSize int, badBlocks ...int) (*memdrv.Driver, *registry) {
	drv := memdrv.New(numBlocks, pagesPerBlock, pageSize)
	for _, b := range badBlocks {
		drv.MarkBad(b)
	}
	reg := newRegistry(drv)
	for b := 0; b < numBlocks; b++ {
		if drv.IsBad(b) {
			reg.listAdd(&reg.bad, b)
		} else {
			reg.listAdd(&reg.free, b)
		}
	}
	return drv, reg
}

// P1: after init(FORMAT), free = B-Bbad, bad = Bbad, used = 0.
func TestRegistryInitCounts(t *testing.T) {
	_, reg := newTestRegistry(16, 4, 64, 3, 9)
	if g, e := reg.free.count, 14; g != e {
		t.Fatalf("free count = %d, want %d", g, e)
	}
	if g, e := reg.bad.count, 2; g != e {
		t.Fatalf("bad count = %d, want %d", g, e)
	}
	if reg.usedCount != 0 {
		t.Fatalf("used count = %d, want 0", reg.usedCount)
	}
}

// P2: allocate all blocks then reclaim them all back; the free list
// returns to a permutation of its initial contents.
func TestRegistryAllocateReclaimRoundTrip(t *testing.T) {
	_, reg := newTestRegistry(32, 4, 64)

	var got []int
	for {
		b, err := reg.allocate()
		if err != nil {
			break
		}
		got = append(got, b)
	}
	if len(got) != 32 {
		t.Fatalf("allocated %d blocks, want 32", len(got))
	}
	if reg.usedCount != 32 || reg.free.count != 0 {
		t.Fatalf("used=%d free=%d after draining, want used=32 free=0", reg.usedCount, reg.free.count)
	}

	for _, b := range got {
		reg.reclaim(b)
	}
	if reg.usedCount != 0 || reg.free.count != 32 {
		t.Fatalf("used=%d free=%d after reclaiming all, want used=0 free=32", reg.usedCount, reg.free.count)
	}

	want := make(sortutil.Int64Slice, len(got))
	for i, b := range got {
		want[i] = int64(b)
	}
	sort.Sort(want)

	var final sortutil.Int64Slice
	for b := reg.free.out; b != invalidBlock; b = reg.blocks[b].next {
		final = append(final, int64(b))
	}
	sort.Sort(final)
	if len(final) != len(want) {
		t.Fatalf("free list has %d members, want %d", len(final), len(want))
	}
	for i := range want {
		if final[i] != want[i] {
			t.Fatalf("free list permutation mismatch at %d: got %d, want %d", i, final[i], want[i])
		}
	}
}

// Allocate past the free list returns errFreeListExhausted.
func TestRegistryExhausted(t *testing.T) {
	_, reg := newTestRegistry(4, 4, 64)
	for i := 0; i < 4; i++ {
		if _, err := reg.allocate(); err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
	}
	if _, err := reg.allocate(); err != errFreeListExhausted {
		t.Fatalf("allocate past exhaustion: got %v, want errFreeListExhausted", err)
	}
}

// An erase failure during allocation demotes the candidate to the bad
// list and allocate retries the next free block.
func TestRegistryEraseFailureDemotesToBad(t *testing.T) {
	drv, reg := newTestRegistry(4, 4, 64)
	var failed int
	drv.FailErase = func(block int) bool {
		if failed == 0 {
			failed = block + 1
			return true
		}
		return false
	}

	b, err := reg.allocate()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if b == failed-1 {
		t.Fatalf("allocate returned the block whose erase failed")
	}
	if reg.bad.count != 1 {
		t.Fatalf("bad count = %d, want 1", reg.bad.count)
	}
	if reg.errorCount != 1 {
		t.Fatalf("error count = %d, want 1", reg.errorCount)
	}
}
