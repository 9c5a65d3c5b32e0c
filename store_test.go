// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flashq

import (
	"bytes"
	"testing"

	"github.com/cznic/flashq/memdrv"
)

// P4: retrieve idempotence.
func TestRetrieveIdempotent(t *testing.T) {
	q, _ := newTestQueue(t, 4, 4, 64)
	h, _ := q.Create(Attributes{})

	payload := []byte("idempotent")
	sid, err := q.Enqueue(h, payload, nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	obj, err := q.Dequeue(h)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if err := q.Release(h, obj.SID); err != nil {
		t.Fatalf("Release: %v", err)
	}

	got, err := q.Retrieve(h, sid)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !bytes.Equal(got.Data, payload) {
		t.Fatalf("Retrieve payload = %q, want %q", got.Data, payload)
	}
	if err := q.Release(h, sid); err != nil {
		t.Fatalf("Release after Retrieve: %v", err)
	}
}

// P5: count law.
func TestCountLaw(t *testing.T) {
	q, _ := newTestQueue(t, 8, 8, 64)
	h, _ := q.Create(Attributes{})

	var sids []SID
	for i := 0; i < 5; i++ {
		sid, err := q.Enqueue(h, []byte{byte(i)}, nil)
		if err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
		sids = append(sids, sid)
	}

	for _, sid := range sids[:2] {
		if err := q.Relinquish(h, sid); err != nil {
			t.Fatalf("Relinquish: %v", err)
		}
	}

	n, err := q.GetCount(h)
	if err != nil {
		t.Fatalf("GetCount: %v", err)
	}
	if n != 3 {
		t.Fatalf("GetCount = %d, want 3", n)
	}
}

// P6: device full.
func TestEnqueueStoreFull(t *testing.T) {
	q, _ := newTestQueue(t, 2, 2, 64)
	h, _ := q.Create(Attributes{})

	payload := make([]byte, 64*4) // more than the whole device (2 blocks * 2 pages) can hold
	if _, err := q.Enqueue(h, payload, nil); KindOf(err) != KindStoreFull {
		t.Fatalf("Enqueue over capacity: err = %v, want KindStoreFull", err)
	}
}

// Boundary: empty dequeue returns TIMEOUT without touching the stage.
func TestDequeueEmptyTimesOut(t *testing.T) {
	q, _ := newTestQueue(t, 4, 4, 64)
	h, _ := q.Create(Attributes{})

	if _, err := q.Dequeue(h); KindOf(err) != KindTimeout {
		t.Fatalf("Dequeue on empty store: err = %v, want KindTimeout", err)
	}
}

// Boundary: dequeue while the stage is locked fails.
func TestDequeueWhileLocked(t *testing.T) {
	q, _ := newTestQueue(t, 4, 4, 64)
	h, _ := q.Create(Attributes{})

	if _, err := q.Enqueue(h, []byte("one"), nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Enqueue(h, []byte("two"), nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Dequeue(h); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if _, err := q.Dequeue(h); KindOf(err) != KindFailedStore {
		t.Fatalf("Dequeue while locked: err = %v, want KindFailedStore", err)
	}
}

// Boundary: release with a mismatched SID fails and leaves the stage
// locked.
func TestReleaseMismatch(t *testing.T) {
	q, _ := newTestQueue(t, 4, 4, 64)
	h, _ := q.Create(Attributes{})

	sid, _ := q.Enqueue(h, []byte("one"), nil)
	obj, err := q.Dequeue(h)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}

	if err := q.Release(h, sid+1); KindOf(err) != KindFailedStore {
		t.Fatalf("Release mismatched SID: err = %v, want KindFailedStore", err)
	}
	// stage still locked: a second Dequeue must still fail.
	if _, err := q.Dequeue(h); KindOf(err) != KindFailedStore {
		t.Fatalf("Dequeue after mismatched Release: err = %v, want KindFailedStore", err)
	}
	if err := q.Release(h, obj.SID); err != nil {
		t.Fatalf("Release with correct SID: %v", err)
	}
}

// Scenario 1: init(FORMAT) on a fresh device.
func TestInitFormatScenario(t *testing.T) {
	q, _ := newTestQueue(t, 256, 128, 512)
	st := q.Stat(false)
	if st.FreeBlocks != 256 || st.UsedBlocks != 0 || st.BadBlocks != 0 {
		t.Fatalf("Stat = %+v, want free=256 used=0 bad=0", st)
	}
}

// Scenario 5: store table reuse after Destroy.
func TestStoreTableReuse(t *testing.T) {
	q, _ := newTestQueue(t, 64, 4, 64)

	var handles []Handle
	for i := 0; i < 16; i++ {
		h, err := q.Create(Attributes{})
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		handles = append(handles, h)
	}
	if _, err := q.Create(Attributes{}); KindOf(err) != KindInvalidHandle {
		t.Fatalf("17th Create: err = %v, want KindInvalidHandle", err)
	}

	if err := q.Destroy(handles[3]); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	got, err := q.Create(Attributes{})
	if err != nil {
		t.Fatalf("Create after Destroy: %v", err)
	}
	if got != handles[3] {
		t.Fatalf("Create after Destroy returned %d, want reused slot %d", got, handles[3])
	}
}

// Scenario 6: relinquish mid-queue, dequeue the remainder in order.
func TestRelinquishMidQueue(t *testing.T) {
	q, _ := newTestQueue(t, 64, 8, 64)
	h, _ := q.Create(Attributes{})

	var sids []SID
	for i := 0; i < 10; i++ {
		sid, err := q.Enqueue(h, []byte{byte(i)}, nil)
		if err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
		sids = append(sids, sid)
	}

	if err := q.Relinquish(h, sids[2]); err != nil {
		t.Fatalf("Relinquish 3rd: %v", err)
	}
	if err := q.Relinquish(h, sids[6]); err != nil {
		t.Fatalf("Relinquish 7th: %v", err)
	}

	var got []byte
	for {
		obj, err := q.Dequeue(h)
		if KindOf(err) == KindTimeout {
			break
		}
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		got = append(got, obj.Data[0])
		if err := q.Release(h, obj.SID); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}

	want := []byte{0, 1, 3, 4, 5, 7, 8, 9}
	if !bytes.Equal(got, want) {
		t.Fatalf("dequeued order = %v, want %v", got, want)
	}

	n, err := q.GetCount(h)
	if err != nil {
		t.Fatalf("GetCount: %v", err)
	}
	if n != 8 {
		t.Fatalf("GetCount = %d, want 8", n)
	}
}

// A write failure partway through a block (page > 0) truncates that block
// in place and chains a fresh one after it; the chain head is unaffected
// since the truncated block still holds its earlier, successfully written
// pages.
func TestEnqueueBridgeAroundOnWriteFailure(t *testing.T) {
	drv := memdrv.New(4, 4, 64)
	q := NewQueue(drv, nil, fixedClock(0), Config{MaxStores: 16})
	if _, err := q.Init(InitFormat); err != nil {
		t.Fatalf("Init: %v", err)
	}
	h, err := q.Create(Attributes{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	failed := false
	drv.FailWrite = func(block, page int) bool {
		if !failed && block == 0 && page == 2 {
			failed = true
			return true
		}
		return false
	}

	payload := make([]byte, 200) // headerSize+200 = 232 bytes = 4 pages at 64B
	for i := range payload {
		payload[i] = byte(i)
	}
	sid, err := q.Enqueue(h, payload, nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !failed {
		t.Fatalf("injected write failure at block 0 page 2 never triggered")
	}

	s := q.stores[h]
	if s.headBlock != 0 {
		t.Fatalf("headBlock = %d, want 0 (truncate-in-place keeps the original chain head)", s.headBlock)
	}
	if q.reg.blocks[0].maxPages != 2 {
		t.Fatalf("block 0 maxPages = %d, want 2 (truncated at the failing page)", q.reg.blocks[0].maxPages)
	}
	if q.reg.errorCount != 1 {
		t.Fatalf("errorCount = %d, want 1", q.reg.errorCount)
	}

	obj, err := q.Dequeue(h)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if obj.SID != sid {
		t.Fatalf("SID = %d, want %d", obj.SID, sid)
	}
	if !bytes.Equal(obj.Data, payload) {
		t.Fatalf("payload mismatch after bridge-around recovery")
	}
}
