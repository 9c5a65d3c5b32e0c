// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flashq

import "sync"

// Handle names a slot in a Queue's fixed-size store table. Handles are
// reused: destroying a Store frees its slot for the next Create, so a
// Handle value is only meaningful for the lifetime between the Create
// that returned it and the matching Destroy.
type Handle int

// InitMode selects how Init builds a Queue's block bookkeeping.
type InitMode int

const (
	// InitFormat wipes any existing bookkeeping: every block not already
	// reported bad by the driver starts life on the free list, and no
	// Store exists until Create is called.
	InitFormat InitMode = iota

	// InitRecover is reserved for a future crash-recovery implementation;
	// see recover.go. It currently behaves identically to InitFormat.
	InitRecover
)

// Config sizes a Queue independently of device geometry.
type Config struct {
	// MaxStores is the store table size (FLASH_MAX_STORES). Defaults to
	// 16 when zero.
	MaxStores int
}

func (c Config) withDefaults() Config {
	if c.MaxStores <= 0 {
		c.MaxStores = 16
	}
	return c
}

// Attributes configures a Store at Create time. MaxDataSize bounds the
// payload bytes of a single object (excluding the header); 0 selects a
// default that is effectively unbounded by anything other than device
// capacity. A non-zero MaxDataSize smaller than the device's page size is
// rejected, since no object framing could ever fit a page.
type Attributes struct {
	MaxDataSize int
}

const defaultMaxDataSize = 1 << 30

// storeRecord is a live Store's mutable bookkeeping: read and write
// cursors into its block chain plus the single-checkout read stage shared
// by Dequeue and Retrieve.
type storeRecord struct {
	totalBound int // Attributes.MaxDataSize + headerSize

	headBlock int // first block of this store's chain; updated as it is reclaimed
	writeCur  writeCursor
	readAddr  Addr // next address Dequeue will serve

	count int64 // live (un-relinquished) objects

	stageLocked bool
	stagedSID   SID
	stagedAddr  Addr
	stagedSize  int
}

// Object is the payload and bookkeeping handed back by Dequeue and
// Retrieve.
type Object struct {
	SID       SID
	Handle    Handle
	Timestamp int64
	Data      []byte
}

// Stats summarizes device-wide health, as reported by Stat.
type Stats struct {
	UsedBlocks int
	FreeBlocks int
	BadBlocks  int
	ErrorCount int64
}

// Queue is a persistent object store multiplexed over one Driver. All
// exported methods except Release and GetCount serialize on a single
// process-wide lock: there is exactly one critical section, entered and
// left around every operation that touches the block registry or a
// store's cursors.
type Queue struct {
	mu    sync.Mutex
	drv   Driver
	log   Logger
	clock Clock
	cfg   Config

	reg  *registry
	page *pageEngine

	stores   []*storeRecord // nil entry == free slot
	pageSize int
}

// NewQueue constructs a Queue over drv without touching it; call Init
// before any other method. log may be nil, in which case Stat's bad-block
// enumeration is silently skipped. clock may be nil, in which case
// SystemClock is used.
func NewQueue(drv Driver, log Logger, clock Clock, cfg Config) *Queue {
	if clock == nil {
		clock = SystemClock{}
	}
	cfg = cfg.withDefaults()
	return &Queue{
		drv:      drv,
		log:      log,
		clock:    clock,
		cfg:      cfg,
		stores:   make([]*storeRecord, cfg.MaxStores),
		pageSize: drv.PageSize(),
	}
}

func (q *Queue) enter() { q.mu.Lock() }
func (q *Queue) leave() { q.mu.Unlock() }

// Init (re)builds the block registry from drv's current bad-block
// reporting and clears the store table. InitRecover is reserved (see
// recover.go) and currently behaves like InitFormat. Init returns the
// number of blocks placed on the free list.
func (q *Queue) Init(mode InitMode) (int, error) {
	q.enter()
	defer q.leave()

	reg := newRegistry(q.drv)
	reclaimed := 0
	for b := 0; b < q.drv.NumBlocks(); b++ {
		if q.drv.IsBad(b) {
			reg.listAdd(&reg.bad, b)
			continue
		}
		reg.listAdd(&reg.free, b)
		reclaimed++
	}
	q.reg = reg
	q.page = newPageEngine(q.drv, reg)
	q.stores = make([]*storeRecord, q.cfg.MaxStores)

	if mode == InitRecover {
		if err := q.recover(); err != nil {
			return reclaimed, err
		}
	}
	return reclaimed, nil
}

// Create finds the first free slot in the store table and returns its
// Handle. Both of the new Store's addresses start invalid: a Store owns no
// blocks until its first Enqueue, so an empty Store destroyed without ever
// being written to leaks nothing.
func (q *Queue) Create(attrs Attributes) (Handle, error) {
	q.enter()
	defer q.leave()

	slot := -1
	for i, s := range q.stores {
		if s == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		return 0, newErr("create", KindInvalidHandle, nil)
	}

	maxData := attrs.MaxDataSize
	if maxData == 0 {
		maxData = defaultMaxDataSize
	} else if maxData < q.pageSize {
		return 0, newErr("create", KindInvalidHandle, nil)
	}

	q.stores[slot] = &storeRecord{
		totalBound: maxData + headerSize,
		headBlock:  invalidBlock,
		writeCur:   writeCursor{block: invalidBlock, page: 0},
		readAddr:   invalidAddr,
	}
	return Handle(slot), nil
}

func (q *Queue) store(h Handle) (*storeRecord, error) {
	if int(h) < 0 || int(h) >= len(q.stores) || q.stores[h] == nil {
		return nil, newErr("", KindInvalidHandle, nil)
	}
	return q.stores[h], nil
}

// Destroy frees h's slot in the store table. It does not reclaim the
// blocks still referenced by the store's chain — behavior is undefined if
// destroyed with live data; callers are expected to Relinquish everything
// first.
func (q *Queue) Destroy(h Handle) error {
	q.enter()
	defer q.leave()

	if _, err := q.store(h); err != nil {
		return newErr("destroy", KindInvalidHandle, nil)
	}
	q.stores[h] = nil
	return nil
}

// Enqueue frames d1 and the optional d2 as one object owned by h and
// appends it to h's write chain, returning the new object's SID. d2 may be
// nil.
func (q *Queue) Enqueue(h Handle, d1, d2 []byte) (SID, error) {
	q.enter()
	defer q.leave()

	s, err := q.store(h)
	if err != nil {
		return 0, newErr("enqueue", KindInvalidHandle, nil)
	}

	needed := headerSize + len(d1) + len(d2)
	if needed > s.totalBound {
		return 0, newErr("enqueue", KindStoreFull, nil)
	}
	if int64(q.reg.freeCapacityPages())*int64(q.pageSize) < int64(needed) {
		return 0, newErr("enqueue", KindStoreFull, nil)
	}

	if s.writeCur.block == invalidBlock {
		// First Enqueue on this Store: it owns no blocks yet. Allocate its
		// chain head now, not at Create, and point read_addr at the same
		// place if the Store has never been read from either.
		b, err := q.reg.allocate()
		if err != nil {
			return 0, newErr("enqueue", KindStoreFull, err)
		}
		s.headBlock = b
		s.writeCur = writeCursor{block: b, page: 0}
		if !s.readAddr.valid() {
			s.readAddr = Addr{Block: b, Page: 0}
		}
	}

	sid := sidFromAddr(Addr{Block: s.writeCur.block, Page: s.writeCur.page}, q.reg.pagesPerBlock)
	hdr := Header{
		Magic:     syncMagic,
		Timestamp: q.clock.Now(),
		Handle:    h,
		Size:      uint32(len(d1) + len(d2)),
		SID:       sid,
	}
	wasEmptyAt := s.readAddr
	addr, next, newHead, err := q.page.objectWrite(s.writeCur, hdr, d1, d2)
	if newHead != s.writeCur.block {
		// Bridge-around reclaimed the block this write started in and
		// replaced it with newHead: repoint whatever referred to it.
		if wasEmptyAt.Block == s.writeCur.block {
			s.readAddr = Addr{Block: newHead, Page: 0}
		}
		if s.headBlock == s.writeCur.block {
			s.headBlock = newHead
		}
	}
	if err != nil {
		return 0, newErr("enqueue", KindFailedStore, err)
	}
	if addr != (Addr{Block: s.writeCur.block, Page: s.writeCur.page}) {
		// The header's first byte lands somewhere other than the
		// pre-write cursor when the cursor sat past the end of a full
		// block (write chains a fresh block first) or when bridge-around
		// replaced the cursor's block before any page succeeded;
		// recompute to match where it actually went.
		sid = sidFromAddr(addr, q.reg.pagesPerBlock)
	}

	s.writeCur = next
	s.count++
	return sid, nil
}

// skipObject advances a past an object of the given payload size, one page
// at a time, the way a forward chain walk would.
func (q *Queue) skipObject(a Addr, size int) Addr {
	n := objectPages(size, q.pageSize)
	for i := 0; i < n; i++ {
		a = q.page.advance(a)
		if !a.valid() {
			break
		}
	}
	return a
}

// Dequeue serves the oldest not-yet-served object of h's Store and locks
// its Store's read stage; the caller must Release before the next Dequeue
// or Retrieve on the same Store. An empty store reports KindTimeout
// without touching the read stage. A corrupt record advances the read
// cursor past it via objectScan before surfacing the original error, so a
// later Dequeue can make progress.
func (q *Queue) Dequeue(h Handle) (*Object, error) {
	q.enter()
	defer q.leave()

	s, err := q.store(h)
	if err != nil {
		return nil, newErr("dequeue", KindInvalidHandle, nil)
	}
	if s.stageLocked {
		return nil, newErr("dequeue", KindFailedStore, nil)
	}
	if s.writeCur.block == invalidBlock {
		// Nothing has ever been enqueued: the Store owns no blocks yet.
		return nil, newErr("dequeue", KindTimeout, nil)
	}

	maxPayload := s.totalBound - headerSize

	// Skip objects already Relinquished: their header is still physically
	// intact (deletion is page_use bookkeeping only, see object.go), but
	// they must not be served again.
	for s.readAddr.valid() && !q.reg.blocks[s.readAddr.Block].pageUse.Get(s.readAddr.Page) {
		hdr, _, err := q.page.objectRead(s.readAddr, h, maxPayload)
		if err != nil {
			s.readAddr = q.page.objectScan(q.page.advance(s.readAddr))
			continue
		}
		s.readAddr = q.skipObject(s.readAddr, int(hdr.Size))
	}

	if !s.readAddr.valid() {
		return nil, newErr("dequeue", KindFailedStore, nil)
	}
	if s.readAddr == (Addr{Block: s.writeCur.block, Page: s.writeCur.page}) {
		return nil, newErr("dequeue", KindTimeout, nil)
	}

	hdr, payload, err := q.page.objectRead(s.readAddr, h, maxPayload)
	if err != nil {
		s.readAddr = q.page.objectScan(q.page.advance(s.readAddr))
		return nil, newErr("dequeue", KindOf(err), err)
	}

	s.stageLocked = true
	s.stagedSID = sidFromAddr(s.readAddr, q.reg.pagesPerBlock)
	s.stagedAddr = s.readAddr
	s.stagedSize = len(payload)
	s.readAddr = q.skipObject(s.readAddr, int(hdr.Size))

	return &Object{SID: s.stagedSID, Handle: hdr.Handle, Timestamp: hdr.Timestamp, Data: payload}, nil
}

// Retrieve rereads the object at sid without disturbing h's Store's read
// cursor, and locks the read stage exactly as Dequeue does.
func (q *Queue) Retrieve(h Handle, sid SID) (*Object, error) {
	q.enter()
	defer q.leave()

	s, err := q.store(h)
	if err != nil {
		return nil, newErr("retrieve", KindInvalidHandle, nil)
	}
	if s.stageLocked {
		return nil, newErr("retrieve", KindFailedStore, nil)
	}

	addr := addrFromSID(sid, q.reg.pagesPerBlock)
	hdr, payload, err := q.page.objectRead(addr, h, s.totalBound-headerSize)
	if err != nil {
		return nil, newErr("retrieve", KindOf(err), err)
	}

	s.stageLocked = true
	s.stagedSID = sid
	s.stagedAddr = addr
	s.stagedSize = len(payload)

	return &Object{SID: sid, Handle: hdr.Handle, Timestamp: hdr.Timestamp, Data: payload}, nil
}

// Release verifies sid matches the object currently staged by h's Store
// and, if so, unlocks the read stage. A mismatched sid returns
// KindFailedStore and leaves the stage locked. Release does not take the
// process lock: the stage-lock flag has exactly one writer, the Store
// itself, so it is safe to toggle while another goroutine blocks inside a
// long Enqueue on a different Store.
func (q *Queue) Release(h Handle, sid SID) error {
	s, err := q.store(h)
	if err != nil {
		return newErr("release", KindInvalidHandle, nil)
	}
	if !s.stageLocked || s.stagedSID != sid {
		return newErr("release", KindFailedStore, nil)
	}
	s.stageLocked = false
	return nil
}

// Relinquish deletes the object named by sid from h's Store, returning its
// pages to the free accounting (reclaiming any block that becomes fully
// deleted) and decrementing the live object count. Relinquish is valid
// regardless of whether sid was ever Dequeued or Retrieved.
func (q *Queue) Relinquish(h Handle, sid SID) error {
	q.enter()
	defer q.leave()

	s, err := q.store(h)
	if err != nil {
		return newErr("relinquish", KindInvalidHandle, nil)
	}

	addr := addrFromSID(sid, q.reg.pagesPerBlock)
	hdr, _, err := q.page.objectRead(addr, h, s.totalBound-headerSize)
	if err != nil {
		return newErr("relinquish", KindOf(err), err)
	}

	newHead, err := q.reg.objectDelete(s.headBlock, addr, int(hdr.Size), q.pageSize)
	if err != nil {
		return err
	}
	s.headBlock = newHead
	s.count--

	if s.stageLocked && s.stagedSID == sid {
		s.stageLocked = false
	}
	return nil
}

// GetCount reports h's Store's current live object count. Like Release, it
// does not take the process lock.
func (q *Queue) GetCount(h Handle) (int64, error) {
	s, err := q.store(h)
	if err != nil {
		return 0, newErr("getcount", KindInvalidHandle, nil)
	}
	return s.count, nil
}

// Stat reports device-wide block and error counters, resetting
// ErrorCount's running total when reset is true. When the Queue was built
// with a non-nil Logger, every bad block's physical identifier is logged.
func (q *Queue) Stat(reset bool) Stats {
	q.enter()
	defer q.leave()

	st := Stats{
		UsedBlocks: q.reg.usedCount,
		FreeBlocks: q.reg.free.count,
		BadBlocks:  q.reg.bad.count,
		ErrorCount: q.reg.errorCount,
	}

	if q.log != nil {
		for b := q.reg.bad.out; b != invalidBlock; b = q.reg.blocks[b].next {
			q.log.Printf("flashq: bad block %d (phys %d)", b, q.drv.PhysBlock(b))
		}
	}
	if reset {
		q.reg.errorCount = 0
	}
	return st
}
