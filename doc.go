// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flashq implements a persistent, queue-like object store layered
// over raw NAND flash.
//
// Producers Enqueue variable-sized objects into one of a fixed number of
// independent Stores; consumers Dequeue them in roughly FIFO order, may
// retain the returned SID for later out-of-order Retrieve, and explicitly
// Relinquish objects once they are no longer needed.
//
// flashq owns the hard part of that contract: free/bad block bookkeeping,
// the linked-block page write/read algorithms over an erase-before-write
// device, object framing and validation, multiplexing many Stores over one
// device, and the SID addressing scheme. The physical flash part and the
// OS clock and logger primitives are external collaborators reached only
// through the Driver, Clock and Logger interfaces; the process-wide lock
// is a sync.Mutex inside Queue. The higher level protocol that produces
// the payloads is likewise outside flashq.
//
// Crash recovery after an unclean shutdown, wear-leveling beyond
// round-robin allocation from the free list, encryption, compression,
// transactional groups of objects, concurrent readers of the same Store
// and ordered iteration by SID are all out of scope; see Init's RECOVER
// mode for the reserved (currently a no-op) recovery hook.
package flashq
