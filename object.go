// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flashq

import "encoding/binary"

// syncMagic opens every object header ("BP FLASH" in ASCII); objectScan
// uses it to resynchronize after a corrupt or partially-written record.
const syncMagic = uint64(0x425020464C415348)

// headerSize is the fixed on-flash size of a Header: 8 (sync) + 8
// (timestamp) + 4 (handle) + 4 (size) + 8 (sid) = 32 bytes. Wire layout is
// little-endian.
const headerSize = 32

// Header is an object's fixed-size preamble, immediately followed by Size
// bytes of payload.
type Header struct {
	Magic     uint64
	Timestamp int64
	Handle    Handle
	Size      uint32
	SID       SID
}

func (h Header) encode() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.Magic)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.Timestamp))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(h.Handle))
	binary.LittleEndian.PutUint32(buf[20:24], h.Size)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.SID))
	return buf
}

func decodeHeader(buf []byte) Header {
	return Header{
		Magic:     binary.LittleEndian.Uint64(buf[0:8]),
		Timestamp: int64(binary.LittleEndian.Uint64(buf[8:16])),
		Handle:    Handle(binary.LittleEndian.Uint32(buf[16:20])),
		Size:      binary.LittleEndian.Uint32(buf[20:24]),
		SID:       SID(binary.LittleEndian.Uint64(buf[24:32])),
	}
}

// objectPages is the number of whole pages an object of headerSize+size
// bytes occupies: ceil((headerSize+size) / pageSize), exactly the number of
// pages objectWrite's page-by-page chunking fills. objectDelete and
// skipObject use it rather than the size-only ceil(size/pageSize)+1 a
// literal reading of the on-disk layout rule might suggest — that formula
// overcounts by a page whenever a non-empty payload's last page has
// headerSize or more bytes to spare, and would clear a live neighbour's
// first page.
func objectPages(size int, pageSize int) int {
	total := headerSize + size
	return (total + pageSize - 1) / pageSize
}

// objectWrite frames header and up to two scattered payload buffers into
// one contiguous byte run and hands it to the page engine starting at
// cur. It returns the address of the header's first byte (the object's
// SID-producing address), the updated cursor, and cur.block's possibly
// replaced chain head (see pageEngine.write).
func (e *pageEngine) objectWrite(cur writeCursor, h Header, d1, d2 []byte) (Addr, writeCursor, int, error) {
	buf := make([]byte, 0, headerSize+len(d1)+len(d2))
	buf = append(buf, h.encode()...)
	buf = append(buf, d1...)
	buf = append(buf, d2...)

	next, addrs, newHead, err := e.write(cur, buf)
	if err != nil {
		return invalidAddr, next, newHead, err
	}
	if len(addrs) == 0 {
		return invalidAddr, next, newHead, newErr("enqueue", KindFailedStore, nil)
	}
	return addrs[0], next, newHead, nil
}

// objectRead reads the header at a, validates it, then rereads the full
// header+payload run in one pass to recover the payload packed immediately
// after it. The header is peeked first only to learn Size; objectWrite lays
// header and payload down as one contiguous byte stream chunked into whole
// pages, so replaying that same chunking from a is what correctly locates a
// payload that does not start on a page boundary.
//
// Validation happens before that second, size-driven read: sync must match
// the magic, handle must match expectedHandle, and Size must not exceed
// maxPayload. A corrupt or partially-written header can carry a bogus
// 32-bit Size — up to 4 GiB — and without this guard a garbage value would
// drive an oversized allocation and a readAt that walks the rest of the
// chain before ever failing.
func (e *pageEngine) objectRead(a Addr, expectedHandle Handle, maxPayload int) (Header, []byte, error) {
	hbuf := make([]byte, headerSize)
	if err := e.readAt(a, hbuf); err != nil {
		return Header{}, nil, err
	}
	h := decodeHeader(hbuf)
	if h.Magic != syncMagic {
		return Header{}, nil, newErr("read", KindFailedStore, nil)
	}
	if h.Handle != expectedHandle {
		return Header{}, nil, newErr("read", KindInvalidHandle, nil)
	}
	if int(h.Size) > maxPayload {
		return Header{}, nil, newErr("read", KindFailedStore, nil)
	}

	full := make([]byte, headerSize+int(h.Size))
	if err := e.readAt(a, full); err != nil {
		return Header{}, nil, err
	}
	return h, full[headerSize:], nil
}

// objectScan forward-walks pages one at a time starting at a, reading only
// a header-sized prefix of each, and returns the address of the first page
// whose sync field matches the magic. It returns invalidAddr if the chain
// ends first. Used to resynchronize a store's read cursor past a page that
// failed objectRead.
func (e *pageEngine) objectScan(a Addr) Addr {
	for addr := a; addr.valid(); addr = e.advance(addr) {
		hbuf := make([]byte, headerSize)
		if err := e.readAt(addr, hbuf); err != nil {
			continue
		}
		if binary.LittleEndian.Uint64(hbuf[0:8]) == syncMagic {
			return addr
		}
	}
	return invalidAddr
}

// objectDelete clears the page_use bits covering an object of the given
// size starting at a, walking forward by next pointers only (never prev),
// per the forward-only traversal invariant reads and deletes share. Any
// block whose clear-bit count reaches its max_pages becomes entirely
// deleted: it is spliced out of its chain and reclaimed. head is the
// store's current chain head; objectDelete returns the (possibly updated)
// head, which changes only if the head block itself was fully deleted.
//
// Running out of chain with pages still owed is a consistency error: the
// object's declared size claimed more pages than the chain actually has.
func (r *registry) objectDelete(head int, a Addr, size int, pageSize int) (int, error) {
	pages := objectPages(size, pageSize)
	newHead := head
	block, page := a.Block, a.Page
	curBlock := invalidBlock
	clearInBlock := 0

	for i := 0; i < pages; i++ {
		if curBlock != block {
			curBlock = block
			clearInBlock = r.blocks[block].pageUse.countClear(r.maxPages(block))
		}

		if r.blocks[block].pageUse.Get(page) {
			r.blocks[block].pageUse.Clear(page)
			clearInBlock++
		}

		if clearInBlock >= r.maxPages(block) {
			prev, next := r.blocks[block].prev, r.blocks[block].next
			if prev != invalidBlock {
				r.blocks[prev].next = next
			}
			if next != invalidBlock {
				r.blocks[next].prev = prev
			}
			if block == newHead {
				newHead = next
			}
			r.reclaim(block)

			if i+1 < pages && next == invalidBlock {
				return newHead, newErr("relinquish", KindFailedStore, nil)
			}
			block, page, curBlock = next, 0, invalidBlock
			continue
		}

		page++
		if page >= r.maxPages(block) {
			next := r.blocks[block].next
			if i+1 < pages && next == invalidBlock {
				return newHead, newErr("relinquish", KindFailedStore, nil)
			}
			block, page, curBlock = next, 0, invalidBlock
		}
	}
	return newHead, nil
}
