// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memdrv is a RAM-backed flashq.Driver, analogous to lldb's
// MemFiler: test and demo scaffolding, not a production flash driver. It
// additionally lets a test inject page-write failures and mark blocks bad
// on demand, the way a real NAND part misbehaves under wear.
package memdrv

import (
	"errors"
	"fmt"
)

// Driver is a RAM-backed flashq.Driver. Every block starts good and every
// page starts as all-ones (erased) bytes.
type Driver struct {
	numBlocks     int
	pagesPerBlock int
	pageSize      int

	pages map[int][]byte // key: block*pagesPerBlock+page
	bad   map[int]bool

	// FailWrite, when non-nil, is consulted before every WritePage; a
	// true return fails that write without mutating pages.
	FailWrite func(block, page int) bool

	// FailErase, when non-nil, is consulted before every EraseBlock; a
	// true return fails that erase.
	FailErase func(block int) bool
}

// New returns a Driver with the given geometry, every block initially
// good and erased.
func New(numBlocks, pagesPerBlock, pageSize int) *Driver {
	return &Driver{
		numBlocks:     numBlocks,
		pagesPerBlock: pagesPerBlock,
		pageSize:      pageSize,
		pages:         make(map[int][]byte),
		bad:           make(map[int]bool),
	}
}

func (d *Driver) key(block, page int) int { return block*d.pagesPerBlock + page }

func (d *Driver) NumBlocks() int     { return d.numBlocks }
func (d *Driver) PagesPerBlock() int { return d.pagesPerBlock }
func (d *Driver) PageSize() int      { return d.pageSize }

func (d *Driver) ReadPage(block, page int, buf []byte) error {
	if block < 0 || block >= d.numBlocks || page < 0 || page >= d.pagesPerBlock {
		return fmt.Errorf("memdrv: read out of range: block=%d page=%d", block, page)
	}
	p, ok := d.pages[d.key(block, page)]
	if !ok {
		for i := range buf {
			buf[i] = 0xff
		}
		return nil
	}
	copy(buf, p)
	return nil
}

func (d *Driver) WritePage(block, page int, buf []byte) error {
	if block < 0 || block >= d.numBlocks || page < 0 || page >= d.pagesPerBlock {
		return fmt.Errorf("memdrv: write out of range: block=%d page=%d", block, page)
	}
	if d.FailWrite != nil && d.FailWrite(block, page) {
		return errors.New("memdrv: injected write failure")
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	d.pages[d.key(block, page)] = cp
	return nil
}

func (d *Driver) EraseBlock(block int) error {
	if block < 0 || block >= d.numBlocks {
		return fmt.Errorf("memdrv: erase out of range: block=%d", block)
	}
	if d.FailErase != nil && d.FailErase(block) {
		return errors.New("memdrv: injected erase failure")
	}
	for page := 0; page < d.pagesPerBlock; page++ {
		delete(d.pages, d.key(block, page))
	}
	return nil
}

func (d *Driver) IsBad(block int) bool { return d.bad[block] }

// MarkBad flags block bad, as a preexisting factory defect or a
// simulated wear-out would.
func (d *Driver) MarkBad(block int) { d.bad[block] = true }

func (d *Driver) PhysBlock(block int) int64 { return int64(block) }
