// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package filedrv is an os.File backed flashq.Driver, in the spirit of
// lldb's SimpleFileFiler: it does nothing to protect structural
// consistency across a crash and is intended for demos and local testing
// of the public API end to end, not as a production NAND driver.
package filedrv

import (
	"fmt"
	"os"

	"github.com/cznic/fileutil"
)

// Driver is an os.File backed flashq.Driver. Block b's page p lives at
// byte offset (b*pagesPerBlock+p)*pageSize in the backing file. EraseBlock
// punches a hole over the block's byte range and then writes 0xff over
// every page of it, so an erased block reads as ones as on real NAND; the
// rewritten range is allocated again, so it does not stay sparse.
type Driver struct {
	f             *os.File
	numBlocks     int
	pagesPerBlock int
	pageSize      int
	bad           map[int]bool
}

// Open creates or truncates name to the exact size implied by the given
// geometry and returns a Driver over it.
func Open(name string, numBlocks, pagesPerBlock, pageSize int) (*Driver, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	size := int64(numBlocks) * int64(pagesPerBlock) * int64(pageSize)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	return &Driver{
		f:             f,
		numBlocks:     numBlocks,
		pagesPerBlock: pagesPerBlock,
		pageSize:      pageSize,
		bad:           make(map[int]bool),
	}, nil
}

func (d *Driver) Close() error { return d.f.Close() }

func (d *Driver) offset(block, page int) int64 {
	return (int64(block)*int64(d.pagesPerBlock) + int64(page)) * int64(d.pageSize)
}

func (d *Driver) NumBlocks() int     { return d.numBlocks }
func (d *Driver) PagesPerBlock() int { return d.pagesPerBlock }
func (d *Driver) PageSize() int      { return d.pageSize }

func (d *Driver) ReadPage(block, page int, buf []byte) error {
	if block < 0 || block >= d.numBlocks || page < 0 || page >= d.pagesPerBlock {
		return fmt.Errorf("filedrv: read out of range: block=%d page=%d", block, page)
	}
	_, err := d.f.ReadAt(buf, d.offset(block, page))
	return err
}

func (d *Driver) WritePage(block, page int, buf []byte) error {
	if block < 0 || block >= d.numBlocks || page < 0 || page >= d.pagesPerBlock {
		return fmt.Errorf("filedrv: write out of range: block=%d page=%d", block, page)
	}
	_, err := d.f.WriteAt(buf, d.offset(block, page))
	return err
}

func (d *Driver) EraseBlock(block int) error {
	if block < 0 || block >= d.numBlocks {
		return fmt.Errorf("filedrv: erase out of range: block=%d", block)
	}
	off := d.offset(block, 0)
	size := int64(d.pagesPerBlock) * int64(d.pageSize)
	if err := fileutil.PunchHole(d.f, off, size); err != nil {
		return err
	}
	ones := make([]byte, d.pageSize)
	for i := range ones {
		ones[i] = 0xff
	}
	for page := 0; page < d.pagesPerBlock; page++ {
		if _, err := d.f.WriteAt(ones, d.offset(block, page)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) IsBad(block int) bool { return d.bad[block] }

// MarkBad flags block bad, for demos exercising the bad-block path
// without a real device reporting one.
func (d *Driver) MarkBad(block int) { d.bad[block] = true }

func (d *Driver) PhysBlock(block int) int64 { return int64(block) }
